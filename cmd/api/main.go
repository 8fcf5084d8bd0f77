package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clubapi.org/internal/audit"
	"clubapi.org/internal/auth"
	"clubapi.org/internal/config"
	"clubapi.org/internal/confirm"
	"clubapi.org/internal/credentials"
	"clubapi.org/internal/httpapi"
	"clubapi.org/internal/obs"
	"clubapi.org/internal/resource"
	"clubapi.org/internal/store"
	"clubapi.org/internal/store/pg"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("CLUBAPI_COMMIT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var (
		st    store.Store
		ready httpapi.ReadyProbe
	)
	if cfg.PGDSN != "" {
		pgStore, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		st = pgStore
		ready = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		log.Printf("CLUBAPI_PG_DSN not set, using in-memory store")
		st = store.NewMemory()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.RootPassword != "" {
		if err := bootstrapRoot(ctx, st, cfg.RootPassword); err != nil {
			log.Fatalf("bootstrap root: %v", err)
		}
	}

	registry, err := resource.NewRegistry()
	if err != nil {
		log.Fatalf("resource registry: %v", err)
	}

	matrix, err := resource.DefaultMatrix()
	if err != nil {
		log.Fatalf("default matrix: %v", err)
	}
	if cfg.MatrixFile != "" {
		if matrix, err = auth.LoadMatrixFile(cfg.MatrixFile); err != nil {
			log.Fatalf("load matrix: %v", err)
		}
	}

	var keyring *auth.Keyring
	if cfg.APIKeyFile != "" {
		if keyring, err = auth.LoadKeyringFile(cfg.APIKeyFile); err != nil {
			log.Fatalf("load api keys: %v", err)
		}
	}

	var signer *confirm.Signer
	if cfg.ConfirmSecret != "" {
		if signer, err = confirm.NewSigner([]byte(cfg.ConfirmSecret), 7*24*time.Hour); err != nil {
			log.Fatalf("confirmation signer: %v", err)
		}
	}

	sessions := auth.NewSessionManager(st.Sessions())
	engine := auth.NewEngine(registry, matrix, auth.NewOwnerResolver(st))
	svc := auth.NewService(st, sessions)

	api := httpapi.New(httpapi.Options{
		Store:         st,
		Engine:        engine,
		Auth:          svc,
		Registry:      registry,
		Matrix:        matrix,
		Keyring:       keyring,
		Signer:        signer,
		Ready:         ready,
		Version:       version,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		RateBurst:     cfg.RateBurst,
		RatePerSecond: cfg.RatePerSecond,
	})

	go sweep(ctx, st, sessions, cfg.SweepInterval, cfg.SessionTimeout)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting clubapi %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Println("Stopped")
}

// bootstrapRoot creates the root account on first start and rotates its
// password on every restart, so the configured value is always the one that
// works.
func bootstrapRoot(ctx context.Context, st store.Store, password string) error {
	hash, err := credentials.Hash(password)
	if err != nil {
		return err
	}
	_, err = st.Users().Find(ctx, auth.RootUserID)
	if errors.Is(err, store.ErrNotFound) {
		return st.Users().Create(ctx, &store.User{
			ID:           auth.RootUserID,
			Email:        "root",
			Name:         "root",
			PasswordHash: hash,
			Active:       true,
		})
	}
	if err != nil {
		return err
	}
	return st.Users().UpdatePassword(ctx, auth.RootUserID, hash)
}

// sweep periodically removes idle sessions and lapsed role assignments.
func sweep(ctx context.Context, st store.Store, sessions *auth.SessionManager, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			swept, err := sessions.ExpireStale(ctx, now, timeout)
			if err != nil {
				log.Printf("session sweep: %v", err)
				continue
			}
			if swept > 0 {
				obs.ObserveSweep(swept)
				_ = audit.LogEvent(ctx, "session.swept", map[string]any{"count": swept})
			}
			if _, err := st.Assignments().DeleteExpired(ctx, now); err != nil {
				log.Printf("role sweep: %v", err)
			}
		}
	}
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"log"

	"clubapi.org/internal/credentials"
	"clubapi.org/internal/store"
)

// Service authenticates callers: password login, token identification and
// session revocation. It sits between the HTTP layer and the stores.
type Service struct {
	st       store.Store
	sessions *SessionManager
	logf     func(format string, args ...any)
}

// NewService builds the authentication service.
func NewService(st store.Store, sessions *SessionManager) *Service {
	return &Service{st: st, sessions: sessions, logf: log.Printf}
}

// Login verifies an email/password pair and issues a session. Unknown email,
// wrong password and deactivated account all return ErrInvalidCredentials;
// the caller cannot probe which part failed.
func (s *Service) Login(ctx context.Context, email, password string) (string, *store.Session, error) {
	user, err := s.st.Users().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("login lookup: %w", err)
	}
	if !user.Active || !credentials.Verify(password, user.PasswordHash) {
		return "", nil, ErrInvalidCredentials
	}
	if credentials.NeedsRehash(user.PasswordHash) {
		// Opportunistic upgrade to current parameters; login succeeds even
		// if the rewrite does not.
		if rehash, err := credentials.Hash(password); err == nil {
			if err := s.st.Users().UpdatePassword(ctx, user.ID, rehash); err != nil {
				s.logf("auth: rehash for user %s: %v", user.ID, err)
			}
		}
	}
	return s.sessions.Issue(ctx, user.ID)
}

// Identify resolves a session token to the caller's full identity, including
// current role assignments. An unknown or empty token yields ErrInvalidToken.
func (s *Service) Identify(ctx context.Context, token string) (Identity, error) {
	session, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	roles, err := s.st.Assignments().ListByUser(ctx, session.UserID)
	if err != nil {
		return Identity{}, fmt.Errorf("load roles for user %s: %w", session.UserID, err)
	}
	return Identity{UserID: session.UserID, Roles: roles}, nil
}

// Logout deletes a session by ID. Only the session's user and root may
// revoke it; anyone else is refused without confirming the session exists.
func (s *Service) Logout(ctx context.Context, id Identity, sessionID string) error {
	session, err := s.st.Sessions().Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return fmt.Errorf("session lookup: %w", err)
	}
	if session.UserID != id.UserID && !id.IsRoot() {
		return ErrForbidden
	}
	return s.st.Sessions().Delete(ctx, sessionID)
}

// Sessions lists the caller's own active sessions. Root may list any user's.
func (s *Service) Sessions(ctx context.Context, id Identity, userID string) ([]*store.Session, error) {
	if userID != id.UserID && !id.IsRoot() {
		return nil, ErrForbidden
	}
	return s.st.Sessions().ListByUser(ctx, userID)
}

// Package pg implements store.Store on PostgreSQL via database/sql with the
// pgx stdlib driver. Typed records live in the users, sessions and
// role_assignments tables; resource documents live in a single jsonb table.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"clubapi.org/internal/ids"
	"clubapi.org/internal/store"
)

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to PostgreSQL with tuned pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing connection, used by tests.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Users() store.UserStore             { return &pgUsers{db: s.db} }
func (s *Store) Sessions() store.SessionStore       { return &pgSessions{db: s.db} }
func (s *Store) Assignments() store.AssignmentStore { return &pgAssignments{db: s.db} }

func (s *Store) Documents(collection string) store.DocumentStore {
	return &pgDocuments{db: s.db, collection: collection}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Users ----------------------------------------------------------------------

type pgUsers struct {
	db *sql.DB
}

func (u *pgUsers) Create(ctx context.Context, usr *store.User) error {
	if usr.ID == "" {
		usr.ID = ids.New()
	}
	usr.Email = normalizeEmail(usr.Email)
	now := time.Now().UTC()
	if usr.CreatedAt.IsZero() {
		usr.CreatedAt = now
	}
	usr.UpdatedAt = now
	_, err := u.db.ExecContext(ctx, `
		insert into users(id, email, name, password_hash, active, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, usr.ID, usr.Email, usr.Name, usr.PasswordHash, usr.Active, usr.CreatedAt, usr.UpdatedAt)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

const userColumns = `id, email, name, password_hash, active, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*store.User, error) {
	var usr store.User
	err := row.Scan(&usr.ID, &usr.Email, &usr.Name, &usr.PasswordHash, &usr.Active, &usr.CreatedAt, &usr.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &usr, nil
}

func (u *pgUsers) Find(ctx context.Context, id string) (*store.User, error) {
	return scanUser(u.db.QueryRowContext(ctx, `select `+userColumns+` from users where id=$1`, id))
}

func (u *pgUsers) FindByEmail(ctx context.Context, email string) (*store.User, error) {
	return scanUser(u.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, normalizeEmail(email)))
}

func (u *pgUsers) List(ctx context.Context) ([]*store.User, error) {
	rows, err := u.db.QueryContext(ctx, `select `+userColumns+` from users order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*store.User
	for rows.Next() {
		usr, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, usr)
	}
	return out, rows.Err()
}

func (u *pgUsers) Update(ctx context.Context, usr *store.User) error {
	usr.Email = normalizeEmail(usr.Email)
	usr.UpdatedAt = time.Now().UTC()
	res, err := u.db.ExecContext(ctx, `
		update users set email=$2, name=$3, active=$4, updated_at=$5 where id=$1
	`, usr.ID, usr.Email, usr.Name, usr.Active, usr.UpdatedAt)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (u *pgUsers) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := u.db.ExecContext(ctx, `
		update users set password_hash=$2, updated_at=$3 where id=$1
	`, userID, passwordHash, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (u *pgUsers) Delete(ctx context.Context, id string) error {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from sessions where user_id=$1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from role_assignments where user_id=$1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `delete from users where id=$1`, id)
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

// Sessions -------------------------------------------------------------------

type pgSessions struct {
	db *sql.DB
}

const sessionColumns = `id, user_id, token_hash, created_at, last_seen`

func scanSession(row interface{ Scan(...any) error }) (*store.Session, error) {
	var s store.Session
	err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.CreatedAt, &s.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *pgSessions) Create(ctx context.Context, s *store.Session) error {
	if s.ID == "" {
		s.ID = ids.New()
	}
	_, err := p.db.ExecContext(ctx, `
		insert into sessions(id, user_id, token_hash, created_at, last_seen)
		values ($1,$2,$3,$4,$5)
	`, s.ID, s.UserID, s.TokenHash, s.CreatedAt, s.LastSeen)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

func (p *pgSessions) Find(ctx context.Context, id string) (*store.Session, error) {
	return scanSession(p.db.QueryRowContext(ctx, `select `+sessionColumns+` from sessions where id=$1`, id))
}

func (p *pgSessions) FindByTokenHash(ctx context.Context, hash string) (*store.Session, error) {
	return scanSession(p.db.QueryRowContext(ctx, `select `+sessionColumns+` from sessions where token_hash=$1`, hash))
}

func (p *pgSessions) ListByUser(ctx context.Context, userID string) ([]*store.Session, error) {
	rows, err := p.db.QueryContext(ctx, `select `+sessionColumns+` from sessions where user_id=$1 order by id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*store.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *pgSessions) Touch(ctx context.Context, id string, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `update sessions set last_seen=$2 where id=$1`, id, at)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (p *pgSessions) Delete(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `delete from sessions where id=$1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (p *pgSessions) DeleteLastSeenBefore(ctx context.Context, cutoff time.Time) (int, error) {
	// Strictly before: a session last seen exactly at the cutoff survives.
	res, err := p.db.ExecContext(ctx, `delete from sessions where last_seen < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Assignments ----------------------------------------------------------------

type pgAssignments struct {
	db *sql.DB
}

func (p *pgAssignments) Assign(ctx context.Context, a store.RoleAssignment) error {
	var expires sql.NullTime
	if !a.ExpiresAt.IsZero() {
		expires = sql.NullTime{Time: a.ExpiresAt, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		insert into role_assignments(user_id, role, expires_at)
		values ($1,$2,$3)
		on conflict (user_id, role) do update set expires_at = excluded.expires_at
	`, a.UserID, a.Role, expires)
	return err
}

func (p *pgAssignments) ListByUser(ctx context.Context, userID string) ([]store.RoleAssignment, error) {
	rows, err := p.db.QueryContext(ctx, `
		select user_id, role, expires_at from role_assignments where user_id=$1 order by role
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.RoleAssignment
	for rows.Next() {
		var a store.RoleAssignment
		var expires sql.NullTime
		if err := rows.Scan(&a.UserID, &a.Role, &expires); err != nil {
			return nil, err
		}
		if expires.Valid {
			a.ExpiresAt = expires.Time
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *pgAssignments) Remove(ctx context.Context, userID, role string) error {
	res, err := p.db.ExecContext(ctx, `delete from role_assignments where user_id=$1 and role=$2`, userID, role)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (p *pgAssignments) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := p.db.ExecContext(ctx, `
		delete from role_assignments where expires_at is not null and expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// helpers --------------------------------------------------------------------

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

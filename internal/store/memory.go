package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"clubapi.org/internal/ids"
)

// Memory implements Store with in-process concurrency safety. Used by tests
// and by deployments that run without PostgreSQL.
type Memory struct {
	mu          sync.RWMutex
	users       map[string]User
	sessions    map[string]Session
	assignments []RoleAssignment
	collections map[string]map[string]Document
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:       make(map[string]User),
		sessions:    make(map[string]Session),
		collections: make(map[string]map[string]Document),
	}
}

func (m *Memory) Users() UserStore             { return (*memUsers)(m) }
func (m *Memory) Sessions() SessionStore       { return (*memSessions)(m) }
func (m *Memory) Assignments() AssignmentStore { return (*memAssignments)(m) }

func (m *Memory) Documents(collection string) DocumentStore {
	return &memDocuments{store: m, collection: collection}
}

// collection returns the named collection map, creating it if needed. Callers
// must hold the write lock; readers use collections directly.
func (m *Memory) collection(name string) map[string]Document {
	c, ok := m.collections[name]
	if !ok {
		c = make(map[string]Document)
		m.collections[name] = c
	}
	return c
}

// matches evaluates a filter against a document. Exists conditions read other
// collections, so the caller must hold at least the read lock.
func (m *Memory) matches(f Filter, doc Document) bool {
	for _, clause := range f.Clauses {
		ok := false
		for _, cond := range clause {
			if m.matchCondition(cond, doc) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func (m *Memory) matchCondition(cond Condition, doc Document) bool {
	if cond.Exists == nil {
		v, ok := doc[cond.Field]
		return ok && valuesEqual(v, cond.Value)
	}
	ex := cond.Exists
	local, ok := doc[ex.LocalField]
	if !ok || local == nil {
		return false
	}
	for _, related := range m.collections[ex.Collection] {
		if valuesEqual(related[ex.RemoteField], local) && valuesEqual(related[ex.Field], ex.Value) {
			return true
		}
	}
	return false
}

// Users ---------------------------------------------------------------------

type memUsers Memory

func (m *memUsers) Create(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	if _, ok := m.users[u.ID]; ok {
		return ErrConflict
	}
	email := strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range m.users {
		if existing.Email == email {
			return ErrConflict
		}
	}
	u.Email = email
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	m.users[u.ID] = *u
	return nil
}

func (m *memUsers) Find(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *memUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) List(ctx context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		copied := u
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memUsers) Update(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	email := strings.ToLower(strings.TrimSpace(u.Email))
	for id, other := range m.users {
		if id != u.ID && other.Email == email {
			return ErrConflict
		}
	}
	existing.Email = email
	existing.Name = u.Name
	existing.Active = u.Active
	existing.UpdatedAt = time.Now().UTC()
	m.users[u.ID] = existing
	*u = existing
	return nil
}

func (m *memUsers) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	for sid, s := range m.sessions {
		if s.UserID == id {
			delete(m.sessions, sid)
		}
	}
	kept := m.assignments[:0]
	for _, a := range m.assignments {
		if a.UserID != id {
			kept = append(kept, a)
		}
	}
	m.assignments = kept
	return nil
}

func (m *memUsers) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	m.users[userID] = u
	return nil
}

// Sessions ------------------------------------------------------------------

type memSessions Memory

func (m *memSessions) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = ids.New()
	}
	if _, ok := m.sessions[s.ID]; ok {
		return ErrConflict
	}
	for _, existing := range m.sessions {
		if existing.TokenHash == s.TokenHash {
			return ErrConflict
		}
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *memSessions) Find(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *memSessions) FindByTokenHash(ctx context.Context, hash string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.TokenHash == hash {
			out := s
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memSessions) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			copied := s
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memSessions) Touch(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.LastSeen = at
	m.sessions[id] = s
	return nil
}

func (m *memSessions) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *memSessions) DeleteLastSeenBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for id, s := range m.sessions {
		if s.LastSeen.Before(cutoff) {
			delete(m.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

// Assignments ---------------------------------------------------------------

type memAssignments Memory

func (m *memAssignments) Assign(ctx context.Context, a RoleAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.assignments {
		if existing.UserID == a.UserID && existing.Role == a.Role {
			m.assignments[i] = a
			return nil
		}
	}
	m.assignments = append(m.assignments, a)
	return nil
}

func (m *memAssignments) ListByUser(ctx context.Context, userID string) ([]RoleAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RoleAssignment
	for _, a := range m.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAssignments) Remove(ctx context.Context, userID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.assignments {
		if a.UserID == userID && a.Role == role {
			m.assignments = append(m.assignments[:i], m.assignments[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *memAssignments) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.assignments[:0]
	deleted := 0
	for _, a := range m.assignments {
		if a.Expired(now) {
			deleted++
			continue
		}
		kept = append(kept, a)
	}
	m.assignments = kept
	return deleted, nil
}

// Documents -----------------------------------------------------------------

type memDocuments struct {
	store      *Memory
	collection string
}

func (d *memDocuments) Insert(ctx context.Context, doc Document) (Document, error) {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	stored := doc.Clone()
	if stored.ID() == "" {
		stored[IDField] = ids.New()
	}
	c := d.store.collection(d.collection)
	if _, ok := c[stored.ID()]; ok {
		return nil, ErrConflict
	}
	c[stored.ID()] = stored
	return stored.Clone(), nil
}

func (d *memDocuments) Find(ctx context.Context, id string) (Document, error) {
	d.store.mu.RLock()
	defer d.store.mu.RUnlock()
	doc, ok := d.store.collections[d.collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

func (d *memDocuments) List(ctx context.Context, filter Filter) ([]Document, error) {
	d.store.mu.RLock()
	defer d.store.mu.RUnlock()
	var out []Document
	for _, doc := range d.store.collections[d.collection] {
		if d.store.matches(filter, doc) {
			out = append(out, doc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

func (d *memDocuments) Replace(ctx context.Context, id string, doc Document) error {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	c := d.store.collection(d.collection)
	if _, ok := c[id]; !ok {
		return ErrNotFound
	}
	stored := doc.Clone()
	stored[IDField] = id
	c[id] = stored
	return nil
}

func (d *memDocuments) Update(ctx context.Context, id string, updates Document) (Document, error) {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	c := d.store.collection(d.collection)
	original, ok := c[id]
	if !ok {
		return nil, ErrNotFound
	}
	merged := Merge(original, updates)
	merged[IDField] = id
	c[id] = merged
	return merged.Clone(), nil
}

func (d *memDocuments) Delete(ctx context.Context, id string) error {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	c := d.store.collection(d.collection)
	if _, ok := c[id]; !ok {
		return ErrNotFound
	}
	delete(c, id)
	return nil
}

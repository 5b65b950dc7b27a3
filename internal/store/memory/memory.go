// Package memory is a process-local implementation of store.Store used for
// tests and for running without MongoDB. It keeps the same commit-time
// conflict semantics as the Mongo store, but nothing is shared across
// processes.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/gogotex/membership/internal/models"
	"github.com/gogotex/membership/internal/store"
)

// Store holds users and reservations in maps guarded by one mutex.
type Store struct {
	mu           sync.RWMutex
	users        map[string]*models.User
	reservations map[string]struct{}
}

func New() *Store {
	return &Store{
		users:        make(map[string]*models.User),
		reservations: make(map[string]struct{}),
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) OpenSession(ctx context.Context, opts store.SessionOptions) (store.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &session{st: s, opts: opts}, nil
}

// HasReservation reports whether key is currently reserved.
func (s *Store) HasReservation(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.reservations[key]
	return ok
}

// Reservations returns all reserved keys, sorted.
func (s *Store) Reservations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.reservations))
	for k := range s.reservations {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// UserCount returns the number of stored users across all applications.
func (s *Store) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

type session struct {
	st     *Store
	opts   store.SessionOptions
	batch  store.Batch
	closed bool
}

func (s *session) FindUser(ctx context.Context, q store.UserQuery) (*models.User, error) {
	if s.closed {
		return nil, store.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	var found *models.User
	for _, u := range s.st.users {
		if u.ApplicationName != q.App {
			continue
		}
		var v string
		switch q.Field {
		case store.FieldEmail:
			v = u.Email
		default:
			v = u.Username
		}
		if v != q.Value {
			continue
		}
		if found != nil {
			return nil, store.ErrAmbiguousResult
		}
		found = u
	}
	return found.Clone(), nil
}

func (s *session) LoadUser(ctx context.Context, id string) (*models.User, error) {
	if s.closed {
		return nil, store.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	return s.st.users[id].Clone(), nil
}

func (s *session) LoadReservation(ctx context.Context, key string) (*models.Reservation, error) {
	if s.closed {
		return nil, store.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	if _, ok := s.st.reservations[key]; !ok {
		return nil, nil
	}
	return &models.Reservation{ID: key}, nil
}

func (s *session) QueryUsers(ctx context.Context, q store.UserSearch) ([]*models.User, int64, error) {
	if s.closed {
		return nil, 0, store.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.st.mu.RLock()
	matched := make([]*models.User, 0)
	for _, u := range s.st.users {
		if u.ApplicationName != q.App {
			continue
		}
		if q.UsernameContains != "" && !strings.Contains(u.Username, q.UsernameContains) {
			continue
		}
		if q.EmailContains != "" && !strings.Contains(u.Email, q.EmailContains) {
			continue
		}
		matched = append(matched, u.Clone())
	}
	s.st.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Username == matched[j].Username {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].Username < matched[j].Username
	})
	total := int64(len(matched))
	if q.Skip >= total {
		return []*models.User{}, total, nil
	}
	end := total
	if q.Limit > 0 && q.Skip+q.Limit < total {
		end = q.Skip + q.Limit
	}
	return matched[q.Skip:end], total, nil
}

func (s *session) StoreUser(u *models.User) {
	isNew := u.ID == ""
	if isNew {
		u.ID = uuid.NewString()
	}
	s.batch.AddUser(u, isNew)
}

func (s *session) StoreReservation(r *models.Reservation) { s.batch.AddReservation(r) }

func (s *session) DeleteUser(u *models.User) { s.batch.AddDeleteUser(u) }

func (s *session) DeleteReservation(key string) { s.batch.AddDeleteReservation(key) }

// SaveChanges checks the whole batch against an overlay of the current state
// and only then applies it, all under the write lock.
func (s *session) SaveChanges(ctx context.Context) error {
	if s.closed {
		return store.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	st := s.st
	st.mu.Lock()
	defer st.mu.Unlock()

	reserved := make(map[string]bool)
	isReserved := func(key string) bool {
		if v, ok := reserved[key]; ok {
			return v
		}
		_, ok := st.reservations[key]
		return ok
	}
	versions := make(map[string]int64)
	present := make(map[string]bool)
	current := func(id string) (int64, bool) {
		if ok, seen := present[id]; seen {
			return versions[id], ok
		}
		u, ok := st.users[id]
		if !ok {
			return 0, false
		}
		return u.Version, true
	}

	for _, op := range s.batch.Ops {
		switch op.Kind {
		case store.OpInsertReservation:
			if isReserved(op.Key) {
				return &store.ConcurrencyError{Key: op.Key}
			}
			reserved[op.Key] = true
		case store.OpDeleteReservation:
			reserved[op.Key] = false
		case store.OpInsertUser:
			if _, ok := current(op.User.ID); ok {
				return &store.ConcurrencyError{Key: op.User.ID}
			}
			present[op.User.ID] = true
			versions[op.User.ID] = 1
		case store.OpReplaceUser:
			v, ok := current(op.User.ID)
			if !ok || (s.opts.OptimisticConcurrency && v != op.User.Version) {
				return &store.ConcurrencyError{Key: op.User.ID}
			}
			present[op.User.ID] = true
			versions[op.User.ID] = v + 1
		case store.OpDeleteUser:
			v, ok := current(op.User.ID)
			if s.opts.OptimisticConcurrency && (!ok || v != op.User.Version) {
				return &store.ConcurrencyError{Key: op.User.ID}
			}
			present[op.User.ID] = false
		}
	}

	for _, op := range s.batch.Ops {
		switch op.Kind {
		case store.OpInsertReservation:
			st.reservations[op.Key] = struct{}{}
		case store.OpDeleteReservation:
			delete(st.reservations, op.Key)
		case store.OpInsertUser:
			op.User.Version = 1
			st.users[op.User.ID] = op.User.Clone()
		case store.OpReplaceUser:
			op.User.Version = st.users[op.User.ID].Version + 1
			st.users[op.User.ID] = op.User.Clone()
		case store.OpDeleteUser:
			delete(st.users, op.User.ID)
		}
	}
	s.batch.Reset()
	return nil
}

func (s *session) Close(ctx context.Context) {
	s.closed = true
	s.batch.Reset()
}

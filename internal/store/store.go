// Package store defines the unit-of-work contract the membership core uses
// against a document store. Implementations live in the mongostore and memory
// subpackages.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogotex/membership/internal/models"
)

var (
	// ErrAmbiguousResult is returned when a single-result query matches more
	// than one user.
	ErrAmbiguousResult = errors.New("query matched more than one user")
	// ErrSessionClosed is returned when a closed session is used.
	ErrSessionClosed = errors.New("session closed")
)

// ConcurrencyError reports a commit rejected because Key already exists
// (reservation insert) or was changed since it was read (user version).
type ConcurrencyError struct {
	Key string
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrency conflict on %q", e.Key)
}

// ConflictKey returns the colliding key when err is a ConcurrencyError.
func ConflictKey(err error) (string, bool) {
	var ce *ConcurrencyError
	if errors.As(err, &ce) {
		return ce.Key, true
	}
	return "", false
}

// ReadMode selects the consistency of a query.
type ReadMode int

const (
	// ReadDefault allows whatever the store serves by default.
	ReadDefault ReadMode = iota
	// ReadFresh must reflect every write acknowledged before the read,
	// including the caller's own.
	ReadFresh
)

// Field names a user attribute a lookup can match on.
type Field string

const (
	FieldUsername Field = "username"
	FieldEmail    Field = "email"
)

// UserQuery looks up a single user by exact field value within an application.
type UserQuery struct {
	App   string
	Field Field
	Value string
	Mode  ReadMode
}

// UserSearch pages through users of an application. Empty Contains filters
// match everything.
type UserSearch struct {
	App              string
	UsernameContains string
	EmailContains    string
	Skip             int64
	Limit            int64
}

// SessionOptions configures a unit of work.
type SessionOptions struct {
	// OptimisticConcurrency makes user replaces and deletes fail with a
	// ConcurrencyError when the stored version moved since it was read.
	// Reservation inserts always conflict-check.
	OptimisticConcurrency bool
}

// Store opens units of work.
type Store interface {
	OpenSession(ctx context.Context, opts SessionOptions) (Session, error)
}

// Session is a single unit of work. Reads go straight to the store; writes
// are staged and applied atomically by SaveChanges in staging order.
type Session interface {
	// FindUser returns nil, nil when no user matches.
	FindUser(ctx context.Context, q UserQuery) (*models.User, error)
	// LoadUser returns nil, nil when id does not exist.
	LoadUser(ctx context.Context, id string) (*models.User, error)
	// LoadReservation returns nil, nil when key does not exist.
	LoadReservation(ctx context.Context, key string) (*models.Reservation, error)
	QueryUsers(ctx context.Context, q UserSearch) ([]*models.User, int64, error)

	// StoreUser stages an insert when u.ID is empty (assigning the ID
	// immediately) and a replace otherwise.
	StoreUser(u *models.User)
	StoreReservation(r *models.Reservation)
	DeleteUser(u *models.User)
	// DeleteReservation stages removal of key; a missing key is not an error.
	DeleteReservation(key string)

	// SaveChanges commits every staged change or none of them.
	SaveChanges(ctx context.Context) error
	Close(ctx context.Context)
}

// OpKind identifies a staged write.
type OpKind int

const (
	OpInsertUser OpKind = iota
	OpReplaceUser
	OpDeleteUser
	OpInsertReservation
	OpDeleteReservation
)

// Op is one staged write. Implementations share it to keep staging identical.
type Op struct {
	Kind        OpKind
	User        *models.User
	Reservation *models.Reservation
	Key         string
}

// Batch accumulates staged writes for a session.
type Batch struct {
	Ops []Op
}

// Reset drops all staged writes.
func (b *Batch) Reset() { b.Ops = b.Ops[:0] }

// AddUser stages an insert or a replace depending on isNew.
func (b *Batch) AddUser(u *models.User, isNew bool) {
	kind := OpReplaceUser
	if isNew {
		kind = OpInsertUser
	}
	b.Ops = append(b.Ops, Op{Kind: kind, User: u})
}

func (b *Batch) AddDeleteUser(u *models.User) {
	b.Ops = append(b.Ops, Op{Kind: OpDeleteUser, User: u})
}

func (b *Batch) AddReservation(r *models.Reservation) {
	b.Ops = append(b.Ops, Op{Kind: OpInsertReservation, Reservation: r, Key: r.ID})
}

func (b *Batch) AddDeleteReservation(key string) {
	b.Ops = append(b.Ops, Op{Kind: OpDeleteReservation, Key: key})
}

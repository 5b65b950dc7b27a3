// Package mongostore implements store.Store on MongoDB. Users and reservations
// live in separate collections; a reservation's _id is the claim itself, so
// the collection's primary key index rejects a second claim of the same
// value. SaveChanges runs inside a multi-document transaction, which needs a
// replica set (a single-node replica set is enough).
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/gogotex/membership/internal/models"
	"github.com/gogotex/membership/internal/store"
)

const (
	UsersCollection        = "users"
	ReservationsCollection = "reservations"
)

// Store is a MongoDB-backed store.Store.
type Store struct {
	client *mongo.Client

	users        *mongo.Collection
	usersFresh   *mongo.Collection
	reservations *mongo.Collection
}

var _ store.Store = (*Store)(nil)

// New returns a store over db. Caller owns the client and disconnects it.
func New(client *mongo.Client, db string) *Store {
	d := client.Database(db)
	fresh := options.Collection().
		SetReadPreference(readpref.Primary()).
		SetReadConcern(readconcern.Majority())
	return &Store{
		client:       client,
		users:        d.Collection(UsersCollection),
		usersFresh:   d.Collection(UsersCollection, fresh),
		reservations: d.Collection(ReservationsCollection, fresh),
	}
}

// EnsureIndexes creates the lookup indexes for users. They are deliberately
// not unique: reservations are the only uniqueness mechanism.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	idx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "applicationName", Value: 1}, {Key: "username", Value: 1}}},
		{Keys: bson.D{{Key: "applicationName", Value: 1}, {Key: "email", Value: 1}}},
	}
	if _, err := s.users.Indexes().CreateMany(ctx, idx); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

func (s *Store) OpenSession(ctx context.Context, opts store.SessionOptions) (store.Session, error) {
	ms, err := s.client.StartSession(options.Session().SetCausalConsistency(true))
	if err != nil {
		return nil, fmt.Errorf("start mongo session: %w", err)
	}
	return &session{st: s, ms: ms, opts: opts}, nil
}

type session struct {
	st     *Store
	ms     mongo.Session
	opts   store.SessionOptions
	batch  store.Batch
	closed bool
}

func (s *session) ctx(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, s.ms)
}

func (s *session) usersFor(mode store.ReadMode) *mongo.Collection {
	if mode == store.ReadFresh {
		return s.st.usersFresh
	}
	return s.st.users
}

func (s *session) FindUser(ctx context.Context, q store.UserQuery) (*models.User, error) {
	if s.closed {
		return nil, store.ErrSessionClosed
	}
	field := string(store.FieldUsername)
	if q.Field == store.FieldEmail {
		field = string(store.FieldEmail)
	}
	filter := bson.M{field: q.Value, "applicationName": q.App}
	cur, err := s.usersFor(q.Mode).Find(s.ctx(ctx), filter, options.Find().SetLimit(2))
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	var found []*models.User
	if err := cur.All(s.ctx(ctx), &found); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	default:
		return nil, store.ErrAmbiguousResult
	}
}

func (s *session) LoadUser(ctx context.Context, id string) (*models.User, error) {
	if s.closed {
		return nil, store.ErrSessionClosed
	}
	var u models.User
	if err := s.st.usersFresh.FindOne(s.ctx(ctx), bson.M{"_id": id}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &u, nil
}

func (s *session) LoadReservation(ctx context.Context, key string) (*models.Reservation, error) {
	if s.closed {
		return nil, store.ErrSessionClosed
	}
	var r models.Reservation
	if err := s.st.reservations.FindOne(s.ctx(ctx), bson.M{"_id": key}).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("load reservation: %w", err)
	}
	return &r, nil
}

// SearchFilter builds the Mongo filter for a user search. Substrings are
// matched literally.
func SearchFilter(q store.UserSearch) bson.M {
	filter := bson.M{"applicationName": q.App}
	if q.UsernameContains != "" {
		filter["username"] = primitive.Regex{Pattern: regexp.QuoteMeta(q.UsernameContains)}
	}
	if q.EmailContains != "" {
		filter["email"] = primitive.Regex{Pattern: regexp.QuoteMeta(q.EmailContains)}
	}
	return filter
}

func (s *session) QueryUsers(ctx context.Context, q store.UserSearch) ([]*models.User, int64, error) {
	if s.closed {
		return nil, 0, store.ErrSessionClosed
	}
	filter := SearchFilter(q)
	total, err := s.st.users.CountDocuments(s.ctx(ctx), filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "username", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(q.Skip)
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	cur, err := s.st.users.Find(s.ctx(ctx), filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("query users: %w", err)
	}
	out := []*models.User{}
	if err := cur.All(s.ctx(ctx), &out); err != nil {
		return nil, 0, fmt.Errorf("decode users: %w", err)
	}
	return out, total, nil
}

func (s *session) StoreUser(u *models.User) {
	isNew := u.ID == ""
	if isNew {
		u.ID = primitive.NewObjectID().Hex()
	}
	s.batch.AddUser(u, isNew)
}

func (s *session) StoreReservation(r *models.Reservation) { s.batch.AddReservation(r) }

func (s *session) DeleteUser(u *models.User) { s.batch.AddDeleteUser(u) }

func (s *session) DeleteReservation(key string) { s.batch.AddDeleteReservation(key) }

func (s *session) SaveChanges(ctx context.Context) error {
	if s.closed {
		return store.ErrSessionClosed
	}
	if len(s.batch.Ops) == 0 {
		return nil
	}
	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority()).
		SetReadPreference(readpref.Primary())

	// The callback may be retried on transient errors, so it must not touch
	// the staged documents.
	_, err := s.ms.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, op := range s.batch.Ops {
			if err := s.apply(sc, op); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}, txOpts)
	if err != nil {
		return err
	}

	for _, op := range s.batch.Ops {
		switch op.Kind {
		case store.OpInsertUser:
			op.User.Version = 1
		case store.OpReplaceUser:
			op.User.Version++
		}
	}
	s.batch.Reset()
	return nil
}

func (s *session) apply(sc mongo.SessionContext, op store.Op) error {
	switch op.Kind {
	case store.OpInsertReservation:
		if _, err := s.st.reservations.InsertOne(sc, op.Reservation); err != nil {
			return TranslateWriteError(err, op.Key)
		}
	case store.OpDeleteReservation:
		if _, err := s.st.reservations.DeleteOne(sc, bson.M{"_id": op.Key}); err != nil {
			return fmt.Errorf("delete reservation %q: %w", op.Key, err)
		}
	case store.OpInsertUser:
		doc := op.User.Clone()
		doc.Version = 1
		if _, err := s.st.users.InsertOne(sc, doc); err != nil {
			return TranslateWriteError(err, op.User.ID)
		}
	case store.OpReplaceUser:
		doc := op.User.Clone()
		doc.Version++
		res, err := s.st.users.ReplaceOne(sc, s.versionFilter(op.User), doc)
		if err != nil {
			return fmt.Errorf("replace user %q: %w", op.User.ID, err)
		}
		if res.MatchedCount == 0 {
			return &store.ConcurrencyError{Key: op.User.ID}
		}
	case store.OpDeleteUser:
		res, err := s.st.users.DeleteOne(sc, s.versionFilter(op.User))
		if err != nil {
			return fmt.Errorf("delete user %q: %w", op.User.ID, err)
		}
		if res.DeletedCount == 0 && s.opts.OptimisticConcurrency {
			return &store.ConcurrencyError{Key: op.User.ID}
		}
	}
	return nil
}

func (s *session) versionFilter(u *models.User) bson.M {
	if s.opts.OptimisticConcurrency {
		return bson.M{"_id": u.ID, "version": u.Version}
	}
	return bson.M{"_id": u.ID}
}

func (s *session) Close(ctx context.Context) {
	if s.closed {
		return
	}
	s.closed = true
	s.batch.Reset()
	s.ms.EndSession(ctx)
}

// TranslateWriteError maps a duplicate key failure on key to a
// ConcurrencyError and wraps everything else, keeping transaction error
// labels reachable for the driver's retry logic.
func TranslateWriteError(err error, key string) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return &store.ConcurrencyError{Key: key}
	}
	return fmt.Errorf("write %q: %w", key, err)
}

package users

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gogotex/membership/internal/models"
	"github.com/gogotex/membership/internal/store"
	"github.com/gogotex/membership/internal/store/memory"
)

func newLifecycle(t *testing.T) (*LifecycleService, *memory.Store) {
	t.Helper()
	st := memory.New()
	return NewLifecycleService(st, DefaultPolicy(), zerolog.Nop()), st
}

func TestCreateUser_RoundTrip(t *testing.T) {
	svc, st := newLifecycle(t)
	ctx := context.Background()

	u, status := svc.CreateUser(ctx, "app", "alice", "Passw0rd!", "a@x.com")
	require.Equal(t, StatusSuccess, status)
	require.NotNil(t, u)
	require.NotEmpty(t, u.ID)
	require.NotEmpty(t, u.PasswordSalt)
	require.NotEqual(t, "Passw0rd!", u.PasswordHash)
	require.False(t, u.DateCreated.IsZero())
	require.Nil(t, u.DateLastLogin)
	require.True(t, st.HasReservation("username/alice"))
	require.True(t, st.HasReservation("email/a@x.com"))

	ok, err := svc.CheckPassword(ctx, "app", "alice", "Passw0rd!", false)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.CheckPassword(ctx, "app", "alice", "wrong", false)
	require.NoError(t, err)
	require.False(t, ok)

	// same username in another application is a different user
	ok, err = svc.CheckPassword(ctx, "other", "alice", "Passw0rd!", false)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCreateUser_ConcurrentSameUsername(t *testing.T) {
	svc, st := newLifecycle(t)
	ctx := context.Background()

	const n = 5
	statuses := make([]CreateStatus, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, statuses[i] = svc.CreateUser(ctx, "app", "alice", "Passw0rd!", "alice"+string(rune('a'+i))+"@x.com")
		}(i)
	}
	close(start)
	wg.Wait()

	success := 0
	for _, s := range statuses {
		switch s {
		case StatusSuccess:
			success++
		case StatusDuplicateUserName:
		default:
			t.Fatalf("unexpected status %s", s)
		}
	}
	require.Equal(t, 1, success)
	require.Equal(t, 1, st.UserCount())
	// only the winner's email claim survives
	require.Len(t, st.Reservations(), 2)
}

func TestCreateUser_DuplicateClaims(t *testing.T) {
	svc, st := newLifecycle(t)
	ctx := context.Background()

	_, status := svc.CreateUser(ctx, "app", "alice", "Passw0rd!", "a@x.com")
	require.Equal(t, StatusSuccess, status)

	_, status = svc.CreateUser(ctx, "app", "alice", "Passw0rd!", "other@x.com")
	require.Equal(t, StatusDuplicateUserName, status)

	_, status = svc.CreateUser(ctx, "app", "bob", "Passw0rd!", "a@x.com")
	require.Equal(t, StatusDuplicateEmail, status)
	require.False(t, st.HasReservation("username/bob"))

	// the username claim is global across applications
	_, status = svc.CreateUser(ctx, "other", "alice", "Passw0rd!", "z@x.com")
	require.Equal(t, StatusDuplicateUserName, status)
	require.Equal(t, 1, st.UserCount())
}

func TestCreateUser_EmptyEmailIsReserved(t *testing.T) {
	svc, _ := newLifecycle(t)
	ctx := context.Background()

	_, status := svc.CreateUser(ctx, "app", "alice", "Passw0rd!", "")
	require.Equal(t, StatusSuccess, status)
	_, status = svc.CreateUser(ctx, "app", "bob", "Passw0rd!", "")
	require.Equal(t, StatusDuplicateEmail, status)
}

func TestCreateUser_DefaultsApplicationName(t *testing.T) {
	svc, _ := newLifecycle(t)
	u, status := svc.CreateUser(context.Background(), "", "alice", "Passw0rd!", "a@x.com")
	require.Equal(t, StatusSuccess, status)
	require.Equal(t, DefaultApplicationName, u.ApplicationName)
}

func TestCheckPassword_UpdatesLastLogin(t *testing.T) {
	svc, st := newLifecycle(t)
	ctx := context.Background()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	u, status := svc.CreateUser(ctx, "app", "alice", "Passw0rd!", "a@x.com")
	require.Equal(t, StatusSuccess, status)

	ok, err := svc.CheckPassword(ctx, "app", "alice", "Passw0rd!", true)
	require.NoError(t, err)
	require.True(t, ok)

	sess, err := st.OpenSession(ctx, store.SessionOptions{})
	require.NoError(t, err)
	defer sess.Close(ctx)
	got, err := sess.LoadUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DateLastLogin)
	require.True(t, fixed.Equal(*got.DateLastLogin))
}

func TestChangePassword(t *testing.T) {
	svc, _ := newLifecycle(t)
	ctx := context.Background()
	_, status := svc.CreateUser(ctx, "app", "alice", "Passw0rd!", "a@x.com")
	require.Equal(t, StatusSuccess, status)

	ok, err := svc.ChangePassword(ctx, "app", "alice", "wrong", "N3wPassword!")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.False(t, ok)

	ok, err = svc.ChangePassword(ctx, "app", "nobody", "Passw0rd!", "N3wPassword!")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.False(t, ok)

	ok, err = svc.ChangePassword(ctx, "app", "alice", "Passw0rd!", "N3wPassword!")
	require.NoError(t, err)
	require.True(t, ok)

	ok, _ = svc.CheckPassword(ctx, "app", "alice", "Passw0rd!", false)
	require.False(t, ok)
	ok, _ = svc.CheckPassword(ctx, "app", "alice", "N3wPassword!", false)
	require.True(t, ok)
}

func TestUpdateUser_EmailSwap(t *testing.T) {
	svc, st := newLifecycle(t)
	ctx := context.Background()
	_, status := svc.CreateUser(ctx, "app", "alice", "Passw0rd!", "e1@x.com")
	require.Equal(t, StatusSuccess, status)

	created := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	err := svc.UpdateUser(ctx, "app", UserUpdate{Username: "alice", Email: "e2@x.com", CreationDate: created})
	require.NoError(t, err)
	require.False(t, st.HasReservation("email/e1@x.com"))
	require.True(t, st.HasReservation("email/e2@x.com"))
	require.Equal(t, []string{"email/e2@x.com", "username/alice"}, st.Reservations())

	sess, err := st.OpenSession(ctx, store.SessionOptions{})
	require.NoError(t, err)
	defer sess.Close(ctx)
	got, err := sess.FindUser(ctx, store.UserQuery{App: "app", Field: store.FieldUsername, Value: "alice"})
	require.NoError(t, err)
	require.Equal(t, "e2@x.com", got.Email)
	require.True(t, created.Equal(got.DateCreated))
}

func TestUpdateUser_EmailConflictKeepsOriginal(t *testing.T) {
	svc, st := newLifecycle(t)
	ctx := context.Background()
	_, status := svc.CreateUser(ctx, "app", "alice", "Passw0rd!", "e1@x.com")
	require.Equal(t, StatusSuccess, status)
	_, status = svc.CreateUser(ctx, "app", "bob", "Passw0rd!", "e2@x.com")
	require.Equal(t, StatusSuccess, status)

	err := svc.UpdateUser(ctx, "app", UserUpdate{Username: "alice", Email: "e2@x.com"})
	require.ErrorIs(t, err, ErrDuplicateEmail)
	require.ErrorIs(t, err, ErrPolicyViolation)
	require.True(t, st.HasReservation("email/e1@x.com"))
	require.True(t, st.HasReservation("email/e2@x.com"))

	ok, err := svc.CheckPassword(ctx, "app", "alice", "Passw0rd!", false)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestUpdateUser_NotFound(t *testing.T) {
	svc, _ := newLifecycle(t)
	err := svc.UpdateUser(context.Background(), "app", UserUpdate{Username: "ghost", Email: "g@x.com"})
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestDeleteUser_CleansUpAndAllowsRecreate(t *testing.T) {
	svc, st := newLifecycle(t)
	ctx := context.Background()
	_, status := svc.CreateUser(ctx, "app", "alice", "Passw0rd!", "a@x.com")
	require.Equal(t, StatusSuccess, status)

	ok, err := svc.DeleteUser(ctx, "app", "alice", true)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, st.HasReservation("username/alice"))
	require.False(t, st.HasReservation("email/a@x.com"))
	require.Equal(t, 0, st.UserCount())

	_, status = svc.CreateUser(ctx, "app", "alice", "Passw0rd!", "a@x.com")
	require.Equal(t, StatusSuccess, status)

	ok, err = svc.DeleteUser(ctx, "app", "ghost", false)
	require.ErrorIs(t, err, ErrUserNotFound)
	require.False(t, ok)
}

// failingStore fails every session open or commit.
type failingStore struct {
	openErr   error
	commitErr error
	inner     store.Store
}

func (f *failingStore) OpenSession(ctx context.Context, opts store.SessionOptions) (store.Session, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	sess, err := f.inner.OpenSession(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &failingSession{Session: sess, commitErr: f.commitErr}, nil
}

type failingSession struct {
	store.Session
	commitErr error
}

func (s *failingSession) SaveChanges(ctx context.Context) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	return s.Session.SaveChanges(ctx)
}

// interleavingStore runs beforeCommit once, right before the first commit
// of any session it opened.
type interleavingStore struct {
	inner        store.Store
	beforeCommit func()
	once         sync.Once
}

func (s *interleavingStore) OpenSession(ctx context.Context, opts store.SessionOptions) (store.Session, error) {
	sess, err := s.inner.OpenSession(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &interleavingSession{Session: sess, st: s}, nil
}

type interleavingSession struct {
	store.Session
	st *interleavingStore
}

func (s *interleavingSession) SaveChanges(ctx context.Context) error {
	s.st.once.Do(s.st.beforeCommit)
	return s.Session.SaveChanges(ctx)
}

func TestCheckPassword_LastLoginDoesNotOverwriteConcurrentChanges(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	other := NewLifecycleService(inner, DefaultPolicy(), zerolog.Nop())
	_, status := other.CreateUser(ctx, "app", "alice", "Passw0rd!", "e1@x.com")
	require.Equal(t, StatusSuccess, status)

	racing := &interleavingStore{inner: inner, beforeCommit: func() {
		require.NoError(t, other.UpdateUser(ctx, "app", UserUpdate{Username: "alice", Email: "e2@x.com"}))
		ok, err := other.ChangePassword(ctx, "app", "alice", "Passw0rd!", "N3wPassword!")
		require.NoError(t, err)
		require.True(t, ok)
	}}
	svc := NewLifecycleService(racing, DefaultPolicy(), zerolog.Nop())

	ok, err := svc.CheckPassword(ctx, "app", "alice", "Passw0rd!", true)
	require.NoError(t, err)
	require.True(t, ok)

	sess, err := inner.OpenSession(ctx, store.SessionOptions{})
	require.NoError(t, err)
	defer sess.Close(ctx)
	got, err := svc.findUser(ctx, sess, "app", "alice")
	require.NoError(t, err)
	require.Equal(t, "e2@x.com", got.Email)
	require.Nil(t, got.DateLastLogin)
	require.Equal(t, []string{"email/e2@x.com", "username/alice"}, inner.Reservations())

	ok, err = other.CheckPassword(ctx, "app", "alice", "N3wPassword!", false)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = other.CheckPassword(ctx, "app", "alice", "Passw0rd!", false)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteUser_StaleDeleteKeepsRecreatedClaims(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	other := NewLifecycleService(inner, DefaultPolicy(), zerolog.Nop())
	_, status := other.CreateUser(ctx, "app", "alice", "Passw0rd!", "a@x.com")
	require.Equal(t, StatusSuccess, status)

	racing := &interleavingStore{inner: inner, beforeCommit: func() {
		ok, err := other.DeleteUser(ctx, "app", "alice", false)
		require.NoError(t, err)
		require.True(t, ok)
		_, status := other.CreateUser(ctx, "app", "alice", "Passw0rd!", "a@x.com")
		require.Equal(t, StatusSuccess, status)
	}}
	svc := NewLifecycleService(racing, DefaultPolicy(), zerolog.Nop())

	ok, err := svc.DeleteUser(ctx, "app", "alice", false)
	require.ErrorIs(t, err, ErrProviderError)
	require.False(t, ok)
	require.Equal(t, 1, inner.UserCount())
	require.Equal(t, []string{"email/a@x.com", "username/alice"}, inner.Reservations())

	_, status = other.CreateUser(ctx, "app", "alice", "Passw0rd!", "b@x.com")
	require.Equal(t, StatusDuplicateUserName, status)
}

func TestLifecycle_ProviderErrors(t *testing.T) {
	ctx := context.Background()
	down := errors.New("connection refused")

	svc := NewLifecycleService(&failingStore{openErr: down}, DefaultPolicy(), zerolog.Nop())
	_, status := svc.CreateUser(ctx, "app", "alice", "Passw0rd!", "a@x.com")
	require.Equal(t, StatusProviderError, status)

	_, err := svc.CheckPassword(ctx, "app", "alice", "Passw0rd!", false)
	require.ErrorIs(t, err, ErrProviderError)
	require.True(t, IsProviderError(err))

	_, err = svc.DeleteUser(ctx, "app", "alice", false)
	require.ErrorIs(t, err, ErrProviderError)

	// a conflict on a key other than the claims is not a duplicate
	svc = NewLifecycleService(&failingStore{inner: memory.New(), commitErr: &store.ConcurrencyError{Key: "users/42"}}, DefaultPolicy(), zerolog.Nop())
	_, status = svc.CreateUser(ctx, "app", "alice", "Passw0rd!", "a@x.com")
	require.Equal(t, StatusProviderError, status)
}

func TestCreateStatus(t *testing.T) {
	require.Equal(t, "DuplicateEmail", StatusDuplicateEmail.String())
	require.Equal(t, "Unknown", CreateStatus(99).String())
	require.NoError(t, StatusSuccess.Err())
	require.ErrorIs(t, StatusDuplicateUserName.Err(), ErrDuplicateUserName)
	require.ErrorIs(t, StatusProviderError.Err(), ErrProviderError)
}

func TestUserCloneIndependent(t *testing.T) {
	// results handed out by the service must not alias store state
	svc, st := newLifecycle(t)
	ctx := context.Background()
	u, _ := svc.CreateUser(ctx, "app", "alice", "Passw0rd!", "a@x.com")
	u.Email = "mutated@x.com"

	sess, err := st.OpenSession(ctx, store.SessionOptions{})
	require.NoError(t, err)
	defer sess.Close(ctx)
	got, err := sess.LoadUser(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "a@x.com", got.Email)
	require.IsType(t, &models.User{}, got)
}

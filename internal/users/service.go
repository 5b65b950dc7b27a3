package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gogotex/membership/internal/models"
	"github.com/gogotex/membership/internal/passwords"
	"github.com/gogotex/membership/internal/store"
	"github.com/gogotex/membership/pkg/metrics"
)

// Service is the membership contract host adapters call into. Both
// LifecycleService and Validator implement it.
type Service interface {
	CreateUser(ctx context.Context, app, username, password, email string) (*models.User, CreateStatus)
	CheckPassword(ctx context.Context, app, username, password string, updateLastLogin bool) (bool, error)
	ChangePassword(ctx context.Context, app, username, oldPassword, newPassword string) (bool, error)
	UpdateUser(ctx context.Context, app string, update UserUpdate) error
	DeleteUser(ctx context.Context, app, username string, deleteAllRelatedData bool) (bool, error)
}

// UserUpdate is the projection UpdateUser applies onto the stored record.
// Zero CreationDate and nil LastLoginDate leave the stored values alone.
type UserUpdate struct {
	Username      string
	Email         string
	CreationDate  time.Time
	LastLoginDate *time.Time
}

// LifecycleService owns user records and their reservations. Every call runs
// in its own unit of work; uniqueness comes from reservation keys colliding
// at commit.
type LifecycleService struct {
	store  store.Store
	policy Policy
	logger zerolog.Logger
	now    func() time.Time
}

// NewLifecycleService creates a new LifecycleService.
func NewLifecycleService(st store.Store, policy Policy, logger zerolog.Logger) *LifecycleService {
	return &LifecycleService{
		store:  st,
		policy: policy,
		logger: logger.With().Str("service", "users").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *LifecycleService) app(app string) string {
	if app == "" {
		return s.policy.ApplicationName()
	}
	return app
}

func (s *LifecycleService) open(ctx context.Context, occ bool) (store.Session, error) {
	sess, err := s.store.OpenSession(ctx, store.SessionOptions{OptimisticConcurrency: occ})
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return sess, nil
}

func (s *LifecycleService) providerError(op, app, username string, err error) error {
	s.logger.Error().Err(err).Str("op", op).Str("app", app).Str("username", username).Msg("membership store failure")
	return fmt.Errorf("%w: %s: %v", ErrProviderError, op, err)
}

func (s *LifecycleService) findUser(ctx context.Context, sess store.Session, app, username string) (*models.User, error) {
	return sess.FindUser(ctx, store.UserQuery{
		App:   app,
		Field: store.FieldUsername,
		Value: username,
		Mode:  store.ReadFresh,
	})
}

// CreateUser stores a new user together with its username and email claims.
func (s *LifecycleService) CreateUser(ctx context.Context, app, username, password, email string) (*models.User, CreateStatus) {
	app = s.app(app)
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)

	salt, err := passwords.CreateRandomSalt()
	if err != nil {
		s.logger.Error().Err(err).Str("op", "create").Msg("failed to create salt")
		metrics.CreateRejected.WithLabelValues(StatusProviderError.String()).Inc()
		return nil, StatusProviderError
	}
	user := &models.User{
		Username:        username,
		Email:           email,
		PasswordSalt:    salt,
		PasswordHash:    passwords.HashPassword(password, salt),
		ApplicationName: app,
		DateCreated:     s.now(),
	}
	usernameClaim := models.UsernameReservation(username)
	emailClaim := models.EmailReservation(email)
	usernameKey, emailKey := usernameClaim.ID, emailClaim.ID

	sess, err := s.open(ctx, true)
	if err != nil {
		_ = s.providerError("create", app, username, err)
		metrics.CreateRejected.WithLabelValues(StatusProviderError.String()).Inc()
		return nil, StatusProviderError
	}
	defer sess.Close(ctx)

	sess.StoreUser(user)
	sess.StoreReservation(usernameClaim)
	sess.StoreReservation(emailClaim)

	if err := sess.SaveChanges(ctx); err != nil {
		status := StatusProviderError
		if key, ok := store.ConflictKey(err); ok {
			switch key {
			case usernameKey:
				status = StatusDuplicateUserName
				metrics.StoreConflicts.WithLabelValues(models.ClaimUsername).Inc()
			case emailKey:
				status = StatusDuplicateEmail
				metrics.StoreConflicts.WithLabelValues(models.ClaimEmail).Inc()
			}
		}
		if status == StatusProviderError {
			_ = s.providerError("create", app, username, err)
		} else {
			s.logger.Debug().Str("username", username).Str("status", status.String()).Msg("user claim rejected")
		}
		metrics.CreateRejected.WithLabelValues(status.String()).Inc()
		return nil, status
	}

	metrics.UsersCreated.Inc()
	s.logger.Info().Str("user_id", user.ID).Str("username", user.Username).Str("app", app).Msg("user created")
	return user, StatusSuccess
}

// CheckPassword reports whether password is valid for username. A missing
// user and a wrong password both yield false. The last-login write is
// version checked; losing that race to another write skips the bookkeeping
// but still reports the password as valid.
func (s *LifecycleService) CheckPassword(ctx context.Context, app, username, password string, updateLastLogin bool) (bool, error) {
	app = s.app(app)
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)

	sess, err := s.open(ctx, true)
	if err != nil {
		metrics.Authentications.WithLabelValues("error").Inc()
		return false, s.providerError("check_password", app, username, err)
	}
	defer sess.Close(ctx)

	user, err := s.findUser(ctx, sess, app, username)
	if err != nil {
		metrics.Authentications.WithLabelValues("error").Inc()
		return false, s.providerError("check_password", app, username, err)
	}
	if user == nil {
		passwords.Burn(password)
		s.logger.Debug().Str("username", username).Msg("unknown user during password check")
		metrics.Authentications.WithLabelValues("failure").Inc()
		return false, nil
	}
	if !passwords.Matches(password, user.PasswordSalt, user.PasswordHash) {
		s.logger.Debug().Str("username", username).Msg("invalid password during password check")
		metrics.Authentications.WithLabelValues("failure").Inc()
		return false, nil
	}

	if updateLastLogin {
		now := s.now()
		user.DateLastLogin = &now
		sess.StoreUser(user)
		if err := sess.SaveChanges(ctx); err != nil {
			if key, ok := store.ConflictKey(err); ok && key == user.ID {
				metrics.StoreConflicts.WithLabelValues("user").Inc()
				s.logger.Debug().Str("username", username).Msg("user changed during login, last login not recorded")
			} else {
				metrics.Authentications.WithLabelValues("error").Inc()
				return false, s.providerError("check_password", app, username, err)
			}
		}
	}
	metrics.Authentications.WithLabelValues("success").Inc()
	return true, nil
}

// ChangePassword replaces the salt and hash once oldPassword verifies.
func (s *LifecycleService) ChangePassword(ctx context.Context, app, username, oldPassword, newPassword string) (bool, error) {
	app = s.app(app)
	username = strings.TrimSpace(username)

	sess, err := s.open(ctx, true)
	if err != nil {
		return false, s.providerError("change_password", app, username, err)
	}
	defer sess.Close(ctx)

	user, err := s.findUser(ctx, sess, app, username)
	if err != nil {
		return false, s.providerError("change_password", app, username, err)
	}
	if user == nil {
		passwords.Burn(oldPassword)
		return false, ErrInvalidCredentials
	}
	if !passwords.Matches(strings.TrimSpace(oldPassword), user.PasswordSalt, user.PasswordHash) {
		return false, ErrInvalidCredentials
	}

	salt, err := passwords.CreateRandomSalt()
	if err != nil {
		return false, s.providerError("change_password", app, username, err)
	}
	user.PasswordSalt = salt
	user.PasswordHash = passwords.HashPassword(strings.TrimSpace(newPassword), salt)
	sess.StoreUser(user)
	if err := sess.SaveChanges(ctx); err != nil {
		if _, ok := store.ConflictKey(err); ok {
			metrics.StoreConflicts.WithLabelValues("user").Inc()
		}
		return false, s.providerError("change_password", app, username, err)
	}

	s.logger.Info().Str("user_id", user.ID).Str("username", username).Msg("password changed")
	return true, nil
}

// UpdateUser applies the projection onto the stored user. A changed email
// moves the email claim in the same unit of work.
func (s *LifecycleService) UpdateUser(ctx context.Context, app string, update UserUpdate) error {
	app = s.app(app)

	sess, err := s.open(ctx, true)
	if err != nil {
		return s.providerError("update", app, update.Username, err)
	}
	defer sess.Close(ctx)

	user, err := s.findUser(ctx, sess, app, update.Username)
	if err != nil {
		return s.providerError("update", app, update.Username, err)
	}
	if user == nil {
		return fmt.Errorf("%w: %s", ErrUserNotFound, update.Username)
	}

	newEmailClaim := models.EmailReservation(update.Email)
	newEmailKey := newEmailClaim.ID
	if user.Email != update.Email {
		sess.DeleteReservation(models.EmailReservation(user.Email).ID)
		sess.StoreReservation(newEmailClaim)
	}

	// TODO: move the username claim as well once renames are allowed; the
	// lookup above is by the projected username so a rename cannot reach here yet.
	user.Username = update.Username
	user.Email = update.Email
	if !update.CreationDate.IsZero() {
		user.DateCreated = update.CreationDate.UTC()
	}
	if update.LastLoginDate != nil {
		t := update.LastLoginDate.UTC()
		user.DateLastLogin = &t
	}
	sess.StoreUser(user)

	if err := sess.SaveChanges(ctx); err != nil {
		if key, ok := store.ConflictKey(err); ok && key == newEmailKey {
			metrics.StoreConflicts.WithLabelValues(models.ClaimEmail).Inc()
			return fmt.Errorf("%w: %w", ErrPolicyViolation, ErrDuplicateEmail)
		}
		return s.providerError("update", app, update.Username, err)
	}
	return nil
}

// DeleteUser removes the user and both of its claims. Related data is owned
// by the user record alone, so deleteAllRelatedData changes nothing.
func (s *LifecycleService) DeleteUser(ctx context.Context, app, username string, deleteAllRelatedData bool) (bool, error) {
	app = s.app(app)
	username = strings.TrimSpace(username)

	sess, err := s.open(ctx, true)
	if err != nil {
		return false, s.providerError("delete", app, username, err)
	}
	defer sess.Close(ctx)

	user, err := s.findUser(ctx, sess, app, username)
	if err != nil {
		return false, s.providerError("delete", app, username, err)
	}
	if user == nil {
		return false, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}

	sess.DeleteUser(user)
	sess.DeleteReservation(models.UsernameReservation(user.Username).ID)
	sess.DeleteReservation(models.EmailReservation(user.Email).ID)
	if err := sess.SaveChanges(ctx); err != nil {
		return false, s.providerError("delete", app, username, err)
	}

	s.logger.Info().Str("user_id", user.ID).Str("username", username).Bool("related", deleteAllRelatedData).Msg("user deleted")
	return true, nil
}

// IsProviderError reports whether err hides an infrastructure failure.
func IsProviderError(err error) bool {
	return errors.Is(err, ErrProviderError)
}

var (
	_ Service = (*LifecycleService)(nil)
	_ Service = (*Validator)(nil)
)

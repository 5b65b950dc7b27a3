package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dlclark/regexp2"

	"github.com/gogotex/membership/internal/models"
)

// Field limits.
const (
	MaxUsernameLength = 256
	MaxEmailLength    = 256
	MaxPasswordLength = 128
)

const strengthMatchTimeout = time.Second

// Validator gates every call with field and password policy checks before
// handing it to the wrapped Service. It never touches the store itself.
type Validator struct {
	next   Service
	policy Policy
}

// NewValidator wraps next with the checks configured by policy.
func NewValidator(next Service, policy Policy) *Validator {
	return &Validator{next: next, policy: policy}
}

// checkParameter trims *param in place and enforces presence, length and the
// optional comma ban.
func checkParameter(param *string, required, noCommas bool, maxLen int, name string) error {
	*param = strings.TrimSpace(*param)
	if *param == "" {
		if required {
			return fmt.Errorf("%s must not be empty", name)
		}
		return nil
	}
	if maxLen > 0 && utf8.RuneCountInString(*param) > maxLen {
		return fmt.Errorf("%s is longer than %d characters", name, maxLen)
	}
	if noCommas && strings.Contains(*param, ",") {
		return fmt.Errorf("%s must not contain commas", name)
	}
	return nil
}

func nonAlphanumericCount(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// checkPasswordPolicy runs the length, symbol count and strength pattern
// rules. A broken pattern is reported as ErrProviderError.
func (v *Validator) checkPasswordPolicy(password string) error {
	if n := v.policy.MinRequiredPasswordLength(); utf8.RuneCountInString(password) < n {
		return fmt.Errorf("%w: must be at least %d characters", ErrInvalidPassword, n)
	}
	if n := v.policy.MinRequiredNonAlphanumericCharacters(); nonAlphanumericCount(password) < n {
		return fmt.Errorf("%w: must contain at least %d non-alphanumeric characters", ErrInvalidPassword, n)
	}
	if pattern := v.policy.PasswordStrengthRegularExpression(); pattern != "" {
		re, err := regexp2.Compile(pattern, regexp2.None)
		if err != nil {
			return fmt.Errorf("%w: password strength expression: %v", ErrProviderError, err)
		}
		re.MatchTimeout = strengthMatchTimeout
		ok, err := re.MatchString(password)
		if err != nil {
			return fmt.Errorf("%w: password strength expression: %v", ErrProviderError, err)
		}
		if !ok {
			return fmt.Errorf("%w: does not match the required strength", ErrInvalidPassword)
		}
	}
	return nil
}

// runHook lets the custom hook veto the password.
func (v *Validator) runHook(username, password string, isNewUser bool) error {
	args := &ValidatePasswordArgs{Username: username, Password: password, IsNewUser: isNewUser}
	v.policy.OnValidatingPassword(args)
	if !args.Cancel {
		return nil
	}
	if args.FailureInformation != nil {
		return errors.Join(args.FailureInformation, ErrInvalidPassword)
	}
	return errors.Join(ErrPolicyViolation, ErrInvalidPassword)
}

func (v *Validator) CreateUser(ctx context.Context, app, username, password, email string) (*models.User, CreateStatus) {
	if err := checkParameter(&password, true, false, MaxPasswordLength, "password"); err != nil {
		return nil, StatusInvalidPassword
	}
	if err := checkParameter(&username, true, true, MaxUsernameLength, "username"); err != nil {
		return nil, StatusInvalidUserName
	}
	if err := checkParameter(&email, v.policy.RequiresUniqueEmail(), false, MaxEmailLength, "email"); err != nil {
		return nil, StatusInvalidEmail
	}
	if err := v.checkPasswordPolicy(password); err != nil {
		if IsProviderError(err) {
			return nil, StatusProviderError
		}
		return nil, StatusInvalidPassword
	}
	if err := v.runHook(username, password, true); err != nil {
		return nil, StatusInvalidPassword
	}
	return v.next.CreateUser(ctx, app, username, password, email)
}

func (v *Validator) CheckPassword(ctx context.Context, app, username, password string, updateLastLogin bool) (bool, error) {
	return v.next.CheckPassword(ctx, app, username, password, updateLastLogin)
}

func (v *Validator) ChangePassword(ctx context.Context, app, username, oldPassword, newPassword string) (bool, error) {
	if err := checkParameter(&username, true, true, MaxUsernameLength, "username"); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidUsername, err)
	}
	if err := checkParameter(&oldPassword, true, false, MaxPasswordLength, "old password"); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}
	if err := checkParameter(&newPassword, true, false, MaxPasswordLength, "new password"); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}

	ok, err := v.next.CheckPassword(ctx, app, username, oldPassword, false)
	if err != nil || !ok {
		return false, err
	}

	if err := v.checkPasswordPolicy(newPassword); err != nil {
		return false, err
	}
	if err := v.runHook(username, newPassword, false); err != nil {
		return false, err
	}
	return v.next.ChangePassword(ctx, app, username, oldPassword, newPassword)
}

func (v *Validator) UpdateUser(ctx context.Context, app string, update UserUpdate) error {
	if err := checkParameter(&update.Username, true, true, MaxUsernameLength, "username"); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUsername, err)
	}
	if err := checkParameter(&update.Email, v.policy.RequiresUniqueEmail(), false, MaxEmailLength, "email"); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}
	return v.next.UpdateUser(ctx, app, update)
}

func (v *Validator) DeleteUser(ctx context.Context, app, username string, deleteAllRelatedData bool) (bool, error) {
	if err := checkParameter(&username, true, true, MaxUsernameLength, "username"); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidUsername, err)
	}
	return v.next.DeleteUser(ctx, app, username, deleteAllRelatedData)
}

package users

import "errors"

// Membership errors.
var (
	// Field errors
	ErrInvalidUsername = errors.New("invalid username")
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidEmail    = errors.New("invalid email")

	// Claim errors
	ErrDuplicateUserName = errors.New("username is already taken")
	ErrDuplicateEmail    = errors.New("email is already taken")

	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPolicyViolation    = errors.New("password rejected by policy")

	// ErrProviderError hides store and infrastructure failures from callers.
	ErrProviderError = errors.New("membership provider error")
)

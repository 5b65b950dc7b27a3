package users

// CreateStatus is the outcome of a CreateUser call.
type CreateStatus int

const (
	StatusSuccess CreateStatus = iota
	StatusInvalidUserName
	StatusInvalidPassword
	StatusInvalidEmail
	StatusDuplicateUserName
	StatusDuplicateEmail
	StatusProviderError
)

func (s CreateStatus) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusInvalidUserName:
		return "InvalidUserName"
	case StatusInvalidPassword:
		return "InvalidPassword"
	case StatusInvalidEmail:
		return "InvalidEmail"
	case StatusDuplicateUserName:
		return "DuplicateUserName"
	case StatusDuplicateEmail:
		return "DuplicateEmail"
	case StatusProviderError:
		return "ProviderError"
	}
	return "Unknown"
}

// Err maps a failed status onto the matching sentinel error; nil for success.
func (s CreateStatus) Err() error {
	switch s {
	case StatusSuccess:
		return nil
	case StatusInvalidUserName:
		return ErrInvalidUsername
	case StatusInvalidPassword:
		return ErrInvalidPassword
	case StatusInvalidEmail:
		return ErrInvalidEmail
	case StatusDuplicateUserName:
		return ErrDuplicateUserName
	case StatusDuplicateEmail:
		return ErrDuplicateEmail
	}
	return ErrProviderError
}

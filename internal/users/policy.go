package users

// Policy is the read-only configuration consulted by the lifecycle service
// and the validator.
type Policy interface {
	MinRequiredPasswordLength() int
	MinRequiredNonAlphanumericCharacters() int
	// PasswordStrengthRegularExpression is skipped when empty.
	PasswordStrengthRegularExpression() string
	// RequiresUniqueEmail only makes the email field mandatory. Email claims
	// are reserved either way.
	RequiresUniqueEmail() bool
	ApplicationName() string
	OnValidatingPassword(args *ValidatePasswordArgs)
}

// ValidatePasswordArgs is handed to the custom validation hook. Setting
// Cancel rejects the password; FailureInformation, when set, is surfaced to
// the caller.
type ValidatePasswordArgs struct {
	Username           string
	Password           string
	IsNewUser          bool
	Cancel             bool
	FailureInformation error
}

// Defaults used when nothing is configured.
const (
	DefaultMinRequiredPasswordLength            = 7
	DefaultMinRequiredNonAlphanumericCharacters = 0
	DefaultApplicationName                      = "/"
)

// StaticPolicy is a Policy built from fixed values.
type StaticPolicy struct {
	MinPasswordLength       int
	MinNonAlphanumericChars int
	StrengthRegex           string
	UniqueEmail             bool
	AppName                 string
	Hook                    func(args *ValidatePasswordArgs)
}

// DefaultPolicy returns the stock policy: 7 characters, no symbols
// required, no strength pattern, email optional.
func DefaultPolicy() *StaticPolicy {
	return &StaticPolicy{
		MinPasswordLength:       DefaultMinRequiredPasswordLength,
		MinNonAlphanumericChars: DefaultMinRequiredNonAlphanumericCharacters,
		AppName:                 DefaultApplicationName,
	}
}

func (p *StaticPolicy) MinRequiredPasswordLength() int { return p.MinPasswordLength }

func (p *StaticPolicy) MinRequiredNonAlphanumericCharacters() int {
	return p.MinNonAlphanumericChars
}

func (p *StaticPolicy) PasswordStrengthRegularExpression() string { return p.StrengthRegex }

func (p *StaticPolicy) RequiresUniqueEmail() bool { return p.UniqueEmail }

func (p *StaticPolicy) ApplicationName() string { return p.AppName }

func (p *StaticPolicy) OnValidatingPassword(args *ValidatePasswordArgs) {
	if p.Hook != nil {
		p.Hook(args)
	}
}

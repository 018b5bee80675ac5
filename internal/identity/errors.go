package identity

import "errors"

// Storage sentinels.
var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEmail = errors.New("email already stored")
)

var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	// ErrInvalidCredentials is the only authentication failure callers ever see.
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidTwoFactorCode = errors.New("invalid token")
	ErrTwoFactorNotPending  = errors.New("two-factor enrollment not started")
	ErrEmailTaken           = errors.New("email already in use")
	ErrInvalidEmailFormat   = errors.New("invalid email")
	ErrInvalidName          = errors.New("name cannot be empty")
	ErrInvalidPhone         = errors.New("invalid phone format")
	ErrInvalidFaceCount     = errors.New("faceCount must be between 0 and 1000")
)

package auth

import (
	"github.com/cyberella/handson/internal/audit"
	"github.com/cyberella/handson/internal/identity"
)

// Outcome is the result of a sign-in decision: Success, TwoFactorRequired or
// Failure.
type Outcome interface {
	outcome()
}

// Success carries the authenticated user.
type Success struct {
	User identity.User
}

// TwoFactorRequired means the password was accepted but a TOTP code is still
// needed. Only the id is exposed at this stage.
type TwoFactorRequired struct {
	UserID int64
}

// Failure is a rejected sign-in. Reason is for the audit trail only; callers
// report every Failure as identity.ErrInvalidCredentials.
type Failure struct {
	Reason audit.Reason
}

func (Success) outcome()           {}
func (TwoFactorRequired) outcome() {}
func (Failure) outcome()           {}

func (f Failure) Error() string { return identity.ErrInvalidCredentials.Error() }

func (f Failure) Unwrap() error { return identity.ErrInvalidCredentials }

package identity

import "time"

// User is the profile record owned by the user directory.
type User struct {
	ID                  int64
	Name                string
	Email               string
	Joined              time.Time
	Entries             int32
	Phone               string
	TwoFactorEnabled    bool
	TwoFactorSecret     string
	TempTwoFactorSecret string
}

// Credential holds the password hash for an email. It is linked to a User by
// email value only, so every email change must move both rows together.
type Credential struct {
	Email string
	Hash  string
}

// HasPendingTwoFactor reports whether an enrollment is waiting for confirmation.
func (u User) HasPendingTwoFactor() bool {
	return u.TempTwoFactorSecret != ""
}

// PromoteTwoFactor activates the pending secret.
func (u *User) PromoteTwoFactor() {
	u.TwoFactorSecret = u.TempTwoFactorSecret
	u.TempTwoFactorSecret = ""
	u.TwoFactorEnabled = true
}

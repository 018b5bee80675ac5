package routes

import (
	"github.com/cyberella/handson/internal/identity"
)

const dateLayout = "2006-01-02"

// userResponse is the public view of a user. Hashes and TOTP secrets never
// leave the service.
type userResponse struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	Joined           string `json:"joined"`
	Entries          int32  `json:"entries"`
	Phone            string `json:"phone,omitempty"`
	TwoFactorEnabled bool   `json:"twoFactorEnabled"`
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		Joined:           u.Joined.Format(dateLayout),
		Entries:          u.Entries,
		Phone:            u.Phone,
		TwoFactorEnabled: u.TwoFactorEnabled,
	}
}

// twoFactorUser is the summary returned after a successful /verify-2fa.
type twoFactorUser struct {
	ID               int64  `json:"id"`
	Email            string `json:"email"`
	Name             string `json:"name"`
	Entries          int32  `json:"entries"`
	Joined           string `json:"joined"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
}

func toTwoFactorUser(u identity.User) twoFactorUser {
	return twoFactorUser{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		Entries:          u.Entries,
		Joined:           u.Joined.Format(dateLayout),
		TwoFactorEnabled: u.TwoFactorEnabled,
	}
}

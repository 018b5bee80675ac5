package routes

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/cyberella/handson/internal/identity"
	"github.com/cyberella/handson/internal/profile"
	"github.com/cyberella/handson/internal/twofactor"
)

type userIDRequest struct {
	UserID int64 `json:"userId"`
}

type verifyRequest struct {
	UserID int64  `json:"userId"`
	Token  string `json:"token"`
}

// RegisterTwoFactorRoutes wires TOTP enrollment and sign-in verification.
func RegisterTwoFactorRoutes(r fiber.Router, svc *twofactor.Service, profiles *profile.Service) {
	r.Post("/enable-2fa", func(c *fiber.Ctx) error {
		var req userIDRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest("Malformed JSON request")
		}
		user, err := lookupUser(c, profiles, req.UserID)
		if err != nil {
			return err
		}

		enrollment, err := svc.Enroll(c.UserContext(), user)
		if err != nil {
			return httpError(err)
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"manualEntry": enrollment.Secret,
			"otpauth_url": enrollment.ProvisioningURI,
		})
	})

	r.Post("/verify-2fa-setup", func(c *fiber.Ctx) error {
		req, user, err := parseVerify(c, profiles)
		if err != nil {
			return err
		}
		if err := svc.ConfirmEnrollment(c.UserContext(), user, req.Token); err != nil {
			return httpError(err)
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{"success": true})
	})

	r.Post("/verify-2fa", func(c *fiber.Ctx) error {
		req, user, err := parseVerify(c, profiles)
		if err != nil {
			return err
		}
		if !svc.Verify(user, req.Token) {
			return httpError(identity.ErrInvalidTwoFactorCode)
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{"user": toTwoFactorUser(user)})
	})
}

func parseVerify(c *fiber.Ctx, profiles *profile.Service) (verifyRequest, identity.User, error) {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return req, identity.User{}, badRequest("Malformed JSON request")
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		return req, identity.User{}, badRequest("token required")
	}
	for _, r := range req.Token {
		if r < '0' || r > '9' {
			return req, identity.User{}, badRequest("invalid token format")
		}
	}
	user, err := lookupUser(c, profiles, req.UserID)
	return req, user, err
}

func lookupUser(c *fiber.Ctx, profiles *profile.Service, id int64) (identity.User, error) {
	if id <= 0 {
		return identity.User{}, badRequest("userId required")
	}
	user, err := profiles.Get(c.UserContext(), id)
	if err != nil {
		return identity.User{}, httpError(err)
	}
	return user, nil
}

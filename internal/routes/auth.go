package routes

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/cyberella/handson/internal/audit"
	"github.com/cyberella/handson/internal/auth"
	"github.com/cyberella/handson/internal/identity"
	"github.com/cyberella/handson/internal/password"
	"github.com/cyberella/handson/internal/profile"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterAuthRoutes wires registration and sign-in. Registration is audited
// here; sign-in is audited by auth.Service.
func RegisterAuthRoutes(r fiber.Router, svc *auth.Service, sink audit.Sink) {
	r.Post("/register", func(c *fiber.Ctx) error {
		var req registerRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest("Malformed JSON request")
		}

		user, err := register(c, svc, req)
		if err != nil {
			sink.Emit(c.UserContext(), audit.Event{Name: audit.RegisterAttempt, SubjectID: audit.UnknownSubject})
			return err
		}
		sink.Emit(c.UserContext(), audit.Event{Name: audit.RegisterAttempt, SubjectID: audit.Subject(user.ID), Success: true})
		return c.Status(http.StatusOK).JSON(toUserResponse(user))
	})

	r.Post("/signin", func(c *fiber.Ctx) error {
		var req signinRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest("Malformed JSON request")
		}
		if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Password) == "" {
			return badRequest("Email and password are required")
		}

		outcome, err := svc.Signin(c.UserContext(), profile.NormalizeEmail(req.Email), req.Password)
		if err != nil {
			return httpError(err)
		}
		switch o := outcome.(type) {
		case auth.Success:
			return c.Status(http.StatusOK).JSON(toUserResponse(o.User))
		case auth.TwoFactorRequired:
			return c.Status(http.StatusOK).JSON(fiber.Map{
				"requiresTwoFactor": true,
				"userID":            o.UserID,
			})
		default:
			return httpError(identity.ErrInvalidCredentials)
		}
	})
}

func register(c *fiber.Ctx, svc *auth.Service, req registerRequest) (identity.User, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return identity.User{}, badRequest("Name is required.")
	}
	email := profile.NormalizeEmail(req.Email)
	if !profile.ValidEmail(email) {
		return identity.User{}, badRequest("Valid email is required.")
	}
	if strings.TrimSpace(req.Password) == "" {
		return identity.User{}, badRequest("Password is required.")
	}
	if err := password.Validate(req.Password); err != nil {
		return identity.User{}, httpError(err)
	}

	user, err := svc.Register(c.UserContext(), name, email, req.Password)
	if err != nil {
		return identity.User{}, httpError(err)
	}
	return user, nil
}

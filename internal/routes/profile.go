package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/cyberella/handson/internal/profile"
)

type updateProfileRequest struct {
	ID    int64   `json:"id"`
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
	Email *string `json:"email"`
}

type imageRequest struct {
	ID        int64 `json:"id"`
	FaceCount *int  `json:"faceCount"`
}

// RegisterProfileRoutes wires profile reads, edits and the entries counter.
func RegisterProfileRoutes(r fiber.Router, svc *profile.Service) {
	r.Get("/profile/:id", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return badRequest("invalid id")
		}
		user, err := svc.Get(c.UserContext(), int64(id))
		if err != nil {
			return httpError(err)
		}
		return c.Status(http.StatusOK).JSON(toUserResponse(user))
	})

	r.Put("/updateprofile", func(c *fiber.Ctx) error {
		var req updateProfileRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest("Malformed JSON request")
		}
		if req.ID <= 0 {
			return badRequest("ID is required")
		}

		user, err := svc.Update(c.UserContext(), profile.UpdateRequest{
			ID:    req.ID,
			Name:  req.Name,
			Phone: req.Phone,
			Email: req.Email,
		})
		if err != nil {
			return httpError(err)
		}
		return c.Status(http.StatusOK).JSON(toUserResponse(user))
	})

	r.Put("/image", func(c *fiber.Ctx) error {
		var req imageRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest("Malformed JSON request")
		}
		if req.ID <= 0 {
			return badRequest("id required")
		}
		faceCount := 1
		if req.FaceCount != nil {
			faceCount = *req.FaceCount
		}

		user, err := svc.IncrementEntries(c.UserContext(), req.ID, faceCount)
		if err != nil {
			return httpError(err)
		}
		return c.Status(http.StatusOK).JSON(user.Entries)
	})
}

package handlers

import (
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"

	"tournament-enrollment-system/middleware"
	"tournament-enrollment-system/services"
)

type grantCreditsRequest struct {
	UserID  string `json:"user_id"`
	GrantID string `json:"grant_id"`
	Amount  int64  `json:"amount"`
}

func (r grantCreditsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.GrantID, validation.Required),
		validation.Field(&r.Amount, validation.Required, validation.Min(1)),
	)
}

type assessmentRequest struct {
	Skills map[string]int `json:"skills"`
}

func (r assessmentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Skills, validation.Required),
	)
}

func SetupAccountRoutes(app *fiber.App, accounts *services.AccountService, progression *services.ProgressionService) {
	app.Post("/accounts/grants", func(c *fiber.Ctx) error {
		var req grantCreditsRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if err := req.Validate(); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		account, err := accounts.GrantCredits(c.UserContext(), req.UserID, req.GrantID, req.Amount)
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(account)
	})

	app.Get("/accounts/me", middleware.UserContext(), func(c *fiber.Ctx) error {
		account, err := accounts.GetAccount(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(account)
	})

	app.Get("/accounts/me/history", middleware.UserContext(), func(c *fiber.Ctx) error {
		limit, _ := strconv.Atoi(c.Query("limit", "50"))
		entries, err := accounts.History(c.UserContext(), middleware.UserID(c), limit)
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(entries)
	})

	app.Get("/licenses/me", middleware.UserContext(), func(c *fiber.Ctx) error {
		license, err := progression.GetLicense(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(license)
	})

	app.Post("/licenses/me/assessment", middleware.UserContext(), func(c *fiber.Ctx) error {
		var req assessmentRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if err := req.Validate(); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		license, err := progression.RecordAssessment(c.UserContext(), middleware.UserID(c), req.Skills)
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(license)
	})

	app.Post("/licenses/me/recompute", middleware.UserContext(), func(c *fiber.Ctx) error {
		license, err := progression.RecomputeSkills(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(license)
	})
}

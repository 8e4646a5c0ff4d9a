package handlers

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"

	"tournament-enrollment-system/middleware"
	"tournament-enrollment-system/services"
)

type createTournamentRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	MaxEntrants int       `json:"max_entrants"`
	EntryFee    int64     `json:"entry_fee"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

func (r createTournamentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(3, 120)),
		validation.Field(&r.MaxEntrants, validation.Min(0)),
		validation.Field(&r.EntryFee, validation.Min(0)),
	)
}

type recordResultRequest struct {
	UserID     string    `json:"user_id"`
	SkillKey   string    `json:"skill_key"`
	Score      int       `json:"score"`
	RecordedAt time.Time `json:"recorded_at"`
}

func (r recordResultRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.SkillKey, validation.Required),
	)
}

func SetupTournamentRoutes(app *fiber.App, admin *services.AdminService, enrollments *services.EnrollmentService, finalize *services.FinalizeService) {
	app.Post("/tournaments", func(c *fiber.Ctx) error {
		var req createTournamentRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if err := req.Validate(); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		tournament, err := admin.CreateTournament(c.UserContext(), services.CreateTournamentInput{
			Name:        req.Name,
			Description: req.Description,
			MaxEntrants: req.MaxEntrants,
			EntryFee:    req.EntryFee,
			StartTime:   req.StartTime,
			EndTime:     req.EndTime,
		})
		if err != nil {
			return respondErr(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(tournament)
	})

	app.Get("/tournaments/:id", func(c *fiber.Ctx) error {
		tournament, err := admin.GetTournament(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(tournament)
	})

	app.Patch("/tournaments/:id/status", func(c *fiber.Ctx) error {
		var req struct {
			Status string `json:"status"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		tournament, err := admin.Transition(c.UserContext(), c.Params("id"), req.Status)
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(tournament)
	})

	app.Post("/tournaments/:id/enroll", middleware.UserContext(), func(c *fiber.Ctx) error {
		enrollment, err := enrollments.Enroll(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return respondErr(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(enrollment)
	})

	app.Delete("/tournaments/:id/enroll", middleware.UserContext(), func(c *fiber.Ctx) error {
		enrollment, err := enrollments.CancelEnrollment(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(enrollment)
	})

	app.Get("/tournaments/:id/entrants", func(c *fiber.Ctx) error {
		entrants, err := enrollments.ListEntrants(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(entrants)
	})

	app.Post("/tournaments/:id/results", func(c *fiber.Ctx) error {
		var req recordResultRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if err := req.Validate(); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		result, err := finalize.RecordResult(c.UserContext(), c.Params("id"), req.UserID, req.SkillKey, req.Score, req.RecordedAt)
		if err != nil {
			return respondErr(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(result)
	})

	app.Post("/tournaments/:id/finalize", func(c *fiber.Ctx) error {
		tournament, already, err := finalize.Finalize(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(fiber.Map{"tournament": tournament, "already_finalized": already})
	})

	app.Post("/tournaments/:id/distribute", func(c *fiber.Ctx) error {
		tournament, err := finalize.DistributeRewards(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(tournament)
	})
}

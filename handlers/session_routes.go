package handlers

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"

	"tournament-enrollment-system/middleware"
	"tournament-enrollment-system/services"
)

type createSessionRequest struct {
	Title      string    `json:"title"`
	Capacity   int       `json:"capacity"`
	CreditCost int64     `json:"credit_cost"`
	StartsAt   time.Time `json:"starts_at"`
}

func (r createSessionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(3, 120)),
		validation.Field(&r.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&r.CreditCost, validation.Min(0)),
	)
}

func SetupSessionRoutes(app *fiber.App, admin *services.AdminService, bookings *services.BookingService) {
	app.Post("/sessions", func(c *fiber.Ctx) error {
		var req createSessionRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if err := req.Validate(); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		session, err := admin.CreateSession(c.UserContext(), services.CreateSessionInput{
			Title:      req.Title,
			Capacity:   req.Capacity,
			CreditCost: req.CreditCost,
			StartsAt:   req.StartsAt,
		})
		if err != nil {
			return respondErr(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(session)
	})

	app.Post("/sessions/:id/close", func(c *fiber.Ctx) error {
		session, err := admin.CloseSession(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(session)
	})

	app.Post("/sessions/:id/book", middleware.UserContext(), func(c *fiber.Ctx) error {
		var req struct {
			Waitlist bool `json:"waitlist"`
		}
		// Body is optional; without it a full session rejects instead of waitlisting.
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
			}
		}
		booking, err := bookings.Book(c.UserContext(), c.Params("id"), middleware.UserID(c), req.Waitlist)
		if err != nil {
			return respondErr(c, err)
		}
		status := fiber.StatusCreated
		if booking.Slot != nil {
			status = fiber.StatusAccepted // waitlisted, not seated
		}
		return c.Status(status).JSON(booking)
	})

	app.Delete("/sessions/:id/book", middleware.UserContext(), func(c *fiber.Ctx) error {
		booking, err := bookings.CancelBooking(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(booking)
	})

	app.Get("/sessions/:id/waitlist", func(c *fiber.Ctx) error {
		waiting, err := bookings.Waitlist(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(waiting)
	})
}

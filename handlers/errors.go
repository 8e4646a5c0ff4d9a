package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"tournament-enrollment-system/txguard"
)

// respondErr translates pipeline errors into HTTP responses. Guard rejections
// are expected outcomes and map to 4xx; anything unrecognized is a defect and
// maps to 500 after being logged.
func respondErr(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, txguard.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	case errors.Is(err, txguard.ErrCapacityExceeded):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "capacity exceeded"})
	case errors.Is(err, txguard.ErrInsufficientBalance):
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "insufficient balance"})
	case errors.Is(err, txguard.ErrDuplicateMembership):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already a member"})
	case errors.Is(err, txguard.ErrDuplicateAchievement):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already granted"})
	case errors.Is(err, txguard.ErrClosed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "not accepting members"})
	case errors.Is(err, txguard.ErrInvalidTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "invalid status transition"})
	case errors.Is(err, txguard.ErrLockOrderViolation):
		zap.L().Error("lock_order_violation", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	default:
		zap.L().Error("request_failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}

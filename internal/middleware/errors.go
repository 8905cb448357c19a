package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler renders every error as a JSON {"error": message} body. Errors
// that are not *fiber.Error are logged and reported as a generic 500.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}

		if logger != nil {
			requestID, _ := c.Locals(requestIDHeader).(string)
			logger.Error("unhandled request error",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.String("request_id", requestID),
				slog.Any("error", err),
			)
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
}

package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Audit emits one structured log line per request. Errors from the chain are
// rendered through the app's error handler first so the logged status is the
// one the client receives.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		chainErr := c.Next()
		if chainErr != nil {
			if err := c.App().ErrorHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		requestID, _ := c.Locals(requestIDHeader).(string)

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.String("ip", c.IP()),
		}
		if requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}

		switch {
		case status >= fiber.StatusInternalServerError:
			logger.Error("request completed", attrs...)
		case status >= fiber.StatusBadRequest:
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
		return nil
	}
}

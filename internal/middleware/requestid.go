package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// RequestID echoes a caller-supplied X-Request-ID or mints one, and stores it
// in Locals for the audit log.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(requestIDHeader)
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}
		c.Set(requestIDHeader, reqID)
		c.Locals(requestIDHeader, reqID)

		return c.Next()
	}
}

package middleware

import (
    "net/http"
    "strings"

    "github.com/gofiber/fiber/v2"
)

// SubjectLocal is the Locals key holding the authenticated token subject.
const SubjectLocal = "subject"

// TokenValidator resolves a bearer token to its subject.
type TokenValidator interface {
    Validate(token string) (string, error)
}

// BearerAuth rejects requests without a valid bearer token and exposes the
// token subject to downstream handlers.
func BearerAuth(tokens TokenValidator) fiber.Handler {
    return func(c *fiber.Ctx) error {
        authz := c.Get(fiber.HeaderAuthorization)
        if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
            return fiber.NewError(http.StatusUnauthorized, "Unauthorized")
        }
        tokenStr := strings.TrimSpace(authz[len("Bearer "):])
        if tokenStr == "" {
            return fiber.NewError(http.StatusUnauthorized, "Unauthorized")
        }
        subject, err := tokens.Validate(tokenStr)
        if err != nil {
            return fiber.NewError(http.StatusUnauthorized, "Invalid token")
        }

        c.Locals(SubjectLocal, subject)
        return c.Next()
    }
}

package routes

import (
    "github.com/gofiber/fiber/v2"

    "github.com/congo-pay/otp-auth/internal/auth"
)

// RegisterAuthRoutes wires the OTP login endpoints. rateLimiter guards the
// unauthenticated POST routes and bearer guards /me.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter, bearer fiber.Handler) {
    group := r.Group("/auth")
    if rateLimiter != nil {
        group.Post("/request-otp", rateLimiter, h.RequestOTP)
        group.Post("/verify-otp", rateLimiter, h.VerifyOTP)
    } else {
        group.Post("/request-otp", h.RequestOTP)
        group.Post("/verify-otp", h.VerifyOTP)
    }
    group.Get("/me", bearer, h.Me)
}

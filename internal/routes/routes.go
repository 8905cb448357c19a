package routes

import (
    "fmt"
    "log/slog"

    "github.com/gofiber/fiber/v2"
    "github.com/gofiber/fiber/v2/middleware/cors"
    "github.com/gofiber/fiber/v2/middleware/recover"
    "github.com/redis/go-redis/v9"

    "github.com/congo-pay/otp-auth/internal/auth"
    "github.com/congo-pay/otp-auth/internal/config"
    "github.com/congo-pay/otp-auth/internal/middleware"
    "github.com/congo-pay/otp-auth/internal/otp"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
    Cfg    config.Config
    Cache  *redis.Client
    Logger *slog.Logger
    OTP    *otp.Service
    Tokens *auth.TokenCodec
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
    if d.OTP == nil || d.Tokens == nil {
        return fmt.Errorf("routes: otp service and token codec are required")
    }
    if d.Logger == nil {
        d.Logger = slog.Default()
    }

    // Middlewares
    app.Use(recover.New())
    app.Use(middleware.RequestID())
    app.Use(cors.New(cors.Config{
        AllowOrigins: d.Cfg.CORSAllowOrigins,
        AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
        AllowMethods: "GET,POST,OPTIONS",
    }))
    app.Use(middleware.Audit(d.Logger))

    RegisterHealthRoutes(app, d)

    // A nil *redis.Client must stay a nil interface for the limiter's no-op path.
    var limiterCache redis.UniversalClient
    if d.Cache != nil {
        limiterCache = d.Cache
    }
    rateLimiter := middleware.RateLimit(limiterCache, d.Cfg.RateLimitPerMinute, d.Logger)

    RegisterAuthRoutes(app, auth.NewHandler(d.OTP), rateLimiter, middleware.BearerAuth(d.Tokens))

    return nil
}

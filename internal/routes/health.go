package routes

import (
    "context"
    "net/http"
    "time"

    "github.com/gofiber/fiber/v2"
)

// RegisterHealthRoutes adds the status document and a readiness check.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
    app.Get("/", func(c *fiber.Ctx) error {
        return c.Status(http.StatusOK).JSON(fiber.Map{"status": "ok", "service": d.Cfg.AppName})
    })

    app.Get("/healthz", func(c *fiber.Ctx) error {
        redisStatus := "disabled"
        if d.Cache != nil {
            redisStatus = "ok"
            ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
            defer cancel()
            if err := d.Cache.Ping(ctx).Err(); err != nil {
                redisStatus = err.Error()
            }
        }
        status := http.StatusOK
        if redisStatus != "ok" && redisStatus != "disabled" {
            status = http.StatusServiceUnavailable
        }
        return c.Status(status).JSON(fiber.Map{
            "status":    fiber.Map{"redis": redisStatus, "store": d.Cfg.StoreBackend},
            "timestamp": time.Now().UTC().Format(time.RFC3339Nano),
        })
    })
}

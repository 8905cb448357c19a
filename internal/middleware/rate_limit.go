package middleware

import (
    "log/slog"
    "net/http"
    "time"

    "github.com/gofiber/fiber/v2"
    "github.com/redis/go-redis/v9"
)

const (
    rateLimitPrefix = "rl:otp:"
    rateLimitWindow = time.Minute
)

// RateLimit caps requests per client IP and route within a one minute window
// using Redis counters. Without Redis it is a no-op, and Redis errors fail open.
func RateLimit(cache redis.UniversalClient, maxPerMin int, logger *slog.Logger) fiber.Handler {
    if maxPerMin <= 0 {
        maxPerMin = 20
    }
    return func(c *fiber.Ctx) error {
        if cache == nil {
            return c.Next()
        }
        ctx := c.UserContext()
        key := rateLimitPrefix + c.Path() + ":" + c.IP()

        var (
            incr *redis.IntCmd
            pttl *redis.DurationCmd
        )
        _, err := cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
            incr = pipe.Incr(ctx, key)
            pttl = pipe.PTTL(ctx, key)
            return nil
        })
        if err != nil {
            if logger != nil {
                logger.Warn("rate limit lookup failed", slog.String("key", key), slog.Any("error", err))
            }
            return c.Next()
        }

        // Counters must always carry a TTL; any hit that finds one missing sets it.
        retryAfter := pttl.Val()
        if retryAfter < 0 {
            if err := cache.Expire(ctx, key, rateLimitWindow).Err(); err != nil && logger != nil {
                logger.Warn("rate limit expire failed", slog.String("key", key), slog.Any("error", err))
            }
            retryAfter = rateLimitWindow
        }
        if incr.Val() <= int64(maxPerMin) {
            return c.Next()
        }

        return c.Status(http.StatusTooManyRequests).JSON(fiber.Map{
            "error":        "Too many requests, try again later",
            "retryAfterMs": retryAfter.Milliseconds(),
        })
    }
}

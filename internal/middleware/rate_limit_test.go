package middleware

import (
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/otp-auth/internal/logging"
)

func setupLimitedApp(t *testing.T, cache redis.UniversalClient, limit int) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Post("/auth/request-otp", RateLimit(cache, limit, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func postStatus(t *testing.T, app *fiber.App, path string) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, path, nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestRateLimitBlocksAfterLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := setupLimitedApp(t, cache, 2)

	for i := 0; i < 2; i++ {
		if status := postStatus(t, app, "/auth/request-otp"); status != fiber.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i+1, status)
		}
	}
	if status := postStatus(t, app, "/auth/request-otp"); status != fiber.StatusTooManyRequests {
		t.Fatalf("expected %d got %d", fiber.StatusTooManyRequests, status)
	}

	mr.FastForward(rateLimitWindow)
	if status := postStatus(t, app, "/auth/request-otp"); status != fiber.StatusOK {
		t.Fatalf("window should reset, got %d", status)
	}
}

func TestRateLimitWithoutCacheIsNoop(t *testing.T) {
	app := setupLimitedApp(t, nil, 1)

	for i := 0; i < 3; i++ {
		if status := postStatus(t, app, "/auth/request-otp"); status != fiber.StatusOK {
			t.Fatalf("expected 200 got %d", status)
		}
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer cache.Close()
	mr.Close()

	app := setupLimitedApp(t, cache, 1)
	for i := 0; i < 2; i++ {
		if status := postStatus(t, app, "/auth/request-otp"); status != fiber.StatusOK {
			t.Fatalf("expected fail-open 200 got %d", status)
		}
	}
}

func TestRateLimitRepairsCounterWithoutExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := setupLimitedApp(t, cache, 2)
	if status := postStatus(t, app, "/auth/request-otp"); status != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", status)
	}

	keys := mr.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected one counter key, got %v", keys)
	}
	key := keys[0]
	// simulate an EXPIRE that never landed
	mr.Del(key)
	if err := mr.Set(key, "5"); err != nil {
		t.Fatalf("seed counter: %v", err)
	}
	if ttl := mr.TTL(key); ttl != 0 {
		t.Fatalf("expected counter without ttl, got %v", ttl)
	}

	if status := postStatus(t, app, "/auth/request-otp"); status != fiber.StatusTooManyRequests {
		t.Fatalf("expected %d got %d", fiber.StatusTooManyRequests, status)
	}
	if ttl := mr.TTL(key); ttl != rateLimitWindow {
		t.Fatalf("expected ttl %v after repair, got %v", rateLimitWindow, ttl)
	}

	mr.FastForward(rateLimitWindow)
	if status := postStatus(t, app, "/auth/request-otp"); status != fiber.StatusOK {
		t.Fatalf("window should reset after repair, got %d", status)
	}
}

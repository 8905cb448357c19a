package auth

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/otp-auth/internal/clock"
	"github.com/congo-pay/otp-auth/internal/logging"
	"github.com/congo-pay/otp-auth/internal/middleware"
	"github.com/congo-pay/otp-auth/internal/otp"
)

type fixedCodes struct {
	mu    sync.Mutex
	codes []string
}

func (f *fixedCodes) Generate() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	code := f.codes[0]
	if len(f.codes) > 1 {
		f.codes = f.codes[1:]
	}
	return code, nil
}

func setupHandlerApp(t *testing.T, codes ...string) (*fiber.App, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(tokenEpoch)
	tokens := newCodec(t, "test-secret", clk)

	svc, err := otp.NewService(otp.Config{
		OTPExpiry:      2 * time.Minute,
		BlockDuration:  10 * time.Minute,
		MaxTries:       3,
		ResendCooldown: 30 * time.Second,
	}, otp.Deps{
		Store:  otp.NewMemoryStore(clk.Now),
		Clock:  clk,
		Codes:  &fixedCodes{codes: codes},
		Tokens: tokens,
		Logger: logging.Discard(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logging.Discard())})
	h := NewHandler(svc)
	app.Post("/auth/request-otp", h.RequestOTP)
	app.Post("/auth/verify-otp", h.VerifyOTP)
	app.Get("/auth/me", middleware.BearerAuth(tokens), h.Me)
	return app, clk
}

func doJSON(t *testing.T, app *fiber.App, method, path, body, bearer string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %q: %v", raw, err)
		}
	}
	return resp.StatusCode, out
}

func TestRequestAndVerifyFlow(t *testing.T) {
	app, _ := setupHandlerApp(t, "123456")

	status, body := doJSON(t, app, fiber.MethodPost, "/auth/request-otp", `{"identifier":"a@b.com"}`, "")
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 got %d (%v)", status, body)
	}
	if body["message"] != msgOTPSent || body["expiresInMinutes"] != float64(2) {
		t.Fatalf("unexpected body %v", body)
	}

	status, body = doJSON(t, app, fiber.MethodPost, "/auth/verify-otp", `{"identifier":"a@b.com","otp":"123456"}`, "")
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 got %d (%v)", status, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("expected token in %v", body)
	}

	status, body = doJSON(t, app, fiber.MethodGet, "/auth/me", "", token)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 got %d (%v)", status, body)
	}
	user, _ := body["user"].(map[string]any)
	if user["id"] != "a@b.com" || user["displayName"] != "User a@b.com" || body["tokenValid"] != true {
		t.Fatalf("unexpected profile %v", body)
	}

	status, body = doJSON(t, app, fiber.MethodPost, "/auth/verify-otp", `{"identifier":"a@b.com","otp":"123456"}`, "")
	if status != fiber.StatusBadRequest || body["error"] != msgNoPendingOtp {
		t.Fatalf("reused code: got %d %v", status, body)
	}
}

func TestRequestOTPRejectsBadInput(t *testing.T) {
	app, _ := setupHandlerApp(t, "123456")

	for _, payload := range []string{`{"identifier":"nope"}`, `{}`, `not json`} {
		status, body := doJSON(t, app, fiber.MethodPost, "/auth/request-otp", payload, "")
		if status != fiber.StatusBadRequest || body["error"] != msgInvalidIdentifier {
			t.Fatalf("payload %s: got %d %v", payload, status, body)
		}
	}
}

func TestRequestOTPCooldown(t *testing.T) {
	app, clk := setupHandlerApp(t, "123456")

	doJSON(t, app, fiber.MethodPost, "/auth/request-otp", `{"identifier":"a@b.com"}`, "")
	clk.Advance(10 * time.Second)

	status, body := doJSON(t, app, fiber.MethodPost, "/auth/request-otp", `{"identifier":"a@b.com"}`, "")
	if status != fiber.StatusTooManyRequests || body["error"] != msgCooldown {
		t.Fatalf("expected cooldown 429, got %d %v", status, body)
	}
	if body["retryAfterMs"] != float64(20000) {
		t.Fatalf("expected retryAfterMs 20000, got %v", body["retryAfterMs"])
	}
}

func TestVerifyOTPBlockScenario(t *testing.T) {
	app, clk := setupHandlerApp(t, "123456")
	verify := func(code string) (int, map[string]any) {
		return doJSON(t, app, fiber.MethodPost, "/auth/verify-otp", `{"identifier":"a@b.com","otp":"`+code+`"}`, "")
	}

	doJSON(t, app, fiber.MethodPost, "/auth/request-otp", `{"identifier":"a@b.com"}`, "")

	status, body := verify("000000")
	if status != fiber.StatusUnauthorized || body["error"] != msgInvalidOtp || body["remainingTries"] != float64(2) {
		t.Fatalf("first wrong code: %d %v", status, body)
	}
	status, body = verify("111111")
	if status != fiber.StatusUnauthorized || body["remainingTries"] != float64(1) {
		t.Fatalf("second wrong code: %d %v", status, body)
	}
	status, body = verify("222222")
	if status != fiber.StatusTooManyRequests || body["error"] != msgMaxTriesExceeded || body["blockMinutes"] != float64(10) {
		t.Fatalf("third wrong code: %d %v", status, body)
	}

	status, body = verify("123456")
	if status != fiber.StatusTooManyRequests || body["error"] != msgVerifyBlocked || body["retryAfterMs"] != float64(600000) {
		t.Fatalf("verify while blocked: %d %v", status, body)
	}

	clk.Advance(time.Minute)
	status, body = doJSON(t, app, fiber.MethodPost, "/auth/request-otp", `{"identifier":"a@b.com"}`, "")
	if status != fiber.StatusTooManyRequests || body["error"] != msgRequestBlocked || body["retryAfterMs"] != float64(540000) {
		t.Fatalf("request while blocked: %d %v", status, body)
	}
}

func TestVerifyOTPExpiredAndInvalid(t *testing.T) {
	app, clk := setupHandlerApp(t, "123456")

	status, body := doJSON(t, app, fiber.MethodPost, "/auth/verify-otp", `{"identifier":"a@b.com","otp":"12345"}`, "")
	if status != fiber.StatusBadRequest || body["error"] != msgInvalidRequest {
		t.Fatalf("short code: %d %v", status, body)
	}
	status, body = doJSON(t, app, fiber.MethodPost, "/auth/verify-otp", `{"identifier":"a@b.com","otp":123456}`, "")
	if status != fiber.StatusBadRequest || body["error"] != msgInvalidRequest {
		t.Fatalf("numeric code: %d %v", status, body)
	}

	doJSON(t, app, fiber.MethodPost, "/auth/request-otp", `{"identifier":"a@b.com"}`, "")
	clk.Advance(3 * time.Minute)

	status, body = doJSON(t, app, fiber.MethodPost, "/auth/verify-otp", `{"identifier":"a@b.com","otp":"123456"}`, "")
	if status != fiber.StatusBadRequest || body["error"] != msgExpired {
		t.Fatalf("expired code: %d %v", status, body)
	}
}

func TestMeRequiresValidBearer(t *testing.T) {
	app, clk := setupHandlerApp(t, "123456")

	status, body := doJSON(t, app, fiber.MethodGet, "/auth/me", "", "")
	if status != fiber.StatusUnauthorized || body["error"] != "Unauthorized" {
		t.Fatalf("missing bearer: %d %v", status, body)
	}
	status, body = doJSON(t, app, fiber.MethodGet, "/auth/me", "", "garbage")
	if status != fiber.StatusUnauthorized || body["error"] != "Invalid token" {
		t.Fatalf("bad bearer: %d %v", status, body)
	}

	doJSON(t, app, fiber.MethodPost, "/auth/request-otp", `{"identifier":"a@b.com"}`, "")
	_, body = doJSON(t, app, fiber.MethodPost, "/auth/verify-otp", `{"identifier":"a@b.com","otp":"123456"}`, "")
	token, _ := body["token"].(string)

	clk.Advance(TokenValidity + time.Second)
	status, body = doJSON(t, app, fiber.MethodGet, "/auth/me", "", token)
	if status != fiber.StatusUnauthorized || body["error"] != "Invalid token" {
		t.Fatalf("expired bearer: %d %v", status, body)
	}
}

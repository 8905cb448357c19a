package auth

import (
    "errors"
    "net/http"
    "time"

    "github.com/gofiber/fiber/v2"

    "github.com/congo-pay/otp-auth/internal/identity"
    "github.com/congo-pay/otp-auth/internal/middleware"
    "github.com/congo-pay/otp-auth/internal/otp"
)

const (
    msgOTPSent           = "OTP sent successfully (mock)."
    msgInvalidIdentifier = "Invalid email or phone number"
    msgCooldown          = "OTP recently sent. Please wait before retrying."
    msgRequestBlocked    = "Too many invalid attempts. Try later."
    msgInvalidRequest    = "Invalid request"
    msgNoPendingOtp      = "No OTP requested for this identifier"
    msgVerifyBlocked     = "Identifier blocked due to invalid attempts. Try later."
    msgExpired           = "OTP expired. Please request a new one."
    msgInvalidOtp        = "Invalid OTP"
    msgMaxTriesExceeded  = "Maximum attempts exceeded. Identifier blocked temporarily."
    msgUnauthorized      = "Unauthorized"
)

// Handler exposes the OTP login endpoints.
type Handler struct {
    svc *otp.Service
}

func NewHandler(svc *otp.Service) *Handler {
    return &Handler{svc: svc}
}

type requestOTPRequest struct {
    Identifier string `json:"identifier"`
}

type requestOTPResponse struct {
    Message          string `json:"message"`
    ExpiresInMinutes int    `json:"expiresInMinutes"`
}

type verifyOTPRequest struct {
    Identifier string `json:"identifier"`
    OTP        string `json:"otp"`
}

type verifyOTPResponse struct {
    Token string `json:"token"`
}

type meResponse struct {
    User       identity.Profile `json:"user"`
    TokenValid bool             `json:"tokenValid"`
}

// RequestOTP issues a login code for the submitted identifier.
func (h *Handler) RequestOTP(c *fiber.Ctx) error {
    var req requestOTPRequest
    if err := c.BodyParser(&req); err != nil {
        return fiber.NewError(http.StatusBadRequest, msgInvalidIdentifier)
    }
    res, err := h.svc.Request(c.UserContext(), req.Identifier)
    if err != nil {
        var oe *otp.Error
        if !errors.As(err, &oe) {
            return err
        }
        switch oe.Kind {
        case otp.KindBlocked:
            return retryLater(c, msgRequestBlocked, oe.RetryAfter)
        case otp.KindCooldownActive:
            return retryLater(c, msgCooldown, oe.RetryAfter)
        default:
            return fiber.NewError(http.StatusBadRequest, msgInvalidIdentifier)
        }
    }
    return c.Status(http.StatusOK).JSON(requestOTPResponse{Message: msgOTPSent, ExpiresInMinutes: res.ExpiresInMinutes})
}

// VerifyOTP exchanges a correct code for a session token.
func (h *Handler) VerifyOTP(c *fiber.Ctx) error {
    var req verifyOTPRequest
    if err := c.BodyParser(&req); err != nil {
        return fiber.NewError(http.StatusBadRequest, msgInvalidRequest)
    }
    res, err := h.svc.Verify(c.UserContext(), req.Identifier, req.OTP)
    if err != nil {
        var oe *otp.Error
        if !errors.As(err, &oe) {
            return err
        }
        switch oe.Kind {
        case otp.KindNoPendingOtp:
            return fiber.NewError(http.StatusBadRequest, msgNoPendingOtp)
        case otp.KindExpired:
            return fiber.NewError(http.StatusBadRequest, msgExpired)
        case otp.KindBlocked:
            return retryLater(c, msgVerifyBlocked, oe.RetryAfter)
        case otp.KindInvalidOtp:
            return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
                "error":          msgInvalidOtp,
                "remainingTries": oe.RemainingTries,
            })
        case otp.KindMaxTriesExceeded:
            return c.Status(http.StatusTooManyRequests).JSON(fiber.Map{
                "error":        msgMaxTriesExceeded,
                "blockMinutes": int(oe.BlockDuration / time.Minute),
            })
        default:
            return fiber.NewError(http.StatusBadRequest, msgInvalidRequest)
        }
    }
    return c.Status(http.StatusOK).JSON(verifyOTPResponse{Token: res.Token})
}

// Me returns the profile bound to the bearer token. It must run behind
// middleware.BearerAuth.
func (h *Handler) Me(c *fiber.Ctx) error {
    subject, _ := c.Locals(middleware.SubjectLocal).(string)
    if subject == "" {
        return fiber.NewError(http.StatusUnauthorized, msgUnauthorized)
    }
    return c.Status(http.StatusOK).JSON(meResponse{User: identity.ProfileFor(subject), TokenValid: true})
}

func retryLater(c *fiber.Ctx, message string, after time.Duration) error {
    return c.Status(http.StatusTooManyRequests).JSON(fiber.Map{
        "error":        message,
        "retryAfterMs": after.Milliseconds(),
    })
}

// Package otp implements the one-time-passcode login lifecycle: issuance,
// expiry, attempt-limited verification, resend cooldown and temporary blocking.
package otp

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/congo-pay/otp-auth/internal/clock"
	"github.com/congo-pay/otp-auth/internal/identity"
	"github.com/congo-pay/otp-auth/internal/notification"
)

const (
	DefaultOTPExpiry      = 2 * time.Minute
	DefaultBlockDuration  = 10 * time.Minute
	DefaultMaxTries       = 3
	DefaultResendCooldown = 30 * time.Second
)

// Config tunes the lifecycle. Non-positive expiry, block and tries take the
// defaults; a zero cooldown disables it.
type Config struct {
	OTPExpiry      time.Duration
	BlockDuration  time.Duration
	MaxTries       int
	ResendCooldown time.Duration
}

func (c Config) withDefaults() Config {
	if c.OTPExpiry <= 0 {
		c.OTPExpiry = DefaultOTPExpiry
	}
	if c.BlockDuration <= 0 {
		c.BlockDuration = DefaultBlockDuration
	}
	if c.MaxTries <= 0 {
		c.MaxTries = DefaultMaxTries
	}
	if c.ResendCooldown < 0 {
		c.ResendCooldown = DefaultResendCooldown
	}
	return c
}

// TokenIssuer signs a session token for a verified identifier.
type TokenIssuer interface {
	Issue(subject string) (string, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store     Store
	Clock     clock.Clocker
	Codes     CodeGenerator
	Notifier  notification.Notifier
	Tokens    TokenIssuer
	Validator *identity.Validator
	Logger    *slog.Logger
}

// Service runs the OTP state machine for every identifier.
type Service struct {
	cfg       Config
	store     Store
	clock     clock.Clocker
	codes     CodeGenerator
	notifier  notification.Notifier
	tokens    TokenIssuer
	validator *identity.Validator
	logger    *slog.Logger
}

// NewService wires a Service. Store and Tokens are required; the rest fall back
// to production implementations.
func NewService(cfg Config, d Deps) (*Service, error) {
	if d.Store == nil {
		return nil, fmt.Errorf("otp: store is required")
	}
	if d.Tokens == nil {
		return nil, fmt.Errorf("otp: token issuer is required")
	}
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.Codes == nil {
		d.Codes = NewRandomCodes()
	}
	if d.Validator == nil {
		v, err := identity.NewValidator()
		if err != nil {
			return nil, err
		}
		d.Validator = v
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		cfg:       cfg.withDefaults(),
		store:     d.Store,
		clock:     d.Clock,
		codes:     d.Codes,
		notifier:  d.Notifier,
		tokens:    d.Tokens,
		validator: d.Validator,
		logger:    d.Logger,
	}, nil
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// RequestResult is returned when a new code was issued.
type RequestResult struct {
	ExpiresInMinutes int
}

// VerifyResult carries the session issued for a verified identifier.
type VerifyResult struct {
	Subject string
	Token   string
}

// Request issues a fresh code for identifier unless it is blocked or still
// inside the resend cooldown.
func (s *Service) Request(ctx context.Context, identifier string) (RequestResult, error) {
	if !s.validator.Identifier(identifier) {
		return RequestResult{}, ErrInvalidIdentifier
	}
	key := identity.Normalize(identifier)
	now := s.clock.Now()

	var (
		code    string
		outcome error
	)
	err := s.store.Update(ctx, key, func(rec Record, _ bool) (Record, Op) {
		code, outcome = "", nil

		if rec.Blocked(now) {
			outcome = blocked(rec.BlockedUntil.Sub(now))
			return rec, OpKeep
		}
		if !rec.LastSentAt.IsZero() {
			if elapsed := now.Sub(rec.LastSentAt); elapsed < s.cfg.ResendCooldown {
				outcome = cooldown(s.cfg.ResendCooldown - elapsed)
				return rec, OpKeep
			}
		}

		fresh, err := s.codes.Generate()
		if err != nil {
			outcome = fmt.Errorf("generate code: %w", err)
			return rec, OpKeep
		}
		code = fresh

		next := Record{
			PendingCode: code,
			ExpiresAt:   now.Add(s.cfg.OTPExpiry),
			Tries:       0,
			LastSentAt:  now,
		}
		next.RetainUntil = s.retainUntil(next)
		return next, OpPut
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "otp request store failure", slog.String("identifier", key), slog.Any("error", err))
		return RequestResult{}, fmt.Errorf("otp request: %w", err)
	}
	if outcome != nil {
		s.logger.InfoContext(ctx, "otp request refused", slog.String("identifier", key), slog.Any("reason", outcome))
		return RequestResult{}, outcome
	}

	s.deliver(ctx, strings.TrimSpace(identifier), code)
	s.logger.InfoContext(ctx, "otp issued", slog.String("identifier", key), slog.Time("expires_at", now.Add(s.cfg.OTPExpiry)))

	return RequestResult{ExpiresInMinutes: int(s.cfg.OTPExpiry / time.Minute)}, nil
}

// Verify checks submitted against the pending code for identifier. A match
// consumes the code and returns a session token.
func (s *Service) Verify(ctx context.Context, identifier, submitted string) (VerifyResult, error) {
	if !s.validator.Identifier(identifier) || !s.validator.Code(submitted) {
		return VerifyResult{}, ErrInvalidRequest
	}
	key := identity.Normalize(identifier)
	code := strings.TrimSpace(submitted)
	now := s.clock.Now()

	var outcome error
	err := s.store.Update(ctx, key, func(rec Record, found bool) (Record, Op) {
		outcome = nil

		switch {
		case !found:
			outcome = ErrNoPendingOtp
			return rec, OpKeep
		case rec.Blocked(now):
			outcome = blocked(rec.BlockedUntil.Sub(now))
			return rec, OpKeep
		case rec.Expired(now):
			outcome = ErrExpired
			return rec, OpDelete
		}

		if subtle.ConstantTimeCompare([]byte(code), []byte(rec.PendingCode)) == 1 {
			return rec, OpDelete
		}

		rec.Tries++
		if rec.Tries >= s.cfg.MaxTries {
			rec.BlockedUntil = now.Add(s.cfg.BlockDuration)
			rec.PendingCode = ""
			rec.ExpiresAt = time.Time{}
			outcome = maxTriesExceeded(s.cfg.BlockDuration)
		} else {
			outcome = invalidOtp(s.cfg.MaxTries - rec.Tries)
		}
		rec.RetainUntil = s.retainUntil(rec)
		return rec, OpPut
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "otp verify store failure", slog.String("identifier", key), slog.Any("error", err))
		return VerifyResult{}, fmt.Errorf("otp verify: %w", err)
	}
	if outcome != nil {
		s.logger.InfoContext(ctx, "otp verification failed", slog.String("identifier", key), slog.Any("reason", outcome))
		return VerifyResult{}, outcome
	}

	token, err := s.tokens.Issue(key)
	if err != nil {
		s.logger.ErrorContext(ctx, "session token issue failed", slog.String("identifier", key), slog.Any("error", err))
		return VerifyResult{}, fmt.Errorf("issue session token: %w", err)
	}
	s.logger.InfoContext(ctx, "otp verified", slog.String("identifier", key))

	return VerifyResult{Subject: key, Token: token}, nil
}

// deliver hands the code to the notifier. Delivery is best effort: failures
// are logged and never reach the caller.
func (s *Service) deliver(ctx context.Context, destination, code string) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindLoginCode,
		Destination: destination,
		Body:        code,
		TTL:         s.cfg.OTPExpiry,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "otp delivery not accepted", slog.String("destination", destination), slog.Any("error", err))
	}
}

// retainUntil keeps an expired code or a lapsed block around for a grace
// window so a late Verify still reports Expired rather than NoPendingOtp.
func (s *Service) retainUntil(rec Record) time.Time {
	grace := s.retainGrace()

	var codeEnd, blockEnd, cooldownEnd time.Time
	if !rec.ExpiresAt.IsZero() {
		codeEnd = rec.ExpiresAt.Add(grace)
	}
	if !rec.BlockedUntil.IsZero() {
		blockEnd = rec.BlockedUntil.Add(grace)
	}
	if !rec.LastSentAt.IsZero() {
		cooldownEnd = rec.LastSentAt.Add(s.cfg.ResendCooldown)
	}
	return latest(codeEnd, blockEnd, cooldownEnd)
}

func (s *Service) retainGrace() time.Duration {
	if s.cfg.BlockDuration > s.cfg.OTPExpiry {
		return s.cfg.BlockDuration
	}
	return s.cfg.OTPExpiry
}

package otp

import (
	"fmt"
	"time"
)

// Kind classifies a lifecycle failure.
type Kind int

const (
	KindInvalidIdentifier Kind = iota + 1
	KindInvalidRequest
	KindBlocked
	KindCooldownActive
	KindNoPendingOtp
	KindExpired
	KindInvalidOtp
	KindMaxTriesExceeded
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidIdentifier:
		return "invalid_identifier"
	case KindInvalidRequest:
		return "invalid_request"
	case KindBlocked:
		return "blocked"
	case KindCooldownActive:
		return "cooldown_active"
	case KindNoPendingOtp:
		return "no_pending_otp"
	case KindExpired:
		return "expired"
	case KindInvalidOtp:
		return "invalid_otp"
	case KindMaxTriesExceeded:
		return "max_tries_exceeded"
	default:
		return "unknown"
	}
}

// Error is a caller-recoverable lifecycle failure. Only the fields relevant
// to Kind are set.
type Error struct {
	Kind           Kind
	RetryAfter     time.Duration
	RemainingTries int
	BlockDuration  time.Duration
}

var (
	ErrInvalidIdentifier = &Error{Kind: KindInvalidIdentifier}
	ErrInvalidRequest    = &Error{Kind: KindInvalidRequest}
	ErrBlocked           = &Error{Kind: KindBlocked}
	ErrCooldownActive    = &Error{Kind: KindCooldownActive}
	ErrNoPendingOtp      = &Error{Kind: KindNoPendingOtp}
	ErrExpired           = &Error{Kind: KindExpired}
	ErrInvalidOtp        = &Error{Kind: KindInvalidOtp}
	ErrMaxTriesExceeded  = &Error{Kind: KindMaxTriesExceeded}
)

func (e *Error) Error() string {
	switch e.Kind {
	case KindBlocked, KindCooldownActive:
		return fmt.Sprintf("otp: %s, retry after %s", e.Kind, e.RetryAfter)
	case KindInvalidOtp:
		return fmt.Sprintf("otp: %s, %d tries remaining", e.Kind, e.RemainingTries)
	case KindMaxTriesExceeded:
		return fmt.Sprintf("otp: %s, blocked for %s", e.Kind, e.BlockDuration)
	default:
		return "otp: " + e.Kind.String()
	}
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrBlocked)
// works regardless of the attached metadata.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func blocked(retryAfter time.Duration) *Error {
	return &Error{Kind: KindBlocked, RetryAfter: retryAfter}
}

func cooldown(retryAfter time.Duration) *Error {
	return &Error{Kind: KindCooldownActive, RetryAfter: retryAfter}
}

func invalidOtp(remaining int) *Error {
	return &Error{Kind: KindInvalidOtp, RemainingTries: remaining}
}

func maxTriesExceeded(block time.Duration) *Error {
	return &Error{Kind: KindMaxTriesExceeded, BlockDuration: block}
}

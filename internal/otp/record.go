package otp

import "time"

// Record is the OTP state held for one normalized identifier. Zero times mean
// "unset".
type Record struct {
	PendingCode  string    `json:"code,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Tries        int       `json:"tries"`
	BlockedUntil time.Time `json:"blocked_until"`
	LastSentAt   time.Time `json:"last_sent_at"`
	// RetainUntil is the instant after which the record carries no state the
	// service still needs. Stores evict on it; they never interpret the rest.
	RetainUntil time.Time `json:"retain_until"`
}

// Blocked reports whether the block is still active at now.
func (r Record) Blocked(now time.Time) bool {
	return !r.BlockedUntil.IsZero() && r.BlockedUntil.After(now)
}

// Expired reports whether there is no usable pending code at now.
func (r Record) Expired(now time.Time) bool {
	return r.PendingCode == "" || now.After(r.ExpiresAt)
}

func latest(times ...time.Time) time.Time {
	var out time.Time
	for _, t := range times {
		if t.After(out) {
			out = t
		}
	}
	return out
}

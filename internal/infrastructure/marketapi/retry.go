package marketapi

import (
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// RetryPolicy is a pure backoff and eligibility calculator. It never sleeps;
// the executor owns the waiting.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	JitterRatio float64
	// RetryableStatuses is the explicit allow-list of retryable HTTP codes.
	// Empty means the default: 429 plus any 5xx.
	RetryableStatuses []int
}

// DefaultRetryPolicy matches the provider-agnostic defaults: three attempts,
// exponential backoff doubling from one second, 20% jitter, capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:    3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2,
		JitterRatio: 0.2,
	}
}

// RetryableStatus reports whether an HTTP status is eligible for retry.
// 4xx other than 429 is terminal.
func (p RetryPolicy) RetryableStatus(status int) bool {
	if len(p.RetryableStatuses) > 0 {
		for _, s := range p.RetryableStatuses {
			if s == status {
				return true
			}
		}
		return false
	}
	return status == http.StatusTooManyRequests || status >= 500
}

// ShouldRetry decides whether attempt (1-based) may be followed by another
// try. Network-level failures are always retryable within the attempt budget;
// HTTP responses must pass the status allow-list.
func (p RetryPolicy) ShouldRetry(attempt int, status int, networkErr bool) bool {
	if attempt >= p.Attempts {
		return false
	}
	if networkErr {
		return true
	}
	return p.RetryableStatus(status)
}

// Delay computes the wait before the retry that follows attempt (1-based).
// A server-supplied Retry-After takes precedence over the computed backoff;
// either way the result is capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int, retryAfter *time.Duration) time.Duration {
	var d time.Duration
	if retryAfter != nil {
		d = *retryAfter
	} else {
		backoff := float64(p.BaseDelay)
		for i := 1; i < attempt; i++ {
			backoff *= p.Multiplier
		}
		jitter := backoff * p.JitterRatio * rand.Float64()
		d = time.Duration(backoff + jitter)
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// ParseRetryAfter interprets a Retry-After header value, which providers send
// either as delay seconds or as an HTTP-date. Returns nil when the value is
// absent or unparseable.
func ParseRetryAfter(value string, now time.Time) *time.Duration {
	if value == "" {
		return nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return nil
		}
		d := time.Duration(secs) * time.Second
		return &d
	}
	if t, err := http.ParseTime(value); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}

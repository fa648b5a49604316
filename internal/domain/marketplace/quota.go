package marketplace

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Bucket is the quota/circuit-breaker partition key. Each business account
// brings its own marketplace credentials, so limits are tracked per account
// and provider, never globally.
type Bucket struct {
	AccountID uuid.UUID
	Provider  string
}

// Key returns the canonical string form used by state stores.
func (b Bucket) Key() string {
	return fmt.Sprintf("%s:%s", b.AccountID, b.Provider)
}

// QuotaState is the durable per-bucket counter record. It is created lazily
// on first use and only ever reset in place, never deleted.
type QuotaState struct {
	WindowStart         time.Time
	RequestCount        int
	Capacity            int
	WindowDuration      time.Duration
	AlertThreshold      float64
	AlertEmitted        bool
	ConsecutiveFailures int
	BreakerOpenUntil    *time.Time
}

// WindowExpired reports whether the rolling window has elapsed at now.
func (s *QuotaState) WindowExpired(now time.Time) bool {
	return now.Sub(s.WindowStart) >= s.WindowDuration
}

// ResetAt returns the instant the current window ends.
func (s *QuotaState) ResetAt() time.Time {
	return s.WindowStart.Add(s.WindowDuration)
}

// QuotaDecision is the outcome of a quota consumption attempt.
type QuotaDecision struct {
	Granted   bool
	Remaining int
	ResetAt   time.Time
	// Alert is true on the single consumption that crosses the configured
	// alert threshold for the current window.
	Alert bool
}

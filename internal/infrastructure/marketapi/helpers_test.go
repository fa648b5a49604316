package marketapi

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/bricksync/backend/internal/domain/marketplace"
)

// staticCredentials resolves the same credentials for every bucket.
type staticCredentials struct {
	creds marketplace.Credentials
	err   error
}

func (s staticCredentials) Credentials(context.Context, uuid.UUID, string) (marketplace.Credentials, error) {
	return s.creds, s.err
}

// recordingMetrics captures emitted events for assertions.
type recordingMetrics struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	event string
	attrs marketplace.MetricAttrs
}

func (m *recordingMetrics) Emit(_ context.Context, event string, attrs marketplace.MetricAttrs) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, recordedEvent{event: event, attrs: attrs})
}

func (m *recordingMetrics) count(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func testBucket() marketplace.Bucket {
	return marketplace.Bucket{
		AccountID: uuid.MustParse("11111111-2222-3333-4444-555555555555"),
		Provider:  marketplace.ProviderBrickLink,
	}
}

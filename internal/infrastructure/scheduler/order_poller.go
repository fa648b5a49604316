package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bricksync/backend/internal/domain/marketplace"
)

// OrderPuller pulls orders placed since a given time from one marketplace.
type OrderPuller interface {
	PullOrders(ctx context.Context, accountID uuid.UUID, provider string, since time.Time) ([]marketplace.Order, error)
}

// OrderHandler receives the orders pulled by a poll job. Implementations must
// tolerate seeing the same order twice: watermarks only advance on success, so
// a failed downstream step replays the window on the next poll.
type OrderHandler func(ctx context.Context, accountID uuid.UUID, provider string, orders []marketplace.Order) error

// LoggingOrderHandler logs the id, status and total of each pulled order.
// It is the default sink when no downstream consumer is wired, so a poll
// round always leaves an observable trace.
func LoggingOrderHandler(logger *zap.Logger) OrderHandler {
	return func(_ context.Context, accountID uuid.UUID, provider string, orders []marketplace.Order) error {
		if len(orders) == 0 {
			return nil
		}
		ids := make([]string, len(orders))
		for i, o := range orders {
			ids[i] = o.OrderID
		}
		logger.Info("Pulled marketplace orders",
			zap.String("account_id", accountID.String()),
			zap.String("provider", provider),
			zap.Int("count", len(orders)),
			zap.Strings("order_ids", ids),
		)
		return nil
	}
}

// OrderPollExecutor executes poll jobs against the sync service and keeps a
// per-account watermark so each run only asks for orders placed since the last
// successful poll.
type OrderPollExecutor struct {
	puller  OrderPuller
	handler OrderHandler
	logger  *zap.Logger

	mu         sync.Mutex
	watermarks map[string]time.Time
}

// NewOrderPollExecutor creates an executor. handler may be nil, in which case
// pulled orders are only counted.
func NewOrderPollExecutor(puller OrderPuller, handler OrderHandler, logger *zap.Logger) *OrderPollExecutor {
	return &OrderPollExecutor{
		puller:     puller,
		handler:    handler,
		logger:     logger,
		watermarks: make(map[string]time.Time),
	}
}

// Execute implements JobExecutor.
func (e *OrderPollExecutor) Execute(ctx context.Context, job *PollJob) error {
	bucket := marketplace.Bucket{AccountID: job.AccountID, Provider: job.Provider}
	since := job.Since
	if mark, ok := e.watermark(bucket.Key()); ok && mark.After(since) {
		since = mark
	}

	pollStart := time.Now()
	orders, err := e.puller.PullOrders(ctx, job.AccountID, job.Provider, since)
	if err != nil {
		return err
	}

	if e.handler != nil {
		if err := e.handler(ctx, job.AccountID, job.Provider, orders); err != nil {
			return err
		}
	}

	job.OrderCount = len(orders)
	e.setWatermark(bucket.Key(), pollStart)
	return nil
}

func (e *OrderPollExecutor) watermark(key string) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	mark, ok := e.watermarks[key]
	return mark, ok
}

func (e *OrderPollExecutor) setWatermark(key string, t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.watermarks[key] = t
}

// Subscription names one store account to poll.
type Subscription struct {
	AccountID uuid.UUID
	Provider  string
}

// PollerConfig holds order poller configuration
type PollerConfig struct {
	// Interval between poll rounds.
	Interval time.Duration
	// Lookback bounds the first poll of each account after startup.
	Lookback time.Duration
}

// DefaultPollerConfig returns default poller configuration
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval: 15 * time.Minute,
		Lookback: 24 * time.Hour,
	}
}

// OrderPoller periodically enqueues one poll job per subscription.
type OrderPoller struct {
	scheduler *Scheduler
	subs      []Subscription
	config    PollerConfig
	logger    *zap.Logger
}

// NewOrderPoller creates an order poller over an already-started scheduler.
func NewOrderPoller(s *Scheduler, subs []Subscription, config PollerConfig, logger *zap.Logger) *OrderPoller {
	return &OrderPoller{
		scheduler: s,
		subs:      subs,
		config:    config,
		logger:    logger,
	}
}

// Run blocks, enqueueing a poll round every interval until ctx is cancelled.
func (p *OrderPoller) Run(ctx context.Context) error {
	if len(p.subs) == 0 {
		return ErrNoSubscriptions
	}

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// First round immediately on startup
	p.PollOnce()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.PollOnce()
		}
	}
}

// PollOnce enqueues one poll job per subscription.
func (p *OrderPoller) PollOnce() {
	since := time.Now().Add(-p.config.Lookback)
	for _, sub := range p.subs {
		job := NewPollJob(sub.AccountID, sub.Provider, since, p.scheduler.config.RetryAttempts)
		if err := p.scheduler.SubmitJob(job); err != nil {
			p.logger.Warn("Failed to enqueue poll job",
				zap.String("account_id", sub.AccountID.String()),
				zap.String("provider", sub.Provider),
				zap.Error(err),
			)
		}
	}
}

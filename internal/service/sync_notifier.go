package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/24Tech-io/nursepor-stable-sub008/pkg/events"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/jobs"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/middleware/requestid"
)

const publishTimeout = 5 * time.Second

// SyncNotifier fans sync events out to publishers. Delivery is best effort:
// failures are logged and never surface to the writer that raised the event.
// Until Start is called events are delivered inline.
type SyncNotifier struct {
	publishers []events.Publisher
	byName     map[string]events.Publisher
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time

	mu    sync.RWMutex
	queue *jobs.Queue[events.Event]
}

// NewSyncNotifier constructs a notifier over publishers.
func NewSyncNotifier(logger *zap.Logger, metrics *MetricsService, publishers ...events.Publisher) *SyncNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	byName := make(map[string]events.Publisher, len(publishers))
	for _, p := range publishers {
		byName[p.Name()] = p
	}
	return &SyncNotifier{
		publishers: publishers,
		byName:     byName,
		metrics:    metrics,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start switches to asynchronous delivery through a bounded worker queue.
func (n *SyncNotifier) Start(ctx context.Context, cfg jobs.QueueConfig) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.queue != nil {
		return
	}
	if cfg.Logger == nil {
		cfg.Logger = n.logger
	}
	n.queue = jobs.NewQueue("sync-notifier", n.handle, cfg)
	n.queue.Start(ctx)
}

// Stop halts the worker queue. Events raised afterwards are dropped.
func (n *SyncNotifier) Stop() {
	n.mu.RLock()
	q := n.queue
	n.mu.RUnlock()
	if q != nil {
		q.Stop()
	}
}

// Stats reports queue counters; zero before Start.
func (n *SyncNotifier) Stats() jobs.Stats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.queue == nil {
		return jobs.Stats{}
	}
	return n.queue.Stats()
}

// Notify publishes event to every publisher.
func (n *SyncNotifier) Notify(ctx context.Context, event events.Event) {
	if n == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = n.now()
	}
	if reqID := requestid.FromContext(ctx); reqID != "" {
		payload := make(map[string]interface{}, len(event.Payload)+1)
		for k, v := range event.Payload {
			payload[k] = v
		}
		payload["correlation_id"] = reqID
		event.Payload = payload
	}

	n.mu.RLock()
	q := n.queue
	n.mu.RUnlock()

	for _, p := range n.publishers {
		if q == nil {
			n.deliver(context.WithoutCancel(ctx), p, event)
			continue
		}
		job := jobs.Job[events.Event]{ID: event.ID + ":" + p.Name(), Type: p.Name(), Payload: event}
		if err := q.TryEnqueue(job); err != nil {
			n.metrics.RecordNotifierDrop()
			n.logger.Warn("sync event dropped",
				zap.String("event_id", event.ID),
				zap.String("type", event.Type),
				zap.String("publisher", p.Name()),
				zap.Error(err),
			)
		}
	}
}

func (n *SyncNotifier) handle(ctx context.Context, job jobs.Job[events.Event]) error {
	p, ok := n.byName[job.Type]
	if !ok {
		return fmt.Errorf("unknown publisher %q", job.Type)
	}
	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return p.Publish(publishCtx, job.Payload)
}

func (n *SyncNotifier) deliver(ctx context.Context, p events.Publisher, event events.Event) {
	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.Publish(publishCtx, event); err != nil {
		n.logger.Warn("sync event delivery failed",
			zap.String("event_id", event.ID),
			zap.String("publisher", p.Name()),
			zap.Error(err),
		)
	}
}

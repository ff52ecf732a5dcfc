package service

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
)

type repairRunner interface {
	Repair(ctx context.Context, issues []models.Issue) (*models.RepairSummary, error)
}

// AuditScheduler runs the consistency audit on an interval, optionally
// repairing whatever it finds.
type AuditScheduler struct {
	auditor    auditRunner
	engine     repairRunner
	interval   time.Duration
	autoRepair bool
	logger     *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun *models.ConsistencyReport
}

// AuditSchedulerOption customises the scheduler.
type AuditSchedulerOption func(*AuditScheduler)

// WithAutoRepair makes every audit feed its issues into the engine.
func WithAutoRepair(enabled bool) AuditSchedulerOption {
	return func(s *AuditScheduler) { s.autoRepair = enabled }
}

// NewAuditScheduler constructs a scheduler; a non-positive interval defaults to ten minutes.
func NewAuditScheduler(auditor auditRunner, engine repairRunner, interval time.Duration, logger *zap.Logger, opts ...AuditSchedulerOption) *AuditScheduler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditScheduler{auditor: auditor, engine: engine, interval: interval, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the loop in the background. It is a no-op when already running.
func (s *AuditScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx, s.done)
	s.logger.Info("audit scheduler started", zap.Duration("interval", s.interval), zap.Bool("auto_repair", s.autoRepair))
}

// Stop ends the loop and waits for an in-flight run to finish.
func (s *AuditScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("audit scheduler stopped")
}

// LastReport returns the report of the most recent successful run.
func (s *AuditScheduler) LastReport() *models.ConsistencyReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// RunOnce performs a single audit and, when enabled, a repair of its issues.
func (s *AuditScheduler) RunOnce(ctx context.Context) (*models.ConsistencyReport, *models.RepairSummary, error) {
	report, err := s.auditor.Audit(ctx)
	if err != nil {
		s.logger.Warn("scheduled audit failed", zap.Error(err))
		return nil, nil, err
	}
	s.mu.Lock()
	s.lastRun = report
	s.mu.Unlock()

	if !s.autoRepair || report.Total == 0 || s.engine == nil {
		return report, nil, nil
	}
	summary, err := s.engine.Repair(ctx, report.Issues)
	if err != nil {
		s.logger.Warn("scheduled repair failed", zap.Error(err))
		return report, nil, err
	}
	return report, summary, nil
}

func (s *AuditScheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(s.nextDelay())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			_, _, _ = s.RunOnce(ctx)
			timer.Reset(s.nextDelay())
		}
	}
}

// nextDelay spreads instances by up to 10% of the interval.
func (s *AuditScheduler) nextDelay() time.Duration {
	jitter := time.Duration(rand.Int64N(int64(s.interval)/10 + 1))
	return s.interval + jitter
}

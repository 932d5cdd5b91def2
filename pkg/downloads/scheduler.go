package downloads

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pkgvault/registry/pkg/observability"
)

// Scheduler runs the flush coordinator on a fixed interval
type Scheduler struct {
	cron        *cron.Cron
	coordinator *Coordinator
	interval    time.Duration
	logger      *observability.Logger
}

// NewScheduler creates a scheduler flushing every interval. Panics in the
// flush job are recovered and logged, never crashing the process.
func NewScheduler(coordinator *Coordinator, interval time.Duration, logger *observability.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("flush interval must be positive")
	}

	cl := cronLogger{logger: logger}
	c := cron.New(cron.WithChain(cron.Recover(cl)))

	s := &Scheduler{
		cron:        c,
		coordinator: coordinator,
		interval:    interval,
		logger:      logger,
	}

	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), s.runFlush); err != nil {
		return nil, fmt.Errorf("failed to schedule flush job: %w", err)
	}

	return s, nil
}

// Start begins periodic flushing
func (s *Scheduler) Start() {
	s.logger.Infof("Starting download flush scheduler (every %s)", s.interval)
	s.cron.Start()
}

// Stop halts scheduling, waits for an in-flight flush to finish, then
// runs one final flush to persist whatever is still pending.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("Stopping download flush scheduler")

	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for in-flight flush: %w", ctx.Err())
	}

	outcome := s.coordinator.FlushAll(ctx)
	if err := outcome.Err(); err != nil {
		return fmt.Errorf("final flush incomplete: %w", err)
	}
	s.logger.WithField("persisted", outcome.Persisted).Info("Final flush complete")
	return nil
}

// runFlush bounds each cycle to the flush interval so a stuck database
// cannot pile up overlapping cycles
func (s *Scheduler) runFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()
	s.coordinator.FlushAll(ctx)
}

// cronLogger adapts the observability logger to cron's logging interface
type cronLogger struct {
	logger *observability.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugf("cron: %s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).Errorf("cron: %s %v", msg, keysAndValues)
}

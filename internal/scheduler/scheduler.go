// Package scheduler wires up the cron job that periodically triggers scans
// of every source.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spigell/permit-scout/internal/leads"
)

// Scanner runs one scan of every source.
type Scanner interface {
	TriggerAll(ctx context.Context) ([]*leads.ScanRecord, error)
}

// Scheduler wraps robfig/cron and manages the scan loop.
type Scheduler struct {
	cron    *cron.Cron
	scanner Scanner
	logger  *zap.Logger
	spec    string // cron spec, e.g. "@every 6h"

	// cycles never overlap; a tick that fires mid-cycle is skipped.
	running sync.Mutex
}

func New(scanner Scanner, logger *zap.Logger, spec string) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cronLogger{logger})),
		scanner: scanner,
		logger:  logger,
		spec:    spec,
	}
}

// Start registers the job and starts the scheduler. With runNow one cycle
// also runs immediately instead of waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context, runNow bool) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.spec))

	if runNow {
		go s.run(ctx)
	}

	return nil
}

// Stop stops the scheduler and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.running.Lock()
	defer s.running.Unlock()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	if !s.running.TryLock() {
		s.logger.Warn("previous scan cycle still running, skipping tick")
		return
	}
	defer s.running.Unlock()

	if ctx.Err() != nil {
		return
	}

	s.logger.Info("scan cycle started")

	records, err := s.scanner.TriggerAll(ctx)
	for _, rec := range records {
		s.logger.Info("scan recorded",
			zap.String("source", string(rec.Source)),
			zap.String("status", string(rec.Status)),
			zap.Int("found", rec.Found),
			zap.Int("new", rec.New),
		)
	}
	if err != nil {
		s.logger.Error("scan cycle finished with errors", zap.Error(err))
		return
	}

	s.logger.Info("scan cycle complete", zap.Int("sources", len(records)))
}

// cronLogger routes cron's own messages through zap.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/oxx-labs/oxx-backend/internal/journal"
	"github.com/oxx-labs/oxx-backend/internal/projects"
	"github.com/oxx-labs/oxx-backend/pkg/logging"
)

const (
	DefaultSchedule   = "0 */5 * * * *"
	defaultRunTimeout = 2 * time.Minute
)

// Scheduler periodically refreshes every tokenized project and settles open journal entries.
type Scheduler struct {
	reconciler *Reconciler
	store      projects.Store
	schedule   string
	runTimeout time.Duration
	logger     logging.Logger

	journal  journal.Journal
	receipts journal.ReceiptSource
	settlers map[journal.Operation]journal.Settler

	cron    *cron.Cron
	entryID cron.EntryID
	mu      sync.Mutex
	running bool
}

func NewScheduler(r *Reconciler, store projects.Store, schedule string, logger logging.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Scheduler{
		reconciler: r,
		store:      store,
		schedule:   schedule,
		runTimeout: defaultRunTimeout,
		logger:     logger,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
		),
	}
}

// WithJournal makes each run also settle open journal entries against source.
func (s *Scheduler) WithJournal(j journal.Journal, source journal.ReceiptSource) *Scheduler {
	s.journal = j
	s.receipts = source
	return s
}

// WithSettlers finishes late-confirmed operations during journal reconciliation.
func (s *Scheduler) WithSettlers(settlers map[journal.Operation]journal.Settler) *Scheduler {
	s.settlers = settlers
	return s
}

func (s *Scheduler) WithRunTimeout(d time.Duration) *Scheduler {
	s.runTimeout = d
	return s
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	id, err := s.cron.AddFunc(s.schedule, s.RunOnce)
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", s.schedule, err)
	}
	s.entryID = id
	s.cron.Start()
	s.running = true
	s.logger.Info("Market data scheduler started", "schedule", s.schedule)
	return nil
}

// Stop removes the job and waits for a run in progress to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cron.Remove(s.entryID)
	done := s.cron.Stop()
	s.running = false
	s.mu.Unlock()

	select {
	case <-done.Done():
		s.logger.Info("Market data scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("Market data scheduler stop timed out", "error", ctx.Err())
	}
}

// RunOnce performs one refresh pass.
func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	s.reconciler.RefreshAll(ctx, s.store)

	if s.journal == nil || s.receipts == nil {
		return
	}
	settled, err := journal.ReconcileOpen(ctx, s.journal, s.receipts, s.settlers, s.logger)
	if err != nil {
		s.logger.Error("Failed to reconcile open journal entries", "error", err)
		return
	}
	if settled > 0 {
		s.logger.Info("Settled open journal entries", "count", settled)
	}
}

// cronLogger routes cron's own messages through the service logger.
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

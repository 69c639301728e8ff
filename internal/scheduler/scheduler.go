// Package scheduler runs periodic jobs on an injectable clock. The engine
// registers its operation and lock sweeps here; tests drive the clock
// instead of sleeping.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrAlreadyRunning is returned by Start on a running Scheduler.
var ErrAlreadyRunning = errors.New("scheduler already running")

// Job is a named unit of periodic work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs each Job on its own ticker between Start and Stop.
type Scheduler struct {
	clock  clockwork.Clock
	logger *slog.Logger
	jobs   []Job

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a Scheduler. Jobs with a non-positive interval or nil Run are
// ignored.
func New(clock clockwork.Clock, logger *slog.Logger, jobs ...Job) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	valid := make([]Job, 0, len(jobs))
	for _, j := range jobs {
		if j.Interval > 0 && j.Run != nil {
			valid = append(valid, j)
		}
	}
	return &Scheduler{clock: clock, logger: logger, jobs: valid}
}

// Start launches one goroutine per job. The jobs stop when ctx is done or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, j := range s.jobs {
		ticker := s.clock.NewTicker(j.Interval)
		s.wg.Add(1)
		go s.loop(ctx, j, ticker)
	}
	s.logger.Debug("scheduler_started", slog.Int("jobs", len(s.jobs)))
	return nil
}

// Stop halts every job and waits for in-flight runs to return. Stopping a
// stopped Scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Debug("scheduler_stopped")
}

// Running reports whether Start has been called without a matching Stop.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunOnce runs every job a single time, in registration order, and returns
// the joined errors.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var errs []error
	for _, j := range s.jobs {
		if err := s.run(ctx, j); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) loop(ctx context.Context, j Job, ticker clockwork.Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			_ = s.run(ctx, j)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, j Job) error {
	err := j.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("job_failed",
			slog.String("job", j.Name),
			slog.Any("error", err),
		)
	}
	return err
}

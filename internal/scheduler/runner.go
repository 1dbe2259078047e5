// Package scheduler triggers batch jobs on a cron schedule or on demand,
// never running two instances of the same job at once.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"coop-ledger/internal/infrastructure/metrics"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	ErrBatchInProgress = errors.New("batch already in progress")
	ErrUnknownJob      = errors.New("unknown batch job")
)

// Job runs one batch and returns its summary.
type Job func(ctx context.Context) (any, error)

type Runner struct {
	cron   *cron.Cron
	locker Locker
	log    *zap.Logger

	mu   sync.RWMutex
	jobs map[string]Job

	base   context.Context
	cancel context.CancelFunc
}

func NewRunner(locker Locker, log *zap.Logger) *Runner {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if log == nil {
		log = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Runner{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		locker: locker,
		log:    log,
		jobs:   make(map[string]Job),
		base:   base,
		cancel: cancel,
	}
}

// Register adds a job under name. An empty spec makes it on-demand only.
func (r *Runner) Register(name, spec string, job Job) error {
	r.mu.Lock()
	r.jobs[name] = job
	r.mu.Unlock()
	if spec == "" {
		return nil
	}
	if _, err := r.cron.AddFunc(spec, func() { r.scheduled(name) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	r.log.Info("batch job scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

func (r *Runner) scheduled(name string) {
	_, err := r.Run(r.base, name)
	switch {
	case errors.Is(err, ErrBatchInProgress):
		r.log.Debug("scheduled batch skipped, still running", zap.String("job", name))
	case err != nil:
		r.log.Error("scheduled batch failed", zap.String("job", name), zap.Error(err))
	}
}

// Run executes the job now under its lock.
func (r *Runner) Run(ctx context.Context, name string) (any, error) {
	r.mu.RLock()
	job, ok := r.jobs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	unlock, ok, err := r.locker.TryLock(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.RecordSweepRun(name, "busy", 0)
		return nil, ErrBatchInProgress
	}
	defer unlock()

	r.log.Info("batch started", zap.String("job", name))
	return job(ctx)
}

func (r *Runner) Start() { r.cron.Start() }

// Stop halts the schedule, cancels running scheduled jobs and waits for
// them to return or ctx to end.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	r.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

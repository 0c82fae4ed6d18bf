// Package scheduler runs the periodic reconciliation and DLQ maintenance
// jobs. One goroutine per job, fixed interval, and an in-flight guard so an
// interval firing while the previous run is still busy is skipped, not
// queued.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"pharmabill/internal/observability"
)

type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error

	running atomic.Bool
}

type Scheduler struct {
	jobs []*Job
	wg   sync.WaitGroup

	mu  sync.Mutex
	ctx context.Context
}

func New(jobs ...*Job) *Scheduler {
	return &Scheduler{jobs: jobs}
}

// Start launches every job loop and returns. Loops stop when ctx is
// cancelled; Wait blocks until in-flight runs finish.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(j *Job) {
			defer s.wg.Done()
			ticker := time.NewTicker(j.Interval)
			defer ticker.Stop()

			slog.Info("job scheduled", "job", j.Name, "interval", j.Interval)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.fire(ctx, j)
				}
			}
		}(job)
	}
}

func (s *Scheduler) Wait() { s.wg.Wait() }

// Trigger fires a job by name outside its schedule (operator endpoint). The
// run happens on its own goroutine against the scheduler's lifetime context,
// not the caller's, so a slow job never blocks the trigger. The overlap
// guard still applies.
func (s *Scheduler) Trigger(name string) bool {
	for _, j := range s.jobs {
		if j.Name == name {
			s.mu.Lock()
			ctx := s.ctx
			s.mu.Unlock()
			if ctx == nil {
				ctx = context.Background()
			}

			s.wg.Add(1)
			go func(j *Job) {
				defer s.wg.Done()
				s.fire(ctx, j)
			}(j)
			return true
		}
	}
	return false
}

func (s *Scheduler) fire(ctx context.Context, j *Job) {
	if !j.running.CompareAndSwap(false, true) {
		observability.JobRuns.WithLabelValues(j.Name, "skipped").Inc()
		slog.Warn("job still running, skipping this firing", "job", j.Name)
		return
	}
	defer j.running.Store(false)

	start := time.Now()
	err := j.Run(ctx)
	if err != nil {
		observability.JobRuns.WithLabelValues(j.Name, "error").Inc()
		slog.Error("job run failed", "job", j.Name, "duration", time.Since(start), "err", err)
		return
	}
	observability.JobRuns.WithLabelValues(j.Name, "ok").Inc()
	slog.Info("job run finished", "job", j.Name, "duration", time.Since(start))
}

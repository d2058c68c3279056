// Package scheduler runs the periodic background jobs: billing, dunning, webhook delivery,
// idempotency purge, queue cleanup and the nightly reconciliation.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Job struct {
	Name string
	// Every runs the job on a fixed interval. Ignored when At is set.
	Every time.Duration
	// At runs the job once a day at the given "HH:MM" in Location.
	At       string
	Location *time.Location
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	jobs []Job
	log  *zap.Logger
	now  func() time.Time
}

func New(log *zap.Logger) *Scheduler {
	return &Scheduler{log: log.Named("scheduler"), now: time.Now}
}

func (s *Scheduler) Add(j Job) error {
	if j.Run == nil {
		return fmt.Errorf("job %s: no run func", j.Name)
	}
	if j.At != "" {
		if _, _, err := parseClock(j.At); err != nil {
			return fmt.Errorf("job %s: %w", j.Name, err)
		}
		if j.Location == nil {
			j.Location = time.UTC
		}
	} else if j.Every <= 0 {
		return fmt.Errorf("job %s: interval must be positive", j.Name)
	}
	s.jobs = append(s.jobs, j)
	return nil
}

// Run starts every job and blocks until ctx is done and running jobs have returned.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			if j.At != "" {
				s.daily(ctx, j)
			} else {
				s.every(ctx, j)
			}
		}(j)
	}
	s.log.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
	wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) every(ctx context.Context, j Job) {
	tick := time.NewTicker(j.Every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.runJob(ctx, j)
		}
	}
}

func (s *Scheduler) daily(ctx context.Context, j Job) {
	for {
		next, _ := NextDaily(s.now(), j.At, j.Location)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.runJob(ctx, j)
		}
	}
}

// runJob runs one job, logging errors and recovering panics so one job cannot stop the others.
func (s *Scheduler) runJob(ctx context.Context, j Job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked", zap.String("job", j.Name), zap.Any("panic", r))
		}
	}()
	if err := j.Run(ctx); err != nil {
		s.log.Error("job failed", zap.String("job", j.Name), zap.Error(err), zap.Duration("took", time.Since(start)))
		return
	}
	s.log.Debug("job done", zap.String("job", j.Name), zap.Duration("took", time.Since(start)))
}

// RunNow runs the named job synchronously.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	for _, j := range s.jobs {
		if j.Name == name {
			return j.Run(ctx)
		}
	}
	return fmt.Errorf("unknown job %q", name)
}

func (s *Scheduler) Names() []string {
	out := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Name)
	}
	return out
}

// NextDaily returns the first time strictly after now at clock "HH:MM" in loc.
func NextDaily(now time.Time, clock string, loc *time.Location) (time.Time, error) {
	h, m, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), h, m, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, h, m, 0, 0, loc)
	}
	return next, nil
}

func parseClock(clock string) (int, int, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q", clock)
	}
	return t.Hour(), t.Minute(), nil
}

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/surajcodesml/a2a/pkg/telemetry"
)

type Job struct {
	Name     string
	Schedule string
	Func     func(ctx context.Context) error
}

type Scheduler struct {
	mu      sync.Mutex
	jobs    []*entry
	tick    time.Duration
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger
}

type entry struct {
	job      Job
	interval time.Duration
	next     time.Time
	// busy keeps a slow run from overlapping the next one.
	busy bool
}

type Option func(*Scheduler)

// WithTick sets how often due jobs are checked. Defaults to one second.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		tick:   time.Second,
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = telemetry.Component(s.logger, "scheduler")
	return s
}

func (s *Scheduler) Add(job Job) error {
	if job.Func == nil {
		return fmt.Errorf("scheduler: job %q has no func", job.Name)
	}
	interval, err := parseSchedule(job.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q: %w", job.Schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.jobs {
		if e.job.Name == job.Name {
			return fmt.Errorf("scheduler: job %q already added", job.Name)
		}
	}

	s.jobs = append(s.jobs, &entry{
		job:      job,
		interval: interval,
		next:     time.Now().Add(interval),
	})
	return nil
}

// Start blocks until ctx is done or Stop is called, then waits for running
// jobs to return.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.running = true
	n := len(s.jobs)
	s.mu.Unlock()

	s.logger.Info("scheduler started", slog.Int("jobs", n))

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	defer s.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.runDue(ctx, now)
		}
	}
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		close(s.stopCh)
		s.running = false
	}
}

// RunNow runs the named job synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var job *Job
	for _, e := range s.jobs {
		if e.job.Name == name {
			j := e.job
			job = &j
			break
		}
	}
	s.mu.Unlock()
	if job == nil {
		return fmt.Errorf("scheduler: no job %q", name)
	}
	return job.Func(ctx)
}

func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.jobs {
		if e.busy || now.Before(e.next) {
			continue
		}
		e.next = now.Add(e.interval)
		e.busy = true

		s.wg.Add(1)
		go func(e *entry) {
			defer s.wg.Done()
			s.run(ctx, e.job)
			s.mu.Lock()
			e.busy = false
			s.mu.Unlock()
		}(e)
	}
}

func (s *Scheduler) run(ctx context.Context, j Job) {
	start := time.Now()
	s.logger.Debug("running job", slog.String("job", j.Name))
	if err := j.Func(ctx); err != nil {
		telemetry.Metrics.ErrorsTotal.WithLabelValues("scheduler").Inc()
		s.logger.Error("job failed",
			slog.String("job", j.Name),
			slog.String("err", err.Error()),
		)
		return
	}
	s.logger.Debug("job done", slog.String("job", j.Name), slog.Duration("took", time.Since(start)))
}

func parseSchedule(s string) (time.Duration, error) {
	var d time.Duration
	var err error
	switch {
	case s == "@hourly":
		d = time.Hour
	case s == "@daily":
		d = 24 * time.Hour
	case len(s) > 7 && s[:7] == "@every ":
		d, err = time.ParseDuration(s[7:])
	default:
		d, err = time.ParseDuration(s)
	}
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	return d, nil
}

package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/surajcodesml/a2a/pkg/telemetry"
)

const TaskGCJob = "task-gc"

// TaskEvictor drops terminal tasks older than the retention window.
type TaskEvictor interface {
	Evict(retention time.Duration) int
}

// Pruner deletes records written before cutoff.
type Pruner func(ctx context.Context, cutoff time.Time) (int64, error)

type GCConfig struct {
	Schedule string
	// Retention is how long terminal tasks stay readable.
	Retention time.Duration
	Tasks     []TaskEvictor
	// RecordRetention applies to Prune. Zero disables pruning.
	RecordRetention time.Duration
	Prune           []Pruner
	Now             func() time.Time
	Logger          *slog.Logger
}

// TaskGC returns the job that evicts finished tasks and prunes old audit
// entries and sessions.
func TaskGC(cfg GCConfig) Job {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := telemetry.Component(cfg.Logger, "task-gc")

	return Job{
		Name:     TaskGCJob,
		Schedule: cfg.Schedule,
		Func: func(ctx context.Context) error {
			evicted := 0
			for _, t := range cfg.Tasks {
				evicted += t.Evict(cfg.Retention)
			}

			var pruned int64
			var errs []error
			if cfg.RecordRetention > 0 {
				cutoff := cfg.Now().Add(-cfg.RecordRetention).UTC()
				for _, prune := range cfg.Prune {
					n, err := prune(ctx, cutoff)
					if err != nil {
						errs = append(errs, err)
						continue
					}
					pruned += n
				}
			}

			if evicted > 0 || pruned > 0 {
				logger.Info("garbage collected",
					slog.Int("tasks", evicted),
					slog.Int64("records", pruned),
				)
			}
			return errors.Join(errs...)
		},
	}
}

package x402relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/surajcodesml/a2a/pkg/agent"
	"github.com/surajcodesml/a2a/pkg/audit"
	"github.com/surajcodesml/a2a/pkg/config"
	"github.com/surajcodesml/a2a/pkg/gateway"
	"github.com/surajcodesml/a2a/pkg/scheduler"
	"github.com/surajcodesml/a2a/pkg/store"
	"github.com/surajcodesml/a2a/pkg/telemetry"
)

// services holds the process-wide resources one agent command opens.
type services struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	audit   *audit.Logger
	probes  []func(context.Context) error
	closers []func() error
}

func setup(ctx context.Context, service string) (*services, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := config.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	rt := &services{cfg: cfg}
	rt.logger = telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format, nil).With(slog.String("service", service))

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: service,
		Version:     agent.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing tracer: %w", err)
	}
	rt.closers = append(rt.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTracer(ctx)
	})

	st, err := store.Open(cfg.Store.DSN)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.store = st
	rt.closers = append(rt.closers, st.Close)
	rt.probes = append(rt.probes, func(ctx context.Context) error {
		sqlDB, err := st.DB().DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})

	rt.audit, err = audit.New(st.DB())
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("initializing audit logger: %w", err)
	}
	return rt, nil
}

func (rt *services) onClose(fn func() error) {
	rt.closers = append(rt.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (rt *services) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil && rt.logger != nil {
			rt.logger.Warn("closing resource", slog.String("err", err.Error()))
		}
	}
	rt.closers = nil
}

func (rt *services) ready(ctx context.Context) error {
	var errs []error
	for _, probe := range rt.probes {
		errs = append(errs, probe(ctx))
	}
	return errors.Join(errs...)
}

// serve hosts a on port and runs its housekeeping until ctx is done.
func (rt *services) serve(ctx context.Context, a *gateway.Agent, port int) error {
	cfg := rt.cfg
	ctx = telemetry.WithLogger(ctx, rt.logger)

	sched := scheduler.New(scheduler.WithLogger(rt.logger))
	if err := sched.Add(scheduler.TaskGC(scheduler.GCConfig{
		Schedule:        cfg.Tasks.GCSchedule,
		Retention:       config.Duration(cfg.Tasks.Retention, 10*time.Minute),
		Tasks:           []scheduler.TaskEvictor{a.Tasks},
		RecordRetention: config.Duration(cfg.Tasks.RecordRetention, 0),
		Prune:           []scheduler.Pruner{rt.audit.Prune, rt.store.PruneSessions},
		Logger:          rt.logger,
	})); err != nil {
		return err
	}
	go sched.Start(ctx)
	defer sched.Stop()

	g := gateway.New(gateway.Config{
		Bind:      cfg.Server.Bind,
		Port:      port,
		Agent:     a.Handler,
		MCP:       a.MCP,
		Ready:     rt.ready,
		AuthToken: cfg.Server.AuthToken,
		Logger:    rt.logger,
	})
	rt.logger.Info("agent starting",
		slog.String("agent", a.Card.Card().Name),
		slog.String("version", agent.Version),
		slog.String("addr", g.Addr()),
		slog.Bool("mcp", a.MCP != nil),
	)
	return g.Start(ctx)
}

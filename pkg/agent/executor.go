package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/surajcodesml/a2a/pkg/a2a"
	"github.com/surajcodesml/a2a/pkg/agent/tools"
	"github.com/surajcodesml/a2a/pkg/audit"
	"github.com/surajcodesml/a2a/pkg/store"
	"github.com/surajcodesml/a2a/pkg/telemetry"
)

// SessionStore creates the per-context session on first contact.
type SessionStore interface {
	GetOrCreateSession(ctx context.Context, id, appName, userID string) (*store.Session, bool, error)
}

type ExecutorConfig struct {
	Runner   Runner
	Sessions SessionStore
	AuditLog *audit.Logger
	AppName  string
	UserID   string
	// ArtifactName names the single artifact a completed task carries.
	ArtifactName string
	Logger       *slog.Logger
}

// Executor is the a2a.AgentExecutor both agents run.
type Executor struct {
	runner       Runner
	sessions     SessionStore
	auditLog     *audit.Logger
	appName      string
	userID       string
	artifactName string
	logger       *slog.Logger
}

var _ a2a.AgentExecutor = (*Executor)(nil)

func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.ArtifactName == "" {
		cfg.ArtifactName = "result"
	}
	return &Executor{
		runner:       cfg.Runner,
		sessions:     cfg.Sessions,
		auditLog:     cfg.AuditLog,
		appName:      cfg.AppName,
		userID:       cfg.UserID,
		artifactName: cfg.ArtifactName,
		logger:       telemetry.Component(cfg.Logger, "executor"),
	}
}

func (e *Executor) Execute(ctx context.Context, rc *a2a.RequestContext, u *a2a.TaskUpdater) error {
	if err := rc.Validate(); err != nil {
		return err
	}

	if rc.Task == nil {
		if err := u.Submit(ctx, rc.Message); err != nil {
			return err
		}
	} else if err := u.Attach(); err != nil {
		return err
	}
	if err := u.StartWork(ctx); err != nil {
		return err
	}

	logger := e.logger.With(slog.String("task_id", rc.TaskID), slog.String("context_id", rc.ContextID))

	if e.sessions != nil {
		_, created, err := e.sessions.GetOrCreateSession(ctx, rc.ContextID, e.appName, e.userID)
		if err != nil {
			return u.Fail(ctx, fmt.Sprintf("opening session: %v", err))
		}
		if created {
			e.audit(ctx, rc, audit.EventSessionNew)
		}
	}

	ctx = tools.WithTaskInfo(ctx, rc.TaskID, rc.ContextID)
	if key, ok := rc.Metadata["idempotencyKey"].(string); ok {
		ctx = tools.WithIdempotencyKey(ctx, key)
	}

	stream, err := e.runner.Run(ctx, RunRequest{
		SessionID: rc.ContextID,
		UserID:    e.userID,
		Message:   rc.Message,
		Metadata:  rc.Metadata,
	})
	if err != nil {
		logger.Warn("runner rejected message", slog.String("err", err.Error()))
		return u.Fail(ctx, err.Error())
	}
	defer stream.Close()

	for {
		ev, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return u.Fail(ctx, "agent finished without a final response")
		}
		if err != nil {
			logger.Warn("run failed", slog.String("err", err.Error()))
			return u.Fail(ctx, err.Error())
		}

		if ev.IsFinal() {
			if len(ev.Parts) == 0 {
				return u.Fail(ctx, "agent returned an empty final response")
			}
			u.AddArtifact(e.artifactName, ev.Parts...)
			return u.Complete(ctx)
		}
		if len(ev.ToolCalls) > 0 || len(ev.Parts) == 0 {
			continue
		}
		if err := u.UpdateStatus(ctx, a2a.TaskStateWorking, ev.Parts); err != nil {
			return err
		}
	}
}

// Cancel is never supported: a payment in flight cannot be recalled.
func (e *Executor) Cancel(_ context.Context, _ *a2a.RequestContext) error {
	return a2a.ErrUnsupportedOperation
}

func (e *Executor) audit(ctx context.Context, rc *a2a.RequestContext, eventType string) {
	if e.auditLog == nil {
		return
	}
	if err := e.auditLog.Log(ctx, eventType, rc.TaskID, rc.ContextID, e.userID, e.appName); err != nil {
		e.logger.Error("writing audit entry", slog.String("event", eventType), slog.String("err", err.Error()))
	}
}

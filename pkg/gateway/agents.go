package gateway

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/surajcodesml/a2a/pkg/a2a"
	"github.com/surajcodesml/a2a/pkg/agent"
	"github.com/surajcodesml/a2a/pkg/agent/tools"
	"github.com/surajcodesml/a2a/pkg/audit"
	"github.com/surajcodesml/a2a/pkg/mcp"
	"github.com/surajcodesml/a2a/pkg/store"
)

// Agent is one assembled agent. The card, registry and task store are built
// once and shared by every request.
type Agent struct {
	Card     *a2a.PublishedCard
	Registry *tools.Registry
	Tasks    *a2a.TaskStore
	Handler  *a2a.Handler
	// MCP is nil unless the agent publishes its tools over MCP.
	MCP http.Handler
}

type PayerConfig struct {
	URL        string
	Payer      tools.Payer
	Sessions   *store.Store
	AuditLog   *audit.Logger
	AuthToken  string
	MCPEnabled bool
	Logger     *slog.Logger
}

// NewPayer assembles the agent that settles x402 challenges.
func NewPayer(cfg PayerConfig) (*Agent, error) {
	if cfg.Payer == nil {
		return nil, fmt.Errorf("gateway: payer agent needs a payment executor")
	}
	payerTools := []tools.Tool{&tools.PayTool{Payer: cfg.Payer}}
	if cfg.AuditLog != nil {
		payerTools = append(payerTools, &tools.HistoryTool{Audit: cfg.AuditLog})
	}
	reg, err := tools.NewRegistryWith(payerTools...)
	if err != nil {
		return nil, err
	}

	a, err := assemble(agent.PayerCard(cfg.URL), reg, &agent.ToolRunner{
		Registry:    reg,
		DefaultTool: tools.PayToolName,
		DefaultArg:  "url",
		Author:      agent.PayerAppName,
	}, agentConfig{
		appName:   agent.PayerAppName,
		userID:    agent.PayerUserID,
		actor:     "payer",
		sessions:  cfg.Sessions,
		auditLog:  cfg.AuditLog,
		authToken: cfg.AuthToken,
		logger:    cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.MCPEnabled {
		server, err := mcp.NewServer(mcp.ServerConfig{
			Name:    agent.PayerAppName,
			Version: agent.Version,
			Tools:   reg,
			Aliases: map[string]string{mcp.PayAlias: tools.PayToolName},
			Logger:  cfg.Logger,
		})
		if err != nil {
			return nil, err
		}
		a.MCP = mcp.Handler(server)
	}
	return a, nil
}

type RequesterConfig struct {
	URL              string
	Fetcher          tools.Fetcher
	CallerToken      string
	VehicleReportURL string
	Sessions         *store.Store
	AuditLog         *audit.Logger
	AuthToken        string
	Logger           *slog.Logger
}

// NewRequester assembles the agent that fetches paywalled resources and
// relays their payment challenges.
func NewRequester(cfg RequesterConfig) (*Agent, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("gateway: requester agent needs a paywall client")
	}
	reg, err := tools.NewRegistryWith(
		&tools.VehicleReportTool{Fetcher: cfg.Fetcher, URLTemplate: cfg.VehicleReportURL, CallerToken: cfg.CallerToken},
		&tools.FetchTool{Fetcher: cfg.Fetcher, CallerToken: cfg.CallerToken},
	)
	if err != nil {
		return nil, err
	}

	return assemble(agent.RequesterCard(cfg.URL), reg, &agent.ToolRunner{
		Registry:    reg,
		DefaultTool: "vehicle_report",
		DefaultArg:  "query",
		Author:      agent.RequesterAppName,
	}, agentConfig{
		appName:   agent.RequesterAppName,
		userID:    agent.RequesterUserID,
		actor:     "requester",
		sessions:  cfg.Sessions,
		auditLog:  cfg.AuditLog,
		authToken: cfg.AuthToken,
		logger:    cfg.Logger,
	})
}

type agentConfig struct {
	appName   string
	userID    string
	actor     string
	sessions  *store.Store
	auditLog  *audit.Logger
	authToken string
	logger    *slog.Logger
}

func assemble(card a2a.AgentCard, reg *tools.Registry, runner agent.Runner, cfg agentConfig) (*Agent, error) {
	published, err := a2a.PublishCard(card)
	if err != nil {
		return nil, err
	}

	var sessions agent.SessionStore
	if cfg.sessions != nil {
		sessions = cfg.sessions
	}
	exec := agent.NewExecutor(agent.ExecutorConfig{
		Runner:   runner,
		Sessions: sessions,
		AuditLog: cfg.auditLog,
		AppName:  cfg.appName,
		UserID:   cfg.userID,
		Logger:   cfg.logger,
	})

	tasks := a2a.NewTaskStore()
	handler := a2a.NewHandler(a2a.HandlerConfig{
		Card:      published,
		Executor:  exec,
		Store:     tasks,
		Tools:     reg,
		AuditLog:  cfg.auditLog,
		Logger:    cfg.logger,
		AuthToken: cfg.authToken,
		Actor:     cfg.actor,
	})

	return &Agent{Card: published, Registry: reg, Tasks: tasks, Handler: handler}, nil
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/surajcodesml/a2a/pkg/agent/tools"
	"github.com/surajcodesml/a2a/pkg/telemetry"
)

// PayAlias is the name MCP clients have always used for the payment tool.
const PayAlias = "pay_x402_api"

// Caller is the tool surface published over MCP.
type Caller interface {
	Definitions() []tools.Definition
	CallTool(ctx context.Context, name string, input json.RawMessage) (string, error)
}

type ServerConfig struct {
	Name    string
	Version string
	Tools   Caller
	// Aliases maps an extra published name to an existing tool.
	Aliases map[string]string
	Logger  *slog.Logger
}

// NewServer registers every tool of cfg.Tools, plus its aliases, on a new
// MCP server.
func NewServer(cfg ServerConfig) (*mcpsdk.Server, error) {
	if cfg.Tools == nil {
		return nil, fmt.Errorf("mcp: no tools configured")
	}
	if cfg.Name == "" {
		cfg.Name = "x402relay"
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	logger := telemetry.Component(cfg.Logger, "mcp")

	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: cfg.Name, Version: cfg.Version}, nil)

	defs := make(map[string]tools.Definition)
	for _, def := range cfg.Tools.Definitions() {
		defs[def.Name] = def
	}

	published := make([]string, 0, len(defs)+len(cfg.Aliases))
	for name := range defs {
		published = append(published, name)
	}
	for alias, target := range cfg.Aliases {
		if _, ok := defs[target]; !ok {
			return nil, fmt.Errorf("mcp: alias %s points at unknown tool %s", alias, target)
		}
		if _, ok := defs[alias]; ok {
			return nil, fmt.Errorf("mcp: alias %s shadows a registered tool", alias)
		}
		published = append(published, alias)
	}
	sort.Strings(published)

	for _, name := range published {
		target := name
		if t, ok := cfg.Aliases[name]; ok {
			target = t
		}
		def := defs[target]
		schema, err := inputSchema(def)
		if err != nil {
			return nil, err
		}
		server.AddTool(&mcpsdk.Tool{
			Name:        name,
			Description: def.Description,
			InputSchema: schema,
		}, toolHandler(cfg.Tools, target, logger))
	}

	logger.Debug("mcp server ready", slog.Int("tools", len(published)))
	return server, nil
}

// Handler exposes server over streamable HTTP.
func Handler(server *mcpsdk.Server) http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return server
	}, nil)
}

func inputSchema(def tools.Definition) (*jsonschema.Schema, error) {
	raw := def.InputSchema
	if len(raw) == 0 {
		raw = json.RawMessage(`{"type":"object"}`)
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("mcp: parsing schema for %s: %w", def.Name, err)
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	return &schema, nil
}

// toolHandler reports tool failures as isError results so the caller sees
// the reason instead of a protocol error.
func toolHandler(caller Caller, name string, logger *slog.Logger) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		args := json.RawMessage("{}")
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			args = req.Params.Arguments
		}

		out, err := caller.CallTool(ctx, name, args)
		if err != nil {
			logger.Warn("mcp tool call failed", slog.String("tool", name), slog.String("err", err.Error()))
			return &mcpsdk.CallToolResult{
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
				IsError: true,
			}, nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: out}},
		}, nil
	}
}

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/surajcodesml/a2a/pkg/telemetry"
)

var ErrUnknownTool = errors.New("tools: unknown tool")

type Definition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

type Tool interface {
	Definition() Definition

	Execute(ctx context.Context, input json.RawMessage) (string, error)
}

// ValidationError reports arguments that do not match a tool's schema.
type ValidationError struct {
	Tool string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid arguments: %v", e.Tool, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

type registered struct {
	tool   Tool
	schema *jsonschema.Resolved
}

// Registry is a closed, name-keyed set of tools. Arguments are checked
// against the tool's schema before it runs.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registered
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registered)}
}

func (r *Registry) Register(t Tool) error {
	def := t.Definition()
	if def.Name == "" {
		return fmt.Errorf("tools: registering tool without a name")
	}

	var schema jsonschema.Schema
	raw := def.InputSchema
	if len(raw) == 0 {
		raw = json.RawMessage(`{"type":"object"}`)
	}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return fmt.Errorf("tools: parsing schema for %s: %w", def.Name, err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("tools: resolving schema for %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[def.Name]; dup {
		return fmt.Errorf("tools: %s already registered", def.Name)
	}
	r.tools[def.Name] = registered{tool: t, schema: resolved}
	return nil
}

// NewRegistryWith registers every tool or fails on the first bad one.
func NewRegistryWith(tools ...Tool) (*Registry, error) {
	r := NewRegistry()
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t.tool, nil
}

func (r *Registry) HasTool(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Definitions returns every tool definition sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.tool.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Validate checks input against the named tool's schema.
func (r *Registry) Validate(name string, input json.RawMessage) error {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	var instance any
	if err := json.Unmarshal(input, &instance); err != nil {
		return &ValidationError{Tool: name, Err: err}
	}
	if err := t.schema.Validate(instance); err != nil {
		return &ValidationError{Tool: name, Err: err}
	}
	return nil
}

// CallTool validates input and runs the named tool.
func (r *Registry) CallTool(ctx context.Context, name string, input json.RawMessage) (string, error) {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	if err := r.Validate(name, input); err != nil {
		return "", err
	}
	t, err := r.Get(name)
	if err != nil {
		return "", err
	}

	start := time.Now()
	out, err := t.Execute(ctx, input)
	elapsed := time.Since(start)
	status := "ok"
	if err != nil {
		status = "error"
	}
	telemetry.Metrics.ToolExecutions.WithLabelValues(name, status).Inc()
	telemetry.Metrics.ToolDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	telemetry.FromContext(ctx).Debug("tool executed",
		slog.String("tool", name),
		slog.String("status", status),
		slog.Duration("duration", elapsed),
	)
	return out, err
}

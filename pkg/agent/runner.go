package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/surajcodesml/a2a/pkg/a2a"
	"github.com/surajcodesml/a2a/pkg/agent/tools"
)

// ToolRunner answers every message by running exactly one registered tool.
type ToolRunner struct {
	Registry *tools.Registry
	// DefaultTool runs when the message does not name one.
	DefaultTool string
	// DefaultArg wraps plain text input as {DefaultArg: text} for the
	// default tool.
	DefaultArg string
	Author     string
}

// Resolve works out which tool a message asks for and with which
// arguments. The skill in metadata wins, then a leading "<tool> {json}",
// then the default tool.
func (r *ToolRunner) Resolve(msg *a2a.Message, metadata map[string]any) (string, json.RawMessage, error) {
	if msg == nil {
		return "", nil, &a2a.PreconditionError{Field: "message"}
	}
	text := strings.TrimSpace(a2a.ExtractText(*msg))

	prefixed, rest := "", text
	if first, remainder, found := strings.Cut(text, " "); found && r.Registry.HasTool(first) {
		prefixed, rest = first, strings.TrimSpace(remainder)
	} else if r.Registry.HasTool(text) {
		prefixed, rest = text, ""
	}

	name := r.DefaultTool
	if skill, ok := metadata["skill"].(string); ok && r.Registry.HasTool(skill) {
		name = skill
	} else if prefixed != "" {
		name = prefixed
	}
	if name == "" {
		return "", nil, fmt.Errorf("agent: message does not name a tool")
	}

	argsText := text
	if prefixed == name {
		argsText = rest
	}
	if argsText == "" {
		return name, json.RawMessage("{}"), nil
	}
	args, err := r.args(argsText)
	return name, args, err
}

func (r *ToolRunner) args(text string) (json.RawMessage, error) {
	if args, ok := tools.ObjectArgs(text); ok {
		return args, nil
	}
	if r.DefaultArg == "" {
		return nil, fmt.Errorf("agent: expected JSON arguments, got %q", text)
	}
	return json.Marshal(map[string]string{r.DefaultArg: text})
}

// Run emits a progress event, the tool call, then the final answer.
func (r *ToolRunner) Run(ctx context.Context, req RunRequest) (Stream, error) {
	name, args, err := r.Resolve(req.Message, req.Metadata)
	if err != nil {
		return nil, err
	}
	if err := r.Registry.Validate(name, args); err != nil {
		return nil, err
	}

	return NewStepStream(func(ctx context.Context, n int) (Event, error) {
		switch n {
		case 0:
			return Event{Author: r.Author, Parts: []a2a.Part{a2a.TextPart("Running " + name)}}, nil
		case 1:
			return Event{Author: r.Author, ToolCalls: []ToolCall{{Name: name, Input: args}}}, nil
		case 2:
			out, err := r.Registry.CallTool(ctx, name, args)
			if err != nil {
				return Event{}, err
			}
			return Event{Author: r.Author, Parts: []a2a.Part{a2a.TextPart(out)}, Final: true}, nil
		default:
			return Event{}, io.EOF
		}
	}), nil
}

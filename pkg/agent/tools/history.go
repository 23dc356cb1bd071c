package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/surajcodesml/a2a/pkg/audit"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryTool lists recent payment activity from the audit log.
type HistoryTool struct {
	Audit *audit.Logger
}

type historyInput struct {
	Limit int `json:"limit,omitempty"`
}

type HistoryEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	Event     string          `json:"event"`
	Identity  string          `json:"identity,omitempty"`
	TaskID    string          `json:"task_id,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
}

func (t *HistoryTool) Definition() Definition {
	return Definition{
		Name:        "payment_history",
		Description: "List the most recent payment events, newest first.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"limit": {"type": "integer", "minimum": 1, "maximum": 100}
			},
			"additionalProperties": false
		}`),
	}
}

func (t *HistoryTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[historyInput](input, "payment_history")
	if err != nil {
		return "", err
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	entries, err := t.Audit.Payments(ctx, limit)
	if err != nil {
		return "", fmt.Errorf("payment_history: %w", err)
	}

	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		h := HistoryEntry{Timestamp: e.Timestamp, Event: e.EventType, Identity: e.Actor, TaskID: e.TaskID}
		if json.Valid([]byte(e.Detail)) {
			h.Detail = json.RawMessage(e.Detail)
		} else if e.Detail != "" {
			h.Detail, _ = json.Marshal(e.Detail)
		}
		out = append(out, h)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("payment_history: %w", err)
	}
	return string(b), nil
}

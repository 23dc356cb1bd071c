package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/surajcodesml/a2a/pkg/payment"
)

const PayToolName = "pay402_and_fetch"

// Payer runs one payment-backed fetch.
type Payer interface {
	Pay(ctx context.Context, req payment.Request) (*payment.Result, error)
}

// PayTool settles an x402 challenge for a URL and returns the provider body.
type PayTool struct {
	Payer Payer
	// Name overrides PayToolName, for exposing the same tool under another name.
	Name string
}

type payInput struct {
	URL            string `json:"url"`
	AgentToken     string `json:"agent_token,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

func (t *PayTool) name() string {
	if t.Name != "" {
		return t.Name
	}
	return PayToolName
}

func (t *PayTool) Definition() Definition {
	return Definition{
		Name:        t.name(),
		Description: "Fetch a URL that answers HTTP 402, pay the x402 challenge once and return the provider body.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"url": {"type": "string", "minLength": 1, "description": "The paywalled URL"},
				"agent_token": {"type": "string", "description": "Identity of the wallet that pays"},
				"idempotency_key": {"type": "string", "description": "Key that makes the payment at-most-once"}
			},
			"required": ["url"],
			"additionalProperties": false
		}`),
	}
}

func (t *PayTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[payInput](input, t.name())
	if err != nil {
		return "", err
	}
	key := params.IdempotencyKey
	if key == "" {
		key = IdempotencyKeyFromContext(ctx)
	}

	res, err := t.Payer.Pay(ctx, payment.Request{
		URL:            params.URL,
		AgentToken:     params.AgentToken,
		IdempotencyKey: key,
		TaskID:         TaskIDFromContext(ctx),
		ContextID:      ContextIDFromContext(ctx),
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", t.name(), err)
	}
	return res.Body, nil
}

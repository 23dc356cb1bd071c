package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/surajcodesml/a2a/pkg/paywall"
)

// Fetcher is the paywall-aware fetch the requester tools run on.
type Fetcher interface {
	Fetch(ctx context.Context, req paywall.FetchRequest) (string, error)
}

// FetchTool fetches a URL, paying through the relay when it answers 402.
type FetchTool struct {
	Fetcher     Fetcher
	CallerToken string
}

type fetchInput struct {
	URL         string `json:"url"`
	CallerToken string `json:"caller_token,omitempty"`
}

func (t *FetchTool) Definition() Definition {
	return Definition{
		Name:        "fetch_paywalled",
		Description: "Fetch a URL and return its body. If the resource demands payment (HTTP 402) the payment agent settles it first.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"url": {"type": "string", "minLength": 1, "description": "Absolute URL of the resource"},
				"caller_token": {"type": "string", "description": "Wallet token forwarded to the payment agent"}
			},
			"required": ["url"],
			"additionalProperties": false
		}`),
	}
}

func (t *FetchTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[fetchInput](input, "fetch_paywalled")
	if err != nil {
		return "", err
	}
	token := params.CallerToken
	if token == "" {
		token = t.CallerToken
	}
	body, err := t.Fetcher.Fetch(ctx, paywall.FetchRequest{URL: params.URL, CallerToken: token})
	if err != nil {
		return "", fmt.Errorf("fetch_paywalled: %w", err)
	}
	return body, nil
}

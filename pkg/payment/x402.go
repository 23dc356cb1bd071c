package payment

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const (
	X402Version = 1

	SchemeExact = "exact"

	HeaderPayment         = "X-PAYMENT"
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"
)

// PaymentRequired is the body of a 402 response from an x402 provider.
type PaymentRequired struct {
	X402Version int            `json:"x402Version"`
	Error       string         `json:"error,omitempty"`
	Accepts     []Requirements `json:"accepts"`
}

// Requirements describes one way the provider is willing to be paid.
type Requirements struct {
	Scheme            string         `json:"scheme"`
	Network           string         `json:"network"`
	MaxAmountRequired string         `json:"maxAmountRequired"`
	Resource          string         `json:"resource"`
	Description       string         `json:"description,omitempty"`
	MimeType          string         `json:"mimeType,omitempty"`
	PayTo             string         `json:"payTo"`
	MaxTimeoutSeconds int            `json:"maxTimeoutSeconds"`
	Asset             string         `json:"asset"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// ExtraString returns a string value from Extra, or fallback.
func (r Requirements) ExtraString(key, fallback string) string {
	if v, ok := r.Extra[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// Payload is the decoded form of the X-PAYMENT header.
type Payload struct {
	X402Version int             `json:"x402Version"`
	Scheme      string          `json:"scheme"`
	Network     string          `json:"network"`
	Payload     ExactEVMPayload `json:"payload"`
}

type ExactEVMPayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// Authorization is an EIP-3009 transferWithAuthorization message.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// Settlement is the decoded X-PAYMENT-RESPONSE header.
type Settlement struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
}

func EncodePayload(p *Payload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("payment: encoding payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func DecodePayload(header string) (*Payload, error) {
	var p Payload
	if err := decodeHeader(header, &p); err != nil {
		return nil, fmt.Errorf("payment: decoding %s: %w", HeaderPayment, err)
	}
	return &p, nil
}

func DecodeSettlement(header string) (*Settlement, error) {
	var s Settlement
	if err := decodeHeader(header, &s); err != nil {
		return nil, fmt.Errorf("payment: decoding %s: %w", HeaderPaymentResponse, err)
	}
	return &s, nil
}

func EncodeSettlement(s *Settlement) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func decodeHeader(header string, v any) error {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// ParsePaymentRequired reads a 402 body. A body without any accepted
// requirement is an error.
func ParsePaymentRequired(body []byte) (*PaymentRequired, error) {
	var pr PaymentRequired
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, fmt.Errorf("payment: parsing payment requirements: %w", err)
	}
	if len(pr.Accepts) == 0 {
		return nil, fmt.Errorf("%w: provider listed no payment requirements", ErrUnsupportedRequirement)
	}
	return &pr, nil
}

package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/surajcodesml/a2a/pkg/audit"
	"github.com/surajcodesml/a2a/pkg/paywall"
	"github.com/surajcodesml/a2a/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxBodyBytes = 4 << 20
)

type Request struct {
	URL            string
	AgentToken     string
	IdempotencyKey string
	TaskID         string
	ContextID      string
}

type Result struct {
	Body     string
	Paid     bool
	Cached   bool
	Identity string
	// Requirement is the option that was paid, nil for a free resource.
	Requirement *Requirements
	Settlement  *Settlement
}

type Config struct {
	Resolver     *Resolver
	Guard        Guard
	AuditLog     *audit.Logger
	HTTPClient   *http.Client
	Timeout      time.Duration
	MaxBodyBytes int64
	// MaxAmount caps maxAmountRequired in the asset's base units. Nil means
	// no cap.
	MaxAmount *big.Int
	Logger    *slog.Logger
}

type Executor struct {
	resolver  *Resolver
	guard     Guard
	auditLog  *audit.Logger
	http      *http.Client
	timeout   time.Duration
	maxBytes  int64
	maxAmount *big.Int
	logger    *slog.Logger
}

func NewExecutor(cfg Config) *Executor {
	if cfg.Guard == nil {
		cfg.Guard = NewMemoryGuard(DefaultGuardTTL)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Executor{
		resolver:  cfg.Resolver,
		guard:     cfg.Guard,
		auditLog:  cfg.AuditLog,
		http:      cfg.HTTPClient,
		timeout:   cfg.Timeout,
		maxBytes:  cfg.MaxBodyBytes,
		maxAmount: cfg.MaxAmount,
		logger:    telemetry.Component(cfg.Logger, "payment"),
	}
}

// ParseAmount parses a base-unit amount such as "10000". Empty means no cap.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("payment: invalid amount %q", s)
	}
	return v, nil
}

// Pay fetches req.URL, paying the x402 challenge if there is one. The
// payment itself happens at most once per idempotency key.
func (e *Executor) Pay(ctx context.Context, req Request) (res *Result, err error) {
	if req.URL == "" {
		return nil, fmt.Errorf("payment: request without url")
	}

	ctx, span := telemetry.StartSpan(ctx, "payment.pay",
		attribute.String("payment.url", req.URL),
		attribute.String("payment.idempotency_key", req.IdempotencyKey),
	)
	defer func() {
		telemetry.Metrics.PaymentsTotal.WithLabelValues(payOutcome(res, err)).Inc()
		telemetry.EndSpan(span, err)
	}()

	identity, payer, err := e.resolver.Resolve(ctx, req.AgentToken)
	if err != nil {
		e.audit(ctx, audit.EventPaymentFail, req, "", map[string]string{"error": err.Error()})
		return nil, err
	}
	logger := e.logger.With(slog.String("url", req.URL), slog.String("identity", identity))

	if req.IdempotencyKey != "" {
		mark, body, err := e.guard.CheckAndMark(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		switch mark {
		case MarkCached:
			logger.Info("returning cached payment result", slog.String("idempotency_key", req.IdempotencyKey))
			return &Result{Body: body, Paid: true, Cached: true, Identity: identity}, nil
		case MarkInFlight:
			return nil, ErrDuplicateInFlight
		}
	}

	res, err = e.pay(ctx, req, identity, payer)
	if err != nil {
		logger.Warn("payment failed", slog.String("err", err.Error()))
		e.audit(ctx, audit.EventPaymentFail, req, identity, map[string]string{"error": err.Error()})
		if req.IdempotencyKey != "" {
			if ferr := e.guard.Fail(ctx, req.IdempotencyKey); ferr != nil {
				logger.Error("clearing idempotency key", slog.String("err", ferr.Error()))
			}
		}
		return nil, err
	}

	if req.IdempotencyKey != "" {
		if cerr := e.guard.Complete(ctx, req.IdempotencyKey, res.Body); cerr != nil {
			logger.Error("caching payment result", slog.String("err", cerr.Error()))
		}
	}
	return res, nil
}

func (e *Executor) pay(ctx context.Context, req Request, identity string, payer Payer) (*Result, error) {
	status, body, _, err := e.get(ctx, req.URL, "")
	if err != nil {
		return nil, err
	}
	if status >= 200 && status <= 299 {
		e.audit(ctx, audit.EventPaymentFree, req, identity, nil)
		return &Result{Body: string(body), Identity: identity}, nil
	}
	if status != http.StatusPaymentRequired {
		return nil, &paywall.Error{Kind: paywall.KindProvider, URL: req.URL, Status: status, Body: string(body)}
	}

	required, err := ParsePaymentRequired(body)
	if err != nil {
		return nil, err
	}
	requirement, err := e.choose(required.Accepts, payer)
	if err != nil {
		return nil, err
	}

	e.audit(ctx, audit.EventPaymentStart, req, identity, map[string]string{
		"network": requirement.Network,
		"amount":  requirement.MaxAmountRequired,
		"pay_to":  requirement.PayTo,
		"payer":   payer.Address(),
	})

	payload, err := payer.Authorize(ctx, *requirement)
	if err != nil {
		return nil, fmt.Errorf("payment: authorizing payment: %w", err)
	}
	header, err := EncodePayload(payload)
	if err != nil {
		return nil, err
	}

	status, body, respHeader, err := e.get(ctx, req.URL, header)
	if err != nil {
		return nil, err
	}
	if status == http.StatusPaymentRequired {
		reason := "payment not accepted"
		if pr, perr := ParsePaymentRequired(body); perr == nil && pr.Error != "" {
			reason = pr.Error
		}
		return nil, fmt.Errorf("%w: %s", ErrPaymentRejected, reason)
	}
	if status < 200 || status > 299 {
		return nil, &paywall.Error{Kind: paywall.KindProvider, URL: req.URL, Status: status, Body: string(body)}
	}

	res := &Result{Body: string(body), Paid: true, Identity: identity, Requirement: requirement}
	if v := respHeader.Get(HeaderPaymentResponse); v != "" {
		settlement, err := DecodeSettlement(v)
		if err != nil {
			e.logger.Warn("ignoring unreadable settlement header", slog.String("err", err.Error()))
		} else {
			res.Settlement = settlement
		}
	}

	detail := map[string]string{"network": requirement.Network, "amount": requirement.MaxAmountRequired}
	if res.Settlement != nil {
		detail["transaction"] = res.Settlement.Transaction
	}
	e.audit(ctx, audit.EventPaymentSettled, req, identity, detail)
	return res, nil
}

// choose picks the first requirement the payer can satisfy within the cap.
func (e *Executor) choose(accepts []Requirements, payer Payer) (*Requirements, error) {
	var capped bool
	for i := range accepts {
		r := accepts[i]
		if !payer.Supports(r) {
			continue
		}
		if e.maxAmount != nil {
			amount, ok := new(big.Int).SetString(r.MaxAmountRequired, 10)
			if !ok || amount.Cmp(e.maxAmount) > 0 {
				capped = true
				continue
			}
		}
		return &r, nil
	}
	if capped {
		return nil, ErrAmountExceeded
	}
	return nil, ErrUnsupportedRequirement
}

func (e *Executor) get(ctx context.Context, url, paymentHeader string) (int, []byte, http.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, nil, paywall.Classify(ctx, url, err)
	}
	if paymentHeader != "" {
		httpReq.Header.Set(HeaderPayment, paymentHeader)
	}

	resp, err := e.http.Do(httpReq)
	if err != nil {
		return 0, nil, nil, paywall.Classify(ctx, url, err)
	}
	defer resp.Body.Close()

	body, err := paywall.ReadBody(resp.Body, e.maxBytes)
	if errors.Is(err, paywall.ErrBodyTooLarge) {
		return 0, nil, nil, paywall.TooLarge(url, resp.StatusCode, e.maxBytes)
	}
	if err != nil {
		return 0, nil, nil, paywall.Classify(ctx, url, err)
	}
	return resp.StatusCode, body, resp.Header, nil
}

func (e *Executor) audit(ctx context.Context, eventType string, req Request, identity string, detail any) {
	if e.auditLog == nil {
		return
	}
	if detail == nil {
		detail = map[string]string{}
	}
	if m, ok := detail.(map[string]string); ok {
		m["url"] = req.URL
		if req.IdempotencyKey != "" {
			m["idempotency_key"] = req.IdempotencyKey
		}
	}
	if err := e.auditLog.Log(ctx, eventType, req.TaskID, req.ContextID, identity, detail); err != nil {
		e.logger.Error("writing audit entry", slog.String("event", eventType), slog.String("err", err.Error()))
	}
}

func payOutcome(res *Result, err error) string {
	switch {
	case err == nil && res.Cached:
		return "cached"
	case err == nil && res.Paid:
		return "settled"
	case err == nil:
		return "free"
	case errors.Is(err, ErrDuplicateInFlight):
		return "duplicate"
	case errors.Is(err, ErrPaymentRejected):
		return "rejected"
	case errors.Is(err, ErrUnknownIdentity):
		return "unknown_identity"
	case errors.Is(err, ErrUnsupportedRequirement), errors.Is(err, ErrAmountExceeded):
		return "unsupported"
	case errors.Is(err, paywall.ErrBodyTooLarge):
		return "too_large"
	default:
		return "error"
	}
}

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/surajcodesml/a2a/pkg/a2a"
	"github.com/surajcodesml/a2a/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const (
	ModeA2A   = "a2a"
	ModeTools = "tools"
	ModeMCP   = "mcp"

	DefaultTool         = "pay402_and_fetch"
	DefaultTimeout      = 90 * time.Second
	DefaultPollInterval = 500 * time.Millisecond

	IdempotencyHeader = a2a.IdempotencyHeader
)

// PayRequest asks the payment agent to pay for URL and return its body.
// URL is always the exact resource the caller fetched.
type PayRequest struct {
	URL            string
	AgentToken     string
	IdempotencyKey string
}

// Arguments is the payload the payment agent's tool receives.
type Arguments struct {
	URL            string `json:"url"`
	AgentToken     string `json:"agent_token,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type Config struct {
	Endpoint      string
	Mode          string
	Tool          string
	Timeout       time.Duration
	PollInterval  time.Duration
	StrictReplies bool
	MaxReplyBytes int64
	AuthToken     string
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Result is the outcome of one relay. Degraded marks a body recovered from a
// reply that did not have the expected shape.
type Result struct {
	Body     string
	Degraded bool
	TaskID   string
}

type Client struct {
	cfg    Config
	rpc    *a2a.Client
	logger *slog.Logger
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("relay: endpoint is required")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeA2A
	}
	switch cfg.Mode {
	case ModeA2A, ModeTools, ModeMCP:
	default:
		return nil, fmt.Errorf("relay: unknown mode %q", cfg.Mode)
	}
	if cfg.Tool == "" {
		cfg.Tool = DefaultTool
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	opts := []a2a.ClientOption{a2a.WithHTTPClient(cfg.HTTPClient), a2a.WithMaxReplyBytes(cfg.MaxReplyBytes)}
	if cfg.AuthToken != "" {
		opts = append(opts, a2a.WithAuthToken(cfg.AuthToken))
	}
	return &Client{
		cfg:    cfg,
		rpc:    a2a.NewClient(cfg.Endpoint, opts...),
		logger: telemetry.Component(cfg.Logger, "relay"),
	}, nil
}

// Relay sends exactly one payment request and returns the unlocked body. It
// never retries: a second dispatch could pay twice.
func (c *Client) Relay(ctx context.Context, req PayRequest) (string, error) {
	res, err := c.Do(ctx, req)
	if err != nil {
		return "", err
	}
	return res.Body, nil
}

func (c *Client) Do(ctx context.Context, req PayRequest) (res *Result, err error) {
	if req.URL == "" {
		return nil, fmt.Errorf("relay: pay request without url")
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "relay",
		attribute.String("relay.mode", c.cfg.Mode),
		attribute.String("relay.url", req.URL),
		attribute.String("relay.idempotency_key", req.IdempotencyKey),
	)
	defer func() {
		telemetry.Metrics.RelayDuration.Observe(time.Since(start).Seconds())
		telemetry.Metrics.RelayTotal.WithLabelValues(outcome(res, err)).Inc()
		telemetry.EndSpan(span, err)
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	logger := c.logger.With(slog.String("url", req.URL), slog.String("idempotency_key", req.IdempotencyKey))
	logger.Info("relaying payment", slog.String("mode", c.cfg.Mode))

	switch c.cfg.Mode {
	case ModeTools:
		res, err = c.relayTools(ctx, req)
	case ModeMCP:
		res, err = c.relayMCP(ctx, req)
	default:
		res, err = c.relayA2A(ctx, req)
	}
	if err != nil {
		err = c.classify(ctx, err)
		logger.Warn("relay failed", slog.String("err", err.Error()))
		return nil, err
	}
	if res.Degraded {
		logger.Warn("payment agent reply was malformed, returning it verbatim",
			slog.String("task_id", res.TaskID),
			slog.Int("bytes", len(res.Body)),
		)
		if c.cfg.StrictReplies {
			return nil, &Error{Kind: KindMalformedReply, TaskID: res.TaskID, Reason: res.Body}
		}
	}
	return res, nil
}

func (c *Client) relayA2A(ctx context.Context, req PayRequest) (*Result, error) {
	args, err := json.Marshal(Arguments{URL: req.URL, AgentToken: req.AgentToken, IdempotencyKey: req.IdempotencyKey})
	if err != nil {
		return nil, err
	}
	params := a2a.MessageSendParams{
		Message: a2a.Message{
			Role:      a2a.RoleUser,
			MessageID: uuid.NewString(),
			Parts:     []a2a.Part{a2a.TextPart(string(args))},
			Metadata: map[string]any{
				"skill":          c.cfg.Tool,
				"idempotencyKey": req.IdempotencyKey,
			},
		},
		Configuration: &a2a.SendConfiguration{Blocking: true},
	}

	reply, err := c.rpc.Post(ctx, a2a.MethodMessageSend, params, idempotencyHeader(req))
	if err != nil {
		return nil, err
	}
	in := interpretTaskReply(reply.StatusCode, reply.Body)
	for in.verdict == verdictPending {
		in, err = c.poll(ctx, in.taskID)
		if err != nil {
			return nil, err
		}
	}
	return c.settle(in, reply.Body)
}

// poll waits one interval and re-reads the task.
func (c *Client) poll(ctx context.Context, taskID string) (interpretation, error) {
	select {
	case <-ctx.Done():
		return interpretation{}, ctx.Err()
	case <-time.After(c.cfg.PollInterval):
	}
	reply, err := c.rpc.Post(ctx, a2a.MethodTasksGet, a2a.TaskIDParams{ID: taskID}, nil)
	if err != nil {
		return interpretation{}, err
	}
	in := interpretTaskReply(reply.StatusCode, reply.Body)
	if in.verdict == verdictMalformed {
		in.body = string(reply.Body)
	}
	if in.taskID == "" {
		in.taskID = taskID
	}
	return in, nil
}

func (c *Client) relayTools(ctx context.Context, req PayRequest) (*Result, error) {
	params := a2a.ToolCallParams{Name: c.cfg.Tool}
	args, err := json.Marshal(Arguments{URL: req.URL, AgentToken: req.AgentToken, IdempotencyKey: req.IdempotencyKey})
	if err != nil {
		return nil, err
	}
	params.Arguments = args

	reply, err := c.rpc.Post(ctx, a2a.MethodToolsCall, params, idempotencyHeader(req))
	if err != nil {
		return nil, err
	}
	return c.settle(interpretToolReply(reply.StatusCode, reply.Body), reply.Body)
}

func (c *Client) relayMCP(ctx context.Context, req PayRequest) (*Result, error) {
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "x402relay-requester", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &mcpsdk.StreamableClientTransport{
		Endpoint:   c.cfg.Endpoint,
		HTTPClient: c.mcpHTTPClient(req),
		MaxRetries: -1,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("relay: connecting to payment agent: %w", err)
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name: c.cfg.Tool,
		Arguments: Arguments{
			URL:            req.URL,
			AgentToken:     req.AgentToken,
			IdempotencyKey: req.IdempotencyKey,
		},
	})
	if err != nil {
		return nil, err
	}

	var content []a2a.ToolContent
	for _, item := range result.Content {
		if tc, ok := item.(*mcpsdk.TextContent); ok {
			content = append(content, a2a.ToolContent{Type: "text", Text: tc.Text})
		}
	}
	raw, _ := json.Marshal(result)
	return c.settle(interpretToolResult(result.IsError, content), raw)
}

// mcpHTTPClient stamps auth and the idempotency key on every request of the
// MCP session.
func (c *Client) mcpHTTPClient(req PayRequest) *http.Client {
	base := c.cfg.HTTPClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc := *c.cfg.HTTPClient
	hc.Transport = headerTransport{base: base, header: idempotencyHeader(req), token: c.cfg.AuthToken}
	return &hc
}

type headerTransport struct {
	base   http.RoundTripper
	header http.Header
	token  string
}

func (t headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	for k, vs := range t.header {
		for _, v := range vs {
			r.Header.Set(k, v)
		}
	}
	if t.token != "" {
		r.Header.Set("Authorization", "Bearer "+t.token)
	}
	return t.base.RoundTrip(r)
}

// settle turns an interpretation into a result. A malformed reply degrades
// to the raw payload rather than failing.
func (c *Client) settle(in interpretation, raw []byte) (*Result, error) {
	switch in.verdict {
	case verdictCompleted:
		return &Result{Body: in.body, TaskID: in.taskID}, nil
	case verdictFailed:
		return nil, &Error{Kind: KindRemotePaymentFailed, TaskID: in.taskID, Reason: in.reason}
	default:
		body := in.body
		if body == "" {
			body = string(raw)
		}
		return &Result{Body: body, Degraded: true, TaskID: in.taskID}, nil
	}
}

func (c *Client) classify(ctx context.Context, err error) error {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return err
	}
	if errors.Is(err, a2a.ErrReplyTooLarge) {
		return &Error{Kind: KindMalformedReply, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindRelayTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindRelayTimeout, Err: err}
	}
	return fmt.Errorf("relay: dispatching to payment agent: %w", err)
}

func idempotencyHeader(req PayRequest) http.Header {
	h := http.Header{}
	h.Set(IdempotencyHeader, req.IdempotencyKey)
	return h
}

func outcome(res *Result, err error) string {
	var relayErr *Error
	switch {
	case err == nil && res != nil && res.Degraded:
		return "degraded"
	case err == nil:
		return "ok"
	case errors.As(err, &relayErr):
		switch relayErr.Kind {
		case KindRelayTimeout:
			return "timeout"
		case KindRemotePaymentFailed:
			return "failed"
		default:
			return "malformed"
		}
	default:
		return "error"
	}
}

package paywall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/surajcodesml/a2a/pkg/relay"
	"github.com/surajcodesml/a2a/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxBodyBytes = 4 << 20
)

type FetchRequest struct {
	URL         string
	CallerToken string
}

// Relayer settles a payment challenge on the caller's behalf.
type Relayer interface {
	Relay(ctx context.Context, req relay.PayRequest) (string, error)
}

type Config struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	HTTPClient   *http.Client
	Relayer      Relayer
	Logger       *slog.Logger
}

type Client struct {
	http     *http.Client
	timeout  time.Duration
	maxBytes int64
	relayer  Relayer
	logger   *slog.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{
		http:     cfg.HTTPClient,
		timeout:  cfg.Timeout,
		maxBytes: cfg.MaxBodyBytes,
		relayer:  cfg.Relayer,
		logger:   telemetry.Component(cfg.Logger, "paywall"),
	}
}

// Fetch GETs req.URL and returns the body unchanged. A 402 is handed to the
// relayer exactly once with the same URL, and the relay's outcome becomes
// the outcome of the fetch. Nothing is retried.
func (c *Client) Fetch(ctx context.Context, req FetchRequest) (body string, err error) {
	if req.URL == "" {
		return "", fmt.Errorf("paywall: fetch request without url")
	}

	outcomeLabel := "error"
	ctx, span := telemetry.StartSpan(ctx, "paywall.fetch", attribute.String("paywall.url", req.URL))
	defer func() {
		telemetry.Metrics.FetchTotal.WithLabelValues(outcomeLabel).Inc()
		telemetry.EndSpan(span, err)
	}()

	status, body, err := c.get(ctx, req.URL)
	if err != nil {
		outcomeLabel = fetchOutcome(err)
		c.logger.Warn("fetch failed", slog.String("url", req.URL), slog.String("err", err.Error()))
		return "", err
	}

	switch {
	case status == http.StatusPaymentRequired:
		span.SetAttributes(attribute.Bool("paywall.challenged", true))
		if c.relayer == nil {
			outcomeLabel = "provider"
			return "", &Error{Kind: KindProvider, URL: req.URL, Status: status, Body: body}
		}
		c.logger.Info("payment required, relaying", slog.String("url", req.URL))
		body, err = c.relayer.Relay(ctx, relay.PayRequest{URL: req.URL, AgentToken: req.CallerToken})
		if err != nil {
			outcomeLabel = "relay_error"
			return "", err
		}
		outcomeLabel = "paid"
		return body, nil
	case status >= 200 && status <= 299:
		outcomeLabel = "ok"
		return body, nil
	default:
		outcomeLabel = "provider"
		return "", &Error{Kind: KindProvider, URL: req.URL, Status: status, Body: body}
	}
}

func (c *Client) get(ctx context.Context, url string) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", &Error{Kind: KindUnreachable, URL: url, Err: err}
	}
	telemetry.InjectHeaders(ctx, httpReq.Header)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, "", Classify(ctx, url, err)
	}
	defer resp.Body.Close()

	data, err := ReadBody(resp.Body, c.maxBytes)
	if errors.Is(err, ErrBodyTooLarge) {
		return 0, "", TooLarge(url, resp.StatusCode, c.maxBytes)
	}
	if err != nil {
		return 0, "", Classify(ctx, url, err)
	}
	return resp.StatusCode, string(data), nil
}

// ReadBody reads all of r as long as it fits in limit bytes. A longer body
// is ErrBodyTooLarge, never a shortened one.
func ReadBody(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrBodyTooLarge
	}
	return data, nil
}

// TooLarge is the provider error for a response over the body limit.
func TooLarge(url string, status int, limit int64) *Error {
	return &Error{
		Kind:   KindProvider,
		URL:    url,
		Status: status,
		Reason: fmt.Sprintf("body exceeds %d bytes", limit),
		Err:    ErrBodyTooLarge,
	}
}

// Classify maps a transport failure for url to KindTimeout or KindUnreachable.
func Classify(ctx context.Context, url string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, URL: url, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, URL: url, Err: err}
	}
	return &Error{Kind: KindUnreachable, URL: url, Err: err}
}

func fetchOutcome(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	case errors.Is(err, ErrProvider):
		return "provider"
	default:
		return "error"
	}
}

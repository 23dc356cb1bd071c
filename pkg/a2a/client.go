package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/surajcodesml/a2a/pkg/telemetry"
)

const DefaultMaxReplyBytes = 8 << 20

var ErrReplyTooLarge = errors.New("a2a: reply exceeds size limit")

// Client speaks JSON-RPC to another agent's task dispatch endpoint.
type Client struct {
	endpoint  string
	http      *http.Client
	authToken string
	maxReply  int64
	nextID    atomic.Int64
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

func WithAuthToken(token string) ClientOption {
	return func(c *Client) { c.authToken = token }
}

// WithMaxReplyBytes bounds a reply body. Longer replies fail with
// ErrReplyTooLarge instead of being cut short.
func WithMaxReplyBytes(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxReply = n
		}
	}
}

func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{endpoint: endpoint, http: http.DefaultClient, maxReply: DefaultMaxReplyBytes}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Endpoint() string { return c.endpoint }

// RawReply is a dispatch response before any interpretation.
type RawReply struct {
	StatusCode int
	Body       []byte
}

// Post sends one JSON-RPC request and returns the reply as received,
// whatever its HTTP status. Only transport failures are errors.
func (c *Client) Post(ctx context.Context, method string, params any, header http.Header) (*RawReply, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("a2a: encoding params: %w", err)
	}
	body, err := json.Marshal(JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  raw,
	})
	if err != nil {
		return nil, fmt.Errorf("a2a: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("a2a: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	telemetry.InjectHeaders(ctx, req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := c.readReply(resp.Body)
	if err != nil {
		return nil, err
	}
	return &RawReply{StatusCode: resp.StatusCode, Body: data}, nil
}

func (c *Client) readReply(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, c.maxReply+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.maxReply {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrReplyTooLarge, c.maxReply)
	}
	return data, nil
}

// Call performs a JSON-RPC call and decodes its result into out. A JSON-RPC
// error comes back as *JSONRPCError.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	reply, err := c.Post(ctx, method, params, nil)
	if err != nil {
		return err
	}
	if reply.StatusCode < 200 || reply.StatusCode > 299 {
		return fmt.Errorf("a2a: %s returned HTTP %d", method, reply.StatusCode)
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *JSONRPCError   `json:"error"`
	}
	if err := json.Unmarshal(reply.Body, &resp); err != nil {
		return fmt.Errorf("a2a: decoding %s reply: %w", method, err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("a2a: decoding %s result: %w", method, err)
	}
	return nil
}

func (c *Client) SendMessage(ctx context.Context, params MessageSendParams) (*Task, error) {
	var task Task
	if err := c.Call(ctx, MethodMessageSend, params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) GetTask(ctx context.Context, id string) (*Task, error) {
	var task Task
	if err := c.Call(ctx, MethodTasksGet, TaskIDParams{ID: id}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) CancelTask(ctx context.Context, id string) (*Task, error) {
	var task Task
	if err := c.Call(ctx, MethodTasksCancel, TaskIDParams{ID: id}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) CallTool(ctx context.Context, name string, args any) (*ToolCallResult, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("a2a: encoding tool arguments: %w", err)
	}
	var result ToolCallResult
	if err := c.Call(ctx, MethodToolsCall, ToolCallParams{Name: name, Arguments: raw}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FetchCard downloads the agent card published next to the endpoint.
func (c *Client) FetchCard(ctx context.Context) (*AgentCard, error) {
	base, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("a2a: parsing endpoint: %w", err)
	}
	cardURL := base.ResolveReference(&url.URL{Path: cardPath})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cardURL.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("a2a: agent card returned HTTP %d", resp.StatusCode)
	}

	data, err := c.readReply(resp.Body)
	if err != nil {
		return nil, err
	}
	var card AgentCard
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, fmt.Errorf("a2a: decoding agent card: %w", err)
	}
	return &card, nil
}

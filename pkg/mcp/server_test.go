package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/surajcodesml/a2a/pkg/agent/tools"
)

type payStub struct {
	got json.RawMessage
	err error
}

func (p *payStub) Definition() tools.Definition {
	return tools.Definition{
		Name:        tools.PayToolName,
		Description: "pay",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"url":{"type":"string"}},"required":["url"]}`),
	}
}

func (p *payStub) Execute(_ context.Context, input json.RawMessage) (string, error) {
	p.got = input
	if p.err != nil {
		return "", p.err
	}
	return "unlocked body", nil
}

func connect(t *testing.T, caller Caller, aliases map[string]string) *mcpsdk.ClientSession {
	t.Helper()
	server, err := NewServer(ServerConfig{Tools: caller, Aliases: aliases})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ctx := context.Background()
	ct, st := mcpsdk.NewInMemoryTransports()
	ss, err := server.Connect(ctx, st, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func registryWith(t *testing.T, ts ...tools.Tool) *tools.Registry {
	t.Helper()
	reg, err := tools.NewRegistryWith(ts...)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestServerPublishesToolsAndAliases(t *testing.T) {
	cs := connect(t, registryWith(t, &payStub{}), map[string]string{PayAlias: tools.PayToolName})

	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	want := []string{tools.PayToolName, PayAlias}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("tools = %v, want %v", names, want)
	}
}

func TestServerCallsToolThroughAlias(t *testing.T) {
	stub := &payStub{}
	cs := connect(t, registryWith(t, stub), map[string]string{PayAlias: tools.PayToolName})

	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      PayAlias,
		Arguments: map[string]any{"url": "http://provider/vin/1"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected isError result: %+v", res.Content)
	}
	text, ok := res.Content[0].(*mcpsdk.TextContent)
	if !ok || text.Text != "unlocked body" {
		t.Errorf("content = %+v, want unlocked body", res.Content)
	}

	var args map[string]string
	if err := json.Unmarshal(stub.got, &args); err != nil {
		t.Fatalf("tool input: %v", err)
	}
	if args["url"] != "http://provider/vin/1" {
		t.Errorf("url = %q", args["url"])
	}
}

func TestServerReportsToolFailureAsResult(t *testing.T) {
	stub := &payStub{err: errors.New("insufficient funds")}
	cs := connect(t, registryWith(t, stub), nil)

	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      tools.PayToolName,
		Arguments: map[string]any{"url": "http://provider/vin/1"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected isError result")
	}
	text := res.Content[0].(*mcpsdk.TextContent).Text
	if !strings.Contains(text, "insufficient funds") {
		t.Errorf("error text = %q", text)
	}
}

func TestServerValidatesArguments(t *testing.T) {
	stub := &payStub{}
	cs := connect(t, registryWith(t, stub), nil)

	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      tools.PayToolName,
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Error("missing url should be reported as a tool error")
	}
	if stub.got != nil {
		t.Error("tool ran despite invalid arguments")
	}
}

func TestNewServerRejectsBadAliases(t *testing.T) {
	reg := registryWith(t, &payStub{})
	if _, err := NewServer(ServerConfig{Tools: reg, Aliases: map[string]string{"x": "missing"}}); err == nil {
		t.Error("expected error for alias to unknown tool")
	}
	if _, err := NewServer(ServerConfig{Tools: reg, Aliases: map[string]string{tools.PayToolName: tools.PayToolName}}); err == nil {
		t.Error("expected error for alias shadowing a tool")
	}
	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Error("expected error without tools")
	}
}

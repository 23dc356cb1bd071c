package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func serve(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(cfg).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string, header http.Header) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestHealthz(t *testing.T) {
	srv := serve(t, Config{})
	status, body := get(t, srv.URL+"/healthz", nil)
	if status != http.StatusOK || !strings.Contains(body, `"ok"`) {
		t.Errorf("healthz = %d %s", status, body)
	}
}

func TestReadyz(t *testing.T) {
	srv := serve(t, Config{})
	if status, _ := get(t, srv.URL+"/readyz", nil); status != http.StatusOK {
		t.Errorf("readyz without probe = %d, want 200", status)
	}

	failing := serve(t, Config{Ready: func(context.Context) error { return errors.New("database closed") }})
	status, body := get(t, failing.URL+"/readyz", nil)
	if status != http.StatusServiceUnavailable {
		t.Errorf("readyz = %d, want 503", status)
	}
	if !strings.Contains(body, "database closed") {
		t.Errorf("readyz body = %s", body)
	}
}

func TestMetrics(t *testing.T) {
	srv := serve(t, Config{})
	status, body := get(t, srv.URL+"/metrics", nil)
	if status != http.StatusOK {
		t.Fatalf("metrics = %d", status)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("metrics output missing runtime collectors")
	}
}

func TestAgentMountedAtRoot(t *testing.T) {
	agent := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("agent:" + r.URL.Path))
	})
	srv := serve(t, Config{Agent: agent})

	_, body := get(t, srv.URL+"/.well-known/agent.json", nil)
	if body != "agent:/.well-known/agent.json" {
		t.Errorf("body = %q", body)
	}
	if _, body := get(t, srv.URL+"/healthz", nil); !strings.Contains(body, "ok") {
		t.Errorf("healthz shadowed by agent: %q", body)
	}
}

func TestMCPRequiresToken(t *testing.T) {
	mcp := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mcp"))
	})
	srv := serve(t, Config{MCP: mcp, AuthToken: "secret"})

	if status, _ := get(t, srv.URL+MCPPath, nil); status != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", status)
	}
	if status, _ := get(t, srv.URL+MCPPath, http.Header{"Authorization": {"Bearer wrong"}}); status != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", status)
	}
	status, body := get(t, srv.URL+MCPPath, http.Header{"Authorization": {"Bearer secret"}})
	if status != http.StatusOK || body != "mcp" {
		t.Errorf("valid token: %d %q", status, body)
	}
}

func TestMCPAbsentWithoutHandler(t *testing.T) {
	srv := serve(t, Config{})
	if status, _ := get(t, srv.URL+MCPPath, nil); status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}

func TestResolveAddr(t *testing.T) {
	tests := []struct {
		bind string
		port int
		want string
	}{
		{"", 10002, "127.0.0.1:10002"},
		{"loopback", 10003, "127.0.0.1:10003"},
		{"lan", 80, "0.0.0.0:80"},
		{"all", 80, "0.0.0.0:80"},
		{"10.0.0.5", 9000, "10.0.0.5:9000"},
	}
	for _, tt := range tests {
		if got := resolveAddr(tt.bind, tt.port); got != tt.want {
			t.Errorf("resolveAddr(%q, %d) = %q, want %q", tt.bind, tt.port, got, tt.want)
		}
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	g := New(Config{Bind: "loopback", Port: 0})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Start(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Start returned %v after cancel", err)
	}
}

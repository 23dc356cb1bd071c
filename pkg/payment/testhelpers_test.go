package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/surajcodesml/a2a/pkg/audit"
	"github.com/surajcodesml/a2a/pkg/credentials"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testPayTo = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"

type fakePayer struct {
	address string
	calls   atomic.Int32
}

func (p *fakePayer) Address() string { return p.address }

func (p *fakePayer) Supports(req Requirements) bool {
	return req.Scheme == SchemeExact && req.Network == "base-sepolia"
}

func (p *fakePayer) Authorize(_ context.Context, req Requirements) (*Payload, error) {
	p.calls.Add(1)
	return &Payload{
		X402Version: X402Version,
		Scheme:      req.Scheme,
		Network:     req.Network,
		Payload: ExactEVMPayload{
			Signature: "0xsigned",
			Authorization: Authorization{
				From:  p.address,
				To:    req.PayTo,
				Value: req.MaxAmountRequired,
			},
		},
	}, nil
}

type secretMap map[string]string

func (m secretMap) Get(_ context.Context, name string) (string, error) {
	v, ok := m[name]
	if !ok {
		return "", credentials.ErrNotFound
	}
	return v, nil
}

// provider is a fake x402 resource server.
type provider struct {
	mu       sync.Mutex
	payments []*Payload
	gets     atomic.Int32
	accepts  []Requirements
	body     string
	// reject makes the provider answer 402 even with a payment attached.
	reject atomic.Bool
	free   atomic.Bool
}

func newProvider(t *testing.T) (*provider, *httptest.Server) {
	t.Helper()
	p := &provider{
		body: `{"vin":"TESTVIN","title":"clean"}`,
		accepts: []Requirements{{
			Scheme:            SchemeExact,
			Network:           "base-sepolia",
			MaxAmountRequired: "10000",
			PayTo:             testPayTo,
			MaxTimeoutSeconds: 60,
			Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		}},
	}
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	return p, srv
}

func (p *provider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.gets.Add(1)
	if p.free.Load() {
		w.Write([]byte(p.body))
		return
	}

	header := r.Header.Get(HeaderPayment)
	if header == "" || p.reject.Load() {
		w.WriteHeader(http.StatusPaymentRequired)
		resp := PaymentRequired{X402Version: X402Version, Accepts: p.accepts}
		if header != "" {
			resp.Error = "insufficient_funds"
		}
		json.NewEncoder(w).Encode(resp)
		return
	}

	payload, err := DecodePayload(header)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	p.payments = append(p.payments, payload)
	p.mu.Unlock()

	settlement, _ := EncodeSettlement(&Settlement{Success: true, Transaction: "0xfeed", Network: payload.Network, Payer: payload.Payload.Authorization.From})
	w.Header().Set(HeaderPaymentResponse, settlement)
	w.Write([]byte(p.body))
}

func (p *provider) paymentCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payments)
}

func testAudit(t *testing.T) *audit.Logger {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	l, err := audit.New(db)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func testExecutor(t *testing.T, cfg Config) (*Executor, *fakePayer) {
	t.Helper()
	payer := &fakePayer{address: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"}
	secrets := secretMap{WalletKey("default"): "k-default", WalletKey("ops"): "k-ops"}
	cfg.Resolver = NewResolver(secrets, func(string) (Payer, error) { return payer, nil }, "default")
	return NewExecutor(cfg), payer
}

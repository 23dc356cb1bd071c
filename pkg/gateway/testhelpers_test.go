package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/surajcodesml/a2a/pkg/a2a"
	"github.com/surajcodesml/a2a/pkg/audit"
	"github.com/surajcodesml/a2a/pkg/credentials"
	"github.com/surajcodesml/a2a/pkg/mcp"
	"github.com/surajcodesml/a2a/pkg/payment"
	"github.com/surajcodesml/a2a/pkg/paywall"
	"github.com/surajcodesml/a2a/pkg/relay"
	"github.com/surajcodesml/a2a/pkg/store"
	"github.com/surajcodesml/a2a/pkg/wallet"
)

const (
	testKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testPayTo   = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
	testVIN     = "1HGCM82633A004352"
)

// vinProvider is an x402 resource server that verifies the EIP-3009
// signature before releasing a report.
type vinProvider struct {
	mu       sync.Mutex
	payers   []string
	gets     atomic.Int32
	free     atomic.Bool
	hold     chan struct{}
	released sync.Once
}

func (p *vinProvider) requirements(r *http.Request) payment.Requirements {
	return payment.Requirements{
		Scheme:            payment.SchemeExact,
		Network:           "base-sepolia",
		MaxAmountRequired: "10000",
		Resource:          "http://" + r.Host + r.URL.Path,
		PayTo:             testPayTo,
		MaxTimeoutSeconds: 60,
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Extra:             map[string]any{"name": "USDC", "version": "2"},
	}
}

func (p *vinProvider) report(r *http.Request) string {
	vin := strings.TrimPrefix(r.URL.Path, "/vin/")
	return `{"vin":"` + vin + `","accidents":0,"owners":1}`
}

func (p *vinProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.gets.Add(1)
	if p.free.Load() {
		w.Write([]byte(p.report(r)))
		return
	}

	req := p.requirements(r)
	header := r.Header.Get(payment.HeaderPayment)
	if header == "" {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(payment.PaymentRequired{
			X402Version: payment.X402Version,
			Error:       "X-PAYMENT header is required",
			Accepts:     []payment.Requirements{req},
		})
		return
	}

	if p.hold != nil {
		select {
		case <-p.hold:
		case <-r.Context().Done():
			return
		}
	}

	payload, err := payment.DecodePayload(header)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	signer, err := wallet.RecoverSigner(req, payload.Payload.Authorization, payload.Payload.Signature)
	if err != nil || !strings.EqualFold(signer, payload.Payload.Authorization.From) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(payment.PaymentRequired{
			X402Version: payment.X402Version,
			Error:       "invalid_signature",
			Accepts:     []payment.Requirements{req},
		})
		return
	}

	p.mu.Lock()
	p.payers = append(p.payers, signer)
	p.mu.Unlock()

	settlement, _ := payment.EncodeSettlement(&payment.Settlement{
		Success:     true,
		Transaction: "0xabc123",
		Network:     payload.Network,
		Payer:       signer,
	})
	w.Header().Set(payment.HeaderPaymentResponse, settlement)
	w.Write([]byte(p.report(r)))
}

func (p *vinProvider) release() {
	if p.hold != nil {
		p.released.Do(func() { close(p.hold) })
	}
}

func (p *vinProvider) paidBy() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.payers...)
}

type deployment struct {
	provider     *vinProvider
	providerURL  string
	payer        *Agent
	payerURL     string
	payerAudit   *audit.Logger
	requester    *Agent
	requesterURL string
}

type deployOptions struct {
	mode         string
	relayTimeout time.Duration
	hold         bool
}

func openStore(t *testing.T, name string) (*store.Store, *audit.Logger) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), name+".db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	auditLog, err := audit.New(st.DB())
	if err != nil {
		t.Fatal(err)
	}
	return st, auditLog
}

// deploy runs a provider, a payer agent with a real wallet and a requester
// agent relaying to it, each behind its own gateway.
func deploy(t *testing.T, opts deployOptions) *deployment {
	t.Helper()
	ctx := context.Background()
	d := &deployment{provider: &vinProvider{}}
	if opts.hold {
		d.provider.hold = make(chan struct{})
	}
	providerSrv := httptest.NewServer(d.provider)
	t.Cleanup(providerSrv.Close)
	t.Cleanup(d.provider.release)
	d.providerURL = providerSrv.URL

	payerStore, payerAudit := openStore(t, "payer")
	d.payerAudit = payerAudit
	creds, err := credentials.New(payerStore.DB(), "test-master-key")
	if err != nil {
		t.Fatal(err)
	}
	if err := creds.Set(ctx, payment.WalletKey("default"), testKey); err != nil {
		t.Fatal(err)
	}
	payments := payment.NewExecutor(payment.Config{
		Resolver: payment.NewResolver(creds, wallet.NewPayer, "default"),
		Guard:    payment.NewMemoryGuard(time.Minute),
		AuditLog: payerAudit,
		Timeout:  10 * time.Second,
	})
	d.payer, err = NewPayer(PayerConfig{
		URL:        "http://payer.test/",
		Payer:      payments,
		Sessions:   payerStore,
		AuditLog:   payerAudit,
		MCPEnabled: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	payerSrv := httptest.NewServer(New(Config{Agent: d.payer.Handler, MCP: d.payer.MCP}).Handler())
	t.Cleanup(payerSrv.Close)
	d.payerURL = payerSrv.URL

	relayCfg := relay.Config{
		Endpoint:     payerSrv.URL + "/",
		Mode:         opts.mode,
		Timeout:      opts.relayTimeout,
		PollInterval: 20 * time.Millisecond,
	}
	if opts.mode == relay.ModeMCP {
		relayCfg.Endpoint = payerSrv.URL + MCPPath
		relayCfg.Tool = mcp.PayAlias
	}
	relayClient, err := relay.NewClient(relayCfg)
	if err != nil {
		t.Fatal(err)
	}

	requesterStore, requesterAudit := openStore(t, "requester")
	d.requester, err = NewRequester(RequesterConfig{
		URL:              "http://requester.test/",
		Fetcher:          paywall.NewClient(paywall.Config{Timeout: 5 * time.Second, Relayer: relayClient}),
		VehicleReportURL: providerSrv.URL + "/vin/{vin}",
		Sessions:         requesterStore,
		AuditLog:         requesterAudit,
	})
	if err != nil {
		t.Fatal(err)
	}
	requesterSrv := httptest.NewServer(New(Config{Agent: d.requester.Handler}).Handler())
	t.Cleanup(requesterSrv.Close)
	d.requesterURL = requesterSrv.URL
	return d
}

func (d *deployment) ask(t *testing.T, text string) *a2a.Task {
	t.Helper()
	client := a2a.NewClient(d.requesterURL + "/")
	task, err := client.SendMessage(context.Background(), a2a.MessageSendParams{
		Message: a2a.Message{
			Role:      a2a.RoleUser,
			MessageID: uuid.NewString(),
			Parts:     []a2a.Part{a2a.TextPart(text)},
		},
		Configuration: &a2a.SendConfiguration{Blocking: true},
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	return task
}

func artifactText(t *testing.T, task *a2a.Task) string {
	t.Helper()
	if len(task.Artifacts) != 1 {
		t.Fatalf("artifacts = %d, want 1", len(task.Artifacts))
	}
	text, ok := a2a.FirstText(task.Artifacts[0].Parts)
	if !ok {
		t.Fatal("artifact has no text part")
	}
	return text
}

func statusText(task *a2a.Task) string {
	if task.Status.Message == nil {
		return ""
	}
	text, _ := a2a.FirstText(task.Status.Message.Parts)
	return text
}

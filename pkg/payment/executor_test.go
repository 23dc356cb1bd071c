package payment

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/surajcodesml/a2a/pkg/audit"
	"github.com/surajcodesml/a2a/pkg/paywall"
)

func TestPaySettlesChallenge(t *testing.T) {
	prov, srv := newProvider(t)
	auditLog := testAudit(t)
	e, payer := testExecutor(t, Config{AuditLog: auditLog})
	ctx := context.Background()

	res, err := e.Pay(ctx, Request{URL: srv.URL + "/vin/TESTVIN", IdempotencyKey: "k-1", TaskID: "task-1"})
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if res.Body != prov.body {
		t.Errorf("body = %q, want %q", res.Body, prov.body)
	}
	if !res.Paid || res.Identity != "default" {
		t.Errorf("result = %+v", res)
	}
	if res.Settlement == nil || res.Settlement.Transaction != "0xfeed" {
		t.Errorf("settlement = %+v", res.Settlement)
	}
	if res.Requirement == nil || res.Requirement.PayTo != testPayTo {
		t.Errorf("requirement = %+v", res.Requirement)
	}
	if payer.calls.Load() != 1 || prov.paymentCount() != 1 {
		t.Errorf("authorizations = %d, payments = %d, want 1/1", payer.calls.Load(), prov.paymentCount())
	}

	entries, err := auditLog.Payments(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	var types []string
	for _, entry := range entries {
		types = append(types, entry.EventType)
		if entry.TaskID != "task-1" || entry.Actor != "default" {
			t.Errorf("entry ids = %q/%q", entry.TaskID, entry.Actor)
		}
	}
	if len(types) != 2 {
		t.Fatalf("payment events = %v, want start and settled", types)
	}
}

func TestPayFreeResourceDoesNotPay(t *testing.T) {
	prov, srv := newProvider(t)
	prov.free.Store(true)
	e, payer := testExecutor(t, Config{})

	res, err := e.Pay(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if res.Paid {
		t.Error("free resource reported as paid")
	}
	if payer.calls.Load() != 0 {
		t.Errorf("payer called %d times", payer.calls.Load())
	}
}

func TestPayIdempotencyKeyPaysOnce(t *testing.T) {
	prov, srv := newProvider(t)
	e, payer := testExecutor(t, Config{})
	ctx := context.Background()

	first, err := e.Pay(ctx, Request{URL: srv.URL, IdempotencyKey: "same"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Pay(ctx, Request{URL: srv.URL, IdempotencyKey: "same"})
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached || second.Body != first.Body {
		t.Errorf("second = %+v, want cached copy of first", second)
	}
	if payer.calls.Load() != 1 || prov.paymentCount() != 1 {
		t.Errorf("authorizations = %d, payments = %d, want 1/1", payer.calls.Load(), prov.paymentCount())
	}

	if _, err := e.Pay(ctx, Request{URL: srv.URL, IdempotencyKey: "other"}); err != nil {
		t.Fatal(err)
	}
	if prov.paymentCount() != 2 {
		t.Errorf("payments = %d, want 2 after a new key", prov.paymentCount())
	}
}

func TestPayConcurrentDuplicatesPayOnce(t *testing.T) {
	prov, srv := newProvider(t)
	e, _ := testExecutor(t, Config{})

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Pay(context.Background(), Request{URL: srv.URL, IdempotencyKey: "dup"})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil && !errors.Is(err, ErrDuplicateInFlight) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if prov.paymentCount() != 1 {
		t.Errorf("payments = %d, want 1", prov.paymentCount())
	}
}

func TestPayRejectedClearsKey(t *testing.T) {
	prov, srv := newProvider(t)
	prov.reject.Store(true)
	e, payer := testExecutor(t, Config{})
	ctx := context.Background()

	_, err := e.Pay(ctx, Request{URL: srv.URL, IdempotencyKey: "k"})
	if !errors.Is(err, ErrPaymentRejected) {
		t.Fatalf("err = %v, want ErrPaymentRejected", err)
	}

	prov.reject.Store(false)
	if _, err := e.Pay(ctx, Request{URL: srv.URL, IdempotencyKey: "k"}); err != nil {
		t.Fatalf("retry after rejection: %v", err)
	}
	if payer.calls.Load() != 2 {
		t.Errorf("authorizations = %d, want 2", payer.calls.Load())
	}
}

func TestPayUnknownIdentity(t *testing.T) {
	_, srv := newProvider(t)
	e, _ := testExecutor(t, Config{})

	_, err := e.Pay(context.Background(), Request{URL: srv.URL, AgentToken: "ghost"})
	if !errors.Is(err, ErrUnknownIdentity) {
		t.Fatalf("err = %v, want ErrUnknownIdentity", err)
	}
}

func TestPayAgentTokenSelectsIdentity(t *testing.T) {
	_, srv := newProvider(t)
	e, _ := testExecutor(t, Config{})

	res, err := e.Pay(context.Background(), Request{URL: srv.URL, AgentToken: "Bearer ops"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Identity != "ops" {
		t.Errorf("identity = %q, want ops", res.Identity)
	}
}

func TestPayUnsupportedRequirement(t *testing.T) {
	prov, srv := newProvider(t)
	prov.accepts[0].Network = "solana-devnet"
	e, payer := testExecutor(t, Config{})

	_, err := e.Pay(context.Background(), Request{URL: srv.URL})
	if !errors.Is(err, ErrUnsupportedRequirement) {
		t.Fatalf("err = %v, want ErrUnsupportedRequirement", err)
	}
	if payer.calls.Load() != 0 {
		t.Error("payer should not sign an unsupported requirement")
	}
}

func TestPayRespectsMaxAmount(t *testing.T) {
	_, srv := newProvider(t)
	e, payer := testExecutor(t, Config{MaxAmount: big.NewInt(5000)})

	_, err := e.Pay(context.Background(), Request{URL: srv.URL})
	if !errors.Is(err, ErrAmountExceeded) {
		t.Fatalf("err = %v, want ErrAmountExceeded", err)
	}
	if payer.calls.Load() != 0 {
		t.Error("payer should not sign above the cap")
	}
}

func TestPayProviderError(t *testing.T) {
	provSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer provSrv.Close()
	auditLog := testAudit(t)
	e, _ := testExecutor(t, Config{AuditLog: auditLog})

	_, err := e.Pay(context.Background(), Request{URL: provSrv.URL})
	if !errors.Is(err, paywall.ErrProvider) {
		t.Fatalf("err = %v, want provider error", err)
	}
	entries, _ := auditLog.Query(context.Background(), audit.Filter{EventType: audit.EventPaymentFail})
	if len(entries) != 1 {
		t.Errorf("payment_fail entries = %d, want 1", len(entries))
	}
}

func TestPayRejectsOversizedPaidBody(t *testing.T) {
	prov, srv := newProvider(t)
	prov.body = strings.Repeat("x", 2048)
	auditLog := testAudit(t)
	e, _ := testExecutor(t, Config{AuditLog: auditLog, MaxBodyBytes: 1024})
	ctx := context.Background()
	req := Request{URL: srv.URL + "/vin/TESTVIN", IdempotencyKey: "k-big"}

	res, err := e.Pay(ctx, req)
	if !errors.Is(err, paywall.ErrProvider) || !errors.Is(err, paywall.ErrBodyTooLarge) {
		t.Fatalf("Pay = %+v, %v, want body limit error", res, err)
	}
	entries, _ := auditLog.Query(ctx, audit.Filter{EventType: audit.EventPaymentFail})
	if len(entries) != 1 {
		t.Errorf("payment_fail entries = %d, want 1", len(entries))
	}

	// A failed attempt leaves nothing cached under the key.
	prov.body = "small"
	res, err = e.Pay(ctx, req)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.Cached || res.Body != "small" {
		t.Errorf("retry result = %+v, want a fresh body", res)
	}
}

func TestParseAmount(t *testing.T) {
	if v, err := ParseAmount(""); err != nil || v != nil {
		t.Errorf("ParseAmount(\"\") = %v, %v", v, err)
	}
	if v, err := ParseAmount("1000000"); err != nil || v.Int64() != 1000000 {
		t.Errorf("ParseAmount = %v, %v", v, err)
	}
	if _, err := ParseAmount("-1"); err == nil {
		t.Error("expected error for negative amount")
	}
}

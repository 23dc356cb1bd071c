package wallet

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/surajcodesml/a2a/pkg/payment"
)

// Well-known development key, never funded on a real network.
const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func testRequirement() payment.Requirements {
	return payment.Requirements{
		Scheme:            payment.SchemeExact,
		Network:           "base-sepolia",
		MaxAmountRequired: "10000",
		Resource:          "http://localhost:9000/vin/TESTVIN",
		PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		MaxTimeoutSeconds: 60,
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Extra:             map[string]any{"name": "USDC", "version": "2"},
	}
}

func TestNewEVMPayerAddress(t *testing.T) {
	p, err := NewEVMPayer(testKey)
	if err != nil {
		t.Fatalf("NewEVMPayer: %v", err)
	}
	if got := p.Address(); got != "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266" {
		t.Errorf("Address = %s", got)
	}

	if _, err := NewEVMPayer("not-a-key"); err == nil {
		t.Error("expected error for malformed key")
	}
}

func TestAuthorizeSignatureRecoversPayer(t *testing.T) {
	p, err := NewEVMPayer(testKey)
	if err != nil {
		t.Fatal(err)
	}
	fixed := time.Unix(1_700_000_000, 0)
	p.now = func() time.Time { return fixed }

	req := testRequirement()
	payload, err := p.Authorize(context.Background(), req)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	if payload.X402Version != payment.X402Version || payload.Scheme != payment.SchemeExact || payload.Network != "base-sepolia" {
		t.Errorf("payload header fields = %+v", payload)
	}
	auth := payload.Payload.Authorization
	if auth.From != p.Address() {
		t.Errorf("from = %s, want %s", auth.From, p.Address())
	}
	if !strings.EqualFold(auth.To, req.PayTo) {
		t.Errorf("to = %s, want %s", auth.To, req.PayTo)
	}
	if auth.Value != "10000" {
		t.Errorf("value = %s, want 10000", auth.Value)
	}
	if want := strconv.FormatInt(fixed.Add(time.Minute).Unix(), 10); auth.ValidBefore != want {
		t.Errorf("validBefore = %s, want %s", auth.ValidBefore, want)
	}
	if len(auth.Nonce) != 66 {
		t.Errorf("nonce = %q, want 32 hex bytes", auth.Nonce)
	}

	signer, err := RecoverSigner(req, auth, payload.Payload.Signature)
	if err != nil {
		t.Fatalf("RecoverSigner: %v", err)
	}
	if signer != p.Address() {
		t.Errorf("recovered %s, want %s", signer, p.Address())
	}
}

func TestAuthorizeUsesFreshNonces(t *testing.T) {
	p, _ := NewEVMPayer(testKey)
	req := testRequirement()

	a, err := p.Authorize(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Authorize(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if a.Payload.Authorization.Nonce == b.Payload.Authorization.Nonce {
		t.Error("two authorizations share a nonce")
	}
}

func TestTamperedAuthorizationDoesNotRecover(t *testing.T) {
	p, _ := NewEVMPayer(testKey)
	req := testRequirement()
	payload, err := p.Authorize(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}

	auth := payload.Payload.Authorization
	auth.Value = "99999999"
	signer, err := RecoverSigner(req, auth, payload.Payload.Signature)
	if err == nil && signer == p.Address() {
		t.Error("signature still recovers the payer after changing the amount")
	}
}

func TestSupports(t *testing.T) {
	p, _ := NewEVMPayer(testKey)

	if !p.Supports(testRequirement()) {
		t.Error("exact on base-sepolia should be supported")
	}

	req := testRequirement()
	req.Scheme = "upto"
	if p.Supports(req) {
		t.Error("unknown scheme should not be supported")
	}

	req = testRequirement()
	req.Network = "solana"
	if p.Supports(req) {
		t.Error("non-EVM network should not be supported")
	}
	if _, err := p.Authorize(context.Background(), req); !errors.Is(err, payment.ErrUnsupportedRequirement) {
		t.Errorf("Authorize err = %v, want ErrUnsupportedRequirement", err)
	}

	req = testRequirement()
	req.MaxAmountRequired = "ten"
	if p.Supports(req) {
		t.Error("non-numeric amount should not be supported")
	}
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	addr, err := AddressOf(key)
	if err != nil {
		t.Fatalf("AddressOf: %v", err)
	}
	if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
		t.Errorf("address = %q", addr)
	}
}

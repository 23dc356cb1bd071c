package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/surajcodesml/a2a/pkg/credentials"
)

// WalletPrefix namespaces wallet keys inside the credential store.
const WalletPrefix = "wallet:"

// Payer produces a signed payment authorization for a requirement. It never
// broadcasts anything; settlement is the provider's business.
type Payer interface {
	Address() string
	Supports(req Requirements) bool
	Authorize(ctx context.Context, req Requirements) (*Payload, error)
}

// PayerFactory builds a Payer from a stored private key.
type PayerFactory func(privateKey string) (Payer, error)

// SecretSource is the subset of the credential store the resolver needs.
type SecretSource interface {
	Get(ctx context.Context, name string) (string, error)
}

// Resolver maps an agent token to a payer identity and its wallet.
type Resolver struct {
	secrets         SecretSource
	factory         PayerFactory
	defaultIdentity string
}

func NewResolver(secrets SecretSource, factory PayerFactory, defaultIdentity string) *Resolver {
	return &Resolver{secrets: secrets, factory: factory, defaultIdentity: defaultIdentity}
}

// Resolve returns the identity name and its payer. An empty token selects
// the default identity.
func (r *Resolver) Resolve(ctx context.Context, agentToken string) (string, Payer, error) {
	identity := strings.TrimSpace(strings.TrimPrefix(agentToken, "Bearer "))
	if identity == "" {
		identity = r.defaultIdentity
	}
	if identity == "" {
		return "", nil, fmt.Errorf("%w: no agent token and no default identity", ErrUnknownIdentity)
	}

	key, err := r.secrets.Get(ctx, WalletKey(identity))
	if errors.Is(err, credentials.ErrNotFound) {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownIdentity, identity)
	}
	if err != nil {
		return "", nil, fmt.Errorf("payment: loading wallet for %q: %w", identity, err)
	}

	payer, err := r.factory(key)
	if err != nil {
		return "", nil, fmt.Errorf("payment: loading wallet for %q: %w", identity, err)
	}
	return identity, payer, nil
}

func WalletKey(identity string) string {
	return WalletPrefix + identity
}

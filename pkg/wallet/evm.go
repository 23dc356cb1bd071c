package wallet

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/surajcodesml/a2a/pkg/payment"
)

// ChainIDs lists the networks the payer can sign for.
var ChainIDs = map[string]int64{
	"base":           8453,
	"base-sepolia":   84532,
	"avalanche":      43114,
	"avalanche-fuji": 43113,
}

// validAfterSkew backdates authorizations to tolerate clock drift between
// the payer and the facilitator.
const validAfterSkew = 10 * time.Minute

type EVMPayer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	now     func() time.Time
	nonce   func() ([32]byte, error)
}

// NewEVMPayer loads a hex private key, with or without a 0x prefix.
func NewEVMPayer(hexKey string) (*EVMPayer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("wallet: parsing private key: %w", err)
	}
	return &EVMPayer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		now:     time.Now,
		nonce:   randomNonce,
	}, nil
}

// NewPayer adapts NewEVMPayer to payment.PayerFactory.
func NewPayer(hexKey string) (payment.Payer, error) {
	return NewEVMPayer(hexKey)
}

// GenerateKey returns a fresh hex-encoded private key.
func GenerateKey() (string, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("wallet: generating key: %w", err)
	}
	return hexutil.Encode(crypto.FromECDSA(key)), nil
}

// AddressOf returns the checksummed address of a hex private key.
func AddressOf(hexKey string) (string, error) {
	p, err := NewEVMPayer(hexKey)
	if err != nil {
		return "", err
	}
	return p.Address(), nil
}

func (p *EVMPayer) Address() string {
	return p.address.Hex()
}

func (p *EVMPayer) Supports(req payment.Requirements) bool {
	if req.Scheme != payment.SchemeExact {
		return false
	}
	if _, ok := ChainIDs[req.Network]; !ok {
		return false
	}
	if !common.IsHexAddress(req.PayTo) || !common.IsHexAddress(req.Asset) {
		return false
	}
	_, ok := new(big.Int).SetString(req.MaxAmountRequired, 10)
	return ok
}

// Authorize signs an EIP-3009 transferWithAuthorization for the full
// amount the requirement asks for.
func (p *EVMPayer) Authorize(_ context.Context, req payment.Requirements) (*payment.Payload, error) {
	if !p.Supports(req) {
		return nil, fmt.Errorf("%w: %s on %s", payment.ErrUnsupportedRequirement, req.Scheme, req.Network)
	}

	nonce, err := p.nonce()
	if err != nil {
		return nil, fmt.Errorf("wallet: generating nonce: %w", err)
	}
	timeout := time.Duration(req.MaxTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	now := p.now()

	auth := payment.Authorization{
		From:        p.address.Hex(),
		To:          common.HexToAddress(req.PayTo).Hex(),
		Value:       req.MaxAmountRequired,
		ValidAfter:  strconv.FormatInt(now.Add(-validAfterSkew).Unix(), 10),
		ValidBefore: strconv.FormatInt(now.Add(timeout).Unix(), 10),
		Nonce:       hexutil.Encode(nonce[:]),
	}

	hash, err := AuthorizationHash(req, auth)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(hash, p.key)
	if err != nil {
		return nil, fmt.Errorf("wallet: signing authorization: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	return &payment.Payload{
		X402Version: payment.X402Version,
		Scheme:      req.Scheme,
		Network:     req.Network,
		Payload: payment.ExactEVMPayload{
			Signature:     hexutil.Encode(sig),
			Authorization: auth,
		},
	}, nil
}

// AuthorizationHash is the EIP-712 digest of auth under the token domain
// named by req.
func AuthorizationHash(req payment.Requirements, auth payment.Authorization) ([]byte, error) {
	chainID, ok := ChainIDs[req.Network]
	if !ok {
		return nil, fmt.Errorf("%w: network %q", payment.ErrUnsupportedRequirement, req.Network)
	}

	typed := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": {
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              req.ExtraString("name", "USDC"),
			Version:           req.ExtraString("version", "2"),
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: common.HexToAddress(req.Asset).Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          auth.To,
			"value":       auth.Value,
			"validAfter":  auth.ValidAfter,
			"validBefore": auth.ValidBefore,
			"nonce":       auth.Nonce,
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return nil, fmt.Errorf("wallet: hashing typed data: %w", err)
	}
	return hash, nil
}

// RecoverSigner returns the address that produced sig over auth.
func RecoverSigner(req payment.Requirements, auth payment.Authorization, sig string) (string, error) {
	raw, err := hexutil.Decode(sig)
	if err != nil {
		return "", fmt.Errorf("wallet: decoding signature: %w", err)
	}
	if len(raw) != crypto.SignatureLength {
		return "", fmt.Errorf("wallet: signature has %d bytes", len(raw))
	}
	raw[crypto.RecoveryIDOffset] -= 27

	hash, err := AuthorizationHash(req, auth)
	if err != nil {
		return "", err
	}
	pub, err := crypto.SigToPub(hash, raw)
	if err != nil {
		return "", fmt.Errorf("wallet: recovering signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

func randomNonce() ([32]byte, error) {
	var n [32]byte
	_, err := rand.Read(n[:])
	return n, err
}

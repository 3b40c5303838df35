// Package payment constructs transfer authorizations for buyer wallets to
// sign and confirms the resulting transactions against the chain.
package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/groundscore/commerce_layer/internal/apperr"
	"github.com/groundscore/commerce_layer/internal/config"
	"github.com/groundscore/commerce_layer/internal/domain/order"
	"github.com/groundscore/commerce_layer/internal/domain/payment"
	"github.com/groundscore/commerce_layer/internal/domain/shop"
)

// Authorization validity window: a small backdate absorbs clock skew, and
// the buyer has a day to submit before the signature expires.
const (
	validitySkew = 10 * time.Second
	validityTTL  = 24 * time.Hour
)

// Builder assembles unsigned EIP-3009 transfer authorizations plus the
// EIP-712 typed-data envelope the wallet needs. It never signs.
type Builder struct {
	chain  config.ChainConfig
	nonces NonceRegistry
	now    func() time.Time
}

// NewBuilder creates a Builder for the configured settlement token. A nil
// registry disables nonce-reuse tracking (tests only).
func NewBuilder(chain config.ChainConfig, nonces NonceRegistry) *Builder {
	if nonces == nil {
		nonces = NewMemoryNonceRegistry()
	}
	return &Builder{chain: chain, nonces: nonces, now: time.Now}
}

// Build produces the signing payload for the order's current quoted total.
// The payee comes from the shop's chain-qualified fund recipient; a shop
// without one cannot take payments.
func (b *Builder) Build(ctx context.Context, o *order.Order, sh *shop.Shop, payerAddress string) (payment.SigningPayload, error) {
	if !common.IsHexAddress(payerAddress) {
		return payment.SigningPayload{}, apperr.BadRequest("invalid payer address %q", payerAddress)
	}
	payee, err := payeeAddress(sh)
	if err != nil {
		return payment.SigningPayload{}, err
	}

	total := o.Total()
	if total <= 0 {
		return payment.SigningPayload{}, apperr.BadRequest("order %s has no payable total", o.ID)
	}

	nonce, err := b.freshNonce(ctx, payerAddress)
	if err != nil {
		return payment.SigningPayload{}, err
	}

	now := b.now()
	auth := payment.TransferAuthorization{
		From:        common.HexToAddress(payerAddress).Hex(),
		To:          payee,
		Value:       strconv.FormatInt(total, 10),
		ValidAfter:  strconv.FormatInt(now.Add(-validitySkew).Unix(), 10),
		ValidBefore: strconv.FormatInt(now.Add(validityTTL).Unix(), 10),
		Nonce:       nonce,
	}

	return payment.SigningPayload{
		Domain: payment.TypedDataDomain{
			Name:              b.chain.TokenName,
			Version:           b.chain.TokenVersion,
			ChainID:           b.chain.ChainID.String(),
			VerifyingContract: common.HexToAddress(b.chain.TokenAddress).Hex(),
		},
		Types:       TransferWithAuthorizationTypes(),
		PrimaryType: "TransferWithAuthorization",
		Message:     auth,
	}, nil
}

// freshNonce draws 32 random bytes and registers them for the payer. A
// collision with an already-issued nonce is retried once; two collisions in
// a row means the registry is misbehaving, not the randomness.
func (b *Builder) freshNonce(ctx context.Context, payer string) (string, error) {
	for attempt := 0; attempt < 2; attempt++ {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate nonce: %w", err)
		}
		nonce := "0x" + hex.EncodeToString(buf)
		err := b.nonces.Register(ctx, payer, nonce)
		if err == nil {
			return nonce, nil
		}
		if err != ErrNonceReused {
			return "", apperr.ExternalService(err, "nonce registry unavailable")
		}
	}
	return "", apperr.Conflict("nonce already issued for payer %s", payer)
}

// payeeAddress parses the shop's "chain:address" fund recipient.
func payeeAddress(sh *shop.Shop) (string, error) {
	recipient := strings.TrimSpace(sh.FundRecipient)
	if recipient == "" {
		return "", apperr.BadRequest("shop %s has no fund recipient configured", sh.ID)
	}
	if idx := strings.LastIndex(recipient, ":"); idx >= 0 {
		recipient = recipient[idx+1:]
	}
	if !common.IsHexAddress(recipient) {
		return "", apperr.BadRequest("shop %s fund recipient %q is not a valid address", sh.ID, recipient)
	}
	return common.HexToAddress(recipient).Hex(), nil
}

// TransferWithAuthorizationTypes returns the EIP-712 type table for
// EIP-3009 transferWithAuthorization.
func TransferWithAuthorizationTypes() map[string][]payment.TypedDataField {
	return map[string][]payment.TypedDataField{
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
	}
}

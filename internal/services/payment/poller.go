package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/groundscore/commerce_layer/internal/apperr"
	"github.com/groundscore/commerce_layer/internal/metrics"
	"github.com/groundscore/commerce_layer/pkg/logger"
)

// Outcome is the three-valued result of a confirmation attempt. Callers
// must distinguish "confirmed failed" from "not yet confirmed": the first
// fails the order permanently, the second leaves it retryable.
type Outcome string

const (
	OutcomeConfirmed     Outcome = "confirmed"
	OutcomeReverted      Outcome = "reverted"
	OutcomeIndeterminate Outcome = "indeterminate"
)

// ReceiptClient reads transaction receipts from the chain. Satisfied by
// *ethclient.Client.
type ReceiptClient interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// Poller checks a claimed payment transaction against the chain with a
// bounded retry budget.
type Poller struct {
	client   ReceiptClient
	attempts int
	backoff  time.Duration
	log      *logger.Logger
}

// NewPoller builds a poller. Non-positive attempts or backoff fall back to
// the defaults (3 attempts, 2s apart).
func NewPoller(client ReceiptClient, attempts int, backoff time.Duration, log *logger.Logger) *Poller {
	if log == nil {
		log = logger.NewDefault("payment-poller")
	}
	if attempts <= 0 {
		attempts = 3
	}
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	return &Poller{client: client, attempts: attempts, backoff: backoff, log: log}
}

// Confirm looks the hash up until a receipt appears or the budget runs out.
// A receipt with a failed status is Reverted immediately; an exhausted
// budget is Indeterminate, not a revert. Context cancellation stops the
// wait between attempts.
func (p *Poller) Confirm(ctx context.Context, txHash string) (Outcome, error) {
	if !isTxHash(txHash) {
		return OutcomeIndeterminate, apperr.BadRequest("invalid transaction hash %q", txHash)
	}
	hash := common.HexToHash(txHash)
	started := time.Now()

	for attempt := 1; attempt <= p.attempts; attempt++ {
		receipt, err := p.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			outcome := OutcomeConfirmed
			if receipt.Status != ethtypes.ReceiptStatusSuccessful {
				outcome = OutcomeReverted
			}
			metrics.PaymentConfirmation(string(outcome), time.Since(started))
			p.log.WithField("tx_hash", txHash).
				WithField("attempt", attempt).
				WithField("outcome", string(outcome)).
				Info("transaction receipt resolved")
			return outcome, nil
		case errors.Is(err, ethereum.NotFound):
			// Not mined yet; keep polling.
		case ctx.Err() != nil:
			metrics.PaymentConfirmation(string(OutcomeIndeterminate), time.Since(started))
			return OutcomeIndeterminate, ctx.Err()
		default:
			metrics.PaymentConfirmation(string(OutcomeIndeterminate), time.Since(started))
			return OutcomeIndeterminate, apperr.ExternalService(err, "chain client failed reading receipt")
		}

		if attempt < p.attempts {
			select {
			case <-ctx.Done():
				metrics.PaymentConfirmation(string(OutcomeIndeterminate), time.Since(started))
				return OutcomeIndeterminate, ctx.Err()
			case <-time.After(p.backoff):
			}
		}
	}

	metrics.PaymentConfirmation(string(OutcomeIndeterminate), time.Since(started))
	p.log.WithField("tx_hash", txHash).
		WithField("attempts", p.attempts).
		Warn("retry budget exhausted waiting for receipt")
	return OutcomeIndeterminate, nil
}

func isTxHash(s string) bool {
	if !strings.HasPrefix(s, "0x") || len(s) != 66 {
		return false
	}
	for _, c := range s[2:] {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

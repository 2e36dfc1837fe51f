package services

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

type VerdictStatus string

const (
	VerdictConfirmed     VerdictStatus = "confirmed"
	VerdictUnderpaid     VerdictStatus = "underpaid"
	VerdictNotFound      VerdictStatus = "not_found"
	VerdictPending       VerdictStatus = "pending"
	VerdictProviderError VerdictStatus = "provider_error"
)

// Verdict is the outcome of checking a deposit claim against the chain.
type Verdict struct {
	Status      VerdictStatus
	ActualMinor int64
	Detail      string
}

// ChainTransfer is the narrow view of an on-chain transfer the verifier
// needs. ToAddress is empty when the transaction carries no transfer of the
// expected token.
type ChainTransfer struct {
	Found         bool
	ToAddress     string
	FromAddress   string
	AmountMinor   int64
	Confirmations int64
}

type ChainLookup interface {
	Lookup(ctx context.Context, txid string) (ChainTransfer, error)
}

type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

type VerifierConfig struct {
	WalletAddress    string
	MinConfirmations int64
	ToleranceMinor   int64
	Retry            RetryPolicy
}

// Verifier validates a claimed transaction hash against the chain. It holds
// no locks and mutates nothing; retrying and sleeping happen only between
// lookup attempts, and only for provider failures.
type Verifier struct {
	chain ChainLookup
	cfg   VerifierConfig
}

func NewVerifier(chain ChainLookup, cfg VerifierConfig) *Verifier {
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = time.Second
	}
	return &Verifier{chain: chain, cfg: cfg}
}

func (v *Verifier) Verify(ctx context.Context, txid string, expectedMinor int64) Verdict {
	for attempt := 1; ; attempt++ {
		transfer, err := v.chain.Lookup(ctx, txid)
		if err == nil {
			return v.judge(transfer, expectedMinor)
		}
		if attempt >= v.cfg.Retry.MaxAttempts {
			return Verdict{Status: VerdictProviderError, Detail: err.Error()}
		}
		if waitErr := sleepBetweenAttempts(ctx, attempt, v.cfg.Retry.BaseDelay); waitErr != nil {
			return Verdict{Status: VerdictProviderError, Detail: waitErr.Error()}
		}
	}
}

func (v *Verifier) judge(transfer ChainTransfer, expectedMinor int64) Verdict {
	if !transfer.Found {
		return Verdict{Status: VerdictNotFound, Detail: "transaction not found"}
	}
	if !strings.EqualFold(transfer.ToAddress, v.cfg.WalletAddress) {
		return Verdict{Status: VerdictNotFound, Detail: "no transfer to deposit address"}
	}
	if transfer.Confirmations < v.cfg.MinConfirmations {
		return Verdict{Status: VerdictPending, ActualMinor: transfer.AmountMinor, Detail: "awaiting confirmations"}
	}
	// expectedMinor == 0 means the claim carries no amount expectation.
	if expectedMinor > 0 && transfer.AmountMinor+v.cfg.ToleranceMinor < expectedMinor {
		return Verdict{Status: VerdictUnderpaid, ActualMinor: transfer.AmountMinor, Detail: "transfer below claimed amount"}
	}
	return Verdict{Status: VerdictConfirmed, ActualMinor: transfer.AmountMinor}
}

func sleepBetweenAttempts(ctx context.Context, attempt int, base time.Duration) error {
	backoff := base << uint(attempt-1)
	jitter := time.Duration(rand.Int63n(int64(base)/2 + 1))
	timer := time.NewTimer(backoff + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Package tokens computes token balances from the ledger and records
// spends.
//
// Balances are never stored: a balance is BaseGrant plus the sum of
// token_delta over the entries in scope.
package tokens

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/riskledger/internal/domain"
	"github.com/roach88/riskledger/internal/ledger"
	"github.com/roach88/riskledger/internal/mirror"
	"github.com/roach88/riskledger/internal/observability"
)

// BaseGrant is the balance before any entry.
const BaseGrant int64 = 100

// GlobalEventKey marks spends not tied to one event.
const GlobalEventKey = "GLOBAL"

// Tier is a priced kind of analysis.
type Tier string

const (
	TierBase        Tier = "base"
	TierDeep        Tier = "deep"
	TierLiveSession Tier = "live"
	TierComparison  Tier = "comparison"
)

var tierCosts = map[Tier]int64{
	TierBase:        1,
	TierDeep:        2,
	TierLiveSession: 2,
	TierComparison:  4,
}

// CostOf returns the token price of a tier.
func CostOf(tier Tier) (int64, error) {
	cost, ok := tierCosts[Tier(strings.ToLower(string(tier)))]
	if !ok {
		return 0, domain.NewInvalidInput(fmt.Sprintf("unknown tier %q", tier))
	}
	return cost, nil
}

// Scope narrows a balance. The zero value is the global balance.
type Scope struct {
	EventKey string
	Actor    string
}

// SpendRequest describes one debit.
type SpendRequest struct {
	Amount   int64
	Reason   string
	EventKey string // default GlobalEventKey
	Actor    string
	Metadata map[string]string
}

// Appender is the subset of the ledger the wallet writes through.
type Appender interface {
	AppendIf(ctx context.Context, rec ledger.Record, guard ledger.Guard) (string, error)
}

// Summer sums token deltas.
type Summer interface {
	TokenSum(ctx context.Context, f mirror.TokenFilter) (int64, error)
}

// Wallet reads balances and records spends.
type Wallet struct {
	ledger  Appender
	sums    Summer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Wallet. A nil logger uses slog.Default(); metrics may be nil.
func New(l Appender, s Summer, logger *slog.Logger, metrics *observability.Metrics) *Wallet {
	if logger == nil {
		logger = slog.Default()
	}
	return &Wallet{ledger: l, sums: s, logger: logger, metrics: metrics}
}

// Balance returns BaseGrant plus the token deltas in scope.
func (w *Wallet) Balance(ctx context.Context, scope Scope) (int64, error) {
	sum, err := w.sums.TokenSum(ctx, mirror.TokenFilter{EventKey: scope.EventKey, Actor: scope.Actor})
	if err != nil {
		return 0, err
	}
	return BaseGrant + sum, nil
}

// Spend debits req.Amount if the global balance covers it and returns the
// TOKENS_SPENT entry ID. A refused spend writes nothing.
func (w *Wallet) Spend(ctx context.Context, req SpendRequest) (string, error) {
	if req.Amount <= 0 {
		return "", domain.NewInvalidInput(fmt.Sprintf("spend amount must be positive, got %d", req.Amount))
	}
	key := req.EventKey
	if key == "" {
		key = GlobalEventKey
	}

	var balance int64
	id, err := w.ledger.AppendIf(ctx, ledger.Record{
		EventKey:   key,
		Actor:      req.Actor,
		TokenDelta: -req.Amount,
		Payload: ledger.TokensSpent{
			Amount:   req.Amount,
			Reason:   req.Reason,
			Metadata: req.Metadata,
		},
	}, func(ctx context.Context) error {
		var err error
		if balance, err = w.Balance(ctx, Scope{}); err != nil {
			return err
		}
		if req.Amount > balance {
			return domain.NewInsufficientTokens(key, fmt.Sprintf("spend of %d exceeds balance %d", req.Amount, balance))
		}
		return nil
	})
	if domain.IsKind(err, domain.KindInsufficientTokens) {
		w.metrics.ObserveSpendRejection()
		w.logger.Warn("spend rejected", "event_key", key, "amount", req.Amount, "balance", balance)
		return "", err
	}
	if err != nil {
		return "", err
	}

	w.logger.Info("tokens spent", "event_key", key, "amount", req.Amount, "balance", balance-req.Amount)
	return id, nil
}

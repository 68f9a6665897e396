// Package source provides the non-exchange balance sources: bank/fiat
// holdings and on-chain accounts.
package source

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/balance-tracker/internal/types"
)

// FiatRater is the fiat-rate collaborator.
type FiatRater interface {
	QueryFiatPair(ctx context.Context, base, quote string) (decimal.Decimal, error)
}

// Pricer resolves USD prices for crypto assets.
type Pricer interface {
	QueryUSDPrice(ctx context.Context, asset types.Asset) (decimal.Decimal, error)
}

// Banks values statically configured fiat holdings through the fiat-rate
// collaborator. It produces the "banks" source entry.
type Banks struct {
	holdings map[types.Asset]decimal.Decimal
	rater    FiatRater
}

// NewBanks parses the configured holdings ("USD" -> "500") into amounts.
func NewBanks(holdings map[string]string, rater FiatRater) (*Banks, error) {
	parsed := make(map[types.Asset]decimal.Decimal, len(holdings))
	for currency, raw := range holdings {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid fiat holding %s=%q: %w", currency, raw, err)
		}
		parsed[types.Asset(currency)] = amount
	}
	return &Banks{holdings: parsed, rater: rater}, nil
}

// QueryBalances values each fiat holding in USD.
func (b *Banks) QueryBalances(ctx context.Context) (types.AssetBalances, error) {
	out := make(types.AssetBalances, len(b.holdings))
	for currency, amount := range b.holdings {
		rate, err := b.rater.QueryFiatPair(ctx, string(currency), "USD")
		if err != nil {
			return nil, err
		}
		out[currency] = types.Balance{
			Amount:   amount,
			USDValue: amount.Mul(rate),
		}
	}
	return out, nil
}

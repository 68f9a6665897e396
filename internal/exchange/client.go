// Package exchange contains the exchange client implementations and the
// registry that owns their lifecycle.
package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/balance-tracker/internal/credentials"
	"github.com/balance-tracker/internal/errors"
	"github.com/balance-tracker/internal/types"
)

// Client is the capability set every exchange client implements.
type Client interface {
	// Name returns the exchange identifier.
	Name() types.ExchangeName

	// ValidateAPIKey checks the credential against the exchange by issuing
	// an authenticated request. A nil error means the key is usable.
	ValidateAPIKey(ctx context.Context) error

	// QueryBalances returns the exchange's current per-asset holdings with
	// their USD valuation.
	QueryBalances(ctx context.Context) (types.AssetBalances, error)
}

// PeriodicSyncer is implemented by clients that want a turn in the main
// loop's sequential sync cycle.
type PeriodicSyncer interface {
	PeriodicSync(ctx context.Context) error
}

// AssetPricer resolves the current USD price of an asset. Exchange clients
// use it to attach usd_value to raw amounts.
type AssetPricer interface {
	QueryUSDPrice(ctx context.Context, asset types.Asset) (decimal.Decimal, error)
}

// ClientFactory constructs a client for a supported exchange name.
type ClientFactory func(name types.ExchangeName, cred credentials.Credential) (Client, error)

// NewClientFactory returns the production factory over the closed exchange
// set. Dispatch is by enumerated name, never by dynamic lookup.
func NewClientFactory(pricer AssetPricer) ClientFactory {
	return func(name types.ExchangeName, cred credentials.Credential) (Client, error) {
		switch name {
		case types.ExchangeKraken:
			return NewKraken(cred, pricer), nil
		case types.ExchangePoloniex:
			return NewPoloniex(cred, pricer), nil
		case types.ExchangeBittrex:
			return NewBittrex(cred, pricer), nil
		case types.ExchangeBinance:
			return NewBinance(cred, pricer), nil
		default:
			return nil, errors.NewUnsupportedExchangeError(string(name))
		}
	}
}

// Package portfolio implements the balance aggregation and valuation engine:
// merging per-source balances, computing net worth and percentage breakdowns,
// and overlaying cost-basis data.
package portfolio

import (
	"github.com/balance-tracker/internal/types"
)

// Combine merges per-source balance maps into one entry per distinct asset,
// summing amount and usd_value across the sources holding that asset. The
// merge is commutative and associative, so the result does not depend on
// source iteration order. Empty sources contribute nothing.
func Combine(sources types.SourceBalances) map[types.Asset]types.Balance {
	combined := make(map[types.Asset]types.Balance)
	for _, balances := range sources {
		for asset, balance := range balances {
			current := combined[asset]
			combined[asset] = types.Balance{
				Amount:   current.Amount.Add(balance.Amount),
				USDValue: current.USDValue.Add(balance.USDValue),
			}
		}
	}
	return combined
}

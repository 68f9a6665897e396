package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/balance-tracker/internal/types"
)

var hundred = decimal.NewFromInt(100)

// percentageOf returns value as a share of total, expressed as a percentage
// rounded to two decimals. A zero total yields zero for every share: an
// empty portfolio has no meaningful breakdown and must not fault.
func percentageOf(value, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return value.Div(total).Mul(hundred).Round(2)
}

// Valuate computes the portfolio snapshot for the given sources: combined
// per-asset balances with their share of net value, the per-location
// breakdown, and total net worth in USD.
//
// net_usd always equals the sum of usd_value over the combined assets, and
// the per-location usd_values sum to the same figure.
func Valuate(sources types.SourceBalances) *types.PortfolioSnapshot {
	combined := Combine(sources)

	netUSD := decimal.Zero
	for _, balance := range combined {
		netUSD = netUSD.Add(balance.USDValue)
	}

	snapshot := &types.PortfolioSnapshot{
		Combined: make(map[types.Asset]*types.CombinedBalance, len(combined)),
		Location: make(map[types.SourceName]types.LocationBalance, len(sources)),
		NetUSD:   netUSD,
	}

	for source, balances := range sources {
		total := decimal.Zero
		for _, balance := range balances {
			total = total.Add(balance.USDValue)
		}
		snapshot.Location[source] = types.LocationBalance{
			USDValue:             total,
			PercentageOfNetValue: percentageOf(total, netUSD),
		}
	}

	for asset, balance := range combined {
		snapshot.Combined[asset] = &types.CombinedBalance{
			Amount:               balance.Amount,
			USDValue:             balance.USDValue,
			PercentageOfNetValue: percentageOf(balance.USDValue, netUSD),
		}
	}

	return snapshot
}

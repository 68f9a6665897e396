package portfolio

import (
	"github.com/balance-tracker/internal/types"
)

// PercentChangeUndefined marks a percent change that cannot be computed
// because the average buy value is zero.
const PercentChangeUndefined = "undefined"

// TaxReporter is the tax-accounting collaborator. Details reports per-asset
// cost basis data; ok is false while the accounting run has not produced its
// data yet.
type TaxReporter interface {
	Details() (map[types.Asset]types.AssetCostBasis, bool)
}

// ApplyTaxOverlay annotates snapshot assets with cost-basis fields from the
// reporter. A nil reporter or one without data yet skips the overlay
// entirely; that is a recoverable condition, not an error. The overlay never
// alters amounts, usd_values or percentages. Percent change is undefined
// when either the average buy value or the held amount is zero.
func ApplyTaxOverlay(snapshot *types.PortfolioSnapshot, reporter TaxReporter) {
	if reporter == nil {
		return
	}
	details, ok := reporter.Details()
	if !ok {
		return
	}

	for asset, basis := range details {
		entry, present := snapshot.Combined[asset]
		if !present {
			continue
		}

		taxFree := basis.TaxFreeAmount
		avgBuy := basis.AverageBuyValue
		entry.TaxFreeAmount = &taxFree
		entry.AverageBuyValue = &avgBuy

		// A zero amount (a configured-but-empty holding) leaves no current
		// price to compare against.
		if entry.Amount.IsZero() || avgBuy.IsZero() {
			entry.PercentChange = PercentChangeUndefined
			continue
		}
		currentPrice := entry.USDValue.Div(entry.Amount)
		entry.PercentChange = currentPrice.Sub(avgBuy).Div(avgBuy).Mul(hundred).String()
	}
}

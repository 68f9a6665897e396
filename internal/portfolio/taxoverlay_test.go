package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balance-tracker/internal/types"
)

type fakeReporter struct {
	details map[types.Asset]types.AssetCostBasis
	ready   bool
}

func (f *fakeReporter) Details() (map[types.Asset]types.AssetCostBasis, bool) {
	return f.details, f.ready
}

func TestApplyTaxOverlay(t *testing.T) {
	snapshot := Valuate(types.SourceBalances{
		"kraken": {
			"BTC": {Amount: d("2"), USDValue: d("24000")},
		},
	})

	reporter := &fakeReporter{
		ready: true,
		details: map[types.Asset]types.AssetCostBasis{
			"BTC": {TaxFreeAmount: d("1.5"), AverageBuyValue: d("9600")},
		},
	}

	ApplyTaxOverlay(snapshot, reporter)

	btc := snapshot.Combined["BTC"]
	require.NotNil(t, btc.TaxFreeAmount)
	require.NotNil(t, btc.AverageBuyValue)
	assert.True(t, btc.TaxFreeAmount.Equal(d("1.5")))
	assert.True(t, btc.AverageBuyValue.Equal(d("9600")))

	// Current price is 24000/2 = 12000; (12000-9600)/9600 is a 25% gain.
	assert.Equal(t, "25", btc.PercentChange)

	// The overlay never alters the valuation fields.
	assert.True(t, btc.Amount.Equal(d("2")))
	assert.True(t, btc.USDValue.Equal(d("24000")))
	assert.True(t, btc.PercentageOfNetValue.Equal(d("100")))
}

func TestApplyTaxOverlay_ZeroAverageBuyValue(t *testing.T) {
	snapshot := Valuate(types.SourceBalances{
		"kraken": {
			"BTC": {Amount: d("1"), USDValue: d("10000")},
		},
	})

	reporter := &fakeReporter{
		ready: true,
		details: map[types.Asset]types.AssetCostBasis{
			"BTC": {TaxFreeAmount: d("1"), AverageBuyValue: d("0")},
		},
	}

	ApplyTaxOverlay(snapshot, reporter)

	assert.Equal(t, PercentChangeUndefined, snapshot.Combined["BTC"].PercentChange)
}

// A fiat holding can be configured at zero, so a zero-amount asset can reach
// the snapshot; the overlay must not divide by it.
func TestApplyTaxOverlay_ZeroAmountAsset(t *testing.T) {
	snapshot := Valuate(types.SourceBalances{
		"banks": {
			"USD": {Amount: d("0"), USDValue: d("0")},
		},
	})

	reporter := &fakeReporter{
		ready: true,
		details: map[types.Asset]types.AssetCostBasis{
			"USD": {TaxFreeAmount: d("0"), AverageBuyValue: d("1")},
		},
	}

	assert.NotPanics(t, func() {
		ApplyTaxOverlay(snapshot, reporter)
	})
	assert.Equal(t, PercentChangeUndefined, snapshot.Combined["USD"].PercentChange)
}

func TestApplyTaxOverlay_SkippedWhenNotReady(t *testing.T) {
	snapshot := Valuate(types.SourceBalances{
		"kraken": {
			"BTC": {Amount: d("1"), USDValue: d("10000")},
		},
	})

	ApplyTaxOverlay(snapshot, &fakeReporter{ready: false, details: map[types.Asset]types.AssetCostBasis{
		"BTC": {TaxFreeAmount: d("1"), AverageBuyValue: d("5000")},
	}})

	btc := snapshot.Combined["BTC"]
	assert.Nil(t, btc.TaxFreeAmount)
	assert.Nil(t, btc.AverageBuyValue)
	assert.Empty(t, btc.PercentChange)
}

func TestApplyTaxOverlay_NilReporter(t *testing.T) {
	snapshot := Valuate(types.SourceBalances{
		"kraken": {
			"BTC": {Amount: d("1"), USDValue: d("10000")},
		},
	})

	assert.NotPanics(t, func() {
		ApplyTaxOverlay(snapshot, nil)
	})
}

func TestApplyTaxOverlay_UnheldAssetIgnored(t *testing.T) {
	snapshot := Valuate(types.SourceBalances{
		"kraken": {
			"BTC": {Amount: d("1"), USDValue: d("10000")},
		},
	})

	ApplyTaxOverlay(snapshot, &fakeReporter{ready: true, details: map[types.Asset]types.AssetCostBasis{
		"ETH": {TaxFreeAmount: d("3"), AverageBuyValue: d("200")},
	}})

	assert.NotContains(t, snapshot.Combined, types.Asset("ETH"))
	assert.Nil(t, snapshot.Combined["BTC"].TaxFreeAmount)
}

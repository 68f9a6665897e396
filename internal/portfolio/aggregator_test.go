package portfolio

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balance-tracker/internal/types"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCombine_MergesAcrossSources(t *testing.T) {
	sources := types.SourceBalances{
		"kraken": {
			"BTC": {Amount: d("1"), USDValue: d("10000")},
			"ETH": {Amount: d("5"), USDValue: d("1500")},
		},
		"poloniex": {
			"BTC": {Amount: d("0.5"), USDValue: d("5000")},
		},
		"banks": {
			"USD": {Amount: d("500"), USDValue: d("500")},
		},
	}

	combined := Combine(sources)

	require.Len(t, combined, 3)
	assert.True(t, combined["BTC"].Amount.Equal(d("1.5")))
	assert.True(t, combined["BTC"].USDValue.Equal(d("15000")))
	assert.True(t, combined["ETH"].Amount.Equal(d("5")))
	assert.True(t, combined["USD"].USDValue.Equal(d("500")))
}

func TestCombine_EmptySources(t *testing.T) {
	assert.Empty(t, Combine(types.SourceBalances{}))
	assert.Empty(t, Combine(types.SourceBalances{
		"kraken": {},
		"banks":  {},
	}))
}

// Every amount and usd_value in the input must be accounted for in the merged
// output, no matter how the entries are spread over sources.
func TestCombine_ConservationProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	type entry struct {
		Source int
		Asset  int
		Amount int64
	}

	entryGen := gopter.CombineGens(
		gen.IntRange(0, 3), gen.IntRange(0, 5), gen.Int64Range(1, 1_000_000),
	).Map(func(values []interface{}) entry {
		return entry{
			Source: values[0].(int),
			Asset:  values[1].(int),
			Amount: values[2].(int64),
		}
	})

	assetNames := []types.Asset{"BTC", "ETH", "USD", "EUR", "XMR", "LTC"}
	sourceNames := []types.SourceName{"kraken", "poloniex", "blockchain", "banks"}

	properties.Property("combined totals equal per-asset input sums", prop.ForAll(
		func(entries []entry) bool {
			sources := make(types.SourceBalances)
			expected := make(map[types.Asset]decimal.Decimal)

			for _, e := range entries {
				source := sourceNames[e.Source]
				asset := assetNames[e.Asset]
				amount := decimal.NewFromInt(e.Amount)

				balances, ok := sources[source]
				if !ok {
					balances = make(types.AssetBalances)
					sources[source] = balances
				}
				current := balances[asset]
				balances[asset] = types.Balance{
					Amount:   current.Amount.Add(amount),
					USDValue: current.USDValue.Add(amount.Mul(decimal.NewFromInt(2))),
				}
				expected[asset] = expected[asset].Add(amount)
			}

			combined := Combine(sources)
			if len(combined) != len(expected) {
				return false
			}
			for asset, total := range expected {
				if !combined[asset].Amount.Equal(total) {
					return false
				}
				if !combined[asset].USDValue.Equal(total.Mul(decimal.NewFromInt(2))) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(entryGen),
	))

	properties.TestingRun(t)
}

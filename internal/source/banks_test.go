package source

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRater struct {
	rates map[string]decimal.Decimal
	err   error
}

func (f *fakeRater) QueryFiatPair(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.rates[base], nil
}

func TestBanks_QueryBalances(t *testing.T) {
	rater := &fakeRater{rates: map[string]decimal.Decimal{
		"USD": decimal.NewFromInt(1),
		"EUR": decimal.RequireFromString("1.08"),
	}}

	banks, err := NewBanks(map[string]string{
		"USD": "500",
		"EUR": "1000",
	}, rater)
	require.NoError(t, err)

	balances, err := banks.QueryBalances(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 2)

	assert.True(t, balances["USD"].Amount.Equal(decimal.NewFromInt(500)))
	assert.True(t, balances["USD"].USDValue.Equal(decimal.NewFromInt(500)))
	assert.True(t, balances["EUR"].Amount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, balances["EUR"].USDValue.Equal(decimal.RequireFromString("1080")))
}

func TestNewBanks_InvalidAmount(t *testing.T) {
	_, err := NewBanks(map[string]string{"USD": "lots"}, &fakeRater{})
	assert.ErrorContains(t, err, "invalid fiat holding")
}

func TestBanks_RaterFailure(t *testing.T) {
	banks, err := NewBanks(map[string]string{"EUR": "100"}, &fakeRater{err: fmt.Errorf("rate service down")})
	require.NoError(t, err)

	_, err = banks.QueryBalances(context.Background())
	assert.ErrorContains(t, err, "rate service down")
}

func TestBanks_Empty(t *testing.T) {
	banks, err := NewBanks(nil, &fakeRater{})
	require.NoError(t, err)

	balances, err := banks.QueryBalances(context.Background())
	require.NoError(t, err)
	assert.Empty(t, balances)
}

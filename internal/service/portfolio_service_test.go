package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balance-tracker/internal/credentials"
	"github.com/balance-tracker/internal/errors"
	"github.com/balance-tracker/internal/exchange"
	"github.com/balance-tracker/internal/logging"
	"github.com/balance-tracker/internal/types"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeExchangeClient struct {
	name     types.ExchangeName
	balances types.AssetBalances
	queryErr error
}

func (f *fakeExchangeClient) Name() types.ExchangeName { return f.name }

func (f *fakeExchangeClient) ValidateAPIKey(ctx context.Context) error { return nil }

func (f *fakeExchangeClient) QueryBalances(ctx context.Context) (types.AssetBalances, error) {
	return f.balances, f.queryErr
}

type fakeSource struct {
	balances types.AssetBalances
	err      error
}

func (f *fakeSource) QueryBalances(ctx context.Context) (types.AssetBalances, error) {
	return f.balances, f.err
}

type fakeServiceRater struct {
	rates map[string]decimal.Decimal
	err   error
}

func (f *fakeServiceRater) QueryFiatPair(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.rates[quote], nil
}

type fakeSaver struct {
	saved         int
	overlayAtSave bool
	err           error
}

func (f *fakeSaver) Save(ctx context.Context, snapshot *types.PortfolioSnapshot) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.saved++
	for _, entry := range snapshot.Combined {
		if entry.TaxFreeAmount != nil || entry.PercentChange != "" {
			f.overlayAtSave = true
		}
	}
	return "snapshot-1", nil
}

type fakeAppender struct {
	appended int
	err      error
}

func (f *fakeAppender) AppendSnapshot(ctx context.Context, at time.Time, snapshot *types.PortfolioSnapshot) error {
	if f.err != nil {
		return f.err
	}
	f.appended++
	return nil
}

type fakeTaxReporter struct {
	details map[types.Asset]types.AssetCostBasis
	ready   bool
}

func (f *fakeTaxReporter) Details() (map[types.Asset]types.AssetCostBasis, bool) {
	return f.details, f.ready
}

func testExchangeRegistry(t *testing.T, clients ...*fakeExchangeClient) *exchange.Registry {
	store, err := credentials.NewStore(filepath.Join(t.TempDir(), "secret.json"))
	require.NoError(t, err)

	byName := make(map[types.ExchangeName]*fakeExchangeClient, len(clients))
	for _, client := range clients {
		byName[client.name] = client
	}
	factory := func(name types.ExchangeName, cred credentials.Credential) (exchange.Client, error) {
		return byName[name], nil
	}

	registry, err := exchange.NewRegistry(store, factory, logging.NewLogger(logging.LevelError, logging.FormatText))
	require.NoError(t, err)
	for _, client := range clients {
		require.NoError(t, registry.Register(context.Background(), client.name, "key", "secret"))
	}
	return registry
}

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.LevelError, logging.FormatText)
}

func TestQueryBalances_MergesAllSources(t *testing.T) {
	registry := testExchangeRegistry(t, &fakeExchangeClient{
		name: types.ExchangeKraken,
		balances: types.AssetBalances{
			"BTC": {Amount: d("1"), USDValue: d("10000")},
		},
	})

	svc := NewPortfolioService(&Config{
		Registry: registry,
		Blockchain: &fakeSource{balances: types.AssetBalances{
			"ETH": {Amount: d("10"), USDValue: d("3000")},
		}},
		Banks: &fakeSource{balances: types.AssetBalances{
			"USD": {Amount: d("500"), USDValue: d("500")},
		}},
		Logger: testLogger(),
	})

	snapshot, err := svc.QueryBalances(context.Background(), false)
	require.NoError(t, err)

	assert.True(t, snapshot.NetUSD.Equal(d("13500")))
	assert.Len(t, snapshot.Combined, 3)
	assert.Contains(t, snapshot.Location, types.SourceName("kraken"))
	assert.Contains(t, snapshot.Location, types.SourceBlockchain)
	assert.Contains(t, snapshot.Location, types.SourceBanks)
}

func TestQueryBalances_ExchangeFailure(t *testing.T) {
	registry := testExchangeRegistry(t, &fakeExchangeClient{
		name:     types.ExchangeKraken,
		queryErr: fmt.Errorf("api down"),
	})

	svc := NewPortfolioService(&Config{Registry: registry, Logger: testLogger()})

	_, err := svc.QueryBalances(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, "PROVIDER_ERROR", errors.CodeOf(err))
}

func TestQueryBalances_SavePersistsBeforeOverlay(t *testing.T) {
	registry := testExchangeRegistry(t, &fakeExchangeClient{
		name: types.ExchangeKraken,
		balances: types.AssetBalances{
			"BTC": {Amount: d("2"), USDValue: d("24000")},
		},
	})

	saver := &fakeSaver{}
	appender := &fakeAppender{}
	svc := NewPortfolioService(&Config{
		Registry:  registry,
		Snapshots: saver,
		History:   appender,
		TaxReporter: &fakeTaxReporter{
			ready: true,
			details: map[types.Asset]types.AssetCostBasis{
				"BTC": {TaxFreeAmount: d("1"), AverageBuyValue: d("9600")},
			},
		},
		Logger: testLogger(),
	})

	snapshot, err := svc.QueryBalances(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, 1, saver.saved)
	assert.Equal(t, 1, appender.appended)

	// The returned snapshot carries the overlay, but the persisted form did
	// not include it.
	assert.False(t, saver.overlayAtSave)
	require.NotNil(t, snapshot.Combined["BTC"].TaxFreeAmount)
	assert.Equal(t, "25", snapshot.Combined["BTC"].PercentChange)
}

func TestQueryBalances_NoSaveByDefault(t *testing.T) {
	registry := testExchangeRegistry(t)
	saver := &fakeSaver{}

	svc := NewPortfolioService(&Config{Registry: registry, Snapshots: saver, Logger: testLogger()})

	_, err := svc.QueryBalances(context.Background(), false)
	require.NoError(t, err)
	assert.Zero(t, saver.saved)
}

func TestQueryBalances_SaveFailureAborts(t *testing.T) {
	registry := testExchangeRegistry(t)
	saver := &fakeSaver{err: fmt.Errorf("disk full")}

	svc := NewPortfolioService(&Config{Registry: registry, Snapshots: saver, Logger: testLogger()})

	_, err := svc.QueryBalances(context.Background(), true)
	assert.ErrorContains(t, err, "disk full")
}

func TestQueryBalances_CircuitBreakerTrips(t *testing.T) {
	client := &fakeExchangeClient{
		name:     types.ExchangeKraken,
		queryErr: fmt.Errorf("api down"),
	}
	registry := testExchangeRegistry(t, client)

	svc := NewPortfolioService(&Config{Registry: registry, Logger: testLogger()})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := svc.QueryBalances(ctx, false)
		require.Error(t, err)
	}

	// The breaker is open now; the client is no longer invoked.
	client.queryErr = nil
	_, err := svc.QueryBalances(ctx, false)
	require.Error(t, err)
	assert.Equal(t, "PROVIDER_ERROR", errors.CodeOf(err))
}

func TestSetMainCurrency(t *testing.T) {
	registry := testExchangeRegistry(t)
	rater := &fakeServiceRater{rates: map[string]decimal.Decimal{
		"EUR": d("0.92"),
	}}

	svc := NewPortfolioService(&Config{Registry: registry, Rater: rater, Logger: testLogger()})

	assert.Equal(t, "USD", svc.GetSettings().MainCurrency)

	require.NoError(t, svc.SetMainCurrency(context.Background(), "EUR"))
	assert.Equal(t, "EUR", svc.GetSettings().MainCurrency)

	converted, err := svc.USDToMainCurrency(context.Background(), d("100"))
	require.NoError(t, err)
	assert.True(t, converted.Equal(d("92")))
}

func TestSetMainCurrency_RateFailure(t *testing.T) {
	registry := testExchangeRegistry(t)
	rater := &fakeServiceRater{err: fmt.Errorf("rate service down")}

	svc := NewPortfolioService(&Config{Registry: registry, Rater: rater, Logger: testLogger()})

	err := svc.SetMainCurrency(context.Background(), "EUR")
	assert.Error(t, err)
	assert.Equal(t, "USD", svc.GetSettings().MainCurrency)
}

func TestUSDToMainCurrency_USDPassthrough(t *testing.T) {
	registry := testExchangeRegistry(t)
	svc := NewPortfolioService(&Config{Registry: registry, Logger: testLogger()})

	converted, err := svc.USDToMainCurrency(context.Background(), d("123.45"))
	require.NoError(t, err)
	assert.True(t, converted.Equal(d("123.45")))
}

func TestShutdown_Idempotent(t *testing.T) {
	registry := testExchangeRegistry(t)
	svc := NewPortfolioService(&Config{Registry: registry, Logger: testLogger()})

	select {
	case <-svc.Done():
		t.Fatal("Done closed before Shutdown")
	default:
	}

	svc.Shutdown()
	svc.Shutdown()

	select {
	case <-svc.Done():
	default:
		t.Fatal("Done not closed after Shutdown")
	}
}

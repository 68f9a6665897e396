// Package rates resolves fiat exchange rates and crypto USD prices, with a
// Redis-backed cache in front of the upstream rate services.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/balance-tracker/internal/logging"
	"github.com/balance-tracker/internal/retry"
	"github.com/balance-tracker/internal/types"
)

const (
	fiatRateURL    = "https://api.frankfurter.app/latest?from=%s&to=%s"
	cryptoPriceURL = "https://min-api.cryptocompare.com/data/price?fsym=%s&tsyms=USD"

	defaultCacheTTL = 10 * time.Minute
)

// fiatCurrencies is the set of symbols priced through the fiat-pair service
// rather than the crypto price service.
var fiatCurrencies = map[types.Asset]bool{
	"USD": true,
	"EUR": true,
	"GBP": true,
	"JPY": true,
	"CNY": true,
}

// IsFiat reports whether the asset is a known fiat currency.
func IsFiat(asset types.Asset) bool {
	return fiatCurrencies[asset]
}

// Inquirer answers rate queries. Results are cached in Redis; a cache outage
// degrades to direct upstream queries instead of failing the valuation.
type Inquirer struct {
	redis      *redis.Client
	httpClient *http.Client
	retryCfg   *retry.Config
	cacheTTL   time.Duration
	logger     *logging.Logger

	// Upstream endpoint templates, overridable in tests.
	fiatURL   string
	cryptoURL string
}

// NewInquirer creates an Inquirer backed by the given Redis client.
func NewInquirer(redisClient *redis.Client, logger *logging.Logger) *Inquirer {
	return &Inquirer{
		redis:      redisClient,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retryCfg:   retry.DefaultConfig(),
		cacheTTL:   defaultCacheTTL,
		logger:     logger,
		fiatURL:    fiatRateURL,
		cryptoURL:  cryptoPriceURL,
	}
}

// QueryFiatPair returns the conversion rate from base to quote.
func (i *Inquirer) QueryFiatPair(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	if base == quote {
		return decimal.NewFromInt(1), nil
	}

	cacheKey := fmt.Sprintf("rates:fiat:%s:%s", base, quote)
	if rate, ok := i.cached(ctx, cacheKey); ok {
		return rate, nil
	}

	var rate decimal.Decimal
	err := retry.WithExponentialBackoff(ctx, i.retryCfg, func(ctx context.Context, _ int) error {
		var err error
		rate, err = i.fetchFiatPair(ctx, base, quote)
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query fiat pair %s/%s: %w", base, quote, err)
	}

	i.cache(ctx, cacheKey, rate)
	return rate, nil
}

// QueryUSDPrice returns the current USD price of an asset. Fiat symbols go
// through the fiat-pair service; everything else through the crypto price
// service.
func (i *Inquirer) QueryUSDPrice(ctx context.Context, asset types.Asset) (decimal.Decimal, error) {
	if asset == "USD" {
		return decimal.NewFromInt(1), nil
	}
	if IsFiat(asset) {
		return i.QueryFiatPair(ctx, string(asset), "USD")
	}

	cacheKey := fmt.Sprintf("rates:usd:%s", asset)
	if price, ok := i.cached(ctx, cacheKey); ok {
		return price, nil
	}

	var price decimal.Decimal
	err := retry.WithExponentialBackoff(ctx, i.retryCfg, func(ctx context.Context, _ int) error {
		var err error
		price, err = i.fetchUSDPrice(ctx, asset)
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query USD price of %s: %w", asset, err)
	}

	i.cache(ctx, cacheKey, price)
	return price, nil
}

func (i *Inquirer) cached(ctx context.Context, key string) (decimal.Decimal, bool) {
	raw, err := i.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return decimal.Zero, false
	}
	if err != nil {
		i.logger.WithError(err).Warn("rate cache read failed, querying upstream")
		return decimal.Zero, false
	}

	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return value, true
}

func (i *Inquirer) cache(ctx context.Context, key string, value decimal.Decimal) {
	if err := i.redis.Set(ctx, key, value.String(), i.cacheTTL).Err(); err != nil {
		i.logger.WithError(err).Warn("rate cache write failed")
	}
}

func (i *Inquirer) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from rate service", resp.StatusCode)
	}

	return json.Unmarshal(body, out)
}

func (i *Inquirer) fetchFiatPair(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	var payload struct {
		Rates map[string]decimal.Decimal `json:"rates"`
	}
	if err := i.getJSON(ctx, fmt.Sprintf(i.fiatURL, base, quote), &payload); err != nil {
		return decimal.Zero, err
	}

	rate, ok := payload.Rates[quote]
	if !ok {
		return decimal.Zero, fmt.Errorf("rate service returned no %s rate", quote)
	}
	return rate, nil
}

func (i *Inquirer) fetchUSDPrice(ctx context.Context, asset types.Asset) (decimal.Decimal, error) {
	var payload map[string]decimal.Decimal
	if err := i.getJSON(ctx, fmt.Sprintf(i.cryptoURL, asset), &payload); err != nil {
		return decimal.Zero, err
	}

	price, ok := payload["USD"]
	if !ok {
		return decimal.Zero, fmt.Errorf("price service returned no USD price for %s", asset)
	}
	return price, nil
}

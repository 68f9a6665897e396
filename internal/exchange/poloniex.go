package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/balance-tracker/internal/credentials"
	"github.com/balance-tracker/internal/logging"
	"github.com/balance-tracker/internal/types"
)

const poloniexTradingURL = "https://poloniex.com/tradingApi"

// Poloniex is the Poloniex exchange client.
type Poloniex struct {
	cred   credentials.Credential
	pricer AssetPricer
	rest   *restClient
}

// NewPoloniex creates a Poloniex client for the given credential.
func NewPoloniex(cred credentials.Credential, pricer AssetPricer) *Poloniex {
	// Poloniex allows 6 calls per second on the trading API.
	return &Poloniex{
		cred:   cred,
		pricer: pricer,
		rest:   newRESTClient(rate.Limit(6), 6),
	}
}

// Name returns the exchange identifier.
func (p *Poloniex) Name() types.ExchangeName {
	return types.ExchangePoloniex
}

// queryTrading performs a signed POST to the trading API.
func (p *Poloniex) queryTrading(ctx context.Context, command string) ([]byte, error) {
	form := url.Values{}
	form.Set("command", command)
	form.Set("nonce", nonce())
	encoded := form.Encode()

	req, err := http.NewRequest(http.MethodPost, poloniexTradingURL, strings.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Key", p.cred.APIKey)
	req.Header.Set("Sign", signSHA512Hex(p.cred.APISecret, encoded))

	body, err := p.rest.do(ctx, req)
	if err != nil {
		return nil, err
	}

	// Errors come back as {"error": "..."} with a 200 status.
	var apiErr struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return nil, fmt.Errorf("poloniex: %s", apiErr.Error)
	}

	return body, nil
}

// ValidateAPIKey issues a balance query with the candidate credential.
func (p *Poloniex) ValidateAPIKey(ctx context.Context) error {
	_, err := p.queryTrading(ctx, "returnBalances")
	return err
}

// QueryBalances returns the account's per-asset holdings with USD values.
func (p *Poloniex) QueryBalances(ctx context.Context) (types.AssetBalances, error) {
	body, err := p.queryTrading(ctx, "returnBalances")
	if err != nil {
		return nil, err
	}

	var raw map[string]decimal.Decimal
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode poloniex balances: %w", err)
	}

	amounts := make(map[types.Asset]decimal.Decimal, len(raw))
	for symbol, amount := range raw {
		amounts[types.Asset(symbol)] = amount
	}

	return priceBalances(ctx, p.pricer, amounts)
}

// PeriodicSync gives Poloniex a turn in the main loop cycle.
func (p *Poloniex) PeriodicSync(ctx context.Context) error {
	balances, err := p.QueryBalances(ctx)
	if err != nil {
		return err
	}
	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"exchange": string(p.Name()),
		"assets":   len(balances),
	}).Debug("periodic sync completed")
	return nil
}

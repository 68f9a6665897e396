package exchange

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
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

const krakenBaseURL = "https://api.kraken.com"

// krakenAssetNames maps Kraken's internal asset codes to common symbols.
var krakenAssetNames = map[string]types.Asset{
	"XXBT": "BTC",
	"XETH": "ETH",
	"XXMR": "XMR",
	"XLTC": "LTC",
	"XXRP": "XRP",
	"XZEC": "ZEC",
	"ZUSD": "USD",
	"ZEUR": "EUR",
	"ZGBP": "GBP",
	"ZJPY": "JPY",
}

func krakenToWorld(code string) types.Asset {
	if asset, ok := krakenAssetNames[code]; ok {
		return asset
	}
	return types.Asset(code)
}

// Kraken is the Kraken exchange client.
type Kraken struct {
	cred    credentials.Credential
	pricer  AssetPricer
	rest    *restClient
	baseURL string
}

// NewKraken creates a Kraken client for the given credential.
func NewKraken(cred credentials.Credential, pricer AssetPricer) *Kraken {
	// Kraken private endpoints tolerate about one call per second.
	return &Kraken{
		cred:    cred,
		pricer:  pricer,
		rest:    newRESTClient(rate.Limit(1), 2),
		baseURL: krakenBaseURL,
	}
}

// Name returns the exchange identifier.
func (k *Kraken) Name() types.ExchangeName {
	return types.ExchangeKraken
}

type krakenResponse struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// queryPrivate performs a signed POST to a Kraken private endpoint.
func (k *Kraken) queryPrivate(ctx context.Context, path string) (json.RawMessage, error) {
	form := url.Values{}
	n := nonce()
	form.Set("nonce", n)
	encoded := form.Encode()

	secret, err := base64.StdEncoding.DecodeString(k.cred.APISecret)
	if err != nil {
		return nil, fmt.Errorf("kraken secret is not valid base64: %w", err)
	}

	digest := sha256.Sum256([]byte(n + encoded))
	signature := signSHA512Base64(secret, append([]byte(path), digest[:]...))

	req, err := http.NewRequest(http.MethodPost, k.baseURL+path, strings.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("API-Key", k.cred.APIKey)
	req.Header.Set("API-Sign", signature)

	body, err := k.rest.do(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp krakenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode kraken response: %w", err)
	}
	if len(resp.Error) > 0 {
		return nil, fmt.Errorf("kraken: %s", strings.Join(resp.Error, ", "))
	}

	return resp.Result, nil
}

// ValidateAPIKey issues a balance query with the candidate credential.
func (k *Kraken) ValidateAPIKey(ctx context.Context) error {
	_, err := k.queryPrivate(ctx, "/0/private/Balance")
	return err
}

// QueryBalances returns the account's per-asset holdings with USD values.
func (k *Kraken) QueryBalances(ctx context.Context) (types.AssetBalances, error) {
	result, err := k.queryPrivate(ctx, "/0/private/Balance")
	if err != nil {
		return nil, err
	}

	var raw map[string]decimal.Decimal
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode kraken balances: %w", err)
	}

	amounts := make(map[types.Asset]decimal.Decimal, len(raw))
	for code, amount := range raw {
		amounts[krakenToWorld(code)] = amount
	}

	return priceBalances(ctx, k.pricer, amounts)
}

// PeriodicSync gives Kraken a turn in the main loop cycle. It re-queries
// balances so the price cache stays warm between valuation requests.
func (k *Kraken) PeriodicSync(ctx context.Context) error {
	balances, err := k.QueryBalances(ctx)
	if err != nil {
		return err
	}
	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"exchange": string(k.Name()),
		"assets":   len(balances),
	}).Debug("periodic sync completed")
	return nil
}

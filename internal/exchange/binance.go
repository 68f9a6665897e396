package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/balance-tracker/internal/credentials"
	"github.com/balance-tracker/internal/types"
)

const binanceBaseURL = "https://api.binance.com"

// Binance is the Binance exchange client.
type Binance struct {
	cred   credentials.Credential
	pricer AssetPricer
	rest   *restClient
}

// NewBinance creates a Binance client for the given credential.
func NewBinance(cred credentials.Credential, pricer AssetPricer) *Binance {
	return &Binance{
		cred:   cred,
		pricer: pricer,
		rest:   newRESTClient(rate.Limit(10), 10),
	}
}

// Name returns the exchange identifier.
func (b *Binance) Name() types.ExchangeName {
	return types.ExchangeBinance
}

// querySigned performs a signed GET. Binance signs the encoded query string
// with HMAC-SHA256 and carries the key in a header.
func (b *Binance) querySigned(ctx context.Context, path string) ([]byte, error) {
	params := url.Values{}
	params.Set("timestamp", nonce())
	encoded := params.Encode()
	signature := signSHA256Hex(b.cred.APISecret, encoded)

	fullURL := fmt.Sprintf("%s%s?%s&signature=%s", binanceBaseURL, path, encoded, signature)
	req, err := http.NewRequest(http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", b.cred.APIKey)

	body, err := b.rest.do(ctx, req)
	if err != nil {
		return nil, err
	}

	// API errors come back as {"code": <neg>, "msg": "..."}.
	var apiErr struct {
		Code int64  `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code < 0 {
		return nil, fmt.Errorf("binance: %s", apiErr.Msg)
	}

	return body, nil
}

// ValidateAPIKey issues an account query with the candidate credential.
func (b *Binance) ValidateAPIKey(ctx context.Context) error {
	_, err := b.querySigned(ctx, "/api/v3/account")
	return err
}

// QueryBalances returns the account's per-asset holdings with USD values.
// Free and locked amounts are summed per asset.
func (b *Binance) QueryBalances(ctx context.Context) (types.AssetBalances, error) {
	body, err := b.querySigned(ctx, "/api/v3/account")
	if err != nil {
		return nil, err
	}

	var account struct {
		Balances []struct {
			Asset  string          `json:"asset"`
			Free   decimal.Decimal `json:"free"`
			Locked decimal.Decimal `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, fmt.Errorf("failed to decode binance account: %w", err)
	}

	amounts := make(map[types.Asset]decimal.Decimal, len(account.Balances))
	for _, entry := range account.Balances {
		amounts[types.Asset(entry.Asset)] = entry.Free.Add(entry.Locked)
	}

	return priceBalances(ctx, b.pricer, amounts)
}

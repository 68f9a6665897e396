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

const bittrexBaseURL = "https://api.bittrex.com/api/v1.1"

// Bittrex is the Bittrex exchange client.
type Bittrex struct {
	cred   credentials.Credential
	pricer AssetPricer
	rest   *restClient
}

// NewBittrex creates a Bittrex client for the given credential.
func NewBittrex(cred credentials.Credential, pricer AssetPricer) *Bittrex {
	return &Bittrex{
		cred:   cred,
		pricer: pricer,
		rest:   newRESTClient(rate.Limit(1), 2),
	}
}

// Name returns the exchange identifier.
func (b *Bittrex) Name() types.ExchangeName {
	return types.ExchangeBittrex
}

type bittrexResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// queryAccount performs a signed GET to an account endpoint. Bittrex signs
// the full request URL.
func (b *Bittrex) queryAccount(ctx context.Context, path string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("apikey", b.cred.APIKey)
	params.Set("nonce", nonce())
	fullURL := fmt.Sprintf("%s/%s?%s", bittrexBaseURL, path, params.Encode())

	req, err := http.NewRequest(http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apisign", signSHA512Hex(b.cred.APISecret, fullURL))

	body, err := b.rest.do(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp bittrexResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode bittrex response: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("bittrex: %s", resp.Message)
	}

	return resp.Result, nil
}

// ValidateAPIKey issues a balance query with the candidate credential.
func (b *Bittrex) ValidateAPIKey(ctx context.Context) error {
	_, err := b.queryAccount(ctx, "account/getbalances")
	return err
}

// QueryBalances returns the account's per-asset holdings with USD values.
func (b *Bittrex) QueryBalances(ctx context.Context) (types.AssetBalances, error) {
	result, err := b.queryAccount(ctx, "account/getbalances")
	if err != nil {
		return nil, err
	}

	var entries []struct {
		Currency string          `json:"Currency"`
		Balance  decimal.Decimal `json:"Balance"`
	}
	if err := json.Unmarshal(result, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode bittrex balances: %w", err)
	}

	amounts := make(map[types.Asset]decimal.Decimal, len(entries))
	for _, entry := range entries {
		amounts[types.Asset(entry.Currency)] = entry.Balance
	}

	return priceBalances(ctx, b.pricer, amounts)
}

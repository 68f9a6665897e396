package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/balance-tracker/internal/types"
)

const defaultRequestTimeout = 30 * time.Second

// restClient is the shared HTTP transport for exchange clients. Every
// request waits on a per-exchange rate limiter before going out.
type restClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newRESTClient(rps rate.Limit, burst int) *restClient {
	return &restClient{
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		limiter:    rate.NewLimiter(rps, burst),
	}
}

// do performs the request and returns the response body. Non-2xx statuses
// are returned as errors carrying a body snippet.
func (c *restClient) do(ctx context.Context, req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := body
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(snippet))
	}

	return body, nil
}

// nonce returns a strictly increasing request nonce in milliseconds.
func nonce() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

func signHex(newHash func() hash.Hash, secret []byte, message string) string {
	mac := hmac.New(newHash, secret)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func signSHA512Hex(secret, message string) string {
	return signHex(sha512.New, []byte(secret), message)
}

func signSHA256Hex(secret, message string) string {
	return signHex(sha256.New, []byte(secret), message)
}

func signSHA512Base64(secret []byte, message []byte) string {
	mac := hmac.New(sha512.New, secret)
	mac.Write(message)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// priceBalances attaches USD valuations to raw per-asset amounts. Zero
// amounts are dropped; they carry no value and only bloat the snapshot.
func priceBalances(ctx context.Context, pricer AssetPricer, amounts map[types.Asset]decimal.Decimal) (types.AssetBalances, error) {
	out := make(types.AssetBalances, len(amounts))
	for asset, amount := range amounts {
		if amount.IsZero() {
			continue
		}
		price, err := pricer.QueryUSDPrice(ctx, asset)
		if err != nil {
			return nil, fmt.Errorf("failed to price %s: %w", asset, err)
		}
		out[asset] = types.Balance{
			Amount:   amount,
			USDValue: amount.Mul(price),
		}
	}
	return out, nil
}

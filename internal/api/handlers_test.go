package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balance-tracker/internal/errors"
	"github.com/balance-tracker/internal/logging"
	"github.com/balance-tracker/internal/types"
)

type mockPortfolioService struct {
	snapshot    *types.PortfolioSnapshot
	queryErr    error
	lastSave    bool
	setupErr    error
	setupCalls  []types.ExchangeName
	removeErr   error
	removeCalls []types.ExchangeName
	currencyErr error
	settings    types.Settings
	shutdowns   int
}

func (m *mockPortfolioService) QueryBalances(ctx context.Context, saveData bool) (*types.PortfolioSnapshot, error) {
	m.lastSave = saveData
	return m.snapshot, m.queryErr
}

func (m *mockPortfolioService) SetupExchange(ctx context.Context, name types.ExchangeName, apiKey, apiSecret string) error {
	m.setupCalls = append(m.setupCalls, name)
	return m.setupErr
}

func (m *mockPortfolioService) RemoveExchange(name types.ExchangeName) error {
	m.removeCalls = append(m.removeCalls, name)
	return m.removeErr
}

func (m *mockPortfolioService) SetMainCurrency(ctx context.Context, currency string) error {
	if m.currencyErr != nil {
		return m.currencyErr
	}
	m.settings.MainCurrency = currency
	return nil
}

func (m *mockPortfolioService) GetSettings() types.Settings { return m.settings }

func (m *mockPortfolioService) USDToMainCurrency(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	return amount, nil
}

func (m *mockPortfolioService) Shutdown() { m.shutdowns++ }

func newTestServer(mock *mockPortfolioService) *Server {
	cfg := &ServerConfig{
		Host:              "127.0.0.1",
		Port:              "0",
		RequestsPerSecond: 1000,
		Burst:             1000,
	}
	return NewServer(cfg, mock, logging.NewLogger(logging.LevelError, logging.FormatText))
}

func TestHandleQueryBalances(t *testing.T) {
	mock := &mockPortfolioService{
		snapshot: &types.PortfolioSnapshot{
			Combined: map[types.Asset]*types.CombinedBalance{
				"BTC": {
					Amount:               decimal.NewFromInt(1),
					USDValue:             decimal.NewFromInt(10000),
					PercentageOfNetValue: decimal.NewFromInt(100),
				},
			},
			Location: map[types.SourceName]types.LocationBalance{},
			NetUSD:   decimal.NewFromInt(10000),
		},
		settings: types.Settings{MainCurrency: "USD"},
	}
	server := newTestServer(mock)

	req := httptest.NewRequest("GET", "/api/v1/balances", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, mock.lastSave)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "combined")
	assert.Contains(t, body, "net_usd")
}

func TestHandleQueryBalances_SaveFlag(t *testing.T) {
	mock := &mockPortfolioService{snapshot: &types.PortfolioSnapshot{}}
	server := newTestServer(mock)

	req := httptest.NewRequest("GET", "/api/v1/balances?save=true", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mock.lastSave)
}

func TestHandleQueryBalances_ProviderFailure(t *testing.T) {
	mock := &mockPortfolioService{
		queryErr: errors.NewProviderError("kraken", fmt.Errorf("api down")),
	}
	server := newTestServer(mock)

	req := httptest.NewRequest("GET", "/api/v1/balances", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadGateway, w.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "PROVIDER_ERROR", body.Error.Code)
}

func TestHandleSetupExchange(t *testing.T) {
	mock := &mockPortfolioService{}
	server := newTestServer(mock)

	payload, _ := json.Marshal(map[string]string{
		"api_key":    "key",
		"api_secret": "secret",
	})
	req := httptest.NewRequest("PUT", "/api/v1/exchanges/kraken", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []types.ExchangeName{"kraken"}, mock.setupCalls)
}

func TestHandleSetupExchange_MissingFields(t *testing.T) {
	mock := &mockPortfolioService{}
	server := newTestServer(mock)

	payload, _ := json.Marshal(map[string]string{"api_key": "key"})
	req := httptest.NewRequest("PUT", "/api/v1/exchanges/kraken", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, mock.setupCalls)
}

func TestHandleSetupExchange_InvalidJSON(t *testing.T) {
	server := newTestServer(&mockPortfolioService{})

	req := httptest.NewRequest("PUT", "/api/v1/exchanges/kraken", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSetupExchange_Unsupported(t *testing.T) {
	mock := &mockPortfolioService{
		setupErr: errors.NewUnsupportedExchangeError("mtgox"),
	}
	server := newTestServer(mock)

	payload, _ := json.Marshal(map[string]string{
		"api_key":    "key",
		"api_secret": "secret",
	})
	req := httptest.NewRequest("PUT", "/api/v1/exchanges/mtgox", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "UNSUPPORTED_EXCHANGE", body.Error.Code)
}

func TestHandleRemoveExchange(t *testing.T) {
	mock := &mockPortfolioService{}
	server := newTestServer(mock)

	req := httptest.NewRequest("DELETE", "/api/v1/exchanges/kraken", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []types.ExchangeName{"kraken"}, mock.removeCalls)
}

func TestHandleRemoveExchange_NotRegistered(t *testing.T) {
	mock := &mockPortfolioService{
		removeErr: errors.NewNotRegisteredError("kraken"),
	}
	server := newTestServer(mock)

	req := httptest.NewRequest("DELETE", "/api/v1/exchanges/kraken", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetSettings(t *testing.T) {
	mock := &mockPortfolioService{settings: types.Settings{MainCurrency: "EUR"}}
	server := newTestServer(mock)

	req := httptest.NewRequest("GET", "/api/v1/settings", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var settings types.Settings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settings))
	assert.Equal(t, "EUR", settings.MainCurrency)
}

func TestHandleSetMainCurrency(t *testing.T) {
	mock := &mockPortfolioService{settings: types.Settings{MainCurrency: "USD"}}
	server := newTestServer(mock)

	payload, _ := json.Marshal(map[string]string{"currency": "EUR"})
	req := httptest.NewRequest("PUT", "/api/v1/settings/currency", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var settings types.Settings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settings))
	assert.Equal(t, "EUR", settings.MainCurrency)
}

func TestHandleSetMainCurrency_MissingCurrency(t *testing.T) {
	server := newTestServer(&mockPortfolioService{})

	req := httptest.NewRequest("PUT", "/api/v1/settings/currency", bytes.NewReader([]byte("{}")))
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleHealth(t *testing.T) {
	server := newTestServer(&mockPortfolioService{})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHandleShutdown(t *testing.T) {
	mock := &mockPortfolioService{}
	server := newTestServer(mock)

	req := httptest.NewRequest("POST", "/api/v1/shutdown", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, mock.shutdowns)
}

func TestRateLimitMiddleware(t *testing.T) {
	limited := NewServer(&ServerConfig{
		Host:              "127.0.0.1",
		Port:              "0",
		RequestsPerSecond: 1,
		Burst:             1,
	}, &mockPortfolioService{snapshot: &types.PortfolioSnapshot{}}, logging.NewLogger(logging.LevelError, logging.FormatText))

	first := httptest.NewRecorder()
	limited.router.ServeHTTP(first, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	limited.router.ServeHTTP(second, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

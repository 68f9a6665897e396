// Package types provides common type definitions for the balance tracker system.
package types

import (
	"github.com/shopspring/decimal"
)

// ExchangeName identifies a supported exchange. The set is closed: balance
// tracking only talks to exchanges it has a client implementation for.
type ExchangeName string

const (
	// ExchangeKraken represents the Kraken exchange
	ExchangeKraken ExchangeName = "kraken"
	// ExchangePoloniex represents the Poloniex exchange
	ExchangePoloniex ExchangeName = "poloniex"
	// ExchangeBittrex represents the Bittrex exchange
	ExchangeBittrex ExchangeName = "bittrex"
	// ExchangeBinance represents the Binance exchange
	ExchangeBinance ExchangeName = "binance"
)

// SupportedExchanges returns the closed set of exchanges in a stable order.
func SupportedExchanges() []ExchangeName {
	return []ExchangeName{ExchangeKraken, ExchangePoloniex, ExchangeBittrex, ExchangeBinance}
}

// IsSupportedExchange reports whether name is in the closed exchange set.
func IsSupportedExchange(name ExchangeName) bool {
	switch name {
	case ExchangeKraken, ExchangePoloniex, ExchangeBittrex, ExchangeBinance:
		return true
	}
	return false
}

// SourceName identifies an origin of balance data: an exchange, the
// blockchain, or bank/fiat holdings.
type SourceName string

const (
	// SourceBlockchain represents on-chain account holdings
	SourceBlockchain SourceName = "blockchain"
	// SourceBanks represents fiat bank holdings
	SourceBanks SourceName = "banks"
)

// Asset is a tradable unit (cryptocurrency or fiat) identified by a symbol.
type Asset string

// Balance holds an asset amount together with its USD valuation. The two are
// tracked independently; USDValue is never re-derived from amount at this
// layer.
type Balance struct {
	Amount   decimal.Decimal `json:"amount"`
	USDValue decimal.Decimal `json:"usd_value"`
}

// AssetBalances maps asset symbols to balances for a single source.
type AssetBalances map[Asset]Balance

// SourceBalances maps each source to its per-asset balances.
type SourceBalances map[SourceName]AssetBalances

// CombinedBalance is one merged per-asset entry across all sources, plus the
// derived share of total net value and optional cost-basis overlay fields.
type CombinedBalance struct {
	Amount               decimal.Decimal `json:"amount"`
	USDValue             decimal.Decimal `json:"usd_value"`
	PercentageOfNetValue decimal.Decimal `json:"percentage_of_net_value"`

	// Overlay fields attached by the tax overlay step, absent otherwise.
	TaxFreeAmount   *decimal.Decimal `json:"tax_free_amount,omitempty"`
	AverageBuyValue *decimal.Decimal `json:"average_buy_value,omitempty"`
	PercentChange   string           `json:"percent_change,omitempty"`
}

// LocationBalance is the per-source line of the portfolio breakdown.
type LocationBalance struct {
	USDValue             decimal.Decimal `json:"usd_value"`
	PercentageOfNetValue decimal.Decimal `json:"percentage_of_net_value"`
}

// PortfolioSnapshot is the full valuation output: merged assets, the
// per-location breakdown and total net worth in USD. It is recomputed on
// every valuation request and never kept as in-memory state.
type PortfolioSnapshot struct {
	Combined map[Asset]*CombinedBalance     `json:"combined"`
	Location map[SourceName]LocationBalance `json:"location"`
	NetUSD   decimal.Decimal                `json:"net_usd"`
}

// AssetCostBasis is what the tax-accounting collaborator reports per asset.
type AssetCostBasis struct {
	TaxFreeAmount   decimal.Decimal `json:"tax_free_amount"`
	AverageBuyValue decimal.Decimal `json:"average_buy_value"`
}

// Settings holds user-facing tracker settings.
type Settings struct {
	MainCurrency string `json:"main_currency"`
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

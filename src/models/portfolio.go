package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Holding is one open position in the brokerage account.
type Holding struct {
	Symbol       string          `json:"symbol"` // Broker symbol, e.g. "VODl"
	Ticker       string          `json:"ticker"` // Full broker ticker, e.g. "VODl_EQ"
	Quantity     decimal.Decimal `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`
	CostBasis    decimal.Decimal `json:"cost_basis"` // Quantity x AveragePrice
	CurrentPrice decimal.Decimal `json:"current_price"`
	Currency     string          `json:"currency"` // Account currency
}

// Order is a filled brokerage order, used to replay historical share counts.
type Order struct {
	Symbol         string          `json:"symbol"`
	Ticker         string          `json:"ticker"`
	Status         string          `json:"status"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"` // Positive for buys, negative for sells
	ExecutedAt     time.Time       `json:"executed_at"`
}

// SymbolFromTicker returns the broker symbol part of a Trading 212 ticker ("VODl_EQ" -> "VODl").
func SymbolFromTicker(ticker string) string {
	symbol, _, _ := strings.Cut(ticker, "_")
	return symbol
}

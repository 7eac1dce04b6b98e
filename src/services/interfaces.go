package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/divtracker/src/models"
)

// Brokerage is the source of holdings and order history.
type Brokerage interface {
	FetchHoldings(ctx context.Context) ([]models.Holding, error)
	FetchOrderHistory(ctx context.Context) ([]models.Order, error)
}

// MarketData is the source of prices and dividend history.
type MarketData interface {
	FetchMarketData(ctx context.Context, symbol string, from, to time.Time) (*models.MarketData, error)
}

// CurrencyConverter converts amounts and reports the rate and its source.
type CurrencyConverter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (converted, rate decimal.Decimal, source string, err error)
}

// DividendService defines the dividend operations exposed over HTTP and the CLI.
type DividendService interface {
	Portfolio(ctx context.Context) ([]models.Holding, error)
	Forecast(ctx context.Context) (*models.ForecastReport, error)
	Summary(ctx context.Context) (*models.DividendSummary, error)
	// Upcoming returns forecasts whose ex-date is within the next days days.
	Upcoming(ctx context.Context, days int) (*models.ForecastReport, error)
	// History returns dividends received between from and to, using the shares held on each ex-date.
	History(ctx context.Context, from, to time.Time) (*models.DividendHistoryReport, error)
	SymbolDividends(ctx context.Context, symbol string, from, to time.Time) (*models.MarketData, error)
}

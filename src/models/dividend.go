package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Forecast bases. Only BasisAnnounced is a confirmed figure.
const (
	BasisAnnounced     = "announced"      // Provider announced the ex-date and a matching amount exists
	BasisAnnouncedDate = "announced_date" // Provider announced the ex-date, amount taken from the last payment
	BasisCadence       = "cadence"        // Ex-date projected from the historical payment interval
)

// DividendEvent is one historical dividend payment for a symbol.
type DividendEvent struct {
	Symbol   string          `json:"symbol"`
	ExDate   time.Time       `json:"ex_date"`
	PayDate  *time.Time      `json:"pay_date,omitempty"`
	Amount   decimal.Decimal `json:"amount"` // Per share, in Currency
	Currency string          `json:"currency"`
}

// MarketData is the provider's view of one symbol.
type MarketData struct {
	Symbol         string          `json:"symbol"`
	ProviderSymbol string          `json:"provider_symbol"`
	Price          decimal.Decimal `json:"price"`
	Currency       string          `json:"currency"`
	Exchange       string          `json:"exchange,omitempty"`
	Dividends      []DividendEvent `json:"dividends"` // Ascending by ex-date
	NextExDate     *time.Time      `json:"next_ex_date,omitempty"`
	NextPayDate    *time.Time      `json:"next_pay_date,omitempty"`
}

// DividendForecast is the projected next payment for one holding.
type DividendForecast struct {
	Symbol           string          `json:"symbol"`
	ExDividendDate   time.Time       `json:"ex_dividend_date"`
	PayDate          *time.Time      `json:"pay_date,omitempty"`
	DividendPerShare decimal.Decimal `json:"dividend_per_share"`
	DividendCurrency string          `json:"dividend_currency"`
	Shares           decimal.Decimal `json:"shares"`
	LocalPayout      decimal.Decimal `json:"local_payout"` // Shares x DividendPerShare, in DividendCurrency
	FXRate           decimal.Decimal `json:"fx_rate"`
	FXSource         string          `json:"fx_source"`
	Payout           decimal.Decimal `json:"payout"` // In the report currency
	IsEstimated      bool            `json:"is_estimated"`
	Basis            string          `json:"basis"`
}

// SkippedHolding reports a holding that could not be processed.
type SkippedHolding struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
	Kind   string `json:"kind"`
}

// ForecastReport aggregates forecasts for the whole portfolio.
type ForecastReport struct {
	Currency         string             `json:"currency"`
	GeneratedAt      time.Time          `json:"generated_at"`
	Forecasts        []DividendForecast `json:"forecasts"`
	Total            decimal.Decimal    `json:"total"`
	TotalFormatted   string             `json:"total_formatted"`
	WithoutDividends []string           `json:"without_dividends"`
	Skipped          []SkippedHolding   `json:"skipped"`
}

// DividendSummary condenses a ForecastReport.
type DividendSummary struct {
	Currency       string             `json:"currency"`
	TotalExpected  decimal.Decimal    `json:"total_expected"`
	TotalFormatted string             `json:"total_formatted"`
	NextDividend   *DividendForecast  `json:"next_dividend,omitempty"`
	Confirmed      []DividendForecast `json:"confirmed"`
	Estimated      []DividendForecast `json:"estimated"`
	HoldingCount   int                `json:"holding_count"`
	SkippedCount   int                `json:"skipped_count"`
}

// ReceivedDividend is one historical payment attributed to the shares held on its ex-date.
type ReceivedDividend struct {
	Symbol           string          `json:"symbol"`
	ExDate           time.Time       `json:"ex_date"`
	PayDate          *time.Time      `json:"pay_date,omitempty"`
	DividendPerShare decimal.Decimal `json:"dividend_per_share"`
	DividendCurrency string          `json:"dividend_currency"`
	Shares           decimal.Decimal `json:"shares"`
	LocalPayout      decimal.Decimal `json:"local_payout"`
	FXRate           decimal.Decimal `json:"fx_rate"`
	Payout           decimal.Decimal `json:"payout"`
}

// DividendHistoryReport lists dividends received between From and To.
type DividendHistoryReport struct {
	Currency       string             `json:"currency"`
	From           time.Time          `json:"from"`
	To             time.Time          `json:"to"`
	Dividends      []ReceivedDividend `json:"dividends"`
	Total          decimal.Decimal    `json:"total"`
	TotalFormatted string             `json:"total_formatted"`
	Skipped        []SkippedHolding   `json:"skipped"`
}

package processors

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/divtracker/src/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func quarterly(amount string, dates ...time.Time) []models.DividendEvent {
	events := make([]models.DividendEvent, len(dates))
	for i, d := range dates {
		events[i] = models.DividendEvent{ExDate: d, Amount: decimal.RequireFromString(amount), Currency: "USD"}
	}
	return events
}

func TestNextDividend(t *testing.T) {
	today := day(2024, 6, 1)
	history := quarterly("1.00", day(2023, 8, 10), day(2023, 11, 10), day(2024, 2, 10), day(2024, 5, 10))

	tests := []struct {
		name      string
		data      *models.MarketData
		wantOK    bool
		wantDate  time.Time
		wantAmt   string
		wantEst   bool
		wantBasis string
	}{
		{
			name:   "no history",
			data:   &models.MarketData{},
			wantOK: false,
		},
		{
			name: "announced with matching amount",
			data: &models.MarketData{
				Dividends:  append(quarterly("1.00", day(2024, 2, 10)), quarterly("1.10", day(2024, 8, 8))...),
				NextExDate: ptr(day(2024, 8, 10)),
			},
			wantOK: true, wantDate: day(2024, 8, 10), wantAmt: "1.1", wantEst: false, wantBasis: models.BasisAnnounced,
		},
		{
			name:   "announced date without amount uses last payment",
			data:   &models.MarketData{Dividends: history, NextExDate: ptr(day(2024, 8, 12))},
			wantOK: true, wantDate: day(2024, 8, 12), wantAmt: "1", wantEst: true, wantBasis: models.BasisAnnouncedDate,
		},
		{
			name:   "announced date in the past falls back to cadence",
			data:   &models.MarketData{Dividends: history, NextExDate: ptr(day(2024, 5, 10))},
			wantOK: true, wantDate: day(2024, 8, 9), wantAmt: "1", wantEst: true, wantBasis: models.BasisCadence,
		},
		{
			name:   "announced date equal to today is not upcoming",
			data:   &models.MarketData{Dividends: history, NextExDate: ptr(today)},
			wantOK: true, wantDate: day(2024, 8, 9), wantAmt: "1", wantEst: true, wantBasis: models.BasisCadence,
		},
		{
			name:   "single payment cannot be projected",
			data:   &models.MarketData{Dividends: quarterly("1.00", day(2024, 5, 10))},
			wantOK: false,
		},
		{
			name:   "stale cadence gives nothing",
			data:   &models.MarketData{Dividends: quarterly("1.00", day(2022, 1, 10), day(2022, 4, 10))},
			wantOK: false,
		},
	}

	p := NewDividendProcessor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.NextDividend(tt.data, today)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantDate, got.ExDate)
			assert.True(t, got.Amount.Equal(decimal.RequireFromString(tt.wantAmt)), "amount %s", got.Amount)
			assert.Equal(t, tt.wantEst, got.IsEstimated)
			assert.Equal(t, tt.wantBasis, got.Basis)
			assert.Equal(t, "USD", got.Currency)
		})
	}
}

func TestNextDividend_PayDate(t *testing.T) {
	p := NewDividendProcessor()
	data := &models.MarketData{
		Dividends:   quarterly("0.5", day(2024, 2, 10), day(2024, 5, 10)),
		NextExDate:  ptr(day(2024, 8, 10)),
		NextPayDate: ptr(day(2024, 9, 1)),
	}

	got, ok := p.NextDividend(data, day(2024, 6, 1))
	require.True(t, ok)
	require.NotNil(t, got.PayDate)
	assert.Equal(t, day(2024, 9, 1), *got.PayDate)

	// A pay date older than the ex-date belongs to the previous payment.
	data.NextPayDate = ptr(day(2024, 5, 30))
	got, ok = p.NextDividend(data, day(2024, 6, 1))
	require.True(t, ok)
	assert.Nil(t, got.PayDate)
}

func TestEstimateNextExDate_TruncatesMeanInterval(t *testing.T) {
	// Intervals of 91 and 92 days average to 91.5, truncated to 91.
	events := quarterly("1", day(2024, 1, 1), day(2024, 4, 1), day(2024, 7, 2))
	next, ok := EstimateNextExDate(events)
	require.True(t, ok)
	assert.Equal(t, day(2024, 10, 1), next)
}

func TestSharesAsOf(t *testing.T) {
	orders := []models.Order{
		{Symbol: "AAPL", FilledQuantity: decimal.NewFromInt(10), ExecutedAt: time.Date(2024, 1, 5, 15, 0, 0, 0, time.UTC)},
		{Symbol: "AAPL", FilledQuantity: decimal.NewFromInt(-4), ExecutedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{Symbol: "AAPL", FilledQuantity: decimal.NewFromInt(6), ExecutedAt: time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)},
		{Symbol: "MSFT", FilledQuantity: decimal.NewFromInt(3), ExecutedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	p := NewDividendProcessor()
	assert.True(t, p.SharesAsOf(orders, "AAPL", day(2024, 1, 5)).IsZero(), "same-day order after midnight is not counted")
	assert.True(t, p.SharesAsOf(orders, "AAPL", day(2024, 2, 1)).Equal(decimal.NewFromInt(10)))
	assert.True(t, p.SharesAsOf(orders, "AAPL", day(2024, 5, 10)).Equal(decimal.NewFromInt(6)), "orders exactly at the cutoff are excluded")
	assert.True(t, p.SharesAsOf(orders, "AAPL", day(2024, 6, 1)).Equal(decimal.NewFromInt(12)))
	assert.True(t, p.SharesAsOf(orders, "TSLA", day(2024, 6, 1)).IsZero())

	snapshot := p.HoldingsAsOf(append(orders, models.Order{Symbol: "MSFT", FilledQuantity: decimal.NewFromInt(-3), ExecutedAt: day(2024, 2, 1)}), day(2024, 4, 1))
	assert.Len(t, snapshot, 1)
	assert.True(t, snapshot["AAPL"].Equal(decimal.NewFromInt(6)))
}

func TestNormalisePence(t *testing.T) {
	amount, currency := NormalisePence(decimal.RequireFromString("3.9"), "GBX")
	assert.Equal(t, "GBP", currency)
	assert.True(t, amount.Equal(decimal.RequireFromString("0.039")))

	amount, currency = NormalisePence(decimal.RequireFromString("0.25"), "USD")
	assert.Equal(t, "USD", currency)
	assert.True(t, amount.Equal(decimal.RequireFromString("0.25")))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, "10.13", Round2(decimal.RequireFromString("10.125")).String())
	assert.Equal(t, "0.79", Round2(decimal.RequireFromString("0.7899")).String())
}

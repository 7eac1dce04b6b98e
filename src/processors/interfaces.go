package processors

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/divtracker/src/models"
)

// Projection is the next expected dividend for one symbol, before share counts and conversion.
type Projection struct {
	ExDate      time.Time
	PayDate     *time.Time
	Amount      decimal.Decimal // Per share, in Currency
	Currency    string
	IsEstimated bool
	Basis       string
}

// DividendProcessor holds the pure dividend calculations.
type DividendProcessor interface {
	// NextDividend projects the next ex-dividend after today. ok is false when none can be projected.
	NextDividend(data *models.MarketData, today time.Time) (projection Projection, ok bool)
	// SharesAsOf replays filled orders executed strictly before cutoff.
	SharesAsOf(orders []models.Order, symbol string, cutoff time.Time) decimal.Decimal
	// HoldingsAsOf replays all filled orders before cutoff, keeping positive positions only.
	HoldingsAsOf(orders []models.Order, cutoff time.Time) map[string]decimal.Decimal
}

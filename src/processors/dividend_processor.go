package processors

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/divtracker/src/models"
)

// An announced ex-date matches a historical payment this many days either side.
const announcedMatchWindowDays = 7

var hundred = decimal.NewFromInt(100)

// dividendProcessorImpl implements the DividendProcessor interface.
type dividendProcessorImpl struct{}

// NewDividendProcessor creates a new instance of DividendProcessor.
func NewDividendProcessor() DividendProcessor {
	return &dividendProcessorImpl{}
}

// NextDividend picks an announced ex-date when the provider has one after today,
// otherwise projects one from the average interval between past payments.
func (p *dividendProcessorImpl) NextDividend(data *models.MarketData, today time.Time) (Projection, bool) {
	if data == nil || len(data.Dividends) == 0 {
		return Projection{}, false
	}
	today = DateOf(today)
	events := data.Dividends
	last := events[len(events)-1]

	if data.NextExDate != nil && DateOf(*data.NextExDate).After(today) {
		exDate := DateOf(*data.NextExDate)
		payDate := payDateFor(exDate, data.NextPayDate)

		for _, ev := range events {
			if absDays(ev.ExDate, exDate) <= announcedMatchWindowDays {
				return Projection{
					ExDate:   exDate,
					PayDate:  payDate,
					Amount:   ev.Amount,
					Currency: ev.Currency,
					Basis:    models.BasisAnnounced,
				}, true
			}
		}
		return Projection{
			ExDate:      exDate,
			PayDate:     payDate,
			Amount:      last.Amount,
			Currency:    last.Currency,
			IsEstimated: true,
			Basis:       models.BasisAnnouncedDate,
		}, true
	}

	next, ok := EstimateNextExDate(events)
	if !ok || !next.After(today) {
		return Projection{}, false
	}
	return Projection{
		ExDate:      next,
		Amount:      last.Amount,
		Currency:    last.Currency,
		IsEstimated: true,
		Basis:       models.BasisCadence,
	}, true
}

// EstimateNextExDate adds the truncated mean interval between payments to the last ex-date.
// Events must be ascending. At least two are needed.
func EstimateNextExDate(events []models.DividendEvent) (time.Time, bool) {
	if len(events) < 2 {
		return time.Time{}, false
	}
	first := DateOf(events[0].ExDate)
	last := DateOf(events[len(events)-1].ExDate)
	total := int(last.Sub(first).Hours() / 24)
	avg := total / (len(events) - 1)
	if avg <= 0 {
		return time.Time{}, false
	}
	return last.AddDate(0, 0, avg), true
}

// SharesAsOf replays filled orders for symbol executed strictly before cutoff.
func (p *dividendProcessorImpl) SharesAsOf(orders []models.Order, symbol string, cutoff time.Time) decimal.Decimal {
	shares := decimal.Zero
	for _, o := range orders {
		if o.Symbol != symbol || !o.ExecutedAt.Before(cutoff) {
			continue
		}
		shares = shares.Add(o.FilledQuantity)
	}
	if shares.IsNegative() {
		return decimal.Zero
	}
	return shares
}

// HoldingsAsOf replays every filled order before cutoff and drops closed positions.
func (p *dividendProcessorImpl) HoldingsAsOf(orders []models.Order, cutoff time.Time) map[string]decimal.Decimal {
	snapshot := make(map[string]decimal.Decimal)
	for _, o := range orders {
		if !o.ExecutedAt.Before(cutoff) {
			continue
		}
		snapshot[o.Symbol] = snapshot[o.Symbol].Add(o.FilledQuantity)
	}
	for symbol, shares := range snapshot {
		if !shares.IsPositive() {
			delete(snapshot, symbol)
		}
	}
	return snapshot
}

// NormalisePence converts a GBX amount to GBP. Other currencies pass through.
func NormalisePence(amount decimal.Decimal, currency string) (decimal.Decimal, string) {
	if currency == "GBX" {
		return amount.Div(hundred), "GBP"
	}
	return amount, currency
}

// Round2 rounds a monetary amount to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func payDateFor(exDate time.Time, announced *time.Time) *time.Time {
	if announced == nil {
		return nil
	}
	pay := DateOf(*announced)
	if pay.Before(exDate) {
		return nil
	}
	return &pay
}

func absDays(a, b time.Time) int {
	d := int(DateOf(a).Sub(DateOf(b)).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}

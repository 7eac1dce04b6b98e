package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/username/divtracker/src/model"
	"github.com/username/divtracker/src/models"
	"github.com/username/divtracker/src/utils"
)

const dateLayout = "2006-01-02"

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func optionalDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(dateLayout)
}

func renderHoldings(w io.Writer, holdings []models.Holding) {
	tw := newTable(w)
	fmt.Fprintln(tw, "SYMBOL\tTICKER\tQUANTITY\tAVG PRICE\tPRICE\tCOST BASIS")
	for _, h := range holdings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			h.Symbol, h.Ticker, h.Quantity.String(), h.AveragePrice.StringFixed(2), h.CurrentPrice.StringFixed(2), utils.FormatMoney(h.CostBasis, h.Currency))
	}
	tw.Flush()
}

func renderForecast(w io.Writer, r *models.ForecastReport) {
	tw := newTable(w)
	fmt.Fprintln(tw, "SYMBOL\tEX-DATE\tPAY DATE\tPER SHARE\tSHARES\tLOCAL\tPAYOUT\tBASIS")
	for _, f := range r.Forecasts {
		basis := f.Basis
		if f.IsEstimated {
			basis += " (est.)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\t%s\t%s\t%s\t%s\n",
			f.Symbol, f.ExDividendDate.Format(dateLayout), optionalDate(f.PayDate),
			f.DividendPerShare.String(), f.DividendCurrency, f.Shares.String(),
			utils.FormatMoney(f.LocalPayout, f.DividendCurrency), utils.FormatMoney(f.Payout, r.Currency), basis)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nTotal: %s\n", r.TotalFormatted)
	if len(r.WithoutDividends) > 0 {
		fmt.Fprintf(w, "No upcoming dividend: %v\n", r.WithoutDividends)
	}
	renderSkipped(w, r.Skipped)
}

func renderSummary(w io.Writer, s *models.DividendSummary) {
	fmt.Fprintf(w, "Expected income: %s\n", s.TotalFormatted)
	if s.NextDividend != nil {
		n := s.NextDividend
		fmt.Fprintf(w, "Next dividend:   %s on %s, %s\n", n.Symbol, n.ExDividendDate.Format(dateLayout), utils.FormatMoney(n.Payout, s.Currency))
	} else {
		fmt.Fprintln(w, "Next dividend:   none forecast")
	}
	fmt.Fprintf(w, "Confirmed:       %d\n", len(s.Confirmed))
	fmt.Fprintf(w, "Estimated:       %d\n", len(s.Estimated))
	fmt.Fprintf(w, "Holdings:        %d (%d skipped)\n", s.HoldingCount, s.SkippedCount)
}

func renderHistory(w io.Writer, r *models.DividendHistoryReport) {
	fmt.Fprintf(w, "Dividends from %s to %s\n\n", r.From.Format(dateLayout), r.To.Format(dateLayout))
	tw := newTable(w)
	fmt.Fprintln(tw, "SYMBOL\tEX-DATE\tSHARES\tPER SHARE\tPAYOUT")
	for _, d := range r.Dividends {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\t%s\n",
			d.Symbol, d.ExDate.Format(dateLayout), d.Shares.String(),
			d.DividendPerShare.String(), d.DividendCurrency, utils.FormatMoney(d.Payout, r.Currency))
	}
	tw.Flush()

	fmt.Fprintf(w, "\nTotal: %s\n", r.TotalFormatted)
	renderSkipped(w, r.Skipped)
}

func renderMarketData(w io.Writer, m *models.MarketData) {
	fmt.Fprintf(w, "%s (%s) %s %s\n", m.Symbol, m.ProviderSymbol, m.Price.StringFixed(2), m.Currency)
	fmt.Fprintf(w, "Next ex-date: %s, pay date: %s\n\n", optionalDate(m.NextExDate), optionalDate(m.NextPayDate))

	tw := newTable(w)
	fmt.Fprintln(tw, "EX-DATE\tAMOUNT")
	for _, d := range m.Dividends {
		fmt.Fprintf(tw, "%s\t%s %s\n", d.ExDate.Format(dateLayout), d.Amount.String(), d.Currency)
	}
	tw.Flush()
}

func renderSkipped(w io.Writer, skipped []models.SkippedHolding) {
	for _, s := range skipped {
		fmt.Fprintf(w, "Skipped %s: %s (%s)\n", s.Symbol, s.Reason, s.Kind)
	}
}

func renderRates(w io.Writer, rates []model.FXRate) {
	tw := newTable(w)
	fmt.Fprintln(tw, "PAIR\tRATE\tSOURCE\tFETCHED")
	for _, r := range rates {
		fmt.Fprintf(tw, "%s/%s\t%s\t%s\t%s\n", r.Base, r.Quote, r.Rate.String(), r.Source, r.FetchedAt.UTC().Format(time.RFC3339))
	}
	tw.Flush()
}

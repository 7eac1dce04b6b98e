package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/username/divtracker/src/apperrors"
	"github.com/username/divtracker/src/config"
	"github.com/username/divtracker/src/logger"
	"github.com/username/divtracker/src/models"
	"github.com/username/divtracker/src/processors"
	"github.com/username/divtracker/src/utils"
)

// Skip reasons reported for holdings left out of a report.
const (
	SkipMarketData = "market_data"
	SkipFX         = "fx"
)

// MaxUpcomingDays bounds the upcoming window.
const MaxUpcomingDays = 366

// DividendServiceConfig holds the service settings taken from AppConfig.
type DividendServiceConfig struct {
	Currency       string
	MaxConcurrency int
	Policy         string
	HistoryYears   int
	Now            func() time.Time
}

// ServiceConfigFromApp copies the relevant settings out of cfg.
func ServiceConfigFromApp(cfg *config.AppConfig) DividendServiceConfig {
	return DividendServiceConfig{
		Currency:       cfg.FXBaseCurrency,
		MaxConcurrency: cfg.MaxConcurrency,
		Policy:         cfg.PartialFailurePolicy,
		HistoryYears:   cfg.HistoryYears,
	}
}

type dividendServiceImpl struct {
	broker    Brokerage
	market    MarketData
	fx        CurrencyConverter
	processor processors.DividendProcessor
	cfg       DividendServiceConfig
}

// NewDividendService creates the dividend service.
func NewDividendService(broker Brokerage, market MarketData, fx CurrencyConverter, processor processors.DividendProcessor, cfg DividendServiceConfig) DividendService {
	if cfg.Currency == "" {
		cfg.Currency = "GBP"
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if cfg.Policy == "" {
		cfg.Policy = config.PolicyOmit
	}
	if cfg.HistoryYears < 1 {
		cfg.HistoryYears = 5
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &dividendServiceImpl{
		broker:    broker,
		market:    market,
		fx:        fx,
		processor: processor,
		cfg:       cfg,
	}
}

// holdingOutcome is what processing one holding produced. At most one field is set.
type holdingOutcome struct {
	forecast   *models.DividendForecast
	received   []models.ReceivedDividend
	noDividend bool
	skipped    *models.SkippedHolding
}

func (s *dividendServiceImpl) Portfolio(ctx context.Context) ([]models.Holding, error) {
	holdings, err := s.broker.FetchHoldings(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching holdings: %w", err)
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Symbol < holdings[j].Symbol })
	return holdings, nil
}

func (s *dividendServiceImpl) Forecast(ctx context.Context) (*models.ForecastReport, error) {
	log := logger.FromContext(ctx)

	holdings, err := s.broker.FetchHoldings(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching holdings: %w", err)
	}

	now := s.cfg.Now()
	today := processors.DateOf(now)
	from := today.AddDate(-s.cfg.HistoryYears, 0, 0)
	to := today.AddDate(0, 0, 1)

	outcomes, err := s.fanOut(ctx, len(holdings), func(ctx context.Context, i int) (holdingOutcome, error) {
		return s.forecastHolding(ctx, holdings[i], today, from, to)
	})
	if err != nil {
		return nil, err
	}

	report := &models.ForecastReport{
		Currency:         s.cfg.Currency,
		GeneratedAt:      now.UTC(),
		Forecasts:        []models.DividendForecast{},
		WithoutDividends: []string{},
		Skipped:          []models.SkippedHolding{},
	}
	for i, out := range outcomes {
		switch {
		case out.forecast != nil:
			report.Forecasts = append(report.Forecasts, *out.forecast)
		case out.skipped != nil:
			report.Skipped = append(report.Skipped, *out.skipped)
		case out.noDividend:
			report.WithoutDividends = append(report.WithoutDividends, holdings[i].Symbol)
		}
	}
	sortForecasts(report.Forecasts)
	sort.Strings(report.WithoutDividends)
	sortSkipped(report.Skipped)
	s.setTotal(report)

	log.Info().
		Int("holdings", len(holdings)).
		Int("forecasts", len(report.Forecasts)).
		Int("skipped", len(report.Skipped)).
		Str("total", report.Total.StringFixed(2)).
		Msg("Dividend forecast computed")
	return report, nil
}

func (s *dividendServiceImpl) forecastHolding(ctx context.Context, h models.Holding, today, from, to time.Time) (holdingOutcome, error) {
	log := logger.FromContext(ctx)

	data, err := s.market.FetchMarketData(ctx, h.Symbol, from, to)
	if err != nil {
		log.Warn().Err(err).Str("symbol", h.Symbol).Msg("Market data unavailable for holding")
		return skip(h.Symbol, SkipMarketData, err), err
	}

	projection, ok := s.processor.NextDividend(data, today)
	if !ok {
		return holdingOutcome{noDividend: true}, nil
	}

	perShare, currency := processors.NormalisePence(projection.Amount, projection.Currency)
	local := processors.Round2(h.Quantity.Mul(perShare))

	payout, rate, source, err := s.fx.Convert(ctx, local, currency, s.cfg.Currency)
	if err != nil {
		log.Warn().Err(err).Str("symbol", h.Symbol).Str("currency", currency).Msg("No exchange rate for holding")
		return skip(h.Symbol, SkipFX, err), fmt.Errorf("converting %s dividend: %w", h.Symbol, err)
	}

	return holdingOutcome{forecast: &models.DividendForecast{
		Symbol:           h.Symbol,
		ExDividendDate:   projection.ExDate,
		PayDate:          projection.PayDate,
		DividendPerShare: perShare,
		DividendCurrency: currency,
		Shares:           h.Quantity,
		LocalPayout:      local,
		FXRate:           rate,
		FXSource:         source,
		Payout:           payout,
		IsEstimated:      projection.IsEstimated,
		Basis:            projection.Basis,
	}}, nil
}

func (s *dividendServiceImpl) Summary(ctx context.Context) (*models.DividendSummary, error) {
	report, err := s.Forecast(ctx)
	if err != nil {
		return nil, err
	}

	summary := &models.DividendSummary{
		Currency:       report.Currency,
		TotalExpected:  report.Total,
		TotalFormatted: report.TotalFormatted,
		Confirmed:      []models.DividendForecast{},
		Estimated:      []models.DividendForecast{},
		HoldingCount:   len(report.Forecasts) + len(report.WithoutDividends) + len(report.Skipped),
		SkippedCount:   len(report.Skipped),
	}
	for _, f := range report.Forecasts {
		if f.IsEstimated {
			summary.Estimated = append(summary.Estimated, f)
		} else {
			summary.Confirmed = append(summary.Confirmed, f)
		}
	}
	if len(report.Forecasts) > 0 {
		next := report.Forecasts[0]
		summary.NextDividend = &next
	}
	return summary, nil
}

func (s *dividendServiceImpl) Upcoming(ctx context.Context, days int) (*models.ForecastReport, error) {
	if days < 1 || days > MaxUpcomingDays {
		return nil, apperrors.Invalid("days must be between 1 and %d, got %d", MaxUpcomingDays, days)
	}

	report, err := s.Forecast(ctx)
	if err != nil {
		return nil, err
	}

	today := processors.DateOf(s.cfg.Now())
	cutoff := today.AddDate(0, 0, days)
	upcoming := make([]models.DividendForecast, 0, len(report.Forecasts))
	for _, f := range report.Forecasts {
		if f.ExDividendDate.After(today) && !f.ExDividendDate.After(cutoff) {
			upcoming = append(upcoming, f)
		}
	}
	report.Forecasts = upcoming
	s.setTotal(report)
	return report, nil
}

func (s *dividendServiceImpl) History(ctx context.Context, from, to time.Time) (*models.DividendHistoryReport, error) {
	from, to = processors.DateOf(from), processors.DateOf(to)
	if to.Before(from) {
		return nil, apperrors.Invalid("from %s is after to %s", from.Format(time.DateOnly), to.Format(time.DateOnly))
	}

	orders, err := s.broker.FetchOrderHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching order history: %w", err)
	}

	// Only symbols held at the start of the period or traded during it can have paid anything.
	symbolSet := make(map[string]bool)
	for sym := range s.processor.HoldingsAsOf(orders, from) {
		symbolSet[sym] = true
	}
	for _, o := range orders {
		if !o.ExecutedAt.Before(from) && o.ExecutedAt.Before(to) {
			symbolSet[o.Symbol] = true
		}
	}
	symbols := make([]string, 0, len(symbolSet))
	for sym := range symbolSet {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	outcomes, err := s.fanOut(ctx, len(symbols), func(ctx context.Context, i int) (holdingOutcome, error) {
		return s.receivedForSymbol(ctx, symbols[i], orders, from, to)
	})
	if err != nil {
		return nil, err
	}

	report := &models.DividendHistoryReport{
		Currency:  s.cfg.Currency,
		From:      from,
		To:        to,
		Dividends: []models.ReceivedDividend{},
		Skipped:   []models.SkippedHolding{},
	}
	for _, out := range outcomes {
		report.Dividends = append(report.Dividends, out.received...)
		if out.skipped != nil {
			report.Skipped = append(report.Skipped, *out.skipped)
		}
	}
	sort.SliceStable(report.Dividends, func(i, j int) bool {
		a, b := report.Dividends[i], report.Dividends[j]
		if !a.ExDate.Equal(b.ExDate) {
			return a.ExDate.Before(b.ExDate)
		}
		return a.Symbol < b.Symbol
	})
	sortSkipped(report.Skipped)

	total := decimal.Zero
	for _, d := range report.Dividends {
		total = total.Add(d.Payout)
	}
	report.Total = total
	report.TotalFormatted = utils.FormatMoney(total, s.cfg.Currency)
	return report, nil
}

func (s *dividendServiceImpl) receivedForSymbol(ctx context.Context, symbol string, orders []models.Order, from, to time.Time) (holdingOutcome, error) {
	data, err := s.market.FetchMarketData(ctx, symbol, from, to.AddDate(0, 0, 1))
	if err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("symbol", symbol).Msg("Market data unavailable for history")
		return skip(symbol, SkipMarketData, err), err
	}

	var received []models.ReceivedDividend
	for _, ev := range data.Dividends {
		exDate := processors.DateOf(ev.ExDate)
		if exDate.Before(from) || exDate.After(to) {
			continue
		}
		shares := s.processor.SharesAsOf(orders, symbol, exDate)
		if !shares.IsPositive() {
			continue
		}

		perShare, currency := processors.NormalisePence(ev.Amount, ev.Currency)
		local := processors.Round2(shares.Mul(perShare))
		payout, rate, _, err := s.fx.Convert(ctx, local, currency, s.cfg.Currency)
		if err != nil {
			return skip(symbol, SkipFX, err), fmt.Errorf("converting %s dividend: %w", symbol, err)
		}

		received = append(received, models.ReceivedDividend{
			Symbol:           symbol,
			ExDate:           exDate,
			PayDate:          ev.PayDate,
			DividendPerShare: perShare,
			DividendCurrency: currency,
			Shares:           shares,
			LocalPayout:      local,
			FXRate:           rate,
			Payout:           payout,
		})
	}
	return holdingOutcome{received: received}, nil
}

func (s *dividendServiceImpl) SymbolDividends(ctx context.Context, symbol string, from, to time.Time) (*models.MarketData, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, apperrors.Invalid("symbol is required")
	}
	if to.Before(from) {
		return nil, apperrors.Invalid("from %s is after to %s", from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	return s.market.FetchMarketData(ctx, symbol, processors.DateOf(from), processors.DateOf(to).AddDate(0, 0, 1))
}

// fanOut runs work for n items with bounded concurrency. Under the fail policy the first
// per-item error cancels the rest and is returned. Under omit, errors stay in the outcomes.
func (s *dividendServiceImpl) fanOut(ctx context.Context, n int, work func(ctx context.Context, i int) (holdingOutcome, error)) ([]holdingOutcome, error) {
	outcomes := make([]holdingOutcome, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrency)

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			out, err := work(gctx, i)
			outcomes[i] = out
			if err != nil && s.cfg.Policy == config.PolicyFail {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// A cancelled request must not be reported as a portfolio full of skipped holdings.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (s *dividendServiceImpl) setTotal(report *models.ForecastReport) {
	total := decimal.Zero
	for _, f := range report.Forecasts {
		total = total.Add(f.Payout)
	}
	report.Total = total
	report.TotalFormatted = utils.FormatMoney(total, report.Currency)
}

func skip(symbol, reason string, err error) holdingOutcome {
	return holdingOutcome{skipped: &models.SkippedHolding{
		Symbol: symbol,
		Reason: reason,
		Kind:   apperrors.Kind(err),
	}}
}

func sortForecasts(forecasts []models.DividendForecast) {
	sort.SliceStable(forecasts, func(i, j int) bool {
		a, b := forecasts[i], forecasts[j]
		if !a.ExDividendDate.Equal(b.ExDividendDate) {
			return a.ExDividendDate.Before(b.ExDividendDate)
		}
		return a.Symbol < b.Symbol
	})
}

func sortSkipped(skipped []models.SkippedHolding) {
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Symbol < skipped[j].Symbol })
}

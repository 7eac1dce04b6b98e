package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/username/divtracker/src/app"
	"github.com/username/divtracker/src/config"
	"github.com/username/divtracker/src/logger"
	"github.com/username/divtracker/src/model"
	"github.com/username/divtracker/src/models"
	"github.com/username/divtracker/src/processors"
	"github.com/username/divtracker/src/security"
	"github.com/username/divtracker/src/security/validation"
	"github.com/username/divtracker/src/services"
)

var jsonOutput = flag.Bool("json", false, "Print JSON instead of a table")

// Register the subcommands.
func Register(c *subcommands.Commander) {
	c.Register(&portfolioCmd{}, "reports")
	c.Register(&dividendsCmd{}, "reports")
	c.Register(&summaryCmd{}, "reports")
	c.Register(&upcomingCmd{}, "reports")
	c.Register(&historyCmd{}, "reports")
	c.Register(&symbolCmd{}, "reports")
	c.Register(&ratesCmd{}, "reports")

	c.Register(&tokenCmd{}, "access")
}

// openApp loads the configuration and wires the service. Logs go to stderr so
// that stdout only carries the report.
func openApp() (*app.App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger.L = logger.New(os.Stderr, cfg.LogLevel, "console")
	// No cron jobs in the CLI.
	cfg.FXRefreshCron = ""
	return app.New(cfg, logger.L)
}

// report runs fetch against the service and prints the result as JSON or a table.
func report[T any](ctx context.Context, fetch func(context.Context, services.DividendService) (T, error), table func(io.Writer, T)) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(ctx, a.RequestTimeout())
	defer cancel()

	v, err := fetch(ctx, a.Service)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := write(os.Stdout, *jsonOutput, v, table); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func write[T any](w io.Writer, asJSON bool, v T, table func(io.Writer, T)) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	table(w, v)
	return nil
}

type portfolioCmd struct{}

func (*portfolioCmd) Name() string     { return "portfolio" }
func (*portfolioCmd) Synopsis() string { return "list the current brokerage holdings" }
func (*portfolioCmd) Usage() string {
	return `divtrack portfolio

  Lists every open position held at the broker.
`
}
func (*portfolioCmd) SetFlags(*flag.FlagSet) {}

func (*portfolioCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return report(ctx, func(ctx context.Context, s services.DividendService) ([]models.Holding, error) {
		return s.Portfolio(ctx)
	}, renderHoldings)
}

type dividendsCmd struct{}

func (*dividendsCmd) Name() string     { return "dividends" }
func (*dividendsCmd) Synopsis() string { return "forecast the next dividend of every holding" }
func (*dividendsCmd) Usage() string {
	return `divtrack dividends

  Forecasts the next dividend per holding, converted to the configured currency.
`
}
func (*dividendsCmd) SetFlags(*flag.FlagSet) {}

func (*dividendsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return report(ctx, func(ctx context.Context, s services.DividendService) (*models.ForecastReport, error) {
		return s.Forecast(ctx)
	}, renderForecast)
}

type summaryCmd struct{}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "display the expected dividend income summary" }
func (*summaryCmd) Usage() string {
	return `divtrack summary

  Displays the total expected income, the next payment and the confirmed vs estimated split.
`
}
func (*summaryCmd) SetFlags(*flag.FlagSet) {}

func (*summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return report(ctx, func(ctx context.Context, s services.DividendService) (*models.DividendSummary, error) {
		return s.Summary(ctx)
	}, renderSummary)
}

type upcomingCmd struct {
	days int
}

func (*upcomingCmd) Name() string     { return "upcoming" }
func (*upcomingCmd) Synopsis() string { return "list dividends going ex within a number of days" }
func (*upcomingCmd) Usage() string {
	return `divtrack upcoming [-days <n>]

  Lists forecasts whose ex-dividend date falls within the next n days.
`
}

func (c *upcomingCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.days, "days", 30, "Window in days, between 1 and 366.")
}

func (c *upcomingCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.days < 1 || c.days > services.MaxUpcomingDays {
		fmt.Fprintf(os.Stderr, "Error: -days must be between 1 and %d\n", services.MaxUpcomingDays)
		return subcommands.ExitUsageError
	}
	return report(ctx, func(ctx context.Context, s services.DividendService) (*models.ForecastReport, error) {
		return s.Upcoming(ctx, c.days)
	}, renderForecast)
}

type historyCmd struct {
	from string
	to   string
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "list dividends received over a period" }
func (*historyCmd) Usage() string {
	return `divtrack history [-from YYYY-MM-DD] [-to YYYY-MM-DD]

  Lists the dividends paid on the shares held at each ex-date. Defaults to the last twelve months.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "from", "", "First ex-date to include.")
	f.StringVar(&c.to, "to", "", "Last ex-date to include.")
}

func (c *historyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	today := processors.DateOf(time.Now())
	from, to, err := validation.ValidateDateRange(c.from, c.to, today.AddDate(-1, 0, 0), today)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return report(ctx, func(ctx context.Context, s services.DividendService) (*models.DividendHistoryReport, error) {
		return s.History(ctx, from, to)
	}, renderHistory)
}

type symbolCmd struct {
	from string
	to   string
}

func (*symbolCmd) Name() string     { return "symbol" }
func (*symbolCmd) Synopsis() string { return "show the dividend history of one symbol" }
func (*symbolCmd) Usage() string {
	return `divtrack symbol [-from YYYY-MM-DD] [-to YYYY-MM-DD] <symbol>

  Shows price, currency and past dividends for a broker symbol such as VODl or AAPL.
`
}

func (c *symbolCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "from", "", "Start of the range. Defaults to five years ago.")
	f.StringVar(&c.to, "to", "", "End of the range. Defaults to today.")
}

func (c *symbolCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one symbol is required")
		return subcommands.ExitUsageError
	}
	symbol, err := validation.ValidateSymbol(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	today := processors.DateOf(time.Now())
	from, to, err := validation.ValidateDateRange(c.from, c.to, today.AddDate(-5, 0, 0), today)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return report(ctx, func(ctx context.Context, s services.DividendService) (*models.MarketData, error) {
		return s.SymbolDividends(ctx, symbol, from, to)
	}, renderMarketData)
}

type ratesCmd struct {
	warm bool
}

func (*ratesCmd) Name() string     { return "rates" }
func (*ratesCmd) Synopsis() string { return "list the last stored exchange rates" }
func (*ratesCmd) Usage() string {
	return `divtrack rates [-warm]

  Lists the exchange rates kept in the database. With -warm, FX_WARM_CURRENCIES are fetched first.
`
}

func (c *ratesCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.warm, "warm", false, "Fetch live rates for FX_WARM_CURRENCIES before listing.")
}

func (c *ratesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()
	if a.DB == nil {
		fmt.Fprintln(os.Stderr, "Error: DATABASE_PATH is empty, no rates are stored")
		return subcommands.ExitFailure
	}

	ctx, cancel := context.WithTimeout(ctx, a.RequestTimeout())
	defer cancel()

	if c.warm {
		if err := a.FX.Warm(ctx, a.Config.FXWarmCurrencies, a.Config.FXBaseCurrency); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	rates, err := model.ListFXRates(ctx, a.DB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := write(os.Stdout, *jsonOutput, rates, renderRates); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type tokenCmd struct {
	subject string
	ttl     time.Duration
}

func (*tokenCmd) Name() string     { return "token" }
func (*tokenCmd) Synopsis() string { return "mint an API access token" }
func (*tokenCmd) Usage() string {
	return `divtrack token [-sub <subject>] [-ttl <duration>]

  Prints a bearer token signed with API_JWT_SECRET.
`
}

func (c *tokenCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.subject, "sub", "divtrack-cli", "Token subject.")
	f.DurationVar(&c.ttl, "ttl", 30*24*time.Hour, "Token lifetime.")
}

func (c *tokenCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return subcommands.ExitFailure
	}
	token, err := security.NewAuthService(cfg.APIJWTSecret).GenerateToken(c.subject, c.ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Println(token)
	return subcommands.ExitSuccess
}

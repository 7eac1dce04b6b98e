// Package app wires configuration into clients, processors and the dividend service.
// The HTTP server and the CLI share it.
package app

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/username/divtracker/src/apperrors"
	"github.com/username/divtracker/src/clients/trading212"
	"github.com/username/divtracker/src/clients/yahoo"
	"github.com/username/divtracker/src/config"
	"github.com/username/divtracker/src/database"
	"github.com/username/divtracker/src/handlers"
	"github.com/username/divtracker/src/processors"
	"github.com/username/divtracker/src/scheduler"
	"github.com/username/divtracker/src/security"
	"github.com/username/divtracker/src/services"
)

// App holds the wired dependencies.
type App struct {
	Config    *config.AppConfig
	DB        *sql.DB
	Broker    *trading212.Client
	Market    *yahoo.Client
	FX        *processors.ExchangeRateProcessor
	Service   services.DividendService
	Auth      *security.AuthService // nil when API_JWT_SECRET is empty
	Scheduler *scheduler.Scheduler  // nil when FX_REFRESH_CRON is empty

	fxJob *scheduler.FXWarmJob
	log   zerolog.Logger
}

// New builds every dependency from cfg. The SQLite store is opened and migrated
// unless DATABASE_PATH is empty.
func New(cfg *config.AppConfig, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, log: log}

	fxOpts := []processors.ExchangeRateOption{
		processors.WithFXTimeout(cfg.UpstreamTimeout),
		processors.WithFXLogger(log),
	}
	if cfg.DatabasePath != "" {
		db, err := database.Open(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("opening database %s: %w", cfg.DatabasePath, err)
		}
		a.DB = db
		fxOpts = append(fxOpts, processors.WithFXStore(db))
	}

	a.Broker = trading212.NewClient(cfg.T212Key,
		trading212.WithBaseURL(cfg.BaseURL),
		trading212.WithAPISecret(cfg.T212Secret),
		trading212.WithLogger(log),
		trading212.WithRateLimit(cfg.T212RateLimit),
		trading212.WithTimeout(cfg.UpstreamTimeout),
		trading212.WithRetries(cfg.UpstreamRetries, trading212.DefaultRetryWait),
	)
	a.Market = yahoo.NewClient(
		yahoo.WithBaseURL(cfg.YahooBaseURL),
		yahoo.WithLogger(log),
		yahoo.WithRateLimit(cfg.YahooRateLimit),
		yahoo.WithTimeout(cfg.UpstreamTimeout),
		yahoo.WithOverrides(cfg.TickerOverrides),
		yahoo.WithCacheTTL(cfg.CacheTTL),
	)
	a.FX = processors.NewExchangeRateProcessor(cfg.FXURL, cfg.FXRatePath, fxOpts...)

	a.Service = services.NewDividendService(a.Broker, a.Market, a.FX, processors.NewDividendProcessor(), services.ServiceConfigFromApp(cfg))

	if cfg.APIJWTSecret != "" {
		a.Auth = security.NewAuthService(cfg.APIJWTSecret)
	}

	if cfg.FXRefreshCron != "" {
		a.Scheduler = scheduler.New(log)
		a.fxJob = scheduler.NewFXWarmJob(a.FX, cfg.FXWarmCurrencies, cfg.FXBaseCurrency, 2*cfg.UpstreamTimeout)
		if err := a.Scheduler.AddJob(cfg.FXRefreshCron, a.fxJob); err != nil {
			a.Close()
			return nil, apperrors.Config("FX_REFRESH_CRON", err.Error())
		}
	}
	return a, nil
}

// Router returns the HTTP handler for the API.
func (a *App) Router() http.Handler {
	rc := handlers.RouterConfig{
		CORSOrigins:       a.Config.CORSOrigins,
		RequestsPerSecond: a.Config.RequestsPerSecond,
		RequestTimeout:    a.RequestTimeout(),
	}
	if a.Auth != nil {
		rc.Auth = a.Auth
	}
	return handlers.NewRouter(handlers.NewDividendHandler(a.Service), handlers.NewPortfolioHandler(a.Service), rc)
}

// RequestTimeout bounds one API request, which may span several upstream calls.
func (a *App) RequestTimeout() time.Duration {
	return 3 * a.Config.UpstreamTimeout
}

// StartBackground starts the scheduler, if any, after an initial FX warm-up.
func (a *App) StartBackground() {
	if a.Scheduler == nil {
		return
	}
	go func() {
		if err := a.Scheduler.RunNow(a.fxJob); err != nil {
			a.log.Warn().Err(err).Msg("Initial FX warm-up failed")
		}
	}()
	a.Scheduler.Start()
}

// Close stops background work and releases the database.
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}

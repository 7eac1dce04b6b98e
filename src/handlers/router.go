package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/username/divtracker/src/utils"
)

// RouterConfig holds the settings the router needs from AppConfig.
type RouterConfig struct {
	CORSOrigins       []string
	RequestsPerSecond int
	RequestTimeout    time.Duration
	// Auth protects the data routes when set.
	Auth TokenValidator
}

// NewRouter builds the chi router with middleware and all routes.
func NewRouter(dividendHandler *DividendHandler, portfolioHandler *PortfolioHandler, cfg RouterConfig) http.Handler {
	rps := cfg.RequestsPerSecond
	if rps < 1 {
		rps = 1
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	limiter := rate.NewLimiter(rate.Limit(rps), rps*3)

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(ContextualLoggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", HandleRoot)
	r.Get("/health", HandleHealth)

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(limiter))
		r.Use(middleware.Timeout(timeout))
		if cfg.Auth != nil {
			r.Use(AuthMiddleware(cfg.Auth))
		}

		r.Get("/portfolio", portfolioHandler.HandleGetPortfolio)
		r.Route("/dividends", func(r chi.Router) {
			r.Get("/", dividendHandler.HandleGetDividends)
			r.Get("/summary", dividendHandler.HandleGetDividendSummary)
			r.Get("/upcoming", dividendHandler.HandleGetUpcomingDividends)
			r.Get("/history", dividendHandler.HandleGetDividendHistory)
			r.Get("/{symbol}", dividendHandler.HandleGetSymbolDividends)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.SendJSONError(w, "route not found", http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.SendJSONError(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

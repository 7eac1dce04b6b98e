package processors

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/username/divtracker/src/apperrors"
	"github.com/username/divtracker/src/model"
)

// Where a rate came from.
const (
	FXSourceIdentity = "identity"
	FXSourceCache    = "cache"
	FXSourceLive     = "live"
	FXSourceStored   = "stored"
	FXSourceFallback = "fallback"
)

const (
	DefaultFXURL      = "https://api.frankfurter.app/latest"
	DefaultFXRatePath = "$.rates.%s"
	fxServiceName     = "fx"
)

// Last-resort rates used when neither the provider nor the store can answer.
var fallbackRates = map[string]decimal.Decimal{
	"USD-GBP": decimal.RequireFromString("0.79"),
	"EUR-GBP": decimal.RequireFromString("0.86"),
	"GBX-GBP": decimal.RequireFromString("0.01"),
}

// ExchangeRateProcessor resolves and applies currency conversion rates.
type ExchangeRateProcessor struct {
	fxURL      string
	ratePath   string
	httpClient *http.Client
	db         *sql.DB
	rateCache  *gocache.Cache
	group      singleflight.Group
	logger     zerolog.Logger
	now        func() time.Time
}

// ExchangeRateOption configures the processor.
type ExchangeRateOption func(*ExchangeRateProcessor)

// WithFXStore keeps live rates in db and falls back to them when the provider fails.
func WithFXStore(db *sql.DB) ExchangeRateOption {
	return func(p *ExchangeRateProcessor) {
		p.db = db
	}
}

// WithFXTimeout sets the HTTP timeout for the rate provider.
func WithFXTimeout(timeout time.Duration) ExchangeRateOption {
	return func(p *ExchangeRateProcessor) {
		p.httpClient.Timeout = timeout
	}
}

// WithFXCacheTTL sets how long live rates are reused.
func WithFXCacheTTL(ttl time.Duration) ExchangeRateOption {
	return func(p *ExchangeRateProcessor) {
		p.rateCache = gocache.New(ttl, 2*ttl)
	}
}

// WithFXLogger sets the logger.
func WithFXLogger(logger zerolog.Logger) ExchangeRateOption {
	return func(p *ExchangeRateProcessor) {
		p.logger = logger.With().Str("component", fxServiceName).Logger()
	}
}

// NewExchangeRateProcessor builds a processor querying fxURL?base=X&symbols=Y and
// reading the rate at ratePath, where %s is replaced by the quote currency.
func NewExchangeRateProcessor(fxURL, ratePath string, opts ...ExchangeRateOption) *ExchangeRateProcessor {
	if fxURL == "" {
		fxURL = DefaultFXURL
	}
	if ratePath == "" {
		ratePath = DefaultFXRatePath
	}
	p := &ExchangeRateProcessor{
		fxURL:      fxURL,
		ratePath:   ratePath,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		rateCache:  gocache.New(time.Hour, 2*time.Hour),
		logger:     zerolog.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetExchangeRate returns the multiplier converting from into to, and where it came from.
// Lookup order is cache, live provider, stored rate, then the fallback table.
func (p *ExchangeRateProcessor) GetExchangeRate(ctx context.Context, from, to string) (decimal.Decimal, string, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), FXSourceIdentity, nil
	}
	if from == "GBX" {
		rate, source, err := p.GetExchangeRate(ctx, "GBP", to)
		if err != nil {
			return decimal.Zero, "", err
		}
		return rate.Div(hundred), source, nil
	}

	cacheKey := fmt.Sprintf("rate-%s-%s", from, to)
	if rate, found := p.rateCache.Get(cacheKey); found {
		return rate.(decimal.Decimal), FXSourceCache, nil
	}

	// The live lookup is detached from the first caller; each caller waits on its own ctx.
	ch := p.group.DoChan(cacheKey, func() (interface{}, error) {
		fetchCtx, cancel := p.detach(ctx)
		defer cancel()

		rate, err := p.fetchLive(fetchCtx, from, to)
		if err != nil {
			return nil, err
		}
		p.rateCache.Set(cacheKey, rate, gocache.DefaultExpiration)
		p.store(fetchCtx, from, to, rate)
		return rate, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return decimal.Zero, "", fmt.Errorf("exchange rate %s->%s: %w", from, to, ctx.Err())
	}
	if res.Err == nil {
		return res.Val.(decimal.Decimal), FXSourceLive, nil
	}
	liveErr := res.Err
	p.logger.Warn().Err(liveErr).Str("from", from).Str("to", to).Msg("Live exchange rate unavailable")

	if p.db != nil {
		stored, found, err := model.GetFXRate(ctx, p.db, from, to)
		if err != nil {
			p.logger.Warn().Err(err).Msg("Failed to read stored exchange rate")
		} else if found {
			p.logger.Info().Str("from", from).Str("to", to).Time("fetchedAt", stored.FetchedAt).Msg("Using stored exchange rate")
			return stored.Rate, FXSourceStored, nil
		}
	}

	if rate, ok := fallbackRates[from+"-"+to]; ok {
		p.logger.Info().Str("from", from).Str("to", to).Str("rate", rate.String()).Msg("Using fallback exchange rate")
		return rate, FXSourceFallback, nil
	}

	return decimal.Zero, "", fmt.Errorf("%w: exchange rate not found for %s->%s: %v", apperrors.ErrUpstream, from, to, liveErr)
}

// Convert returns round2(amount x rate) with the rate used and its source.
func (p *ExchangeRateProcessor) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, decimal.Decimal, string, error) {
	rate, source, err := p.GetExchangeRate(ctx, from, to)
	if err != nil {
		return decimal.Zero, decimal.Zero, "", err
	}
	return Round2(amount.Mul(rate)), rate, source, nil
}

// Warm refreshes the live rate for each currency into to, bypassing the cache.
func (p *ExchangeRateProcessor) Warm(ctx context.Context, currencies []string, to string) error {
	to = strings.ToUpper(to)
	var failed []string
	for _, from := range currencies {
		from = strings.ToUpper(strings.TrimSpace(from))
		if from == "" || from == to || from == "GBX" {
			continue
		}
		rate, err := p.fetchLive(ctx, from, to)
		if err != nil {
			p.logger.Warn().Err(err).Str("from", from).Str("to", to).Msg("Exchange rate warm-up failed")
			failed = append(failed, from)
			continue
		}
		p.rateCache.Set(fmt.Sprintf("rate-%s-%s", from, to), rate, gocache.DefaultExpiration)
		p.store(ctx, from, to, rate)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: exchange rate warm-up failed for %s", apperrors.ErrUpstream, strings.Join(failed, ","))
	}
	return nil
}

// detach keeps ctx's values but not its cancellation, bounded by the HTTP timeout.
func (p *ExchangeRateProcessor) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if p.httpClient.Timeout > 0 {
		return context.WithTimeout(detached, p.httpClient.Timeout)
	}
	return context.WithCancel(detached)
}

func (p *ExchangeRateProcessor) fetchLive(ctx context.Context, from, to string) (decimal.Decimal, error) {
	u, err := url.Parse(p.fxURL)
	if err != nil {
		return decimal.Zero, apperrors.Config("FX_URL", err.Error())
	}
	q := u.Query()
	q.Set("base", from)
	q.Set("symbols", to)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, apperrors.Upstream(fxServiceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, &apperrors.APIError{
			Service:    fxServiceName,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Endpoint:   u.Path,
		}
	}

	var payload interface{}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return decimal.Zero, apperrors.Upstream(fxServiceName, fmt.Errorf("failed to decode response: %w", err))
	}

	path := fmt.Sprintf(p.ratePath, to)
	value, err := jsonpath.Get(path, payload)
	if err != nil {
		return decimal.Zero, apperrors.Upstream(fxServiceName, fmt.Errorf("rate not found at %s: %w", path, err))
	}

	rate, err := toDecimal(value)
	if err != nil || !rate.IsPositive() {
		return decimal.Zero, apperrors.Upstream(fxServiceName, fmt.Errorf("invalid rate %v at %s", value, path))
	}
	return rate, nil
}

func (p *ExchangeRateProcessor) store(ctx context.Context, from, to string, rate decimal.Decimal) {
	if p.db == nil {
		return
	}
	err := model.UpsertFXRate(ctx, p.db, model.FXRate{
		Base:      from,
		Quote:     to,
		Rate:      rate,
		Source:    FXSourceLive,
		FetchedAt: p.now().UTC(),
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("from", from).Str("to", to).Msg("Failed to store exchange rate")
	}
}

func toDecimal(v interface{}) (decimal.Decimal, error) {
	switch n := v.(type) {
	case json.Number:
		return decimal.NewFromString(n.String())
	case float64:
		return decimal.NewFromFloat(n), nil
	case string:
		return decimal.NewFromString(n)
	default:
		return decimal.Zero, fmt.Errorf("unexpected rate type %T", v)
	}
}

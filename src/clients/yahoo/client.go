// Package yahoo provides a market-data client for the Yahoo Finance chart and quoteSummary endpoints.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/username/divtracker/src/apperrors"
	"github.com/username/divtracker/src/models"
)

const (
	DefaultBaseURL   = "https://query1.finance.yahoo.com"
	DefaultTimeout   = 20 * time.Second
	DefaultRateLimit = 5 // requests per second
	DefaultCacheTTL  = time.Hour

	serviceName       = "yahoo"
	userAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	maxErrorBodyBytes = 512
	sessionKey        = "session"
)

// Pages visited to collect the consent cookies Yahoo wants before it hands out a crumb.
var defaultSessionURLs = []string{"https://fc.yahoo.com", "https://finance.yahoo.com"}

// Client fetches prices, dividend history and announced dividend dates.
type Client struct {
	baseURL     string
	sessionURLs []string
	httpClient  *http.Client
	logger      zerolog.Logger
	limiter     *rate.Limiter
	overrides   map[string]string
	cache       *gocache.Cache
	group       singleflight.Group

	mu           sync.Mutex
	crumb        string
	sessionTried time.Time
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithSessionURLs replaces the pages used to prime session cookies. None disables priming.
func WithSessionURLs(urls ...string) ClientOption {
	return func(c *Client) {
		c.sessionURLs = urls
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger.With().Str("client", serviceName).Logger()
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithOverrides sets the broker-to-provider symbol overrides.
func WithOverrides(overrides map[string]string) ClientOption {
	return func(c *Client) {
		c.overrides = overrides
	}
}

// WithCacheTTL sets how long market data is reused.
func WithCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.cache = gocache.New(ttl, 2*ttl)
	}
}

// NewClient creates a new Yahoo Finance client
func NewClient(opts ...ClientOption) *Client {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	c := &Client{
		baseURL:     DefaultBaseURL,
		sessionURLs: defaultSessionURLs,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: DefaultTimeout,
		},
		limiter:   rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:    zerolog.Nop(),
		overrides: DefaultOverrides,
		cache:     gocache.New(DefaultCacheTTL, 2*DefaultCacheTTL),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchMarketData returns price, currency, dividend history between from and to, and any
// announced upcoming dividend for a broker symbol.
func (c *Client) FetchMarketData(ctx context.Context, symbol string, from, to time.Time) (*models.MarketData, error) {
	providerSymbol := ProviderSymbol(symbol, c.overrides)
	key := fmt.Sprintf("md-%s-%s-%s", providerSymbol, from.Format(time.DateOnly), to.Format(time.DateOnly))

	if cached, found := c.cache.Get(key); found {
		return cloneMarketData(cached.(*models.MarketData), symbol), nil
	}

	// The shared fetch is detached from the first caller; each caller waits on its own ctx.
	ch := c.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := c.detach(ctx)
		defer cancel()

		data, err := c.fetch(fetchCtx, providerSymbol, from, to)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, data, gocache.DefaultExpiration)
		return data, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("market data for %s (%s): %w", symbol, providerSymbol, ctx.Err())
	}
	if res.Err != nil {
		return nil, fmt.Errorf("market data for %s (%s): %w", symbol, providerSymbol, res.Err)
	}
	if res.Shared {
		c.logger.Debug().Str("symbol", providerSymbol).Msg("Shared in-flight market data request")
	}
	return cloneMarketData(res.Val.(*models.MarketData), symbol), nil
}

func (c *Client) fetch(ctx context.Context, providerSymbol string, from, to time.Time) (*models.MarketData, error) {
	c.ensureSession(ctx)

	query := url.Values{}
	query.Set("period1", fmt.Sprintf("%d", from.Unix()))
	query.Set("period2", fmt.Sprintf("%d", to.Unix()))
	query.Set("interval", "1d")
	query.Set("events", "div")

	var chart chartResponse
	if err := c.get(ctx, "/v8/finance/chart/"+url.PathEscape(providerSymbol), query, &chart); err != nil {
		return nil, err
	}
	if chart.Chart.Error != nil {
		if strings.EqualFold(chart.Chart.Error.Code, "Not Found") {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrNotFound, chart.Chart.Error.Description)
		}
		return nil, apperrors.Upstream(serviceName, fmt.Errorf("chart error %s: %s", chart.Chart.Error.Code, chart.Chart.Error.Description))
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: no chart data for %s", apperrors.ErrNotFound, providerSymbol)
	}

	result := chart.Chart.Result[0]
	currency := NormaliseCurrency(result.Meta.Currency)
	exchange := result.Meta.FullExchangeName
	if exchange == "" {
		exchange = result.Meta.ExchangeName
	}

	data := &models.MarketData{
		ProviderSymbol: providerSymbol,
		Price:          decimal.NewFromFloat(result.Meta.RegularMarketPrice),
		Currency:       currency,
		Exchange:       exchange,
		Dividends:      make([]models.DividendEvent, 0, len(result.Events.Dividends)),
	}
	for _, div := range result.Events.Dividends {
		if div.Amount <= 0 {
			continue
		}
		data.Dividends = append(data.Dividends, models.DividendEvent{
			ExDate:   unixDate(div.Date),
			Amount:   decimal.NewFromFloat(div.Amount),
			Currency: currency,
		})
	}
	sort.Slice(data.Dividends, func(i, j int) bool {
		return data.Dividends[i].ExDate.Before(data.Dividends[j].ExDate)
	})

	c.applyCalendar(ctx, providerSymbol, data)

	c.logger.Debug().
		Str("symbol", providerSymbol).
		Str("currency", currency).
		Int("dividends", len(data.Dividends)).
		Msg("Fetched market data")
	return data, nil
}

// applyCalendar adds the announced ex-date and pay date. Failures mean nothing is announced.
func (c *Client) applyCalendar(ctx context.Context, providerSymbol string, data *models.MarketData) {
	query := url.Values{}
	query.Set("modules", "calendarEvents")

	var summary quoteSummaryResponse
	if err := c.get(ctx, "/v10/finance/quoteSummary/"+url.PathEscape(providerSymbol), query, &summary); err != nil {
		c.logger.Warn().Err(err).Str("symbol", providerSymbol).Msg("Calendar events unavailable")
		return
	}
	if len(summary.QuoteSummary.Result) == 0 {
		return
	}

	events := summary.QuoteSummary.Result[0].CalendarEvents
	if events.ExDividendDate.Raw > 0 {
		exDate := unixDate(events.ExDividendDate.Raw)
		data.NextExDate = &exDate
	}
	if events.DividendDate.Raw > 0 {
		payDate := unixDate(events.DividendDate.Raw)
		data.NextPayDate = &payDate
	}
}

// get performs a rate-limited GET against the provider. A 401 refreshes the session once.
func (c *Client) get(ctx context.Context, path string, query url.Values, result interface{}) error {
	for attempt := 0; ; attempt++ {
		status, err := c.do(ctx, path, query, result)
		if status == http.StatusUnauthorized && attempt == 0 {
			c.logger.Info().Str("endpoint", path).Msg("Yahoo session rejected, refreshing crumb")
			c.resetSession()
			c.ensureSession(ctx)
			continue
		}
		// A rejected provider session is an upstream problem, not a credentials problem for the caller.
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return apperrors.Upstream(serviceName, fmt.Errorf("session rejected on %s (status %d)", path, status))
		}
		return err
	}
}

func (c *Client) do(ctx context.Context, path string, query url.Values, result interface{}) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, apperrors.Upstream(serviceName, fmt.Errorf("rate limit wait: %w", err))
	}

	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	if crumb := c.currentCrumb(); crumb != "" {
		q.Set("crumb", crumb)
	}
	reqURL := c.baseURL + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("url", path).Msg("Yahoo API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, apperrors.Upstream(serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return resp.StatusCode, &apperrors.APIError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return resp.StatusCode, apperrors.Upstream(serviceName, fmt.Errorf("failed to decode response: %w", err))
	}
	return resp.StatusCode, nil
}

// ensureSession primes cookies and fetches a crumb when none is held. Setup runs once
// for all concurrent callers and the lock is never held across network calls.
func (c *Client) ensureSession(ctx context.Context) {
	c.mu.Lock()
	ready := c.crumb != "" || time.Since(c.sessionTried) < time.Minute
	c.mu.Unlock()
	if ready {
		return
	}

	ch := c.group.DoChan(sessionKey, func() (interface{}, error) {
		sessionCtx, cancel := c.detach(ctx)
		defer cancel()

		crumb := c.fetchCrumb(sessionCtx)

		c.mu.Lock()
		c.sessionTried = time.Now()
		if crumb != "" {
			c.crumb = crumb
		}
		c.mu.Unlock()
		return nil, nil
	})

	select {
	case <-ch:
	case <-ctx.Done():
	}
}

func (c *Client) fetchCrumb(ctx context.Context) string {
	for _, page := range c.sessionURLs {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, page, nil)
		if err != nil {
			continue
		}
		req.Header.Set("User-Agent", userAgent)
		if resp, err := c.httpClient.Do(req); err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/test/getcrumb", nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to fetch crumb")
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Str("status", resp.Status).Msg("Failed to fetch crumb")
		return ""
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	crumb := strings.TrimSpace(string(body))
	if crumb != "" {
		c.logger.Info().Msg("Yahoo session initialized")
	}
	return crumb
}

// detach returns a context that keeps ctx's values but not its cancellation,
// bounded by the client timeout.
func (c *Client) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if c.httpClient.Timeout > 0 {
		return context.WithTimeout(detached, c.httpClient.Timeout)
	}
	return context.WithCancel(detached)
}

func (c *Client) resetSession() {
	c.mu.Lock()
	c.crumb = ""
	c.sessionTried = time.Time{}
	c.mu.Unlock()
}

func (c *Client) currentCrumb() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.crumb
}

// cloneMarketData copies cached data so callers cannot mutate the shared entry.
func cloneMarketData(src *models.MarketData, symbol string) *models.MarketData {
	dst := *src
	dst.Symbol = symbol
	dst.Dividends = make([]models.DividendEvent, len(src.Dividends))
	for i, div := range src.Dividends {
		div.Symbol = symbol
		dst.Dividends[i] = div
	}
	return &dst
}

// unixDate converts a provider timestamp into a UTC calendar date.
func unixDate(ts int64) time.Time {
	t := time.Unix(ts, 0).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// --- API Response Structs ---

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				ExchangeName       string  `json:"exchangeName"`
				FullExchangeName   string  `json:"fullExchangeName"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Events struct {
				Dividends map[string]struct {
					Amount float64 `json:"amount"`
					Date   int64   `json:"date"`
				} `json:"dividends"`
			} `json:"events"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			CalendarEvents struct {
				ExDividendDate struct {
					Raw int64 `json:"raw"`
				} `json:"exDividendDate"`
				DividendDate struct {
					Raw int64 `json:"raw"`
				} `json:"dividendDate"`
			} `json:"calendarEvents"`
		} `json:"result"`
	} `json:"quoteSummary"`
}

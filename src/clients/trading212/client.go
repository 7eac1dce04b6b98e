// Package trading212 provides a client for the Trading 212 public equity API.
package trading212

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/username/divtracker/src/apperrors"
	"github.com/username/divtracker/src/models"
)

const (
	DefaultBaseURL    = "https://live.trading212.com/api/v0/equity"
	DefaultTimeout    = 20 * time.Second
	DefaultRateLimit  = 1 // requests per second
	DefaultRetries    = 2
	DefaultRetryWait  = 2 * time.Second
	MaxRetryAfter     = 10 * time.Second
	ordersPageLimit   = 50
	maxOrderPages     = 1000
	serviceName       = "trading212"
	maxErrorBodyBytes = 512
)

// Client talks to the Trading 212 REST API.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	logger     zerolog.Logger
	limiter    *rate.Limiter
	retries    int
	retryWait  time.Duration
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithAPISecret switches authentication to HTTP Basic with key and secret.
func WithAPISecret(secret string) ClientOption {
	return func(c *Client) {
		c.apiSecret = secret
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

// WithRetries sets how many times a transient failure is retried.
func WithRetries(retries int, wait time.Duration) ClientOption {
	return func(c *Client) {
		c.retries = retries
		c.retryWait = wait
	}
}

// NewClient creates a new Trading 212 client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:   rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:    zerolog.Nop(),
		retries:   DefaultRetries,
		retryWait: DefaultRetryWait,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchHoldings returns the open positions, priced in the account currency.
func (c *Client) FetchHoldings(ctx context.Context) ([]models.Holding, error) {
	var account accountInfoResponse
	if err := c.get(ctx, "/account/info", &account); err != nil {
		return nil, err
	}

	var positions []positionData
	if err := c.get(ctx, "/portfolio", &positions); err != nil {
		return nil, err
	}

	holdings := make([]models.Holding, 0, len(positions))
	for _, p := range positions {
		if p.Ticker == "" || !p.Quantity.IsPositive() {
			continue
		}
		holdings = append(holdings, models.Holding{
			Symbol:       models.SymbolFromTicker(p.Ticker),
			Ticker:       p.Ticker,
			Quantity:     p.Quantity,
			AveragePrice: p.AveragePrice,
			CostBasis:    p.Quantity.Mul(p.AveragePrice),
			CurrentPrice: p.CurrentPrice,
			Currency:     account.CurrencyCode,
		})
	}

	c.logger.Debug().Int("positions", len(positions)).Int("holdings", len(holdings)).Msg("Fetched portfolio")
	return holdings, nil
}

// FetchOrderHistory pages through the order history and returns the filled orders.
func (c *Client) FetchOrderHistory(ctx context.Context) ([]models.Order, error) {
	next := fmt.Sprintf("/history/orders?limit=%d", ordersPageLimit)
	seen := make(map[string]bool)
	var orders []models.Order

	for page := 0; next != "" && page < maxOrderPages; page++ {
		if seen[next] {
			c.logger.Warn().Str("next", next).Msg("Order history pagination repeated a page, stopping")
			break
		}
		seen[next] = true

		var resp ordersResponse
		if err := c.get(ctx, next, &resp); err != nil {
			return nil, err
		}
		for _, item := range resp.Items {
			if order, ok := item.toOrder(); ok {
				orders = append(orders, order)
			}
		}
		next = resp.NextPagePath
	}

	c.logger.Debug().Int("orders", len(orders)).Msg("Fetched order history")
	return orders, nil
}

// get performs a rate-limited GET request, retrying 429s, 5xx responses and transport errors.
func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	reqURL, err := c.resolve(path)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		wait, err := c.do(ctx, reqURL, path, result)
		if err == nil {
			return nil
		}
		lastErr = err
		if wait < 0 || attempt == c.retries {
			break
		}

		c.logger.Warn().Err(err).Str("endpoint", path).Dur("wait", wait).Int("attempt", attempt+1).Msg("Retrying Trading 212 request")
		select {
		case <-ctx.Done():
			return apperrors.Upstream(serviceName, ctx.Err())
		case <-time.After(wait):
		}
	}
	return lastErr
}

// do executes one attempt. A negative wait means the error is not retryable.
func (c *Client) do(ctx context.Context, reqURL, path string, result interface{}) (time.Duration, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return -1, apperrors.Upstream(serviceName, fmt.Errorf("rate limit wait: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return -1, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.authorization())
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("url", path).Msg("Trading 212 API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return -1, apperrors.Upstream(serviceName, err)
		}
		return c.retryWait, apperrors.Upstream(serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		apiErr := &apperrors.APIError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Endpoint:   path,
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return retryAfter(resp.Header.Get("Retry-After"), c.retryWait), apiErr
		case resp.StatusCode >= http.StatusInternalServerError:
			return c.retryWait, apiErr
		default:
			return -1, apiErr
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return -1, apperrors.Upstream(serviceName, fmt.Errorf("failed to decode response: %w", err))
	}
	return 0, nil
}

func (c *Client) authorization() string {
	if c.apiSecret == "" {
		return c.apiKey
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.apiKey+":"+c.apiSecret))
}

// resolve joins a relative path or a nextPagePath onto the base URL.
func (c *Client) resolve(ref string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", apperrors.Config("BASE_URL", err.Error())
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", apperrors.Upstream(serviceName, fmt.Errorf("invalid page path %q: %w", ref, err))
	}
	if u.IsAbs() {
		if u.Host != base.Host {
			return "", apperrors.Upstream(serviceName, fmt.Errorf("page path %q points outside %s", ref, base.Host))
		}
		return u.String(), nil
	}
	if !strings.HasPrefix(u.Path, base.Path+"/") {
		u.Path = base.Path + u.Path
	}
	return base.ResolveReference(u).String(), nil
}

// retryAfter reads a Retry-After header in seconds, capped at MaxRetryAfter.
func retryAfter(header string, fallback time.Duration) time.Duration {
	wait := fallback
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs >= 0 {
		wait = time.Duration(secs) * time.Second
	}
	if wait > MaxRetryAfter {
		wait = MaxRetryAfter
	}
	return wait
}

type accountInfoResponse struct {
	CurrencyCode string `json:"currencyCode"`
}

type positionData struct {
	Ticker       string          `json:"ticker"`
	Quantity     decimal.Decimal `json:"quantity"`
	AveragePrice decimal.Decimal `json:"averagePrice"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
}

type ordersResponse struct {
	Items        []orderData `json:"items"`
	NextPagePath string      `json:"nextPagePath"`
}

type orderData struct {
	Ticker         string              `json:"ticker"`
	Status         string              `json:"status"`
	FilledQuantity decimal.NullDecimal `json:"filledQuantity"`
	FilledValue    decimal.NullDecimal `json:"filledValue"`
	FillPrice      decimal.NullDecimal `json:"fillPrice"`
	DateExecuted   string              `json:"dateExecuted"`
	DateCreated    string              `json:"dateCreated"`
}

// toOrder converts a raw order into a signed, filled order. Unfilled or undated orders are dropped.
func (o orderData) toOrder() (models.Order, bool) {
	if o.Ticker == "" || o.Status != "FILLED" {
		return models.Order{}, false
	}

	stamp := o.DateExecuted
	if stamp == "" {
		stamp = o.DateCreated
	}
	executedAt, ok := parseTimestamp(stamp)
	if !ok {
		return models.Order{}, false
	}

	var qty decimal.Decimal
	switch {
	case o.FilledQuantity.Valid:
		qty = o.FilledQuantity.Decimal.Abs()
	case o.FilledValue.Valid && o.FillPrice.Valid && !o.FillPrice.Decimal.IsZero():
		qty = o.FilledValue.Decimal.Div(o.FillPrice.Decimal).Abs()
	default:
		return models.Order{}, false
	}

	// Direction comes from the sign of the filled value.
	if !o.FilledValue.Valid || o.FilledValue.Decimal.IsZero() || qty.IsZero() {
		return models.Order{}, false
	}
	if o.FilledValue.Decimal.IsNegative() {
		qty = qty.Neg()
	}

	return models.Order{
		Symbol:         models.SymbolFromTicker(o.Ticker),
		Ticker:         o.Ticker,
		Status:         o.Status,
		FilledQuantity: qty,
		ExecutedAt:     executedAt,
	}, true
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04:05.000"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

package trading212

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/divtracker/src/apperrors"
)

func newTestClient(srv *httptest.Server, opts ...ClientOption) *Client {
	base := []ClientOption{
		WithBaseURL(srv.URL + "/api/v0/equity"),
		WithRateLimit(1000),
		WithRetries(2, time.Millisecond),
	}
	return NewClient("test-key", append(base, opts...)...)
}

func TestFetchHoldings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v0/equity/account/info":
			w.Write([]byte(`{"currencyCode":"GBP","id":1}`))
		case "/api/v0/equity/portfolio":
			w.Write([]byte(`[
				{"ticker":"VODl_EQ","quantity":100,"averagePrice":0.72,"currentPrice":0.70},
				{"ticker":"AAPL_US_EQ","quantity":2.5,"averagePrice":150,"currentPrice":190.5},
				{"ticker":"","quantity":5,"averagePrice":1},
				{"ticker":"GONE_EQ","quantity":0,"averagePrice":1}
			]`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	holdings, err := newTestClient(srv).FetchHoldings(context.Background())
	require.NoError(t, err)
	require.Len(t, holdings, 2)

	assert.Equal(t, "VODl", holdings[0].Symbol)
	assert.Equal(t, "VODl_EQ", holdings[0].Ticker)
	assert.Equal(t, "GBP", holdings[0].Currency)
	assert.True(t, holdings[0].CostBasis.Equal(decimal.RequireFromString("72")))

	assert.Equal(t, "AAPL", holdings[1].Symbol)
	assert.True(t, holdings[1].Quantity.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, holdings[1].CostBasis.Equal(decimal.RequireFromString("375")))
}

func TestFetchHoldings_BasicAuthWithSecret(t *testing.T) {
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("test-key:s3cret"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, want, r.Header.Get("Authorization"))
		if r.URL.Path == "/api/v0/equity/account/info" {
			w.Write([]byte(`{"currencyCode":"EUR"}`))
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	holdings, err := newTestClient(srv, WithAPISecret("s3cret")).FetchHoldings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, holdings)
}

func TestFetchHoldings_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
		calls  int32
	}{
		{"unauthorized is auth", http.StatusUnauthorized, apperrors.ErrAuth, 1},
		{"forbidden is auth", http.StatusForbidden, apperrors.ErrAuth, 1},
		{"server error is upstream after retries", http.StatusBadGateway, apperrors.ErrUpstream, 3},
		{"rate limit exhausts retries", http.StatusTooManyRequests, apperrors.ErrRateLimited, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"code":"nope"}`))
			}))
			defer srv.Close()

			_, err := newTestClient(srv).FetchHoldings(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.calls, calls.Load())

			var apiErr *apperrors.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, "/account/info", apiErr.Endpoint)
		})
	}
}

func TestFetchHoldings_RetriesAfterRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if r.URL.Path == "/api/v0/equity/account/info" {
			w.Write([]byte(`{"currencyCode":"GBP"}`))
			return
		}
		w.Write([]byte(`[{"ticker":"BTl_EQ","quantity":10,"averagePrice":1.5}]`))
	}))
	defer srv.Close()

	holdings, err := newTestClient(srv).FetchHoldings(context.Background())
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "BTl", holdings[0].Symbol)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchHoldings_NetworkFailureIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := newTestClient(srv).FetchHoldings(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
	assert.NotErrorIs(t, err, apperrors.ErrAuth)
}

func TestFetchOrderHistory_Pagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v0/equity/history/orders", r.URL.Path)
		switch r.URL.Query().Get("cursor") {
		case "":
			assert.Equal(t, "50", r.URL.Query().Get("limit"))
			w.Write([]byte(`{
				"items":[
					{"ticker":"AAPL_US_EQ","status":"FILLED","filledQuantity":10,"filledValue":1500,"dateExecuted":"2023-01-10T14:30:00.000Z"},
					{"ticker":"AAPL_US_EQ","status":"CANCELLED","filledQuantity":5,"filledValue":700,"dateExecuted":"2023-01-11T14:30:00.000Z"},
					{"ticker":"AAPL_US_EQ","status":"FILLED","filledQuantity":4,"filledValue":-640,"dateExecuted":"2023-06-01T09:00:00Z"}
				],
				"nextPagePath":"/api/v0/equity/history/orders?limit=50&cursor=2"
			}`))
		case "2":
			w.Write([]byte(`{
				"items":[
					{"ticker":"VODl_EQ","status":"FILLED","filledValue":72,"fillPrice":0.72,"dateCreated":"2022-05-05T08:00:00"},
					{"ticker":"VODl_EQ","status":"FILLED","filledValue":10}
				],
				"nextPagePath":null
			}`))
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	}))
	defer srv.Close()

	orders, err := newTestClient(srv).FetchOrderHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 3)

	assert.Equal(t, "AAPL", orders[0].Symbol)
	assert.True(t, orders[0].FilledQuantity.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, time.Date(2023, 1, 10, 14, 30, 0, 0, time.UTC), orders[0].ExecutedAt)

	assert.True(t, orders[1].FilledQuantity.Equal(decimal.NewFromInt(-4)), "sells are negative")

	assert.Equal(t, "VODl", orders[2].Symbol)
	assert.True(t, orders[2].FilledQuantity.Equal(decimal.NewFromInt(100)), "quantity derived from value / price")
}

func TestFetchOrderHistory_RejectsForeignHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[],"nextPagePath":"https://evil.example/steal"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchOrderHistory(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, retryAfter("3", time.Second))
	assert.Equal(t, MaxRetryAfter, retryAfter("120", time.Second))
	assert.Equal(t, time.Second, retryAfter("soon", time.Second))
	assert.Equal(t, time.Duration(0), retryAfter("0", time.Second))
}

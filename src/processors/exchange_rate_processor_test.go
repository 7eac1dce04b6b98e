package processors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/divtracker/src/apperrors"
	"github.com/username/divtracker/src/database"
	"github.com/username/divtracker/src/model"
)

type fakeFX struct {
	calls  atomic.Int32
	failed atomic.Bool
	delay  time.Duration
}

func (f *fakeFX) server(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		time.Sleep(f.delay)
		if f.failed.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "GBP", r.URL.Query().Get("symbols"))
		switch r.URL.Query().Get("base") {
		case "USD":
			w.Write([]byte(`{"amount":1.0,"base":"USD","date":"2024-06-01","rates":{"GBP":0.7854}}`))
		case "EUR":
			w.Write([]byte(`{"amount":1.0,"base":"EUR","date":"2024-06-01","rates":{"GBP":0.8512}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"not found"}`))
		}
	}))
}

func TestGetExchangeRate_Identity(t *testing.T) {
	p := NewExchangeRateProcessor("http://127.0.0.1:0", "")

	rate, source, err := p.GetExchangeRate(context.Background(), "gbp", "GBP")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, FXSourceIdentity, source)

	// Converting with rate 1 leaves an already rounded amount unchanged.
	amount := decimal.RequireFromString("12.34")
	converted, _, _, err := p.Convert(context.Background(), amount, "GBP", "GBP")
	require.NoError(t, err)
	assert.True(t, converted.Equal(amount))
	again, _, _, err := p.Convert(context.Background(), converted, "GBP", "GBP")
	require.NoError(t, err)
	assert.True(t, again.Equal(converted))
}

func TestGetExchangeRate_LiveThenCache(t *testing.T) {
	fake := &fakeFX{}
	srv := fake.server(t)
	defer srv.Close()

	p := NewExchangeRateProcessor(srv.URL+"/latest", "$.rates.%s")

	rate, source, err := p.GetExchangeRate(context.Background(), "USD", "GBP")
	require.NoError(t, err)
	assert.Equal(t, FXSourceLive, source)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.7854")))

	rate, source, err = p.GetExchangeRate(context.Background(), "USD", "GBP")
	require.NoError(t, err)
	assert.Equal(t, FXSourceCache, source)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.7854")))
	assert.Equal(t, int32(1), fake.calls.Load())
}

func TestConvert_RoundsToPence(t *testing.T) {
	fake := &fakeFX{}
	srv := fake.server(t)
	defer srv.Close()

	p := NewExchangeRateProcessor(srv.URL, "")
	converted, rate, source, err := p.Convert(context.Background(), decimal.RequireFromString("10.00"), "USD", "GBP")
	require.NoError(t, err)
	assert.Equal(t, FXSourceLive, source)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.7854")))
	assert.Equal(t, "7.85", converted.String())
}

func TestGetExchangeRate_PenceUsesPoundRate(t *testing.T) {
	p := NewExchangeRateProcessor("http://127.0.0.1:0", "")

	rate, source, err := p.GetExchangeRate(context.Background(), "GBX", "GBP")
	require.NoError(t, err)
	assert.Equal(t, FXSourceIdentity, source)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.01")))
}

func TestGetExchangeRate_StoredThenFallback(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	fake := &fakeFX{}
	srv := fake.server(t)
	defer srv.Close()

	p := NewExchangeRateProcessor(srv.URL, "", WithFXStore(db), WithFXCacheTTL(time.Millisecond))
	p.now = func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) }

	// A live lookup is persisted.
	_, source, err := p.GetExchangeRate(context.Background(), "EUR", "GBP")
	require.NoError(t, err)
	assert.Equal(t, FXSourceLive, source)

	stored, found, err := model.GetFXRate(context.Background(), db, "EUR", "GBP")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, stored.Rate.Equal(decimal.RequireFromString("0.8512")))

	fake.failed.Store(true)
	time.Sleep(5 * time.Millisecond)

	rate, source, err := p.GetExchangeRate(context.Background(), "EUR", "GBP")
	require.NoError(t, err)
	assert.Equal(t, FXSourceStored, source)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.8512")))

	// Nothing stored for USD, so the static table answers.
	rate, source, err = p.GetExchangeRate(context.Background(), "USD", "GBP")
	require.NoError(t, err)
	assert.Equal(t, FXSourceFallback, source)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.79")))
}

func TestGetExchangeRate_NoRateAnywhere(t *testing.T) {
	fake := &fakeFX{}
	srv := fake.server(t)
	defer srv.Close()

	p := NewExchangeRateProcessor(srv.URL, "")
	_, _, err := p.GetExchangeRate(context.Background(), "JPY", "GBP")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
	assert.NotErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGetExchangeRate_CustomPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"quotes":{"GBP":"0.5"}}}`))
	}))
	defer srv.Close()

	p := NewExchangeRateProcessor(srv.URL, "$.data.quotes.%s")
	rate, _, err := p.GetExchangeRate(context.Background(), "AUD", "GBP")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.5")))
}

func TestWarm(t *testing.T) {
	fake := &fakeFX{}
	srv := fake.server(t)
	defer srv.Close()

	p := NewExchangeRateProcessor(srv.URL, "")
	require.NoError(t, p.Warm(context.Background(), []string{"usd", "EUR", "GBP", "GBX"}, "GBP"))
	assert.Equal(t, int32(2), fake.calls.Load())

	_, source, err := p.GetExchangeRate(context.Background(), "USD", "GBP")
	require.NoError(t, err)
	assert.Equal(t, FXSourceCache, source)

	err = p.Warm(context.Background(), []string{"JPY"}, "GBP")
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
}

func TestGetExchangeRate_CancelledCallerDoesNotFailSharedLookup(t *testing.T) {
	fake := &fakeFX{delay: 300 * time.Millisecond}
	srv := fake.server(t)
	defer srv.Close()

	p := NewExchangeRateProcessor(srv.URL, "")

	shortCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	var shortErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, shortErr = p.GetExchangeRate(shortCtx, "USD", "GBP")
	}()
	time.Sleep(10 * time.Millisecond)

	rate, source, err := p.GetExchangeRate(context.Background(), "USD", "GBP")
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, FXSourceLive, source)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.7854")))
	assert.ErrorIs(t, shortErr, context.DeadlineExceeded)
	assert.Equal(t, int32(1), fake.calls.Load())
}

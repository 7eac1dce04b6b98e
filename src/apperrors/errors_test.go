package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIError_Unwrap(t *testing.T) {
	tests := []struct {
		status int
		want   error
		kind   string
	}{
		{http.StatusUnauthorized, ErrAuth, "auth"},
		{http.StatusForbidden, ErrAuth, "auth"},
		{http.StatusNotFound, ErrNotFound, "not_found"},
		{http.StatusTooManyRequests, ErrRateLimited, "rate_limited"},
		{http.StatusBadGateway, ErrUpstream, "upstream"},
		{http.StatusBadRequest, ErrUpstream, "upstream"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", &APIError{Service: "svc", StatusCode: tt.status, Endpoint: "/x"})
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.kind, Kind(err))
		})
	}
}

func TestRateLimitedIsUpstream(t *testing.T) {
	assert.True(t, errors.Is(ErrRateLimited, ErrUpstream))
}

func TestHelpers(t *testing.T) {
	err := Upstream("fx", context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.ErrorIs(t, Config("T212_KEY", "is not set"), ErrConfig)
	assert.Equal(t, "invalid_input", Kind(Invalid("days must be positive, got %d", -1)))
	assert.Equal(t, "internal", Kind(errors.New("boom")))
	assert.Equal(t, "", Kind(nil))
}

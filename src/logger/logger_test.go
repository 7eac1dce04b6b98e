package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew_LevelParsing(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			l := New(&bytes.Buffer{}, tt.in, "json")
			assert.Equal(t, tt.want, l.GetLevel())
		})
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	scoped := New(&buf, "info", "json").With().Str("requestID", "abc").Logger()

	ctx := ToContext(context.Background(), scoped)
	FromContext(ctx).Info().Msg("hello")
	assert.Contains(t, buf.String(), `"requestID":"abc"`)

	assert.Same(t, &L, FromContext(context.Background()))
}

package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestContextFieldsArePreserved(t *testing.T) {
	buf := &bytes.Buffer{}
	base := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := base.WithContext(context.Background())
	ctx = WithRequestID(ctx, "req-123")
	ctx = WithUserID(ctx, "user-9")

	Component(ctx, "OrderService").Error().Err(errors.New("boom")).Msg("checkout failed")

	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-123"`)
	assert.Contains(t, out, `"user_id":"user-9"`)
	assert.Contains(t, out, `"component":"OrderService"`)
	assert.Contains(t, out, `"service":"test"`)
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	base := New(Options{ServiceName: "test", Output: buf})

	ctx := WithFields(base.WithContext(context.Background()), map[string]any{"order_id": "ord_1"})
	zerolog.Ctx(ctx).Info().Msg("hello")

	assert.Contains(t, buf.String(), `"order_id":"ord_1"`)
}

func TestParseLevelDefaults(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("invalid"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
}

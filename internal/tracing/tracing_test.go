package tracing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
)

func TestRequestID_RoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "", GetRequestID(context.Background()))
}

func TestNewRequestID_IsUUID(t *testing.T) {
	id := NewRequestID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, NewRequestID())
}

func TestEnsureRequestID(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	assert.NotEmpty(t, id)
	assert.Equal(t, id, GetRequestID(ctx))

	ctx2, id2 := EnsureRequestID(ctx)
	assert.Equal(t, id, id2)
	assert.Equal(t, ctx, ctx2)
}

func TestTracingManager_Disabled(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	tm := NewTracingManager(DefaultTracingConfig(), logger)
	require.NoError(t, tm.Initialize(context.Background()))
	require.NoError(t, tm.Shutdown(context.Background()))
}

func TestTracingManager_StdoutExporter(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := DefaultTracingConfig()
	cfg.Enabled = true
	cfg.SampleRate = 0

	tm := NewTracingManager(cfg, logger)
	require.NoError(t, tm.Initialize(context.Background()))
	require.NoError(t, tm.Shutdown(context.Background()))
}

func TestStartSpan_NoProviderIsSafe(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test")
	defer span.End()

	RecordError(ctx, errors.New("boom"))

	header := http.Header{}
	InjectHeaders(ctx, propagation.HeaderCarrier(header))
}

package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger() (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	base := logrus.New()
	base.SetOutput(buf)
	base.SetFormatter(&logrus.JSONFormatter{})
	return NewLogger(base), buf
}

func TestLogger_LogErrorIncludesAppErrorFields(t *testing.T) {
	logger, buf := newBufferedLogger()

	logger.LogError(NewCorruptPayloadError(9, errors.New("bad")), "dropping entry", logrus.Fields{"component": "relay"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "dropping entry", entry["msg"])
	assert.Equal(t, string(ErrCodeCorruptPayload), entry["error_code"])
	assert.Equal(t, float64(9), entry["entry_id"])
	assert.Equal(t, "relay", entry["component"])
}

func TestLogger_LogRetryableError(t *testing.T) {
	logger, buf := newBufferedLogger()

	logger.LogRetryableError(NewNetworkError("http://x", 500, nil), "send failed")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warning", entry["level"])

	buf.Reset()
	logger.LogRetryableError(NewCryptoError("seal", nil), "send failed")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
}

func TestNewLogger_NilCreatesDefault(t *testing.T) {
	logger := NewLogger(nil)
	require.NotNil(t, logger.Logger)
}

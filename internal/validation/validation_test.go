package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"smsrelay/internal/errors"
	"smsrelay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePhoneNumber(t *testing.T) {
	tests := []struct {
		name    string
		phone   string
		wantErr bool
	}{
		{"international", "+15551234567", false},
		{"local", "5551234", false},
		{"short code", "123", false},
		{"empty", "", true},
		{"too short", "+12", true},
		{"too long", "+123456789012345678901", true},
		{"letters", "+1555abc", true},
		{"spaces", "+1 555 1234", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePhoneNumber(tt.phone)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateEndpointURL(t *testing.T) {
	assert.NoError(t, ValidateEndpointURL("https://collector.example.com/api/sms"))
	assert.NoError(t, ValidateEndpointURL("http://localhost:8080/sms"))
	assert.Error(t, ValidateEndpointURL(""))
	assert.Error(t, ValidateEndpointURL("ftp://collector.example.com"))
	assert.Error(t, ValidateEndpointURL("https://"))
	assert.Error(t, ValidateEndpointURL("://bad"))
}

func TestValidateEvent(t *testing.T) {
	valid := models.IncomingEvent{Sender: "BANK", Content: "OTP 123456", Timestamp: 1000, ReceiverAddress: "+15551234567"}
	assert.NoError(t, ValidateEvent(valid))

	emptyContent := valid
	emptyContent.Content = ""
	assert.NoError(t, ValidateEvent(emptyContent))

	tests := []struct {
		name   string
		mutate func(e *models.IncomingEvent)
	}{
		{"missing sender", func(e *models.IncomingEvent) { e.Sender = "" }},
		{"long sender", func(e *models.IncomingEvent) { e.Sender = strings.Repeat("S", 65) }},
		{"bad receiver", func(e *models.IncomingEvent) { e.ReceiverAddress = "receiver" }},
		{"long device id", func(e *models.IncomingEvent) { e.ReceiverDeviceID = strings.Repeat("9", 65) }},
		{"negative timestamp", func(e *models.IncomingEvent) { e.Timestamp = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := valid
			tt.mutate(&event)
			err := ValidateEvent(event)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
		})
	}
}

func TestValidateHTTPRequestSize(t *testing.T) {
	small := httptest.NewRequest("POST", "/v1/events", strings.NewReader("{}"))
	assert.NoError(t, ValidateHTTPRequestSize(small, 1024))

	large := httptest.NewRequest("POST", "/v1/events", strings.NewReader(strings.Repeat("x", 2048)))
	assert.Error(t, ValidateHTTPRequestSize(large, 1024))
}

func TestValidateNumericRange(t *testing.T) {
	assert.NoError(t, ValidateNumericRange(5, "n", 1, 10))
	assert.ErrorContains(t, ValidateNumericRange(0, "n", 1, 10), "too small")
	assert.ErrorContains(t, ValidateNumericRange(11, "n", 1, 10), "too large")
}

func TestValidateTimeout(t *testing.T) {
	assert.NoError(t, ValidateTimeout(15, "read_timeout_sec"))
	assert.Error(t, ValidateTimeout(0, "read_timeout_sec"))
	assert.Error(t, ValidateTimeout(3601, "read_timeout_sec"))
}

func TestValidateStringLength(t *testing.T) {
	assert.NoError(t, ValidateStringLength("abc", "f", 1, 3))
	assert.Error(t, ValidateStringLength("", "f", 1, 3))
	assert.Error(t, ValidateStringLength("abcd", "f", 1, 3))
}

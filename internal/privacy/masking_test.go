package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPhoneNumber(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plus only", "+", "+"},
		{"international", "+15551234567", "+*******4567"},
		{"short with plus", "+1234", "+****"},
		{"local", "5551234567", "******4567"},
		{"very short", "123", "***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskPhoneNumber(tt.input))
		})
	}
}

func TestMaskSender(t *testing.T) {
	assert.Equal(t, "BANK", MaskSender("BANK"))
	assert.Equal(t, "Uber-2FA", MaskSender("Uber-2FA"))
	assert.Equal(t, "+*******4567", MaskSender("+15551234567"))
	assert.Equal(t, "*2345", MaskSender("12345"))
	assert.Equal(t, "", MaskSender(""))
}

func TestMaskDeviceID(t *testing.T) {
	assert.Equal(t, "***************6789", MaskDeviceID("8901260123456786789"))
	assert.Equal(t, "****", MaskDeviceID("8901"))
	assert.Equal(t, "", MaskDeviceID(""))
}

func TestMaskContent(t *testing.T) {
	assert.Equal(t, "", MaskContent(""))
	assert.Equal(t, "[10 chars]", MaskContent("OTP 123456"))
	assert.Equal(t, "[2 chars]", MaskContent("hé"))
}

func TestMaskSensitiveFields(t *testing.T) {
	assert.Nil(t, MaskSensitiveFields(nil))

	masked := MaskSensitiveFields(map[string]interface{}{
		"sender":          "+15551234567",
		"receiver_number": "+15559876543",
		"receiver_iccid":  "89012345",
		"content":         "secret",
		"entries":         3,
		"request_id":      "abc",
	})

	assert.Equal(t, "+*******4567", masked["sender"])
	assert.Equal(t, "+*******6543", masked["receiver_number"])
	assert.Equal(t, "****2345", masked["receiver_iccid"])
	assert.Equal(t, "[6 chars]", masked["content"])
	assert.Equal(t, 3, masked["entries"])
	assert.Equal(t, "abc", masked["request_id"])
}

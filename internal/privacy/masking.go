package privacy

import (
	"fmt"
	"strings"

	"smsrelay/internal/constants"
)

// MaskPhoneNumber masks a phone number showing only the last 4 digits
// Example: "+1234567890" -> "+******7890"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	keep := constants.DefaultPhoneMaskLength
	if strings.HasPrefix(phone, "+") {
		return "+" + maskString(phone[1:], keep)
	}
	return maskString(phone, keep)
}

// MaskSender masks numeric senders like phone numbers. Alphanumeric sender
// ids ("BANK", "Uber") identify a business, not a person, and are kept.
func MaskSender(sender string) string {
	digits := strings.TrimPrefix(sender, "+")
	if isNumeric(digits) {
		return MaskPhoneNumber(sender)
	}
	return sender
}

// MaskDeviceID masks a SIM identifier (ICCID), keeping the last 4 characters
func MaskDeviceID(deviceID string) string {
	return maskString(deviceID, 4)
}

// MaskContent replaces message text with its length
func MaskContent(content string) string {
	if content == "" {
		return ""
	}
	return fmt.Sprintf("[%d chars]", len([]rune(content)))
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}
	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// isNumeric checks if a string contains only digits
func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			masked[k] = v
			continue
		}
		switch k {
		case "phone", "receiver", "receiver_number", "receiver_address", "fallback_number":
			masked[k] = MaskPhoneNumber(s)
		case "sender":
			masked[k] = MaskSender(s)
		case "device_id", "receiver_device_id", "receiver_iccid", "iccid":
			masked[k] = MaskDeviceID(s)
		case "content":
			masked[k] = MaskContent(s)
		default:
			masked[k] = v
		}
	}
	return masked
}

package validation

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"smsrelay/internal/constants"
	"smsrelay/internal/errors"
	"smsrelay/internal/models"
)

// ValidatePhoneNumber validates phone number format and length
func ValidatePhoneNumber(phone string) error {
	if phone == "" {
		return errors.New(errors.ErrCodeInvalidInput, "phone number cannot be empty")
	}

	cleaned := strings.TrimPrefix(phone, "+")
	if len(cleaned) < constants.MinPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number must be at least %d digits", constants.MinPhoneNumberLength))
	}
	if len(cleaned) > constants.MaxPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number too long (max %d digits)", constants.MaxPhoneNumberLength))
	}

	for _, char := range cleaned {
		if !unicode.IsDigit(char) {
			return errors.New(errors.ErrCodeInvalidInput, "phone number must contain only digits")
		}
	}
	return nil
}

// ValidateEndpointURL requires an absolute http or https URL
func ValidateEndpointURL(raw string) error {
	if raw == "" {
		return errors.New(errors.ErrCodeInvalidInput, "endpoint URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "endpoint URL is malformed")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New(errors.ErrCodeInvalidInput, "endpoint URL must use http or https")
	}
	if u.Host == "" {
		return errors.New(errors.ErrCodeInvalidInput, "endpoint URL must include a host")
	}
	return nil
}

// ValidateEvent checks field lengths of an incoming event. Content may be
// empty: an SMS without a body is still relayed.
func ValidateEvent(event models.IncomingEvent) error {
	if err := event.Validate(); err != nil {
		return errors.New(errors.ErrCodeInvalidInput, err.Error())
	}
	if err := ValidateStringLength(event.Sender, "sender", 1, constants.MaxSenderLength); err != nil {
		return err
	}
	if err := ValidateStringLength(event.Content, "content", 0, constants.MaxContentLength); err != nil {
		return err
	}
	if err := ValidateStringLength(event.ReceiverDeviceID, "receiver_device_id", 0, constants.MaxDeviceIDLength); err != nil {
		return err
	}
	if event.ReceiverAddress != "" {
		if err := ValidatePhoneNumber(event.ReceiverAddress); err != nil {
			return err
		}
	}
	if event.Timestamp < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "timestamp cannot be negative")
	}
	return nil
}

// ValidateHTTPRequestSize validates incoming HTTP request size
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength > maxSizeBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes))
	}
	return nil
}

// ValidateStringLength validates string length against bounds
func ValidateStringLength(value, fieldName string, minLength, maxLength int) error {
	if len(value) < minLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too short (min %d characters)", fieldName, minLength))
	}
	if len(value) > maxLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too long (max %d characters)", fieldName, maxLength))
	}
	return nil
}

// ValidateNumericRange validates numeric values against bounds
func ValidateNumericRange(value int, fieldName string, min, max int) error {
	if value < min {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too small (min %d)", fieldName, min))
	}
	if value > max {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max %d)", fieldName, max))
	}
	return nil
}

// ValidateTimeout validates timeout values
func ValidateTimeout(timeoutSec int, fieldName string) error {
	return ValidateNumericRange(timeoutSec, fieldName, 1, constants.MaxTimeoutSec)
}

package errors

import (
	"fmt"
	"net/http"
)

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key)
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation)
}

// NewNetworkError describes a failed delivery attempt. Every network failure
// is retryable: the payload stays queued until the endpoint accepts it.
func NewNetworkError(endpoint string, statusCode int, err error) *AppError {
	message := "delivery request failed"
	if statusCode != 0 {
		message = fmt.Sprintf("delivery rejected with status %d", statusCode)
	}
	appErr := WrapRetryable(err, ErrCodeNetwork, message).
		WithContext("endpoint", endpoint)
	if statusCode != 0 {
		appErr = appErr.WithContext("status_code", statusCode)
	}
	return appErr
}

// NewCorruptPayloadError marks a queued entry that can no longer be decoded
func NewCorruptPayloadError(entryID int64, err error) *AppError {
	return Wrap(err, ErrCodeCorruptPayload, "queued payload is corrupt").
		WithContext("entry_id", entryID)
}

// NewCryptoError creates an encryption error. Retrying does not help when
// the cause is the key or the payload size, so it is never marked retryable.
func NewCryptoError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeCrypto, fmt.Sprintf("%s failed", operation)).
		WithContext("operation", operation)
}

// NewKeyFormatError reports an unusable public key
func NewKeyFormatError(reason string, err error) *AppError {
	return Wrap(err, ErrCodeKeyFormat, "invalid public key").
		WithContext("reason", reason)
}

// NewInvalidInputError rejects a missing or empty argument
func NewInvalidInputError(field, message string) *AppError {
	return New(ErrCodeInvalidInput, message).
		WithContext("field", field)
}

// NewAuthError creates an authentication error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason)
}

// HTTPStatusCode maps error codes to HTTP status codes for the ingest API
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeDatabaseConnection, ErrCodeDatabaseQuery:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the error body returned by the ingest API
type HTTPErrorResponse struct {
	Error struct {
		Code    ErrorCode `json:"code"`
		Message string    `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{RequestID: requestID}
	response.Error.Code = GetCode(err)
	switch response.Error.Code {
	case ErrCodeInvalidInput, ErrCodeAuthentication:
		var appErr *AppError
		if asAppError(err, &appErr) {
			response.Error.Message = appErr.Message
		}
	default:
		response.Error.Message = "An internal error occurred"
	}
	return response
}

package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeUnavailable is used when a dependency is down
	ErrCodeUnavailable = "ERR_UNAVAILABLE"
)

// Validation error codes
const (
	ErrCodeValidation  = "ERR_VALIDATION"
	ErrCodeBadRequest  = "ERR_BAD_REQUEST"
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
)

// Resource error codes
const (
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeConcurrencyConflict is used when a compare-and-swap lost and was not retried
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	// ErrCodeDuplicateActiveReturn is used when the order item already has an open return
	ErrCodeDuplicateActiveReturn = "ERR_DUPLICATE_ACTIVE_RETURN"
)

// Workflow error codes
const (
	// ErrCodeInvalidTransition is used when the current status does not permit the action
	ErrCodeInvalidTransition = "ERR_INVALID_TRANSITION"
	ErrCodeInvalidState      = "ERR_INVALID_STATE"
	// ErrCodeRetryLater is used when concurrent updates exhausted the retry budget
	ErrCodeRetryLater = "ERR_RETRY_LATER"
)

// Upstream error codes
const (
	ErrCodeCourierGateway     = "ERR_COURIER_GATEWAY"
	ErrCodeSettlementDelivery = "ERR_SETTLEMENT_DELIVERY"
)

// Rate limiting error codes
const (
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:     http.StatusInternalServerError,
	ErrCodeInternal:    http.StatusInternalServerError,
	ErrCodeUnavailable: http.StatusServiceUnavailable,

	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	ErrCodeNotFound:              http.StatusNotFound,
	ErrCodeConcurrencyConflict:   http.StatusConflict,
	ErrCodeDuplicateActiveReturn: http.StatusConflict,

	ErrCodeInvalidTransition: http.StatusUnprocessableEntity,
	ErrCodeInvalidState:      http.StatusUnprocessableEntity,
	ErrCodeRetryLater:        http.StatusServiceUnavailable,

	// the request itself was fine, the courier or settlement side failed
	ErrCodeCourierGateway:     http.StatusBadGateway,
	ErrCodeSettlementDelivery: http.StatusBadGateway,

	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"INVALID_TRANSITION":        ErrCodeInvalidTransition,
	"DUPLICATE_ACTIVE_RETURN":   ErrCodeDuplicateActiveReturn,
	"STALE_STATE":               ErrCodeConcurrencyConflict,
	"RETRY_LATER":               ErrCodeRetryLater,
	"COURIER_GATEWAY_ERROR":     ErrCodeCourierGateway,
	"SETTLEMENT_DELIVERY_ERROR": ErrCodeSettlementDelivery,
	"VALIDATION_FAILED":         ErrCodeValidation,
	"NOT_FOUND":                 ErrCodeNotFound,
	"FORBIDDEN":                 ErrCodeForbidden,
	"INVALID_STATUS":            ErrCodeInvalidState,
	"UNAUTHORIZED":              ErrCodeUnauthorized,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Codes that are already in API format or unknown are returned as-is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}

package courier

import "errors"

var (
	// ErrCourierUnavailable is returned when the courier cannot be reached or answers 5xx
	ErrCourierUnavailable = errors.New("courier: service unavailable")

	// ErrCourierRejected is returned when the courier refuses a request
	ErrCourierRejected = errors.New("courier: request rejected")

	// ErrMissingToken is returned when the API token is not configured
	ErrMissingToken = errors.New("courier: api token is required")

	// ErrMissingShopID is returned when the courier shop id is not configured
	ErrMissingShopID = errors.New("courier: shop id is required")

	// ErrInvalidWebhook is returned for webhook payloads that cannot be used
	ErrInvalidWebhook = errors.New("courier: invalid webhook payload")
)

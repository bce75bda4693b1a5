package returns

import (
	"fmt"

	"github.com/erp/returns/internal/domain/shared"
)

// Error codes of the return workflow
const (
	CodeInvalidTransition       = "INVALID_TRANSITION"
	CodeDuplicateActiveReturn   = "DUPLICATE_ACTIVE_RETURN"
	CodeStaleState              = "STALE_STATE"
	CodeRetryLater              = "RETRY_LATER"
	CodeCourierGatewayError     = "COURIER_GATEWAY_ERROR"
	CodeSettlementDeliveryError = "SETTLEMENT_DELIVERY_ERROR"
	CodeValidationFailed        = "VALIDATION_FAILED"
	CodeNotFound                = "NOT_FOUND"
	CodeForbidden               = "FORBIDDEN"
)

// Sentinels for errors.Is; DomainError matches on code.
var (
	ErrInvalidTransition     = shared.NewDomainError(CodeInvalidTransition, "Action not allowed in current status")
	ErrDuplicateActiveReturn = shared.NewDomainError(CodeDuplicateActiveReturn, "An active return request already exists for this order item")
	ErrStaleState            = shared.NewDomainError(CodeStaleState, "Return request changed concurrently")
	ErrRetryLater            = shared.NewDomainError(CodeRetryLater, "Return request is busy, retry later")
	ErrCourierGateway        = shared.NewDomainError(CodeCourierGatewayError, "Courier gateway request failed")
	ErrSettlementDelivery    = shared.NewDomainError(CodeSettlementDeliveryError, "Settlement notifier request failed")
	ErrValidation            = shared.NewDomainError(CodeValidationFailed, "Validation failed")
	ErrReturnRequestNotFound = shared.NewDomainError(CodeNotFound, "Return request not found")
	ErrForbidden             = shared.NewDomainError(CodeForbidden, "Not allowed to act on this return request")
)

// NewInvalidTransitionError describes an event that the current status does not permit
func NewInvalidTransitionError(action string, from Status) *shared.DomainError {
	return shared.NewDomainError(CodeInvalidTransition, fmt.Sprintf("Cannot %s return request in %s status", action, from))
}

// NewValidationError creates a VALIDATION_FAILED error
func NewValidationError(message string) *shared.DomainError {
	return shared.NewDomainError(CodeValidationFailed, message)
}

// CourierError wraps a courier failure so callers see COURIER_GATEWAY_ERROR and
// logs keep the underlying cause.
type CourierError struct {
	Op  string
	Err error
}

func (e *CourierError) Error() string {
	return fmt.Sprintf("courier %s failed: %v", e.Op, e.Err)
}

func (e *CourierError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCourierGateway) true
func (e *CourierError) Is(target error) bool {
	return target == ErrCourierGateway
}

// SettlementError wraps a Notifier failure
type SettlementError struct {
	ReturnRequestID string
	Err             error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settlement delivery for %s failed: %v", e.ReturnRequestID, e.Err)
}

func (e *SettlementError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrSettlementDelivery) true
func (e *SettlementError) Is(target error) bool {
	return target == ErrSettlementDelivery
}

package returns

import (
	"time"

	"github.com/erp/returns/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeReturnRequest is the aggregate type recorded on events
const AggregateTypeReturnRequest = "ReturnRequest"

// Event type constants for ReturnRequest
const (
	EventTypeReturnRequestSubmitted = "ReturnRequestSubmitted"
	EventTypeReturnRequestApproved  = "ReturnRequestApproved"
	EventTypeReturnRequestRejected  = "ReturnRequestRejected"
	EventTypeReturnRequestResolved  = "ReturnRequestResolved"
	EventTypePackageInfoSubmitted   = "ReturnPackageInfoSubmitted"
	EventTypeShipmentCreated        = "ReturnShipmentCreated"
	EventTypeShipmentReset          = "ReturnShipmentReset"
	EventTypeReturnDelivered        = "ReturnDelivered"
	EventTypeRefundRequested        = "ReturnRefundRequested"
)

func newEvent(eventType string, r *ReturnRequest) shared.BaseDomainEvent {
	return shared.NewBaseDomainEvent(eventType, AggregateTypeReturnRequest, r.ID, r.StoreID, r.UpdatedAt)
}

// ReturnRequestSubmittedEvent is raised when a customer opens a return
type ReturnRequestSubmittedEvent struct {
	shared.BaseDomainEvent
	ReturnRequestID uuid.UUID       `json:"return_request_id"`
	CustomerID      uuid.UUID       `json:"customer_id"`
	OrderItem       OrderItemRef    `json:"order_item"`
	ReasonType      ReasonType      `json:"reason_type"`
	ItemPrice       decimal.Decimal `json:"item_price"`
	DecideBy        *time.Time      `json:"decide_by,omitempty"`
}

// NewReturnRequestSubmittedEvent creates a ReturnRequestSubmittedEvent
func NewReturnRequestSubmittedEvent(r *ReturnRequest) *ReturnRequestSubmittedEvent {
	return &ReturnRequestSubmittedEvent{
		BaseDomainEvent: newEvent(EventTypeReturnRequestSubmitted, r),
		ReturnRequestID: r.ID,
		CustomerID:      r.CustomerID,
		OrderItem:       r.OrderItem,
		ReasonType:      r.ReasonType,
		ItemPrice:       r.ItemPrice,
		DecideBy:        r.DeadlineAt,
	}
}

// ReturnRequestApprovedEvent is raised on PENDING -> APPROVED
type ReturnRequestApprovedEvent struct {
	shared.BaseDomainEvent
	ReturnRequestID uuid.UUID  `json:"return_request_id"`
	CustomerID      uuid.UUID  `json:"customer_id"`
	FromStatus      Status     `json:"from_status"`
	AutoApproved    bool       `json:"auto_approved"`
	PackageBy       *time.Time `json:"package_by,omitempty"`
}

// NewReturnRequestApprovedEvent creates a ReturnRequestApprovedEvent
func NewReturnRequestApprovedEvent(r *ReturnRequest, from Status) *ReturnRequestApprovedEvent {
	return &ReturnRequestApprovedEvent{
		BaseDomainEvent: newEvent(EventTypeReturnRequestApproved, r),
		ReturnRequestID: r.ID,
		CustomerID:      r.CustomerID,
		FromStatus:      from,
		AutoApproved:    r.AutoApproved,
		PackageBy:       r.DeadlineAt,
	}
}

// ReturnRequestRejectedEvent is raised when the shop rejects or disputes; the customer is notified
type ReturnRequestRejectedEvent struct {
	shared.BaseDomainEvent
	ReturnRequestID uuid.UUID `json:"return_request_id"`
	CustomerID      uuid.UUID `json:"customer_id"`
	FromStatus      Status    `json:"from_status"`
	Reason          string    `json:"reason"`
	Disputed        bool      `json:"disputed"`
}

// NewReturnRequestRejectedEvent creates a ReturnRequestRejectedEvent
func NewReturnRequestRejectedEvent(r *ReturnRequest, from Status, disputed bool) *ReturnRequestRejectedEvent {
	return &ReturnRequestRejectedEvent{
		BaseDomainEvent: newEvent(EventTypeReturnRequestRejected, r),
		ReturnRequestID: r.ID,
		CustomerID:      r.CustomerID,
		FromStatus:      from,
		Reason:          r.ShopRejectReason,
		Disputed:        disputed,
	}
}

// ReturnRequestResolvedEvent is raised when a request reaches REFUNDED, AUTO_REFUNDED or CANCELLED
type ReturnRequestResolvedEvent struct {
	shared.BaseDomainEvent
	ReturnRequestID uuid.UUID `json:"return_request_id"`
	CustomerID      uuid.UUID `json:"customer_id"`
	FromStatus      Status    `json:"from_status"`
	ToStatus        Status    `json:"to_status"`
	AutoRefunded    bool      `json:"auto_refunded"`
	CancelReason    string    `json:"cancel_reason,omitempty"`
}

// NewReturnRequestResolvedEvent creates a ReturnRequestResolvedEvent
func NewReturnRequestResolvedEvent(r *ReturnRequest, from Status) *ReturnRequestResolvedEvent {
	return &ReturnRequestResolvedEvent{
		BaseDomainEvent: newEvent(EventTypeReturnRequestResolved, r),
		ReturnRequestID: r.ID,
		CustomerID:      r.CustomerID,
		FromStatus:      from,
		ToStatus:        r.Status,
		AutoRefunded:    r.AutoRefunded,
		CancelReason:    r.CancelReason,
	}
}

// PackageInfoSubmittedEvent is raised when the shop provides packaging metrics
type PackageInfoSubmittedEvent struct {
	shared.BaseDomainEvent
	ReturnRequestID uuid.UUID       `json:"return_request_id"`
	WeightGrams     int             `json:"weight_grams"`
	ShippingFee     decimal.Decimal `json:"shipping_fee"`
	PickShiftID     int             `json:"pick_shift_id"`
}

// NewPackageInfoSubmittedEvent creates a PackageInfoSubmittedEvent
func NewPackageInfoSubmittedEvent(r *ReturnRequest) *PackageInfoSubmittedEvent {
	e := &PackageInfoSubmittedEvent{
		BaseDomainEvent: newEvent(EventTypePackageInfoSubmitted, r),
		ReturnRequestID: r.ID,
		PickShiftID:     r.PickShiftID,
	}
	if r.Package != nil {
		e.WeightGrams = r.Package.WeightGrams()
		e.ShippingFee = r.Package.ShippingFee
	}
	return e
}

// ShipmentCreatedEvent is raised on APPROVED -> SHIPPING
type ShipmentCreatedEvent struct {
	shared.BaseDomainEvent
	ReturnRequestID uuid.UUID  `json:"return_request_id"`
	ShipmentCode    string     `json:"shipment_code"`
	Attempt         int        `json:"attempt"`
	PickupBy        *time.Time `json:"pickup_by,omitempty"`
	FromStatus      Status     `json:"from_status"`
}

// NewShipmentCreatedEvent creates a ShipmentCreatedEvent
func NewShipmentCreatedEvent(r *ReturnRequest, from Status) *ShipmentCreatedEvent {
	return &ShipmentCreatedEvent{
		BaseDomainEvent: newEvent(EventTypeShipmentCreated, r),
		ReturnRequestID: r.ID,
		ShipmentCode:    r.GHNOrderCode,
		Attempt:         r.ShipmentAttempts,
		PickupBy:        r.DeadlineAt,
		FromStatus:      from,
	}
}

// ShipmentResetEvent is raised on SHIPPING -> APPROVED; the shop must recreate the shipment
type ShipmentResetEvent struct {
	shared.BaseDomainEvent
	ReturnRequestID uuid.UUID `json:"return_request_id"`
	ShipmentCode    string    `json:"shipment_code"`
	Cause           string    `json:"cause"`
}

// NewShipmentResetEvent creates a ShipmentResetEvent
func NewShipmentResetEvent(r *ReturnRequest, code, cause string) *ShipmentResetEvent {
	return &ShipmentResetEvent{
		BaseDomainEvent: newEvent(EventTypeShipmentReset, r),
		ReturnRequestID: r.ID,
		ShipmentCode:    code,
		Cause:           cause,
	}
}

// ReturnDeliveredEvent is raised when the courier delivers the package to the shop
type ReturnDeliveredEvent struct {
	shared.BaseDomainEvent
	ReturnRequestID uuid.UUID  `json:"return_request_id"`
	ShipmentCode    string     `json:"shipment_code"`
	DeliveredAt     *time.Time `json:"delivered_at,omitempty"`
	DecideBy        *time.Time `json:"decide_by,omitempty"`
}

// NewReturnDeliveredEvent creates a ReturnDeliveredEvent
func NewReturnDeliveredEvent(r *ReturnRequest) *ReturnDeliveredEvent {
	return &ReturnDeliveredEvent{
		BaseDomainEvent: newEvent(EventTypeReturnDelivered, r),
		ReturnRequestID: r.ID,
		ShipmentCode:    r.GHNOrderCode,
		DeliveredAt:     r.DeliveredAt,
		DecideBy:        r.DeadlineAt,
	}
}

// RefundRequestedEvent carries the refund command to the settlement side.
// It is written to the outbox in the same write that moves the request into
// REFUNDED or AUTO_REFUNDED.
type RefundRequestedEvent struct {
	shared.BaseDomainEvent
	ReturnRequestID uuid.UUID       `json:"return_request_id"`
	CustomerID      uuid.UUID       `json:"customer_id"`
	OrderItem       OrderItemRef    `json:"order_item"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	ReasonCode      RefundReason    `json:"reason_code"`
	AutoRefunded    bool            `json:"auto_refunded"`
}

// NewRefundRequestedEvent creates a RefundRequestedEvent
func NewRefundRequestedEvent(r *ReturnRequest) *RefundRequestedEvent {
	return &RefundRequestedEvent{
		BaseDomainEvent: newEvent(EventTypeRefundRequested, r),
		ReturnRequestID: r.ID,
		CustomerID:      r.CustomerID,
		OrderItem:       r.OrderItem,
		Amount:          r.RefundAmount,
		Currency:        string(r.RefundMoney().Currency()),
		ReasonCode:      r.RefundReason,
		AutoRefunded:    r.AutoRefunded,
	}
}

// AllEventTypes lists every event type with a constructor for deserialization
func AllEventTypes() map[string]shared.DomainEvent {
	return map[string]shared.DomainEvent{
		EventTypeReturnRequestSubmitted: &ReturnRequestSubmittedEvent{},
		EventTypeReturnRequestApproved:  &ReturnRequestApprovedEvent{},
		EventTypeReturnRequestRejected:  &ReturnRequestRejectedEvent{},
		EventTypeReturnRequestResolved:  &ReturnRequestResolvedEvent{},
		EventTypePackageInfoSubmitted:   &PackageInfoSubmittedEvent{},
		EventTypeShipmentCreated:        &ShipmentCreatedEvent{},
		EventTypeShipmentReset:          &ShipmentResetEvent{},
		EventTypeReturnDelivered:        &ReturnDeliveredEvent{},
		EventTypeRefundRequested:        &RefundRequestedEvent{},
	}
}

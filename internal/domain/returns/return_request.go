package returns

import (
	"strings"
	"time"

	"github.com/erp/returns/internal/domain/shared"
	"github.com/erp/returns/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReturnRequest is the aggregate root of the return workflow.
// Status only moves along the edges of the transition table; the store
// persists every change with a compare-and-swap on the previous status.
type ReturnRequest struct {
	shared.BaseAggregateRoot
	StoreID    uuid.UUID
	CustomerID uuid.UUID
	OrderItem  OrderItemRef
	ReasonType ReasonType
	Reason     string
	ItemPrice  decimal.Decimal
	Currency   valueobject.Currency
	Status     Status

	AutoApproved bool
	AutoRefunded bool

	Package       *PackageInfo
	PickupAddress valueobject.ContactAddress // customer side
	ReturnAddress valueobject.ContactAddress // shop side, provided with the package info
	PickShiftID   int

	GHNOrderCode          string
	TrackingStatus        TrackingStatus
	ShipmentEverCreated   bool
	ShipmentAttempts      int
	LastShipmentCode      string
	NeedsShipmentRecreate bool

	CustomerImageURLs []string
	CustomerVideoURL  string
	ShopRejectReason  string
	CancelReason      string

	DeadlineKind DeadlineKind
	DeadlineAt   *time.Time

	RefundReason      RefundReason
	RefundAmount      decimal.Decimal
	RefundRequestedAt *time.Time

	ApprovedAt  *time.Time
	RejectedAt  *time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	ResolvedAt  *time.Time
}

// Evidence holds the customer's attachments, fixed at submission
type Evidence struct {
	ImageURLs []string
	VideoURL  string
}

// SubmitParams carries everything a customer provides when opening a return
type SubmitParams struct {
	StoreID       uuid.UUID
	CustomerID    uuid.UUID
	OrderItem     OrderItemRef
	ReasonType    ReasonType
	Reason        string
	ItemPrice     decimal.Decimal
	Currency      valueobject.Currency
	PickupAddress valueobject.ContactAddress
	Evidence      Evidence
}

// MaxEvidenceImages bounds the number of customer images
const MaxEvidenceImages = 8

// NewReturnRequest validates the submission and creates a PENDING request
// with the shop-decision deadline armed.
func NewReturnRequest(p SubmitParams, timeouts Timeouts, now time.Time) (*ReturnRequest, error) {
	if p.StoreID == uuid.Nil {
		return nil, NewValidationError("store id is required")
	}
	if p.CustomerID == uuid.Nil {
		return nil, NewValidationError("customer id is required")
	}
	if err := p.OrderItem.Validate(); err != nil {
		return nil, err
	}
	if !p.ReasonType.IsValid() {
		return nil, NewValidationError("reason type must be CUSTOMER_FAULT or SHOP_FAULT")
	}
	reason := strings.TrimSpace(p.Reason)
	if reason == "" {
		return nil, NewValidationError("reason is required")
	}
	if !p.ItemPrice.IsPositive() {
		return nil, NewValidationError("item price must be positive")
	}
	if err := p.PickupAddress.Validate(); err != nil {
		return nil, NewValidationError(err.Error())
	}
	if len(p.Evidence.ImageURLs) > MaxEvidenceImages {
		return nil, NewValidationError("too many evidence images")
	}
	currency, err := valueobject.ParseCurrency(string(p.Currency))
	if err != nil {
		return nil, NewValidationError(err.Error())
	}

	r := &ReturnRequest{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		StoreID:           p.StoreID,
		CustomerID:        p.CustomerID,
		OrderItem:         p.OrderItem,
		ReasonType:        p.ReasonType,
		Reason:            reason,
		ItemPrice:         p.ItemPrice,
		Currency:          currency,
		Status:            StatusPending,
		PickupAddress:     p.PickupAddress,
		CustomerImageURLs: append([]string(nil), p.Evidence.ImageURLs...),
		CustomerVideoURL:  p.Evidence.VideoURL,
	}
	r.armDeadline(DeadlineShopDecision, now.Add(timeouts.For(DeadlineShopDecision)))
	r.AddDomainEvent(NewReturnRequestSubmittedEvent(r))
	return r, nil
}

// Approve moves PENDING to APPROVED and arms the packaging deadline.
// auto marks a system-driven approval.
func (r *ReturnRequest) Approve(auto bool, timeouts Timeouts, now time.Time) error {
	if r.Status != StatusPending {
		return NewInvalidTransitionError("approve", r.Status)
	}
	from := r.Status
	r.Status = StatusApproved
	r.ApprovedAt = &now
	if auto {
		r.AutoApproved = true
	}
	r.armDeadline(DeadlinePackaging, now.Add(timeouts.For(DeadlinePackaging)))
	r.Touch(now)
	r.AddDomainEvent(NewReturnRequestApprovedEvent(r, from))
	return nil
}

// Reject moves PENDING to REJECTED; the reason is shown to the customer
func (r *ReturnRequest) Reject(reason string, now time.Time) error {
	if r.Status != StatusPending {
		return NewInvalidTransitionError("reject", r.Status)
	}
	return r.reject("reject", reason, now)
}

// Dispute moves a delivered SHIPPING request to REJECTED without a refund
func (r *ReturnRequest) Dispute(reason string, now time.Time) error {
	if r.Status != StatusShipping || !r.IsDelivered() {
		return NewInvalidTransitionError("dispute", r.Status)
	}
	return r.reject("dispute", reason, now)
}

func (r *ReturnRequest) reject(action, reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return NewValidationError("a reason is required to " + action + " a return request")
	}
	from := r.Status
	r.Status = StatusRejected
	r.ShopRejectReason = reason
	r.RejectedAt = &now
	r.GHNOrderCode = ""
	r.resolve(now)
	r.AddDomainEvent(NewReturnRequestRejectedEvent(r, from, action == "dispute"))
	return nil
}

// RefundWithoutReturn refunds a PENDING request without a physical return.
// Only allowed while no shipment has ever been created.
func (r *ReturnRequest) RefundWithoutReturn(now time.Time) error {
	if r.Status != StatusPending {
		return NewInvalidTransitionError("refund without return", r.Status)
	}
	if r.GHNOrderCode != "" || r.ShipmentEverCreated {
		return NewInvalidTransitionError("refund without return after a shipment was created for", r.Status)
	}
	return r.refund(StatusRefunded, RefundShopWithoutReturn, now)
}

// AutoRefundNoShopAction refunds a PENDING request whose shop never acted
func (r *ReturnRequest) AutoRefundNoShopAction(now time.Time) error {
	if r.Status != StatusPending {
		return NewInvalidTransitionError("auto-refund", r.Status)
	}
	return r.refund(StatusAutoRefunded, RefundNoShopAction, now)
}

// ConfirmReceipt refunds a delivered SHIPPING request after the shop checked the package
func (r *ReturnRequest) ConfirmReceipt(now time.Time) error {
	if r.Status != StatusShipping || !r.IsDelivered() {
		return NewInvalidTransitionError("confirm receipt of", r.Status)
	}
	return r.refund(StatusRefunded, RefundShopConfirmedReceipt, now)
}

// AutoRefundNoDisposition refunds a delivered request the shop never confirmed or disputed
func (r *ReturnRequest) AutoRefundNoDisposition(now time.Time) error {
	if r.Status != StatusShipping || !r.IsDelivered() {
		return NewInvalidTransitionError("auto-refund", r.Status)
	}
	return r.refund(StatusAutoRefunded, RefundNoShopDisposition, now)
}

// refund moves to a refund-triggering terminal state and records the refund
// marker together with the RefundRequested event. The amount is always the
// item price; shipping fees are never refunded.
func (r *ReturnRequest) refund(target Status, reason RefundReason, now time.Time) error {
	if r.RefundRequestedAt != nil {
		return shared.NewDomainError(CodeInvalidTransition, "Refund was already requested for this return request")
	}
	from := r.Status
	r.Status = target
	if target == StatusAutoRefunded {
		r.AutoRefunded = true
	}
	r.RefundReason = reason
	r.RefundAmount = r.ItemPrice
	r.RefundRequestedAt = &now
	r.GHNOrderCode = ""
	r.resolve(now)
	r.AddDomainEvent(NewReturnRequestResolvedEvent(r, from))
	r.AddDomainEvent(NewRefundRequestedEvent(r))
	return nil
}

// Cancel moves PENDING or APPROVED to CANCELLED. Not allowed while a shipment is active.
func (r *ReturnRequest) Cancel(reason string, now time.Time) error {
	if r.Status != StatusPending && r.Status != StatusApproved {
		return NewInvalidTransitionError("cancel", r.Status)
	}
	if r.GHNOrderCode != "" {
		return NewInvalidTransitionError("cancel with an active shipment", r.Status)
	}
	from := r.Status
	r.Status = StatusCancelled
	r.CancelReason = strings.TrimSpace(reason)
	r.resolve(now)
	r.AddDomainEvent(NewReturnRequestResolvedEvent(r, from))
	return nil
}

// SubmitPackageInfo stores the packaging metrics and the shop's return address.
// The status stays APPROVED; a shipment can be created afterwards.
func (r *ReturnRequest) SubmitPackageInfo(pkg PackageInfo, returnAddress valueobject.ContactAddress, pickShiftID int, now time.Time) error {
	if r.Status != StatusApproved || r.GHNOrderCode != "" {
		return NewInvalidTransitionError("submit package info for", r.Status)
	}
	if err := pkg.Validate(); err != nil {
		return err
	}
	if err := returnAddress.Validate(); err != nil {
		return NewValidationError(err.Error())
	}
	p := pkg
	r.Package = &p
	r.ReturnAddress = returnAddress
	r.PickShiftID = pickShiftID
	r.Touch(now)
	r.AddDomainEvent(NewPackageInfoSubmittedEvent(r))
	return nil
}

// CanCreateShipment reports whether a courier shipment may be requested now
func (r *ReturnRequest) CanCreateShipment() error {
	if r.Status != StatusApproved || r.GHNOrderCode != "" {
		return NewInvalidTransitionError("create a shipment for", r.Status)
	}
	if r.Package == nil {
		return NewValidationError("package info must be submitted before creating a shipment")
	}
	return nil
}

// MarkShipmentCreated records a successful courier shipment and moves to SHIPPING
func (r *ReturnRequest) MarkShipmentCreated(code string, timeouts Timeouts, now time.Time) error {
	if err := r.CanCreateShipment(); err != nil {
		return err
	}
	if strings.TrimSpace(code) == "" {
		return NewValidationError("shipment code is required")
	}
	from := r.Status
	r.Status = StatusShipping
	r.GHNOrderCode = code
	r.LastShipmentCode = code
	r.TrackingStatus = TrackingReadyToPick
	r.ShipmentEverCreated = true
	r.ShipmentAttempts++
	r.NeedsShipmentRecreate = false
	r.ShippedAt = &now
	r.armDeadline(DeadlinePickup, now.Add(timeouts.For(DeadlinePickup)))
	r.Touch(now)
	r.AddDomainEvent(NewShipmentCreatedEvent(r, from))
	return nil
}

// ExpirePickup handles the no-pickup timeout: the attempt is abandoned and the
// request goes back to APPROVED so a new shipment can be created.
func (r *ReturnRequest) ExpirePickup(timeouts Timeouts, now time.Time) error {
	if r.Status != StatusShipping || !r.TrackingStatus.IsPrePickup() {
		return NewInvalidTransitionError("expire pickup of", r.Status)
	}
	r.resetShipment("pickup timeout", timeouts, now)
	return nil
}

// ExpireTransit gives up on a collected parcel that never arrived
func (r *ReturnRequest) ExpireTransit(timeouts Timeouts, now time.Time) error {
	if r.Status != StatusShipping || !r.TrackingStatus.IsPickedUp() || r.IsDelivered() {
		return NewInvalidTransitionError("expire transit of", r.Status)
	}
	r.resetShipment("transit timeout", timeouts, now)
	return nil
}

// AbandonShipment handles a courier-side failure of the current shipment
func (r *ReturnRequest) AbandonShipment(status TrackingStatus, timeouts Timeouts, now time.Time) error {
	if r.Status != StatusShipping || r.IsDelivered() {
		return NewInvalidTransitionError("abandon shipment of", r.Status)
	}
	r.resetShipment("courier status "+string(status), timeouts, now)
	return nil
}

func (r *ReturnRequest) resetShipment(cause string, timeouts Timeouts, now time.Time) {
	code := r.GHNOrderCode
	r.Status = StatusApproved
	r.GHNOrderCode = ""
	r.TrackingStatus = ""
	r.NeedsShipmentRecreate = true
	r.armDeadline(DeadlinePackaging, now.Add(timeouts.For(DeadlinePackaging)))
	r.Touch(now)
	r.AddDomainEvent(NewShipmentResetEvent(r, code, cause))
}

// RecordTracking stores a courier status update for the current shipment.
// The first post-pickup update swaps the pickup deadline for the transit
// deadline, and the first "delivered" update arms the disposition deadline
// from the delivery time. Pre-pickup updates arriving after pickup are late
// and ignored. Returns false when nothing changed.
func (r *ReturnRequest) RecordTracking(status TrackingStatus, at time.Time, timeouts Timeouts, now time.Time) (bool, error) {
	if r.Status != StatusShipping {
		return false, NewInvalidTransitionError("record tracking for", r.Status)
	}
	if r.TrackingStatus == status || r.IsDelivered() {
		return false, nil
	}
	if status.IsPrePickup() && r.TrackingStatus.IsPickedUp() {
		return false, nil
	}
	r.TrackingStatus = status
	r.Touch(now)
	if status.IsDelivered() {
		if at.IsZero() || at.After(now) {
			at = now
		}
		r.DeliveredAt = &at
		r.armDeadline(DeadlineDisposition, at.Add(timeouts.For(DeadlineDisposition)))
		r.AddDomainEvent(NewReturnDeliveredEvent(r))
	} else if status.IsPickedUp() && r.DeadlineKind == DeadlinePickup {
		r.armDeadline(DeadlineTransit, now.Add(timeouts.For(DeadlineTransit)))
	}
	return true, nil
}

// DeadlineDue reports whether d is the deadline currently armed on the request
// and has passed. Stale or re-armed deadlines return false.
func (r *ReturnRequest) DeadlineDue(d Deadline, now time.Time) bool {
	if r.Status != d.ExpectedStatus || r.DeadlineKind != d.Kind || r.DeadlineAt == nil {
		return false
	}
	if !r.DeadlineAt.Equal(d.FireAt) {
		return false
	}
	return !now.Before(*r.DeadlineAt)
}

// ArmedDeadline returns the currently armed deadline, if any
func (r *ReturnRequest) ArmedDeadline() (Deadline, bool) {
	if r.DeadlineKind == DeadlineNone || r.DeadlineAt == nil {
		return Deadline{}, false
	}
	return Deadline{
		ReturnRequestID: r.ID,
		ExpectedStatus:  r.Status,
		Kind:            r.DeadlineKind,
		FireAt:          *r.DeadlineAt,
	}, true
}

// armDeadline stores at microsecond precision so the value survives a
// round trip through the database unchanged.
func (r *ReturnRequest) armDeadline(kind DeadlineKind, at time.Time) {
	at = at.UTC().Truncate(time.Microsecond)
	r.DeadlineKind = kind
	r.DeadlineAt = &at
}

func (r *ReturnRequest) clearDeadline() {
	r.DeadlineKind = DeadlineNone
	r.DeadlineAt = nil
}

func (r *ReturnRequest) resolve(now time.Time) {
	r.ResolvedAt = &now
	r.clearDeadline()
	r.Touch(now)
}

// IsDelivered returns true once the courier reported delivery
func (r *ReturnRequest) IsDelivered() bool {
	return r.TrackingStatus.IsDelivered()
}

// IsTerminal returns true if the request can no longer change
func (r *ReturnRequest) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// RefundMoney returns the amount a refund would pay out
func (r *ReturnRequest) RefundMoney() valueobject.Money {
	m, err := valueobject.NewMoney(r.ItemPrice, r.Currency)
	if err != nil {
		return valueobject.NewVND(r.ItemPrice)
	}
	return m
}

// ActiveKey returns the uniqueness key held while the request is not terminal
func (r *ReturnRequest) ActiveKey() string {
	return r.StoreID.String() + ":" + r.OrderItem.String()
}

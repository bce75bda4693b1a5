package returns

// Status represents the workflow state of a return request
type Status string

const (
	StatusPending      Status = "PENDING"       // Waiting for the shop to decide
	StatusApproved     Status = "APPROVED"      // Approved, waiting for packaging or a (re)created shipment
	StatusShipping     Status = "SHIPPING"      // Courier shipment exists
	StatusRejected     Status = "REJECTED"      // Rejected or disputed by the shop
	StatusCancelled    Status = "CANCELLED"     // No shipment happened in time, or withdrawn by the customer
	StatusAutoRefunded Status = "AUTO_REFUNDED" // Refunded because a deadline expired
	StatusRefunded     Status = "REFUNDED"      // Refunded by an explicit shop action
)

// AllStatuses lists every workflow state in display order
var AllStatuses = []Status{
	StatusPending,
	StatusApproved,
	StatusShipping,
	StatusRejected,
	StatusCancelled,
	StatusAutoRefunded,
	StatusRefunded,
}

// NonTerminalStatuses are the waiting states
var NonTerminalStatuses = []Status{
	StatusPending,
	StatusApproved,
	StatusShipping,
}

// TerminalStatuses are the states a request never leaves
var TerminalStatuses = []Status{
	StatusRejected,
	StatusCancelled,
	StatusAutoRefunded,
	StatusRefunded,
}

var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected, StatusRefunded, StatusAutoRefunded, StatusCancelled},
	StatusApproved: {StatusApproved, StatusShipping, StatusCancelled},
	StatusShipping: {StatusShipping, StatusApproved, StatusRefunded, StatusRejected, StatusAutoRefunded},
}

// IsValid checks if the status is a known workflow state
func (s Status) IsValid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true for REJECTED, CANCELLED, AUTO_REFUNDED and REFUNDED
func (s Status) IsTerminal() bool {
	switch s {
	case StatusRejected, StatusCancelled, StatusAutoRefunded, StatusRefunded:
		return true
	}
	return false
}

// TriggersRefund returns true for the states that are reached together with a refund request
func (s Status) TriggersRefund() bool {
	return s == StatusRefunded || s == StatusAutoRefunded
}

// CanTransitionTo checks if the status can move to target.
// APPROVED and SHIPPING may "transition" to themselves when only their payload changes.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// ReasonType records who is at fault, which decides who bears the return shipping cost
type ReasonType string

const (
	ReasonCustomerFault ReasonType = "CUSTOMER_FAULT"
	ReasonShopFault     ReasonType = "SHOP_FAULT"
)

// IsValid checks if the reason type is known
func (r ReasonType) IsValid() bool {
	return r == ReasonCustomerFault || r == ReasonShopFault
}

// RefundReason is the machine-readable reason sent with a refund request
type RefundReason string

const (
	RefundShopWithoutReturn    RefundReason = "SHOP_REFUND_WITHOUT_RETURN"
	RefundNoShopAction         RefundReason = "AUTO_REFUND_NO_SHOP_ACTION"
	RefundShopConfirmedReceipt RefundReason = "SHOP_CONFIRMED_RECEIPT"
	RefundNoShopDisposition    RefundReason = "AUTO_REFUND_NO_DISPOSITION"
)

// TrackingStatus is the courier's status vocabulary for a shipment
type TrackingStatus string

const (
	TrackingReadyToPick         TrackingStatus = "ready_to_pick"
	TrackingPicking             TrackingStatus = "picking"
	TrackingMoneyCollectPicking TrackingStatus = "money_collect_picking"
	TrackingPicked              TrackingStatus = "picked"
	TrackingStoring             TrackingStatus = "storing"
	TrackingTransporting        TrackingStatus = "transporting"
	TrackingDelivering          TrackingStatus = "delivering"
	TrackingDelivered           TrackingStatus = "delivered"
	TrackingDeliveryFail        TrackingStatus = "delivery_fail"
	TrackingCancel              TrackingStatus = "cancel"
	TrackingLost                TrackingStatus = "lost"
	TrackingDamage              TrackingStatus = "damage"
	TrackingSorting             TrackingStatus = "sorting"
	TrackingWaitingToReturn     TrackingStatus = "waiting_to_return"
	TrackingReturning           TrackingStatus = "returning"
	TrackingReturned            TrackingStatus = "returned"
	TrackingException           TrackingStatus = "exception"
)

// IsKnown reports whether t is part of the courier's vocabulary
func (t TrackingStatus) IsKnown() bool {
	switch t {
	case TrackingReadyToPick, TrackingPicking, TrackingMoneyCollectPicking, TrackingPicked,
		TrackingStoring, TrackingTransporting, TrackingSorting, TrackingDelivering,
		TrackingDelivered, TrackingDeliveryFail, TrackingWaitingToReturn, TrackingReturning,
		TrackingReturned, TrackingException, TrackingCancel, TrackingLost, TrackingDamage:
		return true
	}
	return false
}

// IsPrePickup returns true while the courier has not collected the package yet
func (t TrackingStatus) IsPrePickup() bool {
	switch t {
	case TrackingReadyToPick, TrackingPicking, TrackingMoneyCollectPicking:
		return true
	}
	return false
}

// IsDelivered returns true once the package reached the shop
func (t TrackingStatus) IsDelivered() bool {
	return t == TrackingDelivered
}

// IsPickedUp returns true once the courier holds the package
func (t TrackingStatus) IsPickedUp() bool {
	return t.IsKnown() && !t.IsPrePickup()
}

// IsFailed returns true when the shipment will never reach the shop. A
// returned parcel is back with the customer.
func (t TrackingStatus) IsFailed() bool {
	switch t {
	case TrackingCancel, TrackingLost, TrackingDamage, TrackingReturned:
		return true
	}
	return false
}

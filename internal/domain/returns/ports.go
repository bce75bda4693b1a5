package returns

import (
	"context"
	"time"

	"github.com/erp/returns/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ShippingPayer decides who pays the return shipment
type ShippingPayer string

const (
	PayerStore    ShippingPayer = "STORE"
	PayerCustomer ShippingPayer = "CUSTOMER"
)

// PayerFor returns who bears the shipping cost for a reason type
func PayerFor(reason ReasonType) ShippingPayer {
	if reason == ReasonShopFault {
		return PayerStore
	}
	return PayerCustomer
}

// ShipmentRequest is everything the courier needs to collect a package from
// the customer and bring it back to the shop.
type ShipmentRequest struct {
	ClientOrderCode string
	ReturnRequestID uuid.UUID
	From            valueobject.ContactAddress
	To              valueobject.ContactAddress
	WeightGrams     int
	LengthCm        int
	WidthCm         int
	HeightCm        int
	PickShiftID     int
	ItemName        string
	InsuranceValue  decimal.Decimal
	Payer           ShippingPayer
	Note            string
}

// PickShift is a courier-defined collection window
type PickShift struct {
	ID    int       `json:"id"`
	Title string    `json:"title"`
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
}

// TrackingInfo is one status reported by the courier
type TrackingInfo struct {
	ShipmentCode string
	Status       TrackingStatus
	UpdatedAt    time.Time
}

// CourierGateway wraps the external pickup/shipment/tracking provider
type CourierGateway interface {
	CreateShipment(ctx context.Context, req ShipmentRequest) (string, error)
	CancelShipment(ctx context.Context, shipmentCode string) error
	QueryTracking(ctx context.Context, shipmentCode string) (TrackingInfo, error)
	ListPickShifts(ctx context.Context) ([]PickShift, error)
}

// RefundCommand asks the settlement side to pay back a customer
type RefundCommand struct {
	ReturnRequestID uuid.UUID       `json:"return_request_id"`
	StoreID         uuid.UUID       `json:"store_id"`
	CustomerID      uuid.UUID       `json:"customer_id"`
	OrderItem       OrderItemRef    `json:"order_item"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	ReasonCode      RefundReason    `json:"reason_code"`
	RequestedAt     time.Time       `json:"requested_at"`
}

// NotificationKind says who needs to know what
type NotificationKind string

const (
	NotifyCustomerRejected NotificationKind = "CUSTOMER_RETURN_REJECTED"
	NotifyCustomerResolved NotificationKind = "CUSTOMER_RETURN_RESOLVED"
	NotifyStoreDecision    NotificationKind = "STORE_DECISION_REQUIRED"
	NotifyStoreRecreate    NotificationKind = "STORE_SHIPMENT_RECREATE_REQUIRED"
	NotifyStoreDisposition NotificationKind = "STORE_DISPOSITION_REQUIRED"
)

// Notification is a message for a customer or store about a return request
type Notification struct {
	ID              uuid.UUID        `json:"id"`
	Kind            NotificationKind `json:"kind"`
	ReturnRequestID uuid.UUID        `json:"return_request_id"`
	StoreID         uuid.UUID        `json:"store_id"`
	CustomerID      uuid.UUID        `json:"customer_id"`
	Message         string           `json:"message"`
	DueAt           *time.Time       `json:"due_at,omitempty"`
}

// SettlementNotifier is the sink for refunds and action-needed notifications.
// Implementations must deduplicate RequestRefund by ReturnRequestID.
type SettlementNotifier interface {
	RequestRefund(ctx context.Context, cmd RefundCommand) error
	Notify(ctx context.Context, n Notification) error
}

// TimerHandle identifies a scheduled deadline
type TimerHandle string

// DeadlineScheduler fires OnDeadline back into the workflow at a future time
type DeadlineScheduler interface {
	ScheduleAt(ctx context.Context, d Deadline) (TimerHandle, error)
}

// DeadlineHandler receives fired deadlines
type DeadlineHandler interface {
	OnDeadline(ctx context.Context, d Deadline) error
}

// EvidenceVerifier checks that uploaded evidence really exists
type EvidenceVerifier interface {
	VerifyEvidence(ctx context.Context, urls []string) error
}

// EvidenceUpload is a presigned upload slot for one evidence file
type EvidenceUpload struct {
	Key       string    `json:"key"`
	UploadURL string    `json:"upload_url"`
	ObjectURL string    `json:"object_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EvidenceStorage hands out upload slots and verifies submitted evidence
type EvidenceStorage interface {
	EvidenceVerifier
	PresignUpload(ctx context.Context, key, contentType string) (EvidenceUpload, error)
}

package models

import (
	"time"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AddressColumns is the embedded column set for a contact address
type AddressColumns struct {
	Name       string `gorm:"type:varchar(200)"`
	Phone      string `gorm:"type:varchar(20)"`
	Address    string `gorm:"type:varchar(500)"`
	WardCode   string `gorm:"type:varchar(20)"`
	DistrictID int
}

func addressColumnsFromDomain(a valueobject.ContactAddress) AddressColumns {
	return AddressColumns{
		Name:       a.Name,
		Phone:      a.Phone,
		Address:    a.Address,
		WardCode:   a.WardCode,
		DistrictID: a.DistrictID,
	}
}

func (c AddressColumns) toDomain() valueobject.ContactAddress {
	return valueobject.ContactAddress{
		Name:       c.Name,
		Phone:      c.Phone,
		Address:    c.Address,
		WardCode:   c.WardCode,
		DistrictID: c.DistrictID,
	}
}

// ReturnRequestModel is the persistence model for the ReturnRequest aggregate.
// ActiveKey is non-null only while the request is not terminal; its unique
// index enforces one active return per order item.
type ReturnRequestModel struct {
	AggregateModel
	StoreID    uuid.UUID            `gorm:"type:uuid;not null;index:idx_return_requests_store_status,priority:1"`
	CustomerID uuid.UUID            `gorm:"type:uuid;not null;index"`
	OrderID    string               `gorm:"type:varchar(64);not null;index:idx_return_requests_order_item,priority:1"`
	ItemID     string               `gorm:"type:varchar(64);not null;index:idx_return_requests_order_item,priority:2"`
	ActiveKey  *string              `gorm:"type:varchar(200);uniqueIndex:uk_return_requests_active_key"`
	ReasonType returns.ReasonType   `gorm:"type:varchar(20);not null"`
	Reason     string               `gorm:"type:text;not null"`
	ItemPrice  decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	Currency   valueobject.Currency `gorm:"type:varchar(3);not null;default:'VND'"`
	Status     returns.Status       `gorm:"type:varchar(20);not null;index:idx_return_requests_store_status,priority:2"`

	AutoApproved bool `gorm:"not null;default:false"`
	AutoRefunded bool `gorm:"not null;default:false"`

	HasPackage         bool                `gorm:"not null;default:false"`
	PackageWeightKg    decimal.NullDecimal `gorm:"type:decimal(10,3)"`
	PackageLengthCm    int
	PackageWidthCm     int
	PackageHeightCm    int
	PackageShippingFee decimal.NullDecimal `gorm:"type:decimal(18,4)"`

	PickupAddress AddressColumns `gorm:"embedded;embeddedPrefix:pickup_"`
	ReturnAddress AddressColumns `gorm:"embedded;embeddedPrefix:return_"`
	PickShiftID   int

	GHNOrderCode          *string                `gorm:"type:varchar(64);index"`
	TrackingStatus        returns.TrackingStatus `gorm:"type:varchar(40)"`
	ShipmentEverCreated   bool                   `gorm:"not null;default:false"`
	ShipmentAttempts      int                    `gorm:"not null;default:0"`
	LastShipmentCode      string                 `gorm:"type:varchar(64);index"`
	NeedsShipmentRecreate bool                   `gorm:"not null;default:false"`

	CustomerImageURLs []string `gorm:"type:text;serializer:json"`
	CustomerVideoURL  string   `gorm:"type:varchar(1024)"`
	ShopRejectReason  string   `gorm:"type:varchar(500)"`
	CancelReason      string   `gorm:"type:varchar(500)"`

	DeadlineKind returns.DeadlineKind `gorm:"type:varchar(20)"`
	DeadlineAt   *time.Time           `gorm:"index:idx_return_requests_deadline"`

	RefundReason      returns.RefundReason `gorm:"type:varchar(40)"`
	RefundAmount      decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0"`
	RefundRequestedAt *time.Time

	ApprovedAt  *time.Time
	RejectedAt  *time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	ResolvedAt  *time.Time
}

// TableName returns the table name for GORM
func (ReturnRequestModel) TableName() string {
	return "return_requests"
}

// ToDomain converts the persistence model to a domain ReturnRequest
func (m *ReturnRequestModel) ToDomain() *returns.ReturnRequest {
	r := &returns.ReturnRequest{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		StoreID:           m.StoreID,
		CustomerID:        m.CustomerID,
		OrderItem:         returns.OrderItemRef{OrderID: m.OrderID, ItemID: m.ItemID},
		ReasonType:        m.ReasonType,
		Reason:            m.Reason,
		ItemPrice:         m.ItemPrice,
		Currency:          m.Currency,
		Status:            m.Status,
		AutoApproved:      m.AutoApproved,
		AutoRefunded:      m.AutoRefunded,
		PickupAddress:     m.PickupAddress.toDomain(),
		ReturnAddress:     m.ReturnAddress.toDomain(),
		PickShiftID:       m.PickShiftID,
		TrackingStatus:    m.TrackingStatus,

		ShipmentEverCreated:   m.ShipmentEverCreated,
		ShipmentAttempts:      m.ShipmentAttempts,
		LastShipmentCode:      m.LastShipmentCode,
		NeedsShipmentRecreate: m.NeedsShipmentRecreate,

		CustomerImageURLs: append([]string(nil), m.CustomerImageURLs...),
		CustomerVideoURL:  m.CustomerVideoURL,
		ShopRejectReason:  m.ShopRejectReason,
		CancelReason:      m.CancelReason,
		DeadlineKind:      m.DeadlineKind,
		DeadlineAt:        utcPtr(m.DeadlineAt),
		RefundReason:      m.RefundReason,
		RefundAmount:      m.RefundAmount,
		RefundRequestedAt: m.RefundRequestedAt,
		ApprovedAt:        m.ApprovedAt,
		RejectedAt:        m.RejectedAt,
		ShippedAt:         m.ShippedAt,
		DeliveredAt:       m.DeliveredAt,
		ResolvedAt:        m.ResolvedAt,
	}
	if m.GHNOrderCode != nil {
		r.GHNOrderCode = *m.GHNOrderCode
	}
	if m.HasPackage {
		r.Package = &returns.PackageInfo{
			WeightKg:    m.PackageWeightKg.Decimal,
			LengthCm:    m.PackageLengthCm,
			WidthCm:     m.PackageWidthCm,
			HeightCm:    m.PackageHeightCm,
			ShippingFee: m.PackageShippingFee.Decimal,
		}
	}
	return r
}

// FromDomain populates the persistence model from a domain ReturnRequest
func (m *ReturnRequestModel) FromDomain(r *returns.ReturnRequest) {
	m.FromDomainAggregateRoot(r.BaseAggregateRoot)
	m.StoreID = r.StoreID
	m.CustomerID = r.CustomerID
	m.OrderID = r.OrderItem.OrderID
	m.ItemID = r.OrderItem.ItemID
	m.ActiveKey = nil
	if !r.IsTerminal() {
		key := r.ActiveKey()
		m.ActiveKey = &key
	}
	m.ReasonType = r.ReasonType
	m.Reason = r.Reason
	m.ItemPrice = r.ItemPrice
	m.Currency = r.Currency
	m.Status = r.Status
	m.AutoApproved = r.AutoApproved
	m.AutoRefunded = r.AutoRefunded

	m.HasPackage = r.Package != nil
	m.PackageWeightKg = decimal.NullDecimal{}
	m.PackageShippingFee = decimal.NullDecimal{}
	m.PackageLengthCm, m.PackageWidthCm, m.PackageHeightCm = 0, 0, 0
	if r.Package != nil {
		m.PackageWeightKg = decimal.NewNullDecimal(r.Package.WeightKg)
		m.PackageShippingFee = decimal.NewNullDecimal(r.Package.ShippingFee)
		m.PackageLengthCm = r.Package.LengthCm
		m.PackageWidthCm = r.Package.WidthCm
		m.PackageHeightCm = r.Package.HeightCm
	}

	m.PickupAddress = addressColumnsFromDomain(r.PickupAddress)
	m.ReturnAddress = addressColumnsFromDomain(r.ReturnAddress)
	m.PickShiftID = r.PickShiftID

	m.GHNOrderCode = nil
	if r.GHNOrderCode != "" {
		code := r.GHNOrderCode
		m.GHNOrderCode = &code
	}
	m.TrackingStatus = r.TrackingStatus
	m.ShipmentEverCreated = r.ShipmentEverCreated
	m.ShipmentAttempts = r.ShipmentAttempts
	m.LastShipmentCode = r.LastShipmentCode
	m.NeedsShipmentRecreate = r.NeedsShipmentRecreate

	m.CustomerImageURLs = append([]string(nil), r.CustomerImageURLs...)
	m.CustomerVideoURL = r.CustomerVideoURL
	m.ShopRejectReason = r.ShopRejectReason
	m.CancelReason = r.CancelReason

	m.DeadlineKind = r.DeadlineKind
	m.DeadlineAt = r.DeadlineAt
	m.RefundReason = r.RefundReason
	m.RefundAmount = r.RefundAmount
	m.RefundRequestedAt = r.RefundRequestedAt
	m.ApprovedAt = r.ApprovedAt
	m.RejectedAt = r.RejectedAt
	m.ShippedAt = r.ShippedAt
	m.DeliveredAt = r.DeliveredAt
	m.ResolvedAt = r.ResolvedAt
}

// ReturnRequestModelFromDomain creates a new persistence model from a domain ReturnRequest
func ReturnRequestModelFromDomain(r *returns.ReturnRequest) *ReturnRequestModel {
	m := &ReturnRequestModel{}
	m.FromDomain(r)
	return m
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

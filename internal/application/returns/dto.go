package returns

import (
	"time"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/domain/shared"
	"github.com/erp/returns/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ==================== Requests ====================

// AddressInput is a courier-ready contact address
type AddressInput struct {
	Name       string `json:"name" binding:"required,min=1,max=100"`
	Phone      string `json:"phone" binding:"required,min=6,max=20"`
	Address    string `json:"address" binding:"required,min=1,max=255"`
	WardCode   string `json:"ward_code" binding:"required,max=20"`
	DistrictID int    `json:"district_id" binding:"required,gt=0"`
}

func (a AddressInput) toValueObject() valueobject.ContactAddress {
	return valueobject.ContactAddress{
		Name:       a.Name,
		Phone:      a.Phone,
		Address:    a.Address,
		WardCode:   a.WardCode,
		DistrictID: a.DistrictID,
	}
}

// SubmitReturnRequest opens a return for one purchased line item
type SubmitReturnRequest struct {
	StoreID       uuid.UUID       `json:"store_id" binding:"required"`
	OrderID       string          `json:"order_id" binding:"required,max=64"`
	ItemID        string          `json:"item_id" binding:"required,max=64"`
	ReasonType    string          `json:"reason_type" binding:"required,oneof=CUSTOMER_FAULT SHOP_FAULT"`
	Reason        string          `json:"reason" binding:"required,min=1,max=1000"`
	ItemPrice     decimal.Decimal `json:"item_price" binding:"required"`
	Currency      string          `json:"currency" binding:"omitempty,len=3"`
	PickupAddress AddressInput    `json:"pickup_address" binding:"required"`
	ImageURLs     []string        `json:"image_urls" binding:"omitempty,max=8,dive,url"`
	VideoURL      string          `json:"video_url" binding:"omitempty,url"`
}

func (r SubmitReturnRequest) evidenceURLs() []string {
	urls := append([]string(nil), r.ImageURLs...)
	if r.VideoURL != "" {
		urls = append(urls, r.VideoURL)
	}
	return urls
}

// ReasonRequest carries the mandatory reason of a reject, dispute or cancel
type ReasonRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=1000"`
}

// CancelRequest carries an optional cancellation note
type CancelRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

// PackageInfoRequest is the shop's packaging and return address
type PackageInfoRequest struct {
	WeightKg      decimal.Decimal `json:"weight_kg" binding:"required"`
	LengthCm      int             `json:"length_cm" binding:"required,gt=0,lte=200"`
	WidthCm       int             `json:"width_cm" binding:"required,gt=0,lte=200"`
	HeightCm      int             `json:"height_cm" binding:"required,gt=0,lte=200"`
	ShippingFee   decimal.Decimal `json:"shipping_fee"`
	PickShiftID   int             `json:"pick_shift_id" binding:"omitempty,pick_shift"`
	ReturnAddress AddressInput    `json:"return_address" binding:"required"`
}

// RetryShipmentRequest recreates the courier shipment from stored package info
type RetryShipmentRequest struct {
	PickShiftID int `json:"pick_shift_id" binding:"omitempty,pick_shift"`
}

// TrackingUpdateRequest is a courier status pushed by a trusted caller
type TrackingUpdateRequest struct {
	ShipmentCode string    `json:"shipment_code" binding:"required,max=64"`
	Status       string    `json:"status" binding:"required,ghn_status"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EvidenceUploadRequest asks for a presigned evidence upload slot
type EvidenceUploadRequest struct {
	FileName    string `json:"file_name" binding:"required,max=255"`
	ContentType string `json:"content_type" binding:"required,max=100"`
}

// ListReturnRequestsFilter narrows a store's return list
type ListReturnRequestsFilter struct {
	Page         int        `form:"page" binding:"omitempty,min=1"`
	PageSize     int        `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy      string     `form:"order_by" binding:"omitempty,oneof=created_at updated_at deadline_at"`
	OrderDir     string     `form:"order_dir" binding:"omitempty,oneof=asc desc"`
	Search       string     `form:"search" binding:"max=64"`
	Statuses     []string   `form:"status" binding:"omitempty,dive,oneof=PENDING APPROVED SHIPPING REJECTED CANCELLED AUTO_REFUNDED REFUNDED"`
	ReasonType   string     `form:"reason_type" binding:"omitempty,oneof=CUSTOMER_FAULT SHOP_FAULT"`
	AutoRefunded *bool      `form:"auto_refunded"`
	CreatedFrom  *time.Time `form:"created_from" time_format:"2006-01-02T15:04:05Z07:00"`
	CreatedTo    *time.Time `form:"created_to" time_format:"2006-01-02T15:04:05Z07:00"`
}

func (f ListReturnRequestsFilter) toDomain() returns.ListFilter {
	base := shared.DefaultFilter()
	if f.Page > 0 {
		base.Page = f.Page
	}
	if f.PageSize > 0 {
		base.PageSize = f.PageSize
	}
	if f.OrderBy != "" {
		base.OrderBy = f.OrderBy
	}
	if f.OrderDir != "" {
		base.OrderDir = f.OrderDir
	}
	base.Search = f.Search

	lf := returns.ListFilter{
		Filter:       base,
		ReasonType:   returns.ReasonType(f.ReasonType),
		AutoRefunded: f.AutoRefunded,
		CreatedFrom:  f.CreatedFrom,
		CreatedTo:    f.CreatedTo,
	}
	for _, s := range f.Statuses {
		lf.Statuses = append(lf.Statuses, returns.Status(s))
	}
	return lf
}

// ==================== Responses ====================

// PackageResponse is the stored packaging
type PackageResponse struct {
	WeightKg    decimal.Decimal `json:"weight_kg"`
	LengthCm    int             `json:"length_cm"`
	WidthCm     int             `json:"width_cm"`
	HeightCm    int             `json:"height_cm"`
	ShippingFee decimal.Decimal `json:"shipping_fee"`
}

// DeadlineResponse is the currently armed deadline
type DeadlineResponse struct {
	Kind   string    `json:"kind"`
	FireAt time.Time `json:"fire_at"`
}

// ReturnRequestResponse is the full projection of a return request
type ReturnRequestResponse struct {
	ID                    uuid.UUID                   `json:"id"`
	StoreID               uuid.UUID                   `json:"store_id"`
	CustomerID            uuid.UUID                   `json:"customer_id"`
	OrderID               string                      `json:"order_id"`
	ItemID                string                      `json:"item_id"`
	ReasonType            string                      `json:"reason_type"`
	Reason                string                      `json:"reason"`
	ItemPrice             decimal.Decimal             `json:"item_price"`
	Currency              string                      `json:"currency"`
	Status                string                      `json:"status"`
	AutoApproved          bool                        `json:"auto_approved"`
	AutoRefunded          bool                        `json:"auto_refunded"`
	Package               *PackageResponse            `json:"package,omitempty"`
	PickupAddress         valueobject.ContactAddress  `json:"pickup_address"`
	ReturnAddress         *valueobject.ContactAddress `json:"return_address,omitempty"`
	PickShiftID           int                         `json:"pick_shift_id,omitempty"`
	GHNOrderCode          string                      `json:"ghn_order_code,omitempty"`
	TrackingStatus        string                      `json:"tracking_status,omitempty"`
	ShipmentAttempts      int                         `json:"shipment_attempts"`
	NeedsShipmentRecreate bool                        `json:"needs_shipment_recreate"`
	CustomerImageURLs     []string                    `json:"customer_image_urls"`
	CustomerVideoURL      string                      `json:"customer_video_url,omitempty"`
	ShopRejectReason      string                      `json:"shop_reject_reason,omitempty"`
	CancelReason          string                      `json:"cancel_reason,omitempty"`
	Deadline              *DeadlineResponse           `json:"deadline,omitempty"`
	RefundReason          string                      `json:"refund_reason,omitempty"`
	RefundAmount          *decimal.Decimal            `json:"refund_amount,omitempty"`
	RefundRequestedAt     *time.Time                  `json:"refund_requested_at,omitempty"`
	ApprovedAt            *time.Time                  `json:"approved_at,omitempty"`
	RejectedAt            *time.Time                  `json:"rejected_at,omitempty"`
	ShippedAt             *time.Time                  `json:"shipped_at,omitempty"`
	DeliveredAt           *time.Time                  `json:"delivered_at,omitempty"`
	ResolvedAt            *time.Time                  `json:"resolved_at,omitempty"`
	CreatedAt             time.Time                   `json:"created_at"`
	UpdatedAt             time.Time                   `json:"updated_at"`
	Version               int                         `json:"version"`
}

// ReturnRequestListItemResponse is the list projection of a return request
type ReturnRequestListItemResponse struct {
	ID             uuid.UUID       `json:"id"`
	OrderID        string          `json:"order_id"`
	ItemID         string          `json:"item_id"`
	CustomerID     uuid.UUID       `json:"customer_id"`
	ReasonType     string          `json:"reason_type"`
	ItemPrice      decimal.Decimal `json:"item_price"`
	Status         string          `json:"status"`
	AutoRefunded   bool            `json:"auto_refunded"`
	GHNOrderCode   string          `json:"ghn_order_code,omitempty"`
	TrackingStatus string          `json:"tracking_status,omitempty"`
	DeadlineAt     *time.Time      `json:"deadline_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// StatusSummaryResponse counts a store's requests per status
type StatusSummaryResponse struct {
	Counts map[string]int64 `json:"counts"`
	Open   int64            `json:"open"`
	Total  int64            `json:"total"`
}

// ToReturnRequestResponse converts a domain request to its full projection
func ToReturnRequestResponse(r *returns.ReturnRequest) ReturnRequestResponse {
	resp := ReturnRequestResponse{
		ID:                    r.ID,
		StoreID:               r.StoreID,
		CustomerID:            r.CustomerID,
		OrderID:               r.OrderItem.OrderID,
		ItemID:                r.OrderItem.ItemID,
		ReasonType:            string(r.ReasonType),
		Reason:                r.Reason,
		ItemPrice:             r.ItemPrice,
		Currency:              string(r.Currency),
		Status:                string(r.Status),
		AutoApproved:          r.AutoApproved,
		AutoRefunded:          r.AutoRefunded,
		PickupAddress:         r.PickupAddress,
		PickShiftID:           r.PickShiftID,
		GHNOrderCode:          r.GHNOrderCode,
		TrackingStatus:        string(r.TrackingStatus),
		ShipmentAttempts:      r.ShipmentAttempts,
		NeedsShipmentRecreate: r.NeedsShipmentRecreate,
		CustomerImageURLs:     r.CustomerImageURLs,
		CustomerVideoURL:      r.CustomerVideoURL,
		ShopRejectReason:      r.ShopRejectReason,
		CancelReason:          r.CancelReason,
		RefundReason:          string(r.RefundReason),
		RefundRequestedAt:     r.RefundRequestedAt,
		ApprovedAt:            r.ApprovedAt,
		RejectedAt:            r.RejectedAt,
		ShippedAt:             r.ShippedAt,
		DeliveredAt:           r.DeliveredAt,
		ResolvedAt:            r.ResolvedAt,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
		Version:               r.Version,
	}
	if resp.CustomerImageURLs == nil {
		resp.CustomerImageURLs = []string{}
	}
	if r.Package != nil {
		resp.Package = &PackageResponse{
			WeightKg:    r.Package.WeightKg,
			LengthCm:    r.Package.LengthCm,
			WidthCm:     r.Package.WidthCm,
			HeightCm:    r.Package.HeightCm,
			ShippingFee: r.Package.ShippingFee,
		}
	}
	if !r.ReturnAddress.IsEmpty() {
		addr := r.ReturnAddress
		resp.ReturnAddress = &addr
	}
	if d, ok := r.ArmedDeadline(); ok {
		resp.Deadline = &DeadlineResponse{Kind: string(d.Kind), FireAt: d.FireAt}
	}
	if r.RefundRequestedAt != nil {
		amount := r.RefundAmount
		resp.RefundAmount = &amount
	}
	return resp
}

// ToReturnRequestListItemResponse converts a domain request to its list projection
func ToReturnRequestListItemResponse(r *returns.ReturnRequest) ReturnRequestListItemResponse {
	return ReturnRequestListItemResponse{
		ID:             r.ID,
		OrderID:        r.OrderItem.OrderID,
		ItemID:         r.OrderItem.ItemID,
		CustomerID:     r.CustomerID,
		ReasonType:     string(r.ReasonType),
		ItemPrice:      r.ItemPrice,
		Status:         string(r.Status),
		AutoRefunded:   r.AutoRefunded,
		GHNOrderCode:   r.GHNOrderCode,
		TrackingStatus: string(r.TrackingStatus),
		DeadlineAt:     r.DeadlineAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// ToReturnRequestListItemResponses converts a page of requests
func ToReturnRequestListItemResponses(rs []*returns.ReturnRequest) []ReturnRequestListItemResponse {
	out := make([]ReturnRequestListItemResponse, len(rs))
	for i, r := range rs {
		out[i] = ToReturnRequestListItemResponse(r)
	}
	return out
}

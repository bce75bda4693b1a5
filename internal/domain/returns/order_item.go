package returns

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderItemRef identifies the purchased line item being returned
type OrderItemRef struct {
	OrderID string `json:"order_id"`
	ItemID  string `json:"item_id"`
}

// Validate checks both parts are present
func (r OrderItemRef) Validate() error {
	if strings.TrimSpace(r.OrderID) == "" {
		return NewValidationError("order id is required")
	}
	if strings.TrimSpace(r.ItemID) == "" {
		return NewValidationError("order item id is required")
	}
	return nil
}

// String returns "orderID/itemID"
func (r OrderItemRef) String() string {
	return fmt.Sprintf("%s/%s", r.OrderID, r.ItemID)
}

// PackageInfo is the shop-provided packaging needed before a shipment can be created
type PackageInfo struct {
	WeightKg    decimal.Decimal `json:"weight_kg"`
	LengthCm    int             `json:"length_cm"`
	WidthCm     int             `json:"width_cm"`
	HeightCm    int             `json:"height_cm"`
	ShippingFee decimal.Decimal `json:"shipping_fee"`
}

// Validate checks that weight, every dimension and the fee are present
func (p PackageInfo) Validate() error {
	if !p.WeightKg.IsPositive() {
		return NewValidationError("package weight must be positive")
	}
	if p.LengthCm <= 0 || p.WidthCm <= 0 || p.HeightCm <= 0 {
		return NewValidationError("package dimensions must be positive")
	}
	if p.ShippingFee.IsNegative() {
		return NewValidationError("shipping fee cannot be negative")
	}
	return nil
}

// WeightGrams returns the weight rounded up to whole grams
func (p PackageInfo) WeightGrams() int {
	return int(p.WeightKg.Mul(decimal.NewFromInt(1000)).Ceil().IntPart())
}

package courier

import "encoding/json"

// GHN API paths
const (
	ghnPathCreateOrder = "/v2/shipping-order/create"
	ghnPathCancelOrder = "/v2/switch-status/cancel"
	ghnPathOrderDetail = "/v2/shipping-order/detail"
	ghnPathPickShifts  = "/v2/shift/date"
)

// GHN enumerations used by the return flow
const (
	ghnPaymentShopPays  = 1
	ghnPaymentBuyerPays = 2
	ghnServiceStandard  = 2
	ghnRequiredNote     = "KHONGCHOXEMHANG"
	ghnCodeSuccess      = 200
)

// ghnEnvelope is the common GHN response wrapper
type ghnEnvelope struct {
	Code         int             `json:"code"`
	Message      string          `json:"message"`
	Data         json.RawMessage `json:"data"`
	CodeMessage  string          `json:"code_message"`
	MessageValue string          `json:"code_message_value"`
}

type ghnItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Weight   int    `json:"weight"`
}

type ghnCreateOrderRequest struct {
	PaymentTypeID   int       `json:"payment_type_id"`
	RequiredNote    string    `json:"required_note"`
	Note            string    `json:"note,omitempty"`
	ClientOrderCode string    `json:"client_order_code"`
	FromName        string    `json:"from_name"`
	FromPhone       string    `json:"from_phone"`
	FromAddress     string    `json:"from_address"`
	FromWardCode    string    `json:"from_ward_code"`
	FromDistrictID  int       `json:"from_district_id"`
	ToName          string    `json:"to_name"`
	ToPhone         string    `json:"to_phone"`
	ToAddress       string    `json:"to_address"`
	ToWardCode      string    `json:"to_ward_code"`
	ToDistrictID    int       `json:"to_district_id"`
	Weight          int       `json:"weight"`
	Length          int       `json:"length"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	PickShift       []int     `json:"pick_shift,omitempty"`
	ServiceTypeID   int       `json:"service_type_id"`
	InsuranceValue  int64     `json:"insurance_value"`
	CODAmount       int64     `json:"cod_amount"`
	Items           []ghnItem `json:"items"`
}

type ghnCreateOrderData struct {
	OrderCode            string `json:"order_code"`
	SortCode             string `json:"sort_code"`
	TotalFee             int64  `json:"total_fee"`
	ExpectedDeliveryTime string `json:"expected_delivery_time"`
}

type ghnCancelRequest struct {
	OrderCodes []string `json:"order_codes"`
}

type ghnCancelResult struct {
	OrderCode string `json:"order_code"`
	Result    bool   `json:"result"`
	Message   string `json:"message"`
}

type ghnDetailRequest struct {
	OrderCode string `json:"order_code"`
}

type ghnOrderLog struct {
	Status      string `json:"status"`
	UpdatedDate string `json:"updated_date"`
}

type ghnOrderDetail struct {
	OrderCode       string        `json:"order_code"`
	ClientOrderCode string        `json:"client_order_code"`
	Status          string        `json:"status"`
	UpdatedDate     string        `json:"updated_date"`
	Log             []ghnOrderLog `json:"log"`
}

type ghnShift struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	FromTime int    `json:"from_time"` // seconds since local midnight
	ToTime   int    `json:"to_time"`
}

// WebhookPayload is the body GHN posts on every status change
type WebhookPayload struct {
	OrderCode       string  `json:"OrderCode"`
	ClientOrderCode string  `json:"ClientOrderCode"`
	Status          string  `json:"Status"`
	Type            string  `json:"Type"`
	Time            string  `json:"Time"`
	Reason          string  `json:"Reason"`
	ReasonCode      string  `json:"ReasonCode"`
	Weight          int     `json:"Weight"`
	TotalFee        float64 `json:"TotalFee"`
	ShopID          int     `json:"ShopID"`
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appreturns "github.com/erp/returns/internal/application/returns"
	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/domain/shared"
	"github.com/erp/returns/internal/infrastructure/auth"
	"github.com/erp/returns/internal/infrastructure/config"
	"github.com/erp/returns/internal/infrastructure/persistence"
	"github.com/erp/returns/internal/interfaces/http/dto"
	"github.com/erp/returns/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := middleware.SetupValidator(); err != nil {
		panic(err)
	}
}

const testWebhookToken = "ghn-webhook-secret"

var testEpoch = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type mockCourier struct {
	mock.Mock
}

func (m *mockCourier) CreateShipment(ctx context.Context, req returns.ShipmentRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockCourier) CancelShipment(ctx context.Context, shipmentCode string) error {
	return m.Called(ctx, shipmentCode).Error(0)
}

func (m *mockCourier) QueryTracking(ctx context.Context, shipmentCode string) (returns.TrackingInfo, error) {
	args := m.Called(ctx, shipmentCode)
	return args.Get(0).(returns.TrackingInfo), args.Error(1)
}

func (m *mockCourier) ListPickShifts(ctx context.Context) ([]returns.PickShift, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]returns.PickShift), args.Error(1)
}

type nopOutbox struct{}

func (nopOutbox) SaveEvents(context.Context, interface{}, ...shared.DomainEvent) error { return nil }

// envelope mirrors dto.Response with the payload left raw
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *dto.ErrorInfo  `json:"error"`
	Meta    *dto.Meta       `json:"meta"`
}

type apiFixture struct {
	courier *mockCourier
	orch    *appreturns.Orchestrator
	jwt     *auth.JWTService
	router  *gin.Engine

	storeID  uuid.UUID
	shop     returns.Actor
	customer returns.Actor
	system   returns.Actor
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		courier: new(mockCourier),
		storeID: uuid.New(),
		jwt: auth.NewJWTService(config.JWTConfig{
			Secret:          "handler-test-secret-at-least-32-chars",
			Issuer:          "returns-test",
			TokenExpiration: time.Hour,
		}),
	}
	f.shop = returns.Actor{Kind: returns.ActorShop, UserID: uuid.New(), StoreID: f.storeID}
	f.customer = returns.Actor{Kind: returns.ActorCustomer, UserID: uuid.New(), CustomerID: uuid.New()}
	f.system = returns.Actor{Kind: returns.ActorSystem, UserID: uuid.New()}

	repo := persistence.NewInMemoryReturnRequestRepository(nopOutbox{})
	f.orch = appreturns.NewOrchestrator(repo, f.courier, nil, shared.NewManualClock(testEpoch), appreturns.DefaultConfig(), zap.NewNop())

	rh := NewReturnRequestHandler(f.orch)
	ch := NewCourierHandler(f.orch, testWebhookToken)

	f.router = gin.New()
	f.router.POST("/webhooks/ghn", ch.Webhook)

	api := f.router.Group("", middleware.Authenticate(middleware.AuthConfig{Validator: f.jwt}))
	api.POST("/returns", rh.Submit)
	api.GET("/returns/:id", rh.Get)
	api.POST("/returns/:id/cancel", rh.Cancel)
	api.POST("/returns/:id/approve", rh.Approve)
	api.POST("/returns/:id/reject", rh.Reject)
	api.POST("/returns/:id/refund-without-return", rh.RefundWithoutReturn)
	api.POST("/returns/:id/package", rh.SubmitPackage)
	api.POST("/returns/:id/shipment/retry", rh.RetryShipment)
	api.POST("/returns/:id/confirm-receipt", rh.ConfirmReceipt)
	api.POST("/returns/:id/dispute", rh.Dispute)
	api.GET("/stores/:store_id/returns", rh.List)
	api.GET("/stores/:store_id/returns/summary", rh.Summary)
	api.GET("/stores/:store_id/returns/export", rh.Export)
	api.GET("/courier/pick-shifts", rh.PickShifts)
	api.POST("/courier/tracking", ch.TrackingUpdate)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, actor *returns.Actor) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		token, err := f.jwt.Issue(*actor)
		require.NoError(t, err)
		req.Header.Set(middleware.AuthHeaderKey, middleware.BearerPrefix+token.AccessToken)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func address(name string) appreturns.AddressInput {
	return appreturns.AddressInput{
		Name:       name,
		Phone:      "0901234567",
		Address:    "12 Nguyen Hue",
		WardCode:   "20308",
		DistrictID: 1442,
	}
}

func (f *apiFixture) submitBody(itemID string) appreturns.SubmitReturnRequest {
	return appreturns.SubmitReturnRequest{
		StoreID:       f.storeID,
		OrderID:       "ORD-1001",
		ItemID:        itemID,
		ReasonType:    string(returns.ReasonCustomerFault),
		Reason:        "wrong size",
		ItemPrice:     decimal.NewFromInt(500000),
		Currency:      "VND",
		PickupAddress: address("Customer"),
	}
}

func packageBody() appreturns.PackageInfoRequest {
	return appreturns.PackageInfoRequest{
		WeightKg:      decimal.RequireFromString("1.2"),
		LengthCm:      20,
		WidthCm:       15,
		HeightCm:      10,
		ShippingFee:   decimal.NewFromInt(25000),
		PickShiftID:   2,
		ReturnAddress: address("Shop"),
	}
}

// submit opens a request as the fixture customer and returns its id
func (f *apiFixture) submit(t *testing.T, itemID string) uuid.UUID {
	t.Helper()
	w := f.do(t, http.MethodPost, "/returns", f.submitBody(itemID), &f.customer)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp appreturns.ReturnRequestResponse
	decode(t, w, &resp)
	return resp.ID
}

func (f *apiFixture) ship(t *testing.T, code string) uuid.UUID {
	t.Helper()
	id := f.submit(t, "SKU-1")
	w := f.do(t, http.MethodPost, "/returns/"+id.String()+"/approve", nil, &f.shop)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	f.courier.On("CreateShipment", mock.Anything, mock.Anything).Return(code, nil).Once()
	w = f.do(t, http.MethodPost, "/returns/"+id.String()+"/package", packageBody(), &f.shop)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return id
}

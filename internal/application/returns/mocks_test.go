package returns

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/domain/shared"
	"github.com/erp/returns/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Mock implementations

type mockCourier struct {
	mock.Mock
}

func (m *mockCourier) CreateShipment(ctx context.Context, req returns.ShipmentRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockCourier) CancelShipment(ctx context.Context, shipmentCode string) error {
	args := m.Called(ctx, shipmentCode)
	return args.Error(0)
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

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) RequestRefund(ctx context.Context, cmd returns.RefundCommand) error {
	args := m.Called(ctx, cmd)
	return args.Error(0)
}

func (m *mockNotifier) Notify(ctx context.Context, n returns.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// recordingOutbox keeps every event the store commits
type recordingOutbox struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (o *recordingOutbox) SaveEvents(_ context.Context, _ interface{}, events ...shared.DomainEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, events...)
	return nil
}

func (o *recordingOutbox) refunds() []*returns.RefundRequestedEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*returns.RefundRequestedEvent
	for _, e := range o.events {
		if r, ok := e.(*returns.RefundRequestedEvent); ok {
			out = append(out, r)
		}
	}
	return out
}

func (o *recordingOutbox) ofType(eventType string) []shared.DomainEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []shared.DomainEvent
	for _, e := range o.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// recordingScheduler remembers armed deadlines instead of running timers
type recordingScheduler struct {
	mu    sync.Mutex
	armed []returns.Deadline
}

func (s *recordingScheduler) ScheduleAt(_ context.Context, d returns.Deadline) (returns.TimerHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = append(s.armed, d)
	return returns.TimerHandle(d.ReturnRequestID.String()), nil
}

func (s *recordingScheduler) last(t *testing.T) returns.Deadline {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.armed, "no deadline armed")
	return s.armed[len(s.armed)-1]
}

type recordingMetrics struct {
	mu          sync.Mutex
	conflicts   int
	deadlines   map[string]int
	transitions int
}

func (m *recordingMetrics) TransitionObserved(string, string, string) {
	m.mu.Lock()
	m.transitions++
	m.mu.Unlock()
}

func (m *recordingMetrics) CASConflict(string) {
	m.mu.Lock()
	m.conflicts++
	m.mu.Unlock()
}

func (m *recordingMetrics) DeadlineFired(_, outcome string) {
	m.mu.Lock()
	if m.deadlines == nil {
		m.deadlines = make(map[string]int)
	}
	m.deadlines[outcome]++
	m.mu.Unlock()
}

func (m *recordingMetrics) TrackingUpdate(string, bool) {}

// staleRepository loses every compare-and-swap
type staleRepository struct {
	returns.Repository
	attempts int
}

func (r *staleRepository) CompareAndSwapStatus(context.Context, uuid.UUID, returns.Status, returns.Mutation) (*returns.ReturnRequest, error) {
	r.attempts++
	return nil, returns.ErrStaleState
}

// Test fixtures

var testEpoch = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	repo      *persistence.InMemoryReturnRequestRepository
	outbox    *recordingOutbox
	courier   *mockCourier
	scheduler *recordingScheduler
	metrics   *recordingMetrics
	clock     *shared.ManualClock
	orch      *Orchestrator

	storeID    uuid.UUID
	customerID uuid.UUID
	shop       returns.Actor
	customer   returns.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		outbox:     &recordingOutbox{},
		courier:    new(mockCourier),
		scheduler:  &recordingScheduler{},
		metrics:    &recordingMetrics{},
		clock:      shared.NewManualClock(testEpoch),
		storeID:    uuid.New(),
		customerID: uuid.New(),
	}
	f.repo = persistence.NewInMemoryReturnRequestRepository(f.outbox)
	f.orch = NewOrchestrator(f.repo, f.courier, f.scheduler, f.clock, DefaultConfig(), zap.NewNop())
	f.orch.SetMetrics(f.metrics)
	f.shop = returns.Actor{Kind: returns.ActorShop, UserID: uuid.New(), StoreID: f.storeID}
	f.customer = returns.Actor{Kind: returns.ActorCustomer, UserID: uuid.New(), CustomerID: f.customerID}
	return f
}

func testAddress(name string) AddressInput {
	return AddressInput{
		Name:       name,
		Phone:      "0901234567",
		Address:    "12 Nguyen Hue",
		WardCode:   "20308",
		DistrictID: 1442,
	}
}

func (f *fixture) submitRequest(itemID string) SubmitReturnRequest {
	return SubmitReturnRequest{
		StoreID:       f.storeID,
		OrderID:       "ORD-1001",
		ItemID:        itemID,
		ReasonType:    string(returns.ReasonCustomerFault),
		Reason:        "wrong size",
		ItemPrice:     decimal.NewFromInt(500000),
		Currency:      "VND",
		PickupAddress: testAddress("Customer"),
	}
}

func packageRequest() PackageInfoRequest {
	return PackageInfoRequest{
		WeightKg:      decimal.RequireFromString("1.2"),
		LengthCm:      20,
		WidthCm:       15,
		HeightCm:      10,
		ShippingFee:   decimal.NewFromInt(25000),
		PickShiftID:   2,
		ReturnAddress: testAddress("Shop"),
	}
}

func (f *fixture) submit(t *testing.T) uuid.UUID {
	t.Helper()
	resp, err := f.orch.SubmitReturnRequest(context.Background(), f.customer, f.submitRequest("SKU-1"))
	require.NoError(t, err)
	return resp.ID
}

func (f *fixture) approve(t *testing.T) uuid.UUID {
	t.Helper()
	id := f.submit(t)
	_, err := f.orch.ShopApprove(context.Background(), f.shop, id)
	require.NoError(t, err)
	return id
}

func (f *fixture) ship(t *testing.T, code string) uuid.UUID {
	t.Helper()
	id := f.approve(t)
	f.courier.On("CreateShipment", mock.Anything, mock.Anything).Return(code, nil).Once()
	resp, err := f.orch.ShopSubmitPackageInfo(context.Background(), f.shop, id, packageRequest())
	require.NoError(t, err)
	require.Equal(t, string(returns.StatusShipping), resp.Status)
	return id
}

func (f *fixture) get(t *testing.T, id uuid.UUID) *returns.ReturnRequest {
	t.Helper()
	r, err := f.repo.Get(context.Background(), id)
	require.NoError(t, err)
	return r
}

package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erp/returns/internal/domain/returns"
)

// StubCourier is an in-process CourierGateway. Shipment codes are issued in
// sequence and tracking answers come from SetTracking.
type StubCourier struct {
	mu        sync.Mutex
	next      int
	created   []returns.ShipmentRequest
	cancelled []string
	tracking  map[string]returns.TrackingStatus
	createErr error
}

// NewStubCourier creates a StubCourier
func NewStubCourier() *StubCourier {
	return &StubCourier{tracking: make(map[string]returns.TrackingStatus)}
}

// FailCreate makes CreateShipment return err until called again with nil
func (c *StubCourier) FailCreate(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createErr = err
}

// SetTracking sets the status QueryTracking reports for code
func (c *StubCourier) SetTracking(code string, status returns.TrackingStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracking[code] = status
}

// Created returns every accepted shipment request
func (c *StubCourier) Created() []returns.ShipmentRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]returns.ShipmentRequest(nil), c.created...)
}

// Cancelled returns every cancelled shipment code
func (c *StubCourier) Cancelled() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cancelled...)
}

func (c *StubCourier) CreateShipment(_ context.Context, req returns.ShipmentRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return "", &returns.CourierError{Op: "create_shipment", Err: c.createErr}
	}
	c.next++
	c.created = append(c.created, req)
	code := fmt.Sprintf("GHN-%04d", c.next)
	c.tracking[code] = returns.TrackingReadyToPick
	return code, nil
}

func (c *StubCourier) CancelShipment(_ context.Context, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = append(c.cancelled, code)
	return nil
}

func (c *StubCourier) QueryTracking(_ context.Context, code string) (returns.TrackingInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, ok := c.tracking[code]
	if !ok {
		return returns.TrackingInfo{}, &returns.CourierError{Op: "query_tracking", Err: fmt.Errorf("unknown order %s", code)}
	}
	return returns.TrackingInfo{ShipmentCode: code, Status: status, UpdatedAt: time.Now().UTC()}, nil
}

func (c *StubCourier) ListPickShifts(context.Context) ([]returns.PickShift, error) {
	return []returns.PickShift{{ID: 2, Title: "Morning"}, {ID: 3, Title: "Afternoon"}}, nil
}

// RecordingNotifier is a SettlementNotifier that keeps what it was sent.
// Refunds are deduplicated by return request id.
type RecordingNotifier struct {
	mu            sync.Mutex
	refunds       map[uuid.UUID]returns.RefundCommand
	refundCalls   int
	notifications []returns.Notification
}

// NewRecordingNotifier creates a RecordingNotifier
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{refunds: make(map[uuid.UUID]returns.RefundCommand)}
}

func (n *RecordingNotifier) RequestRefund(_ context.Context, cmd returns.RefundCommand) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refundCalls++
	if _, ok := n.refunds[cmd.ReturnRequestID]; !ok {
		n.refunds[cmd.ReturnRequestID] = cmd
	}
	return nil
}

func (n *RecordingNotifier) Notify(_ context.Context, msg returns.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, msg)
	return nil
}

// Refund returns the refund recorded for id
func (n *RecordingNotifier) Refund(id uuid.UUID) (returns.RefundCommand, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	cmd, ok := n.refunds[id]
	return cmd, ok
}

// RefundCalls counts RequestRefund calls including duplicates
func (n *RecordingNotifier) RefundCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.refundCalls
}

// Notifications returns the notifications of the given kind
func (n *RecordingNotifier) Notifications(kind returns.NotificationKind) []returns.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []returns.Notification
	for _, msg := range n.notifications {
		if msg.Kind == kind {
			out = append(out, msg)
		}
	}
	return out
}

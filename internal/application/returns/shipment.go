package returns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Tracking update sources
const (
	SourceWebhook = "webhook"
	SourcePoller  = "poller"
	SourceAPI     = "api"
)

// errNoChange aborts a compare-and-swap whose mutation turned out to be a no-op
var errNoChange = errors.New("no state change")

// ShopSubmitPackageInfo stores the packaging and immediately requests a courier
// shipment. A courier failure leaves the request APPROVED with the package
// info saved; the shop may retry with ShopRetryShipment.
func (o *Orchestrator) ShopSubmitPackageInfo(ctx context.Context, actor returns.Actor, id uuid.UUID, req PackageInfoRequest) (resp *ReturnRequestResponse, err error) {
	ctx, span := telemetry.StartSpan(ctx, "returns.shop_submit_package_info", attribute.String("return_request.id", id.String()))
	defer func() { telemetry.End(span, err) }()

	pkg := returns.PackageInfo{
		WeightKg:    req.WeightKg,
		LengthCm:    req.LengthCm,
		WidthCm:     req.WidthCm,
		HeightCm:    req.HeightCm,
		ShippingFee: req.ShippingFee,
	}
	updated, _, err := o.transition(ctx, id, "shop_submit_package_info", requireShop(actor), func(r *returns.ReturnRequest) error {
		return r.SubmitPackageInfo(pkg, req.ReturnAddress.toValueObject(), req.PickShiftID, o.clock.Now())
	})
	if err != nil {
		return nil, err
	}

	shipped, err := o.createShipment(ctx, updated, req.PickShiftID)
	if err != nil {
		return nil, err
	}
	out := ToReturnRequestResponse(shipped)
	return &out, nil
}

// ShopRetryShipment recreates the courier shipment of an APPROVED request from
// its stored package info, after a creation failure or a pickup timeout.
// pickShiftID 0 keeps the stored pick shift.
func (o *Orchestrator) ShopRetryShipment(ctx context.Context, actor returns.Actor, id uuid.UUID, pickShiftID int) (resp *ReturnRequestResponse, err error) {
	ctx, span := telemetry.StartSpan(ctx, "returns.shop_retry_shipment", attribute.String("return_request.id", id.String()))
	defer func() { telemetry.End(span, err) }()

	r, err := o.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireShop(actor)(r); err != nil {
		return nil, err
	}
	shipped, err := o.createShipment(ctx, r, pickShiftID)
	if err != nil {
		return nil, err
	}
	out := ToReturnRequestResponse(shipped)
	return &out, nil
}

// ListPickShifts returns the courier's pickup windows
func (o *Orchestrator) ListPickShifts(ctx context.Context) ([]returns.PickShift, error) {
	shifts, err := o.courier.ListPickShifts(ctx)
	if err != nil {
		return nil, asCourierError("list_pick_shifts", err)
	}
	return shifts, nil
}

const shipmentCancelTimeout = 15 * time.Second

// createShipment books the courier outside any lock, then records the code
// with a compare-and-swap. If the request moved on in the meantime the
// freshly created shipment is cancelled so no orphan pickup happens.
func (o *Orchestrator) createShipment(ctx context.Context, r *returns.ReturnRequest, pickShiftID int) (*returns.ReturnRequest, error) {
	if err := r.CanCreateShipment(); err != nil {
		return nil, err
	}
	if pickShiftID == 0 {
		pickShiftID = r.PickShiftID
	}

	code, err := o.courier.CreateShipment(ctx, o.shipmentRequest(r, pickShiftID))
	if err != nil {
		o.log(ctx).Warn("courier shipment creation failed",
			zap.String("return_request_id", r.ID.String()),
			zap.Int("attempt", r.ShipmentAttempts+1),
			zap.Error(err),
		)
		return nil, asCourierError("create_shipment", err)
	}

	updated, _, err := o.transition(ctx, r.ID, "shipment_created", nil, func(cur *returns.ReturnRequest) error {
		return cur.MarkShipmentCreated(code, o.config.Timeouts, o.clock.Now())
	})
	if err != nil {
		o.cancelShipment(ctx, r.ID, code, "orphaned by concurrent change")
		return nil, err
	}
	return updated, nil
}

func (o *Orchestrator) shipmentRequest(r *returns.ReturnRequest, pickShiftID int) returns.ShipmentRequest {
	req := returns.ShipmentRequest{
		ClientOrderCode: clientOrderCode(r),
		ReturnRequestID: r.ID,
		From:            r.PickupAddress,
		To:              r.ReturnAddress,
		PickShiftID:     pickShiftID,
		ItemName:        "Return " + r.OrderItem.String(),
		InsuranceValue:  r.ItemPrice,
		Payer:           returns.PayerFor(r.ReasonType),
		Note:            r.Reason,
	}
	if r.Package != nil {
		req.WeightGrams = r.Package.WeightGrams()
		req.LengthCm = r.Package.LengthCm
		req.WidthCm = r.Package.WidthCm
		req.HeightCm = r.Package.HeightCm
	}
	return req
}

// clientOrderCode is unique per shipment attempt so the courier never
// deduplicates a recreated shipment against the abandoned one
func clientOrderCode(r *returns.ReturnRequest) string {
	short := strings.ToUpper(strings.ReplaceAll(r.ID.String(), "-", "")[:12])
	return fmt.Sprintf("RR%s-%d", short, r.ShipmentAttempts+1)
}

// cancelShipment is best effort; an uncancelled courier order expires on the
// courier side. It outlives the caller's context so a booked pickup is still
// withdrawn when the request that booked it was aborted.
func (o *Orchestrator) cancelShipment(ctx context.Context, id uuid.UUID, code, cause string) {
	if code == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shipmentCancelTimeout)
	defer cancel()
	if err := o.courier.CancelShipment(ctx, code); err != nil {
		o.log(ctx).Error("failed to cancel courier shipment",
			zap.String("return_request_id", id.String()),
			zap.String("shipment_code", code),
			zap.String("cause", cause),
			zap.Error(err),
		)
		return
	}
	o.log(ctx).Info("courier shipment cancelled",
		zap.String("return_request_id", id.String()),
		zap.String("shipment_code", code),
		zap.String("cause", cause),
	)
}

// OnTrackingUpdate applies a courier status to the request owning the shipment.
// Updates for unknown or superseded shipments and repeated statuses are no-ops.
// A failure status abandons the shipment attempt and sends the request back to APPROVED.
func (o *Orchestrator) OnTrackingUpdate(ctx context.Context, info returns.TrackingInfo, source string) (applied bool, err error) {
	ctx, span := telemetry.StartSpan(ctx, "returns.tracking_update",
		attribute.String("shipment.code", info.ShipmentCode),
		attribute.String("tracking.status", string(info.Status)),
		attribute.String("tracking.source", source),
	)
	defer func() {
		telemetry.End(span, err)
		o.metrics.TrackingUpdate(source, applied)
	}()

	if info.ShipmentCode == "" || info.Status == "" {
		return false, returns.NewValidationError("shipment code and status are required")
	}
	r, err := o.repo.FindByShipmentCode(ctx, info.ShipmentCode)
	if errors.Is(err, returns.ErrReturnRequestNotFound) {
		o.log(ctx).Debug("tracking update for unknown shipment",
			zap.String("shipment_code", info.ShipmentCode),
			zap.String("source", source),
		)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	current := func(cur *returns.ReturnRequest) error {
		if cur.Status != returns.StatusShipping || cur.GHNOrderCode != info.ShipmentCode {
			return errNoChange
		}
		return nil
	}
	trigger := "tracking_" + string(info.Status)
	_, _, err = o.transition(ctx, r.ID, trigger, current, func(cur *returns.ReturnRequest) error {
		if err := current(cur); err != nil {
			return err
		}
		now := o.clock.Now()
		if info.Status.IsFailed() {
			if cur.IsDelivered() {
				return errNoChange
			}
			return cur.AbandonShipment(info.Status, o.config.Timeouts, now)
		}
		changed, err := cur.RecordTracking(info.Status, info.UpdatedAt, o.config.Timeouts, now)
		if err != nil {
			return err
		}
		if !changed {
			return errNoChange
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func asCourierError(op string, err error) error {
	if errors.Is(err, returns.ErrCourierGateway) {
		return err
	}
	return &returns.CourierError{Op: op, Err: err}
}

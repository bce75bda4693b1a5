package returns

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Deadline firing outcomes
const (
	DeadlineOutcomeFired = "fired"
	DeadlineOutcomeStale = "stale"
	DeadlineOutcomeError = "error"
)

// errDeadlineStale marks a firing for a deadline that is no longer armed
var errDeadlineStale = errors.New("deadline no longer armed")

// OnDeadline handles a fired deadline. The timeout transition happens only if
// the request is still in the expected status with this exact deadline armed;
// anything else (a shop action got there first, a re-armed timer, a duplicate
// firing) is a no-op.
func (o *Orchestrator) OnDeadline(ctx context.Context, d returns.Deadline) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "returns.deadline",
		attribute.String("return_request.id", d.ReturnRequestID.String()),
		attribute.String("deadline.kind", string(d.Kind)),
	)
	defer func() { telemetry.End(span, err) }()

	due := func(cur *returns.ReturnRequest) error {
		if !cur.DeadlineDue(d, o.clock.Now()) {
			return errDeadlineStale
		}
		return nil
	}

	var abandonedCode string
	updated, _, err := o.transition(ctx, d.ReturnRequestID, "deadline_"+string(d.Kind), due, func(cur *returns.ReturnRequest) error {
		if err := due(cur); err != nil {
			return err
		}
		now := o.clock.Now()
		switch d.Kind {
		case returns.DeadlineShopDecision:
			return cur.AutoRefundNoShopAction(now)
		case returns.DeadlinePackaging:
			return cur.Cancel("no shipment was created before the deadline", now)
		case returns.DeadlinePickup:
			abandonedCode = cur.GHNOrderCode
			return cur.ExpirePickup(o.config.Timeouts, now)
		case returns.DeadlineTransit:
			abandonedCode = cur.GHNOrderCode
			return cur.ExpireTransit(o.config.Timeouts, now)
		case returns.DeadlineDisposition:
			return cur.AutoRefundNoDisposition(now)
		}
		return fmt.Errorf("unknown deadline kind %q", d.Kind)
	})

	switch {
	case err == nil:
		o.metrics.DeadlineFired(string(d.Kind), DeadlineOutcomeFired)
		o.log(ctx).Info("deadline fired",
			zap.String("return_request_id", d.ReturnRequestID.String()),
			zap.String("kind", string(d.Kind)),
			zap.String("status", string(updated.Status)),
		)
		if abandonedCode != "" {
			o.cancelShipment(ctx, d.ReturnRequestID, abandonedCode, strings.ToLower(string(d.Kind))+" timeout")
		}
		return nil
	case errors.Is(err, errDeadlineStale), errors.Is(err, returns.ErrReturnRequestNotFound):
		o.metrics.DeadlineFired(string(d.Kind), DeadlineOutcomeStale)
		o.log(ctx).Debug("stale deadline ignored",
			zap.String("return_request_id", d.ReturnRequestID.String()),
			zap.String("kind", string(d.Kind)),
		)
		return nil
	default:
		o.metrics.DeadlineFired(string(d.Kind), DeadlineOutcomeError)
		return err
	}
}

var _ returns.DeadlineHandler = (*Orchestrator)(nil)

package returns

import (
	"context"
	"errors"
	"time"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/domain/shared"
	"github.com/erp/returns/internal/domain/shared/valueobject"
	"github.com/erp/returns/internal/infrastructure/logger"
	"github.com/erp/returns/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultCASMaxRetries bounds how often a transition is re-evaluated after losing a race
const DefaultCASMaxRetries = 5

// Metrics receives orchestrator observations. telemetry.Metrics implements it.
type Metrics interface {
	TransitionObserved(from, to, trigger string)
	CASConflict(op string)
	DeadlineFired(kind, outcome string)
	TrackingUpdate(source string, applied bool)
}

type nopMetrics struct{}

func (nopMetrics) TransitionObserved(string, string, string) {}
func (nopMetrics) CASConflict(string)                        {}
func (nopMetrics) DeadlineFired(string, string)              {}
func (nopMetrics) TrackingUpdate(string, bool)               {}

// Config holds orchestrator settings
type Config struct {
	Timeouts             returns.Timeouts
	CASMaxRetries        int
	AutoApproveShopFault bool
}

// DefaultConfig returns the 48h SLA for every waiting state
func DefaultConfig() Config {
	return Config{
		Timeouts:      returns.UniformTimeouts(returns.DefaultSLA),
		CASMaxRetries: DefaultCASMaxRetries,
	}
}

// Orchestrator drives return requests through the workflow. Shop and customer
// actions, courier tracking updates and deadline firings all funnel into
// transition, which re-reads the request and writes through the store's
// compare-and-swap so concurrent triggers never overwrite each other.
type Orchestrator struct {
	repo      returns.Repository
	courier   returns.CourierGateway
	deadlines returns.DeadlineScheduler
	evidence  returns.EvidenceStorage
	clock     shared.Clock
	config    Config
	logger    *zap.Logger
	metrics   Metrics
}

// NewOrchestrator creates a new Orchestrator. deadlines may be nil when only
// the durable sweep fires deadlines.
func NewOrchestrator(
	repo returns.Repository,
	courier returns.CourierGateway,
	deadlines returns.DeadlineScheduler,
	clock shared.Clock,
	config Config,
	log *zap.Logger,
) *Orchestrator {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if config.CASMaxRetries <= 0 {
		config.CASMaxRetries = DefaultCASMaxRetries
	}
	return &Orchestrator{
		repo:      repo,
		courier:   courier,
		deadlines: deadlines,
		clock:     clock,
		config:    config,
		logger:    log,
		metrics:   nopMetrics{},
	}
}

// SetMetrics sets the metrics sink
func (o *Orchestrator) SetMetrics(m Metrics) {
	if m != nil {
		o.metrics = m
	}
}

// SetEvidenceStorage enables evidence uploads and verification at submission
func (o *Orchestrator) SetEvidenceStorage(s returns.EvidenceStorage) {
	o.evidence = s
}

// SetDeadlineScheduler sets the scheduler that arms in-memory timers.
// The scheduler needs the orchestrator as its handler, so it is wired after construction.
func (o *Orchestrator) SetDeadlineScheduler(s returns.DeadlineScheduler) {
	o.deadlines = s
}

// ==================== Customer operations ====================

// SubmitReturnRequest opens a PENDING return request for one order item.
// Fails with DUPLICATE_ACTIVE_RETURN while another request for the item is open.
func (o *Orchestrator) SubmitReturnRequest(ctx context.Context, actor returns.Actor, req SubmitReturnRequest) (resp *ReturnRequestResponse, err error) {
	ctx, span := telemetry.StartSpan(ctx, "returns.submit",
		attribute.String("store.id", req.StoreID.String()),
		attribute.String("order.id", req.OrderID),
	)
	defer func() { telemetry.End(span, err) }()

	if actor.Kind != returns.ActorCustomer || actor.CustomerID == uuid.Nil {
		return nil, returns.ErrForbidden
	}
	if urls := req.evidenceURLs(); o.evidence != nil && len(urls) > 0 {
		if err := o.evidence.VerifyEvidence(ctx, urls); err != nil {
			return nil, err
		}
	}

	rr, err := returns.NewReturnRequest(returns.SubmitParams{
		StoreID:       req.StoreID,
		CustomerID:    actor.CustomerID,
		OrderItem:     returns.OrderItemRef{OrderID: req.OrderID, ItemID: req.ItemID},
		ReasonType:    returns.ReasonType(req.ReasonType),
		Reason:        req.Reason,
		ItemPrice:     req.ItemPrice,
		Currency:      valueobject.Currency(req.Currency),
		PickupAddress: req.PickupAddress.toValueObject(),
		Evidence: returns.Evidence{
			ImageURLs: req.ImageURLs,
			VideoURL:  req.VideoURL,
		},
	}, o.config.Timeouts, o.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := o.repo.Create(ctx, rr); err != nil {
		return nil, err
	}
	o.committed(ctx, "", rr, "submit")

	if o.config.AutoApproveShopFault && rr.ReasonType == returns.ReasonShopFault {
		approved, _, err := o.transition(ctx, rr.ID, "auto_approve", nil, func(r *returns.ReturnRequest) error {
			return r.Approve(true, o.config.Timeouts, o.clock.Now())
		})
		if err != nil {
			// the request stays PENDING with the shop-decision deadline armed
			o.log(ctx).Warn("auto-approval failed",
				zap.String("return_request_id", rr.ID.String()),
				zap.Error(err),
			)
		} else {
			rr = approved
		}
	}

	out := ToReturnRequestResponse(rr)
	return &out, nil
}

// CustomerCancel withdraws a request that has no active courier shipment
func (o *Orchestrator) CustomerCancel(ctx context.Context, actor returns.Actor, id uuid.UUID, reason string) (*ReturnRequestResponse, error) {
	return o.act(ctx, id, "customer_cancel", requireCustomer(actor), func(r *returns.ReturnRequest, now time.Time) error {
		return r.Cancel(reason, now)
	})
}

// ==================== Shop operations ====================

// ShopApprove accepts a PENDING request and arms the packaging deadline
func (o *Orchestrator) ShopApprove(ctx context.Context, actor returns.Actor, id uuid.UUID) (*ReturnRequestResponse, error) {
	return o.act(ctx, id, "shop_approve", requireShop(actor), func(r *returns.ReturnRequest, now time.Time) error {
		return r.Approve(false, o.config.Timeouts, now)
	})
}

// ShopReject rejects a PENDING request; the reason is shown to the customer
func (o *Orchestrator) ShopReject(ctx context.Context, actor returns.Actor, id uuid.UUID, reason string) (*ReturnRequestResponse, error) {
	return o.act(ctx, id, "shop_reject", requireShop(actor), func(r *returns.ReturnRequest, now time.Time) error {
		return r.Reject(reason, now)
	})
}

// ShopRefundWithoutReturn refunds a PENDING request without a physical return.
// Not allowed once any shipment was ever created for the request.
func (o *Orchestrator) ShopRefundWithoutReturn(ctx context.Context, actor returns.Actor, id uuid.UUID) (*ReturnRequestResponse, error) {
	return o.act(ctx, id, "shop_refund_without_return", requireShop(actor), func(r *returns.ReturnRequest, now time.Time) error {
		return r.RefundWithoutReturn(now)
	})
}

// ShopConfirmReceipt refunds the item price of a delivered return
func (o *Orchestrator) ShopConfirmReceipt(ctx context.Context, actor returns.Actor, id uuid.UUID) (*ReturnRequestResponse, error) {
	return o.act(ctx, id, "shop_confirm_receipt", requireShop(actor), func(r *returns.ReturnRequest, now time.Time) error {
		return r.ConfirmReceipt(now)
	})
}

// ShopDispute rejects a delivered return without a refund
func (o *Orchestrator) ShopDispute(ctx context.Context, actor returns.Actor, id uuid.UUID, reason string) (*ReturnRequestResponse, error) {
	return o.act(ctx, id, "shop_dispute", requireShop(actor), func(r *returns.ReturnRequest, now time.Time) error {
		return r.Dispute(reason, now)
	})
}

// ==================== Reads ====================

// GetReturnRequest returns one request visible to the actor
func (o *Orchestrator) GetReturnRequest(ctx context.Context, actor returns.Actor, id uuid.UUID) (*ReturnRequestResponse, error) {
	r, err := o.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanView(r) {
		return nil, returns.ErrForbidden
	}
	out := ToReturnRequestResponse(r)
	return &out, nil
}

// ListReturnRequests returns one page of a store's requests. Customers only see their own.
func (o *Orchestrator) ListReturnRequests(ctx context.Context, actor returns.Actor, storeID uuid.UUID, filter ListReturnRequestsFilter) (*shared.Paginated[ReturnRequestListItemResponse], error) {
	lf := filter.toDomain()
	switch {
	case actor.Kind == returns.ActorSystem:
	case actor.Kind == returns.ActorShop && actor.StoreID == storeID:
	case actor.Kind == returns.ActorCustomer && actor.CustomerID != uuid.Nil:
		customerID := actor.CustomerID
		lf.CustomerID = &customerID
	default:
		return nil, returns.ErrForbidden
	}

	rs, total, err := o.repo.ListByStore(ctx, storeID, lf)
	if err != nil {
		return nil, err
	}
	lf.Normalize(100)
	page := shared.NewPaginated(ToReturnRequestListItemResponses(rs), total, lf.Page, lf.PageSize)
	return &page, nil
}

// GetStatusSummary counts a store's requests per status
func (o *Orchestrator) GetStatusSummary(ctx context.Context, actor returns.Actor, storeID uuid.UUID) (*StatusSummaryResponse, error) {
	if err := authorizeStore(actor, storeID); err != nil {
		return nil, err
	}
	counts, err := o.repo.CountByStatus(ctx, storeID)
	if err != nil {
		return nil, err
	}
	resp := &StatusSummaryResponse{Counts: make(map[string]int64, len(returns.AllStatuses))}
	for _, s := range returns.AllStatuses {
		n := counts[s]
		resp.Counts[string(s)] = n
		resp.Total += n
		if !s.IsTerminal() {
			resp.Open += n
		}
	}
	return resp, nil
}

// ==================== Transition core ====================

// act runs a caller-driven transition inside a span and converts the result
func (o *Orchestrator) act(ctx context.Context, id uuid.UUID, trigger string, guard func(*returns.ReturnRequest) error, apply func(*returns.ReturnRequest, time.Time) error) (resp *ReturnRequestResponse, err error) {
	ctx, span := telemetry.StartSpan(ctx, "returns."+trigger, attribute.String("return_request.id", id.String()))
	defer func() { telemetry.End(span, err) }()

	updated, _, err := o.transition(ctx, id, trigger, guard, func(r *returns.ReturnRequest) error {
		return apply(r, o.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	out := ToReturnRequestResponse(updated)
	return &out, nil
}

// transition re-reads the request, checks guard and writes mutate through
// the store's compare-and-swap on the status just read. A lost race re-reads
// and re-evaluates; after CASMaxRetries losses the caller gets RETRY_LATER.
// The status the committed write started from is returned alongside.
func (o *Orchestrator) transition(ctx context.Context, id uuid.UUID, trigger string, guard func(*returns.ReturnRequest) error, mutate returns.Mutation) (*returns.ReturnRequest, returns.Status, error) {
	for attempt := 1; attempt <= o.config.CASMaxRetries; attempt++ {
		current, err := o.repo.Get(ctx, id)
		if err != nil {
			return nil, "", err
		}
		if guard != nil {
			if err := guard(current); err != nil {
				return nil, current.Status, err
			}
		}

		updated, err := o.repo.CompareAndSwapStatus(ctx, id, current.Status, mutate)
		if err == nil {
			o.committed(ctx, current.Status, updated, trigger)
			return updated, current.Status, nil
		}
		if !errors.Is(err, returns.ErrStaleState) {
			return nil, current.Status, err
		}
		o.metrics.CASConflict(trigger)
		o.log(ctx).Debug("return request changed concurrently, re-evaluating",
			zap.String("return_request_id", id.String()),
			zap.String("trigger", trigger),
			zap.Int("attempt", attempt),
		)
	}

	o.log(ctx).Warn("compare-and-swap retries exhausted",
		zap.String("return_request_id", id.String()),
		zap.String("trigger", trigger),
		zap.Int("max_retries", o.config.CASMaxRetries),
	)
	return nil, "", returns.ErrRetryLater
}

// committed logs the transition and arms the in-memory timer for the deadline
// now stored on the request. The durable sweep covers a failed ScheduleAt.
func (o *Orchestrator) committed(ctx context.Context, from returns.Status, r *returns.ReturnRequest, trigger string) {
	o.metrics.TransitionObserved(string(from), string(r.Status), trigger)
	o.log(ctx).Info("return request transition",
		zap.String("return_request_id", r.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(r.Status)),
		zap.String("event", trigger),
		zap.Int("version", r.Version),
	)

	d, ok := r.ArmedDeadline()
	if !ok || o.deadlines == nil {
		return
	}
	if _, err := o.deadlines.ScheduleAt(ctx, d); err != nil {
		o.log(ctx).Warn("failed to arm deadline timer",
			zap.String("return_request_id", r.ID.String()),
			zap.String("kind", string(d.Kind)),
			zap.Time("fire_at", d.FireAt),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) log(ctx context.Context) *zap.Logger {
	l := o.logger
	if id := logger.RequestID(ctx); id != "" {
		l = l.With(zap.String("request_id", id))
	}
	if fields := logger.TraceFields(ctx); fields != nil {
		l = l.With(fields...)
	}
	return l
}

func requireShop(actor returns.Actor) func(*returns.ReturnRequest) error {
	return func(r *returns.ReturnRequest) error {
		if actor.Kind == returns.ActorSystem || actor.IsShopOf(r) {
			return nil
		}
		return returns.ErrForbidden
	}
}

func requireCustomer(actor returns.Actor) func(*returns.ReturnRequest) error {
	return func(r *returns.ReturnRequest) error {
		if actor.Kind == returns.ActorSystem || actor.IsCustomerOf(r) {
			return nil
		}
		return returns.ErrForbidden
	}
}

func authorizeStore(actor returns.Actor, storeID uuid.UUID) error {
	if actor.Kind == returns.ActorSystem || (actor.Kind == returns.ActorShop && actor.StoreID == storeID) {
		return nil
	}
	return returns.ErrForbidden
}

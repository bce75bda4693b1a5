package returns

import (
	"context"
	"sync/atomic"

	"github.com/erp/returns/internal/domain/returns"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TrackingPollerConfig holds tracking poll settings
type TrackingPollerConfig struct {
	BatchSize   int
	Concurrency int
}

// TrackingPoller queries the courier for every in-transit shipment and feeds
// the result into OnTrackingUpdate. It covers webhooks that never arrived.
type TrackingPoller struct {
	repo         returns.Repository
	courier      returns.CourierGateway
	orchestrator *Orchestrator
	config       TrackingPollerConfig
	logger       *zap.Logger
}

// NewTrackingPoller creates a new TrackingPoller
func NewTrackingPoller(repo returns.Repository, courier returns.CourierGateway, orchestrator *Orchestrator, config TrackingPollerConfig, logger *zap.Logger) *TrackingPoller {
	if config.BatchSize <= 0 {
		config.BatchSize = 200
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackingPoller{
		repo:         repo,
		courier:      courier,
		orchestrator: orchestrator,
		config:       config,
		logger:       logger,
	}
}

// PollResult summarises one poll
type PollResult struct {
	Polled  int
	Applied int
	Failed  int
}

// Poll runs one pass. Individual courier failures are counted, not returned;
// only a failure to load the in-transit set fails the pass.
func (p *TrackingPoller) Poll(ctx context.Context) (PollResult, error) {
	inTransit, err := p.repo.FindInTransit(ctx, p.config.BatchSize)
	if err != nil {
		return PollResult{}, err
	}

	var applied, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Concurrency)
	for _, r := range inTransit {
		code := r.GHNOrderCode
		id := r.ID
		g.Go(func() error {
			info, err := p.courier.QueryTracking(gctx, code)
			if err != nil {
				failed.Add(1)
				p.logger.Warn("tracking query failed",
					zap.String("return_request_id", id.String()),
					zap.String("shipment_code", code),
					zap.Error(err),
				)
				return nil
			}
			if info.ShipmentCode == "" {
				info.ShipmentCode = code
			}
			ok, err := p.orchestrator.OnTrackingUpdate(gctx, info, SourcePoller)
			if err != nil {
				failed.Add(1)
				p.logger.Warn("tracking update failed",
					zap.String("return_request_id", id.String()),
					zap.String("shipment_code", code),
					zap.Error(err),
				)
				return nil
			}
			if ok {
				applied.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := PollResult{Polled: len(inTransit), Applied: int(applied.Load()), Failed: int(failed.Load())}
	if res.Polled > 0 {
		p.logger.Info("tracking poll finished",
			zap.Int("polled", res.Polled),
			zap.Int("applied", res.Applied),
			zap.Int("failed", res.Failed),
		)
	}
	return res, ctx.Err()
}

// Run adapts Poll to a periodic job body
func (p *TrackingPoller) Run(ctx context.Context) error {
	_, err := p.Poll(ctx)
	return err
}

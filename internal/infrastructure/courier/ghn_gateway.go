package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/domain/shared"
	"go.uber.org/zap"
)

const maxGHNResponseSize = 2 * 1024 * 1024

// vnLocation is the courier's local time zone; pick shifts are defined in it
var vnLocation = time.FixedZone("ICT", 7*60*60)

// Call outcomes reported to a CallObserver
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// CallObserver receives one observation per courier operation
type CallObserver interface {
	ObserveCourierCall(op, outcome string, elapsed time.Duration)
}

// GHNGateway implements returns.CourierGateway on the GHN (Giao Hang Nhanh) API
type GHNGateway struct {
	config     *GHNConfig
	httpClient *http.Client
	clock      shared.Clock
	logger     *zap.Logger
	observer   CallObserver
}

// NewGHNGateway creates a new GHN gateway with the given configuration
func NewGHNGateway(config *GHNConfig, clock shared.Clock, logger *zap.Logger) (*GHNGateway, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GHNGateway{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		clock:  clock,
		logger: logger,
	}, nil
}

// SetObserver sets the call observer used for metrics
func (g *GHNGateway) SetObserver(o CallObserver) {
	g.observer = o
}

// CreateShipment books a pickup at the customer and delivery to the shop.
// Returns the courier order code.
func (g *GHNGateway) CreateShipment(ctx context.Context, req returns.ShipmentRequest) (string, error) {
	payment := ghnPaymentBuyerPays
	if req.Payer == returns.PayerStore {
		payment = ghnPaymentShopPays
	}
	itemName := req.ItemName
	if itemName == "" {
		itemName = "Return " + req.ClientOrderCode
	}

	body := ghnCreateOrderRequest{
		PaymentTypeID:   payment,
		RequiredNote:    ghnRequiredNote,
		Note:            req.Note,
		ClientOrderCode: req.ClientOrderCode,
		FromName:        req.From.Name,
		FromPhone:       req.From.Phone,
		FromAddress:     req.From.Address,
		FromWardCode:    req.From.WardCode,
		FromDistrictID:  req.From.DistrictID,
		ToName:          req.To.Name,
		ToPhone:         req.To.Phone,
		ToAddress:       req.To.Address,
		ToWardCode:      req.To.WardCode,
		ToDistrictID:    req.To.DistrictID,
		Weight:          req.WeightGrams,
		Length:          req.LengthCm,
		Width:           req.WidthCm,
		Height:          req.HeightCm,
		ServiceTypeID:   ghnServiceStandard,
		InsuranceValue:  req.InsuranceValue.Round(0).IntPart(),
		Items: []ghnItem{{
			Name:     itemName,
			Quantity: 1,
			Weight:   req.WeightGrams,
		}},
	}
	if req.PickShiftID > 0 {
		body.PickShift = []int{req.PickShiftID}
	}

	var data ghnCreateOrderData
	// a lost response may still have created the order, so only retry
	// when GHN said it did not process the request
	if err := g.call(ctx, "create_shipment", ghnPathCreateOrder, body, &data, false); err != nil {
		return "", err
	}
	if data.OrderCode == "" {
		return "", &returns.CourierError{Op: "create_shipment", Err: fmt.Errorf("%w: empty order code", ErrCourierRejected)}
	}

	g.logger.Info("GHN shipment created",
		zap.String("return_request_id", req.ReturnRequestID.String()),
		zap.String("client_order_code", req.ClientOrderCode),
		zap.String("order_code", data.OrderCode),
		zap.Int64("total_fee", data.TotalFee),
	)
	return data.OrderCode, nil
}

// CancelShipment cancels a courier order that has not been picked up
func (g *GHNGateway) CancelShipment(ctx context.Context, shipmentCode string) error {
	var results []ghnCancelResult
	if err := g.call(ctx, "cancel_shipment", ghnPathCancelOrder, ghnCancelRequest{OrderCodes: []string{shipmentCode}}, &results, true); err != nil {
		return err
	}
	for _, r := range results {
		if r.OrderCode == shipmentCode && !r.Result {
			return &returns.CourierError{Op: "cancel_shipment", Err: fmt.Errorf("%w: %s", ErrCourierRejected, r.Message)}
		}
	}
	return nil
}

// QueryTracking returns the current courier status of a shipment
func (g *GHNGateway) QueryTracking(ctx context.Context, shipmentCode string) (returns.TrackingInfo, error) {
	var detail ghnOrderDetail
	if err := g.call(ctx, "query_tracking", ghnPathOrderDetail, ghnDetailRequest{OrderCode: shipmentCode}, &detail, true); err != nil {
		return returns.TrackingInfo{}, err
	}

	info := returns.TrackingInfo{
		ShipmentCode: shipmentCode,
		Status:       returns.TrackingStatus(strings.ToLower(detail.Status)),
		UpdatedAt:    parseGHNTime(detail.UpdatedDate),
	}
	// the log carries the real time the current status was reached
	for i := len(detail.Log) - 1; i >= 0; i-- {
		if strings.EqualFold(detail.Log[i].Status, detail.Status) {
			if at := parseGHNTime(detail.Log[i].UpdatedDate); !at.IsZero() {
				info.UpdatedAt = at
			}
			break
		}
	}
	return info, nil
}

// ListPickShifts returns today's pickup windows
func (g *GHNGateway) ListPickShifts(ctx context.Context) ([]returns.PickShift, error) {
	var shifts []ghnShift
	if err := g.callGet(ctx, "list_pick_shifts", ghnPathPickShifts, &shifts); err != nil {
		return nil, err
	}

	now := g.clock.Now().In(vnLocation)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, vnLocation)
	result := make([]returns.PickShift, 0, len(shifts))
	for _, s := range shifts {
		result = append(result, returns.PickShift{
			ID:    s.ID,
			Title: s.Title,
			From:  midnight.Add(time.Duration(s.FromTime) * time.Second).UTC(),
			To:    midnight.Add(time.Duration(s.ToTime) * time.Second).UTC(),
		})
	}
	return result, nil
}

func (g *GHNGateway) call(ctx context.Context, op, path string, body, out any, retryTransport bool) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &returns.CourierError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
	}
	return g.do(ctx, op, http.MethodPost, path, payload, out, retryTransport)
}

func (g *GHNGateway) callGet(ctx context.Context, op, path string, out any) error {
	return g.do(ctx, op, http.MethodGet, path, nil, out, true)
}

// do runs one GHN call with exponential backoff. 4xx answers and non-200
// envelope codes are permanent; 429 and 5xx are retried.
func (g *GHNGateway) do(ctx context.Context, op, method, path string, payload []byte, out any, retryTransport bool) error {
	start := time.Now()
	attempt := 0

	operation := func() error {
		attempt++
		err := g.doOnce(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		var te *transportError
		if errors.As(err, &te) && !retryTransport {
			return backoff.Permanent(err)
		}
		if errors.Is(err, ErrCourierUnavailable) {
			g.logger.Debug("GHN call failed, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(g.newBackOff(), uint64(g.config.MaxRetries)), ctx))

	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
		if errors.Is(err, ErrCourierRejected) {
			outcome = OutcomeRejected
		}
	}
	if g.observer != nil {
		g.observer.ObserveCourierCall(op, outcome, time.Since(start))
	}
	if err != nil {
		g.logger.Warn("GHN call failed",
			zap.String("op", op),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
		return &returns.CourierError{Op: op, Err: err}
	}
	return nil
}

func (g *GHNGateway) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.config.RetryBackoff
	b.MaxInterval = 10 * g.config.RetryBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// transportError marks failures where the request may or may not have reached GHN
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return ErrCourierUnavailable }

func (g *GHNGateway) doOnce(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Token", g.config.Token)
	req.Header.Set("ShopId", strconv.Itoa(g.config.ShopID))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &transportError{err: fmt.Errorf("%w: %v", ErrCourierUnavailable, err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxGHNResponseSize))
	if err != nil {
		return &transportError{err: fmt.Errorf("%w: read response: %v", ErrCourierUnavailable, err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return fmt.Errorf("%w: HTTP %d", ErrCourierUnavailable, resp.StatusCode)
	}

	var env ghnEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: HTTP %d with unreadable body", ErrCourierRejected, resp.StatusCode)
	}
	if resp.StatusCode >= 400 || env.Code != ghnCodeSuccess {
		msg := env.Message
		if env.CodeMessage != "" {
			msg = env.CodeMessage + ": " + msg
		}
		return fmt.Errorf("%w: HTTP %d code %d: %s", ErrCourierRejected, resp.StatusCode, env.Code, msg)
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: decode data: %v", ErrCourierRejected, err)
		}
	}
	return nil
}

func parseGHNTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

var _ returns.CourierGateway = (*GHNGateway)(nil)

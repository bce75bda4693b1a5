package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/infrastructure/config"
	"go.uber.org/zap"
)

const maxSettlementResponseSize = 64 * 1024

// HTTPNotifier posts refund requests and notifications to the settlement API
type HTTPNotifier struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPNotifier creates a notifier for the settlement HTTP API
func NewHTTPNotifier(cfg config.SettlementConfig, logger *zap.Logger) (*HTTPNotifier, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("settlement: endpoint is required for the http transport")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPNotifier{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

// RequestRefund posts the refund command. A 409 means the receiver already
// has this refund and counts as delivered.
func (n *HTTPNotifier) RequestRefund(ctx context.Context, cmd returns.RefundCommand) error {
	key := RefundKey(cmd.ReturnRequestID)
	if err := n.post(ctx, "/refunds", key, Envelope{Type: MessageTypeRefundRequested, IdempotencyKey: key, Data: cmd}); err != nil {
		return deliveryError(cmd.ReturnRequestID, err)
	}
	n.logger.Info("Refund request delivered",
		zap.String("return_request_id", cmd.ReturnRequestID.String()),
		zap.String("amount", cmd.Amount.String()),
		zap.String("reason_code", string(cmd.ReasonCode)),
	)
	return nil
}

// Notify posts a workflow notification
func (n *HTTPNotifier) Notify(ctx context.Context, msg returns.Notification) error {
	key := NotificationKey(msg.ID)
	if err := n.post(ctx, "/notifications", key, Envelope{Type: MessageTypeNotification, IdempotencyKey: key, Data: msg}); err != nil {
		return deliveryError(msg.ReturnRequestID, err)
	}
	return nil
}

func (n *HTTPNotifier) post(ctx context.Context, path, key string, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", key)
	if n.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.apiKey)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSettlementUnavailable, err)
	}
	defer resp.Body.Close()
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxSettlementResponseSize))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300, resp.StatusCode == http.StatusConflict:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrSettlementUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", ErrSettlementRejected, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
}

var _ returns.SettlementNotifier = (*HTTPNotifier)(nil)

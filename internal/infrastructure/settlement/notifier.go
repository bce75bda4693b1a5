// Package settlement delivers refund requests and workflow notifications to
// the settlement side. Every transport sends an idempotency key so the
// receiver can drop duplicates; DedupeNotifier drops them on this side too.
package settlement

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/domain/shared"
	"github.com/erp/returns/internal/infrastructure/cache"
	"github.com/erp/returns/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Message types carried in the envelope
const (
	MessageTypeRefundRequested = "refund.requested"
	MessageTypeNotification    = "return.notification"
)

var (
	// ErrSettlementUnavailable is returned when the receiver cannot be reached or answers 5xx
	ErrSettlementUnavailable = errors.New("settlement: receiver unavailable")

	// ErrSettlementRejected is returned when the receiver refuses a message
	ErrSettlementRejected = errors.New("settlement: message rejected")
)

// Envelope is the wire format shared by the HTTP and Kafka transports
type Envelope struct {
	Type           string `json:"type"`
	IdempotencyKey string `json:"idempotency_key"`
	Data           any    `json:"data"`
}

// RefundKey is the deduplication key of a refund request
func RefundKey(id fmt.Stringer) string {
	return "refund:" + id.String()
}

// NotificationKey is the deduplication key of a notification
func NotificationKey(id fmt.Stringer) string {
	return "notify:" + id.String()
}

// NewNotifier builds the configured transport. The returned closer releases
// transport resources and is never nil.
func NewNotifier(cfg config.SettlementConfig, logger *zap.Logger) (returns.SettlementNotifier, io.Closer, error) {
	switch cfg.Transport {
	case "http":
		n, err := NewHTTPNotifier(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return n, nopCloser{}, nil
	case "kafka":
		n, err := NewKafkaNotifier(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return n, n, nil
	case "log", "":
		return NewLogNotifier(logger), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported settlement transport %q", cfg.Transport)
	}
}

// NewDedupedNotifier builds the configured transport behind a DedupeNotifier
func NewDedupedNotifier(cfg config.SettlementConfig, store shared.IdempotencyStore, logger *zap.Logger) (returns.SettlementNotifier, io.Closer, error) {
	inner, closer, err := NewNotifier(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return NewDedupeNotifier(inner, store, cfg.DedupeTTL, logger, WithLease(leaseFor(cfg))), closer, nil
}

// a lease shorter than the transport timeout would let a retry overlap a slow attempt
func leaseFor(cfg config.SettlementConfig) time.Duration {
	return max(cache.DefaultLeaseTTL, 4*cfg.Timeout)
}

func deliveryError(id fmt.Stringer, err error) error {
	return &returns.SettlementError{ReturnRequestID: id.String(), Err: err}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

package courier

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/erp/returns/internal/domain/returns"
)

// WebhookTokenHeader carries the shared secret configured on the GHN dashboard
const WebhookTokenHeader = "X-GHN-Token"

// ParseWebhook decodes a GHN status callback into a tracking update
func ParseWebhook(body []byte) (returns.TrackingInfo, WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return returns.TrackingInfo{}, p, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	p.OrderCode = strings.TrimSpace(p.OrderCode)
	if p.OrderCode == "" {
		return returns.TrackingInfo{}, p, fmt.Errorf("%w: missing OrderCode", ErrInvalidWebhook)
	}
	status := strings.ToLower(strings.TrimSpace(p.Status))
	if status == "" {
		return returns.TrackingInfo{}, p, fmt.Errorf("%w: missing Status", ErrInvalidWebhook)
	}
	return returns.TrackingInfo{
		ShipmentCode: p.OrderCode,
		Status:       returns.TrackingStatus(status),
		UpdatedAt:    parseGHNTime(p.Time),
	}, p, nil
}

// VerifyWebhookToken compares the received token with the configured one.
// An empty configured token rejects every callback.
func VerifyWebhookToken(expected, received string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}

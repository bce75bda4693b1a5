package returns

import (
	"time"

	"github.com/google/uuid"
)

// DeadlineKind names the human action a waiting state is waiting for
type DeadlineKind string

const (
	DeadlineNone         DeadlineKind = ""
	DeadlineShopDecision DeadlineKind = "SHOP_DECISION" // PENDING: shop must approve, reject or refund
	DeadlinePackaging    DeadlineKind = "PACKAGING"     // APPROVED: a shipment must be created
	DeadlinePickup       DeadlineKind = "PICKUP"        // SHIPPING: courier must collect the package
	DeadlineTransit      DeadlineKind = "TRANSIT"       // SHIPPING, picked up: courier must deliver
	DeadlineDisposition  DeadlineKind = "DISPOSITION"   // SHIPPING, delivered: shop must confirm or dispute
)

// ExpectedStatus returns the status a deadline of this kind guards
func (k DeadlineKind) ExpectedStatus() Status {
	switch k {
	case DeadlineShopDecision:
		return StatusPending
	case DeadlinePackaging:
		return StatusApproved
	case DeadlinePickup, DeadlineTransit, DeadlineDisposition:
		return StatusShipping
	}
	return ""
}

// Deadline is one armed timer: when FireAt passes, the request is re-evaluated
// and the timeout transition happens only if it is still in ExpectedStatus.
type Deadline struct {
	ReturnRequestID uuid.UUID    `json:"return_request_id"`
	ExpectedStatus  Status       `json:"expected_status"`
	Kind            DeadlineKind `json:"kind"`
	FireAt          time.Time    `json:"fire_at"`
}

// Timeouts holds the waiting-state durations. Every field but Transit defaults
// to the single SLA.
type Timeouts struct {
	ShopDecision time.Duration
	Packaging    time.Duration
	Pickup       time.Duration
	Transit      time.Duration
	Disposition  time.Duration
}

// DefaultSLA is the 48 hour window used by every human waiting state
const DefaultSLA = 48 * time.Hour

// DefaultTransit bounds how long a collected parcel may travel. Inter-province
// GHN routes routinely exceed the SLA, so it has its own default.
const DefaultTransit = 7 * 24 * time.Hour

// UniformTimeouts uses sla for every human waiting state; transit keeps DefaultTransit
func UniformTimeouts(sla time.Duration) Timeouts {
	return Timeouts{
		ShopDecision: sla,
		Packaging:    sla,
		Pickup:       sla,
		Disposition:  sla,
	}
}

// For returns the duration for the given kind
func (t Timeouts) For(kind DeadlineKind) time.Duration {
	var d time.Duration
	switch kind {
	case DeadlineShopDecision:
		d = t.ShopDecision
	case DeadlinePackaging:
		d = t.Packaging
	case DeadlinePickup:
		d = t.Pickup
	case DeadlineTransit:
		if t.Transit <= 0 {
			return DefaultTransit
		}
		d = t.Transit
	case DeadlineDisposition:
		d = t.Disposition
	}
	if d <= 0 {
		return DefaultSLA
	}
	return d
}

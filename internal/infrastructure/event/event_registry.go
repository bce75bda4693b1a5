package event

import "github.com/erp/returns/internal/domain/returns"

// RegisterAllEvents registers every return workflow event with the serializer
// so the outbox processor can rebuild events from stored payloads.
func RegisterAllEvents(serializer *EventSerializer) {
	for eventType, instance := range returns.AllEventTypes() {
		serializer.Register(eventType, instance)
	}
}

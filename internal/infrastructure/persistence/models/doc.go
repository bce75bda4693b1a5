// Package models contains GORM persistence models that map to database tables.
// They are kept apart from the domain types so the domain stays free of ORM tags;
// each model converts with ToDomain / FromDomain.
//
//   - base.go: BaseModel and AggregateModel (id, timestamps, version)
//   - return_request.go: return_requests table
//   - outbox.go: outbox_events table used by the transactional outbox
package models

package handler

import (
	"github.com/erp/returns/internal/application/event"
	"github.com/gin-gonic/gin"
)

// OutboxHandler lets operators inspect and replay undelivered settlement events
type OutboxHandler struct {
	BaseHandler
	outboxService *event.OutboxService
}

// NewOutboxHandler creates a new outbox handler
func NewOutboxHandler(outboxService *event.OutboxService) *OutboxHandler {
	return &OutboxHandler{outboxService: outboxService}
}

// ListDeadLetters godoc
// @ID           listOutboxDeadLetters
// @Summary      List dead letter entries
// @Description  Refund and notification events that exhausted their delivery attempts
// @Tags         outbox
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Items per page" default(20) maximum(100)
// @Success      200 {object} APIResponse[[]OutboxEntryResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /system/outbox/dead [get]
func (h *OutboxHandler) ListDeadLetters(c *gin.Context) {
	var filter event.OutboxFilter
	if !h.bindQuery(c, &filter) {
		return
	}

	page, err := h.outboxService.ListDeadLetters(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	entries := make([]OutboxEntryResponse, len(page.Items))
	for i := range page.Items {
		entries[i] = toOutboxEntryResponse(&page.Items[i])
	}
	h.SuccessWithMeta(c, entries, page.Total, page.Page, page.PageSize)
}

// GetEntry returns one outbox entry
// @Router /system/outbox/{id} [get]
func (h *OutboxHandler) GetEntry(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	entry, err := h.outboxService.GetEntry(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toOutboxEntryResponse(entry))
}

// RetryDeadEntry godoc
// @ID           retryOutboxDeadEntry
// @Summary      Retry a dead letter entry
// @Description  Puts the entry back into PENDING and wakes the relay
// @Tags         outbox
// @Produce      json
// @Param        id path string true "Outbox Entry ID" format(uuid)
// @Success      200 {object} APIResponse[OutboxEntryResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /system/outbox/{id}/retry [post]
func (h *OutboxHandler) RetryDeadEntry(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	entry, err := h.outboxService.RetryDeadEntry(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toOutboxEntryResponse(entry))
}

// RetryAllDeadEntries resets every dead letter
// @Router /system/outbox/dead/retry-all [post]
func (h *OutboxHandler) RetryAllDeadEntries(c *gin.Context) {
	count, err := h.outboxService.RetryAllDeadEntries(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, CountData{Count: count})
}

// GetStats counts entries per delivery status
// @Router /system/outbox/stats [get]
func (h *OutboxHandler) GetStats(c *gin.Context) {
	stats, err := h.outboxService.GetStats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// OutboxEntryResponse represents an outbox entry in API response
type OutboxEntryResponse struct {
	ID              string  `json:"id"`
	StoreID         string  `json:"store_id"`
	EventID         string  `json:"event_id"`
	EventType       string  `json:"event_type"`
	ReturnRequestID string  `json:"return_request_id"`
	Status          string  `json:"status"`
	RetryCount      int     `json:"retry_count"`
	MaxRetries      int     `json:"max_retries"`
	LastError       string  `json:"last_error,omitempty"`
	NextRetryAt     *string `json:"next_retry_at,omitempty"`
	ProcessedAt     *string `json:"processed_at,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

const timestampLayout = "2006-01-02T15:04:05Z07:00"

func toOutboxEntryResponse(entry *event.OutboxEntryDTO) OutboxEntryResponse {
	resp := OutboxEntryResponse{
		ID:              entry.ID.String(),
		StoreID:         entry.StoreID.String(),
		EventID:         entry.EventID.String(),
		EventType:       entry.EventType,
		ReturnRequestID: entry.ReturnRequestID.String(),
		Status:          entry.Status,
		RetryCount:      entry.RetryCount,
		MaxRetries:      entry.MaxRetries,
		LastError:       entry.LastError,
		CreatedAt:       entry.CreatedAt.Format(timestampLayout),
		UpdatedAt:       entry.UpdatedAt.Format(timestampLayout),
	}
	if entry.NextRetryAt != nil {
		t := entry.NextRetryAt.Format(timestampLayout)
		resp.NextRetryAt = &t
	}
	if entry.ProcessedAt != nil {
		t := entry.ProcessedAt.Format(timestampLayout)
		resp.ProcessedAt = &t
	}
	return resp
}

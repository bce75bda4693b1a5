package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	appreturns "github.com/erp/returns/internal/application/returns"
	"github.com/erp/returns/internal/domain/returns"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReturnRequestHandler exposes the return workflow to shops and customers
type ReturnRequestHandler struct {
	BaseHandler
	orchestrator *appreturns.Orchestrator
}

// NewReturnRequestHandler creates a new return request handler
func NewReturnRequestHandler(orchestrator *appreturns.Orchestrator) *ReturnRequestHandler {
	return &ReturnRequestHandler{orchestrator: orchestrator}
}

// ==================== Customer ====================

// Submit godoc
// @ID           submitReturnRequest
// @Summary      Open a return request
// @Description  Opens a PENDING return for one purchased order item. Only one active return per item is allowed.
// @Tags         returns
// @Accept       json
// @Produce      json
// @Param        request body appreturns.SubmitReturnRequest true "Return request"
// @Success      201 {object} APIResponse[appreturns.ReturnRequestResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /returns [post]
func (h *ReturnRequestHandler) Submit(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req appreturns.SubmitReturnRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.orchestrator.SubmitReturnRequest(c.Request.Context(), actor, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// Cancel withdraws a request before the courier picked anything up
// @Router /returns/{id}/cancel [post]
func (h *ReturnRequestHandler) Cancel(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req appreturns.CancelRequest
	if c.Request.ContentLength != 0 && !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.orchestrator.CustomerCancel(c.Request.Context(), actor, id, req.Reason)
	h.respond(c, resp, err)
}

// EvidenceUploadURL godoc
// @ID           createEvidenceUploadURL
// @Summary      Presign an evidence upload
// @Description  Returns a short-lived PUT URL for one photo or video of the returned item
// @Tags         returns
// @Accept       json
// @Produce      json
// @Param        request body appreturns.EvidenceUploadRequest true "File description"
// @Success      200 {object} APIResponse[returns.EvidenceUpload]
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /evidence/upload-url [post]
func (h *ReturnRequestHandler) EvidenceUploadURL(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req appreturns.EvidenceUploadRequest
	if !h.bindJSON(c, &req) {
		return
	}

	upload, err := h.orchestrator.RequestEvidenceUpload(c.Request.Context(), actor, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, upload)
}

// ==================== Shop ====================

// Approve accepts a PENDING request
// @Router /returns/{id}/approve [post]
func (h *ReturnRequestHandler) Approve(c *gin.Context) {
	h.shopAction(c, h.orchestrator.ShopApprove)
}

// Reject declines a PENDING request with a reason
// @Router /returns/{id}/reject [post]
func (h *ReturnRequestHandler) Reject(c *gin.Context) {
	h.shopReasonAction(c, h.orchestrator.ShopReject)
}

// RefundWithoutReturn refunds immediately and waives the physical return.
// Not allowed once a shipment was ever created.
// @Router /returns/{id}/refund-without-return [post]
func (h *ReturnRequestHandler) RefundWithoutReturn(c *gin.Context) {
	h.shopAction(c, h.orchestrator.ShopRefundWithoutReturn)
}

// SubmitPackage godoc
// @ID           submitReturnPackage
// @Summary      Submit package info and book the courier
// @Description  Stores weight, dimensions and return address, then creates the courier shipment.
// @Description  A courier failure keeps the request APPROVED so the shop can retry.
// @Tags         returns
// @Accept       json
// @Produce      json
// @Param        id path string true "Return request ID" format(uuid)
// @Param        request body appreturns.PackageInfoRequest true "Package"
// @Success      200 {object} APIResponse[appreturns.ReturnRequestResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /returns/{id}/package [post]
func (h *ReturnRequestHandler) SubmitPackage(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req appreturns.PackageInfoRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.orchestrator.ShopSubmitPackageInfo(c.Request.Context(), actor, id, req)
	h.respond(c, resp, err)
}

// RetryShipment books the courier again from the stored package info
// @Router /returns/{id}/shipment/retry [post]
func (h *ReturnRequestHandler) RetryShipment(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req appreturns.RetryShipmentRequest
	if c.Request.ContentLength != 0 && !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.orchestrator.ShopRetryShipment(c.Request.Context(), actor, id, req.PickShiftID)
	h.respond(c, resp, err)
}

// ConfirmReceipt accepts the delivered item and refunds the customer
// @Router /returns/{id}/confirm-receipt [post]
func (h *ReturnRequestHandler) ConfirmReceipt(c *gin.Context) {
	h.shopAction(c, h.orchestrator.ShopConfirmReceipt)
}

// Dispute contests the delivered item
// @Router /returns/{id}/dispute [post]
func (h *ReturnRequestHandler) Dispute(c *gin.Context) {
	h.shopReasonAction(c, h.orchestrator.ShopDispute)
}

// ==================== Reads ====================

// Get godoc
// @ID           getReturnRequest
// @Summary      Get a return request
// @Tags         returns
// @Produce      json
// @Param        id path string true "Return request ID" format(uuid)
// @Success      200 {object} APIResponse[appreturns.ReturnRequestResponse]
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /returns/{id} [get]
func (h *ReturnRequestHandler) Get(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.orchestrator.GetReturnRequest(c.Request.Context(), actor, id)
	h.respond(c, resp, err)
}

// List godoc
// @ID           listStoreReturnRequests
// @Summary      List a store's return requests
// @Description  Customers only see their own requests
// @Tags         returns
// @Produce      json
// @Param        store_id path string true "Store ID" format(uuid)
// @Param        status query []string false "Status filter" collectionFormat(multi)
// @Param        reason_type query string false "CUSTOMER_FAULT or SHOP_FAULT"
// @Param        auto_refunded query bool false "Only auto-refunded"
// @Param        search query string false "Order or item id"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Items per page" default(20) maximum(100)
// @Success      200 {object} APIResponse[[]appreturns.ReturnRequestListItemResponse]
// @Failure      403 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /stores/{store_id}/returns [get]
func (h *ReturnRequestHandler) List(c *gin.Context) {
	actor, storeID, ok := h.storeScope(c)
	if !ok {
		return
	}
	var filter appreturns.ListReturnRequestsFilter
	if !h.bindQuery(c, &filter) {
		return
	}

	page, err := h.orchestrator.ListReturnRequests(c.Request.Context(), actor, storeID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Summary counts a store's requests per status
// @Router /stores/{store_id}/returns/summary [get]
func (h *ReturnRequestHandler) Summary(c *gin.Context) {
	actor, storeID, ok := h.storeScope(c)
	if !ok {
		return
	}
	summary, err := h.orchestrator.GetStatusSummary(c.Request.Context(), actor, storeID)
	h.respond(c, summary, err)
}

// Export streams the filtered list as an XLSX attachment
// @Router /stores/{store_id}/returns/export [get]
func (h *ReturnRequestHandler) Export(c *gin.Context) {
	actor, storeID, ok := h.storeScope(c)
	if !ok {
		return
	}
	var filter appreturns.ListReturnRequestsFilter
	if !h.bindQuery(c, &filter) {
		return
	}

	// buffered so a failure can still be reported as JSON
	var buf bytes.Buffer
	if _, err := h.orchestrator.ExportReturnRequests(c.Request.Context(), actor, storeID, filter, &buf); err != nil {
		h.HandleError(c, err)
		return
	}
	name := fmt.Sprintf("returns-%s-%s.xlsx", storeID.String()[:8], time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// PickShifts lists the courier's pickup windows
// @Router /courier/pick-shifts [get]
func (h *ReturnRequestHandler) PickShifts(c *gin.Context) {
	shifts, err := h.orchestrator.ListPickShifts(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if shifts == nil {
		shifts = []returns.PickShift{}
	}
	h.Success(c, shifts)
}

// ==================== helpers ====================

func (h *ReturnRequestHandler) shopAction(c *gin.Context, action func(ctx context.Context, actor returns.Actor, id uuid.UUID) (*appreturns.ReturnRequestResponse, error)) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	resp, err := action(c.Request.Context(), actor, id)
	h.respond(c, resp, err)
}

func (h *ReturnRequestHandler) shopReasonAction(c *gin.Context, action func(ctx context.Context, actor returns.Actor, id uuid.UUID, reason string) (*appreturns.ReturnRequestResponse, error)) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req appreturns.ReasonRequest
	if !h.bindJSON(c, &req) {
		return
	}
	resp, err := action(c.Request.Context(), actor, id, req.Reason)
	h.respond(c, resp, err)
}

func (h *ReturnRequestHandler) storeScope(c *gin.Context) (returns.Actor, uuid.UUID, bool) {
	actor, ok := h.actor(c)
	if !ok {
		return returns.Actor{}, uuid.Nil, false
	}
	storeID, ok := h.pathUUID(c, "store_id")
	if !ok {
		return returns.Actor{}, uuid.Nil, false
	}
	return actor, storeID, true
}

func (h *ReturnRequestHandler) respond(c *gin.Context, data any, err error) {
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, data)
}

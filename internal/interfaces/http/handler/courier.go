package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	appreturns "github.com/erp/returns/internal/application/returns"
	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/infrastructure/courier"
	"github.com/erp/returns/internal/infrastructure/logger"
	"github.com/erp/returns/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CourierHandler receives shipment status changes from the courier
type CourierHandler struct {
	BaseHandler
	orchestrator *appreturns.Orchestrator
	webhookToken string
}

// NewCourierHandler creates a new courier handler. Webhooks are rejected while
// webhookToken is empty.
func NewCourierHandler(orchestrator *appreturns.Orchestrator, webhookToken string) *CourierHandler {
	return &CourierHandler{orchestrator: orchestrator, webhookToken: webhookToken}
}

// Webhook godoc
// @ID           ghnWebhook
// @Summary      GHN status callback
// @Description  Authenticated by the shared token configured on the GHN dashboard.
// @Description  Updates for unknown or superseded shipments are acknowledged and ignored.
// @Tags         courier
// @Accept       json
// @Produce      json
// @Param        X-GHN-Token header string true "Shared webhook token"
// @Success      200 {object} APIResponse[TrackingUpdateResult]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Router       /webhooks/ghn [post]
func (h *CourierHandler) Webhook(c *gin.Context) {
	if !courier.VerifyWebhookToken(h.webhookToken, c.GetHeader(courier.WebhookTokenHeader)) {
		h.Unauthorized(c, "Invalid webhook token")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Unable to read webhook body")
		return
	}
	info, payload, err := courier.ParseWebhook(body)
	if err != nil {
		if errors.Is(err, courier.ErrInvalidWebhook) {
			h.BadRequest(c, err.Error())
			return
		}
		h.HandleError(c, err)
		return
	}

	log := logger.FromContext(c.Request.Context())
	log.Debug("courier webhook received",
		zap.String("shipment_code", info.ShipmentCode),
		zap.String("client_order_code", payload.ClientOrderCode),
		zap.String("status", string(info.Status)),
		zap.String("reason", payload.Reason),
	)

	applied, err := h.orchestrator.OnTrackingUpdate(c.Request.Context(), info, appreturns.SourceWebhook)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, TrackingUpdateResult{Applied: applied})
}

// TrackingUpdate lets trusted services push a courier status
// @Router /courier/tracking [post]
func (h *CourierHandler) TrackingUpdate(c *gin.Context) {
	var req appreturns.TrackingUpdateRequest
	if !h.bindJSON(c, &req) {
		return
	}
	info := returns.TrackingInfo{
		ShipmentCode: strings.TrimSpace(req.ShipmentCode),
		Status:       returns.TrackingStatus(strings.ToLower(req.Status)),
		UpdatedAt:    req.UpdatedAt,
	}

	applied, err := h.orchestrator.OnTrackingUpdate(c.Request.Context(), info, appreturns.SourceAPI)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, TrackingUpdateResult{Applied: applied})
}

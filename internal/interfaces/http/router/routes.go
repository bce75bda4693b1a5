package router

import (
	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/interfaces/http/handler"
	"github.com/erp/returns/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers bundles the HTTP handlers mounted under /api
type Handlers struct {
	Returns *handler.ReturnRequestHandler
	Courier *handler.CourierHandler
	Outbox  *handler.OutboxHandler
	System  *handler.SystemHandler
}

// Security holds the middleware guarding the API
type Security struct {
	Validator middleware.ActorValidator
	Logger    *zap.Logger
	// APILimit runs after authentication and buckets by caller; nil disables it
	APILimit gin.HandlerFunc
	// WebhookLimit buckets courier callbacks by IP; nil disables it
	WebhookLimit gin.HandlerFunc
}

var (
	customers   = middleware.RequireActorKinds(returns.ActorCustomer)
	shops       = middleware.RequireActorKinds(returns.ActorShop)
	storeReader = middleware.RequireActorKinds(returns.ActorShop, returns.ActorSystem)
	listReader  = middleware.RequireActorKinds(returns.ActorShop, returns.ActorCustomer, returns.ActorSystem)
	trackers    = middleware.RequireActorKinds(returns.ActorSystem, returns.ActorCourier)
	operators   = middleware.RequireActorKinds(returns.ActorSystem)
)

// Register mounts the health checks and every /api/v1 route on engine and returns the API route table
func Register(engine *gin.Engine, h Handlers, sec Security) []Route {
	engine.GET(HealthPath, h.System.Health)
	engine.GET(ReadyPath, h.System.Ready)

	authed := []gin.HandlerFunc{
		middleware.Authenticate(middleware.AuthConfig{Validator: sec.Validator, Logger: sec.Logger}),
		middleware.TraceActor(),
		sec.APILimit,
	}

	rr := NewDomainGroup("returns", "/returns").Use(authed...)
	rr.POST("", customers, h.Returns.Submit).
		GET("/:id", h.Returns.Get).
		POST("/:id/cancel", customers, h.Returns.Cancel).
		POST("/:id/approve", shops, h.Returns.Approve).
		POST("/:id/reject", shops, h.Returns.Reject).
		POST("/:id/refund-without-return", shops, h.Returns.RefundWithoutReturn).
		POST("/:id/package", shops, h.Returns.SubmitPackage).
		POST("/:id/shipment/retry", shops, h.Returns.RetryShipment).
		POST("/:id/confirm-receipt", shops, h.Returns.ConfirmReceipt).
		POST("/:id/dispute", shops, h.Returns.Dispute)

	evidence := NewDomainGroup("evidence", "/evidence").Use(authed...)
	evidence.POST("/upload-url", customers, h.Returns.EvidenceUploadURL)

	stores := NewDomainGroup("stores", "/stores/:store_id/returns").Use(authed...)
	stores.GET("", listReader, h.Returns.List).
		GET("/summary", storeReader, h.Returns.Summary).
		GET("/export", storeReader, h.Returns.Export)

	courier := NewDomainGroup("courier", "/courier").Use(authed...)
	courier.GET("/pick-shifts", shops, h.Returns.PickShifts).
		POST("/tracking", trackers, h.Courier.TrackingUpdate)

	// authenticated by the shared GHN token, not a bearer token
	webhooks := NewDomainGroup("webhooks", "/webhooks").Use(sec.WebhookLimit)
	webhooks.POST("/ghn", h.Courier.Webhook)

	system := NewDomainGroup("system", "/system").Use(authed...).Use(operators)
	system.GET("/info", h.System.GetSystemInfo).
		GET("/ping", h.System.Ping)
	system.Group("outbox", "/outbox").
		GET("/dead", h.Outbox.ListDeadLetters).
		POST("/dead/retry-all", h.Outbox.RetryAllDeadEntries).
		GET("/stats", h.Outbox.GetStats).
		GET("/:id", h.Outbox.GetEntry).
		POST("/:id/retry", h.Outbox.RetryDeadEntry)

	return NewRouter(engine).
		Register(rr).
		Register(evidence).
		Register(stores).
		Register(courier).
		Register(webhooks).
		Register(system).
		Setup()
}

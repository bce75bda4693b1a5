package router

import (
	"net/http"

	"github.com/erp/returns/internal/infrastructure/config"
	"github.com/erp/returns/internal/infrastructure/logger"
	"github.com/erp/returns/internal/interfaces/http/dto"
	"github.com/erp/returns/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Health and scrape paths live outside /api and skip tracing and metrics
const (
	HealthPath         = "/health"
	ReadyPath          = "/ready"
	DefaultMetricsPath = "/metrics"
)

// EngineConfig configures the global middleware chain
type EngineConfig struct {
	HTTP           config.HTTPConfig
	ServiceName    string
	TracingEnabled bool
	Logger         *zap.Logger
	// Observer records request counts and latency; nil disables it
	Observer middleware.HTTPObserver
	// MetricsHandler is mounted at MetricsPath when set
	MetricsHandler http.Handler
	MetricsPath    string
}

// NewEngine builds a gin engine with the global middleware applied
func NewEngine(cfg EngineConfig) (*gin.Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = DefaultMetricsPath
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(
		middleware.Tracing(cfg.ServiceName, cfg.TracingEnabled),
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Secure(),
		middleware.CORS(middleware.CORSConfigFrom(cfg.HTTP)),
	)
	if cfg.Observer != nil {
		engine.Use(middleware.Metrics(cfg.Observer, HealthPath, ReadyPath, metricsPath))
	}
	if cfg.HTTP.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	}

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponseWithRequestID(
			dto.ErrCodeNotFound, "Route not found", c.GetString(middleware.RequestIDKey)))
	})
	if cfg.MetricsHandler != nil {
		engine.GET(metricsPath, gin.WrapH(cfg.MetricsHandler))
	}
	return engine, nil
}

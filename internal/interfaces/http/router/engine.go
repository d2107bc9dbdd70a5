package router

import (
	"github.com/gin-gonic/gin"
	"github.com/meterpay/backend/internal/infrastructure/logger"
	"github.com/meterpay/backend/internal/interfaces/http/handler"
	"github.com/meterpay/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

const healthPath = "/health"

// Config carries the handlers and cross-cutting middleware of the engine.
// Optional middleware is skipped when nil.
type Config struct {
	Logger         *zap.Logger
	ServiceName    string
	TrustedProxies []string
	CORS           middleware.CORSConfig
	HSTS           bool
	MaxBodySize    int64
	WebhookMaxBody int64

	Auth      gin.HandlerFunc
	Metrics   gin.HandlerFunc
	RateLimit gin.HandlerFunc
	Tracing   bool
	Profiling bool

	Billing *handler.BillingHandler
	Webhook *handler.StripeWebhookHandler
	Health  *handler.HealthHandler
}

// New builds the gin engine with the full middleware chain and every route.
func New(cfg Config) (*gin.Engine, error) {
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	middleware.SetupValidator()

	// order matters: ids first, then the span, then the access log reads both
	engine.Use(logger.Recovery(cfg.Logger))
	engine.Use(middleware.RequestID())
	if cfg.Tracing {
		engine.Use(middleware.Tracing(cfg.ServiceName, healthPath))
	}
	engine.Use(logger.GinMiddleware(cfg.Logger))
	if cfg.Metrics != nil {
		engine.Use(cfg.Metrics)
	}
	engine.Use(middleware.Secure(cfg.HSTS))
	engine.Use(middleware.CORS(cfg.CORS))

	if cfg.Health != nil {
		engine.GET(healthPath, cfg.Health.Health)
	}

	r := NewRouter(engine)
	r.Register(billingRoutes(cfg))
	r.Register(adminRoutes(cfg))
	r.Register(webhookRoutes(cfg))
	r.Setup()

	return engine, nil
}

// authenticated is the chain shared by JWT-protected groups: identity, then
// limits keyed by it, then span and profile labels that read both.
func authenticated(cfg Config) []gin.HandlerFunc {
	chain := []gin.HandlerFunc{cfg.Auth}
	if cfg.RateLimit != nil {
		chain = append(chain, cfg.RateLimit)
	}
	chain = append(chain, middleware.SpanEnricher(), middleware.Profiling(cfg.Profiling))
	return chain
}

func billingRoutes(cfg Config) *DomainGroup {
	h := cfg.Billing
	billing := NewDomainGroup("billing", "/billing").
		Use(middleware.BodyLimit(cfg.MaxBodySize))
	billing.GET("/tiers", h.ListTiers)

	billing.Group("billing-account", "").
		Use(authenticated(cfg)...).
		POST("/checkout", h.CreateCheckout).
		GET("/usage", h.GetUsage).
		GET("/payments", h.ListPayments).
		GET("/credits", h.GetCredits)
	return billing
}

func adminRoutes(cfg Config) *DomainGroup {
	admin := NewDomainGroup("admin", "/admin").
		Use(authenticated(cfg)...).
		Use(middleware.RequireAdmin())
	admin.GET("/billing/payments/stale", cfg.Billing.ListStalePending)
	return admin
}

func webhookRoutes(cfg Config) *DomainGroup {
	webhooks := NewDomainGroup("webhooks", "/webhooks").
		Use(middleware.BodyLimit(cfg.WebhookMaxBody), middleware.Profiling(cfg.Profiling))
	webhooks.POST("/stripe", cfg.Webhook.HandleStripeWebhook)
	return webhooks
}

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/upcareer/jobdeck/internal/config"
	entitlementdomain "github.com/upcareer/jobdeck/internal/entitlement/domain"
	"github.com/upcareer/jobdeck/internal/observability"
	obsmiddleware "github.com/upcareer/jobdeck/internal/observability/logger"
	obstracing "github.com/upcareer/jobdeck/internal/observability/tracing"
	paymentdomain "github.com/upcareer/jobdeck/internal/payment/domain"
	"github.com/upcareer/jobdeck/internal/ratelimit"
	recommendationdomain "github.com/upcareer/jobdeck/internal/recommendation/domain"
	subscriptiondomain "github.com/upcareer/jobdeck/internal/subscription/domain"
	usagedomain "github.com/upcareer/jobdeck/internal/usage/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config

	subscriptionsvc subscriptiondomain.Service
	entitlements    entitlementdomain.Checker
	usagesvc        usagedomain.Service
	recommender     recommendationdomain.Service
	paymentsvc      paymentdomain.Service
	usageLimiter    *ratelimit.UsageLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Subscriptionsvc subscriptiondomain.Service
	Entitlements    entitlementdomain.Checker
	Usagesvc        usagedomain.Service
	Recommender     recommendationdomain.Service
	Paymentsvc      paymentdomain.Service
	UsageLimiter    *ratelimit.UsageLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		subscriptionsvc: p.Subscriptionsvc,
		entitlements:    p.Entitlements,
		usagesvc:        p.Usagesvc,
		recommender:     p.Recommender,
		paymentsvc:      p.Paymentsvc,
		usageLimiter:    p.UsageLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")
	v1.Use(s.APIKeyRequired())

	users := v1.Group("/users/:user_id")

	users.GET("/entitlements/features/:feature", s.CheckFeature)
	users.GET("/entitlements/resources/:resource", s.CheckResource)

	users.POST("/usage/:resource", s.UsageRateLimit(), s.IncrementUsage)

	users.GET("/subscription", s.GetSubscription)
	users.POST("/subscription/upgrade", s.UpgradeSubscription)
	users.POST("/subscription/downgrade", s.DowngradeSubscription)
	users.POST("/subscription/billing-period", s.ChangeBillingPeriod)
	users.POST("/subscription/cancel", s.CancelSubscription)
	users.POST("/subscription/reactivate", s.ReactivateSubscription)
	users.GET("/subscription/events", s.ListSubscriptionEvents)

	users.GET("/recommendation", s.GetRecommendation)

	users.POST("/checkout", s.CreateCheckout)
}

func (s *Server) registerWebhookRoutes() {
	// Webhook deliveries authenticate with the provider signature, not the
	// API key.
	s.engine.POST("/webhooks/:provider", s.IngestPaymentWebhook)
}

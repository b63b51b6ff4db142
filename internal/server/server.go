package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	billingdomain "github.com/socialdesklabs/socialdesk/internal/billing/domain"
	"github.com/socialdesklabs/socialdesk/internal/billing/webhook"
	clientdomain "github.com/socialdesklabs/socialdesk/internal/client/domain"
	"github.com/socialdesklabs/socialdesk/internal/clock"
	"github.com/socialdesklabs/socialdesk/internal/config"
	invoicedomain "github.com/socialdesklabs/socialdesk/internal/invoice/domain"
	"github.com/socialdesklabs/socialdesk/internal/plan"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("server",
	fx.Provide(NewServer),
	fx.Invoke(Start),
)

type Server struct {
	cfg   config.Config
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	catalog    *plan.Catalog
	clients    clientdomain.Repository
	invoiceSvc invoicedomain.Service
	billingSvc billingdomain.Service
	webhookSvc *webhook.Service
}

type ServerParam struct {
	fx.In

	Cfg   config.Config
	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock

	Catalog    *plan.Catalog
	Clients    clientdomain.Repository
	InvoiceSvc invoicedomain.Service
	BillingSvc billingdomain.Service
	WebhookSvc *webhook.Service
}

func NewServer(p ServerParam) *Server {
	return &Server{
		cfg:   p.Cfg,
		db:    p.DB,
		log:   p.Log.Named("server"),
		genID: p.GenID,
		clock: p.Clock,

		catalog:    p.Catalog,
		clients:    p.Clients,
		invoiceSvc: p.InvoiceSvc,
		billingSvc: p.BillingSvc,
		webhookSvc: p.WebhookSvc,
	}
}

func (s *Server) Router() *gin.Engine {
	if s.cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestMetrics())

	router.GET("/healthz", s.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/webhooks/:provider", s.HandleWebhook)

	v1 := router.Group("/v1")
	{
		v1.POST("/clients", s.CreateClient)
		v1.GET("/clients/:id", s.GetClient)

		billing := v1.Group("/billing")
		{
			billing.GET("/plans", s.ListPlans)
			billing.GET("/clients/:id/subscription", s.GetSubscription)
			billing.POST("/clients/:id/subscription", s.CreateSubscription)
			billing.POST("/clients/:id/subscription/change", s.ChangePlan)
			billing.POST("/clients/:id/subscription/cancel", s.CancelSubscription)
			billing.POST("/clients/:id/subscription/reactivate", s.ReactivateSubscription)
			billing.GET("/clients/:id/invoices", s.ListInvoices)
		}
	}

	return router
}

func (s *Server) Healthz(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func Start(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:              s.cfg.ServerAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.log.Info("http server starting", zap.String("addr", s.cfg.ServerAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

package handler

import (
	"ignitia/internal/service"
	"ignitia/pkg/auth"
	"ignitia/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterOptions carries what the router needs beyond the services.
type RouterOptions struct {
	Mode      string
	Logger    zerolog.Logger
	Auth      auth.Config
	AdminRole string
	MaxAmount int64
	Metrics   *metrics.HTTPMetrics
	Gatherer  prometheus.Gatherer
}

// SetupRouter fails only when the custom binding tags cannot be installed.
func SetupRouter(svc *service.Services, opts RouterOptions) (*gin.Engine, error) {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	if err := RegisterValidators(opts.MaxAmount); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(RequestIDMiddleware(opts.Logger))
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(MetricsMiddleware(opts.Metrics))
	r.Use(CORSMiddleware())

	h := NewHandler(svc)

	r.GET("/health", h.Health)
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api/v1")
	api.GET("/merch/catalog", h.GetCatalog)
	api.GET("/events", h.ListEvents)
	api.GET("/events/leaderboard", h.Leaderboard)

	authed := api.Group("", AuthMiddleware(opts.Auth))
	{
		wallet := authed.Group("/wallet")
		{
			wallet.GET("", h.GetWallet)
			wallet.GET("/balance", h.GetBalance)
			wallet.GET("/transactions", h.ListTransactions)
			wallet.POST("/credit", h.AddFunds)
		}

		orders := authed.Group("/merch/orders")
		{
			orders.POST("", h.CreateOrder)
			orders.GET("", h.ListOrders)
			orders.GET("/:id", h.GetOrder)
			orders.POST("/:id/checkout", h.Checkout)
			orders.POST("/:id/cancel", h.CancelOrder)
		}

		authed.POST("/events/:id/register", h.RegisterForEvent)
		authed.GET("/events/registrations", h.ListRegistrations)

		payments := authed.Group("/payments")
		{
			payments.POST("/initiate", h.InitiatePayment)
			payments.POST("/verify", h.VerifyPayment)
			payments.GET("/history", h.PaymentHistory)
			payments.GET("/:transactionId/status", h.GetPaymentStatus)
		}

		admin := authed.Group("/admin", RequireRole(opts.AdminRole))
		{
			admin.POST("/registrations/status", h.UpdateRegistrationStatus)
			admin.POST("/payments/:transactionId/refund", h.RefundPayment)
		}
	}

	return r, nil
}

package router

import (
	"time"

	"cadence/config"
	"cadence/internal/handler"
	"cadence/internal/middleware"
	"cadence/internal/queue"
	"cadence/internal/repository"
	"cadence/internal/service"
	"cadence/internal/ws"
	"cadence/pkg/cloudinary"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps is everything the HTTP surface needs. Services are built by the
// caller so the worker binary can share them.
type Deps struct {
	Config        *config.Config
	DB            *gorm.DB
	Gateway       *ws.Gateway
	Queue         *queue.Queue
	Cloud         cloudinary.Client
	Auth          *service.AuthService
	Bookings      *service.BookingService
	Reviews       *service.ReviewService
	Payments      *service.PaymentService
	Notifications *service.NotificationService
	Gatherer      prometheus.Gatherer
	Health        map[string]handler.Pinger
	Limiter       *middleware.KeyedLimiter
	Logger        *zap.Logger
}

func Setup(d Deps) *gin.Engine {
	cfg := d.Config
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// Skip gin.Logger() to reduce log noise; use gin.Default() if you need request logging
	limiter := d.Limiter
	if limiter == nil {
		limiter = middleware.NewKeyedLimiter(100, 60*time.Second)
	}
	r.Use(middleware.RateLimit(limiter))

	userRepo := repository.NewUserRepository(d.DB)

	authHandler := handler.NewAuthHandler(d.Auth, d.Logger)
	meHandler := handler.NewMeHandler(userRepo, d.Auth, d.Logger)
	notificationHandler := handler.NewNotificationHandler(d.Notifications)
	bookingHandler := handler.NewBookingHandler(d.Bookings, d.Reviews, d.Logger)
	uploadHandler := handler.NewUploadHandler(d.Cloud, d.Queue, d.Logger)
	presenceHandler := handler.NewPresenceHandler(d.Gateway.Presence())
	adminHandler := handler.NewAdminHandler(d.Queue, d.Notifications, d.Payments, d.Logger)
	healthHandler := handler.NewHealthHandler(d.Health)

	authMw := middleware.AuthRequired(&cfg.JWT)

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}

		me := api.Group("/me")
		me.Use(authMw)
		{
			me.GET("/profile", meHandler.GetProfile)
			me.PATCH("/profile", meHandler.UpdateProfile)
			me.DELETE("", meHandler.DeleteAccount)
			me.POST("/fcm-token", meHandler.RegisterFCMToken)
			me.GET("/notifications", notificationHandler.List)
			me.PUT("/notifications/:id/read", notificationHandler.MarkRead)
			me.POST("/upload/chat", uploadHandler.UploadChatMedia)
		}

		api.POST("/bookings", authMw, bookingHandler.Create)
		api.PATCH("/bookings/:id/status", authMw, bookingHandler.UpdateStatus)
		api.POST("/bookings/:id/cancel", authMw, bookingHandler.Cancel)
		api.POST("/reviews", authMw, bookingHandler.CreateReview)
		api.GET("/presence", authMw, presenceHandler.Online)

		admin := api.Group("/admin")
		admin.Use(authMw, middleware.AdminRequired())
		{
			admin.GET("/queues", adminHandler.QueueCounts)
			admin.GET("/queues/:queue/jobs/:id", adminHandler.GetJob)
			admin.POST("/notifications/broadcast", adminHandler.Broadcast)
			admin.POST("/payments/:id/status", adminHandler.SettlePayment)
		}
	}

	r.GET("/ws", d.Gateway.Handler())
	r.GET("/health", healthHandler.Health)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	return r
}

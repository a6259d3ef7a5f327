package app

import (
	"context"
	"fmt"

	"cadence/config"
	"cadence/internal/auth"
	"cadence/internal/database"
	"cadence/internal/events"
	"cadence/internal/handler"
	"cadence/internal/jobs"
	"cadence/internal/listeners"
	"cadence/internal/queue"
	"cadence/internal/repository"
	"cadence/internal/router"
	"cadence/internal/service"
	"cadence/internal/ws"
	"cadence/pkg/cloudinary"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds the collaborators shared by the API and worker processes.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *gorm.DB
	Redis   *redis.Client
	Broker  queue.Broker
	Queue   *queue.Queue
	Bus     *events.Bus
	Metrics *prometheus.Registry

	queueMetrics *queue.Metrics

	Users         *repository.UserRepository
	Chats         *repository.ChatRepository
	Notifications *repository.NotificationRepository
	Bookings      *repository.BookingRepository
	Services      *repository.ServiceRepository
	Reviews       *repository.ReviewRepository
	Payments      *repository.PaymentRepository

	FCM   *service.FCMService
	Cloud cloudinary.Client
}

// New connects to MySQL and Redis and builds the queue and event bus.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.NewDB(ctx, &cfg.Database, logger.Named("database"))
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	broker, err := queue.NewRedisBroker(rdb, cfg.Queue.Prefix)
	if err != nil {
		return nil, err
	}

	cloud, err := cloudinary.NewClientFromParams(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	qm := queue.NewMetrics(reg)

	a := &App{
		Config:        cfg,
		Logger:        logger,
		DB:            db,
		Redis:         rdb,
		Broker:        broker,
		Queue:         queue.New(broker, qm, logger),
		Bus:           events.NewBus(logger),
		Metrics:       reg,
		queueMetrics:  qm,
		Users:         repository.NewUserRepository(db),
		Chats:         repository.NewChatRepository(db),
		Notifications: repository.NewNotificationRepository(db),
		Bookings:      repository.NewBookingRepository(db),
		Services:      repository.NewServiceRepository(db),
		Reviews:       repository.NewReviewRepository(db),
		Payments:      repository.NewPaymentRepository(db),
		FCM:           service.NewFCMService(cfg.Firebase.ServiceAccountPath, logger),
		Cloud:         cloud,
	}
	return a, nil
}

// NewGateway builds the realtime gateway. Its metrics join the app registry.
func (a *App) NewGateway() *ws.Gateway {
	verify := func(token string) (*auth.Claims, error) {
		return auth.ParseAccessToken(&a.Config.JWT, token)
	}
	s := a.Config.Socket
	return ws.NewGateway(a.Chats, a.Users, verify, a.Bus, ws.Options{
		HeartbeatInterval: s.HeartbeatInterval,
		TypingTimeout:     s.TypingTimeout,
		TypingSweep:       s.TypingSweep,
		SendBuffer:        s.SendBuffer,
		Metrics:           ws.NewMetrics(a.Metrics),
	}, a.Logger)
}

// RegisterListeners subscribes the event listeners. presence is nil in
// processes without a gateway.
func (a *App) RegisterListeners(presence listeners.Presence) {
	listeners.RegisterAll(a.Bus, listeners.Deps{
		Queue:    a.Queue,
		Users:    a.Users,
		Bookings: a.Bookings,
		Reviews:  a.Reviews,
		Presence: presence,
		Logger:   a.Logger,
	})
}

// StartWorkers runs a worker for every queue until ctx is cancelled or the
// returned pool is closed.
func (a *App) StartWorkers(ctx context.Context) *jobs.Pool {
	d := jobs.Deps{
		Mailer:        jobs.NewSMTPMailer(a.Config.SMTP, a.Logger),
		Notifications: a.Notifications,
		Users:         a.Users,
		Bookings:      a.Bookings,
		Reviews:       a.Reviews,
		Images:        a.Cloud,
		Queue:         a.Queue,
		Bus:           a.Bus,
		Logger:        a.Logger,
	}
	if a.FCM != nil {
		d.Push = a.FCM
	}
	h := jobs.NewHandlers(d)
	pool := jobs.StartWorkers(ctx, a.Broker, h.Specs(a.Config.Queue), a.Config.Queue, a.queueMetrics, a.Logger)
	pool.OnCompleted(func(job *queue.Job, result any) {
		a.Logger.Debug("job completed",
			zap.String("queue", job.Queue),
			zap.String("job", job.Name),
			zap.String("job_id", job.ID))
	})
	return pool
}

// Router builds the HTTP API around gw.
func (a *App) Router(gw *ws.Gateway) *gin.Engine {
	var push service.Multicaster
	if a.FCM != nil {
		push = a.FCM
	}
	authSvc := service.NewAuthService(&a.Config.JWT, a.Users, a.Bus, a.Logger)
	return router.Setup(router.Deps{
		Config:        a.Config,
		DB:            a.DB,
		Gateway:       gw,
		Queue:         a.Queue,
		Cloud:         a.Cloud,
		Auth:          authSvc,
		Bookings:      service.NewBookingService(a.Bookings, a.Services, a.Bus, a.Logger),
		Reviews:       service.NewReviewService(a.Reviews, a.Services, a.Bus),
		Payments:      service.NewPaymentService(a.Payments, a.Bus, a.Logger),
		Notifications: service.NewNotificationService(a.Notifications, a.Users, push, a.Logger),
		Gatherer:      a.Metrics,
		Health:        a.healthChecks(),
		Logger:        a.Logger,
	})
}

func (a *App) healthChecks() map[string]handler.Pinger {
	return map[string]handler.Pinger{
		"database": func(ctx context.Context) error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		},
	}
}

// Close waits for in-flight listeners, then releases the broker and database.
func (a *App) Close() {
	a.Bus.Wait()
	if err := a.Broker.Close(); err != nil {
		a.Logger.Warn("close broker", zap.Error(err))
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

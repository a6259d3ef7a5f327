package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cadence/config"
	"cadence/internal/app"
	"cadence/internal/jobs"
	"cadence/internal/logger"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	log := logger.Must(cfg.Server.Env, cfg.Log.Level)
	defer log.Sync()
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}

	gw := a.NewGateway()
	a.RegisterListeners(gw.Presence())
	gwCtx, stopGateway := context.WithCancel(context.Background())
	go gw.Run(gwCtx)

	var pool *jobs.Pool
	var sched *jobs.Scheduler
	if cfg.Server.RunWorkers {
		pool = a.StartWorkers(context.Background())
		if cfg.Queue.SchedulerEnabled {
			sched = jobs.NewScheduler(a.Queue, cfg.Queue.ReminderHour, log)
			sched.Start(ctx)
		}
		log.Info("workers running in-process")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      a.Router(gw),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	stopGateway()
	gw.Shutdown()
	if sched != nil {
		sched.Stop()
	}
	if pool != nil {
		pool.Close()
	}
	a.Close()
	log.Info("server stopped")
}

package jobs

import (
	"context"

	"cadence/config"
	"cadence/internal/queue"

	"go.uber.org/zap"
)

// WorkerSpec binds a handler to a queue.
type WorkerSpec struct {
	Queue       string
	Handler     queue.Handler
	Concurrency int
	Limiter     *queue.Limiter
}

// Specs returns the worker set for every queue.
func (h *Handlers) Specs(cfg config.QueueConfig) []WorkerSpec {
	var emailLimit *queue.Limiter
	if cfg.LimiterMax > 0 && cfg.LimiterWindow > 0 {
		emailLimit = &queue.Limiter{Max: cfg.LimiterMax, Duration: cfg.LimiterWindow}
	}
	return []WorkerSpec{
		{Queue: queue.QueueEmail, Handler: h.Email, Concurrency: 5, Limiter: emailLimit},
		{Queue: queue.QueueNotification, Handler: h.Notification, Concurrency: 10},
		{Queue: queue.QueueImage, Handler: h.Image, Concurrency: 3},
		{Queue: queue.QueueReport, Handler: h.Report, Concurrency: 2},
		{Queue: queue.QueueBackground, Handler: h.Background, Concurrency: 2},
	}
}

// Pool is a running set of workers.
type Pool struct {
	workers []*queue.Worker
	logger  *zap.Logger
}

// StartWorkers starts one worker per WorkerSpec.
func StartWorkers(ctx context.Context, broker queue.Broker, specs []WorkerSpec, cfg config.QueueConfig, metrics *queue.Metrics, logger *zap.Logger) *Pool {
	p := &Pool{logger: logger.Named("pool")}
	for _, s := range specs {
		w := queue.NewWorker(s.Queue, broker, s.Handler, queue.WorkerOptions{
			Concurrency:  s.Concurrency,
			PollInterval: cfg.PollInterval,
			LockDuration: cfg.LockDuration,
			Limiter:      s.Limiter,
			Metrics:      metrics,
		}, logger)
		w.OnFailed(func(job *queue.Job, err error) {
			p.logger.Warn("job exhausted its attempts",
				zap.String("queue", job.Queue),
				zap.String("job", job.Name),
				zap.String("job_id", job.ID),
				zap.String("reason", job.FailedReason))
		})
		w.Start(ctx)
		p.workers = append(p.workers, w)
	}
	return p
}

// OnCompleted adds fn to every worker.
func (p *Pool) OnCompleted(fn func(job *queue.Job, result any)) {
	for _, w := range p.workers {
		w.OnCompleted(fn)
	}
}

// Close stops all workers and waits for running jobs.
func (p *Pool) Close() {
	for _, w := range p.workers {
		w.Close()
	}
}

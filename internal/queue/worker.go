package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Handler processes one attempt of a job. The result is stored as the job's
// return value; an error fails the attempt.
type Handler func(ctx context.Context, job *Job) (any, error)

// Limiter caps a worker at Max jobs per Duration.
type Limiter struct {
	Max      int
	Duration time.Duration
}

type WorkerOptions struct {
	Concurrency  int
	PollInterval time.Duration
	// LockDuration is the lease a running job holds. It is renewed every
	// LockDuration/2 while the handler runs; a job whose lease runs out is
	// handed to another worker.
	LockDuration time.Duration
	Limiter      *Limiter
	Metrics      *Metrics
}

func (o *WorkerOptions) defaults() {
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.LockDuration <= 0 {
		o.LockDuration = 30 * time.Second
	}
}

// Worker pulls jobs from one queue and runs them with retry and backoff.
type Worker struct {
	queue   string
	broker  Broker
	handler Handler
	opts    WorkerOptions
	limiter *rate.Limiter
	logger  *zap.Logger

	hookMu      sync.RWMutex
	onCompleted []func(job *Job, result any)
	onFailed    []func(job *Job, err error)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(queue string, broker Broker, handler Handler, opts WorkerOptions, logger *zap.Logger) *Worker {
	opts.defaults()
	w := &Worker{
		queue:   queue,
		broker:  broker,
		handler: handler,
		opts:    opts,
		logger:  logger.Named("worker").With(zap.String("queue", queue)),
	}
	if l := opts.Limiter; l != nil && l.Max > 0 && l.Duration > 0 {
		w.limiter = rate.NewLimiter(rate.Every(l.Duration/time.Duration(l.Max)), l.Max)
	}
	return w
}

func (w *Worker) Queue() string { return w.queue }

// OnCompleted registers a hook called after a job completes.
func (w *Worker) OnCompleted(fn func(job *Job, result any)) {
	w.hookMu.Lock()
	w.onCompleted = append(w.onCompleted, fn)
	w.hookMu.Unlock()
}

// OnFailed registers a hook called after a job's final attempt fails.
func (w *Worker) OnFailed(fn func(job *Job, err error)) {
	w.hookMu.Lock()
	w.onFailed = append(w.onFailed, fn)
	w.hookMu.Unlock()
}

// Start launches the processing slots and the promotion loop.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(w.opts.Concurrency + 1)
	for i := 0; i < w.opts.Concurrency; i++ {
		go func() {
			defer w.wg.Done()
			w.loop(ctx)
		}()
	}
	go func() {
		defer w.wg.Done()
		w.promoteLoop(ctx)
	}()
	w.logger.Info("worker started", zap.Int("concurrency", w.opts.Concurrency))
}

// Close stops claiming new jobs and waits for running ones to finish.
func (w *Worker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		// Wait for a slot before claiming: a claim counts an attempt.
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return
			}
		}
		job, err := w.broker.Claim(ctx, w.queue, w.opts.LockDuration)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error("claim failed", zap.Error(err))
			}
		}
		if job == nil {
			if !sleep(ctx, w.opts.PollInterval) {
				return
			}
			continue
		}
		w.process(ctx, job)
	}
}

func (w *Worker) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := w.broker.Promote(ctx, w.queue, now)
			if err != nil && ctx.Err() == nil {
				w.logger.Error("promote failed", zap.Error(err))
			} else if n > 0 {
				w.logger.Debug("jobs promoted", zap.Int("count", n))
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, job *Job) {
	log := w.logger.With(zap.String("job_id", job.ID), zap.String("job", job.Name), zap.Int("attempt", job.AttemptsMade))
	start := time.Now()

	runCtx, stopRenew := context.WithCancel(ctx)
	renewDone := make(chan struct{})
	go func() {
		defer close(renewDone)
		w.renewLease(runCtx, job, log)
	}()
	result, err := w.run(runCtx, job)
	stopRenew()
	<-renewDone
	took := time.Since(start)

	// Record the outcome even when shutdown cancelled ctx mid-attempt.
	finCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err == nil {
		rv, mErr := json.Marshal(result)
		if mErr != nil {
			rv = nil
		}
		if cErr := w.broker.Complete(finCtx, job, rv); cErr != nil {
			w.logFinishError(log, cErr)
			return
		}
		w.opts.Metrics.completed(job, took)
		log.Info("job completed", zap.Duration("took", took))
		w.hookMu.RLock()
		hooks := w.onCompleted
		w.hookMu.RUnlock()
		for _, fn := range hooks {
			fn(job, result)
		}
		return
	}

	if job.AttemptsLeft() {
		delay := job.Opts.Backoff.Next(job.AttemptsMade)
		if rErr := w.broker.Retry(finCtx, job, time.Now().Add(delay), err.Error()); rErr != nil {
			w.logFinishError(log, rErr)
			return
		}
		w.opts.Metrics.retried(job, took)
		log.Warn("job attempt failed, retrying", zap.Error(err), zap.Duration("backoff", delay))
		return
	}

	if fErr := w.broker.Fail(finCtx, job, err.Error()); fErr != nil {
		w.logFinishError(log, fErr)
		return
	}
	job.State = StateFailed
	job.FailedReason = err.Error()
	w.opts.Metrics.failed(job, took)
	log.Error("job failed", zap.Error(err), zap.Int("attempts", job.AttemptsMade))
	w.hookMu.RLock()
	hooks := w.onFailed
	w.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(job, err)
	}
}

func (w *Worker) run(ctx context.Context, job *Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return w.handler(ctx, job)
}

func (w *Worker) renewLease(ctx context.Context, job *Job, log *zap.Logger) {
	ticker := time.NewTicker(w.opts.LockDuration / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.broker.ExtendLease(ctx, job, w.opts.LockDuration); err != nil {
				if ctx.Err() == nil {
					log.Warn("lease renewal failed", zap.Error(err))
				}
				if errors.Is(err, ErrLeaseLost) {
					return
				}
			}
		}
	}
}

func (w *Worker) logFinishError(log *zap.Logger, err error) {
	if errors.Is(err, ErrLeaseLost) {
		log.Warn("job outcome discarded, lease lost")
		return
	}
	log.Error("recording job outcome failed", zap.Error(err))
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

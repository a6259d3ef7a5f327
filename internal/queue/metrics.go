package queue

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Metrics are the queue's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	EnqueueTotal  *prometheus.CounterVec
	CompleteTotal *prometheus.CounterVec
	FailTotal     *prometheus.CounterVec
	RetryTotal    *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	JobsByState   *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EnqueueTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadence_queue_enqueue_total",
				Help: "Total number of jobs added",
			},
			[]string{"queue", "name"},
		),
		CompleteTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadence_queue_complete_total",
				Help: "Total number of jobs completed",
			},
			[]string{"queue", "name"},
		),
		FailTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadence_queue_fail_total",
				Help: "Total number of jobs failed after their last attempt",
			},
			[]string{"queue", "name"},
		),
		RetryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadence_queue_retry_total",
				Help: "Total number of failed attempts scheduled for retry",
			},
			[]string{"queue", "name"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cadence_queue_job_duration_seconds",
				Help:    "Handler run time per attempt",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"queue"},
		),
		JobsByState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cadence_queue_jobs",
				Help: "Number of jobs per queue and state",
			},
			[]string{"queue", "state"},
		),
	}
	reg.MustRegister(
		m.EnqueueTotal,
		m.CompleteTotal,
		m.FailTotal,
		m.RetryTotal,
		m.JobDuration,
		m.JobsByState,
	)
	return m
}

func (m *Metrics) enqueued(job *Job) {
	if m != nil {
		m.EnqueueTotal.WithLabelValues(job.Queue, job.Name).Inc()
	}
}

func (m *Metrics) completed(job *Job, took time.Duration) {
	if m != nil {
		m.CompleteTotal.WithLabelValues(job.Queue, job.Name).Inc()
		m.JobDuration.WithLabelValues(job.Queue).Observe(took.Seconds())
	}
}

func (m *Metrics) retried(job *Job, took time.Duration) {
	if m != nil {
		m.RetryTotal.WithLabelValues(job.Queue, job.Name).Inc()
		m.JobDuration.WithLabelValues(job.Queue).Observe(took.Seconds())
	}
}

func (m *Metrics) failed(job *Job, took time.Duration) {
	if m != nil {
		m.FailTotal.WithLabelValues(job.Queue, job.Name).Inc()
		m.JobDuration.WithLabelValues(job.Queue).Observe(took.Seconds())
	}
}

// Collect refreshes the per-state gauges from the broker until ctx is done.
func (m *Metrics) Collect(ctx context.Context, broker Broker, interval time.Duration, logger *zap.Logger) {
	if m == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, name := range Names() {
				c, err := broker.Counts(ctx, name)
				if err != nil {
					logger.Warn("queue counts unavailable", zap.String("queue", name), zap.Error(err))
					continue
				}
				for state, n := range c.byState() {
					m.JobsByState.WithLabelValues(name, string(state)).Set(float64(n))
				}
			}
		}
	}
}

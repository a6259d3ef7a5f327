package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Queue is the producer side: it validates and stores jobs and answers
// status queries.
type Queue struct {
	broker  Broker
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func New(broker Broker, metrics *Metrics, logger *zap.Logger) *Queue {
	return &Queue{broker: broker, metrics: metrics, logger: logger.Named("queue"), now: time.Now}
}

func (q *Queue) Broker() Broker { return q.broker }

// Add enqueues a job. When opts.JobID names an existing job, that job is
// returned and nothing new is stored.
func (q *Queue) Add(ctx context.Context, queue, name string, data any, opts Options) (*Job, error) {
	if !knownQueue(queue) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownQueue, queue)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	opts.normalize()
	id := opts.JobID
	if id == "" {
		id = uuid.NewString()
	}
	now := q.now()
	job := &Job{
		ID:        id,
		Queue:     queue,
		Name:      name,
		Data:      raw,
		Opts:      opts,
		State:     StateWaiting,
		CreatedAt: now,
	}
	if opts.Delay > 0 {
		runAt := now.Add(opts.Delay)
		job.RunAt = &runAt
		job.State = StateDelayed
	}

	added, err := q.broker.Enqueue(ctx, job)
	if err != nil {
		return nil, err
	}
	if !added {
		q.logger.Debug("duplicate job id, keeping existing", zap.String("queue", queue), zap.String("job_id", id))
		return q.broker.Get(ctx, queue, id)
	}
	q.metrics.enqueued(job)
	q.logger.Debug("job added", zap.String("queue", queue), zap.String("job", name), zap.String("job_id", id))
	return job, nil
}

func (q *Queue) GetJob(ctx context.Context, queue, id string) (*Job, error) {
	if !knownQueue(queue) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownQueue, queue)
	}
	return q.broker.Get(ctx, queue, id)
}

func (q *Queue) Counts(ctx context.Context, queue string) (Counts, error) {
	if !knownQueue(queue) {
		return Counts{}, fmt.Errorf("%w: %q", ErrUnknownQueue, queue)
	}
	return q.broker.Counts(ctx, queue)
}

// AllCounts returns Counts for every known queue.
func (q *Queue) AllCounts(ctx context.Context) (map[string]Counts, error) {
	out := make(map[string]Counts, len(Names()))
	for _, name := range Names() {
		c, err := q.broker.Counts(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = c
	}
	return out, nil
}

package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Broker stores jobs and moves them through their states. Every transition
// out of active is conditional on the caller still holding the job's lease.
type Broker interface {
	// Enqueue stores job as waiting, or delayed when RunAt is set. It returns
	// false when a job with the same id already exists.
	Enqueue(ctx context.Context, job *Job) (bool, error)
	// Claim moves the next waiting job to active under a lease and counts an
	// attempt. It returns nil, nil when the queue is empty.
	Claim(ctx context.Context, queue string, lease time.Duration) (*Job, error)
	ExtendLease(ctx context.Context, job *Job, lease time.Duration) error
	Complete(ctx context.Context, job *Job, returnValue json.RawMessage) error
	Retry(ctx context.Context, job *Job, runAt time.Time, reason string) error
	Fail(ctx context.Context, job *Job, reason string) error
	// Promote moves due delayed jobs to waiting and returns jobs whose lease
	// expired to waiting, or to failed when they have no attempts left.
	Promote(ctx context.Context, queue string, now time.Time) (int, error)
	Get(ctx context.Context, queue, id string) (*Job, error)
	Counts(ctx context.Context, queue string) (Counts, error)
	Close() error
}

const stalledReason = "job stalled: lease expired with no attempts left"

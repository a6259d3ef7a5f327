package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBroker keeps jobs in process memory. It backs tests and single
// process development setups; jobs do not survive a restart.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string]*memQueue
	seq    int64
	now    func() time.Time
}

type memQueue struct {
	jobs      map[string]*Job
	wait      []waitItem
	delayed   map[string]time.Time
	active    map[string]memLease
	completed []string // newest first
	failed    []string
}

type memLease struct {
	token string
	until time.Time
}

type waitItem struct {
	id       string
	priority int
	seq      int64
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{queues: make(map[string]*memQueue), now: time.Now}
}

func (b *MemoryBroker) queue(name string) *memQueue {
	q := b.queues[name]
	if q == nil {
		q = &memQueue{
			jobs:    make(map[string]*Job),
			delayed: make(map[string]time.Time),
			active:  make(map[string]memLease),
		}
		b.queues[name] = q
	}
	return q
}

func (b *MemoryBroker) Enqueue(ctx context.Context, job *Job) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(job.Queue)
	if _, ok := q.jobs[job.ID]; ok {
		return false, nil
	}
	stored := cloneJob(job)
	q.jobs[job.ID] = stored
	if stored.RunAt != nil && stored.RunAt.After(b.now()) {
		stored.State = StateDelayed
		q.delayed[job.ID] = *stored.RunAt
	} else {
		b.pushWait(q, stored)
	}
	return true, nil
}

func (b *MemoryBroker) pushWait(q *memQueue, job *Job) {
	b.seq++
	job.State = StateWaiting
	job.RunAt = nil
	q.wait = append(q.wait, waitItem{id: job.ID, priority: job.Opts.Priority, seq: b.seq})
}

func (b *MemoryBroker) Claim(ctx context.Context, queue string, lease time.Duration) (*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(queue)
	if len(q.wait) == 0 {
		return nil, nil
	}
	best := 0
	for i, it := range q.wait[1:] {
		w := q.wait[best]
		if it.priority < w.priority || (it.priority == w.priority && it.seq < w.seq) {
			best = i + 1
		}
	}
	id := q.wait[best].id
	q.wait = append(q.wait[:best], q.wait[best+1:]...)

	now := b.now()
	job := q.jobs[id]
	job.State = StateActive
	job.AttemptsMade++
	job.ProcessedAt = &now
	token := uuid.NewString()
	q.active[id] = memLease{token: token, until: now.Add(lease)}
	claimed := cloneJob(job)
	claimed.LeaseToken = token
	return claimed, nil
}

func (b *MemoryBroker) ExtendLease(ctx context.Context, job *Job, lease time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(job.Queue)
	held, ok := q.active[job.ID]
	if !ok || held.token != job.LeaseToken {
		return ErrLeaseLost
	}
	held.until = b.now().Add(lease)
	q.active[job.ID] = held
	return nil
}

func (b *MemoryBroker) Complete(ctx context.Context, job *Job, returnValue json.RawMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(job.Queue)
	stored, err := b.release(q, job)
	if err != nil {
		return err
	}
	stored.ReturnValue = returnValue
	b.finish(q, stored, StateCompleted)
	return nil
}

func (b *MemoryBroker) Retry(ctx context.Context, job *Job, runAt time.Time, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(job.Queue)
	stored, err := b.release(q, job)
	if err != nil {
		return err
	}
	stored.FailedReason = reason
	if !runAt.After(b.now()) {
		b.pushWait(q, stored)
		return nil
	}
	stored.State = StateDelayed
	stored.RunAt = &runAt
	q.delayed[stored.ID] = runAt
	return nil
}

func (b *MemoryBroker) Fail(ctx context.Context, job *Job, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(job.Queue)
	stored, err := b.release(q, job)
	if err != nil {
		return err
	}
	stored.FailedReason = reason
	b.finish(q, stored, StateFailed)
	return nil
}

func (b *MemoryBroker) release(q *memQueue, job *Job) (*Job, error) {
	held, ok := q.active[job.ID]
	if !ok || held.token != job.LeaseToken {
		return nil, ErrLeaseLost
	}
	delete(q.active, job.ID)
	return q.jobs[job.ID], nil
}

func (b *MemoryBroker) finish(q *memQueue, job *Job, state State) {
	now := b.now()
	job.State = state
	job.FinishedAt = &now

	keep := job.Opts.RemoveOnComplete
	list := &q.completed
	if state == StateFailed {
		keep = job.Opts.RemoveOnFail
		list = &q.failed
	}
	if keep == RemoveImmediately {
		delete(q.jobs, job.ID)
		return
	}
	*list = append([]string{job.ID}, *list...)
	if keep > 0 && len(*list) > int(keep) {
		for _, id := range (*list)[keep:] {
			delete(q.jobs, id)
		}
		*list = (*list)[:keep]
	}
}

func (b *MemoryBroker) Promote(ctx context.Context, queue string, now time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(queue)
	moved := 0
	for id, runAt := range q.delayed {
		if runAt.After(now) {
			continue
		}
		delete(q.delayed, id)
		b.pushWait(q, q.jobs[id])
		moved++
	}
	for id, held := range q.active {
		if held.until.After(now) {
			continue
		}
		delete(q.active, id)
		job := q.jobs[id]
		if job.AttemptsLeft() {
			b.pushWait(q, job)
		} else {
			job.FailedReason = stalledReason
			b.finish(q, job, StateFailed)
		}
		moved++
	}
	return moved, nil
}

func (b *MemoryBroker) Get(ctx context.Context, queue, id string) (*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	job, ok := b.queue(queue).jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (b *MemoryBroker) Counts(ctx context.Context, queue string) (Counts, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(queue)
	return Counts{
		Waiting:   int64(len(q.wait)),
		Delayed:   int64(len(q.delayed)),
		Active:    int64(len(q.active)),
		Completed: int64(len(q.completed)),
		Failed:    int64(len(q.failed)),
	}, nil
}

func (b *MemoryBroker) Close() error { return nil }

func cloneJob(j *Job) *Job {
	c := *j
	return &c
}

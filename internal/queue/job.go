package queue

import (
	"encoding/json"
	"errors"
	"math"
	"time"
)

// Queue names.
const (
	QueueEmail        = "email"
	QueueNotification = "notification"
	QueueImage        = "image-processing"
	QueueReport       = "report"
	QueueBackground   = "background-jobs"
)

// Names returns every queue the service knows about.
func Names() []string {
	return []string{QueueEmail, QueueNotification, QueueImage, QueueReport, QueueBackground}
}

func knownQueue(name string) bool {
	for _, n := range Names() {
		if n == name {
			return true
		}
	}
	return false
}

type State string

const (
	StateWaiting   State = "waiting"
	StateDelayed   State = "delayed"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

var (
	ErrJobNotFound  = errors.New("queue: job not found")
	ErrUnknownQueue = errors.New("queue: unknown queue")
	// ErrLeaseLost means another worker owns the job now, usually because
	// this worker's lease expired and the job was redelivered.
	ErrLeaseLost = errors.New("queue: lease lost")
)

type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)

type Backoff struct {
	Type  BackoffType   `json:"type"`
	Delay time.Duration `json:"delay"`
}

// Next returns how long to wait before retrying a job that has failed
// attemptsMade times. Exponential backoff doubles from Delay: with a 2s delay
// the first retry waits 2s, the second 4s.
func (b Backoff) Next(attemptsMade int) time.Duration {
	if b.Delay <= 0 || attemptsMade < 1 {
		return 0
	}
	if b.Type != BackoffExponential {
		return b.Delay
	}
	exp := attemptsMade - 1
	if exp > 30 {
		exp = 30
	}
	return time.Duration(float64(b.Delay) * math.Pow(2, float64(exp)))
}

// Retention controls how many finished jobs are kept. RemoveImmediately
// deletes a job on finish, a positive value keeps the newest N. The zero
// value means DefaultRetention.
type Retention int

const (
	RemoveImmediately Retention = -1
	DefaultRetention  Retention = 1000
	KeepAll           Retention = math.MaxInt32
)

type Options struct {
	// JobID makes Add idempotent: a second Add with the same id returns the
	// existing job.
	JobID            string        `json:"jobId,omitempty"`
	Attempts         int           `json:"attempts"`
	Backoff          Backoff       `json:"backoff"`
	Delay            time.Duration `json:"delay,omitempty"`
	Priority         int           `json:"priority"` // lower runs sooner
	RemoveOnComplete Retention     `json:"removeOnComplete"`
	RemoveOnFail     Retention     `json:"removeOnFail"`
}

const maxPriority = 1 << 21

func (o *Options) normalize() {
	if o.Attempts < 1 {
		o.Attempts = 1
	}
	if o.Priority < 0 {
		o.Priority = 0
	}
	if o.Priority > maxPriority {
		o.Priority = maxPriority
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
	if o.RemoveOnComplete == 0 {
		o.RemoveOnComplete = DefaultRetention
	}
	if o.RemoveOnFail == 0 {
		o.RemoveOnFail = DefaultRetention
	}
}

type Job struct {
	ID           string          `json:"id"`
	Queue        string          `json:"queue"`
	Name         string          `json:"name"`
	Data         json.RawMessage `json:"data"`
	Opts         Options         `json:"opts"`
	State        State           `json:"state"`
	AttemptsMade int             `json:"attemptsMade"`
	FailedReason string          `json:"failedReason,omitempty"`
	ReturnValue  json.RawMessage `json:"returnValue,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	ProcessedAt  *time.Time      `json:"processedAt,omitempty"`
	FinishedAt   *time.Time      `json:"finishedAt,omitempty"`
	RunAt        *time.Time      `json:"runAt,omitempty"`
	// LeaseToken identifies the claim that handed out this copy. Transitions
	// out of active made with a stale token fail with ErrLeaseLost.
	LeaseToken string `json:"-"`
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v any) error {
	return json.Unmarshal(j.Data, v)
}

// AttemptsLeft reports whether a failure of the current attempt may be retried.
func (j *Job) AttemptsLeft() bool {
	return j.AttemptsMade < j.Opts.Attempts
}

type Counts struct {
	Waiting   int64 `json:"waiting"`
	Delayed   int64 `json:"delayed"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

func (c Counts) byState() map[State]int64 {
	return map[State]int64{
		StateWaiting:   c.Waiting,
		StateDelayed:   c.Delayed,
		StateActive:    c.Active,
		StateCompleted: c.Completed,
		StateFailed:    c.Failed,
	}
}

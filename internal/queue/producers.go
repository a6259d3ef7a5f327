package queue

import (
	"context"
	"time"
)

// Job names.
const (
	JobSendEmail        = "send-email"
	JobSendNotification = "send-notification"
	JobProcessImage     = "process-image"
	JobGenerateReport   = "generate-report"
)

type EmailJob struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text,omitempty"`
}

type NotificationJob struct {
	UserID   string            `json:"userId"`
	SenderID string            `json:"senderId,omitempty"`
	Type     string            `json:"type,omitempty"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
}

// Image operations understood by the image worker.
const (
	ImageResize    = "resize"
	ImageCompress  = "compress"
	ImageWatermark = "watermark"
)

type ImageJob struct {
	ImageURL   string   `json:"imageUrl"`
	UserID     string   `json:"userId"`
	Operations []string `json:"operations"`
}

const ReportDaily = "daily"

type ReportJob struct {
	ReportType string    `json:"reportType"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	UserID     string    `json:"userId,omitempty"`
}

// Option overrides a helper's default job options.
type Option func(*Options)

func WithJobID(id string) Option { return func(o *Options) { o.JobID = id } }
func WithDelay(d time.Duration) Option { return func(o *Options) { o.Delay = d } }
func WithPriority(p int) Option { return func(o *Options) { o.Priority = p } }
func WithAttempts(n int) Option { return func(o *Options) { o.Attempts = n } }
func WithBackoff(b Backoff) Option { return func(o *Options) { o.Backoff = b } }
func WithRetention(done, failed Retention) Option {
	return func(o *Options) {
		o.RemoveOnComplete = done
		o.RemoveOnFail = failed
	}
}

func build(def Options, opts []Option) Options {
	for _, fn := range opts {
		fn(&def)
	}
	return def
}

// Default job options per queue.
var (
	EmailDefaults = Options{
		Attempts:         3,
		Backoff:          Backoff{Type: BackoffExponential, Delay: 2 * time.Second},
		Priority:         1,
		RemoveOnComplete: 100,
		RemoveOnFail:     50,
	}
	NotificationDefaults = Options{
		Attempts:         3,
		Backoff:          Backoff{Type: BackoffExponential, Delay: time.Second},
		Priority:         1,
		RemoveOnComplete: 100,
		RemoveOnFail:     50,
	}
	ImageDefaults = Options{
		Attempts:         2,
		Backoff:          Backoff{Type: BackoffFixed, Delay: 5 * time.Second},
		Priority:         1,
		RemoveOnComplete: 50,
		RemoveOnFail:     25,
	}
	ReportDefaults = Options{
		Attempts:         2,
		Backoff:          Backoff{Type: BackoffFixed, Delay: 10 * time.Second},
		Priority:         1,
		RemoveOnComplete: 50,
		RemoveOnFail:     25,
	}
	BackgroundDefaults = Options{
		Attempts:         3,
		Backoff:          Backoff{Type: BackoffExponential, Delay: 2 * time.Second},
		Priority:         1,
		RemoveOnComplete: 100,
		RemoveOnFail:     50,
	}
)

func (q *Queue) AddEmailJob(ctx context.Context, data EmailJob, opts ...Option) (*Job, error) {
	return q.Add(ctx, QueueEmail, JobSendEmail, data, build(EmailDefaults, opts))
}

func (q *Queue) AddNotificationJob(ctx context.Context, data NotificationJob, opts ...Option) (*Job, error) {
	return q.Add(ctx, QueueNotification, JobSendNotification, data, build(NotificationDefaults, opts))
}

func (q *Queue) AddImageProcessingJob(ctx context.Context, data ImageJob, opts ...Option) (*Job, error) {
	return q.Add(ctx, QueueImage, JobProcessImage, data, build(ImageDefaults, opts))
}

func (q *Queue) AddReportJob(ctx context.Context, data ReportJob, opts ...Option) (*Job, error) {
	return q.Add(ctx, QueueReport, JobGenerateReport, data, build(ReportDefaults, opts))
}

// AddBackgroundJob enqueues a named job on the background queue; the name
// selects the handler.
func (q *Queue) AddBackgroundJob(ctx context.Context, name string, data any, opts ...Option) (*Job, error) {
	return q.Add(ctx, QueueBackground, name, data, build(BackgroundDefaults, opts))
}

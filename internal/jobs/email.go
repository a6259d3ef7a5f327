package jobs

import (
	"context"
	"errors"
	"fmt"

	"cadence/internal/queue"

	"go.uber.org/zap"
)

// EmailResult is stored as the job's return value.
type EmailResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
}

func (h *Handlers) Email(ctx context.Context, job *queue.Job) (any, error) {
	var p queue.EmailJob
	if err := job.Decode(&p); err != nil {
		return nil, err
	}
	if p.To == "" {
		return nil, errors.New("email job has no recipient")
	}
	h.logger.Info("sending email", zap.String("job_id", job.ID), zap.String("to", p.To))
	id, err := h.d.Mailer.Send(ctx, Mail{To: p.To, Subject: p.Subject, HTML: p.HTML, Text: p.Text})
	if err != nil {
		return nil, fmt.Errorf("send email to %s: %w", p.To, err)
	}
	return EmailResult{Success: true, MessageID: id}, nil
}

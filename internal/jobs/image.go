package jobs

import (
	"context"
	"errors"
	"fmt"

	"cadence/internal/queue"
	"cadence/pkg/cloudinary"

	"github.com/google/uuid"
)

type ImageResult struct {
	Success    bool     `json:"success"`
	URL        string   `json:"url"`
	Operations []string `json:"operations"`
}

func (h *Handlers) Image(ctx context.Context, job *queue.Job) (any, error) {
	var p queue.ImageJob
	if err := job.Decode(&p); err != nil {
		return nil, err
	}
	if p.ImageURL == "" {
		return nil, errors.New("image job has no source url")
	}
	if h.d.Images == nil {
		return nil, errors.New("image storage not configured")
	}
	t, err := cloudinary.Transformation(p.Operations)
	if err != nil {
		return nil, err
	}
	folder := "Cadence/processed"
	if p.UserID != "" {
		folder += "/" + p.UserID
	}
	url, err := h.d.Images.TransformFromURL(ctx, p.ImageURL, folder, uuid.NewString(), t)
	if err != nil {
		return nil, fmt.Errorf("transform %s: %w", p.ImageURL, err)
	}
	return ImageResult{Success: true, URL: url, Operations: p.Operations}, nil
}

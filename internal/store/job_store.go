package store

import (
	"context"

	"github.com/dunamismax/pixelshift/internal/domain"
)

type JobStore interface {
	Create(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Job, error)
	UpdateProgress(ctx context.Context, id string, percent float64, message string) error
	SetOutputs(ctx context.Context, id string, outputs []domain.JobOutput) error
	SetError(ctx context.Context, id, message string) error
}

type UsageStore interface {
	CreateUsageLog(ctx context.Context, usage domain.UsageLog) error
}

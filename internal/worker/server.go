package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/pixelshift/internal/config"
	"github.com/dunamismax/pixelshift/internal/domain"
	"github.com/dunamismax/pixelshift/internal/pipeline"
	"github.com/dunamismax/pixelshift/internal/queue"
	"github.com/dunamismax/pixelshift/internal/store"
	"github.com/dunamismax/pixelshift/internal/webhook"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type processor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

type Server struct {
	logger          *log.Logger
	server          *asynq.Server
	sem             chan struct{}
	localProcessor  processor
	objectProcessor processor
	webhookClient   webhookSender
	jobStore        store.JobStore
	usageStore      store.UsageStore
	metrics         *metrics
	tracer          trace.Tracer
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	objects pipeline.ObjectStorage,
	webhookClient *webhook.Client,
	jobStore store.JobStore,
	usageStore store.UsageStore,
) (*Server, error) {
	if objects == nil {
		return nil, errors.New("object storage is required")
	}

	localProcessor, err := pipeline.NewLocalProcessor(workerCfg.LocalInputDir, workerCfg.LocalOutputDir)
	if err != nil {
		return nil, fmt.Errorf("initialize local processor: %w", err)
	}

	if usageStore == nil {
		if jobAndUsageStore, ok := jobStore.(store.UsageStore); ok {
			usageStore = jobAndUsageStore
		}
	}

	s := &Server{
		logger:          logger,
		sem:             make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		localProcessor:  localProcessor,
		objectProcessor: pipeline.NewObjectStoreProcessor(objects, ""),
		jobStore:        jobStore,
		usageStore:      usageStore,
		metrics:         newMetrics(),
		tracer:          otel.Tracer("pixelshift/worker"),
	}
	if webhookClient != nil {
		s.webhookClient = webhookClient
	}

	s.server = asynq.NewServer(
		queueCfg.RedisClientOpt(),
		asynq.Config{
			Concurrency: workerCfg.Concurrency,
			Queues: map[string]int{
				queueCfg.Name: 1,
			},
			LogLevel: asynq.InfoLevel,
			IsFailure: func(err error) bool {
				return !errors.Is(err, context.Canceled)
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
			}),
		},
	)
	return s, nil
}

// Start begins pulling tasks in the background; Shutdown waits for active
// tasks to finish.
func (s *Server) Start() error {
	return s.server.Start(s.mux())
}

func (s *Server) Shutdown() {
	s.server.Shutdown()
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeConvertImage, s.handleImageTask)
	mux.HandleFunc(queue.TypeImageMetadata, s.handleImageTask)
	return mux
}

func (s *Server) handleImageTask(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed

	payload, err := queue.ParseImagePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker."+payload.Operation, trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.operation", payload.Operation),
		attribute.String("job.source_type", payload.SourceType),
		attribute.String("job.input_type", payload.InputType),
		attribute.String("job.output_type", payload.OutputType),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(payload.Operation, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(payload.Operation, payload.SourceType, outcome).Inc()
	}()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	s.logger.Printf(
		"Working... job_id=%s op=%s source_type=%s input_type=%s output_type=%s object_key=%s",
		payload.JobID,
		payload.Operation,
		payload.SourceType,
		payload.InputType,
		payload.OutputType,
		payload.ObjectKey,
	)
	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusProcessing)

	request := pipeline.Request{
		JobID:      payload.JobID,
		Operation:  payload.Operation,
		SourceType: payload.SourceType,
		ObjectKey:  payload.ObjectKey,
		InputType:  payload.InputType,
		OutputType: payload.OutputType,
		Settings:   payload.Settings,
		Progress:   s.progressHook(ctx, payload),
	}

	var result pipeline.Result
	switch payload.SourceType {
	case domain.SourceTypeLocalFile:
		result, err = s.localProcessor.Process(ctx, request)
	default:
		result, err = s.objectProcessor.Process(ctx, request)
	}
	if err != nil {
		return s.fail(ctx, span, payload, err)
	}

	s.logger.Printf("Processed job_id=%s op=%s outputs=%d", payload.JobID, payload.Operation, len(result.Outputs))
	s.setOutputs(ctx, payload.JobID, result.Outputs)
	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusSucceeded)
	s.recordUsage(ctx, payload.JobID, payload.Operation, result, time.Since(startedAt))

	// The job already succeeded; a lost notification must not re-run it.
	s.dispatchWebhook(ctx, payload, webhook.EventJobCompleted, map[string]any{
		"job_id":       payload.JobID,
		"status":       domain.JobStatusSucceeded,
		"operation":    payload.Operation,
		"source_type":  payload.SourceType,
		"object_key":   payload.ObjectKey,
		"requested_at": payload.RequestedAt,
		"completed_at": time.Now().UTC(),
		"outputs":      jobOutputs(result.Outputs),
	})

	outcome = domain.JobStatusSucceeded
	span.SetStatus(codes.Ok, "processed")
	return nil
}

// fail records the failure and decides whether asynq may retry. Input errors
// are final on the first attempt; transport errors are final on the last one.
func (s *Server) fail(ctx context.Context, span trace.Span, payload queue.ImagePayload, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "job failed")

	permanent := pipeline.Permanent(err)
	retried, hasRetry := asynq.GetRetryCount(ctx)
	maxRetry, hasMax := asynq.GetMaxRetry(ctx)
	final := permanent || !hasRetry || !hasMax || retried >= maxRetry

	s.setError(ctx, payload.JobID, err.Error())
	if !final {
		s.updateJobStatus(ctx, payload.JobID, domain.JobStatusQueued)
		return fmt.Errorf("run %s: %w", payload.Operation, err)
	}

	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusFailed)
	s.dispatchWebhook(ctx, payload, webhook.EventJobFailed, map[string]any{
		"job_id":       payload.JobID,
		"status":       domain.JobStatusFailed,
		"operation":    payload.Operation,
		"source_type":  payload.SourceType,
		"object_key":   payload.ObjectKey,
		"requested_at": payload.RequestedAt,
		"failed_at":    time.Now().UTC(),
		"error":        err.Error(),
	})

	if permanent {
		return fmt.Errorf("run %s: %v: %w", payload.Operation, err, asynq.SkipRetry)
	}
	return fmt.Errorf("run %s: %w", payload.Operation, err)
}

func (s *Server) progressHook(ctx context.Context, payload queue.ImagePayload) pipeline.ProgressFunc {
	counter := s.metrics.progressUpdatesTotal.WithLabelValues(payload.Operation)
	return func(percent float64, message string) {
		counter.Inc()
		if s.jobStore == nil {
			return
		}
		if err := s.jobStore.UpdateProgress(ctx, payload.JobID, percent, message); err != nil {
			s.logger.Printf("job progress update failed job_id=%s percent=%.0f err=%v", payload.JobID, percent, err)
		}
	}
}

func (s *Server) updateJobStatus(ctx context.Context, jobID, status string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		s.logger.Printf("job status update failed job_id=%s status=%s err=%v", jobID, status, err)
	}
}

func (s *Server) setOutputs(ctx context.Context, jobID string, outputs []pipeline.Output) {
	if s.jobStore == nil {
		return
	}
	if err := s.jobStore.SetOutputs(ctx, jobID, jobOutputs(outputs)); err != nil {
		s.logger.Printf("job outputs update failed job_id=%s err=%v", jobID, err)
	}
}

func (s *Server) setError(ctx context.Context, jobID, message string) {
	if s.jobStore == nil {
		return
	}
	if err := s.jobStore.SetError(ctx, jobID, message); err != nil {
		s.logger.Printf("job error update failed job_id=%s err=%v", jobID, err)
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.ImagePayload, event string, body map[string]any) {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return
	}
	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.metrics.webhookFailuresTotal.WithLabelValues(event).Inc()
		s.logger.Printf("webhook delivery failed job_id=%s event=%s err=%v", payload.JobID, event, err)
	}
}

func (s *Server) recordUsage(ctx context.Context, jobID, operation string, result pipeline.Result, computeDuration time.Duration) {
	if s.usageStore == nil {
		return
	}

	userID := "anonymous"
	if s.jobStore != nil {
		job, ok, err := s.jobStore.Get(ctx, jobID)
		if err != nil {
			s.logger.Printf("usage lookup failed job_id=%s err=%v", jobID, err)
		} else if ok && strings.TrimSpace(job.UserID) != "" {
			userID = job.UserID
		}
	}

	usage := domain.UsageLog{
		UserID:          userID,
		JobID:           jobID,
		Operation:       operation,
		PixelsProcessed: result.Pixels(),
		BytesIn:         int64(result.SourceBytes),
		BytesOut:        result.OutputBytes(),
		ComputeTimeMS:   max(1, computeDuration.Milliseconds()),
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.usageStore.CreateUsageLog(ctx, usage); err != nil {
		s.logger.Printf("usage log write failed job_id=%s err=%v", jobID, err)
		return
	}

	s.metrics.pixelsProcessedTotal.WithLabelValues(operation).Add(float64(usage.PixelsProcessed))
	s.metrics.bytesInTotal.WithLabelValues(operation).Add(float64(usage.BytesIn))
	s.metrics.bytesOutTotal.WithLabelValues(operation).Add(float64(usage.BytesOut))
	s.metrics.computeTimeMSTotal.WithLabelValues(operation).Add(float64(usage.ComputeTimeMS))
}

func jobOutputs(outputs []pipeline.Output) []domain.JobOutput {
	out := make([]domain.JobOutput, 0, len(outputs))
	for _, o := range outputs {
		out = append(out, domain.JobOutput{
			Name:        o.Name,
			ContentType: o.ContentType,
			Path:        o.Path,
			Bytes:       o.Bytes,
			Width:       o.Width,
			Height:      o.Height,
		})
	}
	return out
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/dunamismax/pixelshift/internal/domain"
	"github.com/dunamismax/pixelshift/internal/id"
	"github.com/dunamismax/pixelshift/internal/queue"
	"github.com/dunamismax/pixelshift/internal/storage"
	"github.com/hibiken/asynq"
)

type progressView struct {
	Percent float64 `json:"percent"`
	Message string  `json:"message,omitempty"`
}

type outputView struct {
	domain.JobOutput
	DownloadURL string `json:"download_url,omitempty"`
}

type jobView struct {
	JobID      string           `json:"job_id"`
	Status     string           `json:"status"`
	Operation  string           `json:"operation"`
	SourceType string           `json:"source_type"`
	ObjectKey  string           `json:"object_key"`
	InputType  string           `json:"input_type,omitempty"`
	OutputType string           `json:"output_type,omitempty"`
	Settings   *domain.Settings `json:"settings,omitempty"`
	Progress   progressView     `json:"progress"`
	Outputs    []outputView     `json:"outputs"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		var parseErr *domain.ParseError
		if errors.As(err, &parseErr) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	settings, _ := req.ParsedSettings()

	now := time.Now().UTC()
	jobID := id.New()
	sourceType := strings.ToLower(strings.TrimSpace(req.SourceType))
	objectKey := strings.TrimSpace(req.ObjectKey)
	uploadState := "not_required"
	presignedPutURL := ""

	if sourceType == domain.SourceTypeS3Presigned {
		objectKey = storage.UploadKey(jobID)
		url, err := s.storage.PresignedPutURL(r.Context(), objectKey, s.presignTTL)
		if err != nil {
			s.logger.Printf("generate presigned url failed job_id=%s err=%v", jobID, err)
			writeError(w, http.StatusInternalServerError, "failed to generate upload URL")
			return
		}
		presignedPutURL = url
		uploadState = "ready"
	}

	job := domain.Job{
		ID:         jobID,
		UserID:     strings.TrimSpace(r.Header.Get(s.rateLimitUserIDHeader)),
		Status:     domain.JobStatusCreated,
		SourceType: sourceType,
		WebhookURL: strings.TrimSpace(req.WebhookURL),
		ObjectKey:  objectKey,
		Operation:  strings.ToLower(strings.TrimSpace(req.Operation)),
		InputType:  strings.TrimSpace(req.InputType),
		OutputType: strings.TrimSpace(req.OutputType),
		Settings:   settings,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.jobStore.Create(r.Context(), job); err != nil {
		s.logger.Printf("create job failed job_id=%s err=%v", job.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":    job.ID,
		"status":    job.Status,
		"operation": job.Operation,
		"upload": map[string]string{
			"object_key":          job.ObjectKey,
			"presigned_put_url":   presignedPutURL,
			"presigned_url_state": uploadState,
		},
		"start_url":  fmt.Sprintf("/v1/jobs/%s/start", job.ID),
		"status_url": fmt.Sprintf("/v1/jobs/%s", job.ID),
	})
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if job.Status != domain.JobStatusCreated {
		writeError(w, http.StatusConflict, fmt.Sprintf("job already %s", job.Status))
		return
	}

	if status, err := s.verifySource(r.Context(), job); err != nil {
		writeError(w, status, err.Error())
		return
	}

	payload := queue.ImagePayload{
		JobID:       job.ID,
		Operation:   job.Operation,
		SourceType:  job.SourceType,
		WebhookURL:  job.WebhookURL,
		ObjectKey:   job.ObjectKey,
		InputType:   job.InputType,
		OutputType:  job.OutputType,
		Settings:    job.Settings,
		RequestedAt: time.Now().UTC(),
	}

	taskInfo, err := s.queueClient.EnqueueImage(r.Context(), payload)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			writeError(w, http.StatusConflict, "job already enqueued")
			return
		}
		s.logger.Printf("enqueue failed job_id=%s err=%v", job.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue, job.Operation).Inc()

	if _, err := s.jobStore.UpdateStatus(r.Context(), job.ID, domain.JobStatusQueued); err != nil {
		s.logger.Printf("update status failed job_id=%s err=%v", job.ID, err)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":      job.ID,
		"status":      domain.JobStatusQueued,
		"queue":       taskInfo.Queue,
		"task_id":     taskInfo.ID,
		"task_type":   taskInfo.Type,
		"state":       taskInfo.State.String(),
		"enqueued_at": taskInfo.NextProcessAt,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	view := jobView{
		JobID:      job.ID,
		Status:     job.Status,
		Operation:  job.Operation,
		SourceType: job.SourceType,
		ObjectKey:  job.ObjectKey,
		InputType:  job.InputType,
		OutputType: job.OutputType,
		Settings:   job.Settings,
		Progress:   progressView{Percent: job.Progress, Message: job.ProgressMessage},
		Outputs:    make([]outputView, 0, len(job.Outputs)),
		Error:      job.Error,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	}
	for _, out := range job.Outputs {
		ov := outputView{JobOutput: out}
		if job.SourceType == domain.SourceTypeS3Presigned {
			url, err := s.storage.PresignedGetURL(r.Context(), out.Path, out.Name, s.presignTTL)
			if err != nil {
				s.logger.Printf("presign output failed job_id=%s key=%s err=%v", job.ID, out.Path, err)
			} else {
				ov.DownloadURL = url
			}
		}
		view.Outputs = append(view.Outputs, ov)
	}

	writeJSON(w, http.StatusOK, view)
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (domain.Job, bool) {
	jobID := strings.TrimSpace(r.PathValue("id"))
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job id is required")
		return domain.Job{}, false
	}

	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Printf("fetch job failed job_id=%s err=%v", jobID, err)
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return domain.Job{}, false
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return domain.Job{}, false
	}
	return job, true
}

// verifySource returns the HTTP status to report alongside a failed check.
func (s *Server) verifySource(ctx context.Context, job domain.Job) (int, error) {
	var size int64
	switch job.SourceType {
	case domain.SourceTypeLocalFile:
		info, err := os.Stat(job.ObjectKey)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return http.StatusConflict, fmt.Errorf("source object is missing: %s", path.Base(job.ObjectKey))
			}
			return http.StatusInternalServerError, fmt.Errorf("source object check failed: %w", err)
		}
		size = info.Size()
	default:
		info, err := s.storage.StatObject(ctx, job.ObjectKey)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				return http.StatusConflict, fmt.Errorf("source object is missing: %s", job.ObjectKey)
			}
			return http.StatusInternalServerError, fmt.Errorf("source object check failed: %w", err)
		}
		size = info.Size
	}

	if size > s.maxUploadBytes {
		return http.StatusRequestEntityTooLarge, fmt.Errorf("source object exceeds %d bytes", s.maxUploadBytes)
	}
	return 0, nil
}

package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dunamismax/pixelshift/internal/format"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"

	OperationConvert  = "convert"
	OperationMetadata = "metadata"
)

type CreateJobRequest struct {
	SourceType string          `json:"source_type"`
	WebhookURL string          `json:"webhook_url,omitempty"`
	ObjectKey  string          `json:"object_key,omitempty"`
	Operation  string          `json:"operation"`
	InputType  string          `json:"input_type,omitempty"`
	OutputType string          `json:"output_type,omitempty"`
	Settings   json.RawMessage `json:"settings,omitempty"`
}

type JobOutput struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Path        string `json:"path"`
	Bytes       int    `json:"bytes"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

type Job struct {
	ID              string
	UserID          string
	Status          string
	SourceType      string
	WebhookURL      string
	ObjectKey       string
	Operation       string
	InputType       string
	OutputType      string
	Settings        *Settings
	Progress        float64
	ProgressMessage string
	Outputs         []JobOutput
	Error           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (r CreateJobRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if sourceType == SourceTypeLocalFile && strings.TrimSpace(r.ObjectKey) == "" {
		return errors.New("object_key is required for source_type=local_file")
	}

	switch strings.ToLower(strings.TrimSpace(r.Operation)) {
	case "":
		return errors.New("operation is required")
	case OperationConvert:
		if f, ok := format.Resolve(r.OutputType); ok && f.IsVector() {
			return fmt.Errorf("unsupported output_type: %s", r.OutputType)
		}
	case OperationMetadata:
	default:
		return fmt.Errorf("unsupported operation: %s", r.Operation)
	}

	if strings.TrimSpace(r.InputType) != "" {
		if _, ok := format.Resolve(r.InputType); !ok {
			return fmt.Errorf("unsupported input_type: %s", r.InputType)
		}
	}
	if _, err := r.ParsedSettings(); err != nil {
		return err
	}
	return nil
}

func (r CreateJobRequest) ParsedSettings() (*Settings, error) {
	return ParseSettings(r.Settings)
}

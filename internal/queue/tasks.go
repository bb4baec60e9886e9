package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/pixelshift/internal/domain"
	"github.com/hibiken/asynq"
)

const (
	TypeConvertImage  = "image:convert"
	TypeImageMetadata = "image:metadata"
)

type ImagePayload struct {
	JobID       string           `json:"job_id"`
	Operation   string           `json:"operation"`
	SourceType  string           `json:"source_type"`
	WebhookURL  string           `json:"webhook_url,omitempty"`
	ObjectKey   string           `json:"object_key"`
	InputType   string           `json:"input_type,omitempty"`
	OutputType  string           `json:"output_type,omitempty"`
	Settings    *domain.Settings `json:"settings,omitempty"`
	RequestedAt time.Time        `json:"requested_at"`
}

// TaskType maps a job operation to its task type.
func TaskType(operation string) (string, error) {
	switch operation {
	case domain.OperationConvert:
		return TypeConvertImage, nil
	case domain.OperationMetadata:
		return TypeImageMetadata, nil
	default:
		return "", fmt.Errorf("no task type for operation %q", operation)
	}
}

func NewImageTask(payload ImagePayload) (*asynq.Task, error) {
	taskType, err := TaskType(payload.Operation)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", taskType, err)
	}
	return asynq.NewTask(taskType, body), nil
}

func ParseImagePayload(task *asynq.Task) (ImagePayload, error) {
	var payload ImagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ImagePayload{}, fmt.Errorf("unmarshal %s payload: %w", task.Type(), err)
	}

	want, err := TaskType(payload.Operation)
	if err != nil {
		return ImagePayload{}, err
	}
	if want != task.Type() {
		return ImagePayload{}, fmt.Errorf("operation %q does not match task type %s", payload.Operation, task.Type())
	}
	return payload, nil
}

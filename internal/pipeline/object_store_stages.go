package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dunamismax/pixelshift/internal/domain"
)

const (
	SourceTypeS3Presigned = domain.SourceTypeS3Presigned

	defaultOutputPrefix = "outputs"
)

// ObjectStorage is the subset of the MinIO client the job stages use.
type ObjectStorage interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
}

func NewObjectStoreProcessor(storage ObjectStorage, outputPrefix string) *Processor {
	return &Processor{
		fetcher: ObjectStoreFetcher{Storage: storage},
		emitter: ObjectStoreEmitter{Storage: storage, OutputPrefix: outputPrefix},
	}
}

type ObjectStoreFetcher struct {
	Storage ObjectStorage
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if f.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	if !strings.EqualFold(req.SourceType, SourceTypeS3Presigned) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}
	return f.Storage.ReadObject(ctx, req.ObjectKey)
}

type ObjectStoreEmitter struct {
	Storage      ObjectStorage
	OutputPrefix string
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, req Request, out Output, data []byte) (Output, error) {
	if e.Storage == nil {
		return Output{}, errors.New("storage client is required")
	}
	if strings.TrimSpace(out.Name) == "" {
		return Output{}, errors.New("output name is required")
	}

	objectKey := OutputObjectKey(e.OutputPrefix, req.JobID, out.Name)
	if err := e.Storage.WriteObject(ctx, objectKey, data, out.ContentType); err != nil {
		return Output{}, err
	}

	out.Path = objectKey
	out.Bytes = len(data)
	return out, nil
}

func OutputObjectKey(prefix, jobID, name string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultOutputPrefix
	}
	return path.Join(prefix, sanitizePathToken(jobID), sanitizeFileName(name))
}

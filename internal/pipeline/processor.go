package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/pixelshift/internal/codec"
	"github.com/dunamismax/pixelshift/internal/domain"
	"github.com/dunamismax/pixelshift/internal/format"
)

const (
	SourceTypeLocalFile = domain.SourceTypeLocalFile

	metadataOutputName = "metadata.json"
	metadataMIME       = "application/json"
)

var (
	ErrUnsupportedSourceType = errors.New("unsupported source_type")
	ErrUnsupportedOperation  = errors.New("unsupported operation")
	ErrPathOutsideRoot       = errors.New("path outside input root")
)

type Request struct {
	JobID      string
	Operation  string
	SourceType string
	ObjectKey  string
	InputType  string
	OutputType string
	Settings   *domain.Settings
	Progress   ProgressFunc
}

type Output struct {
	Name        string
	ContentType string
	Path        string
	Bytes       int
	Width       int
	Height      int
}

type Result struct {
	Outputs     []Output
	SourceBytes int
}

// Pixels is the pixel count of the largest output, used for usage accounting.
func (r Result) Pixels() int64 {
	var n int64
	for _, out := range r.Outputs {
		n = max(n, int64(out.Width)*int64(out.Height))
	}
	return n
}

func (r Result) OutputBytes() int64 {
	var n int64
	for _, out := range r.Outputs {
		n += int64(out.Bytes)
	}
	return n
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, out Output, data []byte) (Output, error)
}

type Processor struct {
	fetcher Fetcher
	emitter Emitter
}

func NewProcessor(fetcher Fetcher, emitter Emitter) *Processor {
	return &Processor{fetcher: fetcher, emitter: emitter}
}

func NewLocalProcessor(inputRoot, outputDir string) (*Processor, error) {
	if strings.TrimSpace(inputRoot) == "" {
		return nil, errors.New("input root is required")
	}
	if strings.TrimSpace(outputDir) == "" {
		return nil, errors.New("output directory is required")
	}
	return &Processor{
		fetcher: LocalFileFetcher{Root: inputRoot},
		emitter: LocalFileEmitter{OutputDir: outputDir},
	}, nil
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}
	operation := strings.ToLower(strings.TrimSpace(req.Operation))
	if operation != domain.OperationConvert && operation != domain.OperationMetadata {
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedOperation, req.Operation)
	}

	sourceBytes, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	var (
		data []byte
		out  Output
	)
	switch operation {
	case domain.OperationConvert:
		data, out, err = p.convert(sourceBytes, req)
		if err != nil {
			return Result{}, fmt.Errorf("convert stage: %w", err)
		}
	case domain.OperationMetadata:
		data, out, err = p.metadata(sourceBytes, req)
		if err != nil {
			return Result{}, fmt.Errorf("metadata stage: %w", err)
		}
	}

	written, err := p.emitter.Emit(ctx, req, out, data)
	if err != nil {
		return Result{}, fmt.Errorf("emit stage: %w", err)
	}

	return Result{
		Outputs:     []Output{written},
		SourceBytes: len(sourceBytes),
	}, nil
}

func (p *Processor) convert(sourceBytes []byte, req Request) ([]byte, Output, error) {
	data, err := Convert(sourceBytes, req.InputType, req.OutputType, req.Settings, req.Progress)
	if err != nil {
		return nil, Output{}, err
	}

	target, ok := format.Resolve(req.OutputType)
	if !ok {
		target = format.PNG
	}
	out := Output{
		Name:        "output." + target.Extension(),
		ContentType: target.MIME(),
		Bytes:       len(data),
	}
	if cfg, err := codec.DecodeConfig(data, target); err == nil {
		out.Width, out.Height = cfg.Width, cfg.Height
	}
	return data, out, nil
}

func (p *Processor) metadata(sourceBytes []byte, req Request) ([]byte, Output, error) {
	md, err := Metadata(sourceBytes, req.InputType, req.Progress)
	if err != nil {
		return nil, Output{}, err
	}

	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return nil, Output{}, fmt.Errorf("encode metadata document: %w", err)
	}
	return data, Output{
		Name:        metadataOutputName,
		ContentType: metadataMIME,
		Bytes:       len(data),
		Width:       md.Width,
		Height:      md.Height,
	}, nil
}

// LocalFileFetcher reads job input from the local filesystem. Object keys
// resolve against Root and may not leave it.
type LocalFileFetcher struct {
	Root string
}

func (f LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if !strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}

	path, err := f.resolve(req.ObjectKey)
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.ObjectKey, err)
	}
	return data, nil
}

func (f LocalFileFetcher) resolve(objectKey string) (string, error) {
	if strings.TrimSpace(f.Root) == "" {
		return "", errors.New("input root is required")
	}
	root, err := filepath.Abs(f.Root)
	if err != nil {
		return "", fmt.Errorf("resolve input root: %w", err)
	}

	path := objectKey
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideRoot, objectKey)
	}
	return path, nil
}

type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, out Output, data []byte) (Output, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return Output{}, errors.New("output directory is required")
	}
	if strings.TrimSpace(out.Name) == "" {
		return Output{}, errors.New("output name is required")
	}

	jobDir := filepath.Join(e.OutputDir, sanitizePathToken(req.JobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create output dir: %w", err)
	}

	fullPath := filepath.Join(jobDir, sanitizeFileName(out.Name))
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return Output{}, fmt.Errorf("write output file: %w", err)
	}

	out.Path = fullPath
	out.Bytes = len(data)
	return out, nil
}

func sanitizeFileName(name string) string {
	stem, ext, found := strings.Cut(strings.TrimSpace(name), ".")
	if !found {
		return sanitizePathToken(stem)
	}
	return sanitizePathToken(stem) + "." + sanitizePathToken(ext)
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

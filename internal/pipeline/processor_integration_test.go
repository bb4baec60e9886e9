package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dunamismax/pixelshift/internal/domain"
	"github.com/dunamismax/pixelshift/internal/metadata"
	"github.com/dunamismax/pixelshift/internal/source"
)

func TestLocalProcessor_FileInConvertFileOut(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")
	outputDir := filepath.Join(tmp, "out")

	srcBytes := buildTestPNG(t, 240, 120)
	if err := os.WriteFile(inputPath, srcBytes, 0o644); err != nil {
		t.Fatalf("write input image: %v", err)
	}

	processor, err := NewLocalProcessor(tmp, outputDir)
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	var percents []float64
	result, err := processor.Process(context.Background(), Request{
		JobID:      "job-local-1",
		Operation:  domain.OperationConvert,
		SourceType: SourceTypeLocalFile,
		ObjectKey:  inputPath,
		InputType:  "image/png",
		OutputType: "image/jpeg",
		Progress: func(percent float64, _ string) {
			percents = append(percents, percent)
		},
	})
	if err != nil {
		t.Fatalf("process request: %v", err)
	}

	if len(result.Outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(result.Outputs))
	}
	if result.SourceBytes != len(srcBytes) {
		t.Fatalf("expected source bytes %d, got %d", len(srcBytes), result.SourceBytes)
	}

	out := result.Outputs[0]
	if out.ContentType != "image/jpeg" || !strings.HasSuffix(out.Path, "output.jpeg") {
		t.Fatalf("unexpected output %+v", out)
	}
	if out.Width != 240 || out.Height != 120 {
		t.Fatalf("expected 240x120 output, got %dx%d", out.Width, out.Height)
	}
	if result.Pixels() != 240*120 {
		t.Fatalf("unexpected pixel count %d", result.Pixels())
	}
	verifyImageWidth(t, out.Path, 240)

	if len(percents) != 5 || percents[4] != 100 {
		t.Fatalf("expected five progress updates ending at 100, got %v", percents)
	}
}

func TestLocalProcessor_Metadata(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")
	if err := os.WriteFile(inputPath, buildTestPNG(t, 33, 17), 0o644); err != nil {
		t.Fatalf("write input image: %v", err)
	}

	processor, err := NewLocalProcessor(tmp, filepath.Join(tmp, "out"))
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	result, err := processor.Process(context.Background(), Request{
		JobID:      "job-meta",
		Operation:  domain.OperationMetadata,
		SourceType: SourceTypeLocalFile,
		ObjectKey:  inputPath,
	})
	if err != nil {
		t.Fatalf("process request: %v", err)
	}

	out := result.Outputs[0]
	if out.Name != "metadata.json" || out.ContentType != "application/json" {
		t.Fatalf("unexpected output %+v", out)
	}

	data, err := os.ReadFile(out.Path)
	if err != nil {
		t.Fatalf("read metadata output: %v", err)
	}
	var md metadata.Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		t.Fatalf("decode metadata output: %v", err)
	}
	if md.Width != 33 || md.Height != 17 {
		t.Fatalf("expected 33x17, got %dx%d", md.Width, md.Height)
	}
}

func TestLocalProcessor_UnsupportedSourceType(t *testing.T) {
	processor, err := NewLocalProcessor(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	_, err = processor.Process(context.Background(), Request{
		JobID:      "job-unsupported",
		Operation:  domain.OperationConvert,
		SourceType: "s3_presigned",
		ObjectKey:  "uploads/job/source",
	})
	if !errors.Is(err, ErrUnsupportedSourceType) {
		t.Fatalf("expected unsupported source_type error, got %v", err)
	}
}

func TestLocalFileFetcherStaysInsideRoot(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "inputs")
	if err := os.MkdirAll(filepath.Join(root, "nested"), 0o755); err != nil {
		t.Fatalf("create input root: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "nested", "in.png"), buildTestPNG(t, 2, 2), 0o644); err != nil {
		t.Fatalf("write input image: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, "secret.txt"), []byte("secret"), 0o644); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	fetcher := LocalFileFetcher{Root: root}
	for _, key := range []string{"nested/in.png", filepath.Join(root, "nested", "in.png")} {
		if _, err := fetcher.Fetch(context.Background(), Request{SourceType: SourceTypeLocalFile, ObjectKey: key}); err != nil {
			t.Fatalf("%s: fetch inside root: %v", key, err)
		}
	}

	for _, key := range []string{"../secret.txt", filepath.Join(tmp, "secret.txt"), "nested/../../secret.txt", "/etc/passwd"} {
		_, err := fetcher.Fetch(context.Background(), Request{SourceType: SourceTypeLocalFile, ObjectKey: key})
		if !errors.Is(err, ErrPathOutsideRoot) {
			t.Fatalf("%s: expected ErrPathOutsideRoot, got %v", key, err)
		}
		if !Permanent(err) {
			t.Fatalf("%s: expected path error to be permanent", key)
		}
	}
}

func TestProcessorWrapsCoreErrors(t *testing.T) {
	processor := NewProcessor(staticFetcher{data: []byte("garbage")}, discardEmitter{})

	_, err := processor.Process(context.Background(), Request{
		JobID:     "job-bad-input",
		Operation: domain.OperationConvert,
	})
	if !errors.Is(err, source.ErrUnknownFileType) {
		t.Fatalf("expected wrapped ErrUnknownFileType, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "convert stage: ") {
		t.Fatalf("expected convert stage prefix, got %q", err.Error())
	}

	_, err = processor.Process(context.Background(), Request{JobID: "job-op", Operation: "resize"})
	if !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("expected ErrUnsupportedOperation, got %v", err)
	}
}

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (m *memoryObjects) ReadObject(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func (m *memoryObjects) WriteObject(_ context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func TestObjectStoreProcessor(t *testing.T) {
	objects := &memoryObjects{
		objects: map[string][]byte{"uploads/job-s3/source": buildTestPNG(t, 12, 12)},
		types:   map[string]string{},
	}
	processor := NewObjectStoreProcessor(objects, "")

	result, err := processor.Process(context.Background(), Request{
		JobID:      "job-s3",
		Operation:  domain.OperationConvert,
		SourceType: SourceTypeS3Presigned,
		ObjectKey:  "uploads/job-s3/source",
		OutputType: "image/webp",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	key := result.Outputs[0].Path
	if key != "outputs/job-s3/output.webp" {
		t.Fatalf("unexpected output key %q", key)
	}
	if objects.types[key] != "image/webp" {
		t.Fatalf("unexpected content type %q", objects.types[key])
	}
	if !bytes.HasPrefix(objects.objects[key], []byte("RIFF")) {
		t.Fatal("expected webp bytes in object store")
	}
}

func buildTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}

func verifyImageWidth(t *testing.T, path string, want int) {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read image %s: %v", path, err)
	}

	md, err := Metadata(data, "", nil)
	if err != nil {
		t.Fatalf("read image metadata %s: %v", path, err)
	}
	if md.Width != want {
		t.Fatalf("expected width %d, got %d", want, md.Width)
	}
}

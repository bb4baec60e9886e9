package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dunamismax/pixelshift/internal/codec"
	"github.com/dunamismax/pixelshift/internal/domain"
	"github.com/dunamismax/pixelshift/internal/format"
	"github.com/dunamismax/pixelshift/internal/metadata"
	"github.com/dunamismax/pixelshift/internal/queue"
	"github.com/dunamismax/pixelshift/internal/ratelimit"
	"github.com/dunamismax/pixelshift/internal/source"
	"github.com/dunamismax/pixelshift/internal/storage"
	"github.com/dunamismax/pixelshift/internal/store"
	"github.com/hibiken/asynq"
)

type fakeQueue struct {
	mu       sync.Mutex
	payloads []queue.ImagePayload
	seen     map[string]bool
}

func (q *fakeQueue) EnqueueImage(_ context.Context, payload queue.ImagePayload) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.seen == nil {
		q.seen = make(map[string]bool)
	}
	if q.seen[payload.JobID] {
		return nil, asynq.ErrTaskIDConflict
	}
	q.seen[payload.JobID] = true
	q.payloads = append(q.payloads, payload)

	taskType, _ := queue.TaskType(payload.Operation)
	return &asynq.TaskInfo{
		ID:            payload.JobID,
		Queue:         "default",
		Type:          taskType,
		State:         asynq.TaskStatePending,
		NextProcessAt: time.Now(),
	}, nil
}

type fakeStorage struct {
	objects map[string]int64
}

func (s *fakeStorage) PresignedPutURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://minio.test/pixelshift-jobs/" + key + "?X-Amz-Signature=put", nil
}

func (s *fakeStorage) PresignedGetURL(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://minio.test/pixelshift-jobs/" + key + "?X-Amz-Signature=get", nil
}

func (s *fakeStorage) StatObject(_ context.Context, key string) (storage.ObjectInfo, error) {
	size, ok := s.objects[key]
	if !ok {
		return storage.ObjectInfo{}, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
	}
	return storage.ObjectInfo{Key: key, Size: size}, nil
}

type harness struct {
	srv     *Server
	handler http.Handler
	queue   *fakeQueue
	jobs    *store.MemoryJobStore
	objects *fakeStorage
}

func newHarness(t *testing.T, cfg Config, limiter RateLimiter) *harness {
	t.Helper()
	h := &harness{
		queue:   &fakeQueue{},
		jobs:    store.NewMemoryJobStore(),
		objects: &fakeStorage{objects: map[string]int64{}},
	}
	h.srv = NewServer(log.New(io.Discard, "", 0), cfg, h.queue, h.jobs, h.objects, limiter)
	h.handler = h.srv.Handler()
	return h
}

func (h *harness) do(method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 7), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

const circleSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"><circle cx="5" cy="5" r="4" fill="red"/></svg>`

func TestHealthzAndFormats(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	if rec := h.do(http.MethodGet, "/healthz", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz returned %d", rec.Code)
	}

	rec := h.do(http.MethodGet, "/v1/formats", nil, nil)
	var body struct {
		Formats []format.Capability `json:"formats"`
	}
	decodeBody(t, rec, &body)
	if len(body.Formats) != 15 {
		t.Fatalf("expected 15 formats, got %d", len(body.Formats))
	}
}

func TestConvertEndpoint(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	rec := h.do(http.MethodPost, "/v1/convert?source_type=image/png&target_type=image/jpeg", testPNG(t, 12, 8), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if f, ok := format.Sniff(rec.Body.Bytes()); !ok || f != format.JPEG {
		t.Fatalf("expected jpeg body, sniffed %s", f)
	}
}

func TestConvertEndpointAppliesSettingsHeader(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	rec := h.do(http.MethodPost, "/v1/convert?source_type=image/svg%2Bxml&target_type=image/png", []byte(circleSVG), map[string]string{
		SettingsHeader: `{"type":"svg","width":64,"height":48}`,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if cfg.Width != 64 || cfg.Height != 48 {
		t.Fatalf("expected 64x48, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestConvertEndpointErrors(t *testing.T) {
	h := newHarness(t, Config{MaxUploadBytes: 4096}, nil)

	cases := []struct {
		name    string
		target  string
		body    []byte
		headers map[string]string
		want    int
	}{
		{"unknown bytes", "/v1/convert?target_type=image/png", []byte("hello there"), nil, http.StatusUnsupportedMediaType},
		{"bad settings", "/v1/convert", testPNG(t, 2, 2), map[string]string{SettingsHeader: "{nope"}, http.StatusUnprocessableEntity},
		{"oversized svg settings", "/v1/convert", testPNG(t, 2, 2), map[string]string{SettingsHeader: `{"type":"svg","width":60000,"height":60000}`}, http.StatusUnprocessableEntity},
		{"vector target", "/v1/convert?target_type=image/svg%2Bxml", testPNG(t, 2, 2), nil, http.StatusBadRequest},
		{"empty body", "/v1/convert", nil, nil, http.StatusBadRequest},
		{"too large", "/v1/convert", bytes.Repeat([]byte{0}, 8192), nil, http.StatusRequestEntityTooLarge},
		{"broken svg", "/v1/convert?source_type=image/svg%2Bxml", []byte("<svg"), nil, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		rec := h.do(http.MethodPost, tc.target, tc.body, tc.headers)
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d: %s", tc.name, tc.want, rec.Code, rec.Body.String())
		}
	}
}

func TestMetadataEndpoint(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	rec := h.do(http.MethodPost, "/v1/metadata?source_type=image/png", testPNG(t, 31, 9), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var md metadata.Metadata
	decodeBody(t, rec, &md)
	if md.Width != 31 || md.Height != 9 {
		t.Fatalf("expected 31x9, got %dx%d", md.Width, md.Height)
	}
}

func TestPixelsEndpoint(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	rec := h.do(http.MethodPost, "/v1/pixels", testPNG(t, 4, 2), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var px pixelsResponse
	decodeBody(t, rec, &px)
	if px.Width != 4 || px.Height != 2 || len(px.Pixels) != 32 {
		t.Fatalf("unexpected pixel payload %dx%d len=%d", px.Width, px.Height, len(px.Pixels))
	}
	if px.AspectRatio == nil || *px.AspectRatio != 2 {
		t.Fatalf("expected aspect ratio 2, got %v", px.AspectRatio)
	}
}

func TestLocalJobLifecycle(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	input := filepath.Join(t.TempDir(), "input.png")
	if err := os.WriteFile(input, testPNG(t, 3, 3), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	body, _ := json.Marshal(map[string]any{
		"source_type": "local_file",
		"object_key":  input,
		"operation":   "convert",
		"output_type": "image/webp",
		"settings":    map[string]any{"type": "svg", "width": 20, "height": 10},
	})
	rec := h.do(http.MethodPost, "/v1/jobs", body, map[string]string{"X-User-ID": "user-7"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create job: expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		JobID    string `json:"job_id"`
		StartURL string `json:"start_url"`
	}
	decodeBody(t, rec, &created)

	job, ok, _ := h.jobs.Get(context.Background(), created.JobID)
	if !ok || job.UserID != "user-7" || job.Settings == nil || job.Settings.SVG.Width != 20 {
		t.Fatalf("unexpected stored job %+v", job)
	}

	rec = h.do(http.MethodPost, created.StartURL, nil, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start job: expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(h.queue.payloads) != 1 {
		t.Fatalf("expected one enqueued payload, got %d", len(h.queue.payloads))
	}
	payload := h.queue.payloads[0]
	if payload.Operation != domain.OperationConvert || payload.OutputType != "image/webp" || payload.Settings == nil {
		t.Fatalf("unexpected payload %+v", payload)
	}

	rec = h.do(http.MethodPost, created.StartURL, nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("restart: expected 409, got %d", rec.Code)
	}

	if err := h.jobs.UpdateProgress(context.Background(), created.JobID, 50, "Processing image"); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	rec = h.do(http.MethodGet, "/v1/jobs/"+created.JobID, nil, nil)
	var view jobView
	decodeBody(t, rec, &view)
	if view.Status != domain.JobStatusQueued || view.Progress.Percent != 50 || view.Progress.Message != "Processing image" {
		t.Fatalf("unexpected job view %+v", view)
	}
}

func TestObjectStoreJobRequiresUpload(t *testing.T) {
	h := newHarness(t, Config{MaxUploadBytes: 1000}, nil)

	body := []byte(`{"source_type":"s3_presigned","operation":"metadata"}`)
	rec := h.do(http.MethodPost, "/v1/jobs", body, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create job: expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		JobID  string `json:"job_id"`
		Upload struct {
			ObjectKey       string `json:"object_key"`
			PresignedPutURL string `json:"presigned_put_url"`
		} `json:"upload"`
	}
	decodeBody(t, rec, &created)
	if created.Upload.ObjectKey != storage.UploadKey(created.JobID) || !strings.Contains(created.Upload.PresignedPutURL, created.Upload.ObjectKey) {
		t.Fatalf("unexpected upload descriptor %+v", created.Upload)
	}

	start := "/v1/jobs/" + created.JobID + "/start"
	if rec := h.do(http.MethodPost, start, nil, nil); rec.Code != http.StatusConflict {
		t.Fatalf("missing upload: expected 409, got %d", rec.Code)
	}

	h.objects.objects[created.Upload.ObjectKey] = 5000
	if rec := h.do(http.MethodPost, start, nil, nil); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized upload: expected 413, got %d", rec.Code)
	}

	h.objects.objects[created.Upload.ObjectKey] = 500
	if rec := h.do(http.MethodPost, start, nil, nil); rec.Code != http.StatusAccepted {
		t.Fatalf("start: expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	if err := h.jobs.SetOutputs(context.Background(), created.JobID, []domain.JobOutput{{
		Name:        "metadata.json",
		ContentType: "application/json",
		Path:        "outputs/" + created.JobID + "/metadata.json",
		Bytes:       42,
	}}); err != nil {
		t.Fatalf("set outputs: %v", err)
	}
	rec = h.do(http.MethodGet, "/v1/jobs/"+created.JobID, nil, nil)
	var view jobView
	decodeBody(t, rec, &view)
	if len(view.Outputs) != 1 || !strings.Contains(view.Outputs[0].DownloadURL, "X-Amz-Signature=get") {
		t.Fatalf("expected presigned download url, got %+v", view.Outputs)
	}
}

func TestCreateJobValidation(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	cases := []struct {
		body string
		want int
	}{
		{`{"source_type":"ftp","operation":"convert"}`, http.StatusBadRequest},
		{`{"source_type":"s3_presigned","operation":"resize"}`, http.StatusBadRequest},
		{`{"source_type":"s3_presigned","operation":"convert","settings":"oops"}`, http.StatusUnprocessableEntity},
		{`{"source_type":"s3_presigned","operation":"convert","pipeline":[]}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if rec := h.do(http.MethodPost, "/v1/jobs", []byte(tc.body), nil); rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d: %s", tc.body, tc.want, rec.Code, rec.Body.String())
		}
	}

	if rec := h.do(http.MethodGet, "/v1/jobs/missing", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", rec.Code)
	}
}

func TestRateLimitRejectsBurst(t *testing.T) {
	limiter, err := ratelimit.NewLocalLimiter(1, time.Hour)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	h := newHarness(t, Config{}, limiter)
	headers := map[string]string{"X-User-ID": "user-1"}

	first := h.do(http.MethodPost, "/v1/pixels", testPNG(t, 1, 1), headers)
	if first.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", first.Code)
	}

	second := h.do(http.MethodPost, "/v1/pixels", testPNG(t, 1, 1), headers)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" || second.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("missing rate limit headers: %v", second.Header())
	}

	if rec := h.do(http.MethodGet, "/v1/formats", nil, headers); rec.Code != http.StatusOK {
		t.Fatalf("reads should not be limited, got %d", rec.Code)
	}
}

func TestStatusForImageError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("load: %w", source.ErrUnknownFileType), http.StatusUnsupportedMediaType},
		{&domain.ParseError{Err: errors.New("x")}, http.StatusUnprocessableEntity},
		{&source.SVGError{Err: errors.New("x")}, http.StatusUnprocessableEntity},
		{&metadata.DecoderError{Format: format.PNG, Err: errors.New("x")}, http.StatusUnprocessableEntity},
		{&codec.Error{Format: format.PNG, Op: "decode", Err: errors.New("x")}, http.StatusUnprocessableEntity},
		{&codec.Error{Format: format.PNG, Op: "encode", Err: errors.New("x")}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusForImageError(tc.err); got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestRouteLabel(t *testing.T) {
	cases := map[[2]string]string{
		{http.MethodPost, "/v1/jobs/abc/start"}: "/v1/jobs/{id}/start",
		{http.MethodGet, "/v1/jobs/abc"}:        "/v1/jobs/{id}",
		{http.MethodPost, "/v1/convert"}:        "/v1/convert",
		{http.MethodGet, "/favicon.ico"}:        "other",
	}
	for in, want := range cases {
		if got := routeLabel(in[0], in[1]); got != want {
			t.Fatalf("%v: expected %s, got %s", in, want, got)
		}
	}
}

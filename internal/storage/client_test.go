package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClientRequiresBucket(t *testing.T) {
	if _, err := NewClient(Config{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected bucket validation error")
	}
}

func TestPresignedURLsAreSignedForBucket(t *testing.T) {
	c, err := NewClient(Config{
		Endpoint: "localhost:9000",
		Access:   "key",
		Secret:   "secret",
		Bucket:   "jobs",
		Region:   "us-east-1",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	put, err := c.PresignedPutURL(context.Background(), UploadKey("job-1"), 5*time.Minute)
	if err != nil {
		t.Fatalf("presign put: %v", err)
	}
	if !strings.Contains(put, "/jobs/uploads/job-1/source") || !strings.Contains(put, "X-Amz-Signature=") {
		t.Fatalf("unexpected presigned put url %s", put)
	}

	get, err := c.PresignedGetURL(context.Background(), "outputs/job-1/output.png", "output.png", time.Minute)
	if err != nil {
		t.Fatalf("presign get: %v", err)
	}
	if !strings.Contains(get, "response-content-disposition=") {
		t.Fatalf("expected content disposition override in %s", get)
	}
}

func TestStatObjectMapsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-amz-request-id", "test")
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewClient(Config{
		Endpoint: strings.TrimPrefix(srv.URL, "http://"),
		Access:   "key",
		Secret:   "secret",
		Bucket:   "jobs",
		Region:   "us-east-1",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = c.StatObject(context.Background(), UploadKey("missing"))
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}

	exists, err := c.ObjectExists(context.Background(), UploadKey("missing"))
	if err != nil || exists {
		t.Fatalf("expected missing object, got exists=%v err=%v", exists, err)
	}
}

package revalidate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/corliansa/deploy-webhook/pkg/config"
	"github.com/sirupsen/logrus"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestHTTPRevalidator_Success(t *testing.T) {
	var gotPath, gotAuth, gotContentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")

		var body revalidateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		gotPath = body.Path

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"revalidated":true}`))
	}))
	defer server.Close()

	r := NewHTTPRevalidator(server.URL, "tok", time.Second, newTestLogger())
	if err := r.Revalidate(context.Background(), "/index"); err != nil {
		t.Fatalf("Revalidate() failed: %v", err)
	}

	if gotPath != "/index" {
		t.Errorf("path = %s, want /index", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %s, want Bearer tok", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", gotContentType)
	}
}

func TestHTTPRevalidator_NoToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("Authorization = %q, want empty", auth)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	r := NewHTTPRevalidator(server.URL, "", time.Second, newTestLogger())
	if err := r.Revalidate(context.Background(), "/index"); err != nil {
		t.Errorf("Revalidate() failed: %v", err)
	}
}

func TestHTTPRevalidator_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer server.Close()

	r := NewHTTPRevalidator(server.URL, "bad", time.Second, newTestLogger())
	if err := r.Revalidate(context.Background(), "/index"); err == nil {
		t.Error("Revalidate() expected error for 401 response")
	}
}

func TestHTTPRevalidator_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	r := NewHTTPRevalidator(server.URL, "", 50*time.Millisecond, newTestLogger())
	if err := r.Revalidate(context.Background(), "/index"); err == nil {
		t.Error("Revalidate() expected timeout error")
	}
}

func TestNew(t *testing.T) {
	logger := newTestLogger()

	if _, err := New(&config.Config{}, logger); err == nil {
		t.Error("New() expected error without revalidate.url")
	}

	r, err := New(&config.Config{Revalidate: config.RevalidateConfig{URL: "http://localhost", Token: "tok", Timeout: "1s"}}, logger)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if r.url != "http://localhost" || r.token != "tok" || r.httpClient.Timeout != time.Second {
		t.Errorf("New() = %+v, want configured endpoint", r)
	}

	if _, err := New(&config.Config{Revalidate: config.RevalidateConfig{URL: "http://localhost", Timeout: "x"}}, logger); err == nil {
		t.Error("New() expected error for invalid timeout")
	}
}

// blockingRevalidator holds every call until release is closed
type blockingRevalidator struct {
	release chan struct{}
	err     error

	mu    sync.Mutex
	paths []string
}

func (b *blockingRevalidator) Revalidate(ctx context.Context, path string) error {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paths = append(b.paths, path)
	return b.err
}

// syncBuffer is a bytes.Buffer safe for the logger's background writes
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestAsync_ReturnsBeforeCompletion(t *testing.T) {
	next := &blockingRevalidator{release: make(chan struct{})}
	async := NewAsync(next, newTestLogger())

	if err := async.Revalidate(context.Background(), "/index"); err != nil {
		t.Fatalf("Revalidate() error = %v, want nil while upstream blocks", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := async.Wait(ctx); err == nil {
		t.Error("Wait() returned before the revalidation finished")
	}

	close(next.release)
	if err := async.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}

	next.mu.Lock()
	defer next.mu.Unlock()
	if len(next.paths) != 1 || next.paths[0] != "/index" {
		t.Errorf("revalidated %v, want [/index]", next.paths)
	}
}

func TestAsync_OutlivesRequestContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	out := &syncBuffer{}
	logger := logrus.New()
	logger.SetOutput(out)

	async := NewAsync(NewHTTPRevalidator(server.URL, "", time.Second, logger), logger)

	ctx, cancel := context.WithCancel(context.Background())
	if err := async.Revalidate(ctx, "/index"); err != nil {
		t.Fatalf("Revalidate() failed: %v", err)
	}
	cancel()

	if err := async.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	if strings.Contains(out.String(), "Revalidation failed") {
		t.Errorf("revalidation was cancelled with the request: %s", out.String())
	}
}

func TestAsync_LogsFailures(t *testing.T) {
	next := &blockingRevalidator{release: make(chan struct{}), err: errors.New("connection refused")}
	close(next.release)

	out := &syncBuffer{}
	logger := logrus.New()
	logger.SetOutput(out)

	async := NewAsync(next, logger)
	if err := async.Revalidate(context.Background(), "/index"); err != nil {
		t.Fatalf("Revalidate() error = %v, want nil", err)
	}
	if err := async.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}

	logged := out.String()
	if !strings.Contains(logged, "Revalidation failed") || !strings.Contains(logged, "connection refused") {
		t.Errorf("log = %q, want the revalidation failure", logged)
	}
}

func TestAsync_RejectsAfterWait(t *testing.T) {
	async := NewAsync(&blockingRevalidator{release: make(chan struct{})}, newTestLogger())

	if err := async.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	if err := async.Revalidate(context.Background(), "/index"); !errors.Is(err, ErrClosed) {
		t.Errorf("Revalidate() error = %v, want ErrClosed", err)
	}
}

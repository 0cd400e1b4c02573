package queue

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/corliansa/deploy-webhook/internal/models"
	"github.com/sirupsen/logrus"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestDeployQueue_FIFO(t *testing.T) {
	q := NewDeployQueue(3, newTestLogger())
	ctx := context.Background()

	for _, repo := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, &models.DeployRequest{Repository: repo}); err != nil {
			t.Fatalf("Enqueue(%s) failed: %v", repo, err)
		}
	}

	if q.Depth() != 3 {
		t.Errorf("Depth() = %d, want 3", q.Depth())
	}

	for _, want := range []string{"a", "b", "c"} {
		req, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue() failed: %v", err)
		}
		if req.Repository != want {
			t.Errorf("Dequeue() = %s, want %s", req.Repository, want)
		}
	}

	if q.Depth() != 0 {
		t.Errorf("Depth() = %d, want 0", q.Depth())
	}
}

func TestDeployQueue_Full(t *testing.T) {
	q := NewDeployQueue(1, newTestLogger())
	ctx := context.Background()

	if err := q.Enqueue(ctx, &models.DeployRequest{Repository: "a"}); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	err := q.Enqueue(ctx, &models.DeployRequest{Repository: "b"})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("Enqueue() error = %v, want ErrQueueFull", err)
	}
}

func TestDeployQueue_Closed(t *testing.T) {
	q := NewDeployQueue(2, newTestLogger())
	ctx := context.Background()

	if err := q.Enqueue(ctx, &models.DeployRequest{Repository: "a"}); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	q.Close()
	q.Close() // idempotent

	if err := q.Enqueue(ctx, &models.DeployRequest{Repository: "b"}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue() after Close error = %v, want ErrQueueClosed", err)
	}

	// Items queued before Close are still delivered
	req, err := q.Dequeue(ctx)
	if err != nil || req.Repository != "a" {
		t.Fatalf("Dequeue() = %v, %v, want a", req, err)
	}

	if _, err := q.Dequeue(ctx); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Dequeue() on drained closed queue error = %v, want ErrQueueClosed", err)
	}
}

func TestDeployQueue_DequeueCancelled(t *testing.T) {
	q := NewDeployQueue(1, newTestLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Dequeue() error = %v, want deadline exceeded", err)
	}
}

func TestWorkerPool_ProcessesAllRequests(t *testing.T) {
	logger := newTestLogger()
	q := NewDeployQueue(10, logger)

	var mu sync.Mutex
	seen := make(map[string]int)
	handler := func(ctx context.Context, req *models.DeployRequest) error {
		mu.Lock()
		defer mu.Unlock()
		seen[req.Repository]++
		return nil
	}

	pool := NewWorkerPool(q, 3, handler, logger)
	pool.Start()

	for _, repo := range []string{"a", "b", "c", "d"} {
		if err := q.Enqueue(context.Background(), &models.DeployRequest{Repository: repo, QueuedAt: time.Now()}); err != nil {
			t.Fatalf("Enqueue() failed: %v", err)
		}
	}

	if err := pool.Stop(5 * time.Second); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, repo := range []string{"a", "b", "c", "d"} {
		if seen[repo] != 1 {
			t.Errorf("repository %s processed %d times, want 1", repo, seen[repo])
		}
	}
}

func TestWorkerPool_RecoversFromPanicAndErrors(t *testing.T) {
	logger := newTestLogger()
	q := NewDeployQueue(10, logger)

	var processed int64
	handler := func(ctx context.Context, req *models.DeployRequest) error {
		atomic.AddInt64(&processed, 1)
		switch req.Repository {
		case "panic":
			panic("boom")
		case "fail":
			return errors.New("command failed")
		}
		return nil
	}

	pool := NewWorkerPool(q, 1, handler, logger)
	pool.Start()

	for _, repo := range []string{"panic", "fail", "ok"} {
		if err := q.Enqueue(context.Background(), &models.DeployRequest{Repository: repo}); err != nil {
			t.Fatalf("Enqueue() failed: %v", err)
		}
	}

	if err := pool.Stop(5 * time.Second); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}

	if got := atomic.LoadInt64(&processed); got != 3 {
		t.Errorf("processed = %d, want 3", got)
	}

	stats := pool.Stats()
	if stats.InFlight != 0 || stats.QueueDepth != 0 {
		t.Errorf("Stats() = %+v, want idle pool", stats)
	}
}

func TestWorkerPool_StopTimeout(t *testing.T) {
	logger := newTestLogger()
	q := NewDeployQueue(1, logger)

	release := make(chan struct{})
	started := make(chan struct{})
	handler := func(ctx context.Context, req *models.DeployRequest) error {
		close(started)
		<-release
		return nil
	}

	pool := NewWorkerPool(q, 1, handler, logger)
	pool.Start()
	defer close(release)

	if err := q.Enqueue(context.Background(), &models.DeployRequest{Repository: "slow"}); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	<-started

	if err := pool.Stop(20 * time.Millisecond); err == nil {
		t.Error("Stop() expected timeout error while a deployment is running")
	}
}

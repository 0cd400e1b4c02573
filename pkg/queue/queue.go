package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/corliansa/deploy-webhook/internal/models"
	"github.com/sirupsen/logrus"
)

var (
	// ErrQueueFull is returned by Enqueue when no buffer slot is free
	ErrQueueFull = errors.New("deploy queue is full")

	// ErrQueueClosed is returned once Close has been called
	ErrQueueClosed = errors.New("deploy queue is closed")
)

// DeployQueue is a bounded in-memory FIFO of deploy requests
type DeployQueue struct {
	queue    chan *models.DeployRequest
	capacity int
	depth    int64 // atomic
	logger   *logrus.Logger
	mu       sync.RWMutex
	closed   bool
}

// NewDeployQueue creates a new deploy queue with the specified capacity
func NewDeployQueue(capacity int, logger *logrus.Logger) *DeployQueue {
	return &DeployQueue{
		queue:    make(chan *models.DeployRequest, capacity),
		capacity: capacity,
		logger:   logger,
	}
}

// Enqueue adds a deploy request without blocking.
// Returns ErrQueueFull or ErrQueueClosed when the request cannot be accepted.
func (q *DeployQueue) Enqueue(ctx context.Context, req *models.DeployRequest) error {
	// Hold the read lock across the send so Close cannot close the channel under us
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.queue <- req:
		depth := atomic.AddInt64(&q.depth, 1)
		q.logger.WithFields(logrus.Fields{
			"repository":  req.Repository,
			"delivery_id": req.DeliveryID,
			"queue_depth": depth,
		}).Debug("Deploy request enqueued")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue cancelled: %w", ctx.Err())
	default:
		return fmt.Errorf("%w (capacity: %d)", ErrQueueFull, q.capacity)
	}
}

// Dequeue removes and returns a deploy request from the queue (FIFO).
// Blocks until a request is available, the queue is closed and drained, or ctx is cancelled.
func (q *DeployQueue) Dequeue(ctx context.Context) (*models.DeployRequest, error) {
	select {
	case req, ok := <-q.queue:
		if !ok {
			return nil, ErrQueueClosed
		}
		atomic.AddInt64(&q.depth, -1)
		return req, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("dequeue cancelled: %w", ctx.Err())
	}
}

// Depth returns the current number of items in the queue
func (q *DeployQueue) Depth() int {
	return int(atomic.LoadInt64(&q.depth))
}

// Close closes the queue, preventing new enqueues.
// Existing items remain in the queue for processing.
func (q *DeployQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.queue)
		q.logger.Info("Deploy queue closed")
	}
}

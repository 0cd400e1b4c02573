package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corliansa/deploy-webhook/internal/models"
	"github.com/sirupsen/logrus"
)

// DeployHandler processes one deploy request
type DeployHandler func(ctx context.Context, req *models.DeployRequest) error

// WorkerPool manages a pool of worker goroutines that process deploy requests
type WorkerPool struct {
	queue    *DeployQueue
	workers  int
	handler  DeployHandler
	logger   *logrus.Logger
	wg       sync.WaitGroup
	stopOnce sync.Once
	inFlight int64 // atomic
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(queue *DeployQueue, workers int, handler DeployHandler, logger *logrus.Logger) *WorkerPool {
	return &WorkerPool{
		queue:   queue,
		workers: workers,
		handler: handler,
		logger:  logger,
	}
}

// Start starts all worker goroutines
func (wp *WorkerPool) Start() {
	wp.logger.WithFields(logrus.Fields{
		"workers": wp.workers,
	}).Info("Starting worker pool")

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the queue and waits for workers to drain it.
// Commands already running are not interrupted; Stop gives up waiting after timeout.
func (wp *WorkerPool) Stop(timeout time.Duration) error {
	var stopErr error

	wp.stopOnce.Do(func() {
		wp.logger.Info("Stopping worker pool")

		wp.queue.Close()

		done := make(chan struct{})
		go func() {
			wp.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			wp.logger.Info("All workers stopped gracefully")
		case <-time.After(timeout):
			stopErr = fmt.Errorf("worker pool shutdown timeout after %v", timeout)
			wp.logger.WithField("in_flight", wp.InFlight()).Warn("Worker pool shutdown timeout, some deployments may still be running")
		}
	})

	return stopErr
}

// worker processes deploy requests until the queue is closed and drained
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	workerLogger := wp.logger.WithField("worker_id", id)
	workerLogger.Debug("Worker started")

	for {
		req, err := wp.queue.Dequeue(context.Background())
		if err != nil {
			if !errors.Is(err, ErrQueueClosed) {
				workerLogger.WithError(err).Debug("Dequeue error")
			}
			workerLogger.Debug("Worker stopping")
			return
		}

		wp.process(workerLogger, req)
	}
}

// process runs a single deploy request, recovering from handler panics
func (wp *WorkerPool) process(logger *logrus.Entry, req *models.DeployRequest) {
	atomic.AddInt64(&wp.inFlight, 1)
	defer atomic.AddInt64(&wp.inFlight, -1)

	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"repository":  req.Repository,
				"delivery_id": req.DeliveryID,
				"panic":       r,
			}).Error("Worker panic recovered")
		}
	}()

	logger.WithFields(logrus.Fields{
		"repository":  req.Repository,
		"delivery_id": req.DeliveryID,
		"queued_for":  time.Since(req.QueuedAt).String(),
	}).Info("Processing deploy request")

	if err := wp.handler(context.Background(), req); err != nil {
		logger.WithFields(logrus.Fields{
			"repository":  req.Repository,
			"delivery_id": req.DeliveryID,
			"error":       err.Error(),
		}).Error("Deploy processing failed")
		return
	}

	logger.WithFields(logrus.Fields{
		"repository":  req.Repository,
		"delivery_id": req.DeliveryID,
	}).Info("Deploy processing completed")
}

// InFlight returns the number of deploy requests currently being processed
func (wp *WorkerPool) InFlight() int {
	return int(atomic.LoadInt64(&wp.inFlight))
}

// Stats returns worker pool statistics
func (wp *WorkerPool) Stats() WorkerPoolStats {
	return WorkerPoolStats{
		Workers:    wp.workers,
		InFlight:   wp.InFlight(),
		QueueDepth: wp.queue.Depth(),
	}
}

// WorkerPoolStats represents worker pool statistics
type WorkerPoolStats struct {
	Workers    int
	InFlight   int
	QueueDepth int
}

package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/corliansa/deploy-webhook/internal/models"
	"github.com/corliansa/deploy-webhook/pkg/metrics"
	"github.com/corliansa/deploy-webhook/pkg/queue"
	"github.com/sirupsen/logrus"
)

// Trigger starts a deployment without waiting for it to finish.
// A returned error means the deployment could not be started at all.
type Trigger interface {
	Trigger(ctx context.Context, req *models.DeployRequest) error
}

// DispatchError reports a deployment that could not be handed off
type DispatchError struct {
	Repository string
	Err        error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch failed for repository %s: %v", e.Repository, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// QueueTrigger hands deploy requests to the worker pool's queue
type QueueTrigger struct {
	queue  *queue.DeployQueue
	logger *logrus.Logger
}

// NewQueueTrigger creates a trigger backed by a deploy queue
func NewQueueTrigger(q *queue.DeployQueue, logger *logrus.Logger) *QueueTrigger {
	return &QueueTrigger{
		queue:  q,
		logger: logger,
	}
}

// Trigger enqueues the request without blocking on its execution
func (t *QueueTrigger) Trigger(ctx context.Context, req *models.DeployRequest) error {
	req.QueuedAt = time.Now()

	if err := t.queue.Enqueue(ctx, req); err != nil {
		metrics.RecordDispatch(req.Repository, "rejected")
		return &DispatchError{Repository: req.Repository, Err: err}
	}

	metrics.RecordDispatch(req.Repository, "queued")
	t.logger.WithFields(logrus.Fields{
		"repository":  req.Repository,
		"delivery_id": req.DeliveryID,
	}).Info("Deployment queued")

	return nil
}

// Handler adapts a CommandRunner to the worker pool
func Handler(runner *CommandRunner) queue.DeployHandler {
	return func(ctx context.Context, req *models.DeployRequest) error {
		_, err := runner.Run(ctx, req)
		return err
	}
}

package models

import (
	"time"
)

// DeployRequest represents one queued deployment for a repository
type DeployRequest struct {
	// Repository name from the payload, used as Action Table key
	Repository string

	// Shell command resolved from the Action Table
	Command string

	// Working directory from the action, overriding deploy.workdir_base
	Workdir string

	// Delivery ID for tracing
	DeliveryID string

	// Timestamps
	ReceivedAt time.Time
	QueuedAt   time.Time
}

// DeployResult represents the outcome of running a deployment command
type DeployResult struct {
	Repository string
	DeliveryID string

	Status      DeployStatus
	ExitCode    int
	Output      string // Command stdout
	ErrorOutput string // Command stderr

	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration

	Error string
}

// DeployStatus represents the status of a deployment command
type DeployStatus string

const (
	DeployStatusRunning DeployStatus = "running"
	DeployStatusSuccess DeployStatus = "success"
	DeployStatusFailed  DeployStatus = "failed"
	DeployStatusTimeout DeployStatus = "timeout"
)

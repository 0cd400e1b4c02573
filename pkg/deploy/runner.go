package deploy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/corliansa/deploy-webhook/internal/models"
	"github.com/corliansa/deploy-webhook/pkg/config"
	"github.com/corliansa/deploy-webhook/pkg/metrics"
	"github.com/sirupsen/logrus"
)

const waitDelay = 5 * time.Second

// CommandRunner executes deployment commands through a shell
type CommandRunner struct {
	shell       string
	workdirBase string
	timeout     time.Duration // zero means no timeout
	logger      *logrus.Logger
}

// NewCommandRunner creates a runner from the deploy configuration
func NewCommandRunner(cfg *config.Config, logger *logrus.Logger) (*CommandRunner, error) {
	var timeout time.Duration
	if cfg.Deploy.CommandTimeout != "" {
		d, err := cfg.ParseDuration(cfg.Deploy.CommandTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid deploy.command_timeout: %w", err)
		}
		timeout = d
	}

	return &CommandRunner{
		shell:       cfg.Deploy.Shell,
		workdirBase: cfg.Deploy.WorkdirBase,
		timeout:     timeout,
		logger:      logger,
	}, nil
}

// ValidateConfig checks that the configured shell is executable
func (r *CommandRunner) ValidateConfig() error {
	if _, err := exec.LookPath(r.shell); err != nil {
		return fmt.Errorf("deploy shell not found at %s: %w", r.shell, err)
	}
	return nil
}

// Run executes the request's command to completion and reports the outcome.
// A non-zero exit status is returned as an error.
func (r *CommandRunner) Run(ctx context.Context, req *models.DeployRequest) (*models.DeployResult, error) {
	startTime := time.Now()

	result := &models.DeployResult{
		Repository: req.Repository,
		DeliveryID: req.DeliveryID,
		Status:     models.DeployStatusRunning,
		StartedAt:  startTime,
	}

	logger := r.logger.WithFields(logrus.Fields{
		"repository":  req.Repository,
		"delivery_id": req.DeliveryID,
	})
	logger.Info("Starting deployment command")

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := r.buildCommand(ctx, req)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result.Output = stdout.String()
	result.ErrorOutput = stderr.String()
	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(startTime)

	if err != nil {
		result.ExitCode = exitCode(err)
		result.Error = err.Error()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result.Status = models.DeployStatusTimeout
			logger.WithField("duration", result.Duration.String()).Warn("Deployment command timeout")
			r.record(req.Repository, result)
			return result, fmt.Errorf("deployment command timeout after %v", r.timeout)
		}

		result.Status = models.DeployStatusFailed
		logger.WithFields(logrus.Fields{
			"error":     err.Error(),
			"exit_code": result.ExitCode,
			"stderr":    result.ErrorOutput,
		}).Error("Deployment command failed")
		r.record(req.Repository, result)
		return result, fmt.Errorf("deployment command failed: %w", err)
	}

	result.Status = models.DeployStatusSuccess
	logger.WithFields(logrus.Fields{
		"duration":  result.Duration.String(),
		"exit_code": 0,
	}).Info("Deployment command completed successfully")
	r.record(req.Repository, result)

	return result, nil
}

// buildCommand constructs "<shell> -c <command>" in the request's working directory
func (r *CommandRunner) buildCommand(ctx context.Context, req *models.DeployRequest) *exec.Cmd {
	cmd := exec.CommandContext(ctx, r.shell, "-c", req.Command)
	// Children that outlive a killed shell must not hold Run open on their pipes
	cmd.WaitDelay = waitDelay

	switch {
	case req.Workdir != "":
		cmd.Dir = req.Workdir
	case r.workdirBase != "":
		cmd.Dir = filepath.Join(r.workdirBase, req.Repository)
	}

	return cmd
}

func (r *CommandRunner) record(repository string, result *models.DeployResult) {
	metrics.RecordDispatch(repository, string(result.Status))
	metrics.RecordDeployDuration(repository, string(result.Status), result.Duration.Seconds())
}

// exitCode extracts the exit code from an exec.ExitError
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// CleanupFunc performs cleanup for one component during shutdown
type CleanupFunc func(ctx context.Context) error

type cleanup struct {
	name string
	fn   CleanupFunc
}

// Manager runs registered cleanups in registration order when the process stops
type Manager struct {
	logger         *logrus.Logger
	cleanups       []cleanup
	mu             sync.Mutex
	isShuttingDown bool
}

// NewManager creates a new shutdown manager
func NewManager(logger *logrus.Logger) *Manager {
	return &Manager{
		logger: logger,
	}
}

// RegisterCleanup adds a named cleanup step
func (m *Manager) RegisterCleanup(name string, fn CleanupFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cleanups = append(m.cleanups, cleanup{name: name, fn: fn})
}

// Shutdown runs every cleanup in order, continuing past failures.
// It returns the joined errors, including ctx expiry if the deadline passed.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.isShuttingDown {
		m.mu.Unlock()
		return nil
	}
	m.isShuttingDown = true
	cleanups := append([]cleanup(nil), m.cleanups...)
	m.mu.Unlock()

	m.logger.Info("Starting graceful shutdown")
	start := time.Now()

	var errs []error
	for _, c := range cleanups {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("shutdown deadline reached before %s: %w", c.name, err))
			break
		}

		m.logger.WithField("handler", c.name).Info("Executing shutdown handler")
		stepStart := time.Now()

		if err := c.fn(ctx); err != nil {
			m.logger.WithFields(logrus.Fields{
				"handler":  c.name,
				"duration": time.Since(stepStart).Seconds(),
				"error":    err.Error(),
			}).Error("Shutdown handler failed")
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			continue
		}

		m.logger.WithFields(logrus.Fields{
			"handler":  c.name,
			"duration": time.Since(stepStart).Seconds(),
		}).Info("Shutdown handler completed")
	}

	if len(errs) > 0 {
		m.logger.WithFields(logrus.Fields{
			"duration": time.Since(start).Seconds(),
			"errors":   len(errs),
		}).Warn("Shutdown completed with errors")
		return errors.Join(errs...)
	}

	m.logger.WithField("duration", time.Since(start).Seconds()).Info("Shutdown completed successfully")
	return nil
}

// IsShuttingDown returns true if shutdown has been initiated
func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isShuttingDown
}

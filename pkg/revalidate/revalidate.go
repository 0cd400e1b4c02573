package revalidate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/corliansa/deploy-webhook/pkg/config"
	"github.com/corliansa/deploy-webhook/pkg/metrics"
	"github.com/sirupsen/logrus"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"

	ContentTypeJSON = "application/json"
)

// ErrClosed is returned by Async once it has started draining
var ErrClosed = errors.New("revalidator closed")

// Revalidator asks the caching layer in front of the site to regenerate a page
type Revalidator interface {
	Revalidate(ctx context.Context, path string) error
}

// New returns the HTTP revalidator for revalidate.url
func New(cfg *config.Config, logger *logrus.Logger) (*HTTPRevalidator, error) {
	if cfg.Revalidate.URL == "" {
		return nil, fmt.Errorf("revalidate.url is required")
	}

	timeout, err := cfg.ParseDuration(cfg.Revalidate.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid revalidate.timeout: %w", err)
	}

	return NewHTTPRevalidator(cfg.Revalidate.URL, cfg.Revalidate.Token, timeout, logger), nil
}

// HTTPRevalidator posts the stale path to the site's revalidation endpoint
type HTTPRevalidator struct {
	httpClient *http.Client
	url        string
	token      string
	logger     *logrus.Logger
}

// NewHTTPRevalidator creates a revalidator for the given endpoint
func NewHTTPRevalidator(url, token string, timeout time.Duration, logger *logrus.Logger) *HTTPRevalidator {
	return &HTTPRevalidator{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
		token:      token,
		logger:     logger,
	}
}

type revalidateRequest struct {
	Path string `json:"path"`
}

// Revalidate sends {"path": path} and expects a 2xx answer
func (r *HTTPRevalidator) Revalidate(ctx context.Context, path string) error {
	body, err := json.Marshal(revalidateRequest{Path: path})
	if err != nil {
		return fmt.Errorf("failed to encode revalidation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(HeaderContentType, ContentTypeJSON)
	if r.token != "" {
		req.Header.Set(HeaderAuthorization, "Bearer "+r.token)
	}

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		metrics.RecordRevalidation("error")
		return fmt.Errorf("revalidation request failed: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordRevalidation("rejected")
		return fmt.Errorf("revalidation returned status %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}

	metrics.RecordRevalidation("success")
	r.logger.WithFields(logrus.Fields{
		"path":        path,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Revalidation requested")

	return nil
}

// Async runs revalidations in the background so a slow caching layer never
// holds up the webhook response. Failures are logged, not returned.
type Async struct {
	next   Revalidator
	logger *logrus.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsync wraps next so Revalidate returns as soon as the request is started
func NewAsync(next Revalidator, logger *logrus.Logger) *Async {
	return &Async{next: next, logger: logger}
}

// Revalidate starts the revalidation and returns nil once it is in flight.
// The request outlives ctx cancellation but keeps its values.
func (a *Async) Revalidate(ctx context.Context, path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		if err := a.next.Revalidate(context.WithoutCancel(ctx), path); err != nil {
			a.logger.WithError(err).WithField("path", path).Warn("Revalidation failed")
		}
	}()

	return nil
}

// Wait stops accepting revalidations and blocks until in-flight ones finish
// or ctx is done
func (a *Async) Wait(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("revalidations still in flight: %w", ctx.Err())
	}
}

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/corliansa/deploy-webhook/internal/models"
	"github.com/corliansa/deploy-webhook/pkg/auth"
	"github.com/corliansa/deploy-webhook/pkg/config"
	"github.com/corliansa/deploy-webhook/pkg/deploy"
	"github.com/corliansa/deploy-webhook/pkg/logging"
	"github.com/corliansa/deploy-webhook/pkg/metrics"
	"github.com/corliansa/deploy-webhook/pkg/revalidate"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Response messages
const (
	MessageSuccess          = "Success"
	MessageRepoNotSupported = "Repo not supported."
	MessageInvalidMethod    = "Only POST requests are allowed"
	MessageInvalidSignature = "Invalid signature"
	MessageInvalidSender    = "Invalid sender"
	MessageInvalidEvent     = "Invalid event"
	MessageInvalidPayload   = "Invalid payload"
	MessageBodyTooLarge     = "Request body too large"
	MessageBodyUnreadable   = "Failed to read request body"
)

// gate is one named validation check with the 401 message it answers with
type gate struct {
	name    string
	message string
	passed  bool
}

// Handler authenticates push deliveries and dispatches the matching deployment
type Handler struct {
	webhook        config.WebhookConfig
	revalidatePath string
	actions        *deploy.ActionTable
	trigger        deploy.Trigger
	revalidator    revalidate.Revalidator
	logger         *logrus.Logger
}

// NewHandler creates the webhook handler. It refuses to run without a secret.
func NewHandler(cfg *config.Config, actions *deploy.ActionTable, trigger deploy.Trigger, revalidator revalidate.Revalidator, logger *logrus.Logger) (*Handler, error) {
	if cfg.Webhook.Secret == "" {
		return nil, fmt.Errorf("webhook secret is not configured")
	}
	if actions == nil || trigger == nil || revalidator == nil {
		return nil, fmt.Errorf("webhook handler requires an action table, trigger and revalidator")
	}

	return &Handler{
		webhook:        cfg.Webhook,
		revalidatePath: cfg.Revalidate.Path,
		actions:        actions,
		trigger:        trigger,
		revalidator:    revalidator,
		logger:         logger,
	}, nil
}

// ServeHTTP handles a single delivery
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deliveryID := r.Header.Get(h.webhook.DeliveryHeader)
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}

	logger := logging.WithDeliveryID(h.logger, deliveryID).WithField("remote_addr", r.RemoteAddr)

	if h.webhook.ValidationMode == config.ValidationModeCompat {
		h.serveCompat(w, r, deliveryID, logger)
		return
	}
	h.serveStrict(w, r, deliveryID, logger)
}

// serveStrict answers 401 at the first failing gate and only deploys when all pass
func (h *Handler) serveStrict(w http.ResponseWriter, r *http.Request, deliveryID string, logger *logrus.Entry) {
	// The method gate needs no body, so it runs first
	if g := h.methodGate(r); !g.passed {
		h.reject(w, logger, g)
		return
	}

	body, ok := h.readBody(w, r, logger)
	if !ok {
		return
	}

	if g := h.signatureGate(r, body); !g.passed {
		h.reject(w, logger, g)
		return
	}

	payload, ok := h.parsePayload(w, body, logger)
	if !ok {
		return
	}

	for _, g := range []gate{h.senderGate(payload), h.eventGate(payload)} {
		if !g.passed {
			h.reject(w, logger, g)
			return
		}
	}

	resp := h.dispatch(r.Context(), payload, deliveryID, logger)
	resp.Result = boolPtr(true)

	metrics.RecordRequest("accepted")
	writeJSON(w, http.StatusOK, resp)
}

// serveCompat evaluates every gate, deploys whenever the signature is valid and
// always answers 200 with the signature outcome as result
func (h *Handler) serveCompat(w http.ResponseWriter, r *http.Request, deliveryID string, logger *logrus.Entry) {
	body, ok := h.readBody(w, r, logger)
	if !ok {
		return
	}

	signature := h.signatureGate(r, body)

	payload, ok := h.parsePayload(w, body, logger)
	if !ok {
		return
	}

	gates := []gate{
		h.methodGate(r),
		signature,
		h.senderGate(payload),
		h.eventGate(payload),
	}

	for _, g := range gates {
		if !g.passed {
			h.logGateFailure(logger, g)
		}
	}

	resp := models.Response{Message: MessageSuccess}
	if signature.passed {
		resp = h.dispatch(r.Context(), payload, deliveryID, logger)
	}
	resp.Result = boolPtr(signature.passed)

	if signature.passed {
		metrics.RecordRequest("accepted")
	} else {
		metrics.RecordRequest("rejected")
	}
	writeJSON(w, http.StatusOK, resp)
}

// dispatch revalidates the site and dispatches the repository's action.
// Dispatch failures are logged and never change the response.
func (h *Handler) dispatch(ctx context.Context, payload *models.WebhookPayload, deliveryID string, logger *logrus.Entry) models.Response {
	repo := payload.Repository.Name
	resp := models.Response{
		Message: MessageSuccess,
		Repo:    stringPtr(repo),
	}

	if err := h.revalidator.Revalidate(ctx, h.revalidatePath); err != nil {
		logger.WithError(err).WithField("path", h.revalidatePath).Warn("Revalidation failed")
		resp.Revalidate = boolPtr(false)
	} else {
		resp.Revalidate = boolPtr(true)
	}

	action, ok := h.actions.Lookup(repo)
	if !ok {
		logger.WithField("repository", repo).Info("No action configured for repository")
		metrics.RecordDispatch(repo, "unsupported")
		resp.Exec = boolPtr(false)
		resp.Message = MessageRepoNotSupported
		return resp
	}

	req := &models.DeployRequest{
		Repository: action.Repository,
		Command:    action.Command,
		Workdir:    action.Workdir,
		DeliveryID: deliveryID,
		ReceivedAt: time.Now(),
	}
	if err := h.trigger.Trigger(ctx, req); err != nil {
		logger.WithError(err).WithField("repository", repo).Error("Failed to dispatch deployment")
	}
	resp.Exec = boolPtr(true)

	return resp
}

func (h *Handler) methodGate(r *http.Request) gate {
	return gate{name: "method", message: MessageInvalidMethod, passed: r.Method == http.MethodPost}
}

func (h *Handler) signatureGate(r *http.Request, body []byte) gate {
	signature := r.Header.Get(h.webhook.SignatureHeader)
	return gate{name: "signature", message: MessageInvalidSignature, passed: auth.VerifySignature(body, signature, h.webhook.Secret)}
}

func (h *Handler) senderGate(payload *models.WebhookPayload) gate {
	return gate{name: "sender", message: MessageInvalidSender, passed: payload.Sender.Login == h.webhook.ExpectedSender}
}

func (h *Handler) eventGate(payload *models.WebhookPayload) gate {
	return gate{name: "event", message: MessageInvalidEvent, passed: payload.HasEvent(h.webhook.RequiredEvent)}
}

// readBody captures the raw body, answering 413 or 400 when it cannot be read
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request, logger *logrus.Entry) ([]byte, bool) {
	body, err := auth.ReadBody(r)
	if err == nil {
		return body, true
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		logger.WithField("limit", maxBytesErr.Limit).Warn("Request body too large")
		metrics.RecordRequest("too_large")
		writeJSON(w, http.StatusRequestEntityTooLarge, models.Response{Message: MessageBodyTooLarge})
		return nil, false
	}

	logger.WithError(err).Warn("Failed to read request body")
	metrics.RecordRequest("unreadable")
	writeJSON(w, http.StatusBadRequest, models.Response{Message: MessageBodyUnreadable})
	return nil, false
}

// parsePayload decodes the raw body, answering 400 only when it is not JSON.
// Wrongly typed fields are left empty for the gates to reject.
func (h *Handler) parsePayload(w http.ResponseWriter, body []byte, logger *logrus.Entry) (*models.WebhookPayload, bool) {
	payload, err := models.ParsePayload(body)
	if err != nil {
		logger.WithError(err).Warn("Malformed webhook payload")
		metrics.RecordRequest("malformed")
		writeJSON(w, http.StatusBadRequest, models.Response{Message: MessageInvalidPayload})
		return nil, false
	}
	return payload, true
}

func (h *Handler) reject(w http.ResponseWriter, logger *logrus.Entry, g gate) {
	h.logGateFailure(logger, g)
	metrics.RecordRequest("rejected")
	writeJSON(w, http.StatusUnauthorized, models.Response{Message: g.message})
}

func (h *Handler) logGateFailure(logger *logrus.Entry, g gate) {
	metrics.RecordGateFailure(g.name)
	logger.WithField("gate", g.name).Warn(g.message)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func boolPtr(b bool) *bool {
	return &b
}

func stringPtr(s string) *string {
	return &s
}

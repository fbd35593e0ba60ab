package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"

	"github.com/clintrovert/boardbridge/internal/dispatch"
	"github.com/clintrovert/boardbridge/pkg/types"
)

// maxPayloadBytes matches the GitHub webhook payload cap
const maxPayloadBytes = 25 << 20

// Dispatcher handles decoded events
type Dispatcher interface {
	Dispatch(ctx context.Context, ev types.Event) dispatch.Outcome
}

// Handler handles GitHub webhook deliveries
type Handler struct {
	dispatcher Dispatcher
	secret     []byte
	logger     *zap.Logger
}

// NewHandler creates a new webhook handler. Signatures are checked only
// when secret is set
func NewHandler(dispatcher Dispatcher, secret string, logger *zap.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		secret:     []byte(secret),
		logger:     logger,
	}
}

// WebhookResponse acknowledges a delivery
type WebhookResponse struct {
	DeliveryID string `json:"delivery_id,omitempty"`
	Outcome    string `json:"outcome"`
}

// Webhook handles POST /api/Webhook
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	eventType := github.WebHookType(r)
	deliveryID := github.DeliveryID(r)
	logger := h.logger.With(
		zap.String("delivery_id", deliveryID),
		zap.String("event", eventType),
	)

	r.Body = http.MaxBytesReader(w, r.Body, maxPayloadBytes)

	var payload []byte
	var err error
	if len(h.secret) > 0 {
		payload, err = github.ValidatePayload(r, h.secret)
		if err != nil {
			logger.Warn("rejected webhook delivery", zap.Error(err))
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	} else {
		payload, err = io.ReadAll(r.Body)
		if err != nil {
			logger.Warn("failed to read webhook delivery", zap.Error(err))
			writeResponse(w, deliveryID, dispatch.OutcomeIgnored)
			return
		}
	}

	// Malformed deliveries are acknowledged so GitHub does not retry them
	ev, err := DecodeEvent(eventType, payload)
	if err != nil {
		logger.Warn("ignoring malformed webhook delivery", zap.Error(err))
		writeResponse(w, deliveryID, dispatch.OutcomeIgnored)
		return
	}

	// GitHub drops the connection after its own timeout; the work continues
	ctx := dispatch.WithLogger(context.WithoutCancel(r.Context()), logger)
	outcome := h.dispatcher.Dispatch(ctx, ev)

	writeResponse(w, deliveryID, outcome)
}

func writeResponse(w http.ResponseWriter, deliveryID string, outcome dispatch.Outcome) {
	resp := WebhookResponse{
		DeliveryID: deliveryID,
		Outcome:    string(outcome),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// RegisterRoutes registers REST API routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/Webhook", h.Webhook)
}

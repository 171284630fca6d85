package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"moysklad-sync-layer/internal/application"
	"moysklad-sync-layer/internal/domain"
)

// maxWebhookBody bounds inbound notification bodies.
const maxWebhookBody = 1 << 20

// processTimeout bounds background processing of one notification.
const processTimeout = 5 * time.Minute

// WebhookHandler is the public receiver the platform posts notifications to.
type WebhookHandler struct {
	webhooks *application.WebhookService
	logger   zerolog.Logger
}

// NewWebhookHandler creates the receiver.
func NewWebhookHandler(webhooks *application.WebhookService, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, logger: logger}
}

// Receive accepts one notification. The platform retries non-2xx responses,
// so acceptance is acknowledged as soon as the log row is durable and the
// sync pipeline runs in the background.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	requestID := r.URL.Query().Get("requestId")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	log, err := h.webhooks.Receive(r.Context(), requestID, body)
	switch {
	case errors.Is(err, domain.ErrMalformedPayload):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, domain.ErrDuplicateRequest):
		writeError(w, http.StatusConflict, "duplicate request")
		return
	case err != nil:
		h.logger.Error().Err(err).Str("requestId", requestID).Msg("Failed to accept webhook")
		writeError(w, http.StatusInternalServerError, "failed to accept webhook")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		if err := h.webhooks.Process(ctx, log); err != nil {
			h.logger.Error().Err(err).Str("requestId", log.RequestID).Msg("Webhook processing failed")
		}
	}()

	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

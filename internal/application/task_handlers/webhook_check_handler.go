package task_handlers

import (
	"context"

	"github.com/rs/zerolog"

	"moysklad-sync-layer/internal/application"
	"moysklad-sync-layer/internal/domain"
)

// WebhookCheckHandler runs the periodic registration existence check for one
// account and heals whatever the check found critical.
type WebhookCheckHandler struct {
	health *application.HealthService
	logger zerolog.Logger
}

// NewWebhookCheckHandler creates the handler.
func NewWebhookCheckHandler(health *application.HealthService, logger zerolog.Logger) *WebhookCheckHandler {
	return &WebhookCheckHandler{health: health, logger: logger}
}

func (h *WebhookCheckHandler) Category() domain.EntityCategory {
	return domain.CategoryWebhookCheck
}

func (h *WebhookCheckHandler) Handle(ctx context.Context, task *domain.SyncTask) error {
	if err := h.health.CheckRegistrations(ctx, task.AccountID); err != nil {
		return err
	}
	result, err := h.health.AutoHeal(ctx, task.AccountID)
	if err != nil {
		return err
	}
	if len(result.Healed) > 0 || len(result.Failed) > 0 {
		h.logger.Info().
			Str("accountId", task.AccountID).
			Strs("healed", result.Healed).
			Strs("failed", result.Failed).
			Msg("Webhook check finished with heals")
	}
	return nil
}

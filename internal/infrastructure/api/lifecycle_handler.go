package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"moysklad-sync-layer/internal/application"
	"moysklad-sync-layer/internal/domain"
	"moysklad-sync-layer/internal/ports"
)

// ClientInvalidator drops a cached platform client after its token changes.
type ClientInvalidator interface {
	Invalidate(accountID string)
}

// LifecycleHandler receives the platform's app lifecycle callbacks: install
// with an access token, suspend, resume and uninstall.
type LifecycleHandler struct {
	accounts    ports.AccountRepository
	encryption  ports.EncryptionService
	health      *application.HealthService
	invalidator ClientInvalidator
	logger      zerolog.Logger
}

// NewLifecycleHandler creates the handler.
func NewLifecycleHandler(
	accounts ports.AccountRepository,
	encryption ports.EncryptionService,
	health *application.HealthService,
	invalidator ClientInvalidator,
	logger zerolog.Logger,
) *LifecycleHandler {
	return &LifecycleHandler{
		accounts:    accounts,
		encryption:  encryption,
		health:      health,
		invalidator: invalidator,
		logger:      logger,
	}
}

type activateRequest struct {
	Role   string `json:"role"`
	Access []struct {
		AccessToken string `json:"access_token"`
	} `json:"access"`
}

// Activate installs or re-activates the app on an account. The token is
// encrypted before it touches storage; registrations are ensured once the
// account is saved.
func (h *LifecycleHandler) Activate(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Access) == 0 || req.Access[0].AccessToken == "" {
		writeError(w, http.StatusBadRequest, "access token is required")
		return
	}
	role := domain.AccountRole(req.Role)
	if role != domain.RoleMain && role != domain.RoleChild {
		writeError(w, http.StatusBadRequest, "role must be main or child")
		return
	}

	encrypted, err := h.encryption.Encrypt(req.Access[0].AccessToken)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encrypt access token")
		writeError(w, http.StatusInternalServerError, "failed to store credentials")
		return
	}

	account := &domain.Account{
		AccountID:      accountID,
		Role:           role,
		Status:         domain.StatusActivated,
		EncryptedToken: encrypted,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := h.accounts.Save(r.Context(), account); err != nil {
		h.logger.Error().Err(err).Str("accountId", accountID).Msg("Failed to save account")
		writeError(w, http.StatusInternalServerError, "failed to save account")
		return
	}
	h.invalidator.Invalidate(accountID)

	if err := h.health.EnsureRegistrations(r.Context(), accountID); err != nil {
		// The account is installed either way; the periodic check heals this.
		h.logger.Error().Err(err).Str("accountId", accountID).Msg("Failed to ensure registrations on activation")
	}

	h.logger.Info().Str("accountId", accountID).Str("role", string(role)).Msg("Account activated")
	writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.StatusActivated)})
}

// Deactivate handles suspend and uninstall callbacks.
func (h *LifecycleHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	account, err := h.accounts.GetByAccountID(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "unknown account")
		return
	}

	account.Status = domain.StatusUninstalled
	account.UpdatedAt = time.Now().UTC()
	if err := h.accounts.Save(r.Context(), account); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save account")
		return
	}
	h.invalidator.Invalidate(accountID)

	h.logger.Info().Str("accountId", accountID).Msg("Account uninstalled")
	writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.StatusUninstalled)})
}

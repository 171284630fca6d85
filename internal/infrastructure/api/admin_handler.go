package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"moysklad-sync-layer/internal/application"
	"moysklad-sync-layer/internal/domain"
)

// AdminHandler exposes the operator surface: backfills, queue dead letters
// and registration health.
type AdminHandler struct {
	tasks  *application.TaskService
	health *application.HealthService
	logger zerolog.Logger
}

// NewAdminHandler creates the handler.
func NewAdminHandler(tasks *application.TaskService, health *application.HealthService, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{tasks: tasks, health: health, logger: logger}
}

type backfillRequest struct {
	MainAccountID  string `json:"mainAccountId"`
	ChildAccountID string `json:"childAccountId"`
	Category       string `json:"category"`
}

// Backfill enqueues a full resync of one category for one child account.
func (h *AdminHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MainAccountID == "" || req.ChildAccountID == "" || req.Category == "" {
		writeError(w, http.StatusBadRequest, "mainAccountId, childAccountId and category are required")
		return
	}
	category, ok := domain.CategoryFromType(req.Category)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown category")
		return
	}

	count, err := h.tasks.EnqueueCategory(r.Context(), req.MainAccountID, req.ChildAccountID, category)
	if err != nil {
		h.logger.Error().Err(err).Str("category", req.Category).Msg("Backfill failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"entities": count})
}

// HealthReport returns the registration health of one account.
func (h *AdminHandler) HealthReport(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	report, err := h.health.Report(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// CheckHealth runs an on-demand existence check before reporting.
func (h *AdminHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if err := h.health.CheckRegistrations(r.Context(), accountID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	report, err := h.health.Report(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Heal recreates the account's lost webhook registrations.
func (h *AdminHandler) Heal(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	result, err := h.health.AutoHeal(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// FailedTasks lists an account's dead-lettered tasks.
func (h *AdminHandler) FailedTasks(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	limit := int64(50)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	tasks, err := h.tasks.ListFailed(r.Context(), accountID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// RetryTask puts one failed task back in the queue.
func (h *AdminHandler) RetryTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := h.tasks.Retry(r.Context(), taskID); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "requeued"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

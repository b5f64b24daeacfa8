package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/iach526526/pastexam/internal/aiexam"
	"github.com/iach526526/pastexam/internal/sqlinline"
)

type generateExamRequest struct {
	ArchiveIDs  []int64 `json:"archive_ids"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
}

// GenerateExam queues a practice exam generation task. One task per user may
// be pending or running at a time.
func (a *App) GenerateExam(w http.ResponseWriter, r *http.Request) {
	id, ok := a.currentUser(r)
	if !ok {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	var req generateExamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	taskID, err := a.Tasks.Submit(r.Context(), id.UserID, req.ArchiveIDs, req.Prompt, req.Temperature)
	switch {
	case errors.Is(err, aiexam.ErrInvalidRequest):
		a.error(w, http.StatusBadRequest, "bad_request", "archive_ids is required")
		return
	case errors.Is(err, aiexam.ErrConflict):
		a.error(w, http.StatusConflict, "conflict", "a generation task is already running")
		return
	case err != nil:
		a.Logger.Error().Err(err).Msg("submit generation task failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue task")
		return
	}

	if a.Metrics != nil {
		a.Metrics.TasksSubmitted.Inc()
	}
	a.json(w, http.StatusOK, map[string]any{
		"task_id": taskID,
		"status":  aiexam.StatusPending,
		"message": "task queued",
	})
}

// DeleteExamTask cancels and forgets a generation task owned by the caller.
func (a *App) DeleteExamTask(w http.ResponseWriter, r *http.Request) {
	id, ok := a.currentUser(r)
	if !ok {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	taskID := chi.URLParam(r, "id")
	err := a.Tasks.Delete(r.Context(), taskID, id.UserID)
	switch {
	case errors.Is(err, aiexam.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "task not found")
		return
	case errors.Is(err, aiexam.ErrForbidden):
		a.error(w, http.StatusForbidden, "forbidden", "task belongs to another user")
		return
	case err != nil:
		a.Logger.Error().Err(err).Msg("delete generation task failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete task")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "message": "task deleted"})
}

// GetGeminiKey reports whether a key is stored, exposing only its tail.
func (a *App) GetGeminiKey(w http.ResponseWriter, r *http.Request) {
	id, ok := a.currentUser(r)
	if !ok {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	var key string
	if err := a.SQL.QueryRow(r.Context(), sqlinline.QSelectUserGeminiKey, id.UserID).Scan(&key); err != nil {
		a.Logger.Error().Err(err).Msg("load gemini key failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load api key")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"configured": key != "",
		"masked_key": maskKey(key),
	})
}

type updateGeminiKeyRequest struct {
	APIKey string `json:"api_key"`
}

// UpdateGeminiKey stores or clears the caller's Gemini key. A non-empty key
// is validated with a minimal generation call before it is accepted.
func (a *App) UpdateGeminiKey(w http.ResponseWriter, r *http.Request) {
	id, ok := a.currentUser(r)
	if !ok {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	var req updateGeminiKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.APIKey = strings.TrimSpace(req.APIKey)

	if req.APIKey != "" && a.Genai != nil {
		if err := a.Genai.WithAPIKey(req.APIKey).Validate(r.Context()); err != nil {
			a.error(w, http.StatusBadRequest, "invalid_key", "api key rejected by provider")
			return
		}
	}

	if _, err := a.SQL.Exec(r.Context(), sqlinline.QUpdateUserGeminiKey, id.UserID, req.APIKey); err != nil {
		a.Logger.Error().Err(err).Msg("update gemini key failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to update api key")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"message": "api key updated"})
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

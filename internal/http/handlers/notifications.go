package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iach526526/pastexam/internal/sqlinline"
)

type notificationDTO struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ListNotifications returns announcements currently inside their display
// window, newest first.
func (a *App) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	rows, err := a.SQL.Query(r.Context(), sqlinline.QListNotifications, limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("list notifications failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list notifications")
		return
	}
	defer rows.Close()

	notifications := []notificationDTO{}
	for rows.Next() {
		var n notificationDTO
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &n.CreatedAt); err != nil {
			a.Logger.Error().Err(err).Msg("scan notification failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to list notifications")
			return
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		a.Logger.Error().Err(err).Msg("iterate notifications failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list notifications")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"notifications": notifications})
}

type notificationRequest struct {
	Title    string     `json:"title"`
	Content  string     `json:"content"`
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
}

// CreateNotification publishes an announcement. Admin only.
func (a *App) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var req notificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "title is required")
		return
	}
	if req.StartsAt != nil && req.EndsAt != nil && !req.EndsAt.After(*req.StartsAt) {
		a.error(w, http.StatusBadRequest, "bad_request", "ends_at must be after starts_at")
		return
	}

	var (
		id        int64
		createdAt time.Time
	)
	row := a.SQL.QueryRow(r.Context(), sqlinline.QInsertNotification, req.Title, req.Content, req.StartsAt, req.EndsAt)
	if err := row.Scan(&id, &createdAt); err != nil {
		a.Logger.Error().Err(err).Msg("insert notification failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create notification")
		return
	}
	a.json(w, http.StatusCreated, map[string]any{"id": id, "created_at": createdAt})
}

// DeleteNotification removes an announcement. Admin only.
func (a *App) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid notification id")
		return
	}

	tag, err := a.SQL.Exec(r.Context(), sqlinline.QDeleteNotification, id)
	if err != nil {
		a.Logger.Error().Err(err).Msg("delete notification failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete notification")
		return
	}
	if tag.RowsAffected() == 0 {
		a.error(w, http.StatusNotFound, "not_found", "notification not found")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"message": "notification deleted"})
}

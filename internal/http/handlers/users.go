package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iach526526/pastexam/internal/discussion"
	"github.com/iach526526/pastexam/internal/infra"
	"github.com/iach526526/pastexam/internal/sqlinline"
)

type userDTO struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Name        string     `json:"name"`
	Nickname    string     `json:"nickname,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	Email       string     `json:"email"`
	IsAdmin     bool       `json:"is_admin"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func scanUserDTO(row interface{ Scan(dest ...any) error }) (*userDTO, error) {
	var (
		u           userDTO
		nickname    *string
		createdAt   time.Time
		lastLoginAt *time.Time
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Name, &nickname, &u.Email, &u.IsAdmin, &createdAt, &lastLoginAt); err != nil {
		return nil, err
	}
	if nickname != nil {
		u.Nickname = *nickname
	}
	u.DisplayName = discussion.DisplayName(u.Name, u.Nickname)
	u.CreatedAt = &createdAt
	u.LastLoginAt = lastLoginAt
	return &u, nil
}

// Me returns the authenticated user's profile.
func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := a.currentUser(r)
	if !ok {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	u, err := scanUserDTO(a.SQL.QueryRow(r.Context(), sqlinline.QSelectUserByID, id.UserID))
	if infra.IsNoRows(err) {
		a.error(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Msg("load user failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load user")
		return
	}
	a.json(w, http.StatusOK, u)
}

type updateMeRequest struct {
	Nickname string `json:"nickname"`
}

// UpdateMe changes the caller's nickname. A blank nickname falls back to the
// account name everywhere display names show up.
func (a *App) UpdateMe(w http.ResponseWriter, r *http.Request) {
	id, ok := a.currentUser(r)
	if !ok {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	var req updateMeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if len(req.Nickname) > 50 {
		a.error(w, http.StatusBadRequest, "bad_request", "nickname too long")
		return
	}

	if _, err := a.SQL.Exec(r.Context(), sqlinline.QUpdateUserNickname, id.UserID, req.Nickname); err != nil {
		a.Logger.Error().Err(err).Msg("update nickname failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to update profile")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"message": "profile updated"})
}

// ListUsers is an admin view of all accounts.
func (a *App) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	if limit < 1 || limit > 500 {
		limit = 100
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	rows, err := a.SQL.Query(r.Context(), sqlinline.QListUsers, limit, offset)
	if err != nil {
		a.Logger.Error().Err(err).Msg("list users failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list users")
		return
	}
	defer rows.Close()

	users := []userDTO{}
	for rows.Next() {
		u, err := scanUserDTO(rows)
		if err != nil {
			a.Logger.Error().Err(err).Msg("scan user failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to list users")
			return
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		a.Logger.Error().Err(err).Msg("iterate users failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list users")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"users": users})
}

type setAdminRequest struct {
	IsAdmin bool `json:"is_admin"`
}

// SetUserAdmin grants or revokes admin rights.
func (a *App) SetUserAdmin(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid user id")
		return
	}

	var req setAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	tag, err := a.SQL.Exec(r.Context(), sqlinline.QSetUserAdmin, userID, req.IsAdmin)
	if err != nil {
		a.Logger.Error().Err(err).Msg("set admin failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to update user")
		return
	}
	if tag.RowsAffected() == 0 {
		a.error(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"message": "user updated"})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iach526526/pastexam/internal/infra"
	"github.com/iach526526/pastexam/internal/sqlinline"
)

type courseDTO struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Professor    string    `json:"professor"`
	Category     string    `json:"category"`
	ArchiveCount int64     `json:"archive_count,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListCourses returns every course with its archive count, grouped by
// category.
func (a *App) ListCourses(w http.ResponseWriter, r *http.Request) {
	rows, err := a.SQL.Query(r.Context(), sqlinline.QListCourses)
	if err != nil {
		a.Logger.Error().Err(err).Msg("list courses failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list courses")
		return
	}
	defer rows.Close()

	grouped := map[string][]courseDTO{}
	for rows.Next() {
		var c courseDTO
		if err := rows.Scan(&c.ID, &c.Name, &c.Professor, &c.Category, &c.CreatedAt, &c.ArchiveCount); err != nil {
			a.Logger.Error().Err(err).Msg("scan course failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to list courses")
			return
		}
		category := c.Category
		if category == "" {
			category = "general"
		}
		grouped[category] = append(grouped[category], c)
	}
	if err := rows.Err(); err != nil {
		a.Logger.Error().Err(err).Msg("iterate courses failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list courses")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"courses": grouped})
}

// GetCourse returns one course and its archives, newest academic year first.
func (a *App) GetCourse(w http.ResponseWriter, r *http.Request) {
	courseID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid course id")
		return
	}

	var c courseDTO
	row := a.SQL.QueryRow(r.Context(), sqlinline.QSelectCourseByID, courseID)
	err = row.Scan(&c.ID, &c.Name, &c.Professor, &c.Category, &c.CreatedAt)
	if infra.IsNoRows(err) {
		a.error(w, http.StatusNotFound, "not_found", "course not found")
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Msg("load course failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load course")
		return
	}

	rows, err := a.SQL.Query(r.Context(), sqlinline.QListArchivesByCourse, courseID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("list course archives failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load course")
		return
	}
	defer rows.Close()

	archives := []archiveDTO{}
	for rows.Next() {
		var ar archiveDTO
		if err := rows.Scan(&ar.ID, &ar.CourseID, &ar.UploaderID, &ar.Name, &ar.ArchiveType, &ar.AcademicYear,
			&ar.Filename, &ar.ContentType, &ar.SizeBytes, &ar.DownloadCount, &ar.HasAnswers, &ar.CreatedAt); err != nil {
			a.Logger.Error().Err(err).Msg("scan archive failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to load course")
			return
		}
		archives = append(archives, ar)
	}
	if err := rows.Err(); err != nil {
		a.Logger.Error().Err(err).Msg("iterate archives failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load course")
		return
	}

	a.json(w, http.StatusOK, map[string]any{"course": c, "archives": archives})
}

type courseRequest struct {
	Name      string `json:"name"`
	Professor string `json:"professor"`
	Category  string `json:"category"`
}

func (req *courseRequest) validate() string {
	req.Name = strings.TrimSpace(req.Name)
	req.Professor = strings.TrimSpace(req.Professor)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" {
		return "name is required"
	}
	return ""
}

// CreateCourse adds a course. Admin only.
func (a *App) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var req courseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if msg := req.validate(); msg != "" {
		a.error(w, http.StatusBadRequest, "bad_request", msg)
		return
	}

	var existingID int64
	err := a.SQL.QueryRow(r.Context(), sqlinline.QSelectCourseIDByNameCategory, req.Name, req.Category).Scan(&existingID)
	if err == nil {
		a.error(w, http.StatusConflict, "conflict", "course already exists in this category")
		return
	}
	if !infra.IsNoRows(err) {
		a.Logger.Error().Err(err).Msg("check course failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create course")
		return
	}

	var id int64
	row := a.SQL.QueryRow(r.Context(), sqlinline.QInsertCourse, req.Name, req.Professor, req.Category)
	if err := row.Scan(&id); err != nil {
		a.Logger.Error().Err(err).Msg("insert course failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create course")
		return
	}
	a.json(w, http.StatusCreated, map[string]any{"id": id})
}

// UpdateCourse edits a course. Admin only.
func (a *App) UpdateCourse(w http.ResponseWriter, r *http.Request) {
	courseID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid course id")
		return
	}

	var req courseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if msg := req.validate(); msg != "" {
		a.error(w, http.StatusBadRequest, "bad_request", msg)
		return
	}

	tag, err := a.SQL.Exec(r.Context(), sqlinline.QUpdateCourse, courseID, req.Name, req.Professor, req.Category)
	if err != nil {
		a.Logger.Error().Err(err).Msg("update course failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to update course")
		return
	}
	if tag.RowsAffected() == 0 {
		a.error(w, http.StatusNotFound, "not_found", "course not found")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"message": "course updated"})
}

// DeleteCourse removes a course and its archives. Admin only.
func (a *App) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	courseID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid course id")
		return
	}

	tag, err := a.SQL.Exec(r.Context(), sqlinline.QDeleteCourse, courseID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("delete course failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete course")
		return
	}
	if tag.RowsAffected() == 0 {
		a.error(w, http.StatusNotFound, "not_found", "course not found")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"message": "course deleted"})
}

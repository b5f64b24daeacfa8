package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/iach526526/pastexam/internal/infra"
	"github.com/iach526526/pastexam/internal/middleware"
	"github.com/iach526526/pastexam/internal/sqlinline"
	"github.com/iach526526/pastexam/pkg/zip"
)

const (
	maxUploadBytes = 50 << 20

	previewURLTTL  = 30 * time.Minute
	downloadURLTTL = time.Hour
)

var allowedArchiveTypes = map[string]bool{
	"quiz":     true,
	"midterm":  true,
	"final":    true,
	"homework": true,
	"other":    true,
}

type archiveDTO struct {
	ID            int64     `json:"id"`
	CourseID      int64     `json:"course_id"`
	UploaderID    int64     `json:"uploader_id,omitempty"`
	Name          string    `json:"name"`
	ArchiveType   string    `json:"archive_type"`
	AcademicYear  int       `json:"academic_year"`
	Filename      string    `json:"filename,omitempty"`
	ContentType   string    `json:"content_type,omitempty"`
	SizeBytes     int64     `json:"size_bytes,omitempty"`
	DownloadCount int64     `json:"download_count"`
	HasAnswers    bool      `json:"has_answers"`
	CreatedAt     time.Time `json:"created_at"`
	CourseName    string    `json:"course_name,omitempty"`
	Professor     string    `json:"professor,omitempty"`
}

// ListArchives searches archives by free text, type, and academic year.
func (a *App) ListArchives(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	archiveType := r.URL.Query().Get("type")
	year := queryInt(r, "year", 0)
	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	rows, err := a.SQL.Query(r.Context(), sqlinline.QSearchArchives, q, archiveType, year, limit, offset)
	if err != nil {
		a.Logger.Error().Err(err).Msg("search archives failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to search archives")
		return
	}
	defer rows.Close()

	archives := []archiveDTO{}
	for rows.Next() {
		var ar archiveDTO
		if err := rows.Scan(&ar.ID, &ar.CourseID, &ar.UploaderID, &ar.Name, &ar.ArchiveType, &ar.AcademicYear,
			&ar.Filename, &ar.ContentType, &ar.SizeBytes, &ar.DownloadCount, &ar.HasAnswers, &ar.CreatedAt,
			&ar.CourseName, &ar.Professor); err != nil {
			a.Logger.Error().Err(err).Msg("scan archive failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to search archives")
			return
		}
		archives = append(archives, ar)
	}
	if err := rows.Err(); err != nil {
		a.Logger.Error().Err(err).Msg("iterate archives failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to search archives")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"archives": archives})
}

// LatestArchives returns the most recent uploads for the landing page.
func (a *App) LatestArchives(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	if limit < 1 || limit > 50 {
		limit = 10
	}

	rows, err := a.SQL.Query(r.Context(), sqlinline.QLatestArchives, limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("latest archives failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load archives")
		return
	}
	defer rows.Close()

	archives := []archiveDTO{}
	for rows.Next() {
		var ar archiveDTO
		if err := rows.Scan(&ar.ID, &ar.CourseID, &ar.Name, &ar.ArchiveType, &ar.AcademicYear, &ar.CreatedAt,
			&ar.CourseName, &ar.Professor); err != nil {
			a.Logger.Error().Err(err).Msg("scan archive failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to load archives")
			return
		}
		archives = append(archives, ar)
	}
	if err := rows.Err(); err != nil {
		a.Logger.Error().Err(err).Msg("iterate archives failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load archives")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"archives": archives})
}

func (a *App) loadArchive(r *http.Request) (*archiveDTO, string, error) {
	archiveID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return nil, "", fmt.Errorf("invalid archive id")
	}

	var (
		ar        archiveDTO
		objectKey string
	)
	row := a.SQL.QueryRow(r.Context(), sqlinline.QSelectArchiveByID, archiveID)
	err = row.Scan(&ar.ID, &ar.CourseID, &ar.UploaderID, &ar.Name, &ar.ArchiveType, &ar.AcademicYear,
		&ar.Filename, &objectKey, &ar.ContentType, &ar.SizeBytes, &ar.DownloadCount, &ar.HasAnswers,
		&ar.CreatedAt, &ar.CourseName, &ar.Professor)
	if err != nil {
		return nil, "", err
	}
	return &ar, objectKey, nil
}

// GetArchive returns one archive's details.
func (a *App) GetArchive(w http.ResponseWriter, r *http.Request) {
	ar, _, err := a.loadArchive(r)
	if infra.IsNoRows(err) {
		a.error(w, http.StatusNotFound, "not_found", "archive not found")
		return
	}
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid archive id")
		return
	}
	a.json(w, http.StatusOK, ar)
}

// UploadArchive accepts a PDF and registers it under a course.
func (a *App) UploadArchive(w http.ResponseWriter, r *http.Request) {
	id, ok := a.currentUser(r)
	if !ok {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}

	courseID, err := strconv.ParseInt(r.FormValue("course_id"), 10, 64)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid course id")
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "name is required")
		return
	}
	archiveType := r.FormValue("archive_type")
	if !allowedArchiveTypes[archiveType] {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid archive type")
		return
	}
	academicYear, err := strconv.Atoi(r.FormValue("academic_year"))
	if err != nil || academicYear < 1 {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid academic year")
		return
	}
	hasAnswers := r.FormValue("has_answers") == "true"

	var exists bool
	if err := a.SQL.QueryRow(r.Context(), sqlinline.QCourseExists, courseID).Scan(&exists); err != nil || !exists {
		a.error(w, http.StatusNotFound, "not_found", "course not found")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "file is required")
		return
	}
	defer file.Close()

	filename := path.Base(header.Filename)
	if !strings.EqualFold(path.Ext(filename), ".pdf") {
		a.error(w, http.StatusBadRequest, "bad_request", "only pdf files are accepted")
		return
	}

	key := fmt.Sprintf("archives/%d/%s.pdf", courseID, uuid.NewString())
	storedKey, err := a.Store.Put(r.Context(), key, "application/pdf", header.Size, file)
	if err != nil {
		a.Logger.Error().Err(err).Msg("store archive failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store file")
		return
	}

	var (
		archiveID int64
		createdAt time.Time
	)
	row := a.SQL.QueryRow(r.Context(), sqlinline.QInsertArchive,
		courseID, id.UserID, name, archiveType, academicYear, filename, storedKey,
		"application/pdf", header.Size, hasAnswers)
	if err := row.Scan(&archiveID, &createdAt); err != nil {
		a.Logger.Error().Err(err).Msg("insert archive failed")
		if delErr := a.Store.Delete(r.Context(), storedKey); delErr != nil {
			a.Logger.Warn().Err(delErr).Str("key", storedKey).Msg("cleanup stored file failed")
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to create archive")
		return
	}

	a.json(w, http.StatusCreated, map[string]any{"id": archiveID, "created_at": createdAt})
}

// PreviewArchive hands out a short-lived inline view URL.
func (a *App) PreviewArchive(w http.ResponseWriter, r *http.Request) {
	ar, objectKey, err := a.loadArchive(r)
	if infra.IsNoRows(err) {
		a.error(w, http.StatusNotFound, "not_found", "archive not found")
		return
	}
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid archive id")
		return
	}

	u, err := a.Store.PresignedGetURL(r.Context(), objectKey, "", previewURLTTL)
	if err != nil {
		a.Logger.Error().Err(err).Msg("presign preview failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create preview url")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"url": u, "expires_in": int(previewURLTTL.Seconds()), "filename": ar.Filename})
}

// DownloadArchive hands out a download URL and records the download.
func (a *App) DownloadArchive(w http.ResponseWriter, r *http.Request) {
	ar, objectKey, err := a.loadArchive(r)
	if infra.IsNoRows(err) {
		a.error(w, http.StatusNotFound, "not_found", "archive not found")
		return
	}
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid archive id")
		return
	}

	u, err := a.Store.PresignedGetURL(r.Context(), objectKey, ar.Filename, downloadURLTTL)
	if err != nil {
		a.Logger.Error().Err(err).Msg("presign download failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create download url")
		return
	}

	if _, err := a.SQL.Exec(r.Context(), sqlinline.QIncrementDownloadCount, ar.ID); err != nil {
		a.Logger.Warn().Err(err).Msg("increment download count failed")
	}
	country := middleware.CountryFromContext(r.Context())
	if _, err := a.SQL.Exec(r.Context(), sqlinline.QUpsertDownloadStat, ar.ID, country); err != nil {
		a.Logger.Warn().Err(err).Msg("record download stat failed")
	}
	if a.Metrics != nil {
		a.Metrics.ArchiveDownload.Inc()
	}

	a.json(w, http.StatusOK, map[string]any{"url": u, "expires_in": int(downloadURLTTL.Seconds()), "filename": ar.Filename})
}

type updateArchiveRequest struct {
	Name         string `json:"name"`
	ArchiveType  string `json:"archive_type"`
	AcademicYear int    `json:"academic_year"`
	HasAnswers   bool   `json:"has_answers"`
}

// UpdateArchive edits archive metadata. Admin only.
func (a *App) UpdateArchive(w http.ResponseWriter, r *http.Request) {
	ar, _, err := a.loadArchive(r)
	if infra.IsNoRows(err) {
		a.error(w, http.StatusNotFound, "not_found", "archive not found")
		return
	}
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid archive id")
		return
	}

	req := updateArchiveRequest{
		Name:         ar.Name,
		ArchiveType:  ar.ArchiveType,
		AcademicYear: ar.AcademicYear,
		HasAnswers:   ar.HasAnswers,
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "name is required")
		return
	}
	if !allowedArchiveTypes[req.ArchiveType] {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid archive type")
		return
	}

	if _, err := a.SQL.Exec(r.Context(), sqlinline.QUpdateArchive, ar.ID, req.Name, req.ArchiveType, req.AcademicYear, req.HasAnswers); err != nil {
		a.Logger.Error().Err(err).Msg("update archive failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to update archive")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"message": "archive updated"})
}

type transferArchiveRequest struct {
	CourseID  int64  `json:"course_id"`
	Name      string `json:"name"`
	Professor string `json:"professor"`
	Category  string `json:"category"`
}

// resolveTargetCourse returns the course to transfer into. A course_id must
// already exist; a name+category target is created when no such course does.
func (a *App) resolveTargetCourse(r *http.Request, req transferArchiveRequest) (int64, int, string) {
	if req.CourseID != 0 {
		var exists bool
		if err := a.SQL.QueryRow(r.Context(), sqlinline.QCourseExists, req.CourseID).Scan(&exists); err != nil || !exists {
			return 0, http.StatusNotFound, "target course not found"
		}
		return req.CourseID, 0, ""
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return 0, http.StatusBadRequest, "course_id or name is required"
	}

	var id int64
	err := a.SQL.QueryRow(r.Context(), sqlinline.QSelectCourseIDByNameCategory, name, strings.TrimSpace(req.Category)).Scan(&id)
	if err == nil {
		return id, 0, ""
	}
	if !infra.IsNoRows(err) {
		a.Logger.Error().Err(err).Msg("resolve target course failed")
		return 0, http.StatusInternalServerError, "failed to transfer archive"
	}

	row := a.SQL.QueryRow(r.Context(), sqlinline.QInsertCourse, name, strings.TrimSpace(req.Professor), strings.TrimSpace(req.Category))
	if err := row.Scan(&id); err != nil {
		a.Logger.Error().Err(err).Msg("create target course failed")
		return 0, http.StatusInternalServerError, "failed to transfer archive"
	}
	return id, 0, ""
}

// TransferArchive moves an archive to a different course. Admin only. The
// target is either an existing course id or a name+category pair, created on
// the fly when missing.
func (a *App) TransferArchive(w http.ResponseWriter, r *http.Request) {
	ar, _, err := a.loadArchive(r)
	if infra.IsNoRows(err) {
		a.error(w, http.StatusNotFound, "not_found", "archive not found")
		return
	}
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid archive id")
		return
	}

	var req transferArchiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	targetID, errCode, errMsg := a.resolveTargetCourse(r, req)
	if errCode != 0 {
		slug := "bad_request"
		switch errCode {
		case http.StatusNotFound:
			slug = "not_found"
		case http.StatusInternalServerError:
			slug = "internal"
		}
		a.error(w, errCode, slug, errMsg)
		return
	}

	if _, err := a.SQL.Exec(r.Context(), sqlinline.QTransferArchiveCourse, ar.ID, targetID); err != nil {
		a.Logger.Error().Err(err).Msg("transfer archive failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to transfer archive")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"message": "archive transferred", "course_id": targetID})
}

// DeleteArchive removes an archive. The uploader or an admin may delete.
func (a *App) DeleteArchive(w http.ResponseWriter, r *http.Request) {
	id, ok := a.currentUser(r)
	if !ok {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	ar, _, err := a.loadArchive(r)
	if infra.IsNoRows(err) {
		a.error(w, http.StatusNotFound, "not_found", "archive not found")
		return
	}
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid archive id")
		return
	}
	if ar.UploaderID != id.UserID && !id.IsAdmin {
		a.error(w, http.StatusForbidden, "forbidden", "not allowed to delete this archive")
		return
	}

	var objectKey string
	if err := a.SQL.QueryRow(r.Context(), sqlinline.QDeleteArchive, ar.ID).Scan(&objectKey); err != nil {
		a.Logger.Error().Err(err).Msg("delete archive failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete archive")
		return
	}
	if err := a.Store.Delete(r.Context(), objectKey); err != nil {
		a.Logger.Warn().Err(err).Str("key", objectKey).Msg("delete stored file failed")
	}
	a.json(w, http.StatusOK, map[string]string{"message": "archive deleted"})
}

// ExportCourseArchives streams every file of a course as one zip. Admin only.
func (a *App) ExportCourseArchives(w http.ResponseWriter, r *http.Request) {
	courseID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid course id")
		return
	}

	var courseName, professor, category string
	var cID int64
	var createdAt time.Time
	row := a.SQL.QueryRow(r.Context(), sqlinline.QSelectCourseByID, courseID)
	if err := row.Scan(&cID, &courseName, &professor, &category, &createdAt); err != nil {
		a.error(w, http.StatusNotFound, "not_found", "course not found")
		return
	}

	rows, err := a.SQL.Query(r.Context(), sqlinline.QListCourseObjectKeys, courseID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("list course files failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to export course")
		return
	}
	defer rows.Close()

	var assets []zip.Asset
	for rows.Next() {
		var (
			archiveID int64
			filename  string
			objectKey string
		)
		if err := rows.Scan(&archiveID, &filename, &objectKey); err != nil {
			a.Logger.Error().Err(err).Msg("scan course file failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to export course")
			return
		}
		rc, err := a.Store.Get(r.Context(), objectKey)
		if err != nil {
			a.Logger.Warn().Err(err).Str("key", objectKey).Msg("skip unreadable file")
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			a.Logger.Warn().Err(err).Str("key", objectKey).Msg("skip unreadable file")
			continue
		}
		assets = append(assets, zip.Asset{Filename: filename, MIME: "application/pdf", Data: data})
	}
	if err := rows.Err(); err != nil {
		a.Logger.Error().Err(err).Msg("iterate course files failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to export course")
		return
	}

	bundle := zip.ArchiveAssets(assets)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", courseName+".zip"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(bundle)
}

package handlers

import (
	"net/http"

	"github.com/iach526526/pastexam/internal/sqlinline"
)

type platformTotals struct {
	Users              int64 `json:"users"`
	Courses            int64 `json:"courses"`
	Archives           int64 `json:"archives"`
	Downloads          int64 `json:"downloads"`
	DiscussionMessages int64 `json:"discussion_messages"`
}

type topArchiveStat struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	CourseName    string `json:"course_name"`
	Professor     string `json:"professor"`
	DownloadCount int64  `json:"download_count"`
}

type countryStat struct {
	Country   string `json:"country"`
	Downloads int64  `json:"downloads"`
}

// Statistics aggregates platform-wide totals, the most downloaded archives,
// and the per-country download distribution.
func (a *App) Statistics(w http.ResponseWriter, r *http.Request) {
	var totals platformTotals
	row := a.SQL.QueryRow(r.Context(), sqlinline.QPlatformTotals)
	if err := row.Scan(&totals.Users, &totals.Courses, &totals.Archives, &totals.Downloads, &totals.DiscussionMessages); err != nil {
		a.Logger.Error().Err(err).Msg("platform totals failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load statistics")
		return
	}

	limit := queryInt(r, "limit", 10)
	if limit < 1 || limit > 50 {
		limit = 10
	}

	topRows, err := a.SQL.Query(r.Context(), sqlinline.QTopDownloadedArchives, limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("top archives failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load statistics")
		return
	}
	defer topRows.Close()

	top := []topArchiveStat{}
	for topRows.Next() {
		var s topArchiveStat
		if err := topRows.Scan(&s.ID, &s.Name, &s.CourseName, &s.Professor, &s.DownloadCount); err != nil {
			a.Logger.Error().Err(err).Msg("scan top archive failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to load statistics")
			return
		}
		top = append(top, s)
	}
	if err := topRows.Err(); err != nil {
		a.Logger.Error().Err(err).Msg("iterate top archives failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load statistics")
		return
	}

	countryRows, err := a.SQL.Query(r.Context(), sqlinline.QDownloadsByCountry)
	if err != nil {
		a.Logger.Error().Err(err).Msg("downloads by country failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load statistics")
		return
	}
	defer countryRows.Close()

	countries := []countryStat{}
	for countryRows.Next() {
		var s countryStat
		if err := countryRows.Scan(&s.Country, &s.Downloads); err != nil {
			a.Logger.Error().Err(err).Msg("scan country stat failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to load statistics")
			return
		}
		countries = append(countries, s)
	}
	if err := countryRows.Err(); err != nil {
		a.Logger.Error().Err(err).Msg("iterate country stats failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load statistics")
		return
	}

	a.json(w, http.StatusOK, map[string]any{
		"totals":       totals,
		"top_archives": top,
		"by_country":   countries,
	})
}

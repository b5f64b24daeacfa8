package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iach526526/pastexam/internal/aiexam"
	"github.com/iach526526/pastexam/internal/discussion"
	"github.com/iach526526/pastexam/internal/infra"
	"github.com/iach526526/pastexam/internal/middleware"
	"github.com/iach526526/pastexam/internal/providers/genai"
	"github.com/iach526526/pastexam/internal/storage"
	"github.com/iach526526/pastexam/internal/taskstream"
)

// App carries the dependencies shared by the HTTP handlers.
type App struct {
	SQL    infra.SQLExecutor
	Logger zerolog.Logger
	Cfg    *infra.Config
	Redis  *redis.Client

	Tasks     *aiexam.Service
	TaskStore *aiexam.Store
	Streamer  *taskstream.Streamer

	Discussions *discussion.Service
	Registry    *discussion.Registry

	Store   storage.ObjectStore
	Genai   *genai.Client
	Metrics *infra.Metrics
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, slug, msg string) {
	a.json(w, code, map[string]string{"error": slug, "message": msg})
}

// currentUser returns the authenticated identity placed by the auth
// middleware.
func (a *App) currentUser(r *http.Request) (middleware.Identity, bool) {
	return middleware.IdentityFrom(r.Context())
}

package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iach526526/pastexam/internal/http/handlers"
	"github.com/iach526526/pastexam/internal/infra/geoip"
	"github.com/iach526526/pastexam/internal/middleware"
)

// NewRouter wires every HTTP and websocket route of the service. staticDir,
// when non-empty, serves locally stored archive files under /static/.
func NewRouter(app *handlers.App, countries geoip.CountryResolver, staticDir string) http.Handler {
	r := chi.NewRouter()

	var lookup middleware.CountryLookup
	if countries != nil {
		lookup = countries.CountryCode
	}

	r.Use(
		middleware.RequestID,
		middleware.Logger(app.Logger),
		middleware.CORS(app.Cfg.CORSAllowedOrigins),
		middleware.I18N("en", lookup),
		middleware.RateLimit(app.Cfg.RateLimitPerMin, time.Minute),
	)
	if app.Metrics != nil {
		r.Use(middleware.Metrics(func(method, status string) {
			app.Metrics.HTTPRequests.WithLabelValues(method, status).Inc()
		}))
	}

	r.Get("/healthz", app.Health)
	if app.Metrics != nil {
		r.Handle("/metrics", app.Metrics.Handler())
	}
	if staticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", app.Login)
		r.Get("/auth/oauth/login", app.OAuthLogin)
		r.Get("/auth/oauth/callback", app.OAuthCallback)

		r.Get("/courses", app.ListCourses)
		r.Get("/courses/{id}", app.GetCourse)
		r.Get("/courses/{id}/archives", app.GetCourse)
		r.Get("/archives", app.ListArchives)
		r.Get("/archives/latest", app.LatestArchives)
		r.Get("/archives/{id}", app.GetArchive)
		r.Get("/archives/{id}/discussion", app.DiscussionHistory)
		r.Get("/notifications", app.ListNotifications)
		r.Get("/statistics", app.Statistics)

		// Websocket upgrades authenticate themselves: browsers cannot set
		// the Authorization header on upgrade requests.
		r.Get("/archives/{id}/discussion/ws", app.DiscussionWS)
		r.Get("/courses/{courseID}/archives/{id}/discussion/ws", app.DiscussionWS)
		r.Get("/ai-exam/ws/task/{id}", app.TaskStatusWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthJWT(app.Cfg.JWTSecret, app.IsTokenBlacklisted))

			r.Post("/auth/logout", app.Logout)
			r.Get("/users/me", app.Me)
			r.Patch("/users/me", app.UpdateMe)
			r.Patch("/users/me/nickname", app.UpdateMe)

			r.Get("/archives/{id}/preview", app.PreviewArchive)
			r.Get("/archives/{id}/download", app.DownloadArchive)
			r.Post("/archives", app.UploadArchive)
			r.Post("/archives/upload", app.UploadArchive)
			r.Delete("/archives/{id}", app.DeleteArchive)
			r.Delete("/discussion/messages/{messageID}", app.DeleteDiscussionMessage)

			r.Post("/ai-exam/generate", app.GenerateExam)
			r.Delete("/ai-exam/task/{id}", app.DeleteExamTask)
			r.Get("/ai-exam/api-key", app.GetGeminiKey)
			r.Put("/ai-exam/api-key", app.UpdateGeminiKey)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin)

				r.Post("/courses", app.CreateCourse)
				r.Put("/courses/{id}", app.UpdateCourse)
				r.Delete("/courses/{id}", app.DeleteCourse)
				r.Get("/courses/{id}/export", app.ExportCourseArchives)

				r.Patch("/archives/{id}", app.UpdateArchive)
				r.Post("/archives/{id}/transfer", app.TransferArchive)

				r.Post("/notifications", app.CreateNotification)
				r.Delete("/notifications/{id}", app.DeleteNotification)

				r.Get("/users", app.ListUsers)
				r.Patch("/users/{id}/admin", app.SetUserAdmin)
			})
		})
	})

	return r
}

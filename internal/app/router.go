package app

import (
	"database/sql"
	"net/http"
	"time"

	"hamstudy/internal/app/observability"
	"hamstudy/internal/auth"
	"hamstudy/internal/blueprint"
	"hamstudy/internal/exam"
	"hamstudy/internal/question"
	"hamstudy/internal/study"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(cfg Config, db *sql.DB, blueprints blueprint.Set) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	collector := observability.NewCollector(db)
	r.Use(collector.Middleware)
	r.Use(CSRFMiddleware(cfg.CSRFEnforced))

	authLimiter := NewIPRateLimiter(cfg.AuthRateLimitPerMin, time.Minute)

	questionSvc := question.NewService(db)
	questionHandler := question.NewHandler(questionSvc)

	authSvc := auth.NewService(db, auth.ServiceConfig{
		BcryptCost: cfg.BcryptCost,
	})
	authHandler := auth.NewHandler(authSvc)

	examSvc := exam.NewService(db, questionSvc, blueprints, cfg.DefaultExamMinutes)
	examHandler := exam.NewHandler(examSvc)

	studySvc := study.NewService(db, blueprints)
	studyHandler := study.NewHandler(studySvc)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.With(RateLimitMiddleware(authLimiter)).Post("/auth/login", authHandler.Login)

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Get("/auth/me", authHandler.Me)
			secure.Post("/auth/logout", authHandler.Logout)
			secure.Delete("/auth/account", authHandler.DeleteAccount)

			secure.Get("/questions", questionHandler.List)
			secure.Get("/questions/{id}", questionHandler.Get)

			secure.Post("/sessions", examHandler.Start)
			secure.Get("/sessions/{id}", examHandler.GetSession)
			secure.Get("/sessions/{id}/questions/{position}", examHandler.Question)
			secure.Put("/sessions/{id}/questions/{position}/answer", examHandler.SaveAnswer)
			secure.Post("/sessions/{id}/submit", examHandler.Submit)
			secure.Get("/sessions/{id}/result", examHandler.Result)
			secure.Get("/me/sessions", examHandler.ListMine)

			secure.Post("/questions/{id}/bookmark", studyHandler.ToggleBookmark)
			secure.Get("/me/bookmarks", studyHandler.ListBookmarks)
			secure.Get("/flashcards", studyHandler.ListFlashcards)
			secure.Post("/flashcards/{id}/mark", studyHandler.MarkFlashcard)
			secure.Get("/me/readiness", studyHandler.Readiness)

			secure.Group(func(admin chi.Router) {
				admin.Use(authHandler.RequireRoles("admin"))
				admin.Post("/admin/users", authHandler.CreateUser)

				admin.Post("/admin/questions", questionHandler.Create)
				admin.Put("/admin/questions/{id}", questionHandler.Update)
				admin.Delete("/admin/questions/{id}", questionHandler.Delete)
				admin.Get("/admin/questions/duplicates", questionHandler.Duplicates)
				admin.Post("/admin/questions/refresh-hashes", questionHandler.RefreshHashes)
				admin.Post("/admin/questions/import", questionHandler.ImportExcel)
				admin.Get("/admin/questions/export", questionHandler.ExportExcel)

				admin.Post("/admin/glossary", studyHandler.CreateTerm)
				admin.Put("/admin/glossary/{id}", studyHandler.UpdateTerm)
				admin.Delete("/admin/glossary/{id}", studyHandler.DeleteTerm)
			})
		})
	})

	return r
}

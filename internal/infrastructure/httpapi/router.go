// Package httpapi serves stored recipes and lets operators trigger a collection run.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"RecipeCollector/internal/ports"
	"RecipeCollector/internal/usecase"
)

// RouterDeps groups what NewRouter needs. Metrics and Collector are optional.
// Lifetime bounds manual collection runs; cancelling it (process shutdown)
// aborts a run that a hung-up client would not.
type RouterDeps struct {
	Recipes   ports.RecipeReader
	Collector usecase.Runner
	Metrics   http.Handler
	Logger    *slog.Logger
	Lifetime  context.Context
}

// NewRouter builds the API:
//
//	GET  /api/recipes       list, newest first (?cuisine_type=&category=)
//	GET  /api/recipes/{id}  single recipe or 404
//	GET  /api/health        status and stored recipe count
//	POST /api/collect       run the pipeline now; 409 while a run is in progress
//	GET  /metrics           Prometheus scrape endpoint
func NewRouter(deps RouterDeps) http.Handler {
	lifetime := deps.Lifetime
	if lifetime == nil {
		lifetime = context.Background()
	}
	h := &handler{recipes: deps.Recipes, collector: deps.Collector, logger: deps.Logger, lifetime: lifetime}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(deps.Logger))
	r.Use(cors)

	r.Route("/api", func(r chi.Router) {
		r.Get("/recipes", h.listRecipes)
		r.Get("/recipes/{id}", h.getRecipe)
		r.Get("/health", h.health)
		r.Post("/collect", h.collect)
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			level := slog.LevelInfo
			switch {
			case ww.Status() >= http.StatusInternalServerError:
				level = slog.LevelError
			case ww.Status() >= http.StatusBadRequest:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

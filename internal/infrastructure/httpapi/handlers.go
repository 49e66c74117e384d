package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"RecipeCollector/internal/domain"
	"RecipeCollector/internal/ports"
	"RecipeCollector/internal/usecase"
)

type handler struct {
	recipes   ports.RecipeReader
	collector usecase.Runner
	logger    *slog.Logger
	lifetime  context.Context
}

type recipeResponse struct {
	ID          string     `json:"id"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	ImageURL    *string    `json:"image_url"`
	Description *string    `json:"description"`
	Ingredients []string   `json:"ingredients"`
	CuisineType string     `json:"cuisine_type"`
	Category    string     `json:"category"`
	PostedBy    string     `json:"posted_by"`
	PostedAt    *time.Time `json:"posted_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type healthResponse struct {
	Status      string `json:"status"`
	RecipeCount int    `json:"recipeCount"`
}

type collectResponse struct {
	Processed  int      `json:"processed"`
	Success    int      `json:"success"`
	Failed     int      `json:"failed"`
	Skipped    int      `json:"skipped"`
	FailedURLs []string `json:"failed_urls"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handler) listRecipes(w http.ResponseWriter, r *http.Request) {
	filter := domain.RecipeFilter{
		CuisineType: r.URL.Query().Get("cuisine_type"),
		Category:    r.URL.Query().Get("category"),
	}

	recipes, err := h.recipes.FindAll(r.Context(), filter)
	if err != nil {
		h.internalError(w, r, "list recipes failed", err)
		return
	}

	out := make([]recipeResponse, 0, len(recipes))
	for _, recipe := range recipes {
		out = append(out, toResponse(recipe))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) getRecipe(w http.ResponseWriter, r *http.Request) {
	recipe, err := h.recipes.FindByID(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, domain.ErrRecipeNotFound):
		writeError(w, http.StatusNotFound, "Recipe not found")
	case err != nil:
		h.internalError(w, r, "get recipe failed", err)
	default:
		writeJSON(w, http.StatusOK, toResponse(recipe))
	}
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	count, err := h.recipes.Count(r.Context())
	if err != nil {
		h.internalError(w, r, "count recipes failed", err)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", RecipeCount: count})
}

func (h *handler) collect(w http.ResponseWriter, r *http.Request) {
	if h.collector == nil {
		writeError(w, http.StatusServiceUnavailable, "Collector not configured")
		return
	}

	// detached from the client connection, cancelled only on shutdown
	runCtx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	stop := context.AfterFunc(h.lifetime, cancel)
	defer stop()

	report, err := h.collector.Run(runCtx)
	switch {
	case errors.Is(err, usecase.ErrRunInProgress):
		writeError(w, http.StatusConflict, "Collection already running")
		return
	case errors.Is(err, context.Canceled) && h.lifetime.Err() != nil:
		writeError(w, http.StatusServiceUnavailable, "Server shutting down")
		return
	case err != nil:
		h.internalError(w, r, "manual collection failed", err)
		return
	}

	failed := report.State.FailedLinks
	if failed == nil {
		failed = []string{}
	}
	writeJSON(w, http.StatusOK, collectResponse{
		Processed:  report.State.ProcessedCount,
		Success:    report.State.SuccessCount,
		Failed:     report.State.FailedCount,
		Skipped:    report.State.SkippedCount,
		FailedURLs: failed,
	})
}

func (h *handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if h.logger != nil {
		h.logger.ErrorContext(r.Context(), msg, "path", r.URL.Path, "error", err)
	}
	writeError(w, http.StatusInternalServerError, "Internal Server Error")
}

func toResponse(recipe domain.Recipe) recipeResponse {
	resp := recipeResponse{
		ID:          recipe.ID,
		URL:         recipe.URL,
		Title:       recipe.Title,
		Ingredients: recipe.Ingredients,
		CuisineType: recipe.CuisineType,
		Category:    recipe.Category,
		PostedBy:    recipe.PostedBy,
		CreatedAt:   recipe.CreatedAt,
		UpdatedAt:   recipe.UpdatedAt,
	}
	if resp.Ingredients == nil {
		resp.Ingredients = []string{}
	}
	if recipe.ImageURL != "" {
		resp.ImageURL = &recipe.ImageURL
	}
	if recipe.Description != "" {
		resp.Description = &recipe.Description
	}
	if !recipe.PostedAt.IsZero() {
		resp.PostedAt = &recipe.PostedAt
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

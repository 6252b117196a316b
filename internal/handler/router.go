package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kkkkikiki/surveyreview/internal/apperr"
	"github.com/kkkkikiki/surveyreview/internal/model"
)

// Pinger checks a backing store for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	Auth           *Authenticator
	DB             Pinger
	// Mount attaches extra handlers, such as the RPC service, under their own path.
	Mount map[string]http.Handler
}

// NewRouter builds the chi router with middleware, health checks and all routes.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(h.requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(withCORS(opts.AllowedOrigins))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Get("/health/db", func(w http.ResponseWriter, r *http.Request) {
		if opts.DB == nil {
			h.writeJSON(w, http.StatusOK, map[string]string{"status": "skipped"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := opts.DB.Ping(ctx); err != nil {
			h.writeError(w, r, apperr.Persistence("ping database", err))
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", promhttp.Handler())

	router.Get("/survey-quota", h.surveyQuota)
	router.Post("/generate-review", h.generateReview)
	router.Post("/save-review", h.saveReview)
	router.Get("/survey-result/{id}", h.surveyResult)
	router.Get("/surveys/{shopId}", h.getSurvey)
	router.Post("/survey-responses", h.submitResponse)

	auth := opts.Auth
	if auth == nil {
		auth = NewAuthenticator("", "", "")
	}
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h))
		r.Patch("/reviews/{id}", h.editReview)
		r.Route("/admin", func(r chi.Router) {
			r.Get("/survey-settings/{shopId}", h.getSettings)
			r.Put("/survey-settings", h.saveSettings)
			r.With(RequireRole(h, model.RoleAdmin)).Post("/shops", h.createShop)
			r.With(RequireRole(h, model.RoleAdmin)).Post("/quota/rollover", h.rolloverQuota)
		})
	})

	for pattern, handler := range opts.Mount {
		router.Mount(pattern, handler)
	}
	return router
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		if r.URL.Path == "/metrics" || strings.HasPrefix(r.URL.Path, "/health") {
			return
		}
		h.log.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func withCORS(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{})
	allowAll := false
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			allowAll = true
			continue
		}
		allowed[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			_, ok := allowed[origin]
			if origin == "" || (!allowAll && !ok) {
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusNoContent)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type,Connect-Protocol-Version")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

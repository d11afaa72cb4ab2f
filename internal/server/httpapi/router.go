package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/abdelrahman543873/coffeshop/internal/logging"
	"github.com/abdelrahman543873/coffeshop/internal/server/auth"
	"github.com/abdelrahman543873/coffeshop/internal/server/service"
)

// TokenVerifier turns a raw bearer token into the permissions it grants.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.AuthContext, error)
}

type Options struct {
	MaxRequestBytes int64
	CORSOrigins     []string
}

type Router struct {
	services        *service.Services
	verifier        TokenVerifier
	logger          *slog.Logger
	maxRequestBytes int64
}

func NewRouter(services *service.Services, verifier TokenVerifier, logger *slog.Logger, opts Options) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{services: services, verifier: verifier, logger: logger, maxRequestBytes: opts.MaxRequestBytes}
	mux := chi.NewRouter()

	mux.Use(logging.RequestID(logger))
	mux.Use(logging.RequestLogger(logger))
	mux.Use(r.recoverer)
	mux.Use(cors.Handler(corsOptions(opts.CORSOrigins)))

	mux.NotFound(r.handle(func(http.ResponseWriter, *http.Request) error {
		return statusError(http.StatusNotFound)
	}))
	mux.MethodNotAllowed(r.handle(func(http.ResponseWriter, *http.Request) error {
		return statusError(http.StatusMethodNotAllowed)
	}))

	mux.Get("/health", r.handleHealth)
	mux.Get("/openapi.yaml", r.handleSwagger)

	mux.Get("/drinks", r.handle(r.handleListDrinks))
	mux.With(r.requirePermission(auth.PermGetDrinksDetail)).Get("/drinks-detail", r.handle(r.handleListDrinksDetail))
	mux.With(r.requirePermission(auth.PermPostDrinks)).Post("/drinks", r.handle(r.handleCreateDrink))
	mux.With(r.requirePermission(auth.PermPatchDrinks)).Patch("/drinks/{id}", r.handle(r.handleUpdateDrink))
	mux.With(r.requirePermission(auth.PermDeleteDrinks)).Delete("/drinks/{id}", r.handle(r.handleDeleteDrink))

	return mux
}

func corsOptions(origins []string) cors.Options {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", logging.RequestIDHeader},
		ExposedHeaders: []string{logging.RequestIDHeader},
		MaxAge:         300,
	}
}

func (r *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

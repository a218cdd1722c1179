package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	appinference "github.com/bryanwahyu/tomvto/internal/application/inference"
	apppredictions "github.com/bryanwahyu/tomvto/internal/application/predictions"
	"github.com/bryanwahyu/tomvto/internal/middleware"
)

// image payloads are data URIs, so bodies can be large
const maxBodyBytes = 25 << 20

// Options carries the optional cross-cutting pieces of the router.
type Options struct {
	Logger         *slog.Logger
	Metrics        *middleware.Metrics
	RateLimiter    *middleware.RateLimiter
	APIKeys        map[string]string
	CORSOrigins    []string
	Health         map[string]middleware.HealthChecker
	OptionalChecks []string
}

type Router struct {
	predictions *apppredictions.Service
	inference   *appinference.Service
	logger      *slog.Logger
}

func NewRouter(predSvc *apppredictions.Service, infSvc *appinference.Service, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{predictions: predSvc, inference: infSvc, logger: logger}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	if opts.Metrics != nil {
		mux.Use(opts.Metrics.Middleware)
	}
	mux.Use(middleware.LoggingMiddleware(logger))
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))
	mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	if opts.RateLimiter != nil {
		mux.Use(middleware.RateLimitMiddleware(opts.RateLimiter))
	}

	mux.Get("/health", middleware.HealthHandler(opts.Health, opts.OptionalChecks...))
	mux.Get("/healthz/live", middleware.LivenessHandler)
	mux.Get("/healthz/ready", middleware.ReadinessHandler)
	if opts.Metrics != nil {
		mux.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	mux.Route("/api", func(rt chi.Router) {
		rt.Get("/predictions", r.wrap(r.handleList))
		rt.Post("/predictions", r.wrap(r.handleAppend))
		rt.Delete("/predictions", r.wrap(r.handleDelete))
		rt.Get("/predictions/{id}", r.wrap(r.handleGet))
		rt.Get("/statistics", r.wrap(r.handleStatistics))

		rt.Post("/predict/single", r.wrap(r.handlePredictSingle))
		rt.Post("/predict/advanced", r.wrap(r.handlePredictAdvanced))
		rt.Post("/detect/multi", r.wrap(r.handleDetectMulti))
		rt.Get("/model-info", r.wrap(r.handleModelInfo))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			r.writeError(w, req, err)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// requestError is a malformed request outside the prediction payload rules.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// opError names the operation that failed, used for client-facing messages.
type opError struct {
	op  string
	err error
}

func (e *opError) Error() string { return e.op + ": " + e.err.Error() }
func (e *opError) Unwrap() error { return e.err }

func withOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return &opError{op: op, err: err}
}

func decodeBody(w http.ResponseWriter, req *http.Request, v any) error {
	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return badRequest("invalid JSON body")
	}
	return nil
}

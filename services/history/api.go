package history

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const maxListLimit = 500

// Reader is the read side of the history store.
type Reader interface {
	List(ctx context.Context, limit int) ([]RunSummary, error)
	Get(ctx context.Context, id string) (*RunDetail, error)
	Report(ctx context.Context, id string) (string, error)
	Ping(ctx context.Context) error
}

// API serves run history.
type API struct {
	reader Reader
	logger zerolog.Logger
}

// NewAPI returns an API reading from reader.
func NewAPI(reader Reader, logger zerolog.Logger) (*API, error) {
	if reader == nil {
		return nil, errors.New("reader is required")
	}
	return &API{reader: reader, logger: logger}, nil
}

// Routes constructs the chi router with health, metrics and run endpoints.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", a.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/runs", func(r chi.Router) {
		r.Get("/", a.handleListRuns)
		r.Get("/{runID}", a.handleGetRun)
		r.Get("/{runID}/report", a.handleGetReport)
	})
	return r
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	if err := a.reader.Ping(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *API) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, maxListLimit)
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	runs, err := a.reader.List(ctx, limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("list runs")
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (a *API) handleGetRun(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	run, err := a.reader.Get(ctx, chi.URLParam(r, "runID"))
	switch {
	case errors.Is(err, ErrNotFound):
		respondError(w, http.StatusNotFound, err)
		return
	case err != nil:
		a.logger.Error().Err(err).Msg("get run")
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"run": run})
}

func (a *API) handleGetReport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	md, err := a.reader.Report(ctx, chi.URLParam(r, "runID"))
	switch {
	case errors.Is(err, ErrNotFound):
		respondError(w, http.StatusNotFound, err)
		return
	case err != nil:
		a.logger.Error().Err(err).Msg("get report")
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(md))
}

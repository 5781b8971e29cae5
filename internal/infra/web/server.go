package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"batch-transcription-service/internal/domain"
	"batch-transcription-service/internal/infra/sched"
	"batch-transcription-service/internal/infra/worker"
	"batch-transcription-service/internal/usecase"
)

// Server wires the HTTP surface: batch lifecycle, on-demand transcription,
// poller control and the operational endpoints.
type Server struct {
	subUC   *usecase.SubmissionUseCase
	chunkUC *usecase.ChunkUseCase
	poller  *sched.BatchPoller
	pool    *worker.Pool
	auth    *AuthManager
	limiter *RateLimit

	apiKey       string
	pollInterval time.Duration
	uploadDir    string
	log          zerolog.Logger
}

func NewServer(
	subUC *usecase.SubmissionUseCase,
	chunkUC *usecase.ChunkUseCase,
	poller *sched.BatchPoller,
	pool *worker.Pool,
	auth *AuthManager,
	limiter *RateLimit,
	apiKey string,
	pollInterval time.Duration,
	uploadDir string,
	log zerolog.Logger,
) *Server {
	return &Server{
		subUC:        subUC,
		chunkUC:      chunkUC,
		poller:       poller,
		pool:         pool,
		auth:         auth,
		limiter:      limiter,
		apiKey:       apiKey,
		pollInterval: pollInterval,
		uploadDir:    uploadDir,
		log:          log.With().Str("component", "web").Logger(),
	}
}

// Routes builds the router. Health and metrics are public; everything else
// sits behind authentication.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/auth/session", s.handleMintSession)
	r.Delete("/auth/session", s.handleClearSession)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/batch", func(r chi.Router) {
			r.With(s.limitSubmit).Post("/submit", s.handleSubmit)
			r.Get("/list", s.handleList)
			r.Get("/poller", s.handlePollerStatus)
			r.Post("/poller", s.handlePollerControl)
			r.Route("/{jobID}", func(r chi.Router) {
				r.Get("/status", s.handleStatus)
				r.Get("/items", s.handleItems)
				r.Post("/cancel", s.handleCancel)
				r.Get("/results", s.handleResults)
				r.Delete("/delete", s.handleDelete)
			})
		})

		r.Route("/transcribe", func(r chi.Router) {
			r.Post("/", s.handleTranscribe)
			r.Get("/{itemID}", s.handleTranscribeStatus)
			r.Post("/{itemID}/retry", s.handleTranscribeRetry)
			r.Post("/{itemID}/stop", s.handleTranscribeStop)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeErr maps domain errors onto HTTP codes and always returns a
// machine-readable code plus a human-readable error string.
func writeErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNoResults):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrEmptyFile),
		errors.Is(err, domain.ErrFileTooLarge),
		errors.Is(err, domain.ErrJobNotCancellable),
		errors.Is(err, domain.ErrJobTerminal),
		errors.Is(err, domain.ErrJobActive),
		errors.Is(err, domain.ErrItemNotRetryable):
		code = http.StatusBadRequest
	}
	writeJSON(w, code, map[string]any{"code": code, "error": err.Error()})
}

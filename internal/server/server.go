// Package server exposes the sync engine, the ingestion pool, the profile
// registry, and the RAG chat surface over HTTP. Every response uses the
// {code, msg, data} envelope; errors carry their transport status in both
// the HTTP status line and the envelope code.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pxh52013145/VNote/internal/dify"
	"github.com/pxh52013145/VNote/internal/library"
	"github.com/pxh52013145/VNote/internal/profile"
	"github.com/pxh52013145/VNote/internal/raghistory"
	"github.com/pxh52013145/VNote/internal/sync"
	"github.com/pxh52013145/VNote/internal/task"
)

// defaultRateLimit caps requests per client IP per minute. Generous on
// purpose: the UI polls task status aggressively while a note renders.
const defaultRateLimit = 600

// Knowledge is the slice of the RAG dataset API the handlers consume:
// retrieval for chat citations and batch polling for indexing previews.
// Satisfied by *dify.KnowledgeClient.
type Knowledge interface {
	Retrieve(ctx context.Context, datasetID, query string, topK int, scoreThreshold *float64) (*dify.RetrieveResponse, error)
	BatchIndexingStatus(ctx context.Context, datasetID, batch string) (*dify.IndexingStatusResponse, error)
}

// Chatter is the chat-application surface of the RAG service.
// Satisfied by *dify.ChatClient.
type Chatter interface {
	Chat(ctx context.Context, req dify.ChatRequest) (*dify.ChatResponse, error)
}

// Config holds the collaborators for New. The two constructor fields
// default to the real clients; tests swap in fakes.
type Config struct {
	Engine   *sync.Engine
	Library  *library.Store
	Registry *profile.Registry
	Pool     *task.Pool
	History  *raghistory.Store
	Dify     dify.Config // environment defaults; the active profile overlays these
	Logger   *slog.Logger

	// RateLimit caps requests per client IP per minute. Zero applies
	// defaultRateLimit; negative disables the limiter.
	RateLimit int

	// EventPoll is how often the task event stream re-reads the status
	// document. Zero applies defaultEventPoll.
	EventPoll time.Duration

	NewKnowledge func(cfg dify.Config) Knowledge
	NewChat      func(cfg dify.Config) Chatter
}

// Server carries the handler state. Construct with New, mount with Handler.
type Server struct {
	cfg    Config
	logger *slog.Logger
}

// New wires a Server. Engine and Library are required by the sync and task
// endpoints respectively; the rest degrade to sensible defaults.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	logger := cfg.Logger
	if cfg.NewKnowledge == nil {
		cfg.NewKnowledge = func(dc dify.Config) Knowledge {
			return dify.NewKnowledgeClient(dc, nil, logger)
		}
	}

	if cfg.NewChat == nil {
		cfg.NewChat = func(dc dify.Config) Chatter {
			return dify.NewChatClient(dc, nil, logger)
		}
	}

	return &Server{cfg: cfg, logger: cfg.Logger}
}

// Handler assembles the router. The rate limiter sits after the logger so
// rejected requests still show up in the request log.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	if limit := s.rateLimit(); limit > 0 {
		r.Use(httprate.Limit(
			limit,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, req *http.Request) {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			}),
		))
	}

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/sync", func(r chi.Router) {
		r.Post("/scan", s.handleScan)
		r.Get("/items", s.handleItems)
		r.Post("/push", s.handlePush)
		r.Post("/pull", s.handlePull)
		r.Post("/copy", s.handleCopy)
		r.Post("/delete_remote", s.handleDeleteRemote)
	})

	r.Get("/dify_config", s.handleGetDifyConfig)
	r.Post("/dify_config", s.handleUpdateDifyConfig)

	r.Get("/dify_profiles", s.handleListProfiles)
	r.Post("/dify_profiles", s.handleUpsertProfile)
	r.Post("/dify_profiles/activate", s.handleActivateProfile)
	r.Delete("/dify_profiles/{name}", s.handleDeleteProfile)

	r.Post("/dify_app_schemes", s.handleUpsertAppScheme)
	r.Post("/dify_app_schemes/activate", s.handleActivateAppScheme)
	r.Delete("/dify_app_schemes/{name}", s.handleDeleteAppScheme)

	r.Post("/generate", s.handleGenerate)
	r.Get("/task_status/{id}", s.handleTaskStatus)
	r.Delete("/task/{id}", s.handleDeleteTask)
	r.Get("/tasks/{id}/events", s.handleTaskEvents)

	r.Post("/rag/chat", s.handleRagChat)
	r.Get("/rag/history", s.handleRagHistory)
	r.Delete("/rag/history", s.handleClearRagHistory)

	return r
}

func (s *Server) rateLimit() int {
	if s.cfg.RateLimit != 0 {
		return s.cfg.RateLimit
	}

	return defaultRateLimit
}

// activeDify resolves the effective RAG config: the active profile overlaid
// on the environment defaults. Registry failures fall back to the defaults
// so a corrupt registry file degrades rather than breaks the RAG surface.
func (s *Server) activeDify() dify.Config {
	if s.cfg.Registry == nil {
		return s.cfg.Dify.Normalized()
	}

	cfg, err := s.cfg.Registry.Resolve(s.cfg.Dify)
	if err != nil {
		s.logger.Warn("profile registry read failed, using environment defaults", "error", err)
		return s.cfg.Dify.Normalized()
	}

	return cfg
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeData(w, map[string]any{"status": "ok"})
}

// requestLogger logs one line per request with the chi request id, after
// the handler ran so the status and duration are known.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}

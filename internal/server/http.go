package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alfredjeanlab/tutorsheets/internal/conversation"
)

// maxMessageBytes bounds a conversation message body.
const maxMessageBytes = 16 << 10

// HTTPOptions configures NewHTTPHandler.
type HTTPOptions struct {
	Logger *slog.Logger
	// Gatherer backs /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
	// Engine backs the conversation routes. Nil disables them.
	Engine *conversation.Engine
	// Ready reports backend readiness for /v1/ready. Nil means always ready.
	Ready func(ctx context.Context) error
	// AuthToken, when non-empty, is required on every route but /v1/health.
	AuthToken string
}

type httpHandler struct {
	logger *slog.Logger
	engine *conversation.Engine
	ready  func(ctx context.Context) error
}

// NewHTTPHandler returns an http.Handler with all routes registered.
func NewHTTPHandler(opts HTTPOptions) http.Handler {
	h := &httpHandler{logger: opts.Logger, engine: opts.Engine, ready: opts.Ready}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(AuthMiddleware(opts.AuthToken))

	r.Get("/v1/health", h.handleHealth)
	r.Get("/v1/ready", h.handleReady)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if opts.Engine != nil {
		r.Route("/v1/conversations/{identity}", func(r chi.Router) {
			r.Post("/messages", h.handleMessage)
			r.Delete("/", h.handleCancel)
		})
	}
	return r
}

// requestLogger logs one line per request with chi's request id.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// handleHealth handles GET /v1/health.
func (h *httpHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady handles GET /v1/ready.
func (h *httpHandler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type messageRequest struct {
	Text string `json:"text"`
}

// handleMessage handles POST /v1/conversations/{identity}/messages.
func (h *httpHandler) handleMessage(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	var req messageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	reply, err := h.engine.Handle(r.Context(), identity, req.Text)
	if err != nil {
		h.conversationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// handleCancel handles DELETE /v1/conversations/{identity}.
func (h *httpHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	reply, err := h.engine.Cancel(r.Context(), chi.URLParam(r, "identity"))
	if err != nil {
		h.conversationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *httpHandler) conversationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversation.ErrNoSession):
		writeError(w, http.StatusNotFound, "no active conversation; start one with /<flow>")
	case errors.Is(err, conversation.ErrUnknownFlow):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("conversation failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

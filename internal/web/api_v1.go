package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/roasbeef/learnhub/internal/apperr"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-Id"

// APIError is the error response body.
type APIError struct {
	Error APIErrorDetail `json:"error"`
}

// APIErrorDetail contains error details.
type APIErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// registerAPIV1Routes registers all /api/v1/ routes.
func (s *Server) registerAPIV1Routes() {
	limited := func(next http.HandlerFunc) http.HandlerFunc {
		return s.deps.Limiter.Middleware(
			s.cfg.RateLimit, s.cfg.RateWindow, s.rejectRateLimited,
		)(next).ServeHTTP
	}

	api := func(handler http.HandlerFunc) http.HandlerFunc {
		return corsMiddleware(jsonMiddleware(handler))
	}

	s.mux.HandleFunc("/api/v1/health", api(s.handleAPIV1Health))
	s.mux.HandleFunc("/api/v1/stats", api(s.handleAPIV1Stats))

	// Learning plans.
	s.mux.HandleFunc("/api/v1/learning-plan/submit",
		api(limited(s.handleAPIV1PlanSubmit)))
	s.mux.HandleFunc("/api/v1/learning-plan/webhook",
		api(s.handleAPIV1PlanWebhook))
	s.mux.HandleFunc("/api/v1/learning-plan", api(s.handleAPIV1Plan))

	// Summaries and transcripts.
	s.mux.HandleFunc("/api/v1/summarize",
		api(limited(s.handleAPIV1Summarize)))
	s.mux.HandleFunc("/api/v1/transcript", api(s.handleAPIV1Transcript))
}

// corsMiddleware answers preflights and reflects the caller's origin.
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods",
				"GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers",
				"Content-Type, Authorization")
			h.Set("Access-Control-Expose-Headers",
				"X-Plan-Request-Id, Retry-After, "+RequestIDHeader)
			h.Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// jsonMiddleware defaults the response content type to JSON.
func jsonMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next(w, r)
	}
}

// statusRecorder remembers the status written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withRequestLog tags each request with an id and logs its outcome.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, reqID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		level := slog.LevelDebug
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.log.Log(r.Context(), level, "HTTP request",
			"request_id", reqID, "method", r.Method,
			"path", r.URL.Path, "status", rec.status,
			"duration", time.Since(start))
	})
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("Error encoding JSON response", "err", err)
	}
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, code,
	message string) {

	s.writeJSON(w, status, APIError{
		Error: APIErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeAppError maps err onto a status and a caller-safe message. Internal
// detail is included only in dev mode.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request,
	err error) {

	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	body := APIError{
		Error: APIErrorDetail{
			Code:    string(kind),
			Message: apperr.PublicMessage(err),
		},
	}
	if s.cfg.DevMode {
		body.Error.Details = map[string]any{
			"detail": apperr.DevDetail(err),
		}
	}

	switch {
	case status >= http.StatusInternalServerError:
		s.log.ErrorContext(r.Context(), "Request failed",
			"path", r.URL.Path, "kind", kind, "err", err)

	case kind != apperr.KindNotFound:
		s.log.DebugContext(r.Context(), "Request rejected",
			"path", r.URL.Path, "kind", kind, "err", err)
	}

	s.writeJSON(w, status, body)
}

// rejectRateLimited answers a request the local limiter refused.
func (s *Server) rejectRateLimited(w http.ResponseWriter, r *http.Request,
	retryAfter time.Duration) {

	s.writeJSON(w, http.StatusTooManyRequests, APIError{
		Error: APIErrorDetail{
			Code:    "RATE_LIMITED",
			Message: "Too many requests, please try again later",
			Details: map[string]any{
				"retry_after_seconds": int(retryAfter.Seconds()),
			},
		},
	})
}

// methodNotAllowed rejects a request with a method the route lacks.
func (s *Server) methodNotAllowed(w http.ResponseWriter, allow ...string) {
	for _, m := range allow {
		w.Header().Add("Allow", m)
	}
	s.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
		"Method not allowed")
}

// handleAPIV1Health handles GET /api/v1/health.
func (s *Server) handleAPIV1Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"store":   s.deps.StoreBackend,
		"version": s.cfg.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// handleAPIV1Stats handles GET /api/v1/stats.
func (s *Server) handleAPIV1Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	stats := map[string]any{
		"rate_limiter": map[string]any{
			"buckets": s.deps.Limiter.Len(),
			"limit":   s.cfg.RateLimit,
			"window":  strconv.Itoa(int(s.cfg.RateWindow.Seconds())) + "s",
		},
	}
	if s.deps.SummaryCache != nil {
		stats["cache"] = s.deps.SummaryCache.Stats()
	}
	if s.deps.Summaries != nil {
		stats["summaries"] = s.deps.Summaries.Stats()
	}
	if s.deps.Plans != nil {
		stats["plans"] = s.deps.Plans.Stats()
	}

	s.writeJSON(w, http.StatusOK, stats)
}

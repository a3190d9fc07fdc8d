// Package httpapi serves the public lookup endpoint, the WebSocket mount,
// and the ambient health and metrics endpoints.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cotimer/server/internal/health"
	"github.com/cotimer/server/internal/logging"
	"github.com/cotimer/server/internal/protocol"
	"github.com/cotimer/server/internal/session"
)

var log = logging.L("httpapi")

// Server assembles the HTTP routes around the session store. The WebSocket
// handler is mounted as-is; its lifecycle belongs to the transport.
type Server struct {
	store    *session.Store
	ws       http.Handler
	health   *health.Monitor
	gatherer prometheus.Gatherer
}

// NewServer builds the route layer. A nil gatherer falls back to the
// default Prometheus registry; a nil monitor reports plain ok.
func NewServer(store *session.Store, ws http.Handler, monitor *health.Monitor, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{store: store, ws: ws, health: monitor, gatherer: gatherer}
}

// Routes returns the full router. withWS controls whether the WebSocket
// endpoint is mounted here; it is false when a dedicated WebSocket listener
// runs on its own port.
func (s *Server) Routes(withWS bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/api/session/{sessionID}", s.handleGetSession)
	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	if withWS {
		r.Handle("/ws", s.ws)
	}
	return r
}

// WSRoutes returns a router that serves only the WebSocket endpoint, for
// deployments that split it onto a separate port.
func (s *Server) WSRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/ws", s.ws)
	return r
}

// handleGetSession serves the sanitized external form of one session. The
// timer is synced first so remaining time is current at read.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := protocol.FormatSessionID(chi.URLParam(r, "sessionID"))
	if !protocol.ValidSessionID(id) {
		s.notFound(w)
		return
	}

	sess, ok := s.store.Get(id)
	if !ok {
		s.notFound(w)
		return
	}

	sess.Lock()
	snap := sess.Snapshot(sess.Timer.Sync().Public())
	sess.Unlock()

	writeJSON(w, http.StatusOK, snap)
}

type healthResponse struct {
	Status     string            `json:"status"`
	Sessions   int               `json:"sessions"`
	Clients    int               `json:"clients"`
	Components map[string]string `json:"components,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Sessions: s.store.Len()}
	s.store.Range(func(sess *session.Session) bool {
		sess.Lock()
		resp.Clients += sess.OnlineCount()
		sess.Unlock()
		return true
	})

	code := http.StatusOK
	if s.health != nil {
		if checks := s.health.All(); len(checks) > 0 {
			resp.Components = make(map[string]string, len(checks))
			for _, c := range checks {
				resp.Components[c.Name] = string(c.Status)
			}
		}
		switch s.health.Overall() {
		case health.Degraded:
			resp.Status = "degraded"
		case health.Unhealthy:
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, resp)
}

type errorResponse struct {
	Message string `json:"message"`
}

func (s *Server) notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, errorResponse{Message: "Session not found"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("response encode failed", logging.KeyError, err)
	}
}

// requestLogger records completed requests at debug so production logs stay
// quiet on the hot lookup path.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

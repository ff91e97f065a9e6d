// Package web serves the inbox HTTP API and the realtime event stream.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/asheshgoplani/inbox-deck/internal/eventbus"
	"github.com/asheshgoplani/inbox-deck/internal/logging"
	"github.com/asheshgoplani/inbox-deck/internal/service"
	"github.com/asheshgoplani/inbox-deck/internal/store"
)

// Config configures the HTTP server.
type Config struct {
	ListenAddr string
	Profile    string
	Token      string
	ReadOnly   bool
	// RateLimit is the sustained number of API requests per second across
	// all clients. Zero disables limiting.
	RateLimit float64
	Burst     int

	Service *service.Service
	// Bus feeds the /ws/events stream. A private bus is created when nil.
	Bus *eventbus.EventBus
}

// Server wraps the HTTP server state.
type Server struct {
	cfg        Config
	svc        *service.Service
	eventHub   *eventbus.Hub
	limiter    *rate.Limiter
	httpServer *http.Server

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// NewServer creates a new web server with base routes and middleware.
func NewServer(cfg Config) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8430"
	}
	bus := cfg.Bus
	if bus == nil {
		bus = eventbus.New()
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		svc:        cfg.Service,
		eventHub:   eventbus.NewHub(bus),
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = int(cfg.RateLimit) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/projects", s.handleProjects)
	mux.HandleFunc("/api/projects/search", s.handleProjectSearch)
	mux.HandleFunc("/api/projects/{id}", s.handleProject)
	mux.HandleFunc("/api/emails", s.handleEmails)
	mux.HandleFunc("/api/emails/{id}", s.handleEmail)
	mux.HandleFunc("/api/emails/{id}/suggestions", s.handleEmailSuggestions)
	mux.HandleFunc("/api/emails/{id}/thread", s.handleEmailThread)
	mux.HandleFunc("/api/emails/{id}/link", s.handleEmailLink)
	mux.HandleFunc("/ws/events", s.handleEventBusWS)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.withRateLimit(s.withRecover(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}
	return s
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the bound address once Start is listening, and the configured
// address before that.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.ListenAddr
}

// Start begins listening and blocks until the server stops. A clean shutdown
// returns nil.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	logging.ForComponent(logging.CompWeb).Info("server_listening",
		slog.String("addr", ln.Addr().String()),
		slog.Bool("read_only", s.cfg.ReadOnly),
		slog.Bool("auth", s.cfg.Token != ""))

	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server and disconnects event clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelBase()
	s.eventHub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	status := http.StatusOK
	body := map[string]any{
		"ok":       true,
		"profile":  s.cfg.Profile,
		"readOnly": s.cfg.ReadOnly,
		"time":     time.Now().UTC().Format(time.RFC3339),
	}
	if s.svc != nil {
		if err := s.svc.Ping(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["ok"] = false
			body["error"] = err.Error()
		}
	}
	writeJSON(w, status, body)
}

// authorizeRequest accepts "Authorization: Bearer <token>" or ?token=.
// Every request is authorized when no token is configured.
func (s *Server) authorizeRequest(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}
	token := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Token)) == 1
}

// guard runs the checks shared by every API handler. It writes the error
// response and returns false when the request must not proceed.
func (s *Server) guard(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	allowed := false
	for _, m := range methods {
		if r.Method == m {
			allowed = true
			break
		}
	}
	if !allowed {
		w.Header().Set("Allow", strings.Join(methods, ", "))
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return false
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return false
	}
	if s.cfg.ReadOnly && r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeAPIError(w, http.StatusForbidden, "READ_ONLY", "server is in read-only mode")
		return false
	}
	if s.svc == nil {
		writeAPIError(w, http.StatusServiceUnavailable, "INTERNAL_ERROR", "storage is not configured")
		return false
	}
	return true
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeAPIError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logging.ForComponent(logging.CompWeb).Error("handler_panic",
					slog.String("path", r.URL.Path),
					slog.Any("panic", rec))
				writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// writeServiceError maps store errors onto API responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, store.ErrInvalidID):
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, store.ErrConflict):
		writeAPIError(w, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	default:
		logging.ForComponent(logging.CompWeb).Error("request_failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]apiError{
		"error": {Code: code, Message: message},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

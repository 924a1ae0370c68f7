// Package server exposes the chat, quiz, catalog and admin HTTP API.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nstogner/glow/pkg/agent"
	"github.com/nstogner/glow/pkg/auth"
	"github.com/nstogner/glow/pkg/campaign"
	"github.com/nstogner/glow/pkg/catalog"
	"github.com/nstogner/glow/pkg/conversation"
	"github.com/nstogner/glow/pkg/mail"
	"github.com/nstogner/glow/pkg/store"
	"github.com/nstogner/glow/pkg/tools"
)

// Deps are the services the server routes to.
type Deps struct {
	Conversations  *conversation.Service
	Store          store.Store
	Tools          *tools.Registry
	Campaigns      *campaign.Sender
	Auth           *auth.Verifier
	Limiter        *RateLimiter
	AllowedOrigins []string
}

// Server serves the REST and websocket API.
type Server struct {
	Deps

	mu  sync.Mutex
	srv *http.Server
}

// New creates a new Server.
func New(d Deps) *Server {
	if d.Limiter == nil {
		d.Limiter = NewRateLimiter(0, 0)
	}
	return &Server{Deps: d}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Chat
	mux.Handle("POST /api/chat", s.requireAuth(s.rateLimited(http.HandlerFunc(s.handleChat))))
	mux.Handle("GET /api/chat/ws", s.requireAuth(http.HandlerFunc(s.handleChatWebSocket)))

	// Conversations
	mux.Handle("GET /api/conversations", s.requireAuth(http.HandlerFunc(s.handleListConversations)))
	mux.Handle("GET /api/conversations/{id}", s.requireAuth(http.HandlerFunc(s.handleGetConversation)))
	mux.Handle("DELETE /api/conversations/{id}", s.requireAuth(http.HandlerFunc(s.handleDeleteConversation)))
	mux.Handle("PATCH /api/conversations/{id}/messages/{messageID}/metadata", s.requireAuth(http.HandlerFunc(s.handleBackfillMetadata)))

	// Quiz and catalog
	mux.HandleFunc("POST /api/quiz", s.handleQuiz)
	mux.HandleFunc("GET /api/products", s.handleSearchProducts)

	// Admin
	mux.Handle("GET /api/admin/users", s.requireAdmin(http.HandlerFunc(s.handleListUsers)))
	mux.Handle("GET /api/admin/templates", s.requireAdmin(http.HandlerFunc(s.handleListTemplates)))
	mux.Handle("POST /api/admin/templates", s.requireAdmin(http.HandlerFunc(s.handleCreateTemplate)))
	mux.Handle("GET /api/admin/templates/{id}", s.requireAdmin(http.HandlerFunc(s.handleGetTemplate)))
	mux.Handle("PUT /api/admin/templates/{id}", s.requireAdmin(http.HandlerFunc(s.handleUpdateTemplate)))
	mux.Handle("DELETE /api/admin/templates/{id}", s.requireAdmin(http.HandlerFunc(s.handleDeleteTemplate)))
	mux.Handle("GET /api/admin/campaigns", s.requireAdmin(http.HandlerFunc(s.handleListCampaigns)))
	mux.Handle("POST /api/admin/campaigns", s.requireAdmin(http.HandlerFunc(s.handleCreateCampaign)))
	mux.Handle("POST /api/admin/campaigns/{id}/send", s.requireAdmin(http.HandlerFunc(s.handleSendCampaign)))
	mux.Handle("POST /api/admin/products/import", s.requireAdmin(http.HandlerFunc(s.handleImportProducts)))

	return s.logRequests(s.corsMiddleware(mux))
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	slog.Info("Starting web server", "addr", addr)
	return srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// originAllowed accepts every origin when none are configured.
func (s *Server) originAllowed(origin string) bool {
	if len(s.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range s.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack passes through to the underlying writer for websocket upgrades.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

// requireAuth rejects requests without a valid identity token.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.Auth.FromRequest(r)
		if err != nil {
			s.errorResponse(w, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

// requireAdmin accepts identities flagged admin in the token, the config
// admin list or the user store.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return s.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := auth.FromContext(r.Context())
		if !id.Admin {
			u, err := s.Store.GetUser(r.Context(), id.Email)
			if err != nil || !u.IsAdmin {
				s.errorResponse(w, http.StatusForbidden, auth.ErrForbidden)
				return
			}
			admin := *id
			admin.Admin = true
			r = r.WithContext(auth.WithIdentity(r.Context(), &admin))
		}
		next.ServeHTTP(w, r)
	}))
}

// optionalIdentity returns the caller's identity when the request carries a
// valid token.
func (s *Server) optionalIdentity(r *http.Request) *auth.Identity {
	id, err := s.Auth.FromRequest(r)
	if err != nil {
		return nil
	}
	return id
}

func (s *Server) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := auth.FromContext(r.Context())
		if !s.Limiter.Allow(id.Email) {
			s.errorResponse(w, http.StatusTooManyRequests, errRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

var errRateLimited = errors.New("too many requests, slow down")

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.Error("API Error", "status", status, "error", err)
	} else {
		slog.Debug("API Error", "status", status, "error", err)
	}
	s.jsonResponse(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, agent.ErrNoMessages),
		errors.Is(err, conversation.ErrInvalidMessage),
		errors.Is(err, tools.ErrInvalidInput),
		errors.Is(err, catalog.ErrInvalidCSV),
		errors.Is(err, mail.ErrInvalidMessage):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, campaign.ErrAlreadySent):
		return http.StatusConflict
	case errors.Is(err, conversation.ErrTurnFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// failTurn is the message shown for a turn that could not complete.
const failTurn = "Sorry, something went wrong while answering. Please try again."

// fail writes err with the status it maps to. Agent failures get a generic
// message so upstream details stay in the logs.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusBadGateway {
		slog.Error("Chat turn failed", "error", err)
		s.jsonResponse(w, status, map[string]string{"error": failTurn})
		return
	}
	s.errorResponse(w, status, err)
}

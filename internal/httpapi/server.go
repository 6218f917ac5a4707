// Package httpapi serves a read-only JSON view of the ledger.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"FamilyPoints/internal/ledger"
	"FamilyPoints/internal/model"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// Server is the status HTTP server.
type Server struct {
	router   *mux.Router
	server   *http.Server
	store    *ledger.Store
	registry *ledger.Registry
	logger   *zap.Logger
	addr     string
}

// NewServer creates a server over store. Nothing listens until Start.
func NewServer(store *ledger.Store, registry *ledger.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router:   mux.NewRouter(),
		store:    store,
		registry: registry,
		logger:   logger.Named("httpapi"),
	}
	s.router.Use(loggingMiddleware(s.logger))
	s.router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	s.router.HandleFunc("/api/standings", s.standings).Methods(http.MethodGet)
	s.router.HandleFunc("/api/accounts/{account_id}", s.account).Methods(http.MethodGet)
	s.router.HandleFunc("/api/history", s.history).Methods(http.MethodGet)
	return s
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.addr = listener.Addr().String()
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info("status api listening", zap.String("addr", s.addr))
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status api stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr is the bound address after Start.
func (s *Server) Addr() string {
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down status api")
	return s.server.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) standings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Standings())
}

func (s *Server) account(w http.ResponseWriter, r *http.Request) {
	id := model.AccountID(mux.Vars(r)["account_id"])
	bal, ok := s.store.Balance(id)
	if !ok {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, model.Standing{
		ID:      id,
		Name:    s.registry.Resolve(id),
		Balance: bal,
		Pool:    id == s.store.Policy().ID,
	})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	entries := s.store.RecentHistory(limit)
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func loggingMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Debug("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.statusCode),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

// responseWriter captures the status code for logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

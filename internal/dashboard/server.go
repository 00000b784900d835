// Package dashboard serves the bot's session status over HTTP.
package dashboard

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/eddiefleurent/condor_bot/internal/models"
	"github.com/eddiefleurent/condor_bot/internal/trading"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// SessionSource provides the current session snapshot.
type SessionSource interface {
	Snapshot() trading.Snapshot
}

// PortfolioSource fetches the account portfolio.
type PortfolioSource interface {
	GetPortfolio(ctx context.Context) (*models.Portfolio, error)
}

// Config holds the server settings.
type Config struct {
	Address   string
	AuthToken string
}

// Server is the status HTTP server.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	session   SessionSource
	portfolio PortfolioSource
	metrics   http.Handler
	logger    logrus.FieldLogger
	address   string
	authToken string
}

// NewServer wires the routes. portfolio and metrics may be nil, which
// leaves their routes out.
func NewServer(cfg Config, session SessionSource, portfolio PortfolioSource, metrics http.Handler,
	logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		router:    chi.NewRouter(),
		session:   session,
		portfolio: portfolio,
		metrics:   metrics,
		logger:    logger,
		address:   cfg.Address,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/session", s.handleGetSession)
	if s.portfolio != nil {
		s.router.Get("/api/portfolio", s.handleGetPortfolio)
	}
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("Dashboard request")
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start listens on the configured address until Shutdown is called. It
// returns nil at once if Shutdown already ran.
func (s *Server) Start() error {
	s.logger.Infof("Starting dashboard server on %s", s.address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}
	s.writeJSON(w, health)
}

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.session.Snapshot())
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	portfolio, err := s.portfolio.GetPortfolio(r.Context())
	if err != nil {
		s.logger.WithError(err).Warn("Failed to get portfolio")
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	s.writeJSON(w, portfolio)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

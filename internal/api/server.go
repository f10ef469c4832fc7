// Package api exposes a read-only HTTP view of the live workflow: current
// snapshot, navigation guard and notification history. All mutation goes
// through the CLI; the API never writes.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/hbanerjee74/skill-builder/internal/coordinator"
	"github.com/hbanerjee74/skill-builder/internal/events"
	"github.com/hbanerjee74/skill-builder/internal/logging"
)

// Server serves the status API for one live coordinator.
type Server struct {
	router chi.Router
	coord  *coordinator.Coordinator
	bus    *events.Bus
	log    *logging.Logger
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(log *logging.Logger) ServerOption {
	return func(s *Server) {
		s.log = log
	}
}

// NewServer creates a status API server.
func NewServer(coord *coordinator.Coordinator, bus *events.Bus, opts ...ServerOption) *Server {
	s := &Server{
		coord: coord,
		bus:   bus,
		log:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
		MaxAge:         300,
	})
	r.Use(corsHandler.Handler)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		// The event stream stays open indefinitely; only the snapshot
		// endpoints get the request timeout.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Get("/state", s.handleState)
			r.Get("/guard", s.handleGuard)
			r.Get("/notifications", s.handleNotifications)
		})
		r.Get("/events", s.handleEvents)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.log.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleState returns the full workflow snapshot.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.coord.Snapshot(r.Context()))
}

// guardResponse mirrors the navigation guard decision.
type guardResponse struct {
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason,omitempty"`
}

// handleGuard returns whether navigation away should be intercepted.
func (s *Server) handleGuard(w http.ResponseWriter, _ *http.Request) {
	blocked, reason := s.coord.Guard()
	respondJSON(w, http.StatusOK, guardResponse{Blocked: blocked, Reason: reason})
}

// handleNotifications returns the retained notification history.
func (s *Server) handleNotifications(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.bus.History())
}

// ListenAndServe starts the HTTP server and shuts it down when the context
// is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

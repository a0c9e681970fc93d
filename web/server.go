// Package web provides the HTTP server that hosts the REST API.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"zplink/api"
	"zplink/config"
	"zplink/engine"
	"zplink/logging"
)

// Server is the HTTP server for the REST API and event stream.
type Server struct {
	config  *config.WebConfig
	engine  *engine.Engine
	server  *http.Server
	router  chi.Router
	running bool
	mu      sync.RWMutex

	// Cleanup for the API event hub and its engine subscription
	apiCleanup func()
}

// NewServer creates a web server bound to an engine.
func NewServer(cfg *config.WebConfig, eng *engine.Engine) *Server {
	s := &Server{
		config: cfg,
		engine: eng,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures the chi router with all routes.
func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS for API
	r.Use(corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/", s.handleIndex)

	// Mount REST API at /api
	if s.config.API.Enabled {
		apiRouter, apiCleanup := api.NewRouter(s.engine)
		s.apiCleanup = apiCleanup
		r.Mount("/api", apiRouter)
	}

	s.router = r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// indexResponse is served at the root so a browser pointed at the port gets
// a hint instead of a 404.
type indexResponse struct {
	Service   string `json:"service"`
	Namespace string `json:"namespace"`
	API       string `json:"api,omitempty"`
	Events    string `json:"events,omitempty"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	resp := indexResponse{
		Service:   "zplink",
		Namespace: s.engine.GetSettings().Namespace,
	}
	if s.config.API.Enabled {
		resp.API = "/api"
		resp.Events = "/api/events/ws"
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// debugLogWriter adapts logging.DebugLog to an io.Writer for use with log.Logger.
type debugLogWriter string

func (tag debugLogWriter) Write(p []byte) (n int, err error) {
	logging.DebugLog(string(tag), "%s", string(p))
	return len(p), nil
}

// Verify debugLogWriter implements io.Writer.
var _ io.Writer = debugLogWriter("")

// corsMiddleware adds CORS headers for API access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start begins the HTTP server.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          log.New(debugLogWriter("api"), "", 0),
	}

	srv := s.server
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logging.DebugLog("api", "server on %s stopped: %v", addr, err)
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()

	s.running = true
	return nil
}

// Stop halts the HTTP server gracefully.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stop API event hub and its subscription
	if s.apiCleanup != nil {
		s.apiCleanup()
		s.apiCleanup = nil
	}

	if !s.running || s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(ctx)
	s.running = false
	s.server = nil
	return err
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Address returns the server address.
func (s *Server) Address() string {
	return fmt.Sprintf("http://%s:%d", s.config.Host, s.config.Port)
}

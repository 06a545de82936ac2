package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/stock-sync/internal/cache"
	"github.com/stock-sync/internal/database"
	"github.com/stock-sync/internal/services"
	"github.com/stock-sync/pkg/config"
	"github.com/stock-sync/pkg/logger"
)

// Server exposes sync status and an async run trigger over HTTP.
type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	router     *mux.Router
	httpServer *http.Server

	mysqlDB    *database.MySQLClient
	redisCache *cache.RedisClient
	runner     *services.Runner
}

// NewServer creates a new API server. redisCache may be nil.
func NewServer(
	cfg *config.Config,
	log *logrus.Logger,
	mysqlDB *database.MySQLClient,
	redisCache *cache.RedisClient,
	runner *services.Runner,
) *Server {
	s := &Server{
		cfg:        cfg,
		log:        log,
		mysqlDB:    mysqlDB,
		redisCache: redisCache,
		runner:     runner,
	}

	s.setupRoutes()

	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	s.router.Use(logger.Middleware(s.log))
	s.router.Use(s.recoveryMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	apiV1 := s.router.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/sync/status", s.handleSyncStatus).Methods("GET")
	apiV1.HandleFunc("/sync/status/{symbol}", s.handleSymbolStatus).Methods("GET")
	apiV1.HandleFunc("/sync/run", s.handleSyncRun).Methods("POST")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	var handler http.Handler = s.router

	if s.cfg.Server.CORSEnabled {
		handler = handlers.CORS(
			handlers.AllowedOrigins(s.cfg.Server.CORSOrigins),
			handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
			handlers.AllowedHeaders([]string{"Content-Type"}),
		)(handler)
	}
	handler = handlers.CompressHandler(handler)

	addr := s.cfg.GetServerAddr()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.log.WithField("address", addr).Info("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// recoveryMiddleware recovers from handler panics
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.WithField("panic", rec).Error("Handler panic recovered")
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Package server exposes the catalog, configurations and validation reports
// over HTTP, plus a WebSocket stream of bus updates.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"mcuplan/bus"
	"mcuplan/services/catalog"
	"mcuplan/services/config"
	"mcuplan/services/validate"
)

// Config holds server dependencies and settings.
type Config struct {
	Port      int
	Log       zerolog.Logger
	DevMode   bool
	Bus       *bus.Bus
	Catalog   *catalog.Catalog
	Validator *validate.Validator
	Configs   *config.Service

	ProbeTimeout time.Duration // per I2C transaction on the bench
	PingInterval time.Duration // stream keepalive
}

// Server represents the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	port   int

	bus     *bus.Bus
	cat     *catalog.Catalog
	val     *validate.Validator
	configs *config.Service
	conn    *bus.Connection // server-side requests, e.g. monitor stats

	probeTimeout time.Duration
	pingInterval time.Duration
}

func New(cfg Config) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		log:          cfg.Log.With().Str("component", "server").Logger(),
		port:         cfg.Port,
		bus:          cfg.Bus,
		cat:          cfg.Catalog,
		val:          cfg.Validator,
		configs:      cfg.Configs,
		probeTimeout: cfg.ProbeTimeout,
		pingInterval: cfg.PingInterval,
	}
	if s.probeTimeout <= 0 {
		s.probeTimeout = 50 * time.Millisecond
	}
	if s.pingInterval <= 0 {
		s.pingInterval = 30 * time.Second
	}
	if s.bus != nil {
		s.conn = s.bus.NewConnection("server")
	}

	s.setupMiddleware()
	s.setupRoutes(cfg.DevMode)

	// No write timeout: the stream outlives any fixed deadline. Plain
	// handlers are bounded by middleware.Timeout instead.
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes(devMode bool) {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/stream", s.handleStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			if !devMode {
				r.Use(middleware.Compress(5))
			}

			r.Route("/microcontrollers", func(r chi.Router) {
				r.Get("/", s.handleListMCUs)
				r.Get("/{id}", s.handleGetMCU)
				r.Get("/{id}/pins", s.handleGetPins)
			})

			r.Get("/selection", s.handleGetSelection)
			r.Put("/selection", s.handlePutSelection)

			r.Route("/configs/{mcu}", func(r chi.Router) {
				r.Get("/", s.handleGetConfig)
				r.Delete("/", s.handleResetConfig)
				r.Get("/report", s.handleGetReport)
				r.Get("/assignments", s.handleGetAssignments)
				r.Put("/{type}/{instance}", s.handlePutInstance)
				r.Delete("/{type}/{instance}", s.handleDeleteInstance)
			})

			r.Get("/rules/{type}", s.handleGetRules)
			r.Post("/validate", s.handleValidate)
			r.Post("/bench/i2c/probe", s.handleProbe)
		})
	})
}

func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

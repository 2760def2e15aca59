// Package server provides the HTTP server and routing for the accounting
// core's read and advisory API.
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

	"github.com/aprovatas/margind/internal/modules/buyingpower"
	"github.com/aprovatas/margind/internal/modules/journal"
	"github.com/aprovatas/margind/internal/modules/portfolio"
)

// Config holds server configuration
type Config struct {
	Port    int
	DevMode bool
	Log     zerolog.Logger

	PortfolioHandler   *portfolio.Handler
	BuyingPowerHandler *buyingpower.Handler
	JournalHandler     *journal.Handler
	SetupHandler       *SetupHandlers
	SystemHandler      *SystemHandlers
	EventsStream       *EventsStreamHandler
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	port   int
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		port:   cfg.Port,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes(cfg)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(cfg Config) {
	s.router.Get("/health", cfg.SystemHandler.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/portfolio", func(r chi.Router) {
			r.Get("/", cfg.PortfolioHandler.HandleGetSummary)
			r.Get("/cash", cfg.PortfolioHandler.HandleGetCash)
			r.Get("/holdings", cfg.PortfolioHandler.HandleGetHoldings)
			r.Get("/exposures", cfg.PortfolioHandler.HandleGetExposures)
		})

		r.Get("/margin/{symbol}", cfg.BuyingPowerHandler.HandleGetMargin)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/check", cfg.BuyingPowerHandler.HandleCheckOrder)
			r.Post("/size", cfg.BuyingPowerHandler.HandleSizeOrder)
		})

		r.Route("/securities", func(r chi.Router) {
			r.Post("/", cfg.SetupHandler.HandleRegisterSecurity)
			r.Put("/{symbol}/price", cfg.SetupHandler.HandleUpdatePrice)
		})

		r.Post("/fills", cfg.SetupHandler.HandleProcessFill)
		r.Post("/cash", cfg.SetupHandler.HandleSetCash)

		r.Route("/tickets", func(r chi.Router) {
			r.Post("/", cfg.SetupHandler.HandleRegisterTicket)
			r.Delete("/{symbol}/{order_id}", cfg.SetupHandler.HandleRemoveTicket)
		})

		r.Get("/journal/fills", cfg.JournalHandler.HandleGetFills)

		r.Get("/events/stream", cfg.EventsStream.ServeHTTP)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
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

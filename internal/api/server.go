// Package api exposes the token, trading and market-data operations over HTTP.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/oxx-labs/oxx-backend/pkg/logging"
)

type Config struct {
	Host           string
	Port           string
	AllowedOrigins []string
	IdempotencyTTL time.Duration
}

type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     logging.Logger
}

func NewServer(cfg Config, handler *Handler, logger logging.Logger) *Server {
	router := gin.New()
	router.Use(RecoveryMiddleware(logger), RequestIDMiddleware(), MetricsMiddleware())

	s := &Server{router: router, logger: logger}
	s.RegisterRoutes(handler, NewIdempotencyCache(cfg.IdempotencyTTL, logger))

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:           newCORSHandler(cfg.AllowedOrigins, router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func newCORSHandler(allowedOrigins []string, next http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	// Credentials cannot be combined with a wildcard origin.
	allowCredentials := !(len(allowedOrigins) == 1 && allowedOrigins[0] == "*")

	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", IdempotencyKeyHeader, RequestIDHeader},
		ExposedHeaders:   []string{IdempotentReplayHeader, RequestIDHeader},
		AllowCredentials: allowCredentials,
		MaxAge:           600,
	}).Handler(next)
}

func (s *Server) RegisterRoutes(h *Handler, idempotency *IdempotencyCache) {
	s.router.GET("/health", h.HealthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.NoRoute(notFound)

	v1 := s.router.Group("/api/v1")

	tokens := v1.Group("/tokens")
	tokens.POST("", idempotency.Middleware(), h.CreateToken)
	tokens.GET("", h.ListTokens)
	tokens.GET("/:address", h.GetToken)
	tokens.GET("/:address/price", h.GetTokenPrice)
	tokens.GET("/:address/balance/:user", h.GetBalance)

	trades := v1.Group("/trades", idempotency.Middleware())
	trades.POST("/buy", h.Buy)
	trades.POST("/sell", h.Sell)

	v1.GET("/projects/:id", h.GetProject)
	v1.POST("/projects/:id/refresh", h.RefreshProject)

	v1.GET("/journal", h.ListOpenJournalEntries)
	v1.GET("/journal/:id", h.GetJournalEntry)
}

// Handler returns the full handler chain, CORS included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Infof("Starting API server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

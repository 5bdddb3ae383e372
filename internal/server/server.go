package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/busdecode/internal/auth"
	"github.com/danmuck/busdecode/internal/catalog"
	"github.com/danmuck/busdecode/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	serviceName     = "busdecode-api"
	version         = "0.1.0"
	shutdownTimeout = 5 * time.Second
)

// Options configures a Server.
type Options struct {
	Addr        string
	CorsOrigins []string
	// ReportDir holds the files written by the validate stage.
	ReportDir string
	// Auth guards every route except /health and /metrics when set.
	Auth auth.Validator
}

type Server struct {
	ID      string
	Addr    string
	Started time.Time

	registry  *catalog.Registry
	reportDir string
	auth      auth.Validator
	router    *gin.Engine
}

func New(id string, reg *catalog.Registry, opts Options) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", observability.RequestIDHeader},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	if reg == nil {
		reg = catalog.NewRegistry()
	}
	s := &Server{
		ID:        id,
		Addr:      opts.Addr,
		Started:   time.Now(),
		registry:  reg,
		reportDir: opts.ReportDir,
		auth:      opts.Auth,
		router:    r,
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// Serve listens on Addr until ctx is done, then drains in-flight requests.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("server.Server.Serve id=%s addr=%s catalogs=%d", s.ID, s.Addr, len(s.registry.Catalogs()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Info().Msgf("server.Server.Serve id=%s shutting down", s.ID)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}

// Package preview serves a generated site over HTTP for local review.
package preview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/middleware"
)

// Config configures the preview server.
type Config struct {
	Host         string
	Port         int
	Root         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// RequestsPerSecond and Burst limit each client.
	RequestsPerSecond float64
	Burst             int
	Debug             bool
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status string `json:"status"`
	Root   string `json:"root"`
	Site   string `json:"site"`
}

// Server serves the output root, /health and /metrics.
type Server struct {
	cfg     Config
	fs      afero.Fs
	router  *gin.Engine
	limiter *middleware.IPRateLimiter
	logger  *zerolog.Logger
}

// New creates a Server reading the site from fs. A nil fs uses the OS
// filesystem.
func New(cfg Config, fs afero.Fs, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "preview").Logger()
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg: cfg,
		fs:  fs,
		limiter: middleware.NewIPRateLimiter(middleware.RateLimiterConfig{
			RequestsPerSecond: cfg.RequestsPerSecond,
			BurstSize:         cfg.Burst,
		}),
		logger: &l,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(s.logger))

	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	site := http.FileServer(afero.NewHttpFs(fs).Dir(cfg.Root))
	limit := middleware.RateLimitMiddleware(s.limiter)
	router.NoRoute(limit, func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.AbortWithStatus(http.StatusMethodNotAllowed)
			return
		}
		site.ServeHTTP(c.Writer, c.Request)
	})

	s.router = router
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(c *gin.Context) {
	resp := HealthResponse{Status: "ok", Root: s.cfg.Root, Site: "ready"}
	exists, err := afero.DirExists(s.fs, s.cfg.Root)
	if err != nil || !exists {
		resp.Site = "missing"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go s.limiter.RunCleanup(cleanupCtx, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Str("root", s.cfg.Root).Msg("Preview server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("preview server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down preview server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("preview server forced to shutdown: %w", err)
	}
	s.logger.Info().Msg("Preview server exited")
	return nil
}

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deusflow/newsflow/internal/ingest"
)

// Runner is the ingestion side the monitoring endpoints talk to.
type Runner interface {
	Run(ctx context.Context, mode ingest.Mode) (ingest.RunStats, error)
	Running() bool
	Status() ingest.Status
}

type Server struct {
	runner  Runner
	metrics http.Handler
	version string
	logger  *slog.Logger
	engine  *gin.Engine

	// runs triggered over HTTP outlive the request, not the process
	baseCtx context.Context
	wg      sync.WaitGroup
}

// New builds the monitoring server. Runs started through POST /run use
// baseCtx, so cancelling it stops them.
func New(baseCtx context.Context, runner Runner, metrics http.Handler, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		runner:  runner,
		metrics: metrics,
		version: version,
		logger:  logger.With("component", "server"),
		baseCtx: baseCtx,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(s.requestLogger())
	r.Use(gin.Recovery())

	r.GET("/health", s.health)
	r.GET("/status", s.status)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}
	r.POST("/run", s.run)

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "newsflow",
			"version": s.version,
			"endpoints": map[string]string{
				"health":  "/health",
				"status":  "/status",
				"metrics": "/metrics",
				"run":     "/run?mode=fast|full (POST)",
			},
		})
	})
	return r
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("monitoring server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Wait blocks until runs triggered over HTTP have returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP())
	}
}

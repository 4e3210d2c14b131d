package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fakebuster/fakebuster/internal/detect"
	"github.com/fakebuster/fakebuster/internal/messaging"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = "127.0.0.1:7878"

	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultRequestTimeout bounds a single message dispatch.
	DefaultRequestTimeout = 30 * time.Second

	// maxMessageSize caps the request body of POST /v1/messages.
	maxMessageSize = 1 << 20
)

var setModeOnce sync.Once

// Server serves the message bus over HTTP.
type Server struct {
	bus             *messaging.Bus
	router          *gin.Engine
	http            *http.Server
	logger          *slog.Logger
	gatherer        prometheus.Gatherer
	requestTimeout  time.Duration
	shutdownTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.http.Addr = addr
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithRequestTimeout bounds each message dispatch.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// New creates a Server dispatching to bus.
func New(bus *messaging.Bus, opts ...Option) *Server {
	s := &Server{
		bus:             bus,
		http:            &http.Server{Addr: DefaultAddr, ReadHeaderTimeout: 5 * time.Second},
		logger:          slog.Default(),
		gatherer:        prometheus.DefaultGatherer,
		requestTimeout:  DefaultRequestTimeout,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	setModeOnce.Do(func() { gin.SetMode(gin.ReleaseMode) })
	router := gin.New()
	router.Use(recoveryMiddleware(s.logger))
	router.Use(requestIDMiddleware())
	router.Use(loggerMiddleware(s.logger))

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	v1 := router.Group("/v1")
	v1.POST("/messages", s.handleMessage)

	s.router = router
	s.http.Handler = router
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("message bridge listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.logger.Info("message bridge stopped")
	return <-errCh
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleMessage(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxMessageSize))
	if err != nil {
		s.fail(c, http.StatusRequestEntityTooLarge, err)
		return
	}

	msg, err := messaging.Decode(body)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
	defer cancel()

	reply, err := s.bus.Request(ctx, msg)
	if err != nil {
		s.fail(c, statusOf(err), err)
		return
	}
	if reply == nil {
		reply = messaging.Ack{}
	}
	s.reply(c, http.StatusOK, reply)
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	s.reply(c, status, messaging.Error{Message: err.Error()})
}

func (s *Server) reply(c *gin.Context, status int, m messaging.Message) {
	data, err := messaging.Encode(m)
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(status, "application/json", data)
}

// statusOf maps a dispatch error to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, messaging.ErrNoHandler):
		return http.StatusNotFound
	case errors.Is(err, messaging.ErrBusClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, detect.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

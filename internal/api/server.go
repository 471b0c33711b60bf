package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"syspulse/internal/config"
	"syspulse/internal/model"
	"syspulse/internal/notify"
	"syspulse/internal/report"
)

// Store is the slice of storage the API needs.
type Store interface {
	Latest(ctx context.Context) (*model.MetricSample, error)
}

type Reporter interface {
	Render(ctx context.Context, from, to time.Time, format report.Format) ([]byte, error)
}

type Notifier interface {
	Digest(ctx context.Context, period time.Duration) (notify.Result, error)
}

type Health interface {
	Snapshot() map[string]any
}

// Server is the optional operator surface. It only reads shared state; the
// one write path (POST /digest) goes through the notifier, never storage.
type Server struct {
	logger          *slog.Logger
	listen          string
	version         string
	shutdownTimeout time.Duration
	digestPeriod    time.Duration

	store    Store
	reporter Reporter
	notifier Notifier
	health   Health

	engine *gin.Engine
	now    func() time.Time
}

func NewServer(
	logger *slog.Logger,
	cfg config.Config,
	st Store,
	rep Reporter,
	notifier Notifier,
	health Health,
) *Server {
	s := &Server{
		logger:          logger,
		listen:          cfg.API.Listen,
		version:         cfg.AgentVersion,
		shutdownTimeout: cfg.ShutdownTimeout,
		digestPeriod:    cfg.DigestInterval(),
		store:           st,
		reporter:        rep,
		notifier:        notifier,
		health:          health,
		now:             time.Now,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", s.handleHealthz)

	authed := engine.Group("", tokenAuth(cfg.API.Token))
	authed.GET("/samples/latest", s.handleLatest)
	authed.GET("/report", s.handleReport)
	authed.POST("/digest", s.handleDigest)

	s.engine = engine
	return s
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then drains within the shutdown grace.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.listen, Handler: s.engine}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("api shutdown incomplete", "error", err)
		}
	}()

	s.logger.Info("api listening", "addr", s.listen)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("api server: %w", err)
}

// tokenAuth gates requests behind a static bearer token. An empty token
// leaves the surface open.
func tokenAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		if c.GetHeader("Authorization") != "Bearer "+token {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.version,
		"health":  s.health.Snapshot(),
	})
}

func (s *Server) handleLatest(c *gin.Context) {
	sample, err := s.store.Latest(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sample == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no samples"})
		return
	}
	c.JSON(http.StatusOK, sample)
}

func (s *Server) handleReport(c *gin.Context) {
	format, err := report.ParseFormat(c.DefaultQuery("format", "json"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	hours, err := strconv.Atoi(c.DefaultQuery("hours", "24"))
	if err != nil || hours < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be a non-negative integer"})
		return
	}

	to := s.now().UTC()
	var from time.Time
	if hours > 0 {
		from = to.Add(-time.Duration(hours) * time.Hour)
	}

	out, err := s.reporter.Render(c.Request.Context(), from, to, format)
	if errors.Is(err, report.ErrEmptyRange) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no samples in range"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, format.ContentType(), out)
}

func (s *Server) handleDigest(c *gin.Context) {
	if s.notifier == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "notifications disabled"})
		return
	}
	res, err := s.notifier.Digest(c.Request.Context(), s.digestPeriod)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

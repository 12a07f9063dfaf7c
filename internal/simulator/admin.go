package simulator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/trackerctl/internal/auth"
	"github.com/danmuck/trackerctl/internal/geometry"
	"github.com/danmuck/trackerctl/internal/observability"
)

// AdminConfig configures the HTTP admin surface. A non-blank Token puts
// the /v1 routes behind bearer auth; /health and /metrics stay open for
// probes and scrapers.
type AdminConfig struct {
	ListenAddr  string
	CORSOrigins []string
	Token       string
}

// AdminServer exposes instrument state and fault injection over HTTP,
// out of band from the device protocol.
type AdminServer struct {
	cfg     AdminConfig
	ctrl    *Controller
	router  *gin.Engine
	started time.Time
}

// forceBusyRequest selects which point groups reject commands. Empty
// means every group.
type forceBusyRequest struct {
	Groups []string `json:"groups"`
}

func NewAdminServer(cfg AdminConfig, ctrl *Controller) *AdminServer {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &AdminServer{
		cfg:     cfg,
		ctrl:    ctrl,
		router:  r,
		started: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *AdminServer) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(s.started).String(),
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/v1")
	if s.cfg.Token != "" {
		v1.Use(requireToken(auth.StaticToken{Token: s.cfg.Token}))
	}

	v1.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.ctrl.Snapshot(time.Now()))
	})

	v1.GET("/bodies", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"bodies": s.ctrl.BodyNames()})
	})

	v1.GET("/bodies/:name", func(c *gin.Context) {
		state, err := s.ctrl.BodyState(c.Param("name"))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrUnknownBody) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, state)
	})

	v1.PUT("/bodies/:name/pose", func(c *gin.Context) {
		name := c.Param("name")
		var pose geometry.BodyPose
		if err := c.ShouldBindJSON(&pose); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := s.ctrl.SetBodyPose(name, pose); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrUnknownBody) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		observability.RecordPoseUpdate(name)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "body": name})
	})

	v1.POST("/busy", func(c *gin.Context) {
		var req forceBusyRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		groups := req.Groups
		if len(groups) == 0 {
			groups = []string{"*"}
		}
		s.ctrl.ForceBusy(groups...)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "groups": groups})
	})

	v1.DELETE("/busy", func(c *gin.Context) {
		s.ctrl.ClearForcedBusy()
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1.POST("/randomize", func(c *gin.Context) {
		s.ctrl.RandomizeAll()
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func requireToken(v auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := v.Validate(auth.BearerToken(c.GetHeader("Authorization"))); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// Router exposes the engine for tests.
func (s *AdminServer) Router() *gin.Engine {
	return s.router
}

// Serve blocks until ctx is cancelled, then drains in-flight requests.
func (s *AdminServer) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.router,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	var err error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err = <-errCh
	case err = <-errCh:
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}

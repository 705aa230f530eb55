// Package api serves the read-only operations HTTP surface next to the MCP stdio server.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/pkddi-mcp-server/internal/domain"
	"github.com/pkddi-mcp-server/internal/middleware"
	"github.com/pkddi-mcp-server/internal/store"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 100
)

// Server represents the operations HTTP server
type Server struct {
	info    domain.ServerConfig
	catalog domain.DrugCatalog
	runs    store.Store
	router  *gin.Engine
	server  *http.Server
	logger  *logrus.Logger
}

// NewServer creates the HTTP server. runs may be nil, in which case the run
// endpoints answer 404.
func NewServer(info domain.ServerConfig, catalog domain.DrugCatalog, runs store.Store, logger *logrus.Logger) *Server {
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestLogger(logger))

	server := &Server{
		info:    info,
		catalog: catalog,
		runs:    runs,
		router:  router,
		logger:  logger,
	}
	server.setupRoutes()

	return server
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("Serving operations HTTP endpoints")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/drugs", s.handleListDrugs)
		v1.GET("/drugs/:name", s.handleGetDrug)
		v1.GET("/runs", s.requireStore, s.handleListRuns)
		v1.GET("/runs/export", s.requireStore, s.handleExportRuns)
		v1.GET("/runs/:id", s.requireStore, s.handleGetRun)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"name":      s.info.Name,
		"version":   s.info.Version,
		"store":     s.runs != nil,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleListDrugs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"drugs": s.catalog.Names()})
}

func (s *Server) handleGetDrug(c *gin.Context) {
	drug, err := s.catalog.Lookup(c.Param("name"))
	if err != nil {
		if errors.Is(err, domain.ErrDrugNotFound) {
			s.abort(c, http.StatusNotFound, err)
			return
		}
		s.abort(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, drug)
}

func (s *Server) requireStore(c *gin.Context) {
	if s.runs == nil {
		s.abort(c, http.StatusNotFound, errors.New("run persistence is disabled"))
		return
	}
	c.Next()
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit := queryInt(c, "limit", defaultRunLimit)
	if limit <= 0 {
		limit = defaultRunLimit
	}
	limit = min(limit, maxRunLimit)
	offset := max(queryInt(c, "offset", 0), 0)

	runs, err := s.runs.ListRuns(c.Request.Context(), limit, offset)
	if err != nil {
		s.abort(c, http.StatusInternalServerError, err)
		return
	}
	total, err := s.runs.Count(c.Request.Context())
	if err != nil {
		s.abort(c, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs, "total": total})
}

func (s *Server) handleGetRun(c *gin.Context) {
	run, err := s.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.abort(c, http.StatusInternalServerError, err)
		return
	}
	if run == nil {
		s.abort(c, http.StatusNotFound, errors.New("run not found"))
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleExportRuns(c *gin.Context) {
	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", `attachment; filename="pkddi-runs.json"`)
	if err := s.runs.ExportJSON(c.Request.Context(), c.Writer); err != nil {
		s.logger.WithError(err).Error("Run export failed")
		if !c.Writer.Written() {
			s.abort(c, http.StatusInternalServerError, err)
		}
	}
}

func (s *Server) abort(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":          err.Error(),
		"correlation_id": c.GetString(middleware.CorrelationIDKey),
	})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// Package api serves the stroke risk page and its JSON API over gin.
package api

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stroke-risk-server/internal/domain"
	"github.com/stroke-risk-server/internal/middleware"
	"github.com/stroke-risk-server/internal/report"
	"github.com/stroke-risk-server/internal/service"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Version is reported by the health endpoint.
const Version = "1.0.0"

// multipartOverhead is allowed on top of upload.max_bytes for form fields
// and part headers.
const multipartOverhead = 1 << 20

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	logger        *logrus.Logger
	service       *service.PredictionService
	reports       *report.Generator
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, svc *service.PredictionService, reports *report.Generator, logger *logrus.Logger) (*Server, error) {
	cfg := configManager.GetConfig()

	// Tests select gin's test mode themselves.
	if gin.Mode() != gin.TestMode {
		if cfg.Logging.Level == "debug" {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
	}

	tmpl, err := template.New("").Funcs(template.FuncMap{"deref": deref}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing page templates: %w", err)
	}

	router := gin.New()
	router.SetHTMLTemplate(tmpl)

	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger.Out))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS())
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, logger)
		router.Use(limiter.Middleware())
	}

	server := &Server{
		configManager: configManager,
		logger:        logger,
		service:       svc,
		reports:       reports,
		router:        router,
	}

	server.setupRoutes()

	return server, nil
}

// deref reads an optional form flag for the template.
func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the page and API routes
func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleIndex)
	s.router.POST("/predict", s.handlePredictPage)
	s.router.POST("/batch", s.limitUpload, s.handleBatchPage)

	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/model", s.handleModel)
		v1.POST("/predict", s.handlePredict)
		v1.POST("/batch", s.limitUpload, s.handleBatch)
		v1.POST("/batch/report.csv", s.limitUpload, s.handleReportCSV)
		v1.POST("/batch/report.pdf", s.limitUpload, s.handleReportPDF)
		v1.POST("/batch/report.xlsx", s.limitUpload, s.handleReportXLSX)
		v1.GET("/runs", s.handleListRuns)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"model":     s.service.ModelInfo().Name,
	})
}

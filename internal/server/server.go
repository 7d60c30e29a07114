package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"jasper_srv/internal/config"
	"jasper_srv/internal/history"
	"jasper_srv/internal/jasper"
	"jasper_srv/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

// HTTPServer is what the application lifecycle starts and stops
type HTTPServer interface {
	Start(address string) error
	Shutdown(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	echo    *echo.Echo
	service *service.GenerationService
	logger  *logrus.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg config.Config, svc *service.GenerationService, logger *logrus.Logger) *Server {
	e := echo.New()
	e.Debug = cfg.Server.Debug
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit("10M"))
	e.Use(requestLogger(logger))

	server := &Server{
		echo:    e,
		service: svc,
		logger:  logger,
	}

	server.setupRoutes()
	return server
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server
func (s *Server) Start(address string) error {
	s.logger.WithField("address", address).Info("Starting HTTP server")
	if err := s.echo.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// setupRoutes configures the server routes
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	api := s.echo.Group("/api/v1")
	{
		reports := api.Group("/reports")
		{
			reports.GET("", s.listReports)
			reports.POST("/generate", s.generate)
			reports.POST("/:name/generate", s.generateNamed)
			reports.GET("/:name/parameters", s.parameters)
		}

		generations := api.Group("/generations")
		{
			generations.GET("", s.listGenerations)
			generations.GET("/export", s.exportGenerations)
			generations.GET("/:id", s.getGeneration)
			generations.GET("/:id/download", s.downloadGeneration)
		}
	}
}

// healthCheck handles health check requests
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "jasper-service",
	})
}

// listReports lists the catalog
func (s *Server) listReports(c echo.Context) error {
	cat := s.service.Catalog()
	entries := make([]interface{}, 0, cat.Len())
	for _, name := range cat.Names() {
		entry, err := cat.Resolve(name)
		if err != nil {
			return s.respondError(c, err)
		}
		entries = append(entries, entry)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"reports": entries,
		"count":   len(entries),
	})
}

// generate renders an ad-hoc report spec
func (s *Server) generate(c echo.Context) error {
	var req service.GenerateRequest
	if err := c.Bind(&req); err != nil {
		return s.badRequest(c, err)
	}

	result, err := s.service.Generate(c.Request().Context(), req)
	if err != nil {
		return s.respondError(c, err)
	}
	return s.sendDocument(c, result)
}

type namedRequest struct {
	Format     string            `json:"format"`
	Parameters map[string]string `json:"parameters"`
	Archive    bool              `json:"archive"`
}

// generateNamed renders a catalog report
func (s *Server) generateNamed(c echo.Context) error {
	var req namedRequest
	if err := c.Bind(&req); err != nil {
		return s.badRequest(c, err)
	}

	name, err := reportName(c)
	if err != nil {
		return s.respondError(c, err)
	}
	result, err := s.service.GenerateNamed(c.Request().Context(), name, req.Parameters, req.Format, req.Archive)
	if err != nil {
		return s.respondError(c, err)
	}
	return s.sendDocument(c, result)
}

// parameters lists the parameters a report declares
func (s *Server) parameters(c echo.Context) error {
	name, err := reportName(c)
	if err != nil {
		return s.respondError(c, err)
	}
	params, err := s.service.Parameters(c.Request().Context(), name)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"report":     name,
		"parameters": params,
	})
}

// listGenerations handles listing the generation history
func (s *Server) listGenerations(c echo.Context) error {
	var params history.ListParams
	if err := c.Bind(&params); err != nil {
		return s.badRequest(c, err)
	}

	list, err := s.service.ListGenerations(c.Request().Context(), params)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// exportGenerations streams the history as a spreadsheet
func (s *Server) exportGenerations(c echo.Context) error {
	var params history.ListParams
	if err := c.Bind(&params); err != nil {
		return s.badRequest(c, err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, history.XLSXMimeType)
	res.Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="generations_%s.xlsx"`, time.Now().Format("20060102_150405")))

	// buffered so a failed export can still be reported as JSON
	var buf bytes.Buffer
	if err := s.service.ExportGenerations(c.Request().Context(), &buf, params); err != nil {
		res.Header().Del(echo.HeaderContentDisposition)
		return s.respondError(c, err)
	}
	res.WriteHeader(http.StatusOK)
	_, err := res.Write(buf.Bytes())
	return err
}

// getGeneration handles getting a single generation record
func (s *Server) getGeneration(c echo.Context) error {
	generation, err := s.service.GetGeneration(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, generation)
}

// downloadGeneration streams an archived document
func (s *Server) downloadGeneration(c echo.Context) error {
	reader, generation, err := s.service.DownloadGeneration(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.respondError(c, err)
	}
	defer reader.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s"`, service.Filename(generation)))
	return c.Stream(http.StatusOK, service.ContentType(generation.Format), reader)
}

// reportName returns the decoded :name path parameter
func reportName(c echo.Context) (string, error) {
	name, err := url.PathUnescape(c.Param("name"))
	if err != nil {
		return "", fmt.Errorf("%w: report name: %v", jasper.ErrInvalidInput, err)
	}
	return name, nil
}

func (s *Server) sendDocument(c echo.Context, result *service.GenerateResult) error {
	h := c.Response().Header()
	h.Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, result.Filename))
	h.Set("X-Generation-Id", result.Generation.UUID)
	return c.Blob(http.StatusOK, result.ContentType, result.Document)
}

func (s *Server) badRequest(c echo.Context, err error) error {
	s.logger.WithError(err).Debug("Failed to bind request")
	return c.JSON(http.StatusBadRequest, map[string]string{
		"error": "Invalid request format",
		"kind":  service.KindInvalidInput,
	})
}

// respondError maps domain errors onto HTTP statuses
func (s *Server) respondError(c echo.Context, err error) error {
	kind := service.ErrorKind(err)
	status := StatusForKind(kind)

	body := map[string]interface{}{
		"error": err.Error(),
		"kind":  kind,
	}
	var missing *jasper.MissingParametersError
	if errors.As(err, &missing) {
		body["missing"] = missing.Missing
		body["parameters"] = missing.Parameters
	}

	logger := s.logger.WithError(err).WithFields(logrus.Fields{
		"path":   c.Path(),
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed")
	} else {
		logger.Warn("Request rejected")
	}
	return c.JSON(status, body)
}

// StatusForKind returns the HTTP status for a service error kind
func StatusForKind(kind string) int {
	switch kind {
	case service.KindInvalidInput, service.KindInvalidFormat, service.KindUnsupported:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindMissingParameters:
		return http.StatusUnprocessableEntity
	case service.KindExecutionDisabled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func requestLogger(logger *logrus.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := logger.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency,
				"request_id": v.RequestID,
			})
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("Request handled")
			return nil
		},
	})
}

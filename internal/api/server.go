package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"sentinel-worker-go/internal/api/handlers"
	"sentinel-worker-go/internal/config"
	"sentinel-worker-go/internal/logging"
	"sentinel-worker-go/internal/services"
	"sentinel-worker-go/internal/services/publisher/mjpeg"
)

type Server struct {
	config    *config.Config
	container *services.ServiceContainer
	router    *gin.Engine
	server    *http.Server

	healthHandler   *handlers.HealthHandler
	cameraHandler   *handlers.CameraHandler
	settingsHandler *handlers.SettingsHandler
	alertsHandler   *handlers.AlertsHandler
	videoHandler    *handlers.VideoHandler
	systemHandler   *handlers.SystemHandler
	statusFeed      *handlers.StatusFeed
}

func NewServer(cfg *config.Config, container *services.ServiceContainer) (*Server, error) {
	if container == nil {
		return nil, errors.New("service container is required")
	}
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	manager := container.CameraManager
	streams := mjpeg.NewPublisher(manager, cfg.MJPEGFrameRate, logging.NewServiceLogger(cfg, "mjpeg"))

	probes := map[string]handlers.ComponentProbe{
		"detector": container.DetectionSvc.IsHealthy,
	}
	if container.Messaging != nil {
		probes["nats"] = container.Messaging.IsConnected
	}

	s := &Server{
		config:          cfg,
		container:       container,
		router:          gin.New(),
		healthHandler:   handlers.NewHealthHandler(cfg.WorkerID, cfg.Version, probes),
		cameraHandler:   handlers.NewCameraHandler(manager, streams),
		settingsHandler: handlers.NewSettingsHandler(container),
		alertsHandler: handlers.NewAlertsHandler(container.Snapshots, container.Alerts, func() int {
			return container.CurrentSettings().Alerts.MaxAlerts
		}),
		videoHandler:  handlers.NewVideoHandler(container.Recorder),
		systemHandler: handlers.NewSystemHandler(cfg.WorkerID, container.Recorder.StoragePath),
		statusFeed:    handlers.NewStatusFeed(manager, container.Alerts, cfg.StatusPushInterval),
	}

	s.setupMiddleware()
	s.setupRoutes()
	s.setupSwagger()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.router,
	}
	return s, nil
}

// Start blocks serving HTTP until Shutdown is called
func (s *Server) Start() error {
	log.Info().Int("port", s.config.Port).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then tears the services down
func (s *Server) Shutdown(ctx context.Context) error {
	httpErr := s.server.Shutdown(ctx)
	if httpErr != nil {
		log.Warn().Err(httpErr).Msg("HTTP server did not shut down cleanly")
	}
	if err := s.container.Shutdown(ctx); err != nil {
		return err
	}
	return httpErr
}

func (s *Server) Router() http.Handler {
	return s.router
}

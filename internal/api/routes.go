package api

import "sentinel-worker-go/internal/api/handlers"

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.WorkerInfo)
	s.router.GET("/health", s.healthHandler.HealthCheck)

	cameras := s.router.Group("/cameras")
	{
		cameras.GET("", s.cameraHandler.ListCameras)
		cameras.POST("", s.cameraHandler.AddCamera)
		cameras.GET("/:id", s.cameraHandler.GetCamera)
		cameras.PUT("/:id", s.cameraHandler.UpdateCamera)
		cameras.DELETE("/:id", s.cameraHandler.RemoveCamera)
		cameras.GET("/:id/frame", s.cameraHandler.GetFrame)
		cameras.GET("/:id/stream", s.cameraHandler.StreamCamera)
		cameras.POST("/:id/alert", s.cameraHandler.TriggerAlert)
	}

	settings := s.router.Group("/settings")
	{
		settings.GET("", s.settingsHandler.GetSettings)
		settings.PUT("", s.settingsHandler.UpdateSettings)
	}

	alerts := s.router.Group("/alerts")
	{
		alerts.GET("", s.alertsHandler.ListAlerts)
		alerts.GET("/stats", s.alertsHandler.GetStats)
	}
	s.router.GET(handlers.AlertImagesPath+"/:name", s.alertsHandler.GetImage)

	recordings := s.router.Group("/recordings")
	{
		recordings.GET("", s.videoHandler.ListRecordings)
		recordings.GET("/status", s.videoHandler.GetRecorderStatus)
		recordings.POST("/cleanup", s.videoHandler.Cleanup)
	}
	s.router.GET(handlers.RecordingFilesPath+"/*path", s.videoHandler.DownloadRecording)

	s.router.GET("/system/stats", s.systemHandler.GetStats)
	s.router.GET("/ws/status", s.statusFeed.Serve)
}

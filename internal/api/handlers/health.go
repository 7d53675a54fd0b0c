package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ComponentProbe reports whether an integration is reachable
type ComponentProbe func() bool

type HealthHandler struct {
	WorkerID string
	Version  string

	probes  map[string]ComponentProbe
	started time.Time
}

func NewHealthHandler(workerID, version string, probes map[string]ComponentProbe) *HealthHandler {
	if probes == nil {
		probes = map[string]ComponentProbe{}
	}
	return &HealthHandler{
		WorkerID: workerID,
		Version:  version,
		probes:   probes,
		started:  time.Now(),
	}
}

type HealthResponse struct {
	Status     string          `json:"status" example:"healthy"`
	WorkerID   string          `json:"worker_id" example:"sentinel-1"`
	Components map[string]bool `json:"components,omitempty"`
}

type WorkerInfoResponse struct {
	WorkerID     string   `json:"worker_id" example:"sentinel-1"`
	Status       string   `json:"status" example:"running"`
	Version      string   `json:"version" example:"1.0.0"`
	Uptime       string   `json:"uptime" example:"1h2m3s"`
	Capabilities []string `json:"capabilities"`
}

// @Summary Health check
// @Description The worker is healthy while it serves requests. Optional
// @Description integrations are reported individually and degrade the status.
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	status := "healthy"
	components := make(map[string]bool, len(h.probes))
	for name, probe := range h.probes {
		ok := probe()
		components[name] = ok
		if !ok {
			status = "degraded"
		}
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:     status,
		WorkerID:   h.WorkerID,
		Components: components,
	})
}

// @Summary Worker information
// @Description Basic worker information and capabilities
// @Tags health
// @Produce json
// @Success 200 {object} WorkerInfoResponse
// @Router / [get]
func (h *HealthHandler) WorkerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, WorkerInfoResponse{
		WorkerID: h.WorkerID,
		Status:   "running",
		Version:  h.Version,
		Uptime:   time.Since(h.started).Round(time.Second).String(),
		Capabilities: []string{
			"motion_detection",
			"person_detection",
			"alerting",
			"recording",
			"mjpeg_streaming",
		},
	})
}

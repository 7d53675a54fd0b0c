package handlers

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"sentinel-worker-go/internal/models"
)

// AlertImagesPath is the route prefix snapshots are served from
const AlertImagesPath = "/alerts/images"

// SnapshotLister lists and resolves saved alert snapshots
type SnapshotLister interface {
	List(max int, urlPrefix string) ([]models.AlertImage, error)
	Resolve(name string) (string, error)
}

// AlertStatsProvider exposes aggregate alert state
type AlertStatsProvider interface {
	Stats() models.AlertStats
}

type AlertsHandler struct {
	snapshots SnapshotLister
	stats     AlertStatsProvider
	maxAlerts func() int
}

func NewAlertsHandler(snapshots SnapshotLister, stats AlertStatsProvider, maxAlerts func() int) *AlertsHandler {
	return &AlertsHandler{snapshots: snapshots, stats: stats, maxAlerts: maxAlerts}
}

type AlertListResponse struct {
	Alerts []models.AlertImage `json:"alerts"`
	Count  int                 `json:"count"`
}

// @Summary List alert snapshots
// @Description Saved alert images, newest first
// @Tags alerts
// @Produce json
// @Success 200 {object} AlertListResponse
// @Failure 500 {object} ErrorResponse
// @Router /alerts [get]
func (h *AlertsHandler) ListAlerts(c *gin.Context) {
	images, err := h.snapshots.List(h.maxAlerts(), AlertImagesPath)
	if err != nil {
		respondError(c, err, "Failed to list alert snapshots")
		return
	}
	if images == nil {
		images = []models.AlertImage{}
	}
	c.JSON(http.StatusOK, AlertListResponse{Alerts: images, Count: len(images)})
}

// @Summary Alert snapshot image
// @Tags alerts
// @Produce image/jpeg
// @Param name path string true "Snapshot file name"
// @Success 200 {file} binary
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /alerts/images/{name} [get]
func (h *AlertsHandler) GetImage(c *gin.Context) {
	path, err := h.snapshots.Resolve(c.Param("name"))
	if err != nil {
		respondError(c, err, "Rejected snapshot name")
		return
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "snapshot not found"})
		return
	}
	c.File(path)
}

// @Summary Alert statistics
// @Tags alerts
// @Produce json
// @Success 200 {object} models.AlertStats
// @Router /alerts/stats [get]
func (h *AlertsHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.stats.Stats())
}

package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"sentinel-worker-go/internal/logging"
	"sentinel-worker-go/internal/models"
)

// CameraService is the camera surface the dashboard drives
type CameraService interface {
	List() []models.CameraStatus
	Status(id string) (models.CameraStatus, bool)
	Add(desc models.CameraDescriptor) (models.CameraDescriptor, error)
	Update(id string, update models.CameraUpdate) (models.CameraDescriptor, error)
	Remove(id string) error
	Frame(id string) ([]byte, error)
	TriggerManualAlert(ctx context.Context, id string) (bool, error)
}

// StreamPublisher serves a live MJPEG stream of a camera
type StreamPublisher interface {
	StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request, cameraID string) error
}

type CameraHandler struct {
	cameras CameraService
	streams StreamPublisher
}

func NewCameraHandler(cameras CameraService, streams StreamPublisher) *CameraHandler {
	return &CameraHandler{cameras: cameras, streams: streams}
}

// CameraListResponse wraps the status of every configured camera
type CameraListResponse struct {
	Cameras []models.CameraStatus `json:"cameras"`
	Count   int                   `json:"count"`
}

// ManualAlertResponse reports whether the alert passed the cooldown
type ManualAlertResponse struct {
	CameraID string `json:"camera_id" example:"cam1"`
	Accepted bool   `json:"accepted"`
}

// ListCameras lists all cameras
// @Summary List all cameras
// @Description Status of every configured camera, in configuration order
// @Tags cameras
// @Produce json
// @Success 200 {object} CameraListResponse
// @Router /cameras [get]
func (h *CameraHandler) ListCameras(c *gin.Context) {
	cameras := h.cameras.List()
	c.JSON(http.StatusOK, CameraListResponse{Cameras: cameras, Count: len(cameras)})
}

// GetCamera gets camera status
// @Summary Get camera status
// @Tags cameras
// @Produce json
// @Param id path string true "Camera ID"
// @Success 200 {object} models.CameraStatus
// @Failure 404 {object} ErrorResponse
// @Router /cameras/{id} [get]
func (h *CameraHandler) GetCamera(c *gin.Context) {
	status, ok := h.cameras.Status(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "camera not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// AddCamera registers a camera
// @Summary Add a camera
// @Description Persist a new camera and start it when enabled. An empty id is generated.
// @Tags cameras
// @Accept json
// @Produce json
// @Param request body models.CameraRequest true "Camera configuration"
// @Success 201 {object} models.CameraDescriptor
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /cameras [post]
func (h *CameraHandler) AddCamera(c *gin.Context) {
	var req models.CameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if strings.TrimSpace(req.SourceURI) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "source_uri is required"})
		return
	}

	desc, err := h.cameras.Add(req.Descriptor())
	if err != nil {
		respondError(c, err, "Failed to add camera")
		return
	}

	logging.Info(c).Str("camera_id", desc.ID).Bool("enabled", desc.Enabled).Msg("Camera added")
	c.JSON(http.StatusCreated, desc)
}

// UpdateCamera changes name, source or enabled flag
// @Summary Update a camera
// @Description Partial update. A source change restarts the stream; disabling stops it.
// @Tags cameras
// @Accept json
// @Produce json
// @Param id path string true "Camera ID"
// @Param request body models.CameraUpdate true "Fields to change"
// @Success 200 {object} models.CameraDescriptor
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /cameras/{id} [put]
func (h *CameraHandler) UpdateCamera(c *gin.Context) {
	var upd models.CameraUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	desc, err := h.cameras.Update(c.Param("id"), upd)
	if err != nil {
		respondError(c, err, "Failed to update camera")
		return
	}

	logging.Info(c).Bool("enabled", desc.Enabled).Msg("Camera updated")
	c.JSON(http.StatusOK, desc)
}

// RemoveCamera deletes a camera
// @Summary Remove a camera
// @Tags cameras
// @Param id path string true "Camera ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /cameras/{id} [delete]
func (h *CameraHandler) RemoveCamera(c *gin.Context) {
	if err := h.cameras.Remove(c.Param("id")); err != nil {
		respondError(c, err, "Failed to remove camera")
		return
	}
	logging.Info(c).Msg("Camera removed")
	c.JSON(http.StatusOK, SuccessResponse{Message: "Camera removed"})
}

// GetFrame returns the annotated dashboard frame
// @Summary Latest camera frame
// @Description JPEG of the last frame with fresh detection boxes and the status banner
// @Tags cameras
// @Produce image/jpeg
// @Param id path string true "Camera ID"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /cameras/{id}/frame [get]
func (h *CameraHandler) GetFrame(c *gin.Context) {
	jpeg, err := h.cameras.Frame(c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to render frame")
		return
	}
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Data(http.StatusOK, "image/jpeg", jpeg)
}

// StreamCamera serves an MJPEG stream
// @Summary Live MJPEG stream
// @Tags cameras
// @Produce multipart/x-mixed-replace
// @Param id path string true "Camera ID"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Router /cameras/{id}/stream [get]
func (h *CameraHandler) StreamCamera(c *gin.Context) {
	if err := h.streams.StreamMJPEGHTTP(c.Writer, c.Request, c.Param("id")); err != nil {
		respondError(c, err, "Failed to start MJPEG stream")
	}
}

// TriggerAlert raises a manual alert
// @Summary Trigger a manual alert
// @Description Saves a snapshot of the current frame through the alert cooldown. No notification or recording.
// @Tags cameras
// @Produce json
// @Param id path string true "Camera ID"
// @Success 200 {object} ManualAlertResponse
// @Failure 404 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /cameras/{id}/alert [post]
func (h *CameraHandler) TriggerAlert(c *gin.Context) {
	id := c.Param("id")
	accepted, err := h.cameras.TriggerManualAlert(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Manual alert failed")
		return
	}
	logging.Info(c).Bool("accepted", accepted).Msg("Manual alert")
	c.JSON(http.StatusOK, ManualAlertResponse{CameraID: id, Accepted: accepted})
}

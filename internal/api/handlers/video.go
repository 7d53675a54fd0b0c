package handlers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"sentinel-worker-go/internal/logging"
	"sentinel-worker-go/internal/models"
	"sentinel-worker-go/internal/services/recorder"
)

// RecordingFilesPath is the route prefix recordings are downloaded from
const RecordingFilesPath = "/recordings/files"

// RecorderService is the recorder surface exposed to the dashboard
type RecorderService interface {
	Enabled() bool
	IsRecording() bool
	BufferLen() int
	StoragePath() string
	Cleanup() (recorder.EvictionResult, error)
}

type VideoHandler struct {
	recorder RecorderService
}

func NewVideoHandler(rec RecorderService) *VideoHandler {
	return &VideoHandler{recorder: rec}
}

type RecorderStatusResponse struct {
	Enabled     bool   `json:"enabled"`
	IsRecording bool   `json:"is_recording"`
	Buffered    int    `json:"buffered_frames"`
	StoragePath string `json:"storage_path"`
}

type CleanupResponse struct {
	TotalBefore string   `json:"total_before"`
	TotalAfter  string   `json:"total_after"`
	Removed     []string `json:"removed"`
}

// ListRecordings godoc
// @Summary Recordings catalogue
// @Description Recordings grouped by year, month and day
// @Tags recordings
// @Produce json
// @Success 200 {object} models.RecordingCatalog
// @Failure 500 {object} ErrorResponse
// @Router /recordings [get]
func (h *VideoHandler) ListRecordings(c *gin.Context) {
	catalog, err := recorder.Catalog(h.recorder.StoragePath(), RecordingFilesPath)
	if err != nil {
		respondError(c, err, "Failed to list recordings")
		return
	}
	if catalog == nil {
		catalog = models.RecordingCatalog{}
	}
	c.JSON(http.StatusOK, catalog)
}

// DownloadRecording godoc
// @Summary Download a recording
// @Tags recordings
// @Produce video/mp4
// @Param path path string true "year/month/day/file"
// @Success 200 {file} binary
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /recordings/files/{path} [get]
func (h *VideoHandler) DownloadRecording(c *gin.Context) {
	rel := strings.TrimPrefix(c.Param("path"), "/")
	full, err := recorder.ResolvePath(h.recorder.StoragePath(), rel)
	if err != nil {
		respondError(c, err, "Rejected recording path")
		return
	}
	if _, err := os.Stat(full); errors.Is(err, os.ErrNotExist) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "recording not found"})
		return
	}
	c.FileAttachment(full, filepath.Base(full))
}

// GetRecorderStatus godoc
// @Summary Recorder status
// @Tags recordings
// @Produce json
// @Success 200 {object} RecorderStatusResponse
// @Router /recordings/status [get]
func (h *VideoHandler) GetRecorderStatus(c *gin.Context) {
	c.JSON(http.StatusOK, RecorderStatusResponse{
		Enabled:     h.recorder.Enabled(),
		IsRecording: h.recorder.IsRecording(),
		Buffered:    h.recorder.BufferLen(),
		StoragePath: h.recorder.StoragePath(),
	})
}

// Cleanup godoc
// @Summary Run one eviction pass
// @Description Removes the oldest recordings until usage is under the low watermark
// @Tags recordings
// @Produce json
// @Success 200 {object} CleanupResponse
// @Failure 500 {object} ErrorResponse
// @Router /recordings/cleanup [post]
func (h *VideoHandler) Cleanup(c *gin.Context) {
	res, err := h.recorder.Cleanup()
	if err != nil {
		respondError(c, err, "Eviction failed")
		return
	}
	removed := res.Removed
	if removed == nil {
		removed = []string{}
	}
	logging.Info(c).Int("removed", len(removed)).Msg("Eviction pass finished")
	c.JSON(http.StatusOK, CleanupResponse{
		TotalBefore: recorder.FormatSize(res.TotalBefore),
		TotalAfter:  recorder.FormatSize(res.TotalAfter),
		Removed:     removed,
	})
}

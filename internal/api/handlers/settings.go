package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"sentinel-worker-go/internal/config"
	"sentinel-worker-go/internal/logging"
)

// SettingsManager reads and updates the runtime settings
type SettingsManager interface {
	CurrentSettings() config.Settings
	UpdateSettings(mutate func(*config.Settings)) (config.Settings, error)
}

type SettingsHandler struct {
	settings SettingsManager
}

func NewSettingsHandler(settings SettingsManager) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// @Summary Current settings
// @Description Runtime settings. Durations are expressed in nanoseconds.
// @Tags settings
// @Produce json
// @Success 200 {object} config.Settings
// @Router /settings [get]
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.CurrentSettings())
}

// @Summary Update settings
// @Description Merges the given fields onto the current settings, validates the
// @Description result, persists it and applies it to every running camera.
// @Tags settings
// @Accept json
// @Produce json
// @Param request body config.Settings true "Fields to change"
// @Success 200 {object} config.Settings
// @Failure 400 {object} ErrorResponse
// @Router /settings [put]
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	// decode once against a scratch copy so a malformed body never reaches the store
	scratch := h.settings.CurrentSettings()
	if err := json.Unmarshal(body, &scratch); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid settings body: %v", err)})
		return
	}

	next, err := h.settings.UpdateSettings(func(s *config.Settings) {
		_ = json.Unmarshal(body, s)
	})
	if err != nil {
		respondError(c, err, "Failed to update settings")
		return
	}

	logging.Info(c).
		Dur("process_interval", next.Performance.ProcessInterval).
		Bool("recording", next.Recording.Enabled).
		Bool("notifier", next.Notifier.Enabled).
		Msg("Settings updated")
	c.JSON(http.StatusOK, next)
}

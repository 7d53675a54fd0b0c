package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sentinel-worker-go/internal/config"
	"sentinel-worker-go/internal/logging"
	"sentinel-worker-go/internal/services/alerts"
	"sentinel-worker-go/internal/services/camera"
	"sentinel-worker-go/internal/services/recorder"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error" example:"camera not found"`
}

// SuccessResponse acknowledges a mutation without a payload
type SuccessResponse struct {
	Message string `json:"message" example:"Camera removed"`
}

// statusFor maps core errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, camera.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, camera.ErrDuplicateID), errors.Is(err, camera.ErrDisabled):
		return http.StatusConflict
	case errors.Is(err, camera.ErrNoFrame):
		return http.StatusServiceUnavailable
	case errors.Is(err, config.ErrInvalidSettings),
		errors.Is(err, recorder.ErrInvalidPath),
		errors.Is(err, alerts.ErrInvalidSnapshot):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error, msg string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.Error(c).Err(err).Msg(msg)
	} else {
		logging.Debug(c).Err(err).Int("status", status).Msg(msg)
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

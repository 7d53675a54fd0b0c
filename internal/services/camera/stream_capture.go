package camera

import (
	"context"
	"fmt"
	"time"

	"sentinel-worker-go/internal/config"
	"sentinel-worker-go/internal/models"
)

// runCapture pulls frames at the configured rate and keeps the shared slot
// fresh. It owns the run's capture handle and releases it on exit.
func (r *streamRun) runCapture(ctx context.Context) {
	defer r.wg.Done()
	defer r.releaseCapture()

	r.logger.Debug().Msg("Capture loop started")
	r.fpsWindowFrom = r.s.deps.Now()
	r.fpsCount = 0

	for ctx.Err() == nil {
		if !r.captureStep(ctx) {
			return
		}
	}
}

// captureStep runs one capture iteration. A panic from the source drops the
// handle so the next step reconnects. Returns false once ctx is cancelled.
func (r *streamRun) captureStep(ctx context.Context) (more bool) {
	desc, settings := r.s.config()
	cam := settings.Camera

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("Capture step panicked, reconnecting")
			r.releaseCapture()
			r.setConnected(false)
			more = sleep(ctx, cam.ReconnectDelay)
		}
	}()

	if r.capture == nil {
		r.setConnected(false)
		r.publishPlaceholder(cam)
		r.reconnect(ctx, desc.SourceURI, cam)
		if r.capture == nil {
			return sleep(ctx, cam.ReconnectDelay)
		}
	}

	frame, err := r.capture.Read()
	if err == nil && !frame.Empty() {
		r.storeFrame(frame)
	} else {
		if err != nil {
			r.logger.Debug().Err(err).Msg("Frame read failed")
		}
		r.setConnected(false)
		r.publishPlaceholder(cam)

		r.s.mu.Lock()
		since := r.s.deps.Now().Sub(r.s.lastSuccess)
		r.s.mu.Unlock()
		if since > cam.FrameFailureTimeout {
			r.logger.Warn().Dur("since_last_frame", since).Msg("Frame timeout, reconnecting")
			r.reconnect(ctx, desc.SourceURI, cam)
		}
	}

	return sleep(ctx, frameInterval(cam.FrameRate))
}

func frameInterval(rate int) time.Duration {
	if rate < 1 {
		rate = 1
	}
	return time.Second / time.Duration(rate)
}

// reconnect releases the current handle and retries open up to the
// configured attempt count, sleeping the reconnect delay after each failure.
// A handle that arrives after ctx was cancelled is closed, never kept.
func (r *streamRun) reconnect(ctx context.Context, uri string, cam config.CameraSettings) {
	r.releaseCapture()

	attempts := cam.ReconnectAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return
		}
		c, err := r.openCapture(ctx, uri, cam.BufferSize)
		if err == nil {
			if ctx.Err() != nil {
				r.logger.Debug().Msg("Stream stopped while opening source, closing late handle")
				if cerr := c.Close(); cerr != nil {
					r.logger.Debug().Err(cerr).Msg("Error closing capture")
				}
				return
			}
			r.capture = c
			if r.lockCurrent() {
				r.s.lastSuccess = r.s.deps.Now()
				r.s.connected = true
				r.s.mu.Unlock()
			}
			r.logger.Info().Int("attempt", attempt).Msg("Camera connected")
			return
		}
		r.logger.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", attempts).Msg("Failed to open camera source")
		if !sleep(ctx, cam.ReconnectDelay) {
			return
		}
	}

	r.setConnected(false)
	r.logger.Error().Int("attempts", attempts).Msg("Camera reconnection exhausted, retrying later")
}

func (r *streamRun) openCapture(ctx context.Context, uri string, bufferSize int) (c Capture, err error) {
	if r.s.deps.Source == nil {
		return nil, fmt.Errorf("no frame source configured")
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("frame source panicked: %v", rec)
		}
	}()
	return r.s.deps.Source.Open(ctx, uri, bufferSize)
}

func (r *streamRun) releaseCapture() {
	if r.capture == nil {
		return
	}
	c := r.capture
	r.capture = nil
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("Closing capture panicked")
		}
	}()
	if err := c.Close(); err != nil {
		r.logger.Debug().Err(err).Msg("Error closing capture")
	}
}

// storeFrame swaps a freshly captured frame into the shared slot and
// advances the FPS window
func (r *streamRun) storeFrame(frame *models.Frame) {
	now := r.s.deps.Now()
	if frame.Timestamp.IsZero() {
		frame.Timestamp = now
	}

	r.fpsCount++
	var fps float64
	updateFPS := false
	if elapsed := now.Sub(r.fpsWindowFrom); elapsed >= time.Second {
		fps = float64(r.fpsCount) / elapsed.Seconds()
		r.fpsCount = 0
		r.fpsWindowFrom = now
		updateFPS = true
	}

	if !r.lockCurrent() {
		return
	}
	s := r.s
	s.frame = frame
	s.frameLive = true
	s.lastLive = frame
	s.frameWidth = frame.Width
	s.frameHeight = frame.Height
	s.connected = true
	s.lastSuccess = now
	if updateFPS {
		s.fps = fps
	}
	s.mu.Unlock()
}

// publishPlaceholder replaces the slot with the last good frame marked as
// reconnecting, or a blank frame of the last known size. Before the first
// successful capture the slot is left empty.
func (r *streamRun) publishPlaceholder(cam config.CameraSettings) {
	s := r.s
	s.mu.Lock()
	last := s.lastLive
	w, h := s.frameWidth, s.frameHeight
	s.mu.Unlock()

	if last == nil || s.deps.Renderer == nil {
		return
	}

	var placeholder *models.Frame
	if cam.CacheLastFrame {
		placeholder = s.deps.Renderer.MarkReconnecting(last)
	} else {
		placeholder = s.deps.Renderer.Placeholder(w, h)
	}
	if placeholder.Empty() {
		return
	}

	if !r.lockCurrent() {
		return
	}
	s.frame = placeholder
	s.frameLive = false
	s.mu.Unlock()
}

func (r *streamRun) setConnected(v bool) {
	if !r.lockCurrent() {
		return
	}
	r.s.connected = v
	r.s.mu.Unlock()
}

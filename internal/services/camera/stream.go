package camera

import (
	"context"
	"errors"
	"time"

	"sentinel-worker-go/internal/models"
)

var (
	ErrNoRenderer = errors.New("no frame renderer configured")
	ErrNoFrame    = errors.New("no frame captured yet")
)

// Descriptor returns the descriptor values the stream currently runs with
func (s *Stream) Descriptor() models.CameraDescriptor {
	desc, _ := s.config()
	return desc
}

// Status returns the live state of the stream
func (s *Stream) Status() models.CameraStatus {
	desc, settings := s.config()

	s.mu.Lock()
	defer s.mu.Unlock()

	state := models.CameraStateOffline
	if s.connected {
		state = models.CameraStateOnline
	}

	var lastFrame time.Time
	if s.lastLive != nil {
		lastFrame = s.lastLive.Timestamp
	}

	return models.CameraStatus{
		ID:              desc.ID,
		Name:            desc.Name,
		Connected:       s.connected,
		State:           state,
		SourceURI:       desc.SourceURI,
		Enabled:         desc.Enabled,
		MotionDetected:  s.motionDetected,
		PersonDetected:  s.personDetected,
		MotionEvents:    s.motionEvents,
		PersonEvents:    s.personEvents,
		DetectionCount:  s.detectionsTotal,
		LastFrame:       models.TimePtr(lastFrame),
		LastDetection:   models.TimePtr(s.lastDetection),
		LastInference:   models.TimePtr(s.lastInference),
		DetectorActive:  s.detectorOK.Load(),
		FrameRate:       float64(int(s.fps*100+0.5)) / 100,
		ProcessInterval: settings.Performance.EffectiveProcessInterval().String(),
	}
}

// Frame renders the dashboard view: the last frame or a placeholder, fresh
// detection boxes, the status banner and a timestamp, JPEG-encoded
func (s *Stream) Frame() ([]byte, error) {
	r := s.deps.Renderer
	if r == nil {
		return nil, ErrNoRenderer
	}
	_, settings := s.config()
	now := s.deps.Now()

	s.mu.Lock()
	frame := s.frame
	w, h := s.frameWidth, s.frameHeight
	motion, person := s.motionDetected, s.personDetected
	boxes := append([]models.Detection(nil), s.boxes...)
	boxesAt := s.boxesAt
	s.mu.Unlock()

	if frame == nil {
		frame = r.Placeholder(w, h)
	}

	overlay := 2 * settings.Performance.EffectiveProcessInterval()
	if overlay < minOverlayWindow {
		overlay = minOverlayWindow
	}
	if now.Sub(boxesAt) > overlay {
		boxes = nil
	}

	level := StatusMonitoring
	switch {
	case person:
		level = StatusPerson
	case motion:
		level = StatusMotion
	}

	return r.EncodeJPEG(r.DrawStatus(frame, boxes, level, now))
}

// TriggerManualAlert routes the current frame through the alert coordinator
// as a manual alert. It reports whether the alert was accepted.
func (s *Stream) TriggerManualAlert(ctx context.Context) (bool, error) {
	if s.deps.Alerts == nil {
		return false, nil
	}

	s.mu.Lock()
	frame := s.frame.Clone()
	s.mu.Unlock()
	if frame == nil {
		return false, ErrNoFrame
	}

	desc, _ := s.config()
	return s.deps.Alerts.Trigger(ctx, frame, models.AlertTypeManual, desc.ID, desc.Name), nil
}

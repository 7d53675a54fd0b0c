package camera

import (
	"context"
	"time"

	"sentinel-worker-go/internal/config"
	"sentinel-worker-go/internal/models"
)

const (
	detectionIdleStep = 50 * time.Millisecond
	waitForFrameStep  = 100 * time.Millisecond
	modelRetryDelay   = 30 * time.Second
	minStaleWindow    = time.Second
	minOverlayWindow  = 1500 * time.Millisecond
)

// runDetection samples the shared slot once per process interval, runs the
// motion model and, when the gate allows it, the object detector
func (r *streamRun) runDetection(ctx context.Context) {
	defer r.wg.Done()
	defer r.releaseMotion()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("Detection loop panicked")
		}
	}()

	r.logger.Debug().Msg("Detection loop started")
	nextRun := time.Now()

	for ctx.Err() == nil {
		if wait := time.Until(nextRun); wait > 0 {
			if wait > detectionIdleStep {
				wait = detectionIdleStep
			}
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		frame := r.s.snapshotLive()
		if frame == nil {
			if !sleep(ctx, waitForFrameStep) {
				return
			}
			continue
		}

		desc, settings := r.s.config()
		r.safeProcess(ctx, frame, desc, settings)

		nextRun = time.Now().Add(settings.Performance.EffectiveProcessInterval())
	}
}

// snapshotLive returns a private copy of the last captured frame, or nil
// when the slot is empty or holds a reconnect placeholder
func (s *Stream) snapshotLive() *models.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil || !s.frameLive {
		return nil
	}
	return s.frame.Clone()
}

func (r *streamRun) safeProcess(ctx context.Context, frame *models.Frame, desc models.CameraDescriptor, settings config.Settings) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("Frame processing panicked")
		}
	}()
	r.ensureModels(ctx, settings)
	r.processFrame(ctx, frame, desc, settings)
}

// ensureModels rebuilds the motion model when its tunables changed and
// reloads the object detector when the model identity changed. A failed
// reload keeps the previous detector.
func (r *streamRun) ensureModels(ctx context.Context, settings config.Settings) {
	deps := r.s.deps
	params := MotionParams{
		History:       settings.Motion.History,
		VarThreshold:  settings.Motion.VarThreshold,
		DetectShadows: settings.Motion.DetectShadows,
	}
	if settings.Motion.Enabled && deps.Motion != nil && (r.motion == nil || params != r.motionParams) {
		md, err := deps.Motion(params)
		if err != nil {
			r.logger.Error().Err(err).Msg("Failed to create motion detector")
		} else {
			r.releaseMotion()
			r.motion = md
			r.motionParams = params
			r.logger.Debug().Int("history", params.History).Float64("var_threshold", params.VarThreshold).Msg("Motion detector ready")
		}
	}

	if deps.Models == nil {
		return
	}
	key := settings.Detector.Model
	if settings.Performance.UseGPU {
		key += "@gpu"
	}
	if key == r.modelKey {
		return
	}
	now := deps.Now()
	if key == r.modelFailedKey && now.Before(r.modelRetryAt) {
		return
	}

	detector, err := deps.Models.Load(ctx, settings.Detector.Model, settings.Performance.UseGPU)
	if err != nil {
		r.modelFailedKey = key
		r.modelRetryAt = now.Add(modelRetryDelay)
		r.logger.Error().Err(err).Str("model", settings.Detector.Model).Bool("previous_kept", r.detector != nil).Msg("Failed to load detection model")
		return
	}
	r.detector = detector
	r.modelKey = key
	r.modelFailedKey = ""
	r.s.detectorOK.Store(true)
	r.logger.Info().Str("model", settings.Detector.Model).Bool("gpu", settings.Performance.UseGPU).Msg("Detection model loaded")
}

func (r *streamRun) releaseMotion() {
	if r.motion == nil {
		return
	}
	if err := r.motion.Close(); err != nil {
		r.logger.Debug().Err(err).Msg("Error closing motion detector")
	}
	r.motion = nil
}

// shouldInfer is the detection gate: a detector is loaded, motion is present
// when detection is motion-gated, one process interval has passed since the
// last inference and one cooldown since the last positive detection
func (r *streamRun) shouldInfer(motionNow bool, now time.Time, settings config.Settings) bool {
	if r.detector == nil {
		return false
	}
	if settings.Performance.DetectOnMotionOnly && settings.Motion.Enabled && !motionNow {
		return false
	}

	r.s.mu.Lock()
	lastInference, lastDetection := r.s.lastInference, r.s.lastDetection
	r.s.mu.Unlock()

	if !lastInference.IsZero() && now.Sub(lastInference) < settings.Performance.EffectiveProcessInterval() {
		return false
	}
	if !lastDetection.IsZero() && now.Sub(lastDetection) < settings.Detector.DetectionCooldown {
		return false
	}
	return true
}

func (r *streamRun) processFrame(ctx context.Context, frame *models.Frame, desc models.CameraDescriptor, settings config.Settings) {
	s := r.s
	now := s.deps.Now()

	motionNow := false
	if settings.Motion.Enabled && r.motion != nil {
		moved, err := r.motion.Apply(frame, settings.Motion.MinArea)
		if err != nil {
			r.logger.Warn().Err(err).Msg("Motion detection failed")
		}
		motionNow = moved
	}

	var detections []models.Detection
	if ctx.Err() == nil && r.shouldInfer(motionNow, now, settings) {
		dets, err := r.infer(ctx, frame, settings)
		if err != nil {
			r.logger.Warn().Err(err).Msg("Object detection failed")
		}
		detections = dets

		if !r.lockCurrent() {
			return
		}
		s.lastInference = now
		if len(detections) > 0 {
			s.personEvents++
			s.lastDetection = now
			s.detectionsTotal += int64(len(detections))
		}
		s.mu.Unlock()

		if len(detections) > 0 {
			r.onPerson(ctx, frame, detections, desc)
		}
	}

	interval := settings.Performance.EffectiveProcessInterval()
	staleAfter := 2 * interval
	if staleAfter < minStaleWindow {
		staleAfter = minStaleWindow
	}

	if !r.lockCurrent() {
		return
	}
	s.motionDetected = motionNow
	s.personDetected = len(detections) > 0
	if motionNow {
		s.motionEvents++
	}
	if len(detections) > 0 {
		s.boxes = detections
		s.boxesAt = now
	} else if now.Sub(s.boxesAt) > staleAfter {
		s.boxes = nil
	}
	s.mu.Unlock()
}

// infer runs the detector on a resized copy when a detection width is set
// and maps the boxes back to frame coordinates
func (r *streamRun) infer(ctx context.Context, frame *models.Frame, settings config.Settings) ([]models.Detection, error) {
	input := frame
	sx, sy := 1.0, 1.0

	if w := settings.Performance.DetectionResize; w > 0 && w != frame.Width && r.s.deps.Renderer != nil {
		h := int(float64(frame.Height) * float64(w) / float64(frame.Width))
		if h < 1 {
			h = 1
		}
		resized, err := r.s.deps.Renderer.Resize(frame, w, h)
		if err != nil {
			r.logger.Debug().Err(err).Msg("Detection resize failed, using full frame")
		} else {
			input = resized
			sx = float64(frame.Width) / float64(w)
			sy = float64(frame.Height) / float64(h)
		}
	}

	dets, err := r.detector.Infer(ctx, input, settings.Detector.Confidence, settings.Detector.Classes)
	if err != nil {
		return nil, err
	}
	if sx != 1 || sy != 1 {
		for i := range dets {
			dets[i].BBox = dets[i].BBox.Scale(sx, sy)
		}
	}
	return dets, nil
}

// onPerson annotates the frame, hands it to the alert coordinator and then
// to the recorder
func (r *streamRun) onPerson(ctx context.Context, frame *models.Frame, detections []models.Detection, desc models.CameraDescriptor) {
	annotated := frame
	if r.s.deps.Renderer != nil {
		annotated = r.s.deps.Renderer.Annotate(frame, detections)
	}

	r.logger.Info().Int("detections", len(detections)).Msg("Person detected")

	if r.s.deps.Alerts != nil {
		r.s.deps.Alerts.Trigger(ctx, annotated, models.AlertTypePerson, desc.ID, desc.Name)
	}
	if r.s.deps.Recorder != nil {
		r.s.deps.Recorder.WriteFrame(annotated)
	}
}

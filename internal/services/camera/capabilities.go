package camera

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"sentinel-worker-go/internal/models"
)

// FrameSource opens live video sources. Handles may be opened and closed
// repeatedly while a stream reconnects.
type FrameSource interface {
	Open(ctx context.Context, uri string, bufferSize int) (Capture, error)
}

// Capture is an open video source
type Capture interface {
	Read() (*models.Frame, error)
	Close() error
}

// MotionParams are the background model tunables. A change requires a new
// MotionDetector.
type MotionParams struct {
	History       int
	VarThreshold  float64
	DetectShadows bool
}

// MotionDetector holds a per-camera adaptive background model
type MotionDetector interface {
	// Apply feeds frame to the model and reports whether any foreground
	// region covers at least minArea pixels
	Apply(frame *models.Frame, minArea float64) (bool, error)
	Close() error
}

// MotionFactory builds a fresh motion detector
type MotionFactory func(params MotionParams) (MotionDetector, error)

// ObjectDetector runs the detection model on one frame
type ObjectDetector interface {
	Infer(ctx context.Context, frame *models.Frame, confidence float64, classes []int) ([]models.Detection, error)
}

// ModelLoader resolves a model name to a ready detector
type ModelLoader interface {
	Load(ctx context.Context, model string, useGPU bool) (ObjectDetector, error)
}

// StatusLevel selects the banner drawn on dashboard frames
type StatusLevel int

const (
	StatusMonitoring StatusLevel = iota
	StatusMotion
	StatusPerson
)

func (l StatusLevel) String() string {
	switch l {
	case StatusPerson:
		return "PERSON DETECTED"
	case StatusMotion:
		return "MOTION DETECTED"
	default:
		return "MONITORING"
	}
}

// Renderer draws overlays and encodes frames. Every method returns a new
// frame and leaves its input untouched.
type Renderer interface {
	Annotate(frame *models.Frame, detections []models.Detection) *models.Frame
	MarkReconnecting(frame *models.Frame) *models.Frame
	Placeholder(width, height int) *models.Frame
	Resize(frame *models.Frame, width, height int) (*models.Frame, error)
	DrawStatus(frame *models.Frame, boxes []models.Detection, level StatusLevel, at time.Time) *models.Frame
	EncodeJPEG(frame *models.Frame) ([]byte, error)
}

// AlertTrigger is the alert coordinator as seen by a stream
type AlertTrigger interface {
	Trigger(ctx context.Context, frame *models.Frame, alertType models.AlertType, cameraID, location string) bool
}

// FrameRecorder accepts annotated frames for the pre-roll buffer and the
// active recording
type FrameRecorder interface {
	WriteFrame(frame *models.Frame)
}

// Deps are the collaborators shared by every stream. Models, Alerts and
// Recorder may be nil.
type Deps struct {
	Source   FrameSource
	Motion   MotionFactory
	Models   ModelLoader
	Renderer Renderer
	Alerts   AlertTrigger
	Recorder FrameRecorder

	// StopWait bounds how long Stop waits for the loops to exit
	StopWait time.Duration
	Now      func() time.Time
	Logger   zerolog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.StopWait <= 0 {
		d.StopWait = 5 * time.Second
	}
	return d
}

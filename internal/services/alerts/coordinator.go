package alerts

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sentinel-worker-go/internal/config"
	"sentinel-worker-go/internal/models"
)

// Notifier delivers person alerts
type Notifier interface {
	Send(ctx context.Context, location, imagePath string) bool
	Enabled() bool
}

// Recorder is the part of the video recorder alerts drive
type Recorder interface {
	Start(reason string) (bool, error)
	Enabled() bool
	RecordOnPerson() bool
	IsRecording() bool
}

// Snapshotter persists alert frames
type Snapshotter interface {
	Save(ctx context.Context, frame *models.Frame, cameraID string, at time.Time) (path string, url string, err error)
}

// Coordinator rate-limits alerts with a single process-wide cooldown and fans
// accepted alerts out to the snapshot store, notifier, recorder and bus.
type Coordinator struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     time.Time
	count    atomic.Int64

	snapshots Snapshotter
	notifier  Notifier
	recorder  Recorder
	publisher models.MessagePublisher
	subject   string

	now    func() time.Time
	logger zerolog.Logger
	wg     sync.WaitGroup
}

type Option func(*Coordinator)

func WithPublisher(p models.MessagePublisher, subject string) Option {
	return func(c *Coordinator) {
		c.publisher = p
		c.subject = subject
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

func NewCoordinator(settings config.AlertSettings, snapshots Snapshotter, notifier Notifier, recorder Recorder, opts ...Option) *Coordinator {
	c := &Coordinator{
		cooldown:  settings.Cooldown,
		snapshots: snapshots,
		notifier:  notifier,
		recorder:  recorder,
		now:       time.Now,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh applies new alert settings
func (c *Coordinator) Refresh(settings config.AlertSettings) {
	c.mu.Lock()
	c.cooldown = settings.Cooldown
	c.mu.Unlock()
}

// accept claims the cooldown window. Only the first caller inside a window wins.
func (c *Coordinator) accept() (models.AlertRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.last.IsZero() && now.Sub(c.last) < c.cooldown {
		return models.AlertRecord{}, false
	}
	c.last = now
	return models.AlertRecord{Sequence: c.count.Add(1), Timestamp: now}, true
}

// Trigger raises an alert unless the global cooldown is still running. The
// frame is saved best-effort; person alerts are notified and may start a
// recording. Returns whether the alert was accepted.
func (c *Coordinator) Trigger(ctx context.Context, frame *models.Frame, alertType models.AlertType, cameraID, location string) bool {
	record, ok := c.accept()
	if !ok {
		return false
	}
	record.Location = location

	event := models.AlertEvent{
		ID:        uuid.NewString(),
		Sequence:  record.Sequence,
		Type:      alertType,
		CameraID:  cameraID,
		Location:  location,
		Timestamp: record.Timestamp,
	}

	if c.snapshots != nil && !frame.Empty() {
		path, url, err := c.snapshots.Save(ctx, frame, cameraID, record.Timestamp)
		if err != nil {
			c.logger.Error().Err(err).Str("camera_id", cameraID).Msg("Failed to save alert image")
		} else {
			event.ImagePath = path
			event.ImageURL = url
			c.logger.Info().Str("camera_id", cameraID).Str("path", path).Msg("Alert image saved")
		}
	}

	if alertType == models.AlertTypePerson {
		if c.notifier != nil {
			c.notifyAsync(location, event.ImagePath)
		}
		if c.recorder != nil && c.recorder.RecordOnPerson() {
			started, err := c.recorder.Start(fmt.Sprintf("Detection: %s", alertType))
			if err != nil {
				c.logger.Error().Err(err).Str("camera_id", cameraID).Msg("Failed to start recording")
			}
			event.Recording = started || c.recorder.IsRecording()
		}
	}

	if c.publisher != nil {
		if err := c.publisher.Publish(c.subject, event); err != nil {
			c.logger.Warn().Err(err).Str("camera_id", cameraID).Msg("Failed to publish alert event")
		}
	}

	c.logger.Info().
		Int64("sequence", record.Sequence).
		Str("type", string(alertType)).
		Str("camera_id", cameraID).
		Str("location", location).
		Msg("Alert triggered")
	return true
}

func (c *Coordinator) notifyAsync(location, imagePath string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error().Interface("panic", r).Msg("Notifier panic recovered")
			}
		}()
		c.notifier.Send(context.Background(), location, imagePath)
	}()
}

// Wait blocks until in-flight notifications finish
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Stats returns aggregate alert state
func (c *Coordinator) Stats() models.AlertStats {
	c.mu.Lock()
	last := c.last
	c.mu.Unlock()

	stats := models.AlertStats{
		TotalAlerts:   c.count.Load(),
		LastAlertTime: models.TimePtr(last),
	}
	if c.notifier != nil {
		stats.NotifierEnabled = c.notifier.Enabled()
	}
	if c.recorder != nil {
		stats.RecordingEnabled = c.recorder.Enabled()
		stats.IsRecording = c.recorder.IsRecording()
	}
	return stats
}

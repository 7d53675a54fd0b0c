package recorder

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sentinel-worker-go/internal/config"
	"sentinel-worker-go/internal/models"
)

// Service keeps a rolling pre-roll buffer and at most one active recording
// session. Finished sessions trigger a quota eviction pass.
type Service struct {
	mu       sync.Mutex
	settings config.RecordingSettings
	encoder  Encoder
	resizer  Resizer
	buffer   []*models.Frame
	session  *session

	publisher models.MessagePublisher
	subject   string
	logger    zerolog.Logger
	now       func() time.Time

	// Lifetime of the recorder; pending auto-stops exit when it ends
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type session struct {
	id        string
	path      string
	reason    string
	startTime time.Time
	writer    VideoWriter
	frames    int64
	cancel    context.CancelFunc
}

type Option func(*Service)

// WithPublisher publishes a RecordingEvent for every finished session
func WithPublisher(p models.MessagePublisher, subject string) Option {
	return func(s *Service) {
		s.publisher = p
		s.subject = subject
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(settings config.RecordingSettings, encoder Encoder, resizer Resizer, opts ...Option) (*Service, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		settings: settings,
		encoder:  encoder,
		resizer:  resizer,
		logger:   zerolog.Nop(),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(settings.StoragePath, 0755); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}

	s.logger.Info().
		Str("storage_path", settings.StoragePath).
		Bool("enabled", settings.Enabled).
		Int("buffer_capacity", settings.BufferCapacity()).
		Msg("Recorder initialized")
	return s, nil
}

// Enabled reports whether recording is switched on
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Enabled
}

// RecordOnPerson reports whether person alerts should start a session
func (s *Service) RecordOnPerson() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.RecordOnPerson
}

// IsRecording reports whether a session is active
func (s *Service) IsRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

// BufferLen returns the number of pre-roll frames held
func (s *Service) BufferLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// StoragePath returns the current recordings root
func (s *Service) StoragePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.StoragePath
}

// WriteFrame appends frame to the pre-roll buffer and to the active session.
// The recorder takes ownership of frame.
func (s *Service) WriteFrame(frame *models.Frame) {
	if frame.Empty() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.settings.Enabled {
		return
	}

	if frame.Width != s.settings.Width || frame.Height != s.settings.Height {
		resized, err := s.resizer.Resize(frame, s.settings.Width, s.settings.Height)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to resize frame for recording")
			return
		}
		frame = resized
	}

	s.buffer = append(s.buffer, frame)
	s.trimBufferLocked()

	if s.session != nil {
		if err := s.session.writer.Write(frame); err != nil {
			s.logger.Error().Err(err).Str("path", s.session.path).Msg("Failed to write frame")
			return
		}
		s.session.frames++
	}
}

func (s *Service) trimBufferLocked() {
	capacity := s.settings.BufferCapacity()
	if over := len(s.buffer) - capacity; over > 0 {
		for i := 0; i < over; i++ {
			s.buffer[i] = nil
		}
		s.buffer = append(s.buffer[:0:0], s.buffer[over:]...)
	}
}

// Start opens a new session seeded with the pre-roll buffer. It returns false
// without error when recording is disabled or already active.
func (s *Service) Start(reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.settings.Enabled || s.session != nil {
		return false, nil
	}
	if s.ctx.Err() != nil {
		return false, fmt.Errorf("recorder closed")
	}

	start := s.now()
	path, err := NextPath(s.settings.StoragePath, start)
	if err != nil {
		return false, err
	}
	writer, err := s.encoder.Open(path, s.settings.Codec, s.settings.FPS, s.settings.Width, s.settings.Height)
	if err != nil {
		return false, fmt.Errorf("failed to open video writer: %w", err)
	}

	stopCtx, cancel := context.WithCancel(s.ctx)
	sess := &session{
		id:        uuid.NewString(),
		path:      path,
		reason:    reason,
		startTime: start,
		writer:    writer,
		cancel:    cancel,
	}
	s.session = sess

	for i, frame := range s.buffer {
		if err := writer.Write(frame); err != nil {
			s.logger.Error().Err(err).Msg("Failed to write buffered frame")
		} else {
			sess.frames++
		}
		s.buffer[i] = nil
	}
	s.buffer = s.buffer[:0]

	duration := s.settings.Duration
	s.wg.Add(1)
	go s.autoStop(stopCtx, sess, duration)

	s.logger.Info().
		Str("path", path).
		Str("reason", reason).
		Int64("preroll_frames", sess.frames).
		Dur("duration", duration).
		Msg("Recording started")
	return true, nil
}

func (s *Service) autoStop(ctx context.Context, sess *session, after time.Duration) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("Recording auto-stop panic recovered")
		}
	}()

	timer := time.NewTimer(after)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		s.stopSession(sess, true)
	}
}

// Stop finalizes the active session, if any, and runs an eviction pass
func (s *Service) Stop() {
	s.stopSession(nil, true)
}

// stopSession finalizes sess, or whichever session is active when sess is
// nil. Stopping a session that already ended is a no-op.
func (s *Service) stopSession(sess *session, evict bool) {
	s.mu.Lock()
	if s.session == nil || (sess != nil && s.session != sess) {
		s.mu.Unlock()
		return
	}
	active := s.session
	s.session = nil
	active.cancel()
	root := s.settings.StoragePath
	quota := s.settings.QuotaBytes()
	s.mu.Unlock()

	if err := active.writer.Close(); err != nil {
		s.logger.Error().Err(err).Str("path", active.path).Msg("Failed to close video writer")
	}

	elapsed := s.now().Sub(active.startTime)
	s.logger.Info().
		Str("path", active.path).
		Int64("frames", active.frames).
		Dur("elapsed", elapsed).
		Msg("Recording finished")

	s.publishFinished(active, elapsed)

	if evict {
		if _, err := Evict(root, quota, s.logger); err != nil {
			s.logger.Error().Err(err).Msg("Failed to clean recordings")
		}
	}
}

func (s *Service) publishFinished(sess *session, elapsed time.Duration) {
	if s.publisher == nil {
		return
	}
	var size int64
	if info, err := os.Stat(sess.path); err == nil {
		size = info.Size()
	}
	event := models.RecordingEvent{
		ID:        sess.id,
		Path:      sess.path,
		Reason:    sess.reason,
		StartTime: sess.startTime,
		Duration:  elapsed.Seconds(),
		FileSize:  size,
		Frames:    sess.frames,
	}
	if err := s.publisher.Publish(s.subject, event); err != nil {
		s.logger.Warn().Err(err).Str("path", sess.path).Msg("Failed to publish recording event")
	}
}

// Refresh applies new recording settings: the buffer is trimmed to the new
// capacity and an active session is stopped if recording was disabled
func (s *Service) Refresh(settings config.RecordingSettings) error {
	if err := os.MkdirAll(settings.StoragePath, 0755); err != nil {
		return fmt.Errorf("failed to create recordings directory: %w", err)
	}

	s.mu.Lock()
	s.settings = settings
	s.trimBufferLocked()
	stop := !settings.Enabled && s.session != nil
	s.mu.Unlock()

	if stop {
		s.Stop()
	}
	return nil
}

// Cleanup runs one eviction pass against the configured quota
func (s *Service) Cleanup() (EvictionResult, error) {
	s.mu.Lock()
	root := s.settings.StoragePath
	quota := s.settings.QuotaBytes()
	s.mu.Unlock()
	return Evict(root, quota, s.logger)
}

// Close stops any active session and cancels pending auto-stops. The
// recorder rejects new sessions afterwards.
func (s *Service) Close() {
	s.cancel()
	s.stopSession(nil, false)
	s.wg.Wait()

	s.mu.Lock()
	s.buffer = nil
	s.mu.Unlock()
}

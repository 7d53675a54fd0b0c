package camera

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"sentinel-worker-go/internal/config"
	"sentinel-worker-go/internal/logging"
	"sentinel-worker-go/internal/models"
)

// LifecycleState represents the atomic run state of a stream
type LifecycleState int32

const (
	StateStopped LifecycleState = iota
	StateRunning
	StateStopping
)

func (s LifecycleState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

const (
	defaultFrameWidth  = 640
	defaultFrameHeight = 480
)

// Stream owns one camera: a capture loop refreshing the shared last-frame
// slot and a detection loop sampling it.
type Stream struct {
	id     string
	deps   Deps
	logger zerolog.Logger

	// Descriptor and settings, replaced by ApplyConfig
	cfgMu    sync.RWMutex
	desc     models.CameraDescriptor
	settings config.Settings

	// Runtime state shared by both loops and status readers. Held only for
	// copies and swaps.
	mu              sync.Mutex
	frame           *models.Frame
	frameLive       bool
	lastLive        *models.Frame
	frameWidth      int
	frameHeight     int
	connected       bool
	lastSuccess     time.Time
	motionDetected  bool
	personDetected  bool
	motionEvents    int64
	personEvents    int64
	detectionsTotal int64
	lastDetection   time.Time
	lastInference   time.Time
	boxes           []models.Detection
	boxesAt         time.Time
	fps             float64

	// gen identifies the run allowed to write the fields above
	gen uint64

	detectorOK atomic.Bool

	// Lifecycle
	lifeMu   sync.Mutex
	state    atomic.Int32
	run      *streamRun
	starts   atomic.Int64
	restarts atomic.Int64
}

// NewStream creates a stopped stream for desc
func NewStream(desc models.CameraDescriptor, settings config.Settings, deps Deps) *Stream {
	deps = deps.withDefaults()
	return &Stream{
		id:          desc.ID,
		deps:        deps,
		logger:      logging.WithCamera(deps.Logger, desc.ID),
		desc:        desc,
		settings:    settings.Clone(),
		frameWidth:  defaultFrameWidth,
		frameHeight: defaultFrameHeight,
	}
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) getState() LifecycleState {
	return LifecycleState(s.state.Load())
}

// IsRunning reports whether both loops are active
func (s *Stream) IsRunning() bool {
	return s.getState() == StateRunning
}

// Starts returns how many times the loops were started
func (s *Stream) Starts() int64 { return s.starts.Load() }

// Restarts returns how many source changes restarted the loops
func (s *Stream) Restarts() int64 { return s.restarts.Load() }

func (s *Stream) config() (models.CameraDescriptor, config.Settings) {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.desc, s.settings
}

// Start launches the capture and detection loops
func (s *Stream) Start() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	return s.startLocked()
}

func (s *Stream) startLocked() error {
	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateRunning)) {
		return fmt.Errorf("camera %s cannot start from state %s", s.id, s.getState())
	}

	desc, _ := s.config()
	s.logger.Info().Str("source_uri", desc.SourceURI).Msg("Starting camera stream")

	r := s.newRun()
	s.run = r
	s.starts.Add(1)

	r.wg.Add(2)
	go r.runCapture(r.ctx)
	go r.runDetection(r.ctx)
	return nil
}

// streamRun is one start of a stream. Its loops own the capture handle, the
// models and the FPS window, so loops that outlive a bounded stop only touch
// their own run. Writes to the shared slot are dropped once gen is stale.
type streamRun struct {
	s      *Stream
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger zerolog.Logger

	// Owned by the capture loop
	capture       Capture
	fpsCount      int
	fpsWindowFrom time.Time

	// Owned by the detection loop
	motion         MotionDetector
	motionParams   MotionParams
	detector       ObjectDetector
	modelKey       string
	modelFailedKey string
	modelRetryAt   time.Time
}

// newRun makes a fresh run the current writer of the shared slot
func (s *Stream) newRun() *streamRun {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.lastSuccess = s.deps.Now()
	s.mu.Unlock()

	return &streamRun{
		s:      s,
		gen:    gen,
		ctx:    ctx,
		cancel: cancel,
		logger: s.logger.With().Uint64("run", gen).Logger(),
	}
}

// lockCurrent takes s.mu when r is still the current run. On false the
// lock is not held.
func (r *streamRun) lockCurrent() bool {
	r.s.mu.Lock()
	if r.s.gen != r.gen {
		r.s.mu.Unlock()
		return false
	}
	return true
}

// Stop signals both loops and waits, bounded, for them to exit. The capture
// handle is released by the capture loop on its way out.
func (s *Stream) Stop() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	return s.stopLocked()
}

func (s *Stream) stopLocked() error {
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return fmt.Errorf("camera %s cannot stop from state %s", s.id, s.getState())
	}

	s.logger.Info().Msg("Stopping camera stream")
	r := s.run
	s.run = nil
	r.cancel()

	// Retire the run before waiting so a loop that misses the deadline can
	// no longer touch the slot.
	s.mu.Lock()
	s.gen++
	s.connected = false
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Debug().Msg("Stream loops exited")
	case <-time.After(s.deps.StopWait):
		s.logger.Warn().Dur("wait", s.deps.StopWait).Msg("Stream loops did not exit in time, they release their own handles when they do")
	}

	s.state.Store(int32(StateStopped))
	s.logger.Info().Msg("Camera stream stopped")
	return nil
}

// restart runs exactly one stop-then-start cycle
func (s *Stream) restart() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if s.getState() != StateRunning {
		return nil
	}
	s.restarts.Add(1)
	s.logger.Info().Msg("Restarting camera stream")
	if err := s.stopLocked(); err != nil {
		return err
	}
	return s.startLocked()
}

// ApplyConfig swaps in new descriptor values and settings. A changed source
// URI restarts the stream; detection tunables apply on the next detection
// cycle and a changed model is reloaded lazily.
func (s *Stream) ApplyConfig(desc models.CameraDescriptor, settings config.Settings) error {
	s.cfgMu.Lock()
	uriChanged := desc.SourceURI != s.desc.SourceURI
	s.desc = desc
	s.settings = settings.Clone()
	s.cfgMu.Unlock()

	if uriChanged {
		s.logger.Info().Str("source_uri", desc.SourceURI).Msg("Source changed")
		return s.restart()
	}
	return nil
}

// sleep waits for d or until ctx is cancelled. Returns false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

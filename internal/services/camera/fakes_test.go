package camera

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sentinel-worker-go/internal/config"
	"sentinel-worker-go/internal/models"
)

func testFrame(w, h int) *models.Frame {
	return &models.Frame{Data: make([]byte, w*h*3), Width: w, Height: h}
}

type fakeCapture struct {
	src    *fakeSource
	uri    string
	reads  atomic.Int64
	closed atomic.Bool
}

func (c *fakeCapture) Read() (*models.Frame, error) {
	if c.src.panicReads.Load() > 0 {
		c.src.panicReads.Add(-1)
		panic("decoder crashed")
	}
	if c.src.failReads.Load() {
		return nil, errors.New("read failed")
	}
	c.reads.Add(1)
	c.src.reads.Add(1)
	return testFrame(8, 6), nil
}

func (c *fakeCapture) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.src.live.Add(-1)
	}
	return nil
}

type fakeSource struct {
	mu         sync.Mutex
	uris       []string
	captures   []*fakeCapture
	gates      map[string]chan struct{}
	failOpens  atomic.Int32
	failReads  atomic.Bool
	panicReads atomic.Int32
	reads      atomic.Int64
	live       atomic.Int32
}

// Open blocks on the gate registered for uri, ignoring ctx the way a stuck
// driver call would
func (s *fakeSource) Open(_ context.Context, uri string, _ int) (Capture, error) {
	s.mu.Lock()
	s.uris = append(s.uris, uri)
	gate := s.gates[uri]
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if s.failOpens.Load() > 0 {
		s.failOpens.Add(-1)
		return nil, errors.New("source unavailable")
	}

	c := &fakeCapture{src: s, uri: uri}
	s.live.Add(1)
	s.mu.Lock()
	s.captures = append(s.captures, c)
	s.mu.Unlock()
	return c, nil
}

// gate makes Open for uri block until the returned channel is closed
func (s *fakeSource) gate(uri string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gates == nil {
		s.gates = map[string]chan struct{}{}
	}
	ch := make(chan struct{})
	s.gates[uri] = ch
	return ch
}

func (s *fakeSource) opened() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.uris...)
}

func (s *fakeSource) capturesFor(uri string) []*fakeCapture {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeCapture
	for _, c := range s.captures {
		if c.uri == uri {
			out = append(out, c)
		}
	}
	return out
}

type fakeMotion struct {
	moving *atomic.Bool
}

func (m *fakeMotion) Apply(*models.Frame, float64) (bool, error) { return m.moving.Load(), nil }
func (m *fakeMotion) Close() error                               { return nil }

type fakeDetector struct {
	mu     sync.Mutex
	dets   []models.Detection
	calls  int
	inputs []*models.Frame
}

func (d *fakeDetector) Infer(_ context.Context, frame *models.Frame, _ float64, _ []int) ([]models.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.inputs = append(d.inputs, frame)
	return append([]models.Detection(nil), d.dets...), nil
}

func (d *fakeDetector) set(dets ...models.Detection) {
	d.mu.Lock()
	d.dets = dets
	d.mu.Unlock()
}

func (d *fakeDetector) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type fakeLoader struct {
	mu       sync.Mutex
	detector ObjectDetector
	fail     map[string]bool
	loads    []string
}

func (l *fakeLoader) Load(_ context.Context, model string, _ bool) (ObjectDetector, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads = append(l.loads, model)
	if l.fail[model] {
		return nil, errors.New("model not found")
	}
	return l.detector, nil
}

type fakeRenderer struct {
	mu         sync.Mutex
	lastLevel  StatusLevel
	lastBoxes  []models.Detection
	lastDrawn  *models.Frame
	annotated  int
	reconnects int
}

func (r *fakeRenderer) Annotate(frame *models.Frame, _ []models.Detection) *models.Frame {
	r.mu.Lock()
	r.annotated++
	r.mu.Unlock()
	return frame.Clone()
}

func (r *fakeRenderer) MarkReconnecting(frame *models.Frame) *models.Frame {
	r.mu.Lock()
	r.reconnects++
	r.mu.Unlock()
	return frame.Clone()
}

func (r *fakeRenderer) Placeholder(w, h int) *models.Frame { return testFrame(w, h) }

func (r *fakeRenderer) Resize(_ *models.Frame, w, h int) (*models.Frame, error) {
	return testFrame(w, h), nil
}

func (r *fakeRenderer) DrawStatus(frame *models.Frame, boxes []models.Detection, level StatusLevel, _ time.Time) *models.Frame {
	r.mu.Lock()
	r.lastLevel = level
	r.lastBoxes = boxes
	r.lastDrawn = frame
	r.mu.Unlock()
	return frame.Clone()
}

func (r *fakeRenderer) EncodeJPEG(*models.Frame) ([]byte, error) { return []byte("jpeg"), nil }

type fakeAlerts struct {
	mu       sync.Mutex
	triggers []models.AlertType
	accept   bool
}

func (a *fakeAlerts) Trigger(_ context.Context, _ *models.Frame, t models.AlertType, _, _ string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.triggers = append(a.triggers, t)
	return a.accept
}

func (a *fakeAlerts) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.triggers)
}

type fakeRecorder struct {
	frames atomic.Int64
}

func (r *fakeRecorder) WriteFrame(*models.Frame) { r.frames.Add(1) }

// manualClock is advanced explicitly by tests
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	source   *fakeSource
	moving   *atomic.Bool
	detector *fakeDetector
	loader   *fakeLoader
	renderer *fakeRenderer
	alerts   *fakeAlerts
	recorder *fakeRecorder
	deps     Deps
}

func newHarness() *harness {
	h := &harness{
		source:   &fakeSource{},
		moving:   &atomic.Bool{},
		detector: &fakeDetector{},
		renderer: &fakeRenderer{},
		alerts:   &fakeAlerts{accept: true},
		recorder: &fakeRecorder{},
	}
	h.loader = &fakeLoader{detector: h.detector, fail: map[string]bool{}}
	h.deps = Deps{
		Source: h.source,
		Motion: func(MotionParams) (MotionDetector, error) {
			return &fakeMotion{moving: h.moving}, nil
		},
		Models:   h.loader,
		Renderer: h.renderer,
		Alerts:   h.alerts,
		Recorder: h.recorder,
		StopWait: 2 * time.Second,
		Logger:   zerolog.Nop(),
	}
	return h
}

// fastSettings keeps the loops quick enough for tests
func fastSettings() config.Settings {
	s := config.DefaultSettings()
	s.Camera.FrameRate = 200
	s.Camera.ReconnectDelay = time.Millisecond
	s.Camera.ReconnectAttempts = 3
	s.Camera.FrameFailureTimeout = 20 * time.Millisecond
	s.Performance.ProcessInterval = config.MinProcessInterval
	s.Performance.DetectionResize = 0
	return s
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

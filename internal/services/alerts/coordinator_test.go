package alerts

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sentinel-worker-go/internal/config"
	"sentinel-worker-go/internal/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeSnapshots struct {
	saved int
	err   error
}

func (f *fakeSnapshots) Save(ctx context.Context, frame *models.Frame, cameraID string, at time.Time) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	f.saved++
	return "alerts/" + SnapshotName(cameraID, at), "", nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []string
	paths []string
}

func (f *fakeNotifier) Send(ctx context.Context, location, imagePath string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, location)
	f.paths = append(f.paths, imagePath)
	return true
}

func (f *fakeNotifier) Enabled() bool { return true }

type fakeRecorder struct {
	starts    int
	recording bool
	onPerson  bool
}

func (f *fakeRecorder) Start(reason string) (bool, error) {
	if f.recording {
		return false, nil
	}
	f.starts++
	f.recording = true
	return true, nil
}
func (f *fakeRecorder) Enabled() bool        { return true }
func (f *fakeRecorder) RecordOnPerson() bool { return f.onPerson }
func (f *fakeRecorder) IsRecording() bool    { return f.recording }

type fakePublisher struct {
	events []models.AlertEvent
}

func (f *fakePublisher) Publish(subject string, data interface{}) error {
	f.events = append(f.events, data.(models.AlertEvent))
	return nil
}

func testFrame() *models.Frame {
	return &models.Frame{Data: make([]byte, 12), Width: 2, Height: 2}
}

func newCoordinator(cooldown time.Duration, clock *fakeClock, snaps Snapshotter, n Notifier, r Recorder, opts ...Option) *Coordinator {
	opts = append(opts, WithClock(clock.Now))
	return NewCoordinator(config.AlertSettings{Cooldown: cooldown}, snaps, n, r, opts...)
}

func TestCooldownBoundary(t *testing.T) {
	cases := []struct {
		gap    time.Duration
		accept bool
	}{
		{0, false},
		{29 * time.Second, false},
		{30*time.Second - time.Nanosecond, false},
		{30 * time.Second, true},
		{45 * time.Second, true},
	}
	for _, tc := range cases {
		clock := &fakeClock{t: time.Unix(1000, 0)}
		c := newCoordinator(30*time.Second, clock, nil, nil, nil)

		if !c.Trigger(context.Background(), testFrame(), models.AlertTypeManual, "cam1", "Door") {
			t.Fatalf("first trigger rejected")
		}
		clock.Advance(tc.gap)
		got := c.Trigger(context.Background(), testFrame(), models.AlertTypeManual, "cam1", "Door")
		if got != tc.accept {
			t.Errorf("gap %v: accepted = %v, want %v", tc.gap, got, tc.accept)
		}
		want := int64(1)
		if tc.accept {
			want = 2
		}
		if c.Stats().TotalAlerts != want {
			t.Errorf("gap %v: total = %d, want %d", tc.gap, c.Stats().TotalAlerts, want)
		}
	}
}

func TestCooldownIsGlobalAcrossCameras(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	c := newCoordinator(30*time.Second, clock, nil, nil, nil)

	c.Trigger(context.Background(), testFrame(), models.AlertTypeManual, "cam1", "Door")
	clock.Advance(time.Second)
	if c.Trigger(context.Background(), testFrame(), models.AlertTypeManual, "cam2", "Yard") {
		t.Error("alert on another camera bypassed the cooldown")
	}
}

func TestConcurrentTriggersSingleWinner(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	c := newCoordinator(time.Minute, clock, nil, nil, nil)

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Trigger(context.Background(), testFrame(), models.AlertTypeManual, "cam", "x") {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	if accepted.Load() != 1 {
		t.Errorf("accepted %d concurrent triggers, want 1", accepted.Load())
	}
	if c.Stats().TotalAlerts != 1 {
		t.Errorf("total = %d, want 1", c.Stats().TotalAlerts)
	}
}

func TestPersonAlertFansOut(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)}
	snaps := &fakeSnapshots{}
	n := &fakeNotifier{}
	r := &fakeRecorder{onPerson: true}
	pub := &fakePublisher{}
	c := newCoordinator(time.Second, clock, snaps, n, r, WithPublisher(pub, "alerts"))

	if !c.Trigger(context.Background(), testFrame(), models.AlertTypePerson, "cam1", "Front") {
		t.Fatal("trigger rejected")
	}
	c.Wait()

	if snaps.saved != 1 {
		t.Errorf("snapshots saved = %d", snaps.saved)
	}
	if len(n.sent) != 1 || n.sent[0] != "Front" || n.paths[0] != "alerts/alert_20240102_030405_cam1.jpg" {
		t.Errorf("notifications = %v %v", n.sent, n.paths)
	}
	if r.starts != 1 {
		t.Errorf("recording starts = %d", r.starts)
	}
	if len(pub.events) != 1 || !pub.events[0].Recording || pub.events[0].Sequence != 1 {
		t.Errorf("events = %+v", pub.events)
	}
}

func TestManualAlertDoesNotNotifyOrRecord(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	snaps := &fakeSnapshots{}
	n := &fakeNotifier{}
	r := &fakeRecorder{onPerson: true}
	c := newCoordinator(time.Second, clock, snaps, n, r)

	c.Trigger(context.Background(), testFrame(), models.AlertTypeManual, "cam1", "Front")
	c.Wait()
	if len(n.sent) != 0 || r.starts != 0 {
		t.Errorf("manual alert notified %d times, recorded %d times", len(n.sent), r.starts)
	}
	if snaps.saved != 1 {
		t.Errorf("manual alert snapshot not saved")
	}
}

func TestRecordOnPersonDisabled(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	r := &fakeRecorder{onPerson: false}
	c := newCoordinator(time.Second, clock, nil, nil, r)

	c.Trigger(context.Background(), testFrame(), models.AlertTypePerson, "cam1", "Front")
	if r.starts != 0 {
		t.Errorf("recording started with record-on-person off")
	}
}

func TestSnapshotFailureDoesNotAbortAlert(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	n := &fakeNotifier{}
	c := newCoordinator(time.Second, clock, &fakeSnapshots{err: errors.New("disk full")}, n, nil)

	if !c.Trigger(context.Background(), testFrame(), models.AlertTypePerson, "cam1", "Front") {
		t.Fatal("trigger rejected")
	}
	c.Wait()
	if len(n.paths) != 1 || n.paths[0] != "" {
		t.Errorf("notifier should get an empty image path, got %v", n.paths)
	}
}

func TestRefreshChangesCooldown(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	c := newCoordinator(time.Hour, clock, nil, nil, nil)
	c.Trigger(context.Background(), testFrame(), models.AlertTypeManual, "cam", "x")

	c.Refresh(config.AlertSettings{Cooldown: time.Second})
	clock.Advance(2 * time.Second)
	if !c.Trigger(context.Background(), testFrame(), models.AlertTypeManual, "cam", "x") {
		t.Error("shortened cooldown not applied")
	}
}

func TestStatsLastAlertTime(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	c := newCoordinator(time.Second, clock, nil, nil, nil)
	if c.Stats().LastAlertTime != nil {
		t.Fatal("last alert time set before any alert")
	}
	c.Trigger(context.Background(), testFrame(), models.AlertTypeManual, "cam", "x")
	if got := c.Stats().LastAlertTime; got == nil || !got.Equal(time.Unix(1000, 0)) {
		t.Errorf("last alert time = %v", got)
	}
}

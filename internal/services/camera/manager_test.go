package camera

import (
	"context"
	"errors"
	"testing"
	"time"

	"sentinel-worker-go/internal/config"
	"sentinel-worker-go/internal/models"
)

type memStore struct {
	cams      []models.CameraDescriptor
	deleted   []string
	failWrite bool
}

func (s *memStore) List() ([]models.CameraDescriptor, error) {
	return append([]models.CameraDescriptor(nil), s.cams...), nil
}

func (s *memStore) Add(d models.CameraDescriptor) (models.CameraDescriptor, error) {
	if s.failWrite {
		return models.CameraDescriptor{}, errors.New("disk full")
	}
	s.cams = append(s.cams, d)
	return d, nil
}

func (s *memStore) Update(id string, u models.CameraUpdate) (models.CameraDescriptor, error) {
	for i, c := range s.cams {
		if c.ID == id {
			s.cams[i] = u.Apply(c)
			return s.cams[i], nil
		}
	}
	return models.CameraDescriptor{}, errors.New("missing")
}

func (s *memStore) Delete(id string) error {
	s.deleted = append(s.deleted, id)
	for i, c := range s.cams {
		if c.ID == id {
			s.cams = append(s.cams[:i], s.cams[i+1:]...)
			return nil
		}
	}
	return errors.New("missing")
}

type staticSettings struct{ s config.Settings }

func (p staticSettings) Get() config.Settings { return p.s.Clone() }

func newTestManager(t *testing.T, store ConfigStore) (*Manager, *harness) {
	t.Helper()
	h := newHarness()
	m := NewManager(store, staticSettings{fastSettings()}, h.deps)
	t.Cleanup(m.Shutdown)
	return m, h
}

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }

func TestManagerLoadStartsEnabledOnly(t *testing.T) {
	store := &memStore{cams: []models.CameraDescriptor{
		{ID: "cam1", Name: "Gate", SourceURI: "rtsp://a", Enabled: true},
		{ID: "cam2", Name: "Yard", SourceURI: "rtsp://b", Enabled: false},
		{ID: "", Name: "broken", SourceURI: "rtsp://c", Enabled: true},
	}}
	m, _ := newTestManager(t, store)

	if err := m.Load(); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Get("cam1"); !ok {
		t.Fatal("cam1 should be running")
	}
	if _, ok := m.Get("cam2"); ok {
		t.Fatal("disabled cam2 should not be running")
	}

	statuses := m.List()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0].ID != "cam1" || statuses[1].ID != "cam2" {
		t.Fatalf("unexpected order: %s, %s", statuses[0].ID, statuses[1].ID)
	}
	if statuses[1].State != models.CameraStateDisabled || statuses[1].MotionEvents != 0 {
		t.Fatalf("disabled camera status = %+v", statuses[1])
	}
}

func TestManagerAddDuplicate(t *testing.T) {
	m, _ := newTestManager(t, &memStore{})

	if _, err := m.Add(models.CameraDescriptor{ID: "cam1", SourceURI: "rtsp://a", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	_, err := m.Add(models.CameraDescriptor{ID: "cam1", SourceURI: "rtsp://b", Enabled: true})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if len(m.List()) != 1 {
		t.Fatal("duplicate add mutated the registry")
	}
}

func TestManagerAddGeneratesID(t *testing.T) {
	m, _ := newTestManager(t, nil)

	if _, err := m.Add(models.CameraDescriptor{ID: "cam2", SourceURI: "rtsp://a"}); err != nil {
		t.Fatal(err)
	}
	d, err := m.Add(models.CameraDescriptor{SourceURI: "  rtsp://b  "})
	if err != nil {
		t.Fatal(err)
	}
	if d.ID != "cam3" {
		t.Fatalf("generated id = %q, want cam3", d.ID)
	}
	if d.Name != "cam3" || d.SourceURI != "rtsp://b" {
		t.Fatalf("descriptor not normalized: %+v", d)
	}
}

func TestManagerAddStoreFailureLeavesRegistry(t *testing.T) {
	m, _ := newTestManager(t, &memStore{failWrite: true})

	if _, err := m.Add(models.CameraDescriptor{ID: "cam1", SourceURI: "rtsp://a", Enabled: true}); err == nil {
		t.Fatal("expected store failure")
	}
	if _, ok := m.Descriptor("cam1"); ok {
		t.Fatal("failed add left a descriptor behind")
	}
}

func TestManagerUnknownCamera(t *testing.T) {
	m, _ := newTestManager(t, nil)

	if _, err := m.Update("nope", models.CameraUpdate{Name: strPtr("x")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update: expected ErrNotFound, got %v", err)
	}
	if err := m.Remove("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Remove: expected ErrNotFound, got %v", err)
	}
	if _, err := m.Frame("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Frame: expected ErrNotFound, got %v", err)
	}
	if _, err := m.TriggerManualAlert(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("TriggerManualAlert: expected ErrNotFound, got %v", err)
	}
}

func TestManagerDisableAndEnable(t *testing.T) {
	store := &memStore{}
	m, _ := newTestManager(t, store)

	if _, err := m.Add(models.CameraDescriptor{ID: "cam1", SourceURI: "rtsp://a", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	first, ok := m.Get("cam1")
	if !ok {
		t.Fatal("cam1 not running after add")
	}

	if _, err := m.Update("cam1", models.CameraUpdate{Enabled: boolPtr(false)}); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Get("cam1"); ok {
		t.Fatal("disabled camera still running")
	}
	if first.IsRunning() {
		t.Fatal("stream not stopped on disable")
	}
	d, ok := m.Descriptor("cam1")
	if !ok || d.Enabled {
		t.Fatalf("descriptor should be kept disabled, got %+v", d)
	}
	if _, err := m.Frame("cam1"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}

	if _, err := m.Update("cam1", models.CameraUpdate{Enabled: boolPtr(true)}); err != nil {
		t.Fatal(err)
	}
	second, ok := m.Get("cam1")
	if !ok || second == first {
		t.Fatal("enabling should create a new stream")
	}
	if !store.cams[0].Enabled {
		t.Fatal("update not persisted")
	}
}

func TestManagerUpdateNameDoesNotRestart(t *testing.T) {
	m, _ := newTestManager(t, nil)
	if _, err := m.Add(models.CameraDescriptor{ID: "cam1", SourceURI: "rtsp://a", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	s, _ := m.Get("cam1")

	if _, err := m.Update("cam1", models.CameraUpdate{Name: strPtr("Lobby")}); err != nil {
		t.Fatal(err)
	}
	if s.Restarts() != 0 {
		t.Fatal("rename restarted the stream")
	}
	if s.Descriptor().Name != "Lobby" {
		t.Fatalf("stream descriptor not refreshed: %+v", s.Descriptor())
	}

	if _, err := m.Update("cam1", models.CameraUpdate{SourceURI: strPtr(" rtsp://b ")}); err != nil {
		t.Fatal(err)
	}
	if s.Restarts() != 1 {
		t.Fatalf("source change should restart once, got %d", s.Restarts())
	}
	if s.Descriptor().SourceURI != "rtsp://b" {
		t.Fatalf("source uri not trimmed: %q", s.Descriptor().SourceURI)
	}
}

func TestManagerRemove(t *testing.T) {
	store := &memStore{}
	m, _ := newTestManager(t, store)
	if _, err := m.Add(models.CameraDescriptor{ID: "cam1", SourceURI: "rtsp://a", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	s, _ := m.Get("cam1")

	if err := m.Remove("cam1"); err != nil {
		t.Fatal(err)
	}
	if s.IsRunning() {
		t.Fatal("removed stream still running")
	}
	if len(m.List()) != 0 || len(store.deleted) != 1 {
		t.Fatal("camera not removed from registry and store")
	}
}

func TestManagerApplyConfigPropagates(t *testing.T) {
	h := newHarness()
	provider := &mutableSettings{s: fastSettings()}
	m := NewManager(nil, provider, h.deps)
	defer m.Shutdown()

	if _, err := m.Add(models.CameraDescriptor{ID: "cam1", SourceURI: "rtsp://a", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	provider.s.Detector.Confidence = 0.9
	provider.s.Performance.ProcessInterval = time.Second
	m.ApplyConfig()

	s, _ := m.Get("cam1")
	if _, got := s.config(); got.Detector.Confidence != 0.9 {
		t.Fatalf("confidence = %v, want 0.9", got.Detector.Confidence)
	}
	if s.Restarts() != 0 {
		t.Fatal("settings change restarted the stream")
	}
	if st, _ := m.Status("cam1"); st.ProcessInterval != "1s" {
		t.Fatalf("process interval = %q, want 1s", st.ProcessInterval)
	}
}

func TestManagerShutdownStopsAll(t *testing.T) {
	m, _ := newTestManager(t, nil)
	for _, id := range []string{"cam1", "cam2"} {
		if _, err := m.Add(models.CameraDescriptor{ID: id, SourceURI: "rtsp://" + id, Enabled: true}); err != nil {
			t.Fatal(err)
		}
	}
	a, _ := m.Get("cam1")
	b, _ := m.Get("cam2")

	m.Shutdown()
	if a.IsRunning() || b.IsRunning() {
		t.Fatal("streams still running after shutdown")
	}
	if st, _ := m.Status("cam1"); st.State != models.CameraStateOffline {
		t.Fatalf("state after shutdown = %s, want offline", st.State)
	}
}

type mutableSettings struct{ s config.Settings }

func (p *mutableSettings) Get() config.Settings { return p.s.Clone() }

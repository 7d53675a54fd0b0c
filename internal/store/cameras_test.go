package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"sentinel-worker-go/internal/models"
)

func newStore(t *testing.T, content string) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cameras.yaml")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return NewFileStore(path, DefaultCameras, zerolog.Nop()), path
}

func TestMissingFileSeedsDefaults(t *testing.T) {
	s, path := newStore(t, "")

	cams, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(cams) != len(DefaultCameras) || cams[0].ID != "cam1" {
		t.Fatalf("unexpected defaults: %+v", cams)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("defaults not written: %v", err)
	}
}

func TestLoadSanitizes(t *testing.T) {
	s, _ := newStore(t, `
cameras:
  - name: "  Garage "
    rtsp: " rtsp://garage/stream "
  - id: yard
    source_uri: rtsp://yard
    enabled: false
`)

	cams, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	want := []models.CameraDescriptor{
		{ID: "cam1", Name: "Garage", SourceURI: "rtsp://garage/stream", Enabled: true},
		{ID: "yard", Name: "yard", SourceURI: "rtsp://yard", Enabled: false},
	}
	if len(cams) != len(want) {
		t.Fatalf("got %d cameras, want %d", len(cams), len(want))
	}
	for i := range want {
		if cams[i] != want[i] {
			t.Errorf("camera %d = %+v, want %+v", i, cams[i], want[i])
		}
	}
}

func TestCorruptFileBackedUp(t *testing.T) {
	s, path := newStore(t, "cameras: [unterminated")

	cams, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(cams) != len(DefaultCameras) {
		t.Fatalf("expected defaults after corrupt file, got %+v", cams)
	}
	backup := strings.TrimSuffix(path, ".yaml") + ".bak"
	data, err := os.ReadFile(backup)
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if string(data) != "cameras: [unterminated" {
		t.Fatalf("backup content = %q", data)
	}
}

func TestAddUpdateDeletePersist(t *testing.T) {
	s, path := newStore(t, "cameras:\n  - id: cam1\n    source_uri: rtsp://a\n")

	added, err := s.Add(models.CameraDescriptor{SourceURI: "rtsp://b", Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if added.ID != "cam2" || added.Name != "cam2" {
		t.Fatalf("added = %+v", added)
	}
	if _, err := s.Add(models.CameraDescriptor{ID: "cam1"}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}

	name := ""
	disabled := false
	updated, err := s.Update("cam2", models.CameraUpdate{Name: &name, Enabled: &disabled})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Name != "cam2" || updated.Enabled {
		t.Fatalf("updated = %+v", updated)
	}
	if _, err := s.Update("nope", models.CameraUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Delete("cam1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("cam1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	reopened := NewFileStore(path, DefaultCameras, zerolog.Nop())
	cams, err := reopened.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(cams) != 1 || cams[0].ID != "cam2" || cams[0].Enabled {
		t.Fatalf("persisted cameras = %+v", cams)
	}
}

func TestListReturnsCopy(t *testing.T) {
	s, _ := newStore(t, "")
	cams, _ := s.List()
	cams[0].Name = "changed"

	again, _ := s.List()
	if again[0].Name == "changed" {
		t.Fatal("List exposed internal state")
	}
}

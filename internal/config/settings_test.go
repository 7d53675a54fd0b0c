package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultSettingsAreValid(t *testing.T) {
	s := DefaultSettings()
	if err := s.Validate(); err != nil {
		t.Fatalf("default settings invalid: %v", err)
	}
	if s.Alerts.Cooldown != 30*time.Second {
		t.Errorf("alert cooldown = %v, want 30s", s.Alerts.Cooldown)
	}
	if got := s.Recording.BufferCapacity(); got != 600 {
		t.Errorf("buffer capacity = %d, want 600", got)
	}
}

func TestEffectiveProcessIntervalFloor(t *testing.T) {
	p := PerformanceSettings{ProcessInterval: 50 * time.Millisecond}
	if got := p.EffectiveProcessInterval(); got != MinProcessInterval {
		t.Errorf("got %v, want %v", got, MinProcessInterval)
	}
	p.ProcessInterval = time.Second
	if got := p.EffectiveProcessInterval(); got != time.Second {
		t.Errorf("got %v, want 1s", got)
	}
}

func TestQuotaBytes(t *testing.T) {
	r := RecordingSettings{MaxStorageGB: 10}
	if got, want := r.QuotaBytes(), int64(10)<<30; got != want {
		t.Errorf("quota = %d, want %d", got, want)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Settings){
		"confidence zero":   func(s *Settings) { s.Detector.Confidence = 0 },
		"confidence > 1":    func(s *Settings) { s.Detector.Confidence = 1.5 },
		"no fps":            func(s *Settings) { s.Recording.FPS = 0 },
		"bad codec":         func(s *Settings) { s.Recording.Codec = "h264x" },
		"no storage path":   func(s *Settings) { s.Recording.StoragePath = "" },
		"negative cooldown": func(s *Settings) { s.Alerts.Cooldown = -time.Second },
		"no attempts":       func(s *Settings) { s.Camera.ReconnectAttempts = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := DefaultSettings()
			mutate(&s)
			if err := s.Validate(); !errors.Is(err, ErrInvalidSettings) {
				t.Fatalf("expected ErrInvalidSettings, got %v", err)
			}
		})
	}
}

func TestLoadSettingsMissingFileReturnsDefaults(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Recording.FPS != DefaultSettings().Recording.FPS {
		t.Errorf("expected default fps, got %d", s.Recording.FPS)
	}
}

func TestLoadSettingsOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	data := []byte("detector:\n  confidence: 0.7\nalerts:\n  cooldown: 10s\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Detector.Confidence != 0.7 {
		t.Errorf("confidence = %v, want 0.7", s.Detector.Confidence)
	}
	if s.Alerts.Cooldown != 10*time.Second {
		t.Errorf("cooldown = %v, want 10s", s.Alerts.Cooldown)
	}
	if s.Recording.Codec != "mp4v" {
		t.Errorf("codec = %q, want default mp4v", s.Recording.Codec)
	}
}

func TestLoadSettingsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("recording:\n  fps: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSettings(path); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings, got %v", err)
	}
}

func TestSettingsStoreUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	store := NewSettingsStore(path, DefaultSettings())

	got, err := store.Update(func(s *Settings) { s.Detector.Confidence = 0.9 })
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if got.Detector.Confidence != 0.9 || store.Get().Detector.Confidence != 0.9 {
		t.Fatalf("update not applied")
	}

	reloaded, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Detector.Confidence != 0.9 {
		t.Errorf("persisted confidence = %v, want 0.9", reloaded.Detector.Confidence)
	}
}

func TestSettingsStoreRejectsInvalidUpdate(t *testing.T) {
	store := NewSettingsStore("", DefaultSettings())
	if _, err := store.Update(func(s *Settings) { s.Recording.FPS = -1 }); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings, got %v", err)
	}
	if store.Get().Recording.FPS != 20 {
		t.Errorf("invalid update leaked into store")
	}
}

func TestSettingsStoreGetIsCopy(t *testing.T) {
	store := NewSettingsStore("", DefaultSettings())
	s := store.Get()
	s.Detector.Classes[0] = 99
	if store.Get().Detector.Classes[0] != 0 {
		t.Errorf("mutating a returned copy changed the store")
	}
}

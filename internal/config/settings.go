package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// MinProcessInterval is the tightest detection cadence a stream will honor
const MinProcessInterval = 200 * time.Millisecond

// ErrInvalidSettings is returned when runtime settings fail validation
var ErrInvalidSettings = errors.New("invalid settings")

// Settings are the runtime tunables propagated to every camera stream
type Settings struct {
	Camera      CameraSettings      `yaml:"camera" json:"camera"`
	Motion      MotionSettings      `yaml:"motion" json:"motion"`
	Detector    DetectorSettings    `yaml:"detector" json:"detector"`
	Performance PerformanceSettings `yaml:"performance" json:"performance"`
	Recording   RecordingSettings   `yaml:"recording" json:"recording"`
	Notifier    NotifierSettings    `yaml:"notifier" json:"notifier"`
	Alerts      AlertSettings       `yaml:"alerts" json:"alerts"`
}

type CameraSettings struct {
	ReconnectAttempts   int           `yaml:"reconnect_attempts" json:"reconnect_attempts"`
	ReconnectDelay      time.Duration `yaml:"reconnect_delay" json:"reconnect_delay"`
	FrameRate           int           `yaml:"frame_rate" json:"frame_rate"`
	BufferSize          int           `yaml:"buffer_size" json:"buffer_size"`
	FrameFailureTimeout time.Duration `yaml:"frame_failure_timeout" json:"frame_failure_timeout"`
	CacheLastFrame      bool          `yaml:"cache_last_frame" json:"cache_last_frame"`
}

type MotionSettings struct {
	Enabled       bool    `yaml:"enabled" json:"enabled"`
	MinArea       float64 `yaml:"min_area" json:"min_area"`
	History       int     `yaml:"history" json:"history"`
	VarThreshold  float64 `yaml:"var_threshold" json:"var_threshold"`
	DetectShadows bool    `yaml:"detect_shadows" json:"detect_shadows"`
}

type DetectorSettings struct {
	Model             string        `yaml:"model" json:"model"`
	Confidence        float64       `yaml:"confidence" json:"confidence"`
	Classes           []int         `yaml:"classes" json:"classes"`
	DetectionCooldown time.Duration `yaml:"detection_cooldown" json:"detection_cooldown"`
}

type PerformanceSettings struct {
	ProcessInterval    time.Duration `yaml:"process_interval" json:"process_interval"`
	DetectionResize    int           `yaml:"detection_resize" json:"detection_resize"`
	DetectOnMotionOnly bool          `yaml:"detect_on_motion_only" json:"detect_on_motion_only"`
	UseGPU             bool          `yaml:"use_gpu" json:"use_gpu"`
}

type RecordingSettings struct {
	Enabled        bool          `yaml:"enabled" json:"enabled"`
	RecordOnPerson bool          `yaml:"record_on_person_detection" json:"record_on_person_detection"`
	Duration       time.Duration `yaml:"record_duration" json:"record_duration"`
	Codec          string        `yaml:"video_codec" json:"video_codec"`
	FPS            int           `yaml:"fps" json:"fps"`
	Width          int           `yaml:"width" json:"width"`
	Height         int           `yaml:"height" json:"height"`
	StoragePath    string        `yaml:"storage_path" json:"storage_path"`
	MaxStorageGB   float64       `yaml:"max_storage_gb" json:"max_storage_gb"`
}

type NotifierSettings struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	BotToken        string `yaml:"bot_token" json:"-"`
	ChatID          string `yaml:"chat_id" json:"chat_id"`
	SendScreenshot  bool   `yaml:"send_screenshot" json:"send_screenshot"`
	MessageTemplate string `yaml:"message_template" json:"message_template"`
	MQTTTopic       string `yaml:"mqtt_topic" json:"mqtt_topic"`
}

type AlertSettings struct {
	Cooldown    time.Duration `yaml:"cooldown" json:"cooldown"`
	SnapshotDir string        `yaml:"snapshot_dir" json:"snapshot_dir"`
	MaxAlerts   int           `yaml:"max_alerts" json:"max_alerts"`
}

// DefaultSettings returns the built-in defaults, honoring the few env overrides
// operators commonly tune without a settings file
func DefaultSettings() Settings {
	return Settings{
		Camera: CameraSettings{
			ReconnectAttempts:   5,
			ReconnectDelay:      2 * time.Second,
			FrameRate:           30,
			BufferSize:          4096,
			FrameFailureTimeout: 5 * time.Second,
			CacheLastFrame:      true,
		},
		Motion: MotionSettings{
			Enabled:       true,
			MinArea:       500,
			History:       500,
			VarThreshold:  16,
			DetectShadows: true,
		},
		Detector: DetectorSettings{
			Model:             "yolov8n",
			Confidence:        0.5,
			Classes:           []int{0},
			DetectionCooldown: 2 * time.Second,
		},
		Performance: PerformanceSettings{
			ProcessInterval:    time.Duration(getEnvFloat("PROCESS_INTERVAL", 0.5) * float64(time.Second)),
			DetectionResize:    getEnvInt("DETECTION_RESIZE", 640),
			DetectOnMotionOnly: true,
			UseGPU:             getEnvBool("DETECTOR_USE_GPU", false),
		},
		Recording: RecordingSettings{
			Enabled:        false,
			RecordOnPerson: true,
			Duration:       30 * time.Second,
			Codec:          "mp4v",
			FPS:            20,
			Width:          640,
			Height:         480,
			StoragePath:    "recordings",
			MaxStorageGB:   10,
		},
		Notifier: NotifierSettings{
			Enabled:         false,
			BotToken:        getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:          getEnv("TELEGRAM_CHAT_ID", ""),
			SendScreenshot:  true,
			MessageTemplate: "PERSON DETECTED!\nLocation: {location}\nTime: {timestamp}",
			MQTTTopic:       "sentinel/alerts",
		},
		Alerts: AlertSettings{
			Cooldown:    30 * time.Second,
			SnapshotDir: "alerts",
			MaxAlerts:   100,
		},
	}
}

// EffectiveProcessInterval clamps the configured interval to MinProcessInterval
func (p PerformanceSettings) EffectiveProcessInterval() time.Duration {
	if p.ProcessInterval < MinProcessInterval {
		return MinProcessInterval
	}
	return p.ProcessInterval
}

// QuotaBytes converts the configured quota to bytes
func (r RecordingSettings) QuotaBytes() int64 {
	return int64(r.MaxStorageGB * 1024 * 1024 * 1024)
}

// BufferCapacity is the pre-roll capacity, fps × duration frames
func (r RecordingSettings) BufferCapacity() int {
	n := int(float64(r.FPS) * r.Duration.Seconds())
	if n < 0 {
		return 0
	}
	return n
}

// Clone returns a deep copy
func (s Settings) Clone() Settings {
	out := s
	out.Detector.Classes = append([]int(nil), s.Detector.Classes...)
	return out
}

// Validate checks every tunable once so the rest of the code can trust them
func (s Settings) Validate() error {
	switch {
	case s.Camera.ReconnectAttempts < 1:
		return fmt.Errorf("%w: camera.reconnect_attempts must be >= 1", ErrInvalidSettings)
	case s.Camera.ReconnectDelay < 0:
		return fmt.Errorf("%w: camera.reconnect_delay must be >= 0", ErrInvalidSettings)
	case s.Camera.FrameRate < 1:
		return fmt.Errorf("%w: camera.frame_rate must be >= 1", ErrInvalidSettings)
	case s.Camera.FrameFailureTimeout <= 0:
		return fmt.Errorf("%w: camera.frame_failure_timeout must be > 0", ErrInvalidSettings)
	case s.Motion.History < 1:
		return fmt.Errorf("%w: motion.history must be >= 1", ErrInvalidSettings)
	case s.Motion.MinArea < 0:
		return fmt.Errorf("%w: motion.min_area must be >= 0", ErrInvalidSettings)
	case s.Detector.Confidence <= 0 || s.Detector.Confidence > 1:
		return fmt.Errorf("%w: detector.confidence must be in (0, 1]", ErrInvalidSettings)
	case s.Detector.DetectionCooldown < 0:
		return fmt.Errorf("%w: detector.detection_cooldown must be >= 0", ErrInvalidSettings)
	case s.Performance.DetectionResize < 0:
		return fmt.Errorf("%w: performance.detection_resize must be >= 0", ErrInvalidSettings)
	case s.Recording.FPS < 1:
		return fmt.Errorf("%w: recording.fps must be >= 1", ErrInvalidSettings)
	case s.Recording.Duration <= 0:
		return fmt.Errorf("%w: recording.record_duration must be > 0", ErrInvalidSettings)
	case s.Recording.Width < 1 || s.Recording.Height < 1:
		return fmt.Errorf("%w: recording resolution must be positive", ErrInvalidSettings)
	case len(s.Recording.Codec) != 4:
		return fmt.Errorf("%w: recording.video_codec must be a fourcc", ErrInvalidSettings)
	case s.Recording.StoragePath == "":
		return fmt.Errorf("%w: recording.storage_path is required", ErrInvalidSettings)
	case s.Recording.MaxStorageGB <= 0:
		return fmt.Errorf("%w: recording.max_storage_gb must be > 0", ErrInvalidSettings)
	case s.Alerts.Cooldown < 0:
		return fmt.Errorf("%w: alerts.cooldown must be >= 0", ErrInvalidSettings)
	case s.Alerts.SnapshotDir == "":
		return fmt.Errorf("%w: alerts.snapshot_dir is required", ErrInvalidSettings)
	}
	return nil
}

// LoadSettings reads a YAML settings file on top of the defaults. A missing
// file yields the defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, s.Validate()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, s.Validate()
	}
	if err != nil {
		return s, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// SaveSettings writes the settings as YAML, replacing the file atomically
func SaveSettings(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create settings directory: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return os.Rename(tmp, path)
}

// SettingsStore holds the current settings and persists accepted updates
type SettingsStore struct {
	path     string
	mu       sync.RWMutex
	settings Settings
}

func NewSettingsStore(path string, initial Settings) *SettingsStore {
	return &SettingsStore{path: path, settings: initial.Clone()}
}

// Get returns a copy of the current settings
func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Clone()
}

// Update applies mutate to a copy, validates it and swaps it in. Nothing
// changes when validation or persistence fails.
func (s *SettingsStore) Update(mutate func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings.Clone()
	mutate(&next)
	if err := next.Validate(); err != nil {
		return s.settings.Clone(), err
	}
	if s.path != "" {
		if err := SaveSettings(s.path, next); err != nil {
			return s.settings.Clone(), err
		}
	}
	s.settings = next
	return next.Clone(), nil
}

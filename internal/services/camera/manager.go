package camera

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"sentinel-worker-go/internal/config"
	"sentinel-worker-go/internal/models"
)

var (
	ErrDuplicateID = errors.New("camera id already exists")
	ErrNotFound    = errors.New("camera not found")
	ErrDisabled    = errors.New("camera is disabled")
)

// ConfigStore persists camera descriptors
type ConfigStore interface {
	List() ([]models.CameraDescriptor, error)
	Add(desc models.CameraDescriptor) (models.CameraDescriptor, error)
	Update(id string, update models.CameraUpdate) (models.CameraDescriptor, error)
	Delete(id string) error
}

// SettingsProvider supplies the current runtime settings
type SettingsProvider interface {
	Get() config.Settings
}

// Manager is the registry of camera streams keyed by camera id. Descriptors
// of disabled cameras are kept without a running stream.
type Manager struct {
	// opMu serializes mutations so a store write and the registry change it
	// belongs to are never interleaved with another mutation
	opMu sync.Mutex

	mu          sync.RWMutex
	order       []string
	descriptors map[string]models.CameraDescriptor
	streams     map[string]*Stream

	store    ConfigStore
	settings SettingsProvider
	deps     Deps
	logger   zerolog.Logger
}

// NewManager creates an empty registry. Call Load to start the stored cameras.
func NewManager(store ConfigStore, settings SettingsProvider, deps Deps) *Manager {
	deps = deps.withDefaults()
	return &Manager{
		descriptors: make(map[string]models.CameraDescriptor),
		streams:     make(map[string]*Stream),
		store:       store,
		settings:    settings,
		deps:        deps,
		logger:      deps.Logger,
	}
}

// Load registers every stored camera and starts the enabled ones
func (m *Manager) Load() error {
	if m.store == nil {
		return nil
	}
	descs, err := m.store.List()
	if err != nil {
		return fmt.Errorf("failed to list cameras: %w", err)
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	for _, d := range descs {
		d = normalize(d)
		if d.ID == "" {
			m.logger.Warn().Str("name", d.Name).Msg("Skipping camera without id")
			continue
		}
		m.mu.RLock()
		_, exists := m.descriptors[d.ID]
		m.mu.RUnlock()
		if exists {
			m.logger.Warn().Str("camera_id", d.ID).Msg("Skipping duplicate camera id")
			continue
		}
		m.register(d)
	}

	m.logger.Info().Int("cameras", len(descs)).Int("running", m.runningCount()).Msg("Cameras loaded")
	return nil
}

// List returns the status of every registered camera in registration order
func (m *Manager) List() []models.CameraStatus {
	m.mu.RLock()
	ids := append([]string(nil), m.order...)
	m.mu.RUnlock()

	out := make([]models.CameraStatus, 0, len(ids))
	for _, id := range ids {
		if st, ok := m.Status(id); ok {
			out = append(out, st)
		}
	}
	return out
}

// Status returns the live status of a running camera, or a synthesized
// offline/disabled status for a camera without a stream
func (m *Manager) Status(id string) (models.CameraStatus, bool) {
	m.mu.RLock()
	desc, ok := m.descriptors[id]
	stream := m.streams[id]
	m.mu.RUnlock()

	if !ok {
		return models.CameraStatus{}, false
	}
	if stream == nil {
		return models.OfflineStatus(desc), true
	}
	st := stream.Status()
	st.Enabled = desc.Enabled
	return st, true
}

// Get returns the running stream for id
func (m *Manager) Get(id string) (*Stream, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streams[id]
	return s, ok
}

// Descriptor returns the registered descriptor for id
func (m *Manager) Descriptor(id string) (models.CameraDescriptor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.descriptors[id]
	return d, ok
}

// Add registers a new camera and starts it when enabled. An empty id is
// replaced by the first free cam<N>.
func (m *Manager) Add(desc models.CameraDescriptor) (models.CameraDescriptor, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	desc = normalize(desc)
	m.mu.RLock()
	if desc.ID == "" {
		desc.ID = m.nextIDLocked()
		if desc.Name == "" {
			desc.Name = desc.ID
		}
	}
	_, exists := m.descriptors[desc.ID]
	m.mu.RUnlock()
	if exists {
		return models.CameraDescriptor{}, fmt.Errorf("%w: %s", ErrDuplicateID, desc.ID)
	}

	if m.store != nil {
		stored, err := m.store.Add(desc)
		if err != nil {
			return models.CameraDescriptor{}, fmt.Errorf("failed to persist camera %s: %w", desc.ID, err)
		}
		desc = stored
	}

	m.register(desc)
	m.logger.Info().Str("camera_id", desc.ID).Bool("enabled", desc.Enabled).Msg("Camera added")
	return desc, nil
}

// Update applies a partial update. Disabling stops and drops the stream but
// keeps the descriptor; enabling a disabled camera starts a new stream.
func (m *Manager) Update(id string, update models.CameraUpdate) (models.CameraDescriptor, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	current, ok := m.descriptors[id]
	stream := m.streams[id]
	m.mu.RUnlock()
	if !ok {
		return models.CameraDescriptor{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if update.SourceURI != nil {
		trimmed := strings.TrimSpace(*update.SourceURI)
		update.SourceURI = &trimmed
	}
	next := update.Apply(current)
	if m.store != nil {
		stored, err := m.store.Update(id, update)
		if err != nil {
			return models.CameraDescriptor{}, fmt.Errorf("failed to persist camera %s: %w", id, err)
		}
		next = stored
	}

	m.mu.Lock()
	m.descriptors[id] = next
	m.mu.Unlock()

	switch {
	case !next.Enabled:
		if stream != nil {
			m.mu.Lock()
			delete(m.streams, id)
			m.mu.Unlock()
			m.stopStream(stream)
		}
		m.logger.Info().Str("camera_id", id).Msg("Camera disabled")
	case stream != nil:
		if err := stream.ApplyConfig(next, m.currentSettings()); err != nil {
			m.logger.Error().Err(err).Str("camera_id", id).Msg("Failed to apply camera update")
		}
		m.logger.Info().Str("camera_id", id).Msg("Camera updated")
	default:
		m.startStream(next)
		m.logger.Info().Str("camera_id", id).Msg("Camera enabled")
	}
	return next, nil
}

// Remove stops and forgets a camera
func (m *Manager) Remove(id string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	_, ok := m.descriptors[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if m.store != nil {
		if err := m.store.Delete(id); err != nil {
			return fmt.Errorf("failed to delete camera %s: %w", id, err)
		}
	}

	m.mu.Lock()
	stream := m.streams[id]
	delete(m.streams, id)
	delete(m.descriptors, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if stream != nil {
		m.stopStream(stream)
	}
	m.logger.Info().Str("camera_id", id).Msg("Camera removed")
	return nil
}

// ApplyConfig propagates the current settings to every running stream
func (m *Manager) ApplyConfig() {
	settings := m.currentSettings()

	m.mu.RLock()
	streams := make([]*Stream, 0, len(m.streams))
	descs := make([]models.CameraDescriptor, 0, len(m.streams))
	for id, s := range m.streams {
		streams = append(streams, s)
		descs = append(descs, m.descriptors[id])
	}
	m.mu.RUnlock()

	for i, s := range streams {
		if err := s.ApplyConfig(descs[i], settings); err != nil {
			m.logger.Error().Err(err).Str("camera_id", s.ID()).Msg("Failed to apply settings")
		}
	}
	m.logger.Info().Int("streams", len(streams)).Msg("Settings applied")
}

// Frame returns the dashboard JPEG of a running camera
func (m *Manager) Frame(id string) ([]byte, error) {
	stream, err := m.running(id)
	if err != nil {
		return nil, err
	}
	return stream.Frame()
}

// TriggerManualAlert raises a manual alert with the camera's current frame
func (m *Manager) TriggerManualAlert(ctx context.Context, id string) (bool, error) {
	stream, err := m.running(id)
	if err != nil {
		return false, err
	}
	return stream.TriggerManualAlert(ctx)
}

// Shutdown stops every running stream in parallel
func (m *Manager) Shutdown() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	streams := make([]*Stream, 0, len(m.streams))
	for id, s := range m.streams {
		streams = append(streams, s)
		delete(m.streams, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range streams {
		wg.Add(1)
		go func(s *Stream) {
			defer wg.Done()
			m.stopStream(s)
		}(s)
	}
	wg.Wait()
	m.logger.Info().Int("streams", len(streams)).Msg("All camera streams stopped")
}

func (m *Manager) running(id string) (*Stream, error) {
	m.mu.RLock()
	_, known := m.descriptors[id]
	stream := m.streams[id]
	m.mu.RUnlock()

	switch {
	case !known:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case stream == nil:
		return nil, fmt.Errorf("%w: %s", ErrDisabled, id)
	}
	return stream, nil
}

func (m *Manager) register(desc models.CameraDescriptor) {
	m.mu.Lock()
	m.descriptors[desc.ID] = desc
	m.order = append(m.order, desc.ID)
	m.mu.Unlock()

	if desc.Enabled {
		m.startStream(desc)
	}
}

func (m *Manager) startStream(desc models.CameraDescriptor) {
	stream := NewStream(desc, m.currentSettings(), m.deps)
	if err := stream.Start(); err != nil {
		m.logger.Error().Err(err).Str("camera_id", desc.ID).Msg("Failed to start camera stream")
		return
	}
	m.mu.Lock()
	m.streams[desc.ID] = stream
	m.mu.Unlock()
}

func (m *Manager) stopStream(s *Stream) {
	if err := s.Stop(); err != nil {
		m.logger.Debug().Err(err).Str("camera_id", s.ID()).Msg("Stream already stopped")
	}
}

func (m *Manager) currentSettings() config.Settings {
	if m.settings == nil {
		return config.DefaultSettings()
	}
	return m.settings.Get()
}

func (m *Manager) runningCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.streams)
}

// nextIDLocked returns the first unused cam<N>, starting at the registry size
// plus one. Callers hold mu.
func (m *Manager) nextIDLocked() string {
	for n := len(m.descriptors) + 1; ; n++ {
		id := fmt.Sprintf("cam%d", n)
		if _, taken := m.descriptors[id]; !taken {
			return id
		}
	}
}

func normalize(d models.CameraDescriptor) models.CameraDescriptor {
	d.ID = strings.TrimSpace(d.ID)
	d.SourceURI = strings.TrimSpace(d.SourceURI)
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		d.Name = d.ID
	}
	return d
}

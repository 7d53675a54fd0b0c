package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"sentinel-worker-go/internal/config"
	"sentinel-worker-go/internal/models"
	"sentinel-worker-go/internal/services/alerts"
	"sentinel-worker-go/internal/services/camera"
	"sentinel-worker-go/internal/services/recorder"
)

type fakeCameras struct {
	mu      sync.Mutex
	descs   []models.CameraDescriptor
	alerted []string
	accept  bool
	noFrame bool
}

func (f *fakeCameras) find(id string) int {
	for i, d := range f.descs {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func (f *fakeCameras) List() []models.CameraStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.CameraStatus, 0, len(f.descs))
	for _, d := range f.descs {
		out = append(out, models.OfflineStatus(d))
	}
	return out
}

func (f *fakeCameras) Status(id string) (models.CameraStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.find(id); i >= 0 {
		return models.OfflineStatus(f.descs[i]), true
	}
	return models.CameraStatus{}, false
}

func (f *fakeCameras) Add(desc models.CameraDescriptor) (models.CameraDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if desc.ID == "" {
		desc.ID = fmt.Sprintf("cam%d", len(f.descs)+1)
	}
	if f.find(desc.ID) >= 0 {
		return desc, fmt.Errorf("%w: %s", camera.ErrDuplicateID, desc.ID)
	}
	f.descs = append(f.descs, desc)
	return desc, nil
}

func (f *fakeCameras) Update(id string, update models.CameraUpdate) (models.CameraDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.find(id)
	if i < 0 {
		return models.CameraDescriptor{}, fmt.Errorf("%w: %s", camera.ErrNotFound, id)
	}
	f.descs[i] = update.Apply(f.descs[i])
	return f.descs[i], nil
}

func (f *fakeCameras) Remove(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.find(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", camera.ErrNotFound, id)
	}
	f.descs = append(f.descs[:i], f.descs[i+1:]...)
	return nil
}

func (f *fakeCameras) Frame(id string) ([]byte, error) {
	if _, ok := f.Status(id); !ok {
		return nil, camera.ErrNotFound
	}
	return []byte{0xFF, 0xD8, 0xFF, 0xD9}, nil
}

func (f *fakeCameras) TriggerManualAlert(ctx context.Context, id string) (bool, error) {
	if _, ok := f.Status(id); !ok {
		return false, camera.ErrNotFound
	}
	if f.noFrame {
		return false, camera.ErrNoFrame
	}
	f.mu.Lock()
	f.alerted = append(f.alerted, id)
	f.mu.Unlock()
	return f.accept, nil
}

type fakeStreams struct{ err error }

func (f fakeStreams) StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request, id string) error {
	if f.err != nil {
		return f.err
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

type fakeSettings struct {
	mu      sync.Mutex
	current config.Settings
	applied int
}

func (f *fakeSettings) CurrentSettings() config.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current.Clone()
}

func (f *fakeSettings) UpdateSettings(mutate func(*config.Settings)) (config.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.current.Clone()
	mutate(&next)
	if err := next.Validate(); err != nil {
		return f.current.Clone(), err
	}
	f.current = next
	f.applied++
	return next.Clone(), nil
}

type fakeRecorder struct {
	root    string
	cleaned int
}

func (f *fakeRecorder) Enabled() bool       { return true }
func (f *fakeRecorder) IsRecording() bool   { return false }
func (f *fakeRecorder) BufferLen() int      { return 7 }
func (f *fakeRecorder) StoragePath() string { return f.root }
func (f *fakeRecorder) Cleanup() (recorder.EvictionResult, error) {
	f.cleaned++
	return recorder.EvictionResult{TotalBefore: 2048, TotalAfter: 1024, Removed: []string{"a.mp4"}}, nil
}

type fakeAlertStats struct{}

func (fakeAlertStats) Stats() models.AlertStats { return models.AlertStats{TotalAlerts: 3} }

func init() {
	gin.SetMode(gin.TestMode)
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func cameraRouter(cams *fakeCameras, streams StreamPublisher) *gin.Engine {
	h := NewCameraHandler(cams, streams)
	r := gin.New()
	r.GET("/cameras", h.ListCameras)
	r.POST("/cameras", h.AddCamera)
	r.GET("/cameras/:id", h.GetCamera)
	r.PUT("/cameras/:id", h.UpdateCamera)
	r.DELETE("/cameras/:id", h.RemoveCamera)
	r.GET("/cameras/:id/frame", h.GetFrame)
	r.GET("/cameras/:id/stream", h.StreamCamera)
	r.POST("/cameras/:id/alert", h.TriggerAlert)
	return r
}

func TestCameraCRUD(t *testing.T) {
	cams := &fakeCameras{descs: []models.CameraDescriptor{{ID: "cam1", Name: "Door", SourceURI: "0", Enabled: true}}}
	r := cameraRouter(cams, fakeStreams{})

	rec := do(t, r, http.MethodGet, "/cameras", nil)
	var list CameraListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || list.Count != 1 {
		t.Fatalf("list = %s (%v)", rec.Body.String(), err)
	}

	rec = do(t, r, http.MethodPost, "/cameras", map[string]string{"name": "Yard", "source_uri": "rtsp://yard"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d body %s", rec.Code, rec.Body.String())
	}
	var added models.CameraDescriptor
	_ = json.Unmarshal(rec.Body.Bytes(), &added)
	if added.ID != "cam2" || !added.Enabled {
		t.Fatalf("added = %+v", added)
	}

	rec = do(t, r, http.MethodPost, "/cameras", map[string]string{"id": "cam1", "source_uri": "1"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d", rec.Code)
	}

	rec = do(t, r, http.MethodPost, "/cameras", map[string]string{"name": "no source"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing source status = %d", rec.Code)
	}

	rec = do(t, r, http.MethodPut, "/cameras/cam2", map[string]interface{}{"enabled": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d", rec.Code)
	}
	rec = do(t, r, http.MethodGet, "/cameras/cam2", nil)
	var st models.CameraStatus
	_ = json.Unmarshal(rec.Body.Bytes(), &st)
	if st.State != models.CameraStateDisabled {
		t.Fatalf("state = %s, want disabled", st.State)
	}

	if rec := do(t, r, http.MethodPut, "/cameras/nope", map[string]string{"name": "x"}); rec.Code != http.StatusNotFound {
		t.Fatalf("update unknown = %d", rec.Code)
	}
	if rec := do(t, r, http.MethodDelete, "/cameras/cam2", nil); rec.Code != http.StatusOK {
		t.Fatalf("delete = %d", rec.Code)
	}
	if rec := do(t, r, http.MethodDelete, "/cameras/cam2", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete = %d", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, "/cameras/cam2", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get removed = %d", rec.Code)
	}
}

func TestCameraFrameAndAlert(t *testing.T) {
	cams := &fakeCameras{descs: []models.CameraDescriptor{{ID: "cam1", SourceURI: "0", Enabled: true}}, accept: true}
	r := cameraRouter(cams, fakeStreams{err: camera.ErrNotFound})

	rec := do(t, r, http.MethodGet, "/cameras/cam1/frame", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/jpeg" {
		t.Fatalf("frame = %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if rec := do(t, r, http.MethodGet, "/cameras/zzz/frame", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown frame = %d", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, "/cameras/zzz/stream", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown stream = %d", rec.Code)
	}

	rec = do(t, r, http.MethodPost, "/cameras/cam1/alert", nil)
	var resp ManualAlertResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if rec.Code != http.StatusOK || !resp.Accepted || len(cams.alerted) != 1 {
		t.Fatalf("alert = %d %+v", rec.Code, resp)
	}

	cams.noFrame = true
	if rec := do(t, r, http.MethodPost, "/cameras/cam1/alert", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("alert without frame = %d", rec.Code)
	}
}

func TestSettingsMergeAndValidate(t *testing.T) {
	fs := &fakeSettings{current: config.DefaultSettings()}
	h := NewSettingsHandler(fs)
	r := gin.New()
	r.GET("/settings", h.GetSettings)
	r.PUT("/settings", h.UpdateSettings)

	rec := do(t, r, http.MethodPut, "/settings", `{"detector":{"confidence":0.7},"recording":{"enabled":true}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d %s", rec.Code, rec.Body.String())
	}
	got := fs.CurrentSettings()
	if got.Detector.Confidence != 0.7 || !got.Recording.Enabled {
		t.Fatalf("merged settings = %+v", got.Detector)
	}
	if got.Detector.Model != config.DefaultSettings().Detector.Model {
		t.Fatal("untouched field was reset")
	}

	rec = do(t, r, http.MethodPut, "/settings", `{"detector":{"confidence":3}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid update = %d", rec.Code)
	}
	if fs.CurrentSettings().Detector.Confidence != 0.7 {
		t.Fatal("rejected update was applied")
	}

	rec = do(t, r, http.MethodPut, "/settings", `{"detector":`)
	if rec.Code != http.StatusBadRequest || fs.applied != 1 {
		t.Fatalf("malformed update = %d, applied %d", rec.Code, fs.applied)
	}

	rec = do(t, r, http.MethodGet, "/settings", nil)
	if rec.Code != http.StatusOK || bytes.Contains(rec.Body.Bytes(), []byte("bot_token")) {
		t.Fatalf("get settings leaked token or failed: %d", rec.Code)
	}
}

func TestRecordingsCatalogAndDownload(t *testing.T) {
	root := t.TempDir()
	at := time.Date(2024, time.March, 5, 14, 30, 0, 0, time.Local)
	path, err := recorder.NextPath(root, at)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("mp4data"), 0644); err != nil {
		t.Fatal(err)
	}

	rec := &fakeRecorder{root: root}
	h := NewVideoHandler(rec)
	r := gin.New()
	r.GET("/recordings", h.ListRecordings)
	r.GET("/recordings/status", h.GetRecorderStatus)
	r.POST("/recordings/cleanup", h.Cleanup)
	r.GET(RecordingFilesPath+"/*path", h.DownloadRecording)

	resp := do(t, r, http.MethodGet, "/recordings", nil)
	var catalog models.RecordingCatalog
	if err := json.Unmarshal(resp.Body.Bytes(), &catalog); err != nil {
		t.Fatal(err)
	}
	days := catalog["2024"][recorder.MonthDir(at)]
	files := days["05"]
	if len(files) != 1 {
		t.Fatalf("catalog = %s", resp.Body.String())
	}

	resp = do(t, r, http.MethodGet, files[0].URL, nil)
	if resp.Code != http.StatusOK || resp.Body.String() != "mp4data" {
		t.Fatalf("download %s = %d", files[0].URL, resp.Code)
	}

	if resp := do(t, r, http.MethodGet, RecordingFilesPath+"/../../etc/passwd", nil); resp.Code == http.StatusOK {
		t.Fatal("path escape was served")
	}
	missing := RecordingFilesPath + "/2024/" + recorder.MonthDir(at) + "/06/clip.mp4"
	if resp := do(t, r, http.MethodGet, missing, nil); resp.Code != http.StatusNotFound {
		t.Fatalf("missing recording = %d", resp.Code)
	}

	resp = do(t, r, http.MethodGet, "/recordings/status", nil)
	var status RecorderStatusResponse
	_ = json.Unmarshal(resp.Body.Bytes(), &status)
	if !status.Enabled || status.Buffered != 7 {
		t.Fatalf("status = %+v", status)
	}

	resp = do(t, r, http.MethodPost, "/recordings/cleanup", nil)
	if resp.Code != http.StatusOK || rec.cleaned != 1 {
		t.Fatalf("cleanup = %d", resp.Code)
	}
}

type dirSnapshots struct{ dir string }

func (d dirSnapshots) List(max int, prefix string) ([]models.AlertImage, error) {
	return []models.AlertImage{{Filename: "alert_20240305_143000_cam1.jpg", URL: prefix + "/alert_20240305_143000_cam1.jpg"}}, nil
}

func (d dirSnapshots) Resolve(name string) (string, error) {
	if name != filepath.Base(name) || filepath.Ext(name) != ".jpg" {
		return "", alerts.ErrInvalidSnapshot
	}
	return filepath.Join(d.dir, name), nil
}

func TestAlertsHandler(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "alert_20240305_143000_cam1.jpg"), []byte{0xFF, 0xD8}, 0644); err != nil {
		t.Fatal(err)
	}
	h := NewAlertsHandler(dirSnapshots{dir: dir}, fakeAlertStats{}, func() int { return 10 })
	r := gin.New()
	r.GET("/alerts", h.ListAlerts)
	r.GET("/alerts/stats", h.GetStats)
	r.GET(AlertImagesPath+"/:name", h.GetImage)

	rec := do(t, r, http.MethodGet, "/alerts", nil)
	var list AlertListResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &list)
	if list.Count != 1 || list.Alerts[0].URL != AlertImagesPath+"/alert_20240305_143000_cam1.jpg" {
		t.Fatalf("alerts = %s", rec.Body.String())
	}

	if rec := do(t, r, http.MethodGet, list.Alerts[0].URL, nil); rec.Code != http.StatusOK {
		t.Fatalf("image = %d", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, AlertImagesPath+"/secret.txt", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad name = %d", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, AlertImagesPath+"/alert_gone.jpg", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing image = %d", rec.Code)
	}

	rec = do(t, r, http.MethodGet, "/alerts/stats", nil)
	var stats models.AlertStats
	_ = json.Unmarshal(rec.Body.Bytes(), &stats)
	if stats.TotalAlerts != 3 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestHealthDegradedWhenProbeFails(t *testing.T) {
	h := NewHealthHandler("w1", "1.2.3", map[string]ComponentProbe{
		"detector": func() bool { return false },
		"nats":     func() bool { return true },
	})
	r := gin.New()
	r.GET("/health", h.HealthCheck)
	r.GET("/", h.WorkerInfo)

	rec := do(t, r, http.MethodGet, "/health", nil)
	var resp HealthResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Status != "degraded" || resp.Components["detector"] || !resp.Components["nats"] {
		t.Fatalf("health = %+v", resp)
	}

	rec = do(t, r, http.MethodGet, "/", nil)
	var info WorkerInfoResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &info)
	if info.Version != "1.2.3" || info.WorkerID != "w1" {
		t.Fatalf("info = %+v", info)
	}
}

func TestStatusForMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", camera.ErrNotFound), http.StatusNotFound},
		{camera.ErrDuplicateID, http.StatusConflict},
		{camera.ErrDisabled, http.StatusConflict},
		{camera.ErrNoFrame, http.StatusServiceUnavailable},
		{config.ErrInvalidSettings, http.StatusBadRequest},
		{recorder.ErrInvalidPath, http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

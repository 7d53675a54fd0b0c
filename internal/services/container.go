package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sentinel-worker-go/internal/config"
	"sentinel-worker-go/internal/logging"
	"sentinel-worker-go/internal/models"
	"sentinel-worker-go/internal/services/alerts"
	"sentinel-worker-go/internal/services/camera"
	"sentinel-worker-go/internal/services/detection"
	"sentinel-worker-go/internal/services/messaging"
	"sentinel-worker-go/internal/services/notifier"
	"sentinel-worker-go/internal/services/recorder"
	"sentinel-worker-go/internal/services/statuscache"
	"sentinel-worker-go/internal/store"
	"sentinel-worker-go/internal/vision"
)

// ServiceContainer holds all services
type ServiceContainer struct {
	Config   *config.Config
	Settings *config.SettingsStore

	Renderer      *vision.Renderer
	DetectionSvc  *detection.Service
	Messaging     *messaging.Service
	Recorder      *recorder.Service
	Notifier      *notifier.Service
	Snapshots     *alerts.SnapshotStore
	Alerts        *alerts.Coordinator
	CameraStore   *store.FileStore
	CameraManager *camera.Manager
	StatusCache   *statuscache.Service

	mqtt          *notifier.MQTTClient
	statusBackend statuscache.Backend
	controlSub    *nats.Subscription

	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewServiceContainer builds every service from the process config and the
// settings file. Optional integrations that cannot connect are logged and
// skipped; only an unusable settings file or storage directory fails.
func NewServiceContainer(cfg *config.Config) (*ServiceContainer, error) {
	logger := logging.NewServiceLogger(cfg, "container")

	settings, err := config.LoadSettings(cfg.SettingsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	sc := &ServiceContainer{
		Config:   cfg,
		Settings: config.NewSettingsStore(cfg.SettingsFile, settings),
		Renderer: vision.NewRenderer(),
		logger:   logger,
	}

	var publisher models.MessagePublisher
	if cfg.NatsEnabled {
		msg, err := messaging.NewService(cfg)
		if err != nil {
			logger.Warn().Err(err).Msg("NATS unavailable, events will not be published")
		} else {
			sc.Messaging = msg
			publisher = msg
		}
	}

	recOpts := []recorder.Option{recorder.WithLogger(logging.NewServiceLogger(cfg, "recorder"))}
	if publisher != nil {
		recOpts = append(recOpts, recorder.WithPublisher(publisher, cfg.RecordingsSubject))
	}
	sc.Recorder, err = recorder.NewService(settings.Recording, sc.newEncoder(), sc.Renderer, recOpts...)
	if err != nil {
		return nil, err
	}

	notifierOpts := []notifier.Option{notifier.WithLogger(logging.NewServiceLogger(cfg, "notifier"))}
	if cfg.MQTTEnabled {
		client, err := notifier.NewMQTTClient(notifier.MQTTConfig{
			Host:     cfg.MQTTHost,
			Port:     cfg.MQTTPort,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			ClientID: cfg.MQTTClientID,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("MQTT unavailable, alerts will not be published to the broker")
		} else {
			sc.mqtt = client
			topic := func() string { return sc.Settings.Get().Notifier.MQTTTopic }
			notifierOpts = append(notifierOpts, notifier.WithTransport(notifier.NewMQTTTransport(client, topic)))
		}
	}
	sc.Notifier = notifier.NewService(settings.Notifier, notifierOpts...)

	var mirror alerts.ObjectStore
	if cfg.MinioEnabled {
		ms, err := alerts.NewMinioStore(alerts.MinioConfig{
			Endpoint:      cfg.MinioEndpoint,
			AccessKey:     cfg.MinioAccessKey,
			SecretKey:     cfg.MinioSecretKey,
			Bucket:        cfg.MinioBucket,
			UseSSL:        cfg.MinioUseSSL,
			PublicBaseURL: cfg.MinioPublicBaseURL,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("MinIO unavailable, snapshots stay local only")
		} else {
			mirror = ms
		}
	}
	sc.Snapshots, err = alerts.NewSnapshotStore(settings.Alerts.SnapshotDir, sc.Renderer, mirror, logging.NewServiceLogger(cfg, "snapshots"))
	if err != nil {
		return nil, err
	}

	alertOpts := []alerts.Option{alerts.WithLogger(logging.NewServiceLogger(cfg, "alerts"))}
	if publisher != nil {
		alertOpts = append(alertOpts, alerts.WithPublisher(publisher, cfg.AlertsSubject))
	}
	sc.Alerts = alerts.NewCoordinator(settings.Alerts, sc.Snapshots, sc.Notifier, sc.Recorder, alertOpts...)

	sc.DetectionSvc, err = detection.NewService(cfg.DetectorGRPCURL, cfg.DetectorTimeout, sc.Renderer,
		detection.WithLogger(logging.NewServiceLogger(cfg, "detection")))
	if err != nil {
		return nil, err
	}

	sc.CameraStore = store.NewFileStore(cfg.CamerasFile, store.DefaultCameras, logging.NewServiceLogger(cfg, "camera_store"))
	sc.CameraManager = camera.NewManager(sc.CameraStore, sc.Settings, camera.Deps{
		Source:   vision.NewSource(),
		Motion:   vision.NewMotionDetector,
		Models:   sc.DetectionSvc,
		Renderer: sc.Renderer,
		Alerts:   sc.Alerts,
		Recorder: sc.Recorder,
		StopWait: cfg.StreamStopWait,
		Logger:   logging.NewServiceLogger(cfg, "camera"),
	})

	return sc, nil
}

func (sc *ServiceContainer) newEncoder() recorder.Encoder {
	if strings.EqualFold(sc.Config.RecorderEncoder, "ffmpeg") {
		return &recorder.FFmpegEncoder{Binary: sc.Config.FFmpegPath}
	}
	return vision.NewVideoEncoder()
}

// Start loads the cameras and launches the background integrations
func (sc *ServiceContainer) Start(ctx context.Context) error {
	ctx, sc.cancel = context.WithCancel(ctx)

	if err := sc.CameraManager.Load(); err != nil {
		return err
	}

	sc.wg.Add(1)
	go func() {
		defer sc.wg.Done()
		if err := sc.DetectionSvc.HealthCheck(ctx); err != nil {
			sc.logger.Warn().Err(err).Msg("Detection service not ready, models will load when it comes up")
		}
	}()

	if sc.Config.RedisEnabled {
		backend, err := statuscache.NewRedisBackend(ctx, sc.Config)
		if err != nil {
			sc.logger.Warn().Err(err).Msg("Redis unavailable, camera status cache disabled")
		} else {
			sc.statusBackend = backend
			sc.StatusCache = statuscache.NewService(backend, sc.CameraManager, sc.Config.WorkerID,
				sc.Config.StatusCacheInterval, sc.Config.StatusCacheTTL, logging.NewServiceLogger(sc.Config, "statuscache"))
			sc.wg.Add(1)
			go func() {
				defer sc.wg.Done()
				sc.StatusCache.Run(ctx)
			}()
		}
	}

	if sc.Messaging != nil {
		sub, err := sc.Messaging.Subscribe(sc.Config.ControlSubject, func(data []byte) {
			sc.handleControl(ctx, data)
		})
		if err != nil {
			sc.logger.Warn().Err(err).Str("subject", sc.Config.ControlSubject).Msg("Failed to subscribe to control subject")
		} else {
			sc.controlSub = sub
		}
	}

	sc.logger.Info().Int("cameras", len(sc.CameraManager.List())).Msg("Services started")
	return nil
}

// controlRequest asks the worker to raise a manual alert for a camera
type controlRequest struct {
	CameraID string `json:"camera_id"`
}

func (sc *ServiceContainer) handleControl(ctx context.Context, data []byte) {
	var req controlRequest
	if err := json.Unmarshal(data, &req); err != nil || req.CameraID == "" {
		sc.logger.Warn().Str("payload", string(data)).Msg("Ignoring malformed control message")
		return
	}
	ok, err := sc.CameraManager.TriggerManualAlert(ctx, req.CameraID)
	if err != nil {
		sc.logger.Warn().Err(err).Str("camera_id", req.CameraID).Msg("Remote manual alert failed")
		return
	}
	sc.logger.Info().Str("camera_id", req.CameraID).Bool("accepted", ok).Msg("Remote manual alert")
}

// CurrentSettings returns a copy of the runtime settings
func (sc *ServiceContainer) CurrentSettings() config.Settings {
	return sc.Settings.Get()
}

// UpdateSettings validates, persists and propagates a settings change to
// every service
func (sc *ServiceContainer) UpdateSettings(mutate func(*config.Settings)) (config.Settings, error) {
	next, err := sc.Settings.Update(mutate)
	if err != nil {
		return next, err
	}

	if err := sc.Recorder.Refresh(next.Recording); err != nil {
		sc.logger.Error().Err(err).Msg("Failed to apply recording settings")
	}
	sc.Notifier.Refresh(next.Notifier)
	sc.Alerts.Refresh(next.Alerts)
	sc.CameraManager.ApplyConfig()
	return next, nil
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	if sc.cancel != nil {
		sc.cancel()
	}
	if sc.controlSub != nil {
		if err := sc.controlSub.Unsubscribe(); err != nil {
			sc.logger.Debug().Err(err).Msg("Failed to unsubscribe control subject")
		}
	}

	if sc.CameraManager != nil {
		sc.CameraManager.Shutdown()
	}
	if sc.Alerts != nil {
		sc.Alerts.Wait()
	}
	if sc.Recorder != nil {
		sc.Recorder.Close()
	}
	sc.wg.Wait()

	if sc.DetectionSvc != nil {
		sc.DetectionSvc.Shutdown(ctx)
	}
	if sc.Messaging != nil {
		sc.Messaging.Shutdown(ctx)
	}
	if sc.mqtt != nil {
		sc.mqtt.Close()
	}
	if sc.statusBackend != nil {
		if err := sc.statusBackend.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close redis client")
		}
	}
	return nil
}

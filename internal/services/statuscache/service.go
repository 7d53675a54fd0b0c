package statuscache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"sentinel-worker-go/internal/config"
	"sentinel-worker-go/internal/models"
)

const KeyPrefix = "sentinel:camera:"

// StatusSource lists the current camera statuses
type StatusSource interface {
	List() []models.CameraStatus
}

// Backend stores one hash per camera with an expiry
type Backend interface {
	Write(ctx context.Context, key string, fields map[string]interface{}, ttl time.Duration) error
	Close() error
}

// RedisBackend writes camera shadows with HSET + EXPIRE in one transaction
type RedisBackend struct {
	rdb *redis.Client
}

// NewRedisBackend connects and pings the server
func NewRedisBackend(ctx context.Context, cfg *config.Config) (*RedisBackend, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	return &RedisBackend{rdb: rdb}, nil
}

func (b *RedisBackend) Write(ctx context.Context, key string, fields map[string]interface{}, ttl time.Duration) error {
	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (b *RedisBackend) Close() error {
	return b.rdb.Close()
}

// Service periodically mirrors every camera status into the backend so other
// processes can read camera health without calling the API
type Service struct {
	backend  Backend
	source   StatusSource
	workerID string
	interval time.Duration
	ttl      time.Duration
	logger   zerolog.Logger
}

func NewService(backend Backend, source StatusSource, workerID string, interval, ttl time.Duration, logger zerolog.Logger) *Service {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if ttl < interval {
		ttl = 3 * interval
	}
	return &Service{
		backend:  backend,
		source:   source,
		workerID: workerID,
		interval: interval,
		ttl:      ttl,
		logger:   logger,
	}
}

// Run syncs immediately and then on every tick until ctx is cancelled
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SyncOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncOnce(ctx)
		}
	}
}

// SyncOnce writes every status and returns how many writes succeeded
func (s *Service) SyncOnce(ctx context.Context) int {
	written := 0
	for _, st := range s.source.List() {
		if err := s.backend.Write(ctx, KeyPrefix+st.ID, s.fields(st), s.ttl); err != nil {
			s.logger.Warn().Err(err).Str("camera_id", st.ID).Msg("Failed to cache camera status")
			continue
		}
		written++
	}
	return written
}

func (s *Service) fields(st models.CameraStatus) map[string]interface{} {
	f := map[string]interface{}{
		"worker_id":       s.workerID,
		"name":            st.Name,
		"state":           st.State.String(),
		"connected":       strconv.FormatBool(st.Connected),
		"enabled":         strconv.FormatBool(st.Enabled),
		"motion_detected": strconv.FormatBool(st.MotionDetected),
		"person_detected": strconv.FormatBool(st.PersonDetected),
		"motion_events":   st.MotionEvents,
		"person_events":   st.PersonEvents,
		"detection_count": st.DetectionCount,
		"frame_rate":      st.FrameRate,
		"updated_at":      time.Now().Unix(),
	}
	if st.LastDetection != nil {
		f["last_detection"] = st.LastDetection.Unix()
	}
	return f
}

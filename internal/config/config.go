package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Application
	Version     string
	Environment string
	WorkerID    string
	Port        int
	LogLevel    string

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// Files
	SettingsFile string
	CamerasFile  string

	// Object detector (gRPC inference server)
	DetectorGRPCURL string
	DetectorTimeout time.Duration

	// Recorder backend: "opencv" or "ffmpeg"
	RecorderEncoder string
	FFmpegPath      string

	// NATS (alert and recording events)
	NatsEnabled        bool
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int
	AlertsSubject      string
	RecordingsSubject  string
	ControlSubject     string

	// MQTT notifier transport
	MQTTEnabled  bool
	MQTTHost     string
	MQTTPort     int
	MQTTUsername string
	MQTTPassword string
	MQTTClientID string

	// Redis camera status shadow
	RedisEnabled        bool
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	StatusCacheInterval time.Duration
	StatusCacheTTL      time.Duration

	// MinIO snapshot mirror
	MinioEnabled       bool
	MinioEndpoint      string
	MinioAccessKey     string
	MinioSecretKey     string
	MinioBucket        string
	MinioUseSSL        bool
	MinioPublicBaseURL string

	// Swagger Configuration
	SwaggerHost string

	// Live status feed and MJPEG stream rate
	StatusPushInterval time.Duration
	MJPEGFrameRate     int

	// Graceful Shutdown
	ShutdownTimeout time.Duration
	StreamStopWait  time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	return &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		WorkerID:    getEnv("WORKER_ID", "sentinel-1"),
		Port:        getEnvInt("PORT", 5000),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		SettingsFile: getEnv("SETTINGS_FILE", "settings.yaml"),
		CamerasFile:  getEnv("CAMERAS_FILE", "cameras.yaml"),

		DetectorGRPCURL: getEnv("DETECTOR_GRPC_URL", "localhost:50052"),
		DetectorTimeout: getEnvDuration("DETECTOR_TIMEOUT", 5*time.Second),

		RecorderEncoder: getEnv("RECORDER_ENCODER", "opencv"),
		FFmpegPath:      getEnv("FFMPEG_PATH", "ffmpeg"),

		NatsEnabled:        getEnvBool("NATS_ENABLED", false),
		NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited
		AlertsSubject:      getEnv("ALERTS_SUBJECT", "sentinel.alerts"),
		RecordingsSubject:  getEnv("RECORDINGS_SUBJECT", "sentinel.recordings"),
		ControlSubject:     getEnv("CONTROL_SUBJECT", "sentinel.control.alert"),

		MQTTEnabled:  getEnvBool("MQTT_ENABLED", false),
		MQTTHost:     getEnv("MQTT_HOST", "localhost"),
		MQTTPort:     getEnvInt("MQTT_PORT", 1883),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "sentinel-worker"),

		RedisEnabled:        getEnvBool("REDIS_ENABLED", false),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		StatusCacheInterval: getEnvDuration("STATUS_CACHE_INTERVAL", 5*time.Second),
		StatusCacheTTL:      getEnvDuration("STATUS_CACHE_TTL", 30*time.Second),

		MinioEnabled:       getEnvBool("MINIO_ENABLED", false),
		MinioEndpoint:      getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey:     getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:     getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:        getEnv("MINIO_BUCKET", "sentinel-alerts"),
		MinioUseSSL:        getEnvBool("MINIO_USE_SSL", false),
		MinioPublicBaseURL: getEnv("MINIO_PUBLIC_BASE_URL", ""),

		SwaggerHost: getEnv("SWAGGER_HOST", "localhost:5000"),

		StatusPushInterval: getEnvDuration("STATUS_PUSH_INTERVAL", 2*time.Second),
		MJPEGFrameRate:     getEnvInt("MJPEG_FRAME_RATE", 10),

		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		StreamStopWait:  getEnvDuration("STREAM_STOP_WAIT", 2*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

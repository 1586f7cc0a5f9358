// Package config reads all service configuration from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PendingKey    string
	InFlightKey   string
	DeadLetterKey string

	HTTPAddr       string
	MaxUploadBytes int64

	DatabasePath string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioRegion    string
	AudioBucket    string

	TempDir         string
	FFMPEGPath      string
	FFProbePath     string
	WhisperBin      string
	WhisperModel    string
	WhisperLanguage string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	PollTimeout     time.Duration
	RetryDelay      time.Duration
	MaxAttempts     int
	ShutdownTimeout time.Duration

	CacheTTL time.Duration

	LogLevel slog.Level
}

func Load() Config {
	tempDir := os.Getenv("WORKER_TMP_DIR")
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	return Config{
		RedisAddr:     valueOrDefault(os.Getenv("REDIS_ADDR"), "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       parseInt(os.Getenv("REDIS_DB"), 0),

		PendingKey:    valueOrDefault(os.Getenv("QUEUE_PENDING_KEY"), "meeting_processing_queue"),
		InFlightKey:   valueOrDefault(os.Getenv("QUEUE_INFLIGHT_KEY"), "processing_meetings"),
		DeadLetterKey: valueOrDefault(os.Getenv("QUEUE_DEADLETTER_KEY"), "meeting_processing_deadletter"),

		HTTPAddr:       valueOrDefault(os.Getenv("HTTP_ADDR"), ":8080"),
		MaxUploadBytes: int64(parseInt(os.Getenv("MAX_UPLOAD_MB"), 100)) << 20,

		DatabasePath: valueOrDefault(os.Getenv("DATABASE_PATH"), "meetings.db"),

		MinioEndpoint:  valueOrDefault(os.Getenv("MINIO_ENDPOINT"), "localhost:9000"),
		MinioAccessKey: valueOrDefault(os.Getenv("MINIO_ACCESS_KEY"), "minio"),
		MinioSecretKey: valueOrDefault(os.Getenv("MINIO_SECRET_KEY"), "minio123"),
		MinioUseSSL:    strings.EqualFold(os.Getenv("MINIO_USE_SSL"), "true"),
		MinioRegion:    os.Getenv("MINIO_REGION"),
		AudioBucket:    valueOrDefault(os.Getenv("AUDIO_BUCKET"), "meeting-audio"),

		TempDir:         tempDir,
		FFMPEGPath:      valueOrDefault(os.Getenv("FFMPEG_PATH"), "ffmpeg"),
		FFProbePath:     valueOrDefault(os.Getenv("FFPROBE_PATH"), "ffprobe"),
		WhisperBin:      valueOrDefault(os.Getenv("WHISPER_BIN"), "/opt/whisper.cpp/main"),
		WhisperModel:    valueOrDefault(os.Getenv("WHISPER_MODEL"), "/opt/whisper.cpp/models/ggml-base.en.bin"),
		WhisperLanguage: valueOrDefault(os.Getenv("WHISPER_LANGUAGE"), "en"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: valueOrDefault(os.Getenv("OPENAI_BASE_URL"), "https://api.openai.com/v1"),
		OpenAIModel:   valueOrDefault(os.Getenv("OPENAI_MODEL"), "gpt-3.5-turbo"),

		PollTimeout:     parseDuration(os.Getenv("QUEUE_POLL_TIMEOUT"), 30*time.Second),
		RetryDelay:      parseDuration(os.Getenv("QUEUE_RETRY_DELAY"), 5*time.Second),
		MaxAttempts:     parseInt(os.Getenv("JOB_MAX_ATTEMPTS"), 3),
		ShutdownTimeout: parseDuration(os.Getenv("SHUTDOWN_TIMEOUT"), 30*time.Second),

		CacheTTL: parseDuration(os.Getenv("CACHE_TTL"), time.Minute),

		LogLevel: parseLogLevel(os.Getenv("LOG_LEVEL")),
	}
}

func parseLogLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

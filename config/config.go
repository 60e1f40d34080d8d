package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	DefaultTempSubDir = "tmp_uploads"
	DefaultKafkaTopic = "photo-uploads"
)

const (
	defaultUploadQueueSize  = 200
	defaultNumUploadWorkers = 4
)

const (
	QueueDriverMemory = "memory"
	QueueDriverKafka  = "kafka"

	LockDriverMemory = "memory"
	LockDriverRedis  = "redis"

	DatabaseDriverSQLite   = "sqlite"
	DatabaseDriverPostgres = "postgres"
)

type Config struct {
	// database
	DatabaseDriver string
	DatabasePath   string // sqlite file
	DatabaseDSN    string // postgres dsn

	// media storage configuration
	MediaStoragePath string // root for derived assets (thumbnails, display, watermarked)
	TempUploadPath   string // raw uploads waiting for the job

	// worker settings
	UploadQueueSize  int
	NumUploadWorkers int

	// job transport
	QueueDriver  string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// duplicate job guard
	LockDriver string
	RedisAddr  string

	LogLevel  string
	LogFormat string

	AIAnalysisURL    string
	AIAnalysisAPIKey string

	Port           string
	AllowedOrigins []string

	Site SiteSettings
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func LoadConfig() (Config, error) {
	mediaStorage := getEnvOrDefault("MEDIA_STORAGE_PATH", filepath.Join(".", "media_storage"))
	absMediaStorage, err := filepath.Abs(mediaStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for media storage '%s': %w", mediaStorage, err)
	}

	tempUploads := getEnvOrDefault("TEMP_UPLOAD_PATH", filepath.Join(absMediaStorage, DefaultTempSubDir))
	absTempUploads, err := filepath.Abs(tempUploads)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for temp uploads '%s': %w", tempUploads, err)
	}

	site, err := LoadSiteSettings(os.Getenv("SITE_SETTINGS_FILE"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DatabaseDriver:   strings.ToLower(getEnvOrDefault("DATABASE_DRIVER", DatabaseDriverSQLite)),
		DatabasePath:     getEnvOrDefault("DATABASE_PATH", "photos.db"),
		DatabaseDSN:      os.Getenv("DATABASE_DSN"),
		MediaStoragePath: absMediaStorage,
		TempUploadPath:   absTempUploads,
		UploadQueueSize:  getEnvIntOrDefault("UPLOAD_QUEUE_SIZE", defaultUploadQueueSize),
		NumUploadWorkers: getEnvIntOrDefault("NUM_UPLOAD_WORKERS", defaultNumUploadWorkers),
		QueueDriver:      strings.ToLower(getEnvOrDefault("QUEUE_DRIVER", QueueDriverMemory)),
		KafkaBrokers:     splitList(getEnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:       getEnvOrDefault("KAFKA_TOPIC", DefaultKafkaTopic),
		KafkaGroupID:     getEnvOrDefault("KAFKA_GROUP_ID", "photo-upload-workers"),
		LockDriver:       strings.ToLower(getEnvOrDefault("LOCK_DRIVER", LockDriverMemory)),
		RedisAddr:        getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		LogLevel:         getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        getEnvOrDefault("LOG_FORMAT", "text"),
		AIAnalysisURL:    os.Getenv("AI_ANALYSIS_URL"),
		AIAnalysisAPIKey: os.Getenv("AI_ANALYSIS_API_KEY"),
		Port:             getEnvOrDefault("PORT", "8080"),
		AllowedOrigins:   splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		Site:             site,
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.DatabaseDriver {
	case DatabaseDriverSQLite:
	case DatabaseDriverPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required when DATABASE_DRIVER=%s", DatabaseDriverPostgres)
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER '%s'", c.DatabaseDriver)
	}

	switch c.QueueDriver {
	case QueueDriverMemory:
	case QueueDriverKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when QUEUE_DRIVER=%s", QueueDriverKafka)
		}
	default:
		return fmt.Errorf("unsupported QUEUE_DRIVER '%s'", c.QueueDriver)
	}

	if c.LockDriver != LockDriverMemory && c.LockDriver != LockDriverRedis {
		return fmt.Errorf("unsupported LOCK_DRIVER '%s'", c.LockDriver)
	}

	if c.Site.AIAnalysisEnabled && c.AIAnalysisURL == "" {
		return fmt.Errorf("AI_ANALYSIS_URL is required when ai_analysis_enabled is set")
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultArchivesSubDir = "archives"
	DefaultGeminiModel    = "gemini-2.5-flash"
	DefaultGeminiBaseURL  = "https://generativelanguage.googleapis.com/v1beta"
)

const (
	defaultHTTPTimeoutSeconds = 30
	defaultExportItemDelayMs  = 100
	defaultEnrichWorkers      = 8
	defaultEnrichQueueSize    = 512
	defaultThumbnailMaxSize   = 300
)

type Config struct {
	AppEnv string
	Port   string

	// remote directory listing
	ListingURL string
	BaseOrigin string // relative links resolve against this; defaults to ListingURL

	// media storage for saved export archives
	MediaStoragePath string
	ArchivesPath     string

	// outbound requests
	HTTPTimeout     time.Duration
	ExportItemDelay time.Duration

	// enrichment pool
	EnrichWorkers   int
	EnrichQueueSize int

	ThumbnailMaxSize int

	// analysis service; GeminiAPIKey is the environment default, FallbackAPIKey the secondary name
	GeminiAPIKey   string
	FallbackAPIKey string
	GeminiModel    string
	GeminiBaseURL  string

	CORSAllowedOrigins []string
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
	if err != nil || val < 0 {
		log.Warn().Err(err).Str("key", envVar).Str("value", valStr).Int("default", defaultVal).Msg("config: invalid integer, using default")
		return defaultVal
	}
	return val
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadConfig reads the environment. Call godotenv.Load first to seed it from a .env file.
func LoadConfig() (Config, error) {
	mediaStorage := getEnvOrDefault("MEDIA_STORAGE_PATH", filepath.Join(".", "media_storage"))
	absMediaStorage, err := filepath.Abs(mediaStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for media storage '%s': %w", mediaStorage, err)
	}
	archiveSubDir := getEnvOrDefault("ARCHIVES_SUBDIR", DefaultArchivesSubDir)

	listingURL := strings.TrimSpace(os.Getenv("LISTING_URL"))
	baseOrigin := getEnvOrDefault("BASE_ORIGIN", listingURL)

	cfg := Config{
		AppEnv:             getEnvOrDefault("APP_ENV", "production"),
		Port:               getEnvOrDefault("PORT", "8080"),
		ListingURL:         listingURL,
		BaseOrigin:         baseOrigin,
		MediaStoragePath:   absMediaStorage,
		ArchivesPath:       filepath.Join(absMediaStorage, archiveSubDir),
		HTTPTimeout:        time.Duration(getEnvIntOrDefault("HTTP_TIMEOUT_SECONDS", defaultHTTPTimeoutSeconds)) * time.Second,
		ExportItemDelay:    time.Duration(getEnvIntOrDefault("EXPORT_ITEM_DELAY_MS", defaultExportItemDelayMs)) * time.Millisecond,
		EnrichWorkers:      getEnvIntOrDefault("ENRICH_WORKERS", defaultEnrichWorkers),
		EnrichQueueSize:    getEnvIntOrDefault("ENRICH_QUEUE_SIZE", defaultEnrichQueueSize),
		ThumbnailMaxSize:   getEnvIntOrDefault("THUMBNAIL_MAX_SIZE", defaultThumbnailMaxSize),
		GeminiAPIKey:       strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		FallbackAPIKey:     strings.TrimSpace(os.Getenv("API_KEY")),
		GeminiModel:        getEnvOrDefault("GEMINI_MODEL", DefaultGeminiModel),
		GeminiBaseURL:      strings.TrimRight(getEnvOrDefault("GEMINI_BASE_URL", DefaultGeminiBaseURL), "/"),
		CORSAllowedOrigins: splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
	}

	if cfg.EnrichWorkers == 0 {
		cfg.EnrichWorkers = 1
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = defaultHTTPTimeoutSeconds * time.Second
	}

	return cfg, nil
}

// RequireListing reports an error when no listing URL is configured.
func (c Config) RequireListing() error {
	if c.ListingURL == "" {
		return fmt.Errorf("LISTING_URL is required")
	}
	return nil
}

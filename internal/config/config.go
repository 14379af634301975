package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values.
type Config struct {
	// Gemini API
	APIKeys           []string
	VisionModel       string
	EmbedModel        string
	ImageTimeout      time.Duration
	VideoTimeout      time.Duration
	PollInterval      time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	RequestsPerSecond float64

	// Embedding provider ("gemini", "ollama", "openai")
	EmbedProvider  string
	EmbedDimension int
	OllamaHost     string
	OpenAIAPIKey   string

	// Pipeline
	Concurrency int
	BatchSize   int

	// Files
	StateFile       string
	ResultsFile     string
	ReportFile      string
	AssignmentsFile string
	CatalogFile     string
	EmbeddingsFile  string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Provider names for embedding backends.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		APIKeys:           splitKeys(getEnv("CAMSIFT_API_KEYS", os.Getenv("GOOGLE_API_KEY"))),
		VisionModel:       getEnv("CAMSIFT_VISION_MODEL", "gemini-1.5-pro"),
		EmbedModel:        getEnv("CAMSIFT_EMBED_MODEL", "text-embedding-004"),
		ImageTimeout:      getDuration("CAMSIFT_IMAGE_TIMEOUT", 30*time.Second),
		VideoTimeout:      getDuration("CAMSIFT_VIDEO_TIMEOUT", 10*time.Minute),
		PollInterval:      getDuration("CAMSIFT_POLL_INTERVAL", 10*time.Second),
		MaxRetries:        getInt("CAMSIFT_MAX_RETRIES", 3),
		RetryDelay:        getDuration("CAMSIFT_RETRY_DELAY", 5*time.Second),
		RequestsPerSecond: getFloat("CAMSIFT_REQUESTS_PER_SECOND", 0.5),

		EmbedProvider:  getEnv("CAMSIFT_EMBED_PROVIDER", ProviderGemini),
		EmbedDimension: getInt("CAMSIFT_EMBED_DIMENSION", 768),
		OllamaHost:     getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),

		Concurrency: getInt("CAMSIFT_CONCURRENCY", 0), // 0 = one worker per key
		BatchSize:   getInt("CAMSIFT_BATCH_SIZE", 50),

		StateFile:       getEnv("CAMSIFT_STATE_FILE", "camsift_state.json"),
		ResultsFile:     getEnv("CAMSIFT_RESULTS_FILE", "results.jsonl"),
		ReportFile:      getEnv("CAMSIFT_REPORT_FILE", "report.txt"),
		AssignmentsFile: getEnv("CAMSIFT_ASSIGNMENTS_FILE", "assignments.jsonl"),
		CatalogFile:     getEnv("CAMSIFT_CATALOG_FILE", "categories.yaml"),
		EmbeddingsFile:  getEnv("CAMSIFT_EMBEDDINGS_FILE", "catalog_embeddings.json"),

		LogFile:  getEnv("CAMSIFT_LOG_FILE", "camsift.log"),
		LogLevel: parseLogLevel(getEnv("CAMSIFT_LOG_LEVEL", "INFO")),
	}
}

// WorkerCount resolves the effective dispatcher concurrency: an explicit
// setting wins, otherwise one in-flight job per configured credential.
func (c Config) WorkerCount() int {
	if c.Concurrency > 0 {
		return c.Concurrency
	}
	if n := len(c.APIKeys); n > 0 {
		return n
	}
	return 1
}

func splitKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

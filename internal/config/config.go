package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"docextract/internal/logger"
)

type Config struct {
	// OCR Engine Configuration
	OCREngine         string // "tesseract" or "vision"
	OCRLanguages      []string
	OCRRetryLanguages []string

	// Worker Pool Configuration
	MaxPoolSize    int
	AcquireTimeout time.Duration
	IdleTimeout    time.Duration

	// Conversion Configuration
	MaxConcurrentConversions int
	ConversionTimeout        time.Duration
	ConvertDPI               int

	// Resource Janitor Configuration
	JanitorMaxResources   int
	JanitorMaxTotalBytes  int64
	JanitorMaxResourceAge time.Duration
	JanitorSweepInterval  time.Duration

	// Classification Thresholds
	ClassifyMinWords        int
	ClassifyMinWordsPerPage int
	ClassifyMinCharsPerPage int

	// OCR Quality Thresholds
	OCRMinTextLength   int
	OCRConfidenceFloor float64

	// Summarization (optional)
	OpenAIAPIKey string
	OpenAIModel  string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		OCREngine:         getEnv("OCR_ENGINE", "tesseract"),
		OCRLanguages:      splitList(getEnv("OCR_LANGUAGES", "eng")),
		OCRRetryLanguages: splitList(getEnv("OCR_RETRY_LANGUAGES", "eng,deu")),

		MaxPoolSize:    getEnvInt("OCR_MAX_POOL_SIZE", 4),
		AcquireTimeout: getEnvDuration("OCR_ACQUIRE_TIMEOUT", 30*time.Second),
		IdleTimeout:    getEnvDuration("OCR_IDLE_TIMEOUT", 5*time.Minute),

		MaxConcurrentConversions: getEnvInt("MAX_CONCURRENT_CONVERSIONS", 2),
		ConversionTimeout:        getEnvDuration("CONVERSION_TIMEOUT", 2*time.Minute),
		ConvertDPI:               getEnvInt("CONVERT_DPI", 300),

		JanitorMaxResources:   getEnvInt("JANITOR_MAX_RESOURCES", 256),
		JanitorMaxTotalBytes:  getEnvInt64("JANITOR_MAX_TOTAL_BYTES", 1<<30),
		JanitorMaxResourceAge: getEnvDuration("JANITOR_MAX_RESOURCE_AGE", 30*time.Minute),
		JanitorSweepInterval:  getEnvDuration("JANITOR_SWEEP_INTERVAL", time.Minute),

		ClassifyMinWords:        getEnvInt("CLASSIFY_MIN_WORDS", 20),
		ClassifyMinWordsPerPage: getEnvInt("CLASSIFY_MIN_WORDS_PER_PAGE", 50),
		ClassifyMinCharsPerPage: getEnvInt("CLASSIFY_MIN_CHARS_PER_PAGE", 200),

		OCRMinTextLength:   getEnvInt("OCR_MIN_TEXT_LENGTH", 20),
		OCRConfidenceFloor: getEnvFloat("OCR_CONFIDENCE_FLOOR", 40),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "console"),
		LogTimeFormat: getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:     getEnv("LOG_OUTPUT", "stdout"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.OCREngine != "tesseract" && c.OCREngine != "vision" {
		return fmt.Errorf("OCR_ENGINE must be \"tesseract\" or \"vision\", got %q", c.OCREngine)
	}
	if c.MaxPoolSize < 1 {
		return fmt.Errorf("OCR_MAX_POOL_SIZE must be at least 1")
	}
	if c.MaxConcurrentConversions < 1 {
		return fmt.Errorf("MAX_CONCURRENT_CONVERSIONS must be at least 1")
	}
	if c.ConvertDPI < 72 || c.ConvertDPI > 1200 {
		return fmt.Errorf("CONVERT_DPI must be between 72 and 1200, got %d", c.ConvertDPI)
	}
	if c.JanitorMaxResources < 1 {
		return fmt.Errorf("JANITOR_MAX_RESOURCES must be at least 1")
	}
	if len(c.OCRLanguages) == 0 {
		return fmt.Errorf("OCR_LANGUAGES must name at least one language")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
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
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"waybill/internal/logger"
)

// Ledger backends
const (
	BackendXLSX   = "xlsx"
	BackendSheets = "sheets"
)

// DefaultOriginKeywords are the shipper origins printed on trip tickets.
var DefaultOriginKeywords = []string{"JSI LILOAN", "5G", "BB5", "JENTEC", "FAST"}

type Config struct {
	// Ledger Configuration
	LedgerBackend       string
	LedgerPath          string
	LedgerWorksheet     string
	LedgerStartRow      int
	LedgerSheetURL      string
	LedgerWriteAttempts int
	LedgerWriteDelay    time.Duration

	// Index Configuration
	IndexDir string

	// Reference Data Configuration
	ReferencePath     string
	ReferenceCacheTTL time.Duration

	// Ticket Extraction Configuration
	OriginKeywords []string
	OpenAIAPIKey   string
	OpenAIModel    string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		LedgerBackend:       strings.ToLower(getEnv("LEDGER_BACKEND", BackendXLSX)),
		LedgerPath:          getEnv("LEDGER_PATH", filepath.Join("Database", "WAYBILL RECORD.xlsx")),
		LedgerWorksheet:     getEnv("LEDGER_WORKSHEET", ""),
		LedgerStartRow:      getEnvInt("LEDGER_START_ROW", 7),
		LedgerSheetURL:      getEnv("LEDGER_SHEET_URL", ""),
		LedgerWriteAttempts: getEnvInt("LEDGER_WRITE_ATTEMPTS", 5),
		LedgerWriteDelay:    getEnvDuration("LEDGER_WRITE_DELAY", time.Second),
		IndexDir:            getEnv("INDEX_DIR", "Database"),
		ReferencePath:       getEnv("REFERENCE_PATH", filepath.Join("Database", "reference_data.xlsx")),
		ReferenceCacheTTL:   getEnvDuration("REFERENCE_CACHE_TTL", 10*time.Minute),
		OriginKeywords:      getEnvList("ORIGIN_KEYWORDS", DefaultOriginKeywords),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:         getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:       getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:           getEnv("LOG_OUTPUT", "stderr"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.LedgerBackend {
	case BackendXLSX:
		if c.LedgerPath == "" {
			return fmt.Errorf("LEDGER_PATH is required for the xlsx backend")
		}
	case BackendSheets:
		if c.LedgerSheetURL == "" {
			return fmt.Errorf("LEDGER_SHEET_URL is required for the sheets backend")
		}
	default:
		return fmt.Errorf("LEDGER_BACKEND must be %q or %q, got %q", BackendXLSX, BackendSheets, c.LedgerBackend)
	}
	if c.LedgerStartRow < 1 {
		return fmt.Errorf("LEDGER_START_ROW must be at least 1")
	}
	if c.LedgerWriteAttempts < 1 {
		return fmt.Errorf("LEDGER_WRITE_ATTEMPTS must be at least 1")
	}
	if c.LedgerWriteDelay < 0 {
		return fmt.Errorf("LEDGER_WRITE_DELAY must not be negative")
	}
	if c.IndexDir == "" {
		return fmt.Errorf("INDEX_DIR is required")
	}
	return nil
}

// IndexJSONPath is the reloadable form of the waybill index.
func (c *Config) IndexJSONPath() string {
	return filepath.Join(c.IndexDir, "waybills.json")
}

// IndexCSVPath is the spreadsheet-friendly form of the waybill index.
func (c *Config) IndexCSVPath() string {
	return filepath.Join(c.IndexDir, "waybills.csv")
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
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		// Let validate reject it rather than silently using the default
		return -1
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return -1
	}
	return parsed
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"tally/internal/core"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int

	// Ledger
	DataBackend     string
	SQLiteDBPath    string
	Entities        []string
	DefaultLanguage string

	// Oracle
	OracleBackend string
	OracleModel   string
	OracleTimeout time.Duration
	GeminiAPIKey  string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export
	GoogleSpreadsheetID string
	GoogleSheetName     string

	LogLevel string
}

var (
	validBackends  = []string{"memory", "sqlite"}
	validOracles   = []string{"gemini", "none"}
	validLanguages = []string{"en", "zh"}
)

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		DataBackend:     getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath:    getEnv("SQLITE_DB_PATH", "./data/tally.db"),
		Entities:        getEnvList("TALLY_ENTITIES", core.DefaultEntities),
		DefaultLanguage: getEnv("DEFAULT_LANGUAGE", "en"),

		OracleBackend: getEnv("ORACLE_BACKEND", "gemini"),
		OracleModel:   getEnv("ORACLE_MODEL", "gemini-2.5-flash"),
		OracleTimeout: getEnvDuration("ORACLE_TIMEOUT", 10*time.Second),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY")),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "tally"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Ledger"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// EntitySet returns the configured entities as a lookup set.
func (c *Config) EntitySet() core.EntitySet {
	return core.NewEntitySet(c.Entities)
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// Validate entity set
	if len(c.Entities) == 0 {
		errors = append(errors, "at least one entity must be configured in TALLY_ENTITIES")
	} else if set := core.NewEntitySet(c.Entities); set.Len() != len(c.Entities) {
		errors = append(errors, fmt.Sprintf("duplicate entities in %v: names are case-insensitive", c.Entities))
	}

	if !slices.Contains(validLanguages, c.DefaultLanguage) {
		errors = append(errors, fmt.Sprintf("invalid default language '%s': must be one of %v", c.DefaultLanguage, validLanguages))
	}

	// Validate oracle
	if !slices.Contains(validOracles, c.OracleBackend) {
		errors = append(errors, fmt.Sprintf("invalid oracle backend '%s': must be one of %v", c.OracleBackend, validOracles))
	}
	if c.OracleBackend == "gemini" {
		if c.GeminiAPIKey == "" {
			errors = append(errors, "GEMINI_API_KEY or GOOGLE_API_KEY is required when using gemini oracle")
		}
		if c.OracleModel == "" {
			errors = append(errors, "oracle model cannot be empty when using gemini oracle")
		}
	}
	if c.OracleTimeout < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid oracle timeout %v: must be at least 100ms", c.OracleTimeout))
	} else if c.OracleTimeout > 2*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid oracle timeout %v: must be at most 2 minutes", c.OracleTimeout))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" && c.GoogleSheetName == "" {
		errors = append(errors, "Google Sheet name is required when a spreadsheet ID is configured")
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateWorker checks the settings the export worker needs on top of Validate.
func (c *Config) ValidateWorker() error {
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the export worker")
	}
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "GOOGLE_SPREADSHEET_ID is required for the export worker")
	}
	if len(errors) > 0 {
		return fmt.Errorf("worker configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
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

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return slices.Clone(defaultValue)
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

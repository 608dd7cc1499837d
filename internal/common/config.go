package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	OCR       OCRConfig
	Reconcile ReconcileConfig
	Schema    SchemaConfig
	LogLevel  string
}

// DatabaseConfig holds the optional job ledger configuration
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// OCRConfig holds Document AI configuration
type OCRConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	Endpoint         string
	Timeout          time.Duration
	ArtifactCacheDir string
}

// ReconcileConfig holds the thresholds and page budgets of the reconciler
type ReconcileConfig struct {
	NameConfidence  float32
	ValueConfidence float32
	MatchThreshold  int
	PageCap         int
	VariantPageCap  int
	KeyPrefixStrip  string
}

// SchemaConfig points at an optional schema document replacing the embedded one
type SchemaConfig struct {
	File string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", ""),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 4),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		OCR: OCRConfig{
			ProjectID:        getEnv("DOCAI_PROJECT_ID", ""),
			Location:         getEnv("DOCAI_LOCATION", "us"),
			ProcessorID:      getEnv("DOCAI_PROCESSOR_ID", ""),
			Endpoint:         getEnv("DOCAI_ENDPOINT", ""),
			Timeout:          getEnvAsDuration("OCR_TIMEOUT", 60*time.Second),
			ArtifactCacheDir: getEnv("ARTIFACT_CACHE_DIR", ""),
		},
		Reconcile: ReconcileConfig{
			NameConfidence:  getEnvAsFloat32("NAME_CONFIDENCE_THRESHOLD", 0.6),
			ValueConfidence: getEnvAsFloat32("VALUE_CONFIDENCE_THRESHOLD", 0.6),
			MatchThreshold:  getEnvAsInt("MATCH_THRESHOLD", 80),
			PageCap:         getEnvAsInt("PAGE_CAP", 3),
			VariantPageCap:  getEnvAsInt("VARIANT_PAGE_CAP", 2),
			KeyPrefixStrip:  getEnv("KEY_PREFIX_STRIP", "anywhere"),
		},
		Schema: SchemaConfig{
			File: getEnv("SCHEMA_FILE", ""),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks ranges and required OCR settings. requireOCR is false for
// commands that never talk to Document AI.
func (c *Config) Validate(requireOCR bool) error {
	v := NewValidator()
	v.Field("NAME_CONFIDENCE_THRESHOLD", c.Reconcile.NameConfidence, FloatBetween(0, 1))
	v.Field("VALUE_CONFIDENCE_THRESHOLD", c.Reconcile.ValueConfidence, FloatBetween(0, 1))
	v.Field("MATCH_THRESHOLD", c.Reconcile.MatchThreshold, IntBetween(1, 100))
	v.Field("PAGE_CAP", c.Reconcile.PageCap, IntBetween(1, 100))
	v.Field("VARIANT_PAGE_CAP", c.Reconcile.VariantPageCap, IntBetween(1, c.Reconcile.PageCap))
	v.Field("KEY_PREFIX_STRIP", c.Reconcile.KeyPrefixStrip, OneOf("anywhere", "leading", "off"))
	if requireOCR {
		v.Field("DOCAI_PROJECT_ID", c.OCR.ProjectID, Required)
		v.Field("DOCAI_LOCATION", c.OCR.Location, Required)
		v.Field("DOCAI_PROCESSOR_ID", c.OCR.ProcessorID, Required)
	}
	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}

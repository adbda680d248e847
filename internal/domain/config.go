package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string        `mapstructure:"environment"`
	Server      ServerConfig  `mapstructure:"server"`
	Model       ModelConfig   `mapstructure:"model"`
	Upload      UploadConfig  `mapstructure:"upload"`
	Report      ReportConfig  `mapstructure:"report"`
	Storage     StorageConfig `mapstructure:"storage"`
	Logging     LoggingConfig `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	RateLimit    float64       `mapstructure:"rate_limit"` // requests per second per client, 0 disables
	RateBurst    int           `mapstructure:"rate_burst"`
}

// ModelConfig describes the pretrained classifier artifact.
type ModelConfig struct {
	Path           string  `mapstructure:"path"`
	Format         string  `mapstructure:"format"`      // "auto", "xgboost-json", "onnx"
	SchemaPath     string  `mapstructure:"schema_path"` // empty uses the embedded schema
	ORTLibraryPath string  `mapstructure:"ort_library_path"`
	Threshold      float64 `mapstructure:"threshold"`
	CacheSize      int     `mapstructure:"cache_size"`
}

// UploadConfig bounds batch uploads.
type UploadConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
	MaxRows  int   `mapstructure:"max_rows"` // 0 = unlimited
}

// ReportConfig controls the PDF report.
type ReportConfig struct {
	Title    string `mapstructure:"title"`
	MaxLines int    `mapstructure:"max_lines"`
	TempDir  string `mapstructure:"temp_dir"`
	Compress bool   `mapstructure:"compress"`
}

// StorageConfig selects where run audit records are kept.
type StorageConfig struct {
	Driver       string `mapstructure:"driver"` // "sqlite", "postgres", "none"
	SQLitePath   string `mapstructure:"sqlite_path"`
	PostgresURL  string `mapstructure:"postgres_url"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`

	// Consecutive store failures that open the breaker, and how long it
	// stays open before a trial write.
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// RunKind distinguishes form predictions from batch uploads.
type RunKind string

const (
	RunSingle RunKind = "single"
	RunBatch  RunKind = "batch"
)

// Run is an audit record of one prediction request. It carries counts only,
// never patient attributes.
type Run struct {
	ID         string    `json:"id"`
	Kind       RunKind   `json:"kind"`
	Source     string    `json:"source,omitempty"`
	Rows       int       `json:"rows"`
	HighRisk   int       `json:"high_risk"`
	LowRisk    int       `json:"low_risk"`
	Model      string    `json:"model"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// ModelInfo describes a loaded model.
type ModelInfo struct {
	Name         string   `json:"name"`
	Format       string   `json:"format"`
	Path         string   `json:"path"`
	FeatureCount int      `json:"feature_count"`
	FeatureNames []string `json:"feature_names,omitempty"`
	Threshold    float64  `json:"threshold"`
}

package domain

import (
	"context"
	"io"
)

// Predictor is a loaded classifier. Predict returns one result per record,
// in record order. Implementations are safe for concurrent use.
type Predictor interface {
	Predict(ctx context.Context, records []PatientRecord) ([]PredictionResult, error)
	Info() ModelInfo
	Close() error
}

// ReportGenerator renders a scored table into downloadable documents.
type ReportGenerator interface {
	GeneratePDF(table *BatchTable) ([]byte, error)
	WriteCSV(w io.Writer, table *BatchTable) error
	WriteXLSX(w io.Writer, table *BatchTable) error
}

// RunRepository defines the interface for run audit persistence
type RunRepository interface {
	Save(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context, limit, offset int) ([]*Run, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetModelConfig() *ModelConfig
	GetStorageConfig() *StorageConfig
	Reload() error
	Validate() error
	IsProduction() bool
	IsDevelopment() bool
}

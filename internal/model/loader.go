// Package model loads the pretrained stroke classifier and scores patient
// records with it. Two artifact formats are supported: XGBoost JSON, evaluated
// in process, and ONNX, run through ONNX Runtime.
package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stroke-risk-server/internal/domain"
)

// ResolveFormat returns the concrete format of cfg, inferring it from the
// file extension when set to auto.
func ResolveFormat(cfg domain.ModelConfig) (string, error) {
	format := strings.ToLower(cfg.Format)
	switch format {
	case FormatXGBoostJSON, FormatONNX:
		return format, nil
	case "", FormatAuto:
		switch strings.ToLower(filepath.Ext(cfg.Path)) {
		case ".json":
			return FormatXGBoostJSON, nil
		case ".onnx":
			return FormatONNX, nil
		}
		return "", fmt.Errorf("cannot infer model format from %q", cfg.Path)
	default:
		return "", fmt.Errorf("unknown model format %q", cfg.Format)
	}
}

// Load reads the configured model once. A missing or incompatible artifact is
// an error; callers are expected to refuse to serve without a model.
func Load(cfg domain.ModelConfig, logger *logrus.Logger) (domain.Predictor, error) {
	start := time.Now()

	format, err := ResolveFormat(cfg)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("model: artifact unavailable: %w", err)
	}

	schema, err := LoadSchema(cfg.SchemaPath)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	var predictor domain.Predictor
	switch format {
	case FormatONNX:
		predictor, err = LoadONNX(cfg.Path, ORTLibraryPath(cfg), schema, cfg.Threshold)
	default:
		predictor, err = LoadXGBoostJSON(cfg.Path, schema, cfg.Threshold)
	}
	if err != nil {
		return nil, fmt.Errorf("model: incompatible artifact %s: %w", cfg.Path, err)
	}

	if cfg.CacheSize > 0 {
		cached, err := NewCachedPredictor(predictor, cfg.CacheSize)
		if err != nil {
			predictor.Close()
			return nil, err
		}
		predictor = cached
	}

	info := predictor.Info()
	logger.WithFields(logrus.Fields{
		"model":       info.Name,
		"format":      info.Format,
		"features":    info.FeatureCount,
		"threshold":   info.Threshold,
		"cache_size":  cfg.CacheSize,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Model loaded")

	return predictor, nil
}

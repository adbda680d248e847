package model

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stroke-risk-server/internal/domain"
)

const (
	testONNXModel   = "../../models/stroke_xgboost.onnx"
	testONNXRuntime = "../../models/libonnxruntime.so"
)

func skipIfNoONNX(t *testing.T) {
	t.Helper()
	for _, p := range []string{testONNXModel, testONNXRuntime} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			t.Skip("ONNX model or runtime not found; place them under models/ first")
		}
	}
}

func TestORTLibraryPath(t *testing.T) {
	assert.Equal(t, "/opt/ort/lib.so", ORTLibraryPath(domain.ModelConfig{ORTLibraryPath: "/opt/ort/lib.so"}))
	assert.Equal(t, "models/libonnxruntime.so", ORTLibraryPath(domain.ModelConfig{Path: "models/stroke.onnx"}))
}

func TestONNXPredict(t *testing.T) {
	skipIfNoONNX(t)

	schema, err := DefaultSchema()
	require.NoError(t, err)
	m, err := LoadONNX(testONNXModel, testONNXRuntime, schema, 0.5)
	require.NoError(t, err)
	defer m.Close()

	results, err := m.Predict(context.Background(), []domain.PatientRecord{patient(30, 0), patient(80, 1)})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.5)
		assert.LessOrEqual(t, r.Score, 1.0)
	}

	info := m.Info()
	assert.Equal(t, FormatONNX, info.Format)
	assert.Equal(t, 21, info.FeatureCount)
}

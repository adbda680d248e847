package model

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/stroke-risk-server/internal/domain"
)

// ortEnv manages global ONNX Runtime initialization (process-wide singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

// initORT initializes the ONNX Runtime environment. Only the first call has
// any effect.
func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// probabilitiesOutput is the output name used by the tree ensemble converters.
const probabilitiesOutput = "probabilities"

// ONNXModel scores records with a converted classifier through ONNX Runtime.
// The graph must take one float tensor [N, features] and expose a [N, 2]
// class probability tensor.
type ONNXModel struct {
	path       string
	schema     *Schema
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	threshold  float64
	names      []string
}

// ORTLibraryPath resolves the runtime library. We ship it next to the model
// unless configured otherwise.
func ORTLibraryPath(cfg domain.ModelConfig) string {
	if cfg.ORTLibraryPath != "" {
		return cfg.ORTLibraryPath
	}
	return filepath.Join(filepath.Dir(cfg.Path), "libonnxruntime.so")
}

// LoadONNX creates an inference session for the model at path.
func LoadONNX(path, libPath string, schema *Schema, threshold float64) (*ONNXModel, error) {
	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}

	inputName, err := validateInput(inputs, schema.Width())
	if err != nil {
		return nil, err
	}
	outputName, err := selectProbabilities(outputs)
	if err != nil {
		return nil, err
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(2)
	opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(path, []string{inputName}, []string{outputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	return &ONNXModel{
		path:       path,
		schema:     schema,
		session:    session,
		inputName:  inputName,
		outputName: outputName,
		threshold:  threshold,
		names:      schema.FeatureNames(),
	}, nil
}

// validateInput checks for a single [N, width] float input.
func validateInput(inputs []ort.InputOutputInfo, width int) (string, error) {
	if len(inputs) != 1 {
		return "", fmt.Errorf("onnx: expected 1 input, model has %d", len(inputs))
	}
	in := inputs[0]
	if in.DataType != ort.TensorElementDataTypeFloat {
		return "", fmt.Errorf("onnx: input %q must be float32, got %v", in.Name, in.DataType)
	}
	dims := in.Dimensions
	if len(dims) != 2 {
		return "", fmt.Errorf("onnx: expected 2D input tensor, got %v", dims)
	}
	if dims[1] > 0 && dims[1] != int64(width) {
		return "", fmt.Errorf("onnx: model expects %d features, schema encodes %d", dims[1], width)
	}
	return in.Name, nil
}

// selectProbabilities picks the class probability output: the one named
// "probabilities", else the first float [N, 2] tensor.
func selectProbabilities(outputs []ort.InputOutputInfo) (string, error) {
	var fallback string
	for _, out := range outputs {
		if out.DataType != ort.TensorElementDataTypeFloat {
			continue
		}
		dims := out.Dimensions
		if len(dims) != 2 || (dims[1] > 0 && dims[1] != 2) {
			continue
		}
		if out.Name == probabilitiesOutput {
			return out.Name, nil
		}
		if fallback == "" {
			fallback = out.Name
		}
	}
	if fallback == "" {
		return "", fmt.Errorf("onnx: model has no [N,2] float probability output")
	}
	return fallback, nil
}

// infer runs one inference call over a flat row-major matrix and returns the
// positive-class probability per row.
func (m *ONNXModel) infer(matrix []float32, rows int) ([]float64, error) {
	width := int64(m.schema.Width())

	in, err := ort.NewTensor(ort.NewShape(int64(rows), width), matrix)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create input tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(rows), 2))
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create output tensor: %w", err)
	}
	defer out.Destroy()

	if err := m.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("onnx: inference failed: %w", err)
	}

	data := out.GetData()
	probs := make([]float64, rows)
	for i := range probs {
		probs[i] = float64(data[i*2+1])
	}
	return probs, nil
}

// Predict scores records in order with a single session run.
func (m *ONNXModel) Predict(ctx context.Context, records []domain.PatientRecord) ([]domain.PredictionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []domain.PredictionResult{}, nil
	}

	matrix, err := m.schema.Encode(records)
	if err != nil {
		return nil, err
	}

	probs, err := m.infer(matrix, len(records))
	if err != nil {
		return nil, err
	}

	results := make([]domain.PredictionResult, len(probs))
	for i, p := range probs {
		results[i] = domain.ResultFromProbability(p, m.threshold)
	}
	return results, nil
}

// Info describes the loaded model.
func (m *ONNXModel) Info() domain.ModelInfo {
	return domain.ModelInfo{
		Name:         filepath.Base(m.path),
		Format:       FormatONNX,
		Path:         m.path,
		FeatureCount: len(m.names),
		FeatureNames: m.names,
		Threshold:    m.threshold,
	}
}

// Close releases the ONNX session resources.
func (m *ONNXModel) Close() error {
	return m.session.Destroy()
}

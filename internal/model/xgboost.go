package model

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/stroke-risk-server/internal/domain"
)

// Format names accepted by the loader.
const (
	FormatAuto        = "auto"
	FormatXGBoostJSON = "xgboost-json"
	FormatONNX        = "onnx"
)

// Objectives the evaluator knows how to turn into a probability.
const (
	objectiveBinaryLogistic = "binary:logistic"
	objectiveRegLogistic    = "reg:logistic"
	objectiveLogitRaw       = "binary:logitraw"
)

// xgbDocument is the subset of the XGBoost JSON model format the evaluator
// needs. It matches the layout written by Booster.save_model("*.json").
type xgbDocument struct {
	Learner struct {
		FeatureNames    []string `json:"feature_names"`
		GradientBooster struct {
			Name  string `json:"name"`
			Model struct {
				Trees    []xgbTree `json:"trees"`
				TreeInfo []int     `json:"tree_info"`
			} `json:"model"`
		} `json:"gradient_booster"`
		LearnerModelParam struct {
			BaseScore  string `json:"base_score"`
			NumClass   string `json:"num_class"`
			NumFeature string `json:"num_feature"`
		} `json:"learner_model_param"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
	} `json:"learner"`
	Version []int `json:"version"`
}

type xgbTree struct {
	LeftChildren    []int32    `json:"left_children"`
	RightChildren   []int32    `json:"right_children"`
	SplitIndices    []int32    `json:"split_indices"`
	SplitConditions []float32  `json:"split_conditions"`
	DefaultLeft     []flexBool `json:"default_left"`
}

// flexBool decodes default_left, written as 0/1 by older releases and as
// booleans by newer ones.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "true", "1":
		*b = true
	case "false", "0":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}

// XGBoostModel evaluates a gradient boosted tree ensemble exported as JSON.
// It is read-only after loading and safe for concurrent use.
type XGBoostModel struct {
	path       string
	schema     *Schema
	trees      []xgbTree
	baseMargin float64
	threshold  float64
	names      []string
}

// LoadXGBoostJSON reads and validates an XGBoost JSON model against schema.
func LoadXGBoostJSON(path string, schema *Schema, threshold float64) (*XGBoostModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("xgboost: %w", err)
	}

	var doc xgbDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("xgboost: decode %s: %w", filepath.Base(path), err)
	}
	return newXGBoostModel(path, &doc, schema, threshold)
}

func newXGBoostModel(path string, doc *xgbDocument, schema *Schema, threshold float64) (*XGBoostModel, error) {
	learner := doc.Learner

	if name := learner.GradientBooster.Name; name != "gbtree" {
		return nil, fmt.Errorf("xgboost: unsupported booster %q", name)
	}

	objective := learner.Objective.Name
	switch objective {
	case objectiveBinaryLogistic, objectiveRegLogistic, objectiveLogitRaw:
	default:
		return nil, fmt.Errorf("xgboost: unsupported objective %q", objective)
	}

	if nc := learner.LearnerModelParam.NumClass; nc != "" && nc != "0" && nc != "1" {
		return nil, fmt.Errorf("xgboost: multi-class models are not supported (num_class=%s)", nc)
	}

	width := schema.Width()
	if nf := learner.LearnerModelParam.NumFeature; nf != "" {
		n, err := strconv.Atoi(nf)
		if err != nil {
			return nil, fmt.Errorf("xgboost: invalid num_feature %q", nf)
		}
		if n != width {
			return nil, fmt.Errorf("xgboost: model expects %d features, schema encodes %d", n, width)
		}
	}
	if err := schema.CheckNames(learner.FeatureNames); err != nil {
		return nil, fmt.Errorf("xgboost: %w", err)
	}

	base, err := parseBaseScore(learner.LearnerModelParam.BaseScore)
	if err != nil {
		return nil, fmt.Errorf("xgboost: %w", err)
	}

	trees := learner.GradientBooster.Model.Trees
	if len(trees) == 0 {
		return nil, fmt.Errorf("xgboost: model has no trees")
	}
	for i := range trees {
		if err := trees[i].validate(width); err != nil {
			return nil, fmt.Errorf("xgboost: tree %d: %w", i, err)
		}
	}

	// logitraw keeps base_score in margin space.
	baseMargin := base
	if objective != objectiveLogitRaw {
		if base <= 0 || base >= 1 {
			return nil, fmt.Errorf("xgboost: base_score %v outside (0,1)", base)
		}
		baseMargin = math.Log(base / (1 - base))
	}

	return &XGBoostModel{
		path:       path,
		schema:     schema,
		trees:      trees,
		baseMargin: baseMargin,
		threshold:  threshold,
		names:      schema.FeatureNames(),
	}, nil
}

// parseBaseScore accepts both "5E-1" and the bracketed "[5E-1]" form.
func parseBaseScore(s string) (float64, error) {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "[]"))
	if s == "" {
		return 0.5, nil
	}
	if i := strings.IndexByte(s, ','); i >= 0 {
		return 0, fmt.Errorf("vector base_score %q is not supported", s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid base_score %q", s)
	}
	return v, nil
}

func (t *xgbTree) validate(width int) error {
	n := len(t.LeftChildren)
	if n == 0 {
		return fmt.Errorf("empty tree")
	}
	if len(t.RightChildren) != n || len(t.SplitIndices) != n || len(t.SplitConditions) != n || len(t.DefaultLeft) != n {
		return fmt.Errorf("node arrays have mismatched lengths")
	}
	for i := 0; i < n; i++ {
		if t.LeftChildren[i] == -1 {
			continue
		}
		l, r := t.LeftChildren[i], t.RightChildren[i]
		if l <= int32(i) || r <= int32(i) || int(l) >= n || int(r) >= n {
			return fmt.Errorf("node %d: child index out of range", i)
		}
		if idx := t.SplitIndices[i]; idx < 0 || int(idx) >= width {
			return fmt.Errorf("node %d: split feature %d out of range", i, idx)
		}
	}
	return nil
}

// leaf walks the tree for one feature vector and returns the leaf value.
// Missing values (NaN) follow the default direction of the split.
func (t *xgbTree) leaf(x []float32) float32 {
	node := int32(0)
	for t.LeftChildren[node] != -1 {
		v := x[t.SplitIndices[node]]
		switch {
		case math.IsNaN(float64(v)):
			if t.DefaultLeft[node] {
				node = t.LeftChildren[node]
			} else {
				node = t.RightChildren[node]
			}
		case v < t.SplitConditions[node]:
			node = t.LeftChildren[node]
		default:
			node = t.RightChildren[node]
		}
	}
	return t.SplitConditions[node]
}

// Margin returns the raw ensemble output for one encoded row.
func (m *XGBoostModel) Margin(x []float32) float64 {
	sum := m.baseMargin
	for i := range m.trees {
		sum += float64(m.trees[i].leaf(x))
	}
	return sum
}

// Probability returns the positive-class probability for one encoded row.
func (m *XGBoostModel) Probability(x []float32) float64 {
	return 1 / (1 + math.Exp(-m.Margin(x)))
}

// Predict scores records in order.
func (m *XGBoostModel) Predict(ctx context.Context, records []domain.PatientRecord) ([]domain.PredictionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matrix, err := m.schema.Encode(records)
	if err != nil {
		return nil, err
	}

	width := m.schema.Width()
	results := make([]domain.PredictionResult, len(records))
	for i := range records {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		p := m.Probability(matrix[i*width : (i+1)*width])
		results[i] = domain.ResultFromProbability(p, m.threshold)
	}
	return results, nil
}

// Info describes the loaded model.
func (m *XGBoostModel) Info() domain.ModelInfo {
	return domain.ModelInfo{
		Name:         filepath.Base(m.path),
		Format:       FormatXGBoostJSON,
		Path:         m.path,
		FeatureCount: len(m.names),
		FeatureNames: m.names,
		Threshold:    m.threshold,
	}
}

// Close is a no-op; the model holds no external resources.
func (m *XGBoostModel) Close() error {
	return nil
}

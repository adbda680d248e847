package model

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stroke-risk-server/internal/domain"
)

//go:embed default_schema.yaml
var defaultSchemaYAML []byte

// Feature kinds.
const (
	FeatureNumeric     = "numeric"
	FeatureCategorical = "categorical"
)

// FeatureSpec describes how one record attribute is encoded.
type FeatureSpec struct {
	Column     string   `yaml:"column"`
	Type       string   `yaml:"type"`
	Categories []string `yaml:"categories,omitempty"`
}

// Schema maps PatientRecords onto the model's feature vector.
type Schema struct {
	Features []FeatureSpec `yaml:"features"`

	names []string
}

// DefaultSchema returns the embedded schema matching the form fields.
func DefaultSchema() (*Schema, error) {
	return ParseSchema(defaultSchemaYAML)
}

// LoadSchema reads a schema file, or the embedded default when path is empty.
func LoadSchema(path string) (*Schema, error) {
	if path == "" {
		return DefaultSchema()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	return ParseSchema(data)
}

// ParseSchema decodes and validates a YAML schema.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("schema: parse: %w", err)
	}
	if len(s.Features) == 0 {
		return nil, fmt.Errorf("schema: no features declared")
	}

	var probe domain.PatientRecord
	for i, f := range s.Features {
		switch f.Type {
		case FeatureNumeric:
			if _, ok := probe.Numeric(f.Column); !ok {
				return nil, fmt.Errorf("schema: feature %d: %q is not a numeric attribute", i, f.Column)
			}
			s.names = append(s.names, f.Column)
		case FeatureCategorical:
			if _, ok := probe.Categorical(f.Column); !ok {
				return nil, fmt.Errorf("schema: feature %d: %q is not a categorical attribute", i, f.Column)
			}
			if len(f.Categories) == 0 {
				return nil, fmt.Errorf("schema: feature %d: %q has no categories", i, f.Column)
			}
			for _, c := range f.Categories {
				s.names = append(s.names, f.Column+"_"+c)
			}
		default:
			return nil, fmt.Errorf("schema: feature %d: unknown type %q", i, f.Type)
		}
	}
	return &s, nil
}

// Width is the length of one encoded feature vector.
func (s *Schema) Width() int {
	return len(s.names)
}

// FeatureNames returns the encoded feature names in vector order.
func (s *Schema) FeatureNames() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// CheckNames verifies that a model's declared feature names match the schema.
// An empty list is accepted; models exported from arrays carry no names.
func (s *Schema) CheckNames(names []string) error {
	if len(names) == 0 {
		return nil
	}
	if len(names) != len(s.names) {
		return fmt.Errorf("model declares %d features, schema encodes %d", len(names), len(s.names))
	}
	for i, n := range names {
		if !strings.EqualFold(n, s.names[i]) {
			return fmt.Errorf("feature %d: model expects %q, schema encodes %q", i, n, s.names[i])
		}
	}
	return nil
}

// Encode flattens records into a row-major [len(records) * Width()] matrix.
// A categorical value outside the declared categories fails the whole call
// with a schema mismatch naming the 1-based row.
func (s *Schema) Encode(records []domain.PatientRecord) ([]float32, error) {
	width := s.Width()
	out := make([]float32, len(records)*width)

	for r, rec := range records {
		pos := r * width
		for _, f := range s.Features {
			if f.Type == FeatureNumeric {
				v, _ := rec.Numeric(f.Column)
				out[pos] = float32(v)
				pos++
				continue
			}

			v, _ := rec.Categorical(f.Column)
			idx := -1
			for i, c := range f.Categories {
				if c == v {
					idx = i
					break
				}
			}
			if idx < 0 {
				return nil, domain.NewSchemaError(r+1, f.Column, fmt.Errorf("unknown category %q", v))
			}
			out[pos+idx] = 1
			pos += len(f.Categories)
		}
	}
	return out, nil
}

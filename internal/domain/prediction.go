package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Columns appended to every scored table.
const (
	ColPredictionLabel = "prediction_label"
	ColPredictionScore = "prediction_score"
)

// RiskLabel is the binary class predicted by the model.
type RiskLabel int

const (
	LabelNoRisk RiskLabel = 0
	LabelRisk   RiskLabel = 1
)

// String returns the label as it is written to reports.
func (l RiskLabel) String() string {
	return strconv.Itoa(int(l))
}

// PredictionResult is the model output for one record. Score is the
// confidence of the predicted label, in [0,1].
type PredictionResult struct {
	Label RiskLabel `json:"label"`
	Score float64   `json:"score"`
}

// ResultFromProbability turns a positive-class probability into a result the
// way the scoring pipeline reports it: the label is decided by threshold and
// the score is the probability of that label, rounded to four decimals.
func ResultFromProbability(p, threshold float64) PredictionResult {
	if p >= threshold {
		return PredictionResult{Label: LabelRisk, Score: roundScore(p)}
	}
	return PredictionResult{Label: LabelNoRisk, Score: roundScore(1 - p)}
}

func roundScore(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Severity classifies how an outcome is presented.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// SingleOutcome is the displayed result of a form prediction.
type SingleOutcome struct {
	PredictionResult
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// NewSingleOutcome builds the message shown for a single prediction.
func NewSingleOutcome(res PredictionResult) SingleOutcome {
	out := SingleOutcome{PredictionResult: res}
	if res.Label == LabelNoRisk {
		out.Severity = SeveritySuccess
		out.Message = fmt.Sprintf("No Stroke Risk (Confidence: %.2f)", res.Score)
	} else {
		out.Severity = SeverityError
		out.Message = fmt.Sprintf("Stroke Risk Detected (Confidence: %.2f)", res.Score)
	}
	return out
}

// Dataset is an uploaded table with its cells kept verbatim.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of data rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// ColumnIndex finds a column by case-insensitive name, or returns -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if strings.EqualFold(strings.TrimSpace(c), name) {
			return i
		}
	}
	return -1
}

// Cell returns the text of row/column, or "" when the row is short.
func (d *Dataset) Cell(row, col int) string {
	if row < 0 || row >= len(d.Rows) || col < 0 || col >= len(d.Rows[row]) {
		return ""
	}
	return d.Rows[row][col]
}

// Head returns at most n leading rows.
func (d *Dataset) Head(n int) [][]string {
	if n > len(d.Rows) {
		n = len(d.Rows)
	}
	return d.Rows[:n]
}

// BatchTable joins an uploaded dataset with its predictions by row position.
type BatchTable struct {
	Data    *Dataset
	Records []PatientRecord
	Results []PredictionResult
	// Index holds the position of each row in the uploaded table; it differs
	// from the slice position only in filtered views.
	Index []int
}

// NewBatchTable joins the three slices. They must be the same length.
func NewBatchTable(data *Dataset, records []PatientRecord, results []PredictionResult) (*BatchTable, error) {
	if len(records) != data.Len() || len(results) != data.Len() {
		return nil, fmt.Errorf("batch table: %d rows, %d records, %d results", data.Len(), len(records), len(results))
	}
	index := make([]int, data.Len())
	for i := range index {
		index[i] = i
	}
	return &BatchTable{Data: data, Records: records, Results: results, Index: index}, nil
}

// Len returns the number of rows in the table.
func (t *BatchTable) Len() int {
	return len(t.Results)
}

// Columns returns the original columns followed by the prediction columns.
func (t *BatchTable) Columns() []string {
	cols := make([]string, 0, len(t.Data.Columns)+2)
	cols = append(cols, t.Data.Columns...)
	return append(cols, ColPredictionLabel, ColPredictionScore)
}

// Row returns the original cells of row i followed by label and score. Short
// source rows are padded so every row has len(Columns()) cells.
func (t *BatchTable) Row(i int) []string {
	src := t.Data.Rows[t.Index[i]]
	row := make([]string, len(t.Data.Columns), len(t.Data.Columns)+2)
	copy(row, src)
	res := t.Results[i]
	return append(row, res.Label.String(), FormatScore(res.Score))
}

// Cell returns the original text of column name for row i.
func (t *BatchTable) Cell(i int, name string) string {
	col := t.Data.ColumnIndex(name)
	return t.Data.Cell(t.Index[i], col)
}

// FormatScore renders a score without trailing zeros, e.g. 0.8808.
func FormatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Summary is the count of rows per predicted label.
type Summary struct {
	Total    int `json:"total"`
	HighRisk int `json:"high_risk"`
	LowRisk  int `json:"low_risk"`
}

// Summary counts high- and low-risk rows.
func (t *BatchTable) Summary() Summary {
	s := Summary{Total: t.Len()}
	for _, r := range t.Results {
		if r.Label == LabelRisk {
			s.HighRisk++
		} else {
			s.LowRisk++
		}
	}
	return s
}

// RiskFilter selects which rows are displayed.
type RiskFilter string

const (
	FilterAll      RiskFilter = "All"
	FilterHighRisk RiskFilter = "High Risk"
	FilterLowRisk  RiskFilter = "Low Risk"
)

// RiskFilters lists the filter modes in display order.
var RiskFilters = []RiskFilter{FilterAll, FilterHighRisk, FilterLowRisk}

// ParseRiskFilter accepts the display names and the short forms all, high
// and low. An empty string selects All.
func ParseRiskFilter(s string) (RiskFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return FilterAll, nil
	case "high", "high risk", "high_risk":
		return FilterHighRisk, nil
	case "low", "low risk", "low_risk":
		return FilterLowRisk, nil
	}
	return "", NewValidationError("risk", "must be one of All, High Risk, Low Risk", s)
}

// Filter returns the rows matching f in their original order. The returned
// table shares the dataset with t.
func (t *BatchTable) Filter(f RiskFilter) *BatchTable {
	if f == FilterAll || f == "" {
		return t
	}
	want := LabelNoRisk
	if f == FilterHighRisk {
		want = LabelRisk
	}
	out := &BatchTable{Data: t.Data}
	for i, r := range t.Results {
		if r.Label != want {
			continue
		}
		out.Records = append(out.Records, t.Records[i])
		out.Results = append(out.Results, r)
		out.Index = append(out.Index, t.Index[i])
	}
	return out
}

// ChartPoint is one bar of a frequency chart.
type ChartPoint struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// ChartSeries is an ordered frequency distribution.
type ChartSeries struct {
	Title  string       `json:"title"`
	Points []ChartPoint `json:"points"`
}

// AgeDistribution counts rows per age value in ascending age order. Rows
// without an age are left out.
func (t *BatchTable) AgeDistribution() ChartSeries {
	counts := make(map[float64]int)
	for _, rec := range t.Records {
		if math.IsNaN(rec.Age) {
			continue
		}
		counts[rec.Age]++
	}
	ages := make([]float64, 0, len(counts))
	for a := range counts {
		ages = append(ages, a)
	}
	sort.Float64s(ages)

	series := ChartSeries{Title: "Age Distribution", Points: make([]ChartPoint, 0, len(ages))}
	for _, a := range ages {
		series.Points = append(series.Points, ChartPoint{
			Label: strconv.FormatFloat(a, 'f', -1, 64),
			Count: counts[a],
		})
	}
	return series
}

// LabelCounts counts rows per predicted label, ascending by label. Labels
// that do not occur are omitted.
func (t *BatchTable) LabelCounts() ChartSeries {
	counts := make(map[RiskLabel]int)
	for _, r := range t.Results {
		counts[r.Label]++
	}
	labels := make([]int, 0, len(counts))
	for l := range counts {
		labels = append(labels, int(l))
	}
	sort.Ints(labels)

	series := ChartSeries{Title: "Predicted Stroke Risk Count", Points: make([]ChartPoint, 0, len(labels))}
	for _, l := range labels {
		series.Points = append(series.Points, ChartPoint{
			Label: strconv.Itoa(l),
			Count: counts[RiskLabel(l)],
		})
	}
	return series
}

package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleTable builds the three-row table with ages [10, 50, 80] and labels
// [0, 1, 0].
func sampleTable(t *testing.T) *BatchTable {
	t.Helper()
	data := &Dataset{
		Columns: []string{"gender", "age", "bmi"},
		Rows: [][]string{
			{"Male", "10", "18.2"},
			{"Female", "50", "31"},
			{"Male", "80"},
		},
	}
	records := []PatientRecord{{Gender: "Male", Age: 10}, {Gender: "Female", Age: 50}, {Gender: "Male", Age: 80}}
	results := []PredictionResult{
		{Label: LabelNoRisk, Score: 0.9},
		{Label: LabelRisk, Score: 0.7123},
		{Label: LabelNoRisk, Score: 0.6},
	}
	table, err := NewBatchTable(data, records, results)
	require.NoError(t, err)
	return table
}

func TestResultFromProbability(t *testing.T) {
	assert.Equal(t, PredictionResult{Label: LabelRisk, Score: 0.8808}, ResultFromProbability(0.880797, 0.5))
	assert.Equal(t, PredictionResult{Label: LabelNoRisk, Score: 0.8808}, ResultFromProbability(0.119203, 0.5))
	assert.Equal(t, LabelRisk, ResultFromProbability(0.5, 0.5).Label, "threshold is inclusive")
	assert.Equal(t, LabelNoRisk, ResultFromProbability(0.5, 0.6).Label)
}

func TestNewSingleOutcome(t *testing.T) {
	ok := NewSingleOutcome(PredictionResult{Label: LabelNoRisk, Score: 0.9512})
	assert.Equal(t, SeveritySuccess, ok.Severity)
	assert.Equal(t, "No Stroke Risk (Confidence: 0.95)", ok.Message)

	bad := NewSingleOutcome(PredictionResult{Label: LabelRisk, Score: 0.7})
	assert.Equal(t, SeverityError, bad.Severity)
	assert.Equal(t, "Stroke Risk Detected (Confidence: 0.70)", bad.Message)
}

func TestNewBatchTable_LengthMismatch(t *testing.T) {
	data := &Dataset{Columns: []string{"age"}, Rows: [][]string{{"1"}, {"2"}}}
	_, err := NewBatchTable(data, make([]PatientRecord, 2), make([]PredictionResult, 1))
	assert.Error(t, err)
}

func TestBatchTable_Rows(t *testing.T) {
	table := sampleTable(t)

	assert.Equal(t, []string{"gender", "age", "bmi", ColPredictionLabel, ColPredictionScore}, table.Columns())
	assert.Equal(t, []string{"Female", "50", "31", "1", "0.7123"}, table.Row(1))
	assert.Equal(t, []string{"Male", "80", "", "0", "0.6"}, table.Row(2), "short rows are padded")
	assert.Equal(t, "50", table.Cell(1, "AGE"))
}

func TestBatchTable_Summary(t *testing.T) {
	s := sampleTable(t).Summary()
	assert.Equal(t, Summary{Total: 3, HighRisk: 1, LowRisk: 2}, s)
	assert.Equal(t, s.Total, s.HighRisk+s.LowRisk)
}

func TestBatchTable_Filter(t *testing.T) {
	table := sampleTable(t)

	assert.Same(t, table, table.Filter(FilterAll))

	high := table.Filter(FilterHighRisk)
	require.Equal(t, 1, high.Len())
	assert.Equal(t, []string{"Female", "50", "31", "1", "0.7123"}, high.Row(0))

	low := table.Filter(FilterLowRisk)
	require.Equal(t, 2, low.Len())
	for i := 0; i < low.Len(); i++ {
		assert.Equal(t, LabelNoRisk, low.Results[i].Label)
	}
	assert.Equal(t, "10", low.Cell(0, ColAge))
	assert.Equal(t, "80", low.Cell(1, ColAge), "original order is kept")
}

func TestParseRiskFilter(t *testing.T) {
	cases := map[string]RiskFilter{
		"":          FilterAll,
		"All":       FilterAll,
		"high":      FilterHighRisk,
		"High Risk": FilterHighRisk,
		"low_risk":  FilterLowRisk,
		"Low Risk":  FilterLowRisk,
	}
	for in, want := range cases {
		got, err := ParseRiskFilter(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseRiskFilter("medium")
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestBatchTable_Charts(t *testing.T) {
	table := sampleTable(t)

	ages := table.AgeDistribution()
	assert.Equal(t, []ChartPoint{{"10", 1}, {"50", 1}, {"80", 1}}, ages.Points)

	labels := table.LabelCounts()
	assert.Equal(t, []ChartPoint{{"0", 2}, {"1", 1}}, labels.Points)
}

func TestAgeDistribution_SortsNumericallyAndSkipsNaN(t *testing.T) {
	data := &Dataset{Columns: []string{"age"}, Rows: [][]string{{"9"}, {"10"}, {""}, {"9"}, {"2.5"}}}
	records := []PatientRecord{{Age: 9}, {Age: 10}, {Age: math.NaN()}, {Age: 9}, {Age: 2.5}}
	table, err := NewBatchTable(data, records, make([]PredictionResult, 5))
	require.NoError(t, err)

	assert.Equal(t, []ChartPoint{{"2.5", 1}, {"9", 2}, {"10", 1}}, table.AgeDistribution().Points)
	assert.Equal(t, []ChartPoint{{"0", 5}}, table.LabelCounts().Points, "absent labels are omitted")
}

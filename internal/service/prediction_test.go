package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stroke-risk-server/internal/domain"
	"github.com/stroke-risk-server/internal/logging"
	"github.com/stroke-risk-server/internal/tabular"
)

// stubPredictor returns a fixed result per age, or err.
type stubPredictor struct {
	byAge  map[float64]domain.PredictionResult
	err    error
	short  bool
	calls  int
	closed bool
}

func (p *stubPredictor) Predict(_ context.Context, records []domain.PatientRecord) ([]domain.PredictionResult, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	out := make([]domain.PredictionResult, 0, len(records))
	for _, r := range records {
		res, ok := p.byAge[r.Age]
		if !ok {
			res = domain.PredictionResult{Label: domain.LabelNoRisk, Score: 0.9}
		}
		out = append(out, res)
	}
	if p.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (p *stubPredictor) Info() domain.ModelInfo {
	return domain.ModelInfo{Name: "stub.json", Format: "xgboost-json", Threshold: 0.5}
}

func (p *stubPredictor) Close() error {
	p.closed = true
	return nil
}

// memoryRuns is an in-memory run repository.
type memoryRuns struct {
	mu   sync.Mutex
	runs []*domain.Run
	err  error
}

func (m *memoryRuns) Save(_ context.Context, run *domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *memoryRuns) Get(_ context.Context, id string) (*domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, errors.New("not found")
}

func (m *memoryRuns) List(_ context.Context, limit, offset int) ([]*domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if offset >= len(m.runs) {
		return []*domain.Run{}, nil
	}
	end := offset + limit
	if end > len(m.runs) {
		end = len(m.runs)
	}
	return m.runs[offset:end], nil
}

func (m *memoryRuns) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.runs)), m.err
}

func (m *memoryRuns) Close() error { return nil }

const header = "gender,age,hypertension,heart_disease,ever_married,work_type,Residence_type,avg_glucose_level,bmi,smoking_status\n"

func row(age string) string {
	return "Female," + age + ",0,0,Yes,Private,Urban,95.1,24.3,never smoked\n"
}

func threeAges() *stubPredictor {
	return &stubPredictor{byAge: map[float64]domain.PredictionResult{
		10: {Label: domain.LabelNoRisk, Score: 0.95},
		50: {Label: domain.LabelRisk, Score: 0.71},
		80: {Label: domain.LabelNoRisk, Score: 0.6},
	}}
}

func newService(p domain.Predictor, runs domain.RunRepository) *PredictionService {
	return NewPredictionService(logging.Discard(), p, runs, tabular.Limits{})
}

func TestPredictBatch(t *testing.T) {
	runs := &memoryRuns{}
	svc := newService(threeAges(), runs)

	res, err := svc.ScoreUpload(context.Background(), strings.NewReader(header+row("10")+row("50")+row("80")), "ages.csv")
	require.NoError(t, err)

	table := res.Table
	require.Equal(t, 3, table.Len())
	assert.Equal(t, domain.LabelNoRisk, table.Results[0].Label)
	assert.Equal(t, domain.LabelRisk, table.Results[1].Label)
	assert.Equal(t, domain.LabelNoRisk, table.Results[2].Label)

	assert.Equal(t, domain.Summary{Total: 3, HighRisk: 1, LowRisk: 2}, res.Summary)
	assert.Equal(t, res.Summary.Total, res.Summary.HighRisk+res.Summary.LowRisk)

	high := table.Filter(domain.FilterHighRisk)
	require.Equal(t, 1, high.Len())
	assert.Equal(t, "50", high.Cell(0, domain.ColAge))

	low := table.Filter(domain.FilterLowRisk)
	require.Equal(t, 2, low.Len())
	assert.Equal(t, "10", low.Cell(0, domain.ColAge))
	assert.Equal(t, "80", low.Cell(1, domain.ColAge))

	require.Len(t, runs.runs, 1)
	run := runs.runs[0]
	assert.Equal(t, res.RunID, run.ID)
	assert.Equal(t, domain.RunBatch, run.Kind)
	assert.Equal(t, "ages.csv", run.Source)
	assert.Equal(t, 3, run.Rows)
	assert.Equal(t, 1, run.HighRisk)
	assert.Equal(t, "stub.json", run.Model)
}

func TestPredictBatch_PreservesOrder(t *testing.T) {
	svc := newService(&stubPredictor{byAge: map[float64]domain.PredictionResult{}}, nil)

	var b strings.Builder
	b.WriteString(header)
	for i := 1; i <= 40; i++ {
		b.WriteString(row(strconv.Itoa(i)))
	}
	res, err := svc.ScoreUpload(context.Background(), strings.NewReader(b.String()), "many.csv")
	require.NoError(t, err)
	require.Equal(t, 40, res.Table.Len())
	for i := 0; i < 40; i++ {
		assert.Equal(t, res.Table.Data.Rows[i], res.Table.Row(i)[:10])
	}
}

func TestPredictBatch_Empty(t *testing.T) {
	p := threeAges()
	runs := &memoryRuns{}
	svc := newService(p, runs)

	_, err := svc.ScoreUpload(context.Background(), strings.NewReader(header), "empty.csv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrEmptyInput))
	assert.Equal(t, 0, p.calls)
	assert.Empty(t, runs.runs)

	_, err = svc.PredictBatch(context.Background(), "direct", &domain.Dataset{Columns: []string{"age"}})
	assert.True(t, errors.Is(err, domain.ErrEmptyInput))
}

func TestPredictBatch_SchemaMismatch(t *testing.T) {
	p := threeAges()
	svc := newService(p, nil)

	_, err := svc.ScoreUpload(context.Background(), strings.NewReader(header+row("10")+row("abc")), "bad.csv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSchemaMismatch))
	assert.Equal(t, 0, p.calls)

	var pe *domain.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 2, pe.Row)
	assert.Contains(t, pe.UserMessage(), "Error processing the file:")
}

func TestPredictBatch_ModelFailure(t *testing.T) {
	svc := newService(&stubPredictor{err: errors.New("runtime exploded")}, nil)

	_, err := svc.ScoreUpload(context.Background(), strings.NewReader(header+row("10")), "x.csv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrModelInvocation))
	assert.Contains(t, err.Error(), "runtime exploded")
}

func TestPredictBatch_ResultCountMismatch(t *testing.T) {
	svc := newService(&stubPredictor{short: true}, nil)

	_, err := svc.ScoreUpload(context.Background(), strings.NewReader(header+row("10")+row("20")), "x.csv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrModelInvocation))
}

func TestPredictBatch_ModelSchemaErrorKeepsKind(t *testing.T) {
	svc := newService(&stubPredictor{err: domain.NewSchemaError(1, domain.ColWorkType, errors.New("unknown category"))}, nil)

	_, err := svc.ScoreUpload(context.Background(), strings.NewReader(header+row("10")), "x.csv")
	assert.True(t, errors.Is(err, domain.ErrSchemaMismatch))
}

func TestPredictBatch_RunStoreFailureIsLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()

	svc := NewPredictionService(logger, threeAges(), &memoryRuns{err: errors.New("disk full")}, tabular.Limits{})
	ctx := logging.WithCorrelationID(context.Background(), "corr-1")

	res, err := svc.ScoreUpload(ctx, strings.NewReader(header+row("50")), "x.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.HighRisk)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "Failed to record run", entry.Message)
	assert.Equal(t, "corr-1", entry.Data["correlation_id"])
	assert.Equal(t, res.RunID, entry.Data["run_id"])
	assert.EqualError(t, entry.Data[logrus.ErrorKey].(error), "disk full")
}

func TestPredictOne(t *testing.T) {
	runs := &memoryRuns{}
	svc := newService(threeAges(), runs)

	rec := domain.PatientRecord{Gender: "Male", Age: 50, EverMarried: "Yes", WorkType: "Private", ResidenceType: "Urban", SmokingStatus: "smokes"}
	res, err := svc.PredictOne(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityError, res.Severity)
	assert.Equal(t, "Stroke Risk Detected (Confidence: 0.71)", res.Message)

	require.Len(t, runs.runs, 1)
	assert.Equal(t, domain.RunSingle, runs.runs[0].Kind)
	assert.Equal(t, 1, runs.runs[0].HighRisk)
	assert.Equal(t, 0, runs.runs[0].LowRisk)

	rec.Age = 10
	res, err = svc.PredictOne(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, domain.SeveritySuccess, res.Severity)
	assert.Equal(t, "No Stroke Risk (Confidence: 0.95)", res.Message)
}

func TestPredictOne_ModelFailureIsCaught(t *testing.T) {
	svc := newService(&stubPredictor{err: errors.New("bad tensor")}, &memoryRuns{})

	_, err := svc.PredictOne(context.Background(), domain.PatientRecord{Age: 30})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrModelInvocation))
}

func TestListRuns(t *testing.T) {
	runs := &memoryRuns{}
	svc := newService(threeAges(), runs)
	for i := 0; i < 3; i++ {
		_, err := svc.PredictOne(context.Background(), domain.PatientRecord{Age: 10})
		require.NoError(t, err)
	}

	list, total, err := svc.ListRuns(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, int64(3), total)

	list, total, err = newService(threeAges(), nil).ListRuns(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)
}

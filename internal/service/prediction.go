package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stroke-risk-server/internal/domain"
	"github.com/stroke-risk-server/internal/logging"
	"github.com/stroke-risk-server/internal/tabular"
)

// PredictionService scores single form submissions and uploaded tables.
type PredictionService struct {
	logger    *logrus.Logger
	predictor domain.Predictor
	runs      domain.RunRepository
	limits    tabular.Limits
}

// BatchResult is a scored upload.
type BatchResult struct {
	RunID          string             `json:"run_id"`
	Source         string             `json:"source,omitempty"`
	Table          *domain.BatchTable `json:"-"`
	Summary        domain.Summary     `json:"summary"`
	ProcessingTime time.Duration      `json:"processing_time"`
}

// SingleResult is a scored form submission.
type SingleResult struct {
	RunID string `json:"run_id"`
	domain.SingleOutcome
}

// NewPredictionService creates a new prediction service. runs may be nil to
// disable auditing.
func NewPredictionService(logger *logrus.Logger, predictor domain.Predictor, runs domain.RunRepository, limits tabular.Limits) *PredictionService {
	return &PredictionService{
		logger:    logger,
		predictor: predictor,
		runs:      runs,
		limits:    limits,
	}
}

// ModelInfo describes the model in use.
func (s *PredictionService) ModelInfo() domain.ModelInfo {
	return s.predictor.Info()
}

// PredictOne scores one record as a one-row batch. Model failures are
// returned as ModelInvocationFailure rather than propagated raw.
func (s *PredictionService) PredictOne(ctx context.Context, rec domain.PatientRecord) (*SingleResult, error) {
	start := time.Now()
	log := logging.Entry(s.logger, ctx)

	results, err := s.invoke(ctx, []domain.PatientRecord{rec})
	if err != nil {
		log.WithError(err).Warn("Single prediction failed")
		return nil, err
	}

	outcome := domain.NewSingleOutcome(results[0])
	run := s.record(ctx, domain.RunSingle, "form", domain.Summary{
		Total:    1,
		HighRisk: int(outcome.Label),
		LowRisk:  1 - int(outcome.Label),
	}, time.Since(start))

	log.WithFields(logrus.Fields{
		"label":    outcome.Label,
		"score":    outcome.Score,
		"duration": time.Since(start),
	}).Info("Single prediction completed")

	return &SingleResult{RunID: run, SingleOutcome: outcome}, nil
}

// ScoreUpload reads an uploaded CSV or XLSX file and scores every row.
func (s *PredictionService) ScoreUpload(ctx context.Context, r io.Reader, filename string) (*BatchResult, error) {
	data, err := tabular.Read(r, filename, s.limits)
	if err != nil {
		return nil, err
	}
	return s.PredictBatch(ctx, filename, data)
}

// PredictBatch scores every row of data with one model call. Any row that
// does not fit the schema fails the whole batch.
func (s *PredictionService) PredictBatch(ctx context.Context, source string, data *domain.Dataset) (*BatchResult, error) {
	start := time.Now()
	log := logging.Entry(s.logger, ctx).WithField("source", source)

	if data.Len() == 0 {
		return nil, domain.NewPipelineError(domain.KindEmptyInput, "predict batch", errors.New("no data rows"))
	}

	log.WithField("rows", data.Len()).Info("Starting batch prediction")

	// Step 1: Convert rows into model input
	records, err := tabular.Records(data)
	if err != nil {
		log.WithError(err).Warn("Batch rejected")
		return nil, err
	}

	// Step 2: Invoke the model once over all rows
	results, err := s.invoke(ctx, records)
	if err != nil {
		log.WithError(err).Warn("Batch prediction failed")
		return nil, err
	}

	// Step 3: Join predictions back onto the uploaded rows
	table, err := domain.NewBatchTable(data, records, results)
	if err != nil {
		return nil, domain.NewPipelineError(domain.KindModelInvocation, "join predictions", err)
	}

	summary := table.Summary()
	elapsed := time.Since(start)
	runID := s.record(ctx, domain.RunBatch, source, summary, elapsed)

	log.WithFields(logrus.Fields{
		"run_id":    runID,
		"rows":      summary.Total,
		"high_risk": summary.HighRisk,
		"low_risk":  summary.LowRisk,
		"duration":  elapsed,
	}).Info("Batch prediction completed")

	return &BatchResult{
		RunID:          runID,
		Source:         source,
		Table:          table,
		Summary:        summary,
		ProcessingTime: elapsed,
	}, nil
}

// invoke calls the model and normalizes its failures. Schema errors keep
// their kind; everything else is a model invocation failure.
func (s *PredictionService) invoke(ctx context.Context, records []domain.PatientRecord) ([]domain.PredictionResult, error) {
	results, err := s.predictor.Predict(ctx, records)
	if err != nil {
		if _, ok := domain.KindOf(err); ok {
			return nil, err
		}
		return nil, domain.NewPipelineError(domain.KindModelInvocation, "model invocation", err)
	}
	if len(results) != len(records) {
		return nil, domain.NewPipelineError(domain.KindModelInvocation, "model invocation",
			fmt.Errorf("model returned %d results for %d rows", len(results), len(records)))
	}
	return results, nil
}

// record writes a run audit entry. Storage failures are logged and never
// fail the prediction.
func (s *PredictionService) record(ctx context.Context, kind domain.RunKind, source string, summary domain.Summary, elapsed time.Duration) string {
	id := uuid.New().String()
	if s.runs == nil {
		return id
	}

	run := &domain.Run{
		ID:         id,
		Kind:       kind,
		Source:     source,
		Rows:       summary.Total,
		HighRisk:   summary.HighRisk,
		LowRisk:    summary.LowRisk,
		Model:      s.predictor.Info().Name,
		DurationMs: elapsed.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.runs.Save(ctx, run); err != nil {
		logging.Entry(s.logger, ctx).WithError(err).WithField("run_id", id).Warn("Failed to record run")
	}
	return id
}

// ListRuns returns recent runs, newest first, and the total count.
func (s *PredictionService) ListRuns(ctx context.Context, limit, offset int) ([]*domain.Run, int64, error) {
	if s.runs == nil {
		return []*domain.Run{}, 0, nil
	}
	runs, err := s.runs.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	total, err := s.runs.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return runs, total, nil
}

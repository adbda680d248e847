// Package repository persists run audit records. Records carry counts and
// timing only, never patient attributes.
package repository

import (
	"database/sql"
	"fmt"

	"github.com/stroke-risk-server/internal/domain"
)

const runColumns = `id, kind, source, rows_total, high_risk, low_risk, model, duration_ms, created_at`

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRun scans a row into a Run.
func scanRun(s scanner) (*domain.Run, error) {
	run := &domain.Run{}
	var kind string

	err := s.Scan(
		&run.ID, &kind, &run.Source, &run.Rows, &run.HighRisk, &run.LowRisk,
		&run.Model, &run.DurationMs, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Kind = domain.RunKind(kind)
	return run, nil
}

func collectRuns(rows *sql.Rows) ([]*domain.Run, error) {
	result := []*domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, run)
	}
	return result, rows.Err()
}

// validateRun rejects records the schema would refuse.
func validateRun(run *domain.Run) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if run.Kind != domain.RunSingle && run.Kind != domain.RunBatch {
		return fmt.Errorf("invalid run kind %q", run.Kind)
	}
	if run.HighRisk+run.LowRisk != run.Rows {
		return fmt.Errorf("run counts do not add up: %d + %d != %d", run.HighRisk, run.LowRisk, run.Rows)
	}
	return nil
}

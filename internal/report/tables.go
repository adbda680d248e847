package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/stroke-risk-server/internal/domain"
)

// Sheet names of the workbook export.
const (
	predictionsSheet = "Predictions"
	summarySheet     = "Summary"
)

// WriteCSV writes the uploaded columns followed by prediction_label and
// prediction_score, one line per row in upload order.
func (g *Generator) WriteCSV(w io.Writer, table *domain.BatchTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Columns()); err != nil {
		return domain.NewPipelineError(domain.KindReportGeneration, "write csv", err)
	}
	for i := 0; i < table.Len(); i++ {
		if err := cw.Write(table.Row(i)); err != nil {
			return domain.NewPipelineError(domain.KindReportGeneration, "write csv", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return domain.NewPipelineError(domain.KindReportGeneration, "write csv", err)
	}
	return nil
}

// WriteXLSX writes the same table as WriteCSV into a workbook, plus a summary
// sheet with the risk counts.
func (g *Generator) WriteXLSX(w io.Writer, table *domain.BatchTable) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), predictionsSheet); err != nil {
		return domain.NewPipelineError(domain.KindReportGeneration, "write xlsx", err)
	}

	cols := table.Columns()
	header := make([]interface{}, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	if err := f.SetSheetRow(predictionsSheet, "A1", &header); err != nil {
		return domain.NewPipelineError(domain.KindReportGeneration, "write xlsx", err)
	}

	for i := 0; i < table.Len(); i++ {
		cells := table.Row(i)
		values := make([]interface{}, len(cells))
		n := len(cells) - 2
		for j := 0; j < n; j++ {
			values[j] = cells[j]
		}
		res := table.Results[i]
		values[n] = int(res.Label)
		values[n+1] = res.Score

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return domain.NewPipelineError(domain.KindReportGeneration, "write xlsx", err)
		}
		if err := f.SetSheetRow(predictionsSheet, cell, &values); err != nil {
			return domain.NewPipelineError(domain.KindReportGeneration, "write xlsx", err)
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return domain.NewPipelineError(domain.KindReportGeneration, "write xlsx", err)
	}
	summary := table.Summary()
	rows := [][]interface{}{
		{"Total Patients", summary.Total},
		{"Total High Risk Patients", summary.HighRisk},
		{"Total Low Risk Patients", summary.LowRisk},
	}
	for i, r := range rows {
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+1), &r); err != nil {
			return domain.NewPipelineError(domain.KindReportGeneration, "write xlsx", err)
		}
	}

	if err := f.Write(w); err != nil {
		return domain.NewPipelineError(domain.KindReportGeneration, "write xlsx", err)
	}
	return nil
}

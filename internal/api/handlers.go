package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stroke-risk-server/internal/domain"
	"github.com/stroke-risk-server/internal/middleware"
	"github.com/stroke-risk-server/internal/report"
	"github.com/stroke-risk-server/internal/service"
)

// Pagination bounds of the runs listing.
const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

// predictResponse is the body of POST /api/v1/predict.
type predictResponse struct {
	RunID    string           `json:"run_id"`
	Label    domain.RiskLabel `json:"label"`
	Score    float64          `json:"score"`
	Severity domain.Severity  `json:"severity"`
	Message  string           `json:"message"`
}

// batchResponse is the body of POST /api/v1/batch.
type batchResponse struct {
	RunID          string               `json:"run_id"`
	Source         string               `json:"source"`
	Columns        []string             `json:"columns"`
	Rows           [][]string           `json:"rows"`
	Summary        domain.Summary       `json:"summary"`
	Filter         domain.RiskFilter    `json:"filter"`
	FilteredRows   [][]string           `json:"filtered_rows"`
	Charts         []domain.ChartSeries `json:"charts"`
	PDFDataURI     string               `json:"pdf_data_uri"`
	ProcessingTime string               `json:"processing_time"`
}

// tableRows returns every row of t with its prediction columns.
func tableRows(t *domain.BatchTable) [][]string {
	rows := make([][]string, t.Len())
	for i := range rows {
		rows[i] = t.Row(i)
	}
	return rows
}

// handleModel returns metadata of the loaded model.
func (s *Server) handleModel(c *gin.Context) {
	c.JSON(http.StatusOK, s.service.ModelInfo())
}

// handlePredict scores one JSON patient record. Omitted fields take the
// form defaults.
func (s *Server) handlePredict(c *gin.Context) {
	form := domain.DefaultPatientForm()
	if err := c.ShouldBindJSON(&form); err != nil {
		s.badRequest(c, "Invalid patient record", err)
		return
	}

	rec, err := form.Record()
	if err != nil {
		s.respondError(c, err)
		return
	}

	result, err := s.service.PredictOne(c.Request.Context(), rec)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, predictResponse{
		RunID:    result.RunID,
		Label:    result.Label,
		Score:    result.Score,
		Severity: result.Severity,
		Message:  result.Message,
	})
}

// errNoUpload is returned when the request has no "file" part.
var errNoUpload = domain.NewValidationError("file", "a CSV or XLSX file is required", nil)

// limitUpload caps the request body before any form field is parsed.
func (s *Server) limitUpload(c *gin.Context) {
	if maxBytes := s.configManager.GetConfig().Upload.MaxBytes; maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)
	}
	c.Next()
}

// scoreUpload scores the multipart "file" field of the request.
func (s *Server) scoreUpload(c *gin.Context) (*service.BatchResult, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		switch {
		case errors.As(err, &mbe):
			return nil, err
		case errors.Is(err, http.ErrMissingFile):
			return nil, errNoUpload
		default:
			return nil, domain.NewValidationError("file", "malformed upload: "+err.Error(), nil)
		}
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	return s.service.ScoreUpload(c.Request.Context(), f, fh.Filename)
}

// handleBatch scores an uploaded table and returns the full view of it.
func (s *Server) handleBatch(c *gin.Context) {
	filter, err := domain.ParseRiskFilter(c.Query("risk"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	result, err := s.scoreUpload(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	pdfURI, err := s.reports.PDFDataURI(result.Table)
	if err != nil {
		s.respondError(c, err)
		return
	}

	table := result.Table
	c.JSON(http.StatusOK, batchResponse{
		RunID:          result.RunID,
		Source:         result.Source,
		Columns:        table.Columns(),
		Rows:           tableRows(table),
		Summary:        result.Summary,
		Filter:         filter,
		FilteredRows:   tableRows(table.Filter(filter)),
		Charts:         []domain.ChartSeries{table.AgeDistribution(), table.LabelCounts()},
		PDFDataURI:     pdfURI,
		ProcessingTime: result.ProcessingTime.String(),
	})
}

// attachment sends data as a file download.
func attachment(c *gin.Context, filename, contentType string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}

// handleReportCSV returns the full scored table as CSV.
func (s *Server) handleReportCSV(c *gin.Context) {
	result, err := s.scoreUpload(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := s.reports.WriteCSV(&buf, result.Table); err != nil {
		s.respondError(c, err)
		return
	}
	attachment(c, report.CSVFileName, "text/csv; charset=utf-8", buf.Bytes())
}

// handleReportPDF returns the PDF summary of the scored table.
func (s *Server) handleReportPDF(c *gin.Context) {
	result, err := s.scoreUpload(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	data, err := s.reports.GeneratePDF(result.Table)
	if err != nil {
		s.respondError(c, err)
		return
	}
	attachment(c, report.PDFFileName, "application/pdf", data)
}

// handleReportXLSX returns the scored table as a workbook.
func (s *Server) handleReportXLSX(c *gin.Context) {
	result, err := s.scoreUpload(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := s.reports.WriteXLSX(&buf, result.Table); err != nil {
		s.respondError(c, err)
		return
	}
	attachment(c, report.XLSXFileName, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, domain.NewValidationError(name, "must be a non-negative integer", raw)
	}
	return v, nil
}

// handleListRuns lists recent prediction runs.
func (s *Server) handleListRuns(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultRunsLimit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if limit == 0 || limit > maxRunsLimit {
		limit = maxRunsLimit
	}

	runs, total, err := s.service.ListRuns(c.Request.Context(), limit, offset)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to list runs")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, domain.NewAPIError(
			domain.ErrCodeDatabase, "Run history is unavailable", err.Error(), middleware.GetCorrelationID(c)))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":   runs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

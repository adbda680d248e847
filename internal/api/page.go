package api

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stroke-risk-server/internal/domain"
	"github.com/stroke-risk-server/internal/report"
)

// previewRows is the number of uploaded rows shown before scoring results.
const previewRows = 5

const noFileMessage = "Please upload a CSV file to get predictions, PDF report, and filtering options."

// pageView is the data rendered by index.html.
type pageView struct {
	Form     domain.PatientForm
	Options  formOptions
	Filters  []domain.RiskFilter
	Risk     domain.RiskFilter
	MinAge   int
	MaxAge   int
	Outcome  *domain.SingleOutcome
	FormErr  string
	Batch    *batchView
	BatchErr string
	Info     string
}

type formOptions struct {
	Genders         []string
	MaritalStatuses []string
	WorkTypes       []string
	ResidenceTypes  []string
	SmokingStatuses []string
}

// batchView is a scored upload prepared for display.
type batchView struct {
	Source          string
	Columns         []string
	Preview         [][]string
	Results         []domain.PredictionResult
	Summary         domain.Summary
	FilteredColumns []string
	Filtered        [][]string
	PDFURI          template.URL
	CSVURI          template.URL
	AgeChart        template.URL
	LabelChart      template.URL
}

func newPageView() *pageView {
	return &pageView{
		Form: domain.DefaultPatientForm(),
		Options: formOptions{
			Genders:         domain.Genders,
			MaritalStatuses: domain.MaritalStatuses,
			WorkTypes:       domain.WorkTypes,
			ResidenceTypes:  domain.ResidenceTypes,
			SmokingStatuses: domain.SmokingStatuses,
		},
		Filters: domain.RiskFilters,
		Risk:    domain.FilterAll,
		MinAge:  domain.MinAge,
		MaxAge:  domain.MaxAge,
		Info:    noFileMessage,
	}
}

func (s *Server) renderPage(c *gin.Context, status int, view *pageView) {
	c.HTML(status, "index.html", view)
}

// handleIndex renders the empty page.
func (s *Server) handleIndex(c *gin.Context) {
	s.renderPage(c, http.StatusOK, newPageView())
}

// handlePredictPage scores the submitted form and shows the outcome. A model
// failure is shown on the page like a batch failure.
func (s *Server) handlePredictPage(c *gin.Context) {
	view := newPageView()

	if err := c.ShouldBind(&view.Form); err != nil {
		view.FormErr = "Invalid form input: " + err.Error()
		s.renderPage(c, http.StatusBadRequest, view)
		return
	}

	rec, err := view.Form.Record()
	if err != nil {
		view.FormErr = err.Error()
		s.renderPage(c, http.StatusBadRequest, view)
		return
	}

	result, err := s.service.PredictOne(c.Request.Context(), rec)
	if err != nil {
		status, _ := toAPIError(err, "")
		view.FormErr = "Prediction failed: " + err.Error()
		s.renderPage(c, status, view)
		return
	}

	view.Outcome = &result.SingleOutcome
	s.renderPage(c, http.StatusOK, view)
}

// handleBatchPage scores an uploaded table and renders previews, summary,
// the filtered table, download links and charts.
func (s *Server) handleBatchPage(c *gin.Context) {
	view := newPageView()

	filter, err := domain.ParseRiskFilter(c.PostForm("risk"))
	if err != nil {
		view.BatchErr = err.Error()
		s.renderPage(c, http.StatusBadRequest, view)
		return
	}
	view.Risk = filter

	result, err := s.scoreUpload(c)
	if errors.Is(err, errNoUpload) {
		s.renderPage(c, http.StatusOK, view)
		return
	}
	view.Info = ""
	if err != nil {
		status, _ := toAPIError(err, "")
		view.BatchErr = userMessage(err)
		s.renderPage(c, status, view)
		return
	}

	batch, err := s.buildBatchView(result.Source, result.Table, filter)
	if err != nil {
		status, _ := toAPIError(err, "")
		view.BatchErr = userMessage(err)
		s.renderPage(c, status, view)
		return
	}

	view.Batch = batch
	s.renderPage(c, http.StatusOK, view)
}

// buildBatchView renders the exports and charts of a scored table. Exports
// always use the unfiltered table.
func (s *Server) buildBatchView(source string, table *domain.BatchTable, filter domain.RiskFilter) (*batchView, error) {
	view := &batchView{
		Source:          source,
		Columns:         table.Data.Columns,
		Preview:         table.Data.Head(previewRows),
		Results:         table.Results,
		Summary:         table.Summary(),
		FilteredColumns: table.Columns(),
		Filtered:        tableRows(table.Filter(filter)),
	}

	pdfURI, err := s.reports.PDFDataURI(table)
	if err != nil {
		return nil, err
	}
	view.PDFURI = template.URL(pdfURI)

	var csvBuf bytes.Buffer
	if err := s.reports.WriteCSV(&csvBuf, table); err != nil {
		return nil, err
	}
	view.CSVURI = template.URL(report.DataURI("text/csv", csvBuf.Bytes()))

	if view.AgeChart, err = chartURL(table.AgeDistribution()); err != nil {
		return nil, err
	}
	if view.LabelChart, err = chartURL(table.LabelCounts()); err != nil {
		return nil, err
	}
	return view, nil
}

// chartURL renders a chart as a data URI. A series without bars yields no
// chart rather than an error.
func chartURL(series domain.ChartSeries) (template.URL, error) {
	uri, err := report.ChartDataURI(series)
	if errors.Is(err, report.ErrNoBars) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return template.URL(uri), nil
}

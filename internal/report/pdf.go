// Package report renders scored batches into downloadable documents and
// chart images.
package report

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/sirupsen/logrus"

	"github.com/stroke-risk-server/internal/domain"
)

// Page geometry of the PDF report, in points on a US Letter page.
const (
	pageHeight  = 792.0
	titleX      = 100.0
	titleY      = pageHeight - 750
	lineX       = 50.0
	firstLineY  = pageHeight - 700
	lineSpacing = 20.0
	fontSize    = 12
)

// Download names offered to clients.
const (
	PDFFileName  = "stroke_report.pdf"
	CSVFileName  = "stroke_predictions_report.csv"
	XLSXFileName = "stroke_predictions_report.xlsx"
)

// Generator renders reports for scored batches.
type Generator struct {
	cfg    domain.ReportConfig
	logger *logrus.Logger
	now    func() time.Time

	// Staging steps, replaced in tests.
	closeTemp func(*os.File) error
	writePDF  func(*fpdf.Fpdf, string) error
	readPDF   func(string) ([]byte, error)
}

// NewGenerator creates a report generator.
func NewGenerator(cfg domain.ReportConfig, logger *logrus.Logger) *Generator {
	if cfg.Title == "" {
		cfg.Title = "Stroke Prediction Report"
	}
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = 22
	}
	return &Generator{
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		closeTemp: (*os.File).Close,
		writePDF:  (*fpdf.Fpdf).OutputFileAndClose,
		readPDF:   os.ReadFile,
	}
}

// PDFLine formats report line i (0-based) of table.
func PDFLine(table *domain.BatchTable, i int) string {
	res := table.Results[i]
	return fmt.Sprintf("%d. Gender: %s, Age: %s, Risk: %s, Score: %.2f",
		i+1,
		table.Cell(i, domain.ColGender),
		table.Cell(i, domain.ColAge),
		res.Label,
		res.Score,
	)
}

// GeneratePDF renders a one-page summary: the title followed by one line per
// row, up to the configured line cap. The document is staged in a temporary
// file that is removed before returning.
func (g *Generator) GeneratePDF(table *domain.BatchTable) ([]byte, error) {
	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetCompression(g.cfg.Compress)
	pdf.SetTitle(g.cfg.Title, false)
	pdf.SetCreator("stroke-risk-server", false)
	pdf.SetCreationDate(g.now())
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", fontSize)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.Text(titleX, titleY, tr(g.cfg.Title))

	lines := table.Len()
	if lines > g.cfg.MaxLines {
		lines = g.cfg.MaxLines
	}
	for i := 0; i < lines; i++ {
		pdf.Text(lineX, firstLineY+float64(i)*lineSpacing, tr(PDFLine(table, i)))
	}

	tmp, err := os.CreateTemp(g.cfg.TempDir, "stroke-report-*.pdf")
	if err != nil {
		return nil, domain.NewPipelineError(domain.KindReportGeneration, "create pdf", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	if err := g.closeTemp(tmp); err != nil {
		return nil, domain.NewPipelineError(domain.KindReportGeneration, "close pdf", err)
	}

	if err := g.writePDF(pdf, path); err != nil {
		return nil, domain.NewPipelineError(domain.KindReportGeneration, "render pdf", err)
	}

	data, err := g.readPDF(path)
	if err != nil {
		return nil, domain.NewPipelineError(domain.KindReportGeneration, "read pdf", err)
	}

	g.logger.WithFields(logrus.Fields{
		"rows":  table.Len(),
		"lines": lines,
		"bytes": len(data),
	}).Debug("PDF report rendered")

	return data, nil
}

// PDFDataURI renders the PDF and encodes it as an inline download link.
func (g *Generator) PDFDataURI(table *domain.BatchTable) (string, error) {
	data, err := g.GeneratePDF(table)
	if err != nil {
		return "", err
	}
	return DataURI("application/pdf", data), nil
}

// DataURI encodes data as a base64 data URI.
func DataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Package tabular reads uploaded patient tables and converts their rows into
// model input.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/stroke-risk-server/internal/domain"
)

// Supported upload extensions.
const (
	ExtCSV  = ".csv"
	ExtXLSX = ".xlsx"
)

// Limits bounds the size of an upload. Zero values disable a limit.
type Limits struct {
	MaxBytes int64
	MaxRows  int
}

// ErrUnsupportedFormat is returned for uploads that are neither CSV nor XLSX.
var ErrUnsupportedFormat = errors.New("unsupported file type, expected .csv or .xlsx")

// Read parses an upload, choosing the parser from the file name extension.
// A table without data rows is reported as EmptyInput.
func Read(r io.Reader, filename string, limits Limits) (*domain.Dataset, error) {
	data, err := readLimited(r, limits.MaxBytes)
	if err != nil {
		return nil, err
	}

	var ds *domain.Dataset
	switch strings.ToLower(filepath.Ext(filename)) {
	case ExtCSV, "":
		ds, err = ReadCSV(bytes.NewReader(data))
	case ExtXLSX:
		ds, err = ReadXLSX(bytes.NewReader(data))
	default:
		return nil, domain.NewValidationError("file", ErrUnsupportedFormat.Error(), filename)
	}
	if err != nil {
		return nil, err
	}

	if limits.MaxRows > 0 && ds.Len() > limits.MaxRows {
		return nil, domain.NewValidationError("file", fmt.Sprintf("table has %d rows, limit is %d", ds.Len(), limits.MaxRows), ds.Len())
	}
	return ds, nil
}

func readLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, domain.NewValidationError("file", fmt.Sprintf("upload exceeds %d bytes", max), len(data))
	}
	return data, nil
}

// ReadCSV parses a CSV table whose first record is the header.
func ReadCSV(r io.Reader) (*domain.Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, domain.NewPipelineError(domain.KindSchemaMismatch, "parse csv", err)
	}
	return newDataset(rows)
}

// ReadXLSX parses the first sheet of a workbook whose first row is the header.
func ReadXLSX(r io.Reader) (*domain.Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, domain.NewPipelineError(domain.KindSchemaMismatch, "open workbook", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, domain.NewPipelineError(domain.KindEmptyInput, "read workbook", errors.New("no sheets"))
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, domain.NewPipelineError(domain.KindSchemaMismatch, "read workbook", err)
	}
	return newDataset(rows)
}

func newDataset(rows [][]string) (*domain.Dataset, error) {
	if len(rows) == 0 {
		return nil, domain.NewPipelineError(domain.KindEmptyInput, "read upload", errors.New("no header"))
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("Column_%d", i+1)
		}
		headers[i] = h
	}

	data := rows[1:]
	if len(data) == 0 {
		return nil, domain.NewPipelineError(domain.KindEmptyInput, "read upload", errors.New("no data rows"))
	}
	return &domain.Dataset{Columns: headers, Rows: data}, nil
}

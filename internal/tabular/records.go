package tabular

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/stroke-risk-server/internal/domain"
)

// missingMarkers are cell texts read as a missing numeric value.
var missingMarkers = map[string]bool{
	"":    true,
	"na":  true,
	"n/a": true,
	"nan": true,
}

// Records converts every row of d into a PatientRecord. The conversion is
// all or nothing: the first row that does not fit fails the whole table.
// Blank age, glucose and BMI cells become NaN.
func Records(d *domain.Dataset) ([]domain.PatientRecord, error) {
	if d.Len() == 0 {
		return nil, domain.NewPipelineError(domain.KindEmptyInput, "convert rows", errors.New("no data rows"))
	}

	idx := make(map[string]int, len(domain.RequiredColumns))
	for _, col := range domain.RequiredColumns {
		i := d.ColumnIndex(col)
		if i < 0 {
			return nil, domain.NewSchemaError(0, col, errors.New("required column is missing"))
		}
		idx[col] = i
	}

	records := make([]domain.PatientRecord, d.Len())
	for r := range d.Rows {
		row := r + 1
		cell := func(col string) string {
			return strings.TrimSpace(d.Cell(r, idx[col]))
		}

		age, err := parseFloatCell(row, domain.ColAge, cell(domain.ColAge))
		if err != nil {
			return nil, err
		}
		glucose, err := parseFloatCell(row, domain.ColAvgGlucoseLevel, cell(domain.ColAvgGlucoseLevel))
		if err != nil {
			return nil, err
		}
		bmi, err := parseFloatCell(row, domain.ColBMI, cell(domain.ColBMI))
		if err != nil {
			return nil, err
		}
		hyp, err := parseFlagCell(row, domain.ColHypertension, cell(domain.ColHypertension))
		if err != nil {
			return nil, err
		}
		heart, err := parseFlagCell(row, domain.ColHeartDisease, cell(domain.ColHeartDisease))
		if err != nil {
			return nil, err
		}

		records[r] = domain.PatientRecord{
			Gender:          cell(domain.ColGender),
			Age:             age,
			Hypertension:    hyp,
			HeartDisease:    heart,
			EverMarried:     cell(domain.ColEverMarried),
			WorkType:        cell(domain.ColWorkType),
			ResidenceType:   cell(domain.ColResidenceType),
			AvgGlucoseLevel: glucose,
			BMI:             bmi,
			SmokingStatus:   cell(domain.ColSmokingStatus),
		}
	}
	return records, nil
}

func parseFloatCell(row int, col, text string) (float64, error) {
	if missingMarkers[strings.ToLower(text)] {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, domain.NewSchemaError(row, col, fmt.Errorf("%q is not a number", text))
	}
	return v, nil
}

// parseFlagCell reads a 0/1 indicator; other values are rejected. Integral floats such as "1.0" are
// accepted since spreadsheet exports often write them.
func parseFlagCell(row int, col, text string) (int, error) {
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || v != math.Trunc(v) {
		return 0, domain.NewSchemaError(row, col, fmt.Errorf("%q is not an integer", text))
	}
	if v != 0 && v != 1 {
		return 0, domain.NewSchemaError(row, col, fmt.Errorf("%q is not 0 or 1", text))
	}
	return int(v), nil
}

package tabular

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/stroke-risk-server/internal/domain"
)

const header = "gender,age,hypertension,heart_disease,ever_married,work_type,Residence_type,avg_glucose_level,bmi,smoking_status\n"

func TestReadCSV(t *testing.T) {
	csvText := header +
		"Male,67,0,1,Yes,Private,Urban,228.69,36.6,formerly smoked\n" +
		"Female,61,0,0,Yes,Self-employed,Rural,202.21,N/A,never smoked\n"

	ds, err := Read(strings.NewReader(csvText), "patients.csv", Limits{})
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())
	assert.Len(t, ds.Columns, 10)
	assert.Equal(t, "N/A", ds.Rows[1][8])
}

func TestReadCSV_Empty(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no bytes", ""},
		{"header only", header},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.text), "empty.csv", Limits{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrEmptyInput))

			var pe *domain.PipelineError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, domain.EmptyUploadMessage, pe.UserMessage())
		})
	}
}

func TestReadCSV_Malformed(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b\n\"unterminated,1\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSchemaMismatch))
}

func TestRead_BlankHeader(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("\ufeffage,,bmi\n1,2,3\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"age", "Column_2", "bmi"}, ds.Columns)
}

func TestRead_Limits(t *testing.T) {
	csvText := header + strings.Repeat("Male,67,0,1,Yes,Private,Urban,228.69,36.6,smokes\n", 5)

	_, err := Read(strings.NewReader(csvText), "big.csv", Limits{MaxBytes: 64})
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))

	_, err = Read(strings.NewReader(csvText), "big.csv", Limits{MaxRows: 3})
	require.True(t, errors.As(err, &ve))

	ds, err := Read(strings.NewReader(csvText), "big.csv", Limits{MaxBytes: 1 << 20, MaxRows: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, ds.Len())
}

func TestRead_UnsupportedExtension(t *testing.T) {
	_, err := Read(strings.NewReader("x"), "patients.pdf", Limits{})
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "file", ve.Field)
}

func TestReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"gender", "age", "bmi"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"Male", 54, 27.5}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"Female", 33, 22.1}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ds, err := Read(bytes.NewReader(buf.Bytes()), "patients.XLSX", Limits{})
	require.NoError(t, err)
	assert.Equal(t, []string{"gender", "age", "bmi"}, ds.Columns)
	require.Equal(t, 2, ds.Len())
	assert.Equal(t, "54", ds.Rows[0][1])
	assert.Equal(t, "Female", ds.Rows[1][0])
}

func TestReadXLSX_HeaderOnly(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow(f.GetSheetName(0), "A1", &[]interface{}{"gender", "age"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	_, err = ReadXLSX(bytes.NewReader(buf.Bytes()))
	assert.True(t, errors.Is(err, domain.ErrEmptyInput))
}

func TestReadXLSX_NotAWorkbook(t *testing.T) {
	_, err := ReadXLSX(strings.NewReader("plain text"))
	assert.True(t, errors.Is(err, domain.ErrSchemaMismatch))
}

func TestRecords(t *testing.T) {
	csvText := header +
		"Male,67,0,1,Yes,Private,Urban,228.69,36.6,formerly smoked\n" +
		"Female,61,1.0,0,Yes,Self-employed,Rural,202.21,N/A,never smoked\n" +
		" Other , ,0,0,No,children,Urban,,,Unknown\n"

	ds, err := ReadCSV(strings.NewReader(csvText))
	require.NoError(t, err)

	recs, err := Records(ds)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "Male", recs[0].Gender)
	assert.Equal(t, 67.0, recs[0].Age)
	assert.Equal(t, 1, recs[0].HeartDisease)
	assert.Equal(t, 228.69, recs[0].AvgGlucoseLevel)

	assert.Equal(t, 1, recs[1].Hypertension)
	assert.True(t, math.IsNaN(recs[1].BMI))

	assert.Equal(t, "Other", recs[2].Gender)
	assert.True(t, math.IsNaN(recs[2].Age))
	assert.True(t, math.IsNaN(recs[2].AvgGlucoseLevel))
}

func TestRecords_ColumnOrderAndCase(t *testing.T) {
	csvText := "SMOKING_STATUS,bmi,avg_glucose_level,residence_type,work_type,ever_married,heart_disease,hypertension,age,gender\n" +
		"smokes,30,100,Urban,Private,No,0,0,45,Female\n"
	ds, err := ReadCSV(strings.NewReader(csvText))
	require.NoError(t, err)

	recs, err := Records(ds)
	require.NoError(t, err)
	assert.Equal(t, "smokes", recs[0].SmokingStatus)
	assert.Equal(t, "Urban", recs[0].ResidenceType)
	assert.Equal(t, 45.0, recs[0].Age)
}

func TestRecords_SchemaMismatch(t *testing.T) {
	tests := []struct {
		name   string
		csv    string
		row    int
		column string
	}{
		{
			name:   "missing column",
			csv:    "gender,age\nMale,40\n",
			row:    0,
			column: domain.ColHypertension,
		},
		{
			name:   "bad age",
			csv:    header + "Male,67,0,1,Yes,Private,Urban,228.69,36.6,smokes\nMale,old,0,1,Yes,Private,Urban,228.69,36.6,smokes\n",
			row:    2,
			column: domain.ColAge,
		},
		{
			name:   "fractional flag",
			csv:    header + "Male,67,0.5,1,Yes,Private,Urban,228.69,36.6,smokes\n",
			row:    1,
			column: domain.ColHypertension,
		},
		{
			name:   "flag out of range",
			csv:    header + "Male,67,7,0,Yes,Private,Urban,228.69,36.6,smokes\n",
			row:    1,
			column: domain.ColHypertension,
		},
		{
			name:   "negative flag",
			csv:    header + "Male,67,0,-3,Yes,Private,Urban,228.69,36.6,smokes\n",
			row:    1,
			column: domain.ColHeartDisease,
		},
		{
			name:   "blank flag",
			csv:    header + "Male,67,0,,Yes,Private,Urban,228.69,36.6,smokes\n",
			row:    1,
			column: domain.ColHeartDisease,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := ReadCSV(strings.NewReader(tt.csv))
			require.NoError(t, err)

			_, err = Records(ds)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrSchemaMismatch))

			var pe *domain.PipelineError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.row, pe.Row)
			assert.Equal(t, tt.column, pe.Column)
		})
	}
}

func TestRecords_Empty(t *testing.T) {
	_, err := Records(&domain.Dataset{Columns: []string{"age"}})
	assert.True(t, errors.Is(err, domain.ErrEmptyInput))
}

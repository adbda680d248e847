package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Column names of the patient attributes as they appear in uploaded tables.
// Residence_type keeps the capitalisation of the public stroke dataset;
// header matching is case-insensitive.
const (
	ColGender          = "gender"
	ColAge             = "age"
	ColHypertension    = "hypertension"
	ColHeartDisease    = "heart_disease"
	ColEverMarried     = "ever_married"
	ColWorkType        = "work_type"
	ColResidenceType   = "Residence_type"
	ColAvgGlucoseLevel = "avg_glucose_level"
	ColBMI             = "bmi"
	ColSmokingStatus   = "smoking_status"
)

// RequiredColumns lists the attributes every uploaded table must carry.
var RequiredColumns = []string{
	ColGender, ColAge, ColHypertension, ColHeartDisease, ColEverMarried,
	ColWorkType, ColResidenceType, ColAvgGlucoseLevel, ColBMI, ColSmokingStatus,
}

// Allowed values of the categorical form fields.
var (
	Genders         = []string{"Male", "Female", "Other"}
	MaritalStatuses = []string{"Yes", "No"}
	WorkTypes       = []string{"Private", "Self-employed", "Govt_job", "children", "Never_worked"}
	ResidenceTypes  = []string{"Urban", "Rural"}
	SmokingStatuses = []string{"never smoked", "formerly smoked", "smokes", "Unknown"}
)

// Form defaults shown on the page.
const (
	DefaultAge             = 30
	DefaultAvgGlucoseLevel = 90.0
	DefaultBMI             = 25.0
	MinAge                 = 1
	MaxAge                 = 100
)

// PatientRecord is one row of model input: a form submission or a table row.
// Numeric attributes may be NaN when the source cell was blank.
type PatientRecord struct {
	Gender          string  `json:"gender"`
	Age             float64 `json:"age"`
	Hypertension    int     `json:"hypertension"`
	HeartDisease    int     `json:"heart_disease"`
	EverMarried     string  `json:"ever_married"`
	WorkType        string  `json:"work_type"`
	ResidenceType   string  `json:"residence_type"`
	AvgGlucoseLevel float64 `json:"avg_glucose_level"`
	BMI             float64 `json:"bmi"`
	SmokingStatus   string  `json:"smoking_status"`
}

// Categorical returns the string value of a categorical column, and false if
// the column is not categorical.
func (r PatientRecord) Categorical(column string) (string, bool) {
	switch strings.ToLower(column) {
	case strings.ToLower(ColGender):
		return r.Gender, true
	case strings.ToLower(ColEverMarried):
		return r.EverMarried, true
	case strings.ToLower(ColWorkType):
		return r.WorkType, true
	case strings.ToLower(ColResidenceType):
		return r.ResidenceType, true
	case strings.ToLower(ColSmokingStatus):
		return r.SmokingStatus, true
	}
	return "", false
}

// Numeric returns the value of a numeric column, and false if the column is
// not numeric.
func (r PatientRecord) Numeric(column string) (float64, bool) {
	switch strings.ToLower(column) {
	case strings.ToLower(ColAge):
		return r.Age, true
	case strings.ToLower(ColHypertension):
		return float64(r.Hypertension), true
	case strings.ToLower(ColHeartDisease):
		return float64(r.HeartDisease), true
	case strings.ToLower(ColAvgGlucoseLevel):
		return r.AvgGlucoseLevel, true
	case strings.ToLower(ColBMI):
		return r.BMI, true
	}
	return 0, false
}

// Key is a canonical string form of the record, used as a cache key.
func (r PatientRecord) Key() string {
	return strings.Join([]string{
		r.Gender,
		formatKeyFloat(r.Age),
		strconv.Itoa(r.Hypertension),
		strconv.Itoa(r.HeartDisease),
		r.EverMarried,
		r.WorkType,
		r.ResidenceType,
		formatKeyFloat(r.AvgGlucoseLevel),
		formatKeyFloat(r.BMI),
		r.SmokingStatus,
	}, "|")
}

func formatKeyFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// PatientForm is the bound representation of the interactive form. Binding
// tags mirror the constraints of the page widgets.
type PatientForm struct {
	Gender          string  `form:"gender" json:"gender" binding:"required,oneof=Male Female Other"`
	Age             int     `form:"age" json:"age" binding:"required,min=1,max=100"`
	Hypertension    *int    `form:"hypertension" json:"hypertension" binding:"required,oneof=0 1"`
	HeartDisease    *int    `form:"heart_disease" json:"heart_disease" binding:"required,oneof=0 1"`
	EverMarried     string  `form:"ever_married" json:"ever_married" binding:"required,oneof=Yes No"`
	WorkType        string  `form:"work_type" json:"work_type" binding:"required,oneof=Private Self-employed Govt_job children Never_worked"`
	ResidenceType   string  `form:"residence_type" json:"residence_type" binding:"required,oneof=Urban Rural"`
	AvgGlucoseLevel float64 `form:"avg_glucose_level" json:"avg_glucose_level"`
	BMI             float64 `form:"bmi" json:"bmi"`
	SmokingStatus   string  `form:"smoking_status" json:"smoking_status" binding:"required,oneof='never smoked' 'formerly smoked' smokes Unknown"`
}

// DefaultPatientForm returns the form as first shown on the page.
func DefaultPatientForm() PatientForm {
	zero := 0
	return PatientForm{
		Gender:          Genders[0],
		Age:             DefaultAge,
		Hypertension:    &zero,
		HeartDisease:    &zero,
		EverMarried:     MaritalStatuses[0],
		WorkType:        WorkTypes[0],
		ResidenceType:   ResidenceTypes[0],
		AvgGlucoseLevel: DefaultAvgGlucoseLevel,
		BMI:             DefaultBMI,
		SmokingStatus:   SmokingStatuses[0],
	}
}

// Record converts a validated form into a PatientRecord.
func (f PatientForm) Record() (PatientRecord, error) {
	if f.Hypertension == nil || f.HeartDisease == nil {
		return PatientRecord{}, NewValidationError("hypertension", "value is required", nil)
	}
	if f.Age < MinAge || f.Age > MaxAge {
		return PatientRecord{}, NewValidationError("age", fmt.Sprintf("must be between %d and %d", MinAge, MaxAge), f.Age)
	}
	return PatientRecord{
		Gender:          f.Gender,
		Age:             float64(f.Age),
		Hypertension:    *f.Hypertension,
		HeartDisease:    *f.HeartDisease,
		EverMarried:     f.EverMarried,
		WorkType:        f.WorkType,
		ResidenceType:   f.ResidenceType,
		AvgGlucoseLevel: f.AvgGlucoseLevel,
		BMI:             f.BMI,
		SmokingStatus:   f.SmokingStatus,
	}, nil
}

// Package cli implements the stroke-cli commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/spf13/pflag"

	"github.com/stroke-risk-server/internal/domain"
	"github.com/stroke-risk-server/internal/report"
	"github.com/stroke-risk-server/internal/service"
)

// ErrUsage is returned for unknown commands and invalid flags.
var ErrUsage = errors.New("invalid usage")

// CLI runs scoring commands against a loaded model.
type CLI struct {
	service *service.PredictionService
	reports *report.Generator
	out     io.Writer
	errOut  io.Writer
}

// NewCLI creates a CLI writing results to out and diagnostics to errOut.
func NewCLI(svc *service.PredictionService, reports *report.Generator, out, errOut io.Writer) *CLI {
	return &CLI{service: svc, reports: reports, out: out, errOut: errOut}
}

// Run executes the command named by args[0].
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		c.showHelp()
		return ErrUsage
	}

	switch args[0] {
	case "batch":
		return c.batch(ctx, args[1:])
	case "predict":
		return c.predict(ctx, args[1:])
	case "model":
		return c.model()
	case "runs":
		return c.runs(ctx, args[1:])
	case "help", "--help", "-h":
		c.showHelp()
		return nil
	default:
		fmt.Fprintf(c.errOut, "Unknown command: %s\n\n", args[0])
		c.showHelp()
		return ErrUsage
	}
}

// showHelp displays usage information.
func (c *CLI) showHelp() {
	help := `
Stroke Risk Prediction CLI

Usage:
  stroke-cli [--config file] <command> [options]

Commands:
  batch     Score a CSV or XLSX file and print the summary
  predict   Score one patient
  model     Show the loaded model
  runs      List recent prediction runs

Examples:
  # Score a file, keep only high risk rows and write all reports
  stroke-cli batch --input patients.csv --risk high --csv out.csv --pdf out.pdf --xlsx out.xlsx

  # Score one patient
  stroke-cli predict --gender Female --age 67 --hypertension 1 --avg-glucose-level 228.7 --bmi 36.6
`
	fmt.Fprintln(c.errOut, help)
}

func (c *CLI) newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(c.errOut)
	return fs
}

// batch scores a file, prints the summary and the filtered rows as CSV, and
// writes the requested reports.
func (c *CLI) batch(ctx context.Context, args []string) error {
	fs := c.newFlagSet("batch")
	input := fs.StringP("input", "i", "", "CSV or XLSX file to score")
	csvOut := fs.String("csv", "", "write the scored table as CSV")
	pdfOut := fs.String("pdf", "", "write the PDF report")
	xlsxOut := fs.String("xlsx", "", "write the scored table as XLSX")
	risk := fs.StringP("risk", "r", "all", "rows to print: all, high or low")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if *input == "" {
		return fmt.Errorf("%w: --input is required", ErrUsage)
	}

	filter, err := domain.ParseRiskFilter(*risk)
	if err != nil {
		return err
	}

	f, err := os.Open(*input)
	if err != nil {
		return fmt.Errorf("opening input: %w", err)
	}
	defer f.Close()

	result, err := c.service.ScoreUpload(ctx, f, *input)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.errOut, "Rows: %d\n", result.Summary.Total)
	fmt.Fprintf(c.errOut, "Total High Risk Patients: %d\n", result.Summary.HighRisk)
	fmt.Fprintf(c.errOut, "Total Low Risk Patients: %d\n", result.Summary.LowRisk)

	if err := c.reports.WriteCSV(c.out, result.Table.Filter(filter)); err != nil {
		return err
	}

	if *csvOut != "" {
		if err := writeFile(*csvOut, func(w io.Writer) error { return c.reports.WriteCSV(w, result.Table) }); err != nil {
			return err
		}
	}
	if *xlsxOut != "" {
		if err := writeFile(*xlsxOut, func(w io.Writer) error { return c.reports.WriteXLSX(w, result.Table) }); err != nil {
			return err
		}
	}
	if *pdfOut != "" {
		data, err := c.reports.GeneratePDF(result.Table)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*pdfOut, data, 0o644); err != nil {
			return domain.NewPipelineError(domain.KindReportGeneration, "write pdf", err)
		}
	}
	return nil
}

// writeFile creates path and fills it with render.
func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return domain.NewPipelineError(domain.KindReportGeneration, "create report", err)
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return domain.NewPipelineError(domain.KindReportGeneration, "close report", err)
	}
	return nil
}

// predict scores one patient given as flags. Omitted flags take the form
// defaults.
func (c *CLI) predict(ctx context.Context, args []string) error {
	form := domain.DefaultPatientForm()

	fs := c.newFlagSet("predict")
	fs.StringVar(&form.Gender, "gender", form.Gender, strings.Join(domain.Genders, ", "))
	fs.IntVar(&form.Age, "age", form.Age, fmt.Sprintf("age in years, %d to %d", domain.MinAge, domain.MaxAge))
	fs.IntVar(form.Hypertension, "hypertension", *form.Hypertension, "0 or 1")
	fs.IntVar(form.HeartDisease, "heart-disease", *form.HeartDisease, "0 or 1")
	fs.StringVar(&form.EverMarried, "ever-married", form.EverMarried, strings.Join(domain.MaritalStatuses, ", "))
	fs.StringVar(&form.WorkType, "work-type", form.WorkType, strings.Join(domain.WorkTypes, ", "))
	fs.StringVar(&form.ResidenceType, "residence-type", form.ResidenceType, strings.Join(domain.ResidenceTypes, ", "))
	fs.Float64Var(&form.AvgGlucoseLevel, "avg-glucose-level", form.AvgGlucoseLevel, "average glucose level")
	fs.Float64Var(&form.BMI, "bmi", form.BMI, "body mass index")
	fs.StringVar(&form.SmokingStatus, "smoking-status", form.SmokingStatus, strings.Join(domain.SmokingStatuses, ", "))
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	// Same constraints as the page form.
	if err := binding.Validator.ValidateStruct(&form); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	rec, err := form.Record()
	if err != nil {
		return err
	}

	result, err := c.service.PredictOne(ctx, rec)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, result.Message)
	return nil
}

// model prints the loaded model description.
func (c *CLI) model() error {
	info := c.service.ModelInfo()
	fmt.Fprintf(c.out, "Name:      %s\n", info.Name)
	fmt.Fprintf(c.out, "Format:    %s\n", info.Format)
	fmt.Fprintf(c.out, "Path:      %s\n", info.Path)
	fmt.Fprintf(c.out, "Features:  %d\n", info.FeatureCount)
	fmt.Fprintf(c.out, "Threshold: %g\n", info.Threshold)
	return nil
}

// runs prints recent runs, newest first.
func (c *CLI) runs(ctx context.Context, args []string) error {
	fs := c.newFlagSet("runs")
	limit := fs.IntP("limit", "n", 20, "number of runs to show")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	runs, total, err := c.service.ListRuns(ctx, *limit, 0)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Fprintf(c.out, "%s  %s  %-6s rows=%d high=%d low=%d %dms %s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"), r.ID, r.Kind, r.Rows, r.HighRisk, r.LowRisk, r.DurationMs, r.Source)
	}
	fmt.Fprintf(c.errOut, "%d of %d runs\n", len(runs), total)
	return nil
}

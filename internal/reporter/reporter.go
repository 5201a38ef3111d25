// Package reporter renders engine results for people and for other programs.
//
// Supported output formats:
//   - Console: colored, human-readable sections for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: flat rows for spreadsheet applications
//
// Report types available:
//   - Import reports: rows kept, duplicates and row problems of one export
//   - Analysis reports: category assignments, transfers, recurring series
//     and budget progress
//   - Mapping reports: detected format and header suggestions
//   - Budget reports: budget progress on its own
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = generator.GenerateImportReport(result, os.Stdout)
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"statement-engine/internal/models"
	"statement-engine/internal/parsers"
	"statement-engine/internal/pipeline"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format" mapstructure:"format"`

	// Detail level options
	IncludeRows       bool `json:"include_rows" mapstructure:"include_rows"`
	IncludeDuplicates bool `json:"include_duplicates" mapstructure:"include_duplicates"`
	IncludeRowErrors  bool `json:"include_row_errors" mapstructure:"include_row_errors"`

	// Console formatting options
	UseColors bool `json:"use_colors" mapstructure:"use_colors"`
	MaxItems  int  `json:"max_items" mapstructure:"max_items"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"-"`
	CSVHeaders   bool `json:"csv_headers" mapstructure:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:            FormatConsole,
		IncludeRows:       false,
		IncludeDuplicates: true,
		IncludeRowErrors:  true,
		UseColors:         true,
		MaxItems:          20,
		CSVDelimiter:      ',',
		CSVHeaders:        true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.MaxItems < 0 {
		return fmt.Errorf("max items cannot be negative, got %d", c.MaxItems)
	}

	switch c.CSVDelimiter {
	case '"', '\r', '\n':
		return fmt.Errorf("invalid CSV delimiter: %q", c.CSVDelimiter)
	}

	return nil
}

// MappingReport is the outcome of inspecting an export without importing it
type MappingReport struct {
	Source      string              `json:"source"`
	Format      *parsers.Format     `json:"format"`
	Profile     string              `json:"profile,omitempty"`
	Suggestions parsers.Suggestions `json:"suggestions"`
	Problems    []string            `json:"problems,omitempty"`
}

// envelope wraps every JSON report
type envelope struct {
	Report      string      `json:"report"`
	GeneratedAt time.Time   `json:"generated_at"`
	Data        interface{} `json:"data"`
}

// ReportGenerator generates reports in various formats
type ReportGenerator struct {
	config *ReportConfig
	now    func() time.Time
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
		now:    time.Now,
	}, nil
}

// Generate dispatches on the result type
func (rg *ReportGenerator) Generate(result interface{}, writer io.Writer) error {
	switch r := result.(type) {
	case *pipeline.ImportResult:
		return rg.GenerateImportReport(r, writer)
	case []*pipeline.ImportResult:
		for _, ir := range r {
			if ir == nil {
				continue
			}
			if err := rg.GenerateImportReport(ir, writer); err != nil {
				return err
			}
		}
		return nil
	case *pipeline.AnalysisResult:
		return rg.GenerateAnalysisReport(r, writer)
	case *MappingReport:
		return rg.GenerateMappingReport(r, writer)
	case []models.BudgetProgress:
		return rg.GenerateBudgetReport(r, writer)
	default:
		return fmt.Errorf("unsupported result type %T", result)
	}
}

// GenerateImportReport renders one import result
func (rg *ReportGenerator) GenerateImportReport(result *pipeline.ImportResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("import result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return newConsole(writer, rg.config).importReport(result)
	case FormatJSON:
		return rg.writeJSON("import", rg.filterImport(result), writer)
	case FormatCSV:
		return rg.writeCSV(importRows(result, rg.config), writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// GenerateAnalysisReport renders one analysis result
func (rg *ReportGenerator) GenerateAnalysisReport(result *pipeline.AnalysisResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("analysis result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return newConsole(writer, rg.config).analysisReport(result)
	case FormatJSON:
		return rg.writeJSON("analysis", result, writer)
	case FormatCSV:
		return rg.writeCSV(analysisRows(result), writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// GenerateMappingReport renders header suggestions
func (rg *ReportGenerator) GenerateMappingReport(report *MappingReport, writer io.Writer) error {
	if report == nil {
		return fmt.Errorf("mapping report cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return newConsole(writer, rg.config).mappingReport(report)
	case FormatJSON:
		return rg.writeJSON("mapping", report, writer)
	case FormatCSV:
		return rg.writeCSV(mappingRows(report), writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// GenerateBudgetReport renders budget progress
func (rg *ReportGenerator) GenerateBudgetReport(progress []models.BudgetProgress, writer io.Writer) error {
	switch rg.config.Format {
	case FormatConsole:
		return newConsole(writer, rg.config).budgetReport(progress)
	case FormatJSON:
		return rg.writeJSON("budgets", progress, writer)
	case FormatCSV:
		return rg.writeCSV(budgetRows(progress), writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) writeJSON(kind string, data interface{}, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(envelope{
		Report:      kind,
		GeneratedAt: rg.now().UTC(),
		Data:        data,
	})
}

// filterImport drops the sections the configuration excludes
func (rg *ReportGenerator) filterImport(result *pipeline.ImportResult) *pipeline.ImportResult {
	filtered := *result
	if !rg.config.IncludeRows {
		filtered.Rows = nil
	}
	if !rg.config.IncludeDuplicates {
		filtered.Duplicates = nil
	}
	if !rg.config.IncludeRowErrors {
		filtered.RowErrors = nil
	}
	return &filtered
}

func calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}

	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

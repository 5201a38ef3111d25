// Package config turns viper settings (config file, LEDGER_ environment and
// bound flags) into validated engine configurations.
package config

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"statement-engine/internal/matcher"
	"statement-engine/internal/parsers"
	"statement-engine/internal/pipeline"
	"statement-engine/internal/recurring"
	"statement-engine/internal/reporter"
	"statement-engine/pkg/errors"
)

// Viper keys. Flags are bound onto the same keys.
const (
	KeyTransferPreset        = "transfers.preset"
	KeyTransferWindowDays    = "transfers.window_days"
	KeyTransferMinConfidence = "transfers.min_confidence"
	KeyTransferSameCurrency  = "transfers.require_same_currency"

	KeyRecurringMinOccurrences = "recurring.min_occurrences"
	KeyRecurringToleranceDays  = "recurring.interval_tolerance_days"
	KeyRecurringIntervals      = "recurring.intervals"
	KeyRecurringAmountTol      = "recurring.amount_tolerance"
	KeyRecurringActivityDays   = "recurring.activity_threshold_days"
	KeyRecurringMaxWorkers     = "recurring.max_workers"

	KeyParseMaxRowErrors = "parse.max_row_errors"
	KeyParseStrictQuotes = "parse.strict_quotes"

	KeyImportProfile   = "import.profile"
	KeyImportEncoding  = "import.encoding"
	KeyImportDelimiter = "import.delimiter"
	KeyImportCurrency  = "import.currency"
	KeyImportMapping   = "import.mapping"

	KeyReportFormat       = "report.format"
	KeyReportColors       = "report.colors"
	KeyReportMaxItems     = "report.max_items"
	KeyReportIncludeRows  = "report.include_rows"
	KeyReportCSVDelimiter = "report.csv_delimiter"

	KeyMaxConcurrentFiles  = "pipeline.max_concurrent_files"
	KeyOverwriteCategories = "categorize.overwrite"
)

// CreateTransferConfig starts from the named preset and applies explicit
// overrides
func CreateTransferConfig(v *viper.Viper) (*matcher.TransferConfig, error) {
	var config *matcher.TransferConfig
	switch preset := strings.ToLower(v.GetString(KeyTransferPreset)); preset {
	case "", "default":
		config = matcher.DefaultTransferConfig()
	case "strict":
		config = matcher.StrictTransferConfig()
	case "relaxed":
		config = matcher.RelaxedTransferConfig()
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyTransferPreset, preset, nil).
			WithSuggestion("use one of: default, strict, relaxed")
	}

	if v.IsSet(KeyTransferWindowDays) {
		config.WindowDays = v.GetInt(KeyTransferWindowDays)
	}
	if v.IsSet(KeyTransferMinConfidence) {
		config.MinConfidenceScore = v.GetFloat64(KeyTransferMinConfidence)
	}
	if v.IsSet(KeyTransferSameCurrency) {
		config.RequireSameCurrency = v.GetBool(KeyTransferSameCurrency)
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "transfers", config.String(), err)
	}
	return config, nil
}

// CreateRecurringConfig builds the recurring detection configuration
func CreateRecurringConfig(v *viper.Viper) (*recurring.Config, error) {
	config := recurring.DefaultConfig()

	if v.IsSet(KeyRecurringMinOccurrences) {
		config.MinOccurrences = v.GetInt(KeyRecurringMinOccurrences)
	}
	if v.IsSet(KeyRecurringToleranceDays) {
		config.IntervalToleranceDays = v.GetInt(KeyRecurringToleranceDays)
	}
	if v.IsSet(KeyRecurringIntervals) {
		config.Intervals = v.GetIntSlice(KeyRecurringIntervals)
	}
	if v.IsSet(KeyRecurringAmountTol) {
		raw := v.GetString(KeyRecurringAmountTol)
		tolerance, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyRecurringAmountTol, raw, err)
		}
		config.AmountTolerance = tolerance
	}
	if v.IsSet(KeyRecurringActivityDays) {
		config.ActivityThresholdDays = v.GetInt(KeyRecurringActivityDays)
	}
	if v.IsSet(KeyRecurringMaxWorkers) {
		config.MaxWorkers = v.GetInt(KeyRecurringMaxWorkers)
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "recurring", nil, err)
	}
	return config, nil
}

// CreateParseConfig builds the CSV reader configuration
func CreateParseConfig(v *viper.Viper) (*parsers.ParseConfig, error) {
	config := parsers.DefaultParseConfig()
	if v.IsSet(KeyParseMaxRowErrors) {
		config.MaxRowErrors = v.GetInt(KeyParseMaxRowErrors)
	}
	if v.GetBool(KeyParseStrictQuotes) {
		config.LazyQuotes = false
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "parse", nil, err)
	}
	return config, nil
}

// CreateImportOptions builds the per-file import options shared by every
// file of one command
func CreateImportOptions(v *viper.Viper) (parsers.ImportOptions, error) {
	opts := parsers.ImportOptions{
		Profile:         strings.ToLower(v.GetString(KeyImportProfile)),
		Encoding:        v.GetString(KeyImportEncoding),
		DefaultCurrency: strings.ToUpper(v.GetString(KeyImportCurrency)),
	}
	if opts.Profile != "" && parsers.GetProfile(opts.Profile) == nil {
		return opts, errors.ConfigurationError(errors.CodeInvalidConfig, KeyImportProfile, opts.Profile, nil).
			WithSuggestion("use one of: " + strings.Join(ProfileNames(), ", "))
	}

	delimiter, err := ParseDelimiter(v.GetString(KeyImportDelimiter))
	if err != nil {
		return opts, err
	}
	opts.Delimiter = delimiter

	mapping, err := mappingSetting(v)
	if err != nil {
		return opts, err
	}
	opts.Mapping = mapping
	return opts, nil
}

// mappingSetting accepts either a "field=Header,..." string (flag, env) or a
// map (config file)
func mappingSetting(v *viper.Viper) (parsers.ColumnMapping, error) {
	switch raw := v.Get(KeyImportMapping).(type) {
	case nil:
		return nil, nil
	case string:
		return ParseMapping(raw)
	default:
		mapping := parsers.ColumnMapping(v.GetStringMapString(KeyImportMapping))
		if err := checkMappingFields(mapping); err != nil {
			return nil, err
		}
		if len(mapping) == 0 {
			return nil, nil
		}
		return mapping, nil
	}
}

// ParseMapping reads a mapping like "date=Buchungstag,amount=Betrag"
func ParseMapping(s string) (parsers.ColumnMapping, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	mapping := make(parsers.ColumnMapping)
	for _, pair := range strings.Split(s, ",") {
		field, header, ok := strings.Cut(pair, "=")
		field = strings.ToLower(strings.TrimSpace(field))
		header = strings.TrimSpace(header)
		if !ok || field == "" || header == "" {
			return nil, errors.ConfigurationError(errors.CodeInvalidMapping, KeyImportMapping, pair, nil).
				WithSuggestion("write the mapping as field=Header pairs separated by commas")
		}
		mapping[field] = header
	}
	if err := checkMappingFields(mapping); err != nil {
		return nil, err
	}
	return mapping, nil
}

func checkMappingFields(mapping parsers.ColumnMapping) error {
	for field := range mapping {
		if !isCanonical(field) {
			return errors.ConfigurationError(errors.CodeInvalidMapping, KeyImportMapping, field, nil).
				WithSuggestion("map onto one of: " + strings.Join(parsers.CanonicalFields, ", "))
		}
	}
	return nil
}

func isCanonical(field string) bool {
	for _, f := range parsers.CanonicalFields {
		if f == field {
			return true
		}
	}
	return false
}

// ParseDelimiter reads a delimiter setting. An empty value or "auto" means
// detect from the data.
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	case "comma":
		return ',', nil
	case "semicolon":
		return ';', nil
	case "pipe":
		return '|', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, errors.ConfigurationError(errors.CodeInvalidConfig, KeyImportDelimiter, s, nil).
			WithSuggestion("use a single character or one of: auto, tab, comma, semicolon, pipe")
	}
	r, _ := utf8.DecodeRuneInString(s)
	switch r {
	case '"', '\r', '\n':
		return 0, errors.ConfigurationError(errors.CodeInvalidConfig, KeyImportDelimiter, s, nil)
	}
	return r, nil
}

// ProfileNames lists the built-in bank profiles by name
func ProfileNames() []string {
	var names []string
	for _, p := range parsers.ListProfiles() {
		names = append(names, p.Name)
	}
	return names
}

// CreateReportConfig creates a report configuration for the configured
// output format
func CreateReportConfig(v *viper.Viper) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()

	format := strings.ToLower(v.GetString(KeyReportFormat))
	if format == "" {
		format = string(reporter.FormatConsole)
	}
	config.Format = reporter.OutputFormat(format)

	switch config.Format {
	case reporter.FormatConsole:
		config.UseColors = true
		if v.IsSet(KeyReportColors) {
			config.UseColors = v.GetBool(KeyReportColors)
		}
	case reporter.FormatJSON:
		config.UseColors = false
		config.IncludeRows = true
	case reporter.FormatCSV:
		config.UseColors = false
		config.IncludeRows = true
		config.CSVHeaders = true
	}

	if v.IsSet(KeyReportIncludeRows) {
		config.IncludeRows = v.GetBool(KeyReportIncludeRows)
	}
	if v.IsSet(KeyReportMaxItems) {
		config.MaxItems = v.GetInt(KeyReportMaxItems)
	}
	if raw := v.GetString(KeyReportCSVDelimiter); raw != "" {
		delimiter, err := ParseDelimiter(raw)
		if err != nil {
			return nil, err
		}
		if delimiter != 0 {
			config.CSVDelimiter = delimiter
		}
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyReportFormat, format, err).
			WithSuggestion("valid formats: console, json, csv")
	}
	return config, nil
}

// CreatePipelineConfig assembles the pipeline configuration from the engine
// configurations
func CreatePipelineConfig(v *viper.Viper) (*pipeline.Config, error) {
	parseConfig, err := CreateParseConfig(v)
	if err != nil {
		return nil, err
	}
	transferConfig, err := CreateTransferConfig(v)
	if err != nil {
		return nil, err
	}
	recurringConfig, err := CreateRecurringConfig(v)
	if err != nil {
		return nil, err
	}

	config := pipeline.DefaultConfig()
	config.Parse = parseConfig
	config.Transfers = transferConfig
	config.Recurring = recurringConfig
	config.OverwriteCategories = v.GetBool(KeyOverwriteCategories)
	if v.IsSet(KeyMaxConcurrentFiles) {
		config.MaxConcurrentFiles = v.GetInt(KeyMaxConcurrentFiles)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ValidateConfig builds every configuration once so that a bad setting fails
// before any file is read
func ValidateConfig(v *viper.Viper) error {
	if _, err := CreatePipelineConfig(v); err != nil {
		return fmt.Errorf("pipeline configuration: %w", err)
	}
	if _, err := CreateImportOptions(v); err != nil {
		return fmt.Errorf("import configuration: %w", err)
	}
	if _, err := CreateReportConfig(v); err != nil {
		return fmt.Errorf("report configuration: %w", err)
	}
	return nil
}

package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"

	"statement-engine/internal/reporter"
	"statement-engine/pkg/errors"
)

func TestCreateTransferConfig(t *testing.T) {
	tests := []struct {
		name           string
		settings       map[string]interface{}
		expectError    bool
		wantWindow     int
		wantConfidence float64
		wantSameCcy    bool
	}{
		{
			name:           "defaults",
			wantWindow:     3,
			wantConfidence: 0.5,
			wantSameCcy:    true,
		},
		{
			name:           "strict preset",
			settings:       map[string]interface{}{KeyTransferPreset: "strict"},
			wantWindow:     1,
			wantConfidence: 0.75,
			wantSameCcy:    true,
		},
		{
			name: "relaxed preset with overrides",
			settings: map[string]interface{}{
				KeyTransferPreset:        "Relaxed",
				KeyTransferWindowDays:    7,
				KeyTransferMinConfidence: 0.6,
			},
			wantWindow:     7,
			wantConfidence: 0.6,
			wantSameCcy:    false,
		},
		{
			name:        "unknown preset",
			settings:    map[string]interface{}{KeyTransferPreset: "loose"},
			expectError: true,
		},
		{
			name:        "negative window",
			settings:    map[string]interface{}{KeyTransferWindowDays: -1},
			expectError: true,
		},
		{
			name:        "confidence above one",
			settings:    map[string]interface{}{KeyTransferMinConfidence: 1.5},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			for key, value := range tt.settings {
				v.Set(key, value)
			}

			config, err := CreateTransferConfig(v)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				if engineErr, ok := errors.AsEngineError(err); !ok || engineErr.Category != errors.CategoryConfiguration {
					t.Errorf("expected configuration error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if config.WindowDays != tt.wantWindow {
				t.Errorf("expected window %d, got %d", tt.wantWindow, config.WindowDays)
			}
			if config.MinConfidenceScore != tt.wantConfidence {
				t.Errorf("expected min confidence %.2f, got %.2f", tt.wantConfidence, config.MinConfidenceScore)
			}
			if config.RequireSameCurrency != tt.wantSameCcy {
				t.Errorf("expected same currency %t, got %t", tt.wantSameCcy, config.RequireSameCurrency)
			}
		})
	}
}

func TestCreateRecurringConfig(t *testing.T) {
	v := viper.New()
	config, err := CreateRecurringConfig(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.MinOccurrences != 3 {
		t.Errorf("expected default min occurrences 3, got %d", config.MinOccurrences)
	}

	v.Set(KeyRecurringMinOccurrences, 4)
	v.Set(KeyRecurringIntervals, []int{7, 30})
	v.Set(KeyRecurringAmountTol, "2.50")
	config, err = CreateRecurringConfig(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.MinOccurrences != 4 {
		t.Errorf("expected min occurrences 4, got %d", config.MinOccurrences)
	}
	if len(config.Intervals) != 2 || config.Intervals[1] != 30 {
		t.Errorf("expected intervals [7 30], got %v", config.Intervals)
	}
	if config.AmountTolerance.String() != "2.5" {
		t.Errorf("expected amount tolerance 2.5, got %s", config.AmountTolerance)
	}

	v.Set(KeyRecurringAmountTol, "a lot")
	if _, err := CreateRecurringConfig(v); err == nil {
		t.Error("expected error for non-numeric amount tolerance")
	}

	v.Set(KeyRecurringAmountTol, "1")
	v.Set(KeyRecurringMinOccurrences, 1)
	if _, err := CreateRecurringConfig(v); err == nil {
		t.Error("expected error for min occurrences below 2")
	}
}

func TestParseDelimiter(t *testing.T) {
	tests := []struct {
		input       string
		expected    rune
		expectError bool
	}{
		{"", 0, false},
		{"auto", 0, false},
		{"tab", '\t', false},
		{`\t`, '\t', false},
		{"Semicolon", ';', false},
		{"comma", ',', false},
		{"pipe", '|', false},
		{";", ';', false},
		{",", ',', false},
		{`"`, 0, true},
		{";;", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDelimiter(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestParseMapping(t *testing.T) {
	mapping, err := ParseMapping("date=Buchungstag, Amount = Betrag (EUR) ,purpose=Verwendungszweck")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mapping) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(mapping))
	}
	if mapping["date"] != "Buchungstag" {
		t.Errorf("expected date -> Buchungstag, got %q", mapping["date"])
	}
	if mapping["amount"] != "Betrag (EUR)" {
		t.Errorf("expected amount -> Betrag (EUR), got %q", mapping["amount"])
	}

	empty, err := ParseMapping("  ")
	if err != nil || empty != nil {
		t.Errorf("expected nil mapping for blank input, got %v, %v", empty, err)
	}

	for _, bad := range []string{"date", "date=", "=Betrag", "iban=IBAN"} {
		if _, err := ParseMapping(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestCreateImportOptions(t *testing.T) {
	v := viper.New()
	v.Set(KeyImportProfile, "DKB")
	v.Set(KeyImportDelimiter, "semicolon")
	v.Set(KeyImportCurrency, "eur")
	v.Set(KeyImportMapping, "date=Buchungstag,amount=Betrag")

	opts, err := CreateImportOptions(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Profile != "dkb" {
		t.Errorf("expected profile dkb, got %q", opts.Profile)
	}
	if opts.Delimiter != ';' {
		t.Errorf("expected ';', got %q", opts.Delimiter)
	}
	if opts.DefaultCurrency != "EUR" {
		t.Errorf("expected EUR, got %q", opts.DefaultCurrency)
	}
	if opts.Mapping["amount"] != "Betrag" {
		t.Errorf("expected amount -> Betrag, got %q", opts.Mapping["amount"])
	}

	fromFile := viper.New()
	fromFile.Set(KeyImportMapping, map[string]interface{}{"date": "Datum", "amount": "Betrag"})
	opts, err = CreateImportOptions(fromFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Mapping["date"] != "Datum" {
		t.Errorf("expected date -> Datum, got %q", opts.Mapping["date"])
	}

	unknown := viper.New()
	unknown.Set(KeyImportProfile, "bank-of-nowhere")
	if _, err := CreateImportOptions(unknown); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestCreateReportConfig(t *testing.T) {
	tests := []struct {
		name        string
		format      string
		expectError bool
		wantColors  bool
		wantRows    bool
	}{
		{name: "default is console", format: "", wantColors: true},
		{name: "console", format: "console", wantColors: true},
		{name: "json", format: "JSON", wantRows: true},
		{name: "csv", format: "csv", wantRows: true},
		{name: "invalid", format: "xml", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(KeyReportFormat, tt.format)

			config, err := CreateReportConfig(v)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				if !strings.Contains(err.Error(), "console, json, csv") {
					t.Errorf("expected suggestion listing formats, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if config.UseColors != tt.wantColors {
				t.Errorf("expected colors %t, got %t", tt.wantColors, config.UseColors)
			}
			if config.IncludeRows != tt.wantRows {
				t.Errorf("expected include rows %t, got %t", tt.wantRows, config.IncludeRows)
			}
		})
	}

	v := viper.New()
	v.Set(KeyReportFormat, "csv")
	v.Set(KeyReportCSVDelimiter, "semicolon")
	v.Set(KeyReportColors, true)
	config, err := CreateReportConfig(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Format != reporter.FormatCSV || config.CSVDelimiter != ';' {
		t.Errorf("expected csv with ';', got %s with %q", config.Format, config.CSVDelimiter)
	}
	if config.UseColors {
		t.Error("colors should stay off for csv")
	}
}

func TestCreatePipelineConfig(t *testing.T) {
	v := viper.New()
	v.Set(KeyTransferPreset, "strict")
	v.Set(KeyMaxConcurrentFiles, 2)
	v.Set(KeyOverwriteCategories, true)

	config, err := CreatePipelineConfig(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Transfers.WindowDays != 1 {
		t.Errorf("expected strict window 1, got %d", config.Transfers.WindowDays)
	}
	if config.MaxConcurrentFiles != 2 {
		t.Errorf("expected 2 concurrent files, got %d", config.MaxConcurrentFiles)
	}
	if !config.OverwriteCategories {
		t.Error("expected overwrite to be enabled")
	}

	v.Set(KeyMaxConcurrentFiles, 0)
	if _, err := CreatePipelineConfig(v); err == nil {
		t.Error("expected error for zero concurrency")
	}
}

func TestValidateConfig(t *testing.T) {
	if err := ValidateConfig(viper.New()); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}

	v := viper.New()
	v.Set(KeyImportDelimiter, "::")
	err := ValidateConfig(v)
	if err == nil {
		t.Fatal("expected error for bad delimiter")
	}
	if !strings.Contains(err.Error(), "import configuration") {
		t.Errorf("expected import configuration error, got %v", err)
	}
}

func TestProfileNames(t *testing.T) {
	names := ProfileNames()
	if len(names) == 0 {
		t.Fatal("expected built-in profiles")
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Errorf("profile names not sorted: %v", names)
		}
	}
}

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"statement-engine/internal/parsers"
	"statement-engine/pkg/errors"
)

const giroCSV = "Buchungstag;Empfänger;Verwendungszweck;Betrag\n" +
	"02.01.2025;REWE;Einkauf;-12,50\n" +
	"03.01.2025;ACME GmbH;Gehalt;2.500,00\n" +
	"06.01.2025;Tagesgeld;Umbuchung;-100,00\n"

const savingsCSV = "Buchungstag;Empfänger;Verwendungszweck;Betrag\n" +
	"07.01.2025;Girokonto;Umbuchung;100,00\n"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create %s: %v", name, err)
	}
	return path
}

func TestValidateFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	validFile := writeFile(t, tmpDir, "valid.csv", "test")

	tests := []struct {
		name        string
		filePath    string
		expectError bool
	}{
		{name: "valid file", filePath: validFile},
		{name: "empty path", filePath: "", expectError: true},
		{name: "non-existent file", filePath: "/non/existent/file.csv", expectError: true},
		{name: "directory instead of file", filePath: tmpDir, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileExists(tt.filePath, "test file")
			if tt.expectError && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseStatementArg(t *testing.T) {
	tests := []struct {
		input       string
		wantAccount int64
		wantPath    string
		expectError bool
	}{
		{input: "1:giro.csv", wantAccount: 1, wantPath: "giro.csv"},
		{input: " 12 : exports/savings.csv", wantAccount: 12, wantPath: "exports/savings.csv"},
		{input: "2:C:/exports/giro.csv", wantAccount: 2, wantPath: "C:/exports/giro.csv"},
		{input: "giro.csv", expectError: true},
		{input: "1:", expectError: true},
		{input: "x:giro.csv", expectError: true},
		{input: "0:giro.csv", expectError: true},
		{input: "-3:giro.csv", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			arg, err := parseStatementArg(tt.input)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				if !errors.IsValidation(err) {
					t.Errorf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if arg.AccountID != tt.wantAccount || arg.Path != tt.wantPath {
				t.Errorf("expected %d:%s, got %d:%s", tt.wantAccount, tt.wantPath, arg.AccountID, arg.Path)
			}
		})
	}
}

func TestParseToday(t *testing.T) {
	today, err := parseToday("2025-01-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := today.Format("2006-01-02"); got != "2025-01-15" {
		t.Errorf("expected 2025-01-15, got %s", got)
	}

	now, err := parseToday("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if now.Hour() != 0 || now.Minute() != 0 {
		t.Errorf("expected a date without time, got %v", now)
	}

	if _, err := parseToday("15.01.2025"); err == nil {
		t.Error("expected error for non-ISO date")
	}
}

func TestBuildMappingReport(t *testing.T) {
	parser := parsers.NewStatementParser(nil)

	report, err := buildMappingReport(parser, "giro.csv", []byte(giroCSV), parsers.ImportOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Source != "giro.csv" {
		t.Errorf("expected source giro.csv, got %s", report.Source)
	}
	if report.Format.Delimiter != ';' {
		t.Errorf("expected ';' delimiter, got %q", report.Format.Delimiter)
	}
	if got := report.Suggestions["amount"].Header; got != "Betrag" {
		t.Errorf("expected amount -> Betrag, got %q", got)
	}
	if len(report.Problems) != 0 {
		t.Errorf("expected no problems, got %v", report.Problems)
	}

	explicit := parsers.ImportOptions{Mapping: parsers.ColumnMapping{"date": "Buchungstag"}}
	report, err = buildMappingReport(parser, "giro.csv", []byte(giroCSV), explicit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Problems) == 0 {
		t.Fatal("expected a problem for the missing amount column")
	}
	if !strings.Contains(strings.Join(report.Problems, "\n"), "amount") {
		t.Errorf("expected problems to mention amount, got %v", report.Problems)
	}
}

func TestRunAnalysis_Transfers(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	tmpDir := t.TempDir()
	giro := writeFile(t, tmpDir, "giro.csv", giroCSV)
	savings := writeFile(t, tmpDir, "savings.csv", savingsCSV)

	opts := analysisOptions{
		statements: []string{"1:" + giro, "2:" + savings},
		today:      "2025-01-31",
	}
	result, err := runAnalysis(context.Background(), kindTransfers, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Transfers == nil {
		t.Fatal("expected transfer detection to run")
	}
	if len(result.Transfers.Links) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(result.Transfers.Links))
	}
	link := result.Transfers.Links[0]
	if link.Amount.String() != "100" {
		t.Errorf("expected amount 100, got %s", link.Amount)
	}
	if result.Recurring != nil {
		t.Error("recurring detection should be skipped")
	}
}

func TestRunAnalysis_Budget(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	tmpDir := t.TempDir()
	giro := writeFile(t, tmpDir, "giro.csv", giroCSV)
	rules := writeFile(t, tmpDir, "rules.yaml", "rules:\n  - category_id: 5\n    name: groceries\n    patterns: [rewe]\n")
	budgets := writeFile(t, tmpDir, "budgets.yaml", "budgets:\n  - category_id: 5\n    amount: 50\n    start_date: 2025-01-01\n    end_date: 2025-01-31\n")

	opts := analysisOptions{
		statements:  []string{"1:" + giro},
		rulesFile:   rules,
		budgetsFile: budgets,
		today:       "2025-01-31",
	}
	result, err := runAnalysis(context.Background(), kindBudget, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Assignments) != 1 {
		t.Errorf("expected 1 category assignment, got %d", len(result.Assignments))
	}
	if len(result.Budgets) != 1 {
		t.Fatalf("expected 1 budget, got %d", len(result.Budgets))
	}
	if got := result.Budgets[0].Spent.StringFixed(2); got != "12.50" {
		t.Errorf("expected spent 12.50, got %s", got)
	}
}

func TestRunAnalysis_BadStatement(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	_, err := runAnalysis(context.Background(), kindRecurring, analysisOptions{statements: []string{"1:/non/existent.csv"}})
	if err == nil {
		t.Fatal("expected error for missing statement file")
	}
	engineErr, ok := errors.AsEngineError(err)
	if !ok || engineErr.Category != errors.CategoryFile {
		t.Errorf("expected file error, got %v", err)
	}
}

func TestOpenRepository(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	repo, err := openRepository(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	repo.Close()

	viper.Set("store.driver", "postgres")
	if _, err := openRepository(context.Background()); err == nil {
		t.Error("expected error for unknown store driver")
	}
}

func TestCLIErrorHandler(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantCode     int
		wantContains []string
	}{
		{
			name:         "nil error",
			err:          nil,
			wantCode:     0,
			wantContains: nil,
		},
		{
			name:         "file error",
			err:          errors.FileError(errors.CodeFileNotFound, "missing.csv", os.ErrNotExist),
			wantCode:     errors.FileError(errors.CodeFileNotFound, "missing.csv", os.ErrNotExist).GetExitCode(),
			wantContains: []string{"Error:", "File error help"},
		},
		{
			name: "configuration error with suggestion",
			err: errors.ConfigurationError(errors.CodeInvalidConfig, "transfers.preset", "loose", nil).
				WithSuggestion("use one of: default, strict, relaxed"),
			wantCode:     errors.ConfigurationError(errors.CodeInvalidConfig, "x", "y", nil).GetExitCode(),
			wantContains: []string{"Suggestion: use one of: default, strict, relaxed", "Configuration error help"},
		},
		{
			name:         "generic error",
			err:          fmt.Errorf("boom"),
			wantCode:     1,
			wantContains: []string{"Error: boom"},
		},
		{
			name:         "wrapped not exist",
			err:          fmt.Errorf("reading: %w", os.ErrNotExist),
			wantCode:     2,
			wantContains: []string{"File not found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := NewCLIErrorHandler()
			h.out = &buf

			code := h.HandleError(tt.err)
			if code != tt.wantCode {
				t.Errorf("expected exit code %d, got %d", tt.wantCode, code)
			}
			for _, want := range tt.wantContains {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("expected output to contain %q, got:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestCLIErrorHandler_Summary(t *testing.T) {
	summary := errors.NewErrorSummary([]*errors.EngineError{
		errors.ValidationError(errors.CodeMissingField, "data", "a.csv", nil).WithContext("source", "a.csv"),
		errors.FileError(errors.CodeFileNotFound, "b.csv", os.ErrNotExist).WithContext("source", "b.csv"),
	})

	var buf bytes.Buffer
	h := NewCLIErrorHandler()
	h.out = &buf

	code := h.HandleError(summary)
	if code != summary.GetExitCode() {
		t.Errorf("expected exit code %d, got %d", summary.GetExitCode(), code)
	}
	output := buf.String()
	if !strings.Contains(output, "2 errors occurred") {
		t.Errorf("expected summary line, got:\n%s", output)
	}
	if !strings.Contains(output, "a.csv: ") || !strings.Contains(output, "b.csv: ") {
		t.Errorf("expected both sources listed, got:\n%s", output)
	}
}

func TestFormatValidationErrors(t *testing.T) {
	if got := FormatValidationErrors(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
	if got := FormatValidationErrors([]error{fmt.Errorf("bad date")}); got != "Validation error: bad date" {
		t.Errorf("unexpected single error format: %q", got)
	}

	var errs []error
	for i := 0; i < 12; i++ {
		errs = append(errs, fmt.Errorf("problem %d", i))
	}
	got := FormatValidationErrors(errs)
	if !strings.HasPrefix(got, "Found 12 validation errors:") {
		t.Errorf("unexpected header: %q", got)
	}
	if !strings.Contains(got, "... and 2 more errors") {
		t.Errorf("expected truncation note, got %q", got)
	}
}

func TestFormatFileError(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "giro-2025.csv", "x")

	_, statErr := os.Stat(filepath.Join(tmpDir, "giro.csv"))
	msg := FormatFileError(filepath.Join(tmpDir, "giro.csv"), statErr)
	if !strings.Contains(msg, "Error with file 'giro.csv'") {
		t.Errorf("unexpected message: %s", msg)
	}
	if !strings.Contains(msg, "- giro-2025.csv") {
		t.Errorf("expected similar file suggestion, got: %s", msg)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"import", "suggest-mapping", "categorize", "transfers", "recurring", "budget", "version"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestImportCommand_DryRunJSON(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	tmpDir := t.TempDir()
	giro := writeFile(t, tmpDir, "giro.csv", giroCSV)
	out := filepath.Join(tmpDir, "report.json")

	rootCmd.SetArgs([]string{"import", "--account", "1", "--dry-run", "--output-format", "json", "--output-file", out, giro})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	var envelope struct {
		Report string `json:"report"`
		Data   struct {
			Source string `json:"source"`
			Stats  struct {
				Imported int `json:"imported"`
			} `json:"stats"`
		} `json:"data"`
	}
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&envelope); err != nil {
		t.Fatalf("report is not JSON: %v\n%s", err, data)
	}
	if envelope.Report != "import" {
		t.Errorf("expected import report, got %q", envelope.Report)
	}
	if envelope.Data.Source != giro {
		t.Errorf("expected source %s, got %s", giro, envelope.Data.Source)
	}
	if envelope.Data.Stats.Imported != 3 {
		t.Errorf("expected 3 imported rows, got %d", envelope.Data.Stats.Imported)
	}
}

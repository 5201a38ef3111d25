package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestEngineError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 2,
		},
		{
			name:       "parse error",
			category:   CategoryParse,
			code:       CodeInvalidFormat,
			message:    "invalid format",
			cause:      nil,
			expectCode: 3,
		},
		{
			name:       "not found error",
			category:   CategoryNotFound,
			code:       CodeNotFound,
			message:    "transaction 7 not found",
			cause:      nil,
			expectCode: 5,
		},
		{
			name:       "storage error",
			category:   CategoryStorage,
			code:       CodeQueryFailed,
			message:    "query failed",
			cause:      errors.New("deadlock"),
			expectCode: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *EngineError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if err.Error() != tt.message {
				t.Errorf("expected error string %s, got %s", tt.message, err.Error())
			}
			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
			if len(err.StackTrace) == 0 {
				t.Error("expected stack trace to be captured")
			}
		})
	}
}

func TestEngineErrorWithContext(t *testing.T) {
	err := New(CategoryFile, CodeFileNotFound, "test error").
		WithContext("file", "/path/to/file").
		WithContext("line", 42).
		WithSuggestion("check file path")

	if err.Context["file"] != "/path/to/file" {
		t.Errorf("expected file context '/path/to/file', got %v", err.Context["file"])
	}
	if err.Context["line"] != 42 {
		t.Errorf("expected line context 42, got %v", err.Context["line"])
	}

	expected := "test error (suggestion: check file path)"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestSpecificErrorConstructors(t *testing.T) {
	t.Run("ParseError", func(t *testing.T) {
		err := ParseError(CodeInvalidFormat, "statement.csv", 10, "Betrag", "12.3.4", nil)

		if err.Category != CategoryParse {
			t.Errorf("expected parse category, got %s", err.Category)
		}
		if err.Context["source"] != "statement.csv" {
			t.Errorf("expected source context, got %v", err.Context["source"])
		}
		if err.Context["line"] != 10 {
			t.Errorf("expected line context, got %v", err.Context["line"])
		}
	})

	t.Run("ValidationError", func(t *testing.T) {
		err := ValidationError(CodeInvalidTransfer, "from_amount", "12.00", nil)

		if !IsValidation(err) {
			t.Errorf("expected validation category, got %s", err.Category)
		}
		if IsNotFound(err) {
			t.Error("validation error must not be reported as not found")
		}
		if err.Suggestion == "" {
			t.Error("expected suggestion to be set")
		}
	})

	t.Run("NotFoundError", func(t *testing.T) {
		err := NotFoundError("transaction", int64(99))

		if !IsNotFound(err) {
			t.Errorf("expected not_found category, got %s", err.Category)
		}
		if IsValidation(err) {
			t.Error("not found error must not be reported as validation")
		}
		if !strings.Contains(err.Error(), "99") {
			t.Errorf("expected id in message, got %s", err.Error())
		}
	})

	t.Run("wrapped NotFoundError", func(t *testing.T) {
		err := fmt.Errorf("create transfer: %w", NotFoundError("transaction", 1))
		if !IsNotFound(err) {
			t.Error("expected IsNotFound to see through fmt.Errorf wrapping")
		}
	})

	t.Run("StorageError", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := StorageError(CodeConnectionFailed, "open", cause)
		if err.Cause != cause {
			t.Errorf("expected cause to be %v, got %v", cause, err.Cause)
		}
		if err.Context["operation"] != "open" {
			t.Errorf("expected operation context, got %v", err.Context["operation"])
		}
	})
}

func TestErrorSummary(t *testing.T) {
	errs := []*EngineError{
		New(CategoryFile, CodeFileNotFound, "error 1"),
		New(CategoryParse, CodeInvalidFormat, "error 2"),
		New(CategoryParse, CodeInvalidData, "error 3"),
		New(CategoryValidation, CodeInvalidAmount, "error 4"),
		New(CategoryStorage, CodeQueryFailed, "error 5"),
		New(CategoryValidation, CodeInvalidDate, "error 6"),
	}

	summary := NewErrorSummary(errs)

	if summary.Total != 6 {
		t.Errorf("expected total 6, got %d", summary.Total)
	}
	if summary.ByCategory[CategoryParse] != 2 {
		t.Errorf("expected 2 parse errors, got %d", summary.ByCategory[CategoryParse])
	}
	if len(summary.SampleErrors) != 5 {
		t.Errorf("expected 5 sample errors, got %d", len(summary.SampleErrors))
	}
	if !summary.HasCategory(CategoryFile) {
		t.Error("expected to have file category")
	}
	if summary.HasCategory(CategoryNotFound) {
		t.Error("expected not to have not_found category")
	}
	if summary.GetExitCode() != 6 {
		t.Errorf("expected highest exit code 6, got %d", summary.GetExitCode())
	}
}

func TestEmptyErrorSummary(t *testing.T) {
	summary := NewErrorSummary(nil)

	if summary.Total != 0 {
		t.Errorf("expected total 0, got %d", summary.Total)
	}
	if summary.Error() != "no errors" {
		t.Errorf("expected 'no errors', got '%s'", summary.Error())
	}
	if summary.GetExitCode() != 0 {
		t.Errorf("expected exit code 0, got %d", summary.GetExitCode())
	}
}

func TestAsEngineError(t *testing.T) {
	engineErr := New(CategoryFile, CodeFileNotFound, "test")
	genericErr := errors.New("generic error")

	if extracted, ok := AsEngineError(engineErr); !ok || extracted != engineErr {
		t.Error("expected AsEngineError to extract EngineError")
	}
	if _, ok := AsEngineError(genericErr); ok {
		t.Error("expected AsEngineError to return false for generic error")
	}
	if _, ok := AsEngineError(nil); ok {
		t.Error("expected AsEngineError to return false for nil")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	engineErr := New(CategoryFile, CodeFileNotFound, "test")
	genericErr := errors.New("generic error")

	if WrapIfNeeded(engineErr, CategoryParse, CodeInvalidFormat, "wrapped") != engineErr {
		t.Error("expected WrapIfNeeded to return original EngineError")
	}

	wrapped := WrapIfNeeded(genericErr, CategoryParse, CodeInvalidFormat, "wrapped")
	if wrapped.Cause != genericErr {
		t.Error("expected WrapIfNeeded to wrap generic error")
	}

	if WrapIfNeeded(nil, CategoryParse, CodeInvalidFormat, "wrapped") != nil {
		t.Error("expected WrapIfNeeded to return nil for nil input")
	}
}

func TestRowErrorCollector(t *testing.T) {
	collector := NewRowErrorCollector(2)

	if !collector.Add(InvalidAmountRow("a.csv", 3, "Betrag", "n/a")) {
		t.Error("expected collector to accept first error")
	}
	if collector.Add(InvalidDateRow("a.csv", 4, "Datum", "yesterday")) {
		t.Error("expected collector to stop at the limit")
	}
	if !collector.HasErrors() {
		t.Error("expected errors to be collected")
	}
	if collector.Rejected() != 1 {
		t.Errorf("expected 1 rejected row, got %d", collector.Rejected())
	}

	msg := collector.Errors()[1].Error()
	if !strings.Contains(msg, "a.csv:4") || !strings.Contains(msg, "Datum") {
		t.Errorf("expected location in message, got %s", msg)
	}

	if collector.Summary().ByCategory[CategoryParse] != 2 {
		t.Error("expected both row errors in the parse category")
	}
}

func TestFormatRowErrors(t *testing.T) {
	errs := []*RowError{
		ShortRow("x.csv", 2, 1, 3),
		ShortRow("x.csv", 5, 2, 3),
		ShortRow("x.csv", 9, 0, 3),
	}

	out := FormatRowErrors(errs, 2)
	if !strings.Contains(out, "... and 1 more") {
		t.Errorf("expected truncation marker, got %s", out)
	}
	if FormatRowErrors(nil, 2) != "no row errors" {
		t.Error("expected placeholder for empty list")
	}
}

package errors

import (
	"fmt"
	"strings"
)

// RowContext locates a problem inside an imported statement
type RowContext struct {
	Source   string `json:"source"`
	Line     int    `json:"line"`
	Column   string `json:"column,omitempty"`
	Value    string `json:"value,omitempty"`
	Expected string `json:"expected,omitempty"`
}

// RowError is a problem with a single statement row. Row errors are collected,
// they never abort an import.
type RowError struct {
	*EngineError
	Row      *RowContext `json:"row"`
	Rejected bool        `json:"rejected"`
}

// Error implements the error interface with the row location appended
func (e *RowError) Error() string {
	if e.Row == nil {
		return e.EngineError.Error()
	}
	location := fmt.Sprintf("at %s:%d", e.Row.Source, e.Row.Line)
	if e.Row.Column != "" {
		location += fmt.Sprintf(" column '%s'", e.Row.Column)
	}
	return e.EngineError.Error() + " " + location
}

func newRowError(code ErrorCode, row *RowContext, message string, rejected bool) *RowError {
	base := New(CategoryParse, code, message).
		WithContext("source", row.Source).
		WithContext("line", row.Line)
	if row.Column != "" {
		base.WithContext("column", row.Column)
	}
	return &RowError{EngineError: base, Row: row, Rejected: rejected}
}

// InvalidDateRow reports a row whose date cell cannot be parsed; the row is dropped
func InvalidDateRow(source string, line int, column, value string) *RowError {
	row := &RowContext{Source: source, Line: line, Column: column, Value: value, Expected: "date"}
	err := newRowError(CodeInvalidDate, row, fmt.Sprintf("unparseable date '%s'", value), true)
	err.WithSuggestion("use an ISO (YYYY-MM-DD) or day-first (DD.MM.YYYY) date")
	return err
}

// InvalidAmountRow reports an amount cell that fell back to zero; the row is kept
func InvalidAmountRow(source string, line int, column, value string) *RowError {
	row := &RowContext{Source: source, Line: line, Column: column, Value: value, Expected: "amount"}
	return newRowError(CodeInvalidAmount, row, fmt.Sprintf("unparseable amount '%s', using 0.00", value), false)
}

// ShortRow reports a row with fewer fields than the mapped columns require
func ShortRow(source string, line, got, want int) *RowError {
	row := &RowContext{Source: source, Line: line, Expected: fmt.Sprintf("%d fields", want)}
	return newRowError(CodeInvalidFormat, row, fmt.Sprintf("row has %d fields, expected at least %d", got, want), true)
}

// RowErrorCollector gathers row problems up to a limit
type RowErrorCollector struct {
	errors    []*RowError
	maxErrors int
}

// NewRowErrorCollector creates a collector; maxErrors <= 0 means unlimited
func NewRowErrorCollector(maxErrors int) *RowErrorCollector {
	return &RowErrorCollector{maxErrors: maxErrors}
}

// Add records err and reports whether the caller may keep going
func (c *RowErrorCollector) Add(err *RowError) bool {
	if err == nil {
		return true
	}
	c.errors = append(c.errors, err)
	return c.maxErrors <= 0 || len(c.errors) < c.maxErrors
}

// HasErrors returns true if any errors have been collected
func (c *RowErrorCollector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns the collected errors in insertion order
func (c *RowErrorCollector) Errors() []*RowError {
	return c.errors
}

// Rejected counts collected errors that dropped their row
func (c *RowErrorCollector) Rejected() int {
	n := 0
	for _, err := range c.errors {
		if err.Rejected {
			n++
		}
	}
	return n
}

// Summary converts the collected errors into an ErrorSummary
func (c *RowErrorCollector) Summary() *ErrorSummary {
	base := make([]*EngineError, len(c.errors))
	for i, err := range c.errors {
		base[i] = err.EngineError
	}
	return NewErrorSummary(base)
}

// FormatRowErrors renders row errors for terminal output, at most limit lines
func FormatRowErrors(errs []*RowError, limit int) string {
	if len(errs) == 0 {
		return "no row errors"
	}
	var lines []string
	for i, err := range errs {
		if limit > 0 && i == limit {
			lines = append(lines, fmt.Sprintf("... and %d more", len(errs)-limit))
			break
		}
		lines = append(lines, "  - "+err.Error())
	}
	return strings.Join(lines, "\n")
}

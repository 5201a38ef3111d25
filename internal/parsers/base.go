// Package parsers turns raw bank-statement exports into normalized rows.
//
// Real-world exports differ in almost every physical detail: text encoding,
// field delimiter, metadata lines above the header, header language, number
// format and date order. This package detects or accepts each of them:
//
//   - values.go: locale-aware amount and date parsing that never fails
//   - detect.go: encoding, delimiter and header-row detection
//   - mapping.go: header to canonical field suggestions and validation
//   - profiles.go: known bank export layouts
//   - statement.go: the StatementParser tying the steps together
//
// Example usage:
//
//	parser := NewStatementParser(DefaultParseConfig())
//	result, err := parser.Parse(ctx, data, ImportOptions{Source: "dkb.csv"})
//	for _, row := range result.Rows {
//		fmt.Println(row.Date, row.Amount, row.Recipient)
//	}
//
// Value parsing is defensive: an unparseable amount becomes 0.00 and is
// reported as a row warning, a row without a usable date is dropped and
// reported. A bad row never aborts the import.
package parsers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"statement-engine/pkg/errors"
	"statement-engine/pkg/logger"
)

// ParseConfig holds configuration for CSV parsing
type ParseConfig struct {
	Comment          rune `json:"comment,omitempty"`
	TrimLeadingSpace bool `json:"trim_leading_space"`
	SkipEmptyRows    bool `json:"skip_empty_rows"`
	LazyQuotes       bool `json:"lazy_quotes"`
	MaxFieldSize     int  `json:"max_field_size"`
	MaxRowErrors     int  `json:"max_row_errors"`
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		LazyQuotes:       true,
		MaxFieldSize:     64 * 1024,
		MaxRowErrors:     0,
	}
}

// Validate checks the parse configuration
func (c *ParseConfig) Validate() error {
	if c.MaxFieldSize < 0 {
		return fmt.Errorf("max field size cannot be negative, got %d", c.MaxFieldSize)
	}
	if c.MaxRowErrors < 0 {
		return fmt.Errorf("max row errors cannot be negative, got %d", c.MaxRowErrors)
	}
	return nil
}

// BaseParser provides common CSV reading functionality
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	log := logger.GetGlobalLogger().WithComponent("base_parser")
	log.WithFields(logger.Fields{
		"lazy_quotes":    config.LazyQuotes,
		"max_field_size": config.MaxFieldSize,
	}).Debug("Created base parser")

	return &BaseParser{
		config: config,
		logger: log,
	}
}

// ParseContext holds state during parsing operations
type ParseContext struct {
	Source      string
	LineOffset  int
	LineNumber  int
	Headers     []string
	HeaderMap   map[string]int
	RecordCount int
	ctx         context.Context
}

// NewParseContext creates a new parsing context. lineOffset is the number of
// physical lines stripped before the header row.
func NewParseContext(ctx context.Context, source string, lineOffset int) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		Source:     source,
		LineOffset: lineOffset,
		HeaderMap:  make(map[string]int),
		ctx:        ctx,
	}
}

// IsCancelled checks if the parsing context has been cancelled
func (pc *ParseContext) IsCancelled() bool {
	select {
	case <-pc.ctx.Done():
		return true
	default:
		return false
	}
}

// GetColumnIndex returns the index of a column by name, or -1 if not found
func (pc *ParseContext) GetColumnIndex(name string) int {
	name = strings.TrimSpace(name)
	if index, exists := pc.HeaderMap[name]; exists {
		return index
	}

	for i, header := range pc.Headers {
		if strings.EqualFold(header, name) {
			return i
		}
	}

	return -1
}

// NewReader returns a csv.Reader over r configured for delimiter
func (bp *BaseParser) NewReader(r io.Reader, delimiter rune) *csv.Reader {
	reader := csv.NewReader(r)
	reader.Comma = delimiter
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.LazyQuotes = bp.config.LazyQuotes
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false
	return reader
}

// ReadHeaders reads the header row
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, parseCtx *ParseContext) error {
	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.ValidationError(errors.CodeMissingField, "file_content", "empty", nil).
				WithSuggestion("ensure the file contains a header row and data rows")
		}
		return errors.ParseError(errors.CodeInvalidFormat, parseCtx.Source, parseCtx.LineOffset+1, "headers", "", err)
	}

	line, _ := reader.FieldPos(0)
	parseCtx.LineNumber = parseCtx.LineOffset + line
	parseCtx.Headers = cleanHeaders(headers)
	parseCtx.HeaderMap = make(map[string]int, len(parseCtx.Headers))
	for i, header := range parseCtx.Headers {
		// first occurrence wins for duplicated headers
		if _, exists := parseCtx.HeaderMap[header]; !exists {
			parseCtx.HeaderMap[header] = i
		}
	}

	bp.logger.WithField("headers", parseCtx.Headers).Debug("Read headers")
	return nil
}

// cleanHeaders trims whitespace and a stray byte order mark from header cells
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		cleaned[i] = strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))
	}
	return cleaned
}

// ReadRecord reads the next non-empty record. It returns io.EOF at the end
// of input.
func (bp *BaseParser) ReadRecord(reader *csv.Reader, parseCtx *ParseContext) ([]string, error) {
	for {
		if parseCtx.IsCancelled() {
			return nil, errors.InternalError(errors.CodeCancelled, "statement parsing", parseCtx.ctx.Err())
		}

		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, err
			}
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				parseCtx.LineNumber = parseCtx.LineOffset + csvErr.Line
			}
			return nil, errors.ParseError(errors.CodeInvalidFormat, parseCtx.Source, parseCtx.LineNumber, "", "", err)
		}

		line, _ := reader.FieldPos(0)
		parseCtx.LineNumber = parseCtx.LineOffset + line

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}

		if bp.config.MaxFieldSize > 0 {
			for i, field := range record {
				if len(field) > bp.config.MaxFieldSize {
					return nil, errors.ParseError(errors.CodeInvalidData, parseCtx.Source, parseCtx.LineNumber,
						fmt.Sprintf("field_%d", i), field[:min(len(field), 50)]+"...", fmt.Errorf("field size limit exceeded"))
				}
			}
		}

		parseCtx.RecordCount++
		return record, nil
	}
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// GetFieldValue returns the trimmed value of column header in record. The
// second result is false when the column is unknown or missing from the row.
func (bp *BaseParser) GetFieldValue(record []string, parseCtx *ParseContext, header string) (string, bool) {
	index := parseCtx.GetColumnIndex(header)
	if index == -1 || index >= len(record) {
		return "", false
	}
	return strings.TrimSpace(record[index]), true
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	TotalLines    int `json:"totalLines"`
	RecordsParsed int `json:"recordsParsed"`
	RecordsValid  int `json:"recordsValid"`
	Rejected      int `json:"rejected"`
	Warnings      int `json:"warnings"`
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid, %d rejected, %d warnings)",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.Rejected, ps.Warnings)
}

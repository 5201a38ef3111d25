package parsers

import (
	"context"
	"io"
	"strings"

	"statement-engine/internal/models"
	"statement-engine/pkg/errors"
	"statement-engine/pkg/logger"
)

// ImportOptions declares what the caller already knows about an export.
// Zero values ask the parser to detect or suggest.
type ImportOptions struct {
	Source          string        `json:"source"`
	Encoding        string        `json:"encoding,omitempty"`
	Delimiter       rune          `json:"delimiter,omitempty"`
	Profile         string        `json:"profile,omitempty"`
	Mapping         ColumnMapping `json:"mapping,omitempty"`
	RequiredFields  []string      `json:"requiredFields,omitempty"`
	DefaultCurrency string        `json:"defaultCurrency,omitempty"`
}

// ParseResult is the outcome of parsing one export
type ParseResult struct {
	Format      *Format                 `json:"format"`
	Profile     string                  `json:"profile,omitempty"`
	Mapping     ColumnMapping           `json:"mapping"`
	Suggestions Suggestions             `json:"suggestions,omitempty"`
	Rows        []models.NormalizedRow  `json:"rows"`
	RowErrors   []*errors.RowError      `json:"rowErrors,omitempty"`
	Stats       *ParseStats             `json:"stats"`
	Progress    logger.ProgressStats    `json:"-"`
}

// StatementParser parses bank statement exports into normalized rows
type StatementParser struct {
	*BaseParser
	logger logger.Logger
}

// NewStatementParser creates a statement parser
func NewStatementParser(config *ParseConfig) *StatementParser {
	base := NewBaseParser(config)
	return &StatementParser{
		BaseParser: base,
		logger:     logger.GetGlobalLogger().WithComponent("statement_parser"),
	}
}

// Inspect detects the format of data and suggests a mapping without parsing
// any rows
func (sp *StatementParser) Inspect(data []byte, opts ImportOptions) (*Format, Suggestions, *BankProfile, error) {
	format, _, err := sp.resolveFormat(data, opts)
	if err != nil {
		return nil, nil, nil, err
	}
	return format, SuggestMappings(format.Headers), DetectProfile(format.Headers), nil
}

func (sp *StatementParser) resolveFormat(data []byte, opts ImportOptions) (*Format, string, error) {
	profile := GetProfile(opts.Profile)
	if opts.Profile != "" && profile == nil {
		return nil, "", errors.ConfigurationError(errors.CodeInvalidConfig, "profile", opts.Profile, nil).
			WithSuggestion("use one of: dkb, ing, n26, sparkasse")
	}

	encodingName := opts.Encoding
	if encodingName == "" && profile != nil && DetectEncoding(data) != "utf-8" {
		encodingName = profile.Encoding
	}
	if encodingName == "" {
		encodingName = DetectEncoding(data)
	}

	text, err := Decode(data, encodingName)
	if err != nil {
		return nil, "", errors.WrapIfNeeded(err, errors.CategoryParse, errors.CodeEncodingError, "decode failed").
			WithContext("source", opts.Source)
	}

	sniff := text
	if len(sniff) > SniffBytes {
		sniff = sniff[:SniffBytes]
	}

	delimiter := opts.Delimiter
	if delimiter == 0 && profile != nil {
		delimiter = profile.Delimiter
	}
	if delimiter == 0 {
		delimiter = detectDelimiterText(sniff)
	}

	format := &Format{Encoding: encodingName, Delimiter: delimiter}
	format.SkipLines, format.Headers = locateHeader(sniff, delimiter)
	return format, text, nil
}

// Parse runs format detection, header mapping and value parsing over data.
// Mapping problems fail the whole import; problems of individual rows are
// collected in the result.
func (sp *StatementParser) Parse(ctx context.Context, data []byte, opts ImportOptions) (*ParseResult, error) {
	if opts.Source == "" {
		opts.Source = "input"
	}
	log := sp.logger.WithField("source", opts.Source)

	format, text, err := sp.resolveFormat(data, opts)
	if err != nil {
		return nil, err
	}
	log.WithFields(logger.Fields{
		"encoding":   format.Encoding,
		"delimiter":  format.DelimiterName(),
		"skip_lines": format.SkipLines,
	}).Debug("Resolved statement format")

	body := dropLines(text, format.SkipLines)
	reader := sp.NewReader(strings.NewReader(body), format.Delimiter)
	parseCtx := NewParseContext(ctx, opts.Source, format.SkipLines)
	if err := sp.ReadHeaders(reader, parseCtx); err != nil {
		return nil, err
	}
	format.Headers = parseCtx.Headers

	result := &ParseResult{Format: format, Stats: &ParseStats{}}

	mapping := opts.Mapping
	switch {
	case mapping != nil:
	case GetProfile(opts.Profile) != nil:
		mapping = GetProfile(opts.Profile).Mapping
		result.Profile = opts.Profile
	case DetectProfile(parseCtx.Headers) != nil:
		profile := DetectProfile(parseCtx.Headers)
		mapping = profile.Mapping
		result.Profile = profile.Name
	default:
		result.Suggestions = SuggestMappings(parseCtx.Headers)
		mapping = result.Suggestions.ToMapping()
	}
	result.Mapping = mapping

	required := opts.RequiredFields
	if required == nil {
		required = DefaultRequiredFields
	}
	if ok, problems := ValidateMapping(mapping, parseCtx.Headers, required); !ok {
		return result, errors.ValidationError(errors.CodeInvalidMapping, "mapping", strings.Join(problems, "; "), nil).
			WithContext("problems", problems).
			WithContext("headers", parseCtx.Headers)
	}

	currency := opts.DefaultCurrency
	if currency == "" && result.Profile != "" {
		currency = GetProfile(result.Profile).Currency
	}

	collector := errors.NewRowErrorCollector(sp.config.MaxRowErrors)
	tracker := logger.NewProgressTracker(logger.ProgressConfig{Operation: "parse " + opts.Source, Logger: sp.logger})

	for {
		record, err := sp.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return result, err
		}
		result.Stats.RecordsParsed++
		tracker.Add(1)

		row, rowErrs := sp.normalizeRecord(record, parseCtx, mapping, currency)
		keepGoing := true
		for _, rowErr := range rowErrs {
			keepGoing = collector.Add(rowErr) && keepGoing
		}
		if row != nil {
			result.Rows = append(result.Rows, *row)
		}
		if !keepGoing {
			return result, errors.ParseError(errors.CodeInvalidData, opts.Source, parseCtx.LineNumber, "", "",
				nil).WithSuggestion("too many invalid rows, check the column mapping and the file format")
		}
	}

	result.RowErrors = collector.Errors()
	result.Stats.TotalLines = parseCtx.LineNumber
	result.Stats.RecordsValid = len(result.Rows)
	result.Stats.Rejected = collector.Rejected()
	result.Stats.Warnings = len(result.RowErrors) - result.Stats.Rejected
	result.Progress = tracker.Complete()

	log.WithField("stats", result.Stats.String()).Debug("Parsed statement")
	return result, nil
}

// normalizeRecord converts one CSV record into a NormalizedRow. A nil row
// means the record was rejected.
func (sp *StatementParser) normalizeRecord(record []string, parseCtx *ParseContext, mapping ColumnMapping, currency string) (*models.NormalizedRow, []*errors.RowError) {
	var problems []*errors.RowError
	line := parseCtx.LineNumber

	dateHeader := mapping[models.FieldDate]
	rawDate, ok := sp.GetFieldValue(record, parseCtx, dateHeader)
	if !ok {
		return nil, []*errors.RowError{errors.ShortRow(parseCtx.Source, line, len(record), parseCtx.GetColumnIndex(dateHeader)+1)}
	}
	date, ok := ParseDate(rawDate)
	if !ok {
		return nil, []*errors.RowError{errors.InvalidDateRow(parseCtx.Source, line, dateHeader, rawDate)}
	}

	amountHeader := mapping[models.FieldAmount]
	rawAmount, _ := sp.GetFieldValue(record, parseCtx, amountHeader)
	amount := ParseAmount(rawAmount)
	if amount.IsZero() && !looksLikeZero(rawAmount) {
		problems = append(problems, errors.InvalidAmountRow(parseCtx.Source, line, amountHeader, rawAmount))
	}

	row := &models.NormalizedRow{
		Line:   line,
		Date:   FormatDate(date),
		Amount: FormatAmount(amount),
		Raw:    make(map[string]string, len(parseCtx.Headers)),
	}
	if header, mapped := mapping[models.FieldRecipient]; mapped {
		value, _ := sp.GetFieldValue(record, parseCtx, header)
		row.Recipient = CleanText(value)
	}
	if header, mapped := mapping[models.FieldPurpose]; mapped {
		value, _ := sp.GetFieldValue(record, parseCtx, header)
		row.Purpose = CleanText(value)
	}
	row.Currency = strings.ToUpper(currency)
	if header, mapped := mapping[models.FieldCurrency]; mapped {
		if value, _ := sp.GetFieldValue(record, parseCtx, header); value != "" {
			row.Currency = strings.ToUpper(value)
		}
	}

	for i, header := range parseCtx.Headers {
		if i < len(record) {
			if _, dup := row.Raw[header]; !dup {
				row.Raw[header] = record[i]
			}
		}
	}

	return row, problems
}

// looksLikeZero reports whether text spells an actual zero amount
func looksLikeZero(text string) bool {
	return strings.ContainsAny(text, "0") && !strings.ContainsAny(text, "123456789")
}

// dropLines removes the first n physical lines of text
func dropLines(text string, n int) string {
	for i := 0; i < n; i++ {
		idx := strings.IndexByte(text, '\n')
		if idx < 0 {
			return ""
		}
		text = text[idx+1:]
	}
	return text
}

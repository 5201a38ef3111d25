package pipeline

import (
	"context"
	"os"

	"github.com/sourcegraph/conc/pool"

	"statement-engine/internal/dedup"
	"statement-engine/internal/models"
	"statement-engine/internal/parsers"
	"statement-engine/internal/store"
	"statement-engine/pkg/errors"
	"statement-engine/pkg/logger"
)

// ImportRequest describes one statement export to import
type ImportRequest struct {
	Source      string                `json:"source"`
	AccountID   int64                 `json:"accountId,omitempty"`
	Data        []byte                `json:"-"`
	Options     parsers.ImportOptions `json:"options"`
	KnownHashes map[string]struct{}   `json:"-"`
}

// ImportStats summarizes one import
type ImportStats struct {
	RowsRead   int `json:"rowsRead"`
	Imported   int `json:"imported"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
	Warnings   int `json:"warnings"`
}

// ImportResult is the outcome of importing one export
type ImportResult struct {
	Source      string                 `json:"source"`
	AccountID   int64                  `json:"accountId,omitempty"`
	Format      *parsers.Format        `json:"format"`
	Profile     string                 `json:"profile,omitempty"`
	Mapping     parsers.ColumnMapping  `json:"mapping"`
	Suggestions parsers.Suggestions    `json:"suggestions,omitempty"`
	Rows        []models.NormalizedRow `json:"rows"`
	Duplicates  []models.NormalizedRow `json:"duplicates,omitempty"`
	RowErrors   []*errors.RowError     `json:"rowErrors,omitempty"`
	NewHashes   map[string]struct{}    `json:"-"`
	Stats       ImportStats            `json:"stats"`
}

// Importer parses statement exports and filters rows already imported
type Importer struct {
	config *Config
	parser *parsers.StatementParser
	logger logger.Logger
}

// NewImporter creates an importer. A nil config uses DefaultConfig.
func NewImporter(config *Config) *Importer {
	config = config.withDefaults()
	return &Importer{
		config: config,
		parser: parsers.NewStatementParser(config.Parse),
		logger: logger.GetGlobalLogger().WithComponent("importer"),
	}
}

// ReadStatement reads an export from disk
func ReadStatement(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		code := errors.CodeFilePermission
		if os.IsNotExist(err) {
			code = errors.CodeFileNotFound
		}
		return nil, errors.FileError(code, path, err)
	}
	return data, nil
}

// Import parses one export and removes rows whose fingerprint is already in
// req.KnownHashes or repeats earlier in the same export. KnownHashes is not
// modified.
func (im *Importer) Import(ctx context.Context, req *ImportRequest) (*ImportResult, error) {
	parsed, err := im.parse(ctx, req)
	if err != nil {
		return nil, err
	}
	return im.filter(req, parsed, req.KnownHashes), nil
}

func (im *Importer) parse(ctx context.Context, req *ImportRequest) (*parsers.ParseResult, error) {
	if req == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "import_request", nil, nil)
	}
	if len(req.Data) == 0 {
		return nil, errors.ValidationError(errors.CodeMissingField, "data", req.Source, nil).
			WithSuggestion("the export is empty")
	}

	opts := req.Options
	if opts.Source == "" {
		opts.Source = req.Source
	}
	op := logger.NewOperationLogger("import", im.logger).WithField("source", opts.Source)

	parsed, err := im.parser.Parse(ctx, req.Data, opts)
	if err != nil {
		op.Error(err, "Import failed")
		return nil, err
	}
	op.Success("Parsed export")
	return parsed, nil
}

func (im *Importer) filter(req *ImportRequest, parsed *parsers.ParseResult, known map[string]struct{}) *ImportResult {
	filtered := dedup.Filter(parsed.Rows, known)

	result := &ImportResult{
		Source:      req.Source,
		AccountID:   req.AccountID,
		Format:      parsed.Format,
		Profile:     parsed.Profile,
		Mapping:     parsed.Mapping,
		Suggestions: parsed.Suggestions,
		Rows:        filtered.Kept,
		Duplicates:  filtered.Duplicates,
		RowErrors:   parsed.RowErrors,
		NewHashes:   filtered.NewHashes,
		Stats: ImportStats{
			RowsRead:   parsed.Stats.RecordsParsed,
			Imported:   len(filtered.Kept),
			Duplicates: len(filtered.Duplicates),
			Rejected:   parsed.Stats.Rejected,
			Warnings:   parsed.Stats.Warnings,
		},
	}

	im.logger.WithFields(logger.Fields{
		"source":     req.Source,
		"rows_read":  result.Stats.RowsRead,
		"imported":   result.Stats.Imported,
		"duplicates": result.Stats.Duplicates,
		"rejected":   result.Stats.Rejected,
	}).Info("Import completed")
	return result
}

type parseOutcome struct {
	index  int
	parsed *parsers.ParseResult
	err    error
}

// ImportFiles imports several exports. Parsing runs concurrently, bounded by
// MaxConcurrentFiles; deduplication then runs in request order so a row
// repeated across exports of the same account is kept only once. A failing
// export does not stop the others; its error is returned in an ErrorSummary
// and its result slot is nil.
func (im *Importer) ImportFiles(ctx context.Context, reqs []*ImportRequest) ([]*ImportResult, error) {
	p := pool.NewWithResults[parseOutcome]().WithMaxGoroutines(im.config.MaxConcurrentFiles)
	for i, req := range reqs {
		i, req := i, req
		p.Go(func() parseOutcome {
			parsed, err := im.parse(ctx, req)
			return parseOutcome{index: i, parsed: parsed, err: err}
		})
	}
	outcomes := make([]parseOutcome, len(reqs))
	for _, o := range p.Wait() {
		outcomes[o.index] = o
	}

	seen := make(map[int64]map[string]struct{})
	results := make([]*ImportResult, len(reqs))
	var failures []*errors.EngineError
	for i, req := range reqs {
		if outcomes[i].err != nil {
			failures = append(failures, errors.WrapIfNeeded(outcomes[i].err, errors.CategoryInternal,
				errors.CodeUnexpectedError, "import failed").WithContext("source", req.Source))
			continue
		}
		known, ok := seen[req.AccountID]
		if !ok {
			known = dedup.Merge(nil, req.KnownHashes)
			seen[req.AccountID] = known
		}
		results[i] = im.filter(req, outcomes[i].parsed, known)
		dedup.Merge(known, results[i].NewHashes)
	}

	if len(failures) > 0 {
		return results, errors.NewErrorSummary(failures)
	}
	return results, nil
}

// ImportInto imports one export for accountID, using the repository for known
// hashes and persisting the kept rows
func (im *Importer) ImportInto(ctx context.Context, repo store.Repository, accountID int64, req *ImportRequest) (*ImportResult, []*models.TransactionRecord, error) {
	known, err := repo.KnownHashes(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	withKnown := *req
	withKnown.AccountID = accountID
	withKnown.KnownHashes = known

	result, err := im.Import(ctx, &withKnown)
	if err != nil {
		return nil, nil, err
	}
	saved, err := repo.SaveTransactions(ctx, accountID, result.Rows)
	if err != nil {
		return result, saved, err
	}
	return result, saved, nil
}

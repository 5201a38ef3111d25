package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"statement-engine/cmd/ledger/config"
	"statement-engine/internal/parsers"
	"statement-engine/internal/pipeline"
	"statement-engine/internal/reporter"
	"statement-engine/pkg/errors"
)

// Flags for the import and suggest-mapping commands
var (
	importAccount int64
	importDryRun  bool
	outputFile    string
)

// flag name -> viper key, bound when the command runs so that commands
// sharing a flag name do not overwrite each other's binding
var importBindings = map[string]string{
	"profile":        config.KeyImportProfile,
	"mapping":        config.KeyImportMapping,
	"delimiter":      config.KeyImportDelimiter,
	"encoding":       config.KeyImportEncoding,
	"currency":       config.KeyImportCurrency,
	"max-row-errors": config.KeyParseMaxRowErrors,
}

var outputBindings = map[string]string{
	"output-format": config.KeyReportFormat,
	"include-rows":  config.KeyReportIncludeRows,
	"max-items":     config.KeyReportMaxItems,
	"no-color":      "report.no_color",
}

var importCmd = &cobra.Command{
	Use:   "import [flags] FILE...",
	Short: "Import bank statement exports into an account",
	Long: `Import parses one or more CSV exports of the same account, normalizes
dates, amounts and text, and stores every row not imported before.

Encoding, delimiter, header row and column mapping are detected
automatically; use --profile or --mapping when detection is not enough.

Examples:
  ledger import --account 1 dkb-2025-01.csv dkb-2025-02.csv
  ledger import --account 2 --profile ing ing-export.csv
  ledger import --account 3 --mapping "date=Datum,amount=Betrag,recipient=Empfänger" export.csv
  ledger import --account 1 --dry-run --output-format json export.csv`,
	Args:    cobra.MinimumNArgs(1),
	PreRunE: validateImportFlags,
	RunE:    runImport,
}

var suggestMappingCmd = &cobra.Command{
	Use:     "suggest-mapping [flags] FILE...",
	Aliases: []string{"inspect"},
	Short:   "Detect the format of an export and suggest a column mapping",
	Long: `Suggest-mapping reads the header of each export, reports the detected
encoding, delimiter and bank profile, and suggests which column holds the
date, amount, recipient, purpose and currency. Nothing is imported.

Examples:
  ledger suggest-mapping export.csv
  ledger suggest-mapping --output-format csv export.csv`,
	Args:    cobra.MinimumNArgs(1),
	PreRunE: validateSuggestFlags,
	RunE:    runSuggestMapping,
}

func init() {
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(suggestMappingCmd)

	importCmd.Flags().Int64VarP(&importAccount, "account", "a", 0, "account id the exports belong to (required)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "parse and deduplicate without storing")
	importCmd.Flags().Int("max-row-errors", 0, "stop collecting row errors after this many (0 = unlimited)")
	addImportFlags(importCmd)
	addOutputFlags(importCmd)
	importCmd.MarkFlagRequired("account")

	addImportFlags(suggestMappingCmd)
	addOutputFlags(suggestMappingCmd)
}

func addImportFlags(cmd *cobra.Command) {
	cmd.Flags().String("profile", "", "bank profile: "+joinProfiles())
	cmd.Flags().String("mapping", "", `explicit column mapping, e.g. "date=Buchungstag,amount=Betrag"`)
	cmd.Flags().String("delimiter", "auto", "field delimiter: auto, comma, semicolon, tab, pipe or a single character")
	cmd.Flags().String("encoding", "", "text encoding, detected when empty (utf-8, windows-1252, iso-8859-1, utf-16)")
	cmd.Flags().String("currency", "", "currency for rows without a currency column, e.g. EUR")
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	cmd.Flags().StringP("output-format", "f", "console", "output format: console, json, csv")
	cmd.Flags().Bool("include-rows", false, "list imported rows in the report")
	cmd.Flags().Int("max-items", 20, "maximum items per console section (0 = unlimited)")
	cmd.Flags().Bool("no-color", false, "disable colored console output")
}

func joinProfiles() string {
	return strings.Join(config.ProfileNames(), ", ")
}

func bindFlags(cmd *cobra.Command, bindings ...map[string]string) error {
	for _, m := range bindings {
		for name, key := range m {
			flag := cmd.Flags().Lookup(name)
			if flag == nil {
				continue
			}
			if err := viper.BindPFlag(key, flag); err != nil {
				return errors.InternalError(errors.CodeUnexpectedError, "bind flag "+name, err)
			}
		}
	}
	if viper.GetBool("report.no_color") {
		viper.Set(config.KeyReportColors, false)
	}
	return nil
}

func validateImportFlags(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, importBindings, outputBindings); err != nil {
		return err
	}

	if importAccount <= 0 {
		return errors.ValidationError(errors.CodeInvalidData, "account", importAccount, nil).
			WithSuggestion("pass --account with a positive account id")
	}
	for i, path := range args {
		if err := validateFileExists(path, fmt.Sprintf("statement file %d", i+1)); err != nil {
			return err
		}
	}
	if err := validateOutputFile(outputFile); err != nil {
		return err
	}
	return config.ValidateConfig(viper.GetViper())
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	pipelineConfig, err := config.CreatePipelineConfig(viper.GetViper())
	if err != nil {
		return err
	}
	opts, err := config.CreateImportOptions(viper.GetViper())
	if err != nil {
		return err
	}

	repo, err := openRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	known, err := repo.KnownHashes(ctx, importAccount)
	if err != nil {
		return err
	}

	reqs := make([]*pipeline.ImportRequest, 0, len(args))
	for _, path := range args {
		data, err := pipeline.ReadStatement(path)
		if err != nil {
			return err
		}
		reqs = append(reqs, &pipeline.ImportRequest{
			Source:      path,
			AccountID:   importAccount,
			Data:        data,
			Options:     opts,
			KnownHashes: known,
		})
	}

	importer := pipeline.NewImporter(pipelineConfig)
	results, importErr := importer.ImportFiles(ctx, reqs)

	var imported []*pipeline.ImportResult
	stored := 0
	for _, result := range results {
		if result == nil {
			continue
		}
		imported = append(imported, result)
		if importDryRun {
			continue
		}
		saved, err := repo.SaveTransactions(ctx, importAccount, result.Rows)
		if err != nil {
			return err
		}
		stored += len(saved)
	}

	if len(imported) > 0 {
		if err := writeReport(imported, outputFile); err != nil {
			return err
		}
	}

	if verbose {
		if importDryRun {
			fmt.Fprintf(os.Stderr, "Dry run: nothing stored.\n")
		} else {
			fmt.Fprintf(os.Stderr, "Stored %d transactions in account %d.\n", stored, importAccount)
		}
	}
	return importErr
}

func validateSuggestFlags(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, importBindings, outputBindings); err != nil {
		return err
	}
	for i, path := range args {
		if err := validateFileExists(path, fmt.Sprintf("statement file %d", i+1)); err != nil {
			return err
		}
	}
	if err := validateOutputFile(outputFile); err != nil {
		return err
	}
	return config.ValidateConfig(viper.GetViper())
}

func runSuggestMapping(cmd *cobra.Command, args []string) error {
	parseConfig, err := config.CreateParseConfig(viper.GetViper())
	if err != nil {
		return err
	}
	opts, err := config.CreateImportOptions(viper.GetViper())
	if err != nil {
		return err
	}

	parser := parsers.NewStatementParser(parseConfig)
	for _, path := range args {
		data, err := pipeline.ReadStatement(path)
		if err != nil {
			return err
		}
		report, err := buildMappingReport(parser, path, data, opts)
		if err != nil {
			return err
		}
		if err := writeReport(report, outputFile); err != nil {
			return err
		}
	}
	return nil
}

// buildMappingReport inspects data and checks the mapping an import would
// use: the explicit mapping, else the detected profile's, else the
// suggestions
func buildMappingReport(parser *parsers.StatementParser, source string, data []byte, opts parsers.ImportOptions) (*reporter.MappingReport, error) {
	opts.Source = source
	format, suggestions, profile, err := parser.Inspect(data, opts)
	if err != nil {
		return nil, err
	}

	report := &reporter.MappingReport{
		Source:      source,
		Format:      format,
		Suggestions: suggestions,
	}

	mapping := suggestions.ToMapping()
	if profile != nil {
		report.Profile = profile.Name
		mapping = profile.Mapping
	}
	if len(opts.Mapping) > 0 {
		mapping = opts.Mapping
	}

	if ok, problems := parsers.ValidateMapping(mapping, format.Headers, parsers.DefaultRequiredFields); !ok {
		report.Problems = problems
	}
	return report, nil
}

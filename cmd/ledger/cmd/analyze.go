package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"statement-engine/cmd/ledger/config"
	"statement-engine/internal/budget"
	"statement-engine/internal/categorizer"
	"statement-engine/internal/models"
	"statement-engine/internal/pipeline"
	"statement-engine/internal/store"
	"statement-engine/pkg/errors"
)

// analysisKind selects which steps an analysis command runs and what it
// reports
type analysisKind string

const (
	kindCategorize analysisKind = "categorize"
	kindTransfers  analysisKind = "transfers"
	kindRecurring  analysisKind = "recurring"
	kindBudget     analysisKind = "budget"
)

// analysisOptions are the flags shared by the analysis commands
type analysisOptions struct {
	statements   []string
	rulesFile    string
	budgetsFile  string
	today        string
	commit       bool
	showProgress bool
}

var analysis analysisOptions

var transferBindings = map[string]string{
	"preset":         config.KeyTransferPreset,
	"window-days":    config.KeyTransferWindowDays,
	"min-confidence": config.KeyTransferMinConfidence,
	"same-currency":  config.KeyTransferSameCurrency,
}

var recurringBindings = map[string]string{
	"min-occurrences":  config.KeyRecurringMinOccurrences,
	"tolerance-days":   config.KeyRecurringToleranceDays,
	"amount-tolerance": config.KeyRecurringAmountTol,
	"active-days":      config.KeyRecurringActivityDays,
}

var categorizeBindings = map[string]string{
	"overwrite": config.KeyOverwriteCategories,
}

var categorizeCmd = &cobra.Command{
	Use:   "categorize",
	Short: "Assign categories from ordered substring rules",
	Long: `Categorize matches the recipient and purpose of every transaction against
the rules of a YAML rule file. The first rule with a matching pattern wins.
Transactions that already have a category keep it unless --overwrite is set.

Examples:
  ledger categorize --statement 1:giro.csv --rules rules.yaml
  ledger categorize --store mysql --rules rules.yaml --overwrite --commit`,
	PreRunE: validateAnalysisFlags(kindCategorize),
	RunE:    runAnalysisCommand(kindCategorize),
}

var transfersCmd = &cobra.Command{
	Use:   "transfers",
	Short: "Detect transfers between own accounts",
	Long: `Transfers pairs outflows with inflows of the same amount in another
account a few days apart. Every transaction joins at most one transfer;
transactions already linked are skipped.

Examples:
  ledger transfers --statement 1:giro.csv --statement 2:savings.csv
  ledger transfers --statement 1:giro.csv --statement 2:savings.csv --preset relaxed
  ledger transfers --store mysql --window-days 5 --min-confidence 0.7 --commit`,
	PreRunE: validateAnalysisFlags(kindTransfers),
	RunE:    runAnalysisCommand(kindTransfers),
}

var recurringCmd = &cobra.Command{
	Use:   "recurring",
	Short: "Detect recurring payments",
	Long: `Recurring groups payments by recipient and reports series that repeat at
a weekly, biweekly, monthly, quarterly or yearly interval with a stable
amount.

Examples:
  ledger recurring --statement 1:giro.csv
  ledger recurring --statement 1:giro.csv --min-occurrences 4 --amount-tolerance 2.50`,
	PreRunE: validateAnalysisFlags(kindRecurring),
	RunE:    runAnalysisCommand(kindRecurring),
}

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Report spending progress of category budgets",
	Long: `Budget sums the outflows of each budget's category inside its window and
projects the total to the end of the window. Transfers between own accounts
are not counted as spending.

Examples:
  ledger budget --statement 1:giro.csv --rules rules.yaml --budgets budgets.yaml
  ledger budget --store mysql --budgets budgets.yaml --today 2025-01-15`,
	PreRunE: validateAnalysisFlags(kindBudget),
	RunE:    runAnalysisCommand(kindBudget),
}

func init() {
	for _, c := range []*cobra.Command{categorizeCmd, transfersCmd, recurringCmd, budgetCmd} {
		rootCmd.AddCommand(c)
		c.Flags().StringArrayVarP(&analysis.statements, "statement", "s", nil, "statement to import first, as ACCOUNT:PATH (repeatable)")
		c.Flags().StringVar(&analysis.rulesFile, "rules", "", "YAML category rule file")
		c.Flags().StringVar(&analysis.today, "today", "", "reference date YYYY-MM-DD (default: today)")
		c.Flags().BoolVar(&analysis.commit, "commit", false, "store categories and transfer links")
		c.Flags().BoolVar(&analysis.showProgress, "progress", false, "show progress indicators")
		addImportFlags(c)
		addOutputFlags(c)
	}

	categorizeCmd.Flags().Bool("overwrite", false, "replace categories that are already set")
	categorizeCmd.MarkFlagRequired("rules")

	transfersCmd.Flags().String("preset", "default", "matching preset: default, strict, relaxed")
	transfersCmd.Flags().Int("window-days", 3, "largest date difference between the two legs")
	transfersCmd.Flags().Float64("min-confidence", 0.5, "confidence floor for detected transfers")
	transfersCmd.Flags().Bool("same-currency", true, "skip pairs whose known currencies differ")

	recurringCmd.Flags().Int("min-occurrences", 3, "smallest series length reported")
	recurringCmd.Flags().Int("tolerance-days", 3, "allowed distance from a canonical interval in days")
	recurringCmd.Flags().String("amount-tolerance", "5.00", "allowed distance from the mean amount")
	recurringCmd.Flags().Int("active-days", 45, "days after the last payment a series stays active")

	budgetCmd.Flags().StringVar(&analysis.budgetsFile, "budgets", "", "YAML budget file (required)")
	budgetCmd.MarkFlagRequired("budgets")
}

func validateAnalysisFlags(kind analysisKind) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := bindFlags(cmd, importBindings, outputBindings, transferBindings, recurringBindings, categorizeBindings); err != nil {
			return err
		}

		if len(analysis.statements) == 0 && viper.GetString("store.driver") != "mysql" {
			return errors.ValidationError(errors.CodeMissingField, "statement", "", nil).
				WithSuggestion("pass --statement ACCOUNT:PATH or analyze a persistent store with --store mysql")
		}
		if _, err := parseStatementArgs(analysis.statements); err != nil {
			return err
		}
		if analysis.rulesFile != "" {
			if err := validateFileExists(analysis.rulesFile, "rule file"); err != nil {
				return err
			}
		}
		if kind == kindBudget {
			if err := validateFileExists(analysis.budgetsFile, "budget file"); err != nil {
				return err
			}
		}
		if _, err := parseToday(analysis.today); err != nil {
			return err
		}
		if err := validateOutputFile(outputFile); err != nil {
			return err
		}
		return config.ValidateConfig(viper.GetViper())
	}
}

// parseToday reads --today; empty means the current date
func parseToday(s string) (time.Time, error) {
	if s == "" {
		return models.DateOnly(time.Now()), nil
	}
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return time.Time{}, errors.ValidationError(errors.CodeInvalidDate, "today", s, err).
			WithSuggestion("use YYYY-MM-DD")
	}
	return t, nil
}

func runAnalysisCommand(kind analysisKind) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		result, err := runAnalysis(ctx, kind, analysis)
		if err != nil {
			return err
		}

		if kind == kindBudget {
			return writeReport(result.Budgets, outputFile)
		}
		return writeReport(result, outputFile)
	}
}

// runAnalysis imports the given statements, snapshots the store and runs
// the steps kind needs
func runAnalysis(ctx context.Context, kind analysisKind, opts analysisOptions) (*pipeline.AnalysisResult, error) {
	pipelineConfig, err := config.CreatePipelineConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	pipelineConfig.SkipTransfers = kind != kindTransfers && kind != kindBudget
	pipelineConfig.SkipRecurring = kind != kindRecurring

	statements, err := parseStatementArgs(opts.statements)
	if err != nil {
		return nil, err
	}
	today, err := parseToday(opts.today)
	if err != nil {
		return nil, err
	}

	repo, err := openRepository(ctx)
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	if _, err := importStatements(ctx, repo, pipeline.NewImporter(pipelineConfig), statements); err != nil {
		return nil, err
	}

	records, links, err := store.Snapshot(ctx, repo)
	if err != nil {
		return nil, err
	}
	snap := &pipeline.Snapshot{
		Records:       records,
		ExistingLinks: links,
		Today:         today,
	}
	if opts.rulesFile != "" {
		if snap.Rules, err = categorizer.LoadRules(opts.rulesFile); err != nil {
			return nil, err
		}
	}
	if kind == kindBudget {
		if snap.Budgets, err = budget.LoadBudgets(opts.budgetsFile); err != nil {
			return nil, err
		}
	}

	analyzer := pipeline.NewAnalyzer(pipelineConfig)
	if opts.showProgress {
		analyzer.AddProgressCallback(progressPrinter)
	}
	result, err := analyzer.Run(ctx, snap)
	if err != nil {
		return nil, err
	}

	if opts.commit {
		stats, err := pipeline.Commit(ctx, repo, result)
		if err != nil {
			return nil, err
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "Committed %d categories and %d transfers.\n", stats.Categorized, stats.Transfers)
		}
	}
	return result, nil
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"statement-engine/cmd/ledger/config"
	"statement-engine/internal/pipeline"
	"statement-engine/internal/reporter"
	"statement-engine/internal/store"
	"statement-engine/pkg/errors"
	"statement-engine/pkg/logger"
)

// statementArg is one --statement value: an export and the account it
// belongs to
type statementArg struct {
	AccountID int64
	Path      string
}

// parseStatementArg reads "ACCOUNT:PATH"
func parseStatementArg(s string) (statementArg, error) {
	account, path, ok := strings.Cut(s, ":")
	if !ok || strings.TrimSpace(path) == "" {
		return statementArg{}, errors.ValidationError(errors.CodeInvalidData, "statement", s, nil).
			WithSuggestion("pass statements as ACCOUNT:PATH, e.g. 1:giro.csv")
	}
	id, err := strconv.ParseInt(strings.TrimSpace(account), 10, 64)
	if err != nil || id <= 0 {
		return statementArg{}, errors.ValidationError(errors.CodeInvalidData, "account", account, err).
			WithSuggestion("account ids are positive integers")
	}
	return statementArg{AccountID: id, Path: strings.TrimSpace(path)}, nil
}

func parseStatementArgs(values []string) ([]statementArg, error) {
	args := make([]statementArg, 0, len(values))
	for _, v := range values {
		arg, err := parseStatementArg(v)
		if err != nil {
			return nil, err
		}
		if err := validateFileExists(arg.Path, fmt.Sprintf("statement for account %d", arg.AccountID)); err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return args, nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.ValidationError(errors.CodeMissingField, description, "", nil)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err).WithContext("file", description)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err).WithContext("file", description)
	}
	if info.IsDir() {
		return errors.FileError(errors.CodeInvalidFormat, filePath, fmt.Errorf("%s is a directory, expected a file", description))
	}

	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err).WithContext("file", description)
	}
	file.Close()

	return nil
}

func validateOutputFile(outputFile string) error {
	if outputFile == "" {
		return nil
	}
	dir := filepath.Dir(outputFile)
	if dir == "." {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, dir, err).
			WithSuggestion("create the output directory first")
	}
	return nil
}

// openRepository opens the configured store. The memory store starts empty
// on every run.
func openRepository(ctx context.Context) (store.Repository, error) {
	switch driver := strings.ToLower(viper.GetString("store.driver")); driver {
	case "", "memory":
		return store.NewMemoryStore(), nil
	case "mysql":
		db, err := store.OpenFromEnv(ctx, envFile)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "store.driver", driver, nil).
			WithSuggestion("use one of: memory, mysql")
	}
}

// importStatements imports every statement into repo, each with its
// account's known hashes
func importStatements(ctx context.Context, repo store.Repository, importer *pipeline.Importer, statements []statementArg) ([]*pipeline.ImportResult, error) {
	opts, err := config.CreateImportOptions(viper.GetViper())
	if err != nil {
		return nil, err
	}

	results := make([]*pipeline.ImportResult, 0, len(statements))
	for _, st := range statements {
		data, err := pipeline.ReadStatement(st.Path)
		if err != nil {
			return results, err
		}
		req := &pipeline.ImportRequest{Source: st.Path, Data: data, Options: opts}
		result, _, err := importer.ImportInto(ctx, repo, st.AccountID, req)
		if err != nil {
			return results, err
		}
		results = append(results, result)

		if verbose {
			fmt.Fprintf(os.Stderr, "Imported %s into account %d: %d new, %d duplicates, %d rejected\n",
				st.Path, st.AccountID, result.Stats.Imported, result.Stats.Duplicates, result.Stats.Rejected)
		}
	}
	return results, nil
}

// writeReport renders result to outputFile, or stdout when it is empty
func writeReport(result interface{}, outputFile string) error {
	reportConfig, err := config.CreateReportConfig(viper.GetViper())
	if err != nil {
		return err
	}
	generator, err := reporter.NewSafeReportGenerator(reportConfig, logger.GetGlobalLogger())
	if err != nil {
		return err
	}

	var output io.Writer = os.Stdout
	if outputFile != "" {
		file, err := os.Create(outputFile)
		if err != nil {
			return errors.FileError(errors.CodeFilePermission, outputFile, err)
		}
		defer file.Close()
		output = file
	}

	return generator.GenerateReportSafely(result, output)
}

// progressPrinter writes analysis progress to stderr on one line
func progressPrinter(p pipeline.Progress) {
	fmt.Fprintf(os.Stderr, "\r[%d/%d] %s (%.1f%% complete)",
		p.CompletedSteps, p.TotalSteps, p.CurrentStep, p.PercentComplete)
	if p.CurrentStep == pipeline.StepCompleted {
		fmt.Fprintln(os.Stderr)
	}
}

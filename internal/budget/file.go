package budget

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"statement-engine/internal/models"
	"statement-engine/pkg/errors"
	"statement-engine/pkg/logger"
)

// budgetEntry keeps values as text so that dates and amounts go through the
// same parsing as statement values
type budgetEntry struct {
	CategoryID int64  `yaml:"category_id"`
	Amount     string `yaml:"amount"`
	StartDate  string `yaml:"start_date"`
	EndDate    string `yaml:"end_date"`
}

type budgetFile struct {
	Budgets []budgetEntry `yaml:"budgets"`
}

// ParseBudgets reads budgets from YAML.
//
//	budgets:
//	  - category_id: 5
//	    amount: 250.00
//	    start_date: 2025-01-01
//	    end_date: 2025-01-31
func ParseBudgets(data []byte) ([]*models.Budget, error) {
	var file budgetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, "budgets", 0, "", "", err).
			WithSuggestion("budget files need a top-level 'budgets' list")
	}

	budgets := make([]*models.Budget, 0, len(file.Budgets))
	for i, entry := range file.Budgets {
		b, err := entry.toBudget()
		if err != nil {
			if engineErr, ok := errors.AsEngineError(err); ok {
				return nil, engineErr.WithContext("index", i)
			}
			return nil, err
		}
		budgets = append(budgets, b)
	}
	return budgets, nil
}

func (e budgetEntry) toBudget() (*models.Budget, error) {
	if e.CategoryID <= 0 {
		return nil, errors.ValidationError(errors.CodeMissingField, "category_id", e.CategoryID, nil)
	}
	amount, err := decimal.NewFromString(e.Amount)
	if err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidAmount, "amount", e.Amount, err)
	}
	start, err := time.Parse(models.DateLayout, e.StartDate)
	if err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidDate, "start_date", e.StartDate, err)
	}
	end, err := time.Parse(models.DateLayout, e.EndDate)
	if err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidDate, "end_date", e.EndDate, err)
	}

	b := &models.Budget{CategoryID: e.CategoryID, Amount: amount, StartDate: start, EndDate: end}
	if err := b.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeOutOfRange, fmt.Sprintf("budget %d", e.CategoryID), e.Amount, err)
	}
	return b, nil
}

// LoadBudgets reads a YAML budget file
func LoadBudgets(path string) ([]*models.Budget, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, errors.FileError(errors.CodeFilePermission, path, err)
	}

	budgets, err := ParseBudgets(data)
	if err != nil {
		if engineErr, ok := errors.AsEngineError(err); ok {
			return nil, engineErr.WithContext("file", path)
		}
		return nil, err
	}

	logger.WithComponent("budget").WithFields(logger.Fields{
		"file":    path,
		"budgets": len(budgets),
	}).Debug("Loaded budgets")
	return budgets, nil
}

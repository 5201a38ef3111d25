package pipeline

import (
	"context"
	"strconv"
	"sync"
	"time"

	"statement-engine/internal/budget"
	"statement-engine/internal/categorizer"
	"statement-engine/internal/matcher"
	"statement-engine/internal/models"
	"statement-engine/internal/recurring"
	"statement-engine/internal/store"
	"statement-engine/pkg/errors"
	"statement-engine/pkg/logger"
)

// Analysis steps in execution order
const (
	StepCategorize = "Categorizing transactions"
	StepTransfers  = "Detecting transfers"
	StepRecurring  = "Detecting recurring payments"
	StepBudgets    = "Calculating budget progress"
	StepCompleted  = "Completed"
)

var analysisSteps = []string{StepCategorize, StepTransfers, StepRecurring, StepBudgets}

// Snapshot is the in-memory state one analysis runs over
type Snapshot struct {
	Records       []*models.TransactionRecord `json:"records"`
	Rules         []models.CategoryRule       `json:"rules,omitempty"`
	ExistingLinks []*models.TransferLink      `json:"existingLinks,omitempty"`
	Budgets       []*models.Budget            `json:"budgets,omitempty"`
	Today         time.Time                   `json:"today,omitempty"`
}

// AnalysisResult holds everything one analysis produced. Nothing is
// persisted; see Commit.
type AnalysisResult struct {
	Assignments map[int64]int64           `json:"assignments"`
	Transfers   *matcher.DetectionResult  `json:"transfers,omitempty"`
	Recurring   []*models.RecurringSeries `json:"recurring,omitempty"`
	Budgets     []models.BudgetProgress   `json:"budgets,omitempty"`
	Warnings    []string                  `json:"warnings,omitempty"`
	Duration    time.Duration             `json:"duration"`
}

// Progress tracks the progress of one analysis
type Progress struct {
	TotalSteps         int           `json:"total_steps"`
	CompletedSteps     int           `json:"completed_steps"`
	CurrentStep        string        `json:"current_step"`
	PercentComplete    float64       `json:"percent_complete"`
	StartTime          time.Time     `json:"start_time"`
	ElapsedTime        time.Duration `json:"elapsed_time"`
	EstimatedRemaining time.Duration `json:"estimated_remaining"`
	RecordsProcessed   int           `json:"records_processed"`
}

// ProgressCallback is called with a copy of the progress after every step
type ProgressCallback func(Progress)

// Analyzer runs the analysis steps over snapshots
type Analyzer struct {
	config *Config
	logger logger.Logger

	progressCallbacks []ProgressCallback
	currentProgress   Progress
	progressMutex     sync.RWMutex
}

// NewAnalyzer creates an analyzer. A nil config uses DefaultConfig.
func NewAnalyzer(config *Config) *Analyzer {
	return &Analyzer{
		config: config.withDefaults(),
		logger: logger.GetGlobalLogger().WithComponent("analyzer"),
	}
}

// AddProgressCallback adds a progress callback function
func (a *Analyzer) AddProgressCallback(callback ProgressCallback) {
	a.progressCallbacks = append(a.progressCallbacks, callback)
}

// CurrentProgress returns a copy of the latest progress
func (a *Analyzer) CurrentProgress() Progress {
	a.progressMutex.RLock()
	defer a.progressMutex.RUnlock()
	return a.currentProgress
}

// Run categorizes the snapshot, detects transfers among records not already
// linked, detects recurring series and computes budget progress with
// transfers excluded. The snapshot is not modified.
func (a *Analyzer) Run(ctx context.Context, snap *Snapshot) (*AnalysisResult, error) {
	if snap == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "snapshot", nil, nil)
	}
	if err := a.config.Validate(); err != nil {
		return nil, err
	}

	op := logger.NewOperationLogger("analysis", a.logger).WithField("records", len(snap.Records))
	startTime := time.Now()
	a.initializeProgress(startTime, len(snap.Records))
	result := &AnalysisResult{}

	// Step 1: categories
	if err := a.checkpoint(ctx, op, StepCategorize, 0, startTime); err != nil {
		op.Error(err, "Analysis cancelled")
		return nil, err
	}
	cat := categorizer.New(snap.Rules, categorizer.WithOverwrite(a.config.OverwriteCategories))
	result.Assignments = cat.Apply(snap.Records)
	records := withAssignments(snap.Records, result.Assignments)

	// Step 2: transfers
	if err := a.checkpoint(ctx, op, StepTransfers, 1, startTime); err != nil {
		op.Error(err, "Analysis cancelled")
		return nil, err
	}
	excluded := models.TransferredIDs(snap.ExistingLinks)
	if !a.config.SkipTransfers {
		result.Transfers = matcher.NewMatcher(a.config.Transfers).FindTransfers(records, excluded)
		if n := len(result.Transfers.Ambiguous); n > 0 {
			warning := pluralize(n, "outflow has", "outflows have") + " ambiguous transfer candidates"
			result.Warnings = append(result.Warnings, warning)
			op.Warning(warning)
		}
	}

	// Step 3: recurring payments
	if err := a.checkpoint(ctx, op, StepRecurring, 2, startTime); err != nil {
		op.Error(err, "Analysis cancelled")
		return nil, err
	}
	if !a.config.SkipRecurring {
		recCfg := a.config.Recurring.Clone()
		if recCfg.Now == nil && !snap.Today.IsZero() {
			today := snap.Today
			recCfg.Now = func() time.Time { return today }
		}
		result.Recurring = recurring.NewDetector(recCfg).DetectByAccount(records)
	}

	// Step 4: budgets
	if err := a.checkpoint(ctx, op, StepBudgets, 3, startTime); err != nil {
		op.Error(err, "Analysis cancelled")
		return nil, err
	}
	if len(snap.Budgets) > 0 {
		links := snap.ExistingLinks
		if result.Transfers != nil {
			links = append(append([]*models.TransferLink{}, links...), result.Transfers.Links...)
		}
		today := snap.Today
		if today.IsZero() {
			today = time.Now()
		}
		result.Budgets = budget.CalculateAll(snap.Budgets, records, links, today)
	}

	result.Duration = time.Since(startTime)
	a.updateProgress(StepCompleted, len(analysisSteps), result.Duration)

	op.WithField("assignments", len(result.Assignments)).
		WithField("recurring", len(result.Recurring)).
		Success("Analysis completed")
	return result, nil
}

func (a *Analyzer) checkpoint(ctx context.Context, op *logger.OperationLogger, step string, completed int, startTime time.Time) error {
	if err := ctx.Err(); err != nil {
		return errors.InternalError(errors.CodeCancelled, "analysis", err).WithContext("step", step)
	}
	op.Step(step)
	a.updateProgress(step, completed, time.Since(startTime))
	return nil
}

func (a *Analyzer) initializeProgress(startTime time.Time, records int) {
	a.progressMutex.Lock()
	defer a.progressMutex.Unlock()

	a.currentProgress = Progress{
		TotalSteps:       len(analysisSteps),
		StartTime:        startTime,
		RecordsProcessed: records,
	}
}

func (a *Analyzer) updateProgress(step string, completed int, elapsed time.Duration) {
	a.progressMutex.Lock()
	p := &a.currentProgress
	p.CurrentStep = step
	p.CompletedSteps = completed
	p.ElapsedTime = elapsed
	p.PercentComplete = float64(completed) / float64(p.TotalSteps) * 100
	p.EstimatedRemaining = 0
	if completed > 0 && completed < p.TotalSteps {
		avgTimePerStep := elapsed / time.Duration(completed)
		p.EstimatedRemaining = avgTimePerStep * time.Duration(p.TotalSteps-completed)
	}
	snapshot := *p
	a.progressMutex.Unlock()

	for _, callback := range a.progressCallbacks {
		callback(snapshot)
	}
}

// withAssignments returns records with the assigned categories applied,
// copying only the records that change
func withAssignments(records []*models.TransactionRecord, assignments map[int64]int64) []*models.TransactionRecord {
	if len(assignments) == 0 {
		return records
	}
	out := make([]*models.TransactionRecord, len(records))
	for i, rec := range records {
		catID, ok := assignments[rec.ID]
		if !ok {
			out[i] = rec
			continue
		}
		cp := *rec
		cp.CategoryID = &catID
		out[i] = &cp
	}
	return out
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return strconv.Itoa(n) + " " + many
}

// CommitStats counts what Commit wrote
type CommitStats struct {
	Categorized int `json:"categorized"`
	Transfers   int `json:"transfers"`
}

// Commit persists category assignments and detected transfer links
func Commit(ctx context.Context, repo store.Repository, result *AnalysisResult) (*CommitStats, error) {
	stats := &CommitStats{}
	for txID, catID := range result.Assignments {
		if err := repo.SetCategory(ctx, txID, catID); err != nil {
			return stats, err
		}
		stats.Categorized++
	}
	if result.Transfers == nil {
		return stats, nil
	}
	saved, err := matcher.NewTransferService(repo, repo).SaveDetected(ctx, result.Transfers)
	stats.Transfers = saved
	return stats, err
}

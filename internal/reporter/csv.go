package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"statement-engine/internal/models"
	"statement-engine/internal/parsers"
	"statement-engine/internal/pipeline"
)

// ImportRowCSV is one line of an import CSV report
type ImportRowCSV struct {
	Status    string `csv:"status"`
	Line      int    `csv:"line"`
	Date      string `csv:"date"`
	Amount    string `csv:"amount"`
	Recipient string `csv:"recipient"`
	Purpose   string `csv:"purpose"`
	Currency  string `csv:"currency"`
	Hash      string `csv:"hash"`
	Notes     string `csv:"notes"`
}

// AnalysisRowCSV is one line of an analysis CSV report. Type tells which
// columns are meaningful.
type AnalysisRowCSV struct {
	Type       string `csv:"type"`
	ID         string `csv:"id"`
	From       string `csv:"from"`
	To         string `csv:"to"`
	Recipient  string `csv:"recipient"`
	Amount     string `csv:"amount"`
	Date       string `csv:"date"`
	Confidence string `csv:"confidence"`
	Detail     string `csv:"detail"`
}

// MappingRowCSV is one line of a mapping CSV report
type MappingRowCSV struct {
	Field      string `csv:"field"`
	Header     string `csv:"header"`
	Confidence string `csv:"confidence"`
}

// BudgetRowCSV is one line of a budget CSV report
type BudgetRowCSV struct {
	CategoryID  int64  `csv:"category_id"`
	Budgeted    string `csv:"budgeted"`
	Spent       string `csv:"spent"`
	Remaining   string `csv:"remaining"`
	Percentage  string `csv:"percentage"`
	Exceeded    bool   `csv:"exceeded"`
	Projected   string `csv:"projected_total"`
	DaysElapsed int    `csv:"days_elapsed"`
	DaysTotal   int    `csv:"days_total"`
}

// writeCSV marshals rows, a slice of one of the row structs above
func (rg *ReportGenerator) writeCSV(rows interface{}, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter
	if csvWriter.Comma == 0 {
		csvWriter.Comma = ','
	}
	out := gocsv.NewSafeCSVWriter(csvWriter)

	var err error
	if rg.config.CSVHeaders {
		err = gocsv.MarshalCSV(rows, out)
	} else {
		err = gocsv.MarshalCSVWithoutHeaders(rows, out)
	}
	if err != nil {
		return fmt.Errorf("failed to write CSV report: %w", err)
	}
	out.Flush()
	return out.Error()
}

func importRows(r *pipeline.ImportResult, config *ReportConfig) []*ImportRowCSV {
	var rows []*ImportRowCSV
	add := func(status string, row models.NormalizedRow, notes string) {
		rows = append(rows, &ImportRowCSV{
			Status:    status,
			Line:      row.Line,
			Date:      row.Date,
			Amount:    row.Amount,
			Recipient: row.Recipient,
			Purpose:   row.Purpose,
			Currency:  row.Currency,
			Hash:      row.Hash,
			Notes:     notes,
		})
	}

	problems := make(map[int][]string)
	for _, e := range r.RowErrors {
		if e.Row != nil {
			problems[e.Row.Line] = append(problems[e.Row.Line], e.Message)
		}
	}

	for _, row := range r.Rows {
		add("imported", row, strings.Join(problems[row.Line], "; "))
	}
	if config.IncludeDuplicates {
		for _, row := range r.Duplicates {
			add("duplicate", row, "already imported")
		}
	}
	if config.IncludeRowErrors {
		for _, e := range r.RowErrors {
			if !e.Rejected || e.Row == nil {
				continue
			}
			rows = append(rows, &ImportRowCSV{
				Status: "rejected",
				Line:   e.Row.Line,
				Notes:  e.Message,
			})
		}
	}
	return rows
}

func analysisRows(r *pipeline.AnalysisResult) []*AnalysisRowCSV {
	var rows []*AnalysisRowCSV

	txIDs := make([]int64, 0, len(r.Assignments))
	for id := range r.Assignments {
		txIDs = append(txIDs, id)
	}
	sort.Slice(txIDs, func(i, j int) bool { return txIDs[i] < txIDs[j] })
	for _, id := range txIDs {
		rows = append(rows, &AnalysisRowCSV{
			Type:   "category",
			ID:     strconv.FormatInt(id, 10),
			Detail: "category " + strconv.FormatInt(r.Assignments[id], 10),
		})
	}

	if r.Transfers != nil {
		for _, l := range r.Transfers.Links {
			rows = append(rows, &AnalysisRowCSV{
				Type:       "transfer",
				ID:         l.ID,
				From:       strconv.FormatInt(l.FromTransactionID, 10),
				To:         strconv.FormatInt(l.ToTransactionID, 10),
				Amount:     l.Amount.StringFixed(2),
				Date:       l.TransferDate.Format(models.DateLayout),
				Confidence: fmt.Sprintf("%.2f", l.ConfidenceScore),
				Detail:     l.Notes,
			})
		}
	}

	for _, s := range r.Recurring {
		rows = append(rows, &AnalysisRowCSV{
			Type:       "recurring",
			ID:         s.RecipientKey,
			Recipient:  s.RecipientKey,
			Amount:     s.AverageAmount.StringFixed(2),
			Date:       s.NextExpectedDate.Format(models.DateLayout),
			Confidence: fmt.Sprintf("%.2f", s.ConfidenceScore),
			Detail:     fmt.Sprintf("%s, %d occurrences, active=%t", s.Frequency(), s.OccurrenceCount, s.IsActive),
		})
	}

	for _, b := range r.Budgets {
		rows = append(rows, &AnalysisRowCSV{
			Type:   "budget",
			ID:     strconv.FormatInt(b.CategoryID, 10),
			Amount: b.Spent.StringFixed(2),
			Detail: fmt.Sprintf("%.2f%% of %s", b.Percentage, b.Budgeted.StringFixed(2)),
		})
	}
	return rows
}

func mappingRows(r *MappingReport) []*MappingRowCSV {
	rows := make([]*MappingRowCSV, 0, len(parsers.CanonicalFields))
	for _, field := range parsers.CanonicalFields {
		sug, ok := r.Suggestions[field]
		if !ok {
			rows = append(rows, &MappingRowCSV{Field: field})
			continue
		}
		rows = append(rows, &MappingRowCSV{
			Field:      field,
			Header:     sug.Header,
			Confidence: fmt.Sprintf("%.2f", sug.Confidence),
		})
	}
	return rows
}

func budgetRows(progress []models.BudgetProgress) []*BudgetRowCSV {
	rows := make([]*BudgetRowCSV, 0, len(progress))
	for _, p := range progress {
		rows = append(rows, &BudgetRowCSV{
			CategoryID:  p.CategoryID,
			Budgeted:    p.Budgeted.StringFixed(2),
			Spent:       p.Spent.StringFixed(2),
			Remaining:   p.Remaining.StringFixed(2),
			Percentage:  fmt.Sprintf("%.2f", p.Percentage),
			Exceeded:    p.IsExceeded,
			Projected:   p.ProjectedTotal.StringFixed(2),
			DaysElapsed: p.DaysElapsed,
			DaysTotal:   p.DaysTotal,
		})
	}
	return rows
}

package reporter

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"statement-engine/internal/models"
	"statement-engine/internal/parsers"
	"statement-engine/internal/pipeline"
)

// console writes human-readable sections
type console struct {
	w        io.Writer
	config   *ReportConfig
	maxItems int

	heading *color.Color
	good    *color.Color
	warn    *color.Color
	bad     *color.Color
	dim     *color.Color
}

func newConsole(w io.Writer, config *ReportConfig) *console {
	c := &console{
		w:        w,
		config:   config,
		maxItems: config.MaxItems,
		heading:  color.New(color.FgCyan, color.Bold),
		good:     color.New(color.FgGreen),
		warn:     color.New(color.FgYellow),
		bad:      color.New(color.FgRed, color.Bold),
		dim:      color.New(color.Faint),
	}
	for _, col := range []*color.Color{c.heading, c.good, c.warn, c.bad, c.dim} {
		if config.UseColors {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c
}

func (c *console) section(title string) {
	c.heading.Fprintf(c.w, "=== %s ===\n", title)
}

// limit reports how many of n items to print
func (c *console) limit(n int) int {
	if c.maxItems > 0 && n > c.maxItems {
		return c.maxItems
	}
	return n
}

func (c *console) more(n, shown int) {
	if n > shown {
		c.dim.Fprintf(c.w, "  ... and %d more\n", n-shown)
	}
}

func (c *console) importReport(r *pipeline.ImportResult) error {
	fmt.Fprintf(c.w, "IMPORT REPORT: %s\n", r.Source)
	if r.Format != nil {
		fmt.Fprintf(c.w, "Format: encoding %s, delimiter %s, %d preamble lines\n",
			r.Format.Encoding, r.Format.DelimiterName(), r.Format.SkipLines)
	}
	if r.Profile != "" {
		fmt.Fprintf(c.w, "Profile: %s\n", r.Profile)
	}
	fmt.Fprintln(c.w)

	c.section("SUMMARY")
	s := r.Stats
	fmt.Fprintf(c.w, "Rows read:   %d\n", s.RowsRead)
	c.good.Fprintf(c.w, "Imported:    %d (%.1f%%)\n", s.Imported, calculatePercentage(s.Imported, s.RowsRead))
	c.warn.Fprintf(c.w, "Duplicates:  %d\n", s.Duplicates)
	if s.Rejected > 0 {
		c.bad.Fprintf(c.w, "Rejected:    %d\n", s.Rejected)
	} else {
		fmt.Fprintf(c.w, "Rejected:    %d\n", s.Rejected)
	}
	fmt.Fprintf(c.w, "Warnings:    %d\n\n", s.Warnings)

	c.section("MAPPING")
	c.mapping(r.Mapping, r.Suggestions)
	fmt.Fprintln(c.w)

	if c.config.IncludeRows && len(r.Rows) > 0 {
		c.section("IMPORTED ROWS")
		c.rows(r.Rows)
		fmt.Fprintln(c.w)
	}

	if c.config.IncludeDuplicates && len(r.Duplicates) > 0 {
		c.section("DUPLICATES")
		c.rows(r.Duplicates)
		fmt.Fprintln(c.w)
	}

	if c.config.IncludeRowErrors && len(r.RowErrors) > 0 {
		c.section("ROW PROBLEMS")
		shown := c.limit(len(r.RowErrors))
		for _, e := range r.RowErrors[:shown] {
			col := c.warn
			if e.Rejected {
				col = c.bad
			}
			col.Fprintf(c.w, "  - %s\n", e.Error())
		}
		c.more(len(r.RowErrors), shown)
		fmt.Fprintln(c.w)
	}
	return nil
}

func (c *console) mapping(mapping parsers.ColumnMapping, suggestions parsers.Suggestions) {
	for _, field := range parsers.CanonicalFields {
		header, ok := mapping[field]
		if !ok {
			c.dim.Fprintf(c.w, "  %-10s -> (unmapped)\n", field)
			continue
		}
		if sug, ok := suggestions[field]; ok {
			c.confidence(sug.Confidence).Fprintf(c.w, "  %-10s -> %s (%.0f%%)\n", field, header, sug.Confidence*100)
			continue
		}
		fmt.Fprintf(c.w, "  %-10s -> %s\n", field, header)
	}
}

func (c *console) confidence(score float64) *color.Color {
	switch {
	case score >= 0.9:
		return c.good
	case score >= 0.7:
		return c.warn
	default:
		return c.bad
	}
}

func (c *console) rows(rows []models.NormalizedRow) {
	shown := c.limit(len(rows))
	for i, row := range rows[:shown] {
		amount := c.good
		if strings.HasPrefix(row.Amount, "-") {
			amount = c.bad
		}
		fmt.Fprintf(c.w, "  %d. line %d  %s  ", i+1, row.Line, row.Date)
		amount.Fprintf(c.w, "%12s", row.Amount)
		fmt.Fprintf(c.w, "  %s\n", row.Recipient)
	}
	c.more(len(rows), shown)
}

func (c *console) analysisReport(r *pipeline.AnalysisResult) error {
	fmt.Fprintf(c.w, "ANALYSIS REPORT\n")
	fmt.Fprintf(c.w, "Processing Duration: %v\n\n", r.Duration)

	c.section("CATEGORIES")
	fmt.Fprintf(c.w, "Assigned: %d\n", len(r.Assignments))
	counts := make(map[int64]int)
	for _, cat := range r.Assignments {
		counts[cat]++
	}
	ids := make([]int64, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fmt.Fprintf(c.w, "  category %d: %d\n", id, counts[id])
	}
	fmt.Fprintln(c.w)

	if r.Transfers != nil {
		c.section("TRANSFERS")
		c.transfers(r)
		fmt.Fprintln(c.w)
	}

	c.section("RECURRING PAYMENTS")
	c.recurring(r.Recurring)
	fmt.Fprintln(c.w)

	if len(r.Budgets) > 0 {
		c.section("BUDGETS")
		c.budgets(r.Budgets)
		fmt.Fprintln(c.w)
	}

	if len(r.Warnings) > 0 {
		c.section("WARNINGS")
		for _, w := range r.Warnings {
			c.warn.Fprintf(c.w, "  - %s\n", w)
		}
	}
	return nil
}

func (c *console) transfers(r *pipeline.AnalysisResult) {
	s := r.Transfers.Summary
	fmt.Fprintf(c.w, "Outflows: %d, Inflows: %d, Candidate pairs: %d\n", s.Outflows, s.Inflows, s.CandidatePairs)
	fmt.Fprintf(c.w, "Links created: %d (exact %d, close %d, possible %d)\n",
		s.LinksCreated, s.ExactMatches, s.CloseMatches, s.PossibleMatches)
	fmt.Fprintf(c.w, "Total transferred: %s\n", s.TotalTransferred.StringFixed(2))

	links := r.Transfers.Links
	shown := c.limit(len(links))
	for i, l := range links[:shown] {
		fmt.Fprintf(c.w, "  %d. #%d -> #%d  %s  %s  ", i+1, l.FromTransactionID, l.ToTransactionID,
			l.Amount.StringFixed(2), l.TransferDate.Format(models.DateLayout))
		c.confidence(l.ConfidenceScore).Fprintf(c.w, "%.2f\n", l.ConfidenceScore)
	}
	c.more(len(links), shown)

	for _, a := range r.Transfers.Ambiguous {
		c.warn.Fprintf(c.w, "  ambiguous: outflow #%d has %d close candidates (best %.2f)\n",
			a.OutflowID, len(a.CandidateIDs), a.BestScore)
	}
}

func (c *console) recurring(series []*models.RecurringSeries) {
	if len(series) == 0 {
		c.dim.Fprintf(c.w, "No recurring payments found\n")
		return
	}
	shown := c.limit(len(series))
	for i, s := range series[:shown] {
		status := c.good.Sprint("active")
		if !s.IsActive {
			status = c.dim.Sprint("inactive")
		}
		fmt.Fprintf(c.w, "  %d. %-24s %-10s %10s  x%d  next %s  %s  (%.2f)\n",
			i+1, s.RecipientKey, s.Frequency(), s.AverageAmount.StringFixed(2), s.OccurrenceCount,
			s.NextExpectedDate.Format(models.DateLayout), status, s.ConfidenceScore)
	}
	c.more(len(series), shown)
}

func (c *console) budgets(progress []models.BudgetProgress) {
	for _, p := range progress {
		col := c.good
		switch {
		case p.IsExceeded:
			col = c.bad
		case p.Percentage >= 80:
			col = c.warn
		}
		fmt.Fprintf(c.w, "  category %d: %s of %s  ", p.CategoryID, p.Spent.StringFixed(2), p.Budgeted.StringFixed(2))
		col.Fprintf(c.w, "%.1f%%", p.Percentage)
		fmt.Fprintf(c.w, "  remaining %s  projected %s  (day %d of %d)\n",
			p.Remaining.StringFixed(2), p.ProjectedTotal.StringFixed(2), p.DaysElapsed, p.DaysTotal)
	}
}

func (c *console) budgetReport(progress []models.BudgetProgress) error {
	fmt.Fprintf(c.w, "BUDGET REPORT\n\n")
	c.section("BUDGETS")
	if len(progress) == 0 {
		c.dim.Fprintf(c.w, "No budgets defined\n")
		return nil
	}
	c.budgets(progress)
	return nil
}

func (c *console) mappingReport(r *MappingReport) error {
	fmt.Fprintf(c.w, "MAPPING SUGGESTIONS: %s\n", r.Source)
	if r.Format != nil {
		fmt.Fprintf(c.w, "Format: encoding %s, delimiter %s, %d preamble lines\n",
			r.Format.Encoding, r.Format.DelimiterName(), r.Format.SkipLines)
		fmt.Fprintf(c.w, "Headers: %s\n", strings.Join(r.Format.Headers, " | "))
	}
	if r.Profile != "" {
		c.good.Fprintf(c.w, "Matches profile: %s\n", r.Profile)
	}
	fmt.Fprintln(c.w)

	c.section("SUGGESTIONS")
	c.mapping(r.Suggestions.ToMapping(), r.Suggestions)

	if len(r.Problems) > 0 {
		fmt.Fprintln(c.w)
		c.section("PROBLEMS")
		for _, p := range r.Problems {
			c.bad.Fprintf(c.w, "  - %s\n", p)
		}
	}
	return nil
}

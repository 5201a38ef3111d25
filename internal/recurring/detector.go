package recurring

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"statement-engine/internal/models"
	"statement-engine/pkg/logger"
)

// NormalizeRecipient is the grouping key of a payee: trimmed, lower-cased
// and with internal whitespace collapsed
func NormalizeRecipient(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// GroupByRecipient groups records by normalized recipient. Records with an
// empty key are skipped; each group keeps input order.
func GroupByRecipient(records []*models.TransactionRecord) map[string][]*models.TransactionRecord {
	groups := make(map[string][]*models.TransactionRecord)
	for _, rec := range records {
		if rec == nil {
			continue
		}
		key := NormalizeRecipient(rec.Recipient)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], rec)
	}
	return groups
}

// Detector finds recurring series. It keeps no state between runs.
type Detector struct {
	config *Config
	logger logger.Logger
}

// NewDetector creates a detector; a nil config uses DefaultConfig
func NewDetector(config *Config) *Detector {
	if config == nil {
		config = DefaultConfig()
	}
	return &Detector{
		config: config,
		logger: logger.WithComponent("recurring_detector"),
	}
}

// Config returns a copy of the detector configuration
func (d *Detector) Config() *Config {
	return d.config.Clone()
}

type group struct {
	key     string
	records []*models.TransactionRecord
}

// Detect recomputes all series among records. Payee groups are analyzed in
// parallel; the result is sorted by recipient key.
func (d *Detector) Detect(records []*models.TransactionRecord) []*models.RecurringSeries {
	groups := GroupByRecipient(records)

	keys := make([]string, 0, len(groups))
	for key, members := range groups {
		if len(members) >= d.config.MinOccurrences {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	workers := d.config.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	p := pool.NewWithResults[*models.RecurringSeries]().WithMaxGoroutines(workers)
	for _, key := range keys {
		g := group{key: key, records: groups[key]}
		p.Go(func() *models.RecurringSeries {
			series, _ := d.AnalyzeGroup(g.key, g.records)
			return series
		})
	}

	var result []*models.RecurringSeries
	for _, series := range p.Wait() {
		if series != nil {
			result = append(result, series)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].RecipientKey != result[j].RecipientKey {
			return result[i].RecipientKey < result[j].RecipientKey
		}
		return result[i].AccountID < result[j].AccountID
	})

	d.logger.WithFields(logger.Fields{
		"records": len(records),
		"groups":  len(groups),
		"checked": len(keys),
		"series":  len(result),
	}).Debug("Recurring detection finished")

	return result
}

// DetectByAccount runs Detect separately for each account so that payments
// to the same payee from different accounts form separate series
func (d *Detector) DetectByAccount(records []*models.TransactionRecord) []*models.RecurringSeries {
	byAccount := make(map[int64][]*models.TransactionRecord)
	var accounts []int64
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if _, seen := byAccount[rec.AccountID]; !seen {
			accounts = append(accounts, rec.AccountID)
		}
		byAccount[rec.AccountID] = append(byAccount[rec.AccountID], rec)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })

	var result []*models.RecurringSeries
	for _, account := range accounts {
		result = append(result, d.Detect(byAccount[account])...)
	}
	return result
}

// AnalyzeGroup decides whether one payee group is a recurring series
func (d *Detector) AnalyzeGroup(key string, members []*models.TransactionRecord) (*models.RecurringSeries, bool) {
	if len(members) < d.config.MinOccurrences {
		return nil, false
	}

	sorted := append([]*models.TransactionRecord(nil), members...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].ID < sorted[j].ID
	})

	intervals := make([]int, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		intervals = append(intervals, models.DaysBetween(sorted[i].Date, sorted[i-1].Date))
	}

	canonical, matched := d.dominantInterval(intervals)
	if canonical == 0 || 2*len(matched) <= len(intervals) {
		return nil, false
	}

	mean, spread, ok := d.amountBand(sorted)
	if !ok {
		return nil, false
	}

	avgInterval, cv := meanAndCV(matched)
	first := sorted[0].Date
	last := sorted[len(sorted)-1].Date

	series := &models.RecurringSeries{
		RecipientKey:        key,
		AccountID:           commonAccount(sorted),
		AverageAmount:       mean.Round(2),
		AverageIntervalDays: avgInterval,
		IntervalDays:        canonical,
		FirstOccurrence:     first,
		LastOccurrence:      last,
		OccurrenceCount:     len(sorted),
		NextExpectedDate:    last.AddDate(0, 0, int(math.Round(avgInterval))),
		TransactionIDs:      make([]int64, len(sorted)),
	}
	for i, rec := range sorted {
		series.TransactionIDs[i] = rec.ID
	}

	today := models.DateOnly(d.config.now())
	series.IsActive = today.Sub(last).Hours()/24 <= float64(d.config.ActivityThresholdDays)

	matchRatio := float64(len(matched)) / float64(len(intervals))
	series.ConfidenceScore = confidence(len(sorted), matchRatio, cv, spread)

	return series, true
}

// dominantInterval classifies every interval against the canonical ones and
// returns the canonical interval most intervals fall on, with those
// intervals. Ties prefer the shorter canonical interval.
func (d *Detector) dominantInterval(intervals []int) (int, []int) {
	canonical := d.config.sortedIntervals()
	buckets := make(map[int][]int)

	for _, days := range intervals {
		best, bestDiff := 0, d.config.IntervalToleranceDays+1
		for _, c := range canonical {
			diff := days - c
			if diff < 0 {
				diff = -diff
			}
			if diff < bestDiff {
				best, bestDiff = c, diff
			}
		}
		if best != 0 {
			buckets[best] = append(buckets[best], days)
		}
	}

	winner := 0
	for _, c := range canonical {
		if len(buckets[c]) > len(buckets[winner]) {
			winner = c
		}
	}
	return winner, buckets[winner]
}

// amountBand returns the mean amount and the largest deviation relative to
// the tolerance; ok is false when any amount lies outside the band
func (d *Detector) amountBand(records []*models.TransactionRecord) (decimal.Decimal, float64, bool) {
	sum := decimal.Zero
	for _, rec := range records {
		sum = sum.Add(rec.Amount)
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(records))))

	maxDev := decimal.Zero
	for _, rec := range records {
		dev := rec.Amount.Sub(mean).Abs()
		if dev.GreaterThan(d.config.AmountTolerance) {
			return mean, 0, false
		}
		if dev.GreaterThan(maxDev) {
			maxDev = dev
		}
	}

	if d.config.AmountTolerance.IsZero() {
		return mean, 0, true
	}
	spread, _ := maxDev.Div(d.config.AmountTolerance).Float64()
	return mean, spread, true
}

// meanAndCV returns the mean and coefficient of variation of values
func meanAndCV(values []int) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += float64(v)
	}
	mean := sum / float64(len(values))
	if mean == 0 {
		return 0, 0
	}

	variance := 0.0
	for _, v := range values {
		diff := float64(v) - mean
		variance += diff * diff
	}
	variance /= float64(len(values))
	return mean, math.Min(1.0, math.Sqrt(variance)/mean)
}

// confidence grows with the number of occurrences and shrinks with interval
// and amount variance
func confidence(occurrences int, matchRatio, intervalCV, amountSpread float64) float64 {
	countScore := 1.0 - math.Pow(0.5, float64(occurrences-1))
	score := countScore * matchRatio * (1 - 0.5*intervalCV) * (1 - 0.5*amountSpread)
	return math.Max(0.0, math.Min(1.0, score))
}

// commonAccount returns the account shared by all records, or 0
func commonAccount(records []*models.TransactionRecord) int64 {
	if len(records) == 0 {
		return 0
	}
	account := records[0].AccountID
	for _, rec := range records[1:] {
		if rec.AccountID != account {
			return 0
		}
	}
	return account
}

package recurring

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statement-engine/internal/models"
)

func tx(id, account int64, date, amount, recipient string) *models.TransactionRecord {
	d, err := time.Parse(models.DateLayout, date)
	if err != nil {
		panic(err)
	}
	return models.NewTransactionRecord(id, account, d, decimal.RequireFromString(amount), recipient, "")
}

func fixedNow(date string) func() time.Time {
	return func() time.Time {
		d, _ := time.Parse(models.DateLayout, date)
		return d
	}
}

func testConfig(now string) *Config {
	cfg := DefaultConfig()
	cfg.Now = fixedNow(now)
	return cfg
}

func TestNormalizeRecipient(t *testing.T) {
	assert.Equal(t, "netflix inc", NormalizeRecipient("  NETFLIX\t Inc "))
	assert.Equal(t, "", NormalizeRecipient("   "))
}

func TestGroupByRecipient(t *testing.T) {
	records := []*models.TransactionRecord{
		tx(1, 1, "2025-01-15", "-12.99", "Netflix"),
		tx(2, 1, "2025-01-16", "-40.00", "REWE"),
		tx(3, 1, "2025-02-15", "-12.99", " NETFLIX "),
		tx(4, 1, "2025-02-20", "-5.00", ""),
		tx(5, 1, "2025-01-01", "-12.99", "netflix"),
	}

	groups := GroupByRecipient(records)

	require.Len(t, groups, 2)
	require.Len(t, groups["netflix"], 3)
	assert.Equal(t, []int64{1, 3, 5}, []int64{groups["netflix"][0].ID, groups["netflix"][1].ID, groups["netflix"][2].ID},
		"group keeps input order")
	assert.Len(t, groups["rewe"], 1)
	assert.NotContains(t, groups, "")
}

func TestDetect_MonthlySeries(t *testing.T) {
	records := []*models.TransactionRecord{
		tx(3, 1, "2025-03-15", "-12.99", "Netflix"),
		tx(1, 1, "2025-01-15", "-12.99", "Netflix"),
		tx(2, 1, "2025-02-15", "-12.99", "netflix "),
		tx(4, 1, "2025-02-01", "-55.10", "REWE"),
	}

	series := NewDetector(testConfig("2025-04-01")).Detect(records)

	require.Len(t, series, 1)
	s := series[0]
	assert.Equal(t, "netflix", s.RecipientKey)
	assert.Equal(t, int64(1), s.AccountID)
	assert.Equal(t, 3, s.OccurrenceCount)
	assert.Equal(t, 30, s.IntervalDays)
	assert.Equal(t, "monthly", s.Frequency())
	assert.InDelta(t, 29.5, s.AverageIntervalDays, 1e-9)
	assert.True(t, s.AverageAmount.Equal(decimal.RequireFromString("-12.99")), "got %s", s.AverageAmount)
	assert.Equal(t, "2025-01-15", s.FirstOccurrence.Format(models.DateLayout))
	assert.Equal(t, "2025-03-15", s.LastOccurrence.Format(models.DateLayout))
	assert.Equal(t, "2025-04-14", s.NextExpectedDate.Format(models.DateLayout))
	assert.Equal(t, []int64{1, 2, 3}, s.TransactionIDs)
	assert.True(t, s.IsActive)
	assert.Greater(t, s.ConfidenceScore, 0.6)
	assert.LessOrEqual(t, s.ConfidenceScore, 0.75)
}

func TestDetect_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		records []*models.TransactionRecord
	}{
		{
			name: "too few occurrences",
			records: []*models.TransactionRecord{
				tx(1, 1, "2025-01-15", "-9.99", "Spotify"),
				tx(2, 1, "2025-02-15", "-9.99", "Spotify"),
			},
		},
		{
			name: "irregular intervals",
			records: []*models.TransactionRecord{
				tx(1, 1, "2025-01-01", "-20", "Bakery"),
				tx(2, 1, "2025-01-20", "-20", "Bakery"),
				tx(3, 1, "2025-03-30", "-20", "Bakery"),
				tx(4, 1, "2025-04-02", "-20", "Bakery"),
			},
		},
		{
			name: "amount outside tolerance",
			records: []*models.TransactionRecord{
				tx(1, 1, "2025-01-01", "-10", "Gym"),
				tx(2, 1, "2025-02-01", "-10", "Gym"),
				tx(3, 1, "2025-03-01", "-30", "Gym"),
			},
		},
		{
			name: "no majority interval",
			records: []*models.TransactionRecord{
				tx(1, 1, "2025-01-01", "-10", "Club"),
				tx(2, 1, "2025-01-08", "-10", "Club"),
				tx(3, 1, "2025-02-07", "-10", "Club"),
				tx(4, 1, "2025-05-08", "-10", "Club"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, NewDetector(testConfig("2025-06-01")).Detect(tt.records))
		})
	}
}

func TestDetect_MajorityInterval(t *testing.T) {
	records := []*models.TransactionRecord{
		tx(1, 1, "2025-01-01", "-800", "Landlord"),
		tx(2, 1, "2025-01-31", "-800", "Landlord"),
		tx(3, 1, "2025-03-02", "-800", "Landlord"),
		tx(4, 1, "2025-05-01", "-800", "Landlord"),
	}

	series := NewDetector(testConfig("2025-05-10")).Detect(records)

	require.Len(t, series, 1)
	assert.Equal(t, 30, series[0].IntervalDays)
	assert.Equal(t, 4, series[0].OccurrenceCount)
	assert.InDelta(t, 30.0, series[0].AverageIntervalDays, 1e-9)
	assert.Less(t, series[0].ConfidenceScore, 0.875, "unmatched interval lowers confidence")
}

func TestDetect_WeeklyWithAmountDrift(t *testing.T) {
	records := []*models.TransactionRecord{
		tx(1, 1, "2025-03-03", "-21.50", "Farmers Market"),
		tx(2, 1, "2025-03-10", "-19.00", "Farmers Market"),
		tx(3, 1, "2025-03-17", "-23.00", "Farmers Market"),
		tx(4, 1, "2025-03-25", "-20.50", "Farmers Market"),
	}

	series := NewDetector(testConfig("2025-03-26")).Detect(records)

	require.Len(t, series, 1)
	s := series[0]
	assert.Equal(t, "weekly", s.Frequency())
	assert.True(t, s.AverageAmount.Equal(decimal.RequireFromString("-21.00")), "got %s", s.AverageAmount)
	assert.Equal(t, "2025-04-01", s.NextExpectedDate.Format(models.DateLayout))
}

func TestDetect_Activity(t *testing.T) {
	records := []*models.TransactionRecord{
		tx(1, 1, "2025-01-15", "-12.99", "Netflix"),
		tx(2, 1, "2025-02-15", "-12.99", "Netflix"),
		tx(3, 1, "2025-03-15", "-12.99", "Netflix"),
	}

	active := NewDetector(testConfig("2025-04-29")).Detect(records)
	require.Len(t, active, 1)
	assert.True(t, active[0].IsActive, "45 days after the last payment is still active")

	inactive := NewDetector(testConfig("2025-04-30")).Detect(records)
	require.Len(t, inactive, 1)
	assert.False(t, inactive[0].IsActive)
}

func TestDetect_NeverBelowMinOccurrences(t *testing.T) {
	records := generateRecords(40, 6)
	cfg := testConfig("2025-12-31")
	cfg.MinOccurrences = 4

	for _, s := range NewDetector(cfg).Detect(records) {
		assert.GreaterOrEqual(t, s.OccurrenceCount, 4)
		assert.GreaterOrEqual(t, s.ConfidenceScore, 0.0)
		assert.LessOrEqual(t, s.ConfidenceScore, 1.0)
	}
}

func TestDetect_Deterministic(t *testing.T) {
	records := generateRecords(25, 8)
	cfg := testConfig("2025-12-31")

	first := NewDetector(cfg).Detect(records)
	second := NewDetector(cfg).Detect(records)

	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
	for i := 1; i < len(first); i++ {
		assert.Less(t, first[i-1].RecipientKey, first[i].RecipientKey)
	}
}

func TestDetectByAccount(t *testing.T) {
	var records []*models.TransactionRecord
	id := int64(1)
	for _, account := range []int64{2, 1} {
		for month := 1; month <= 3; month++ {
			date := fmt.Sprintf("2025-%02d-05", month)
			records = append(records, tx(id, account, date, "-9.99", "Spotify"))
			id++
		}
	}

	detector := NewDetector(testConfig("2025-03-10"))

	merged := detector.Detect(records)
	assert.Empty(t, merged, "same-day payments from two accounts break the interval pattern")

	split := detector.DetectByAccount(records)
	require.Len(t, split, 2)
	assert.Equal(t, int64(1), split[0].AccountID)
	assert.Equal(t, int64(2), split[1].AccountID)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := map[string]func(*Config){
		"min occurrences":    func(c *Config) { c.MinOccurrences = 1 },
		"negative tolerance": func(c *Config) { c.IntervalToleranceDays = -1 },
		"no intervals":       func(c *Config) { c.Intervals = nil },
		"zero interval":      func(c *Config) { c.Intervals = []int{0} },
		"negative amount":    func(c *Config) { c.AmountTolerance = decimal.NewFromInt(-1) },
		"no workers":         func(c *Config) { c.MaxWorkers = 0 },
	}
	for name, modify := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	clone := DefaultConfig()
	copied := clone.Clone()
	copied.Intervals[0] = 1
	assert.Equal(t, 7, clone.Intervals[0])
}

// generateRecords builds payees paying monthly plus noise payees
func generateRecords(payees, months int) []*models.TransactionRecord {
	start := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)
	var records []*models.TransactionRecord
	id := int64(1)
	for p := 0; p < payees; p++ {
		amount := decimal.NewFromInt(int64(-10 - p))
		for m := 0; m < months; m++ {
			date := start.AddDate(0, m, p%5)
			if p%4 == 3 {
				date = start.AddDate(0, 0, m*m*11+p)
			}
			records = append(records, models.NewTransactionRecord(id, 1, date, amount, fmt.Sprintf("Payee %02d", p), ""))
			id++
		}
	}
	return records
}

func BenchmarkDetect(b *testing.B) {
	records := generateRecords(500, 12)
	detector := NewDetector(testConfig("2025-12-31"))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		detector.Detect(records)
	}
}

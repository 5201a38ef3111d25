// Package recurring finds series of payments to the same payee that repeat
// at a roughly fixed interval and amount.
package recurring

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the parameters of recurring detection
type Config struct {
	// MinOccurrences is the smallest series length reported
	MinOccurrences int `json:"min_occurrences" mapstructure:"min_occurrences"`

	// IntervalToleranceDays is how far an interval may be from a canonical one
	IntervalToleranceDays int `json:"interval_tolerance_days" mapstructure:"interval_tolerance_days"`

	// Intervals are the canonical intervals in days
	Intervals []int `json:"intervals" mapstructure:"intervals"`

	// AmountTolerance is the fixed band around the mean amount
	AmountTolerance decimal.Decimal `json:"amount_tolerance" mapstructure:"-"`

	// ActivityThresholdDays is how long after the last payment a series stays active
	ActivityThresholdDays int `json:"activity_threshold_days" mapstructure:"activity_threshold_days"`

	// MaxWorkers bounds the goroutines analyzing payee groups
	MaxWorkers int `json:"max_workers" mapstructure:"max_workers"`

	// Now returns the reference date for activity; time.Now when nil
	Now func() time.Time `json:"-" mapstructure:"-"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MinOccurrences:        3,
		IntervalToleranceDays: 3,
		Intervals:             []int{7, 14, 30, 90, 365},
		AmountTolerance:       decimal.NewFromInt(5),
		ActivityThresholdDays: 45,
		MaxWorkers:            4,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.MinOccurrences < 2 {
		return fmt.Errorf("min occurrences must be at least 2: %d", c.MinOccurrences)
	}
	if c.IntervalToleranceDays < 0 {
		return fmt.Errorf("interval tolerance cannot be negative: %d", c.IntervalToleranceDays)
	}
	if len(c.Intervals) == 0 {
		return fmt.Errorf("at least one canonical interval is required")
	}
	for _, interval := range c.Intervals {
		if interval <= 0 {
			return fmt.Errorf("intervals must be positive: %d", interval)
		}
	}
	if c.AmountTolerance.IsNegative() {
		return fmt.Errorf("amount tolerance cannot be negative: %s", c.AmountTolerance)
	}
	if c.ActivityThresholdDays < 0 {
		return fmt.Errorf("activity threshold cannot be negative: %d", c.ActivityThresholdDays)
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("max workers must be positive: %d", c.MaxWorkers)
	}
	return nil
}

// Clone creates a copy of the configuration with its own interval slice
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Intervals = append([]int(nil), c.Intervals...)
	return &clone
}

// sortedIntervals returns the canonical intervals in ascending order
func (c *Config) sortedIntervals() []int {
	intervals := append([]int(nil), c.Intervals...)
	sort.Ints(intervals)
	return intervals
}

func (c *Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// String returns a human-readable description of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("RecurringConfig{MinOccurrences: %d, Intervals: %v ±%d days, AmountTolerance: %s, Active: %d days}",
		c.MinOccurrences, c.Intervals, c.IntervalToleranceDays, c.AmountTolerance.StringFixed(2), c.ActivityThresholdDays)
}

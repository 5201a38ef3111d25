// Package matcher detects internal transfers: an outflow in one account and
// an inflow of the same absolute amount in another account a few days apart.
//
// Detection runs in stages:
//  1. Inflows are indexed by absolute amount once per run
//  2. Each outflow looks up same-amount inflows in other accounts inside the
//     date window
//  3. Candidate pairs are scored from date proximity plus a text bonus
//  4. Pairs are accepted greedily by confidence so that every transaction
//     joins at most one transfer
//
// Example usage:
//
//	config := matcher.DefaultTransferConfig()
//	config.WindowDays = 5
//
//	m := matcher.NewMatcher(config)
//	result := m.FindTransfers(records, alreadyLinked)
package matcher

import (
	"fmt"
)

// MatchType buckets a transfer candidate by confidence
type MatchType int

const (
	// MatchExact is a same-day pair with matching text
	MatchExact MatchType = iota

	// MatchClose is a pair within a day or two, usually with some shared text
	MatchClose

	// MatchPossible clears the confidence floor but should be reviewed
	MatchPossible

	// MatchNone did not reach the confidence floor
	MatchNone
)

// String returns the string representation of MatchType
func (mt MatchType) String() string {
	switch mt {
	case MatchExact:
		return "Exact"
	case MatchClose:
		return "Close"
	case MatchPossible:
		return "Possible"
	case MatchNone:
		return "None"
	default:
		return "Unknown"
	}
}

// TransferConfig holds the parameters of transfer detection.
//
// The date score falls linearly from MaxDateScore for a same-day pair to
// MinDateScore at WindowDays and is 0 beyond the window. Text similarity adds
// up to TextWeight. The sum is clamped to [0,1].
//
// Use the provided factory functions for common scenarios:
//   - DefaultTransferConfig(): three day window, balanced scores
//   - StrictTransferConfig(): same or next day only, high floor
//   - RelaxedTransferConfig(): a working week of bank delay
type TransferConfig struct {
	// WindowDays is the largest date difference between the two legs
	WindowDays int `json:"window_days" mapstructure:"window_days"`

	// MaxDateScore is the date score of a same-day pair
	MaxDateScore float64 `json:"max_date_score" mapstructure:"max_date_score"`

	// MinDateScore is the date score at the window boundary
	MinDateScore float64 `json:"min_date_score" mapstructure:"min_date_score"`

	// TextWeight scales the recipient/purpose similarity bonus
	TextWeight float64 `json:"text_weight" mapstructure:"text_weight"`

	// MinConfidenceScore is the floor for auto-detected links
	MinConfidenceScore float64 `json:"min_confidence_score" mapstructure:"min_confidence_score"`

	// RequireSameCurrency skips pairs whose known currencies differ
	RequireSameCurrency bool `json:"require_same_currency" mapstructure:"require_same_currency"`
}

// DefaultTransferConfig returns a configuration with sensible defaults
func DefaultTransferConfig() *TransferConfig {
	return &TransferConfig{
		WindowDays:          3,
		MaxDateScore:        0.8,
		MinDateScore:        0.5,
		TextWeight:          0.2,
		MinConfidenceScore:  0.5,
		RequireSameCurrency: true,
	}
}

// StrictTransferConfig returns a configuration for strict matching
func StrictTransferConfig() *TransferConfig {
	return &TransferConfig{
		WindowDays:          1,
		MaxDateScore:        0.8,
		MinDateScore:        0.6,
		TextWeight:          0.2,
		MinConfidenceScore:  0.75,
		RequireSameCurrency: true,
	}
}

// RelaxedTransferConfig returns a configuration for relaxed matching
func RelaxedTransferConfig() *TransferConfig {
	return &TransferConfig{
		WindowDays:          5,
		MaxDateScore:        0.8,
		MinDateScore:        0.4,
		TextWeight:          0.2,
		MinConfidenceScore:  0.4,
		RequireSameCurrency: false,
	}
}

// Validate checks if the transfer configuration is valid
func (tc *TransferConfig) Validate() error {
	if tc.WindowDays < 0 {
		return fmt.Errorf("window days cannot be negative: %d", tc.WindowDays)
	}

	if tc.MaxDateScore < 0.0 || tc.MaxDateScore > 1.0 {
		return fmt.Errorf("max date score must be between 0.0 and 1.0: %f", tc.MaxDateScore)
	}

	if tc.MinDateScore < 0.0 || tc.MinDateScore > tc.MaxDateScore {
		return fmt.Errorf("min date score must be between 0.0 and max date score %f: %f", tc.MaxDateScore, tc.MinDateScore)
	}

	if tc.TextWeight < 0.0 || tc.TextWeight > 1.0 {
		return fmt.Errorf("text weight must be between 0.0 and 1.0: %f", tc.TextWeight)
	}

	if tc.MinConfidenceScore < 0.0 || tc.MinConfidenceScore > 1.0 {
		return fmt.Errorf("minimum confidence score must be between 0.0 and 1.0: %f", tc.MinConfidenceScore)
	}

	return nil
}

// Clone creates a copy of the transfer configuration
func (tc *TransferConfig) Clone() *TransferConfig {
	if tc == nil {
		return nil
	}
	clone := *tc
	return &clone
}

// DateScore returns the date proximity score for a difference of diffDays
func (tc *TransferConfig) DateScore(diffDays int) float64 {
	if diffDays < 0 {
		diffDays = -diffDays
	}
	if diffDays > tc.WindowDays {
		return 0.0
	}
	if tc.WindowDays == 0 {
		return tc.MaxDateScore
	}
	if diffDays == tc.WindowDays {
		return tc.MinDateScore
	}

	ratio := float64(diffDays) / float64(tc.WindowDays)
	return tc.MaxDateScore - (tc.MaxDateScore-tc.MinDateScore)*ratio
}

// ClassifyConfidence buckets a confidence score
func (tc *TransferConfig) ClassifyConfidence(confidence float64) MatchType {
	switch {
	case confidence < tc.MinConfidenceScore:
		return MatchNone
	case confidence >= tc.MaxDateScore+tc.TextWeight*0.95:
		return MatchExact
	case confidence >= tc.MaxDateScore:
		return MatchClose
	default:
		return MatchPossible
	}
}

// String returns a human-readable description of the configuration
func (tc *TransferConfig) String() string {
	return fmt.Sprintf("TransferConfig{Window: %d days, DateScore: %.2f..%.2f, TextWeight: %.2f, MinConfidence: %.2f, SameCurrency: %t}",
		tc.WindowDays, tc.MaxDateScore, tc.MinDateScore, tc.TextWeight, tc.MinConfidenceScore, tc.RequireSameCurrency)
}

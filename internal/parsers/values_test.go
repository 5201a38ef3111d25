package parsers

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"-1.234,56", "-1234.56"},
		{"1,234.56", "1234.56"},
		{"", "0"},
		{"abc", "0"},
		{"   ", "0"},
		{"12,50", "12.5"},
		{"12.5", "12.5"},
		{"1.234", "1234"},
		{"0,125", "0.125"},
		{"1.234.567,89", "1234567.89"},
		{"1,234,567", "1234567"},
		{"(1.234,56)", "-1234.56"},
		{"50,00-", "-50"},
		{"+15,00", "15"},
		{"€ 1.234,56", "1234.56"},
		{"EUR -50,00", "-50"},
		{"-50,00 EUR", "-50"},
		{"-$12.00", "-12"},
		{"1 234,56", "1234.56"},
		{"1'234.50", "1234.5"},
		{"−12,00", "-12"},
		{"12abc34", "0"},
		{"1,2,3.4.5", "0"},
		{"-", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseAmount(tt.input)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.expected)), "got %s, want %s", got, tt.expected)
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		ok       bool
	}{
		{"31.01.2025", "2025-01-31", true},
		{"1.2.2025", "2025-02-01", true},
		{"31.01.25", "2025-01-31", true},
		{"31/01/2025", "2025-01-31", true},
		{"31-01-2025", "2025-01-31", true},
		{"02.01.2025 14:30", "2025-01-02", true},
		{"2025-01-31", "2025-01-31", true},
		{"2025/01/31", "2025-01-31", true},
		{"2025-01-31T10:15:00Z", "2025-01-31", true},
		{"2025-01-31 23:59:59", "2025-01-31", true},
		{"2 Jan 2025", "2025-01-02", true},
		{"January 2, 2025", "2025-01-02", true},
		{"02-Jan-2025", "2025-01-02", true},
		{"", "", false},
		{"not a date", "", false},
		{"32.01.2025", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			require.Equal(t, tt.ok, ok)
			if !ok {
				assert.True(t, got.IsZero(), "zero time on failure, got %v", got)
				return
			}
			assert.Equal(t, tt.expected, FormatDate(got))
			assert.Equal(t, time.UTC, got.Location())
			assert.Zero(t, got.Hour(), "midnight")
		})
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "-1234.50", FormatAmount(ParseAmount("-1.234,5")))
	assert.Equal(t, "0.00", FormatAmount(ParseAmount("garbage")))
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "REWE Markt GmbH", CleanText("  REWE \t Markt\n GmbH "))
}

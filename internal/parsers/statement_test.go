package parsers

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"statement-engine/pkg/errors"
)

const germanExport = "Umsätze Girokonto;DE02 1203 0000 0000 2020 51\n" +
	"Zeitraum;01.01.2025 - 31.01.2025\n" +
	"Buchungstag;Empfänger;Verwendungszweck;Betrag;Währung\n" +
	"02.01.2025;REWE   Markt;Einkauf;-12,50;EUR\n" +
	"03.01.2025;ACME GmbH;Gehalt Januar;2.500,00;EUR\n" +
	"kaputt;Foo;Bar;1,00;EUR\n" +
	"05.01.2025;Stadtwerke;Strom;n/a;EUR\n"

func encodeWindows1252(t *testing.T, text string) []byte {
	t.Helper()
	encoded, err := charmap.Windows1252.NewEncoder().String(text)
	require.NoError(t, err)
	return []byte(encoded)
}

func TestStatementParser_Parse_GermanExport(t *testing.T) {
	parser := NewStatementParser(DefaultParseConfig())
	data := encodeWindows1252(t, germanExport)

	result, err := parser.Parse(context.Background(), data, ImportOptions{Source: "giro.csv"})
	require.NoError(t, err)

	assert.Equal(t, "windows-1252", result.Format.Encoding)
	assert.Equal(t, ';', result.Format.Delimiter)
	assert.Equal(t, 2, result.Format.SkipLines)
	assert.Equal(t, "Empfänger", result.Mapping["recipient"])
	assert.Equal(t, "Währung", result.Mapping["currency"])

	require.Len(t, result.Rows, 3)

	wantLines := []int{4, 5, 7}
	wantAmounts := []string{"-12.50", "2500.00", "0.00"}
	wantDates := []string{"2025-01-02", "2025-01-03", "2025-01-05"}
	for i, row := range result.Rows {
		assert.Equal(t, wantLines[i], row.Line, "row %d", i)
		assert.Equal(t, wantAmounts[i], row.Amount, "row %d", i)
		assert.Equal(t, wantDates[i], row.Date, "row %d", i)
		assert.Equal(t, "EUR", row.Currency, "row %d", i)
	}

	assert.Equal(t, "REWE Markt", result.Rows[0].Recipient, "whitespace collapsed")
	assert.Equal(t, "Gehalt Januar", result.Rows[1].Purpose)
	assert.Equal(t, "-12,50", result.Rows[0].Raw["Betrag"], "raw cell kept")

	assert.Equal(t, 1, result.Stats.Rejected)
	assert.Equal(t, 1, result.Stats.Warnings)
	require.Len(t, result.RowErrors, 2)
	assert.Equal(t, 6, result.RowErrors[0].Row.Line)
	assert.True(t, result.RowErrors[0].Rejected, "bad date rejects the row")
	assert.Equal(t, errors.CodeInvalidAmount, result.RowErrors[1].Code)
	assert.False(t, result.RowErrors[1].Rejected, "bad amount keeps the row")
}

func TestStatementParser_Parse_DetectsProfile(t *testing.T) {
	data := []byte("Date,Payee,Account number,Transaction type,Payment reference,Amount (EUR)\n" +
		"2025-01-15,Spotify,,MasterCard Payment,Premium,-9.99\n")

	parser := NewStatementParser(DefaultParseConfig())
	result, err := parser.Parse(context.Background(), data, ImportOptions{Source: "n26.csv"})
	require.NoError(t, err)

	assert.Equal(t, "n26", result.Profile)
	require.Len(t, result.Rows, 1)
	row := result.Rows[0]
	assert.Equal(t, "-9.99", row.Amount)
	assert.Equal(t, "Spotify", row.Recipient)
	assert.Equal(t, "Premium", row.Purpose)
	assert.Equal(t, "EUR", row.Currency, "profile currency")
}

func TestStatementParser_Parse_ExplicitMapping(t *testing.T) {
	data := []byte("when|who|how much\n2025-02-01|Landlord|-900\n")

	parser := NewStatementParser(DefaultParseConfig())
	result, err := parser.Parse(context.Background(), data, ImportOptions{
		Source:          "custom.csv",
		Mapping:         ColumnMapping{"date": "when", "recipient": "who", "amount": "how much"},
		DefaultCurrency: "usd",
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "-900.00", result.Rows[0].Amount)
	assert.Equal(t, "USD", result.Rows[0].Currency)
}

func TestStatementParser_Parse_InvalidMapping(t *testing.T) {
	parser := NewStatementParser(DefaultParseConfig())
	_, err := parser.Parse(context.Background(), []byte("foo;bar\n1;2\n"), ImportOptions{Source: "bad.csv"})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err), "got %v", err)
	assert.Contains(t, err.Error(), "date", "names the missing field")
}

func TestStatementParser_Parse_UnknownProfile(t *testing.T) {
	parser := NewStatementParser(DefaultParseConfig())
	_, err := parser.Parse(context.Background(), []byte("Datum;Betrag\n"), ImportOptions{Profile: "postbank"})
	require.Error(t, err)
	engineErr, ok := errors.AsEngineError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CategoryConfiguration, engineErr.Category)
}

func TestStatementParser_Parse_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	parser := NewStatementParser(DefaultParseConfig())
	_, err := parser.Parse(ctx, []byte("Datum;Betrag\n01.01.2025;1,00\n"), ImportOptions{})
	require.Error(t, err)
	engineErr, ok := errors.AsEngineError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeCancelled, engineErr.Code)
}

func TestStatementParser_Parse_FieldSizeLimit(t *testing.T) {
	long := strings.Repeat("x", 60)
	tests := []struct {
		name      string
		recipient string
		want      string
	}{
		{"field shorter than preview", "Supermarket Downtown", "'Supermarket Downtown...'"},
		{"field longer than preview", long, "'" + long[:50] + "...'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultParseConfig()
			config.MaxFieldSize = 10
			parser := NewStatementParser(config)

			data := []byte("Datum;Betrag;Empfänger\n01.01.2025;-5,00;" + tt.recipient + "\n")
			_, err := parser.Parse(context.Background(), data, ImportOptions{})
			require.Error(t, err)
			engineErr, ok := errors.AsEngineError(err)
			require.True(t, ok)
			assert.Equal(t, errors.CodeInvalidData, engineErr.Code)
			assert.Contains(t, engineErr.Message, tt.want)
		})
	}
}

func TestStatementParser_Inspect(t *testing.T) {
	parser := NewStatementParser(DefaultParseConfig())
	format, suggestions, profile, err := parser.Inspect(encodeWindows1252(t, germanExport), ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, format.SkipLines)
	assert.Len(t, format.Headers, 5)
	assert.Equal(t, "Betrag", suggestions["amount"].Header)
	assert.Nil(t, profile)
}

func TestProfiles(t *testing.T) {
	for _, p := range ListProfiles() {
		assert.NoError(t, p.Validate(), "profile %s", p.Name)
	}
	assert.Same(t, DKBProfile, GetProfile(" DKB "), "case-insensitive lookup")
	assert.Nil(t, DetectProfile([]string{"Buchungsdatum", "Betrag (€)"}), "partial header set")
}

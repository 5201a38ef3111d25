package testgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Counts(t *testing.T) {
	g := DefaultGenerator()
	ds, err := g.Generate()
	require.NoError(t, err)

	months := g.Days / 30
	want := len(g.Accounts)*g.Payments + 2*g.Transfers + g.Subscriptions*months
	assert.Equal(t, want, ds.Count())
	assert.Len(t, ds.Transfers, g.Transfers)
	assert.Equal(t, []string{"Abo 1", "Abo 2", "Abo 3"}, ds.Subscriptions)
	assert.Len(t, ds.Records(), want)
}

func TestGenerate_Deterministic(t *testing.T) {
	a, err := DefaultGenerator().Generate()
	require.NoError(t, err)
	b, err := DefaultGenerator().Generate()
	require.NoError(t, err)

	assert.Equal(t, a.CSV(1), b.CSV(1))
	assert.Equal(t, a.CSV(2), b.CSV(2))
}

func TestGenerate_TransfersCrossAccounts(t *testing.T) {
	ds, err := DefaultGenerator().Generate()
	require.NoError(t, err)

	for i, tr := range ds.Transfers {
		assert.NotEqual(t, tr.FromAccount, tr.ToAccount, "transfer %d", i)
		assert.True(t, tr.Amount.IsPositive())
		assert.False(t, tr.ToDate.Before(tr.FromDate))
		assert.LessOrEqual(t, tr.ToDate.Sub(tr.FromDate).Hours()/24, 2.0)
	}
}

func TestDataset_CSV(t *testing.T) {
	ds, err := DefaultGenerator().Generate()
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(ds.CSV(1))), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "Buchungstag;Empfänger;Verwendungszweck;Betrag", lines[0])
	assert.Len(t, lines, len(ds.Rows[1])+1)

	for _, line := range lines[1:] {
		fields := strings.Split(line, ";")
		require.Len(t, fields, 4, line)
		assert.Regexp(t, `^\d{2}\.\d{2}\.\d{4}$`, fields[0])
		assert.Regexp(t, `^-?\d+,\d{2}$`, fields[3])
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*StatementGenerator)
	}{
		{"no accounts", func(g *StatementGenerator) { g.Accounts = nil }},
		{"transfers with one account", func(g *StatementGenerator) { g.Accounts = []int64{1} }},
		{"zero days", func(g *StatementGenerator) { g.Days = 0 }},
		{"negative payments", func(g *StatementGenerator) { g.Payments = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := DefaultGenerator()
			tt.modify(g)
			_, err := g.Generate()
			assert.Error(t, err)
		})
	}
}

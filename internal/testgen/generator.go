// Package testgen builds synthetic bank statement exports with a known
// number of internal transfers and monthly subscriptions, for tests and
// benchmarks of the import and analysis pipelines.
//
// Every generated row has a unique recipient except subscription payments,
// and every transfer has a unique amount, so that the planted transfers and
// subscriptions are the only ones an analysis can find.
package testgen

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"statement-engine/internal/models"
)

// ExportHeader is the header row of generated exports
var ExportHeader = []string{"Buchungstag", "Empfänger", "Verwendungszweck", "Betrag"}

const exportDateLayout = "02.01.2006"

// StatementGenerator generates statement rows for a set of accounts
type StatementGenerator struct {
	Seed      int64
	StartDate time.Time
	Days      int
	Accounts  []int64

	// Payments is the number of card payments per account
	Payments int

	// Transfers move money from one account to the next, in account order
	Transfers int

	// Subscriptions are monthly payments from the first account
	Subscriptions int
}

// Row is one generated statement line
type Row struct {
	AccountID int64
	Date      time.Time
	Amount    decimal.Decimal
	Recipient string
	Purpose   string
}

// PlantedTransfer describes one generated transfer
type PlantedTransfer struct {
	FromAccount int64
	ToAccount   int64
	Amount      decimal.Decimal
	FromDate    time.Time
	ToDate      time.Time
}

// Dataset is the output of one generator run
type Dataset struct {
	Rows          map[int64][]Row
	Transfers     []PlantedTransfer
	Subscriptions []string
	EndDate       time.Time
}

// DefaultGenerator returns a generator for two accounts over four months
func DefaultGenerator() *StatementGenerator {
	return &StatementGenerator{
		Seed:          42,
		StartDate:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Days:          120,
		Accounts:      []int64{1, 2},
		Payments:      40,
		Transfers:     5,
		Subscriptions: 3,
	}
}

// Validate checks the generator settings
func (g *StatementGenerator) Validate() error {
	if len(g.Accounts) == 0 {
		return fmt.Errorf("at least one account is required")
	}
	if g.Transfers > 0 && len(g.Accounts) < 2 {
		return fmt.Errorf("transfers need at least two accounts")
	}
	if g.Days <= 0 {
		return fmt.Errorf("days must be positive: %d", g.Days)
	}
	if g.Payments < 0 || g.Transfers < 0 || g.Subscriptions < 0 {
		return fmt.Errorf("counts cannot be negative")
	}
	return nil
}

// Generate creates the dataset. The same seed yields the same dataset.
func (g *StatementGenerator) Generate() (*Dataset, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(g.Seed))
	ds := &Dataset{
		Rows:    make(map[int64][]Row, len(g.Accounts)),
		EndDate: g.StartDate.AddDate(0, 0, g.Days),
	}

	// Card payments stay below 300.00 so they never look like a transfer leg
	for _, account := range g.Accounts {
		for i := 0; i < g.Payments; i++ {
			cents := rng.Int63n(29900) + 100
			ds.add(Row{
				AccountID: account,
				Date:      g.StartDate.AddDate(0, 0, rng.Intn(g.Days)),
				Amount:    decimal.New(-cents, -2),
				Recipient: fmt.Sprintf("Haendler %d-%d", account, i+1),
				Purpose:   "Kartenzahlung",
			})
		}
	}

	for i := 0; i < g.Transfers; i++ {
		from := g.Accounts[i%len(g.Accounts)]
		to := g.Accounts[(i+1)%len(g.Accounts)]
		amount := decimal.NewFromInt(int64(1000 + 10*i))
		fromDate := g.StartDate.AddDate(0, 0, rng.Intn(g.Days))
		toDate := fromDate.AddDate(0, 0, rng.Intn(3))
		text := fmt.Sprintf("Umbuchung %d", i+1)

		ds.add(Row{AccountID: from, Date: fromDate, Amount: amount.Neg(), Recipient: text, Purpose: fmt.Sprintf("an Konto %d", to)})
		ds.add(Row{AccountID: to, Date: toDate, Amount: amount, Recipient: text, Purpose: fmt.Sprintf("von Konto %d", from)})
		ds.Transfers = append(ds.Transfers, PlantedTransfer{
			FromAccount: from,
			ToAccount:   to,
			Amount:      amount,
			FromDate:    fromDate,
			ToDate:      toDate,
		})
	}

	months := g.Days / 30
	for i := 0; i < g.Subscriptions; i++ {
		payee := fmt.Sprintf("Abo %d", i+1)
		amount := decimal.New(-(599 + int64(i)*100), -2)
		for m := 0; m < months; m++ {
			ds.add(Row{
				AccountID: g.Accounts[0],
				Date:      g.StartDate.AddDate(0, m, i),
				Amount:    amount,
				Recipient: payee,
				Purpose:   fmt.Sprintf("Abo %d Monat %d", i+1, m+1),
			})
		}
		ds.Subscriptions = append(ds.Subscriptions, payee)
	}

	for account := range ds.Rows {
		rows := ds.Rows[account]
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	}
	return ds, nil
}

func (ds *Dataset) add(row Row) {
	ds.Rows[row.AccountID] = append(ds.Rows[row.AccountID], row)
}

// Count returns the number of generated rows over all accounts
func (ds *Dataset) Count() int {
	n := 0
	for _, rows := range ds.Rows {
		n += len(rows)
	}
	return n
}

// CSV renders the rows of one account as a semicolon separated export with
// German dates and decimal commas
func (ds *Dataset) CSV(accountID int64) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'

	w.Write(ExportHeader)
	for _, row := range ds.Rows[accountID] {
		w.Write([]string{
			row.Date.Format(exportDateLayout),
			row.Recipient,
			row.Purpose,
			germanAmount(row.Amount),
		})
	}
	w.Flush()
	return buf.Bytes()
}

// Records returns every row as a transaction record with ids from 1, in
// account order
func (ds *Dataset) Records() []*models.TransactionRecord {
	accounts := make([]int64, 0, len(ds.Rows))
	for account := range ds.Rows {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })

	var records []*models.TransactionRecord
	var id int64
	for _, account := range accounts {
		for _, row := range ds.Rows[account] {
			id++
			records = append(records, models.NewTransactionRecord(id, account, row.Date, row.Amount, row.Recipient, row.Purpose))
		}
	}
	return records
}

func germanAmount(d decimal.Decimal) string {
	return strings.Replace(d.StringFixed(2), ".", ",", 1)
}

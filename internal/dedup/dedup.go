// Package dedup fingerprints normalized transactions and filters rows that an
// account has already seen.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"statement-engine/internal/models"
	"statement-engine/pkg/logger"
)

// GenerateHash returns the hex SHA-256 fingerprint of fields. Keys are
// sorted and values trimmed, so insertion order and padding do not matter.
// Keys and values are length-prefixed so no two field sets share an encoding.
func GenerateHash(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		v := strings.TrimSpace(fields[k])
		fmt.Fprintf(h, "%d:%s%d:%s", len(k), k, len(v), v)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalFields builds the fingerprinted tuple of a row. Recipient case is
// preserved, its whitespace collapsed.
func CanonicalFields(row models.NormalizedRow) map[string]string {
	return map[string]string{
		models.FieldDate:      strings.TrimSpace(row.Date),
		models.FieldAmount:    strings.TrimSpace(row.Amount),
		models.FieldRecipient: strings.Join(strings.Fields(row.Recipient), " "),
	}
}

// RowHash fingerprints a normalized row
func RowHash(row models.NormalizedRow) string {
	return GenerateHash(CanonicalFields(row))
}

// RecordHash fingerprints a stored record the same way its row was
func RecordHash(rec *models.TransactionRecord) string {
	return RowHash(models.NormalizedRow{
		Date:      rec.Date.Format(models.DateLayout),
		Amount:    rec.Amount.StringFixed(2),
		Recipient: rec.Recipient,
	})
}

// IsDuplicate reports whether hash is in known
func IsDuplicate(hash string, known map[string]struct{}) bool {
	_, ok := known[hash]
	return ok
}

// FilterResult splits a batch into new and already seen rows
type FilterResult struct {
	Kept       []models.NormalizedRow `json:"kept"`
	Duplicates []models.NormalizedRow `json:"duplicates"`
	NewHashes  map[string]struct{}    `json:"-"`
}

// Filter fingerprints rows and marks those whose hash is in known or appears
// earlier in the same batch. known is only read; the hashes of kept rows are
// returned for the caller to merge.
func Filter(rows []models.NormalizedRow, known map[string]struct{}) *FilterResult {
	result := &FilterResult{NewHashes: make(map[string]struct{})}

	for _, row := range rows {
		row.Hash = RowHash(row)
		_, seen := result.NewHashes[row.Hash]
		if seen || IsDuplicate(row.Hash, known) {
			row.IsDuplicate = true
			result.Duplicates = append(result.Duplicates, row)
			continue
		}
		row.IsDuplicate = false
		result.NewHashes[row.Hash] = struct{}{}
		result.Kept = append(result.Kept, row)
	}

	logger.WithComponent("dedup").WithFields(logger.Fields{
		"rows":       len(rows),
		"kept":       len(result.Kept),
		"duplicates": len(result.Duplicates),
	}).Debug("Filtered duplicate rows")

	return result
}

// Merge adds hashes into known, allocating it when nil
func Merge(known, hashes map[string]struct{}) map[string]struct{} {
	if known == nil {
		known = make(map[string]struct{}, len(hashes))
	}
	for h := range hashes {
		known[h] = struct{}{}
	}
	return known
}

package parsers

import (
	"fmt"
	"sort"
	"strings"

	"statement-engine/internal/models"
)

// BankProfile describes a known bank export layout. A profile whose mapped
// headers are all present in a file is used instead of suggestions.
type BankProfile struct {
	Name        string        `json:"name" yaml:"name"`
	Encoding    string        `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	Delimiter   rune          `json:"delimiter,omitempty" yaml:"-"`
	Mapping     ColumnMapping `json:"mapping" yaml:"mapping"`
	Currency    string        `json:"currency,omitempty" yaml:"currency,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
}

// Validate checks that the profile maps every required field
func (p *BankProfile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("profile name cannot be empty")
	}
	for _, field := range DefaultRequiredFields {
		if strings.TrimSpace(p.Mapping[field]) == "" {
			return fmt.Errorf("profile %s does not map required field %s", p.Name, field)
		}
	}
	return nil
}

// Matches reports whether every mapped header of the profile is in headers
func (p *BankProfile) Matches(headers []string) bool {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[strings.ToLower(strings.TrimSpace(h))] = true
	}
	for _, header := range p.Mapping {
		if !present[strings.ToLower(header)] {
			return false
		}
	}
	return len(p.Mapping) > 0
}

// Predefined profiles for common exports
var (
	DKBProfile = &BankProfile{
		Name:      "dkb",
		Encoding:  "utf-8",
		Delimiter: ';',
		Currency:  "EUR",
		Mapping: ColumnMapping{
			models.FieldDate:      "Buchungsdatum",
			models.FieldAmount:    "Betrag (€)",
			models.FieldRecipient: "Zahlungsempfänger*in",
			models.FieldPurpose:   "Verwendungszweck",
		},
		Description: "DKB giro account export with account preamble",
	}

	INGProfile = &BankProfile{
		Name:      "ing",
		Encoding:  "windows-1252",
		Delimiter: ';',
		Mapping: ColumnMapping{
			models.FieldDate:      "Buchung",
			models.FieldAmount:    "Betrag",
			models.FieldRecipient: "Auftraggeber/Empfänger",
			models.FieldPurpose:   "Verwendungszweck",
			models.FieldCurrency:  "Währung",
		},
		Description: "ING Germany Umsatzanzeige export",
	}

	SparkasseProfile = &BankProfile{
		Name:      "sparkasse",
		Encoding:  "windows-1252",
		Delimiter: ';',
		Mapping: ColumnMapping{
			models.FieldDate:      "Buchungstag",
			models.FieldAmount:    "Betrag",
			models.FieldRecipient: "Beguenstigter/Zahlungspflichtiger",
			models.FieldPurpose:   "Verwendungszweck",
			models.FieldCurrency:  "Waehrung",
		},
		Description: "Sparkasse CSV-CAMT export",
	}

	N26Profile = &BankProfile{
		Name:      "n26",
		Encoding:  "utf-8",
		Delimiter: ',',
		Currency:  "EUR",
		Mapping: ColumnMapping{
			models.FieldDate:      "Date",
			models.FieldAmount:    "Amount (EUR)",
			models.FieldRecipient: "Payee",
			models.FieldPurpose:   "Payment reference",
		},
		Description: "N26 transaction export",
	}
)

var profiles = map[string]*BankProfile{
	DKBProfile.Name:       DKBProfile,
	INGProfile.Name:       INGProfile,
	SparkasseProfile.Name: SparkasseProfile,
	N26Profile.Name:       N26Profile,
}

// GetProfile returns a predefined profile by name, or nil
func GetProfile(name string) *BankProfile {
	return profiles[strings.ToLower(strings.TrimSpace(name))]
}

// ListProfiles returns all predefined profiles sorted by name
func ListProfiles() []*BankProfile {
	list := make([]*BankProfile, 0, len(profiles))
	for _, p := range profiles {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// DetectProfile returns the profile matching headers, preferring the one that
// maps the most fields, or nil when none matches
func DetectProfile(headers []string) *BankProfile {
	var best *BankProfile
	for _, p := range ListProfiles() {
		if p.Matches(headers) && (best == nil || len(p.Mapping) > len(best.Mapping)) {
			best = p
		}
	}
	return best
}

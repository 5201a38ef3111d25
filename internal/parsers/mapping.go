package parsers

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/texttheater/golang-levenshtein/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"statement-engine/internal/models"
)

// MinMappingConfidence is the floor below which a header is not suggested
const MinMappingConfidence = 0.5

// CanonicalFields lists the fields a statement is mapped onto, in
// suggestion tie-break order
var CanonicalFields = []string{
	models.FieldDate,
	models.FieldAmount,
	models.FieldRecipient,
	models.FieldPurpose,
	models.FieldCurrency,
}

// DefaultRequiredFields are the fields an import cannot do without
var DefaultRequiredFields = []string{models.FieldDate, models.FieldAmount}

// FieldSynonyms are curated header names per canonical field covering
// German, English, Spanish, Portuguese, French and Dutch exports. Entries are
// written in normalized form (see normalizeHeader).
var FieldSynonyms = map[string][]string{
	models.FieldDate: {
		"datum", "buchungstag", "buchungsdatum", "buchung", "valuta", "valutadatum", "wertstellung",
		"date", "booking date", "transaction date", "posting date", "value date", "started date", "completed date",
		"fecha", "fecha operacion", "fecha valor",
		"data", "data movimento", "data operacao",
		"date operation", "date de valeur", "date comptable",
		"transactiedatum", "boekdatum", "rentedatum",
	},
	models.FieldAmount: {
		"betrag", "umsatz", "betrag eur",
		"amount", "value", "transaction amount", "amount eur",
		"importe", "cantidad", "valor", "montante", "montant", "bedrag",
	},
	models.FieldRecipient: {
		"empfaenger", "zahlungsempfaenger", "zahlungsempfaenger in", "auftraggeber empfaenger",
		"beguenstigter zahlungspflichtiger", "name zahlungsbeteiligter", "zahlungspflichtige r",
		"payee", "recipient", "beneficiary", "counterparty", "merchant", "name",
		"beneficiario", "destinatario", "ordenante",
		"beneficiaire", "tiers",
		"naam", "naam tegenpartij", "tegenpartij",
	},
	models.FieldPurpose: {
		"verwendungszweck", "zweck",
		"purpose", "reference", "payment reference", "memo", "description", "details", "narrative",
		"concepto", "descripcion", "descricao", "referencia",
		"libelle", "motif",
		"omschrijving", "mededelingen",
	},
	models.FieldCurrency: {
		"waehrung", "currency", "ccy", "moneda", "moeda", "devise", "munt",
	},
}

// Suggestion is the best header for a canonical field and its confidence
type Suggestion struct {
	Header     string  `json:"header"`
	Confidence float64 `json:"confidence"`
}

// ColumnMapping maps canonical field names to raw header names
type ColumnMapping map[string]string

// Suggestions holds one Suggestion per mapped canonical field
type Suggestions map[string]Suggestion

// ToMapping drops the confidences
func (s Suggestions) ToMapping() ColumnMapping {
	m := make(ColumnMapping, len(s))
	for field, sug := range s {
		m[field] = sug.Header
	}
	return m
}

var umlauts = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss")

// normalizeHeader folds case, spells out umlauts, drops other diacritics and
// reduces punctuation to single spaces
func normalizeHeader(s string) string {
	s = umlauts.Replace(cases.Fold().String(s))

	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}

	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// headerScore rates how well header h names a field described by synonym s;
// both are normalized
func headerScore(h, s string) float64 {
	if h == "" || s == "" {
		return 0
	}
	if h == s {
		return 1.0
	}

	shorter, longer := s, h
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	ratio := float64(len(shorter)) / float64(len(longer))

	if strings.Contains(" "+longer+" ", " "+shorter+" ") {
		return 0.7 + 0.25*ratio
	}
	// compounds such as "zahlungsempfaenger" or "buchungsdatum"
	if len(shorter) >= 4 && strings.Contains(longer, shorter) {
		return 0.6 + 0.25*ratio
	}

	a, b := []rune(h), []rune(s)
	total := len(a) + len(b)
	distance := levenshtein.DistanceForStrings(a, b, levenshtein.DefaultOptions)
	similarity := float64(total-distance) / float64(total)
	if similarity < 0 {
		similarity = 0
	}
	return 0.8 * similarity
}

// fieldScore is the best synonym score of header for field
func fieldScore(field, header string) float64 {
	best := 0.0
	for _, syn := range FieldSynonyms[field] {
		if score := headerScore(header, syn); score > best {
			best = score
		}
	}
	return best
}

type candidate struct {
	field      string
	fieldRank  int
	header     int
	confidence float64
}

// SuggestMappings proposes a header for each canonical field. Every header
// is scored against the field's synonyms; pairs are assigned greedily by
// descending confidence so that a header serves at most one field. Fields
// with no header scoring at least MinMappingConfidence are omitted.
func SuggestMappings(headers []string) Suggestions {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = normalizeHeader(h)
	}

	var candidates []candidate
	for rank, field := range CanonicalFields {
		for i, h := range normalized {
			score := fieldScore(field, h)
			if score >= MinMappingConfidence {
				candidates = append(candidates, candidate{field: field, fieldRank: rank, header: i, confidence: score})
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.confidence != b.confidence {
			return a.confidence > b.confidence
		}
		if a.fieldRank != b.fieldRank {
			return a.fieldRank < b.fieldRank
		}
		return a.header < b.header
	})

	result := make(Suggestions)
	usedHeaders := make(map[int]bool)
	for _, c := range candidates {
		if _, done := result[c.field]; done || usedHeaders[c.header] {
			continue
		}
		result[c.field] = Suggestion{Header: strings.TrimSpace(headers[c.header]), Confidence: c.confidence}
		usedHeaders[c.header] = true
	}
	return result
}

// ValidateMapping checks a user-confirmed mapping against the file headers.
// It never fails; all problems are reported as human-readable strings and ok
// is false when there is at least one.
func ValidateMapping(mapping map[string]string, headers []string, required []string) (bool, []string) {
	var problems []string

	for _, field := range required {
		if strings.TrimSpace(mapping[field]) == "" {
			problems = append(problems, fmt.Sprintf("missing required field %q", field))
		}
	}

	known := make(map[string]bool, len(headers))
	for _, h := range headers {
		known[strings.TrimSpace(h)] = true
	}
	canonical := make(map[string]bool, len(CanonicalFields))
	for _, f := range CanonicalFields {
		canonical[f] = true
	}

	fields := make([]string, 0, len(mapping))
	for field := range mapping {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		header := strings.TrimSpace(mapping[field])
		switch {
		case !canonical[field]:
			problems = append(problems, fmt.Sprintf("unknown field %q", field))
		case header == "":
			// reported above when required
		case !known[header]:
			problems = append(problems, fmt.Sprintf("field %q maps to unknown header %q", field, header))
		}
	}

	return len(problems) == 0, problems
}

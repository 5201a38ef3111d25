package matcher

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"statement-engine/internal/models"
	"statement-engine/pkg/logger"
)

// Matcher finds transfer pairs in a snapshot of transactions
type Matcher struct {
	Config *TransferConfig
	logger logger.Logger
}

// TransferCandidate is a scored outflow/inflow pair
type TransferCandidate struct {
	From       *models.TransactionRecord `json:"from"`
	To         *models.TransactionRecord `json:"to"`
	DateDiff   int                       `json:"dateDiffDays"`
	DateScore  float64                   `json:"dateScore"`
	TextScore  float64                   `json:"textScore"`
	Confidence float64                   `json:"confidence"`
	MatchType  MatchType                 `json:"matchType"`
	Reasons    []string                  `json:"reasons"`
}

// DetectionResult is the outcome of one transfer detection run
type DetectionResult struct {
	Links      []*models.TransferLink `json:"links"`
	Accepted   []*TransferCandidate   `json:"accepted"`
	Ambiguous  []*AmbiguousOutflow    `json:"ambiguous,omitempty"`
	UsedIDs    map[int64]struct{}     `json:"-"`
	Summary    DetectionSummary       `json:"summary"`
	IndexStats IndexStats             `json:"indexStats"`
}

// DetectionSummary provides aggregate statistics about a detection run
type DetectionSummary struct {
	Outflows         int             `json:"outflows"`
	Inflows          int             `json:"inflows"`
	CandidatePairs   int             `json:"candidatePairs"`
	LinksCreated     int             `json:"linksCreated"`
	ExactMatches     int             `json:"exactMatches"`
	CloseMatches     int             `json:"closeMatches"`
	PossibleMatches  int             `json:"possibleMatches"`
	Excluded         int             `json:"excluded"`
	TotalTransferred decimal.Decimal `json:"totalTransferred"`
}

// NewMatcher creates a matcher with the specified configuration
func NewMatcher(config *TransferConfig) *Matcher {
	if config == nil {
		config = DefaultTransferConfig()
	}

	return &Matcher{
		Config: config,
		logger: logger.WithComponent("transfer_matcher"),
	}
}

// tokenize returns the lower-cased word set of text
func tokenize(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// CalculateTextSimilarity is the Jaccard ratio of the word sets of both
// transactions' recipient and purpose. Identical text scores 1.0; missing
// text on either side scores 0.
func CalculateTextSimilarity(a, b *models.TransactionRecord) float64 {
	if a == nil || b == nil {
		return 0.0
	}

	wordsA := tokenize(a.Text())
	wordsB := tokenize(b.Text())
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0.0
	}
	if strings.EqualFold(a.Text(), b.Text()) {
		return 1.0
	}

	shared := 0
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			shared++
		}
	}
	union := len(wordsA) + len(wordsB) - shared
	return float64(shared) / float64(union)
}

// CalculateConfidence combines date proximity and text similarity of a
// pair diffDays apart into a score in [0,1]
func (m *Matcher) CalculateConfidence(a, b *models.TransactionRecord, diffDays int) float64 {
	score := m.Config.DateScore(diffDays) + m.Config.TextWeight*CalculateTextSimilarity(a, b)
	return math.Max(0.0, math.Min(1.0, score))
}

// CalculateConfidence scores a pair with the default configuration
func CalculateConfidence(a, b *models.TransactionRecord, diffDays int) float64 {
	return NewMatcher(nil).CalculateConfidence(a, b, diffDays)
}

// scorePair scores one outflow/inflow pair
func (m *Matcher) scorePair(from, to *models.TransactionRecord) *TransferCandidate {
	diff := models.DaysBetween(from.Date, to.Date)
	candidate := &TransferCandidate{
		From:      from,
		To:        to,
		DateDiff:  diff,
		DateScore: m.Config.DateScore(diff),
		TextScore: CalculateTextSimilarity(from, to),
	}
	candidate.Confidence = m.CalculateConfidence(from, to, diff)
	candidate.MatchType = m.Config.ClassifyConfidence(candidate.Confidence)
	candidate.Reasons = m.generateReasons(candidate)
	return candidate
}

// generateReasons generates human-readable reasons for the pairing
func (m *Matcher) generateReasons(c *TransferCandidate) []string {
	reasons := []string{"Exact amount match", "Different accounts"}

	switch {
	case c.DateDiff == 0:
		reasons = append(reasons, "Same date")
	case c.DateDiff == 1:
		reasons = append(reasons, "One day apart")
	default:
		reasons = append(reasons, fmt.Sprintf("%d days apart", c.DateDiff))
	}

	switch {
	case c.TextScore == 1.0:
		reasons = append(reasons, "Identical text")
	case c.TextScore > 0.0:
		reasons = append(reasons, fmt.Sprintf("Shared words (%.0f%%)", c.TextScore*100))
	}

	return reasons
}

// FindCandidates scores every inflow that could pair with outflow, best
// first. Pairs below the confidence floor are dropped.
func (m *Matcher) FindCandidates(outflow *models.TransactionRecord, index *AmountIndex) []*TransferCandidate {
	var results []*TransferCandidate
	for _, in := range index.Candidates(outflow, m.Config) {
		c := m.scorePair(outflow, in)
		if c.Confidence >= m.Config.MinConfidenceScore {
			results = append(results, c)
		}
	}
	sortCandidates(results)
	return results
}

// sortCandidates orders by confidence desc, date diff asc, from id, to id
func sortCandidates(cs []*TransferCandidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.DateDiff != b.DateDiff {
			return a.DateDiff < b.DateDiff
		}
		if a.From.ID != b.From.ID {
			return a.From.ID < b.From.ID
		}
		return a.To.ID < b.To.ID
	})
}

// FindTransfers detects transfers among records. Transactions in excluded,
// typically those already linked, never join a new link. Pairs are accepted
// greedily by confidence so each transaction is used at most once.
func (m *Matcher) FindTransfers(records []*models.TransactionRecord, excluded map[int64]struct{}) *DetectionResult {
	used := make(map[int64]struct{}, len(excluded))
	for id := range excluded {
		used[id] = struct{}{}
	}

	index := NewAmountIndex(records, used)
	result := &DetectionResult{
		UsedIDs:    used,
		IndexStats: index.GetIndexStats(),
		Summary: DetectionSummary{
			Inflows:          len(index.AllTransactions),
			TotalTransferred: decimal.Zero,
		},
	}

	var pairs []*TransferCandidate
	perOutflow := make(map[int64][]*TransferCandidate)
	for _, rec := range records {
		if rec == nil || !rec.IsOutflow() {
			continue
		}
		if _, skip := used[rec.ID]; skip {
			result.Summary.Excluded++
			continue
		}
		result.Summary.Outflows++

		candidates := m.FindCandidates(rec, index)
		perOutflow[rec.ID] = candidates
		pairs = append(pairs, candidates...)
	}
	result.Summary.CandidatePairs = len(pairs)
	result.Ambiguous = findAmbiguous(perOutflow)

	sortCandidates(pairs)
	for _, c := range pairs {
		if _, taken := used[c.From.ID]; taken {
			continue
		}
		if _, taken := used[c.To.ID]; taken {
			continue
		}

		link, err := models.NewTransferLink(c.From, c.To, true, c.Confidence, strings.Join(c.Reasons, "; "))
		if err != nil {
			m.logger.WithError(err).WithFields(logger.Fields{
				"from": c.From.ID,
				"to":   c.To.ID,
			}).Warn("Skipping invalid transfer pair")
			continue
		}

		used[c.From.ID] = struct{}{}
		used[c.To.ID] = struct{}{}
		result.Links = append(result.Links, link)
		result.Accepted = append(result.Accepted, c)
		m.countMatch(&result.Summary, c)
	}
	result.Summary.LinksCreated = len(result.Links)

	m.logger.WithFields(logger.Fields{
		"outflows":   result.Summary.Outflows,
		"inflows":    result.Summary.Inflows,
		"candidates": result.Summary.CandidatePairs,
		"links":      result.Summary.LinksCreated,
	}).Debug("Transfer detection finished")

	return result
}

func (m *Matcher) countMatch(summary *DetectionSummary, c *TransferCandidate) {
	switch c.MatchType {
	case MatchExact:
		summary.ExactMatches++
	case MatchClose:
		summary.CloseMatches++
	case MatchPossible:
		summary.PossibleMatches++
	}
	summary.TotalTransferred = summary.TotalTransferred.Add(c.From.AbsoluteAmount())
}

// ValidateConfiguration validates the matcher configuration
func (m *Matcher) ValidateConfiguration() error {
	return m.Config.Validate()
}

// GetConfiguration returns a copy of the current configuration
func (m *Matcher) GetConfiguration() *TransferConfig {
	return m.Config.Clone()
}

// UpdateConfiguration updates the transfer configuration
func (m *Matcher) UpdateConfiguration(config *TransferConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	m.Config = config.Clone()
	return nil
}

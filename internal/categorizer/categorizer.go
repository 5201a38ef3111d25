// Package categorizer assigns categories to transactions from ordered
// substring rules. The first rule with a matching pattern wins.
package categorizer

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"statement-engine/internal/models"
	"statement-engine/pkg/errors"
	"statement-engine/pkg/logger"
)

// TextFields is the text of a transaction that rules are matched against
type TextFields struct {
	Recipient string
	Purpose   string
}

// FieldsOf returns the matchable text of a record
func FieldsOf(rec *models.TransactionRecord) TextFields {
	return TextFields{Recipient: rec.Recipient, Purpose: rec.Purpose}
}

func (f TextFields) haystack() string {
	return fold(f.Recipient + " " + f.Purpose)
}

// fold lower-cases s with Unicode case folding. Casers keep state, so one is
// created per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

// MatchCategory returns the category of the first rule in rules with a
// pattern contained in recipient + " " + purpose, ignoring case. Blank
// patterns never match.
func MatchCategory(fields TextFields, rules []models.CategoryRule) models.CategoryMatch {
	text := fields.haystack()
	for _, rule := range rules {
		for _, pattern := range rule.ActivePatterns() {
			if strings.Contains(text, fold(pattern)) {
				return models.Found(rule.CategoryID)
			}
		}
	}
	return models.NotFound()
}

// compiledRule holds a rule with its patterns folded once
type compiledRule struct {
	categoryID int64
	patterns   []string
}

// Categorizer applies an immutable rule list to records
type Categorizer struct {
	rules     []models.CategoryRule
	compiled  []compiledRule
	overwrite bool
	logger    logger.Logger
}

// Option configures a Categorizer
type Option func(*Categorizer)

// WithOverwrite makes Apply re-categorize records that already have a category
func WithOverwrite(overwrite bool) Option {
	return func(c *Categorizer) {
		c.overwrite = overwrite
	}
}

// WithLogger sets the logger used by the categorizer
func WithLogger(l logger.Logger) Option {
	return func(c *Categorizer) {
		c.logger = l
	}
}

// New creates a categorizer over a copy of rules; rule order is priority
func New(rules []models.CategoryRule, opts ...Option) *Categorizer {
	c := &Categorizer{
		rules:  append([]models.CategoryRule(nil), rules...),
		logger: logger.WithComponent("categorizer"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.compiled = make([]compiledRule, 0, len(c.rules))
	for _, rule := range c.rules {
		cr := compiledRule{categoryID: rule.CategoryID}
		for _, p := range rule.ActivePatterns() {
			cr.patterns = append(cr.patterns, fold(p))
		}
		c.compiled = append(c.compiled, cr)
	}
	return c
}

// Rules returns a copy of the rule list
func (c *Categorizer) Rules() []models.CategoryRule {
	return append([]models.CategoryRule(nil), c.rules...)
}

// Match categorizes one piece of text
func (c *Categorizer) Match(fields TextFields) models.CategoryMatch {
	text := fields.haystack()
	for _, rule := range c.compiled {
		for _, pattern := range rule.patterns {
			if strings.Contains(text, pattern) {
				return models.Found(rule.categoryID)
			}
		}
	}
	return models.NotFound()
}

// Apply returns the category each record should be assigned, keyed by
// transaction id. Records that already have a category are skipped unless
// the categorizer overwrites. Records are not modified.
func (c *Categorizer) Apply(records []*models.TransactionRecord) map[int64]int64 {
	assignments := make(map[int64]int64)
	skipped := 0

	for _, rec := range records {
		if rec.HasCategory() && !c.overwrite {
			skipped++
			continue
		}
		if id, ok := c.Match(FieldsOf(rec)).Get(); ok {
			assignments[rec.ID] = id
		}
	}

	c.logger.WithFields(logger.Fields{
		"records":  len(records),
		"assigned": len(assignments),
		"skipped":  skipped,
		"rules":    len(c.rules),
	}).Debug("Applied category rules")

	return assignments
}

// ruleFile is the YAML layout of a rule file
type ruleFile struct {
	Rules []models.CategoryRule `yaml:"rules"`
}

// ParseRules reads ordered rules from YAML. File order is priority.
//
//	rules:
//	  - category_id: 3
//	    name: groceries
//	    patterns: [rewe, edeka, lidl]
func ParseRules(data []byte) ([]models.CategoryRule, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, "rules", 0, "", "", err).
			WithSuggestion("rule files need a top-level 'rules' list")
	}
	if err := ValidateRules(file.Rules); err != nil {
		return nil, err
	}
	return file.Rules, nil
}

// LoadRules reads a YAML rule file
func LoadRules(path string) ([]models.CategoryRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, errors.FileError(errors.CodeFilePermission, path, err)
	}

	rules, err := ParseRules(data)
	if err != nil {
		if engineErr, ok := errors.AsEngineError(err); ok {
			return nil, engineErr.WithContext("file", path)
		}
		return nil, err
	}

	logger.WithComponent("categorizer").WithFields(logger.Fields{
		"file":  path,
		"rules": len(rules),
	}).Debug("Loaded category rules")
	return rules, nil
}

// ValidateRules checks that every rule names a category. Rules without
// patterns are allowed; they never match.
func ValidateRules(rules []models.CategoryRule) error {
	for i, rule := range rules {
		if rule.CategoryID <= 0 {
			name := rule.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i+1)
			}
			return errors.ValidationError(errors.CodeInvalidRuleConfig, name, "missing category_id", nil).
				WithContext("index", i)
		}
	}
	return nil
}

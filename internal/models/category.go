package models

import (
	"fmt"
	"strings"
)

// CategoryRule assigns CategoryID to any transaction whose text contains one
// of Patterns. Rules are evaluated in slice order.
type CategoryRule struct {
	CategoryID int64    `json:"categoryId" yaml:"category_id"`
	Name       string   `json:"name,omitempty" yaml:"name,omitempty"`
	Patterns   []string `json:"patterns" yaml:"patterns"`
}

// ActivePatterns returns the non-blank patterns of the rule
func (r CategoryRule) ActivePatterns() []string {
	active := make([]string, 0, len(r.Patterns))
	for _, p := range r.Patterns {
		if strings.TrimSpace(p) != "" {
			active = append(active, p)
		}
	}
	return active
}

// CategoryMatch is the outcome of matching a transaction against rules
type CategoryMatch struct {
	categoryID int64
	found      bool
}

// Found returns a match for categoryID
func Found(categoryID int64) CategoryMatch {
	return CategoryMatch{categoryID: categoryID, found: true}
}

// NotFound returns the empty match
func NotFound() CategoryMatch {
	return CategoryMatch{}
}

// Get returns the category id and whether a rule matched
func (m CategoryMatch) Get() (int64, bool) {
	return m.categoryID, m.found
}

// IsFound reports whether a rule matched
func (m CategoryMatch) IsFound() bool {
	return m.found
}

func (m CategoryMatch) String() string {
	if !m.found {
		return "NotFound"
	}
	return fmt.Sprintf("Found(%d)", m.categoryID)
}

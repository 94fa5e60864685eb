// ABOUTME: Name matching between LINE display names and deal clients
// ABOUTME: Uses symmetric case-sensitive substring containment over unbound deals
package notify

import (
	"strings"

	"github.com/harperreed/dealboard/models"
)

// Matcher finds deals whose client name relates to an inbound name.
type Matcher struct {
	deals []models.Deal
}

// NewMatcher creates a matcher over candidate deals. Bound deals and deals
// without a client name are ignored.
func NewMatcher(deals []models.Deal) *Matcher {
	m := &Matcher{}
	for _, d := range deals {
		if d.IsBound() || normalizeName(d.Client) == "" {
			continue
		}
		m.deals = append(m.deals, d)
	}
	return m
}

// Match returns every deal whose client contains name or is contained in
// name. Both sides are trimmed of surrounding whitespace first; beyond that
// matching is purely textual, with no case folding and no fuzzy matching.
// An empty name matches nothing.
func (m *Matcher) Match(name string) []models.Deal {
	name = normalizeName(name)
	if name == "" {
		return nil
	}

	var matches []models.Deal
	for _, d := range m.deals {
		client := normalizeName(d.Client)
		if strings.Contains(name, client) || strings.Contains(client, name) {
			matches = append(matches, d)
		}
	}
	return matches
}

// normalizeName trims surrounding whitespace, including the ideographic space.
func normalizeName(s string) string {
	return strings.Trim(s, " \t\r\n　")
}

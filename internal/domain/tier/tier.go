// Package tier maps subscription tiers to their entitlement ceilings.
package tier

import "strings"

// Built-in tier identifiers.
const (
	Free          = "free"
	Basic         = "basic"
	Pro           = "pro"
	UnlimitedTier = "unlimited"
)

// Entitlement holds the ceilings granted by one tier. Immutable.
type Entitlement struct {
	ID                  string `json:"tier"`
	DailySearch         Limit  `json:"daily_search_limit"`
	MonthlyVerification Limit  `json:"monthly_verification_limit"`
}

// IsUnlimited reports whether both resources are uncapped.
func (e Entitlement) IsUnlimited() bool {
	return e.DailySearch.IsUnlimited() && e.MonthlyVerification.IsUnlimited()
}

// DefaultTable returns the built-in entitlement table.
func DefaultTable() []Entitlement {
	return []Entitlement{
		{ID: Free, DailySearch: Finite(10), MonthlyVerification: Finite(25)},
		{ID: Basic, DailySearch: Finite(50), MonthlyVerification: Finite(500)},
		{ID: Pro, DailySearch: Finite(250), MonthlyVerification: Finite(2500)},
		{ID: UnlimitedTier, DailySearch: Unlimited, MonthlyVerification: Unlimited},
	}
}

// Policy resolves tier identifiers to entitlements. Safe for concurrent use.
type Policy struct {
	table map[string]Entitlement
}

// NewPolicy builds a policy from entries. A missing free tier is filled
// from the built-in table so lookups always have a fallback.
func NewPolicy(entries ...Entitlement) *Policy {
	p := &Policy{table: make(map[string]Entitlement, len(entries)+1)}
	for _, e := range entries {
		e.ID = normalize(e.ID)
		if e.ID == "" {
			continue
		}
		p.table[e.ID] = e
	}
	if _, ok := p.table[Free]; !ok {
		p.table[Free] = DefaultTable()[0]
	}
	return p
}

// DefaultPolicy returns a policy over DefaultTable.
func DefaultPolicy() *Policy {
	return NewPolicy(DefaultTable()...)
}

// LimitsFor returns the entitlement for id. Unknown identifiers resolve to
// the free tier, never to an error.
func (p *Policy) LimitsFor(id string) Entitlement {
	e, _ := p.Lookup(id)
	return e
}

// Lookup is LimitsFor that also reports whether id was known.
func (p *Policy) Lookup(id string) (Entitlement, bool) {
	if e, ok := p.table[normalize(id)]; ok {
		return e, true
	}
	return p.table[Free], false
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

package domain

import (
	"fmt"
	"time"
)

// ModifierScope is the competition category a pricing modifier belongs to.
// Non-stackable modifiers only compete within their own scope.
type ModifierScope string

const (
	ScopeGlobal    ModifierScope = "GLOBAL"
	ScopeZone      ModifierScope = "ZONE"
	ScopeSegment   ModifierScope = "SEGMENT"
	ScopeProduct   ModifierScope = "PRODUCT"
	ScopeAttribute ModifierScope = "ATTRIBUTE"
)

// Rank returns the deterministic ordering of scopes used to break priority
// ties in the resolved adjustment chain.
func (s ModifierScope) Rank() int {
	switch s {
	case ScopeGlobal:
		return 0
	case ScopeZone:
		return 1
	case ScopeSegment:
		return 2
	case ScopeProduct:
		return 3
	case ScopeAttribute:
		return 4
	default:
		return 5
	}
}

// Valid reports whether s is a known scope.
func (s ModifierScope) Valid() bool {
	return s.Rank() < 5
}

// ModifierType encodes the direction and shape of an adjustment.
// The Value on a modifier is always a non-negative magnitude; direction
// comes from the type.
type ModifierType string

const (
	PercentInc ModifierType = "PERCENT_INC"
	PercentDec ModifierType = "PERCENT_DEC"
	FixedInc   ModifierType = "FIXED_INC"
	FixedDec   ModifierType = "FIXED_DEC"
)

// IsDecrease reports whether the type reduces the price.
func (t ModifierType) IsDecrease() bool {
	return t == PercentDec || t == FixedDec
}

// Valid reports whether t is a known modifier type.
func (t ModifierType) Valid() bool {
	switch t {
	case PercentInc, PercentDec, FixedInc, FixedDec:
		return true
	}
	return false
}

// AppliesOn selects the running value an adjustment is computed against.
type AppliesOn string

const (
	AppliesOnUnit  AppliesOn = "UNIT"
	AppliesOnTotal AppliesOn = "TOTAL"
)

// PricingModifier is a single priced adjustment authored by a zone manager,
// segment manager, promotion, or derived from an attribute pricing signal.
// At request time modifiers are read-only inputs to the resolver.
type PricingModifier struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// AppliesTo is the competition category; ScopeRef identifies the
	// zone/segment/product/pricing-key it targets. Empty for GLOBAL.
	AppliesTo ModifierScope `json:"appliesTo"`
	ScopeRef  string        `json:"scopeRef,omitempty"`

	AppliesOn AppliesOn    `json:"appliesOn"`
	Type      ModifierType `json:"modifierType"`

	// Value is a non-negative magnitude. Percent types read it as a
	// percentage, fixed types as an absolute amount.
	Value float64 `json:"value"`

	// Priority orders the adjustment chain; lower applies earlier.
	Priority int `json:"priority"`

	// Stackable modifiers combine with others; non-stackable modifiers
	// compete for a single slot within their scope.
	Stackable bool `json:"isStackable"`
	Active    bool `json:"isActive"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// SignedValue returns the magnitude with direction applied. Used to rank
// non-stackable competitors: increases sort above decreases.
func (m *PricingModifier) SignedValue() float64 {
	if m.Type.IsDecrease() {
		return -m.Value
	}
	return m.Value
}

// Validate checks the authored fields that CRUD must reject early.
func (m *PricingModifier) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("modifier id is required")
	}
	if !m.AppliesTo.Valid() {
		return fmt.Errorf("modifier %s: unknown scope %q", m.ID, m.AppliesTo)
	}
	if m.AppliesTo != ScopeGlobal && m.ScopeRef == "" {
		return fmt.Errorf("modifier %s: scopeRef is required for %s scope", m.ID, m.AppliesTo)
	}
	if !m.Type.Valid() {
		return fmt.Errorf("modifier %s: unknown type %q", m.ID, m.Type)
	}
	if m.AppliesOn != AppliesOnUnit && m.AppliesOn != AppliesOnTotal {
		return fmt.Errorf("modifier %s: appliesOn must be UNIT or TOTAL", m.ID)
	}
	if m.Value < 0 {
		return fmt.Errorf("modifier %s: value must be non-negative", m.ID)
	}
	return nil
}

// ModifierQuery scopes a repository read to the modifiers relevant for one
// pricing request: global plus the current zone, segment, product, and the
// pricing keys of the selected attribute values.
type ModifierQuery struct {
	ZoneID      string   `json:"zoneId,omitempty"`
	SegmentID   string   `json:"segmentId,omitempty"`
	ProductID   string   `json:"productId,omitempty"`
	PricingKeys []string `json:"pricingKeys,omitempty"`
}

// CacheKey returns a stable key for snapshot caching. PricingKeys must
// already be sorted by the caller for the key to be deterministic.
func (q ModifierQuery) CacheKey() string {
	key := "mods:z=" + q.ZoneID + ":s=" + q.SegmentID + ":p=" + q.ProductID
	for _, k := range q.PricingKeys {
		key += ":a=" + k
	}
	return key
}

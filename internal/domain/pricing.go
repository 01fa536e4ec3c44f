package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Selection is one configurator choice in a pricing request. PricingKey is
// optional; when set it is looked up in the product's attribute price table.
type Selection struct {
	AttributeID string `json:"attributeId"`
	Value       string `json:"value"`
	PricingKey  string `json:"pricingKey,omitempty"`
}

// PricingRequest asks for a deterministic price for a product configuration.
// PromoCodes are accepted for forward compatibility but redemption is not
// handled here.
type PricingRequest struct {
	ProductID  string      `json:"productId"`
	Selections []Selection `json:"selections,omitempty"`
	Quantity   int         `json:"quantity"`
	SegmentID  string      `json:"segmentId,omitempty"`
	ZoneID     string      `json:"zoneId,omitempty"`
	PromoCodes []string    `json:"promoCodes,omitempty"`
}

// SelectionMap returns selections as attribute id to value, the shape the
// rule engine consumes. Keys are unique per request.
func (r *PricingRequest) SelectionMap() map[string]string {
	m := make(map[string]string, len(r.Selections))
	for _, s := range r.Selections {
		m[s.AttributeID] = s.Value
	}
	return m
}

// AppliedModifier records one modifier the resolver considered. Losing
// non-stackable competitors appear with Applied = false.
type AppliedModifier struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Scope   ModifierScope `json:"scope"`
	Type    ModifierType  `json:"type"`
	Value   float64       `json:"value"`
	Applied bool          `json:"applied"`
}

// BreakdownStep traces the running price after one adjustment.
type BreakdownStep struct {
	ModifierID string        `json:"modifierId"`
	Name       string        `json:"name"`
	Scope      ModifierScope `json:"scope"`
	Type       ModifierType  `json:"type"`
	Value      float64       `json:"value"`
	AppliesOn  AppliesOn     `json:"appliesOn"`
	UnitPrice  float64       `json:"unitPrice"`
	Total      float64       `json:"total"`
}

// PricingBreakdown is the itemized audit trace of a calculation.
type PricingBreakdown struct {
	BaseUnitPrice float64         `json:"baseUnitPrice"`
	BaseTotal     float64         `json:"baseTotal"`
	Steps         []BreakdownStep `json:"steps,omitempty"`
	Subtotal      float64         `json:"subtotal"`
	GSTPercent    float64         `json:"gstPercent,omitempty"`
	GSTAmount     float64         `json:"gstAmount"`
	Total         float64         `json:"total"`
	UnitPrice     float64         `json:"unitPrice"`
}

// PricingResponse is the full result of a pricing resolution.
type PricingResponse struct {
	QuoteID   string `json:"quoteId,omitempty"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`

	BasePrice       float64            `json:"basePrice"`
	AttributePrices map[string]float64 `json:"attributePrices,omitempty"`
	Modifiers       []AppliedModifier  `json:"modifiers,omitempty"`

	// Net deltas contributed by the zone and segment categories, present
	// only when a modifier from that category applied.
	ZoneAdjustment    *float64 `json:"zoneAdjustment,omitempty"`
	SegmentAdjustment *float64 `json:"segmentAdjustment,omitempty"`

	// UnresolvedKeys lists pricing keys referenced by signals or
	// selections but absent from the product's price table.
	UnresolvedKeys []string `json:"unresolvedKeys,omitempty"`

	Subtotal  float64 `json:"subtotal"`
	GSTAmount float64 `json:"gstAmount"`
	Total     float64 `json:"total"`
	UnitPrice float64 `json:"unitPrice"`

	Breakdown    PricingBreakdown `json:"breakdown"`
	Currency     string           `json:"currency"`
	CalculatedAt time.Time        `json:"calculatedAt"`
}

// AttributePrice is one entry of a product's attribute-value pricing table:
// the price delta a pricing key resolves to.
type AttributePrice struct {
	ProductID  string       `json:"productId"`
	PricingKey string       `json:"pricingKey"`
	Type       ModifierType `json:"modifierType"`
	Value      float64      `json:"value"`
	AppliesOn  AppliesOn    `json:"appliesOn"`
}

// Quote is a persisted pricing response kept for audit.
type Quote struct {
	ID        string           `json:"id"`
	ProductID string           `json:"productId"`
	Response  *PricingResponse `json:"response"`
	CreatedAt time.Time        `json:"createdAt"`
}

var pricingKeyPattern = regexp.MustCompile(`^[A-Z0-9_]{3,50}$`)

// ValidatePricingKey enforces the boundary format: uppercase snake case,
// 3-50 characters.
func ValidatePricingKey(key string) error {
	if !pricingKeyPattern.MatchString(key) {
		return fmt.Errorf("invalid pricing key %q: must match [A-Z0-9_]{3,50}", key)
	}
	return nil
}

// ToPricingKey normalizes a display label into a valid pricing key:
// uppercased, non-alphanumeric runs collapsed to single underscores,
// truncated to 50 and padded to 3 characters.
func ToPricingKey(label string) string {
	upper := strings.ToUpper(label)
	var b strings.Builder
	lastUnderscore := false
	for _, r := range upper {
		switch {
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	key := strings.Trim(b.String(), "_")
	if len(key) > 50 {
		key = strings.Trim(key[:50], "_")
	}
	for len(key) < 3 {
		key += "_X"
	}
	if len(key) > 50 {
		key = key[:50]
	}
	return key
}

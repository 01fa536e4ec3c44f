package domain

import (
	"fmt"
	"time"
)

// AttributeRule drives the product configurator: when the shopper selects a
// particular attribute value, the rule's actions show/hide other attributes,
// set defaults, restrict choices, or emit pricing signals.
type AttributeRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// When is the equality condition against the selection map.
	When RuleCondition `json:"when"`

	// Condition is an optional CEL expression evaluated against the
	// selections, quantity, and product context. When present it must
	// also hold for the rule to match.
	Condition string `json:"condition,omitempty"`

	// Actions are folded in order once the rule matches.
	Actions []RuleAction `json:"then"`

	// Optional narrowing filters. A rule with a non-empty filter that does
	// not match the current product context is never evaluated.
	CategoryID string `json:"applicableCategory,omitempty"`
	ProductID  string `json:"applicableProduct,omitempty"`

	// Priority orders matching rules; lower evaluates first.
	Priority int  `json:"priority"`
	Active   bool `json:"isActive"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// RuleCondition is a single equality test against the selection map.
type RuleCondition struct {
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
}

// ActionType is the closed set of configurator effects a rule can emit.
type ActionType string

const (
	ActionShow           ActionType = "SHOW"
	ActionHide           ActionType = "HIDE"
	ActionSetDefault     ActionType = "SET_DEFAULT"
	ActionRestrictValues ActionType = "RESTRICT_VALUES"
	ActionTriggerPricing ActionType = "TRIGGER_PRICING"
)

// RuleAction is one step of a rule's then-clause. Only the fields relevant
// to its Type are set.
type RuleAction struct {
	Type ActionType `json:"type"`

	// Target attribute for SHOW/HIDE/SET_DEFAULT/RESTRICT_VALUES.
	Target string `json:"target,omitempty"`

	// Value for SET_DEFAULT.
	Value string `json:"value,omitempty"`

	// AllowedValues for RESTRICT_VALUES.
	AllowedValues []string `json:"allowedValues,omitempty"`

	// PricingKey, Scope, and SignalPriority for TRIGGER_PRICING.
	PricingKey     string        `json:"pricingKey,omitempty"`
	Scope          ModifierScope `json:"scope,omitempty"`
	SignalPriority int           `json:"priority,omitempty"`
}

// Validate checks authored rule fields at the CRUD boundary.
func (r *AttributeRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if r.When.Attribute == "" {
		return fmt.Errorf("rule %s: when.attribute is required", r.ID)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("rule %s: at least one action is required", r.ID)
	}
	for i, a := range r.Actions {
		switch a.Type {
		case ActionShow, ActionHide:
			if a.Target == "" {
				return fmt.Errorf("rule %s: action %d: target is required", r.ID, i)
			}
		case ActionSetDefault:
			if a.Target == "" || a.Value == "" {
				return fmt.Errorf("rule %s: action %d: target and value are required", r.ID, i)
			}
		case ActionRestrictValues:
			if a.Target == "" || len(a.AllowedValues) == 0 {
				return fmt.Errorf("rule %s: action %d: target and allowedValues are required", r.ID, i)
			}
		case ActionTriggerPricing:
			if err := ValidatePricingKey(a.PricingKey); err != nil {
				return fmt.Errorf("rule %s: action %d: %w", r.ID, i, err)
			}
		default:
			return fmt.Errorf("rule %s: action %d: unknown type %q", r.ID, i, a.Type)
		}
	}
	return nil
}

// ProductContext carries the identifiers a rule's narrowing filters test.
type ProductContext struct {
	ProductID  string `json:"productId,omitempty"`
	CategoryID string `json:"categoryId,omitempty"`
}

// RuleEffects is the accumulated configurator outcome of one evaluation
// pass. Slices are sorted so repeated evaluations marshal identically.
type RuleEffects struct {
	// Show lists attributes revealed by matching rules. An attribute that
	// any rule hid never appears here: HIDE is sticky within a pass.
	Show []string `json:"show"`

	// Hide lists attributes hidden by matching rules.
	Hide []string `json:"hide"`

	// Defaults maps attribute id to the default value set for it.
	// Later-evaluated rules overwrite earlier ones.
	Defaults map[string]string `json:"setDefault"`

	// Restrictions maps attribute id to its allowed values. Later rules
	// overwrite earlier ones.
	Restrictions map[string][]string `json:"restrict"`
}

// PricingSignal is a rule-triggered request to apply a named pricing
// effect. The aggregator resolves it into a transient modifier.
type PricingSignal struct {
	PricingKey string        `json:"pricingKey"`
	Scope      ModifierScope `json:"scope"`
	Priority   int           `json:"priority"`
}

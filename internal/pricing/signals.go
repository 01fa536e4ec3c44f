package pricing

import (
	"log/slog"
	"sort"

	"github.com/printcore/prism/internal/domain"
)

// AggregateSignals resolves pricing signals against a product's attribute
// price table and materializes them as transient stackable modifiers for the
// resolver. Signals whose key has no table entry are dropped from the
// calculation and returned so the response can surface them.
//
// The caller is expected to have deduplicated signals already (the rule
// engine keeps the lowest priority per key); duplicates here keep the first
// occurrence.
func AggregateSignals(signals []domain.PricingSignal, table map[string]domain.AttributePrice) ([]*domain.PricingModifier, []string) {
	var (
		mods       []*domain.PricingModifier
		unresolved []string
		seen       = make(map[string]bool, len(signals))
	)

	for _, sig := range signals {
		if seen[sig.PricingKey] {
			continue
		}
		seen[sig.PricingKey] = true

		entry, ok := table[sig.PricingKey]
		if !ok {
			slog.Warn("pricing signal references unknown pricing key",
				"pricing_key", sig.PricingKey,
			)
			unresolved = append(unresolved, sig.PricingKey)
			continue
		}

		scope := sig.Scope
		if scope == "" {
			scope = domain.ScopeAttribute
		}

		mods = append(mods, &domain.PricingModifier{
			ID:        "sig:" + sig.PricingKey,
			Name:      sig.PricingKey,
			AppliesTo: scope,
			ScopeRef:  sig.PricingKey,
			AppliesOn: entry.AppliesOn,
			Type:      entry.Type,
			Value:     entry.Value,
			Priority:  sig.Priority,
			Stackable: true,
			Active:    true,
		})
	}

	sort.Strings(unresolved)
	return mods, unresolved
}

// Package pricing implements modifier resolution and price calculation.
package pricing

import (
	"sort"

	"github.com/printcore/prism/internal/domain"
)

// DecreasePolicy selects the winner when only decreases compete for a
// non-stackable slot. The reference behaviour only pins down "largest
// increase wins", so the decrease side is an explicit, configurable choice.
type DecreasePolicy string

const (
	// DecreasePolicySmallest keeps the signed ordering: among competing
	// decreases the smaller discount wins. Default.
	DecreasePolicySmallest DecreasePolicy = "smallest"

	// DecreasePolicyLargest prefers the deeper discount.
	DecreasePolicyLargest DecreasePolicy = "largest"
)

// ResolverOptions tune conflict resolution.
type ResolverOptions struct {
	DecreasePolicy DecreasePolicy
}

// Resolver turns the full modifier set for a request into one ordered
// adjustment sequence.
type Resolver struct {
	opts ResolverOptions
}

// NewResolver creates a resolver. An empty DecreasePolicy defaults to
// smallest-decrease-wins.
func NewResolver(opts ResolverOptions) *Resolver {
	if opts.DecreasePolicy == "" {
		opts.DecreasePolicy = DecreasePolicySmallest
	}
	return &Resolver{opts: opts}
}

// Resolution holds the ordered winners plus the full considered list for
// the response's applied/not-applied audit.
type Resolution struct {
	// Ordered is the final adjustment sequence, ascending by priority
	// with scope rank breaking ties.
	Ordered []*domain.PricingModifier

	// Considered records every active modifier that entered resolution
	// and whether it survived.
	Considered []domain.AppliedModifier
}

// Resolve partitions modifiers by scope, picks at most one non-stackable
// winner per scope, keeps all stackables, and merges everything into one
// deterministic sequence. An empty input yields an empty sequence.
func (r *Resolver) Resolve(mods []*domain.PricingModifier) *Resolution {
	byScope := make(map[domain.ModifierScope][]*domain.PricingModifier)
	for _, m := range mods {
		if m == nil || !m.Active {
			continue
		}
		byScope[m.AppliesTo] = append(byScope[m.AppliesTo], m)
	}

	applied := make(map[string]bool)
	var ordered []*domain.PricingModifier

	for _, scoped := range byScope {
		var stackable, competing []*domain.PricingModifier
		for _, m := range scoped {
			if m.Stackable {
				stackable = append(stackable, m)
			} else {
				competing = append(competing, m)
			}
		}

		ordered = append(ordered, stackable...)
		for _, m := range stackable {
			applied[m.ID] = true
		}

		if winner := r.pickWinner(competing); winner != nil {
			ordered = append(ordered, winner)
			applied[winner.ID] = true
		}
	}

	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.AppliesTo.Rank() != b.AppliesTo.Rank() {
			return a.AppliesTo.Rank() < b.AppliesTo.Rank()
		}
		return a.ID < b.ID
	})

	res := &Resolution{Ordered: ordered}

	considered := make([]*domain.PricingModifier, 0, len(mods))
	for _, m := range mods {
		if m != nil && m.Active {
			considered = append(considered, m)
		}
	}
	sort.Slice(considered, func(i, j int) bool {
		a, b := considered[i], considered[j]
		if a.AppliesTo.Rank() != b.AppliesTo.Rank() {
			return a.AppliesTo.Rank() < b.AppliesTo.Rank()
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ID < b.ID
	})
	for _, m := range considered {
		res.Considered = append(res.Considered, domain.AppliedModifier{
			ID:      m.ID,
			Name:    m.Name,
			Scope:   m.AppliesTo,
			Type:    m.Type,
			Value:   m.Value,
			Applied: applied[m.ID],
		})
	}

	return res
}

// pickWinner selects one modifier from competing non-stackables: the
// greatest signed magnitude wins, so any increase beats any decrease and
// the larger increase beats the smaller. Among pure decreases the
// configured policy decides. Ties break by priority then id.
func (r *Resolver) pickWinner(competing []*domain.PricingModifier) *domain.PricingModifier {
	if len(competing) == 0 {
		return nil
	}

	winner := competing[0]
	for _, m := range competing[1:] {
		if r.beats(m, winner) {
			winner = m
		}
	}
	return winner
}

func (r *Resolver) beats(a, b *domain.PricingModifier) bool {
	av, bv := a.SignedValue(), b.SignedValue()

	if r.opts.DecreasePolicy == DecreasePolicyLargest && av < 0 && bv < 0 {
		av, bv = -av, -bv
	}

	if av != bv {
		return av > bv
	}
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.ID < b.ID
}

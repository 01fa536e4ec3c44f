package pricing

import (
	"testing"

	"github.com/printcore/prism/internal/domain"
)

func mod(id string, scope domain.ModifierScope, t domain.ModifierType, value float64, priority int, stackable bool) *domain.PricingModifier {
	return &domain.PricingModifier{
		ID:        id,
		Name:      id,
		AppliesTo: scope,
		ScopeRef:  "ref",
		AppliesOn: domain.AppliesOnUnit,
		Type:      t,
		Value:     value,
		Priority:  priority,
		Stackable: stackable,
		Active:    true,
	}
}

func orderedIDs(res *Resolution) []string {
	ids := make([]string, 0, len(res.Ordered))
	for _, m := range res.Ordered {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestResolveNonStackableWinner(t *testing.T) {
	r := NewResolver(ResolverOptions{})

	res := r.Resolve([]*domain.PricingModifier{
		mod("small", domain.ScopeZone, domain.PercentInc, 5, 1, false),
		mod("big", domain.ScopeZone, domain.PercentInc, 12, 2, false),
	})

	if len(res.Ordered) != 1 || res.Ordered[0].ID != "big" {
		t.Fatalf("expected winner big, got %v", orderedIDs(res))
	}

	// The loser still shows up in the considered list, unapplied.
	var sawLoser bool
	for _, c := range res.Considered {
		if c.ID == "small" {
			sawLoser = true
			if c.Applied {
				t.Error("expected losing modifier marked not applied")
			}
		}
		if c.ID == "big" && !c.Applied {
			t.Error("expected winning modifier marked applied")
		}
	}
	if !sawLoser {
		t.Error("losing modifier missing from considered list")
	}
}

func TestResolveIncreaseBeatsDecrease(t *testing.T) {
	r := NewResolver(ResolverOptions{})

	res := r.Resolve([]*domain.PricingModifier{
		mod("discount", domain.ScopeSegment, domain.PercentDec, 40, 1, false),
		mod("surcharge", domain.ScopeSegment, domain.PercentInc, 2, 2, false),
	})

	if len(res.Ordered) != 1 || res.Ordered[0].ID != "surcharge" {
		t.Fatalf("expected surcharge to win, got %v", orderedIDs(res))
	}
}

func TestResolveDecreasePolicy(t *testing.T) {
	mods := func() []*domain.PricingModifier {
		return []*domain.PricingModifier{
			mod("shallow", domain.ScopeProduct, domain.PercentDec, 5, 1, false),
			mod("deep", domain.ScopeProduct, domain.PercentDec, 20, 2, false),
		}
	}

	t.Run("smallest wins by default", func(t *testing.T) {
		res := NewResolver(ResolverOptions{}).Resolve(mods())
		if len(res.Ordered) != 1 || res.Ordered[0].ID != "shallow" {
			t.Fatalf("expected shallow to win, got %v", orderedIDs(res))
		}
	})

	t.Run("largest policy prefers deeper discount", func(t *testing.T) {
		res := NewResolver(ResolverOptions{DecreasePolicy: DecreasePolicyLargest}).Resolve(mods())
		if len(res.Ordered) != 1 || res.Ordered[0].ID != "deep" {
			t.Fatalf("expected deep to win, got %v", orderedIDs(res))
		}
	})
}

func TestResolveStackablesAllKept(t *testing.T) {
	r := NewResolver(ResolverOptions{})

	res := r.Resolve([]*domain.PricingModifier{
		mod("s1", domain.ScopeGlobal, domain.PercentInc, 5, 1, true),
		mod("s2", domain.ScopeGlobal, domain.PercentDec, 3, 2, true),
		mod("s3", domain.ScopeGlobal, domain.FixedInc, 10, 3, true),
	})

	if len(res.Ordered) != 3 {
		t.Fatalf("expected all stackables kept, got %v", orderedIDs(res))
	}
	for _, c := range res.Considered {
		if !c.Applied {
			t.Errorf("expected stackable %s applied", c.ID)
		}
	}
}

func TestResolveScopesCompeteSeparately(t *testing.T) {
	r := NewResolver(ResolverOptions{})

	res := r.Resolve([]*domain.PricingModifier{
		mod("zone-a", domain.ScopeZone, domain.PercentInc, 5, 1, false),
		mod("zone-b", domain.ScopeZone, domain.PercentInc, 8, 2, false),
		mod("seg-a", domain.ScopeSegment, domain.PercentInc, 3, 1, false),
	})

	if len(res.Ordered) != 2 {
		t.Fatalf("expected one winner per scope, got %v", orderedIDs(res))
	}

	got := map[string]bool{}
	for _, m := range res.Ordered {
		got[m.ID] = true
	}
	if !got["zone-b"] || !got["seg-a"] {
		t.Errorf("expected zone-b and seg-a, got %v", orderedIDs(res))
	}
}

func TestResolveOrdering(t *testing.T) {
	r := NewResolver(ResolverOptions{})

	// Same priority: scope rank breaks the tie (GLOBAL before ZONE before
	// ATTRIBUTE). Lower priority goes first regardless of scope.
	attr := mod("attr", domain.ScopeAttribute, domain.FixedInc, 1, 5, true)
	global := mod("global", domain.ScopeGlobal, domain.PercentInc, 1, 10, true)
	zone := mod("zone", domain.ScopeZone, domain.PercentInc, 1, 10, true)

	res := r.Resolve([]*domain.PricingModifier{zone, global, attr})

	want := []string{"attr", "global", "zone"}
	got := orderedIDs(res)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestResolveSkipsInactiveAndNil(t *testing.T) {
	r := NewResolver(ResolverOptions{})

	inactive := mod("inactive", domain.ScopeGlobal, domain.PercentInc, 5, 1, true)
	inactive.Active = false

	res := r.Resolve([]*domain.PricingModifier{inactive, nil})

	if len(res.Ordered) != 0 || len(res.Considered) != 0 {
		t.Errorf("expected empty resolution, got %v", orderedIDs(res))
	}
}

func TestResolveEmpty(t *testing.T) {
	r := NewResolver(ResolverOptions{})
	res := r.Resolve(nil)
	if len(res.Ordered) != 0 {
		t.Errorf("expected empty sequence, got %v", orderedIDs(res))
	}
}

func TestResolveValueTieBreaksByPriority(t *testing.T) {
	r := NewResolver(ResolverOptions{})

	res := r.Resolve([]*domain.PricingModifier{
		mod("late", domain.ScopeZone, domain.PercentInc, 10, 5, false),
		mod("early", domain.ScopeZone, domain.PercentInc, 10, 1, false),
	})

	if len(res.Ordered) != 1 || res.Ordered[0].ID != "early" {
		t.Fatalf("expected priority tie-break to pick early, got %v", orderedIDs(res))
	}
}

package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/printcore/prism/internal/cache"
	"github.com/printcore/prism/internal/domain"
)

// fakeRepo counts reads so tests can observe cache hits.
type fakeRepo struct {
	domain.Repository

	mods      []*domain.PricingModifier
	table     map[string]domain.AttributePrice
	modCalls  int
	tableCall int
}

func (f *fakeRepo) ListActiveModifiers(ctx context.Context, q domain.ModifierQuery) ([]*domain.PricingModifier, error) {
	f.modCalls++
	return f.mods, nil
}

func (f *fakeRepo) GetAttributePrices(ctx context.Context, productID string) (map[string]domain.AttributePrice, error) {
	f.tableCall++
	return f.table, nil
}

func testModifiers() []*domain.PricingModifier {
	return []*domain.PricingModifier{
		{
			ID: "mod-1", Name: "markup", AppliesTo: domain.ScopeGlobal,
			AppliesOn: domain.AppliesOnUnit, Type: domain.PercentInc,
			Value: 5, Priority: 1, Stackable: true, Active: true,
		},
	}
}

func TestLoaderModifiersCaches(t *testing.T) {
	repo := &fakeRepo{mods: testModifiers()}
	loader := NewLoader(repo, cache.NewLRUCache(100), 30*time.Second)
	ctx := context.Background()

	q := domain.ModifierQuery{ZoneID: "zone-north", ProductID: "prod-1"}

	first, err := loader.Modifiers(ctx, q)
	if err != nil {
		t.Fatalf("Modifiers failed: %v", err)
	}
	if len(first) != 1 || first[0].ID != "mod-1" {
		t.Fatalf("unexpected modifiers: %+v", first)
	}
	if repo.modCalls != 1 {
		t.Fatalf("expected 1 repo read, got %d", repo.modCalls)
	}

	// Second read is served from cache.
	second, err := loader.Modifiers(ctx, q)
	if err != nil {
		t.Fatalf("Modifiers failed: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("unexpected cached modifiers: %+v", second)
	}
	if repo.modCalls != 1 {
		t.Errorf("expected cache hit, repo read %d times", repo.modCalls)
	}
}

func TestLoaderSortsPricingKeys(t *testing.T) {
	repo := &fakeRepo{mods: testModifiers()}
	loader := NewLoader(repo, cache.NewLRUCache(100), 30*time.Second)
	ctx := context.Background()

	// Key order must not split the cache.
	_, _ = loader.Modifiers(ctx, domain.ModifierQuery{PricingKeys: []string{"B_KEY", "A_KEY"}})
	_, _ = loader.Modifiers(ctx, domain.ModifierQuery{PricingKeys: []string{"A_KEY", "B_KEY"}})

	if repo.modCalls != 1 {
		t.Errorf("expected shared cache entry across key orderings, repo read %d times", repo.modCalls)
	}
}

func TestLoaderAttributePrices(t *testing.T) {
	repo := &fakeRepo{table: map[string]domain.AttributePrice{
		"GLOSSY_FINISH": {ProductID: "prod-1", PricingKey: "GLOSSY_FINISH", Type: domain.PercentInc, Value: 10, AppliesOn: domain.AppliesOnUnit},
	}}
	loader := NewLoader(repo, cache.NewLRUCache(100), 30*time.Second)
	ctx := context.Background()

	table, err := loader.AttributePrices(ctx, "prod-1")
	if err != nil {
		t.Fatalf("AttributePrices failed: %v", err)
	}
	if table["GLOSSY_FINISH"].Value != 10 {
		t.Fatalf("unexpected table: %+v", table)
	}

	_, _ = loader.AttributePrices(ctx, "prod-1")
	if repo.tableCall != 1 {
		t.Errorf("expected cache hit, repo read %d times", repo.tableCall)
	}
}

func TestLoaderInvalidate(t *testing.T) {
	repo := &fakeRepo{table: map[string]domain.AttributePrice{}}
	loader := NewLoader(repo, cache.NewLRUCache(100), 30*time.Second)
	ctx := context.Background()

	_, _ = loader.AttributePrices(ctx, "prod-1")
	loader.Invalidate(ctx, "prod-1")
	_, _ = loader.AttributePrices(ctx, "prod-1")

	if repo.tableCall != 2 {
		t.Errorf("expected repo re-read after invalidation, got %d reads", repo.tableCall)
	}
}

func TestLoaderNoCache(t *testing.T) {
	repo := &fakeRepo{mods: testModifiers()}
	loader := NewLoader(repo, nil, 0)
	ctx := context.Background()

	_, _ = loader.Modifiers(ctx, domain.ModifierQuery{})
	_, _ = loader.Modifiers(ctx, domain.ModifierQuery{})

	if repo.modCalls != 2 {
		t.Errorf("expected direct repo reads without cache, got %d", repo.modCalls)
	}
}

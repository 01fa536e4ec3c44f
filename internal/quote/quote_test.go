package quote

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/printcore/prism/internal/bus"
	"github.com/printcore/prism/internal/cache"
	"github.com/printcore/prism/internal/domain"
	"github.com/printcore/prism/internal/rules"
	"github.com/printcore/prism/internal/snapshot"
)

type fakeRepo struct {
	domain.Repository

	products map[string]*domain.Product
	mods     []*domain.PricingModifier
	tables   map[string]map[string]domain.AttributePrice
	rules    []*domain.AttributeRule

	savedQuotes atomic.Int32
}

func (f *fakeRepo) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	p, ok := f.products[productID]
	if !ok {
		return nil, errors.New("record not found")
	}
	return p, nil
}

func (f *fakeRepo) ListActiveModifiers(ctx context.Context, q domain.ModifierQuery) ([]*domain.PricingModifier, error) {
	var out []*domain.PricingModifier
	for _, m := range f.mods {
		if !m.Active {
			continue
		}
		switch m.AppliesTo {
		case domain.ScopeGlobal:
			out = append(out, m)
		case domain.ScopeZone:
			if m.ScopeRef == q.ZoneID {
				out = append(out, m)
			}
		case domain.ScopeSegment:
			if m.ScopeRef == q.SegmentID {
				out = append(out, m)
			}
		case domain.ScopeProduct:
			if m.ScopeRef == q.ProductID {
				out = append(out, m)
			}
		case domain.ScopeAttribute:
			for _, k := range q.PricingKeys {
				if m.ScopeRef == k {
					out = append(out, m)
					break
				}
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) GetAttributePrices(ctx context.Context, productID string) (map[string]domain.AttributePrice, error) {
	table := f.tables[productID]
	if table == nil {
		table = map[string]domain.AttributePrice{}
	}
	return table, nil
}

func (f *fakeRepo) ListRules(ctx context.Context) ([]*domain.AttributeRule, error) {
	return f.rules, nil
}

func (f *fakeRepo) SaveQuote(ctx context.Context, q *domain.Quote) error {
	f.savedQuotes.Add(1)
	return nil
}

func newTestService(t *testing.T, repo *fakeRepo) (*Service, domain.EventBus) {
	t.Helper()

	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if err := engine.LoadRules(repo.rules); err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}

	b := bus.NewChannelBus(100)
	t.Cleanup(func() { b.Close() })

	loader := snapshot.NewLoader(repo, cache.NewLRUCache(100), 30*time.Second)

	svc := NewService(repo, engine, loader, b, domain.PricingConfig{
		DecreasePolicy:          "smallest",
		DefaultCurrency:         "INR",
		SelectionSignalPriority: 100,
	})
	return svc, b
}

func bannerRepo() *fakeRepo {
	return &fakeRepo{
		products: map[string]*domain.Product{
			"prod-banner": {
				ID: "prod-banner", Name: "Vinyl Banner", CategoryID: "cat-banners",
				BasePrice: 100, Currency: "INR", GSTPercent: 0, Active: true,
			},
		},
		tables: map[string]map[string]domain.AttributePrice{
			"prod-banner": {
				"GLOSSY_FINISH": {ProductID: "prod-banner", PricingKey: "GLOSSY_FINISH", Type: domain.PercentInc, Value: 10, AppliesOn: domain.AppliesOnUnit},
			},
		},
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPriceNonStackableCompetition(t *testing.T) {
	repo := bannerRepo()
	repo.mods = []*domain.PricingModifier{
		{
			ID: "zone-big", Name: "north surge", AppliesTo: domain.ScopeZone, ScopeRef: "zone-north",
			AppliesOn: domain.AppliesOnUnit, Type: domain.PercentInc, Value: 12,
			Priority: 1, Stackable: false, Active: true,
		},
		{
			ID: "zone-small", Name: "north base", AppliesTo: domain.ScopeZone, ScopeRef: "zone-north",
			AppliesOn: domain.AppliesOnUnit, Type: domain.PercentInc, Value: 5,
			Priority: 2, Stackable: false, Active: true,
		},
		{
			ID: "festival", Name: "festival sale", AppliesTo: domain.ScopeGlobal,
			AppliesOn: domain.AppliesOnUnit, Type: domain.PercentDec, Value: 15,
			Priority: 3, Stackable: true, Active: true,
		},
	}

	svc, _ := newTestService(t, repo)

	resp, err := svc.Price(context.Background(), &domain.PricingRequest{
		ProductID: "prod-banner",
		Quantity:  1,
		ZoneID:    "zone-north",
	})
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}

	// 100 * 1.12 * 0.85 = 95.20
	if !almostEqual(resp.Total, 95.2) {
		t.Errorf("expected total 95.20, got %v", resp.Total)
	}

	var winnerApplied, loserApplied bool
	for _, m := range resp.Modifiers {
		switch m.ID {
		case "zone-big":
			winnerApplied = m.Applied
		case "zone-small":
			loserApplied = m.Applied
		}
	}
	if !winnerApplied {
		t.Error("expected zone-big applied")
	}
	if loserApplied {
		t.Error("expected zone-small not applied")
	}

	if resp.ZoneAdjustment == nil {
		t.Fatal("expected zone adjustment recorded")
	}
	if !almostEqual(*resp.ZoneAdjustment, 12) {
		t.Errorf("expected zone delta 12, got %v", *resp.ZoneAdjustment)
	}
}

func TestPriceSelectionPricingKey(t *testing.T) {
	repo := bannerRepo()
	svc, _ := newTestService(t, repo)

	resp, err := svc.Price(context.Background(), &domain.PricingRequest{
		ProductID: "prod-banner",
		Quantity:  2,
		Selections: []domain.Selection{
			{AttributeID: "finish", Value: "glossy", PricingKey: "GLOSSY_FINISH"},
		},
	})
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}

	// 100 * 1.10 = 110 unit, 220 total.
	if !almostEqual(resp.Total, 220) {
		t.Errorf("expected total 220, got %v", resp.Total)
	}
	if resp.AttributePrices["GLOSSY_FINISH"] != 10 {
		t.Errorf("expected attribute price 10, got %v", resp.AttributePrices)
	}
	if len(resp.UnresolvedKeys) != 0 {
		t.Errorf("expected no unresolved keys, got %v", resp.UnresolvedKeys)
	}
}

func TestPriceUnresolvedKeySurfaced(t *testing.T) {
	repo := bannerRepo()
	svc, _ := newTestService(t, repo)

	resp, err := svc.Price(context.Background(), &domain.PricingRequest{
		ProductID: "prod-banner",
		Quantity:  1,
		Selections: []domain.Selection{
			{AttributeID: "finish", Value: "embossed", PricingKey: "EMBOSSED_FINISH"},
		},
	})
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}

	// Unknown key is dropped from the calculation, not failed.
	if !almostEqual(resp.Total, 100) {
		t.Errorf("expected total 100, got %v", resp.Total)
	}
	if len(resp.UnresolvedKeys) != 1 || resp.UnresolvedKeys[0] != "EMBOSSED_FINISH" {
		t.Errorf("expected EMBOSSED_FINISH surfaced, got %v", resp.UnresolvedKeys)
	}
}

func TestPriceRuleTriggeredSignal(t *testing.T) {
	repo := bannerRepo()
	repo.rules = []*domain.AttributeRule{
		{
			ID:   "glossy-triggers",
			Name: "glossy finish pricing",
			When: domain.RuleCondition{Attribute: "finish", Value: "glossy"},
			Actions: []domain.RuleAction{
				{Type: domain.ActionTriggerPricing, PricingKey: "GLOSSY_FINISH", SignalPriority: 10},
			},
			Priority: 1,
			Active:   true,
		},
	}

	svc, _ := newTestService(t, repo)

	// The selection carries no explicit pricing key; the rule supplies it.
	resp, err := svc.Price(context.Background(), &domain.PricingRequest{
		ProductID: "prod-banner",
		Quantity:  1,
		Selections: []domain.Selection{
			{AttributeID: "finish", Value: "glossy"},
		},
	})
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}

	if !almostEqual(resp.Total, 110) {
		t.Errorf("expected total 110 from rule-triggered signal, got %v", resp.Total)
	}
}

func TestPriceGST(t *testing.T) {
	repo := bannerRepo()
	repo.products["prod-banner"].GSTPercent = 18

	svc, _ := newTestService(t, repo)

	resp, err := svc.Price(context.Background(), &domain.PricingRequest{
		ProductID: "prod-banner",
		Quantity:  1,
	})
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}

	if !almostEqual(resp.GSTAmount, 18) {
		t.Errorf("expected GST 18, got %v", resp.GSTAmount)
	}
	if !almostEqual(resp.Total, 118) {
		t.Errorf("expected total 118, got %v", resp.Total)
	}
}

func TestPriceInvalidRequest(t *testing.T) {
	repo := bannerRepo()
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *domain.PricingRequest
	}{
		{"nil request", nil},
		{"missing product", &domain.PricingRequest{Quantity: 1}},
		{"zero quantity", &domain.PricingRequest{ProductID: "prod-banner"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Price(ctx, tt.req); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestPriceInactiveProduct(t *testing.T) {
	repo := bannerRepo()
	repo.products["prod-banner"].Active = false

	svc, _ := newTestService(t, repo)

	_, err := svc.Price(context.Background(), &domain.PricingRequest{ProductID: "prod-banner", Quantity: 1})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for inactive product, got %v", err)
	}
}

func TestPricePersistsAndPublishes(t *testing.T) {
	repo := bannerRepo()
	svc, b := newTestService(t, repo)
	ctx := context.Background()

	var published atomic.Int32
	_, err := b.Subscribe(ctx, domain.TopicQuoteComputed, func(ctx context.Context, msg *domain.Message) error {
		published.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	resp, err := svc.Price(ctx, &domain.PricingRequest{ProductID: "prod-banner", Quantity: 1})
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	if resp.QuoteID == "" {
		t.Error("expected quote id assigned")
	}

	time.Sleep(50 * time.Millisecond)

	if repo.savedQuotes.Load() != 1 {
		t.Errorf("expected 1 saved quote, got %d", repo.savedQuotes.Load())
	}
	if published.Load() != 1 {
		t.Errorf("expected 1 published event, got %d", published.Load())
	}
}

func TestPriceDeterministic(t *testing.T) {
	repo := bannerRepo()
	repo.mods = []*domain.PricingModifier{
		{
			ID: "g1", Name: "g1", AppliesTo: domain.ScopeGlobal,
			AppliesOn: domain.AppliesOnUnit, Type: domain.PercentInc, Value: 7.5,
			Priority: 1, Stackable: true, Active: true,
		},
		{
			ID: "g2", Name: "g2", AppliesTo: domain.ScopeGlobal,
			AppliesOn: domain.AppliesOnTotal, Type: domain.FixedInc, Value: 25,
			Priority: 2, Stackable: true, Active: true,
		},
	}

	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	req := &domain.PricingRequest{
		ProductID: "prod-banner",
		Quantity:  3,
		Selections: []domain.Selection{
			{AttributeID: "finish", Value: "glossy", PricingKey: "GLOSSY_FINISH"},
		},
	}

	first, err := svc.Price(ctx, req)
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		again, err := svc.Price(ctx, req)
		if err != nil {
			t.Fatalf("Price failed on iteration %d: %v", i, err)
		}
		if again.Total != first.Total || again.UnitPrice != first.UnitPrice {
			t.Fatalf("pricing not deterministic: %v vs %v", again.Total, first.Total)
		}
		if len(again.Breakdown.Steps) != len(first.Breakdown.Steps) {
			t.Fatal("breakdown step count changed")
		}
		for j := range first.Breakdown.Steps {
			if again.Breakdown.Steps[j].ModifierID != first.Breakdown.Steps[j].ModifierID {
				t.Fatal("breakdown step order changed")
			}
		}
	}
}

func TestEvaluateRules(t *testing.T) {
	repo := bannerRepo()
	repo.rules = []*domain.AttributeRule{
		{
			ID:   "vinyl-lamination",
			Name: "vinyl shows lamination",
			When: domain.RuleCondition{Attribute: "material", Value: "vinyl"},
			Actions: []domain.RuleAction{
				{Type: domain.ActionShow, Target: "lamination"},
				{Type: domain.ActionSetDefault, Target: "lamination", Value: "matte"},
			},
			Priority: 1,
			Active:   true,
		},
	}

	svc, _ := newTestService(t, repo)

	resp, err := svc.EvaluateRules(context.Background(), &domain.RuleEvaluationRequest{
		ProductID:          "prod-banner",
		SelectedAttributes: []domain.Selection{{AttributeID: "material", Value: "vinyl"}},
		Quantity:           1,
	})
	if err != nil {
		t.Fatalf("EvaluateRules failed: %v", err)
	}

	if len(resp.Effects.Show) != 1 || resp.Effects.Show[0] != "lamination" {
		t.Errorf("expected lamination shown, got %v", resp.Effects.Show)
	}
	if resp.Effects.Defaults["lamination"] != "matte" {
		t.Errorf("expected default matte, got %v", resp.Effects.Defaults)
	}
	if resp.Context.CategoryID != "cat-banners" {
		t.Errorf("expected category filled from catalog, got %q", resp.Context.CategoryID)
	}
}

func TestReloadRules(t *testing.T) {
	repo := bannerRepo()
	svc, _ := newTestService(t, repo)

	repo.rules = []*domain.AttributeRule{
		{
			ID:       "r1",
			Name:     "r1",
			When:     domain.RuleCondition{Attribute: "a", Value: "v"},
			Actions:  []domain.RuleAction{{Type: domain.ActionShow, Target: "x"}},
			Priority: 1,
			Active:   true,
		},
	}

	count, err := svc.ReloadRules(context.Background())
	if err != nil {
		t.Fatalf("ReloadRules failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 rule loaded, got %d", count)
	}
}

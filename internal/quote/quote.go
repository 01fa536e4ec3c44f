// Package quote orchestrates the pricing pipeline: rule evaluation, signal
// aggregation, modifier resolution, and calculation.
package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/printcore/prism/internal/domain"
	"github.com/printcore/prism/internal/pricing"
	"github.com/printcore/prism/internal/rules"
	"github.com/printcore/prism/internal/snapshot"
)

// ErrInvalidRequest marks a request rejected before the pipeline runs.
var ErrInvalidRequest = errors.New("invalid pricing request")

// Service runs the pricing pipeline against immutable per-request snapshots.
// All inputs are read once up front; the pipeline itself performs no I/O, so
// an identical request against unchanged data produces an identical response.
type Service struct {
	repo     domain.Repository
	engine   *rules.Engine
	loader   *snapshot.Loader
	resolver *pricing.Resolver
	calc     *pricing.Calculator
	bus      domain.EventBus
	cfg      domain.PricingConfig
}

// NewService creates the quote service.
func NewService(
	repo domain.Repository,
	engine *rules.Engine,
	loader *snapshot.Loader,
	bus domain.EventBus,
	cfg domain.PricingConfig,
) *Service {
	return &Service{
		repo:   repo,
		engine: engine,
		loader: loader,
		resolver: pricing.NewResolver(pricing.ResolverOptions{
			DecreasePolicy: pricing.DecreasePolicy(cfg.DecreasePolicy),
		}),
		calc: pricing.NewCalculator(),
		bus:  bus,
		cfg:  cfg,
	}
}

// Price resolves one pricing request into a full quote.
func (s *Service) Price(ctx context.Context, req *domain.PricingRequest) (*domain.PricingResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to load product %s: %w", req.ProductID, err)
	}
	if !product.Active {
		return nil, fmt.Errorf("%w: product %s is not active", ErrInvalidRequest, req.ProductID)
	}

	selections := req.SelectionMap()
	pctx := domain.ProductContext{ProductID: product.ID, CategoryID: product.CategoryID}

	ruleResult := s.engine.Evaluate(pctx, selections, req.Quantity)

	signals, unresolved := s.collectSignals(req, ruleResult.Signals)

	table, err := s.loader.AttributePrices(ctx, product.ID)
	if err != nil {
		return nil, err
	}

	transient, dropped := pricing.AggregateSignals(signals, table)
	unresolved = append(unresolved, dropped...)

	q := domain.ModifierQuery{
		ZoneID:    req.ZoneID,
		SegmentID: req.SegmentID,
		ProductID: product.ID,
	}
	for _, m := range transient {
		q.PricingKeys = append(q.PricingKeys, m.ScopeRef)
	}

	persisted, err := s.loader.Modifiers(ctx, q)
	if err != nil {
		return nil, err
	}

	resolution := s.resolver.Resolve(append(persisted, transient...))

	breakdown, err := s.calc.Apply(pricing.CalcInput{
		BasePrice:   product.BasePrice,
		Quantity:    req.Quantity,
		GSTPercent:  product.GSTPercent,
		Adjustments: resolution.Ordered,
	})
	if err != nil {
		return nil, err
	}

	resp := s.assembleResponse(product, req, resolution, breakdown, table, transient, unresolved)

	s.persistAndPublish(ctx, resp)

	return resp, nil
}

// EvaluateRules runs rule evaluation alone, without pricing. Used by the
// configurator to refresh visibility, defaults, and restrictions as the
// shopper changes selections.
func (s *Service) EvaluateRules(ctx context.Context, req *domain.RuleEvaluationRequest) (*domain.RuleEvaluationResponse, error) {
	if req == nil || req.ProductID == "" {
		return nil, fmt.Errorf("%w: productId is required", ErrInvalidRequest)
	}

	pctx := domain.ProductContext{ProductID: req.ProductID, CategoryID: req.CategoryID}

	// Fill the category from the catalog when the caller omits it, so
	// category-scoped rules still apply.
	if pctx.CategoryID == "" {
		if product, err := s.repo.GetProduct(ctx, req.ProductID); err == nil {
			pctx.CategoryID = product.CategoryID
		}
	}

	quantity := req.Quantity
	if quantity < 1 {
		quantity = 1
	}

	result := s.engine.Evaluate(pctx, req.SelectionMap(), quantity)

	return &domain.RuleEvaluationResponse{
		EvaluatedRules: result.Evaluated,
		Effects:        result.Effects,
		Signals:        result.Signals,
		Context:        pctx,
	}, nil
}

// ReloadRules re-reads the rule set from the repository and swaps it into
// the engine atomically.
func (s *Service) ReloadRules(ctx context.Context) (int, error) {
	rs, err := s.repo.ListRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list rules: %w", err)
	}
	if err := s.engine.ReloadRules(rs); err != nil {
		return 0, err
	}
	return s.engine.RulesCount(), nil
}

// collectSignals merges rule-triggered signals with the implicit signals
// carried by explicit selection pricing keys. Duplicate keys keep the lowest
// priority; malformed selection keys go straight to the unresolved list.
func (s *Service) collectSignals(req *domain.PricingRequest, fromRules []domain.PricingSignal) ([]domain.PricingSignal, []string) {
	byKey := make(map[string]domain.PricingSignal, len(fromRules))
	for _, sig := range fromRules {
		byKey[sig.PricingKey] = sig
	}

	var unresolved []string
	for _, sel := range req.Selections {
		if sel.PricingKey == "" {
			continue
		}
		if err := domain.ValidatePricingKey(sel.PricingKey); err != nil {
			slog.Warn("selection carries malformed pricing key",
				"attribute_id", sel.AttributeID,
				"pricing_key", sel.PricingKey,
			)
			unresolved = append(unresolved, sel.PricingKey)
			continue
		}

		sig := domain.PricingSignal{
			PricingKey: sel.PricingKey,
			Scope:      domain.ScopeAttribute,
			Priority:   s.cfg.SelectionSignalPriority,
		}
		if prev, ok := byKey[sig.PricingKey]; !ok || sig.Priority < prev.Priority {
			byKey[sig.PricingKey] = sig
		}
	}

	signals := make([]domain.PricingSignal, 0, len(byKey))
	for _, sig := range byKey {
		signals = append(signals, sig)
	}
	sort.Slice(signals, func(i, j int) bool {
		if signals[i].Priority != signals[j].Priority {
			return signals[i].Priority < signals[j].Priority
		}
		return signals[i].PricingKey < signals[j].PricingKey
	})

	return signals, unresolved
}

func (s *Service) assembleResponse(
	product *domain.Product,
	req *domain.PricingRequest,
	resolution *pricing.Resolution,
	breakdown *domain.PricingBreakdown,
	table map[string]domain.AttributePrice,
	transient []*domain.PricingModifier,
	unresolved []string,
) *domain.PricingResponse {
	currency := product.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	attrPrices := make(map[string]float64, len(transient))
	for _, m := range transient {
		if entry, ok := table[m.ScopeRef]; ok {
			attrPrices[m.ScopeRef] = entry.Value
		}
	}

	resp := &domain.PricingResponse{
		QuoteID:         uuid.New().String(),
		ProductID:       product.ID,
		Quantity:        req.Quantity,
		BasePrice:       product.BasePrice,
		AttributePrices: attrPrices,
		Modifiers:       resolution.Considered,
		Subtotal:        breakdown.Subtotal,
		GSTAmount:       breakdown.GSTAmount,
		Total:           breakdown.Total,
		UnitPrice:       breakdown.UnitPrice,
		Breakdown:       *breakdown,
		Currency:        currency,
		CalculatedAt:    time.Now().UTC(),
	}

	if len(unresolved) > 0 {
		sort.Strings(unresolved)
		resp.UnresolvedKeys = dedupe(unresolved)
	}

	if delta, ok := scopeDelta(breakdown, domain.ScopeZone); ok {
		resp.ZoneAdjustment = &delta
	}
	if delta, ok := scopeDelta(breakdown, domain.ScopeSegment); ok {
		resp.SegmentAdjustment = &delta
	}

	return resp
}

// persistAndPublish records the quote and announces it. Both are best
// effort: the caller already has a complete response, so audit or bus
// failures degrade to warnings instead of failing the request.
func (s *Service) persistAndPublish(ctx context.Context, resp *domain.PricingResponse) {
	if s.repo != nil {
		err := s.repo.SaveQuote(ctx, &domain.Quote{
			ID:        resp.QuoteID,
			ProductID: resp.ProductID,
			Response:  resp,
			CreatedAt: resp.CalculatedAt,
		})
		if err != nil {
			slog.Warn("failed to persist quote", "quote_id", resp.QuoteID, "error", err)
		}
	}

	if s.bus != nil {
		payload, err := json.Marshal(resp)
		if err == nil {
			err = s.bus.Publish(ctx, domain.TopicQuoteComputed, payload)
		}
		if err != nil {
			slog.Warn("failed to publish quote event", "quote_id", resp.QuoteID, "error", err)
		}
	}
}

// scopeDelta sums the total movement contributed by one scope's steps.
func scopeDelta(bd *domain.PricingBreakdown, scope domain.ModifierScope) (float64, bool) {
	prev := bd.BaseTotal
	var delta float64
	var found bool

	for _, step := range bd.Steps {
		if step.Scope == scope {
			delta += step.Total - prev
			found = true
		}
		prev = step.Total
	}

	return delta, found
}

func validateRequest(req *domain.PricingRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request body is required", ErrInvalidRequest)
	}
	if req.ProductID == "" {
		return fmt.Errorf("%w: productId is required", ErrInvalidRequest)
	}
	if req.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidRequest)
	}
	return nil
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}

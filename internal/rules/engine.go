// Package rules provides the attribute rule evaluation engine.
package rules

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/printcore/prism/internal/domain"
)

// Engine evaluates attribute rules against configurator selections.
// Rules are compiled and loaded behind an RWMutex; evaluation itself is a
// pure fold over the loaded snapshot, so concurrent requests never observe
// a partially updated rule set.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*CompiledRule
}

// CompiledRule pairs a rule with its pre-compiled CEL condition program.
// Program is nil for rules without an extra condition.
type CompiledRule struct {
	Rule    *domain.AttributeRule
	Program cel.Program
}

// NewEngine creates a new rule evaluation engine.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("selections", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("quantity", cel.IntType),
		cel.Variable("product_id", cel.StringType),
		cel.Variable("category_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		compiled: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded rules.
func (e *Engine) ValidateRule(r *domain.AttributeRule) error {
	if r == nil {
		return fmt.Errorf("rule is required")
	}
	if err := r.Validate(); err != nil {
		return err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(r)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(r *domain.AttributeRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(r)
	if err != nil {
		return err
	}

	e.compiled[r.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules, skipping inactive ones.
func (e *Engine) LoadRules(rs []*domain.AttributeRule) error {
	for _, r := range rs {
		if r.Active {
			if err := e.LoadRule(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules swaps the whole loaded set, enabling hot reload from the
// repository without a restart.
func (e *Engine) ReloadRules(rs []*domain.AttributeRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*CompiledRule)

	for _, r := range rs {
		if !r.Active {
			continue
		}

		compiled, err := e.compileRule(r)
		if err != nil {
			return err
		}
		next[r.ID] = compiled
	}

	e.compiled = next

	return nil
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.AttributeRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rs := make([]*domain.AttributeRule, 0, len(e.compiled))
	for _, c := range e.compiled {
		rs = append(rs, c.Rule)
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
	return rs
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*CompiledRule)
	return nil
}

// Result is the outcome of one evaluation pass.
type Result struct {
	Effects   domain.RuleEffects
	Signals   []domain.PricingSignal
	Evaluated []domain.EvaluatedRule
}

// Evaluate runs the loaded rules against the current selections.
//
// Rules not applicable to the product context are skipped entirely. The
// remaining rules are tested against the selection map (and their CEL
// condition, when present), sorted ascending by priority, and their actions
// folded into an effects accumulator. The pass is deterministic: equal
// priorities break ties by rule id, and output slices are sorted.
func (e *Engine) Evaluate(pctx domain.ProductContext, selections map[string]string, quantity int) *Result {
	e.mu.RLock()
	applicable := make([]*CompiledRule, 0, len(e.compiled))
	for _, c := range e.compiled {
		if ruleApplies(c.Rule, pctx) {
			applicable = append(applicable, c)
		}
	}
	e.mu.RUnlock()

	sort.Slice(applicable, func(i, j int) bool {
		if applicable[i].Rule.Priority != applicable[j].Rule.Priority {
			return applicable[i].Rule.Priority < applicable[j].Rule.Priority
		}
		return applicable[i].Rule.ID < applicable[j].Rule.ID
	})

	res := &Result{
		Effects: domain.RuleEffects{
			Show:         []string{},
			Hide:         []string{},
			Defaults:     make(map[string]string),
			Restrictions: make(map[string][]string),
		},
		Evaluated: make([]domain.EvaluatedRule, 0, len(applicable)),
	}

	acc := newAccumulator()

	for _, c := range applicable {
		matched := e.ruleMatches(c, pctx, selections, quantity)

		res.Evaluated = append(res.Evaluated, domain.EvaluatedRule{
			RuleID:       c.Rule.ID,
			RuleName:     c.Rule.Name,
			Priority:     c.Rule.Priority,
			ConditionMet: matched,
		})

		if !matched {
			continue
		}

		for _, a := range c.Rule.Actions {
			acc.apply(a)
		}
	}

	acc.finalize(res)

	return res
}

// ruleMatches tests the equality condition and, when present, the compiled
// CEL condition. A CEL runtime error counts as not matched.
func (e *Engine) ruleMatches(c *CompiledRule, pctx domain.ProductContext, selections map[string]string, quantity int) bool {
	selected, ok := selections[c.Rule.When.Attribute]
	if !ok || selected != c.Rule.When.Value {
		return false
	}

	if c.Program == nil {
		return true
	}

	activation := map[string]any{
		"selections":  selections,
		"quantity":    quantity,
		"product_id":  pctx.ProductID,
		"category_id": pctx.CategoryID,
	}

	out, _, err := c.Program.Eval(activation)
	if err != nil {
		slog.Warn("rule condition evaluation failed",
			"rule_id", c.Rule.ID,
			"error", err,
		)
		return false
	}

	b, ok := out.(types.Bool)
	return ok && bool(b)
}

// ruleApplies tests the optional category/product narrowing filters.
func ruleApplies(r *domain.AttributeRule, pctx domain.ProductContext) bool {
	if r.ProductID != "" && r.ProductID != pctx.ProductID {
		return false
	}
	if r.CategoryID != "" && r.CategoryID != pctx.CategoryID {
		return false
	}
	return true
}

func (e *Engine) compileRule(r *domain.AttributeRule) (*CompiledRule, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	compiled := &CompiledRule{Rule: r}

	if r.Condition == "" {
		return compiled, nil
	}

	ast, issues := e.env.Compile(r.Condition)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", r.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: condition must return bool, got %s", r.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", r.ID, err)
	}

	compiled.Program = program
	return compiled, nil
}

// accumulator folds rule actions into effects. HIDE is sticky: once an
// attribute is hidden, no later SHOW can re-reveal it within the pass.
// SET_DEFAULT and RESTRICT_VALUES on the same target are last-wins.
type accumulator struct {
	show     map[string]bool
	hidden   map[string]bool
	defaults map[string]string
	restrict map[string][]string
	signals  map[string]domain.PricingSignal
}

func newAccumulator() *accumulator {
	return &accumulator{
		show:     make(map[string]bool),
		hidden:   make(map[string]bool),
		defaults: make(map[string]string),
		restrict: make(map[string][]string),
		signals:  make(map[string]domain.PricingSignal),
	}
}

func (acc *accumulator) apply(a domain.RuleAction) {
	switch a.Type {
	case domain.ActionShow:
		if !acc.hidden[a.Target] {
			acc.show[a.Target] = true
		}
	case domain.ActionHide:
		acc.hidden[a.Target] = true
		delete(acc.show, a.Target)
	case domain.ActionSetDefault:
		acc.defaults[a.Target] = a.Value
	case domain.ActionRestrictValues:
		allowed := make([]string, len(a.AllowedValues))
		copy(allowed, a.AllowedValues)
		acc.restrict[a.Target] = allowed
	case domain.ActionTriggerPricing:
		scope := a.Scope
		if scope == "" {
			scope = domain.ScopeAttribute
		}
		sig := domain.PricingSignal{
			PricingKey: a.PricingKey,
			Scope:      scope,
			Priority:   a.SignalPriority,
		}
		// Duplicate keys keep the lowest priority.
		if prev, ok := acc.signals[a.PricingKey]; !ok || sig.Priority < prev.Priority {
			acc.signals[a.PricingKey] = sig
		}
	}
}

func (acc *accumulator) finalize(res *Result) {
	for target := range acc.show {
		res.Effects.Show = append(res.Effects.Show, target)
	}
	sort.Strings(res.Effects.Show)

	for target := range acc.hidden {
		res.Effects.Hide = append(res.Effects.Hide, target)
	}
	sort.Strings(res.Effects.Hide)

	res.Effects.Defaults = acc.defaults
	res.Effects.Restrictions = acc.restrict

	res.Signals = make([]domain.PricingSignal, 0, len(acc.signals))
	for _, sig := range acc.signals {
		res.Signals = append(res.Signals, sig)
	}
	sort.Slice(res.Signals, func(i, j int) bool {
		if res.Signals[i].Priority != res.Signals[j].Priority {
			return res.Signals[i].Priority < res.Signals[j].Priority
		}
		return res.Signals[i].PricingKey < res.Signals[j].PricingKey
	})
}

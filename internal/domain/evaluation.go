package domain

// RuleEvaluationRequest asks which configurator effects the current
// selections produce, without pricing anything.
type RuleEvaluationRequest struct {
	ProductID          string      `json:"productId,omitempty"`
	CategoryID         string      `json:"categoryId,omitempty"`
	SelectedAttributes []Selection `json:"selectedAttributes,omitempty"`
	Quantity           int         `json:"quantity,omitempty"`
}

// SelectionMap returns the selected attributes as attribute id to value, the
// shape the rule engine consumes.
func (r *RuleEvaluationRequest) SelectionMap() map[string]string {
	m := make(map[string]string, len(r.SelectedAttributes))
	for _, s := range r.SelectedAttributes {
		m[s.AttributeID] = s.Value
	}
	return m
}

// EvaluatedRule records one rule the engine considered for the current
// context and whether its condition matched.
type EvaluatedRule struct {
	RuleID       string `json:"ruleId"`
	RuleName     string `json:"ruleName"`
	Priority     int    `json:"priority"`
	ConditionMet bool   `json:"conditionMet"`
}

// RuleEvaluationResponse is the full outcome of one evaluation pass.
type RuleEvaluationResponse struct {
	EvaluatedRules []EvaluatedRule `json:"evaluatedRules"`
	Effects        RuleEffects     `json:"effects"`
	Signals        []PricingSignal `json:"triggerPricing,omitempty"`
	Context        ProductContext  `json:"context"`
}

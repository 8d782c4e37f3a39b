// Package policy validates a session configuration before anything is
// submitted. Rules are merchant-configurable boolean expressions evaluated
// against the config, so integrations can opt into hard validation of values
// the request builder would otherwise paper over.
package policy

import (
	"fmt"
	"strconv"

	"github.com/Knetic/govaluate"

	"github.com/yourorg/checkout-session/internal/session"
)

// Rule is one named boolean expression over the session config parameters.
type Rule struct {
	Name       string
	Expression string
}

// DefaultRules rejects configurations the backend would accept but almost
// certainly not mean: an unparseable or negative amount, a missing currency,
// or a missing merchant account.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "AmountParseable", Expression: "amount_valid && amount_minor >= 0"},
		{Name: "CurrencyPresent", Expression: "currency != ''"},
		{Name: "MerchantAccountPresent", Expression: "merchant_account != ''"},
	}
}

type compiledRule struct {
	name string
	expr *govaluate.EvaluableExpression
}

// Enforcer evaluates compiled rules against session configurations.
type Enforcer struct {
	rules []compiledRule
}

// NewEnforcer compiles the rule expressions. Nil or empty rules yield an
// enforcer that accepts everything.
func NewEnforcer(rules []Rule) (*Enforcer, error) {
	e := &Enforcer{}
	for _, r := range rules {
		expr, err := govaluate.NewEvaluableExpression(r.Expression)
		if err != nil {
			return nil, fmt.Errorf("policy: compile rule %q: %w", r.Name, err)
		}
		e.rules = append(e.rules, compiledRule{name: r.Name, expr: expr})
	}
	return e, nil
}

// Decision is the outcome of evaluating all rules.
type Decision struct {
	Allowed bool
	// Rule names the first failing rule when not allowed.
	Rule string
}

// Evaluate runs every rule against the config. Evaluation stops at the first
// rule that fails or does not produce a boolean.
func (e *Enforcer) Evaluate(cfg session.Config) (Decision, error) {
	params := parameters(cfg)
	for _, r := range e.rules {
		result, err := r.expr.Evaluate(params)
		if err != nil {
			return Decision{}, fmt.Errorf("policy: evaluate rule %q: %w", r.name, err)
		}
		ok, isBool := result.(bool)
		if !isBool {
			return Decision{}, fmt.Errorf("policy: rule %q did not evaluate to a boolean", r.name)
		}
		if !ok {
			return Decision{Allowed: false, Rule: r.name}, nil
		}
	}
	return Decision{Allowed: true}, nil
}

func parameters(cfg session.Config) map[string]any {
	amount, err := strconv.Atoi(cfg.Amount)
	amountValid := err == nil

	return map[string]any{
		"amount":            cfg.Amount,
		"amount_minor":      amount,
		"amount_valid":      amountValid,
		"currency":          cfg.Currency,
		"merchant_account":  cfg.MerchantAccount,
		"return_url":        cfg.ReturnURL,
		"reference":         cfg.Reference,
		"shopper_reference": cfg.ShopperReference,
		"country_code":      cfg.CountryCode(),
		"environment":       string(cfg.Environment),
	}
}

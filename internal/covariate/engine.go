// Package covariate implements the multiplicative, rule-based covariate adjustment used by
// both the PK simulator (clearance adjustment) and the adverse-event model (risk multiplier).
//
// A single Engine evaluates a RuleTable against a Subject. Each rule contributes an
// independent factor; the result is their product. Two tables ship with the package:
// ClearanceRules and RiskRules.
package covariate

import (
	"fmt"
	"slices"
	"sort"

	"github.com/pkddi-mcp-server/internal/domain"
)

// Subject is the input a rule is evaluated against. Drug is set for clearance
// evaluation, Event for adverse-event risk evaluation.
type Subject struct {
	Patient *domain.PatientProfile
	Drug    *domain.DrugProperties
	Event   *domain.KnownAdverseEvent
}

// Rule is a single multiplicative covariate term. Evaluate reports whether the rule
// fired, the factor it contributes (must be > 0) and a human-readable reason.
type Rule struct {
	Code        string
	Description string
	Evaluate    func(s Subject) (factor float64, reason string, applied bool)
}

// RuleTable is a named, ordered set of rules
type RuleTable struct {
	Name  string
	Rules []Rule
}

// Contribution records a rule that fired
type Contribution struct {
	Code   string  `json:"code"`
	Factor float64 `json:"factor"`
	Reason string  `json:"reason"`
}

// Adjustment is the outcome of evaluating a rule table
type Adjustment struct {
	Factor        float64        `json:"factor"`
	Contributions []Contribution `json:"contributions"`
}

// Reasons returns the reasons of contributions whose factor exceeds 1
func (a Adjustment) Reasons() []string {
	var out []string
	for _, c := range a.Contributions {
		if c.Factor > 1 && c.Reason != "" {
			out = append(out, c.Reason)
		}
	}
	return out
}

// ReasonsFor is Reasons restricted to contributions from the given rule codes
func (a Adjustment) ReasonsFor(codes ...string) []string {
	var out []string
	for _, c := range a.Contributions {
		if c.Factor > 1 && c.Reason != "" && slices.Contains(codes, c.Code) {
			out = append(out, c.Reason)
		}
	}
	return out
}

// Engine evaluates one rule table. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	table RuleTable
}

// NewEngine creates an engine over a rule table
func NewEngine(table RuleTable) (*Engine, error) {
	seen := make(map[string]bool, len(table.Rules))
	for _, r := range table.Rules {
		if r.Code == "" || r.Evaluate == nil {
			return nil, fmt.Errorf("rule table %s: rule %q is incomplete", table.Name, r.Code)
		}
		if seen[r.Code] {
			return nil, fmt.Errorf("rule table %s: duplicate rule %s", table.Name, r.Code)
		}
		seen[r.Code] = true
	}
	return &Engine{table: table}, nil
}

// MustNewEngine is NewEngine for the package's static tables
func MustNewEngine(table RuleTable) *Engine {
	e, err := NewEngine(table)
	if err != nil {
		panic(err)
	}
	return e
}

// Table returns the engine's rule table name
func (e *Engine) Table() string { return e.table.Name }

// Evaluate applies every rule to the subject and multiplies the fired factors.
// Factors are multiplied in ascending order so the product does not depend on the
// order of rules in the table.
func (e *Engine) Evaluate(s Subject) Adjustment {
	adj := Adjustment{Factor: 1}
	if s.Patient == nil {
		return adj
	}

	for _, r := range e.table.Rules {
		factor, reason, applied := r.Evaluate(s)
		if !applied || !(factor > 0) {
			continue
		}
		adj.Contributions = append(adj.Contributions, Contribution{Code: r.Code, Factor: factor, Reason: reason})
	}

	factors := make([]float64, len(adj.Contributions))
	for i, c := range adj.Contributions {
		factors[i] = c.Factor
	}
	sort.Float64s(factors)
	for _, f := range factors {
		adj.Factor *= f
	}
	return adj
}

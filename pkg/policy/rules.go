package policy

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Rule is one CEL policy check. The expression evaluates against an input
// with a single `plan` variable; a false result is a failed verification.
type Rule struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`

	// Hard marks the rule as a hard block: a failure cannot be overridden
	// by any approval.
	Hard bool `yaml:"hard"`

	// Message is the human-readable outcome recorded on failure.
	Message string `yaml:"message"`
}

// DefaultRules is the built-in check battery. Order is definition order and
// is mirrored in the returned verification sequence.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:    "non_empty_plan",
			Expr:    `plan.action_count > 0`,
			Hard:    true,
			Message: "plan has no actions",
		},
		{
			Name:    "action_budget",
			Expr:    `plan.action_count <= 20`,
			Message: "plan exceeds the 20 action budget",
		},
		{
			Name:    "live_run_budget",
			Expr:    `plan.live_count <= 5`,
			Message: "plan commits more than 5 live actions",
		},
		{
			Name:    "prohibited_actions",
			Expr:    `plan.actions.all(a, !(a.type in ["purge_datastore", "delete_tenant", "drop_catalog"]))`,
			Hard:    true,
			Message: "plan contains a prohibited action type",
		},
		{
			Name:    "deployment_targets_named",
			Expr:    `plan.actions.all(a, a.type != "execute_deployment" || "service" in a.args)`,
			Message: "deployment actions must name a target service",
		},
	}
}

// rulesetFile is the YAML shape for operator-supplied rule packs.
type rulesetFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules parses a YAML ruleset. Loaded rules extend, not replace, the
// built-in battery; the caller decides the final order.
func LoadRules(r io.Reader) ([]Rule, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("policy: read ruleset: %w", err)
	}

	var f rulesetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("policy: parse ruleset: %w", err)
	}

	for i, rule := range f.Rules {
		if rule.Name == "" || rule.Expr == "" {
			return nil, fmt.Errorf("policy: rule %d missing name or expr", i)
		}
	}
	return f.Rules, nil
}

package planner

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/stratus-ops/conductor/pkg/contracts"
)

// folder performs Unicode case folding so keyword matching survives
// instructions typed in any casing or locale.
var folder = cases.Fold()

// heuristicActions is the deterministic fallback planner: a fixed keyword
// table mapping instruction phrases to catalog actions. It is intentionally
// conservative — every derived action keeps the dry-run default.
func heuristicActions(instruction string) []contracts.Action {
	text := folder.String(instruction)

	contains := func(keywords ...string) bool {
		for _, k := range keywords {
			if strings.Contains(text, k) {
				return true
			}
		}
		return false
	}

	var actions []contracts.Action
	add := func(t contracts.ActionType, args map[string]any) {
		actions = append(actions, contracts.Action{Type: t, Args: args})
	}

	switch {
	case contains("health", "status", "uptime"):
		add(contracts.ActionCheckHealth, map[string]any{"scope": "all_services"})
		if contains("report", "summary") {
			add(contracts.ActionRunAnalytics, map[string]any{"job": "health_summary"})
		}

	case contains("rollback", "revert"):
		add(contracts.ActionRollbackRelease, map[string]any{
			"service": serviceHint(text),
		})
		add(contracts.ActionCheckHealth, map[string]any{"scope": serviceHint(text)})

	case contains("deploy", "release", "ship"):
		args := map[string]any{"service": serviceHint(text)}
		if contains("production", "prod") {
			args["environment"] = "production"
		} else {
			args["environment"] = "staging"
		}
		if contains("latest") {
			args["version"] = "latest"
		}
		add(contracts.ActionExecuteDeployment, args)
		add(contracts.ActionCheckHealth, map[string]any{"scope": serviceHint(text)})

	case contains("inventory", "stock", "restock"):
		add(contracts.ActionQueryDatastore, map[string]any{"query": "inventory_levels"})
		add(contracts.ActionUpdateInventory, map[string]any{"source": "instruction"})

	case contains("price", "pricing", "discount", "sale"):
		add(contracts.ActionQueryDatastore, map[string]any{"query": "current_prices"})
		add(contracts.ActionAdjustPricing, map[string]any{"source": "instruction"})

	case contains("report", "analytics", "revenue", "sales", "metrics"):
		add(contracts.ActionRunAnalytics, map[string]any{"job": "operator_report"})

	case contains("notify", "alert", "announce"):
		add(contracts.ActionNotifyOperators, map[string]any{"message": instruction})

	default:
		// Unrecognized instructions degrade to a read-only investigation.
		add(contracts.ActionQueryDatastore, map[string]any{"query": instruction})
		add(contracts.ActionRunAnalytics, map[string]any{"job": "adhoc_investigation"})
	}

	return actions
}

// serviceHint extracts a crude service name from the folded instruction.
// Good enough for the fallback path; the reasoning backend does better.
func serviceHint(text string) string {
	for _, candidate := range []string{"checkout", "catalog", "payments", "storefront", "search", "fulfillment"} {
		if strings.Contains(text, candidate) {
			return candidate
		}
	}
	return "all"
}

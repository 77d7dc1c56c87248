// Package toolmap translates plan actions into tool calls via a fixed
// type→tool lookup table. Callers invoke it only after the approval gate has
// passed; calling it earlier is a contract violation, not a runtime condition
// this package defends against.
package toolmap

import (
	"fmt"

	"github.com/stratus-ops/conductor/pkg/contracts"
)

// binding couples a tool name with the human-readable side-effect
// description shown to approvers.
type binding struct {
	tool       string
	expectDiff string
}

// bindings is the static action→tool table. Action types without an entry
// produce no tool call and are silently skipped: the pipeline degrades
// gracefully rather than failing a whole plan over one unbound action.
var bindings = map[contracts.ActionType]binding{
	contracts.ActionExecuteDeployment: {
		tool:       "deployctl",
		expectDiff: "replaces the running release of the target service; traffic shifts to the new version",
	},
	contracts.ActionRollbackRelease: {
		tool:       "deployctl",
		expectDiff: "reverts the target service to its previous release",
	},
	contracts.ActionQueryDatastore: {
		tool:       "datastore",
		expectDiff: "read-only query; no state changes",
	},
	contracts.ActionUpdateInventory: {
		tool:       "inventory",
		expectDiff: "rewrites stock levels for the affected SKUs",
	},
	contracts.ActionAdjustPricing: {
		tool:       "pricing",
		expectDiff: "changes customer-visible prices for the affected SKUs",
	},
	contracts.ActionRunAnalytics: {
		tool:       "analytics",
		expectDiff: "runs an analytics job; produces a report, no production state changes",
	},
	contracts.ActionCheckHealth: {
		tool:       "healthmon",
		expectDiff: "probes service health endpoints; no state changes",
	},
}

// MapPlanToToolCalls derives the ordered tool call sequence for a plan. The
// result preserves action order for the actions that have a binding.
func MapPlanToToolCalls(plan *contracts.ExecutionPlan) []contracts.ToolCall {
	var calls []contracts.ToolCall
	for _, action := range plan.Actions {
		b, ok := bindings[action.Type]
		if !ok {
			continue
		}
		calls = append(calls, contracts.ToolCall{
			Tool:       b.tool,
			Args:       action.Args,
			DryRun:     action.IsDryRun(),
			ExpectDiff: fmt.Sprintf("%s: %s", action.Type, b.expectDiff),
		})
	}
	return calls
}

// BoundTool returns the tool name an action type maps to, if any. Used by
// operator tooling to explain the catalog.
func BoundTool(t contracts.ActionType) (string, bool) {
	b, ok := bindings[t]
	return b.tool, ok
}

// Package contracts defines the shared data model for the command-to-execution
// pipeline: plans, verifications, risk assessments, approvals, tool calls and
// execution records. Types here are produced by one stage and consumed
// read-only by the next; none of them carry behaviour beyond derivation
// helpers.
package contracts

import "time"

// ActionType names a unit of work inside a plan.
type ActionType string

// Known action types. The catalog is closed: the planner only emits these,
// and the tool mapper only binds these. Unknown types flow through the
// pipeline unharmed and are skipped at mapping time.
const (
	ActionExecuteDeployment ActionType = "execute_deployment"
	ActionRollbackRelease   ActionType = "rollback_release"
	ActionQueryDatastore    ActionType = "query_datastore"
	ActionUpdateInventory   ActionType = "update_inventory"
	ActionAdjustPricing     ActionType = "adjust_pricing"
	ActionRunAnalytics      ActionType = "run_analytics"
	ActionCheckHealth       ActionType = "check_health"
	ActionNotifyOperators   ActionType = "notify_operators"
)

// IrreversibleActionTypes marks actions whose live effects cannot be undone.
// The risk assessor and approval gate both key off this set.
var IrreversibleActionTypes = map[ActionType]bool{
	ActionExecuteDeployment: true,
	ActionRollbackRelease:   true,
	ActionUpdateInventory:   true,
	ActionAdjustPricing:     true,
}

// Action is a single step of an execution plan. Created only by the planner,
// immutable thereafter.
type Action struct {
	Type ActionType     `json:"type"`
	Args map[string]any `json:"args,omitempty"`

	// DryRun defaults to true when absent on the wire: unspecified intent
	// is always simulated, never committed.
	DryRun *bool `json:"dry_run,omitempty"`
}

// IsDryRun resolves the safety-biased default.
func (a Action) IsDryRun() bool {
	if a.DryRun == nil {
		return true
	}
	return *a.DryRun
}

// ExecutionPlan is an ordered list of actions synthesized from a
// natural-language instruction. Action order is execution order.
type ExecutionPlan struct {
	PlanID    string    `json:"plan_id"`
	Goal      string    `json:"goal"`
	Actions   []Action  `json:"actions"`
	Hash      string    `json:"hash,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// IsEmpty reports whether the plan has no actions. An empty plan is an error
// condition for a successful synthesis, not a valid idle state.
func (p *ExecutionPlan) IsEmpty() bool {
	return p == nil || len(p.Actions) == 0
}

// LiveActionCount returns the number of actions that would commit real effects.
func (p *ExecutionPlan) LiveActionCount() int {
	n := 0
	for _, a := range p.Actions {
		if !a.IsDryRun() {
			n++
		}
	}
	return n
}

// IrreversibleActionTypeSet returns the distinct irreversible action types in
// plan order. Distinctness matters: the approval gate requires one sign-off
// per independent critical action type.
func (p *ExecutionPlan) IrreversibleActionTypeSet() []ActionType {
	seen := make(map[ActionType]bool)
	var out []ActionType
	for _, a := range p.Actions {
		if IrreversibleActionTypes[a.Type] && !seen[a.Type] {
			seen[a.Type] = true
			out = append(out, a.Type)
		}
	}
	return out
}

//go:build property
// +build property

// Property-based tests for the risk assessor: determinism, range, level
// totality and monotonicity under generated plans and verification batches.
package risk_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/stratus-ops/conductor/pkg/contracts"
	"github.com/stratus-ops/conductor/pkg/risk"
)

var actionTypePool = []contracts.ActionType{
	contracts.ActionExecuteDeployment,
	contracts.ActionRollbackRelease,
	contracts.ActionQueryDatastore,
	contracts.ActionUpdateInventory,
	contracts.ActionAdjustPricing,
	contracts.ActionRunAnalytics,
	contracts.ActionCheckHealth,
	contracts.ActionNotifyOperators,
}

func genPlan() gopter.Gen {
	return gen.SliceOfN(4, gen.IntRange(0, len(actionTypePool)-1)).Map(func(idx []int) *contracts.ExecutionPlan {
		actions := make([]contracts.Action, 0, len(idx))
		for _, i := range idx {
			actions = append(actions, contracts.Action{Type: actionTypePool[i]})
		}
		return &contracts.ExecutionPlan{Goal: "generated", Actions: actions}
	})
}

func genVerifications() gopter.Gen {
	return gen.SliceOf(gen.Bool()).Map(func(passes []bool) []contracts.Verification {
		out := make([]contracts.Verification, 0, len(passes))
		for i, pass := range passes {
			out = append(out, contracts.Verification{
				Type: "generated",
				Pass: pass,
				Hard: i%3 == 0,
			})
		}
		return out
	})
}

func TestAssessProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("assess is deterministic", prop.ForAll(
		func(plan *contracts.ExecutionPlan, vs []contracts.Verification) bool {
			return risk.Assess(plan, vs) == risk.Assess(plan, vs)
		},
		genPlan(), genVerifications(),
	))

	properties.Property("score stays within [0,1]", prop.ForAll(
		func(plan *contracts.ExecutionPlan, vs []contracts.Verification) bool {
			a := risk.Assess(plan, vs)
			return a.Score >= 0.0 && a.Score <= 1.0
		},
		genPlan(), genVerifications(),
	))

	properties.Property("level is the total function of score", prop.ForAll(
		func(plan *contracts.ExecutionPlan, vs []contracts.Verification) bool {
			a := risk.Assess(plan, vs)
			return a.Level == contracts.LevelForScore(a.Score)
		},
		genPlan(), genVerifications(),
	))

	properties.Property("an extra failed check never lowers the score", prop.ForAll(
		func(plan *contracts.ExecutionPlan, vs []contracts.Verification) bool {
			base := risk.Assess(plan, vs)
			more := append(append([]contracts.Verification{}, vs...), contracts.Verification{Pass: false})
			return risk.Assess(plan, more).Score >= base.Score
		},
		genPlan(), genVerifications(),
	))

	properties.TestingRun(t)
}

func TestLevelBoundaryProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("levels partition [0,1] without gap or overlap", prop.ForAll(
		func(score float64) bool {
			level := contracts.LevelForScore(score)
			switch {
			case score < contracts.MediumThreshold:
				return level == contracts.RiskLow
			case score < contracts.HighThreshold:
				return level == contracts.RiskMedium
			default:
				return level == contracts.RiskHigh
			}
		},
		gen.Float64Range(0.0, 1.0),
	))

	properties.TestingRun(t)
}

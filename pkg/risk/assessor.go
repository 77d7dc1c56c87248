// Package risk derives a numeric risk score and a discrete risk level from a
// plan and its verification results. Assess is a pure function: no I/O, no
// clock, total over all well-formed inputs.
package risk

import (
	"github.com/stratus-ops/conductor/pkg/contracts"
)

// Scoring weights. The score is additive in plan shape and verification
// outcomes so it is monotone in both: more actions, more irreversible action
// types, more live runs and more failed checks can only raise it.
const (
	perActionWeight = 0.05
	perActionCap    = 0.25

	perIrreversibleTypeWeight = 0.25
	perIrreversibleTypeCap    = 0.50

	perLiveActionWeight = 0.10
	perLiveActionCap    = 0.20

	failedSoftWeight = 0.15
	failedHardWeight = 0.40
)

// Assess scores the plan against its verification batch. A nil or empty plan
// is treated as maximally suspect: it can only exist on a degraded error
// path, so it scores straight to HIGH.
func Assess(plan *contracts.ExecutionPlan, verifications []contracts.Verification) contracts.RiskAssessment {
	if plan.IsEmpty() {
		return contracts.RiskAssessment{Score: 1.0, Level: contracts.RiskHigh}
	}

	score := capped(float64(len(plan.Actions))*perActionWeight, perActionCap)
	score += capped(float64(len(plan.IrreversibleActionTypeSet()))*perIrreversibleTypeWeight, perIrreversibleTypeCap)
	score += capped(float64(plan.LiveActionCount())*perLiveActionWeight, perLiveActionCap)

	for _, v := range verifications {
		if v.Pass {
			continue
		}
		if v.Hard {
			score += failedHardWeight
		} else {
			score += failedSoftWeight
		}
	}

	if score > 1.0 {
		score = 1.0
	}

	return contracts.RiskAssessment{
		Score: score,
		Level: contracts.LevelForScore(score),
	}
}

func capped(v, cap float64) float64 {
	if v > cap {
		return cap
	}
	return v
}

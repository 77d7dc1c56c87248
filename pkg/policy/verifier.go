// Package policy runs a fixed battery of checks against an execution plan and
// produces pass/fail verification records. Rules are CEL expressions with
// compiled-program caching; a handful of native checks (argument schemas,
// semver discipline) run after the rule battery. Verification is time-bounded
// and fail-closed: an overrun fails the request instead of returning partial
// results.
package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/stratus-ops/conductor/pkg/contracts"
)

// DefaultDeadline bounds one verification battery.
const DefaultDeadline = 5 * time.Second

// Verifier evaluates the check battery. Deterministic for a fixed plan and
// fixed ruleset.
type Verifier struct {
	env      *cel.Env
	rules    []Rule
	natives  []nativeCheck
	deadline time.Duration

	mu       sync.RWMutex
	prgCache map[string]cel.Program
}

// NewVerifier creates a verifier with the given rules plus the native checks.
// Pass DefaultRules() for the standard battery.
func NewVerifier(rules []Rule) (*Verifier, error) {
	env, err := cel.NewEnv(
		cel.Variable("plan", cel.DynType),
		cel.Variable("timestamp", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: create CEL environment: %w", err)
	}

	natives, err := defaultNativeChecks()
	if err != nil {
		return nil, err
	}

	return &Verifier{
		env:      env,
		rules:    rules,
		natives:  natives,
		deadline: DefaultDeadline,
		prgCache: make(map[string]cel.Program),
	}, nil
}

// WithDeadline overrides the verification deadline.
func (v *Verifier) WithDeadline(d time.Duration) *Verifier {
	v.deadline = d
	return v
}

// Verify runs every check against the plan. The returned sequence mirrors
// rule-definition order: CEL rules first, native checks after. A verifier
// with no applicable checks returns an empty slice, which downstream stages
// treat as "no information", not as "all passed".
func (v *Verifier) Verify(ctx context.Context, plan *contracts.ExecutionPlan) ([]contracts.Verification, error) {
	ctx, cancel := context.WithTimeout(ctx, v.deadline)
	defer cancel()

	type outcome struct {
		verifications []contracts.Verification
		err           error
	}
	done := make(chan outcome, 1)

	go func() {
		vs, err := v.runBattery(ctx, plan)
		done <- outcome{vs, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrVerificationTimeout, ctx.Err())
	case out := <-done:
		if out.err != nil && (errors.Is(out.err, context.DeadlineExceeded) || errors.Is(out.err, context.Canceled)) {
			return nil, fmt.Errorf("%w: %v", ErrVerificationTimeout, out.err)
		}
		return out.verifications, out.err
	}
}

// runBattery stops at the first context error so a deadline overrun actually
// halts rule evaluation instead of leaving it running in the background.
func (v *Verifier) runBattery(ctx context.Context, plan *contracts.ExecutionPlan) ([]contracts.Verification, error) {
	input := planInput(plan)
	verifications := make([]contracts.Verification, 0, len(v.rules)+len(v.natives))

	for _, rule := range v.rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pass, err := v.evaluateExpr(ctx, rule.Expr, input)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, err
			}
			// A broken rule is a failed check, not a crashed battery.
			verifications = append(verifications, contracts.Verification{
				Type:   rule.Name,
				Result: fmt.Sprintf("rule evaluation error: %v", err),
				Pass:   false,
				Hard:   rule.Hard,
			})
			continue
		}

		result := "check passed"
		if !pass {
			result = rule.Message
			if result == "" {
				result = "check failed"
			}
		}
		verifications = append(verifications, contracts.Verification{
			Type:   rule.Name,
			Result: result,
			Pass:   pass,
			Hard:   rule.Hard,
		})
	}

	for _, check := range v.natives {
		if verification, applicable := check.run(plan); applicable {
			verifications = append(verifications, verification)
		}
	}

	return verifications, nil
}

func (v *Verifier) evaluateExpr(ctx context.Context, expr string, input map[string]any) (bool, error) {
	v.mu.RLock()
	prg, hit := v.prgCache[expr]
	v.mu.RUnlock()

	if !hit {
		v.mu.Lock()
		if prg, hit = v.prgCache[expr]; !hit {
			ast, issues := v.env.Compile(expr)
			if issues != nil && issues.Err() != nil {
				v.mu.Unlock()
				return false, fmt.Errorf("compile: %w", issues.Err())
			}
			p, err := v.env.Program(ast,
				cel.InterruptCheckFrequency(100),
				cel.CostLimit(10000),
			)
			if err != nil {
				v.mu.Unlock()
				return false, fmt.Errorf("program: %w", err)
			}
			v.prgCache[expr] = p
			prg = p
		}
		v.mu.Unlock()
	}

	out, _, err := prg.ContextEval(ctx, input)
	if err != nil {
		// CEL reports interruption as its own error; surface the context
		// error instead so the caller sees the overrun, not a broken rule.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, fmt.Errorf("eval: %w", err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not evaluate to bool")
	}
	return allowed, nil
}

// planInput flattens the plan into the CEL evaluation input. Scalar
// aggregates are precomputed so most rules stay cheap.
func planInput(plan *contracts.ExecutionPlan) map[string]any {
	actions := make([]map[string]any, 0, len(plan.Actions))
	irreversible := 0
	for _, a := range plan.Actions {
		args := a.Args
		if args == nil {
			args = map[string]any{}
		}
		actions = append(actions, map[string]any{
			"type":    string(a.Type),
			"args":    args,
			"dry_run": a.IsDryRun(),
		})
		if contracts.IrreversibleActionTypes[a.Type] {
			irreversible++
		}
	}

	return map[string]any{
		"timestamp": time.Now().Unix(),
		"plan": map[string]any{
			"goal":               plan.Goal,
			"actions":            actions,
			"action_count":       len(plan.Actions),
			"live_count":         plan.LiveActionCount(),
			"irreversible_count": irreversible,
		},
	}
}

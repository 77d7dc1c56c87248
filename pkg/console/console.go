// Package console is the outer service surface of the command pipeline. It
// owns the stage sequencing (synthesize, verify, assess, gate, map) and the
// commit path that hands approved tool calls to the coordinator. Every
// terminal failure still produces a well-formed response; callers never see a
// raw panic or a half-built result.
package console

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stratus-ops/conductor/pkg/approval"
	"github.com/stratus-ops/conductor/pkg/audit"
	"github.com/stratus-ops/conductor/pkg/contracts"
	"github.com/stratus-ops/conductor/pkg/executor"
	"github.com/stratus-ops/conductor/pkg/planner"
	"github.com/stratus-ops/conductor/pkg/policy"
	"github.com/stratus-ops/conductor/pkg/risk"
	"github.com/stratus-ops/conductor/pkg/toolmap"
)

// DefaultRequestDeadline bounds one whole HandleInstruction pass. Stage
// deadlines are independent and tighter; this is the outer envelope.
const DefaultRequestDeadline = 30 * time.Second

// DefaultAssessmentTTL bounds how long a plan's assessed risk level stays
// usable on the commit path. Comfortably longer than the approval token TTL.
const DefaultAssessmentTTL = time.Hour

// SnapshotProvider supplies the point-in-time state blob used as planning
// context. Implementations must complete or fail within a bounded time.
type SnapshotProvider interface {
	SnapshotContext(ctx context.Context) (planner.Snapshot, error)
}

// SnapshotFunc adapts a function to SnapshotProvider.
type SnapshotFunc func(ctx context.Context) (planner.Snapshot, error)

// SnapshotContext implements SnapshotProvider.
func (f SnapshotFunc) SnapshotContext(ctx context.Context) (planner.Snapshot, error) {
	return f(ctx)
}

// CommandResponse is the outcome of one planned-and-assessed instruction.
type CommandResponse struct {
	Plan          *contracts.ExecutionPlan    `json:"plan"`
	Risk          contracts.RiskAssessment    `json:"risk"`
	Verifications []contracts.Verification    `json:"verifications"`
	Approvals     []contracts.ApprovalRequest `json:"approvals,omitempty"`
	ToolCalls     []contracts.ToolCall        `json:"tool_calls,omitempty"`
	NextSteps     []string                    `json:"next_steps"`
}

// ExecuteRequest is the commit-path input.
type ExecuteRequest struct {
	ToolCalls []contracts.ToolCall `json:"tool_calls"`
	// PlanHash identifies the plan the calls were derived from; approval
	// tokens bind to it.
	PlanHash string `json:"plan_hash"`
	// RiskLevel is the assessed level from the preceding HandleInstruction
	// response. Anything above LOW requires a valid approval token. When the
	// console still remembers its own assessment for PlanHash, that
	// assessment wins over the caller's claim.
	RiskLevel contracts.RiskLevel `json:"risk_level"`
	// ApprovalToken is the operator-presented approval, if any.
	ApprovalToken string `json:"approval_token,omitempty"`
	// IdempotencyKey, when set and previously seen, replays the recorded
	// outcome instead of dispatching again.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Console sequences the pipeline stages and exposes the two entry points the
// request layer calls. All collaborators are injected. The only state the
// console keeps between requests is the assessment registry: plan hash to
// assessed risk level and required checkpoints, so the commit path enforces
// the console's own verdict instead of the caller's claimed level.
type Console struct {
	synthesizer *planner.Synthesizer
	verifier    *policy.Verifier
	gate        *approval.Gate
	coordinator *executor.Coordinator
	snapshots   SnapshotProvider
	idempotency IdempotencyStore
	auditLog    audit.Logger
	deadline    time.Duration
	tracer      trace.Tracer

	mu          sync.Mutex
	assessments map[string]planAssessment
}

// planAssessment is the commit-relevant outcome of one HandleInstruction
// pass, keyed by plan hash.
type planAssessment struct {
	level       contracts.RiskLevel
	checkpoints []string
	expires     time.Time
}

// New wires a console from its stage collaborators.
func New(synth *planner.Synthesizer, verifier *policy.Verifier, gate *approval.Gate, coord *executor.Coordinator) *Console {
	return &Console{
		synthesizer: synth,
		verifier:    verifier,
		gate:        gate,
		coordinator: coord,
		auditLog:    audit.Nop(),
		deadline:    DefaultRequestDeadline,
		tracer:      otel.Tracer("conductor/console"),
		assessments: make(map[string]planAssessment),
	}
}

// WithSnapshotProvider installs the planning-context source.
func (c *Console) WithSnapshotProvider(p SnapshotProvider) *Console {
	c.snapshots = p
	return c
}

// WithIdempotencyStore enables replay-safe execution keyed by client
// idempotency keys.
func (c *Console) WithIdempotencyStore(s IdempotencyStore) *Console {
	c.idempotency = s
	return c
}

// WithAuditLogger overrides the audit sink.
func (c *Console) WithAuditLogger(l audit.Logger) *Console {
	c.auditLog = l
	return c
}

// WithRequestDeadline overrides the outer request envelope.
func (c *Console) WithRequestDeadline(d time.Duration) *Console {
	c.deadline = d
	return c
}

// HandleInstruction runs the plan-and-assess half of the pipeline. The
// response is always well-formed: stage failures degrade into a HIGH-risk,
// zero-action response carrying an explanatory verification entry rather
// than surfacing as an error.
func (c *Console) HandleInstruction(ctx context.Context, instruction string, extra map[string]any) *CommandResponse {
	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "console.HandleInstruction")
	defer span.End()

	_ = c.auditLog.Record(ctx, audit.EventCommand, "instruction_received", "", map[string]any{
		"instruction": instruction,
	})

	snapshot, err := c.snapshotContext(ctx)
	if err != nil {
		return c.degraded(ctx, instruction, fmt.Errorf("context snapshot: %w", err))
	}

	plan, err := c.synthesizer.Synthesize(ctx, instruction, snapshot, extra)
	if err != nil {
		return c.degraded(ctx, instruction, fmt.Errorf("plan synthesis: %w", err))
	}

	verifications, err := c.verifier.Verify(ctx, plan)
	if err != nil {
		return c.degraded(ctx, instruction, fmt.Errorf("policy verification: %w", err))
	}

	assessment := risk.Assess(plan, verifications)
	approvals := c.gate.RequiredApprovals(plan, assessment)
	c.recordAssessment(plan.Hash, assessment.Level, approval.CheckpointIDs(approvals))
	span.SetAttributes(
		attribute.String("risk.level", string(assessment.Level)),
		attribute.Float64("risk.score", assessment.Score),
		attribute.Int("plan.actions", len(plan.Actions)),
	)

	response := &CommandResponse{
		Plan:          plan,
		Risk:          assessment,
		Verifications: verifications,
		Approvals:     approvals,
	}

	// Hard-blocked plans never reach tool mapping; a valid approval token
	// cannot override a hard failure, so there is nothing to review.
	if contracts.HasHardFailure(verifications) {
		response.NextSteps = []string{
			"Plan is blocked by a hard policy failure; revise the instruction and resubmit.",
		}
	} else {
		response.ToolCalls = toolmap.MapPlanToToolCalls(plan)
		response.NextSteps = nextSteps(assessment.Level, response.ToolCalls)
	}

	_ = c.auditLog.Record(ctx, audit.EventCommand, "instruction_planned", plan.PlanID, map[string]any{
		"plan_hash":  plan.Hash,
		"risk_level": assessment.Level,
		"risk_score": assessment.Score,
		"approvals":  len(approvals),
		"tool_calls": len(response.ToolCalls),
	})

	return response
}

// ExecuteToolCalls is the commit entry point. The caller is expected to have
// taken the plan through HandleInstruction first; anything above LOW risk
// must present an approval token bound to the plan hash and covering the
// checkpoints the assessment demanded.
func (c *Console) ExecuteToolCalls(ctx context.Context, req ExecuteRequest) (*contracts.ExecutionRecord, error) {
	ctx, span := c.tracer.Start(ctx, "console.ExecuteToolCalls", trace.WithAttributes(
		attribute.Int("execution.calls", len(req.ToolCalls)),
		attribute.String("risk.level", string(req.RiskLevel)),
	))
	defer span.End()

	if c.idempotency != nil && req.IdempotencyKey != "" {
		if record, ok, err := c.idempotency.Check(ctx, req.IdempotencyKey); err == nil && ok {
			_ = c.auditLog.Record(ctx, audit.EventExecution, "execution_replayed", record.ExecutionID, map[string]any{
				"idempotency_key": req.IdempotencyKey,
			})
			return record, nil
		}
	}

	// Prefer the console's own recorded assessment over the claimed level;
	// the caller cannot downgrade a plan it did not assess.
	level := req.RiskLevel
	var checkpoints []string
	if stored, ok := c.lookupAssessment(req.PlanHash); ok {
		level = stored.level
		checkpoints = stored.checkpoints
	} else if level != "" && level != contracts.RiskLow {
		checkpoints = []string{approval.PlanCheckpointID}
	}

	record, err := c.coordinator.Execute(ctx, req.ToolCalls, executor.ExecuteOptions{
		PlanHash:         req.PlanHash,
		ApprovalToken:    req.ApprovalToken,
		ApprovalRequired: level != "" && level != contracts.RiskLow,
		Checkpoints:      checkpoints,
	})
	if err != nil {
		// Approval rejections surface distinctly so the caller can
		// re-prompt instead of treating them as tool failures.
		return record, err
	}

	if c.idempotency != nil && req.IdempotencyKey != "" {
		if err := c.idempotency.Set(ctx, req.IdempotencyKey, record); err != nil {
			_ = c.auditLog.Record(ctx, audit.EventSystem, "idempotency_store_failed", record.ExecutionID, map[string]any{
				"error": err.Error(),
			})
		}
	}

	return record, nil
}

func (c *Console) recordAssessment(planHash string, level contracts.RiskLevel, checkpoints []string) {
	if planHash == "" {
		return
	}
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for hash, a := range c.assessments {
		if now.After(a.expires) {
			delete(c.assessments, hash)
		}
	}
	c.assessments[planHash] = planAssessment{
		level:       level,
		checkpoints: checkpoints,
		expires:     now.Add(DefaultAssessmentTTL),
	}
}

func (c *Console) lookupAssessment(planHash string) (planAssessment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.assessments[planHash]
	if !ok || time.Now().After(a.expires) {
		return planAssessment{}, false
	}
	return a, true
}

func (c *Console) snapshotContext(ctx context.Context) (planner.Snapshot, error) {
	if c.snapshots == nil {
		return nil, nil
	}
	return c.snapshots.SnapshotContext(ctx)
}

// degraded builds the total-failure response shape: HIGH risk, zero actions,
// one explanatory verification entry.
func (c *Console) degraded(ctx context.Context, instruction string, cause error) *CommandResponse {
	_ = c.auditLog.Record(ctx, audit.EventCommand, "instruction_failed", "", map[string]any{
		"instruction": instruction,
		"error":       cause.Error(),
	})

	result := cause.Error()
	if errors.Is(cause, context.DeadlineExceeded) {
		result = "request deadline exceeded: " + result
	}

	return &CommandResponse{
		Plan: &contracts.ExecutionPlan{Goal: instruction},
		Risk: contracts.RiskAssessment{Score: 1.0, Level: contracts.RiskHigh},
		Verifications: []contracts.Verification{{
			Type:   "pipeline",
			Result: result,
			Pass:   false,
			Hard:   true,
		}},
		NextSteps: []string{"Command could not be planned; correct the instruction and resubmit."},
	}
}

func nextSteps(level contracts.RiskLevel, calls []contracts.ToolCall) []string {
	if len(calls) == 0 {
		return []string{"No actions have tool bindings; nothing to execute."}
	}
	switch level {
	case contracts.RiskLow:
		return []string{
			"Review the proposed tool calls.",
			"Submit them for execution; no approval is required at LOW risk.",
		}
	default:
		return []string{
			"Review the proposed tool calls and their expected diffs.",
			"Obtain operator approval for each listed checkpoint.",
			"Submit the tool calls with the approval token to execute.",
		}
	}
}

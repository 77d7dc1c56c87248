// Package planner converts a natural-language instruction plus a context
// snapshot into a structured, ordered execution plan. Synthesis is
// time-bounded: a slow reasoning backend fails the request instead of
// stalling the pipeline.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stratus-ops/conductor/pkg/canonicalize"
	"github.com/stratus-ops/conductor/pkg/contracts"
	"github.com/stratus-ops/conductor/pkg/llm"
)

// Snapshot is the opaque point-in-time state blob supplied by the context
// provider. The planner forwards it to the reasoning backend verbatim.
type Snapshot map[string]any

// DefaultDeadline bounds one synthesis call.
const DefaultDeadline = 10 * time.Second

// Synthesizer produces execution plans. With a nil client it runs the
// deterministic keyword planner only, which keeps the pipeline usable in
// tests and air-gapped deployments.
type Synthesizer struct {
	client   llm.Client
	deadline time.Duration
	clock    func() time.Time
}

// NewSynthesizer creates a synthesizer backed by the given reasoning client.
func NewSynthesizer(client llm.Client) *Synthesizer {
	return &Synthesizer{
		client:   client,
		deadline: DefaultDeadline,
		clock:    time.Now,
	}
}

// WithDeadline overrides the synthesis deadline.
func (s *Synthesizer) WithDeadline(d time.Duration) *Synthesizer {
	s.deadline = d
	return s
}

// WithClock overrides the clock for deterministic testing.
func (s *Synthesizer) WithClock(clock func() time.Time) *Synthesizer {
	s.clock = clock
	return s
}

// Synthesize converts an instruction into an execution plan. The returned
// plan always has a non-empty action list; failure to produce one is an
// error, never an empty plan.
func (s *Synthesizer) Synthesize(ctx context.Context, instruction string, snapshot Snapshot, extra map[string]any) (*contracts.ExecutionPlan, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, ErrInvalidInstruction
	}

	ctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	actions, err := s.deriveActions(ctx, instruction, snapshot, extra)
	if err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		// The backend answered but produced nothing actionable.
		actions = heuristicActions(instruction)
	}

	plan := &contracts.ExecutionPlan{
		PlanID:    uuid.New().String(),
		Goal:      instruction,
		Actions:   actions,
		CreatedAt: s.clock(),
	}

	hash, err := PlanHash(plan)
	if err != nil {
		return nil, fmt.Errorf("planner: plan hash: %w", err)
	}
	plan.Hash = hash

	return plan, nil
}

// PlanHash computes the deterministic content hash of a plan, excluding the
// hash field itself and the creation timestamp. Approval tokens bind to this
// hash, so it must not depend on wall-clock time.
func PlanHash(plan *contracts.ExecutionPlan) (string, error) {
	hashable := struct {
		Goal    string             `json:"goal"`
		Actions []contracts.Action `json:"actions"`
	}{
		Goal:    plan.Goal,
		Actions: plan.Actions,
	}
	return canonicalize.CanonicalHash(hashable)
}

func (s *Synthesizer) deriveActions(ctx context.Context, instruction string, snapshot Snapshot, extra map[string]any) ([]contracts.Action, error) {
	if s.client == nil {
		return heuristicActions(instruction), nil
	}

	messages := buildMessages(instruction, snapshot, extra)
	resp, err := s.client.Chat(ctx, messages, actionToolDefinitions(), &llm.SamplingOptions{Temperature: 0})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrPlanningTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrPlanningUnavailable, err)
	}

	var actions []contracts.Action
	for _, tc := range resp.ToolCalls {
		t := contracts.ActionType(tc.Name)
		if !knownActionTypes[t] {
			// Hallucinated action names are dropped, not fatal.
			continue
		}
		actions = append(actions, contracts.Action{Type: t, Args: tc.Arguments})
	}
	return actions, nil
}

func buildMessages(instruction string, snapshot Snapshot, extra map[string]any) []llm.Message {
	system := "You plan operations for an e-commerce control console. " +
		"Respond only with tool calls, one per action, in execution order. " +
		"Actions are simulated unless dry_run is explicitly false."

	userPayload := map[string]any{"instruction": instruction}
	if len(snapshot) > 0 {
		userPayload["context"] = snapshot
	}
	if len(extra) > 0 {
		userPayload["extra"] = extra
	}
	body, _ := json.Marshal(userPayload)

	return []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: string(body)},
	}
}

var knownActionTypes = map[contracts.ActionType]bool{
	contracts.ActionExecuteDeployment: true,
	contracts.ActionRollbackRelease:   true,
	contracts.ActionQueryDatastore:    true,
	contracts.ActionUpdateInventory:   true,
	contracts.ActionAdjustPricing:     true,
	contracts.ActionRunAnalytics:      true,
	contracts.ActionCheckHealth:       true,
	contracts.ActionNotifyOperators:   true,
}

func actionToolDefinitions() []llm.ToolDefinition {
	defs := []struct {
		t    contracts.ActionType
		desc string
	}{
		{contracts.ActionExecuteDeployment, "Deploy a service version to an environment"},
		{contracts.ActionRollbackRelease, "Roll a service back to its previous release"},
		{contracts.ActionQueryDatastore, "Run a read-only query against the operational datastore"},
		{contracts.ActionUpdateInventory, "Adjust stock levels for one or more SKUs"},
		{contracts.ActionAdjustPricing, "Change prices or discounts for one or more SKUs"},
		{contracts.ActionRunAnalytics, "Run an analytics job and collect its report"},
		{contracts.ActionCheckHealth, "Probe service health endpoints"},
		{contracts.ActionNotifyOperators, "Send a notification to the operator channel"},
	}

	out := make([]llm.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, llm.ToolDefinition{
			Name:        string(d.t),
			Description: d.desc,
			Parameters: map[string]any{
				"type":                 "object",
				"additionalProperties": true,
			},
		})
	}
	return out
}

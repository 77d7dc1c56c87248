package planner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stratus-ops/conductor/pkg/contracts"
	"github.com/stratus-ops/conductor/pkg/llm"
)

type mockClient struct {
	resp  *llm.Response
	err   error
	block bool
}

func (m *mockClient) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolDefinition, options *llm.SamplingOptions) (*llm.Response, error) {
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func TestSynthesizeRejectsEmptyInstruction(t *testing.T) {
	s := NewSynthesizer(nil)
	_, err := s.Synthesize(context.Background(), "   ", nil, nil)
	if !errors.Is(err, ErrInvalidInstruction) {
		t.Fatalf("expected ErrInvalidInstruction, got %v", err)
	}
}

func TestSynthesizeHeuristicHealthInstruction(t *testing.T) {
	s := NewSynthesizer(nil)
	plan, err := s.Synthesize(context.Background(), "Check health status of all services", nil, nil)
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if plan.IsEmpty() {
		t.Fatal("expected non-empty plan")
	}
	if !strings.Contains(strings.ToLower(plan.Goal), "health") {
		t.Fatalf("goal should restate instruction intent, got %q", plan.Goal)
	}
	if plan.Hash == "" || plan.PlanID == "" {
		t.Fatal("plan must carry id and content hash")
	}
	for _, a := range plan.Actions {
		if !a.IsDryRun() {
			t.Fatalf("heuristic action %s must keep the dry-run default", a.Type)
		}
	}
}

func TestSynthesizeMapsBackendToolCalls(t *testing.T) {
	client := &mockClient{resp: &llm.Response{
		ToolCalls: []llm.ToolCall{
			{Name: "execute_deployment", Arguments: map[string]any{"service": "checkout", "environment": "production"}},
			{Name: "imaginary_action", Arguments: map[string]any{}},
			{Name: "check_health", Arguments: map[string]any{"scope": "checkout"}},
		},
	}}

	s := NewSynthesizer(client)
	plan, err := s.Synthesize(context.Background(), "Deploy the latest version to production", nil, nil)
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if len(plan.Actions) != 2 {
		t.Fatalf("expected 2 actions (hallucinated type dropped), got %d", len(plan.Actions))
	}
	if plan.Actions[0].Type != contracts.ActionExecuteDeployment {
		t.Fatalf("action order must follow backend order, got %s first", plan.Actions[0].Type)
	}
}

func TestSynthesizeTimeout(t *testing.T) {
	s := NewSynthesizer(&mockClient{block: true}).WithDeadline(20 * time.Millisecond)
	_, err := s.Synthesize(context.Background(), "Deploy the latest version", nil, nil)
	if !errors.Is(err, ErrPlanningTimeout) {
		t.Fatalf("expected ErrPlanningTimeout, got %v", err)
	}
}

func TestSynthesizeBackendUnavailable(t *testing.T) {
	s := NewSynthesizer(&mockClient{err: errors.New("connection refused")})
	_, err := s.Synthesize(context.Background(), "Deploy the latest version", nil, nil)
	if !errors.Is(err, ErrPlanningUnavailable) {
		t.Fatalf("expected ErrPlanningUnavailable, got %v", err)
	}
}

func TestSynthesizeEmptyBackendResponseFallsBack(t *testing.T) {
	s := NewSynthesizer(&mockClient{resp: &llm.Response{Content: "cannot help"}})
	plan, err := s.Synthesize(context.Background(), "Check health of storefront", nil, nil)
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if plan.IsEmpty() {
		t.Fatal("fallback must still produce a non-empty plan")
	}
}

func TestPlanHashIgnoresVolatileFields(t *testing.T) {
	actions := []contracts.Action{{Type: contracts.ActionCheckHealth}}
	p1 := &contracts.ExecutionPlan{PlanID: "a", Goal: "g", Actions: actions, CreatedAt: time.Now()}
	p2 := &contracts.ExecutionPlan{PlanID: "b", Goal: "g", Actions: actions, CreatedAt: time.Now().Add(time.Hour)}

	h1, err := PlanHash(p1)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	h2, err := PlanHash(p2)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("plan hash must depend only on goal and actions")
	}
}

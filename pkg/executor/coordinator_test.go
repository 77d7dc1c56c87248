package executor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stratus-ops/conductor/pkg/approval"
	"github.com/stratus-ops/conductor/pkg/contracts"
	"github.com/stratus-ops/conductor/pkg/store"
	"github.com/stratus-ops/conductor/pkg/tools"
)

type fakeValidator struct {
	err error
}

func (f *fakeValidator) ValidateApproval(token, planHash string, checkpoints []string) error {
	return f.err
}

func echoRegistry() *tools.Registry {
	r := tools.NewRegistry()
	r.Register("echo", tools.ToolFunc(func(ctx context.Context, args map[string]any, opts tools.RunOptions) (any, error) {
		return args, nil
	}))
	r.Register("boom", tools.ToolFunc(func(ctx context.Context, args map[string]any, opts tools.RunOptions) (any, error) {
		return nil, errors.New("upstream unavailable")
	}))
	r.Register("panics", tools.ToolFunc(func(ctx context.Context, args map[string]any, opts tools.RunOptions) (any, error) {
		panic("corrupted state")
	}))
	return r
}

func TestExecuteAllSucceed(t *testing.T) {
	c := NewCoordinator(echoRegistry())

	calls := []contracts.ToolCall{
		{Tool: "echo", Args: map[string]any{"n": 1}, DryRun: true},
		{Tool: "echo", Args: map[string]any{"n": 2}, DryRun: true},
		{Tool: "echo", Args: map[string]any{"n": 3}, DryRun: true},
	}
	record, err := c.Execute(context.Background(), calls, ExecuteOptions{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !record.OK {
		t.Error("expected ok=true")
	}
	if len(record.Results) != len(calls) {
		t.Fatalf("expected %d results, got %d", len(calls), len(record.Results))
	}
	if !strings.HasPrefix(record.ExecutionID, "exec-") {
		t.Errorf("unexpected execution id %q", record.ExecutionID)
	}
	for i, res := range record.Results {
		if res.Index != i {
			t.Errorf("result %d carries index %d", i, res.Index)
		}
		if res.Status != contracts.ToolResultSuccess {
			t.Errorf("result %d status %s", i, res.Status)
		}
	}
}

func TestExecutePartialFailure(t *testing.T) {
	c := NewCoordinator(echoRegistry())

	calls := []contracts.ToolCall{
		{Tool: "echo", Args: map[string]any{"n": 1}},
		{Tool: "boom"},
		{Tool: "echo", Args: map[string]any{"n": 3}},
	}
	record, err := c.Execute(context.Background(), calls, ExecuteOptions{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if record.OK {
		t.Error("expected ok=false with a failed call")
	}
	if got := record.ErrorCount(); got != 1 {
		t.Errorf("expected 1 error, got %d", got)
	}
	if len(record.Results) != 3 {
		t.Fatalf("failure must not suppress sibling results, got %d", len(record.Results))
	}
	if record.Results[1].Status != contracts.ToolResultError || record.Results[1].Error != "upstream unavailable" {
		t.Errorf("failing call result: %+v", record.Results[1])
	}
	if record.Results[0].Status != contracts.ToolResultSuccess || record.Results[2].Status != contracts.ToolResultSuccess {
		t.Error("sibling calls should still succeed")
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	c := NewCoordinator(echoRegistry())

	record, err := c.Execute(context.Background(), []contracts.ToolCall{{Tool: "nope"}}, ExecuteOptions{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if record.OK {
		t.Error("expected ok=false for unknown tool")
	}
	res := record.Results[0]
	if res.Status != contracts.ToolResultError {
		t.Errorf("expected error status, got %s", res.Status)
	}
	if !strings.Contains(res.Error, "Unknown tool") {
		t.Errorf("expected unknown tool error, got %q", res.Error)
	}
}

func TestExecutePanicIsolation(t *testing.T) {
	c := NewCoordinator(echoRegistry())

	calls := []contracts.ToolCall{
		{Tool: "panics"},
		{Tool: "echo", Args: map[string]any{"n": 2}},
	}
	record, err := c.Execute(context.Background(), calls, ExecuteOptions{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if record.Results[0].Status != contracts.ToolResultError {
		t.Error("panicking tool should produce an error result")
	}
	if !strings.Contains(record.Results[0].Error, "tool panicked") {
		t.Errorf("unexpected panic error %q", record.Results[0].Error)
	}
	if record.Results[1].Status != contracts.ToolResultSuccess {
		t.Error("panic must not take down sibling calls")
	}
}

func TestExecuteOrderingUnderConcurrency(t *testing.T) {
	r := tools.NewRegistry()
	r.Register("tag", tools.ToolFunc(func(ctx context.Context, args map[string]any, opts tools.RunOptions) (any, error) {
		// Later calls finish first so positional indexing is actually exercised.
		n := args["n"].(int)
		time.Sleep(time.Duration(10-n) * time.Millisecond)
		return n, nil
	}))
	c := NewCoordinator(r).WithConcurrency(8)

	var calls []contracts.ToolCall
	for i := 0; i < 8; i++ {
		calls = append(calls, contracts.ToolCall{Tool: "tag", Args: map[string]any{"n": i}})
	}
	record, err := c.Execute(context.Background(), calls, ExecuteOptions{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	for i, res := range record.Results {
		if res.Index != i {
			t.Fatalf("result at slot %d has index %d", i, res.Index)
		}
		if got := res.Result.(int); got != i {
			t.Errorf("slot %d carries result %d", i, got)
		}
	}
}

func TestExecuteApprovalRejected(t *testing.T) {
	v := &fakeValidator{err: approval.ErrInvalidApprovalToken}
	recs := store.NewMemoryExecutionStore()
	c := NewCoordinator(echoRegistry()).WithValidator(v).WithStore(recs)

	record, err := c.Execute(context.Background(), []contracts.ToolCall{{Tool: "echo"}}, ExecuteOptions{
		PlanHash:         "sha256:abc",
		ApprovalToken:    "bogus",
		ApprovalRequired: true,
	})
	if !errors.Is(err, ErrExecutionBlocked) {
		t.Fatalf("expected ErrExecutionBlocked, got %v", err)
	}
	if record == nil {
		t.Fatal("blocked execution should still yield a record")
	}
	if record.OK {
		t.Error("blocked record must not be ok")
	}
	if len(record.Results) != 1 || record.Results[0].Status != contracts.ToolResultError {
		t.Errorf("expected one synthetic error result, got %+v", record.Results)
	}

	persisted, getErr := recs.Get(context.Background(), record.ExecutionID)
	if getErr != nil || persisted == nil {
		t.Error("blocked record should be persisted for audit")
	}
}

func TestExecuteApprovalAccepted(t *testing.T) {
	c := NewCoordinator(echoRegistry()).WithValidator(&fakeValidator{})

	record, err := c.Execute(context.Background(), []contracts.ToolCall{{Tool: "echo"}}, ExecuteOptions{
		PlanHash:         "sha256:abc",
		ApprovalToken:    "good",
		ApprovalRequired: true,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !record.OK {
		t.Error("expected ok=true")
	}
}

func TestExecuteSuppliedTokenValidatedEvenWhenUngated(t *testing.T) {
	var dispatched atomic.Int64
	r := tools.NewRegistry()
	r.Register("echo", tools.ToolFunc(func(ctx context.Context, args map[string]any, opts tools.RunOptions) (any, error) {
		dispatched.Add(1)
		return args, nil
	}))

	v := &fakeValidator{err: approval.ErrInvalidApprovalToken}
	c := NewCoordinator(r).WithValidator(v)

	// Approval is not required for this batch, but the caller presented a
	// token anyway. An invalid token is terminal, not ignored.
	record, err := c.Execute(context.Background(), []contracts.ToolCall{{Tool: "echo"}}, ExecuteOptions{
		PlanHash:      "sha256:abc",
		ApprovalToken: "stale",
	})
	if !errors.Is(err, ErrExecutionBlocked) {
		t.Fatalf("expected ErrExecutionBlocked, got %v", err)
	}
	if !errors.Is(err, approval.ErrInvalidApprovalToken) {
		t.Fatalf("expected ErrInvalidApprovalToken in chain, got %v", err)
	}
	if record == nil || record.OK {
		t.Fatalf("blocked execution must yield a not-ok record, got %+v", record)
	}
	if got := dispatched.Load(); got != 0 {
		t.Errorf("no tool may run after a rejected token, dispatched %d", got)
	}
}

func TestExecuteApprovalRequiredWithoutValidator(t *testing.T) {
	c := NewCoordinator(echoRegistry())

	_, err := c.Execute(context.Background(), []contracts.ToolCall{{Tool: "echo"}}, ExecuteOptions{
		ApprovalRequired: true,
	})
	if !errors.Is(err, ErrExecutionBlocked) {
		t.Fatalf("expected ErrExecutionBlocked, got %v", err)
	}
}

func TestExecutePersistsRecord(t *testing.T) {
	recs := store.NewMemoryExecutionStore()
	c := NewCoordinator(echoRegistry()).WithStore(recs)

	record, err := c.Execute(context.Background(), []contracts.ToolCall{{Tool: "echo"}}, ExecuteOptions{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	persisted, err := recs.Get(context.Background(), record.ExecutionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if persisted == nil {
		t.Fatal("record not persisted")
	}
	if !persisted.OK {
		t.Errorf("persisted record mismatch: %+v", persisted)
	}
}

// Package executor dispatches approved tool-call batches against the tool
// registry. Each batch runs under a single execution identifier; one call's
// failure is recorded in place and never suppresses its siblings.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/stratus-ops/conductor/pkg/approval"
	"github.com/stratus-ops/conductor/pkg/audit"
	"github.com/stratus-ops/conductor/pkg/contracts"
	"github.com/stratus-ops/conductor/pkg/store"
	"github.com/stratus-ops/conductor/pkg/tools"
)

// ErrExecutionBlocked means the batch was rejected before any tool ran.
var ErrExecutionBlocked = errors.New("executor: execution blocked")

// DefaultMaxConcurrency bounds the fan-out when the caller does not.
const DefaultMaxConcurrency = 4

// ExecuteOptions carries per-batch execution settings.
type ExecuteOptions struct {
	// PlanHash is the content hash of the plan the calls were derived from.
	PlanHash string
	// ApprovalToken is the operator-presented approval, if any.
	ApprovalToken string
	// ApprovalRequired forces token validation before dispatch. When set and
	// the token does not check out, no tool runs.
	ApprovalRequired bool
	// Checkpoints lists the approval checkpoint IDs the token must cover.
	Checkpoints []string
	// MaxConcurrency overrides the coordinator's fan-out bound for this batch.
	MaxConcurrency int
}

// Coordinator runs tool-call batches if and only if their approval gate is
// satisfied. Results are indexed by input position so partial failure stays
// attributable.
type Coordinator struct {
	registry  *tools.Registry
	validator approval.TokenValidator
	records   store.ExecutionStore
	auditLog  audit.Logger
	limiter   *rate.Limiter
	maxConc   int
	now       func() time.Time

	tracer    trace.Tracer
	toolCalls metric.Int64Counter
}

// NewCoordinator creates a coordinator dispatching against the given registry.
func NewCoordinator(registry *tools.Registry) *Coordinator {
	meter := otel.Meter("conductor/executor")
	toolCalls, _ := meter.Int64Counter("conductor.executor.tool_calls",
		metric.WithDescription("Tool calls dispatched, by tool and status"))
	return &Coordinator{
		registry:  registry,
		auditLog:  audit.Nop(),
		maxConc:   DefaultMaxConcurrency,
		now:       time.Now,
		tracer:    otel.Tracer("conductor/executor"),
		toolCalls: toolCalls,
	}
}

// WithValidator installs the approval token validator. Required when callers
// set ApprovalRequired; without one, gated batches are rejected outright.
func (c *Coordinator) WithValidator(v approval.TokenValidator) *Coordinator {
	c.validator = v
	return c
}

// WithStore persists every aggregated record after the batch completes.
func (c *Coordinator) WithStore(s store.ExecutionStore) *Coordinator {
	c.records = s
	return c
}

// WithAuditLogger overrides the audit sink.
func (c *Coordinator) WithAuditLogger(l audit.Logger) *Coordinator {
	c.auditLog = l
	return c
}

// WithRateLimit paces tool dispatch at the given rate.
func (c *Coordinator) WithRateLimit(callsPerSecond float64, burst int) *Coordinator {
	c.limiter = rate.NewLimiter(rate.Limit(callsPerSecond), burst)
	return c
}

// WithConcurrency sets the default fan-out bound.
func (c *Coordinator) WithConcurrency(n int) *Coordinator {
	if n > 0 {
		c.maxConc = n
	}
	return c
}

// WithClock overrides the clock for deterministic testing.
func (c *Coordinator) WithClock(clock func() time.Time) *Coordinator {
	c.now = clock
	return c
}

// Execute runs the batch and returns the aggregated record. The error is
// non-nil only when the batch was blocked before dispatch; per-call failures
// land in the record's results instead. Even a blocked batch yields a record
// so the attempt stays auditable.
func (c *Coordinator) Execute(ctx context.Context, calls []contracts.ToolCall, opts ExecuteOptions) (*contracts.ExecutionRecord, error) {
	started := c.now().UTC()
	executionID := fmt.Sprintf("exec-%s-%s", started.Format("20060102T150405Z"), uuid.NewString()[:8])

	ctx, span := c.tracer.Start(ctx, "executor.Execute", trace.WithAttributes(
		attribute.String("execution.id", executionID),
		attribute.Int("execution.calls", len(calls)),
	))
	defer span.End()

	// A supplied token is validated even when the batch is ungated: an
	// invalid token is a terminal failure, never silently ignored.
	if opts.ApprovalRequired || opts.ApprovalToken != "" {
		if err := c.validateApproval(opts); err != nil {
			record := c.blockedRecord(executionID, started, err)
			c.persist(ctx, record)
			_ = c.auditLog.Record(ctx, audit.EventExecution, "execution_blocked", executionID, map[string]any{
				"plan_hash": opts.PlanHash,
				"reason":    err.Error(),
			})
			return record, err
		}
	}

	maxConc := c.maxConc
	if opts.MaxConcurrency > 0 {
		maxConc = opts.MaxConcurrency
	}

	results := make([]contracts.ToolResult, len(calls))
	sem := make(chan struct{}, maxConc)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, call contracts.ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx] = c.runOne(ctx, idx, call, executionID)
		}(i, call)
	}
	wg.Wait()

	record := &contracts.ExecutionRecord{
		ExecutionID: executionID,
		Results:     results,
		StartedAt:   started,
		FinishedAt:  c.now().UTC(),
	}
	record.OK = record.ErrorCount() == 0

	c.persist(ctx, record)
	_ = c.auditLog.Record(ctx, audit.EventExecution, "execute_batch", executionID, map[string]any{
		"plan_hash": opts.PlanHash,
		"calls":     len(calls),
		"errors":    record.ErrorCount(),
		"ok":        record.OK,
	})
	span.SetAttributes(attribute.Bool("execution.ok", record.OK))

	return record, nil
}

func (c *Coordinator) validateApproval(opts ExecuteOptions) error {
	if c.validator == nil {
		return fmt.Errorf("%w: no approval validator configured", ErrExecutionBlocked)
	}
	if err := c.validator.ValidateApproval(opts.ApprovalToken, opts.PlanHash, opts.Checkpoints); err != nil {
		return fmt.Errorf("%w: %w", ErrExecutionBlocked, err)
	}
	return nil
}

// runOne dispatches a single call with panic isolation. A panicking tool
// becomes an error result for its own slot, nothing more.
func (c *Coordinator) runOne(ctx context.Context, idx int, call contracts.ToolCall, executionID string) (result contracts.ToolResult) {
	result = contracts.ToolResult{
		Index:     idx,
		Tool:      call.Tool,
		Status:    contracts.ToolResultSuccess,
		Timestamp: c.now().UTC(),
	}
	defer func() {
		if r := recover(); r != nil {
			result.Status = contracts.ToolResultError
			result.Result = nil
			result.Error = fmt.Sprintf("tool panicked: %v", r)
		}
		c.countCall(ctx, call.Tool, result.Status)
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			result.Status = contracts.ToolResultError
			result.Error = fmt.Sprintf("rate limit wait: %v", err)
			return result
		}
	}

	tool, ok := c.registry.Lookup(call.Tool)
	if !ok {
		result.Status = contracts.ToolResultError
		result.Error = fmt.Sprintf("Unknown tool: %s", call.Tool)
		return result
	}

	out, err := tool.Run(ctx, call.Args, tools.RunOptions{
		DryRun:       call.DryRun,
		ExpectedDiff: call.ExpectDiff,
		ExecutionID:  executionID,
	})
	result.Timestamp = c.now().UTC()
	if err != nil {
		result.Status = contracts.ToolResultError
		result.Error = err.Error()
		return result
	}
	result.Result = out
	return result
}

func (c *Coordinator) blockedRecord(executionID string, started time.Time, cause error) *contracts.ExecutionRecord {
	return &contracts.ExecutionRecord{
		ExecutionID: executionID,
		OK:          false,
		Results: []contracts.ToolResult{{
			Index:     0,
			Status:    contracts.ToolResultError,
			Error:     cause.Error(),
			Timestamp: started,
		}},
		StartedAt:  started,
		FinishedAt: c.now().UTC(),
	}
}

// persist is best-effort: losing the record is an audit problem, not an
// execution failure.
func (c *Coordinator) persist(ctx context.Context, record *contracts.ExecutionRecord) {
	if c.records == nil {
		return
	}
	if err := c.records.Save(ctx, record); err != nil {
		_ = c.auditLog.Record(ctx, audit.EventSystem, "record_persist_failed", record.ExecutionID, map[string]any{
			"error": err.Error(),
		})
	}
}

func (c *Coordinator) countCall(ctx context.Context, tool string, status contracts.ToolResultStatus) {
	if c.toolCalls == nil {
		return
	}
	c.toolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", string(status)),
	))
}

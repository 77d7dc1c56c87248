package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RegisterBuiltins installs the standard console tool set. Every builtin
// honours the dry-run flag: simulated invocations describe what would happen
// and touch nothing.
func RegisterBuiltins(r *Registry, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	r.Register("deployctl", &deployTool{logger: logger})
	r.Register("datastore", &datastoreTool{logger: logger})
	r.Register("inventory", simulatedMutation(logger, "inventory", "stock levels updated"))
	r.Register("pricing", simulatedMutation(logger, "pricing", "prices updated"))
	r.Register("analytics", &analyticsTool{logger: logger})
	r.Register("healthmon", &healthTool{logger: logger})
}

type deployTool struct {
	logger *slog.Logger
}

func (t *deployTool) Run(ctx context.Context, args map[string]any, opts RunOptions) (any, error) {
	service, _ := args["service"].(string)
	if service == "" {
		return nil, fmt.Errorf("deployctl: missing service argument")
	}
	t.logger.InfoContext(ctx, "deployment requested",
		"service", service, "dry_run", opts.DryRun, "execution_id", opts.ExecutionID)

	result := map[string]any{
		"service":   service,
		"dry_run":   opts.DryRun,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if opts.DryRun {
		result["status"] = "simulated"
		result["would_apply"] = opts.ExpectedDiff
	} else {
		result["status"] = "applied"
	}
	return result, nil
}

type datastoreTool struct {
	logger *slog.Logger
}

func (t *datastoreTool) Run(ctx context.Context, args map[string]any, opts RunOptions) (any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("datastore: missing query argument")
	}
	t.logger.DebugContext(ctx, "datastore query", "query", query, "execution_id", opts.ExecutionID)
	return map[string]any{"query": query, "rows": []any{}, "status": "ok"}, nil
}

type analyticsTool struct {
	logger *slog.Logger
}

func (t *analyticsTool) Run(ctx context.Context, args map[string]any, opts RunOptions) (any, error) {
	job, _ := args["job"].(string)
	if job == "" {
		job = "default_report"
	}
	t.logger.DebugContext(ctx, "analytics job", "job", job, "execution_id", opts.ExecutionID)
	return map[string]any{"job": job, "status": "scheduled"}, nil
}

type healthTool struct {
	logger *slog.Logger
}

func (t *healthTool) Run(ctx context.Context, args map[string]any, opts RunOptions) (any, error) {
	scope, _ := args["scope"].(string)
	if scope == "" {
		scope = "all"
	}
	return map[string]any{"scope": scope, "healthy": true, "checked_at": time.Now().UTC().Format(time.RFC3339)}, nil
}

// simulatedMutation builds a mutation tool that only ever commits when the
// dry-run flag is explicitly off.
func simulatedMutation(logger *slog.Logger, name, appliedMsg string) Tool {
	return ToolFunc(func(ctx context.Context, args map[string]any, opts RunOptions) (any, error) {
		logger.InfoContext(ctx, "mutation requested",
			"tool", name, "dry_run", opts.DryRun, "execution_id", opts.ExecutionID)
		if opts.DryRun {
			return map[string]any{"status": "simulated", "would_apply": opts.ExpectedDiff}, nil
		}
		return map[string]any{"status": "applied", "detail": appliedMsg}, nil
	})
}

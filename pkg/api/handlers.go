package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/stratus-ops/conductor/pkg/approval"
	"github.com/stratus-ops/conductor/pkg/audit"
	"github.com/stratus-ops/conductor/pkg/console"
	"github.com/stratus-ops/conductor/pkg/executor"
	"github.com/stratus-ops/conductor/pkg/store"
)

const maxBodyBytes = 1 << 20 // 1MB

// Service exposes the console over HTTP.
type Service struct {
	console *console.Console
	records store.ExecutionStore
	logger  *slog.Logger
}

// NewService creates the HTTP service. records may be nil when execution
// history is not persisted.
func NewService(c *console.Console, records store.ExecutionStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{console: c, records: records, logger: logger.With("component", "api")}
}

// Routes registers all handlers on a fresh mux.
func (s *Service) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/command", s.HandleCommand)
	mux.HandleFunc("/v1/execute", s.HandleExecute)
	mux.HandleFunc("/v1/executions", s.HandleListExecutions)
	mux.HandleFunc("/v1/executions/", s.HandleGetExecution)
	mux.HandleFunc("/healthz", s.HandleHealth)
	return mux
}

// CommandRequest is the /v1/command request body.
type CommandRequest struct {
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// HandleCommand plans and assesses one natural-language instruction.
func (s *Service) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.Message == "" {
		WriteBadRequest(w, "Missing required field: message")
		return
	}

	ctx := r.Context()
	if actor := r.Header.Get("X-Operator-ID"); actor != "" {
		ctx = audit.WithActor(ctx, actor)
	}

	resp := s.console.HandleInstruction(ctx, req.Message, req.Context)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// HandleExecute commits a batch of tool calls.
func (s *Service) HandleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req console.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if len(req.ToolCalls) == 0 {
		WriteBadRequest(w, "Missing required field: tool_calls")
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	ctx := r.Context()
	if actor := r.Header.Get("X-Operator-ID"); actor != "" {
		ctx = audit.WithActor(ctx, actor)
	}

	record, err := s.console.ExecuteToolCalls(ctx, req)
	switch {
	case errors.Is(err, approval.ErrInvalidApprovalToken):
		WriteForbidden(w, "Approval token is missing, expired or bound to a different plan")
		return
	case errors.Is(err, executor.ErrExecutionBlocked):
		WriteForbidden(w, "Execution blocked before dispatch")
		return
	case err != nil:
		s.logger.Error("execute failed", "error", err)
		WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(record)
}

// HandleListExecutions returns recent execution records, most recent first.
func (s *Service) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	if s.records == nil {
		WriteNotFound(w, "Execution history is not persisted")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	records, err := s.records.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("list executions failed", "error", err)
		WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"executions": records})
}

// HandleGetExecution returns one execution record by ID.
func (s *Service) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	if s.records == nil {
		WriteNotFound(w, "Execution history is not persisted")
		return
	}

	id := r.URL.Path[len("/v1/executions/"):]
	if id == "" {
		WriteBadRequest(w, "Missing execution id")
		return
	}

	record, err := s.records.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("get execution failed", "error", err, "execution_id", id)
		WriteInternal(w, err)
		return
	}
	if record == nil {
		WriteNotFound(w, "Unknown execution id")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(record)
}

// HandleHealth is the liveness probe.
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

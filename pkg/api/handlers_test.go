package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratus-ops/conductor/pkg/approval"
	"github.com/stratus-ops/conductor/pkg/console"
	"github.com/stratus-ops/conductor/pkg/contracts"
	"github.com/stratus-ops/conductor/pkg/executor"
	"github.com/stratus-ops/conductor/pkg/planner"
	"github.com/stratus-ops/conductor/pkg/policy"
	"github.com/stratus-ops/conductor/pkg/store"
	"github.com/stratus-ops/conductor/pkg/tools"
)

func newTestService(t *testing.T) (*Service, store.ExecutionStore) {
	t.Helper()

	registry := tools.NewRegistry()
	for _, name := range []string{"deployctl", "datastore", "inventory", "pricing", "analytics", "healthmon"} {
		registry.Register(name, tools.ToolFunc(func(ctx context.Context, args map[string]any, opts tools.RunOptions) (any, error) {
			return map[string]any{"status": "done"}, nil
		}))
	}

	verifier, err := policy.NewVerifier(policy.DefaultRules())
	require.NoError(t, err)

	tm := approval.NewTokenManager([]byte("api-test-key"))
	records := store.NewMemoryExecutionStore()
	coord := executor.NewCoordinator(registry).WithValidator(tm).WithStore(records)
	c := console.New(planner.NewSynthesizer(nil), verifier, approval.NewGate(tm), coord)

	return NewService(c, records, nil), records
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleCommand(t *testing.T) {
	s, _ := newTestService(t)

	rec := postJSON(t, s.HandleCommand, "/v1/command", CommandRequest{
		Message: "Check health status of all services",
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp console.CommandResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, contracts.RiskLow, resp.Risk.Level)
	assert.NotEmpty(t, resp.ToolCalls)
}

func TestHandleCommandRejectsMissingMessage(t *testing.T) {
	s, _ := newTestService(t)

	rec := postJSON(t, s.HandleCommand, "/v1/command", CommandRequest{}, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestHandleCommandRejectsGet(t *testing.T) {
	s, _ := newTestService(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/command", nil)
	rec := httptest.NewRecorder()
	s.HandleCommand(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleExecuteLowRisk(t *testing.T) {
	s, records := newTestService(t)

	cmd := postJSON(t, s.HandleCommand, "/v1/command", CommandRequest{
		Message: "Check health status of all services",
	}, nil)
	var planned console.CommandResponse
	require.NoError(t, json.Unmarshal(cmd.Body.Bytes(), &planned))

	rec := postJSON(t, s.HandleExecute, "/v1/execute", console.ExecuteRequest{
		ToolCalls: planned.ToolCalls,
		PlanHash:  planned.Plan.Hash,
		RiskLevel: planned.Risk.Level,
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var record contracts.ExecutionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.True(t, record.OK)

	persisted, err := records.Get(context.Background(), record.ExecutionID)
	require.NoError(t, err)
	require.NotNil(t, persisted)
}

func TestHandleExecuteWithoutApprovalForbidden(t *testing.T) {
	s, _ := newTestService(t)

	cmd := postJSON(t, s.HandleCommand, "/v1/command", CommandRequest{
		Message: "Deploy the latest version to production",
	}, nil)
	var planned console.CommandResponse
	require.NoError(t, json.Unmarshal(cmd.Body.Bytes(), &planned))
	require.NotEmpty(t, planned.Approvals)

	rec := postJSON(t, s.HandleExecute, "/v1/execute", console.ExecuteRequest{
		ToolCalls: planned.ToolCalls,
		PlanHash:  planned.Plan.Hash,
		RiskLevel: planned.Risk.Level,
	}, nil)

	require.Equal(t, http.StatusForbidden, rec.Code)

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusForbidden, problem.Status)
}

func TestHandleGetExecution(t *testing.T) {
	s, records := newTestService(t)

	record := &contracts.ExecutionRecord{ExecutionID: "exec-known", OK: true}
	require.NoError(t, records.Save(context.Background(), record))

	req := httptest.NewRequest(http.MethodGet, "/v1/executions/exec-known", nil)
	rec := httptest.NewRecorder()
	s.HandleGetExecution(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/executions/exec-unknown", nil)
	rec = httptest.NewRecorder()
	s.HandleGetExecution(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListExecutions(t *testing.T) {
	s, records := newTestService(t)

	require.NoError(t, records.Save(context.Background(), &contracts.ExecutionRecord{ExecutionID: "exec-1"}))

	req := httptest.NewRequest(http.MethodGet, "/v1/executions?limit=5", nil)
	rec := httptest.NewRecorder()
	s.HandleListExecutions(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]contracts.ExecutionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body["executions"], 1)
}

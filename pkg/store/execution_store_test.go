package store

import (
	"context"
	"testing"
	"time"

	"github.com/stratus-ops/conductor/pkg/contracts"
)

func sampleRecord(id string, startedAt time.Time) *contracts.ExecutionRecord {
	return &contracts.ExecutionRecord{
		ExecutionID: id,
		OK:          true,
		Results: []contracts.ToolResult{
			{Index: 0, Tool: "healthmon", Status: contracts.ToolResultSuccess, Result: map[string]any{"status": "healthy"}, Timestamp: startedAt},
		},
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(2 * time.Second),
	}
}

func TestMemoryExecutionStoreRoundTrip(t *testing.T) {
	s := NewMemoryExecutionStore()
	ctx := context.Background()

	record := sampleRecord("exec-1", time.Now().UTC())
	if err := s.Save(ctx, record); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Get(ctx, "exec-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected record, got nil")
	}
	if got.ExecutionID != "exec-1" || !got.OK {
		t.Errorf("record mismatch: %+v", got)
	}
	if len(got.Results) != 1 || got.Results[0].Tool != "healthmon" {
		t.Errorf("results mismatch: %+v", got.Results)
	}
}

func TestMemoryExecutionStoreGetMissing(t *testing.T) {
	s := NewMemoryExecutionStore()

	got, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing record, got %+v", got)
	}
}

func TestMemoryExecutionStoreListOrdering(t *testing.T) {
	s := NewMemoryExecutionStore()
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"exec-a", "exec-b", "exec-c"} {
		if err := s.Save(ctx, sampleRecord(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Save %s failed: %v", id, err)
		}
	}

	records, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ExecutionID != "exec-c" || records[1].ExecutionID != "exec-b" {
		t.Errorf("expected most recent first, got %s, %s", records[0].ExecutionID, records[1].ExecutionID)
	}
}

func TestSQLiteExecutionStoreRoundTrip(t *testing.T) {
	s, err := OpenSQLiteExecutionStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	record := sampleRecord("exec-sqlite", time.Now().UTC().Truncate(time.Second))
	if err := s.Save(ctx, record); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Get(ctx, "exec-sqlite")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected record, got nil")
	}
	if got.ExecutionID != record.ExecutionID || got.OK != record.OK {
		t.Errorf("record mismatch: got %+v", got)
	}
	if len(got.Results) != 1 || got.Results[0].Tool != "healthmon" {
		t.Errorf("results mismatch: %+v", got.Results)
	}
}

func TestSQLiteExecutionStoreUpsert(t *testing.T) {
	s, err := OpenSQLiteExecutionStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	record := sampleRecord("exec-up", time.Now().UTC().Truncate(time.Second))
	if err := s.Save(ctx, record); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}

	record.OK = false
	record.Results = append(record.Results, contracts.ToolResult{
		Index: 1, Tool: "deployctl", Status: contracts.ToolResultError, Error: "timeout",
	})
	if err := s.Save(ctx, record); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	got, err := s.Get(ctx, "exec-up")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.OK {
		t.Error("expected ok=false after upsert")
	}
	if len(got.Results) != 2 {
		t.Errorf("expected 2 results after upsert, got %d", len(got.Results))
	}
}

func TestSQLiteExecutionStoreGetMissing(t *testing.T) {
	s, err := OpenSQLiteExecutionStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = s.Close() }()

	got, err := s.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing record, got %+v", got)
	}
}

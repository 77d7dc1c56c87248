package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratus-ops/conductor/pkg/audit"
)

func TestRecordWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := audit.NewLoggerWithWriter(&buf)

	err := logger.Record(context.Background(), audit.EventCommand, "handle_instruction", "plan/p-1", map[string]any{
		"risk_level": "LOW",
	})
	require.NoError(t, err)

	output := buf.String()
	assert.True(t, strings.HasPrefix(output, "AUDIT: "))

	var event audit.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(output, "AUDIT: "))), &event))

	assert.Equal(t, audit.EventCommand, event.Type)
	assert.Equal(t, "handle_instruction", event.Action)
	assert.Equal(t, "plan/p-1", event.Resource)
	assert.Equal(t, "system", event.Actor)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestRecordUsesContextActor(t *testing.T) {
	var buf bytes.Buffer
	logger := audit.NewLoggerWithWriter(&buf)

	ctx := audit.WithActor(context.Background(), "operator-7")
	require.NoError(t, logger.Record(ctx, audit.EventApproval, "issue_token", "plan/p-2", nil))

	var event audit.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(buf.String(), "AUDIT: "))), &event))
	assert.Equal(t, "operator-7", event.Actor)
}

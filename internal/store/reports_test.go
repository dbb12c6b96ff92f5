package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simloom/internal/ir"
	"github.com/roach88/simloom/internal/testutil"
)

func TestAppendReport_OrderAndIdempotency(t *testing.T) {
	clock := testutil.NewFakeClock(epoch, time.Second)
	s := createTestStore(t, WithNow(clock.Now))
	ctx := context.Background()
	require.NoError(t, s.SaveWorkspace(ctx, "alpha", Workspace{}))

	require.NoError(t, s.AppendReport(ctx, "alpha", "req-2", json.RawMessage(`{"n":2}`)))
	require.NoError(t, s.AppendReport(ctx, "alpha", "req-1", json.RawMessage(`{"n":1}`)))
	require.NoError(t, s.AppendReport(ctx, "alpha", "req-2", json.RawMessage(`{"n":99}`)))

	reports, err := s.Reports(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "req-2", reports[0].RequestID, "append order, not id order")
	assert.JSONEq(t, `{"n":2}`, string(reports[0].Report), "first write wins")
	assert.Equal(t, "req-1", reports[1].RequestID)
	assert.Less(t, reports[0].Seq, reports[1].Seq)
}

func TestAppendReport_Validation(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveWorkspace(ctx, "alpha", Workspace{}))

	assert.True(t, ir.IsCode(s.AppendReport(ctx, "alpha", "", json.RawMessage(`{}`)), ir.CodeSchema))
	assert.True(t, ir.IsCode(s.AppendReport(ctx, "alpha", "req-1", json.RawMessage(`{`)), ir.CodeSchema))
	assert.Error(t, s.AppendReport(ctx, "missing", "req-1", json.RawMessage(`{}`)), "workspace must exist")
}

func TestReports_DeletedWithWorkspace(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveWorkspace(ctx, "alpha", Workspace{}))
	require.NoError(t, s.AppendReport(ctx, "alpha", "req-1", json.RawMessage(`{}`)))

	require.NoError(t, s.DeleteWorkspace(ctx, "alpha"))

	reports, err := s.Reports(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, reports)
}

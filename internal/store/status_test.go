package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/trailhead/internal/progress"
)

func newTestStore(t *testing.T) *StatusStore {
	t.Helper()
	s, err := NewStatusStore(filepath.Join(t.TempDir(), "tours.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStatusStore_SetAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	status, err := s.GetStatus(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, status)

	require.NoError(t, s.SetStatus(ctx, "u1", "admin-dashboard", true))
	require.NoError(t, s.SetStatus(ctx, "u1", "inventory-intro", false))
	require.NoError(t, s.SetStatus(ctx, "u1", "admin-dashboard", false))

	status, err = s.GetStatus(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"admin-dashboard": false, "inventory-intro": false}, status)
}

func TestStatusStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tours.db")
	s, err := NewStatusStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SetStatus(context.Background(), "u1", "sales", true))
	require.NoError(t, s.Close())

	s, err = NewStatusStore(path)
	require.NoError(t, err)
	defer s.Close()
	status, err := s.GetStatus(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, status["sales"])
}

func TestStatusStore_BulkAndStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.BulkSetStatus(ctx, "u1", map[string]bool{"a": true, "b": true}))
	require.NoError(t, s.BulkSetStatus(ctx, "u2", map[string]bool{"a": true, "b": false}))
	require.NoError(t, s.SetStatus(ctx, "u3", "c", false))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalUsers)
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, stats.Completed)
	require.Len(t, stats.Details, 3)
	assert.Equal(t, "u1", stats.Details[0].UserID)
	assert.Equal(t, map[string]bool{"a": true, "b": false}, stats.Details[1].Tours)
}

func TestUserSink_WritesThroughProgressStore(t *testing.T) {
	s := newTestStore(t)
	mem := progress.NewStore().WithSink(s.ForUser("u1"))

	mem.UpdateStatus("admin-dashboard", true)
	mem.Close()

	status, err := s.GetStatus(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, status["admin-dashboard"])
}

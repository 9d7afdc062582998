package edgesync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyforge/edge/internal/archive"
	"github.com/tallyforge/edge/internal/order"
)

func newTestArchiveStore(t *testing.T) *archive.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := archive.Open(filepath.Join(dir, "archive.db"), filepath.Join(dir, "bad"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestReplicator_PushPending_MarksRowsReplicated(t *testing.T) {
	store := newTestArchiveStore(t)

	snap := &order.OrderSnapshot{OrderID: "order-1", TenantID: "tenant-1", Status: order.StatusCompleted, ReceiptNumber: "R-1"}
	require.NoError(t, snap.SealChecksum())
	require.NoError(t, store.Archive(context.Background(), snap, nil))

	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	repl := NewReplicator(store, "edge-1", server.URL)
	pushed, err := repl.PushPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pushed)
	assert.Equal(t, 1, calls)

	pending, err := store.PendingReplication(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReplicator_PushPending_StopsOnCloudError(t *testing.T) {
	store := newTestArchiveStore(t)

	snap := &order.OrderSnapshot{OrderID: "order-1", TenantID: "tenant-1", Status: order.StatusCompleted, ReceiptNumber: "R-1"}
	require.NoError(t, snap.SealChecksum())
	require.NoError(t, store.Archive(context.Background(), snap, nil))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	repl := NewReplicator(store, "edge-1", server.URL)
	pushed, err := repl.PushPending(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, pushed)

	pending, err := store.PendingReplication(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

package order

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeStorage struct {
	mu        sync.Mutex
	snapshots map[string]*OrderSnapshot
	seq       uint64
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{snapshots: map[string]*OrderSnapshot{}}
}

func (f *fakeStorage) LoadSnapshot(orderID string) (*OrderSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snapshots[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	return snap, nil
}

func (f *fakeStorage) NextSequence(n int) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	first := f.seq + 1
	f.seq += uint64(n)
	return first, nil
}

func (f *fakeStorage) CommitBatch(batch Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, snap := range batch.Snapshots {
		f.snapshots[id] = snap
	}
	return nil
}

func newTestEngine() (*Engine, *fakeStorage) {
	storage := newFakeStorage()
	clock := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return NewEngine(storage, nil, clock), storage
}

func openTestOrder(t *testing.T, e *Engine, orderID string) *OrderSnapshot {
	t.Helper()
	_, err := e.Execute(OpenTable{OrderID: orderID, TenantID: "tenant-1", TableID: "t1", ZoneID: "z1"}, Metadata{OperatorID: 1, OperatorName: "op"})
	require.NoError(t, err)
	snap, err := e.storage.LoadSnapshot(orderID)
	require.NoError(t, err)
	return snap
}

package edgesync

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyforge/edge/internal/storage"
)

func TestCatalogSyncer_ApplyOp_UpsertThenDelete(t *testing.T) {
	store, err := storage.OpenMemory()
	require.NoError(t, err)
	defer store.Close()

	syncer := NewCatalogSyncer(store, nil)

	payload, err := json.Marshal(map[string]string{"name": "Latte"})
	require.NoError(t, err)

	result := syncer.ApplyOp(context.Background(), "tenant-1", CatalogOp{
		OpID: "op-1", Kind: OpUpsert, Entity: EntityProduct, EntityID: "sku-1", Payload: payload,
	})
	require.True(t, result.Success)
	assert.Empty(t, result.Error)

	snap, err := syncer.Snapshot(EntityProduct)
	require.NoError(t, err)
	assert.Contains(t, snap, "sku-1")

	result = syncer.ApplyOp(context.Background(), "tenant-1", CatalogOp{
		OpID: "op-2", Kind: OpDelete, Entity: EntityProduct, EntityID: "sku-1",
	})
	require.True(t, result.Success)

	snap, err = syncer.Snapshot(EntityProduct)
	require.NoError(t, err)
	assert.NotContains(t, snap, "sku-1")
}

func TestCatalogSyncer_ApplyOp_RejectsUnknownKind(t *testing.T) {
	store, err := storage.OpenMemory()
	require.NoError(t, err)
	defer store.Close()

	syncer := NewCatalogSyncer(store, nil)
	result := syncer.ApplyOp(context.Background(), "tenant-1", CatalogOp{OpID: "op-1", Kind: "Weird", Entity: EntityProduct, EntityID: "sku-1"})
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestCatalogSyncer_ApplyOp_RejectsInvalidPayload(t *testing.T) {
	store, err := storage.OpenMemory()
	require.NoError(t, err)
	defer store.Close()

	syncer := NewCatalogSyncer(store, nil)
	result := syncer.ApplyOp(context.Background(), "tenant-1", CatalogOp{
		OpID: "op-1", Kind: OpUpsert, Entity: EntityProduct, EntityID: "sku-1", Payload: json.RawMessage("{not json"),
	})
	assert.False(t, result.Success)
}

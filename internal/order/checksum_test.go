package order

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleSnapshot() *OrderSnapshot {
	return &OrderSnapshot{
		OrderID:  "order-1",
		TenantID: "tenant-1",
		Status:   StatusActive,
		TableID:  "t1",
		Items: []*CartItemSnapshot{
			{ProductID: 1, InstanceID: "abc", Price: 10, Quantity: 2},
		},
		PaidItemQuantities: map[string]int{},
	}
}

func TestSealChecksum_StableAcrossRecompute(t *testing.T) {
	snap := sampleSnapshot()
	require.NoError(t, snap.SealChecksum())
	first := snap.StateChecksum

	require.NoError(t, snap.SealChecksum())
	require.Equal(t, first, snap.StateChecksum)
}

func TestSealChecksum_IgnoresUpdatedAtChurn(t *testing.T) {
	a := sampleSnapshot()
	require.NoError(t, a.SealChecksum())

	b := sampleSnapshot()
	b.UpdatedAt = a.CreatedAt.Add(1)
	require.NoError(t, b.SealChecksum())

	require.Equal(t, a.StateChecksum, b.StateChecksum)
}

func TestSealChecksum_ChangesWithBusinessState(t *testing.T) {
	a := sampleSnapshot()
	require.NoError(t, a.SealChecksum())

	b := sampleSnapshot()
	b.Items[0].Quantity = 3
	require.NoError(t, b.SealChecksum())

	require.NotEqual(t, a.StateChecksum, b.StateChecksum)
}

func TestVerifyChecksum(t *testing.T) {
	snap := sampleSnapshot()
	ok, err := snap.VerifyChecksum()
	require.NoError(t, err)
	require.False(t, ok, "unsealed snapshot should not verify")

	require.NoError(t, snap.SealChecksum())
	ok, err = snap.VerifyChecksum()
	require.NoError(t, err)
	require.True(t, ok)

	snap.Note = "tampered"
	ok, err = snap.VerifyChecksum()
	require.NoError(t, err)
	require.False(t, ok)
}

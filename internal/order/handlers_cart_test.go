package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addTestItem(t *testing.T, e *Engine, orderID string, price float64, qty int) string {
	t.Helper()
	_, err := e.Execute(AddItems{
		OrderID: orderID,
		Items: []CartItemInput{
			{ProductID: 1, Name: "Burger", Price: price, Quantity: qty, TaxRate: 21},
		},
	}, Metadata{OperatorID: 1, OperatorName: "op"})
	require.NoError(t, err)
	snap, err := e.storage.LoadSnapshot(orderID)
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	return snap.Items[0].InstanceID
}

func TestOpenTable_AddItems_RecalculatesTotals(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	addTestItem(t, e, "order-1", 10, 2)

	snap, err := e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	assert.Equal(t, 20.0, snap.Subtotal)
	assert.Equal(t, 20.0, snap.Total)
	assert.Equal(t, 20.0, snap.RemainingAmount)
}

func TestAddItems_SameIdentityMerges(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	input := CartItemInput{ProductID: 1, Price: 10, Quantity: 1}
	_, err := e.Execute(AddItems{OrderID: "order-1", Items: []CartItemInput{input}}, Metadata{})
	require.NoError(t, err)
	_, err = e.Execute(AddItems{OrderID: "order-1", Items: []CartItemInput{input}}, Metadata{})
	require.NoError(t, err)

	snap, err := e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, 2, snap.Items[0].Quantity)
}

func TestAddItems_RejectsInvalidQuantity(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	_, err := e.Execute(AddItems{OrderID: "order-1", Items: []CartItemInput{{ProductID: 1, Price: 10, Quantity: 0}}}, Metadata{})
	require.Error(t, err)
}

func TestRemoveItem_FullyRemoves(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	instanceID := addTestItem(t, e, "order-1", 10, 2)

	_, err := e.Execute(RemoveItem{OrderID: "order-1", InstanceID: instanceID, Quantity: 2}, Metadata{})
	require.NoError(t, err)

	snap, err := e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	assert.Empty(t, snap.Items)
}

func TestRemoveItem_RejectsRemovingPaidQuantity(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	instanceID := addTestItem(t, e, "order-1", 10, 2)

	snap, err := e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	snap.PaidItemQuantities[instanceID] = 1
	snap.RecalculateTotals()

	_, err = e.Execute(RemoveItem{OrderID: "order-1", InstanceID: instanceID, Quantity: 2}, Metadata{})
	require.Error(t, err)
}

// --- Comp/uncomp suite ---

func TestCompItem_Full(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	instanceID := addTestItem(t, e, "order-1", 10, 2)

	_, err := e.Execute(CompItem{
		OrderID: "order-1", InstanceID: instanceID, Quantity: 2,
		Reason: "VIP", AuthorizerID: 9, AuthorizerName: "Manager",
	}, Metadata{})
	require.NoError(t, err)

	snap, err := e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	assert.True(t, snap.Items[0].IsComped)
	assert.Equal(t, instanceID, snap.Items[0].InstanceID)
	assert.Equal(t, 0.0, snap.Total)
	assert.Greater(t, snap.CompTotalAmount, 0.0)
}

func TestCompItem_Partial(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	instanceID := addTestItem(t, e, "order-1", 10, 3)

	_, err := e.Execute(CompItem{
		OrderID: "order-1", InstanceID: instanceID, Quantity: 1,
		Reason: "damaged", AuthorizerID: 9, AuthorizerName: "Manager",
	}, Metadata{})
	require.NoError(t, err)

	snap, err := e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	require.Len(t, snap.Items, 2)

	original := snap.FindItem(instanceID)
	require.NotNil(t, original)
	assert.Equal(t, 2, original.Quantity)
	assert.False(t, original.IsComped)

	var comped *CartItemSnapshot
	for _, it := range snap.Items {
		if it.IsComped {
			comped = it
		}
	}
	require.NotNil(t, comped)
	assert.Equal(t, 1, comped.Quantity)
	assert.NotEqual(t, instanceID, comped.InstanceID)
}

func TestCompItem_NotFound(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")

	_, err := e.Execute(CompItem{OrderID: "order-1", InstanceID: "missing", Quantity: 1, Reason: "x", AuthorizerID: 1}, Metadata{})
	require.Error(t, err)
	var oerr *Error
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, KindNotFound, oerr.Kind)
}

func TestCompItem_CompletedOrderFails(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	instanceID := addTestItem(t, e, "order-1", 10, 1)
	_, err := e.Execute(AddPayment{OrderID: "order-1", Method: "cash", Amount: 10}, Metadata{})
	require.NoError(t, err)
	_, err = e.Execute(CompleteOrder{OrderID: "order-1"}, Metadata{})
	require.NoError(t, err)

	_, err = e.Execute(CompItem{OrderID: "order-1", InstanceID: instanceID, Quantity: 1, Reason: "x", AuthorizerID: 1}, Metadata{})
	require.Error(t, err)
}

func TestCompItem_VoidedOrderFails(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	instanceID := addTestItem(t, e, "order-1", 10, 1)
	_, err := e.Execute(VoidOrder{OrderID: "order-1", Reason: "mistake"}, Metadata{})
	require.NoError(t, err)

	_, err = e.Execute(CompItem{OrderID: "order-1", InstanceID: instanceID, Quantity: 1, Reason: "x", AuthorizerID: 1}, Metadata{})
	require.Error(t, err)
}

func TestCompItem_ZeroQuantityFails(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	instanceID := addTestItem(t, e, "order-1", 10, 1)

	_, err := e.Execute(CompItem{OrderID: "order-1", InstanceID: instanceID, Quantity: 0, Reason: "x", AuthorizerID: 1}, Metadata{})
	require.Error(t, err)
}

func TestCompItem_EmptyReasonFails(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	instanceID := addTestItem(t, e, "order-1", 10, 1)

	_, err := e.Execute(CompItem{OrderID: "order-1", InstanceID: instanceID, Quantity: 1, AuthorizerID: 1}, Metadata{})
	require.Error(t, err)
}

func TestCompItem_EmptyAuthorizerFails(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	instanceID := addTestItem(t, e, "order-1", 10, 1)

	_, err := e.Execute(CompItem{OrderID: "order-1", InstanceID: instanceID, Quantity: 1, Reason: "x"}, Metadata{})
	require.Error(t, err)
}

func TestCompItem_InsufficientQuantity(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	instanceID := addTestItem(t, e, "order-1", 10, 2)

	_, err := e.Execute(CompItem{OrderID: "order-1", InstanceID: instanceID, Quantity: 5, Reason: "x", AuthorizerID: 1}, Metadata{})
	require.Error(t, err)
}

func TestCompAlreadyCompedItem_Fails(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	instanceID := addTestItem(t, e, "order-1", 10, 1)
	_, err := e.Execute(CompItem{OrderID: "order-1", InstanceID: instanceID, Quantity: 1, Reason: "x", AuthorizerID: 1}, Metadata{})
	require.NoError(t, err)

	_, err = e.Execute(CompItem{OrderID: "order-1", InstanceID: instanceID, Quantity: 1, Reason: "x", AuthorizerID: 1}, Metadata{})
	require.Error(t, err)
}

func TestCompAllUnpaidIsFullComp(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	instanceID := addTestItem(t, e, "order-1", 10, 2)

	_, err := e.Execute(CompItem{OrderID: "order-1", InstanceID: instanceID, Quantity: 2, Reason: "x", AuthorizerID: 1}, Metadata{})
	require.NoError(t, err)

	snap, err := e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	require.Len(t, snap.Items, 1, "a full comp of all unpaid quantity keeps the same instance")
	assert.Equal(t, instanceID, snap.Items[0].InstanceID)
}

func TestCompItem_PartiallyPaidFails(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	instanceID := addTestItem(t, e, "order-1", 10, 2)
	_, err := e.Execute(SplitByItems{
		OrderID: "order-1", NewOrderID: "order-2",
		SplitItems: []SplitItem{{InstanceID: instanceID, Quantity: 1}},
	}, Metadata{})
	require.NoError(t, err)

	// Manually mark the remaining unit as paid to simulate a partial payment
	// allocation, since AddPayment in this engine doesn't track per-item
	// paid quantities on its own.
	snap, err := e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	remaining := snap.FindItem(instanceID)
	require.NotNil(t, remaining)
	snap.PaidItemQuantities[instanceID] = 1
	snap.RecalculateTotals()

	_, err = e.Execute(CompItem{OrderID: "order-1", InstanceID: instanceID, Quantity: 1, Reason: "x", AuthorizerID: 1}, Metadata{})
	require.Error(t, err)
}

func TestUncompItem(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	instanceID := addTestItem(t, e, "order-1", 10, 1)
	_, err := e.Execute(CompItem{OrderID: "order-1", InstanceID: instanceID, Quantity: 1, Reason: "x", AuthorizerID: 1}, Metadata{})
	require.NoError(t, err)

	_, err = e.Execute(UncompItem{OrderID: "order-1", InstanceID: instanceID}, Metadata{})
	require.NoError(t, err)

	snap, err := e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	assert.False(t, snap.Items[0].IsComped)
	assert.Equal(t, 10.0, snap.Total)
}

func TestUncompItem_NotCompedFails(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	instanceID := addTestItem(t, e, "order-1", 10, 1)

	_, err := e.Execute(UncompItem{OrderID: "order-1", InstanceID: instanceID}, Metadata{})
	require.Error(t, err)
}

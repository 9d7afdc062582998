package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddPayment_UpdatesRemainingAmount(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	addTestItem(t, e, "order-1", 10, 1)

	_, err := e.Execute(AddPayment{OrderID: "order-1", Method: "cash", Amount: 6}, Metadata{})
	require.NoError(t, err)

	snap, err := e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, snap.RemainingAmount, 0.001)
}

func TestAddPayment_RejectsNonPositiveAmount(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	addTestItem(t, e, "order-1", 10, 1)

	_, err := e.Execute(AddPayment{OrderID: "order-1", Method: "cash", Amount: 0}, Metadata{})
	require.Error(t, err)
}

func TestCancelPayment_RestoresRemainingAmount(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	addTestItem(t, e, "order-1", 10, 1)
	events, err := e.Execute(AddPayment{OrderID: "order-1", Method: "cash", Amount: 10}, Metadata{})
	require.NoError(t, err)
	require.Len(t, events, 1)

	snap, err := e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	paymentID := snap.Payments[0].PaymentID

	_, err = e.Execute(CancelPayment{OrderID: "order-1", PaymentID: paymentID}, Metadata{})
	require.NoError(t, err)

	snap, err = e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, snap.RemainingAmount)
	assert.True(t, snap.Payments[0].Cancelled)
}

func TestCancelPayment_AlreadyCancelledFails(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	addTestItem(t, e, "order-1", 10, 1)
	_, err := e.Execute(AddPayment{OrderID: "order-1", Method: "cash", Amount: 10}, Metadata{})
	require.NoError(t, err)
	snap, err := e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	paymentID := snap.Payments[0].PaymentID

	_, err = e.Execute(CancelPayment{OrderID: "order-1", PaymentID: paymentID}, Metadata{})
	require.NoError(t, err)
	_, err = e.Execute(CancelPayment{OrderID: "order-1", PaymentID: paymentID}, Metadata{})
	require.Error(t, err)
}

func TestSplitByItems_MovesUnpaidItemToNewOrder(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	instanceID := addTestItem(t, e, "order-1", 10, 3)

	_, err := e.Execute(SplitByItems{
		OrderID: "order-1", NewOrderID: "order-2",
		SplitItems: []SplitItem{{InstanceID: instanceID, Quantity: 1}},
	}, Metadata{})
	require.NoError(t, err)

	source, err := e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	require.Len(t, source.Items, 1)
	assert.Equal(t, 2, source.Items[0].Quantity)

	target, err := e.storage.LoadSnapshot("order-2")
	require.NoError(t, err)
	require.Len(t, target.Items, 1)
	assert.Equal(t, 1, target.Items[0].Quantity)
	assert.Equal(t, 10.0, target.Total)
}

func TestSplitByItems_RejectsMoreThanUnpaidQuantity(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	instanceID := addTestItem(t, e, "order-1", 10, 1)

	_, err := e.Execute(SplitByItems{
		OrderID: "order-1", NewOrderID: "order-2",
		SplitItems: []SplitItem{{InstanceID: instanceID, Quantity: 2}},
	}, Metadata{})
	require.Error(t, err)
}

func TestSplitByAmount_CreatesCompanionOrderWithFlatTotal(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	addTestItem(t, e, "order-1", 30, 1)

	_, err := e.Execute(SplitByAmount{OrderID: "order-1", NewOrderID: "order-2", SplitAmount: 10}, Metadata{})
	require.NoError(t, err)

	target, err := e.storage.LoadSnapshot("order-2")
	require.NoError(t, err)
	assert.Equal(t, 10.0, target.Total)
}

func TestSplitByAmount_RejectsExceedingRemainingBalance(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	addTestItem(t, e, "order-1", 10, 1)

	_, err := e.Execute(SplitByAmount{OrderID: "order-1", NewOrderID: "order-2", SplitAmount: 100}, Metadata{})
	require.Error(t, err)
}

func TestAaSplit_StartAndPayToCompletion(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	addTestItem(t, e, "order-1", 30, 1)

	_, err := e.Execute(StartAaSplit{OrderID: "order-1", TotalShares: 3}, Metadata{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := e.Execute(PayAaSplit{OrderID: "order-1", Shares: 1, Method: "cash", Amount: 10}, Metadata{})
		require.NoError(t, err)
	}

	snap, err := e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	assert.Nil(t, snap.AaTotalShares, "split should close out once all shares are paid")
	assert.Equal(t, 0.0, snap.RemainingAmount)
}

func TestAaSplit_RejectsOverpayingShares(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	addTestItem(t, e, "order-1", 30, 1)
	_, err := e.Execute(StartAaSplit{OrderID: "order-1", TotalShares: 2}, Metadata{})
	require.NoError(t, err)

	_, err = e.Execute(PayAaSplit{OrderID: "order-1", Shares: 3, Method: "cash", Amount: 30}, Metadata{})
	require.Error(t, err)
}

func TestAaSplit_CannotStartAfterPayment(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	addTestItem(t, e, "order-1", 30, 1)
	_, err := e.Execute(AddPayment{OrderID: "order-1", Method: "cash", Amount: 10}, Metadata{})
	require.NoError(t, err)

	_, err = e.Execute(StartAaSplit{OrderID: "order-1", TotalShares: 2}, Metadata{})
	require.Error(t, err)
}

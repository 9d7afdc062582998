package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyforge/edge/internal/moneyx"
)

func orderAppliedDiscountRule(id string, percent float64) moneyx.AppliedRule {
	return moneyx.AppliedRule{
		RuleID:          id,
		RuleType:        moneyx.RuleDiscount,
		AdjustmentType:  moneyx.AdjustmentPercentage,
		AdjustmentValue: percent,
	}
}

func TestMoveOrder(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")

	_, err := e.Execute(MoveOrder{OrderID: "order-1", NewTable: "t9", NewZoneID: "z9"}, Metadata{})
	require.NoError(t, err)

	snap, err := e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	assert.Equal(t, "t9", snap.TableID)
	assert.Equal(t, "z9", snap.ZoneID)
	assert.Equal(t, StatusActive, snap.Status)
}

func TestMergeOrders_FoldsSourceIntoTarget(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	openTestOrder(t, e, "order-2")
	addTestItem(t, e, "order-1", 10, 1)
	addTestItem(t, e, "order-2", 20, 1)

	_, err := e.Execute(MergeOrders{SourceOrderID: "order-1", TargetOrderID: "order-2"}, Metadata{})
	require.NoError(t, err)

	source, err := e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	assert.Equal(t, StatusMerged, source.Status)

	target, err := e.storage.LoadSnapshot("order-2")
	require.NoError(t, err)
	require.Len(t, target.Items, 2)
	assert.Equal(t, 30.0, target.Total)
}

func TestMergeOrders_RejectsSelfMerge(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")

	_, err := e.Execute(MergeOrders{SourceOrderID: "order-1", TargetOrderID: "order-1"}, Metadata{})
	require.Error(t, err)
}

func TestMergeOrders_RejectsWhenSourceHasPayments(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	openTestOrder(t, e, "order-2")
	addTestItem(t, e, "order-1", 10, 1)
	_, err := e.Execute(AddPayment{OrderID: "order-1", Method: "cash", Amount: 10}, Metadata{})
	require.NoError(t, err)

	_, err = e.Execute(MergeOrders{SourceOrderID: "order-1", TargetOrderID: "order-2"}, Metadata{})
	require.Error(t, err)
}

func TestMergeOrders_RejectsWhenAaSplitInProgress(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	openTestOrder(t, e, "order-2")
	addTestItem(t, e, "order-1", 10, 1)
	_, err := e.Execute(StartAaSplit{OrderID: "order-1", TotalShares: 2}, Metadata{})
	require.NoError(t, err)

	_, err = e.Execute(MergeOrders{SourceOrderID: "order-1", TargetOrderID: "order-2"}, Metadata{})
	require.Error(t, err)
}

func TestApplyOrderDiscount_PercentReducesTotal(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	addTestItem(t, e, "order-1", 100, 1)

	pct := 10.0
	_, err := e.Execute(ApplyOrderDiscount{OrderID: "order-1", Percent: &pct}, Metadata{})
	require.NoError(t, err)

	snap, err := e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	assert.Equal(t, 90.0, snap.Total)
}

func TestApplyOrderSurcharge_FixedIncreasesTotal(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	addTestItem(t, e, "order-1", 100, 1)

	fixed := 5.0
	_, err := e.Execute(ApplyOrderSurcharge{OrderID: "order-1", Fixed: &fixed}, Metadata{})
	require.NoError(t, err)

	snap, err := e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	assert.Equal(t, 105.0, snap.Total)
}

func TestCompleteOrder_RequiresFullPayment(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	addTestItem(t, e, "order-1", 10, 1)

	_, err := e.Execute(CompleteOrder{OrderID: "order-1"}, Metadata{})
	require.Error(t, err)

	_, err = e.Execute(AddPayment{OrderID: "order-1", Method: "cash", Amount: 10}, Metadata{})
	require.NoError(t, err)
	_, err = e.Execute(CompleteOrder{OrderID: "order-1"}, Metadata{})
	require.NoError(t, err)

	snap, err := e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, snap.Status)
}

func TestCompleteOrder_AlreadyCompletedFails(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	addTestItem(t, e, "order-1", 10, 1)
	_, err := e.Execute(AddPayment{OrderID: "order-1", Method: "cash", Amount: 10}, Metadata{})
	require.NoError(t, err)
	_, err = e.Execute(CompleteOrder{OrderID: "order-1"}, Metadata{})
	require.NoError(t, err)

	_, err = e.Execute(CompleteOrder{OrderID: "order-1"}, Metadata{})
	require.Error(t, err)
}

func TestVoidOrder_RequiresReason(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")

	_, err := e.Execute(VoidOrder{OrderID: "order-1"}, Metadata{})
	require.Error(t, err)
}

func TestVoidOrder_RejectsWhenPaid(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	addTestItem(t, e, "order-1", 10, 1)
	_, err := e.Execute(AddPayment{OrderID: "order-1", Method: "cash", Amount: 10}, Metadata{})
	require.NoError(t, err)

	_, err = e.Execute(VoidOrder{OrderID: "order-1", Reason: "mistake"}, Metadata{})
	require.Error(t, err)
}

func TestVoidOrder_Succeeds(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")

	_, err := e.Execute(VoidOrder{OrderID: "order-1", Reason: "customer walked out"}, Metadata{})
	require.NoError(t, err)

	snap, err := e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	assert.Equal(t, StatusVoid, snap.Status)
	assert.Equal(t, "customer walked out", snap.VoidReason)
}

func TestLinkAndUnlinkMember(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")

	_, err := e.Execute(LinkMember{OrderID: "order-1", MemberID: "m1"}, Metadata{})
	require.NoError(t, err)
	snap, err := e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	assert.Equal(t, "m1", snap.LinkedMemberID)

	_, err = e.Execute(UnlinkMember{OrderID: "order-1"}, Metadata{})
	require.NoError(t, err)
	snap, err = e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	assert.Empty(t, snap.LinkedMemberID)
}

func TestRedeemStamp_RequiresLinkedMember(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")

	_, err := e.Execute(RedeemStamp{OrderID: "order-1", StampID: "s1"}, Metadata{})
	require.Error(t, err)
}

func TestRedeemStamp_RejectsDuplicate(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	_, err := e.Execute(LinkMember{OrderID: "order-1", MemberID: "m1"}, Metadata{})
	require.NoError(t, err)

	_, err = e.Execute(RedeemStamp{OrderID: "order-1", StampID: "s1"}, Metadata{})
	require.NoError(t, err)
	_, err = e.Execute(RedeemStamp{OrderID: "order-1", StampID: "s1"}, Metadata{})
	require.Error(t, err)
}

func TestToggleRuleSkip_OrderLevel(t *testing.T) {
	e, _ := newTestEngine()
	openTestOrder(t, e, "order-1")
	addTestItem(t, e, "order-1", 100, 1)
	snap, err := e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	snap.OrderAppliedRules = append(snap.OrderAppliedRules, orderAppliedDiscountRule("r1", 10))
	snap.RecalculateTotals()

	_, err = e.Execute(ToggleRuleSkip{OrderID: "order-1", RuleID: "r1", Skipped: true}, Metadata{})
	require.NoError(t, err)

	snap, err = e.storage.LoadSnapshot("order-1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, snap.Total, "a skipped discount rule must not reduce the total")
}

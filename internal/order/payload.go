package order

import "encoding/json"

// Event type names. These are the closed set of event types Apply knows how
// to reduce; a handler that emits anything else is a programming error, not
// a runtime possibility worth a Kind of its own.
const (
	EvtOrderOpened         = "OrderOpened"
	EvtItemsAdded          = "ItemsAdded"
	EvtItemModified        = "ItemModified"
	EvtItemRemoved         = "ItemRemoved"
	EvtPaymentAdded        = "PaymentAdded"
	EvtPaymentCancelled    = "PaymentCancelled"
	EvtItemComped          = "ItemComped"
	EvtItemUncomped        = "ItemUncomped"
	EvtOrderSplitByItems   = "OrderSplitByItems"
	EvtOrderSplitByAmount  = "OrderSplitByAmount"
	EvtOrderCreatedBySplit = "OrderCreatedBySplit"
	EvtAaSplitStarted      = "AaSplitStarted"
	EvtAaSplitPaid         = "AaSplitPaid"
	EvtOrderMoved          = "OrderMoved"
	EvtOrderMergedOut      = "OrderMergedOut"
	EvtOrderMerged         = "OrderMerged"
	EvtOrderInfoUpdated    = "OrderInfoUpdated"
	EvtRuleSkipToggled     = "RuleSkipToggled"
	EvtOrderDiscountApplied  = "OrderDiscountApplied"
	EvtOrderSurchargeApplied = "OrderSurchargeApplied"
	EvtOrderNoteAdded      = "OrderNoteAdded"
	EvtMemberLinked        = "MemberLinked"
	EvtMemberUnlinked      = "MemberUnlinked"
	EvtStampRedeemed       = "StampRedeemed"
	EvtOrderCompleted      = "OrderCompleted"
	EvtOrderVoided         = "OrderVoided"
)

// toPayload round-trips v through JSON into a plain map so a live event and
// one decoded off storage during crash recovery look identical to Apply.
func toPayload(v interface{}) map[string]interface{} {
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]interface{}{}
	}
	return m
}

func decodePayload(payload map[string]interface{}, out interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

type OrderOpenedPayload struct {
	TenantID   string
	TableID    string
	ZoneID     string
	GuestCount int
}

type ItemsAddedPayload struct {
	Items []*CartItemSnapshot
}

type ItemModifiedPayload struct {
	InstanceID string
	Changes    ItemChanges
}

type ItemRemovedPayload struct {
	InstanceID      string
	Quantity        int
	FullyRemoved    bool
}

type PaymentAddedPayload struct {
	Payment *PaymentRecord
}

type PaymentCancelledPayload struct {
	PaymentID string
}

type ItemCompedPayload struct {
	SourceInstanceID string
	ResultInstanceID string
	Quantity         int
	Reason           string
	AuthorizerID     int64
	AuthorizerName   string
	FullComp         bool
}

type ItemUncompedPayload struct {
	InstanceID string
}

type SplitByItemsPayload struct {
	NewOrderID string
	TenantID   string
	Items      []SplitItem
}

type SplitByAmountPayload struct {
	NewOrderID  string
	TenantID    string
	SplitAmount float64
}

type OrderCreatedBySplitPayload struct {
	SourceOrderID string
	TenantID      string
	TableID       string
	ZoneID        string
	Items         []*CartItemSnapshot
	// AmountDue is set only for an amount-based split: the new order carries
	// no items of its own, just a flat surcharge equal to the split amount
	// so its Total matches what was carved out of the source order.
	AmountDue *float64
}

type AaSplitStartedPayload struct {
	TotalShares int
}

type AaSplitPaidPayload struct {
	Shares int
	Method string
	Amount float64
}

type OrderMovedPayload struct {
	NewTable  string
	NewZoneID string
}

type OrderMergedOutPayload struct {
	TargetOrderID string
}

type OrderMergedPayload struct {
	SourceOrderID string
	Items         []*CartItemSnapshot
	Payments      []*PaymentRecord
}

type OrderInfoUpdatedPayload struct {
	GuestCount *int
	Note       *string
}

type RuleSkipToggledPayload struct {
	InstanceID string
	RuleID     string
	Skipped    bool
}

type OrderDiscountAppliedPayload struct {
	Percent *float64
	Fixed   *float64
}

type OrderSurchargeAppliedPayload struct {
	Percent *float64
	Fixed   *float64
}

type OrderNoteAddedPayload struct {
	Note string
}

type MemberLinkedPayload struct {
	MemberID string
}

type StampRedeemedPayload struct {
	StampID string
}

type OrderVoidedPayload struct {
	Reason string
}

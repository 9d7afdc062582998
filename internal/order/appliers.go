package order

import (
	"fmt"

	"github.com/tallyforge/edge/internal/moneyx"
)

// Apply is the sole deterministic reducer for every event type the engine
// emits. It is used both by live command handlers (via Engine.emit,
// immediately after an event is built) and by crash-recovery replay, which
// folds an order's whole event log through Apply in sequence order to
// rebuild its snapshot from nothing but the log. Apply only ever mutates
// raw state (items, payments, status, adjustments); the money engine's
// totals and the snapshot checksum are recomputed by the caller afterward,
// never inside a reducer.
func Apply(snap *OrderSnapshot, ev Event) error {
	var err error
	switch ev.EventType {
	case EvtOrderOpened:
		err = applyOrderOpened(snap, ev)
	case EvtItemsAdded:
		err = applyItemsAdded(snap, ev)
	case EvtItemModified:
		err = applyItemModified(snap, ev)
	case EvtItemRemoved:
		err = applyItemRemoved(snap, ev)
	case EvtPaymentAdded:
		err = applyPaymentAdded(snap, ev)
	case EvtPaymentCancelled:
		err = applyPaymentCancelled(snap, ev)
	case EvtItemComped:
		err = applyItemComped(snap, ev)
	case EvtItemUncomped:
		err = applyItemUncomped(snap, ev)
	case EvtOrderSplitByItems:
		err = applyOrderSplitByItems(snap, ev)
	case EvtOrderSplitByAmount:
		err = applyOrderSplitByAmount(snap, ev)
	case EvtOrderCreatedBySplit:
		err = applyOrderCreatedBySplit(snap, ev)
	case EvtAaSplitStarted:
		err = applyAaSplitStarted(snap, ev)
	case EvtAaSplitPaid:
		err = applyAaSplitPaid(snap, ev)
	case EvtOrderMoved:
		err = applyOrderMoved(snap, ev)
	case EvtOrderMergedOut:
		err = applyOrderMergedOut(snap, ev)
	case EvtOrderMerged:
		err = applyOrderMerged(snap, ev)
	case EvtOrderInfoUpdated:
		err = applyOrderInfoUpdated(snap, ev)
	case EvtRuleSkipToggled:
		err = applyRuleSkipToggled(snap, ev)
	case EvtOrderDiscountApplied:
		err = applyOrderDiscountApplied(snap, ev)
	case EvtOrderSurchargeApplied:
		err = applyOrderSurchargeApplied(snap, ev)
	case EvtOrderNoteAdded:
		err = applyOrderNoteAdded(snap, ev)
	case EvtMemberLinked:
		err = applyMemberLinked(snap, ev)
	case EvtMemberUnlinked:
		err = applyMemberUnlinked(snap, ev)
	case EvtStampRedeemed:
		err = applyStampRedeemed(snap, ev)
	case EvtOrderCompleted:
		err = applyOrderCompleted(snap, ev)
	case EvtOrderVoided:
		err = applyOrderVoided(snap, ev)
	default:
		return fmt.Errorf("order: unknown event type %q", ev.EventType)
	}
	if err != nil {
		return err
	}
	if ev.Sequence > snap.LastSequence {
		snap.LastSequence = ev.Sequence
	}
	return nil
}

func applyOrderOpened(snap *OrderSnapshot, ev Event) error {
	var p OrderOpenedPayload
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	snap.OrderID = ev.OrderID
	snap.TenantID = p.TenantID
	snap.TableID = p.TableID
	snap.ZoneID = p.ZoneID
	snap.GuestCount = p.GuestCount
	snap.Status = StatusActive
	snap.PaidItemQuantities = map[string]int{}
	snap.CreatedAt = ev.Timestamp
	return nil
}

func applyItemsAdded(snap *OrderSnapshot, ev Event) error {
	var p ItemsAddedPayload
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	for _, incoming := range p.Items {
		if existing := snap.FindItem(incoming.InstanceID); existing != nil {
			existing.Quantity += incoming.Quantity
			continue
		}
		snap.Items = append(snap.Items, incoming)
	}
	return nil
}

func applyItemModified(snap *OrderSnapshot, ev Event) error {
	var p ItemModifiedPayload
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	item := snap.FindItem(p.InstanceID)
	if item == nil {
		return fmt.Errorf("item %s not found", p.InstanceID)
	}
	c := p.Changes
	if c.Price != nil {
		item.Price = *c.Price
	}
	if c.Quantity != nil {
		item.Quantity = *c.Quantity
	}
	if c.ManualDiscountPercent != nil {
		item.ManualDiscountPercent = c.ManualDiscountPercent
	}
	if c.SelectedOptions != nil {
		item.SelectedOptions = c.SelectedOptions
	}
	if c.Note != nil {
		item.Note = *c.Note
	}
	return nil
}

func applyItemRemoved(snap *OrderSnapshot, ev Event) error {
	var p ItemRemovedPayload
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	item := snap.FindItem(p.InstanceID)
	if item == nil {
		return fmt.Errorf("item %s not found", p.InstanceID)
	}
	if p.FullyRemoved {
		kept := make([]*CartItemSnapshot, 0, len(snap.Items)-1)
		for _, it := range snap.Items {
			if it.InstanceID != p.InstanceID {
				kept = append(kept, it)
			}
		}
		snap.Items = kept
		delete(snap.PaidItemQuantities, p.InstanceID)
		return nil
	}
	item.Quantity -= p.Quantity
	return nil
}

func applyPaymentAdded(snap *OrderSnapshot, ev Event) error {
	var p PaymentAddedPayload
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	snap.Payments = append(snap.Payments, p.Payment)
	snap.PaidAmount = moneyx.SumPayments(paymentAmounts(snap.Payments), paymentCancelled(snap.Payments))
	return nil
}

func applyPaymentCancelled(snap *OrderSnapshot, ev Event) error {
	var p PaymentCancelledPayload
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	for _, pay := range snap.Payments {
		if pay.PaymentID == p.PaymentID {
			pay.Cancelled = true
			break
		}
	}
	snap.PaidAmount = moneyx.SumPayments(paymentAmounts(snap.Payments), paymentCancelled(snap.Payments))
	return nil
}

func paymentAmounts(payments []*PaymentRecord) []float64 {
	out := make([]float64, len(payments))
	for i, p := range payments {
		out[i] = p.Amount
	}
	return out
}

func paymentCancelled(payments []*PaymentRecord) []bool {
	out := make([]bool, len(payments))
	for i, p := range payments {
		out[i] = p.Cancelled
	}
	return out
}

func applyItemComped(snap *OrderSnapshot, ev Event) error {
	var p ItemCompedPayload
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	source := snap.FindItem(p.SourceInstanceID)
	if source == nil {
		return fmt.Errorf("item %s not found", p.SourceInstanceID)
	}
	if p.FullComp {
		source.IsComped = true
		source.Note = compNote(source.Note, p.Reason)
		source.AuthorizerID = p.AuthorizerID
		source.AuthorizerName = p.AuthorizerName
		return nil
	}
	source.Quantity -= p.Quantity
	comped := *source
	comped.InstanceID = p.ResultInstanceID
	comped.Quantity = p.Quantity
	comped.UnpaidQuantity = p.Quantity
	comped.IsComped = true
	comped.Note = compNote(source.Note, p.Reason)
	comped.AuthorizerID = p.AuthorizerID
	comped.AuthorizerName = p.AuthorizerName
	snap.Items = append(snap.Items, &comped)
	return nil
}

func compNote(existing, reason string) string {
	if existing == "" {
		return reason
	}
	return existing + "; " + reason
}

func applyItemUncomped(snap *OrderSnapshot, ev Event) error {
	var p ItemUncompedPayload
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	item := snap.FindItem(p.InstanceID)
	if item == nil {
		return fmt.Errorf("item %s not found", p.InstanceID)
	}
	item.IsComped = false
	return nil
}

func applyOrderSplitByItems(snap *OrderSnapshot, ev Event) error {
	var p SplitByItemsPayload
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	byID := make(map[string]int, len(p.Items))
	for _, it := range p.Items {
		byID[it.InstanceID] = it.Quantity
	}
	kept := make([]*CartItemSnapshot, 0, len(snap.Items))
	for _, it := range snap.Items {
		qty, ok := byID[it.InstanceID]
		if !ok {
			kept = append(kept, it)
			continue
		}
		it.Quantity -= qty
		if it.Quantity > 0 {
			kept = append(kept, it)
		} else {
			delete(snap.PaidItemQuantities, it.InstanceID)
		}
	}
	snap.Items = kept
	return nil
}

func applyOrderSplitByAmount(snap *OrderSnapshot, ev Event) error {
	// The source order's items are untouched by an amount-based split; only
	// the new order (via OrderCreatedBySplit) and the payment book-keeping
	// change. Nothing to reduce here beyond recording that a split occurred.
	return nil
}

func applyOrderCreatedBySplit(snap *OrderSnapshot, ev Event) error {
	var p OrderCreatedBySplitPayload
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	snap.OrderID = ev.OrderID
	snap.TenantID = p.TenantID
	snap.TableID = p.TableID
	snap.ZoneID = p.ZoneID
	snap.Status = StatusActive
	snap.Items = p.Items
	snap.PaidItemQuantities = map[string]int{}
	snap.CreatedAt = ev.Timestamp
	if p.AmountDue != nil {
		snap.OrderManualSurchargeFixed = p.AmountDue
	}
	return nil
}

func applyAaSplitStarted(snap *OrderSnapshot, ev Event) error {
	var p AaSplitStartedPayload
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	shares := p.TotalShares
	snap.AaTotalShares = &shares
	snap.AaPaidShares = 0
	return nil
}

func applyAaSplitPaid(snap *OrderSnapshot, ev Event) error {
	var p AaSplitPaidPayload
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	snap.AaPaidShares += p.Shares
	snap.Payments = append(snap.Payments, &PaymentRecord{
		PaymentID:  ev.EventID,
		Method:     p.Method,
		Amount:     p.Amount,
		RecordedAt: ev.Timestamp,
		RecordedBy: ev.OperatorName,
	})
	snap.PaidAmount = moneyx.SumPayments(paymentAmounts(snap.Payments), paymentCancelled(snap.Payments))
	if snap.AaTotalShares != nil && snap.AaPaidShares >= *snap.AaTotalShares {
		snap.AaTotalShares = nil
		snap.AaPaidShares = 0
	}
	return nil
}

func applyOrderMoved(snap *OrderSnapshot, ev Event) error {
	var p OrderMovedPayload
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	snap.TableID = p.NewTable
	snap.ZoneID = p.NewZoneID
	snap.Status = StatusActive
	return nil
}

func applyOrderMergedOut(snap *OrderSnapshot, ev Event) error {
	snap.Status = StatusMerged
	return nil
}

func applyOrderMerged(snap *OrderSnapshot, ev Event) error {
	var p OrderMergedPayload
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	snap.Items = append(snap.Items, p.Items...)
	snap.Payments = append(snap.Payments, p.Payments...)
	snap.PaidAmount = moneyx.SumPayments(paymentAmounts(snap.Payments), paymentCancelled(snap.Payments))
	return nil
}

func applyOrderInfoUpdated(snap *OrderSnapshot, ev Event) error {
	var p OrderInfoUpdatedPayload
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	if p.GuestCount != nil {
		snap.GuestCount = *p.GuestCount
	}
	if p.Note != nil {
		snap.Note = *p.Note
	}
	return nil
}

func applyRuleSkipToggled(snap *OrderSnapshot, ev Event) error {
	var p RuleSkipToggledPayload
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	if p.InstanceID == "" {
		for i := range snap.OrderAppliedRules {
			if snap.OrderAppliedRules[i].RuleID == p.RuleID {
				snap.OrderAppliedRules[i].Skipped = p.Skipped
			}
		}
		return nil
	}
	item := snap.FindItem(p.InstanceID)
	if item == nil {
		return fmt.Errorf("item %s not found", p.InstanceID)
	}
	for i := range item.AppliedRules {
		if item.AppliedRules[i].RuleID == p.RuleID {
			item.AppliedRules[i].Skipped = p.Skipped
		}
	}
	for i := range item.AppliedMGRules {
		if item.AppliedMGRules[i].RuleID == p.RuleID {
			item.AppliedMGRules[i].Skipped = p.Skipped
		}
	}
	return nil
}

func applyOrderDiscountApplied(snap *OrderSnapshot, ev Event) error {
	var p OrderDiscountAppliedPayload
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	snap.OrderManualDiscountPercent = p.Percent
	snap.OrderManualDiscountFixed = p.Fixed
	return nil
}

func applyOrderSurchargeApplied(snap *OrderSnapshot, ev Event) error {
	var p OrderSurchargeAppliedPayload
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	snap.OrderManualSurchargePercent = p.Percent
	snap.OrderManualSurchargeFixed = p.Fixed
	return nil
}

func applyOrderNoteAdded(snap *OrderSnapshot, ev Event) error {
	var p OrderNoteAddedPayload
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	snap.Note = p.Note
	return nil
}

func applyMemberLinked(snap *OrderSnapshot, ev Event) error {
	var p MemberLinkedPayload
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	snap.LinkedMemberID = p.MemberID
	return nil
}

func applyMemberUnlinked(snap *OrderSnapshot, ev Event) error {
	snap.LinkedMemberID = ""
	return nil
}

func applyStampRedeemed(snap *OrderSnapshot, ev Event) error {
	var p StampRedeemedPayload
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	snap.RedeemedStamps = append(snap.RedeemedStamps, p.StampID)
	return nil
}

func applyOrderCompleted(snap *OrderSnapshot, ev Event) error {
	snap.Status = StatusCompleted
	return nil
}

func applyOrderVoided(snap *OrderSnapshot, ev Event) error {
	var p OrderVoidedPayload
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	snap.Status = StatusVoid
	snap.VoidReason = p.Reason
	return nil
}

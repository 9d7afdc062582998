package order

import (
	"github.com/google/uuid"

	"github.com/tallyforge/edge/internal/moneyx"
)

func requireNoAaSplitInProgress(snap *OrderSnapshot) error {
	if snap.AaTotalShares != nil {
		return newErr(KindPreconditionFailed, "order %s has an even-split in progress", snap.OrderID)
	}
	return nil
}

func (e *Engine) handleAddPayment(c AddPayment, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	snap, err := e.loadActive(c.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(snap); err != nil {
		return nil, nil, err
	}
	if err := moneyx.ValidatePayment(c.Amount, c.Tendered); err != nil {
		return nil, nil, wrapErr(KindInvalidInput, err, "add payment")
	}

	seqs, err := e.nextSeq(1)
	if err != nil {
		return nil, nil, err
	}
	ev, err := e.emit(snap, seqs[0], EvtPaymentAdded, PaymentAddedPayload{
		Payment: &PaymentRecord{
			PaymentID:  uuid.NewString(),
			Method:     c.Method,
			Amount:     c.Amount,
			Tendered:   c.Tendered,
			RecordedAt: meta.Timestamp,
			RecordedBy: meta.OperatorName,
		},
	}, meta)
	if err != nil {
		return nil, nil, err
	}
	return []Event{ev}, map[string]*OrderSnapshot{snap.OrderID: snap}, nil
}

func (e *Engine) handleCancelPayment(c CancelPayment, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	snap, err := e.loadActive(c.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(snap); err != nil {
		return nil, nil, err
	}
	var found *PaymentRecord
	for _, p := range snap.Payments {
		if p.PaymentID == c.PaymentID {
			found = p
			break
		}
	}
	if found == nil {
		return nil, nil, newErr(KindNotFound, "payment %s not found on order %s", c.PaymentID, c.OrderID)
	}
	if found.Cancelled {
		return nil, nil, newErr(KindPreconditionFailed, "payment %s already cancelled", c.PaymentID)
	}

	seqs, err := e.nextSeq(1)
	if err != nil {
		return nil, nil, err
	}
	ev, err := e.emit(snap, seqs[0], EvtPaymentCancelled, PaymentCancelledPayload{PaymentID: c.PaymentID}, meta)
	if err != nil {
		return nil, nil, err
	}
	return []Event{ev}, map[string]*OrderSnapshot{snap.OrderID: snap}, nil
}

func (e *Engine) handleSplitByItems(c SplitByItems, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	source, err := e.loadActive(c.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(source); err != nil {
		return nil, nil, err
	}
	if err := requireNoAaSplitInProgress(source); err != nil {
		return nil, nil, err
	}
	if len(c.SplitItems) == 0 {
		return nil, nil, newErr(KindInvalidInput, "at least one item to split required")
	}

	newItems := make([]*CartItemSnapshot, 0, len(c.SplitItems))
	for _, si := range c.SplitItems {
		item := source.FindItem(si.InstanceID)
		if item == nil {
			return nil, nil, newErr(KindNotFound, "item %s not found on order %s", si.InstanceID, c.OrderID)
		}
		if si.Quantity <= 0 || si.Quantity > item.UnpaidQuantity {
			return nil, nil, newErr(KindPreconditionFailed, "cannot split paid or nonexistent quantity for item %s", si.InstanceID)
		}
		moved := *item
		moved.Quantity = si.Quantity
		moved.UnpaidQuantity = si.Quantity
		newItems = append(newItems, &moved)
	}

	seqs, err := e.nextSeq(2)
	if err != nil {
		return nil, nil, err
	}
	sourceEv, err := e.emit(source, seqs[0], EvtOrderSplitByItems, SplitByItemsPayload{
		NewOrderID: c.NewOrderID,
		TenantID:   source.TenantID,
		Items:      c.SplitItems,
	}, meta)
	if err != nil {
		return nil, nil, err
	}

	newSnap := &OrderSnapshot{OrderID: c.NewOrderID}
	newEv, err := e.emit(newSnap, seqs[1], EvtOrderCreatedBySplit, OrderCreatedBySplitPayload{
		SourceOrderID: c.OrderID,
		TenantID:      source.TenantID,
		TableID:       source.TableID,
		ZoneID:        source.ZoneID,
		Items:         newItems,
	}, meta)
	if err != nil {
		return nil, nil, err
	}

	return []Event{sourceEv, newEv}, map[string]*OrderSnapshot{source.OrderID: source, newSnap.OrderID: newSnap}, nil
}

func (e *Engine) handleSplitByAmount(c SplitByAmount, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	source, err := e.loadActive(c.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(source); err != nil {
		return nil, nil, err
	}
	if err := requireNoAaSplitInProgress(source); err != nil {
		return nil, nil, err
	}
	if c.SplitAmount <= 0 || c.SplitAmount > source.RemainingAmount {
		return nil, nil, newErr(KindInvalidInput, "split amount %.2f exceeds remaining balance %.2f", c.SplitAmount, source.RemainingAmount)
	}

	seqs, err := e.nextSeq(2)
	if err != nil {
		return nil, nil, err
	}
	sourceEv, err := e.emit(source, seqs[0], EvtOrderSplitByAmount, SplitByAmountPayload{
		NewOrderID:  c.NewOrderID,
		TenantID:    source.TenantID,
		SplitAmount: c.SplitAmount,
	}, meta)
	if err != nil {
		return nil, nil, err
	}

	amount := c.SplitAmount
	newSnap := &OrderSnapshot{OrderID: c.NewOrderID}
	newEv, err := e.emit(newSnap, seqs[1], EvtOrderCreatedBySplit, OrderCreatedBySplitPayload{
		SourceOrderID: c.OrderID,
		TenantID:      source.TenantID,
		TableID:       source.TableID,
		ZoneID:        source.ZoneID,
		AmountDue:     &amount,
	}, meta)
	if err != nil {
		return nil, nil, err
	}

	return []Event{sourceEv, newEv}, map[string]*OrderSnapshot{source.OrderID: source, newSnap.OrderID: newSnap}, nil
}

func (e *Engine) handleStartAaSplit(c StartAaSplit, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	snap, err := e.loadActive(c.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(snap); err != nil {
		return nil, nil, err
	}
	if err := requireNoAaSplitInProgress(snap); err != nil {
		return nil, nil, err
	}
	if c.TotalShares <= 1 {
		return nil, nil, newErr(KindInvalidInput, "even-split requires at least 2 shares")
	}
	if snap.PaidAmount > 0 {
		return nil, nil, newErr(KindPreconditionFailed, "cannot start an even-split after payments have been recorded")
	}

	seqs, err := e.nextSeq(1)
	if err != nil {
		return nil, nil, err
	}
	ev, err := e.emit(snap, seqs[0], EvtAaSplitStarted, AaSplitStartedPayload{TotalShares: c.TotalShares}, meta)
	if err != nil {
		return nil, nil, err
	}
	return []Event{ev}, map[string]*OrderSnapshot{snap.OrderID: snap}, nil
}

func (e *Engine) handlePayAaSplit(c PayAaSplit, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	snap, err := e.loadActive(c.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(snap); err != nil {
		return nil, nil, err
	}
	if snap.AaTotalShares == nil {
		return nil, nil, newErr(KindPreconditionFailed, "order %s has no even-split in progress", c.OrderID)
	}
	if c.Shares <= 0 || snap.AaPaidShares+c.Shares > *snap.AaTotalShares {
		return nil, nil, newErr(KindInvalidInput, "invalid share count %d against %d remaining", c.Shares, *snap.AaTotalShares-snap.AaPaidShares)
	}
	if err := moneyx.ValidatePayment(c.Amount, nil); err != nil {
		return nil, nil, wrapErr(KindInvalidInput, err, "pay even-split share")
	}

	seqs, err := e.nextSeq(1)
	if err != nil {
		return nil, nil, err
	}
	ev, err := e.emit(snap, seqs[0], EvtAaSplitPaid, AaSplitPaidPayload{
		Shares: c.Shares,
		Method: c.Method,
		Amount: c.Amount,
	}, meta)
	if err != nil {
		return nil, nil, err
	}
	return []Event{ev}, map[string]*OrderSnapshot{snap.OrderID: snap}, nil
}

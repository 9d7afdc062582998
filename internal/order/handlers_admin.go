package order

func (e *Engine) handleMoveOrder(c MoveOrder, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	snap, err := e.loadActive(c.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(snap); err != nil {
		return nil, nil, err
	}
	if c.NewTable == "" {
		return nil, nil, newErr(KindInvalidInput, "destination table required")
	}

	if e.ruleSrc != nil && c.NewZoneID != "" && c.NewZoneID != snap.ZoneID {
		rules, err := e.ruleSrc.RulesForZone(snap.TenantID, c.NewZoneID, false)
		if err != nil {
			return nil, nil, wrapErr(KindStorageFatal, err, "load price rules for zone %s", c.NewZoneID)
		}
		e.rules.Set(c.OrderID, rules)
	}

	seqs, err := e.nextSeq(1)
	if err != nil {
		return nil, nil, err
	}
	ev, err := e.emit(snap, seqs[0], EvtOrderMoved, OrderMovedPayload{
		NewTable:  c.NewTable,
		NewZoneID: c.NewZoneID,
	}, meta)
	if err != nil {
		return nil, nil, err
	}
	return []Event{ev}, map[string]*OrderSnapshot{snap.OrderID: snap}, nil
}

// handleMergeOrders folds the source order's items and payments into the
// target and retires the source. Both orders must be untouched by payment
// or an even-split: merging a paid order would orphan its payment records,
// and merging mid-split would leave share counts pointing at a dead order.
func (e *Engine) handleMergeOrders(c MergeOrders, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	if c.SourceOrderID == c.TargetOrderID {
		return nil, nil, newErr(KindInvalidInput, "cannot merge an order into itself")
	}
	source, err := e.loadActive(c.SourceOrderID)
	if err != nil {
		return nil, nil, err
	}
	target, err := e.loadActive(c.TargetOrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(source); err != nil {
		return nil, nil, err
	}
	if err := requireActive(target); err != nil {
		return nil, nil, err
	}
	if source.PaidAmount > 0 || target.PaidAmount > 0 {
		return nil, nil, newErr(KindPreconditionFailed, "cannot merge an order with recorded payments")
	}
	if source.AaTotalShares != nil || target.AaTotalShares != nil {
		return nil, nil, newErr(KindPreconditionFailed, "cannot merge an order with an even-split in progress")
	}

	seqs, err := e.nextSeq(2)
	if err != nil {
		return nil, nil, err
	}
	outEv, err := e.emit(source, seqs[0], EvtOrderMergedOut, OrderMergedOutPayload{TargetOrderID: c.TargetOrderID}, meta)
	if err != nil {
		return nil, nil, err
	}
	inEv, err := e.emit(target, seqs[1], EvtOrderMerged, OrderMergedPayload{
		SourceOrderID: c.SourceOrderID,
		Items:         source.Items,
		Payments:      source.Payments,
	}, meta)
	if err != nil {
		return nil, nil, err
	}

	e.rules.Drop(c.SourceOrderID)
	return []Event{outEv, inEv}, map[string]*OrderSnapshot{source.OrderID: source, target.OrderID: target}, nil
}

func (e *Engine) handleUpdateOrderInfo(c UpdateOrderInfo, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	snap, err := e.loadActive(c.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(snap); err != nil {
		return nil, nil, err
	}
	seqs, err := e.nextSeq(1)
	if err != nil {
		return nil, nil, err
	}
	ev, err := e.emit(snap, seqs[0], EvtOrderInfoUpdated, OrderInfoUpdatedPayload{
		GuestCount: c.GuestCount,
		Note:       c.Note,
	}, meta)
	if err != nil {
		return nil, nil, err
	}
	return []Event{ev}, map[string]*OrderSnapshot{snap.OrderID: snap}, nil
}

func (e *Engine) handleToggleRuleSkip(c ToggleRuleSkip, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	snap, err := e.loadActive(c.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(snap); err != nil {
		return nil, nil, err
	}
	if c.RuleID == "" {
		return nil, nil, newErr(KindInvalidInput, "rule id required")
	}
	seqs, err := e.nextSeq(1)
	if err != nil {
		return nil, nil, err
	}
	ev, err := e.emit(snap, seqs[0], EvtRuleSkipToggled, RuleSkipToggledPayload{
		InstanceID: c.InstanceID,
		RuleID:     c.RuleID,
		Skipped:    c.Skipped,
	}, meta)
	if err != nil {
		return nil, nil, err
	}
	return []Event{ev}, map[string]*OrderSnapshot{snap.OrderID: snap}, nil
}

func (e *Engine) handleApplyOrderDiscount(c ApplyOrderDiscount, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	snap, err := e.loadActive(c.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(snap); err != nil {
		return nil, nil, err
	}
	if c.Percent == nil && c.Fixed == nil {
		return nil, nil, newErr(KindInvalidInput, "either percent or fixed discount required")
	}
	if c.Percent != nil && (*c.Percent < 0 || *c.Percent > 100) {
		return nil, nil, newErr(KindInvalidInput, "discount percent must be between 0 and 100")
	}
	seqs, err := e.nextSeq(1)
	if err != nil {
		return nil, nil, err
	}
	ev, err := e.emit(snap, seqs[0], EvtOrderDiscountApplied, OrderDiscountAppliedPayload{
		Percent: c.Percent,
		Fixed:   c.Fixed,
	}, meta)
	if err != nil {
		return nil, nil, err
	}
	return []Event{ev}, map[string]*OrderSnapshot{snap.OrderID: snap}, nil
}

func (e *Engine) handleApplyOrderSurcharge(c ApplyOrderSurcharge, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	snap, err := e.loadActive(c.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(snap); err != nil {
		return nil, nil, err
	}
	if c.Percent == nil && c.Fixed == nil {
		return nil, nil, newErr(KindInvalidInput, "either percent or fixed surcharge required")
	}
	seqs, err := e.nextSeq(1)
	if err != nil {
		return nil, nil, err
	}
	ev, err := e.emit(snap, seqs[0], EvtOrderSurchargeApplied, OrderSurchargeAppliedPayload{
		Percent: c.Percent,
		Fixed:   c.Fixed,
	}, meta)
	if err != nil {
		return nil, nil, err
	}
	return []Event{ev}, map[string]*OrderSnapshot{snap.OrderID: snap}, nil
}

func (e *Engine) handleAddOrderNote(c AddOrderNote, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	snap, err := e.loadActive(c.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(snap); err != nil {
		return nil, nil, err
	}
	seqs, err := e.nextSeq(1)
	if err != nil {
		return nil, nil, err
	}
	ev, err := e.emit(snap, seqs[0], EvtOrderNoteAdded, OrderNoteAddedPayload{Note: c.Note}, meta)
	if err != nil {
		return nil, nil, err
	}
	return []Event{ev}, map[string]*OrderSnapshot{snap.OrderID: snap}, nil
}

func (e *Engine) handleLinkMember(c LinkMember, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	snap, err := e.loadActive(c.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(snap); err != nil {
		return nil, nil, err
	}
	if c.MemberID == "" {
		return nil, nil, newErr(KindInvalidInput, "member id required")
	}
	seqs, err := e.nextSeq(1)
	if err != nil {
		return nil, nil, err
	}
	ev, err := e.emit(snap, seqs[0], EvtMemberLinked, MemberLinkedPayload{MemberID: c.MemberID}, meta)
	if err != nil {
		return nil, nil, err
	}
	return []Event{ev}, map[string]*OrderSnapshot{snap.OrderID: snap}, nil
}

func (e *Engine) handleUnlinkMember(c UnlinkMember, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	snap, err := e.loadActive(c.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(snap); err != nil {
		return nil, nil, err
	}
	if snap.LinkedMemberID == "" {
		return nil, nil, newErr(KindPreconditionFailed, "order %s has no linked member", c.OrderID)
	}
	seqs, err := e.nextSeq(1)
	if err != nil {
		return nil, nil, err
	}
	ev, err := e.emit(snap, seqs[0], EvtMemberUnlinked, struct{}{}, meta)
	if err != nil {
		return nil, nil, err
	}
	return []Event{ev}, map[string]*OrderSnapshot{snap.OrderID: snap}, nil
}

func (e *Engine) handleRedeemStamp(c RedeemStamp, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	snap, err := e.loadActive(c.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(snap); err != nil {
		return nil, nil, err
	}
	if snap.LinkedMemberID == "" {
		return nil, nil, newErr(KindPreconditionFailed, "order %s has no linked member to redeem a stamp against", c.OrderID)
	}
	for _, redeemed := range snap.RedeemedStamps {
		if redeemed == c.StampID {
			return nil, nil, newErr(KindPreconditionFailed, "stamp %s already redeemed on order %s", c.StampID, c.OrderID)
		}
	}
	seqs, err := e.nextSeq(1)
	if err != nil {
		return nil, nil, err
	}
	ev, err := e.emit(snap, seqs[0], EvtStampRedeemed, StampRedeemedPayload{StampID: c.StampID}, meta)
	if err != nil {
		return nil, nil, err
	}
	return []Event{ev}, map[string]*OrderSnapshot{snap.OrderID: snap}, nil
}

func (e *Engine) handleCompleteOrder(c CompleteOrder, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
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
	if snap.RemainingAmount > 0 {
		return nil, nil, newErr(KindPreconditionFailed, "order %s is not fully paid, remaining %.2f", c.OrderID, snap.RemainingAmount)
	}

	seqs, err := e.nextSeq(1)
	if err != nil {
		return nil, nil, err
	}
	ev, err := e.emit(snap, seqs[0], EvtOrderCompleted, struct{}{}, meta)
	if err != nil {
		return nil, nil, err
	}
	e.rules.Drop(c.OrderID)
	return []Event{ev}, map[string]*OrderSnapshot{snap.OrderID: snap}, nil
}

func (e *Engine) handleVoidOrder(c VoidOrder, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	snap, err := e.loadActive(c.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(snap); err != nil {
		return nil, nil, err
	}
	if c.Reason == "" {
		return nil, nil, newErr(KindInvalidInput, "void reason is required")
	}
	if snap.PaidAmount > 0 {
		return nil, nil, newErr(KindPreconditionFailed, "cannot void order %s with recorded payments", c.OrderID)
	}

	seqs, err := e.nextSeq(1)
	if err != nil {
		return nil, nil, err
	}
	ev, err := e.emit(snap, seqs[0], EvtOrderVoided, OrderVoidedPayload{Reason: c.Reason}, meta)
	if err != nil {
		return nil, nil, err
	}
	e.rules.Drop(c.OrderID)
	return []Event{ev}, map[string]*OrderSnapshot{snap.OrderID: snap}, nil
}

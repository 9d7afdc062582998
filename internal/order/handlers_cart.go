package order

import (
	"github.com/google/uuid"

	"github.com/tallyforge/edge/internal/moneyx"
)

func (e *Engine) handleOpenTable(c OpenTable, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	if c.OrderID == "" {
		return nil, nil, newErr(KindInvalidInput, "order id required")
	}
	seqs, err := e.nextSeq(1)
	if err != nil {
		return nil, nil, err
	}
	snap := &OrderSnapshot{OrderID: c.OrderID}

	if e.ruleSrc != nil {
		rules, err := e.ruleSrc.RulesForZone(c.TenantID, c.ZoneID, c.IsRetail)
		if err != nil {
			return nil, nil, wrapErr(KindStorageFatal, err, "load price rules for zone %s", c.ZoneID)
		}
		e.rules.Set(c.OrderID, rules)
	}

	ev, err := e.emit(snap, seqs[0], EvtOrderOpened, OrderOpenedPayload{
		TenantID:   c.TenantID,
		TableID:    c.TableID,
		ZoneID:     c.ZoneID,
		GuestCount: c.GuestCount,
	}, meta)
	if err != nil {
		return nil, nil, err
	}
	return []Event{ev}, map[string]*OrderSnapshot{snap.OrderID: snap}, nil
}

func (e *Engine) handleAddItems(c AddItems, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	snap, err := e.loadActive(c.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(snap); err != nil {
		return nil, nil, err
	}
	if len(c.Items) == 0 {
		return nil, nil, newErr(KindInvalidInput, "at least one item required")
	}

	items := make([]*CartItemSnapshot, 0, len(c.Items))
	for _, in := range c.Items {
		moneyOpts := make([]moneyx.SelectedOption, len(in.SelectedOptions))
		for i, o := range in.SelectedOptions {
			moneyOpts[i] = moneyx.SelectedOption{PriceModifier: o.PriceModifier, Quantity: o.Quantity}
		}
		if err := moneyx.ValidateCartItem(moneyx.CartItemInput{
			Price:                 in.Price,
			OriginalPrice:         in.OriginalPrice,
			Quantity:              in.Quantity,
			ManualDiscountPercent: in.ManualDiscountPercent,
			SelectedOptions:       moneyOpts,
		}); err != nil {
			return nil, nil, wrapErr(KindInvalidInput, err, "item %d", in.ProductID)
		}

		instanceID := GenerateInstanceID(in)
		originalPrice := in.Price
		if in.OriginalPrice != nil {
			originalPrice = *in.OriginalPrice
		}
		items = append(items, &CartItemSnapshot{
			ProductID:             in.ProductID,
			InstanceID:            instanceID,
			Name:                  in.Name,
			Price:                 in.Price,
			OriginalPrice:         originalPrice,
			Quantity:              in.Quantity,
			UnpaidQuantity:        in.Quantity,
			SelectedOptions:       in.SelectedOptions,
			Specification:         in.Specification,
			ManualDiscountPercent: in.ManualDiscountPercent,
			TaxRate:               in.TaxRate,
			Note:                  in.Note,
			AuthorizerID:          in.AuthorizerID,
			AuthorizerName:        in.AuthorizerName,
			CategoryName:          in.CategoryName,
		})
	}

	seqs, err := e.nextSeq(1)
	if err != nil {
		return nil, nil, err
	}
	ev, err := e.emit(snap, seqs[0], EvtItemsAdded, ItemsAddedPayload{Items: items}, meta)
	if err != nil {
		return nil, nil, err
	}
	return []Event{ev}, map[string]*OrderSnapshot{snap.OrderID: snap}, nil
}

func (e *Engine) handleModifyItem(c ModifyItem, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	snap, err := e.loadActive(c.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(snap); err != nil {
		return nil, nil, err
	}
	item := snap.FindItem(c.InstanceID)
	if item == nil {
		return nil, nil, newErr(KindNotFound, "item %s not found on order %s", c.InstanceID, c.OrderID)
	}
	if item.IsComped {
		return nil, nil, newErr(KindPreconditionFailed, "cannot modify a comped item")
	}
	if c.Changes.Quantity != nil && *c.Changes.Quantity < item.Quantity-item.UnpaidQuantity {
		return nil, nil, newErr(KindPreconditionFailed, "cannot reduce quantity below what is already paid")
	}

	seqs, err := e.nextSeq(1)
	if err != nil {
		return nil, nil, err
	}
	ev, err := e.emit(snap, seqs[0], EvtItemModified, ItemModifiedPayload{
		InstanceID: c.InstanceID,
		Changes:    c.Changes,
	}, meta)
	if err != nil {
		return nil, nil, err
	}
	return []Event{ev}, map[string]*OrderSnapshot{snap.OrderID: snap}, nil
}

func (e *Engine) handleRemoveItem(c RemoveItem, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	snap, err := e.loadActive(c.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(snap); err != nil {
		return nil, nil, err
	}
	item := snap.FindItem(c.InstanceID)
	if item == nil {
		return nil, nil, newErr(KindNotFound, "item %s not found on order %s", c.InstanceID, c.OrderID)
	}
	if c.Quantity <= 0 || c.Quantity > item.Quantity {
		return nil, nil, newErr(KindInvalidInput, "invalid removal quantity %d for item with quantity %d", c.Quantity, item.Quantity)
	}
	if c.Quantity > item.UnpaidQuantity {
		return nil, nil, newErr(KindPreconditionFailed, "cannot remove paid quantity")
	}

	seqs, err := e.nextSeq(1)
	if err != nil {
		return nil, nil, err
	}
	ev, err := e.emit(snap, seqs[0], EvtItemRemoved, ItemRemovedPayload{
		InstanceID:   c.InstanceID,
		Quantity:     c.Quantity,
		FullyRemoved: c.Quantity == item.Quantity,
	}, meta)
	if err != nil {
		return nil, nil, err
	}
	return []Event{ev}, map[string]*OrderSnapshot{snap.OrderID: snap}, nil
}

func (e *Engine) handleCompItem(c CompItem, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	snap, err := e.loadActive(c.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(snap); err != nil {
		return nil, nil, err
	}
	item := snap.FindItem(c.InstanceID)
	if item == nil {
		return nil, nil, newErr(KindNotFound, "item %s not found on order %s", c.InstanceID, c.OrderID)
	}
	if item.IsComped {
		return nil, nil, newErr(KindPreconditionFailed, "item %s is already comped", c.InstanceID)
	}
	if c.Quantity <= 0 {
		return nil, nil, newErr(KindInvalidInput, "comp quantity must be positive")
	}
	if c.Reason == "" {
		return nil, nil, newErr(KindInvalidInput, "comp reason is required")
	}
	if c.AuthorizerID == 0 && c.AuthorizerName == "" {
		return nil, nil, newErr(KindInvalidInput, "comp authorizer is required")
	}
	if c.Quantity > item.UnpaidQuantity {
		return nil, nil, newErr(KindPreconditionFailed, "comp quantity %d exceeds unpaid quantity %d of item %s", c.Quantity, item.UnpaidQuantity, c.InstanceID)
	}

	fullComp := c.Quantity == item.UnpaidQuantity
	resultID := item.InstanceID
	if !fullComp {
		resultID = item.InstanceID + "::comp::" + uuid.NewString()
	}

	seqs, err := e.nextSeq(1)
	if err != nil {
		return nil, nil, err
	}
	ev, err := e.emit(snap, seqs[0], EvtItemComped, ItemCompedPayload{
		SourceInstanceID: c.InstanceID,
		ResultInstanceID: resultID,
		Quantity:         c.Quantity,
		Reason:           c.Reason,
		AuthorizerID:     c.AuthorizerID,
		AuthorizerName:   c.AuthorizerName,
		FullComp:         fullComp,
	}, meta)
	if err != nil {
		return nil, nil, err
	}
	return []Event{ev}, map[string]*OrderSnapshot{snap.OrderID: snap}, nil
}

func (e *Engine) handleUncompItem(c UncompItem, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	snap, err := e.loadActive(c.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireActive(snap); err != nil {
		return nil, nil, err
	}
	item := snap.FindItem(c.InstanceID)
	if item == nil {
		return nil, nil, newErr(KindNotFound, "item %s not found on order %s", c.InstanceID, c.OrderID)
	}
	if !item.IsComped {
		return nil, nil, newErr(KindPreconditionFailed, "item %s is not comped", c.InstanceID)
	}

	seqs, err := e.nextSeq(1)
	if err != nil {
		return nil, nil, err
	}
	ev, err := e.emit(snap, seqs[0], EvtItemUncomped, ItemUncompedPayload{InstanceID: c.InstanceID}, meta)
	if err != nil {
		return nil, nil, err
	}
	return []Event{ev}, map[string]*OrderSnapshot{snap.OrderID: snap}, nil
}

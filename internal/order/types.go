// Package order implements the event-sourced order aggregate: command
// validation, monotonic sequence allocation, deterministic event appliers,
// snapshot checksums, and the handlers for every order-mutating operation.
package order

import (
	"strconv"
	"time"

	"github.com/tallyforge/edge/internal/moneyx"
)

// Status is the lifecycle state of an order aggregate.
type Status string

const (
	StatusActive    Status = "Active"
	StatusCompleted Status = "Completed"
	StatusVoid      Status = "Void"
	StatusMoved     Status = "Moved"
	StatusMerged    Status = "Merged"
)

// Terminal reports whether an order in this status is no longer mutable
// and is eligible for archival.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusVoid, StatusMoved, StatusMerged:
		return true
	default:
		return false
	}
}

// SelectedOption mirrors moneyx.SelectedOption with the product-scope
// identifiers needed for instance_id generation and rule matching.
type SelectedOption struct {
	AttributeID   int64
	OptionID      int64
	OptionName    string
	PriceModifier *float64
	Quantity      int
}

// Specification is the chosen product variant/spec, if the product has one.
type Specification struct {
	ID   int64
	Name string
}

// PaymentRecord is one recorded payment against an order.
type PaymentRecord struct {
	PaymentID   string
	Method      string
	Amount      float64
	Tendered    *float64
	Cancelled   bool
	RecordedAt  time.Time
	RecordedBy  string
}

// CartItemSnapshot is the persisted, money-engine-facing projection of an
// item line. It embeds the fields moneyx.CartItem needs plus the
// identity/product metadata the order engine itself cares about.
type CartItemSnapshot struct {
	ProductID             int64
	InstanceID            string
	Name                  string
	Price                 float64
	OriginalPrice         float64
	Quantity              int
	UnpaidQuantity        int
	SelectedOptions       []SelectedOption
	Specification         *Specification
	ManualDiscountPercent *float64
	AppliedRules          []moneyx.AppliedRule
	AppliedMGRules        []moneyx.AppliedRule
	UnitPrice             float64
	LineTotal             float64
	Tax                   float64
	TaxRate               float64
	MGDiscountAmount      float64
	RuleDiscountAmount    float64
	RuleSurchargeAmount   float64
	Note                  string
	AuthorizerID          int64
	AuthorizerName        string
	CategoryName          string
	IsComped              bool
}

func (c *CartItemSnapshot) toMoney() *moneyx.CartItem {
	opts := make([]moneyx.SelectedOption, len(c.SelectedOptions))
	for i, o := range c.SelectedOptions {
		opts[i] = moneyx.SelectedOption{OptionID: strconv.FormatInt(o.OptionID, 10), PriceModifier: o.PriceModifier, Quantity: o.Quantity}
	}
	return &moneyx.CartItem{
		InstanceID:            c.InstanceID,
		ProductID:             strconv.FormatInt(c.ProductID, 10),
		Price:                 c.Price,
		OriginalPrice:         c.OriginalPrice,
		Quantity:              c.Quantity,
		UnpaidQuantity:        c.UnpaidQuantity,
		ManualDiscountPercent: c.ManualDiscountPercent,
		SelectedOptions:       opts,
		AppliedRules:          c.AppliedRules,
		AppliedMGRules:        c.AppliedMGRules,
		IsComped:              c.IsComped,
		TaxRate:               c.TaxRate,
		RuleDiscountAmount:    c.RuleDiscountAmount,
		RuleSurchargeAmount:   c.RuleSurchargeAmount,
	}
}

func (c *CartItemSnapshot) syncFromMoney(m *moneyx.CartItem) {
	c.UnpaidQuantity = m.UnpaidQuantity
	c.UnitPrice = m.UnitPrice
	c.Price = m.Price
	c.LineTotal = m.LineTotal
	c.Tax = m.Tax
	c.MGDiscountAmount = m.MGDiscountAmount
}

// OrderSnapshot is the fully materialized state of one order aggregate.
type OrderSnapshot struct {
	OrderID    string
	TenantID   string
	Status     Status
	TableID    string
	ZoneID     string
	GuestCount int
	Note       string

	Items              []*CartItemSnapshot
	Payments           []*PaymentRecord
	PaidItemQuantities map[string]int
	PaidAmount         float64
	IsPrePayment       bool

	OrderManualDiscountFixed    *float64
	OrderManualDiscountPercent  *float64
	OrderManualSurchargeFixed   *float64
	OrderManualSurchargePercent *float64
	OrderAppliedRules           []moneyx.AppliedRule

	// AA (go-dutch) split in progress tracking. Non-nil TotalShares means
	// a split is in progress and blocks merges.
	AaTotalShares *int
	AaPaidShares  int

	OriginalTotal              float64
	Subtotal                   float64
	TotalDiscount              float64
	TotalSurcharge             float64
	Tax                        float64
	Discount                   float64
	CompTotalAmount            float64
	OrderManualDiscountAmount  float64
	OrderManualSurchargeAmount float64
	OrderRuleDiscountAmount    float64
	OrderRuleSurchargeAmount   float64
	MGDiscountAmount           float64
	Total                      float64
	RemainingAmount            float64

	ReceiptNumber string
	LastSequence  uint64
	StateChecksum string
	CreatedAt     time.Time
	UpdatedAt     time.Time

	LinkedMemberID string
	RedeemedStamps []string
	VoidReason     string
}

// toMoneySnapshot projects the order-level fields RecalculateTotals needs.
func (s *OrderSnapshot) toMoneySnapshot() *moneyx.OrderSnapshot {
	items := make([]*moneyx.CartItem, len(s.Items))
	for i, it := range s.Items {
		items[i] = it.toMoney()
	}
	return &moneyx.OrderSnapshot{
		Items:                       items,
		PaidItemQuantities:          s.PaidItemQuantities,
		PaidAmount:                  s.PaidAmount,
		IsPrePayment:                s.IsPrePayment,
		OrderManualDiscountFixed:    s.OrderManualDiscountFixed,
		OrderManualDiscountPercent:  s.OrderManualDiscountPercent,
		OrderManualSurchargeFixed:   s.OrderManualSurchargeFixed,
		OrderManualSurchargePercent: s.OrderManualSurchargePercent,
		OrderAppliedRules:           s.OrderAppliedRules,
	}
}

func (s *OrderSnapshot) syncFromMoneySnapshot(m *moneyx.OrderSnapshot) {
	for i, it := range s.Items {
		it.syncFromMoney(m.Items[i])
	}
	s.IsPrePayment = m.IsPrePayment
	s.OriginalTotal = m.OriginalTotal
	s.Subtotal = m.Subtotal
	s.TotalDiscount = m.TotalDiscount
	s.TotalSurcharge = m.TotalSurcharge
	s.Tax = m.Tax
	s.Discount = m.Discount
	s.CompTotalAmount = m.CompTotalAmount
	s.OrderManualDiscountAmount = m.OrderManualDiscountAmount
	s.OrderManualSurchargeAmount = m.OrderManualSurchargeAmount
	s.OrderRuleDiscountAmount = m.OrderRuleDiscountAmount
	s.OrderRuleSurchargeAmount = m.OrderRuleSurchargeAmount
	s.MGDiscountAmount = m.MGDiscountAmount
	s.Total = m.Total
	s.RemainingAmount = m.RemainingAmount
}

// RecalculateTotals re-derives every money field on the snapshot from its
// items and order-level adjustments. Command handlers do not call it:
// Engine.Execute calls it once on every snapshot a command touched, after
// that command's events are applied and before the checksum is sealed.
func (s *OrderSnapshot) RecalculateTotals() {
	m := s.toMoneySnapshot()
	moneyx.RecalculateTotals(m)
	s.syncFromMoneySnapshot(m)
}

// FindItem returns the item with the given instance id, or nil.
func (s *OrderSnapshot) FindItem(instanceID string) *CartItemSnapshot {
	for _, it := range s.Items {
		if it.InstanceID == instanceID {
			return it
		}
	}
	return nil
}

// Event is one entry in the append-only event log. Sequence is allocated
// from a process-wide monotonic counter, not per-order, so a client can
// resume a live stream from a single cursor regardless of which orders it
// touches.
type Event struct {
	Sequence        uint64
	EventID         string
	OrderID         string
	EventType       string
	Payload         map[string]interface{}
	CommandID       string
	OperatorID      int64
	OperatorName    string
	Timestamp       time.Time
	ClientTimestamp *time.Time
}

// Package moneyx implements the fixed-point money arithmetic the order
// engine depends on: per-item unit-price calculation, multiplicative
// member-grade discount stacking, dynamic per-rule recomputation, and the
// order-level totals recompute that every mutating order command re-runs.
//
// The reference implementation (a Rust prototype, not part of this repo)
// used an arbitrary-precision decimal type purely to avoid floating-point
// drift across a handful of chained percentage operations on values bounded
// by MaxPrice/MaxQuantity below. float64's mantissa carries far more
// precision than that bound requires, so this package uses float64
// throughout and applies roundCents at exactly the points the reference
// implementation rounds, rather than carrying a decimal dependency that
// nothing else in the module needs.
package moneyx

import (
	"fmt"
	"math"
)

const (
	// MaxPrice bounds any single price-like input (item price, original
	// price, option modifier magnitude).
	MaxPrice = 1_000_000.0
	// MaxQuantity bounds item and option quantities.
	MaxQuantity = 9999
	// MaxPaymentAmount bounds a single payment's amount.
	MaxPaymentAmount = 1_000_000.0
	// Tolerance is the comparison epsilon for monetary equality/sufficiency
	// checks, matching the reference implementation's MONEY_TOLERANCE.
	Tolerance = 0.01
)

// RuleKind distinguishes a discount from a surcharge.
type RuleKind string

const (
	RuleDiscount  RuleKind = "discount"
	RuleSurcharge RuleKind = "surcharge"
)

// AdjustmentKind distinguishes a percentage-of-basis adjustment from a
// flat fixed-amount adjustment.
type AdjustmentKind string

const (
	AdjustmentPercentage  AdjustmentKind = "percentage"
	AdjustmentFixedAmount AdjustmentKind = "fixed_amount"
)

// AppliedRule is one price-rule or member-grade-rule instance attached to
// an item or an order, as carried in a snapshot. CalculatedAmount is
// resynced on every RecalculateTotals pass so a persisted snapshot remains
// self-explanatory without re-deriving the formula.
type AppliedRule struct {
	RuleID           string
	RuleType         RuleKind
	AdjustmentType   AdjustmentKind
	AdjustmentValue  float64
	Skipped          bool
	CalculatedAmount float64
}

// SelectedOption is one chosen product-option line on a cart item.
type SelectedOption struct {
	OptionID      string
	PriceModifier *float64
	Quantity      int
}

// CartItem is the money-relevant projection of an order's CartItemSnapshot.
type CartItem struct {
	InstanceID            string
	ProductID             string
	Price                 float64
	OriginalPrice         float64
	Quantity              int
	UnpaidQuantity        int
	ManualDiscountPercent *float64
	SelectedOptions       []SelectedOption
	AppliedRules          []AppliedRule
	AppliedMGRules        []AppliedRule
	IsComped              bool
	TaxRate               float64

	// Outputs populated by RecalculateTotals/CalculateUnitPrice.
	UnitPrice       float64
	LineTotal       float64
	Tax             float64
	MGDiscountAmount float64

	// Legacy fallback amounts used only when AppliedRules is empty.
	RuleDiscountAmount  float64
	RuleSurchargeAmount float64
}

// OrderSnapshot is the money-relevant projection of an order aggregate.
type OrderSnapshot struct {
	Items                 []*CartItem
	PaidItemQuantities    map[string]int
	PaidAmount            float64
	IsPrePayment          bool

	OrderManualDiscountFixed    *float64
	OrderManualDiscountPercent  *float64
	OrderManualSurchargeFixed   *float64
	OrderManualSurchargePercent *float64
	OrderAppliedRules           []AppliedRule

	// Legacy fallback amounts used only when OrderAppliedRules is empty.
	OrderRuleDiscountAmountLegacy  float64
	OrderRuleSurchargeAmountLegacy float64

	// Outputs populated by RecalculateTotals.
	OriginalTotal               float64
	Subtotal                    float64
	TotalDiscount               float64
	TotalSurcharge              float64
	Tax                         float64
	Discount                    float64
	CompTotalAmount             float64
	OrderManualDiscountAmount   float64
	OrderManualSurchargeAmount  float64
	OrderRuleDiscountAmount     float64
	OrderRuleSurchargeAmount    float64
	MGDiscountAmount            float64
	Total                       float64
	RemainingAmount             float64
}

// ValidationError identifies which field failed a money-input check.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("moneyx: %s: %s", e.Field, e.Msg)
}

func requireFinite(value float64, field string) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return &ValidationError{Field: field, Msg: fmt.Sprintf("must be a finite number, got %v", value)}
	}
	return nil
}

// roundCents rounds v to 2 decimal places, half-away-from-zero.
func roundCents(v float64) float64 {
	if v >= 0 {
		return math.Floor(v*100+0.5) / 100
	}
	return -math.Floor(-v*100+0.5) / 100
}

// CartItemInput is the validated-on-entry shape for AddItems/ModifyItem,
// distinct from CartItem (the persisted snapshot projection) because
// callers shouldn't be able to set output fields like UnitPrice directly.
type CartItemInput struct {
	Price                 float64
	OriginalPrice         *float64
	Quantity              int
	ManualDiscountPercent *float64
	SelectedOptions       []SelectedOption
}

// ValidateCartItem checks an incoming cart item against the bounds the
// order engine enforces before it ever becomes a CartItem.
func ValidateCartItem(item CartItemInput) error {
	if err := requireFinite(item.Price, "price"); err != nil {
		return err
	}
	if item.Price < 0 {
		return &ValidationError{Field: "price", Msg: fmt.Sprintf("must be non-negative, got %v", item.Price)}
	}
	if item.Price > MaxPrice {
		return &ValidationError{Field: "price", Msg: fmt.Sprintf("exceeds maximum allowed (%v), got %v", MaxPrice, item.Price)}
	}
	if item.OriginalPrice != nil {
		if err := requireFinite(*item.OriginalPrice, "original_price"); err != nil {
			return err
		}
		if *item.OriginalPrice < 0 {
			return &ValidationError{Field: "original_price", Msg: "must be non-negative"}
		}
		if *item.OriginalPrice > MaxPrice {
			return &ValidationError{Field: "original_price", Msg: "exceeds maximum allowed"}
		}
	}
	if item.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Msg: fmt.Sprintf("must be positive, got %d", item.Quantity)}
	}
	if item.Quantity > MaxQuantity {
		return &ValidationError{Field: "quantity", Msg: fmt.Sprintf("exceeds maximum allowed (%d), got %d", MaxQuantity, item.Quantity)}
	}
	if item.ManualDiscountPercent != nil {
		d := *item.ManualDiscountPercent
		if err := requireFinite(d, "manual_discount_percent"); err != nil {
			return err
		}
		if d < 0 || d > 100 {
			return &ValidationError{Field: "manual_discount_percent", Msg: fmt.Sprintf("must be between 0 and 100, got %v", d)}
		}
	}
	for _, opt := range item.SelectedOptions {
		if opt.PriceModifier != nil {
			pm := *opt.PriceModifier
			if err := requireFinite(pm, "option price_modifier"); err != nil {
				return err
			}
			if math.Abs(pm) > MaxPrice {
				return &ValidationError{Field: "option price_modifier", Msg: "exceeds maximum allowed"}
			}
		}
		if opt.Quantity <= 0 {
			return &ValidationError{Field: "option quantity", Msg: fmt.Sprintf("must be positive, got %d", opt.Quantity)}
		}
		if opt.Quantity > MaxQuantity {
			return &ValidationError{Field: "option quantity", Msg: "exceeds maximum allowed"}
		}
	}
	return nil
}

// ValidatePayment checks an incoming payment amount/tendered pair.
func ValidatePayment(amount float64, tendered *float64) error {
	if err := requireFinite(amount, "payment amount"); err != nil {
		return err
	}
	if amount <= 0 {
		return &ValidationError{Field: "payment amount", Msg: "must be positive"}
	}
	if amount > MaxPaymentAmount {
		return &ValidationError{Field: "payment amount", Msg: fmt.Sprintf("exceeds maximum allowed (%v), got %v", MaxPaymentAmount, amount)}
	}
	if tendered != nil {
		if err := requireFinite(*tendered, "tendered"); err != nil {
			return err
		}
		if *tendered < 0 {
			return &ValidationError{Field: "tendered", Msg: "must be non-negative"}
		}
	}
	return nil
}

func optionsModifier(opts []SelectedOption) float64 {
	total := 0.0
	for _, o := range opts {
		if o.PriceModifier != nil {
			total += *o.PriceModifier * float64(o.Quantity)
		}
	}
	return total
}

func baseWithOptions(item *CartItem) float64 {
	base := item.Price
	if item.OriginalPrice > 0 {
		base = item.OriginalPrice
	}
	v := base + optionsModifier(item.SelectedOptions)
	return math.Max(v, 0)
}

func manualDiscount(item *CartItem, baseAmt float64) float64 {
	if item.ManualDiscountPercent == nil {
		return 0
	}
	return baseAmt * *item.ManualDiscountPercent / 100
}

// effectiveRuleDiscount dynamically recomputes the summed per-unit
// discount from AppliedRules against afterManual, falling back to the
// legacy precomputed amount when AppliedRules is empty.
func effectiveRuleDiscount(item *CartItem, afterManual float64) float64 {
	if len(item.AppliedRules) == 0 {
		return item.RuleDiscountAmount
	}
	total := 0.0
	for _, r := range item.AppliedRules {
		if r.Skipped || r.RuleType != RuleDiscount {
			continue
		}
		total += ruleAmount(r, afterManual)
	}
	return total
}

func effectiveRuleSurcharge(item *CartItem, baseAmt float64) float64 {
	if len(item.AppliedRules) == 0 {
		return item.RuleSurchargeAmount
	}
	total := 0.0
	for _, r := range item.AppliedRules {
		if r.Skipped || r.RuleType != RuleSurcharge {
			continue
		}
		total += ruleAmount(r, baseAmt)
	}
	return total
}

func ruleAmount(r AppliedRule, basis float64) float64 {
	switch r.AdjustmentType {
	case AdjustmentPercentage:
		return roundCents(basis * r.AdjustmentValue / 100)
	default:
		return r.AdjustmentValue
	}
}

func effectiveOrderRuleDiscount(snap *OrderSnapshot, subtotal float64) float64 {
	if len(snap.OrderAppliedRules) == 0 {
		return snap.OrderRuleDiscountAmountLegacy
	}
	total := 0.0
	for _, r := range snap.OrderAppliedRules {
		if r.Skipped || r.RuleType != RuleDiscount {
			continue
		}
		total += ruleAmount(r, subtotal)
	}
	return total
}

func effectiveOrderRuleSurcharge(snap *OrderSnapshot, subtotal float64) float64 {
	if len(snap.OrderAppliedRules) == 0 {
		return snap.OrderRuleSurchargeAmountLegacy
	}
	total := 0.0
	for _, r := range snap.OrderAppliedRules {
		if r.Skipped || r.RuleType != RuleSurcharge {
			continue
		}
		total += ruleAmount(r, subtotal)
	}
	return total
}

// effectiveMGDiscount re-applies multiplicative member-grade stacking over
// afterRules, in rule order, skipping skipped rules, and returns the total
// amount shaved off (never negative).
func effectiveMGDiscount(item *CartItem, afterRules float64) float64 {
	if len(item.AppliedMGRules) == 0 {
		return 0
	}
	running := afterRules
	for _, r := range item.AppliedMGRules {
		if r.Skipped {
			continue
		}
		switch r.AdjustmentType {
		case AdjustmentPercentage:
			running *= 1 - r.AdjustmentValue/100
		default:
			running = math.Max(running-r.AdjustmentValue, 0)
		}
	}
	return math.Max(afterRules-running, 0)
}

// CalculateUnitPrice computes the final per-unit price for a single item:
// base_price*(1-manual%) - rule_discount + rule_surcharge - mg_discount,
// clamped to >= 0 and rounded to cents. Comped items are always free.
func CalculateUnitPrice(item *CartItem) float64 {
	if item.IsComped {
		return 0
	}
	base := baseWithOptions(item)
	manual := manualDiscount(item, base)
	afterManual := base - manual
	ruleDiscount := effectiveRuleDiscount(item, afterManual)
	ruleSurcharge := effectiveRuleSurcharge(item, base)
	afterRules := base - manual - ruleDiscount + ruleSurcharge
	mgDiscount := effectiveMGDiscount(item, afterRules)
	unitPrice := afterRules - mgDiscount
	return roundCents(math.Max(unitPrice, 0))
}

// CalculateItemTotal is CalculateUnitPrice(item) * item.Quantity, rounded.
func CalculateItemTotal(item *CartItem) float64 {
	return roundCents(CalculateUnitPrice(item) * float64(item.Quantity))
}

// RecalculateTotals is the master order-totals recompute. It mutates snap
// and every item in snap.Items in place, matching the reference
// implementation's "always recompute, never trust cached totals" design:
// every mutating order command calls this exactly once after applying its
// own changes.
func RecalculateTotals(snap *OrderSnapshot) {
	oldTotal := snap.Total

	var originalTotal, subtotal, itemDiscountTotal, itemSurchargeTotal float64
	var itemMGDiscountTotal, compTotal, totalTax float64

	for _, item := range snap.Items {
		quantity := float64(item.Quantity)

		paidQty := snap.PaidItemQuantities[item.InstanceID]
		item.UnpaidQuantity = item.Quantity - paidQty
		if item.UnpaidQuantity < 0 {
			item.UnpaidQuantity = 0
		}

		base := baseWithOptions(item)
		originalTotal += base * quantity

		manual := manualDiscount(item, base)
		afterManual := base - manual
		ruleDiscount := effectiveRuleDiscount(item, afterManual)
		if !item.IsComped {
			itemDiscountTotal += (manual + ruleDiscount) * quantity
		}

		ruleSurcharge := effectiveRuleSurcharge(item, base)
		if !item.IsComped {
			itemSurchargeTotal += ruleSurcharge * quantity
		}

		afterRules := base - manual - ruleDiscount + ruleSurcharge
		mgDiscount := effectiveMGDiscount(item, afterRules)
		item.MGDiscountAmount = roundCents(mgDiscount)
		if !item.IsComped {
			itemMGDiscountTotal += mgDiscount * quantity
		}

		syncMGRuleAmounts(item, afterRules)
		syncItemRuleAmounts(item, afterManual, base)

		unitPrice := CalculateUnitPrice(item)
		item.UnitPrice = unitPrice
		item.Price = unitPrice

		itemTotal := roundCents(unitPrice * quantity)
		item.LineTotal = itemTotal

		itemTax := 0.0
		if item.TaxRate > 0 {
			itemTax = itemTotal * item.TaxRate / (100 + item.TaxRate)
		}
		item.Tax = roundCents(itemTax)
		totalTax += itemTax

		if item.IsComped {
			compBase := item.Price
			if item.OriginalPrice > 0 {
				compBase = item.OriginalPrice
			}
			compWithOptions := math.Max(compBase+optionsModifier(item.SelectedOptions), 0)
			compTotal += compWithOptions * quantity
		}

		subtotal += itemTotal
	}

	orderManualDiscount := 0.0
	if snap.OrderManualDiscountFixed != nil {
		orderManualDiscount += *snap.OrderManualDiscountFixed
	}
	if snap.OrderManualDiscountPercent != nil {
		orderManualDiscount += subtotal * *snap.OrderManualDiscountPercent / 100
	}

	orderManualSurcharge := 0.0
	if snap.OrderManualSurchargeFixed != nil {
		orderManualSurcharge += *snap.OrderManualSurchargeFixed
	}
	if snap.OrderManualSurchargePercent != nil {
		orderManualSurcharge += subtotal * *snap.OrderManualSurchargePercent / 100
	}

	effOrderRuleDiscount := effectiveOrderRuleDiscount(snap, subtotal)
	effOrderRuleSurcharge := effectiveOrderRuleSurcharge(snap, subtotal)
	orderDiscount := effOrderRuleDiscount + orderManualDiscount
	orderSurcharge := effOrderRuleSurcharge + orderManualSurcharge

	for i := range snap.OrderAppliedRules {
		r := &snap.OrderAppliedRules[i]
		if r.Skipped {
			continue
		}
		r.CalculatedAmount = ruleAmount(*r, subtotal)
	}

	totalDiscount := itemDiscountTotal + orderDiscount
	totalSurcharge := itemSurchargeTotal + orderSurcharge

	total := math.Max(subtotal-orderDiscount+orderSurcharge, 0)
	remaining := math.Max(total-snap.PaidAmount, 0)

	snap.OriginalTotal = roundCents(math.Max(originalTotal, 0))
	snap.Subtotal = roundCents(math.Max(subtotal, 0))
	snap.TotalDiscount = roundCents(totalDiscount)
	snap.TotalSurcharge = roundCents(totalSurcharge)
	snap.Tax = roundCents(totalTax)
	snap.Discount = roundCents(orderDiscount)
	snap.CompTotalAmount = roundCents(compTotal)
	snap.OrderManualDiscountAmount = roundCents(orderManualDiscount)
	snap.OrderManualSurchargeAmount = roundCents(orderManualSurcharge)
	snap.OrderRuleDiscountAmount = roundCents(effOrderRuleDiscount)
	snap.OrderRuleSurchargeAmount = roundCents(effOrderRuleSurcharge)
	snap.MGDiscountAmount = roundCents(itemMGDiscountTotal)
	snap.Total = roundCents(total)
	snap.RemainingAmount = roundCents(remaining)

	if snap.IsPrePayment && !MoneyEqual(snap.Total, oldTotal) {
		snap.IsPrePayment = false
	}
}

func syncMGRuleAmounts(item *CartItem, afterRules float64) {
	running := afterRules
	for i := range item.AppliedMGRules {
		r := &item.AppliedMGRules[i]
		if r.Skipped {
			continue
		}
		before := running
		switch r.AdjustmentType {
		case AdjustmentPercentage:
			running *= 1 - r.AdjustmentValue/100
		default:
			running = math.Max(running-r.AdjustmentValue, 0)
		}
		r.CalculatedAmount = roundCents(before - running)
	}
}

func syncItemRuleAmounts(item *CartItem, afterManual, base float64) {
	for i := range item.AppliedRules {
		r := &item.AppliedRules[i]
		if r.Skipped {
			continue
		}
		basis := afterManual
		if r.RuleType == RuleSurcharge {
			basis = base
		}
		r.CalculatedAmount = ruleAmount(*r, basis)
	}
}

// SumPayments sums the amounts of all non-cancelled payments.
func SumPayments(amounts []float64, cancelled []bool) float64 {
	total := 0.0
	for i, amt := range amounts {
		if i < len(cancelled) && cancelled[i] {
			continue
		}
		total += amt
	}
	return roundCents(total)
}

// IsPaymentSufficient reports whether paid covers required within Tolerance.
func IsPaymentSufficient(paid, required float64) bool {
	return paid >= required-Tolerance
}

// MoneyEqual reports whether a and b are equal within Tolerance.
func MoneyEqual(a, b float64) bool {
	return math.Abs(a-b) < Tolerance
}

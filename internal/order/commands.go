package order

import "time"

// Metadata carries the operator/command identity common to every command,
// threaded into every emitted event's OperatorID/OperatorName/CommandID.
type Metadata struct {
	CommandID       string
	OperatorID      int64
	OperatorName    string
	Timestamp       time.Time
	ClientTimestamp *time.Time
}

// Command is the closed set of order-mutating operations the engine
// accepts. Each concrete type below implements it as a marker; Engine.Execute
// type-switches on the concrete type to dispatch to its handler.
type Command interface {
	commandType() string
}

type OpenTable struct {
	OrderID    string
	TenantID   string
	TableID    string
	ZoneID     string
	GuestCount int
	IsRetail   bool
}

func (OpenTable) commandType() string { return "OpenTable" }

type AddItems struct {
	OrderID string
	Items   []CartItemInput
}

func (AddItems) commandType() string { return "AddItems" }

type ItemChanges struct {
	Price                 *float64
	Quantity              *int
	ManualDiscountPercent *float64
	SelectedOptions       []SelectedOption
	Note                  *string
}

type ModifyItem struct {
	OrderID    string
	InstanceID string
	Changes    ItemChanges
}

func (ModifyItem) commandType() string { return "ModifyItem" }

type RemoveItem struct {
	OrderID    string
	InstanceID string
	Quantity   int
}

func (RemoveItem) commandType() string { return "RemoveItem" }

type AddPayment struct {
	OrderID  string
	Method   string
	Amount   float64
	Tendered *float64
}

func (AddPayment) commandType() string { return "AddPayment" }

type CancelPayment struct {
	OrderID   string
	PaymentID string
}

func (CancelPayment) commandType() string { return "CancelPayment" }

type SplitItem struct {
	InstanceID string
	Quantity   int
}

type SplitByItems struct {
	OrderID     string
	NewOrderID  string
	SplitItems  []SplitItem
}

func (SplitByItems) commandType() string { return "SplitByItems" }

type SplitByAmount struct {
	OrderID      string
	NewOrderID   string
	SplitAmount  float64
}

func (SplitByAmount) commandType() string { return "SplitByAmount" }

type StartAaSplit struct {
	OrderID     string
	TotalShares int
}

func (StartAaSplit) commandType() string { return "StartAaSplit" }

type PayAaSplit struct {
	OrderID  string
	Shares   int
	Method   string
	Amount   float64
}

func (PayAaSplit) commandType() string { return "PayAaSplit" }

type MoveOrder struct {
	OrderID   string
	NewTable  string
	NewZoneID string
}

func (MoveOrder) commandType() string { return "MoveOrder" }

type MergeOrders struct {
	SourceOrderID string
	TargetOrderID string
}

func (MergeOrders) commandType() string { return "MergeOrders" }

type UpdateOrderInfo struct {
	OrderID    string
	GuestCount *int
	Note       *string
}

func (UpdateOrderInfo) commandType() string { return "UpdateOrderInfo" }

type ToggleRuleSkip struct {
	OrderID    string
	InstanceID string // empty for an order-level rule
	RuleID     string
	Skipped    bool
}

func (ToggleRuleSkip) commandType() string { return "ToggleRuleSkip" }

type ApplyOrderDiscount struct {
	OrderID string
	Percent *float64
	Fixed   *float64
}

func (ApplyOrderDiscount) commandType() string { return "ApplyOrderDiscount" }

type ApplyOrderSurcharge struct {
	OrderID string
	Percent *float64
	Fixed   *float64
}

func (ApplyOrderSurcharge) commandType() string { return "ApplyOrderSurcharge" }

type CompItem struct {
	OrderID        string
	InstanceID     string
	Quantity       int
	Reason         string
	AuthorizerID   int64
	AuthorizerName string
}

func (CompItem) commandType() string { return "CompItem" }

type UncompItem struct {
	OrderID    string
	InstanceID string
}

func (UncompItem) commandType() string { return "UncompItem" }

type AddOrderNote struct {
	OrderID string
	Note    string
}

func (AddOrderNote) commandType() string { return "AddOrderNote" }

type LinkMember struct {
	OrderID  string
	MemberID string
}

func (LinkMember) commandType() string { return "LinkMember" }

type UnlinkMember struct {
	OrderID string
}

func (UnlinkMember) commandType() string { return "UnlinkMember" }

type RedeemStamp struct {
	OrderID  string
	StampID  string
}

func (RedeemStamp) commandType() string { return "RedeemStamp" }

type CompleteOrder struct {
	OrderID string
}

func (CompleteOrder) commandType() string { return "CompleteOrder" }

type VoidOrder struct {
	OrderID string
	Reason  string
}

func (VoidOrder) commandType() string { return "VoidOrder" }

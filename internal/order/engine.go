package order

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Storage is the persistence contract the order engine depends on; the
// embedded KV implementation lives in internal/storage and satisfies this
// interface without the engine importing it directly (keeps the
// dependency order leaves-first: storage engine sits below order reducers).
type Storage interface {
	LoadSnapshot(orderID string) (*OrderSnapshot, error)
	NextSequence(n int) (first uint64, err error)
	CommitBatch(batch Batch) error
}

// Batch is the atomic unit of work a command handler produces: one or more
// events plus the resulting snapshot(s) they were applied to. Storage
// commits events, snapshots, and the sequence bump together or not at all;
// on failure no event reaches a subscriber.
type Batch struct {
	Events    []Event
	Snapshots map[string]*OrderSnapshot
}

// Clock is injected so tests can control "now" deterministically, matching
// the teacher's WithClock dependency-injection pattern used throughout its
// credential-rotation code.
type Clock func() time.Time

// Engine is the single writer per aggregate: it validates a command against
// the current snapshot, allocates sequence numbers, applies the resulting
// events through the deterministic reducers, and commits the batch
// atomically via Storage.
type Engine struct {
	storage Storage
	clock   Clock
	rules   *RuleCache
	ruleSrc RuleProvider

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewEngine wires an Engine against its storage and rule-source
// collaborators. clock defaults to time.Now when nil.
func NewEngine(storage Storage, ruleSrc RuleProvider, clock Clock) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		storage: storage,
		clock:   clock,
		rules:   NewRuleCache(),
		ruleSrc: ruleSrc,
		locks:   make(map[string]*sync.Mutex),
	}
}

// GetSnapshot returns an order's current persisted state for read paths
// (REST lookups, kitchen-ticket rendering) that don't go through Execute.
// It takes the same per-order lock as a write so a read never observes a
// snapshot mid-commit.
func (e *Engine) GetSnapshot(orderID string) (*OrderSnapshot, error) {
	lock := e.lockFor(orderID)
	lock.Lock()
	defer lock.Unlock()
	return e.loadActive(orderID)
}

func (e *Engine) lockFor(orderID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	m, ok := e.locks[orderID]
	if !ok {
		m = &sync.Mutex{}
		e.locks[orderID] = m
	}
	return m
}

// Execute is the engine's entry point: it enforces single-writer-per-
// aggregate ordering, dispatches to the command's handler, applies the
// returned events to produce the new snapshot(s), reseals checksums, and
// commits. It returns the events that were committed (empty on error —
// nothing is exposed to subscribers unless the whole batch lands).
func (e *Engine) Execute(cmd Command, meta Metadata) ([]Event, error) {
	orderID := primaryOrderID(cmd)
	lock := e.lockFor(orderID)
	lock.Lock()
	defer lock.Unlock()

	if meta.CommandID == "" {
		meta.CommandID = uuid.NewString()
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = e.clock()
	}

	events, snapshots, err := e.dispatch(cmd, meta)
	if err != nil {
		return nil, err
	}

	for _, snap := range snapshots {
		snap.RecalculateTotals()
		snap.UpdatedAt = meta.Timestamp
		if err := snap.SealChecksum(); err != nil {
			return nil, wrapErr(KindStorageFatal, err, "seal checksum for order %s", snap.OrderID)
		}
	}

	batch := Batch{Events: events, Snapshots: snapshots}
	if err := e.storage.CommitBatch(batch); err != nil {
		return nil, wrapErr(KindStorageFatal, err, "commit batch for order %s", orderID)
	}
	return events, nil
}

func primaryOrderID(cmd Command) string {
	switch c := cmd.(type) {
	case OpenTable:
		return c.OrderID
	case AddItems:
		return c.OrderID
	case ModifyItem:
		return c.OrderID
	case RemoveItem:
		return c.OrderID
	case AddPayment:
		return c.OrderID
	case CancelPayment:
		return c.OrderID
	case SplitByItems:
		return c.OrderID
	case SplitByAmount:
		return c.OrderID
	case StartAaSplit:
		return c.OrderID
	case PayAaSplit:
		return c.OrderID
	case MoveOrder:
		return c.OrderID
	case MergeOrders:
		return c.SourceOrderID
	case UpdateOrderInfo:
		return c.OrderID
	case ToggleRuleSkip:
		return c.OrderID
	case ApplyOrderDiscount:
		return c.OrderID
	case ApplyOrderSurcharge:
		return c.OrderID
	case CompItem:
		return c.OrderID
	case UncompItem:
		return c.OrderID
	case AddOrderNote:
		return c.OrderID
	case LinkMember:
		return c.OrderID
	case UnlinkMember:
		return c.OrderID
	case RedeemStamp:
		return c.OrderID
	case CompleteOrder:
		return c.OrderID
	case VoidOrder:
		return c.OrderID
	default:
		return ""
	}
}

func (e *Engine) dispatch(cmd Command, meta Metadata) ([]Event, map[string]*OrderSnapshot, error) {
	switch c := cmd.(type) {
	case OpenTable:
		return e.handleOpenTable(c, meta)
	case AddItems:
		return e.handleAddItems(c, meta)
	case ModifyItem:
		return e.handleModifyItem(c, meta)
	case RemoveItem:
		return e.handleRemoveItem(c, meta)
	case AddPayment:
		return e.handleAddPayment(c, meta)
	case CancelPayment:
		return e.handleCancelPayment(c, meta)
	case SplitByItems:
		return e.handleSplitByItems(c, meta)
	case SplitByAmount:
		return e.handleSplitByAmount(c, meta)
	case StartAaSplit:
		return e.handleStartAaSplit(c, meta)
	case PayAaSplit:
		return e.handlePayAaSplit(c, meta)
	case MoveOrder:
		return e.handleMoveOrder(c, meta)
	case MergeOrders:
		return e.handleMergeOrders(c, meta)
	case UpdateOrderInfo:
		return e.handleUpdateOrderInfo(c, meta)
	case ToggleRuleSkip:
		return e.handleToggleRuleSkip(c, meta)
	case ApplyOrderDiscount:
		return e.handleApplyOrderDiscount(c, meta)
	case ApplyOrderSurcharge:
		return e.handleApplyOrderSurcharge(c, meta)
	case CompItem:
		return e.handleCompItem(c, meta)
	case UncompItem:
		return e.handleUncompItem(c, meta)
	case AddOrderNote:
		return e.handleAddOrderNote(c, meta)
	case LinkMember:
		return e.handleLinkMember(c, meta)
	case UnlinkMember:
		return e.handleUnlinkMember(c, meta)
	case RedeemStamp:
		return e.handleRedeemStamp(c, meta)
	case CompleteOrder:
		return e.handleCompleteOrder(c, meta)
	case VoidOrder:
		return e.handleVoidOrder(c, meta)
	default:
		return nil, nil, newErr(KindInvalidInput, "unknown command type %T", cmd)
	}
}

// emit builds the event for a mutation, applies it to snap via the
// deterministic reducer in appliers.go, and returns it for the handler to
// append to its result. Using the same Apply path here as crash-recovery
// replay uses guarantees a handler can never drift from what a replayed
// event log would produce.
func (e *Engine) emit(snap *OrderSnapshot, seq uint64, eventType string, payload interface{}, meta Metadata) (Event, error) {
	ev := Event{
		Sequence:        seq,
		EventID:         uuid.NewString(),
		OrderID:         snap.OrderID,
		EventType:       eventType,
		Payload:         toPayload(payload),
		CommandID:       meta.CommandID,
		OperatorID:      meta.OperatorID,
		OperatorName:    meta.OperatorName,
		Timestamp:       meta.Timestamp,
		ClientTimestamp: meta.ClientTimestamp,
	}
	if err := Apply(snap, ev); err != nil {
		return Event{}, wrapErr(KindStorageFatal, err, "apply event %s", eventType)
	}
	return ev, nil
}

func (e *Engine) nextSeq(n int) ([]uint64, error) {
	first, err := e.storage.NextSequence(n)
	if err != nil {
		return nil, wrapErr(KindStorageFatal, err, "allocate %d sequence numbers", n)
	}
	seqs := make([]uint64, n)
	for i := range seqs {
		seqs[i] = first + uint64(i)
	}
	return seqs, nil
}

func (e *Engine) loadActive(orderID string) (*OrderSnapshot, error) {
	snap, err := e.storage.LoadSnapshot(orderID)
	if err != nil {
		return nil, wrapErr(KindNotFound, err, "load order %s", orderID)
	}
	return snap, nil
}

func requireActive(snap *OrderSnapshot) error {
	switch snap.Status {
	case StatusActive:
		return nil
	case StatusCompleted:
		return newErr(KindPreconditionFailed, "order %s already completed", snap.OrderID)
	case StatusVoid:
		return newErr(KindPreconditionFailed, "order %s already voided", snap.OrderID)
	default:
		return newErr(KindPreconditionFailed, "order %s has status %s", snap.OrderID, snap.Status)
	}
}


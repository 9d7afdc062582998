// Package storage is the embedded KV implementation of the order engine's
// persistence contract: one hot key-value store per edge server, durable
// across process restarts, with atomic multi-key commits, an append-only
// event log kept alongside snapshots, and a startup checksum scan of the
// stored snapshots.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/tallyforge/edge/internal/order"
)

const (
	prefixSnapshot = "snap/"
	prefixEvent    = "evt/"
	prefixCatalog  = "cat/"
	keySequence    = "meta/sequence"
)

// Store wraps a CometBFT dbm.DB behind the narrow interface order.Engine
// depends on, the same wrapping shape as certenIO-certen-validator's
// KVAdapter around ledger.KV — a thin adapter, not a query layer.
type Store struct {
	db dbm.DB

	seqMu sync.Mutex
	seq   uint64
}

// Open opens (or creates) a GoLevelDB-backed store rooted at dir/name.
func Open(name, dir string) (*Store, error) {
	db, err := dbm.NewGoLevelDB(name, dir)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s/%s: %w", dir, name, err)
	}
	return newStore(db)
}

// OpenMemory returns an in-memory store, for tests that don't need
// durability across a restart.
func OpenMemory() (*Store, error) {
	return newStore(dbm.NewMemDB())
}

func newStore(db dbm.DB) (*Store, error) {
	s := &Store{db: db}
	raw, err := db.Get([]byte(keySequence))
	if err != nil {
		return nil, fmt.Errorf("storage: read sequence cursor: %w", err)
	}
	if len(raw) == 8 {
		s.seq = binary.BigEndian.Uint64(raw)
	}
	return s, nil
}

func snapshotKey(orderID string) []byte {
	return []byte(prefixSnapshot + orderID)
}

func eventKey(seq uint64) []byte {
	return []byte(prefixEvent + fmt.Sprintf("%020d", seq))
}

// LoadSnapshot satisfies order.Storage.
func (s *Store) LoadSnapshot(orderID string) (*order.OrderSnapshot, error) {
	raw, err := s.db.Get(snapshotKey(orderID))
	if err != nil {
		return nil, fmt.Errorf("storage: get snapshot %s: %w", orderID, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("storage: order %s not found", orderID)
	}
	var snap order.OrderSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("storage: decode snapshot %s: %w", orderID, err)
	}
	return &snap, nil
}

// NextSequence satisfies order.Storage: it reserves n consecutive sequence
// numbers from the process-wide monotonic counter and persists the new
// cursor before returning, so a crash after reservation never hands out the
// same number twice.
func (s *Store) NextSequence(n int) (uint64, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	first := s.seq + 1
	next := s.seq + uint64(n)

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := s.db.SetSync([]byte(keySequence), buf); err != nil {
		return 0, fmt.Errorf("storage: persist sequence cursor: %w", err)
	}
	s.seq = next
	return first, nil
}

// CommitBatch satisfies order.Storage: every event and snapshot in the
// batch lands in a single dbm.Batch.WriteSync, so a crash mid-commit leaves
// the previous durable state intact rather than a half-applied mutation.
func (s *Store) CommitBatch(batch order.Batch) error {
	b := s.db.NewBatch()
	defer b.Close()

	for _, ev := range batch.Events {
		raw, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("storage: encode event %s: %w", ev.EventID, err)
		}
		if err := b.Set(eventKey(ev.Sequence), raw); err != nil {
			return fmt.Errorf("storage: stage event %d: %w", ev.Sequence, err)
		}
	}
	for orderID, snap := range batch.Snapshots {
		raw, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("storage: encode snapshot %s: %w", orderID, err)
		}
		if err := b.Set(snapshotKey(orderID), raw); err != nil {
			return fmt.Errorf("storage: stage snapshot %s: %w", orderID, err)
		}
	}
	if err := b.WriteSync(); err != nil {
		return fmt.Errorf("storage: write batch: %w", err)
	}
	return nil
}

// EventsSince returns every committed event with Sequence > after, in
// ascending order.
func (s *Store) EventsSince(after uint64) ([]order.Event, error) {
	itr, err := s.db.Iterator([]byte(eventKey(after+1)), dbm.PrefixEndBytes([]byte(prefixEvent)))
	if err != nil {
		return nil, fmt.Errorf("storage: iterate events: %w", err)
	}
	defer itr.Close()

	var events []order.Event
	for ; itr.Valid(); itr.Next() {
		var ev order.Event
		if err := json.Unmarshal(itr.Value(), &ev); err != nil {
			return nil, fmt.Errorf("storage: decode event at %s: %w", itr.Key(), err)
		}
		events = append(events, ev)
	}
	return events, itr.Error()
}

// ListActiveSnapshots returns every hot-store snapshot whose Status is
// Active, for the kitchen-order listing endpoint. Snapshots in a terminal
// status (completed/voided/moved/merged) stay in the hot store and are
// skipped here.
func (s *Store) ListActiveSnapshots() ([]*order.OrderSnapshot, error) {
	itr, err := s.db.Iterator([]byte(prefixSnapshot), dbm.PrefixEndBytes([]byte(prefixSnapshot)))
	if err != nil {
		return nil, fmt.Errorf("storage: iterate snapshots: %w", err)
	}
	defer itr.Close()

	var out []*order.OrderSnapshot
	for ; itr.Valid(); itr.Next() {
		var snap order.OrderSnapshot
		if err := json.Unmarshal(itr.Value(), &snap); err != nil {
			return nil, fmt.Errorf("storage: decode snapshot at %s: %w", itr.Key(), err)
		}
		if snap.Status == order.StatusActive {
			out = append(out, &snap)
		}
	}
	return out, itr.Error()
}

// ReplayCrashRecovery checks every stored order snapshot's checksum
// against the snapshot's own contents and returns how many it checked and
// the ids whose checksum does not match. It does not read the event log
// and does not rebuild snapshots from events. cmd/edge-server runs it at
// startup, right after opening the store.
func (s *Store) ReplayCrashRecovery() (checked int, mismatched []string, err error) {
	itr, rerr := s.db.Iterator([]byte(prefixSnapshot), dbm.PrefixEndBytes([]byte(prefixSnapshot)))
	if rerr != nil {
		return 0, nil, fmt.Errorf("storage: iterate snapshots: %w", rerr)
	}
	defer itr.Close()

	for ; itr.Valid(); itr.Next() {
		orderID := strings.TrimPrefix(string(itr.Key()), prefixSnapshot)
		var snap order.OrderSnapshot
		if uerr := json.Unmarshal(itr.Value(), &snap); uerr != nil {
			return checked, mismatched, fmt.Errorf("storage: decode snapshot %s: %w", orderID, uerr)
		}
		checked++
		ok, verr := snap.VerifyChecksum()
		if verr != nil {
			return checked, mismatched, fmt.Errorf("storage: verify checksum %s: %w", orderID, verr)
		}
		if !ok {
			mismatched = append(mismatched, orderID)
		}
	}
	return checked, mismatched, itr.Error()
}

func catalogKey(kind, id string) []byte {
	return []byte(prefixCatalog + kind + "/" + id)
}

// PutCatalogEntity upserts one catalog entity (a product, category, or
// price rule pushed from the cloud) under kind/id, JSON-encoding value.
// internal/edgesync is the only caller; the hot order store doubles as the
// catalog's local cache so a single embedded database backs both.
func (s *Store) PutCatalogEntity(kind, id string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("storage: encode catalog entity %s/%s: %w", kind, id, err)
	}
	if err := s.db.SetSync(catalogKey(kind, id), raw); err != nil {
		return fmt.Errorf("storage: put catalog entity %s/%s: %w", kind, id, err)
	}
	return nil
}

// GetCatalogEntity decodes the entity at kind/id into out, reporting false
// if it isn't present rather than an error.
func (s *Store) GetCatalogEntity(kind, id string, out interface{}) (bool, error) {
	raw, err := s.db.Get(catalogKey(kind, id))
	if err != nil {
		return false, fmt.Errorf("storage: get catalog entity %s/%s: %w", kind, id, err)
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("storage: decode catalog entity %s/%s: %w", kind, id, err)
	}
	return true, nil
}

// DeleteCatalogEntity removes kind/id. Deleting an entity that doesn't
// exist is not an error — catalog ops must be safely retriable.
func (s *Store) DeleteCatalogEntity(kind, id string) error {
	if err := s.db.DeleteSync(catalogKey(kind, id)); err != nil {
		return fmt.Errorf("storage: delete catalog entity %s/%s: %w", kind, id, err)
	}
	return nil
}

// ListCatalogEntities returns every raw JSON entity of the given kind,
// keyed by id, for building a catalog snapshot to serve over REST.
func (s *Store) ListCatalogEntities(kind string) (map[string]json.RawMessage, error) {
	prefix := prefixCatalog + kind + "/"
	itr, err := s.db.Iterator([]byte(prefix), dbm.PrefixEndBytes([]byte(prefix)))
	if err != nil {
		return nil, fmt.Errorf("storage: iterate catalog entities %s: %w", kind, err)
	}
	defer itr.Close()

	out := make(map[string]json.RawMessage)
	for ; itr.Valid(); itr.Next() {
		id := strings.TrimPrefix(string(itr.Key()), prefix)
		val := make(json.RawMessage, len(itr.Value()))
		copy(val, itr.Value())
		out[id] = val
	}
	return out, itr.Error()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

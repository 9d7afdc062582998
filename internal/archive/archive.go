// Package archive moves completed/voided orders out of the hot KV store
// into a durable, hash-chained archive, grounded on
// original_source/edge-server/src/orders/archive.rs: idempotency by
// receipt number, a serialized hash chain, bounded retry with backoff,
// and a bad-archive quarantine directory when every retry is exhausted.
package archive

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "modernc.org/sqlite"

	"github.com/tallyforge/edge/internal/order"
)

// Store is the durable archive: a local SQLite database (pure-Go driver,
// no cgo) holding one row per archived order plus its event log, linked
// into a hash chain so tampering with a past archive row is detectable.
type Store struct {
	db           *sql.DB
	quarantineDir string

	chainMu  sync.Mutex
	lastHash string
}

// Open creates/migrates the archive database at path and loads the
// current hash-chain tip.
func Open(path, quarantineDir string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{db: db, quarantineDir: quarantineDir, lastHash: "genesis"}
	if err := s.loadChainTip(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func migrate(db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS archived_orders (
		order_id TEXT PRIMARY KEY,
		receipt_number TEXT UNIQUE,
		tenant_id TEXT,
		status TEXT,
		snapshot_json TEXT,
		prev_hash TEXT,
		curr_hash TEXT,
		archived_at TEXT,
		replicated INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS archived_events (
		order_id TEXT,
		sequence INTEGER,
		event_json TEXT,
		PRIMARY KEY (order_id, sequence)
	);
	CREATE TABLE IF NOT EXISTS chain_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_hash TEXT
	);`
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("archive: migrate: %w", err)
	}
	return nil
}

func (s *Store) loadChainTip() error {
	var hash string
	err := s.db.QueryRow(`SELECT last_hash FROM chain_state WHERE id = 1`).Scan(&hash)
	switch {
	case err == sql.ErrNoRows:
		return nil
	case err != nil:
		return fmt.Errorf("archive: load chain tip: %w", err)
	}
	s.lastHash = hash
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// ArchivedOrder is one row pending or completed replication to the cloud.
type ArchivedOrder struct {
	OrderID       string
	ReceiptNumber string
	TenantID      string
	Status        string
	SnapshotJSON  string
	CurrHash      string
}

// PendingReplication returns archived orders not yet acknowledged by the
// cloud, oldest first, for internal/edgesync's push loop.
func (s *Store) PendingReplication(ctx context.Context, limit int) ([]ArchivedOrder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT order_id, receipt_number, tenant_id, status, snapshot_json, curr_hash
		 FROM archived_orders WHERE replicated = 0 ORDER BY archived_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: query pending replication: %w", err)
	}
	defer rows.Close()

	var out []ArchivedOrder
	for rows.Next() {
		var a ArchivedOrder
		if err := rows.Scan(&a.OrderID, &a.ReceiptNumber, &a.TenantID, &a.Status, &a.SnapshotJSON, &a.CurrHash); err != nil {
			return nil, fmt.Errorf("archive: scan pending replication row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetArchivedOrder loads one archived order's snapshot and full event log
// by order id, for rebuilding a kitchen ticket or label record once the
// hot-store copy has aged out. Returns (nil, nil, nil) if not found.
func (s *Store) GetArchivedOrder(ctx context.Context, orderID string) (*order.OrderSnapshot, []order.Event, error) {
	var snapJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot_json FROM archived_orders WHERE order_id = ?`, orderID).Scan(&snapJSON)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil, nil
	case err != nil:
		return nil, nil, fmt.Errorf("archive: load order %s: %w", orderID, err)
	}

	var snap order.OrderSnapshot
	if err := json.Unmarshal([]byte(snapJSON), &snap); err != nil {
		return nil, nil, fmt.Errorf("archive: decode order %s: %w", orderID, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT event_json FROM archived_events WHERE order_id = ? ORDER BY sequence ASC`, orderID)
	if err != nil {
		return nil, nil, fmt.Errorf("archive: load events for %s: %w", orderID, err)
	}
	defer rows.Close()

	var events []order.Event
	for rows.Next() {
		var evJSON string
		if err := rows.Scan(&evJSON); err != nil {
			return nil, nil, fmt.Errorf("archive: scan event for %s: %w", orderID, err)
		}
		var ev order.Event
		if err := json.Unmarshal([]byte(evJSON), &ev); err != nil {
			return nil, nil, fmt.Errorf("archive: decode event for %s: %w", orderID, err)
		}
		events = append(events, ev)
	}
	return &snap, events, rows.Err()
}

// MarkReplicated records that the cloud acknowledged orderID, keyed by
// (edge_server_id, order_key) idempotency on the cloud side — this side
// just needs to stop re-offering it.
func (s *Store) MarkReplicated(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE archived_orders SET replicated = 1 WHERE order_id = ?`, orderID)
	if err != nil {
		return fmt.Errorf("archive: mark replicated %s: %w", orderID, err)
	}
	return nil
}

// Archive persists a terminal order snapshot and its full event log,
// retrying with exponential backoff (github.com/cenkalti/backoff/v4,
// 1s base delay, doubling) up to 3 attempts before quarantining the
// payload to disk for manual recovery, matching MAX_RETRY_ATTEMPTS in the
// original service.
func (s *Store) Archive(ctx context.Context, snap *order.OrderSnapshot, events []order.Event) error {
	if !snap.Status.Terminal() {
		return fmt.Errorf("archive: order %s has non-terminal status %s", snap.OrderID, snap.Status)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = time.Second
	expBackoff.Multiplier = 2
	expBackoff.RandomizationFactor = 0
	policy := backoff.WithMaxRetries(expBackoff, 2)
	attempt := 0
	var lastErr error
	err := backoff.Retry(func() error {
		attempt++
		err := s.archiveOnce(ctx, snap, events)
		if err != nil {
			lastErr = err
		}
		return err
	}, backoff.WithContext(policy, ctx))

	if err != nil {
		s.quarantine(snap, events, lastErr)
		return fmt.Errorf("archive: order %s failed after %d attempts: %w", snap.OrderID, attempt, lastErr)
	}
	return nil
}

func (s *Store) archiveOnce(ctx context.Context, snap *order.OrderSnapshot, events []order.Event) error {
	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM archived_orders WHERE receipt_number = ?`, snap.ReceiptNumber,
	).Scan(&exists); err != nil {
		return fmt.Errorf("archive: idempotency check: %w", err)
	}
	if exists > 0 {
		return nil
	}

	s.chainMu.Lock()
	defer s.chainMu.Unlock()

	prevHash := s.lastHash
	currHash := computeOrderHash(snap, prevHash, lastEventHash(events))

	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("archive: encode snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO archived_orders (order_id, receipt_number, tenant_id, status, snapshot_json, prev_hash, curr_hash, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.OrderID, snap.ReceiptNumber, snap.TenantID, string(snap.Status), string(snapJSON), prevHash, currHash, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("archive: insert order: %w", err)
	}

	for _, ev := range events {
		evJSON, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("archive: encode event %s: %w", ev.EventID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO archived_events (order_id, sequence, event_json) VALUES (?, ?, ?)`,
			snap.OrderID, ev.Sequence, string(evJSON)); err != nil {
			return fmt.Errorf("archive: insert event %d: %w", ev.Sequence, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chain_state (id, last_hash) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET last_hash = excluded.last_hash`,
		currHash); err != nil {
		return fmt.Errorf("archive: update chain state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("archive: commit: %w", err)
	}
	s.lastHash = currHash
	return nil
}

func (s *Store) quarantine(snap *order.OrderSnapshot, events []order.Event, cause error) {
	if s.quarantineDir == "" {
		return
	}
	if err := os.MkdirAll(s.quarantineDir, 0o755); err != nil {
		return
	}
	payload := struct {
		Snapshot *order.OrderSnapshot `json:"snapshot"`
		Events   []order.Event        `json:"events"`
		Error    string                `json:"error"`
		At       string                `json:"at"`
	}{snap, events, cause.Error(), time.Now().UTC().Format(time.RFC3339)}

	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return
	}
	name := fmt.Sprintf("%s-%s.json", time.Now().UTC().Format("20060102150405"), snap.OrderID)
	_ = os.WriteFile(filepath.Join(s.quarantineDir, name), raw, 0o644)
}

func computeOrderHash(snap *order.OrderSnapshot, prevHash, lastEventHash string) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write([]byte(snap.OrderID))
	h.Write([]byte(snap.ReceiptNumber))
	h.Write([]byte(snap.Status))
	h.Write([]byte(lastEventHash))
	return hex.EncodeToString(h.Sum(nil))
}

func lastEventHash(events []order.Event) string {
	if len(events) == 0 {
		return "no_events"
	}
	return computeEventHash(events[len(events)-1])
}

func computeEventHash(ev order.Event) string {
	h := sha256.New()
	h.Write([]byte(ev.EventID))
	h.Write([]byte(ev.OrderID))
	fmt.Fprintf(h, "%d", ev.Sequence)
	h.Write([]byte(ev.EventType))
	payload, _ := json.Marshal(ev.Payload)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

package edgesync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tallyforge/edge/internal/archive"
)

// replicationBatchSize bounds how many archived orders one push cycle
// offers the cloud, so a backlog after a long offline stretch doesn't try
// to serialize thousands of rows into a single request.
const replicationBatchSize = 50

// edgeOrderKey is the idempotency key the cloud applies strict
// deduplication against: (edge_server_id, order_key).
type edgeOrderKey struct {
	EdgeServerID string `json:"edge_server_id"`
	OrderID      string `json:"order_id"`
}

type replicationPayload struct {
	Key          edgeOrderKey `json:"key"`
	TenantID     string       `json:"tenant_id"`
	Status       string       `json:"status"`
	SnapshotJSON string       `json:"snapshot_json"`
	ChainHash    string       `json:"chain_hash"`
}

// Replicator pushes archived orders to the cloud's ingest endpoint,
// asynchronously and independently of the edge's own hot-path traffic —
// a slow or unreachable cloud never blocks order processing.
type Replicator struct {
	store        *archive.Store
	edgeServerID string
	cloudBaseURL string
	httpClient   *http.Client
}

func NewReplicator(store *archive.Store, edgeServerID, cloudBaseURL string) *Replicator {
	return &Replicator{
		store:        store,
		edgeServerID: edgeServerID,
		cloudBaseURL: cloudBaseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// PushPending offers up to replicationBatchSize unreplicated archived
// orders, oldest first, to the cloud and marks each one the cloud
// acknowledges. It returns the count pushed
// successfully; a failure partway through stops the batch but leaves
// already-acknowledged rows marked, so the next call resumes cleanly.
func (r *Replicator) PushPending(ctx context.Context) (int, error) {
	pending, err := r.store.PendingReplication(ctx, replicationBatchSize)
	if err != nil {
		return 0, err
	}

	pushed := 0
	for _, row := range pending {
		payload := replicationPayload{
			Key:          edgeOrderKey{EdgeServerID: r.edgeServerID, OrderID: row.OrderID},
			TenantID:     row.TenantID,
			Status:       row.Status,
			SnapshotJSON: row.SnapshotJSON,
			ChainHash:    row.CurrHash,
		}
		if err := r.pushOne(ctx, payload); err != nil {
			return pushed, fmt.Errorf("edgesync: push order %s: %w", row.OrderID, err)
		}
		if err := r.store.MarkReplicated(ctx, row.OrderID); err != nil {
			return pushed, err
		}
		pushed++
	}
	return pushed, nil
}

func (r *Replicator) pushOne(ctx context.Context, payload replicationPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cloudBaseURL+"/api/orders/archive", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("cloud responded with status %d", resp.StatusCode)
	}
	return nil
}

// Package daemon gates the edge server's listener on activation: an edge
// never opens its mTLS port until it has a credential and that credential's
// self-check passes. Grounded on
// original_source/edge-server/src/services/activation.rs's
// wait_for_activation loop, adapted from tokio::sync::Notify +
// CancellationToken to Go channels and context.Context.
package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tallyforge/edge/internal/activation"
)

// Gate blocks server startup until the edge is activated and its
// self-check passes, then keeps re-checking on an interval so a credential
// revoked or corrupted mid-shift takes the edge back out of service.
type Gate struct {
	svc      *activation.Service
	interval time.Duration
	log      *slog.Logger

	mu     sync.Mutex
	notify chan struct{}
}

// NewGate wraps svc with a periodic self-check every interval once
// activated. interval <= 0 disables the periodic re-check (WaitForActivation
// still performs the one-time startup check).
func NewGate(svc *activation.Service, interval time.Duration, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{svc: svc, interval: interval, log: log, notify: make(chan struct{}, 1)}
}

// NotifyActivated wakes a blocked WaitForActivation call after a successful
// Activate(), the Go analogue of the original's notify.notify_one().
func (g *Gate) NotifyActivated() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case g.notify <- struct{}{}:
	default:
	}
}

// WaitForActivation blocks until the edge is activated and self-check
// passes, or ctx is cancelled. A failed self-check wipes the credential
// (via activation.Service.CheckActivation) and the loop waits again rather
// than returning the failure, mirroring the original's "clean up, keep
// waiting" behavior — a corrupted credential must never stall startup
// forever, it must fall back to asking for reactivation.
func (g *Gate) WaitForActivation(ctx context.Context) error {
	for {
		if g.svc.State() != activation.StateActive {
			g.log.InfoContext(ctx, "edge not activated, waiting for activation signal")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-g.notify:
				g.log.InfoContext(ctx, "activation signal received")
			}
		}

		g.log.InfoContext(ctx, "performing self-check")
		if err := g.svc.CheckActivation(ctx, time.Now()); err != nil {
			g.log.ErrorContext(ctx, "self-check failed, entering unbound state", "error", err)
			continue
		}

		g.log.InfoContext(ctx, "self-check passed")
		return nil
	}
}

// Run performs the startup gate and then, while ctx is live, re-runs
// self-check every interval. onUnbound is invoked (non-blocking, from this
// goroutine) whenever a periodic re-check fails and drops the edge back to
// Unbound, so the caller can close in-flight client connections rather than
// serving them against a revoked credential.
func (g *Gate) Run(ctx context.Context, onUnbound func(error)) error {
	if err := g.WaitForActivation(ctx); err != nil {
		return err
	}
	if g.interval <= 0 {
		return nil
	}

	go func() {
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := g.svc.CheckActivation(ctx, time.Now()); err != nil {
					g.log.ErrorContext(ctx, "periodic self-check failed", "error", err)
					if onUnbound != nil {
						onUnbound(err)
					}
				}
			}
		}
	}()
	return nil
}

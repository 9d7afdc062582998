package restapi

import (
	"context"
	"log/slog"
)

// Printer is the edge's abstraction over physical kitchen/label printer
// hardware. Printer drivers are out of scope for this system — only the
// interface a reprint request drives is specified — so NoopPrinter is the
// only implementation this repo ships, logging what would have printed.
type Printer interface {
	Print(ctx context.Context, jobType, orderID string, payload []byte) error
}

// NoopPrinter logs print jobs instead of sending them to hardware.
type NoopPrinter struct {
	Log *slog.Logger
}

func (p NoopPrinter) Print(ctx context.Context, jobType, orderID string, payload []byte) error {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "print job", "job_type", jobType, "order_id", orderID, "bytes", len(payload))
	return nil
}

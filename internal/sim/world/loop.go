package world

import (
	"context"
	"time"
)

// Run owns the simulation until the context ends or Stop is called. All
// state mutation happens on this goroutine; envelopes received between
// ticker fires are buffered and applied in arrival order at the next tick.
func (w *World) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(w.cfg.TickRateHz))
	defer ticker.Stop()

	var pending []IntentEnvelope
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-w.stop:
			return nil

		case env := <-w.inbox:
			pending = append(pending, env)

		case respCh := <-w.snapshotReq:
			// Served between steps, so the export is tick-consistent.
			respCh <- w.ExportSnapshot()

		case <-ticker.C:
			pending = w.drainInbox(pending)
			w.StepOnce(pending)
			pending = pending[:0]
		}
	}
}

// Stop ends Run after the current select arm completes. Safe to call once.
func (w *World) Stop() {
	close(w.stop)
}

package world

import (
	"time"

	"go.uber.org/zap"

	"github.com/uruley/Nexus/internal/protocol"
)

// StepOnce advances the world by exactly one tick: apply the given
// envelopes in order, run physics, publish the new snapshot, journal the
// frame. The live loop, replay, and tests all funnel through here, which is
// what keeps the three modes byte-identical.
func (w *World) StepOnce(envs []IntentEnvelope) (uint64, Checksum) {
	stepStart := time.Now()

	var recorded []protocol.Intent
	if len(envs) > 0 {
		recorded = make([]protocol.Intent, 0, len(envs))
	}
	for _, env := range envs {
		// Record before applying so rejected intents (unknown target,
		// entity cap) replay as the same no-ops.
		recorded = append(recorded, env.Intent)
		w.applyIntent(env)
	}

	w.stepPhysics()

	w.tick++
	snap := w.buildSnapshot(w.tick)
	w.engine.publish(snap)

	if w.frameLogger != nil {
		frame := Frame{Tick: w.tick, Intents: recorded, Checksum: snap.Checksum}
		if err := w.frameLogger.WriteFrame(frame); err != nil {
			w.frameLogErrors++
			w.log.Error("frame logger write failed",
				zap.Uint64("tick", w.tick), zap.Error(err))
		}
	}

	if w.snapshotSink != nil && w.cfg.SnapshotEveryTicks > 0 && w.tick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
		select {
		case w.snapshotSink <- w.ExportSnapshot():
		default:
			w.log.Warn("snapshot sink full, skipping archive", zap.Uint64("tick", w.tick))
		}
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	w.storeMetrics(stepMS)
	return w.tick, snap.Checksum
}

// StepTick drains whatever is queued right now and steps once. Test and
// tooling convenience; the live loop batches between ticker fires itself.
func (w *World) StepTick() (uint64, Checksum) {
	return w.StepOnce(w.drainInbox(nil))
}

func (w *World) drainInbox(pending []IntentEnvelope) []IntentEnvelope {
	for {
		select {
		case env := <-w.inbox:
			pending = append(pending, env)
		default:
			return pending
		}
	}
}

func (w *World) buildSnapshot(tick uint64) *Snapshot {
	entities := make(map[EntityID]Entity, w.store.len())
	w.store.iterate(func(id EntityID, e Entity) {
		entities[id] = e
	})
	return &Snapshot{
		Tick:     tick,
		Checksum: checksumEntities(entities),
		Entities: entities,
	}
}

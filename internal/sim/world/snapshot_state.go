package world

import (
	"context"
	"fmt"
	"sort"

	"github.com/uruley/Nexus/internal/persistence/snapshot"
)

// ExportSnapshot captures full world state in archive form. Loop goroutine
// only; concurrent callers go through RequestSnapshot.
func (w *World) ExportSnapshot() snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: 1,
			RunID:   w.cfg.RunID,
			Tick:    w.tick,
		},
		TickRate: w.cfg.TickRateHz,
		GravityY: w.cfg.GravityY,
		FloorY:   w.cfg.FloorY,
		NextID:   uint64(w.store.nextID),
		Checksum: w.engine.Latest().Checksum.String(),
	}
	snap.Entities = make([]snapshot.EntityV1, 0, w.store.len())
	w.store.iterate(func(id EntityID, e Entity) {
		snap.Entities = append(snap.Entities, snapshot.EntityV1{
			ID:   uint64(id),
			Kind: string(e.Kind),
			Pos:  e.Pos.Array(),
			Vel:  e.Vel.Array(),
			Half: e.Half.Array(),
			Tint: e.Tint.Array(),
		})
	})
	sort.Slice(snap.Entities, func(i, j int) bool { return snap.Entities[i].ID < snap.Entities[j].ID })
	return snap
}

// RequestSnapshot asks the running loop for a tick-consistent export. Only
// valid while Run is active; the context bounds the wait.
func (w *World) RequestSnapshot(ctx context.Context) (snapshot.SnapshotV1, error) {
	respCh := make(chan snapshot.SnapshotV1, 1)
	select {
	case w.snapshotReq <- respCh:
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	}
	select {
	case snap := <-respCh:
		return snap, nil
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	}
}

// ImportSnapshot seeds a freshly constructed world from an archive. Must be
// called before Run; resuming over live state is not supported.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if w.tick != 0 || w.store.len() != 0 {
		return fmt.Errorf("world: import requires a fresh world, have tick %d with %d entities",
			w.tick, w.store.len())
	}
	if snap.TickRate != 0 && snap.TickRate != w.cfg.TickRateHz {
		return fmt.Errorf("world: snapshot recorded at %d Hz, world configured for %d Hz",
			snap.TickRate, w.cfg.TickRateHz)
	}

	nextID := snap.NextID
	for _, e := range snap.Entities {
		if e.ID == 0 {
			return fmt.Errorf("world: snapshot entity with zero id")
		}
		switch Kind(e.Kind) {
		case KindDynamic, KindKinematic, KindStatic:
		default:
			return fmt.Errorf("world: snapshot entity %d has unknown kind %q", e.ID, e.Kind)
		}
		if _, exists := w.store.get(EntityID(e.ID)); exists {
			return fmt.Errorf("world: snapshot repeats entity id %d", e.ID)
		}
		w.store.entities[EntityID(e.ID)] = Entity{
			ID:   EntityID(e.ID),
			Kind: Kind(e.Kind),
			Pos:  vec3(e.Pos),
			Vel:  vec3(e.Vel),
			Half: vec3(e.Half),
			Tint: vec3(e.Tint),
		}
		if e.ID >= nextID {
			nextID = e.ID + 1
		}
	}
	if nextID == 0 {
		nextID = 1
	}
	w.store.nextID = EntityID(nextID)
	w.tick = snap.Header.Tick

	rebuilt := w.buildSnapshot(w.tick)
	if snap.Checksum != "" && rebuilt.Checksum.String() != snap.Checksum {
		return fmt.Errorf("world: snapshot checksum mismatch: rebuilt=%s recorded=%s",
			rebuilt.Checksum, snap.Checksum)
	}
	w.engine.publish(rebuilt)
	w.storeMetrics(0)
	return nil
}

package world

import "testing"

func snapOf(tick uint64, ents ...Entity) *Snapshot {
	m := make(map[EntityID]Entity, len(ents))
	for _, e := range ents {
		m[e.ID] = e
	}
	return &Snapshot{Tick: tick, Checksum: checksumEntities(m), Entities: m}
}

func TestEngineDiffSinceHit(t *testing.T) {
	e := newEngine(8)

	a := testEntity(1)
	moved := a
	moved.Pos.X = 5
	b := testEntity(2)

	s1 := snapOf(1, a)
	s2 := snapOf(2, moved, b)
	e.publish(s1)
	e.publish(s2)

	if got := e.Latest().Tick; got != 2 {
		t.Fatalf("Latest().Tick=%d want=2", got)
	}

	d, ok := e.DiffSince(s1.Checksum)
	if !ok {
		t.Fatalf("DiffSince missed a snapshot still in history")
	}
	if d.From != s1.Checksum || d.To != s2.Checksum || d.ToTick != 2 {
		t.Fatalf("diff header from=%s to=%s tick=%d", d.From, d.To, d.ToTick)
	}
	if len(d.Added) != 1 || d.Added[0].ID != 2 {
		t.Fatalf("Added=%v want entity 2", d.Added)
	}
	if len(d.Changed) != 1 || d.Changed[0].ID != 1 || d.Changed[0].Pos.X != 5 {
		t.Fatalf("Changed=%v want entity 1 at x=5", d.Changed)
	}
	if len(d.Removed) != 0 {
		t.Fatalf("Removed=%v want empty", d.Removed)
	}

	if st := e.Stats(); st.DiffsServed != 1 {
		t.Fatalf("DiffsServed=%d want=1", st.DiffsServed)
	}
}

func TestEngineDiffSinceCurrentIsEmpty(t *testing.T) {
	e := newEngine(8)
	s := snapOf(3, testEntity(1))
	e.publish(s)

	d, ok := e.DiffSince(s.Checksum)
	if !ok {
		t.Fatalf("DiffSince(latest) missed")
	}
	if len(d.Added)+len(d.Removed)+len(d.Changed) != 0 {
		t.Fatalf("diff not empty: %+v", d)
	}
	if d.From != d.To {
		t.Fatalf("From=%s To=%s want equal", d.From, d.To)
	}
}

func TestEngineDiffSinceUnknownForcesResync(t *testing.T) {
	e := newEngine(8)
	e.publish(snapOf(1, testEntity(1)))

	if _, ok := e.DiffSince(Checksum(0x1234)); ok {
		t.Fatalf("DiffSince matched a checksum never published")
	}
	if st := e.Stats(); st.ResyncTotal != 1 {
		t.Fatalf("ResyncTotal=%d want=1", st.ResyncTotal)
	}
}

func TestEngineHistoryEviction(t *testing.T) {
	e := newEngine(2)

	s1 := snapOf(1, testEntity(1))
	s2 := snapOf(2, testEntity(1), testEntity(2))
	s3 := snapOf(3, testEntity(1), testEntity(2), testEntity(3))
	e.publish(s1)
	e.publish(s2)
	e.publish(s3)

	if _, ok := e.DiffSince(s1.Checksum); ok {
		t.Fatalf("evicted snapshot still diffable")
	}
	if _, ok := e.DiffSince(s2.Checksum); !ok {
		t.Fatalf("in-window snapshot not diffable")
	}
}

func TestEngineDuplicateChecksumSurvivesEviction(t *testing.T) {
	e := newEngine(2)

	// Steady state: identical entity sets on consecutive ticks share a
	// checksum. Evicting the older copy must not unindex the newer one.
	ent := testEntity(1)
	s1 := snapOf(10, ent)
	s2 := snapOf(11, ent)
	if s1.Checksum != s2.Checksum {
		t.Fatalf("fixture broken: checksums differ")
	}
	e.publish(s1)
	e.publish(s2)
	e.publish(snapOf(12, ent, testEntity(2))) // evicts s1

	d, ok := e.DiffSince(s1.Checksum)
	if !ok {
		t.Fatalf("shared checksum unindexed by eviction")
	}
	if d.ToTick != 12 || len(d.Added) != 1 {
		t.Fatalf("diff to tick %d added=%d want tick 12, 1 added", d.ToTick, len(d.Added))
	}
}

func TestEngineSubscribeCoalescesToLatest(t *testing.T) {
	e := newEngine(8)
	ch, cancel := e.Subscribe()
	defer cancel()

	s1 := snapOf(1, testEntity(1))
	s2 := snapOf(2, testEntity(1), testEntity(2))
	s3 := snapOf(3, testEntity(1), testEntity(2), testEntity(3))
	e.publish(s1)
	e.publish(s2)
	e.publish(s3)

	got := <-ch
	if got.Tick != 3 {
		t.Fatalf("received tick %d want newest tick 3", got.Tick)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected queued snapshot tick=%d", extra.Tick)
	default:
	}

	cancel()
	e.publish(snapOf(4, testEntity(1)))
	select {
	case extra := <-ch:
		t.Fatalf("cancelled subscriber still notified, tick=%d", extra.Tick)
	default:
	}
}

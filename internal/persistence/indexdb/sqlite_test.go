package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/uruley/Nexus/internal/persistence/snapshot"
	"github.com/uruley/Nexus/internal/protocol"
	"github.com/uruley/Nexus/internal/sim/tuning"
	"github.com/uruley/Nexus/internal/sim/world"
)

func TestSQLiteIndex_IndexesFramesAndSnapshots(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "run.sqlite")

	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := idx.RecordRunMeta("run_test", tuning.Defaults()); err != nil {
		t.Fatalf("RecordRunMeta: %v", err)
	}

	pos := [3]float64{0, 0.5, 0}
	size := [3]float64{0.5, 0.5, 0.5}
	if err := idx.WriteFrame(world.Frame{
		Tick:     1,
		Checksum: 0xabc,
		Intents: []protocol.Intent{
			{Verb: protocol.VerbSpawn, Kind: protocol.KindDynamic, Position: &pos, Size: &size},
			{Verb: protocol.VerbDespawn, Target: 9},
		},
	}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if err := idx.WriteFrame(world.Frame{Tick: 2, Checksum: 0xabc}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	idx.RecordSnapshot(filepath.Join(dir, "2.snap.zst"), snapshot.SnapshotV1{
		Header:   snapshot.Header{Version: 1, RunID: "run_test", Tick: 2},
		Entities: []snapshot.EntityV1{{ID: 1, Kind: "dynamic"}},
		Checksum: "0000000000000abc",
	})

	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open sql: %v", err)
	}
	defer db.Close()

	counts := []struct {
		table string
		want  int
	}{
		{"ticks", 2},
		{"intents", 2},
		{"snapshots", 1},
	}
	for _, c := range counts {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM ` + c.table).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", c.table, err)
		}
		if n != c.want {
			t.Fatalf("table %s count=%d want=%d", c.table, n, c.want)
		}
	}

	var checksum string
	var intents int
	if err := db.QueryRow(`SELECT checksum,intents FROM ticks WHERE tick=1`).Scan(&checksum, &intents); err != nil {
		t.Fatalf("scan tick 1: %v", err)
	}
	if checksum != "0000000000000abc" || intents != 2 {
		t.Fatalf("tick 1 checksum=%q intents=%d", checksum, intents)
	}

	var verb string
	var target int64
	if err := db.QueryRow(`SELECT verb,target FROM intents WHERE tick=1 AND seq=1`).Scan(&verb, &target); err != nil {
		t.Fatalf("scan intent: %v", err)
	}
	if verb != protocol.VerbDespawn || target != 9 {
		t.Fatalf("intent verb=%q target=%d", verb, target)
	}

	var runID string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key='run_id'`).Scan(&runID); err != nil {
		t.Fatalf("scan meta: %v", err)
	}
	if runID != "run_test" {
		t.Fatalf("run_id=%q want=run_test", runID)
	}
}

func TestSQLiteIndex_RecentTicksNewestFirst(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "run.sqlite")

	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for tick := uint64(1); tick <= 5; tick++ {
		if err := idx.WriteFrame(world.Frame{Tick: tick, Checksum: world.Checksum(tick)}); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	idx, err = OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()

	rows, err := idx.RecentTicks(3)
	if err != nil {
		t.Fatalf("RecentTicks: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows=%d want=3", len(rows))
	}
	if rows[0].Tick != 5 || rows[2].Tick != 3 {
		t.Fatalf("order wrong: first=%d last=%d", rows[0].Tick, rows[2].Tick)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqFrame, frame: world.Frame{Tick: 1}}

	_ = s.WriteFrame(world.Frame{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropFrameTotal != 1 {
		t.Fatalf("DropFrameTotal=%d want=1", st.DropFrameTotal)
	}
	if st.DropSnapshotTotal != 1 {
		t.Fatalf("DropSnapshotTotal=%d want=1", st.DropSnapshotTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

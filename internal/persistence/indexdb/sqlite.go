// Package indexdb maintains a queryable sqlite index of the run: one row
// per tick, one row per applied intent, one row per archived snapshot. The
// index is advisory; the journal stays the source of truth, so writes are
// dropped rather than ever stalling the simulation.
package indexdb

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
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/uruley/Nexus/internal/persistence/snapshot"
	"github.com/uruley/Nexus/internal/sim/tuning"
	"github.com/uruley/Nexus/internal/sim/world"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropFrameTotal    atomic.Uint64
	dropSnapshotTotal atomic.Uint64
}

type reqKind int

const (
	reqFrame reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind     reqKind
	frame    world.Frame
	snapshot snapshotRow
}

type snapshotRow struct {
	Tick       uint64
	Path       string
	Entities   int
	Checksum   string
	RecordedAt string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Sized for a few minutes of ticks so short write stalls never
		// reach the loop.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-only workload; NORMAL durability is enough for
	// a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			checksum TEXT NOT NULL,
			intents INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS intents (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			verb TEXT NOT NULL,
			target INTEGER NOT NULL,
			body_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_intents_verb_tick ON intents(verb, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_intents_target_tick ON intents(target, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			entities INTEGER NOT NULL,
			checksum TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteFrame indexes one tick. Never blocks; a full queue drops the frame
// and bumps the drop counter.
func (s *SQLiteIndex) WriteFrame(frame world.Frame) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqFrame, frame: frame}:
	default:
		s.dropFrameTotal.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:       snap.Header.Tick,
		Path:       path,
		Entities:   len(snap.Entities),
		Checksum:   snap.Checksum,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshotTotal.Add(1)
	}
}

// RecordRunMeta stores the run identity and the tuning actually applied,
// with a digest so divergent configs are easy to spot across runs.
func (s *SQLiteIndex) RecordRunMeta(runID string, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows := [][2]string{
		{"schema_version", "1"},
		{"run_id", runID},
		{"tuning", string(b)},
		{"tuning_digest", hex.EncodeToString(sum[:])},
		{"started_at", time.Now().UTC().Format(time.RFC3339Nano)},
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r[0], r[1]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type QueueStats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropFrameTotal    uint64 `json:"drop_frame_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

func (s *SQLiteIndex) Stats() QueueStats {
	if s == nil {
		return QueueStats{}
	}
	return QueueStats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropFrameTotal:    s.dropFrameTotal.Load(),
		DropSnapshotTotal: s.dropSnapshotTotal.Load(),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,checksum,intents,raw_json) VALUES(?,?,?,?)`)
	insertIntent, _ := s.db.Prepare(`INSERT OR REPLACE INTO intents(tick,seq,verb,target,body_json) VALUES(?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,entities,checksum,recorded_at) VALUES(?,?,?,?,?)`)
	defer func() {
		if insertTick != nil {
			_ = insertTick.Close()
		}
		if insertIntent != nil {
			_ = insertIntent.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqFrame:
			b, _ := json.Marshal(r.frame)
			if insertTick != nil {
				if _, err := tx.Stmt(insertTick).Exec(
					int64(r.frame.Tick),
					r.frame.Checksum.String(),
					len(r.frame.Intents),
					string(b),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
			for i, in := range r.frame.Intents {
				if insertIntent == nil {
					break
				}
				body, _ := json.Marshal(in)
				if _, err := tx.Stmt(insertIntent).Exec(
					int64(r.frame.Tick), i, in.Verb, int64(in.Target), string(body),
				); err != nil {
					rollback()
					break
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(
					int64(sn.Tick),
					sn.Path,
					sn.Entities,
					sn.Checksum,
					sn.RecordedAt,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}

// Command replay verifies a recorded journal offline: it re-executes every
// frame against a fresh (or snapshot-resumed) world and exits non-zero on
// the first checksum or tick mismatch.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/uruley/Nexus/internal/persistence/journal"
	"github.com/uruley/Nexus/internal/persistence/snapshot"
	"github.com/uruley/Nexus/internal/sim/tuning"
	"github.com/uruley/Nexus/internal/sim/world"
)

func main() {
	var (
		journalPath = flag.String("journal", "", "journal to verify (.jsonl or .jsonl.zst)")
		snapPath    = flag.String("snapshot", "", "snapshot to resume from before replaying (optional)")
		tuningPath  = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
	)
	flag.Parse()

	if *journalPath == "" {
		fmt.Fprintln(os.Stderr, "missing -journal")
		os.Exit(2)
	}

	// Capacities and windows do not affect determinism; only the simulation
	// parameters do, and a snapshot overrides those anyway.
	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}

	cfg := world.Config{
		RunID:              "replay",
		TickRateHz:         tune.TickRateHz,
		GravityY:           tune.GravityY,
		FloorY:             tune.FloorY,
		HistoryTicks:       tune.HistoryTicks,
		InboxCapacity:      tune.InboxCapacity,
		MaxEntities:        tune.MaxEntities,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
		Replay:             true,
	}

	var snap snapshot.SnapshotV1
	haveSnap := *snapPath != ""
	if haveSnap {
		snap, err = snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		fmt.Printf("snapshot v%d run=%s tick=%d entities=%d checksum=%s\n",
			snap.Header.Version, snap.Header.RunID, snap.Header.Tick,
			len(snap.Entities), snap.Checksum)

		cfg.RunID = snap.Header.RunID
		cfg.TickRateHz = snap.TickRate
		cfg.GravityY = snap.GravityY
		cfg.FloorY = snap.FloorY
	}

	w, err := world.New(cfg, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "world:", err)
		os.Exit(1)
	}
	if haveSnap {
		if err := w.ImportSnapshot(snap); err != nil {
			fmt.Fprintln(os.Stderr, "import snapshot:", err)
			os.Exit(1)
		}
	}
	startTick := w.CurrentTick()

	jr, err := journal.Open(*journalPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open journal:", err)
		os.Exit(1)
	}
	defer jr.Close()

	start := time.Now()
	tick, err := w.RunReplay(context.Background(), jr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}

	fmt.Printf("replay ok: checked=%d ticks, final tick=%d checksum=%s (%.2fs)\n",
		tick-startTick, tick, w.Engine().Latest().Checksum, time.Since(start).Seconds())
}

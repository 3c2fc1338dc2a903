// Command admin inspects and operates on recorded runs: list runs, query a
// live server's admin endpoints, read the run index, or rebuild a snapshot
// at an arbitrary tick from a journal.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/uruley/Nexus/internal/persistence/journal"
	"github.com/uruley/Nexus/internal/persistence/snapshot"
	"github.com/uruley/Nexus/internal/sim/tuning"
	"github.com/uruley/Nexus/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "ticks":
			ticksCmd(os.Args[2:])
			return
		case "snaps":
			snapsCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "rebuild":
			rebuildCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	runID := fs.String("run_id", "", "run id (optional; lists its files)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "runs")
	if *runID != "" {
		base = filepath.Join(base, *runID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// boundedSource stops a replay after last; 0 means the whole journal.
type boundedSource struct {
	src  world.FrameSource
	last uint64
}

func (b boundedSource) Next() (world.Frame, error) {
	f, err := b.src.Next()
	if err != nil {
		return f, err
	}
	if b.last != 0 && f.Tick > b.last {
		return world.Frame{}, io.EOF
	}
	return f, nil
}

// rebuildCmd materializes world state at a chosen tick by replaying the
// journal, then writes it out as a snapshot archive. The output name avoids
// the <tick>.snap.zst convention so resume never picks a rebuild by accident.
func rebuildCmd(args []string) {
	fs := flag.NewFlagSet("rebuild", flag.ExitOnError)
	journalPath := fs.String("journal", "", "journal to rebuild from (required)")
	snapPath := fs.String("snapshot", "", "snapshot to resume from before replaying (optional)")
	toTick := fs.Uint64("to_tick", 0, "stop after this tick (0 replays the whole journal)")
	outPath := fs.String("out", "", "output snapshot path (default: <tick>.rebuild.snap.zst beside the journal)")
	tuningPath := fs.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
	_ = fs.Parse(args)

	if strings.TrimSpace(*journalPath) == "" {
		fmt.Fprintln(os.Stderr, "missing -journal")
		os.Exit(2)
	}

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}

	cfg := world.Config{
		RunID:              "rebuild",
		TickRateHz:         tune.TickRateHz,
		GravityY:           tune.GravityY,
		FloorY:             tune.FloorY,
		HistoryTicks:       tune.HistoryTicks,
		InboxCapacity:      tune.InboxCapacity,
		MaxEntities:        tune.MaxEntities,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
		Replay:             true,
	}

	var base snapshot.SnapshotV1
	haveSnap := strings.TrimSpace(*snapPath) != ""
	if haveSnap {
		base, err = snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		cfg.RunID = base.Header.RunID
		cfg.TickRateHz = base.TickRate
		cfg.GravityY = base.GravityY
		cfg.FloorY = base.FloorY
	}

	w, err := world.New(cfg, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "world:", err)
		os.Exit(1)
	}
	if haveSnap {
		if err := w.ImportSnapshot(base); err != nil {
			fmt.Fprintln(os.Stderr, "import snapshot:", err)
			os.Exit(1)
		}
	}

	jr, err := journal.Open(*journalPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open journal:", err)
		os.Exit(1)
	}
	defer jr.Close()

	tick, err := w.RunReplay(context.Background(), boundedSource{src: jr, last: *toTick})
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	if *toTick != 0 && tick != *toTick {
		fmt.Fprintf(os.Stderr, "journal ends at tick %d, before requested tick %d\n", tick, *toTick)
		os.Exit(1)
	}

	out := strings.TrimSpace(*outPath)
	if out == "" {
		out = filepath.Join(filepath.Dir(*journalPath), fmt.Sprintf("%d.rebuild.snap.zst", tick))
	}
	snap := w.ExportSnapshot()
	if err := snapshot.WriteSnapshot(out, snap); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("rebuild ok: tick=%d entities=%d checksum=%s out=%s\n",
		tick, len(snap.Entities), snap.Checksum, out)
}

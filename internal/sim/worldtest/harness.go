// Package worldtest drives a world synchronously through StepOnce, the same
// entry point the live loop and the replayer use. Intents are expressed in
// their wire form so every scenario covers the full parse-normalize-apply
// path; state is observed only through published snapshots.
package worldtest

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/uruley/Nexus/internal/protocol"
	"github.com/uruley/Nexus/internal/sim/tuning"
	"github.com/uruley/Nexus/internal/sim/world"
)

type Harness struct {
	T *testing.T
	W *world.World
}

// Config is the default scenario world: tuning defaults with a small entity
// cap so cap scenarios stay cheap.
func Config() world.Config {
	tune := tuning.Defaults()
	return world.Config{
		RunID:              "worldtest",
		TickRateHz:         tune.TickRateHz,
		GravityY:           tune.GravityY,
		FloorY:             tune.FloorY,
		HistoryTicks:       tune.HistoryTicks,
		InboxCapacity:      tune.InboxCapacity,
		MaxEntities:        64,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
	}
}

func NewHarness(t *testing.T, cfg world.Config) *Harness {
	t.Helper()
	w, err := world.New(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return &Harness{T: t, W: w}
}

// NewHarnessWithWorld wraps an already-constructed world, for tests that
// import a snapshot before stepping.
func NewHarnessWithWorld(t *testing.T, w *world.World) *Harness {
	t.Helper()
	if w == nil {
		t.Fatalf("NewHarnessWithWorld: nil world")
	}
	return &Harness{T: t, W: w}
}

// Sub builds a wire submission from a verb and raw JSON args.
func Sub(verb, args string) protocol.SubmitMsg {
	return protocol.SubmitMsg{Verb: verb, Args: json.RawMessage(args)}
}

// Parse runs wire validation, failing the test on rejection.
func (h *Harness) Parse(sub protocol.SubmitMsg) protocol.Intent {
	h.T.Helper()
	intent, werr := protocol.ParseSubmit(sub)
	if werr != nil {
		h.T.Fatalf("ParseSubmit(%s %s): %v", sub.Verb, sub.Args, werr)
	}
	return intent
}

// Step applies the given wire submissions as one tick.
func (h *Harness) Step(subs ...protocol.SubmitMsg) (uint64, world.Checksum) {
	h.T.Helper()
	envs := make([]world.IntentEnvelope, 0, len(subs))
	for _, sub := range subs {
		envs = append(envs, world.IntentEnvelope{Intent: h.Parse(sub), Session: "harness"})
	}
	return h.W.StepOnce(envs)
}

// StepN advances n empty ticks.
func (h *Harness) StepN(n int) {
	h.T.Helper()
	for i := 0; i < n; i++ {
		h.W.StepOnce(nil)
	}
}

// Spawn applies one Spawn tick and returns the assigned id.
func (h *Harness) Spawn(args string) world.EntityID {
	h.T.Helper()
	reply := make(chan world.EntityID, 1)
	env := world.IntentEnvelope{
		Intent:     h.Parse(Sub(protocol.VerbSpawn, args)),
		Session:    "harness",
		SpawnReply: reply,
	}
	h.W.StepOnce([]world.IntentEnvelope{env})
	select {
	case id := <-reply:
		return id
	default:
		h.T.Fatalf("spawn produced no id: %s", args)
		return 0
	}
}

// Latest returns the most recent published snapshot.
func (h *Harness) Latest() *world.Snapshot {
	return h.W.Engine().Latest()
}

// Entity fetches one entity from the latest snapshot.
func (h *Harness) Entity(id world.EntityID) world.Entity {
	h.T.Helper()
	e, ok := h.Latest().Get(id)
	if !ok {
		h.T.Fatalf("entity %d not in latest snapshot (tick %d)", id, h.Latest().Tick)
	}
	return e
}

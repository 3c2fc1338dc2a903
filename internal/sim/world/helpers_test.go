package world

import (
	"testing"

	"github.com/uruley/Nexus/internal/protocol"
)

func testConfig() Config {
	return Config{
		RunID:              "test",
		TickRateHz:         30,
		GravityY:           -9.81,
		FloorY:             0,
		HistoryTicks:       64,
		InboxCapacity:      64,
		MaxEntities:        128,
		SnapshotEveryTicks: 600,
	}
}

func newTestWorld(t *testing.T) *World {
	t.Helper()
	w, err := New(testConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func spawnEnv(pos, size [3]float64) IntentEnvelope {
	p, s := pos, size
	return IntentEnvelope{Intent: protocol.Intent{
		Verb:     protocol.VerbSpawn,
		Kind:     protocol.KindDynamic,
		Position: &p,
		Size:     &s,
	}}
}

func spawnKindEnv(kind string, pos, vel, size [3]float64) IntentEnvelope {
	p, v, s := pos, vel, size
	return IntentEnvelope{Intent: protocol.Intent{
		Verb:     protocol.VerbSpawn,
		Kind:     kind,
		Position: &p,
		Velocity: &v,
		Size:     &s,
	}}
}

// spawnOne steps the world once with a single spawn and returns the id.
func spawnOne(t *testing.T, w *World, env IntentEnvelope) EntityID {
	t.Helper()
	reply := make(chan EntityID, 1)
	env.SpawnReply = reply
	w.StepOnce([]IntentEnvelope{env})
	select {
	case id := <-reply:
		return id
	default:
		t.Fatalf("spawn produced no id")
		return 0
	}
}

func despawnEnv(id EntityID) IntentEnvelope {
	return IntentEnvelope{Intent: protocol.Intent{Verb: protocol.VerbDespawn, Target: uint64(id)}}
}

func moveAbsEnv(id EntityID, pos [3]float64) IntentEnvelope {
	p := pos
	return IntentEnvelope{Intent: protocol.Intent{
		Verb: protocol.VerbMove, Target: uint64(id), Mode: protocol.MoveAbsolute, Position: &p,
	}}
}

func moveDeltaEnv(id EntityID, delta [3]float64) IntentEnvelope {
	d := delta
	return IntentEnvelope{Intent: protocol.Intent{
		Verb: protocol.VerbMove, Target: uint64(id), Mode: protocol.MoveDelta, Delta: &d,
	}}
}

func forceEnv(id EntityID, force [3]float64) IntentEnvelope {
	f := force
	return IntentEnvelope{Intent: protocol.Intent{
		Verb: protocol.VerbApplyForce, Target: uint64(id), Force: &f,
	}}
}

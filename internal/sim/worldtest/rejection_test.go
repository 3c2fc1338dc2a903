package worldtest

import (
	"fmt"
	"testing"

	"github.com/uruley/Nexus/internal/protocol"
)

// Every malformed submission must die at the wire boundary; the world never
// sees it, so entity count and state cannot move.
func TestMalformedSubmissionsAreRejectedAtTheWire(t *testing.T) {
	h := NewHarness(t, Config())
	id := h.Spawn(`{"position":[0,1,0],"size":[0.5,0.5,0.5],"kind":"static"}`)
	before := h.Latest().Checksum

	malformed := []protocol.SubmitMsg{
		Sub("Teleport", `{"id":1}`),
		Sub("", `{"id":1}`),
		Sub(protocol.VerbSpawn, `{"position":[0,1,0]}`),
		Sub(protocol.VerbSpawn, `{"position":[0,1,0],"size":[0.5,0.5]}`),
		Sub(protocol.VerbSpawn, `{"position":[0,1,0],"size":[0,0.5,0.5]}`),
		Sub(protocol.VerbSpawn, `{"position":[0,1,0],"size":[0.5,0.5,0.5],"kind":"ghost"}`),
		Sub(protocol.VerbMove, fmt.Sprintf(`{"id":%d}`, id)),
		Sub(protocol.VerbMove, fmt.Sprintf(`{"id":%d,"mode":"delta"}`, id)),
		Sub(protocol.VerbMove, fmt.Sprintf(`{"id":%d,"mode":"sideways","delta":[1,0,0]}`, id)),
		Sub(protocol.VerbApplyForce, fmt.Sprintf(`{"id":%d,"force":[1,null,0]}`, id)),
		Sub(protocol.VerbApplyForce, fmt.Sprintf(`{"id":%d,"force":[1e999,0,0]}`, id)),
		Sub(protocol.VerbSetTint, fmt.Sprintf(`{"id":%d,"color":[2,0,0]}`, id)),
		Sub(protocol.VerbSetTint, fmt.Sprintf(`{"id":%d}`, id)),
		Sub(protocol.VerbDespawn, `{}`),
		Sub(protocol.VerbDespawn, `{"id":0}`),
		Sub(protocol.VerbDespawn, `{"id":"one"}`),
	}
	for _, sub := range malformed {
		if _, werr := protocol.ParseSubmit(sub); werr == nil {
			t.Fatalf("submission unexpectedly valid: %s %s", sub.Verb, sub.Args)
		}
	}

	// Nothing reached the queue; a tick later the world is bit-identical.
	_, after := h.Step()
	if after != before {
		t.Fatalf("checksum moved without valid intents: %s -> %s", before, after)
	}
	if h.Latest().Len() != 1 {
		t.Fatalf("entities = %d, want 1", h.Latest().Len())
	}
}

func TestDespawnUnknownIDIsANoOp(t *testing.T) {
	h := NewHarness(t, Config())
	h.Spawn(`{"position":[0,1,0],"size":[0.5,0.5,0.5],"kind":"static"}`)
	before := h.Latest().Checksum

	_, after := h.Step(Sub(protocol.VerbDespawn, `{"id":9999}`))
	if after != before {
		t.Fatalf("checksum moved on unknown despawn: %s -> %s", before, after)
	}
	if h.Latest().Len() != 1 {
		t.Fatalf("entities = %d, want 1", h.Latest().Len())
	}
}

// Intents aimed at a despawned entity resolve as no-ops, same as unknown ids.
func TestIntentsAgainstDespawnedEntityAreNoOps(t *testing.T) {
	h := NewHarness(t, Config())
	id := h.Spawn(`{"position":[0,1,0],"size":[0.5,0.5,0.5],"kind":"static"}`)
	h.Step(Sub(protocol.VerbDespawn, fmt.Sprintf(`{"id":%d}`, id)))
	before := h.Latest().Checksum

	_, after := h.Step(
		Sub(protocol.VerbMove, fmt.Sprintf(`{"id":%d,"mode":"absolute","position":[9,9,9]}`, id)),
		Sub(protocol.VerbApplyForce, fmt.Sprintf(`{"id":%d,"force":[1,0,0]}`, id)),
		Sub(protocol.VerbSetTint, fmt.Sprintf(`{"id":%d,"color":[1,0,0]}`, id)),
	)
	if after != before {
		t.Fatalf("checksum moved on intents for a despawned id: %s -> %s", before, after)
	}
	if h.Latest().Len() != 0 {
		t.Fatalf("entities = %d, want 0", h.Latest().Len())
	}
}

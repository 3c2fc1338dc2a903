package world

import (
	"encoding/json"
	"testing"
)

func testEntity(id EntityID) Entity {
	return Entity{
		ID:   id,
		Kind: KindDynamic,
		Pos:  Vec3{X: 1, Y: 2, Z: 3},
		Vel:  Vec3{X: 0, Y: -1, Z: 0},
		Half: Vec3{X: 0.5, Y: 0.5, Z: 0.5},
		Tint: Vec3{X: 1, Y: 1, Z: 1},
	}
}

func TestChecksumOrderIndependence(t *testing.T) {
	a := testEntity(1)
	b := testEntity(2)
	b.Pos.X = 9
	c := testEntity(3)
	c.Kind = KindStatic

	// The combiner must not care how the set was assembled.
	forward := checksumEntities(map[EntityID]Entity{1: a, 2: b, 3: c})
	reverse := checksumEntities(map[EntityID]Entity{3: c, 2: b, 1: a})
	if forward != reverse {
		t.Fatalf("forward=%s reverse=%s", forward, reverse)
	}

	manual := Checksum(entityHash(a) + entityHash(b) + entityHash(c))
	if forward != manual {
		t.Fatalf("map fold=%s manual fold=%s", forward, manual)
	}
}

func TestChecksumEmptySetIsZero(t *testing.T) {
	if got := checksumEntities(map[EntityID]Entity{}); got != 0 {
		t.Fatalf("empty checksum=%s want=0000000000000000", got)
	}
}

func TestChecksumFieldSensitivity(t *testing.T) {
	base := entityHash(testEntity(1))

	mutations := map[string]func(*Entity){
		"id":   func(e *Entity) { e.ID = 2 },
		"kind": func(e *Entity) { e.Kind = KindKinematic },
		"pos":  func(e *Entity) { e.Pos.Y += 0.0001 },
		"vel":  func(e *Entity) { e.Vel.Z = 5 },
		"half": func(e *Entity) { e.Half.X = 0.25 },
		"tint": func(e *Entity) { e.Tint.Y = 0 },
	}
	for name, mutate := range mutations {
		e := testEntity(1)
		mutate(&e)
		if entityHash(e) == base {
			t.Fatalf("mutation %q did not change the hash", name)
		}
	}
}

func TestChecksumHexRoundtrip(t *testing.T) {
	c := Checksum(0xdeadbeef01020304)
	if got := c.String(); got != "deadbeef01020304" {
		t.Fatalf("String=%q", got)
	}
	parsed, err := ParseChecksum("deadbeef01020304")
	if err != nil {
		t.Fatalf("ParseChecksum: %v", err)
	}
	if parsed != c {
		t.Fatalf("parsed=%s want=%s", parsed, c)
	}
	if _, err := ParseChecksum("zzzz"); err == nil {
		t.Fatalf("ParseChecksum accepted junk")
	}
	if _, err := ParseChecksum("deadbeef"); err == nil {
		t.Fatalf("ParseChecksum accepted short input")
	}

	b, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `"deadbeef01020304"` {
		t.Fatalf("json=%s", b)
	}
	var back Checksum
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back != c {
		t.Fatalf("roundtrip=%s want=%s", back, c)
	}
}

package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Checksum identifies an entity set. Per-entity hashes are folded with
// wrapping addition, a commutative combiner, so insertion and iteration
// order never affect the result: set-equal collections hash identically.
type Checksum uint64

func (c Checksum) String() string {
	return fmt.Sprintf("%016x", uint64(c))
}

func ParseChecksum(s string) (Checksum, error) {
	if len(s) != 16 {
		return 0, fmt.Errorf("checksum must be 16 hex digits, got %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("checksum %q: %w", s, err)
	}
	return Checksum(v), nil
}

func (c Checksum) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Checksum) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseChecksum(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// entityHash covers the identifier and the full entity state through a
// canonical little-endian encoding, truncated to the first 8 digest bytes.
func entityHash(e Entity) uint64 {
	h := sha256.New()
	var tmp [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:], v)
		h.Write(tmp[:])
	}
	put(uint64(e.ID))
	put(uint64(len(e.Kind)))
	h.Write([]byte(e.Kind))
	for _, v := range [...]Vec3{e.Pos, e.Vel, e.Half, e.Tint} {
		put(math.Float64bits(v.X))
		put(math.Float64bits(v.Y))
		put(math.Float64bits(v.Z))
	}
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum[:8])
}

func checksumEntities(m map[EntityID]Entity) Checksum {
	var acc uint64
	for _, e := range m {
		acc += entityHash(e)
	}
	return Checksum(acc)
}

package world

import (
	"sort"

	"github.com/uruley/Nexus/internal/protocol"
)

// Snapshot is an immutable view of the entity set at one tick. Once
// published it is never mutated; any number of goroutines may hold one.
type Snapshot struct {
	Tick     uint64
	Checksum Checksum
	Entities map[EntityID]Entity
}

func (s *Snapshot) Get(id EntityID) (Entity, bool) {
	e, ok := s.Entities[id]
	return e, ok
}

func (s *Snapshot) Len() int {
	return len(s.Entities)
}

func (s *Snapshot) sortedIDs() []EntityID {
	ids := make([]EntityID, 0, len(s.Entities))
	for id := range s.Entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// WireMsg renders the snapshot for clients, entities sorted by id.
func (s *Snapshot) WireMsg() protocol.SnapshotMsg {
	entities := make([]protocol.EntityWire, 0, len(s.Entities))
	for _, id := range s.sortedIDs() {
		entities = append(entities, s.Entities[id].Wire())
	}
	return protocol.SnapshotMsg{
		Type:     protocol.TypeSnapshot,
		Tick:     s.Tick,
		Checksum: s.Checksum.String(),
		Entities: entities,
	}
}

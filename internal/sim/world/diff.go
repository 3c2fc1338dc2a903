package world

import (
	"sort"

	"github.com/uruley/Nexus/internal/protocol"
)

// Diff is the change set between two checksummed snapshots. Applying it to
// the snapshot whose checksum equals From reproduces the snapshot whose
// checksum equals To.
type Diff struct {
	From    Checksum
	To      Checksum
	ToTick  uint64
	Added   []Entity
	Removed []EntityID
	Changed []Entity
}

func computeDiff(from, to *Snapshot) Diff {
	d := Diff{From: from.Checksum, To: to.Checksum, ToTick: to.Tick}
	for id, e := range to.Entities {
		prev, ok := from.Entities[id]
		if !ok {
			d.Added = append(d.Added, e)
			continue
		}
		if prev != e {
			d.Changed = append(d.Changed, e)
		}
	}
	for id := range from.Entities {
		if _, ok := to.Entities[id]; !ok {
			d.Removed = append(d.Removed, id)
		}
	}
	sort.Slice(d.Added, func(i, j int) bool { return d.Added[i].ID < d.Added[j].ID })
	sort.Slice(d.Changed, func(i, j int) bool { return d.Changed[i].ID < d.Changed[j].ID })
	sort.Slice(d.Removed, func(i, j int) bool { return d.Removed[i] < d.Removed[j] })
	return d
}

// Apply reconstructs the target snapshot from base. The checksum is
// recomputed from the resulting set, so a correct diff yields To.
func (d Diff) Apply(base *Snapshot) *Snapshot {
	m := make(map[EntityID]Entity, len(base.Entities)+len(d.Added))
	for id, e := range base.Entities {
		m[id] = e
	}
	for _, id := range d.Removed {
		delete(m, id)
	}
	for _, e := range d.Added {
		m[e.ID] = e
	}
	for _, e := range d.Changed {
		m[e.ID] = e
	}
	return &Snapshot{Tick: d.ToTick, Checksum: checksumEntities(m), Entities: m}
}

func (d Diff) WireMsg() protocol.DiffMsg {
	msg := protocol.DiffMsg{
		Type:    protocol.TypeDiff,
		From:    d.From.String(),
		To:      d.To.String(),
		ToTick:  d.ToTick,
		Added:   make([]protocol.EntityWire, 0, len(d.Added)),
		Removed: make([]uint64, 0, len(d.Removed)),
		Changed: make([]protocol.EntityWire, 0, len(d.Changed)),
	}
	for _, e := range d.Added {
		msg.Added = append(msg.Added, e.Wire())
	}
	for _, id := range d.Removed {
		msg.Removed = append(msg.Removed, uint64(id))
	}
	for _, e := range d.Changed {
		msg.Changed = append(msg.Changed, e.Wire())
	}
	return msg
}

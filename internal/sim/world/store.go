package world

// entityStore owns the live entity set. Only the loop goroutine touches it;
// everyone else reads published snapshots.
type entityStore struct {
	entities map[EntityID]Entity
	nextID   EntityID
}

func newEntityStore() entityStore {
	return entityStore{entities: map[EntityID]Entity{}, nextID: 1}
}

// spawn assigns the next unused identifier and inserts the record.
func (s *entityStore) spawn(e Entity) EntityID {
	e.ID = s.nextID
	s.nextID++
	s.entities[e.ID] = e
	return e.ID
}

// despawn removes the record. The identifier stays burned: nextID never
// moves backwards. Unknown ids report false and change nothing.
func (s *entityStore) despawn(id EntityID) bool {
	if _, ok := s.entities[id]; !ok {
		return false
	}
	delete(s.entities, id)
	return true
}

// mutate applies fn to a copy and writes it back. The identifier is pinned
// so an updater cannot corrupt the keying.
func (s *entityStore) mutate(id EntityID, fn func(*Entity)) bool {
	e, ok := s.entities[id]
	if !ok {
		return false
	}
	fn(&e)
	e.ID = id
	s.entities[id] = e
	return true
}

func (s *entityStore) get(id EntityID) (Entity, bool) {
	e, ok := s.entities[id]
	return e, ok
}

func (s *entityStore) iterate(fn func(EntityID, Entity)) {
	for id, e := range s.entities {
		fn(id, e)
	}
}

// each is the in-place variant used by the physics step. Writing back an
// existing key during range is safe; each never inserts or deletes.
func (s *entityStore) each(fn func(*Entity)) {
	for id, e := range s.entities {
		fn(&e)
		e.ID = id
		s.entities[id] = e
	}
}

func (s *entityStore) len() int {
	return len(s.entities)
}

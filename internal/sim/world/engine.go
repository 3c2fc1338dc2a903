package world

import (
	"sync"
	"sync/atomic"
)

// Engine retains published snapshots and answers diff queries. The loop
// goroutine is the only publisher; any goroutine may read. Publication is an
// atomic pointer swap, so readers never see a partial snapshot.
type Engine struct {
	latest atomic.Pointer[Snapshot]

	mu      sync.Mutex
	ring    []*Snapshot
	ringPos int
	bySum   map[Checksum]*Snapshot

	subMu   sync.Mutex
	subs    map[int]chan *Snapshot
	nextSub int

	diffsServed atomic.Uint64
	resyncTotal atomic.Uint64
}

func newEngine(historyTicks int) *Engine {
	return &Engine{
		ring:  make([]*Snapshot, historyTicks),
		bySum: make(map[Checksum]*Snapshot, historyTicks),
		subs:  map[int]chan *Snapshot{},
	}
}

// Latest returns the most recently published snapshot. Never blocks and
// never consults the loop.
func (e *Engine) Latest() *Snapshot {
	return e.latest.Load()
}

func (e *Engine) publish(s *Snapshot) {
	e.latest.Store(s)

	e.mu.Lock()
	if old := e.ring[e.ringPos]; old != nil {
		// Duplicate checksums point the index at the newest holder, so only
		// unindex the evicted snapshot if it still owns its entry.
		if cur, ok := e.bySum[old.Checksum]; ok && cur == old {
			delete(e.bySum, old.Checksum)
		}
	}
	e.ring[e.ringPos] = s
	e.ringPos = (e.ringPos + 1) % len(e.ring)
	e.bySum[s.Checksum] = s
	e.mu.Unlock()

	e.notify(s)
}

// DiffSince computes the change set from the snapshot with the given
// checksum to the latest. ok=false means the checksum is outside the
// retained window; the caller must fall back to a full snapshot.
func (e *Engine) DiffSince(since Checksum) (Diff, bool) {
	now := e.Latest()
	if now == nil {
		return Diff{}, false
	}
	if since == now.Checksum {
		e.diffsServed.Add(1)
		return Diff{From: since, To: since, ToTick: now.Tick}, true
	}
	e.mu.Lock()
	base, ok := e.bySum[since]
	e.mu.Unlock()
	if !ok {
		e.resyncTotal.Add(1)
		return Diff{}, false
	}
	e.diffsServed.Add(1)
	return computeDiff(base, now), true
}

// Subscribe registers a publish listener. The channel holds at most one
// pending snapshot: a slow consumer sees the newest, not a backlog. cancel
// stops delivery; the channel is never closed because a publish may race it.
func (e *Engine) Subscribe() (<-chan *Snapshot, func()) {
	ch := make(chan *Snapshot, 1)
	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subMu.Unlock()

	cancel := func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}
	return ch, cancel
}

func (e *Engine) notify(s *Snapshot) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		// Drop the stale pending value, then offer the new one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

type EngineStats struct {
	DiffsServed uint64 `json:"diffs_served"`
	ResyncTotal uint64 `json:"resync_total"`
	HistoryLen  int    `json:"history_len"`
}

func (e *Engine) Stats() EngineStats {
	e.mu.Lock()
	n := len(e.bySum)
	e.mu.Unlock()
	return EngineStats{
		DiffsServed: e.diffsServed.Load(),
		ResyncTotal: e.resyncTotal.Load(),
		HistoryLen:  n,
	}
}

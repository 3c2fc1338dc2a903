package world

import (
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/uruley/Nexus/internal/persistence/snapshot"
	"github.com/uruley/Nexus/internal/protocol"
)

type Config struct {
	RunID      string
	TickRateHz int
	GravityY   float64
	FloorY     float64

	HistoryTicks       int
	InboxCapacity      int
	MaxEntities        int
	SnapshotEveryTicks int

	// Replay disables external submissions; the journal is the only intent
	// source for the run.
	Replay bool
}

// IntentEnvelope carries one validated intent from a network handler into
// the loop. SpawnReply, when non-nil, receives the assigned id at the tick
// that applies a Spawn; sends never block and an unread reply is dropped.
type IntentEnvelope struct {
	Intent     protocol.Intent
	Session    string
	SpawnReply chan<- EntityID
}

// Frame is the journaled record of one tick: the intents applied, in queue
// order, and the checksum of the resulting snapshot. The loop has no inputs
// besides intents, so a frame is sufficient to reproduce its tick.
type Frame struct {
	Tick     uint64            `json:"tick"`
	Intents  []protocol.Intent `json:"intents,omitempty"`
	Checksum Checksum          `json:"checksum"`
}

// FrameLogger receives one Frame per tick. Implemented by the journal
// writer and the run index; both must not block the loop.
type FrameLogger interface {
	WriteFrame(Frame) error
}

var (
	ErrWorldBusy    = errors.New("world: intent queue full")
	ErrReplayActive = errors.New("world: replay active, submissions disabled")
)

// World is a single-threaded authoritative simulation. All entity state is
// accessed only from the loop goroutine; everyone else works with published
// snapshots and the inbox.
type World struct {
	cfg Config
	log *zap.Logger

	store  entityStore
	tick   uint64 // loop-owned; readers use Engine().Latest().Tick
	engine *Engine

	inbox       chan IntentEnvelope
	stop        chan struct{}
	snapshotReq chan chan snapshot.SnapshotV1

	frameLogger  FrameLogger
	snapshotSink chan<- snapshot.SnapshotV1

	metrics atomic.Value // WorldMetrics

	intentsApplied uint64
	unknownTargets uint64
	spawnsRejected uint64
	frameLogErrors uint64
}

func New(cfg Config, log *zap.Logger) (*World, error) {
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("world: tick rate must be positive, got %d", cfg.TickRateHz)
	}
	if cfg.HistoryTicks <= 0 {
		return nil, fmt.Errorf("world: history window must be positive, got %d", cfg.HistoryTicks)
	}
	if cfg.InboxCapacity <= 0 {
		return nil, fmt.Errorf("world: inbox capacity must be positive, got %d", cfg.InboxCapacity)
	}
	if log == nil {
		log = zap.NewNop()
	}

	w := &World{
		cfg:         cfg,
		log:         log,
		store:       newEntityStore(),
		engine:      newEngine(cfg.HistoryTicks),
		inbox:       make(chan IntentEnvelope, cfg.InboxCapacity),
		stop:        make(chan struct{}),
		snapshotReq: make(chan chan snapshot.SnapshotV1, 1),
	}
	// Tick 0 is the pre-simulation state; diff baselines exist from the start.
	w.engine.publish(w.buildSnapshot(0))
	w.storeMetrics(0)
	return w, nil
}

func (w *World) SetFrameLogger(l FrameLogger)                  { w.frameLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) Engine() *Engine { return w.engine }

func (w *World) CurrentTick() uint64 {
	return w.engine.Latest().Tick
}

func (w *World) RunID() string    { return w.cfg.RunID }
func (w *World) ReplayMode() bool { return w.cfg.Replay }

func (w *World) Params() protocol.WorldParams {
	return protocol.WorldParams{
		TickRateHz: w.cfg.TickRateHz,
		GravityY:   w.cfg.GravityY,
		FloorY:     w.cfg.FloorY,
	}
}

// Submit enqueues one envelope without blocking. A full inbox rejects with
// ErrWorldBusy rather than stalling the caller.
func (w *World) Submit(env IntentEnvelope) error {
	if w.cfg.Replay {
		return ErrReplayActive
	}
	select {
	case w.inbox <- env:
		return nil
	default:
		return ErrWorldBusy
	}
}

func (w *World) dt() float64 {
	return 1.0 / float64(w.cfg.TickRateHz)
}

// Package ws streams the world to websocket clients: one SNAPSHOT to
// establish a baseline, then per-tick DIFF frames keyed by checksum, with
// TICK heartbeats when nothing moved. A client that falls behind is forced
// back onto the snapshot path rather than queueing unbounded history.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uruley/Nexus/internal/protocol"
	"github.com/uruley/Nexus/internal/sim/world"
)

const (
	handshakeWait = 5 * time.Second
	writeWait     = 5 * time.Second
	readWait      = 60 * time.Second

	// outboxSize bounds per-connection buffering. At 30 Hz this is about a
	// second of frames; overflow trips a resync instead of growing the queue.
	outboxSize = 32

	// spawnAckWait bounds how long an ACK waits for the tick that assigns
	// spawn ids. Normally one tick interval; the cap covers a stalled loop.
	spawnAckWait = 500 * time.Millisecond
)

type Server struct {
	world *world.World
	log   *zap.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	sessions    atomic.Int64
	maxSessions int
}

func NewServer(w *world.World, logger *zap.Logger, maxSessions int) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxSessions <= 0 {
		maxSessions = 64
	}
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		maxSessions: maxSessions,
	}
}

// Sessions reports the number of live connections.
func (s *Server) Sessions() int64 { return s.sessions.Load() }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if s.sessions.Add(1) > int64(s.maxSessions) {
			s.sessions.Add(-1)
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"), time.Now().Add(time.Second))
			return
		}
		defer s.sessions.Add(-1)

		sid, since, ok := s.handshake(conn)
		if !ok {
			return
		}
		s.log.Debug("session opened", zap.String("session", sid), zap.String("remote", r.RemoteAddr))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		updates, unsubscribe := s.world.Engine().Subscribe()
		defer unsubscribe()

		out := make(chan []byte, outboxSize)

		// Writer goroutine. Sole owner of writes after the handshake.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Streamer goroutine. Turns published snapshots into frames.
		go s.stream(ctx, sid, since, updates, out)

		// Reader loop.
	reader:
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readWait))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if base.Type != protocol.TypeAct {
				continue
			}
			var act protocol.ActMsg
			if err := json.Unmarshal(msg, &act); err != nil {
				continue
			}
			ack := s.handleAct(ctx, sid, act)
			b, err := json.Marshal(ack)
			if err != nil {
				continue
			}
			// ACKs may block: the client is waiting on this response.
			select {
			case out <- b:
			case <-ctx.Done():
				break reader
			}
		}

		s.log.Debug("session closed", zap.String("session", sid))
	}
}

// handshake enforces HELLO-first within the deadline and answers WELCOME.
// since is the checksum the client already holds, zero when absent.
func (s *Server) handshake(conn *websocket.Conn) (sid string, since world.Checksum, ok bool) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeWait))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", 0, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", 0, false
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", 0, false
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = s.writeNow(conn, protocol.ErrorMsg{Type: protocol.TypeError, Err: protocol.WireError{
			Code:    protocol.ErrProtoVersion,
			Message: fmt.Sprintf("server speaks %s, client sent %q", protocol.Version, hello.ProtocolVersion),
		}})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", 0, false
	}
	if hello.Since != "" {
		// A stale or garbled since just means the first frame is a snapshot.
		if sum, err := world.ParseChecksum(hello.Since); err == nil {
			since = sum
		}
	}

	sid = fmt.Sprintf("S%d", s.nextID.Add(1))
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		Session:         sid,
		Tick:            s.world.CurrentTick(),
		WorldParams:     s.world.Params(),
	}
	if err := s.writeNow(conn, welcome); err != nil {
		return "", 0, false
	}
	return sid, since, true
}

// stream sends the baseline frame, then one frame per published tick. State
// advances only when a frame actually made it into the outbox; a full outbox
// marks the session for resync and the next tick carries a fresh snapshot.
func (s *Server) stream(ctx context.Context, sid string, since world.Checksum, updates <-chan *world.Snapshot, out chan<- []byte) {
	var (
		lastSum    world.Checksum
		lastTick   uint64
		haveBase   bool
		needResync bool
	)

	enqueue := func(v any) bool {
		b, err := json.Marshal(v)
		if err != nil {
			return false
		}
		select {
		case out <- b:
			return true
		default:
			return false
		}
	}

	sendSnapshot := func(snap *world.Snapshot) {
		if enqueue(snap.WireMsg()) {
			lastSum, lastTick = snap.Checksum, snap.Tick
			haveBase, needResync = true, false
		} else {
			needResync = true
		}
	}

	// Baseline. A known since lets the first frame be an incremental diff.
	if snap := s.world.Engine().Latest(); snap != nil {
		if since != 0 && since != snap.Checksum {
			if diff, ok := s.world.Engine().DiffSince(since); ok {
				if enqueue(diff.WireMsg()) {
					lastSum, lastTick = diff.To, diff.ToTick
					haveBase = true
				} else {
					needResync = true
				}
			}
		} else if since != 0 && since == snap.Checksum {
			if enqueue(protocol.TickMsg{Type: protocol.TypeTick, Tick: snap.Tick, Checksum: snap.Checksum.String()}) {
				lastSum, lastTick = snap.Checksum, snap.Tick
				haveBase = true
			}
		}
		if !haveBase {
			sendSnapshot(snap)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-updates:
			if snap == nil || snap.Tick <= lastTick {
				continue
			}
			if needResync || !haveBase {
				s.log.Debug("forcing resync", zap.String("session", sid), zap.Uint64("tick", snap.Tick))
				sendSnapshot(snap)
				continue
			}
			if snap.Checksum == lastSum {
				// Heartbeat. Dropping one on a full outbox loses nothing.
				if enqueue(protocol.TickMsg{Type: protocol.TypeTick, Tick: snap.Tick, Checksum: snap.Checksum.String()}) {
					lastTick = snap.Tick
				}
				continue
			}
			diff, ok := s.world.Engine().DiffSince(lastSum)
			if !ok {
				sendSnapshot(snap)
				continue
			}
			if enqueue(diff.WireMsg()) {
				lastSum, lastTick = diff.To, diff.ToTick
			} else {
				needResync = true
			}
		}
	}
}

// handleAct validates and submits a batch, then builds the per-intent ACK.
// Accepted spawns wait (bounded) for the tick that assigns their ids.
func (s *Server) handleAct(ctx context.Context, sid string, act protocol.ActMsg) protocol.AckMsg {
	type spawnWait struct {
		idx   int
		reply chan world.EntityID
	}

	results := make([]protocol.AckResult, 0, len(act.Intents))
	var waits []spawnWait

	for _, sub := range act.Intents {
		intent, werr := protocol.ParseSubmit(sub)
		if werr != nil {
			results = append(results, protocol.AckResult{
				Accepted: false,
				Code:     werr.Code,
				Field:    werr.Field,
				Message:  werr.Message,
			})
			continue
		}

		env := world.IntentEnvelope{Intent: intent, Session: sid}
		var reply chan world.EntityID
		if intent.Verb == protocol.VerbSpawn {
			reply = make(chan world.EntityID, 1)
			env.SpawnReply = reply
		}

		if err := s.world.Submit(env); err != nil {
			code := protocol.ErrInternal
			switch {
			case errors.Is(err, world.ErrWorldBusy):
				code = protocol.ErrWorldBusy
			case errors.Is(err, world.ErrReplayActive):
				code = protocol.ErrReplayActive
			}
			results = append(results, protocol.AckResult{Accepted: false, Code: code, Message: err.Error()})
			continue
		}

		idx := len(results)
		results = append(results, protocol.AckResult{Accepted: true})
		if reply != nil {
			waits = append(waits, spawnWait{idx: idx, reply: reply})
		}
	}

	if len(waits) > 0 {
		timer := time.NewTimer(spawnAckWait)
		waiting := true
		for _, w := range waits {
			if waiting {
				select {
				case id := <-w.reply:
					results[w.idx].ID = uint64(id)
					continue
				case <-timer.C:
					waiting = false
				case <-ctx.Done():
					waiting = false
				}
			}
			// Deadline passed; only collect ids that already arrived.
			select {
			case id := <-w.reply:
				results[w.idx].ID = uint64(id)
			default:
			}
		}
		timer.Stop()
	}

	return protocol.AckMsg{
		Type:       protocol.TypeAck,
		ServerTick: s.world.CurrentTick(),
		Results:    results,
	}
}

// writeNow writes directly on the connection. Only safe during the
// handshake, before the writer goroutine takes over.
func (s *Server) writeNow(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}

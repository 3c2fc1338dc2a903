// Command bot is a scripted websocket client: it spawns a handful of boxes,
// keeps them moving with periodic forces, and follows the diff stream. Useful
// as an end-to-end smoke client and as load for a dev server.
package main

import (
	"encoding/json"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uruley/Nexus/internal/protocol"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		boxes = flag.Int("boxes", 8, "boxes to spawn and keep kicking")
	)
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatal("dial", zap.Error(err))
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatal("send HELLO", zap.Error(err))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var (
		owned    []uint64
		entities int
		lastKick uint64
	)

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Info("connection closed", zap.Error(err))
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Info("WELCOME",
				zap.String("session", w.Session),
				zap.Uint64("tick", w.Tick),
				zap.Int("tick_rate_hz", w.WorldParams.TickRateHz))
			_ = conn.WriteJSON(spawnBatch(rng, *boxes))

		case protocol.TypeSnapshot:
			var s protocol.SnapshotMsg
			if err := json.Unmarshal(msg, &s); err != nil {
				continue
			}
			entities = len(s.Entities)
			logger.Info("SNAPSHOT",
				zap.Uint64("tick", s.Tick),
				zap.String("checksum", s.Checksum),
				zap.Int("entities", entities))

		case protocol.TypeDiff:
			var d protocol.DiffMsg
			if err := json.Unmarshal(msg, &d); err != nil {
				continue
			}
			entities += len(d.Added) - len(d.Removed)
			if d.ToTick%200 == 0 {
				logger.Info("state",
					zap.Uint64("tick", d.ToTick),
					zap.String("checksum", d.To),
					zap.Int("entities", entities))
			}
			// Kick a random box every ~10 seconds of ticks.
			if len(owned) > 0 && d.ToTick-lastKick >= 300 {
				lastKick = d.ToTick
				_ = conn.WriteJSON(kick(rng, owned[rng.Intn(len(owned))]))
			}

		case protocol.TypeAck:
			var a protocol.AckMsg
			if err := json.Unmarshal(msg, &a); err != nil {
				continue
			}
			for _, res := range a.Results {
				if res.Accepted && res.ID != 0 {
					owned = append(owned, res.ID)
				}
				if !res.Accepted {
					logger.Warn("intent rejected",
						zap.String("code", res.Code),
						zap.String("field", res.Field),
						zap.String("message", res.Message))
				}
			}

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				continue
			}
			logger.Warn("server error",
				zap.String("code", e.Err.Code), zap.String("message", e.Err.Message))
		}
	}
}

func rawArgs(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func spawnBatch(rng *rand.Rand, n int) protocol.ActMsg {
	act := protocol.ActMsg{Type: protocol.TypeAct}
	for i := 0; i < n; i++ {
		act.Intents = append(act.Intents, protocol.SubmitMsg{
			Verb: protocol.VerbSpawn,
			Args: rawArgs(map[string]any{
				"position": [3]float64{rng.Float64()*20 - 10, 2 + rng.Float64()*3, rng.Float64()*20 - 10},
				"size":     [3]float64{0.5, 0.5, 0.5},
				"kind":     "dynamic",
				"tint":     [3]float64{rng.Float64(), rng.Float64(), rng.Float64()},
			}),
		})
	}
	return act
}

func kick(rng *rand.Rand, id uint64) protocol.ActMsg {
	return protocol.ActMsg{
		Type: protocol.TypeAct,
		Intents: []protocol.SubmitMsg{{
			Verb: protocol.VerbApplyForce,
			Args: rawArgs(map[string]any{
				"id":    id,
				"force": [3]float64{rng.Float64()*10 - 5, rng.Float64() * 8, rng.Float64()*10 - 5},
			}),
		}},
	}
}

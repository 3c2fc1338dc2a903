package world

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// FrameSource yields journal frames in tick order. Next returns io.EOF when
// the journal is exhausted.
type FrameSource interface {
	Next() (Frame, error)
}

var (
	ErrReplayChecksum = errors.New("replay checksum mismatch")
	ErrReplayTick     = errors.New("replay tick discontinuity")
)

// RunReplay re-executes a journal against the world, verifying the checksum
// of every reproduced tick. Frames at or before the current tick are
// skipped, which lets a journal overlap the snapshot it resumed from.
// Replay is unpaced: ticks are stepped as fast as frames decode.
func (w *World) RunReplay(ctx context.Context, src FrameSource) (uint64, error) {
	envs := make([]IntentEnvelope, 0, 16)
	for {
		if err := ctx.Err(); err != nil {
			return w.tick, err
		}

		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			return w.tick, nil
		}
		if err != nil {
			return w.tick, err
		}

		want := w.tick + 1
		if frame.Tick < want {
			continue
		}
		if frame.Tick != want {
			return w.tick, fmt.Errorf("%w: journal jumps from tick %d to %d",
				ErrReplayTick, w.tick, frame.Tick)
		}

		envs = envs[:0]
		for _, in := range frame.Intents {
			envs = append(envs, IntentEnvelope{Intent: in, Session: "replay"})
		}
		tick, sum := w.StepOnce(envs)
		if sum != frame.Checksum {
			return tick, fmt.Errorf("%w at tick %d: got=%s want=%s",
				ErrReplayChecksum, tick, sum, frame.Checksum)
		}
		if tick%1000 == 0 {
			w.log.Debug("replay progress", zap.Uint64("tick", tick))
		}
	}
}

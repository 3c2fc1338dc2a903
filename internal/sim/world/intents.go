package world

import (
	"go.uber.org/zap"

	"github.com/uruley/Nexus/internal/protocol"
)

// applyIntent executes one envelope against the store. Called only from the
// loop goroutine, before physics, in queue order.
func (w *World) applyIntent(env IntentEnvelope) {
	in := env.Intent
	switch in.Verb {
	case protocol.VerbSpawn:
		if w.cfg.MaxEntities > 0 && w.store.len() >= w.cfg.MaxEntities {
			w.spawnsRejected++
			w.log.Warn("spawn rejected, entity cap reached",
				zap.Int("max_entities", w.cfg.MaxEntities),
				zap.String("session", env.Session))
			return
		}
		id := w.store.spawn(Entity{
			Kind: Kind(in.Kind),
			Pos:  vec3At(in.Position),
			Vel:  vec3At(in.Velocity),
			Half: vec3At(in.Size),
			Tint: vec3At(in.Tint),
		})
		if env.SpawnReply != nil {
			select {
			case env.SpawnReply <- id:
			default:
			}
		}

	case protocol.VerbMove:
		ok := w.store.mutate(EntityID(in.Target), func(e *Entity) {
			if in.Mode == protocol.MoveDelta {
				e.Pos = e.Pos.Add(vec3At(in.Delta))
			} else {
				e.Pos = vec3At(in.Position)
			}
		})
		if !ok {
			w.warnUnknownTarget(env)
			return
		}

	case protocol.VerbApplyForce:
		// Unit-mass impulse over one tick: dv = F * dt.
		ok := w.store.mutate(EntityID(in.Target), func(e *Entity) {
			e.Vel = e.Vel.Add(vec3At(in.Force).Scale(w.dt()))
		})
		if !ok {
			w.warnUnknownTarget(env)
			return
		}

	case protocol.VerbDespawn:
		if !w.store.despawn(EntityID(in.Target)) {
			w.warnUnknownTarget(env)
			return
		}

	case protocol.VerbSetTint:
		ok := w.store.mutate(EntityID(in.Target), func(e *Entity) {
			e.Tint = vec3At(in.Tint)
		})
		if !ok {
			w.warnUnknownTarget(env)
			return
		}

	default:
		// Only reachable with a hand-edited journal; validation rejects
		// unknown verbs at the boundary.
		w.log.Warn("skipping intent with unknown verb", zap.String("verb", in.Verb))
		return
	}
	w.intentsApplied++
}

func (w *World) warnUnknownTarget(env IntentEnvelope) {
	w.unknownTargets++
	w.log.Warn("intent target not found",
		zap.String("verb", env.Intent.Verb),
		zap.Uint64("target", env.Intent.Target),
		zap.String("session", env.Session))
}

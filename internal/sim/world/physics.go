package world

// stepPhysics advances every entity by one fixed timestep. Dynamic bodies
// accelerate under gravity, integrate, and clamp against the floor plane;
// kinematic bodies integrate their scripted velocity; static bodies only
// move through intents.
func (w *World) stepPhysics() {
	dt := w.dt()
	w.store.each(func(e *Entity) {
		switch e.Kind {
		case KindStatic:
			return
		case KindKinematic:
			e.Pos = e.Pos.Add(e.Vel.Scale(dt))
			return
		}

		e.Vel.Y += w.cfg.GravityY * dt
		e.Pos = e.Pos.Add(e.Vel.Scale(dt))

		if low := e.Pos.Y - e.Half.Y; low < w.cfg.FloorY {
			e.Pos.Y = w.cfg.FloorY + e.Half.Y
			e.Vel.Y = 0
		}
	})
}

package world

// WorldMetrics is a point-in-time sample written by the loop at the end of
// each step. Readers get the most recent sample; no aggregation happens here.
type WorldMetrics struct {
	Tick     uint64 `json:"tick"`
	Entities int    `json:"entities"`

	InboxDepth    int `json:"inbox_depth"`
	InboxCapacity int `json:"inbox_capacity"`

	StepMS float64 `json:"step_ms"`

	IntentsApplied uint64 `json:"intents_applied"`
	UnknownTargets uint64 `json:"unknown_targets"`
	SpawnsRejected uint64 `json:"spawns_rejected"`
	FrameLogErrors uint64 `json:"frame_log_errors"`
}

// Metrics returns the latest sample, or a zero value before the first step.
func (w *World) Metrics() WorldMetrics {
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) storeMetrics(stepMS float64) {
	w.metrics.Store(WorldMetrics{
		Tick:           w.tick,
		Entities:       w.store.len(),
		InboxDepth:     len(w.inbox),
		InboxCapacity:  cap(w.inbox),
		StepMS:         stepMS,
		IntentsApplied: w.intentsApplied,
		UnknownTargets: w.unknownTargets,
		SpawnsRejected: w.spawnsRejected,
		FrameLogErrors: w.frameLogErrors,
	})
}

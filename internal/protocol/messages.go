package protocol

// HELLO (client -> server). Since carries the last checksum the client holds,
// so the first stream frame can be an incremental diff instead of a snapshot.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Since           string `json:"since,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Session         string      `json:"session"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	TickRateHz int     `json:"tick_rate_hz"`
	GravityY   float64 `json:"gravity_y"`
	FloorY     float64 `json:"floor_y"`
}

// EntityWire is the wire form of one entity. Vectors are [x,y,z].
type EntityWire struct {
	ID       uint64     `json:"id"`
	Kind     string     `json:"kind"`
	Position [3]float64 `json:"position"`
	Velocity [3]float64 `json:"velocity"`
	Size     [3]float64 `json:"size"`
	Tint     [3]float64 `json:"tint"`
}

// SNAPSHOT (server -> client): the complete entity set at one tick, sorted by
// id. Doubles as the full-resync payload when a diff baseline is unknown.
type SnapshotMsg struct {
	Type     string       `json:"type"`
	Tick     uint64       `json:"tick"`
	Checksum string       `json:"checksum"`
	Entities []EntityWire `json:"entities"`
}

// DIFF (server -> client): the change set between two checksummed snapshots.
type DiffMsg struct {
	Type    string       `json:"type"`
	From    string       `json:"from"`
	To      string       `json:"to"`
	ToTick  uint64       `json:"to_tick"`
	Added   []EntityWire `json:"added"`
	Removed []uint64     `json:"removed"`
	Changed []EntityWire `json:"changed"`
}

// TICK (server -> client): heartbeat when the checksum did not move.
type TickMsg struct {
	Type     string `json:"type"`
	Tick     uint64 `json:"tick"`
	Checksum string `json:"checksum"`
}

// ACT (client -> server): a batch of intent submissions.
type ActMsg struct {
	Type    string      `json:"type"`
	Intents []SubmitMsg `json:"intents"`
}

// ACK (server -> client): one result per submitted intent, in order.
// Accepted spawns carry the assigned entity id once the tick applied them.
type AckMsg struct {
	Type       string      `json:"type"`
	ServerTick uint64      `json:"server_tick"`
	Results    []AckResult `json:"results"`
}

type AckResult struct {
	Accepted bool   `json:"accepted"`
	ID       uint64 `json:"id,omitempty"`
	Code     string `json:"code,omitempty"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type string    `json:"type"`
	Err  WireError `json:"error"`
}

// SubmitAccepted is the HTTP response body for accepted intent submissions.
// Acceptance means enqueued, not applied; Tick is the latest published tick.
type SubmitAccepted struct {
	Accepted bool   `json:"accepted"`
	Tick     uint64 `json:"tick"`
}

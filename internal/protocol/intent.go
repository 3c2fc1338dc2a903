package protocol

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Intent verbs.
const (
	VerbSpawn      = "Spawn"
	VerbMove       = "Move"
	VerbApplyForce = "ApplyForce"
	VerbDespawn    = "Despawn"
	VerbSetTint    = "SetTint"
)

// Move modes. Mode is a required field: absolute overwrites the position,
// delta adds to it.
const (
	MoveAbsolute = "absolute"
	MoveDelta    = "delta"
)

// Entity kinds, fixed at spawn.
const (
	KindDynamic   = "dynamic"
	KindKinematic = "kinematic"
	KindStatic    = "static"
)

// SubmitMsg is the wire shape of a single intent submission.
type SubmitMsg struct {
	Verb string          `json:"verb"`
	Args json.RawMessage `json:"args"`
}

// Intent is the normalized command consumed by the simulation and written to
// the journal. Exactly the fields meaningful for Verb are set; Spawn defaults
// (zero velocity, dynamic kind, white tint) are filled in during parsing so a
// journal frame replays without re-deriving them.
type Intent struct {
	Verb     string      `json:"verb"`
	Target   uint64      `json:"target,omitempty"`
	Mode     string      `json:"mode,omitempty"`
	Position *[3]float64 `json:"position,omitempty"`
	Delta    *[3]float64 `json:"delta,omitempty"`
	Velocity *[3]float64 `json:"velocity,omitempty"`
	Size     *[3]float64 `json:"size,omitempty"`
	Force    *[3]float64 `json:"force,omitempty"`
	Kind     string      `json:"kind,omitempty"`
	Tint     *[3]float64 `json:"tint,omitempty"`
}

type spawnArgs struct {
	Position *[3]float64 `json:"position"`
	Velocity *[3]float64 `json:"velocity"`
	Size     *[3]float64 `json:"size"`
	Kind     string      `json:"kind"`
	Tint     *[3]float64 `json:"tint"`
}

type moveArgs struct {
	ID       uint64      `json:"id"`
	Mode     string      `json:"mode"`
	Position *[3]float64 `json:"position"`
	Delta    *[3]float64 `json:"delta"`
}

type applyForceArgs struct {
	ID    uint64      `json:"id"`
	Force *[3]float64 `json:"force"`
}

type despawnArgs struct {
	ID uint64 `json:"id"`
}

type setTintArgs struct {
	ID    uint64      `json:"id"`
	Color *[3]float64 `json:"color"`
}

// ParseIntent validates one wire submission and returns the normalized
// Intent. Rejected payloads never reach the intent queue.
func ParseIntent(raw []byte) (Intent, *WireError) {
	var sub SubmitMsg
	if err := json.Unmarshal(raw, &sub); err != nil {
		return Intent{}, badRequest("malformed JSON: " + err.Error())
	}
	return ParseSubmit(sub)
}

// ParseSubmit is ParseIntent for submissions already decoded from an ACT
// batch.
func ParseSubmit(sub SubmitMsg) (Intent, *WireError) {
	switch sub.Verb {
	case VerbSpawn, VerbMove, VerbApplyForce, VerbDespawn, VerbSetTint:
	case "":
		return Intent{}, badRequest("missing verb")
	default:
		return Intent{}, badRequest("unknown verb: " + sub.Verb)
	}

	inst := map[string]any{"verb": sub.Verb}
	if len(sub.Args) > 0 {
		var args any
		if err := json.Unmarshal(sub.Args, &args); err != nil {
			return Intent{}, badRequest("bad args: " + err.Error())
		}
		inst["args"] = args
	}
	if err := intentSchema.Validate(inst); err != nil {
		return Intent{}, schemaError(err)
	}
	return normalizeIntent(sub)
}

func normalizeIntent(sub SubmitMsg) (Intent, *WireError) {
	in := Intent{Verb: sub.Verb}
	switch sub.Verb {
	case VerbSpawn:
		var a spawnArgs
		if err := json.Unmarshal(sub.Args, &a); err != nil {
			return Intent{}, badRequest("bad args: " + err.Error())
		}
		in.Position = a.Position
		in.Velocity = a.Velocity
		in.Size = a.Size
		in.Kind = a.Kind
		in.Tint = a.Tint
		if in.Velocity == nil {
			in.Velocity = &[3]float64{}
		}
		if in.Kind == "" {
			in.Kind = KindDynamic
		}
		if in.Tint == nil {
			in.Tint = &[3]float64{1, 1, 1}
		}
	case VerbMove:
		var a moveArgs
		if err := json.Unmarshal(sub.Args, &a); err != nil {
			return Intent{}, badRequest("bad args: " + err.Error())
		}
		in.Target = a.ID
		in.Mode = a.Mode
		in.Position = a.Position
		in.Delta = a.Delta
	case VerbApplyForce:
		var a applyForceArgs
		if err := json.Unmarshal(sub.Args, &a); err != nil {
			return Intent{}, badRequest("bad args: " + err.Error())
		}
		in.Target = a.ID
		in.Force = a.Force
	case VerbDespawn:
		var a despawnArgs
		if err := json.Unmarshal(sub.Args, &a); err != nil {
			return Intent{}, badRequest("bad args: " + err.Error())
		}
		in.Target = a.ID
	case VerbSetTint:
		var a setTintArgs
		if err := json.Unmarshal(sub.Args, &a); err != nil {
			return Intent{}, badRequest("bad args: " + err.Error())
		}
		in.Target = a.ID
		in.Tint = a.Color
	}
	if werr := ValidateIntent(in); werr != nil {
		return Intent{}, werr
	}
	return in, nil
}

// ValidateIntent checks a normalized Intent: required fields per verb, mode
// membership, numeric finiteness and ranges. It is the same gate ParseIntent
// applies, exposed for intents built in code rather than decoded from JSON.
func ValidateIntent(in Intent) *WireError {
	switch in.Verb {
	case VerbSpawn:
		if in.Position == nil {
			return invalid("args.position", "required")
		}
		if in.Size == nil {
			return invalid("args.size", "required")
		}
		if !finiteVec(in.Position) {
			return invalid("args.position", "components must be finite")
		}
		if !finiteVec(in.Velocity) {
			return invalid("args.velocity", "components must be finite")
		}
		if !finiteVec(in.Size) {
			return invalid("args.size", "components must be finite")
		}
		for _, c := range in.Size {
			if c <= 0 {
				return invalid("args.size", "half-extents must be positive")
			}
		}
		switch in.Kind {
		case KindDynamic, KindKinematic, KindStatic:
		default:
			return invalid("args.kind", "unknown kind: "+in.Kind)
		}
		if werr := validTint(in.Tint, "args.tint"); werr != nil {
			return werr
		}
	case VerbMove:
		if in.Target == 0 {
			return invalid("args.id", "required")
		}
		switch in.Mode {
		case MoveAbsolute:
			if in.Position == nil {
				return invalid("args.position", "required for absolute moves")
			}
			if !finiteVec(in.Position) {
				return invalid("args.position", "components must be finite")
			}
		case MoveDelta:
			if in.Delta == nil {
				return invalid("args.delta", "required for delta moves")
			}
			if !finiteVec(in.Delta) {
				return invalid("args.delta", "components must be finite")
			}
		case "":
			return invalid("args.mode", "required")
		default:
			return invalid("args.mode", "must be \"absolute\" or \"delta\"")
		}
	case VerbApplyForce:
		if in.Target == 0 {
			return invalid("args.id", "required")
		}
		if in.Force == nil {
			return invalid("args.force", "required")
		}
		if !finiteVec(in.Force) {
			return invalid("args.force", "components must be finite")
		}
	case VerbDespawn:
		if in.Target == 0 {
			return invalid("args.id", "required")
		}
	case VerbSetTint:
		if in.Target == 0 {
			return invalid("args.id", "required")
		}
		if in.Tint == nil {
			return invalid("args.color", "required")
		}
		if werr := validTint(in.Tint, "args.color"); werr != nil {
			return werr
		}
	default:
		return badRequest("unknown verb: " + in.Verb)
	}
	return nil
}

func validTint(v *[3]float64, field string) *WireError {
	if !finiteVec(v) {
		return invalid(field, "components must be finite")
	}
	for _, c := range v {
		if c < 0 || c > 1 {
			return invalid(field, "components must be within [0,1]")
		}
	}
	return nil
}

func finiteVec(v *[3]float64) bool {
	if v == nil {
		return true
	}
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func schemaError(err error) *WireError {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return invalid("", err.Error())
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	field := strings.ReplaceAll(strings.TrimPrefix(leaf.InstanceLocation, "/"), "/", ".")
	return invalid(field, leaf.Message)
}

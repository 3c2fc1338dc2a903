package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Intent intake.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrValidation   = "E_VALIDATION"
	ErrWorldBusy    = "E_WORLD_BUSY"
	ErrReplayActive = "E_REPLAY_ACTIVE"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrBadRequest:      {},
	ErrValidation:      {},
	ErrWorldBusy:       {},
	ErrReplayActive:    {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// WireError is the structured error carried in responses and ERROR frames.
// Field names the offending intent field when validation rejected it.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *WireError) Error() string {
	if e.Field != "" {
		return e.Code + " (" + e.Field + "): " + e.Message
	}
	return e.Code + ": " + e.Message
}

func badRequest(msg string) *WireError {
	return &WireError{Code: ErrBadRequest, Message: msg}
}

func invalid(field, msg string) *WireError {
	return &WireError{Code: ErrValidation, Message: msg, Field: field}
}

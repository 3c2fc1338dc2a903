// Package httpapi exposes the polling surface: full snapshots, diffs keyed
// by checksum, and intent submission. Stateless; browser and script clients
// that do not hold a websocket poll here.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/uruley/Nexus/internal/protocol"
	"github.com/uruley/Nexus/internal/sim/world"
)

const maxIntentBody = 64 * 1024

type API struct {
	w   *world.World
	log *zap.Logger
}

func New(w *world.World, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{w: w, log: log}
}

func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/snapshot", a.handleSnapshot)
	mux.HandleFunc("/v1/diff", a.handleDiff)
	mux.HandleFunc("/v1/intents", a.handleIntents)
}

func (a *API) handleSnapshot(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(rw, http.StatusOK, a.w.Engine().Latest().WireMsg())
}

// handleDiff serves the change set since the client's checksum. A checksum
// outside the retained window degrades to a full snapshot in the same
// response, so clients never need a second round trip.
func (a *API) handleDiff(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	raw := r.URL.Query().Get("since")
	if raw == "" {
		writeWireError(rw, http.StatusBadRequest, &protocol.WireError{
			Code: protocol.ErrValidation, Field: "since", Message: "required",
		})
		return
	}
	since, err := world.ParseChecksum(raw)
	if err != nil {
		writeWireError(rw, http.StatusBadRequest, &protocol.WireError{
			Code: protocol.ErrValidation, Field: "since", Message: err.Error(),
		})
		return
	}

	diff, ok := a.w.Engine().DiffSince(since)
	if !ok {
		a.log.Debug("diff window miss, serving full snapshot", zap.String("since", raw))
		writeJSON(rw, http.StatusOK, a.w.Engine().Latest().WireMsg())
		return
	}
	writeJSON(rw, http.StatusOK, diff.WireMsg())
}

func (a *API) handleIntents(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, maxIntentBody))
	if err != nil {
		writeWireError(rw, http.StatusBadRequest, &protocol.WireError{
			Code: protocol.ErrBadRequest, Message: "body unreadable or too large",
		})
		return
	}

	intent, werr := protocol.ParseIntent(body)
	if werr != nil {
		writeWireError(rw, http.StatusBadRequest, werr)
		return
	}

	// Fire and forget: spawn ids are not reported over HTTP. Clients that
	// need the id use the websocket ACK path.
	err = a.w.Submit(world.IntentEnvelope{Intent: intent, Session: r.RemoteAddr})
	switch err {
	case nil:
	case world.ErrWorldBusy:
		writeWireError(rw, http.StatusServiceUnavailable, &protocol.WireError{
			Code: protocol.ErrWorldBusy, Message: "intent queue full, retry later",
		})
		return
	case world.ErrReplayActive:
		writeWireError(rw, http.StatusConflict, &protocol.WireError{
			Code: protocol.ErrReplayActive, Message: "replay in progress, world is read only",
		})
		return
	default:
		a.log.Error("submit failed", zap.Error(err))
		writeWireError(rw, http.StatusInternalServerError, &protocol.WireError{
			Code: protocol.ErrInternal, Message: "submit failed",
		})
		return
	}

	writeJSON(rw, http.StatusAccepted, protocol.SubmitAccepted{
		Accepted: true,
		Tick:     a.w.CurrentTick(),
	})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeWireError(rw http.ResponseWriter, status int, werr *protocol.WireError) {
	writeJSON(rw, status, protocol.ErrorMsg{Type: protocol.TypeError, Err: *werr})
}

package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/uruley/Nexus/internal/protocol"
	"github.com/uruley/Nexus/internal/sim/world"
)

func testWorld(t *testing.T, mutate func(*world.Config)) *world.World {
	t.Helper()
	cfg := world.Config{
		RunID:         "test",
		TickRateHz:    30,
		GravityY:      -9.81,
		FloorY:        0,
		HistoryTicks:  64,
		InboxCapacity: 64,
		MaxEntities:   128,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	w, err := world.New(cfg, nil)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return w
}

func testServer(t *testing.T, w *world.World) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	New(w, nil).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func spawnStatic(t *testing.T, w *world.World, pos [3]float64) world.EntityID {
	t.Helper()
	p := pos
	size := [3]float64{1, 1, 1}
	reply := make(chan world.EntityID, 1)
	w.StepOnce([]world.IntentEnvelope{{
		Intent: protocol.Intent{
			Verb: protocol.VerbSpawn, Kind: protocol.KindStatic,
			Position: &p, Size: &size,
		},
		SpawnReply: reply,
	}})
	select {
	case id := <-reply:
		return id
	default:
		t.Fatalf("no spawn id")
		return 0
	}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestSnapshotEndpoint(t *testing.T) {
	w := testWorld(t, nil)
	spawnStatic(t, w, [3]float64{1, 2, 3})
	srv := testServer(t, w)

	var snap protocol.SnapshotMsg
	if code := getJSON(t, srv.URL+"/v1/snapshot", &snap); code != http.StatusOK {
		t.Fatalf("status=%d want=200", code)
	}
	if snap.Type != protocol.TypeSnapshot {
		t.Fatalf("type=%q want=%q", snap.Type, protocol.TypeSnapshot)
	}
	if snap.Tick != 1 || len(snap.Entities) != 1 {
		t.Fatalf("tick=%d entities=%d", snap.Tick, len(snap.Entities))
	}
	if want := w.Engine().Latest().Checksum.String(); snap.Checksum != want {
		t.Fatalf("checksum=%s want=%s", snap.Checksum, want)
	}
	if snap.Entities[0].Position != [3]float64{1, 2, 3} {
		t.Fatalf("position=%v", snap.Entities[0].Position)
	}

	resp, err := http.Post(srv.URL+"/v1/snapshot", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST status=%d want=405", resp.StatusCode)
	}
}

func TestDiffEndpointServesIncrement(t *testing.T) {
	w := testWorld(t, nil)
	id := spawnStatic(t, w, [3]float64{0, 1, 0})
	since := w.Engine().Latest().Checksum.String()

	newPos := [3]float64{5, 1, 0}
	w.StepOnce([]world.IntentEnvelope{{Intent: protocol.Intent{
		Verb: protocol.VerbMove, Target: uint64(id), Mode: protocol.MoveAbsolute, Position: &newPos,
	}}})
	srv := testServer(t, w)

	var diff protocol.DiffMsg
	if code := getJSON(t, srv.URL+"/v1/diff?since="+since, &diff); code != http.StatusOK {
		t.Fatalf("status=%d want=200", code)
	}
	if diff.Type != protocol.TypeDiff {
		t.Fatalf("type=%q want=%q", diff.Type, protocol.TypeDiff)
	}
	if diff.From != since || diff.ToTick != 2 {
		t.Fatalf("from=%s to_tick=%d", diff.From, diff.ToTick)
	}
	if len(diff.Changed) != 1 || diff.Changed[0].Position != newPos {
		t.Fatalf("changed=%+v", diff.Changed)
	}
	if len(diff.Added) != 0 || len(diff.Removed) != 0 {
		t.Fatalf("added=%v removed=%v want empty", diff.Added, diff.Removed)
	}
}

func TestDiffUnknownChecksumFallsBackToSnapshot(t *testing.T) {
	w := testWorld(t, nil)
	spawnStatic(t, w, [3]float64{0, 1, 0})
	srv := testServer(t, w)

	var base protocol.BaseMessage
	code := getJSON(t, srv.URL+"/v1/diff?since=ffffffffffffffff", &base)
	if code != http.StatusOK {
		t.Fatalf("status=%d want=200", code)
	}
	if base.Type != protocol.TypeSnapshot {
		t.Fatalf("type=%q want full snapshot resync", base.Type)
	}
}

func TestDiffRejectsBadChecksum(t *testing.T) {
	w := testWorld(t, nil)
	srv := testServer(t, w)

	for _, q := range []string{"", "zzzz", "123"} {
		var msg protocol.ErrorMsg
		code := getJSON(t, srv.URL+"/v1/diff?since="+q, &msg)
		if code != http.StatusBadRequest {
			t.Fatalf("since=%q status=%d want=400", q, code)
		}
		if msg.Err.Code != protocol.ErrValidation || msg.Err.Field != "since" {
			t.Fatalf("since=%q error=%+v", q, msg.Err)
		}
	}
}

func TestSubmitIntentAcceptedAndApplied(t *testing.T) {
	w := testWorld(t, nil)
	srv := testServer(t, w)

	body := `{"verb":"Spawn","args":{"position":[0,0.5,0],"size":[0.5,0.5,0.5]}}`
	var acc protocol.SubmitAccepted
	if code := postJSON(t, srv.URL+"/v1/intents", body, &acc); code != http.StatusAccepted {
		t.Fatalf("status=%d want=202", code)
	}
	if !acc.Accepted {
		t.Fatalf("accepted=false")
	}

	w.StepTick()
	if got := w.Engine().Latest().Len(); got != 1 {
		t.Fatalf("entities after tick=%d want=1", got)
	}
}

func TestSubmitIntentValidationError(t *testing.T) {
	w := testWorld(t, nil)
	srv := testServer(t, w)

	body := `{"verb":"Spawn","args":{"position":[0,0.5,0]}}`
	var msg protocol.ErrorMsg
	if code := postJSON(t, srv.URL+"/v1/intents", body, &msg); code != http.StatusBadRequest {
		t.Fatalf("status=%d want=400", code)
	}
	if msg.Err.Code != protocol.ErrValidation {
		t.Fatalf("code=%q want=%q", msg.Err.Code, protocol.ErrValidation)
	}
	if !strings.Contains(msg.Err.Field, "size") {
		t.Fatalf("field=%q want mention of size", msg.Err.Field)
	}
}

func TestSubmitMalformedJSON(t *testing.T) {
	w := testWorld(t, nil)
	srv := testServer(t, w)

	var msg protocol.ErrorMsg
	if code := postJSON(t, srv.URL+"/v1/intents", `{"verb":`, &msg); code != http.StatusBadRequest {
		t.Fatalf("status=%d want=400", code)
	}
	if msg.Err.Code != protocol.ErrBadRequest {
		t.Fatalf("code=%q want=%q", msg.Err.Code, protocol.ErrBadRequest)
	}
}

func TestSubmitWorldBusy(t *testing.T) {
	w := testWorld(t, func(cfg *world.Config) { cfg.InboxCapacity = 1 })
	srv := testServer(t, w)

	body := `{"verb":"Spawn","args":{"position":[0,0.5,0],"size":[0.5,0.5,0.5]}}`
	if code := postJSON(t, srv.URL+"/v1/intents", body, nil); code != http.StatusAccepted {
		t.Fatalf("first status=%d want=202", code)
	}
	var msg protocol.ErrorMsg
	if code := postJSON(t, srv.URL+"/v1/intents", body, &msg); code != http.StatusServiceUnavailable {
		t.Fatalf("second status=%d want=503", code)
	}
	if msg.Err.Code != protocol.ErrWorldBusy {
		t.Fatalf("code=%q want=%q", msg.Err.Code, protocol.ErrWorldBusy)
	}
}

func TestSubmitRejectedDuringReplay(t *testing.T) {
	w := testWorld(t, func(cfg *world.Config) { cfg.Replay = true })
	srv := testServer(t, w)

	body := `{"verb":"Spawn","args":{"position":[0,0.5,0],"size":[0.5,0.5,0.5]}}`
	var msg protocol.ErrorMsg
	if code := postJSON(t, srv.URL+"/v1/intents", body, &msg); code != http.StatusConflict {
		t.Fatalf("status=%d want=409", code)
	}
	if msg.Err.Code != protocol.ErrReplayActive {
		t.Fatalf("code=%q want=%q", msg.Err.Code, protocol.ErrReplayActive)
	}
}

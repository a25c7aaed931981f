package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boristopalov/rlab/internal/store"
	"github.com/boristopalov/rlab/pkg/agent"
	"github.com/boristopalov/rlab/pkg/config"
	"github.com/boristopalov/rlab/pkg/core"
	"github.com/boristopalov/rlab/pkg/environment"
	"github.com/boristopalov/rlab/pkg/messaging"
	"github.com/boristopalov/rlab/pkg/mode"
)

type fakeSession struct {
	status core.SessionStatus
}

func (f fakeSession) GetStatus() core.SessionStatus { return f.status }

func testServer(t *testing.T) (*Server, *store.DB) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	env, err := environment.NewBandit(0, config.EnvSpec{NumBodies: 2, Arms: 3})
	if err != nil {
		t.Fatalf("NewBandit: %v", err)
	}
	spec := &config.AgentSpec{
		Algorithm: map[string]any{"name": "Random"},
		Memory:    map[string]any{"name": "Replay", "batch_size": 2, "max_size": 10},
	}
	bodies, err := agent.NewBodies([]core.Environment{env}, spec, "cpu", 0)
	if err != nil {
		t.Fatalf("NewBodies: %v", err)
	}
	a, err := agent.New(spec, bodies, agent.WithMode(mode.Static(mode.Train)), agent.WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("agent.New: %v", err)
	}
	if err := a.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	// Random sets explore_var to NaN
	if _, err := a.Algorithm().SpaceUpdate(context.Background()); err != nil {
		t.Fatalf("SpaceUpdate: %v", err)
	}

	broker := messaging.NewBroker()
	rec := messaging.NewRecorder("server", 10)
	rec.Attach(broker)
	for i := 1; i <= 3; i++ {
		broker.Publish(messaging.Message{
			From:    "session-1",
			Topic:   messaging.TopicStep,
			Content: messaging.StepEvent{Step: i, Rewards: map[string]float64{"(0,0)": 1}},
		})
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go rec.Run(ctx)
	deadline := time.Now().Add(time.Second)
	for len(rec.Recent(0)) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	sess := fakeSession{status: core.SessionStatus{
		Running:   true,
		Step:      12,
		Episode:   1,
		StartTime: time.Now(),
		Errors:    []error{errors.New("env 0: boom")},
	}}
	return New(db, a, sess, rec, "test"), db
}

func get(t *testing.T, srv *Server, path string, into any) int {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if into != nil && w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
			t.Fatalf("decode %s: %v; body: %s", path, err, w.Body.String())
		}
	}
	return w.Code
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	var resp map[string]any
	if code := get(t, srv, "/api/health", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp["status"] != "ok" || resp["db"] != true || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
}

func TestSession(t *testing.T) {
	srv, _ := testServer(t)
	var resp struct {
		Running bool     `json:"running"`
		Step    int      `json:"step"`
		Errors  []string `json:"errors"`
	}
	if code := get(t, srv, "/api/session", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !resp.Running || resp.Step != 12 || len(resp.Errors) != 1 || resp.Errors[0] != "env 0: boom" {
		t.Errorf("session = %+v", resp)
	}
}

func TestAlgorithm(t *testing.T) {
	srv, _ := testServer(t)
	var resp map[string]any
	if code := get(t, srv, "/api/algorithm", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp["name"] != "Random" || resp["lab_mode"] != "train" {
		t.Errorf("algorithm = %v", resp)
	}
}

func TestBodies(t *testing.T) {
	srv, _ := testServer(t)
	var resp []bodyView
	if code := get(t, srv, "/api/bodies", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(resp) != 2 || resp[0].Coord != "(0,0)" || resp[1].Coord != "(0,1)" {
		t.Fatalf("bodies = %+v", resp)
	}
	v, ok := resp[0].Vars["explore_var"]
	if !ok || v != nil {
		t.Errorf("NaN explore_var should encode as null, got %v %v", v, ok)
	}
}

func TestEvents(t *testing.T) {
	srv, _ := testServer(t)
	var resp struct {
		Events []eventView `json:"events"`
	}
	if code := get(t, srv, "/api/events?n=2", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(resp.Events) != 2 || resp.Events[0].Topic != messaging.TopicStep {
		t.Errorf("events = %+v", resp.Events)
	}
	if code := get(t, srv, "/api/events?n=x", nil); code != http.StatusBadRequest {
		t.Errorf("bad n status = %d, want 400", code)
	}
}

func TestCheckpoints(t *testing.T) {
	srv, db := testServer(t)
	err := db.SaveCheckpoint(context.Background(), &store.Checkpoint{
		Algorithm: "Random", Net: "net", Ckpt: "final", Params: []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	var resp struct {
		Algorithm   string           `json:"algorithm"`
		Checkpoints []checkpointView `json:"checkpoints"`
	}
	if code := get(t, srv, "/api/checkpoints", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.Algorithm != "Random" || len(resp.Checkpoints) != 1 || resp.Checkpoints[0].Ckpt != "final" {
		t.Errorf("checkpoints = %+v", resp)
	}
}

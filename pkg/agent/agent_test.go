package agent

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/boristopalov/rlab/pkg/algorithm/llmpolicy"
	"github.com/boristopalov/rlab/pkg/algorithm/random"
	"github.com/boristopalov/rlab/pkg/body"
	"github.com/boristopalov/rlab/pkg/config"
	"github.com/boristopalov/rlab/pkg/core"
	"github.com/boristopalov/rlab/pkg/environment"
	"github.com/boristopalov/rlab/pkg/mode"
)

// MockCompleter implements providers.Completer for testing
type MockCompleter struct{}

func (m *MockCompleter) Complete(ctx context.Context, model, prompt, system string) (string, error) {
	return "ANSWER: 1", nil
}

func testEnvs(t *testing.T, bodiesPerEnv ...int) []core.Environment {
	t.Helper()
	var envs []core.Environment
	for i, n := range bodiesPerEnv {
		env, err := environment.NewBandit(i, config.EnvSpec{NumBodies: n, Arms: 3})
		if err != nil {
			t.Fatalf("NewBandit: %v", err)
		}
		envs = append(envs, env)
	}
	return envs
}

func testSpec(alg string) *config.AgentSpec {
	return &config.AgentSpec{
		Name:      "test_agent",
		Algorithm: map[string]any{"name": alg},
		Memory:    map[string]any{"name": "Replay", "batch_size": 2, "max_size": 10},
	}
}

func TestNewAgent(t *testing.T) {
	spec := testSpec("Random")
	bodies, err := NewBodies(testEnvs(t, 2, 1), spec, "cpu", 1)
	if err != nil {
		t.Fatalf("NewBodies: %v", err)
	}
	// hand them over out of order
	shuffled := []*body.Body{bodies[2], bodies[1], bodies[0]}

	a, err := New(spec, shuffled, WithID("test-agent"), WithMode(mode.Static(mode.Dev)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := a.GetID(); got != "test-agent" {
		t.Errorf("GetID() = %v, want %v", got, "test-agent")
	}
	if a.Body() != bodies[0] {
		t.Errorf("default body = %v, want (0,0)", a.Body().Coord())
	}
	want := []core.Coord{{E: 0, B: 0}, {E: 0, B: 1}, {E: 1, B: 0}}
	for i, b := range a.Bodies() {
		if b.Coord() != want[i] {
			t.Errorf("body %d = %v, want %v", i, b.Coord(), want[i])
		}
		if b.Memory == nil {
			t.Errorf("body %v has no memory", b.Coord())
		}
	}
	if s := a.Shape(); s.Envs != 2 || s.Bodies != 2 {
		t.Errorf("Shape() = %+v, want 2x2", s)
	}
}

func TestDefaultAgentID(t *testing.T) {
	spec := testSpec("Random")
	bodies, _ := NewBodies(testEnvs(t, 1), spec, "", 0)
	a, err := New(spec, bodies)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !strings.HasPrefix(a.GetID(), "agent-") {
		t.Errorf("GetID() = %q, want agent- prefix", a.GetID())
	}
	if _, err := New(spec, nil); !errors.Is(err, ErrNoBodies) {
		t.Errorf("New without bodies error = %v, want ErrNoBodies", err)
	}
}

func TestInitSelectsAlgorithm(t *testing.T) {
	tests := []struct {
		alg     string
		opts    []AgentOption
		wantErr bool
		check   func(t *testing.T, a *Agent)
	}{
		{
			alg: "Random",
			check: func(t *testing.T, a *Agent) {
				if _, ok := a.Algorithm().Algorithm().(*random.Random); !ok {
					t.Errorf("algorithm is %T, want *random.Random", a.Algorithm().Algorithm())
				}
			},
		},
		{
			alg:  "LLMPolicy",
			opts: []AgentOption{WithCompleter(&MockCompleter{})},
			check: func(t *testing.T, a *Agent) {
				if _, ok := a.Algorithm().Algorithm().(*llmpolicy.LLMPolicy); !ok {
					t.Errorf("algorithm is %T, want *llmpolicy.LLMPolicy", a.Algorithm().Algorithm())
				}
				act, err := a.Algorithm().Act(context.Background(), core.State{1})
				if err != nil || act != 1 {
					t.Errorf("Act = %d, %v; want 1", act, err)
				}
			},
		},
		{alg: "LLMPolicy", wantErr: true},
		{alg: "PPO", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.alg, func(t *testing.T) {
			var logs bytes.Buffer
			spec := testSpec(tt.alg)
			bodies, _ := NewBodies(testEnvs(t, 1), spec, "", 0)
			opts := append([]AgentOption{WithMode(mode.Static(mode.Train)), WithLogger(log.New(&logs, "", 0))}, tt.opts...)
			a, err := New(spec, bodies, opts...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if _, err := a.Controller(); !errors.Is(err, ErrNotInitialized) {
				t.Errorf("Controller before Init error = %v", err)
			}

			err = a.Init(context.Background())
			if tt.wantErr {
				if !errors.Is(err, config.ErrSpec) {
					t.Errorf("Init error = %v, want ErrSpec", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Init: %v", err)
			}
			if !strings.Contains(logs.String(), "initialized "+tt.alg) {
				t.Errorf("missing init log, got %q", logs.String())
			}
			tt.check(t, a)
		})
	}
}

func TestAlgorithmsListed(t *testing.T) {
	names := strings.Join(Algorithms(), ",")
	if !strings.Contains(names, "LLMPolicy") || !strings.Contains(names, "Random") {
		t.Errorf("Algorithms() = %s", names)
	}
}

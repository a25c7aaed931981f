package algorithm

import (
	"bytes"
	"context"
	"log"
	"testing"

	"github.com/boristopalov/rlab/pkg/body"
	"github.com/boristopalov/rlab/pkg/config"
	"github.com/boristopalov/rlab/pkg/core"
	"github.com/boristopalov/rlab/pkg/memory"
	"github.com/boristopalov/rlab/pkg/mode"
	"github.com/boristopalov/rlab/pkg/net"
)

type stubEnv struct{ index int }

func (e stubEnv) Index() int                   { return e.index }
func (e stubEnv) NumBodies() int               { return 1 }
func (e stubEnv) StateDim() int                { return 2 }
func (e stubEnv) ActionDim() int               { return 3 }
func (e stubEnv) Reset() ([]core.State, error) { return nil, nil }
func (e stubEnv) Step(ctx context.Context, actions []core.Action) (core.StepResult, error) {
	return core.StepResult{}, nil
}

// testHost is an agent with bodiesPerEnv[e] bodies in environment e.
type testHost struct {
	spec    *config.AgentSpec
	bodies  []*body.Body
	mode    mode.Query
	builder net.Builder
	logs    *bytes.Buffer
	logger  *log.Logger
}

func newTestHost(t *testing.T, algSpec map[string]any, bodiesPerEnv ...int) *testHost {
	t.Helper()
	if len(bodiesPerEnv) == 0 {
		bodiesPerEnv = []int{1}
	}
	h := &testHost{
		spec: &config.AgentSpec{
			Name:      "test",
			Algorithm: algSpec,
			Net:       map[string]any{"hid_layers": []any{4}, "seed": 7},
			Memory:    map[string]any{"name": "Replay", "batch_size": 100, "max_size": 100},
		},
		mode: mode.Static(mode.Train),
		logs: &bytes.Buffer{},
	}
	h.logger = log.New(h.logs, "", 0)
	for e, n := range bodiesPerEnv {
		for b := 0; b < n; b++ {
			h.bodies = append(h.bodies, body.New(stubEnv{index: e}, b, body.WithMemory(memory.NewReplay(100, 100, 1))))
		}
	}
	return h
}

func (h *testHost) Spec() *config.AgentSpec { return h.spec }
func (h *testHost) Body() *body.Body        { return h.bodies[0] }
func (h *testHost) Bodies() []*body.Body    { return h.bodies }
func (h *testHost) Mode() mode.Query        { return h.mode }
func (h *testHost) Builder() net.Builder    { return h.builder }
func (h *testHost) Logger() *log.Logger     { return h.logger }
func (h *testHost) Shape() core.Shape {
	coords := make([]core.Coord, 0, len(h.bodies))
	for _, b := range h.bodies {
		coords = append(coords, b.Coord())
	}
	return core.ShapeOf(coords)
}

type spyBuilder struct {
	saves    int
	loads    int
	lastCkpt string
}

func (s *spyBuilder) SaveAlgorithm(ctx context.Context, alg net.Persistable, ckpt string) error {
	s.saves++
	s.lastCkpt = ckpt
	return nil
}

func (s *spyBuilder) LoadAlgorithm(ctx context.Context, alg net.Persistable) error {
	s.loads++
	return nil
}

// spyAlgorithm counts calls and encodes the body it ran on in its results.
type spyAlgorithm struct {
	Base
	netNames     []string
	skipDeclare  bool
	skipPostInit bool
	requireKey   string

	acted       []core.Coord
	trainCalls  int
	updateCalls int
}

func (s *spyAlgorithm) InitAlgorithmParams() error {
	if s.requireKey != "" {
		if _, err := config.Float(s.AlgorithmSpec, s.requireKey); err != nil {
			return err
		}
	}
	return nil
}

func (s *spyAlgorithm) InitNets(ctx context.Context, global *net.Registry) error {
	if !s.skipDeclare {
		s.DeclareNets(s.netNames...)
	}
	if s.skipPostInit {
		return nil
	}
	return s.PostInitNets(ctx)
}

func (s *spyAlgorithm) Act(ctx context.Context, b *body.Body, state core.State) (core.Action, error) {
	s.acted = append(s.acted, b.Coord())
	return core.Action(10*b.E + b.B), nil
}

func (s *spyAlgorithm) Sample(ctx context.Context, b *body.Body) (memory.Batch, error) {
	return b.Memory.Sample()
}

func (s *spyAlgorithm) Train(ctx context.Context, b *body.Body) (float64, error) {
	s.trainCalls++
	return float64(10*b.E + b.B), nil
}

func (s *spyAlgorithm) Update(ctx context.Context, b *body.Body) (float64, error) {
	s.updateCalls++
	v := float64(100 + 10*b.E + b.B)
	b.SetVar(body.ExploreVar, v)
	return v, nil
}

// bareAlgorithm implements only the required tier.
type bareAlgorithm struct {
	Base
}

func (a *bareAlgorithm) InitAlgorithmParams() error { return nil }
func (a *bareAlgorithm) InitNets(ctx context.Context, global *net.Registry) error {
	a.DeclareNets()
	return a.PostInitNets(ctx)
}
func (a *bareAlgorithm) Sample(ctx context.Context, b *body.Body) (memory.Batch, error) {
	return memory.NewBatch(), nil
}
func (a *bareAlgorithm) Train(ctx context.Context, b *body.Body) (float64, error)  { return 0, nil }
func (a *bareAlgorithm) Update(ctx context.Context, b *body.Body) (float64, error) { return 0, nil }

func newController(t *testing.T, h *testHost, impl Algorithm) *Controller {
	t.Helper()
	c, err := New(context.Background(), h, impl, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

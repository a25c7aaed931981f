package linearq

import (
	"bytes"
	"context"
	"log"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/boristopalov/rlab/internal/store"
	"github.com/boristopalov/rlab/pkg/algorithm"
	"github.com/boristopalov/rlab/pkg/body"
	"github.com/boristopalov/rlab/pkg/config"
	"github.com/boristopalov/rlab/pkg/core"
	"github.com/boristopalov/rlab/pkg/memory"
	"github.com/boristopalov/rlab/pkg/mode"
	"github.com/boristopalov/rlab/pkg/net"
)

type stubEnv struct{}

func (stubEnv) Index() int                   { return 0 }
func (stubEnv) NumBodies() int               { return 1 }
func (stubEnv) StateDim() int                { return 2 }
func (stubEnv) ActionDim() int               { return 3 }
func (stubEnv) Reset() ([]core.State, error) { return nil, nil }
func (stubEnv) Step(ctx context.Context, actions []core.Action) (core.StepResult, error) {
	return core.StepResult{}, nil
}

type host struct {
	spec    *config.AgentSpec
	bodies  []*body.Body
	mode    mode.Query
	builder net.Builder
	logs    bytes.Buffer
}

func (h *host) Spec() *config.AgentSpec { return h.spec }
func (h *host) Body() *body.Body        { return h.bodies[0] }
func (h *host) Bodies() []*body.Body    { return h.bodies }
func (h *host) Shape() core.Shape       { return core.Shape{Envs: 1, Bodies: len(h.bodies)} }
func (h *host) Mode() mode.Query        { return h.mode }
func (h *host) Builder() net.Builder    { return h.builder }
func (h *host) Logger() *log.Logger     { return log.New(&h.logs, "", 0) }

func newHost(m string, builder net.Builder) *host {
	return &host{
		spec: &config.AgentSpec{
			Algorithm: map[string]any{
				"name":  "LinearQ",
				"gamma": 0.0,
				"lr":    0.5,
				"explore_var_spec": map[string]any{
					"name":       "linear_decay",
					"start_val":  1.0,
					"end_val":    0.0,
					"start_step": 0,
					"end_step":   10,
				},
			},
			Net: map[string]any{"init_std": 0.01, "seed": 1},
		},
		bodies:  []*body.Body{body.New(stubEnv{}, 0, body.WithMemory(memory.NewReplay(100, 32, 1)))},
		mode:    mode.Static(m),
		builder: builder,
	}
}

// fill stores transitions where only arm 2 pays.
func fill(t *testing.T, b *body.Body) {
	t.Helper()
	for i := 0; i < 30; i++ {
		a := core.Action(i % 3)
		r := 0.0
		if a == 2 {
			r = 1
		}
		err := b.Memory.Update(core.Transition{State: core.State{1, 0}, Action: a, Reward: r, NextState: core.State{1, 0}})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
}

func TestLinearQLearnsBestArm(t *testing.T) {
	ctx := context.Background()
	h := newHost(mode.Train, nil)
	c, err := algorithm.New(ctx, h, New(), nil)
	if err != nil {
		t.Fatalf("algorithm.New: %v", err)
	}
	if names := c.NetNames(); len(names) != 1 || names[0] != NetName {
		t.Fatalf("NetNames = %v", names)
	}
	fill(t, h.Body())

	first, err := c.Train(ctx)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	var last float64
	for i := 0; i < 50; i++ {
		if last, err = c.Train(ctx); err != nil {
			t.Fatalf("Train: %v", err)
		}
	}
	if last >= first {
		t.Errorf("loss did not fall: first %v last %v", first, last)
	}

	for i := 0; i < 10; i++ {
		if _, err := c.Update(ctx); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	if v, _ := h.Body().Var(body.ExploreVar); v != 0 {
		t.Fatalf("explore_var = %v, want 0 after decay", v)
	}
	a, err := c.Act(ctx, core.State{1, 0})
	if err != nil {
		t.Fatalf("Act: %v", err)
	}
	if a != 2 {
		t.Errorf("greedy action = %d, want 2", a)
	}

	logits, err := c.CalcPdparam(mat.NewDense(1, 2, []float64{1, 0}), true, nil)
	if err != nil {
		t.Fatalf("CalcPdparam: %v", err)
	}
	if r, cols := logits.Dims(); r != 1 || cols != 3 {
		t.Errorf("logits dims = %dx%d, want 1x3", r, cols)
	}
}

func TestLinearQSaveLoad(t *testing.T) {
	ctx := context.Background()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()
	builder := net.NewSQLiteBuilder(db)

	h := newHost(mode.Train, builder)
	trained, err := algorithm.New(ctx, h, New(), nil)
	if err != nil {
		t.Fatalf("algorithm.New: %v", err)
	}
	fill(t, h.Body())
	for i := 0; i < 5; i++ {
		trained.Train(ctx)
	}
	if err := trained.Save(ctx, "final"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	eh := newHost(mode.Enjoy, builder)
	restored, err := algorithm.New(ctx, eh, New(), nil)
	if err != nil {
		t.Fatalf("algorithm.New in enjoy: %v", err)
	}
	want, _ := trained.Algorithm().(*LinearQ).Net(NetName)
	got, _ := restored.Algorithm().(*LinearQ).Net(NetName)
	for k, p := range want.Params() {
		if !mat.Equal(p, got.Params()[k]) {
			t.Errorf("param %s not restored", k)
		}
	}
	if v, _ := eh.Body().Var(body.ExploreVar); v != 0 {
		t.Errorf("explore_var after load = %v, want end value 0", v)
	}

	x := mat.NewDense(1, 2, []float64{1, 0})
	before, err := trained.CalcPdparam(x, true, nil)
	if err != nil {
		t.Fatalf("CalcPdparam trained: %v", err)
	}
	after, err := restored.CalcPdparam(x, true, nil)
	if err != nil {
		t.Fatalf("CalcPdparam restored: %v", err)
	}
	if !mat.Equal(before, after) {
		t.Errorf("restored logits = %v, want %v", mat.Formatted(after), mat.Formatted(before))
	}

	for i := 0; i < 3; i++ {
		if _, err := restored.SpaceUpdate(ctx); err != nil {
			t.Fatalf("SpaceUpdate: %v", err)
		}
		if v, _ := eh.Body().Var(body.ExploreVar); v != 0 {
			t.Errorf("explore_var after eval update %d = %v, want end value 0", i+1, v)
		}
	}
}

func TestLinearQAdoptsGlobalNet(t *testing.T) {
	ctx := context.Background()
	shared, err := net.NewMLP(map[string]any{"hid_layers": []int{}}, 2, 3, "cpu")
	if err != nil {
		t.Fatalf("NewMLP: %v", err)
	}
	global := net.NewRegistry()
	global.Add(NetName, shared)

	c, err := algorithm.New(ctx, newHost(mode.Train, nil), New(), global)
	if err != nil {
		t.Fatalf("algorithm.New: %v", err)
	}
	if n, _ := c.Algorithm().(*LinearQ).Net(NetName); n != net.Net(shared) {
		t.Error("global net was not adopted")
	}
}

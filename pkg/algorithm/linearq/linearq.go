// Package linearq implements epsilon-greedy Q-learning with a linear value
// function, one output per action.
package linearq

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/boristopalov/rlab/pkg/algorithm"
	"github.com/boristopalov/rlab/pkg/body"
	"github.com/boristopalov/rlab/pkg/config"
	"github.com/boristopalov/rlab/pkg/core"
	"github.com/boristopalov/rlab/pkg/memory"
	"github.com/boristopalov/rlab/pkg/net"
	"github.com/boristopalov/rlab/pkg/schedule"
)

// NetName is the name the value net is declared and saved under.
const NetName = "net"

type LinearQ struct {
	algorithm.Base

	Gamma float64
	LR    float64

	rng   *rand.Rand
	steps map[string]int
	mu    sync.Mutex
}

func New() *LinearQ {
	return &LinearQ{steps: make(map[string]int)}
}

func (q *LinearQ) InitAlgorithmParams() error {
	var err error
	if q.Gamma, err = config.FloatOr(q.AlgorithmSpec, "gamma", 0.9); err != nil {
		return err
	}
	if q.LR, err = config.FloatOr(q.AlgorithmSpec, "lr", 0.1); err != nil {
		return err
	}
	if q.Gamma < 0 || q.Gamma > 1 {
		return fmt.Errorf("%w: gamma %v outside [0, 1]", config.ErrSpec, q.Gamma)
	}
	seed, err := config.IntOr(q.AlgorithmSpec, "seed", 0)
	if err != nil {
		return err
	}
	q.rng = rand.New(rand.NewSource(int64(seed)))

	exploreSpec := map[string]any{"name": "no_decay", "start_val": 0.1}
	if _, ok := q.AlgorithmSpec["explore_var_spec"]; ok {
		if exploreSpec, err = config.Map(q.AlgorithmSpec, "explore_var_spec"); err != nil {
			return err
		}
	}
	sched, err := schedule.New(exploreSpec)
	if err != nil {
		return fmt.Errorf("explore_var_spec: %w", err)
	}
	q.RegisterScheduler(body.ExploreVar, sched)
	for _, b := range q.Host().Bodies() {
		b.SetVar(body.ExploreVar, sched.StartVal())
		b.SetVar(body.LR, q.LR)
	}
	return nil
}

// InitNets adopts the global net when one is shared, otherwise builds a
// linear net sized to the default body.
func (q *LinearQ) InitNets(ctx context.Context, global *net.Registry) error {
	n, ok := global.Get(NetName)
	if !ok {
		spec := map[string]any{}
		for k, v := range q.NetSpec {
			spec[k] = v
		}
		spec["hid_layers"] = []int{}
		b := q.Body()
		mlp, err := net.NewMLP(spec, b.StateDim, b.ActionDim, b.Device)
		if err != nil {
			return err
		}
		n = mlp
	}
	q.AddNet(NetName, n)
	q.DeclareNets(NetName)
	return q.PostInitNets(ctx)
}

// CalcPdparam returns the Q value of every action as logits.
func (q *LinearQ) CalcPdparam(x *mat.Dense, evaluate bool, n net.Net) (*mat.Dense, error) {
	if n == nil {
		var ok bool
		if n, ok = q.Net(NetName); !ok {
			return nil, fmt.Errorf("linearq: net %q not built", NetName)
		}
	}
	return n.Forward(x), nil
}

func (q *LinearQ) Act(ctx context.Context, b *body.Body, state core.State) (core.Action, error) {
	q.mu.Lock()
	explore := false
	if eps, ok := b.Var(body.ExploreVar); ok && q.rng.Float64() < eps {
		explore = true
	}
	if explore {
		a := b.SampleAction(q.rng)
		q.mu.Unlock()
		return a, nil
	}
	q.mu.Unlock()

	if len(state) == 0 {
		return 0, fmt.Errorf("linearq: empty state for body %s", b.Coord())
	}
	x := mat.NewDense(1, len(state), append([]float64(nil), state...))
	logits, err := q.CalcPdparam(x, false, nil)
	if err != nil {
		return 0, err
	}
	return core.Action(argmax(logits.RawRowView(0))), nil
}

func (q *LinearQ) Sample(ctx context.Context, b *body.Body) (memory.Batch, error) {
	if b.Memory == nil {
		return memory.NewBatch(), nil
	}
	return b.Memory.Sample()
}

// Train takes one semi-gradient TD(0) step over a sampled batch and
// returns the mean squared TD error.
func (q *LinearQ) Train(ctx context.Context, b *body.Body) (float64, error) {
	batch, err := q.Sample(ctx, b)
	if err != nil {
		return math.NaN(), err
	}
	if batch.Len() == 0 {
		return math.NaN(), nil
	}
	n, ok := q.Net(NetName)
	if !ok {
		return math.NaN(), fmt.Errorf("linearq: net %q not built", NetName)
	}
	tb, err := memory.ToTensor(batch, b.Device, false)
	if err != nil {
		return math.NaN(), err
	}

	qs := n.Forward(tb.Fields[memory.States])
	next := n.Forward(tb.Fields[memory.NextStates])
	params := n.Params()
	w, bias := params["w0"], params["b0"]

	rows, _ := qs.Dims()
	loss := 0.0
	for i := 0; i < rows; i++ {
		a := int(tb.Fields[memory.Actions].At(i, 0))
		r := tb.Fields[memory.Rewards].At(i, 0)
		notDone := 1 - tb.Fields[memory.Dones].At(i, 0)
		target := r + q.Gamma*notDone*maxOf(next.RawRowView(i))
		td := target - qs.At(i, a)
		loss += td * td

		step := q.LR * td / float64(rows)
		s := tb.Fields[memory.States].RawRowView(i)
		for j, x := range s {
			w.Set(j, a, w.At(j, a)+step*x)
		}
		bias.Set(0, a, bias.At(0, a)+step)
	}
	if err := n.SetParams(params); err != nil {
		return math.NaN(), err
	}
	return loss / float64(rows), nil
}

func (q *LinearQ) Update(ctx context.Context, b *body.Body) (float64, error) {
	sched, ok := q.Scheduler(body.ExploreVar)
	if !ok {
		return math.NaN(), nil
	}
	q.mu.Lock()
	q.steps[b.ID]++
	step := q.steps[b.ID]
	q.mu.Unlock()

	v := q.DecayVar(sched, step)
	b.SetVar(body.ExploreVar, v)
	return v, nil
}

func argmax(v []float64) int {
	best := 0
	for i := range v {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func maxOf(v []float64) float64 {
	return v[argmax(v)]
}

package algorithm

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/boristopalov/rlab/pkg/body"
	"github.com/boristopalov/rlab/pkg/core"
	"github.com/boristopalov/rlab/pkg/memory"
	"github.com/boristopalov/rlab/pkg/net"
)

// Controller is an initialized algorithm bound to its host. Single-body
// methods act on the host's default body; the Space methods run the same
// operation over every body.
//
// A Controller is not safe for concurrent use.
type Controller struct {
	impl Algorithm
	base *Base
	host Host
}

// New binds impl to host and initializes it: spec capture, parameters,
// then nets. global may hold nets shared with other algorithm instances.
func New(ctx context.Context, host Host, impl Algorithm, global *net.Registry) (*Controller, error) {
	b := impl.base()
	if err := b.bind(host); err != nil {
		return nil, fmt.Errorf("algorithm spec: %w", err)
	}
	if err := impl.InitAlgorithmParams(); err != nil {
		return nil, fmt.Errorf("init %s params: %w", b.name, err)
	}
	if err := impl.InitNets(ctx, global); err != nil {
		return nil, fmt.Errorf("init %s nets: %w", b.name, err)
	}
	if !b.postInitDone {
		return nil, &ContractError{
			Op:        "init_nets",
			Algorithm: b.name,
			Err:       fmt.Errorf("%w: PostInitNets was not called", ErrContractViolation),
		}
	}

	c := &Controller{impl: impl, base: b, host: host}
	b.Logger().Print(c.Describe())
	return c, nil
}

// Name returns the algorithm name
func (c *Controller) Name() string {
	return c.base.name
}

// Algorithm returns the wrapped implementation
func (c *Controller) Algorithm() Algorithm {
	return c.impl
}

// NetNames returns the declared net names
func (c *Controller) NetNames() []string {
	return c.base.NetNames()
}

// Body returns the default body. Dispatch never rebinds it.
func (c *Controller) Body() *body.Body {
	return c.host.Body()
}

// CalcPdparam forwards x, which must hold states of the default body's
// observation space.
func (c *Controller) CalcPdparam(x *mat.Dense, evaluate bool, n net.Net) (*mat.Dense, error) {
	if _, cols := x.Dims(); cols != c.Body().StateDim {
		return nil, fmt.Errorf("calc_pdparam: input has %d columns, body state has %d", cols, c.Body().StateDim)
	}
	return c.impl.CalcPdparam(x, evaluate, n)
}

func (c *Controller) Act(ctx context.Context, state core.State) (core.Action, error) {
	return c.impl.Act(ctx, c.Body(), state)
}

func (c *Controller) Sample(ctx context.Context) (memory.Batch, error) {
	return c.impl.Sample(ctx, c.Body())
}

// Train runs one training step on the default body. In an evaluation mode
// it returns NaN without training.
func (c *Controller) Train(ctx context.Context) (float64, error) {
	return c.train(ctx, c.Body())
}

func (c *Controller) train(ctx context.Context, b *body.Body) (float64, error) {
	if c.base.Mode().InEval() {
		return math.NaN(), nil
	}
	return c.impl.Train(ctx, b)
}

func (c *Controller) Update(ctx context.Context) (float64, error) {
	return c.impl.Update(ctx, c.Body())
}

// Save persists the algorithm's nets under the checkpoint tag ckpt.
func (c *Controller) Save(ctx context.Context, ckpt string) error {
	return c.base.Save(ctx, ckpt)
}

// Load restores the algorithm's nets and pins scheduled variables.
func (c *Controller) Load(ctx context.Context) error {
	return c.base.Load(ctx)
}

// Describe returns a multi-line summary of the algorithm's configuration.
func (c *Controller) Describe() string {
	b := c.base
	var sb strings.Builder
	fmt.Fprintf(&sb, "%T:", c.impl)
	fmt.Fprintf(&sb, "\n- name = %s", b.name)
	fmt.Fprintf(&sb, "\n- algorithm_spec = %s", describeSpec(b.AlgorithmSpec))
	if b.NetSpec != nil {
		fmt.Fprintf(&sb, "\n- net_spec = %s", describeSpec(b.NetSpec))
	}
	if b.MemorySpec != nil {
		fmt.Fprintf(&sb, "\n- memory_spec = %s", describeSpec(b.MemorySpec))
	}
	fmt.Fprintf(&sb, "\n- net_names = %v", b.netNames)
	for _, sv := range b.schedulers {
		fmt.Fprintf(&sb, "\n- %s_scheduler = %T", sv.name, sv.scheduler)
	}
	fmt.Fprintf(&sb, "\n- bodies = %d", len(c.host.Bodies()))
	return sb.String()
}

func describeSpec(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, m[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

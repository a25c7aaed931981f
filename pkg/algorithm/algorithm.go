// Package algorithm defines the contract every learning algorithm of the
// lab implements, and the controller that drives an implementation over
// one or many bodies.
package algorithm

import (
	"context"
	"log"

	"gonum.org/v1/gonum/mat"

	"github.com/boristopalov/rlab/pkg/body"
	"github.com/boristopalov/rlab/pkg/config"
	"github.com/boristopalov/rlab/pkg/core"
	"github.com/boristopalov/rlab/pkg/memory"
	"github.com/boristopalov/rlab/pkg/mode"
	"github.com/boristopalov/rlab/pkg/net"
	"github.com/boristopalov/rlab/pkg/schedule"
)

// Host is the agent that owns an algorithm.
type Host interface {
	// Spec is the agent's declarative spec
	Spec() *config.AgentSpec
	// Body is the default body, the first of Bodies
	Body() *body.Body
	// Bodies lists every body ordered by environment, then body index
	Bodies() []*body.Body
	// Shape is the (environment x body) grid the bodies live in
	Shape() core.Shape
	Mode() mode.Query
	// Builder persists nets; it may be nil for algorithms without nets
	Builder() net.Builder
	Logger() *log.Logger
}

// Policy is the optional tier of the contract. Base implements both
// methods by returning ErrNotSupported.
type Policy interface {
	// CalcPdparam runs net forward on x and returns the parameters of the
	// action distribution: logits for discrete actions.
	CalcPdparam(x *mat.Dense, evaluate bool, n net.Net) (*mat.Dense, error)
	// Act picks one action for b in state.
	Act(ctx context.Context, b *body.Body, state core.State) (core.Action, error)
}

// Algorithm is the required tier. Implementations embed Base.
type Algorithm interface {
	Policy

	// InitAlgorithmParams reads hyperparameters from the algorithm spec.
	InitAlgorithmParams() error
	// InitNets builds or adopts nets, declares them with DeclareNets and
	// finishes by calling PostInitNets.
	InitNets(ctx context.Context, global *net.Registry) error
	// Sample draws one training batch from b's memory.
	Sample(ctx context.Context, b *body.Body) (memory.Batch, error)
	// Train runs one training step for b and returns the loss.
	Train(ctx context.Context, b *body.Body) (float64, error)
	// Update advances b's exploration variable and returns its new value.
	Update(ctx context.Context, b *body.Body) (float64, error)

	base() *Base
}

type scheduledVar struct {
	name      string
	scheduler schedule.Scheduler
}

// Base carries the state shared by every algorithm: its spec sections,
// its declared nets and its decay schedulers.
type Base struct {
	AlgorithmSpec map[string]any
	NetSpec       map[string]any
	MemorySpec    map[string]any // nil when the agent has no memory

	host         Host
	name         string
	netNames     []string
	netsDeclared bool
	nets         map[string]net.Net
	schedulers   []scheduledVar
	postInitDone bool
}

func (b *Base) base() *Base { return b }

// bind captures the agent's spec sections.
func (b *Base) bind(h Host) error {
	spec := h.Spec()
	name, err := config.String(spec.Algorithm, "name")
	if err != nil {
		return err
	}
	b.host = h
	b.name = name
	b.AlgorithmSpec = spec.Algorithm
	b.NetSpec = spec.Net
	if spec.HasMemory() {
		b.MemorySpec = spec.Memory
	}
	if b.nets == nil {
		b.nets = make(map[string]net.Net)
	}
	return nil
}

// Name returns the algorithm name from the spec
func (b *Base) Name() string {
	return b.name
}

// Host returns the owning agent
func (b *Base) Host() Host {
	return b.host
}

// Body returns the host's default body.
func (b *Base) Body() *body.Body {
	return b.host.Body()
}

func (b *Base) Mode() mode.Query {
	if m := b.host.Mode(); m != nil {
		return m
	}
	return mode.FromEnv()
}

func (b *Base) Logger() *log.Logger {
	if l := b.host.Logger(); l != nil {
		return l
	}
	return log.Default()
}

// DeclareNets records the names of every net the algorithm owns. Calling
// it with no names declares an algorithm without nets.
func (b *Base) DeclareNets(names ...string) {
	b.netNames = append([]string{}, names...)
	b.netsDeclared = true
}

// NetNames returns the declared net names in declaration order
func (b *Base) NetNames() []string {
	return append([]string(nil), b.netNames...)
}

// AddNet stores n under name so builders can find it.
func (b *Base) AddNet(name string, n net.Net) {
	if b.nets == nil {
		b.nets = make(map[string]net.Net)
	}
	b.nets[name] = n
}

func (b *Base) Net(name string) (net.Net, bool) {
	n, ok := b.nets[name]
	return n, ok
}

// RegisterScheduler ties a body variable to the scheduler decaying it.
// On Load the variable is pinned to the scheduler's end value.
func (b *Base) RegisterScheduler(varName string, s schedule.Scheduler) {
	b.schedulers = append(b.schedulers, scheduledVar{name: varName, scheduler: s})
}

// Scheduler returns the scheduler registered for varName.
func (b *Base) Scheduler(varName string) (schedule.Scheduler, bool) {
	for _, sv := range b.schedulers {
		if sv.name == varName {
			return sv.scheduler, true
		}
	}
	return nil, false
}

// DecayVar returns the value of a scheduled variable at step. In an
// evaluation mode a scheduler with an end value stays pinned to it.
func (b *Base) DecayVar(s schedule.Scheduler, step int) float64 {
	if ev, ok := s.(schedule.EndValuer); ok && b.Mode().InEval() {
		return ev.EndVal()
	}
	return s.Update(step)
}

func (b *Base) CalcPdparam(x *mat.Dense, evaluate bool, n net.Net) (*mat.Dense, error) {
	return nil, &ContractError{Op: "calc_pdparam", Algorithm: b.name, Err: ErrNotSupported}
}

func (b *Base) Act(ctx context.Context, bd *body.Body, state core.State) (core.Action, error) {
	return 0, &ContractError{Op: "act", Algorithm: b.name, Err: ErrNotSupported}
}

package body

import (
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"github.com/boristopalov/rlab/pkg/core"
	"github.com/boristopalov/rlab/pkg/memory"
)

// Well-known body variables.
const (
	ExploreVar  = "explore_var"
	EntropyCoef = "entropy_coef"
	LR          = "lr"
)

// Body binds one agent to one slot of one environment. It carries the
// memory and the live values of decayable variables for that slot.
type Body struct {
	ID        string
	E         int
	B         int
	Env       core.Environment
	Memory    memory.Memory
	Device    string
	StateDim  int
	ActionDim int

	vars map[string]float64
	mu   sync.RWMutex
}

type Params struct {
	ID     string
	Device string
	Memory memory.Memory
}

type Option func(*Params)

func WithID(id string) Option {
	return func(p *Params) {
		p.ID = id
	}
}

func WithDevice(device string) Option {
	return func(p *Params) {
		p.Device = device
	}
}

func WithMemory(m memory.Memory) Option {
	return func(p *Params) {
		p.Memory = m
	}
}

// New creates the body in slot b of env.
func New(env core.Environment, b int, opts ...Option) *Body {
	params := &Params{
		ID:     "body-" + uuid.New().String(),
		Device: "cpu",
	}
	for _, opt := range opts {
		opt(params)
	}

	return &Body{
		ID:        params.ID,
		E:         env.Index(),
		B:         b,
		Env:       env,
		Memory:    params.Memory,
		Device:    params.Device,
		StateDim:  env.StateDim(),
		ActionDim: env.ActionDim(),
		vars:      make(map[string]float64),
	}
}

// Coord returns the body's (environment, body) coordinate
func (b *Body) Coord() core.Coord {
	return core.Coord{E: b.E, B: b.B}
}

// Var returns the live value of a decayable variable.
func (b *Body) Var(name string) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.vars[name]
	return v, ok
}

func (b *Body) SetVar(name string, v float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vars[name] = v
}

// Vars returns a copy of every variable set on the body.
func (b *Body) Vars() map[string]float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]float64, len(b.vars))
	for k, v := range b.vars {
		out[k] = v
	}
	return out
}

// SampleAction draws a uniformly random action from the body's action space.
func (b *Body) SampleAction(rng *rand.Rand) core.Action {
	if b.ActionDim <= 0 {
		return 0
	}
	return core.Action(rng.Intn(b.ActionDim))
}

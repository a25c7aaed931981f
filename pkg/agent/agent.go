// Package agent hosts an algorithm over the bodies it controls.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/google/uuid"

	"github.com/boristopalov/rlab/pkg/algorithm"
	"github.com/boristopalov/rlab/pkg/body"
	"github.com/boristopalov/rlab/pkg/config"
	"github.com/boristopalov/rlab/pkg/core"
	"github.com/boristopalov/rlab/pkg/memory"
	"github.com/boristopalov/rlab/pkg/mode"
	"github.com/boristopalov/rlab/pkg/net"
	"github.com/boristopalov/rlab/pkg/providers"
)

var (
	ErrNoBodies       = errors.New("agent has no bodies")
	ErrNotInitialized = errors.New("agent is not initialized")
)

// Agent owns one algorithm and every body it acts for. It implements
// algorithm.Host.
type Agent struct {
	id         string
	spec       *config.AgentSpec
	bodies     []*body.Body
	shape      core.Shape
	mode       mode.Query
	builder    net.Builder
	logger     *log.Logger
	global     *net.Registry
	completer  providers.Completer
	controller *algorithm.Controller
}

type AgentParams struct {
	AgentID    string
	Mode       mode.Query
	Builder    net.Builder
	Logger     *log.Logger
	GlobalNets *net.Registry
	Completer  providers.Completer
}

type AgentOption func(*AgentParams)

func WithID(id string) AgentOption {
	return func(p *AgentParams) {
		p.AgentID = id
	}
}

func WithMode(m mode.Query) AgentOption {
	return func(p *AgentParams) {
		p.Mode = m
	}
}

func WithBuilder(b net.Builder) AgentOption {
	return func(p *AgentParams) {
		p.Builder = b
	}
}

func WithLogger(l *log.Logger) AgentOption {
	return func(p *AgentParams) {
		p.Logger = l
	}
}

// WithGlobalNets shares nets across agents.
func WithGlobalNets(r *net.Registry) AgentOption {
	return func(p *AgentParams) {
		p.GlobalNets = r
	}
}

// WithCompleter supplies the language model for LLM-backed algorithms.
func WithCompleter(c providers.Completer) AgentOption {
	return func(p *AgentParams) {
		p.Completer = c
	}
}

func defaultAgentParams() *AgentParams {
	return &AgentParams{
		AgentID: "agent-" + uuid.New().String(),
		Mode:    mode.FromEnv(),
		Logger:  log.Default(),
	}
}

// New creates an agent over bodies. Bodies are ordered by environment,
// then body index, so the first one is the default body.
func New(spec *config.AgentSpec, bodies []*body.Body, opts ...AgentOption) (*Agent, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: nil agent spec", config.ErrSpec)
	}
	if len(bodies) == 0 {
		return nil, ErrNoBodies
	}
	params := defaultAgentParams()
	for _, opt := range opts {
		opt(params)
	}

	ordered := make([]*body.Body, len(bodies))
	copy(ordered, bodies)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].E != ordered[j].E {
			return ordered[i].E < ordered[j].E
		}
		return ordered[i].B < ordered[j].B
	})
	coords := make([]core.Coord, len(ordered))
	for i, b := range ordered {
		coords[i] = b.Coord()
	}

	return &Agent{
		id:        params.AgentID,
		spec:      spec,
		bodies:    ordered,
		shape:     core.ShapeOf(coords),
		mode:      params.Mode,
		builder:   params.Builder,
		logger:    params.Logger,
		global:    params.GlobalNets,
		completer: params.Completer,
	}, nil
}

// Init builds the algorithm named in the spec and runs its
// initialization.
func (a *Agent) Init(ctx context.Context) error {
	name, err := config.String(a.spec.Algorithm, "name")
	if err != nil {
		return fmt.Errorf("agent.algorithm: %w", err)
	}
	impl, err := newAlgorithm(name, a)
	if err != nil {
		return err
	}
	c, err := algorithm.New(ctx, a, impl, a.global)
	if err != nil {
		return err
	}
	a.controller = c
	return nil
}

// Algorithm returns the controller built by Init, or nil before it.
func (a *Agent) Algorithm() *algorithm.Controller {
	return a.controller
}

// Controller is Algorithm with an error when Init has not run.
func (a *Agent) Controller() (*algorithm.Controller, error) {
	if a.controller == nil {
		return nil, ErrNotInitialized
	}
	return a.controller, nil
}

func (a *Agent) GetID() string { return a.id }

func (a *Agent) Spec() *config.AgentSpec { return a.spec }
func (a *Agent) Body() *body.Body        { return a.bodies[0] }
func (a *Agent) Bodies() []*body.Body    { return a.bodies }
func (a *Agent) Shape() core.Shape       { return a.shape }
func (a *Agent) Mode() mode.Query        { return a.mode }
func (a *Agent) Builder() net.Builder    { return a.builder }
func (a *Agent) Logger() *log.Logger     { return a.logger }

// NewBodies creates one body per slot of every env, each with its own
// memory built from the agent's memory spec.
func NewBodies(envs []core.Environment, spec *config.AgentSpec, device string, seed int64) ([]*body.Body, error) {
	var bodies []*body.Body
	for _, env := range envs {
		for b := 0; b < env.NumBodies(); b++ {
			opts := []body.Option{}
			if device != "" {
				opts = append(opts, body.WithDevice(device))
			}
			if spec.HasMemory() {
				mem, err := memory.New(spec.Memory, seed+int64(len(bodies)))
				if err != nil {
					return nil, fmt.Errorf("memory for body (%d,%d): %w", env.Index(), b, err)
				}
				opts = append(opts, body.WithMemory(mem))
			}
			bodies = append(bodies, body.New(env, b, opts...))
		}
	}
	return bodies, nil
}

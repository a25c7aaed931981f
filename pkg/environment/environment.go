// Package environment holds the environments bodies act in.
package environment

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/boristopalov/rlab/pkg/config"
	"github.com/boristopalov/rlab/pkg/core"
)

var (
	ErrEpisodeDone   = errors.New("episode is done; call Reset")
	ErrActionCount   = errors.New("wrong number of actions")
	ErrInvalidAction = errors.New("action out of range")
	ErrUnknownEnv    = errors.New("unknown environment")
)

// Environment is the lab's environment contract.
type Environment = core.Environment

type State struct {
	Status    string
	Step      int
	Episode   int
	Timestamp time.Time
}

// BaseEnvironment tracks the episode clock shared by every environment.
type BaseEnvironment struct {
	index     int
	numBodies int
	maxT      int
	state     State
	mu        sync.RWMutex
}

func NewBaseEnvironment(index, numBodies, maxT int) *BaseEnvironment {
	return &BaseEnvironment{
		index:     index,
		numBodies: numBodies,
		maxT:      maxT,
		state: State{
			Status:    "idle",
			Timestamp: time.Now(),
		},
	}
}

func (e *BaseEnvironment) Index() int     { return e.index }
func (e *BaseEnvironment) NumBodies() int { return e.numBodies }
func (e *BaseEnvironment) MaxT() int      { return e.maxT }

func (e *BaseEnvironment) GetState() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// begin starts a new episode.
func (e *BaseEnvironment) begin() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Status = "running"
	e.state.Step = 0
	e.state.Episode++
	e.state.Timestamp = time.Now()
}

// tick validates actions and advances the clock; done reports whether this
// step ends the episode.
func (e *BaseEnvironment) tick(actions []core.Action, actionDim int) (done bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Status != "running" {
		return false, ErrEpisodeDone
	}
	if len(actions) != e.numBodies {
		return false, fmt.Errorf("%w: got %d, env %d has %d bodies", ErrActionCount, len(actions), e.index, e.numBodies)
	}
	for b, a := range actions {
		if a < 0 || int(a) >= actionDim {
			return false, fmt.Errorf("%w: body %d chose %d of %d", ErrInvalidAction, b, a, actionDim)
		}
	}
	e.state.Step++
	e.state.Timestamp = time.Now()
	if e.state.Step >= e.maxT {
		e.state.Status = "done"
		return true, nil
	}
	return false, nil
}

// NewFromSpec builds the environment named by spec at position index.
func NewFromSpec(index int, spec config.EnvSpec) (Environment, error) {
	switch spec.Name {
	case "bandit", "":
		return NewBandit(index, spec)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEnv, spec.Name)
	}
}

package environment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/boristopalov/rlab/pkg/config"
	"github.com/boristopalov/rlab/pkg/core"
)

const (
	defaultArms  = 2
	defaultMaxT  = 10
	defaultNoise = 0.1
)

// Bandit is a k-armed contextual bandit. Each step every body observes a
// one-hot context and is paid the mean reward of its (context, arm) pair
// plus Gaussian noise.
type Bandit struct {
	*BaseEnvironment

	arms     int
	contexts int
	noise    float64
	means    [][]float64
	current  []int // context index per body
	rng      *rand.Rand
	rngMu    sync.Mutex
}

func NewBandit(index int, spec config.EnvSpec) (*Bandit, error) {
	if spec.NumBodies < 1 {
		return nil, fmt.Errorf("%w: bandit needs at least one body", config.ErrSpec)
	}
	arms := spec.Arms
	if arms == 0 {
		arms = defaultArms
	}
	if arms < 2 {
		return nil, fmt.Errorf("%w: bandit needs at least 2 arms, got %d", config.ErrSpec, arms)
	}
	contexts := spec.Contexts
	if contexts < 1 {
		contexts = 1
	}
	maxT := spec.MaxT
	if maxT < 1 {
		maxT = defaultMaxT
	}
	noise := spec.Noise
	if noise < 0 {
		return nil, fmt.Errorf("%w: negative noise %v", config.ErrSpec, noise)
	}
	if noise == 0 {
		noise = defaultNoise
	}

	rng := rand.New(rand.NewSource(spec.Seed + int64(index)))
	means := make([][]float64, contexts)
	for c := range means {
		means[c] = make([]float64, arms)
		for a := range means[c] {
			means[c][a] = rng.NormFloat64()
		}
	}

	return &Bandit{
		BaseEnvironment: NewBaseEnvironment(index, spec.NumBodies, maxT),
		arms:            arms,
		contexts:        contexts,
		noise:           noise,
		means:           means,
		current:         make([]int, spec.NumBodies),
		rng:             rng,
	}, nil
}

func (e *Bandit) StateDim() int  { return e.contexts }
func (e *Bandit) ActionDim() int { return e.arms }

// Mean returns the expected reward of arm in context c.
func (e *Bandit) Mean(c, arm int) float64 {
	return e.means[c][arm]
}

// BestArm returns the arm with the highest mean reward in context c.
func (e *Bandit) BestArm(c int) int {
	best := 0
	for a, m := range e.means[c] {
		if m > e.means[c][best] {
			best = a
		}
	}
	return best
}

func (e *Bandit) Reset() ([]core.State, error) {
	e.begin()
	return e.observe(), nil
}

func (e *Bandit) Step(ctx context.Context, actions []core.Action) (core.StepResult, error) {
	done, err := e.tick(actions, e.arms)
	if err != nil {
		return core.StepResult{}, err
	}

	e.rngMu.Lock()
	rewards := make([]float64, len(actions))
	for b, a := range actions {
		rewards[b] = e.means[e.current[b]][a] + e.noise*e.rng.NormFloat64()
	}
	e.rngMu.Unlock()

	return core.StepResult{
		States:  e.observe(),
		Rewards: rewards,
		Done:    done,
	}, nil
}

// observe draws a fresh context for every body.
func (e *Bandit) observe() []core.State {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	states := make([]core.State, e.NumBodies())
	for b := range states {
		c := 0
		if e.contexts > 1 {
			c = e.rng.Intn(e.contexts)
		}
		e.current[b] = c
		s := make(core.State, e.contexts)
		s[c] = 1
		states[b] = s
	}
	return states
}

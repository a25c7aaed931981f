// Package random implements a policy that acts uniformly at random. It
// never learns and is used to smoke-test environments and the lab loop.
package random

import (
	"context"
	"math"
	"math/rand"

	"github.com/boristopalov/rlab/pkg/algorithm"
	"github.com/boristopalov/rlab/pkg/body"
	"github.com/boristopalov/rlab/pkg/config"
	"github.com/boristopalov/rlab/pkg/core"
	"github.com/boristopalov/rlab/pkg/memory"
	"github.com/boristopalov/rlab/pkg/net"
)

// Random acts uniformly in every discrete action space.
type Random struct {
	algorithm.Base

	ToTrain           int
	TrainingFrequency int
	TrainingStartStep int

	rng *rand.Rand
}

// New returns an uninitialized Random; pass it to algorithm.New.
func New() *Random {
	return &Random{}
}

func (r *Random) InitAlgorithmParams() error {
	seed, err := config.IntOr(r.AlgorithmSpec, "seed", 0)
	if err != nil {
		return err
	}
	r.ToTrain = 0
	r.TrainingFrequency = 1
	r.TrainingStartStep = 0
	r.rng = rand.New(rand.NewSource(int64(seed)))
	return nil
}

func (r *Random) InitNets(ctx context.Context, global *net.Registry) error {
	r.DeclareNets()
	return r.PostInitNets(ctx)
}

func (r *Random) Act(ctx context.Context, b *body.Body, state core.State) (core.Action, error) {
	return b.SampleAction(r.rng), nil
}

// Sample exercises the body's memory but returns an empty batch since
// there is nothing to learn.
func (r *Random) Sample(ctx context.Context, b *body.Body) (memory.Batch, error) {
	if b.Memory != nil {
		if _, err := b.Memory.Sample(); err != nil {
			return memory.Batch{}, err
		}
	}
	return memory.NewBatch(), nil
}

func (r *Random) Train(ctx context.Context, b *body.Body) (float64, error) {
	if _, err := r.Sample(ctx, b); err != nil {
		return math.NaN(), err
	}
	return math.NaN(), nil
}

func (r *Random) Update(ctx context.Context, b *body.Body) (float64, error) {
	b.SetVar(body.ExploreVar, math.NaN())
	return math.NaN(), nil
}

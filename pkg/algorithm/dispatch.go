package algorithm

import (
	"context"
	"fmt"
	"math"

	"github.com/boristopalov/rlab/pkg/body"
	"github.com/boristopalov/rlab/pkg/core"
	"github.com/boristopalov/rlab/pkg/memory"
)

// Names of the per-body result containers.
const (
	ActionData     = "action"
	LossData       = "loss"
	ExploreVarData = "explore_var"
)

// SpaceAct picks one action per body. Every body must have a state in
// states; grid cells without a body are left absent in the result.
func (c *Controller) SpaceAct(ctx context.Context, states *core.Data[core.State]) (*core.Data[core.Action], error) {
	actions := core.NewData[core.Action](ActionData, c.host.Shape())
	for _, b := range c.host.Bodies() {
		state, ok := states.Get(b.Coord())
		if !ok {
			return nil, fmt.Errorf("space act %v: %w", b.Coord(), ErrMissingState)
		}
		action, err := c.impl.Act(ctx, b, state)
		if err != nil {
			return nil, fmt.Errorf("space act %v: %w", b.Coord(), err)
		}
		if err := actions.Set(b.Coord(), action); err != nil {
			return nil, err
		}
	}
	return actions, nil
}

// SpaceSample draws one batch per body, joins them in body order and
// converts the result for the algorithm's net device.
func (c *Controller) SpaceSample(ctx context.Context) (memory.TensorBatch, error) {
	bodies := c.host.Bodies()
	batches := make([]memory.Batch, 0, len(bodies))
	for _, b := range bodies {
		batch, err := c.impl.Sample(ctx, b)
		if err != nil {
			return memory.TensorBatch{}, fmt.Errorf("space sample %v: %w", b.Coord(), err)
		}
		batches = append(batches, batch)
	}

	episodic := false
	if m := c.Body().Memory; m != nil {
		episodic = m.IsEpisodic()
	}
	return memory.ToTensor(memory.Concat(batches...), c.device(), episodic)
}

// device is the device of the first declared net, falling back to the
// default body's device for algorithms without nets.
func (c *Controller) device() string {
	for _, name := range c.base.netNames {
		if n, ok := c.base.Net(name); ok {
			return n.Device()
		}
	}
	return c.Body().Device
}

// SpaceTrain trains once per body. In an evaluation mode every body gets a
// NaN loss and no training runs.
func (c *Controller) SpaceTrain(ctx context.Context) (*core.Data[float64], error) {
	bodies := c.host.Bodies()
	losses := make([]float64, 0, len(bodies))
	if c.base.Mode().InEval() {
		for range bodies {
			losses = append(losses, math.NaN())
		}
		return c.toData(LossData, losses)
	}

	for _, b := range bodies {
		loss, err := c.train(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("space train %v: %w", b.Coord(), err)
		}
		losses = append(losses, loss)
	}
	return c.toData(LossData, losses)
}

// SpaceUpdate advances every body's exploration variable.
func (c *Controller) SpaceUpdate(ctx context.Context) (*core.Data[float64], error) {
	bodies := c.host.Bodies()
	values := make([]float64, 0, len(bodies))
	for _, b := range bodies {
		v, err := c.impl.Update(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("space update %v: %w", b.Coord(), err)
		}
		values = append(values, v)
	}
	return c.toData(ExploreVarData, values)
}

// toData places values, ordered like Bodies, at each body's coordinate.
func (c *Controller) toData(name string, values []float64) (*core.Data[float64], error) {
	return reshape(name, c.host.Shape(), c.host.Bodies(), values)
}

func reshape(name string, shape core.Shape, bodies []*body.Body, values []float64) (*core.Data[float64], error) {
	if len(values) != len(bodies) {
		return nil, fmt.Errorf("%s: %d values for %d bodies: %w", name, len(values), len(bodies), ErrBodyCount)
	}
	data := core.NewData[float64](name, shape)
	for i, b := range bodies {
		if data.Has(b.Coord()) {
			return nil, &ContractError{
				Op:  "reshape " + name,
				Err: fmt.Errorf("%w: two bodies at %v", ErrContractViolation, b.Coord()),
			}
		}
		if err := data.Set(b.Coord(), values[i]); err != nil {
			return nil, err
		}
	}
	return data, nil
}

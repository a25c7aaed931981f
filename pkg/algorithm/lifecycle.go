package algorithm

import (
	"context"
	"errors"
	"fmt"

	"github.com/boristopalov/rlab/pkg/schedule"
)

var errNoBuilder = errors.New("no net builder configured")

// PostInitNets must be the last call of InitNets, after DeclareNets. In an
// evaluation mode it loads the saved weights of every declared net.
func (b *Base) PostInitNets(ctx context.Context) error {
	if !b.netsDeclared {
		return &ContractError{
			Op:        "post_init_nets",
			Algorithm: b.name,
			Err:       fmt.Errorf("%w: DeclareNets was not called", ErrContractViolation),
		}
	}
	b.postInitDone = true

	m := b.Mode()
	if m.InEval() {
		b.Logger().Printf("algorithm: loaded %s models for lab_mode: %s", b.name, m.LabMode())
		return b.Load(ctx)
	}
	b.Logger().Printf("algorithm: initialized %s models for lab_mode: %s", b.name, m.LabMode())
	return nil
}

// Save persists every declared net under the checkpoint tag ckpt. Without
// declared nets it only logs.
func (b *Base) Save(ctx context.Context, ckpt string) error {
	if len(b.netNames) == 0 {
		b.Logger().Printf("algorithm: %s declared no nets in InitNets; no models to save", b.name)
		return nil
	}
	builder := b.host.Builder()
	if builder == nil {
		return fmt.Errorf("save %s: %w", b.name, errNoBuilder)
	}
	return builder.SaveAlgorithm(ctx, b, ckpt)
}

// Load restores every declared net, then pins each scheduled variable of
// every body to its scheduler's end value so a restored policy does not
// resume a decay schedule.
func (b *Base) Load(ctx context.Context) error {
	if len(b.netNames) == 0 {
		b.Logger().Printf("algorithm: %s declared no nets in InitNets; no models to load", b.name)
	} else {
		builder := b.host.Builder()
		if builder == nil {
			return fmt.Errorf("load %s: %w", b.name, errNoBuilder)
		}
		if err := builder.LoadAlgorithm(ctx, b); err != nil {
			return err
		}
	}

	for _, sv := range b.schedulers {
		ev, ok := sv.scheduler.(schedule.EndValuer)
		if !ok {
			continue
		}
		for _, bd := range b.host.Bodies() {
			bd.SetVar(sv.name, ev.EndVal())
		}
	}
	return nil
}

// Package schedule implements decay schedules for exploration and
// learning-rate variables.
package schedule

import (
	"fmt"
	"math"

	"github.com/boristopalov/rlab/pkg/config"
)

// Scheduler computes the value of a decaying variable at a given step.
type Scheduler interface {
	StartVal() float64
	Update(step int) float64
}

// EndValuer is implemented by schedulers that decay toward a terminal value.
type EndValuer interface {
	EndVal() float64
}

// NoDecay holds a variable constant. It has no terminal value.
type NoDecay struct {
	Val float64
}

func (d NoDecay) StartVal() float64       { return d.Val }
func (d NoDecay) Update(step int) float64 { return d.Val }

// window is shared by the decaying schedulers.
type window struct {
	Start     float64
	End       float64
	StartStep int
	EndStep   int
}

func (w window) StartVal() float64 { return w.Start }
func (w window) EndVal() float64   { return w.End }

// progress returns how far step is into the decay window, in [0, 1].
func (w window) progress(step int) float64 {
	if step <= w.StartStep {
		return 0
	}
	if step >= w.EndStep || w.EndStep <= w.StartStep {
		return 1
	}
	return float64(step-w.StartStep) / float64(w.EndStep-w.StartStep)
}

// clamp keeps v between the start and end values, whichever direction the
// schedule runs in.
func (w window) clamp(v float64) float64 {
	lo, hi := math.Min(w.Start, w.End), math.Max(w.Start, w.End)
	return math.Max(lo, math.Min(hi, v))
}

// Linear moves from Start to End in a straight line over the window.
type Linear struct {
	window
}

func (d Linear) Update(step int) float64 {
	p := d.progress(step)
	if p >= 1 {
		return d.End
	}
	return d.clamp(d.Start + p*(d.End-d.Start))
}

// Rate decays geometrically: Frequency decays of Rate each over the window.
type Rate struct {
	window
	Rate      float64
	Frequency float64
}

func (d Rate) Update(step int) float64 {
	p := d.progress(step)
	if p >= 1 {
		return d.End
	}
	return d.clamp(math.Pow(d.Rate, p*d.Frequency) * d.Start)
}

// Periodic decays linearly while oscillating Frequency times over the window.
type Periodic struct {
	window
	Frequency float64
}

func (d Periodic) Update(step int) float64 {
	p := d.progress(step)
	if p >= 1 {
		return d.End
	}
	x := p * d.Frequency
	unit := d.Start - d.End
	return d.clamp(d.End + 0.5*unit*(1+math.Cos(x))*(1-p))
}

// New builds a scheduler from a spec section with keys name, start_val,
// end_val, start_step and end_step.
func New(spec map[string]any) (Scheduler, error) {
	name, err := config.StringOr(spec, "name", "no_decay")
	if err != nil {
		return nil, err
	}
	start, err := config.Float(spec, "start_val")
	if err != nil {
		return nil, err
	}
	if name == "no_decay" {
		return NoDecay{Val: start}, nil
	}

	var w window
	w.Start = start
	if w.End, err = config.Float(spec, "end_val"); err != nil {
		return nil, err
	}
	if w.StartStep, err = config.IntOr(spec, "start_step", 0); err != nil {
		return nil, err
	}
	if w.EndStep, err = config.Int(spec, "end_step"); err != nil {
		return nil, err
	}
	if w.EndStep < w.StartStep {
		return nil, fmt.Errorf("%w: end_step %d before start_step %d", config.ErrSpec, w.EndStep, w.StartStep)
	}

	switch name {
	case "linear_decay":
		return Linear{window: w}, nil
	case "rate_decay":
		rate, err := config.FloatOr(spec, "decay_rate", 0.9)
		if err != nil {
			return nil, err
		}
		freq, err := config.FloatOr(spec, "frequency", 20)
		if err != nil {
			return nil, err
		}
		return Rate{window: w, Rate: rate, Frequency: freq}, nil
	case "periodic_decay":
		freq, err := config.FloatOr(spec, "frequency", 60)
		if err != nil {
			return nil, err
		}
		return Periodic{window: w, Frequency: freq}, nil
	}
	return nil, fmt.Errorf("%w: unknown scheduler %q", config.ErrSpec, name)
}

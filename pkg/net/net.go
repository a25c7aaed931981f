// Package net holds the networks algorithms act with and the builder that
// persists them.
package net

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/boristopalov/rlab/pkg/config"
)

// Net maps a batch of inputs (one row per sample) to a batch of outputs.
type Net interface {
	Forward(x *mat.Dense) *mat.Dense
	Params() map[string]*mat.Dense
	SetParams(params map[string]*mat.Dense) error
	Device() string
}

// MLP is a fully connected net with tanh hidden layers and a linear head.
type MLP struct {
	weights []*mat.Dense
	biases  []*mat.Dense
	device  string
}

// NewMLP builds an MLP from a net spec with keys hid_layers, init_std and
// seed.
func NewMLP(spec map[string]any, inDim, outDim int, device string) (*MLP, error) {
	if inDim < 1 || outDim < 1 {
		return nil, fmt.Errorf("mlp: dims %dx%d must be positive", inDim, outDim)
	}
	hidden, err := config.IntSlice(spec, "hid_layers")
	if err != nil {
		return nil, err
	}
	std, err := config.FloatOr(spec, "init_std", 0.1)
	if err != nil {
		return nil, err
	}
	seed, err := config.IntOr(spec, "seed", 0)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(int64(seed)))
	dims := append(append([]int{inDim}, hidden...), outDim)
	m := &MLP{device: device}
	for i := 0; i < len(dims)-1; i++ {
		w := mat.NewDense(dims[i], dims[i+1], nil)
		w.Apply(func(_, _ int, _ float64) float64 { return rng.NormFloat64() * std }, w)
		m.weights = append(m.weights, w)
		m.biases = append(m.biases, mat.NewDense(1, dims[i+1], nil))
	}
	return m, nil
}

func (m *MLP) Forward(x *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(x)
	for i, w := range m.weights {
		var h mat.Dense
		h.Mul(out, w)
		b := m.biases[i]
		last := i == len(m.weights)-1
		h.Apply(func(_, c int, v float64) float64 {
			v += b.At(0, c)
			if last {
				return v
			}
			return math.Tanh(v)
		}, &h)
		out = &h
	}
	return out
}

// Params returns copies of every weight and bias keyed w<i>/b<i>.
func (m *MLP) Params() map[string]*mat.Dense {
	params := make(map[string]*mat.Dense, 2*len(m.weights))
	for i := range m.weights {
		params[fmt.Sprintf("w%d", i)] = mat.DenseCopyOf(m.weights[i])
		params[fmt.Sprintf("b%d", i)] = mat.DenseCopyOf(m.biases[i])
	}
	return params
}

// SetParams overwrites every weight and bias. Shapes must match.
func (m *MLP) SetParams(params map[string]*mat.Dense) error {
	set := func(dst []*mat.Dense, prefix string) error {
		for i, cur := range dst {
			key := fmt.Sprintf("%s%d", prefix, i)
			p, ok := params[key]
			if !ok {
				return fmt.Errorf("mlp: missing param %s", key)
			}
			r, c := cur.Dims()
			pr, pc := p.Dims()
			if r != pr || c != pc {
				return fmt.Errorf("mlp: param %s is %dx%d, want %dx%d", key, pr, pc, r, c)
			}
			dst[i] = mat.DenseCopyOf(p)
		}
		return nil
	}
	if err := set(m.weights, "w"); err != nil {
		return err
	}
	return set(m.biases, "b")
}

func (m *MLP) Device() string {
	return m.device
}

// Registry holds nets shared between algorithm instances, such as the
// global nets of asynchronous training.
type Registry struct {
	nets map[string]Net
}

func NewRegistry() *Registry {
	return &Registry{nets: make(map[string]Net)}
}

func (r *Registry) Add(name string, n Net) {
	r.nets[name] = n
}

func (r *Registry) Get(name string) (Net, bool) {
	if r == nil {
		return nil, false
	}
	n, ok := r.nets[name]
	return n, ok
}

// Names returns the registered net names in sorted order
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.nets))
	for name := range r.nets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

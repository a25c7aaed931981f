package agent

import (
	"fmt"
	"sort"
	"sync"

	"github.com/boristopalov/rlab/pkg/algorithm"
	"github.com/boristopalov/rlab/pkg/algorithm/linearq"
	"github.com/boristopalov/rlab/pkg/algorithm/llmpolicy"
	"github.com/boristopalov/rlab/pkg/algorithm/random"
	"github.com/boristopalov/rlab/pkg/config"
)

// Factory builds an uninitialized algorithm for agent a.
type Factory func(a *Agent) (algorithm.Algorithm, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"Random": func(a *Agent) (algorithm.Algorithm, error) {
			return random.New(), nil
		},
		"LinearQ": func(a *Agent) (algorithm.Algorithm, error) {
			return linearq.New(), nil
		},
		"LLMPolicy": func(a *Agent) (algorithm.Algorithm, error) {
			if a.completer == nil {
				return nil, fmt.Errorf("%w: LLMPolicy needs a completer", config.ErrSpec)
			}
			return llmpolicy.New(a.completer), nil
		},
	}
)

// Register makes an algorithm available by name to Agent.Init.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Algorithms lists registered algorithm names.
func Algorithms() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newAlgorithm(name string, a *Agent) (algorithm.Algorithm, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown algorithm %q", config.ErrSpec, name)
	}
	return f(a)
}

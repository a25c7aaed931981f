package memory

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/boristopalov/rlab/pkg/config"
	"github.com/boristopalov/rlab/pkg/core"
)

// Memory stores a body's experience and hands out training batches.
type Memory interface {
	// Update records one transition
	Update(t core.Transition) error
	// Sample draws one training batch
	Sample() (Batch, error)
	// Size is the number of transitions available to Sample
	Size() int
	// IsEpisodic reports whether batches are made of whole episodes
	IsEpisodic() bool
	// Reset drops everything stored
	Reset()
}

// Replay is a capacity-bounded experience replay sampled uniformly.
type Replay struct {
	stream    []core.Transition
	capacity  int
	batchSize int
	rng       *rand.Rand
	mu        sync.RWMutex
}

// NewReplay creates a replay memory holding at most capacity transitions.
func NewReplay(capacity, batchSize int, seed int64) *Replay {
	return &Replay{
		stream:    make([]core.Transition, 0, capacity),
		capacity:  capacity,
		batchSize: batchSize,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

func (m *Replay) Update(t core.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stream = append(m.stream, t)
	if len(m.stream) > m.capacity {
		m.stream = m.stream[1:]
	}
	return nil
}

// Sample returns up to batchSize distinct transitions. An empty memory
// yields an empty batch.
func (m *Replay) Sample() (Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	batch := NewBatch()
	n := m.batchSize
	if n > len(m.stream) {
		n = len(m.stream)
	}
	for _, idx := range m.rng.Perm(len(m.stream))[:n] {
		batch.add(m.stream[idx])
	}
	return batch, nil
}

func (m *Replay) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stream)
}

func (m *Replay) IsEpisodic() bool { return false }

func (m *Replay) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stream = make([]core.Transition, 0, m.capacity)
}

// OnPolicy keeps whole episodes until they are sampled once.
type OnPolicy struct {
	episodes [][]core.Transition
	current  []core.Transition
	mu       sync.Mutex
}

// NewOnPolicy creates an empty episodic memory
func NewOnPolicy() *OnPolicy {
	return &OnPolicy{}
}

func (m *OnPolicy) Update(t core.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = append(m.current, t)
	if t.Done {
		m.episodes = append(m.episodes, m.current)
		m.current = nil
	}
	return nil
}

// Sample returns every completed episode and forgets them.
func (m *OnPolicy) Sample() (Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch := NewBatch()
	for _, ep := range m.episodes {
		for _, t := range ep {
			batch.add(t)
		}
		batch.Episodes = append(batch.Episodes, len(ep))
	}
	m.episodes = nil
	return batch, nil
}

func (m *OnPolicy) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for _, ep := range m.episodes {
		n += len(ep)
	}
	return n
}

func (m *OnPolicy) IsEpisodic() bool { return true }

func (m *OnPolicy) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.episodes = nil
	m.current = nil
}

// New builds a memory from the agent's memory spec.
func New(spec map[string]any, seed int64) (Memory, error) {
	name, err := config.String(spec, "name")
	if err != nil {
		return nil, err
	}
	switch name {
	case "Replay":
		batchSize, err := config.Int(spec, "batch_size")
		if err != nil {
			return nil, err
		}
		maxSize, err := config.Int(spec, "max_size")
		if err != nil {
			return nil, err
		}
		if batchSize < 1 || maxSize < 1 {
			return nil, fmt.Errorf("%w: batch_size and max_size must be positive", config.ErrSpec)
		}
		return NewReplay(maxSize, batchSize, seed), nil
	case "OnPolicyReplay":
		return NewOnPolicy(), nil
	}
	return nil, fmt.Errorf("%w: unknown memory %q", config.ErrSpec, name)
}

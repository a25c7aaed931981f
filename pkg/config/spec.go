package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrSpec marks a missing or malformed key in a declarative spec.
var ErrSpec = errors.New("spec error")

// LabSpec is the declarative description of one lab session.
type LabSpec struct {
	Agent AgentSpec `yaml:"agent"`
	Env   []EnvSpec `yaml:"env"`
	Meta  MetaSpec  `yaml:"meta"`
}

// AgentSpec configures the agent and its algorithm. The algorithm, net
// and memory sections are free-form because their keys depend on the
// algorithm that reads them.
type AgentSpec struct {
	Name      string         `yaml:"name"`
	Algorithm map[string]any `yaml:"algorithm"`
	Net       map[string]any `yaml:"net,omitempty"`
	Memory    map[string]any `yaml:"memory,omitempty"`
}

type EnvSpec struct {
	Name      string  `yaml:"name"`
	NumBodies int     `yaml:"num_bodies"`
	MaxT      int     `yaml:"max_t"`
	Arms      int     `yaml:"arms"`
	Contexts  int     `yaml:"contexts"`
	Noise     float64 `yaml:"noise"`
	Seed      int64   `yaml:"seed"`
}

type MetaSpec struct {
	MaxSteps int    `yaml:"max_steps"`
	Ckpt     string `yaml:"ckpt"`
}

// LoadSpec reads and validates a YAML lab spec.
func LoadSpec(path string) (*LabSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec: %w", err)
	}
	return ParseSpec(data)
}

// ParseSpec decodes a YAML lab spec and checks the keys every run needs.
func ParseSpec(data []byte) (*LabSpec, error) {
	var spec LabSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse spec: %w", err)
	}
	if spec.Agent.Algorithm == nil {
		return nil, fmt.Errorf("%w: agent.algorithm is required", ErrSpec)
	}
	if _, err := String(spec.Agent.Algorithm, "name"); err != nil {
		return nil, fmt.Errorf("agent.algorithm: %w", err)
	}
	if len(spec.Env) == 0 {
		return nil, fmt.Errorf("%w: at least one env is required", ErrSpec)
	}
	for i, e := range spec.Env {
		if e.NumBodies < 1 {
			return nil, fmt.Errorf("%w: env[%d].num_bodies must be positive", ErrSpec, i)
		}
	}
	return &spec, nil
}

// HasMemory reports whether the agent declares a non-empty memory section.
func (s *AgentSpec) HasMemory() bool {
	return len(s.Memory) > 0
}

func lookup(m map[string]any, key string) (any, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: missing key %q", ErrSpec, key)
	}
	return v, nil
}

// String returns m[key] as a string.
func String(m map[string]any, key string) (string, error) {
	v, err := lookup(m, key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: key %q is %T, want string", ErrSpec, key, v)
	}
	return s, nil
}

// Int returns m[key] as an int. Whole floats are accepted since YAML and
// JSON decoders disagree on number types.
func Int(m map[string]any, key string) (int, error) {
	v, err := lookup(m, key)
	if err != nil {
		return 0, err
	}
	n, ok := toInt(v)
	if !ok {
		return 0, fmt.Errorf("%w: key %q is %v, want integer", ErrSpec, key, v)
	}
	return n, nil
}

// Float returns m[key] as a float64.
func Float(m map[string]any, key string) (float64, error) {
	v, err := lookup(m, key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("%w: key %q is %T, want number", ErrSpec, key, v)
}

// IntSlice returns m[key] as a list of ints.
func IntSlice(m map[string]any, key string) ([]int, error) {
	v, err := lookup(m, key)
	if err != nil {
		return nil, err
	}
	switch list := v.(type) {
	case []int:
		return list, nil
	case []any:
		out := make([]int, 0, len(list))
		for i, item := range list {
			n, ok := toInt(item)
			if !ok {
				return nil, fmt.Errorf("%w: key %q[%d] is %v, want integer", ErrSpec, key, i, item)
			}
			out = append(out, n)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: key %q is %T, want list", ErrSpec, key, v)
}

// Map returns m[key] as a nested spec section.
func Map(m map[string]any, key string) (map[string]any, error) {
	v, err := lookup(m, key)
	if err != nil {
		return nil, err
	}
	sub, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: key %q is %T, want mapping", ErrSpec, key, v)
	}
	return sub, nil
}

// StringOr returns m[key] or def when the key is absent.
func StringOr(m map[string]any, key, def string) (string, error) {
	if _, ok := m[key]; !ok {
		return def, nil
	}
	return String(m, key)
}

// IntOr returns m[key] or def when the key is absent.
func IntOr(m map[string]any, key string, def int) (int, error) {
	if _, ok := m[key]; !ok {
		return def, nil
	}
	return Int(m, key)
}

// FloatOr returns m[key] or def when the key is absent.
func FloatOr(m map[string]any, key string, def float64) (float64, error) {
	if _, ok := m[key]; !ok {
		return def, nil
	}
	return Float(m, key)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	}
	return 0, false
}

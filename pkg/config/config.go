package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LabConfig holds the process-level settings of a lab run.
type LabConfig struct {
	Mode       string           `yaml:"mode"`
	Device     string           `yaml:"device"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LogConfig        `yaml:"logging"`
}

type CheckpointConfig struct {
	DB  string `yaml:"db"`  // sqlite file holding net checkpoints
	Tag string `yaml:"tag"` // tag used for the final save of a session
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type LogConfig struct {
	Prefix string `yaml:"prefix"`
	Path   string `yaml:"path"` // empty means stderr
}

// Default returns a LabConfig with sensible defaults.
func Default() LabConfig {
	return LabConfig{
		Mode:   "train",
		Device: "cpu",
		Checkpoint: CheckpointConfig{
			DB:  "rlab.db",
			Tag: "final",
		},
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37780,
		},
		Logging: LogConfig{
			Prefix: "rlab ",
		},
	}
}

// ListenAddr returns the bind:port address string.
func (c *LabConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// LoadConfig reads a YAML lab config, filling unset fields from Default.
func LoadConfig(path string) (*LabConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

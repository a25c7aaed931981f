// Package mode exposes the process-wide lab mode that separates training
// runs from pure evaluation runs.
package mode

import (
	"os"
)

const (
	Dev    = "dev"
	Train  = "train"
	Search = "search"
	Enjoy  = "enjoy"
	Eval   = "eval"
)

// EnvVar is the environment variable holding the lab mode.
const EnvVar = "LAB_MODE"

// Query answers which mode the lab runs in
type Query interface {
	// LabMode returns the current mode string
	LabMode() string
	// InEval reports whether the current mode only evaluates, never learns
	InEval() bool
}

// Valid reports whether m is a known lab mode.
func Valid(m string) bool {
	switch m {
	case Dev, Train, Search, Enjoy, Eval:
		return true
	}
	return false
}

// IsEval reports whether m is one of the evaluation modes.
func IsEval(m string) bool {
	return m == Enjoy || m == Eval
}

type static string

// Static returns a Query fixed to m.
func Static(m string) Query {
	return static(m)
}

func (s static) LabMode() string { return string(s) }
func (s static) InEval() bool    { return IsEval(string(s)) }

type env struct{}

// FromEnv returns a Query that reads LAB_MODE on every call, defaulting to
// train when it is unset.
func FromEnv() Query {
	return env{}
}

func (env) LabMode() string {
	if m := os.Getenv(EnvVar); m != "" {
		return m
	}
	return Train
}

func (e env) InEval() bool {
	return IsEval(e.LabMode())
}

package core

import (
	"context"
)

// Environment defines the rules and mechanics a group of bodies act in
type Environment interface {
	// Index is the environment's position in the lab's environment list
	Index() int
	// NumBodies is the number of bodies acting in this environment
	NumBodies() int
	// StateDim is the length of each body's state vector
	StateDim() int
	// ActionDim is the number of discrete actions available to each body
	ActionDim() int
	// Reset starts a new episode and returns the initial state per body
	Reset() ([]State, error)
	// Step progresses the environment one step, given one action per body
	Step(ctx context.Context, actions []Action) (StepResult, error)
}

// Experiment coordinates the running of a session
type Experiment interface {
	// Run executes the session until its step budget is spent
	Run(ctx context.Context) error
	// Stop asks a running session to finish after the current step
	Stop() error
	// GetStatus returns current session status
	GetStatus() SessionStatus
}

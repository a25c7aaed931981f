package core

import (
	"fmt"
	"time"
)

// State is one observation of a single body
type State []float64

// Action is a discrete action index chosen for a single body
type Action int

// Coord addresses one body inside the (environment x body) space
type Coord struct {
	E int // environment index
	B int // body index within the environment
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.E, c.B)
}

// Transition is one experience tuple stored in a body's memory
type Transition struct {
	State     State
	Action    Action
	Reward    float64
	NextState State
	Done      bool
}

// StepResult is what an environment returns after all of its bodies acted
type StepResult struct {
	States  []State   // next state per body, indexed by body index
	Rewards []float64 // reward per body
	Done    bool      // episode finished for every body of the environment
}

// SessionStatus reports the progress of a running session
type SessionStatus struct {
	Running   bool
	Step      int
	Episode   int
	StartTime time.Time
	EndTime   time.Time
	Errors    []error
}

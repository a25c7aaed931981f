package algorithm

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSupported is returned by optional operations an algorithm does
	// not override.
	ErrNotSupported = errors.New("operation not supported")
	// ErrContractViolation marks a programming error in an algorithm
	// implementation, such as skipping PostInitNets.
	ErrContractViolation = errors.New("algorithm contract violation")
	// ErrBodyCount is returned when per-body results do not line up with
	// the agent's bodies.
	ErrBodyCount = errors.New("result count does not match body count")
	// ErrMissingState is returned by SpaceAct when a body has no state.
	ErrMissingState = errors.New("no state for body")
)

// ContractError reports which operation of which algorithm broke the
// contract. It unwraps to ErrNotSupported or ErrContractViolation.
type ContractError struct {
	Op        string
	Algorithm string
	Err       error
}

func (e *ContractError) Error() string {
	if e.Algorithm != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Op, e.Algorithm, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ContractError) Unwrap() error {
	return e.Err
}

// IsNotSupported reports whether err came from an operation the algorithm
// does not implement.
func IsNotSupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}

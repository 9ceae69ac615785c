package deployment

import (
	"errors"
	"fmt"
)

var (
	// ErrChainSubmission is returned when the network rejects a deployment or call.
	ErrChainSubmission = errors.New("chain submission failed")
	// ErrChainConfirmation is returned when waiting for a receipt fails or the transaction reverted.
	ErrChainConfirmation = errors.New("chain confirmation failed")
	// ErrConfirmationTimeout is returned when a receipt does not arrive within the confirmation timeout.
	ErrConfirmationTimeout = errors.New("confirmation timed out")
	// ErrUnresolvedDependency is returned when a step references an address no earlier step produced.
	ErrUnresolvedDependency = errors.New("unresolved dependency")
)

// StepError names the step that aborted a run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

package cli

import (
	"fmt"

	"go.viam.com/pubtf/referenceframe"
	"go.viam.com/pubtf/transform"
)

// Usage is the one line usage diagnostic.
const Usage = "usage: pubtf [global flags] [sta|dyn] x y z roll pitch yaw"

// numArgs is the mode token plus the numeric parameters.
const numArgs = 1 + transform.NumParams

// UsageError is returned when the wrong number of positional arguments is given.
type UsageError struct {
	Got int
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("invalid number of parameters: expected %d, got %d\n%s", numArgs, e.Got, Usage)
}

// ReservedNameError is returned when the first positional argument names the reserved root frame.
type ReservedNameError struct {
	Name string
}

func (e *ReservedNameError) Error() string {
	return fmt.Sprintf("your static frame name cannot be %q", e.Name)
}

// Unwrap lets callers match the referenceframe sentinel.
func (e *ReservedNameError) Unwrap() error {
	return referenceframe.ErrReservedFrame
}

// validateArgs checks the positional arguments before anything else happens.
func validateArgs(args []string) error {
	if len(args) != numArgs {
		return &UsageError{Got: len(args)}
	}
	if args[0] == referenceframe.World {
		return &ReservedNameError{Name: args[0]}
	}
	return nil
}

package referenceframe

import (
	"github.com/pkg/errors"
)

var (
	// ErrEmptyFrameName is returned when a frame name is missing.
	ErrEmptyFrameName = errors.New("frame name cannot be empty")
	// ErrSameFrame is returned when a transform would relate a frame to itself.
	ErrSameFrame = errors.New("parent and child frame must differ")
	// ErrZeroRotation is returned for a rotation quaternion with no length.
	ErrZeroRotation = errors.New("rotation quaternion has zero norm")
	// ErrNonFinite is returned for a translation or rotation containing NaN or infinity.
	ErrNonFinite = errors.New("transform contains a non-finite value")
	// ErrReservedFrame is the cause of every error returned by NewReservedFrameError.
	ErrReservedFrame = errors.New("frame name is reserved")
)

// NewReservedFrameError returns an error indicating that name collides with the reserved root frame.
func NewReservedFrameError(name string) error {
	return errors.Wrapf(ErrReservedFrame, "%q", name)
}

// Package referenceframe names coordinate frames and defines the timestamped transform that
// relates a child frame to its parent.
package referenceframe

import "github.com/pkg/errors"

// World is the string "world", but made into an exported constant. It is reserved for the root
// of the transform tree and may not be supplied as a frame label.
const World = "world"

const (
	// ParentFrame is the default parent frame of a published transform.
	ParentFrame = "world_link"
	// ChildFrame is the default child frame of a published transform.
	ChildFrame = "base_link"
)

// ValidateFrameNames checks that parent and child can label the two ends of a transform.
func ValidateFrameNames(parent, child string) error {
	if parent == "" || child == "" {
		return ErrEmptyFrameName
	}
	if parent == World {
		return NewReservedFrameError(parent)
	}
	if parent == child {
		return errors.Wrapf(ErrSameFrame, "%q", parent)
	}
	return nil
}

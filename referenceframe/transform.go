package referenceframe

import (
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/pubtf/spatialmath"
)

// zeroNormTolerance is the smallest quaternion norm that still has a usable direction.
const zeroNormTolerance = 1e-9

// TransformRecord is the pose of a child frame relative to its parent frame, optionally stamped
// with the time it was captured. A zero Stamp marks a static transform.
//
// TransformRecord is a value type. Construct it with NewTransformRecord so the rotation is
// guaranteed to be a unit quaternion.
type TransformRecord struct {
	parent      string
	child       string
	translation r3.Vector
	rotation    quat.Number
	stamp       time.Time
}

// NewTransformRecord validates the frame names and normalizes the orientation.
func NewTransformRecord(
	parent, child string,
	translation r3.Vector,
	orientation spatialmath.Orientation,
	stamp time.Time,
) (TransformRecord, error) {
	if err := ValidateFrameNames(parent, child); err != nil {
		return TransformRecord{}, err
	}
	if orientation == nil {
		orientation = spatialmath.NewZeroOrientation()
	}
	q := orientation.Quaternion()
	if !finite(translation.X, translation.Y, translation.Z, q.Real, q.Imag, q.Jmag, q.Kmag) {
		return TransformRecord{}, ErrNonFinite
	}
	if spatialmath.QuatNorm(q) < zeroNormTolerance {
		return TransformRecord{}, ErrZeroRotation
	}
	return TransformRecord{
		parent:      parent,
		child:       child,
		translation: translation,
		rotation:    spatialmath.Normalize(q),
		stamp:       stamp,
	}, nil
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Parent returns the name of the frame the transform is expressed in.
func (tr TransformRecord) Parent() string {
	return tr.parent
}

// Child returns the name of the frame being placed.
func (tr TransformRecord) Child() string {
	return tr.child
}

// Translation returns the child origin in parent coordinates.
func (tr TransformRecord) Translation() r3.Vector {
	return tr.translation
}

// Rotation returns the unit quaternion rotating child axes into parent axes.
func (tr TransformRecord) Rotation() quat.Number {
	return tr.rotation
}

// Stamp returns the capture time, which is zero for static transforms.
func (tr TransformRecord) Stamp() time.Time {
	return tr.stamp
}

// IsStatic reports whether the transform carries no timestamp.
func (tr TransformRecord) IsStatic() bool {
	return tr.stamp.IsZero()
}

// Pose returns the translation and rotation as a spatialmath.Pose.
func (tr TransformRecord) Pose() spatialmath.Pose {
	return spatialmath.NewPose(tr.translation, spatialmath.NewQuaternion(tr.rotation))
}

func (tr TransformRecord) String() string {
	stamp := "static"
	if !tr.IsStatic() {
		stamp = tr.stamp.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%s -> %s t=(%g, %g, %g) q=(%g, %g, %g, %g) %s",
		tr.parent, tr.child,
		tr.translation.X, tr.translation.Y, tr.translation.Z,
		tr.rotation.Imag, tr.rotation.Jmag, tr.rotation.Kmag, tr.rotation.Real,
		stamp)
}

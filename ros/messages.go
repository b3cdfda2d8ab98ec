// Package ros holds the ROS shaped wire messages pubtf publishes transforms as.
package ros

import (
	"time"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/pubtf/referenceframe"
	"go.viam.com/pubtf/spatialmath"
)

const (
	// TopicStatic is the latched topic static transforms are published on.
	TopicStatic = "/tf_static"
	// TopicDynamic is the topic timestamped transforms are published on.
	TopicDynamic = "/tf"
)

// Time mirrors the ROS builtin time type.
type Time struct {
	Secs  int64 `json:"secs"`
	Nsecs int64 `json:"nsecs"`
}

// Header mirrors std_msgs/Header.
type Header struct {
	Seq     uint32 `json:"seq,omitempty"`
	Stamp   Time   `json:"stamp"`
	FrameID string `json:"frame_id"`
}

// Vector3 mirrors geometry_msgs/Vector3.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion mirrors geometry_msgs/Quaternion. Note the ROS field order puts W last.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Transform mirrors geometry_msgs/Transform.
type Transform struct {
	Translation Vector3    `json:"translation"`
	Rotation    Quaternion `json:"rotation"`
}

// TransformStamped mirrors geometry_msgs/TransformStamped.
type TransformStamped struct {
	Header       Header    `json:"header"`
	ChildFrameID string    `json:"child_frame_id"`
	Transform    Transform `json:"transform"`
}

// TFMessage mirrors tf2_msgs/TFMessage, the payload of both transform topics.
type TFMessage struct {
	Transforms []TransformStamped `json:"transforms"`
}

// TimeFromGo splits t into seconds and nanoseconds. The zero time maps to 0/0.
func TimeFromGo(t time.Time) Time {
	if t.IsZero() {
		return Time{}
	}
	return Time{Secs: t.Unix(), Nsecs: int64(t.Nanosecond())}
}

// Go converts the ROS time back, mapping 0/0 to the zero time.
func (t Time) Go() time.Time {
	if t.Secs == 0 && t.Nsecs == 0 {
		return time.Time{}
	}
	return time.Unix(t.Secs, t.Nsecs).UTC()
}

// TransformStampedFromRecord converts a transform record into its wire message.
func TransformStampedFromRecord(tr referenceframe.TransformRecord) TransformStamped {
	t := tr.Translation()
	q := tr.Rotation()
	return TransformStamped{
		Header: Header{
			Stamp:   TimeFromGo(tr.Stamp()),
			FrameID: tr.Parent(),
		},
		ChildFrameID: tr.Child(),
		Transform: Transform{
			Translation: Vector3{X: t.X, Y: t.Y, Z: t.Z},
			Rotation:    Quaternion{X: q.Imag, Y: q.Jmag, Z: q.Kmag, W: q.Real},
		},
	}
}

// Record converts the wire message back into a validated transform record.
func (ts TransformStamped) Record() (referenceframe.TransformRecord, error) {
	r := ts.Transform.Rotation
	q := quat.Number{Real: r.W, Imag: r.X, Jmag: r.Y, Kmag: r.Z}
	if spatialmath.QuatNorm(q) == 0 {
		return referenceframe.TransformRecord{}, referenceframe.ErrZeroRotation
	}
	return referenceframe.NewTransformRecord(
		ts.Header.FrameID,
		ts.ChildFrameID,
		r3.Vector{X: ts.Transform.Translation.X, Y: ts.Transform.Translation.Y, Z: ts.Transform.Translation.Z},
		spatialmath.NewQuaternion(q),
		ts.Header.Stamp.Go(),
	)
}

// TopicFor returns the topic a record belongs on.
func TopicFor(tr referenceframe.TransformRecord) string {
	if tr.IsStatic() {
		return TopicStatic
	}
	return TopicDynamic
}

// Package referenceframe models a rooted tree of rigid-body frames. Frames
// live in an arena and refer to each other by stable indices, so the tree has
// no ownership cycles; the root's parent is the NoParent sentinel.
//
// Orientations are stored in the global frame rather than relative to the
// parent. Reading a frame's global orientation is O(1), and rotating a joint
// applies one incremental rotation, left-composed, to the joint and every
// descendant.
package referenceframe

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/armkit/armkit/spatialmath"
)

// NoParent is the parent index of the root frame.
const NoParent = -1

type frameKind int

const (
	kindStatic frameKind = iota
	kindJoint
)

// frame is a single record in the arena. offset is the fixed translation from
// the parent origin, expressed in the parent's local frame. orientation is
// global. Joints additionally carry a local rotation axis and the current
// angle.
type frame struct {
	name        string
	kind        frameKind
	offset      r3.Vector
	orientation *spatialmath.RotationMatrix
	parent      int
	children    []int
	axis        r3.Vector
	angle       float64
}

// System is the arena holding a single rooted frame tree. Frames are created
// once when the kinematic chain is defined and are never reparented.
type System struct {
	frames []frame
}

// NewSystem returns an empty frame system.
func NewSystem() *System {
	return &System{}
}

// NumFrames returns the number of frames in the system.
func (s *System) NumFrames() int {
	return len(s.frames)
}

func (s *System) add(f frame) (int, error) {
	if f.parent == NoParent {
		if len(s.frames) != 0 {
			return 0, errors.New("system already has a root frame")
		}
	} else if f.parent < 0 || f.parent >= len(s.frames) {
		return 0, errors.Errorf("parent index %d out of range [0,%d)", f.parent, len(s.frames))
	}
	idx := len(s.frames)
	s.frames = append(s.frames, f)
	if f.parent != NoParent {
		s.frames[f.parent].children = append(s.frames[f.parent].children, idx)
	}
	return idx, nil
}

// AddFrame adds a static frame under the given parent (NoParent for the
// root) and returns its index. A root frame's orientation starts as identity.
func (s *System) AddFrame(name string, parent int, offset r3.Vector) (int, error) {
	orientation := spatialmath.NewZeroRotation()
	if parent != NoParent && parent >= 0 && parent < len(s.frames) {
		orientation = s.frames[parent].orientation.Clone()
	}
	return s.add(frame{
		name:        name,
		kind:        kindStatic,
		offset:      offset,
		orientation: orientation,
		parent:      parent,
	})
}

// AddJoint adds a revolute joint frame under the given parent and returns its
// index. The axis is the joint's local rotation axis; the angle starts at
// zero, so the new joint's global orientation equals its parent's.
func (s *System) AddJoint(name string, parent int, offset, axis r3.Vector) (int, error) {
	if parent == NoParent {
		return 0, errors.New("a joint cannot be the root frame")
	}
	if err := s.checkIndex(parent); err != nil {
		return 0, errors.Wrap(err, "invalid joint parent")
	}
	if spatialmath.R3VectorAlmostEqual(axis, r3.Vector{}, 1e-8) {
		return 0, errors.New("cannot use zero vector as rotation axis")
	}
	return s.add(frame{
		name:        name,
		kind:        kindJoint,
		offset:      offset,
		orientation: s.frames[parent].orientation.Clone(),
		parent:      parent,
		axis:        axis.Normalize(),
	})
}

func (s *System) checkIndex(idx int) error {
	if idx < 0 || idx >= len(s.frames) {
		return errors.Errorf("frame index %d out of range [0,%d)", idx, len(s.frames))
	}
	return nil
}

// Name returns the name of the frame at idx.
func (s *System) Name(idx int) string {
	return s.frames[idx].name
}

// Parent returns the parent index of the frame at idx, NoParent for the root.
func (s *System) Parent(idx int) int {
	return s.frames[idx].parent
}

// Children returns the child indices of the frame at idx.
func (s *System) Children(idx int) []int {
	out := make([]int, len(s.frames[idx].children))
	copy(out, s.frames[idx].children)
	return out
}

// IsJoint reports whether the frame at idx is a revolute joint.
func (s *System) IsJoint(idx int) bool {
	return s.frames[idx].kind == kindJoint
}

// Orientation returns the global orientation of the frame at idx.
func (s *System) Orientation(idx int) *spatialmath.RotationMatrix {
	return s.frames[idx].orientation
}

// Angle returns the current angle of the joint at idx in radians.
func (s *System) Angle(idx int) (float64, error) {
	if err := s.checkIndex(idx); err != nil {
		return 0, err
	}
	if s.frames[idx].kind != kindJoint {
		return 0, errors.Errorf("frame %q is not a joint", s.frames[idx].name)
	}
	return s.frames[idx].angle, nil
}

// GlobalAxis returns the joint's rotation axis expressed in the global frame.
// Rotating a joint about its own axis leaves that axis fixed, so this is
// well defined regardless of the joint's current angle.
func (s *System) GlobalAxis(idx int) (r3.Vector, error) {
	if err := s.checkIndex(idx); err != nil {
		return r3.Vector{}, err
	}
	f := s.frames[idx]
	if f.kind != kindJoint {
		return r3.Vector{}, errors.Errorf("frame %q is not a joint", f.name)
	}
	return f.orientation.Mul(f.axis), nil
}

// GlobalPosition returns the global position of the frame's origin,
// accumulated from the root. Each offset is fixed in its parent's local frame
// and is mapped through the parent's global orientation.
func (s *System) GlobalPosition(idx int) (r3.Vector, error) {
	if err := s.checkIndex(idx); err != nil {
		return r3.Vector{}, err
	}
	var pos r3.Vector
	// Collect the chain root-to-idx, then walk it down.
	var chain []int
	for i := idx; i != NoParent; i = s.frames[i].parent {
		chain = append(chain, i)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		f := s.frames[chain[i]]
		if f.parent == NoParent {
			pos = f.offset
		} else {
			pos = pos.Add(s.frames[f.parent].orientation.Mul(f.offset))
		}
	}
	return pos, nil
}

// RotateJoint rotates the joint at idx by dTheta radians about its axis. The
// incremental rotation is left-composed onto the joint's own orientation and
// onto every descendant's, keeping each child's global orientation equal to
// its parent's composed with the child's local rotation.
func (s *System) RotateJoint(idx int, dTheta float64) error {
	axis, err := s.GlobalAxis(idx)
	if err != nil {
		return err
	}
	delta := spatialmath.NewRotationFromAxisAngle(axis, dTheta)
	stack := []int{idx}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		s.frames[i].orientation = spatialmath.MatMul(delta, s.frames[i].orientation)
		stack = append(stack, s.frames[i].children...)
	}
	s.frames[idx].angle += dTheta
	return nil
}

// SetJointAngle rotates the joint at idx to an absolute angle in radians.
func (s *System) SetJointAngle(idx int, theta float64) error {
	cur, err := s.Angle(idx)
	if err != nil {
		return err
	}
	return s.RotateJoint(idx, theta-cur)
}

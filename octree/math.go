package octree

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Overlaps reports whether two axis-aligned boxes intersect. Boundaries are
// closed: boxes that only touch do overlap.
func Overlaps(aMin, aMax, bMin, bMax mgl32.Vec3) bool {
	for axis := 0; axis < 3; axis++ {
		if aMax[axis] < bMin[axis] || aMin[axis] > bMax[axis] {
			return false
		}
	}
	return true
}

// Contains reports whether the box [innerMin, innerMax] lies entirely within
// [outerMin, outerMax].
func Contains(outerMin, outerMax, innerMin, innerMax mgl32.Vec3) bool {
	for axis := 0; axis < 3; axis++ {
		if innerMin[axis] < outerMin[axis] || innerMax[axis] > outerMax[axis] {
			return false
		}
	}
	return true
}

// FitPoints returns the center and half widths of the smallest axis-aligned
// box enclosing the given points. An empty point list yields a zero box at
// the origin.
func FitPoints(points []mgl32.Vec3) (center mgl32.Vec3, halfWidth mgl32.Vec3) {
	if len(points) == 0 {
		return mgl32.Vec3{}, mgl32.Vec3{}
	}

	min, max := boundingBox(points)
	return midpoint(min, max), halfExtent(min, max)
}

// boundingBox returns the corners of the smallest axis-aligned box enclosing
// the given points.
func boundingBox(points []mgl32.Vec3) (min, max mgl32.Vec3) {
	min = mgl32.Vec3{math32.Inf(1), math32.Inf(1), math32.Inf(1)}
	max = mgl32.Vec3{math32.Inf(-1), math32.Inf(-1), math32.Inf(-1)}
	for _, p := range points {
		for axis := 0; axis < 3; axis++ {
			min[axis] = math32.Min(min[axis], p[axis])
			max[axis] = math32.Max(max[axis], p[axis])
		}
	}
	return min, max
}

// Halves are taken before adding or subtracting so that coordinates near the
// float32 limits do not overflow.
func midpoint(min, max mgl32.Vec3) mgl32.Vec3 {
	return min.Mul(0.5).Add(max.Mul(0.5))
}

func halfExtent(min, max mgl32.Vec3) mgl32.Vec3 {
	return max.Mul(0.5).Sub(min.Mul(0.5))
}

// maxComponent returns the largest component of v.
func maxComponent(v mgl32.Vec3) float32 {
	return math32.Max(v.X(), math32.Max(v.Y(), v.Z()))
}

// cubeTransform returns the model matrix that scales a unit cube to size and
// moves it to center.
func cubeTransform(center mgl32.Vec3, size float32) mgl32.Mat4 {
	return mgl32.Translate3D(center.X(), center.Y(), center.Z()).
		Mul4(mgl32.Scale3D(size, size, size))
}

// cubeTolerance is the rounding error allowed between the size of an octant
// and the distance between its corners. It grows with the magnitude of the
// corner coordinates since bounds are shared between siblings rather than
// recomputed from the size.
func cubeTolerance(min, max mgl32.Vec3, size float32) float32 {
	magnitude := math32.Max(maxComponent(absVec(min)), maxComponent(absVec(max)))
	return 1e-4*math32.Max(1, size) + 1e-6*magnitude
}

func absVec(v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{math32.Abs(v.X()), math32.Abs(v.Y()), math32.Abs(v.Z())}
}

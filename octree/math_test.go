package octree

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestOverlaps(t *testing.T) {
	unitMin := mgl32.Vec3{0, 0, 0}
	unitMax := mgl32.Vec3{1, 1, 1}

	tests := []struct {
		name     string
		min      mgl32.Vec3
		max      mgl32.Vec3
		expected bool
	}{
		{
			name:     "same box",
			min:      unitMin,
			max:      unitMax,
			expected: true,
		},
		{
			name:     "inside",
			min:      mgl32.Vec3{0.25, 0.25, 0.25},
			max:      mgl32.Vec3{0.75, 0.75, 0.75},
			expected: true,
		},
		{
			name:     "touching face",
			min:      mgl32.Vec3{1, 0, 0},
			max:      mgl32.Vec3{2, 1, 1},
			expected: true,
		},
		{
			name:     "touching corner",
			min:      mgl32.Vec3{-1, -1, -1},
			max:      mgl32.Vec3{0, 0, 0},
			expected: true,
		},
		{
			name: "separated on x",
			min:  mgl32.Vec3{2, 0, 0},
			max:  mgl32.Vec3{3, 1, 1},
		},
		{
			name: "separated on y",
			min:  mgl32.Vec3{0, -3, 0},
			max:  mgl32.Vec3{1, -2, 1},
		},
		{
			name: "separated on z",
			min:  mgl32.Vec3{0, 0, 1.5},
			max:  mgl32.Vec3{1, 1, 2},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, Overlaps(unitMin, unitMax, test.min, test.max))
			require.Equal(t, test.expected, Overlaps(test.min, test.max, unitMin, unitMax))
		})
	}
}

func TestContains(t *testing.T) {
	outerMin := mgl32.Vec3{-1, -1, -1}
	outerMax := mgl32.Vec3{1, 1, 1}

	require.True(t, Contains(outerMin, outerMax, outerMin, outerMax))
	require.True(t, Contains(outerMin, outerMax, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 1, 1}))
	require.False(t, Contains(outerMin, outerMax, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 1, 2}))
	require.False(t, Contains(outerMin, outerMax, mgl32.Vec3{-2, 0, 0}, mgl32.Vec3{0, 0, 0}))
}

func TestFitPoints(t *testing.T) {
	t.Run("no points", func(t *testing.T) {
		center, halfWidth := FitPoints(nil)
		require.Equal(t, mgl32.Vec3{}, center)
		require.Equal(t, mgl32.Vec3{}, halfWidth)
	})

	t.Run("points", func(t *testing.T) {
		center, halfWidth := FitPoints([]mgl32.Vec3{
			{-2, 0, 1},
			{4, 1, 3},
			{0, -1, 2},
		})
		require.Equal(t, mgl32.Vec3{1, 0, 2}, center)
		require.Equal(t, mgl32.Vec3{3, 1, 1}, halfWidth)
	})

	t.Run("coordinates near the float32 limits", func(t *testing.T) {
		center, halfWidth := FitPoints([]mgl32.Vec3{
			{-3e38, 0, 3e38},
			{3e38, 1, 3.4e38},
		})
		for axis := 0; axis < 3; axis++ {
			require.False(t, math32.IsInf(center[axis], 0))
			require.False(t, math32.IsInf(halfWidth[axis], 0))
		}
		require.Equal(t, float32(0), center.X())
		require.Equal(t, float32(3e38), halfWidth.X())
	})
}

func TestCubeTransform(t *testing.T) {
	transform := cubeTransform(mgl32.Vec3{1, 2, 3}, 4)

	corner := transform.Mul4x1(mgl32.Vec4{0.5, 0.5, 0.5, 1}).Vec3()
	require.True(t, corner.ApproxEqual(mgl32.Vec3{3, 4, 5}))

	center := transform.Mul4x1(mgl32.Vec4{0, 0, 0, 1}).Vec3()
	require.True(t, center.ApproxEqual(mgl32.Vec3{1, 2, 3}))
}

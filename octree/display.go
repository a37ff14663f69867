package octree

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Display draws every octant of the tree.
func (t *Tree) Display(v Visualizer, color mgl32.Vec3) {
	t.Walk(func(o Octant) bool {
		v.AddWireCube(o.Transform(), color)
		return true
	})
}

// DisplayOctant draws the octant with the given id. Nothing is drawn when
// the octant does not exist.
func (t *Tree) DisplayOctant(v Visualizer, id uint32, color mgl32.Vec3) {
	if o, ok := t.Octant(id); ok {
		v.AddWireCube(o.Transform(), color)
	}
}

// DisplayLeaves draws the leaves that hold at least one entity.
func (t *Tree) DisplayLeaves(v Visualizer, color mgl32.Vec3) {
	for _, id := range t.leaves {
		v.AddWireCube(t.octants[id].Transform(), color)
	}
}

// WireCube is a wireframe cube recorded by a WireCubes visualizer.
type WireCube struct {
	Transform mgl32.Mat4 `json:"transform"`
	Color     mgl32.Vec3 `json:"color"`
}

// WireCubes is a Visualizer that records the cubes it receives.
type WireCubes []WireCube

func (w *WireCubes) AddWireCube(transform mgl32.Mat4, color mgl32.Vec3) {
	*w = append(*w, WireCube{
		Transform: transform,
		Color:     color,
	})
}

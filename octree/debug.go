package octree

import (
	"slices"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

type DebugInfo struct {
	MaxLevel          uint32     `json:"max_level"`
	IdealEntityCount  uint32     `json:"ideal_entity_count"`
	EntityCount       int        `json:"entity_count"`
	OctantCount       int        `json:"octant_count"`
	LeafCount         int        `json:"leaf_count"`
	OccupiedLeafCount int        `json:"occupied_leaf_count"`
	DeepestLevel      uint32     `json:"deepest_level"`
	Min               mgl32.Vec3 `json:"min"`
	Max               mgl32.Vec3 `json:"max"`

	// The number of entities of each occupied leaf, in leaf list order.
	Occupancy []uint32 `json:"occupancy"`
}

func (t *Tree) DebugInfo() DebugInfo {
	root := t.Root()

	info := DebugInfo{
		MaxLevel:          t.config.MaxLevel,
		IdealEntityCount:  t.config.IdealEntityCount,
		EntityCount:       t.entityCount(),
		OctantCount:       t.live,
		OccupiedLeafCount: len(t.leaves),
		Min:               root.min,
		Max:               root.max,
		Occupancy:         make([]uint32, len(t.leaves)),
	}

	t.Walk(func(o Octant) bool {
		if o.IsLeaf() {
			info.LeafCount++
		}
		info.DeepestLevel = max(info.DeepestLevel, o.level)
		return true
	})

	for i, id := range t.leaves {
		info.Occupancy[i] = uint32(len(t.octants[id].entities))
	}
	return info
}

// Validate checks the structural invariants of the tree and the consistency
// of its assignments with the current entities. It returns an error
// describing the first violation found.
func (t *Tree) Validate() error {
	if len(t.octants) == 0 {
		return errInvariant(RootID, "missing root")
	}

	root := t.octants[RootID]
	if root.dead || root.level != 0 || root.parent != NoOctant {
		return errInvariant(RootID, "root is not a level 0 octant without parent")
	}

	n := t.entityCount()
	if t.fitted {
		for i := 0; i < n; i++ {
			min, max := t.entities.EntityExtent(i)
			if !Contains(root.min, root.max, min, max) {
				return errInvariant(RootID, "entity is outside of the root")
			}
		}
	}

	var err error
	var live int
	var leaves []uint32
	assigned := make([]bool, n)

	t.Walk(func(o Octant) bool {
		live++
		if err = t.validateOctant(o); err != nil {
			return false
		}

		if len(o.entities) != 0 {
			leaves = append(leaves, o.id)
		}
		for _, e := range o.entities {
			assigned[e] = true
		}
		return true
	})
	if err != nil {
		return err
	}

	if live != t.live {
		return errInvariant(RootID, "octant count does not match the reachable octants")
	}

	if !slices.Equal(leaves, t.leaves) {
		return errInvariant(RootID, "leaf list does not match the occupied octants")
	}

	for i := 0; i < n; i++ {
		if assigned[i] != t.collides(&root, i) {
			return errInvariant(RootID, "entity assignment does not match root overlap")
		}
	}
	return nil
}

func (t *Tree) validateOctant(o Octant) error {
	if o.level > t.config.MaxLevel {
		return errInvariant(o.id, "level is deeper than the max level")
	}

	if o.childCount != 0 && o.childCount != 8 {
		return errInvariant(o.id, "octant is partially subdivided")
	}

	if o.size < 0 || math32.IsInf(o.size, 0) || math32.IsNaN(o.size) {
		return errInvariant(o.id, "octant size is not finite")
	}

	tolerance := cubeTolerance(o.min, o.max, o.size)
	for axis := 0; axis < 3; axis++ {
		if math32.Abs(o.max[axis]-o.min[axis]-o.size) > tolerance {
			return errInvariant(o.id, "octant is not a cube")
		}
	}

	if o.childCount == 0 {
		var expected []int
		for i, n := 0, t.entityCount(); i < n; i++ {
			if t.collides(&o, i) {
				expected = append(expected, i)
			}
		}

		if !slices.Equal(expected, o.entities) {
			return errInvariant(o.id, "leaf entities do not match overlapping entities")
		}
		return nil
	}

	if len(o.entities) != 0 {
		return errInvariant(o.id, "internal octant holds entities")
	}

	for i, id := range o.children {
		if !t.exists(id) {
			return errInvariant(o.id, "child does not exist")
		}

		child := t.octants[id]
		if child.parent != o.id || child.level != o.level+1 {
			return errInvariant(id, "child is not linked to its parent")
		}

		min, max := childBounds(o, i)
		if child.min != min || child.max != max || child.size != o.size/2 {
			return errInvariant(id, "child does not tile its parent")
		}
	}
	return nil
}

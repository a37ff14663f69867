package octree

import (
	"slices"

	"github.com/go-gl/mathgl/mgl32"
)

// ConstructTree rebuilds the tree from the root: the previous subtree and
// assignments are discarded, the root is subdivided while octants hold more
// than the ideal entity count, then entities are assigned to leaves and the
// leaf list is rebuilt. The root bounds are kept; call FitBounds first to
// refit them to the current entities.
//
// Constructing twice with the same entities and configuration produces the
// same tree, ids included.
func (t *Tree) ConstructTree() {
	t.KillBranches(RootID)
	t.octants[RootID].entities = nil
	t.leaves = t.leaves[:0]

	if t.ContainsMoreThan(RootID, t.config.IdealEntityCount) {
		t.subdivide(RootID)
	}

	t.AssignEntities()
	t.ConstructList()
}

// IsColliding reports whether the extent of the given entity overlaps the
// octant. Touching boundaries count as overlapping.
func (t *Tree) IsColliding(id uint32, entityIndex int) (bool, error) {
	if !t.exists(id) {
		return false, errOctantNotFound(id)
	}

	if n := t.entityCount(); entityIndex < 0 || entityIndex >= n {
		return false, errEntityOutOfRange(entityIndex, n)
	}
	return t.collides(&t.octants[id], entityIndex), nil
}

func (t *Tree) collides(o *Octant, entityIndex int) bool {
	min, max := t.entities.EntityExtent(entityIndex)
	return Overlaps(o.min, o.max, min, max)
}

// ContainsMoreThan reports whether more than n entities overlap the octant.
// Counting stops as soon as n is exceeded. Unknown octants contain nothing.
func (t *Tree) ContainsMoreThan(id uint32, n uint32) bool {
	if !t.exists(id) {
		return false
	}

	o := &t.octants[id]
	var count uint32
	for i, c := 0, t.entityCount(); i < c; i++ {
		if !t.collides(o, i) {
			continue
		}

		count++
		if count > n {
			return true
		}
	}
	return false
}

// Subdivide splits the octant into 8 children and recursively splits the
// children that hold more than the ideal entity count. Octants that already
// have children or that are at the max level are left untouched.
//
// Assignments are not updated: call AssignEntities and ConstructList, or
// ConstructTree, afterwards.
func (t *Tree) Subdivide(id uint32) error {
	if !t.exists(id) {
		return errOctantNotFound(id)
	}

	t.subdivide(id)
	return nil
}

func (t *Tree) subdivide(id uint32) {
	parent := t.octants[id]
	if parent.childCount != 0 || parent.level >= t.config.MaxLevel {
		return
	}

	size := parent.size / 2

	children := noChildren
	for i := range octantDirections {
		min, max := childBounds(parent, i)
		child := newOctantBounds(min, max, size)
		child.id = uint32(len(t.octants))
		child.parent = id
		child.level = parent.level + 1

		t.octants = append(t.octants, child)
		children[i] = child.id
	}
	t.live += len(children)

	t.octants[id].children = children
	t.octants[id].childCount = uint32(len(children))

	for _, child := range children {
		if t.ContainsMoreThan(child, t.config.IdealEntityCount) {
			t.subdivide(child)
		}
	}
}

// childBounds returns the corners of the child at the given index. Each axis
// spans either [min, center] or [center, max] of the parent, so siblings
// share the exact same split planes.
func childBounds(parent Octant, index int) (min, max mgl32.Vec3) {
	dir := octantDirections[index]
	for axis := 0; axis < 3; axis++ {
		if dir[axis] < 0 {
			min[axis] = parent.min[axis]
			max[axis] = parent.center[axis]
		} else {
			min[axis] = parent.center[axis]
			max[axis] = parent.max[axis]
		}
	}
	return min, max
}

// KillBranches destroys every descendant of the octant. Ids of destroyed
// octants are not reused until the next ConstructTree.
func (t *Tree) KillBranches(id uint32) error {
	if !t.exists(id) {
		return errOctantNotFound(id)
	}

	if id == RootID {
		clear(t.octants[1:])
		t.octants = t.octants[:1]
		t.octants[RootID].children = noChildren
		t.octants[RootID].childCount = 0
		t.live = 1
		t.leaves = t.leaves[:0]
		return nil
	}

	t.killBranches(id)
	t.leaves = slices.DeleteFunc(t.leaves, func(leaf uint32) bool {
		return t.octants[leaf].dead
	})
	return nil
}

func (t *Tree) killBranches(id uint32) {
	o := &t.octants[id]
	for _, child := range o.children[:o.childCount] {
		t.killBranches(child)
		t.octants[child] = Octant{
			id:       child,
			parent:   NoOctant,
			children: noChildren,
			dead:     true,
		}
		t.live--
	}

	o.children = noChildren
	o.childCount = 0
}

// AssignEntities clears every assignment then assigns each entity to the
// leaves it overlaps, in ascending entity order. The membership sink, when
// set, is notified of each assignment.
func (t *Tree) AssignEntities() {
	t.clearEntityList(RootID)
	t.assign(RootID)
}

func (t *Tree) assign(id uint32) {
	o := &t.octants[id]
	if o.childCount == 0 {
		for i, n := 0, t.entityCount(); i < n; i++ {
			if !t.collides(o, i) {
				continue
			}

			o.entities = append(o.entities, i)
			if t.sink != nil {
				t.sink.NotifyLeafMembership(i, id)
			}
		}
	}

	for _, child := range o.children[:o.childCount] {
		t.assign(child)
	}
}

// ClearEntityList removes the assignments of the octant and of all its
// descendants.
func (t *Tree) ClearEntityList(id uint32) error {
	if !t.exists(id) {
		return errOctantNotFound(id)
	}

	t.clearEntityList(id)
	return nil
}

func (t *Tree) clearEntityList(id uint32) {
	o := &t.octants[id]
	o.entities = nil

	for _, child := range o.children[:o.childCount] {
		t.clearEntityList(child)
	}
}

// ConstructList rebuilds the leaf list from the current assignments.
func (t *Tree) ConstructList() {
	t.leaves = t.leaves[:0]
	t.constructList(RootID)
}

func (t *Tree) constructList(id uint32) {
	o := t.octants[id]
	if len(o.entities) > 0 {
		t.leaves = append(t.leaves, id)
	}

	for _, child := range o.children[:o.childCount] {
		t.constructList(child)
	}
}

package octree

import (
	"math/rand"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func cube(x, y, z, halfSize float32) Box {
	half := mgl32.Vec3{halfSize, halfSize, halfSize}
	center := mgl32.Vec3{x, y, z}
	return Box{
		Min: center.Sub(half),
		Max: center.Add(half),
	}
}

// Two corner boxes fix the root to [-4, 4] and 10 boxes are packed inside
// [1, 1.5].
func clusteredBoxes() Boxes {
	boxes := Boxes{
		{Min: mgl32.Vec3{-4, -4, -4}, Max: mgl32.Vec3{-3, -3, -3}},
		{Min: mgl32.Vec3{3, 3, 3}, Max: mgl32.Vec3{4, 4, 4}},
	}
	for i := 0; i < 10; i++ {
		boxes = append(boxes, Box{
			Min: mgl32.Vec3{1, 1, 1},
			Max: mgl32.Vec3{1.5, 1.5, 1.5},
		})
	}
	return boxes
}

func randomBoxes(seed int64, n int) Boxes {
	r := rand.New(rand.NewSource(seed))
	boxes := make(Boxes, n)
	for i := range boxes {
		boxes[i] = cube(
			r.Float32()*100-50,
			r.Float32()*100-50,
			r.Float32()*100-50,
			r.Float32()*3,
		)
	}
	return boxes
}

type membershipRecorder map[int][]uint32

func (r membershipRecorder) NotifyLeafMembership(entityIndex int, octantID uint32) {
	r[entityIndex] = append(r[entityIndex], octantID)
}

type countingProvider struct {
	Boxes
	extentCalls int
}

func (p *countingProvider) EntityExtent(index int) (mgl32.Vec3, mgl32.Vec3) {
	p.extentCalls++
	return p.Boxes.EntityExtent(index)
}

func TestNewOctant(t *testing.T) {
	o := NewOctant(mgl32.Vec3{1, 2, 3}, 4)

	require.Equal(t, float32(4), o.Size())
	require.Equal(t, mgl32.Vec3{1, 2, 3}, o.Center())
	require.Equal(t, mgl32.Vec3{-1, 0, 1}, o.Min())
	require.Equal(t, mgl32.Vec3{3, 4, 5}, o.Max())
	require.Zero(t, o.Level())
	require.True(t, o.IsLeaf())
	require.Empty(t, o.Entities())
	require.Nil(t, o.Children())

	_, ok := o.Parent()
	require.False(t, ok)

	_, ok = o.Child(0)
	require.False(t, ok)
}

func TestTreeSingleEntity(t *testing.T) {
	tree := New(Boxes{cube(1, 2, 3, 0.5)}, Config{MaxLevel: 3, IdealEntityCount: 5})

	root := tree.Root()
	require.Equal(t, 1, tree.OctantCount())
	require.True(t, root.IsLeaf())
	require.Equal(t, []int{0}, root.Entities())
	require.Equal(t, []uint32{RootID}, tree.Leaves())
	require.Equal(t, mgl32.Vec3{1, 2, 3}, root.Center())
	require.Equal(t, float32(1), root.Size())
	require.NoError(t, tree.Validate())
}

func TestTreeClusterStopsAtMaxLevel(t *testing.T) {
	tree := New(clusteredBoxes(), Config{MaxLevel: 2, IdealEntityCount: 5})
	require.NoError(t, tree.Validate())

	root := tree.Root()
	require.Equal(t, mgl32.Vec3{0, 0, 0}, root.Center())
	require.Equal(t, float32(8), root.Size())
	require.Equal(t, uint32(8), root.ChildCount())

	// Only the (+x +y +z) child holds the cluster and is subdivided.
	require.Equal(t, 17, tree.OctantCount())
	positive, ok := root.Child(7)
	require.True(t, ok)
	require.Equal(t, uint32(8), positive)

	octant, ok := tree.Octant(positive)
	require.True(t, ok)
	require.Equal(t, uint32(1), octant.Level())
	require.Equal(t, mgl32.Vec3{2, 2, 2}, octant.Center())
	require.False(t, octant.IsLeaf())

	// The cluster stays crowded at the max level.
	clusterLeaf, ok := tree.Octant(9)
	require.True(t, ok)
	require.Equal(t, uint32(2), clusterLeaf.Level())
	require.True(t, clusterLeaf.IsLeaf())
	require.Equal(t, []int{2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, clusterLeaf.Entities())

	require.Equal(t, []uint32{1, 9, 16}, tree.Leaves())

	tree.Walk(func(o Octant) bool {
		require.LessOrEqual(t, o.Level(), uint32(2))
		return true
	})
}

func TestTreeStraddlingEntity(t *testing.T) {
	boxes := Boxes{
		{Min: mgl32.Vec3{-4, -4, -4}, Max: mgl32.Vec3{-3, -3, -3}},
		{Min: mgl32.Vec3{3, 3, 3}, Max: mgl32.Vec3{4, 4, 4}},
		{Min: mgl32.Vec3{-1, -3, -3}, Max: mgl32.Vec3{1, -2, -2}},
	}

	recorder := make(membershipRecorder)
	tree := New(boxes, Config{MaxLevel: 1, IdealEntityCount: 1}, WithMembershipSink(recorder))
	require.NoError(t, tree.Validate())

	negative, _ := tree.Octant(1)
	positive, _ := tree.Octant(2)
	require.Equal(t, []int{0, 2}, negative.Entities())
	require.Equal(t, []int{2}, positive.Entities())

	require.Equal(t, []uint32{1}, recorder[0])
	require.Equal(t, []uint32{8}, recorder[1])
	require.Equal(t, []uint32{1, 2}, recorder[2])
}

func TestTreeMaxLevelZero(t *testing.T) {
	boxes := randomBoxes(1, 50)
	tree := New(boxes, Config{MaxLevel: 0, IdealEntityCount: 1})

	require.Equal(t, 1, tree.OctantCount())
	require.True(t, tree.Root().IsLeaf())
	require.Len(t, tree.Root().Entities(), 50)
	require.NoError(t, tree.Validate())

	require.NoError(t, tree.Subdivide(RootID))
	require.Equal(t, 1, tree.OctantCount())
}

func TestTreeWithoutEntities(t *testing.T) {
	for _, entities := range []EntityProvider{nil, Boxes{}} {
		tree := New(entities, DefaultConfig())

		root := tree.Root()
		require.Equal(t, float32(0), root.Size())
		require.Equal(t, mgl32.Vec3{}, root.Center())
		require.True(t, root.IsLeaf())
		require.Empty(t, tree.Leaves())
		require.Equal(t, 1, tree.OctantCount())
		require.NoError(t, tree.Validate())
	}
}

func TestTreeRootContainsEntities(t *testing.T) {
	boxes := randomBoxes(7, 200)
	tree := New(boxes, DefaultConfig())
	require.NoError(t, tree.Validate())

	root := tree.Root()
	require.True(t, root.Size() > 0)
	for _, b := range boxes {
		require.True(t, Contains(root.Min(), root.Max(), b.Min, b.Max))
	}
}

func leafEntities(tree *Tree) map[int]bool {
	entities := make(map[int]bool)
	for _, id := range tree.Leaves() {
		o, _ := tree.Octant(id)
		for _, e := range o.Entities() {
			entities[e] = true
		}
	}
	return entities
}

func TestTreeRootContainsPointEntities(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	randomPoint := func() mgl32.Vec3 {
		return mgl32.Vec3{
			r.Float32()*2000 - 1000,
			r.Float32()*2000 - 1000,
			r.Float32()*2000 - 1000,
		}
	}

	for i := 0; i < 500; i++ {
		p := randomPoint()
		q := randomPoint()
		boxes := Boxes{{Min: p, Max: p}, {Min: q, Max: q}}

		tree := New(boxes, Config{MaxLevel: 2, IdealEntityCount: 0})
		require.NoError(t, tree.Validate(), "points %v and %v", p, q)

		root := tree.Root()
		entities := leafEntities(tree)
		for j, b := range boxes {
			require.True(t, Contains(root.Min(), root.Max(), b.Min, b.Max), "point %v", b.Min)
			require.True(t, entities[j], "point %v", b.Min)
		}
	}
}

func TestTreeEntitiesOnSplitPlanes(t *testing.T) {
	r := rand.New(rand.NewSource(5))

	for i := 0; i < 500; i++ {
		center := mgl32.Vec3{
			r.Float32()*200 - 100,
			r.Float32()*200 - 100,
			r.Float32()*200 - 100,
		}
		size := 0.1 + r.Float32()*50

		flat := Box{
			Min: mgl32.Vec3{center.X() - size/8, center.Y(), center.Z() - size/8},
			Max: mgl32.Vec3{center.X() + size/8, center.Y(), center.Z() + size/8},
		}
		boxes := Boxes{flat, flat}

		tree := NewWithBounds(center, size, boxes, Config{MaxLevel: 1, IdealEntityCount: 1})
		require.NoError(t, tree.Validate(), "center %v size %v", center, size)
		require.Equal(t, 9, tree.OctantCount())

		entities := leafEntities(tree)
		require.True(t, entities[0], "center %v size %v", center, size)
		require.True(t, entities[1], "center %v size %v", center, size)
	}
}

func TestTreeRandomEntitiesReachLeaves(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		boxes := randomBoxes(seed, 100)
		tree := New(boxes, Config{MaxLevel: 4, IdealEntityCount: 2})
		require.NoError(t, tree.Validate(), "seed %d", seed)

		root := tree.Root()
		entities := leafEntities(tree)
		for i, b := range boxes {
			require.True(t, Contains(root.Min(), root.Max(), b.Min, b.Max), "seed %d entity %d", seed, i)
			require.True(t, entities[i], "seed %d entity %d", seed, i)
		}
	}
}

func TestTreeChildrenTileParent(t *testing.T) {
	tree := New(randomBoxes(3, 300), Config{MaxLevel: 4, IdealEntityCount: 3})
	require.NoError(t, tree.Validate())

	tree.Walk(func(o Octant) bool {
		if o.IsLeaf() {
			return true
		}
		require.Equal(t, uint32(8), o.ChildCount())

		var volume float32
		children := o.Children()
		for i, id := range children {
			child, ok := tree.Octant(id)
			require.True(t, ok)
			require.InDelta(t, o.Size()/2, child.Size(), 1e-4)

			parent, ok := child.Parent()
			require.True(t, ok)
			require.Equal(t, o.ID(), parent)
			require.Equal(t, o.Level()+1, child.Level())

			size := child.Max().Sub(child.Min())
			volume += size.X() * size.Y() * size.Z()

			for _, otherID := range children[i+1:] {
				other, _ := tree.Octant(otherID)
				shared := mgl32.Vec3{}
				for axis := 0; axis < 3; axis++ {
					shared[axis] = min(child.Max()[axis], other.Max()[axis]) -
						max(child.Min()[axis], other.Min()[axis])
				}
				require.False(t, shared.X() > 1e-4 && shared.Y() > 1e-4 && shared.Z() > 1e-4)
			}
		}

		parentSize := o.Max().Sub(o.Min())
		require.InEpsilon(t, parentSize.X()*parentSize.Y()*parentSize.Z(), volume, 1e-3)
		return true
	})
}

func TestTreeConstructIsIdempotent(t *testing.T) {
	tree := New(randomBoxes(11, 150), Config{MaxLevel: 3, IdealEntityCount: 4})

	snapshot := func() ([]Octant, []uint32) {
		var octants []Octant
		tree.Walk(func(o Octant) bool {
			octants = append(octants, o.clone())
			return true
		})
		return octants, tree.Leaves()
	}

	octants, leaves := snapshot()
	tree.ConstructTree()
	octants2, leaves2 := snapshot()

	require.Equal(t, octants, octants2)
	require.Equal(t, leaves, leaves2)
	require.Equal(t, len(octants), tree.OctantCount())
}

func TestTreeIsColliding(t *testing.T) {
	tree := New(clusteredBoxes(), Config{MaxLevel: 2, IdealEntityCount: 5})

	colliding, err := tree.IsColliding(9, 2)
	require.NoError(t, err)
	require.True(t, colliding)

	colliding, err = tree.IsColliding(1, 2)
	require.NoError(t, err)
	require.False(t, colliding)

	_, err = tree.IsColliding(RootID, 12)
	require.Error(t, err)
	require.True(t, errors.IsType(err, ErrTypeEntityOutOfRange))

	_, err = tree.IsColliding(RootID, -1)
	require.True(t, errors.IsType(err, ErrTypeEntityOutOfRange))

	_, err = tree.IsColliding(1000, 0)
	require.True(t, errors.IsType(err, ErrTypeOctantNotFound))
}

func TestTreeContainsMoreThanStopsEarly(t *testing.T) {
	provider := &countingProvider{Boxes: randomBoxes(5, 100)}
	tree := New(provider, Config{MaxLevel: 0, IdealEntityCount: 5})

	provider.extentCalls = 0
	require.True(t, tree.ContainsMoreThan(RootID, 2))
	require.Equal(t, 3, provider.extentCalls)

	require.False(t, tree.ContainsMoreThan(RootID, 100))
	require.False(t, tree.ContainsMoreThan(42, 0))
}

func TestTreeChildIndex(t *testing.T) {
	tree := New(clusteredBoxes(), Config{MaxLevel: 2, IdealEntityCount: 5})
	root := tree.Root()

	for i := 0; i < 8; i++ {
		id, ok := root.Child(i)
		require.True(t, ok)
		require.Equal(t, uint32(i+1), id)
	}

	_, ok := root.Child(8)
	require.False(t, ok)

	_, ok = root.Child(-1)
	require.False(t, ok)

	_, ok = tree.Octant(NoOctant)
	require.False(t, ok)
}

func TestTreeKillBranches(t *testing.T) {
	tree := New(clusteredBoxes(), Config{MaxLevel: 2, IdealEntityCount: 5})

	require.NoError(t, tree.KillBranches(8))
	require.Equal(t, 9, tree.OctantCount())
	require.Equal(t, []uint32{1}, tree.Leaves())

	_, ok := tree.Octant(9)
	require.False(t, ok)

	octant, _ := tree.Octant(8)
	require.True(t, octant.IsLeaf())

	err := tree.KillBranches(9)
	require.True(t, errors.IsType(err, ErrTypeOctantNotFound))

	tree.ConstructTree()
	require.Equal(t, 17, tree.OctantCount())
	require.Equal(t, []uint32{1, 9, 16}, tree.Leaves())
	require.NoError(t, tree.Validate())

	require.NoError(t, tree.KillBranches(RootID))
	require.Equal(t, 1, tree.OctantCount())
	require.Empty(t, tree.Leaves())
}

func TestTreeSubdivideByHand(t *testing.T) {
	tree := NewWithBounds(mgl32.Vec3{}, 8, clusteredBoxes(), Config{MaxLevel: 2, IdealEntityCount: 100})
	require.Equal(t, 1, tree.OctantCount())

	require.NoError(t, tree.Subdivide(RootID))
	require.Equal(t, 9, tree.OctantCount())

	// Already subdivided.
	require.NoError(t, tree.Subdivide(RootID))
	require.Equal(t, 9, tree.OctantCount())

	tree.AssignEntities()
	tree.ConstructList()
	require.NoError(t, tree.Validate())
	require.Equal(t, []uint32{1, 8}, tree.Leaves())

	err := tree.Subdivide(100)
	require.True(t, errors.IsType(err, ErrTypeOctantNotFound))
}

func TestTreeClearEntityList(t *testing.T) {
	tree := New(clusteredBoxes(), Config{MaxLevel: 2, IdealEntityCount: 5})

	require.NoError(t, tree.ClearEntityList(8))
	octant, _ := tree.Octant(9)
	require.Empty(t, octant.Entities())

	tree.ConstructList()
	require.Equal(t, []uint32{1}, tree.Leaves())
}

func TestTreeRelease(t *testing.T) {
	tree := New(clusteredBoxes(), DefaultConfig())
	tree.Release()

	require.Equal(t, 1, tree.OctantCount())
	require.Equal(t, float32(0), tree.Root().Size())
	require.Empty(t, tree.Leaves())
}

func TestTreeConfigure(t *testing.T) {
	tree := New(clusteredBoxes(), Config{MaxLevel: 0, IdealEntityCount: 5})
	require.Equal(t, 1, tree.OctantCount())

	tree.Configure(Config{MaxLevel: 2, IdealEntityCount: 5})
	tree.ConstructTree()
	require.Equal(t, 17, tree.OctantCount())
	require.Equal(t, uint32(2), tree.Config().MaxLevel)
}

func TestTreeFitBounds(t *testing.T) {
	boxes := Boxes{cube(0, 0, 0, 1)}
	tree := New(boxes, DefaultConfig())
	require.Equal(t, float32(2), tree.Root().Size())

	boxes[0] = cube(10, 0, 0, 2)
	tree.FitBounds()
	tree.ConstructTree()
	require.Equal(t, mgl32.Vec3{10, 0, 0}, tree.Root().Center())
	require.Equal(t, float32(4), tree.Root().Size())
	require.NoError(t, tree.Validate())
}

func TestTreeClone(t *testing.T) {
	tree := New(clusteredBoxes(), Config{MaxLevel: 2, IdealEntityCount: 5})
	clone := tree.Clone()

	require.NoError(t, clone.KillBranches(RootID))
	require.Equal(t, 1, clone.OctantCount())

	require.Equal(t, 17, tree.OctantCount())
	require.Equal(t, []uint32{1, 9, 16}, tree.Leaves())
	require.NoError(t, tree.Validate())
}

func TestTreeCloneBranch(t *testing.T) {
	tree := New(clusteredBoxes(), Config{MaxLevel: 2, IdealEntityCount: 5})

	branch, err := tree.CloneBranch(8)
	require.NoError(t, err)
	require.NoError(t, branch.Validate())

	root := branch.Root()
	require.Equal(t, mgl32.Vec3{2, 2, 2}, root.Center())
	require.Equal(t, float32(4), root.Size())
	require.Zero(t, root.Level())
	require.Equal(t, uint32(1), branch.Config().MaxLevel)
	require.Equal(t, 9, branch.OctantCount())
	require.Equal(t, []uint32{1, 8}, branch.Leaves())

	leaf, _ := branch.Octant(1)
	require.Equal(t, uint32(1), leaf.Level())
	require.Equal(t, []int{2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, leaf.Entities())

	_, err = tree.CloneBranch(200)
	require.True(t, errors.IsType(err, ErrTypeOctantNotFound))
}

func TestTreeDisplay(t *testing.T) {
	tree := New(clusteredBoxes(), Config{MaxLevel: 2, IdealEntityCount: 5})
	red := mgl32.Vec3{1, 0, 0}

	var all WireCubes
	tree.Display(&all, red)
	require.Len(t, all, 17)
	require.Equal(t, red, all[0].Color)

	var leaves WireCubes
	tree.DisplayLeaves(&leaves, red)
	require.Len(t, leaves, 3)

	var one WireCubes
	tree.DisplayOctant(&one, 9, red)
	require.Len(t, one, 1)
	corner := one[0].Transform.Mul4x1(mgl32.Vec4{-0.5, -0.5, -0.5, 1}).Vec3()
	require.True(t, corner.ApproxEqual(mgl32.Vec3{0, 0, 0}))

	var none WireCubes
	tree.DisplayOctant(&none, 1000, red)
	require.Empty(t, none)
}

func TestTreeDebugInfo(t *testing.T) {
	tree := New(clusteredBoxes(), Config{MaxLevel: 2, IdealEntityCount: 5})
	info := tree.DebugInfo()

	require.Equal(t, uint32(2), info.MaxLevel)
	require.Equal(t, uint32(5), info.IdealEntityCount)
	require.Equal(t, 12, info.EntityCount)
	require.Equal(t, 17, info.OctantCount)
	require.Equal(t, 15, info.LeafCount)
	require.Equal(t, 3, info.OccupiedLeafCount)
	require.Equal(t, uint32(2), info.DeepestLevel)
	require.Equal(t, mgl32.Vec3{-4, -4, -4}, info.Min)
	require.Equal(t, mgl32.Vec3{4, 4, 4}, info.Max)
	require.Equal(t, []uint32{1, 10, 1}, info.Occupancy)
}

func TestTreeValidateDetectsStaleAssignments(t *testing.T) {
	boxes := clusteredBoxes()
	tree := New(boxes, Config{MaxLevel: 2, IdealEntityCount: 5})

	boxes[2] = Box{Min: mgl32.Vec3{-2, -2, -2}, Max: mgl32.Vec3{-1, -1, -1}}
	err := tree.Validate()
	require.Error(t, err)
	require.True(t, errors.IsType(err, ErrTypeInvariant))

	tree.ConstructTree()
	require.NoError(t, tree.Validate())
}

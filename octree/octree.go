// Package octree implements an axis-aligned octree over a set of entity
// bounding boxes. The tree is rebuilt as a whole on every construction pass
// and is meant as a broad phase for overlap tests and visibility queries.
//
// Octants live in an arena owned by the Tree and are addressed by their id,
// which is also their index in the arena. The root is always octant 0.
package octree

import (
	"math"
	"slices"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// RootID is the id of the root octant of every tree.
	RootID uint32 = 0

	// NoOctant is the sentinel used for a missing parent or child.
	NoOctant uint32 = math.MaxUint32

	// MaxCoordinate is the largest coordinate magnitude a tree supports.
	// Octant sizes of entities spread further apart overflow float32.
	MaxCoordinate float32 = 1e30
)

// The offsets of the 8 children from their parent center, in units of a
// quarter of the parent size. The index in this table is the child index
// returned by Octant.Child:
//
//	0 (-x -y -z)  1 (+x -y -z)  2 (+x -y +z)  3 (-x -y +z)
//	4 (-x +y +z)  5 (-x +y -z)  6 (+x +y -z)  7 (+x +y +z)
var octantDirections = [8]mgl32.Vec3{
	{-1, -1, -1},
	{1, -1, -1},
	{1, -1, 1},
	{-1, -1, 1},
	{-1, 1, 1},
	{-1, 1, -1},
	{1, 1, -1},
	{1, 1, 1},
}

var noChildren = [8]uint32{
	NoOctant, NoOctant, NoOctant, NoOctant,
	NoOctant, NoOctant, NoOctant, NoOctant,
}

// Config is the configuration shared by all the octants of a tree.
type Config struct {
	// The deepest level an octant can be subdivided to. The root is level 0.
	MaxLevel uint32 `json:"max_level"`

	// The number of overlapping entities an octant can hold before being
	// subdivided.
	IdealEntityCount uint32 `json:"ideal_entity_count"`
}

// DefaultConfig returns a configuration with a max level of 2 and an ideal
// entity count of 5.
func DefaultConfig() Config {
	return Config{
		MaxLevel:         2,
		IdealEntityCount: 5,
	}
}

// EntityProvider gives random access to the entities a tree is built over.
// Indexes go from 0 to EntityCount()-1 and must stay stable during a
// construction pass.
type EntityProvider interface {
	EntityCount() int
	EntityExtent(index int) (min, max mgl32.Vec3)
}

// MembershipSink is notified of every leaf an entity is assigned to. An
// entity that straddles several leaves is notified once per leaf.
type MembershipSink interface {
	NotifyLeafMembership(entityIndex int, octantID uint32)
}

// Visualizer receives wireframe cubes for debug drawing. The transform maps
// a unit cube centered at the origin onto the octant.
type Visualizer interface {
	AddWireCube(transform mgl32.Mat4, color mgl32.Vec3)
}

// Box is an axis-aligned box.
type Box struct {
	Min mgl32.Vec3 `json:"min"`
	Max mgl32.Vec3 `json:"max"`
}

// Boxes is an EntityProvider backed by a slice.
type Boxes []Box

func (b Boxes) EntityCount() int {
	return len(b)
}

func (b Boxes) EntityExtent(index int) (mgl32.Vec3, mgl32.Vec3) {
	return b[index].Min, b[index].Max
}

// Octant is a cubic cell of the tree.
type Octant struct {
	id         uint32
	level      uint32
	size       float32
	center     mgl32.Vec3
	min        mgl32.Vec3
	max        mgl32.Vec3
	parent     uint32
	children   [8]uint32
	childCount uint32
	entities   []int
	dead       bool
}

// NewOctant returns a standalone cube of the given center and edge length.
// The returned octant is not linked to any tree: it has no parent, no
// children and a level of 0.
func NewOctant(center mgl32.Vec3, size float32) Octant {
	half := mgl32.Vec3{size / 2, size / 2, size / 2}

	return Octant{
		size:     size,
		center:   center,
		min:      center.Sub(half),
		max:      center.Add(half),
		parent:   NoOctant,
		children: noChildren,
	}
}

// newOctantBounds returns a standalone octant spanning [min, max]. Size is
// the nominal edge length, the corners are kept as given so that they can be
// shared with neighbor octants.
func newOctantBounds(min, max mgl32.Vec3, size float32) Octant {
	return Octant{
		size:     size,
		center:   midpoint(min, max),
		min:      min,
		max:      max,
		parent:   NoOctant,
		children: noChildren,
	}
}

func (o Octant) ID() uint32 {
	return o.id
}

func (o Octant) Level() uint32 {
	return o.level
}

// Size returns the edge length of the cube.
func (o Octant) Size() float32 {
	return o.size
}

func (o Octant) Center() mgl32.Vec3 {
	return o.center
}

func (o Octant) Min() mgl32.Vec3 {
	return o.min
}

func (o Octant) Max() mgl32.Vec3 {
	return o.max
}

// Root returns the id of the root of the tree the octant belongs to.
func (o Octant) Root() uint32 {
	return RootID
}

// Parent returns the id of the parent octant. It returns false for the root
// and for standalone octants.
func (o Octant) Parent() (uint32, bool) {
	return o.parent, o.parent != NoOctant
}

// Child returns the id of the child at the given index. It returns false
// when the index is not within [0, 7] or when the octant is a leaf.
func (o Octant) Child(index int) (uint32, bool) {
	if index < 0 || index > 7 || o.childCount == 0 {
		return NoOctant, false
	}
	return o.children[index], true
}

// Children returns the ids of the children, or nil for a leaf.
func (o Octant) Children() []uint32 {
	if o.childCount == 0 {
		return nil
	}
	return slices.Clone(o.children[:o.childCount])
}

func (o Octant) ChildCount() uint32 {
	return o.childCount
}

func (o Octant) IsLeaf() bool {
	return o.childCount == 0
}

// Entities returns the indexes of the entities assigned to the octant, in
// ascending order. Only leaves hold entities.
func (o Octant) Entities() []int {
	return slices.Clone(o.entities)
}

// Transform returns the model matrix of the octant wireframe.
func (o Octant) Transform() mgl32.Mat4 {
	return cubeTransform(o.center, o.size)
}

func (o Octant) clone() Octant {
	o.entities = slices.Clone(o.entities)
	return o
}

// Option configures a tree.
type Option func(*Tree)

// WithMembershipSink sets the sink that is notified of entity to leaf
// assignments.
func WithMembershipSink(s MembershipSink) Option {
	return func(t *Tree) {
		t.sink = s
	}
}

// Tree is an octree. It is not safe for concurrent use.
type Tree struct {
	config   Config
	entities EntityProvider
	sink     MembershipSink
	fitted   bool

	octants []Octant
	live    int
	leaves  []uint32
}

// New creates a tree whose root is the smallest cube that encloses every
// entity, and constructs it.
func New(entities EntityProvider, c Config, options ...Option) *Tree {
	t := newTree(entities, c, options)
	t.FitBounds()
	t.ConstructTree()
	return t
}

// NewWithBounds creates a tree with an explicit root cube and constructs it.
// Entities outside of the root are not assigned to any leaf.
func NewWithBounds(center mgl32.Vec3, size float32, entities EntityProvider, c Config, options ...Option) *Tree {
	t := newTree(entities, c, options)
	t.resetRoot(NewOctant(center, size))
	t.ConstructTree()
	return t
}

func newTree(entities EntityProvider, c Config, options []Option) *Tree {
	t := &Tree{
		config:   c,
		entities: entities,
	}

	for _, opt := range options {
		opt(t)
	}
	return t
}

// FitBounds resizes the root to the smallest cube that encloses every
// entity and discards the rest of the tree. ConstructTree must be called
// afterwards to subdivide and assign entities again.
func (t *Tree) FitBounds() {
	n := t.entityCount()
	if n == 0 {
		t.resetRoot(NewOctant(mgl32.Vec3{}, 0))
		t.fitted = true
		return
	}

	points := make([]mgl32.Vec3, 0, n*2)
	for i := 0; i < n; i++ {
		min, max := t.entities.EntityExtent(i)
		points = append(points, max, min)
	}

	boxMin, boxMax := boundingBox(points)
	center := midpoint(boxMin, boxMax)
	half := maxComponent(halfExtent(boxMin, boxMax))

	// center ± half can round a ULP inside the box, the corners are widened
	// so that the root always encloses every entity.
	min := center.Sub(mgl32.Vec3{half, half, half})
	max := center.Add(mgl32.Vec3{half, half, half})
	for axis := 0; axis < 3; axis++ {
		min[axis] = math32.Min(min[axis], boxMin[axis])
		max[axis] = math32.Max(max[axis], boxMax[axis])
	}

	t.resetRoot(newOctantBounds(min, max, half*2))
	t.fitted = true
}

// Configure replaces the tree configuration. It takes effect on the next
// ConstructTree.
func (t *Tree) Configure(c Config) {
	t.config = c
}

func (t *Tree) Config() Config {
	return t.config
}

// Root returns the root octant.
func (t *Tree) Root() Octant {
	return t.octants[RootID]
}

// Octant returns the octant with the given id. It returns false when no live
// octant has this id.
func (t *Tree) Octant(id uint32) (Octant, bool) {
	if !t.exists(id) {
		return Octant{}, false
	}
	return t.octants[id], true
}

// OctantCount returns the number of octants built by the current
// construction pass, root included.
func (t *Tree) OctantCount() int {
	return t.live
}

// Leaves returns the ids of the leaves that hold at least one entity, in
// depth-first order.
func (t *Tree) Leaves() []uint32 {
	return slices.Clone(t.leaves)
}

// Walk calls fn on every octant in depth-first order, parents before
// children and children in index order. It stops when fn returns false.
func (t *Tree) Walk(fn func(Octant) bool) {
	t.walk(RootID, fn)
}

func (t *Tree) walk(id uint32, fn func(Octant) bool) bool {
	o := t.octants[id]
	if !fn(o) {
		return false
	}

	for _, child := range o.children[:o.childCount] {
		if !t.walk(child, fn) {
			return false
		}
	}
	return true
}

// Release tears the tree down to an empty root of size 0 at the origin.
func (t *Tree) Release() {
	t.resetRoot(NewOctant(mgl32.Vec3{}, 0))
	t.fitted = false
}

// Clone returns a deep copy of the tree. The copy shares the entity provider
// and membership sink of t.
func (t *Tree) Clone() *Tree {
	c := *t
	c.octants = make([]Octant, len(t.octants))
	for i, o := range t.octants {
		c.octants[i] = o.clone()
	}
	c.leaves = slices.Clone(t.leaves)
	return &c
}

// CloneBranch returns a new tree whose root is a copy of the given octant and
// its descendants. Ids are reassigned in creation order and levels are
// rebased so that the copied octant is level 0. The max level is lowered by
// the same amount so that the copy cannot be subdivided deeper than the
// source tree.
func (t *Tree) CloneBranch(id uint32) (*Tree, error) {
	if !t.exists(id) {
		return nil, errOctantNotFound(id)
	}

	src := t.octants[id]

	c := &Tree{
		config:   t.config,
		entities: t.entities,
		sink:     t.sink,
	}
	c.config.MaxLevel -= src.level

	root := src.clone()
	root.id = RootID
	root.parent = NoOctant
	root.level = 0
	c.octants = append(c.octants, root)
	c.cloneChildren(t, id, RootID, src.level)
	c.live = len(c.octants)
	c.ConstructList()
	return c, nil
}

func (t *Tree) cloneChildren(src *Tree, from, to, baseLevel uint32) {
	o := src.octants[from]
	if o.childCount == 0 {
		return
	}

	children := noChildren
	for i, child := range o.children {
		n := src.octants[child].clone()
		n.id = uint32(len(t.octants))
		n.parent = to
		n.level -= baseLevel
		t.octants = append(t.octants, n)
		children[i] = n.id
	}
	t.octants[to].children = children
	t.octants[to].childCount = 8

	for i, child := range o.children {
		t.cloneChildren(src, child, children[i], baseLevel)
	}
}

func (t *Tree) resetRoot(root Octant) {
	root.id = RootID
	root.level = 0
	root.parent = NoOctant

	clear(t.octants)
	t.octants = append(t.octants[:0], root)
	t.live = 1
	t.leaves = t.leaves[:0]
}

func (t *Tree) exists(id uint32) bool {
	return int64(id) < int64(len(t.octants)) && !t.octants[id].dead
}

func (t *Tree) entityCount() int {
	if t.entities == nil {
		return 0
	}
	return t.entities.EntityCount()
}

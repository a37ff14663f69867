package models

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/octant/octree"
	"github.com/google/uuid"
)

// Scene is a set of entities partitioned by an octree. The tree is rebuilt
// from a snapshot of the entities, sorted by id, so that entity indexes of
// the tree map to the snapshot.
type Scene struct {
	ID        uint32
	SceneUUID string

	// Rebuilds the tree after each entity change when true.
	AutoRebuild bool

	// Records leaf membership into entities during rebuilds when true.
	NotifyMembership bool

	entityIDs   IDGenerator
	entityMutex sync.RWMutex
	entities    map[uint32]*Entity

	treeMutex sync.RWMutex
	config    octree.Config
	tree      *octree.Tree
	snapshot  []*Entity
	version   uint64
}

func NewScene(id uint32, c octree.Config) *Scene {
	return &Scene{
		ID:               id,
		SceneUUID:        uuid.New().String(),
		AutoRebuild:      true,
		NotifyMembership: true,
		entities:         make(map[uint32]*Entity),
		config:           c,
		tree:             octree.New(nil, c),
	}
}

// AddEntity creates an entity and adds it to the scene.
func (s *Scene) AddEntity(name string, extent octree.Box) (*Entity, error) {
	if err := ValidateExtent(extent); err != nil {
		return nil, err
	}

	s.entityMutex.Lock()
	e, _ := NewEntity(s.entityIDs.New(), name, extent)
	s.entities[e.ID] = e
	s.entityMutex.Unlock()

	s.entitiesChanged()
	return e, nil
}

// UpdateEntity sets the extent of an entity.
func (s *Scene) UpdateEntity(id uint32, extent octree.Box) (*Entity, error) {
	e, ok := s.EntityByID(id)
	if !ok {
		return nil, s.errEntityNotFound(id)
	}

	if err := e.SetExtent(extent); err != nil {
		return nil, err
	}

	s.entitiesChanged()
	return e, nil
}

// RemoveEntity removes an entity from the scene. Its id gets reused.
func (s *Scene) RemoveEntity(id uint32) error {
	s.entityMutex.Lock()
	_, ok := s.entities[id]
	if ok {
		delete(s.entities, id)
		s.entityIDs.Reuse(id)
	}
	s.entityMutex.Unlock()

	if !ok {
		return s.errEntityNotFound(id)
	}

	s.entitiesChanged()
	return nil
}

func (s *Scene) EntityByID(id uint32) (*Entity, bool) {
	s.entityMutex.RLock()
	defer s.entityMutex.RUnlock()

	e, ok := s.entities[id]
	return e, ok
}

// Entities returns the scene entities sorted by id.
func (s *Scene) Entities() []*Entity {
	s.entityMutex.RLock()
	defer s.entityMutex.RUnlock()

	entities := make([]*Entity, 0, len(s.entities))
	for _, e := range s.entities {
		entities = append(entities, e)
	}

	slices.SortFunc(entities, func(a, b *Entity) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return entities
}

func (s *Scene) EntityCount() int {
	s.entityMutex.RLock()
	defer s.entityMutex.RUnlock()

	return len(s.entities)
}

func (s *Scene) Config() octree.Config {
	s.treeMutex.RLock()
	defer s.treeMutex.RUnlock()

	return s.config
}

// SetConfig changes the octree configuration and rebuilds the tree.
func (s *Scene) SetConfig(c octree.Config) {
	s.treeMutex.Lock()
	s.config = c
	s.treeMutex.Unlock()

	s.Rebuild()
}

// Rebuild builds a new tree from the current entities and swaps it with the
// previous one. Readers holding the previous tree through View are not
// affected.
func (s *Scene) Rebuild() {
	start := time.Now()

	s.treeMutex.Lock()
	defer s.treeMutex.Unlock()

	entities := s.Entities()
	extents := make(octree.Boxes, len(entities))
	for i, e := range entities {
		extents[i] = e.Extent()
		e.resetOctants()
	}

	var options []octree.Option
	if s.NotifyMembership {
		options = append(options, octree.WithMembershipSink(membership(entities)))
	}

	tree := octree.New(extents, s.config, options...)
	s.tree = tree
	s.snapshot = entities
	s.version++

	duration := time.Since(start)
	instrumentRebuild(duration, tree)

	logs.WithTag("scene_id", s.ID).
		WithTag("scene_uuid", s.SceneUUID).
		WithTag("entity_count", len(entities)).
		WithTag("octant_count", tree.OctantCount()).
		WithTag("leaf_count", len(tree.Leaves())).
		WithTag("duration", duration).
		Debug("octree rebuilt")
}

// View calls fn with the latest tree and the entities it was built from.
// Entity indexes of the tree are indexes of the given entity slice. Neither
// must be modified.
func (s *Scene) View(fn func(tree *octree.Tree, entities []*Entity)) {
	s.treeMutex.RLock()
	defer s.treeMutex.RUnlock()

	fn(s.tree, s.snapshot)
}

// Version returns the number of rebuilds performed so far.
func (s *Scene) Version() uint64 {
	s.treeMutex.RLock()
	defer s.treeMutex.RUnlock()

	return s.version
}

// Snapshot returns the latest tree, the entities it was built from and the
// rebuild count it was produced by. Trees are never modified once built.
func (s *Scene) Snapshot() (*octree.Tree, []*Entity, uint64) {
	s.treeMutex.RLock()
	defer s.treeMutex.RUnlock()

	return s.tree, s.snapshot, s.version
}

func (s *Scene) entitiesChanged() {
	if s.AutoRebuild {
		s.Rebuild()
	}
}

func (s *Scene) errEntityNotFound(id uint32) error {
	return errors.New("entity not found").
		WithType(ErrTypeEntityNotFound).
		WithTag("scene_id", s.ID).
		WithTag("entity_id", id)
}

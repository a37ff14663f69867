package models

import (
	"slices"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/octant/octree"
	"github.com/chewxy/math32"
)

// Entity is an object of a scene, represented by its axis-aligned extent.
type Entity struct {
	ID   uint32
	Name string

	mutex   sync.RWMutex
	extent  octree.Box
	octants []uint32
}

// NewEntity creates an entity with the given extent.
func NewEntity(id uint32, name string, extent octree.Box) (*Entity, error) {
	if err := ValidateExtent(extent); err != nil {
		return nil, err
	}

	return &Entity{
		ID:     id,
		Name:   name,
		extent: extent,
	}, nil
}

func (e *Entity) SetExtent(v octree.Box) error {
	if err := ValidateExtent(v); err != nil {
		return err
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.extent = v
	return nil
}

func (e *Entity) Extent() octree.Box {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.extent
}

// Octants returns the ids of the leaves the entity was assigned to by the
// last scene rebuild.
func (e *Entity) Octants() []uint32 {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return slices.Clone(e.octants)
}

func (e *Entity) addOctant(id uint32) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.octants = append(e.octants, id)
}

func (e *Entity) resetOctants() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.octants = nil
}

// ValidateExtent returns an error when the extent has a non finite or out of
// range coordinate, or when its min is greater than its max on some axis.
func ValidateExtent(b octree.Box) error {
	for i := 0; i < 3; i++ {
		if !isFinite(b.Min[i]) || !isFinite(b.Max[i]) {
			return errors.New("extent has a non finite coordinate").
				WithType(ErrTypeInvalidExtent).
				WithTag("min", b.Min).
				WithTag("max", b.Max)
		}

		if math32.Abs(b.Min[i]) > octree.MaxCoordinate || math32.Abs(b.Max[i]) > octree.MaxCoordinate {
			return errors.New("extent coordinate is out of range").
				WithType(ErrTypeInvalidExtent).
				WithTag("max_coordinate", octree.MaxCoordinate).
				WithTag("min", b.Min).
				WithTag("max", b.Max)
		}

		if b.Min[i] > b.Max[i] {
			return errors.New("extent min is greater than max").
				WithType(ErrTypeInvalidExtent).
				WithTag("axis", i).
				WithTag("min", b.Min).
				WithTag("max", b.Max)
		}
	}
	return nil
}

func isFinite(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}

// Scene membership sink. Entries follow the entity snapshot a tree was built
// from.
type membership []*Entity

func (m membership) NotifyLeafMembership(entityIndex int, octantID uint32) {
	m[entityIndex].addOctant(octantID)
}

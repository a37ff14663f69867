package octree

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	ErrTypeEntityOutOfRange = "octree_entity_out_of_range"
	ErrTypeOctantNotFound   = "octree_octant_not_found"
	ErrTypeInvariant        = "octree_invariant"
)

func errOctantNotFound(id uint32) error {
	return errors.New("octant not found").
		WithType(ErrTypeOctantNotFound).
		WithTag("octant_id", id)
}

func errEntityOutOfRange(index, count int) error {
	return errors.New("entity index out of range").
		WithType(ErrTypeEntityOutOfRange).
		WithTag("entity_index", index).
		WithTag("entity_count", count)
}

func errInvariant(id uint32, reason string) error {
	return errors.New("octree invariant violated").
		WithType(ErrTypeInvariant).
		WithTag("octant_id", id).
		WithTag("reason", reason)
}

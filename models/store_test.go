package models

import (
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/octant/octree"
	"github.com/stretchr/testify/require"
)

func TestSceneStore(t *testing.T) {
	var store SceneStore

	a := NewScene(store.NewID(), octree.DefaultConfig())
	b := NewScene(store.NewID(), octree.DefaultConfig())
	store.Add(b)
	store.Add(a)
	require.Equal(t, 2, store.Count())
	require.Equal(t, []*Scene{a, b}, store.List())

	scene, ok := store.GetByID(b.ID)
	require.True(t, ok)
	require.Equal(t, b, scene)

	scene, ok = store.GetByUUID(a.SceneUUID)
	require.True(t, ok)
	require.Equal(t, a, scene)

	require.NoError(t, store.Remove(a.ID))
	_, ok = store.GetByID(a.ID)
	require.False(t, ok)
	_, ok = store.GetByUUID(a.SceneUUID)
	require.False(t, ok)

	err := store.Remove(a.ID)
	require.True(t, errors.IsType(err, ErrTypeSceneNotFound))

	require.Equal(t, a.ID, store.NewID())
}

func TestSceneStoreEmpty(t *testing.T) {
	var store SceneStore

	require.Empty(t, store.List())
	_, ok := store.GetByID(1)
	require.False(t, ok)
	_, ok = store.GetByUUID("unknown")
	require.False(t, ok)
}

func TestSceneStoreListIsSortedByID(t *testing.T) {
	var store SceneStore

	var scenes []*Scene
	for i := 0; i < 16; i++ {
		scenes = append(scenes, NewScene(store.NewID(), octree.DefaultConfig()))
	}
	for i := len(scenes) - 1; i >= 0; i-- {
		store.Add(scenes[i])
	}

	require.Equal(t, scenes, store.List())
}

package models

import (
	"cmp"
	"slices"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// SceneStore holds the scenes served by the process.
type SceneStore struct {
	initOnce sync.Once
	mutex    sync.RWMutex
	scenes   map[uint32]*Scene
	uuids    map[string]uint32
	ids      IDGenerator
}

func (s *SceneStore) init() {
	s.scenes = make(map[uint32]*Scene)
	s.uuids = make(map[string]uint32)
}

func (s *SceneStore) NewID() uint32 {
	return s.ids.New()
}

func (s *SceneStore) Add(scene *Scene) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.scenes[scene.ID] = scene
	s.uuids[scene.SceneUUID] = scene.ID

	instrumentIncreaseSceneGauge()
	instrumentCountScene()

	logs.WithTag("scene_id", scene.ID).
		WithTag("scene_uuid", scene.SceneUUID).
		Info("scene added")
}

// Remove removes the scene with the given id. Its id gets reused.
func (s *SceneStore) Remove(id uint32) error {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	scene, ok := s.scenes[id]
	if !ok {
		return errors.New("scene not found").
			WithType(ErrTypeSceneNotFound).
			WithTag("scene_id", id)
	}

	delete(s.scenes, id)
	delete(s.uuids, scene.SceneUUID)
	s.ids.Reuse(id)

	instrumentDecreaseSceneGauge()

	logs.WithTag("scene_id", scene.ID).
		WithTag("scene_uuid", scene.SceneUUID).
		Info("scene removed")
	return nil
}

func (s *SceneStore) GetByID(id uint32) (*Scene, bool) {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	scene, ok := s.scenes[id]
	return scene, ok
}

func (s *SceneStore) GetByUUID(v string) (*Scene, bool) {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	id, ok := s.uuids[v]
	if !ok {
		return nil, false
	}
	return s.scenes[id], true
}

// List returns the scenes sorted by id.
func (s *SceneStore) List() []*Scene {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	scenes := make([]*Scene, 0, len(s.scenes))
	for _, scene := range s.scenes {
		scenes = append(scenes, scene)
	}

	slices.SortFunc(scenes, func(a, b *Scene) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return scenes
}

func (s *SceneStore) Count() int {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.scenes)
}

package http

import (
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/octant/featureflag"
	"github.com/aukilabs/octant/models"
	"github.com/aukilabs/octant/octree"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/segmentio/encoding/json"
)

const (
	ErrTypeInvalidRequest = "invalid_request"
	ErrTypeInvalidConfig  = "invalid_config"

	// The max request body size.
	maxBodySize = 1 << 20
)

// SceneHandler serves the scene REST API.
type SceneHandler struct {
	Scenes *models.SceneStore

	// The octree configuration of scenes created without one.
	DefaultConfig octree.Config

	// The deepest max level a scene can be configured with.
	MaxLevelLimit uint32

	FeatureFlags featureflag.FeatureFlag

	initOnce sync.Once
	mux      http.ServeMux
}

func (h *SceneHandler) init() {
	h.mux.HandleFunc("POST /scenes", h.createScene)
	h.mux.HandleFunc("GET /scenes", h.listScenes)
	h.mux.HandleFunc("GET /scenes/{id}", h.withScene(h.getScene))
	h.mux.HandleFunc("DELETE /scenes/{id}", h.deleteScene)
	h.mux.HandleFunc("PUT /scenes/{id}/config", h.withScene(h.setConfig))
	h.mux.HandleFunc("POST /scenes/{id}/rebuild", h.withScene(h.rebuild))

	h.mux.HandleFunc("POST /scenes/{id}/entities", h.withScene(h.addEntity))
	h.mux.HandleFunc("GET /scenes/{id}/entities", h.withScene(h.listEntities))
	h.mux.HandleFunc("GET /scenes/{id}/entities/{entityID}", h.withScene(h.getEntity))
	h.mux.HandleFunc("PUT /scenes/{id}/entities/{entityID}", h.withScene(h.updateEntity))
	h.mux.HandleFunc("DELETE /scenes/{id}/entities/{entityID}", h.withScene(h.deleteEntity))

	h.mux.HandleFunc("GET /scenes/{id}/octree", h.withScene(h.getOctants))
	h.mux.HandleFunc("GET /scenes/{id}/octree/leaves", h.withScene(h.getLeaves))
	h.mux.HandleFunc("GET /scenes/{id}/octree/debug", h.withScene(h.getDebugInfo))
	h.mux.HandleFunc("GET /scenes/{id}/octree/octants/{octantID}", h.withScene(h.getOctant))
}

func (h *SceneHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.initOnce.Do(h.init)
	h.mux.ServeHTTP(w, r)
}

type sceneRequest struct {
	Config *octree.Config `json:"config,omitempty"`
}

type sceneResponse struct {
	ID          uint32        `json:"id"`
	UUID        string        `json:"uuid"`
	Config      octree.Config `json:"config"`
	EntityCount int           `json:"entity_count"`
	Version     uint64        `json:"version"`
}

func newSceneResponse(s *models.Scene) sceneResponse {
	return sceneResponse{
		ID:          s.ID,
		UUID:        s.SceneUUID,
		Config:      s.Config(),
		EntityCount: s.EntityCount(),
		Version:     s.Version(),
	}
}

type entityRequest struct {
	Name string     `json:"name"`
	Min  mgl32.Vec3 `json:"min"`
	Max  mgl32.Vec3 `json:"max"`
}

type entityResponse struct {
	ID      uint32     `json:"id"`
	Name    string     `json:"name"`
	Min     mgl32.Vec3 `json:"min"`
	Max     mgl32.Vec3 `json:"max"`
	Octants []uint32   `json:"octants"`
}

func newEntityResponse(e *models.Entity) entityResponse {
	extent := e.Extent()
	return entityResponse{
		ID:      e.ID,
		Name:    e.Name,
		Min:     extent.Min,
		Max:     extent.Max,
		Octants: e.Octants(),
	}
}

type octantResponse struct {
	ID       uint32     `json:"id"`
	Level    uint32     `json:"level"`
	Size     float32    `json:"size"`
	Center   mgl32.Vec3 `json:"center"`
	Min      mgl32.Vec3 `json:"min"`
	Max      mgl32.Vec3 `json:"max"`
	Parent   *uint32    `json:"parent,omitempty"`
	Children []uint32   `json:"children,omitempty"`

	// The ids of the entities assigned to the octant.
	Entities []uint32 `json:"entities,omitempty"`
}

func newOctantResponse(o octree.Octant, entities []*models.Entity) octantResponse {
	res := octantResponse{
		ID:       o.ID(),
		Level:    o.Level(),
		Size:     o.Size(),
		Center:   o.Center(),
		Min:      o.Min(),
		Max:      o.Max(),
		Children: o.Children(),
	}

	if parent, ok := o.Parent(); ok {
		res.Parent = &parent
	}

	for _, i := range o.Entities() {
		res.Entities = append(res.Entities, entities[i].ID)
	}
	return res
}

type debugResponse struct {
	octree.DebugInfo

	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func (h *SceneHandler) createScene(w http.ResponseWriter, r *http.Request) {
	var req sceneRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, err)
		return
	}

	config := h.DefaultConfig
	if req.Config != nil {
		config = *req.Config
	}
	if err := h.validateConfig(config); err != nil {
		writeError(w, r, err)
		return
	}

	scene := models.NewScene(h.Scenes.NewID(), config)
	h.FeatureFlags.IfSet(featureflag.FlagDisableAutoRebuild, func() {
		scene.AutoRebuild = false
	})
	h.FeatureFlags.IfSet(featureflag.FlagDisableMembershipNotify, func() {
		scene.NotifyMembership = false
	})
	h.Scenes.Add(scene)

	writeJSON(w, http.StatusCreated, newSceneResponse(scene))
}

func (h *SceneHandler) listScenes(w http.ResponseWriter, r *http.Request) {
	scenes := h.Scenes.List()

	res := make([]sceneResponse, len(scenes))
	for i, s := range scenes {
		res[i] = newSceneResponse(s)
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SceneHandler) getScene(w http.ResponseWriter, r *http.Request, s *models.Scene) {
	writeJSON(w, http.StatusOK, newSceneResponse(s))
}

func (h *SceneHandler) deleteScene(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Scenes.Remove(id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SceneHandler) setConfig(w http.ResponseWriter, r *http.Request, s *models.Scene) {
	var config octree.Config
	if err := decodeBody(r, &config); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.validateConfig(config); err != nil {
		writeError(w, r, err)
		return
	}

	s.SetConfig(config)
	writeJSON(w, http.StatusOK, newSceneResponse(s))
}

func (h *SceneHandler) rebuild(w http.ResponseWriter, r *http.Request, s *models.Scene) {
	s.Rebuild()
	writeJSON(w, http.StatusOK, newSceneResponse(s))
}

func (h *SceneHandler) addEntity(w http.ResponseWriter, r *http.Request, s *models.Scene) {
	var req entityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.AddEntity(req.Name, octree.Box{Min: req.Min, Max: req.Max})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newEntityResponse(e))
}

func (h *SceneHandler) listEntities(w http.ResponseWriter, r *http.Request, s *models.Scene) {
	entities := s.Entities()

	res := make([]entityResponse, len(entities))
	for i, e := range entities {
		res[i] = newEntityResponse(e)
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SceneHandler) getEntity(w http.ResponseWriter, r *http.Request, s *models.Scene) {
	id, err := pathID(r, "entityID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	e, ok := s.EntityByID(id)
	if !ok {
		writeError(w, r, errors.New("entity not found").
			WithType(models.ErrTypeEntityNotFound).
			WithTag("scene_id", s.ID).
			WithTag("entity_id", id))
		return
	}
	writeJSON(w, http.StatusOK, newEntityResponse(e))
}

func (h *SceneHandler) updateEntity(w http.ResponseWriter, r *http.Request, s *models.Scene) {
	id, err := pathID(r, "entityID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req entityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.UpdateEntity(id, octree.Box{Min: req.Min, Max: req.Max})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEntityResponse(e))
}

func (h *SceneHandler) deleteEntity(w http.ResponseWriter, r *http.Request, s *models.Scene) {
	id, err := pathID(r, "entityID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.RemoveEntity(id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SceneHandler) getOctants(w http.ResponseWriter, r *http.Request, s *models.Scene) {
	var res []octantResponse
	s.View(func(tree *octree.Tree, entities []*models.Entity) {
		res = make([]octantResponse, 0, tree.OctantCount())
		tree.Walk(func(o octree.Octant) bool {
			res = append(res, newOctantResponse(o, entities))
			return true
		})
	})
	writeJSON(w, http.StatusOK, res)
}

func (h *SceneHandler) getLeaves(w http.ResponseWriter, r *http.Request, s *models.Scene) {
	var res []octantResponse
	s.View(func(tree *octree.Tree, entities []*models.Entity) {
		leaves := tree.Leaves()
		res = make([]octantResponse, 0, len(leaves))
		for _, id := range leaves {
			o, _ := tree.Octant(id)
			res = append(res, newOctantResponse(o, entities))
		}
	})
	writeJSON(w, http.StatusOK, res)
}

func (h *SceneHandler) getOctant(w http.ResponseWriter, r *http.Request, s *models.Scene) {
	id, err := pathID(r, "octantID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var res octantResponse
	var ok bool
	s.View(func(tree *octree.Tree, entities []*models.Entity) {
		var o octree.Octant
		if o, ok = tree.Octant(id); ok {
			res = newOctantResponse(o, entities)
		}
	})

	if !ok {
		writeError(w, r, errors.New("octant not found").
			WithType(octree.ErrTypeOctantNotFound).
			WithTag("scene_id", s.ID).
			WithTag("octant_id", id))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SceneHandler) getDebugInfo(w http.ResponseWriter, r *http.Request, s *models.Scene) {
	var res debugResponse
	s.View(func(tree *octree.Tree, entities []*models.Entity) {
		res.DebugInfo = tree.DebugInfo()
		if err := tree.Validate(); err != nil {
			res.Error = err.Error()
			return
		}
		res.Valid = true
	})
	writeJSON(w, http.StatusOK, res)
}

func (h *SceneHandler) withScene(handler func(http.ResponseWriter, *http.Request, *models.Scene)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}

		s, ok := h.Scenes.GetByID(id)
		if !ok {
			writeError(w, r, errors.New("scene not found").
				WithType(models.ErrTypeSceneNotFound).
				WithTag("scene_id", id))
			return
		}
		handler(w, r, s)
	}
}

func (h *SceneHandler) validateConfig(c octree.Config) error {
	if c.MaxLevel > h.MaxLevelLimit {
		return errors.New("max level is too deep").
			WithType(ErrTypeInvalidConfig).
			WithTag("max_level", c.MaxLevel).
			WithTag("max_level_limit", h.MaxLevelLimit)
	}
	return nil
}

func pathID(r *http.Request, name string) (uint32, error) {
	v := r.PathValue(name)

	id, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, errors.New("invalid id").
			WithType(ErrTypeInvalidRequest).
			WithTag("name", name).
			WithTag("value", v).
			Wrap(err)
	}
	return uint32(id), nil
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return err
		}
		return errors.New("decoding request body failed").
			WithType(ErrTypeInvalidRequest).
			Wrap(err)
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		logs.WithTag("method", r.Method).
			WithTag("path", r.URL.Path).
			Error(err)
	} else {
		logs.WithTag("method", r.Method).
			WithTag("path", r.URL.Path).
			Debug(err)
	}

	writeJSON(w, code, errorResponse{
		Error: err.Error(),
		Type:  errors.Type(err),
	})
}

func statusCode(err error) int {
	if errors.Is(err, io.EOF) {
		return http.StatusBadRequest
	}

	switch errors.Type(err) {
	case models.ErrTypeSceneNotFound,
		models.ErrTypeEntityNotFound,
		octree.ErrTypeOctantNotFound:
		return http.StatusNotFound

	case models.ErrTypeInvalidExtent,
		octree.ErrTypeEntityOutOfRange,
		ErrTypeInvalidRequest,
		ErrTypeInvalidConfig:
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logs.Warn(errors.New("encoding response failed").Wrap(err))
	}
}

package models

const (
	ErrTypeSceneNotFound  = "scene_not_found"
	ErrTypeEntityNotFound = "entity_not_found"
	ErrTypeInvalidExtent  = "invalid_extent"
)

package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"

	"docgate/internal/core/apperror"
	"docgate/internal/domain/schema"
)

// SchemaRegistry is the schema collaborator behind the meta routes.
type SchemaRegistry interface {
	Settings(ctx context.Context) (map[string]any, error)
	App(ctx context.Context, version, lang string) (json.RawMessage, error)
	ListSchemas(ctx context.Context, version string) ([]string, error)
	Definition(ctx context.Context, version, name string) (*schema.Definition, error)
}

// MetaHandler serves application settings, app definitions and schemas.
type MetaHandler struct {
	*BaseHandler
	registry SchemaRegistry
}

// NewMetaHandler creates a meta handler.
func NewMetaHandler(base *BaseHandler, registry SchemaRegistry) *MetaHandler {
	return &MetaHandler{BaseHandler: base, registry: registry}
}

// Settings returns the application settings.
// GET /meta/app
func (h *MetaHandler) Settings(c *gin.Context) {
	settings, err := h.registry.Settings(c.Request.Context())
	if err != nil {
		h.HandleError(c, schemaError(err, "settings", "app"))
		return
	}
	h.OK(c, settings)
}

// App returns the default app's definition.
// GET /meta/app/:version/:lang
func (h *MetaHandler) App(c *gin.Context) {
	version, lang := c.Param("version"), c.Param("lang")
	app, err := h.registry.App(c.Request.Context(), version, lang)
	if err != nil {
		h.HandleError(c, schemaError(err, "app", version+"/"+lang))
		return
	}
	h.OK(c, app)
}

// ListSchemas returns the sorted schema names of a version.
// GET /meta/schema/:version
func (h *MetaHandler) ListSchemas(c *gin.Context) {
	version := c.Param("version")
	names, err := h.registry.ListSchemas(c.Request.Context(), version)
	if err != nil {
		h.HandleError(c, schemaError(err, "version", version))
		return
	}
	h.OK(c, names)
}

// Schema returns a schema with the fields clients may not read removed.
// GET /meta/schema/:version/:name
func (h *MetaHandler) Schema(c *gin.Context) {
	version, name := c.Param("version"), c.Param("name")
	def, err := h.registry.Definition(c.Request.Context(), version, name)
	if err != nil {
		h.HandleError(c, schemaError(err, "schema", version+"/"+name))
		return
	}
	h.OK(c, def.View(schema.MaskRead))
}

func schemaError(err error, entity, id string) error {
	if errors.Is(err, schema.ErrNotFound) {
		return apperror.NewNotFound(entity, id)
	}
	return apperror.NewInternal(err)
}

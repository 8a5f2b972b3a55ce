package handlers

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"

	"docgate/internal/domain/data"
	"docgate/internal/domain/query"
)

// DataService is the document service behind the data routes.
type DataService interface {
	Read(ctx context.Context, docType, docID string) (data.Document, error)
	Query(ctx context.Context, docType string, q *query.StructuredQuery, w io.Writer) error
	Create(ctx context.Context, docType string, body []byte) (*data.WriteResult, error)
}

// DataHandler serves document reads, queries and writes.
type DataHandler struct {
	*BaseHandler
	service DataService
}

// NewDataHandler creates a data handler.
func NewDataHandler(base *BaseHandler, service DataService) *DataHandler {
	return &DataHandler{BaseHandler: base, service: service}
}

// Read returns one document.
// GET|POST /data/:type/read/:id
func (h *DataHandler) Read(c *gin.Context) {
	doc, err := h.service.Read(c.Request.Context(), c.Param("type"), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, doc)
}

// Query streams the matching documents as a JSON array. The body, when
// present, is a structured query.
// GET|POST /data/:type/query
func (h *DataHandler) Query(c *gin.Context) {
	body, ok := h.ReadBody(c)
	if !ok {
		return
	}
	q, err := data.ParseQuery(body)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	// Nothing is written until the first record, so errors raised before
	// then still get a proper error response.
	c.Header("Content-Type", "application/json; charset=utf-8")
	if err := h.service.Query(c.Request.Context(), c.Param("type"), q, c.Writer); err != nil {
		h.HandleError(c, err)
	}
}

// Create writes the posted object or array of objects.
// POST /data/:type/create
func (h *DataHandler) Create(c *gin.Context) {
	body, ok := h.ReadBody(c)
	if !ok {
		return
	}
	res, err := h.service.Create(c.Request.Context(), c.Param("type"), body)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(res.Status(), res)
}

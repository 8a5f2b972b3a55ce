package data

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"docgate/internal/core/apperror"
	appctx "docgate/internal/core/context"
	"docgate/internal/core/id"
	"docgate/internal/domain/audit"
	"docgate/internal/domain/eligibility"
	"docgate/internal/domain/query"
	"docgate/internal/domain/schema"
	"docgate/pkg/logger"
)

// Schemas is the schema collaborator of the data service.
type Schemas interface {
	// ReadTransform fails with schema.ErrNotFound for an unknown type.
	ReadTransform(ctx context.Context, name string) (schema.Transform, error)
	// Current fails with schema.ErrNotFound for an unknown type.
	Current(ctx context.Context, name string) (*schema.Definition, error)
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Store       Store
	Eligibility eligibility.Provider
	Schemas     Schemas
	Executor    ExecutorConfig
	// Now stamps write documents. Defaults to time.Now.
	Now func() time.Time
}

// Service implements the read, query and create operations.
type Service struct {
	store       Store
	eligibility eligibility.Provider
	schemas     Schemas
	executor    *Executor
	metrics     Metrics
	now         func() time.Time
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Executor.Metrics == nil {
		cfg.Executor.Metrics = nopMetrics{}
	}
	return &Service{
		store:       cfg.Store,
		eligibility: cfg.Eligibility,
		schemas:     cfg.Schemas,
		executor:    NewExecutor(cfg.Store, cfg.Executor),
		metrics:     cfg.Executor.Metrics,
		now:         cfg.Now,
	}
}

// Ping checks the document backend.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Read returns document id of docType. A document the caller is not
// eligible for is reported exactly like a missing one.
func (s *Service) Read(ctx context.Context, docType, docID string) (Document, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	transform, err := s.readTransform(ctx, docType)
	if err != nil {
		return nil, err
	}

	ok, err := s.eligibility.IsEligible(ctx, caller.UserID, docType, docID)
	if err != nil {
		return nil, apperror.NewDatabase(fmt.Errorf("eligibility of %s: %w", docID, err))
	}
	if !ok {
		return nil, apperror.NewNotFound(docType, docID)
	}

	doc, err := s.store.Get(ctx, docType, docID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperror.NewNotFound(docType, docID)
	}
	if err != nil {
		return nil, apperror.NewDatabase(err)
	}
	return transform(doc)
}

// Query writes every eligible document of docType matching q to w as a JSON
// array. A nil q matches everything.
func (s *Service) Query(ctx context.Context, docType string, q *query.StructuredQuery, w io.Writer) error {
	caller, err := callerFrom(ctx)
	if err != nil {
		return err
	}
	transform, err := s.readTransform(ctx, docType)
	if err != nil {
		return err
	}

	ids, err := s.eligibility.Eligible(ctx, caller.UserID, docType)
	if err != nil {
		return apperror.NewDatabase(fmt.Errorf("eligibility of %s: %w", docType, err))
	}
	return s.executor.Run(ctx, docType, ids, q, transform, w)
}

// ParseQuery decodes a request body into a structured query and maps parse
// failures to client errors.
func ParseQuery(body []byte) (*query.StructuredQuery, error) {
	q, err := query.Parse(body)
	switch {
	case err == nil:
		return q, nil
	case errors.Is(err, query.ErrNotImplemented):
		return nil, apperror.NewNotImplemented("limit/offset").WithCause(err)
	default:
		return nil, apperror.NewValidation(err.Error()).WithCause(err)
	}
}

func (s *Service) readTransform(ctx context.Context, docType string) (schema.Transform, error) {
	transform, err := s.schemas.ReadTransform(ctx, docType)
	if errors.Is(err, schema.ErrNotFound) {
		return nil, apperror.NewNotFound("type", docType)
	}
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return transform, nil
}

// WriteError describes one rejected document of a write.
type WriteError struct {
	Index  int      `json:"index"`
	UUID   string   `json:"uuid,omitempty"`
	Errors []string `json:"errors"`
}

// WriteResult summarizes a write.
type WriteResult struct {
	Success int          `json:"success"`
	Errors  []WriteError `json:"errors"`

	// failed counts documents refused by the backend rather than the client's
	// input or access.
	failed int
}

// Status returns the HTTP status for the result: 201 when every document
// was written, 207 when some were, 500 when nothing was written and the
// backend failed at least one document, 400 otherwise.
func (r *WriteResult) Status() int {
	switch {
	case len(r.Errors) == 0:
		return http.StatusCreated
	case r.Success > 0:
		return http.StatusMultiStatus
	case r.failed > 0:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

const (
	outcomeCreated = "created"
	outcomeUpdated = "updated"
	outcomeInvalid = "invalid"
	outcomeFailed  = "failed"
	outcomeRefused = "refused"

	msgNotFound    = "document not found"
	msgPersistence = "failed to save document"
)

// Create validates, stamps and persists the object or array of objects in
// body. Each document is created, or merged into the stored document when
// its uuid is taken and the caller is eligible for it.
//
// Per-document failures are reported in the result, not as an error.
func (s *Service) Create(ctx context.Context, docType string, body []byte) (*WriteResult, error) {
	if _, err := callerFrom(ctx); err != nil {
		return nil, err
	}
	docs, err := decodeDocuments(body)
	if err != nil {
		return nil, apperror.NewValidation(err.Error()).WithCause(err)
	}

	def, err := s.schemas.Current(ctx, docType)
	if errors.Is(err, schema.ErrNotFound) {
		return nil, apperror.NewNotFound("type", docType)
	}
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	res := &WriteResult{Errors: []WriteError{}}
	for i, doc := range docs {
		uuid, failed, problems := s.write(ctx, def, doc)
		if failed {
			res.failed++
		}
		if len(problems) > 0 {
			res.Errors = append(res.Errors, WriteError{Index: i, UUID: uuid, Errors: problems})
			continue
		}
		res.Success++
	}
	return res, nil
}

// write persists one document. failed reports a backend failure, as opposed
// to a document the caller may not write.
func (s *Service) write(ctx context.Context, def *schema.Definition, doc map[string]any) (uuid string, failed bool, problems []string) {
	uuid, ok := assignID(doc)
	if !ok {
		s.metrics.DocumentWritten(outcomeInvalid)
		return "", false, []string{"invalid uuid"}
	}
	clean, problems := def.ValidateWrite(doc)
	if len(problems) > 0 {
		s.metrics.DocumentWritten(outcomeInvalid)
		return uuid, false, problems
	}
	update, create := audit.Stamp(ctx, clean, def.Version, s.now())

	err := s.store.Create(ctx, def.Name, uuid, create)
	if err == nil {
		s.metrics.DocumentWritten(outcomeCreated)
		return uuid, false, nil
	}
	if !errors.Is(err, ErrAlreadyExists) {
		logger.Error(ctx, "create failed", "type", def.Name, "uuid", uuid, "error", err)
		s.metrics.DocumentWritten(outcomeFailed)
		return uuid, true, []string{msgPersistence}
	}

	caller := appctx.GetCaller(ctx)
	eligible, err := s.eligibility.IsEligible(ctx, caller.UserID, def.Name, uuid)
	if err != nil {
		logger.Error(ctx, "eligibility check failed", "type", def.Name, "uuid", uuid, "error", err)
		s.metrics.DocumentWritten(outcomeFailed)
		return uuid, true, []string{msgPersistence}
	}
	if !eligible {
		s.metrics.DocumentWritten(outcomeRefused)
		return uuid, false, []string{msgNotFound}
	}

	if err := s.store.Update(ctx, def.Name, uuid, update); err != nil {
		logger.Error(ctx, "update failed", "type", def.Name, "uuid", uuid, "error", err)
		s.metrics.DocumentWritten(outcomeFailed)
		if errors.Is(err, ErrNotFound) {
			return uuid, false, []string{msgNotFound}
		}
		return uuid, true, []string{msgPersistence}
	}
	s.metrics.DocumentWritten(outcomeUpdated)
	return uuid, false, nil
}

// assignID returns the document's uuid, generating one when absent.
func assignID(doc map[string]any) (string, bool) {
	raw, present := doc["uuid"]
	if !present || raw == nil || raw == "" {
		uuid := id.New()
		doc["uuid"] = uuid
		return uuid, true
	}
	uuid, ok := raw.(string)
	if !ok || !id.Valid(uuid) {
		return "", false
	}
	return uuid, true
}

func decodeDocuments(body []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("request body is empty")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var docs []map[string]any
	if trimmed[0] == '[' {
		if err := dec.Decode(&docs); err != nil {
			return nil, fmt.Errorf("invalid document array: %w", err)
		}
	} else {
		var doc map[string]any
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("invalid document: %w", err)
		}
		docs = []map[string]any{doc}
	}
	if len(docs) == 0 {
		return nil, errors.New("no documents to write")
	}
	for i, doc := range docs {
		if doc == nil {
			return nil, fmt.Errorf("document %d is null", i)
		}
	}
	return docs, nil
}

func callerFrom(ctx context.Context) (*appctx.Caller, error) {
	caller := appctx.GetCaller(ctx)
	if caller == nil || caller.UserID == "" {
		return nil, apperror.NewUnauthorized("authentication required")
	}
	return caller, nil
}

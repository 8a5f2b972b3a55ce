package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"

	"docgate/internal/domain/schema"
)

// Schemas serves application settings, schemas and app definitions.
type Schemas struct {
	db Querier
}

// NewSchemas creates a Schemas over db.
func NewSchemas(db Querier) *Schemas {
	return &Schemas{db: db}
}

func (s *Schemas) Settings(ctx context.Context) (map[string]any, error) {
	var raw []byte
	err := pgxscan.Get(ctx, s.db, &raw, "SELECT settings FROM app_settings WHERE id")
	if pgxscan.NotFound(err) {
		return nil, fmt.Errorf("application settings: %w", schema.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select settings: %w", err)
	}
	var settings map[string]any
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return settings, nil
}

func (s *Schemas) ListSchemas(ctx context.Context, version string) ([]string, error) {
	var names []string
	err := pgxscan.Select(ctx, s.db, &names,
		"SELECT name FROM schemas WHERE version = $1 ORDER BY name", version)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	return names, nil
}

func (s *Schemas) Schema(ctx context.Context, version, name string) ([]byte, error) {
	var raw []byte
	err := pgxscan.Get(ctx, s.db, &raw,
		"SELECT definition::text FROM schemas WHERE version = $1 AND name = $2", version, name)
	if pgxscan.NotFound(err) {
		return nil, fmt.Errorf("%s@%s: %w", name, version, schema.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select schema: %w", err)
	}
	return raw, nil
}

func (s *Schemas) App(ctx context.Context, alias, version, lang string) (json.RawMessage, error) {
	var raw []byte
	err := pgxscan.Get(ctx, s.db, &raw,
		"SELECT definition::text FROM apps WHERE alias = $1 AND version = $2 AND lang = $3",
		alias, version, lang)
	if pgxscan.NotFound(err) {
		return nil, fmt.Errorf("app %s@%s/%s: %w", alias, version, lang, schema.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select app: %w", err)
	}
	return raw, nil
}

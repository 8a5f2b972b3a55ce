package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"docgate/internal/infrastructure/fixtures"
	"docgate/pkg/logger"
)

//go:embed schema.sql
var schemaSQL string

// Migrate creates the tables and change triggers. It is idempotent.
func Migrate(ctx context.Context, db Querier) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Seed upserts the contents of file in one transaction. Documents are
// replaced, eligibility grants are added.
func Seed(ctx context.Context, pool *pgxpool.Pool, file *fixtures.File) error {
	batch := &pgx.Batch{}

	if file.Settings != nil {
		raw, err := json.Marshal(file.Settings)
		if err != nil {
			return fmt.Errorf("encode settings: %w", err)
		}
		batch.Queue(`INSERT INTO app_settings (id, settings) VALUES (TRUE, $1::text::jsonb)
			ON CONFLICT (id) DO UPDATE SET settings = EXCLUDED.settings`, string(raw))
	}
	for version, byName := range file.Schemas {
		for name, raw := range byName {
			batch.Queue(`INSERT INTO schemas (version, name, definition) VALUES ($1, $2, $3::text::jsonb)
				ON CONFLICT (version, name) DO UPDATE SET definition = EXCLUDED.definition`,
				version, name, string(raw))
		}
	}
	for alias, byVersion := range file.Apps {
		for version, byLang := range byVersion {
			for lang, raw := range byLang {
				batch.Queue(`INSERT INTO apps (alias, version, lang, definition) VALUES ($1, $2, $3, $4::text::jsonb)
					ON CONFLICT (alias, version, lang) DO UPDATE SET definition = EXCLUDED.definition`,
					alias, version, lang, string(raw))
			}
		}
	}
	docs := 0
	for docType, list := range file.Documents {
		for _, doc := range list {
			id, _ := doc["uuid"].(string)
			raw, err := encodeDocument(id, doc)
			if err != nil {
				return err
			}
			batch.Queue(`INSERT INTO documents (doc_type, uuid, data) VALUES ($1, $2, $3::text::jsonb)
				ON CONFLICT (doc_type, uuid) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
				docType, id, raw)
			docs++
		}
	}
	grants := 0
	for user, byType := range file.Eligibility {
		for docType, ids := range byType {
			for _, id := range ids {
				batch.Queue(`INSERT INTO eligibility (user_id, doc_type, doc_id) VALUES ($1, $2, $3)
					ON CONFLICT DO NOTHING`, user, docType, id)
				grants++
			}
		}
	}

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	logger.Info(ctx, "seeded postgres", "documents", docs, "grants", grants, "statements", batch.Len())
	return nil
}

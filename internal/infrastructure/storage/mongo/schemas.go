package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"docgate/internal/domain/schema"
)

// Definitions are stored as JSON text so field order survives.
type schemaRow struct {
	Version    string `bson:"version"`
	Name       string `bson:"name"`
	Definition string `bson:"definition"`
}

type appRow struct {
	Alias      string `bson:"alias"`
	Version    string `bson:"version"`
	Lang       string `bson:"lang"`
	Definition string `bson:"definition"`
}

type settingsRow struct {
	ID       string `bson:"_id"`
	Settings string `bson:"settings"`
}

// Schemas is the schema source backed by the schemas, apps and settings
// collections.
type Schemas struct {
	db *mongo.Database
}

// NewSchemas creates a Schemas over db.
func NewSchemas(db *mongo.Database) *Schemas {
	return &Schemas{db: db}
}

func (s *Schemas) Settings(ctx context.Context) (map[string]any, error) {
	var row settingsRow
	err := s.db.Collection(settingsCollection).FindOne(ctx, bson.D{{Key: "_id", Value: settingsID}}).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("application settings: %w", schema.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find settings: %w", err)
	}
	var settings map[string]any
	if err := json.Unmarshal([]byte(row.Settings), &settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return settings, nil
}

func (s *Schemas) ListSchemas(ctx context.Context, version string) ([]string, error) {
	cur, err := s.db.Collection(schemasCollection).Find(ctx,
		bson.D{{Key: "version", Value: version}},
		options.Find().
			SetProjection(bson.D{{Key: "name", Value: 1}}).
			SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	var rows []schemaRow
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}
	names := make([]string, len(rows))
	for i, row := range rows {
		names[i] = row.Name
	}
	return names, nil
}

func (s *Schemas) Schema(ctx context.Context, version, name string) ([]byte, error) {
	var row schemaRow
	err := s.db.Collection(schemasCollection).
		FindOne(ctx, bson.D{{Key: "version", Value: version}, {Key: "name", Value: name}}).
		Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s@%s: %w", name, version, schema.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find schema: %w", err)
	}
	return []byte(row.Definition), nil
}

func (s *Schemas) App(ctx context.Context, alias, version, lang string) (json.RawMessage, error) {
	var row appRow
	err := s.db.Collection(appsCollection).
		FindOne(ctx, bson.D{{Key: "alias", Value: alias}, {Key: "version", Value: version}, {Key: "lang", Value: lang}}).
		Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("app %s@%s/%s: %w", alias, version, lang, schema.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find app: %w", err)
	}
	return json.RawMessage(row.Definition), nil
}

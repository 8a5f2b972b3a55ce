package mongo

import (
	"context"
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"docgate/internal/infrastructure/fixtures"
	"docgate/pkg/logger"
)

// Seed upserts the contents of file. Documents are replaced, eligibility
// grants are added.
func Seed(ctx context.Context, db *mongo.Database, file *fixtures.File) error {
	if err := EnsureIndexes(ctx, db); err != nil {
		return err
	}
	upsert := options.Replace().SetUpsert(true)

	if file.Settings != nil {
		raw, err := json.Marshal(file.Settings)
		if err != nil {
			return fmt.Errorf("encode settings: %w", err)
		}
		_, err = db.Collection(settingsCollection).ReplaceOne(ctx,
			bson.D{{Key: "_id", Value: settingsID}},
			settingsRow{ID: settingsID, Settings: string(raw)}, upsert)
		if err != nil {
			return fmt.Errorf("seed settings: %w", err)
		}
	}

	var schemaWrites []mongo.WriteModel
	for version, byName := range file.Schemas {
		for name, raw := range byName {
			schemaWrites = append(schemaWrites, mongo.NewReplaceOneModel().
				SetFilter(bson.D{{Key: "version", Value: version}, {Key: "name", Value: name}}).
				SetReplacement(schemaRow{Version: version, Name: name, Definition: string(raw)}).
				SetUpsert(true))
		}
	}
	if err := bulk(ctx, db.Collection(schemasCollection), schemaWrites); err != nil {
		return fmt.Errorf("seed schemas: %w", err)
	}

	var appWrites []mongo.WriteModel
	for alias, byVersion := range file.Apps {
		for version, byLang := range byVersion {
			for lang, raw := range byLang {
				appWrites = append(appWrites, mongo.NewReplaceOneModel().
					SetFilter(bson.D{{Key: "alias", Value: alias}, {Key: "version", Value: version}, {Key: "lang", Value: lang}}).
					SetReplacement(appRow{Alias: alias, Version: version, Lang: lang, Definition: string(raw)}).
					SetUpsert(true))
			}
		}
	}
	if err := bulk(ctx, db.Collection(appsCollection), appWrites); err != nil {
		return fmt.Errorf("seed apps: %w", err)
	}

	docs := 0
	for docType, list := range file.Documents {
		writes := make([]mongo.WriteModel, 0, len(list))
		for _, doc := range list {
			id, _ := doc["uuid"].(string)
			writes = append(writes, mongo.NewReplaceOneModel().
				SetFilter(bson.D{{Key: "_id", Value: id}}).
				SetReplacement(encodeDocument(id, doc)).
				SetUpsert(true))
		}
		if err := bulk(ctx, db.Collection(docType), writes); err != nil {
			return fmt.Errorf("seed %s: %w", docType, err)
		}
		docs += len(writes)
	}

	for docType, fields := range file.Indexes {
		models := make([]mongo.IndexModel, len(fields))
		for i, field := range fields {
			models[i] = mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}}
		}
		if _, err := db.Collection(docType).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("index %s: %w", docType, err)
		}
	}

	var grants []mongo.WriteModel
	for user, byType := range file.Eligibility {
		for docType, ids := range byType {
			for _, id := range ids {
				g := grant{UserID: user, DocType: docType, DocID: id}
				grants = append(grants, mongo.NewReplaceOneModel().SetFilter(g).SetReplacement(g).SetUpsert(true))
			}
		}
	}
	if err := bulk(ctx, db.Collection(eligibilityCollection), grants); err != nil {
		return fmt.Errorf("seed eligibility: %w", err)
	}

	logger.Info(ctx, "seeded mongodb", "documents", docs, "grants", len(grants))
	return nil
}

func bulk(ctx context.Context, coll *mongo.Collection, writes []mongo.WriteModel) error {
	if len(writes) == 0 {
		return nil
	}
	_, err := coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	return err
}

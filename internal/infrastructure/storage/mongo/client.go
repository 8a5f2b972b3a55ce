// Package mongo stores documents, eligibility sets and schemas in MongoDB.
//
// Each document type lives in its own collection keyed by uuid. Eligibility,
// schemas, apps and settings share the fixed collections named below.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"docgate/internal/domain/data"
	"docgate/pkg/logger"
)

const (
	eligibilityCollection = "eligibility"
	schemasCollection     = "schemas"
	appsCollection        = "apps"
	settingsCollection    = "settings"

	settingsID = "app"
)

// Config holds the connection settings.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// Connect opens a client and verifies it with a ping against the primary.
func Connect(ctx context.Context, cfg Config) (*mongo.Database, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongodb URI is required")
	}
	if cfg.Database == "" {
		return nil, errors.New("mongodb database is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI).SetAppName("docgate"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	logger.Info(ctx, "mongodb connection established", "database", cfg.Database)
	return client.Database(cfg.Database), nil
}

// Disconnect closes the client behind db.
func Disconnect(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.Client().Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to close mongodb connection: %w", err)
	}
	return nil
}

// EnsureIndexes creates the unique keys of the shared collections.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string]mongo.IndexModel{
		eligibilityCollection: {
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "doc_type", Value: 1}, {Key: "doc_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		schemasCollection: {
			Keys:    bson.D{{Key: "version", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		appsCollection: {
			Keys:    bson.D{{Key: "alias", Value: 1}, {Key: "version", Value: 1}, {Key: "lang", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	for coll, model := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("create index on %s: %w", coll, err)
		}
	}
	return nil
}

// Server error codes reported for query shapes the deployment refuses to
// run: BadValue, NoQueryExecutionPlans and a failed query planner.
var preconditionCodes = []int{2, 291, 17007}

// translate maps driver errors onto the data sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%v: %w", err, data.ErrAlreadyExists)
	}
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		for _, code := range preconditionCodes {
			if serverErr.HasErrorCode(code) {
				return fmt.Errorf("%v: %w", err, data.ErrPrecondition)
			}
		}
	}
	return err
}

package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// grant is one row of the eligibility collection.
type grant struct {
	UserID  string `bson:"user_id"`
	DocType string `bson:"doc_type"`
	DocID   string `bson:"doc_id"`
}

// Eligibility reads eligibility sets from the eligibility collection.
type Eligibility struct {
	coll *mongo.Collection
}

// NewEligibility creates an Eligibility over db.
func NewEligibility(db *mongo.Database) *Eligibility {
	return &Eligibility{coll: db.Collection(eligibilityCollection)}
}

func (e *Eligibility) Eligible(ctx context.Context, userID, docType string) ([]string, error) {
	cur, err := e.coll.Find(ctx,
		bson.D{{Key: "user_id", Value: userID}, {Key: "doc_type", Value: docType}},
		options.Find().SetProjection(bson.D{{Key: "doc_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find eligibility: %w", err)
	}
	var grants []grant
	if err := cur.All(ctx, &grants); err != nil {
		return nil, fmt.Errorf("read eligibility: %w", err)
	}
	ids := make([]string, len(grants))
	for i, g := range grants {
		ids[i] = g.DocID
	}
	sort.Strings(ids)
	return ids, nil
}

func (e *Eligibility) IsEligible(ctx context.Context, userID, docType, id string) (bool, error) {
	err := e.coll.FindOne(ctx, grant{UserID: userID, DocType: docType, DocID: id}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check eligibility: %w", err)
	}
	return true, nil
}

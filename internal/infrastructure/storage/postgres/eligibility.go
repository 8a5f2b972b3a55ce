package postgres

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
)

// Eligibility reads eligibility sets from the eligibility table.
type Eligibility struct {
	db Querier
}

// NewEligibility creates an Eligibility over db.
func NewEligibility(db Querier) *Eligibility {
	return &Eligibility{db: db}
}

func (e *Eligibility) Eligible(ctx context.Context, userID, docType string) ([]string, error) {
	var ids []string
	err := pgxscan.Select(ctx, e.db, &ids,
		"SELECT doc_id FROM eligibility WHERE user_id = $1 AND doc_type = $2 ORDER BY doc_id",
		userID, docType)
	if err != nil {
		return nil, fmt.Errorf("select eligibility: %w", err)
	}
	return ids, nil
}

func (e *Eligibility) IsEligible(ctx context.Context, userID, docType, id string) (bool, error) {
	var ok bool
	err := pgxscan.Get(ctx, e.db, &ok,
		"SELECT EXISTS (SELECT 1 FROM eligibility WHERE user_id = $1 AND doc_type = $2 AND doc_id = $3)",
		userID, docType, id)
	if err != nil {
		return false, fmt.Errorf("check eligibility: %w", err)
	}
	return ok, nil
}

package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"docgate/internal/domain/data"
)

const uniqueViolation = "23505"

// translate maps driver errors onto the data sentinels. Data exceptions
// (class 22) and syntax or access rule violations (class 42) come from the
// shape of a client filter and are reported as precondition failures.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == uniqueViolation:
		return fmt.Errorf("%s: %w", pgErr.Detail, data.ErrAlreadyExists)
	case len(pgErr.Code) == 5 && (pgErr.Code[:2] == "22" || pgErr.Code[:2] == "42"):
		return fmt.Errorf("%s: %w", pgErr.Message, data.ErrPrecondition)
	}
	return err
}

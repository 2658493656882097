package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

type UnsubscribeRepositoryInterface interface {
	CountUnsubscribed(ctx context.Context, companyID string, phones []string) (int, error)
}

type UnsubscribeRepository struct {
	DB *sql.DB
}

// CountUnsubscribed reads the list at call time; callers must not cache it.
func (r *UnsubscribeRepository) CountUnsubscribed(ctx context.Context, companyID string, phones []string) (int, error) {
	if len(phones) == 0 {
		return 0, nil
	}
	query := `SELECT COUNT(DISTINCT phone) FROM unsubscribes WHERE company_id=$1 AND phone = ANY($2)`
	var n int
	if err := r.DB.QueryRowContext(ctx, query, companyID, pq.Array(phones)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

var _ UnsubscribeRepositoryInterface = (*UnsubscribeRepository)(nil)

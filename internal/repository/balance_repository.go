package repository

import (
	"context"
	"database/sql"
	"errors"

	appErrors "github.com/unclebandit/targetup-dispatch/internal/errors"
	"github.com/unclebandit/targetup-dispatch/internal/model"
)

type BalanceRepositoryInterface interface {
	GetBalance(ctx context.Context, companyID string) (*model.BalanceRecord, error)
}

type BalanceRepository struct {
	DB *sql.DB
}

// GetBalance returns the tenant's billing snapshot. It does not lock; the
// debit in CampaignRepository.Commit re-checks under a row lock.
func (r *BalanceRepository) GetBalance(ctx context.Context, companyID string) (*model.BalanceRecord, error) {
	query := `
		SELECT id, billing_type, balance, cost_per_sms, cost_per_lms, cost_per_mms, reject_number
		FROM companies WHERE id=$1
	`
	var rec model.BalanceRecord
	var sms, lms, mms int64
	err := r.DB.QueryRowContext(ctx, query, companyID).Scan(
		&rec.CompanyID, &rec.BillingType, &rec.Balance, &sms, &lms, &mms, &rec.RejectNumber,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewValidation("company", "unknown company "+companyID)
		}
		return nil, err
	}
	rec.UnitPrices = map[model.Channel]int64{
		model.ChannelSMS: sms,
		model.ChannelLMS: lms,
		model.ChannelMMS: mms,
	}
	return &rec, nil
}

var _ BalanceRepositoryInterface = (*BalanceRepository)(nil)

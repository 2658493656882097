package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/targetup-dispatch/internal/errors"
	"github.com/unclebandit/targetup-dispatch/internal/model"
)

// Handoff runs inside a commit transaction; an error rolls the commit back.
type Handoff func(ctx context.Context, c *model.Campaign) error

type CancelRequest struct {
	CompanyID  string
	CampaignID int
	By         string
	ByType     string
	Reason     string
	// NotBefore is the earliest scheduled_at still outside the lock window.
	NotBefore time.Time
}

type RewriteRequest struct {
	CompanyID  string
	CampaignID int
	Template   string
	Subject    string
	NotBefore  time.Time
}

type CampaignRepositoryInterface interface {
	// Campaign reads
	ListCampaigns(ctx context.Context, companyID string, offset, limit int, channel, status string) ([]*model.Campaign, int, error)
	GetByID(ctx context.Context, companyID string, id int) (*model.Campaign, error)
	FindByID(ctx context.Context, id int) (*model.Campaign, error)
	GetCampaignStats(ctx context.Context, campaignID int) (map[string]int, error)

	// State transitions
	Commit(ctx context.Context, c *model.Campaign, msgs []*model.OutboundMessage, debit int64, handoff Handoff) error
	Cancel(ctx context.Context, req CancelRequest) (bool, error)
	Reschedule(ctx context.Context, companyID string, id int, at, notBefore time.Time) (bool, error)
	RewritePendingMessages(ctx context.Context, req RewriteRequest, render func(*model.OutboundMessage) string) (int, bool, error)
	ClaimDueScheduled(ctx context.Context, now time.Time, handoff Handoff) ([]int, error)
	ClaimStalledSending(ctx context.Context, now, staleBefore time.Time, handoff Handoff) ([]int, error)
	FinishCampaign(ctx context.Context, id int) error
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, company_id, name, send_type, channel, subject, status, base_template,
	ad_text_enabled, image_refs, callback, target_count, success_count, fail_count,
	unsubscribed_count, cost_amount, debit_amount, scheduled_at, cancelled_by, cancelled_by_type,
	cancel_reason, cancelled_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.CompanyID, &c.Name, &c.SendType, &c.Channel, &c.Subject, &c.Status, &c.BaseTemplate,
		&c.AdTextEnabled, pq.Array(&c.ImageRefs), &c.Callback, &c.TargetCount, &c.SuccessCount, &c.FailCount,
		&c.UnsubscribedCount, &c.CostAmount, &c.DebitAmount, &c.ScheduledAt, &c.CancelledBy, &c.CancelledByType,
		&c.CancelReason, &c.CancelledAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ====================== Campaign reads ======================

func (r *CampaignRepository) GetByID(ctx context.Context, companyID string, id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1 AND company_id=$2`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id, companyID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

// FindByID is the unscoped lookup used by the worker.
func (r *CampaignRepository) FindByID(ctx context.Context, id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, companyID string, offset, limit int, channel, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	where := ` WHERE company_id=$1`
	args := []interface{}{companyID}
	argPos := 2

	if channel != "" {
		where += fmt.Sprintf(" AND channel=$%d", argPos)
		args = append(args, channel)
		argPos++
	}
	if status != "" {
		where += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)

	rows, err := r.DB.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *CampaignRepository) GetCampaignStats(ctx context.Context, campaignID int) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM outbound_messages WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{"total": 0, "pending": 0, "sent": 0, "failed": 0, "cancelled": 0}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
		stats["total"] += count
	}
	return stats, rows.Err()
}

// ====================== State transitions ======================

// Commit stores the campaign, its recipients and the balance debit in one
// transaction. The handoff runs last; if it fails nothing is persisted.
func (r *CampaignRepository) Commit(ctx context.Context, c *model.Campaign, msgs []*model.OutboundMessage, debit int64, handoff Handoff) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	c.DebitAmount = 0
	var balanceAfter int64
	if debit > 0 {
		var balance int64
		err := tx.QueryRowContext(ctx, `SELECT balance FROM companies WHERE id=$1 FOR UPDATE`, c.CompanyID).Scan(&balance)
		if err != nil {
			return fmt.Errorf("lock balance: %w", err)
		}
		if balance < debit {
			return &appErrors.InsufficientBalance{Required: debit, Balance: balance, Shortfall: debit - balance}
		}
		balanceAfter = balance - debit
		if _, err := tx.ExecContext(ctx, `UPDATE companies SET balance=$1 WHERE id=$2`, balanceAfter, c.CompanyID); err != nil {
			return fmt.Errorf("debit balance: %w", err)
		}
	}

	query := `
		INSERT INTO campaigns (company_id, name, send_type, channel, subject, status, base_template,
			ad_text_enabled, image_refs, callback, target_count, unsubscribed_count, cost_amount, debit_amount, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at
	`
	err = tx.QueryRowContext(ctx, query,
		c.CompanyID, c.Name, c.SendType, c.Channel, c.Subject, c.Status, c.BaseTemplate,
		c.AdTextEnabled, pq.Array(c.ImageRefs), c.Callback, c.TargetCount, c.UnsubscribedCount, c.CostAmount, debit, c.ScheduledAt,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	c.DebitAmount = debit

	if debit > 0 {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO balance_transactions (company_id, campaign_id, type, amount, balance_after) VALUES ($1, $2, 'deduct', $3, $4)`,
			c.CompanyID, c.ID, debit, balanceAfter)
		if err != nil {
			return fmt.Errorf("record debit: %w", err)
		}
	}

	if err := copyOutboundMessages(ctx, tx, c.ID, msgs); err != nil {
		return err
	}

	if handoff != nil {
		if err := handoff(ctx, c); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func copyOutboundMessages(ctx context.Context, tx *sql.Tx, campaignID int, msgs []*model.OutboundMessage) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("outbound_messages",
		"campaign_id", "phone", "name", "fields", "callback", "status", "rendered_content"))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}
	for _, m := range msgs {
		fields, err := json.Marshal(m.Fields)
		if err != nil {
			stmt.Close()
			return err
		}
		if m.Fields == nil {
			fields = []byte("{}")
		}
		m.CampaignID = campaignID
		if _, err := stmt.ExecContext(ctx, campaignID, m.Phone, m.Name, string(fields), m.Callback, m.Status, m.RenderedContent); err != nil {
			stmt.Close()
			return fmt.Errorf("copy outbound message: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	return stmt.Close()
}

// Cancel flips a scheduled campaign to cancelled, voids its pending
// messages and refunds exactly what was debited at commit, whatever the
// company's billing type is now. It reports false when the campaign was no
// longer cancellable at write time.
func (r *CampaignRepository) Cancel(ctx context.Context, req CancelRequest) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var debited int64
	err = tx.QueryRowContext(ctx, `
		UPDATE campaigns
		SET status='cancelled', cancelled_by=$1, cancelled_by_type=$2, cancel_reason=$3,
			cancelled_at=NOW(), updated_at=NOW()
		WHERE id=$4 AND company_id=$5 AND status='scheduled' AND scheduled_at >= $6
		RETURNING debit_amount
	`, req.By, req.ByType, req.Reason, req.CampaignID, req.CompanyID, req.NotBefore).Scan(&debited)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE outbound_messages SET status='cancelled', updated_at=NOW() WHERE campaign_id=$1 AND status='pending'`,
		req.CampaignID); err != nil {
		return false, err
	}

	if debited > 0 {
		var balanceAfter int64
		err := tx.QueryRowContext(ctx,
			`UPDATE companies SET balance = balance + $1 WHERE id=$2 RETURNING balance`,
			debited, req.CompanyID).Scan(&balanceAfter)
		if err != nil {
			return false, fmt.Errorf("refund balance: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO balance_transactions (company_id, campaign_id, type, amount, balance_after) VALUES ($1, $2, 'refund', $3, $4)`,
			req.CompanyID, req.CampaignID, debited, balanceAfter); err != nil {
			return false, fmt.Errorf("record refund: %w", err)
		}
	}
	return true, tx.Commit()
}

func (r *CampaignRepository) Reschedule(ctx context.Context, companyID string, id int, at, notBefore time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE campaigns SET scheduled_at=$1, updated_at=NOW()
		WHERE id=$2 AND company_id=$3 AND status='scheduled' AND scheduled_at >= $4
	`, at, id, companyID, notBefore)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// RewritePendingMessages replaces the template and re-renders every pending
// message of the campaign in one transaction.
func (r *CampaignRepository) RewritePendingMessages(ctx context.Context, req RewriteRequest, render func(*model.OutboundMessage) string) (int, bool, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE campaigns SET base_template=$1, subject=$2, updated_at=NOW()
		WHERE id=$3 AND company_id=$4 AND status='scheduled' AND scheduled_at >= $5
	`, req.Template, req.Subject, req.CampaignID, req.CompanyID, req.NotBefore)
	if err != nil {
		return 0, false, err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return 0, false, err
	}

	rows, err := tx.QueryContext(ctx, `SELECT `+outboundColumns+` FROM outbound_messages
		WHERE campaign_id=$1 AND status='pending' ORDER BY id FOR UPDATE`, req.CampaignID)
	if err != nil {
		return 0, false, err
	}
	pending, err := scanOutboundRows(rows)
	if err != nil {
		return 0, false, err
	}

	for _, m := range pending {
		if _, err := tx.ExecContext(ctx,
			`UPDATE outbound_messages SET rendered_content=$1, updated_at=NOW() WHERE id=$2`,
			render(m), m.ID); err != nil {
			return 0, false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	return len(pending), true, nil
}

// ClaimDueScheduled moves due scheduled campaigns to sending one at a time,
// handing each off before its transaction commits.
func (r *CampaignRepository) ClaimDueScheduled(ctx context.Context, now time.Time, handoff Handoff) ([]int, error) {
	var claimed []int
	for {
		id, ok, err := r.claimOne(ctx, now, handoff)
		if err != nil {
			return claimed, err
		}
		if !ok {
			return claimed, nil
		}
		claimed = append(claimed, id)
	}
}

func (r *CampaignRepository) claimOne(ctx context.Context, now time.Time, handoff Handoff) (int, bool, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	c, err := scanCampaign(tx.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns
		WHERE status='scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at LIMIT 1 FOR UPDATE SKIP LOCKED`, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE campaigns SET status='sending', updated_at=NOW() WHERE id=$1`, c.ID); err != nil {
		return 0, false, err
	}
	c.Status = model.StatusSending
	if err := handoff(ctx, c); err != nil {
		return 0, false, err
	}
	return c.ID, true, tx.Commit()
}

// ClaimStalledSending hands off again sending campaigns whose pending
// messages nobody has touched since staleBefore, e.g. after their job went
// to the dead letter queue. Each claim stamps updated_at with now so the
// campaign is not picked again until it goes stale once more.
func (r *CampaignRepository) ClaimStalledSending(ctx context.Context, now, staleBefore time.Time, handoff Handoff) ([]int, error) {
	var claimed []int
	for {
		id, ok, err := r.claimStalled(ctx, now, staleBefore, handoff)
		if err != nil {
			return claimed, err
		}
		if !ok {
			return claimed, nil
		}
		claimed = append(claimed, id)
	}
}

func (r *CampaignRepository) claimStalled(ctx context.Context, now, staleBefore time.Time, handoff Handoff) (int, bool, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	c, err := scanCampaign(tx.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns c
		WHERE c.status='sending' AND COALESCE(c.updated_at, c.created_at) < $1
		  AND EXISTS (SELECT 1 FROM outbound_messages m WHERE m.campaign_id=c.id AND m.status='pending')
		  AND NOT EXISTS (SELECT 1 FROM outbound_messages m WHERE m.campaign_id=c.id AND m.updated_at >= $1)
		ORDER BY c.id LIMIT 1 FOR UPDATE SKIP LOCKED`, staleBefore))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE campaigns SET updated_at=$1 WHERE id=$2`, now, c.ID); err != nil {
		return 0, false, err
	}
	if err := handoff(ctx, c); err != nil {
		return 0, false, err
	}
	return c.ID, true, tx.Commit()
}

// FinishCampaign tallies delivery results. A campaign with pending
// messages keeps its status.
func (r *CampaignRepository) FinishCampaign(ctx context.Context, id int) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE campaigns c SET
			success_count = s.sent,
			fail_count = s.failed,
			status = CASE
				WHEN s.pending > 0 THEN c.status
				WHEN s.sent = 0 THEN 'failed'
				ELSE 'completed'
			END,
			updated_at = NOW()
		FROM (
			SELECT COUNT(*) FILTER (WHERE status='sent') AS sent,
				   COUNT(*) FILTER (WHERE status='failed') AS failed,
				   COUNT(*) FILTER (WHERE status='pending') AS pending
			FROM outbound_messages WHERE campaign_id=$1
		) s
		WHERE c.id=$1 AND c.status='sending'
	`, id)
	return err
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/unclebandit/targetup-dispatch/internal/model"
)

type OutboundMessageRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.OutboundMessage, error)
	Update(ctx context.Context, msg *model.OutboundMessage) error
	ListPending(ctx context.Context, campaignID int) ([]*model.OutboundMessage, error)
}

type OutboundMessageRepository struct {
	DB *sql.DB
}

const outboundColumns = `id, campaign_id, phone, name, fields, callback, status, rendered_content,
	last_error, retry_count, created_at, updated_at`

func scanOutbound(row rowScanner) (*model.OutboundMessage, error) {
	var msg model.OutboundMessage
	var fields []byte
	err := row.Scan(
		&msg.ID,
		&msg.CampaignID,
		&msg.Phone,
		&msg.Name,
		&fields,
		&msg.Callback,
		&msg.Status,
		&msg.RenderedContent,
		&msg.LastError,
		&msg.RetryCount,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &msg.Fields); err != nil {
			return nil, err
		}
	}
	return &msg, nil
}

// scanOutboundRows drains and closes rows.
func scanOutboundRows(rows *sql.Rows) ([]*model.OutboundMessage, error) {
	defer rows.Close()
	msgs := []*model.OutboundMessage{}
	for rows.Next() {
		msg, err := scanOutbound(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// Update updates an existing outbound message (e.g., status, last_error, retry_count)
func (r *OutboundMessageRepository) Update(ctx context.Context, msg *model.OutboundMessage) error {
	msg.UpdatedAt = time.Now()
	query := `
		UPDATE outbound_messages
		SET status=$1, last_error=$2, retry_count=$3, updated_at=$4
		WHERE id=$5
	`
	_, err := r.DB.ExecContext(ctx, query, msg.Status, msg.LastError, msg.RetryCount, msg.UpdatedAt, msg.ID)
	return err
}

// GetByID fetches an outbound message by its ID
func (r *OutboundMessageRepository) GetByID(ctx context.Context, id int) (*model.OutboundMessage, error) {
	query := `SELECT ` + outboundColumns + ` FROM outbound_messages WHERE id=$1`
	return scanOutbound(r.DB.QueryRowContext(ctx, query, id))
}

func (r *OutboundMessageRepository) ListPending(ctx context.Context, campaignID int) ([]*model.OutboundMessage, error) {
	query := `SELECT ` + outboundColumns + ` FROM outbound_messages
		WHERE campaign_id=$1 AND status='pending' ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	return scanOutboundRows(rows)
}

var _ OutboundMessageRepositoryInterface = (*OutboundMessageRepository)(nil)

// internal/model/outbound_message.go
package model

import "time"

const (
	MessagePending   = "pending"
	MessageSent      = "sent"
	MessageFailed    = "failed"
	MessageCancelled = "cancelled"
)

// OutboundMessage is one recipient of a campaign. Fields keeps the
// personalization values so a scheduled campaign can be re-rendered.
type OutboundMessage struct {
	ID              int               `db:"id" json:"id"`
	CampaignID      int               `db:"campaign_id" json:"campaign_id"`
	Phone           string            `db:"phone" json:"phone"`
	Name            string            `db:"name" json:"name,omitempty"`
	Fields          map[string]string `db:"fields" json:"fields,omitempty"`
	Callback        string            `db:"callback" json:"callback,omitempty"`
	Status          string            `db:"status" json:"status"` // pending, sent, failed
	RenderedContent string            `db:"rendered_content" json:"rendered_content"`
	LastError       string            `db:"last_error,omitempty" json:"last_error,omitempty"`
	RetryCount      int               `db:"retry_count" json:"retry_count"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// Recipient rebuilds the personalization view of the stored row.
func (m *OutboundMessage) Recipient() Recipient {
	return Recipient{
		Phone:    m.Phone,
		Name:     m.Name,
		Fields:   m.Fields,
		Callback: m.Callback,
	}
}

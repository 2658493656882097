// internal/model/campaign.go
package model

import "time"

type SendType string

const (
	SendTypeDirect   SendType = "direct"
	SendTypeTargeted SendType = "targeted"
	SendTypeAI       SendType = "ai"
)

const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusSending   = "sending"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

const (
	CancelledByCompanyAdmin = "company_admin"
	CancelledBySuperAdmin   = "super_admin"
)

type Campaign struct {
	ID                int        `db:"id" json:"id"`
	CompanyID         string     `db:"company_id" json:"company_id"`
	Name              string     `db:"name" json:"name"`
	SendType          SendType   `db:"send_type" json:"send_type"`
	Channel           Channel    `db:"channel" json:"channel"`
	Subject           string     `db:"subject" json:"subject,omitempty"`
	Status            string     `db:"status" json:"status"`
	BaseTemplate      string     `db:"base_template" json:"base_template"`
	AdTextEnabled     bool       `db:"ad_text_enabled" json:"ad_text_enabled"`
	ImageRefs         []string   `db:"image_refs" json:"image_refs,omitempty"`
	Callback          string     `db:"callback" json:"callback"`
	TargetCount       int        `db:"target_count" json:"target_count"`
	SuccessCount      int        `db:"success_count" json:"success_count"`
	FailCount         int        `db:"fail_count" json:"fail_count"`
	UnsubscribedCount int        `db:"unsubscribed_count" json:"unsubscribed_count"`
	CostAmount        int64      `db:"cost_amount" json:"cost_amount"`
	DebitAmount       int64      `db:"debit_amount" json:"debit_amount"`
	ScheduledAt       *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	CancelledBy       string     `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelledByType   string     `db:"cancelled_by_type" json:"cancelled_by_type,omitempty"`
	CancelReason      string     `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CancelledAt       *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

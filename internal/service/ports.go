package service

import (
	"context"
	"time"

	"github.com/unclebandit/targetup-dispatch/internal/model"
	"github.com/unclebandit/targetup-dispatch/internal/repository"
)

// CustomerStore counts and materializes filtered recipients.
type CustomerStore interface {
	Count(ctx context.Context, companyID string, spec model.FilterSpec) (int, error)
	Extract(ctx context.Context, companyID string, spec model.FilterSpec) ([]model.Recipient, error)
}

// FieldCatalog lists the fields a tenant has enabled.
type FieldCatalog interface {
	EnabledFields(ctx context.Context, companyID string) ([]model.FieldCatalogEntry, error)
	Options(ctx context.Context, companyID, fieldKey string) ([]string, error)
}

type UnsubscribeRegistry interface {
	CountUnsubscribed(ctx context.Context, companyID string, phones []string) (int, error)
}

// BalanceLedger is read here; the debit happens inside CampaignStore.Commit.
type BalanceLedger interface {
	GetBalance(ctx context.Context, companyID string) (*model.BalanceRecord, error)
}

type CampaignStore interface {
	ListCampaigns(ctx context.Context, companyID string, offset, limit int, channel, status string) ([]*model.Campaign, int, error)
	GetByID(ctx context.Context, companyID string, id int) (*model.Campaign, error)
	GetCampaignStats(ctx context.Context, campaignID int) (map[string]int, error)
	Commit(ctx context.Context, c *model.Campaign, msgs []*model.OutboundMessage, debit int64, handoff repository.Handoff) error
	Cancel(ctx context.Context, req repository.CancelRequest) (bool, error)
	Reschedule(ctx context.Context, companyID string, id int, at, notBefore time.Time) (bool, error)
	RewritePendingMessages(ctx context.Context, req repository.RewriteRequest, render func(*model.OutboundMessage) string) (int, bool, error)
}

// TestContactStore keeps the phones a user may test-send to.
type TestContactStore interface {
	ListTestContacts(ctx context.Context, companyID, userID string) ([]model.TestContact, error)
	AddTestContact(ctx context.Context, companyID, userID string, shared bool, name, phone string) (*model.TestContact, error)
}

type PendingMessages interface {
	ListPending(ctx context.Context, campaignID int) ([]*model.OutboundMessage, error)
}

// MessagingGateway accepts a committed campaign for delivery. Delivery
// outcomes come back asynchronously through the worker.
type MessagingGateway interface {
	Submit(ctx context.Context, c *model.Campaign) error
}

type IdempotencyGuard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

var SystemClock Clock = ClockFunc(time.Now)

package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/targetup-dispatch/internal/errors"
	"github.com/unclebandit/targetup-dispatch/internal/model"
	"github.com/unclebandit/targetup-dispatch/internal/repository"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func fixedClock() Clock {
	return ClockFunc(func() time.Time { return fixedNow })
}

// callLog records collaborator calls in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.calls = append(l.calls, name)
	l.mu.Unlock()
}

func (l *callLog) index(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, c := range l.calls {
		if c == name {
			return i
		}
	}
	return -1
}

type fakeLedger struct {
	mu     sync.Mutex
	record model.BalanceRecord
	err    error
	log    *callLog
}

func newFakeLedger(balance int64, billing model.BillingType) *fakeLedger {
	return &fakeLedger{record: model.BalanceRecord{
		CompanyID:    "acme",
		BillingType:  billing,
		Balance:      balance,
		UnitPrices:   map[model.Channel]int64{model.ChannelSMS: 10, model.ChannelLMS: 30, model.ChannelMMS: 60},
		RejectNumber: "0801112222",
	}}
}

func (l *fakeLedger) GetBalance(_ context.Context, _ string) (*model.BalanceRecord, error) {
	l.log.add("balance")
	if l.err != nil {
		return nil, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := l.record
	return &rec, nil
}

func (l *fakeLedger) balance() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.record.Balance
}

func (l *fakeLedger) adjust(delta int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.record.Balance+delta < 0 {
		return &appErrors.InsufficientBalance{Required: -delta, Balance: l.record.Balance, Shortfall: -delta - l.record.Balance}
	}
	l.record.Balance += delta
	return nil
}

type fakeUnsubscribes struct {
	blocked map[string]bool
	err     error
	log     *callLog
}

func (u *fakeUnsubscribes) CountUnsubscribed(_ context.Context, _ string, phones []string) (int, error) {
	u.log.add("unsubscribe")
	if u.err != nil {
		return 0, u.err
	}
	n := 0
	for _, p := range phones {
		if u.blocked[p] {
			n++
		}
	}
	return n, nil
}

type fakeGateway struct {
	mu        sync.Mutex
	submitted []int
	err       error
}

func (g *fakeGateway) Submit(_ context.Context, c *model.Campaign) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.submitted = append(g.submitted, c.ID)
	return nil
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.submitted)
}

// fakeStore keeps campaigns in memory. Commit applies nothing when the
// debit or the handoff fails, like the database transaction.
type fakeStore struct {
	mu        sync.Mutex
	ledger    *fakeLedger
	campaigns map[int]*model.Campaign
	messages  map[int][]*model.OutboundMessage
	nextID    int
	nextMsgID int
	commitErr error
	log       *callLog
}

func newFakeStore(ledger *fakeLedger) *fakeStore {
	return &fakeStore{
		ledger:    ledger,
		campaigns: map[int]*model.Campaign{},
		messages:  map[int][]*model.OutboundMessage{},
	}
}

func (s *fakeStore) ListCampaigns(_ context.Context, companyID string, offset, limit int, channel, status string) ([]*model.Campaign, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*model.Campaign
	for _, c := range s.campaigns {
		if c.CompanyID != companyID {
			continue
		}
		if channel != "" && string(c.Channel) != channel {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if offset >= total {
		return []*model.Campaign{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *fakeStore) GetByID(_ context.Context, companyID string, id int) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok || c.CompanyID != companyID {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (s *fakeStore) GetCampaignStats(_ context.Context, campaignID int) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := map[string]int{"total": 0, "pending": 0, "sent": 0, "failed": 0}
	for _, m := range s.messages[campaignID] {
		stats["total"]++
		stats[m.Status]++
	}
	return stats, nil
}

func (s *fakeStore) Commit(ctx context.Context, c *model.Campaign, msgs []*model.OutboundMessage, debit int64, handoff repository.Handoff) error {
	s.log.add("commit")
	if s.commitErr != nil {
		return s.commitErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if debit > 0 && s.ledger.balance() < debit {
		return &appErrors.InsufficientBalance{Required: debit, Balance: s.ledger.balance(), Shortfall: debit - s.ledger.balance()}
	}
	s.nextID++
	c.ID = s.nextID
	c.CreatedAt = fixedNow
	if handoff != nil {
		if err := handoff(ctx, c); err != nil {
			c.ID = 0
			s.nextID--
			return err
		}
	}
	if debit > 0 {
		if err := s.ledger.adjust(-debit); err != nil {
			return err
		}
	}
	c.DebitAmount = debit
	cp := *c
	s.campaigns[c.ID] = &cp
	for _, m := range msgs {
		s.nextMsgID++
		m.ID = s.nextMsgID
		m.CampaignID = c.ID
	}
	s.messages[c.ID] = msgs
	return nil
}

func (s *fakeStore) mutable(companyID string, id int, notBefore time.Time) (*model.Campaign, bool) {
	c, ok := s.campaigns[id]
	if !ok || c.CompanyID != companyID || c.Status != model.StatusScheduled || c.ScheduledAt == nil {
		return nil, false
	}
	if c.ScheduledAt.Before(notBefore) {
		return nil, false
	}
	return c, true
}

func (s *fakeStore) Cancel(_ context.Context, req repository.CancelRequest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.mutable(req.CompanyID, req.CampaignID, req.NotBefore)
	if !ok {
		return false, nil
	}
	c.Status = model.StatusCancelled
	c.CancelledBy = req.By
	c.CancelledByType = req.ByType
	c.CancelReason = req.Reason
	at := fixedNow
	c.CancelledAt = &at
	for _, m := range s.messages[c.ID] {
		if m.Status == model.MessagePending {
			m.Status = model.MessageCancelled
		}
	}
	if c.DebitAmount > 0 {
		_ = s.ledger.adjust(c.DebitAmount)
	}
	return true, nil
}

func (s *fakeStore) Reschedule(_ context.Context, companyID string, id int, at, notBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.mutable(companyID, id, notBefore)
	if !ok {
		return false, nil
	}
	c.ScheduledAt = &at
	return true, nil
}

func (s *fakeStore) RewritePendingMessages(_ context.Context, req repository.RewriteRequest, render func(*model.OutboundMessage) string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.mutable(req.CompanyID, req.CampaignID, req.NotBefore)
	if !ok {
		return 0, false, nil
	}
	c.BaseTemplate = req.Template
	c.Subject = req.Subject
	n := 0
	for _, m := range s.messages[c.ID] {
		if m.Status != model.MessagePending {
			continue
		}
		m.RenderedContent = render(m)
		n++
	}
	return n, true, nil
}

func (s *fakeStore) ListPending(_ context.Context, campaignID int) ([]*model.OutboundMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.OutboundMessage
	for _, m := range s.messages[campaignID] {
		if m.Status == model.MessagePending {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) campaignCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.campaigns)
}

// put inserts a campaign directly, for schedule tests.
func (s *fakeStore) put(c *model.Campaign, msgs ...*model.OutboundMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c.ID = s.nextID
	s.campaigns[c.ID] = c
	for _, m := range msgs {
		s.nextMsgID++
		m.ID = s.nextMsgID
		m.CampaignID = c.ID
	}
	s.messages[c.ID] = msgs
}

type fakeCatalog struct {
	fields []model.FieldCatalogEntry
	err    error
}

func (c *fakeCatalog) EnabledFields(_ context.Context, _ string) ([]model.FieldCatalogEntry, error) {
	if c.err != nil {
		return nil, c.err
	}
	return append([]model.FieldCatalogEntry(nil), c.fields...), nil
}

func (c *fakeCatalog) Options(_ context.Context, _ string, fieldKey string) ([]string, error) {
	if fieldKey == "grade" {
		return []string{"GOLD", "VIP"}, nil
	}
	return nil, nil
}

type fakeCustomers struct {
	recipients []model.Recipient
	lastSpec   model.FilterSpec
	err        error
	log        *callLog
}

func (c *fakeCustomers) Count(_ context.Context, _ string, spec model.FilterSpec) (int, error) {
	c.lastSpec = spec
	if c.err != nil {
		return 0, c.err
	}
	return len(c.recipients), nil
}

func (c *fakeCustomers) Extract(_ context.Context, _ string, spec model.FilterSpec) ([]model.Recipient, error) {
	c.log.add("extract")
	c.lastSpec = spec
	if c.err != nil {
		return nil, c.err
	}
	return append([]model.Recipient(nil), c.recipients...), nil
}

var errUnavailable = errors.New("connection refused")

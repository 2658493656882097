package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	appErrors "github.com/unclebandit/targetup-dispatch/internal/errors"
	"github.com/unclebandit/targetup-dispatch/internal/model"
	"github.com/unclebandit/targetup-dispatch/internal/repository"
	"github.com/unclebandit/targetup-dispatch/pkg/metrics"
)

// ScheduleService changes scheduled campaigns. Every change is checked by
// the guard first and then written conditionally, so a campaign that
// crossed into the lock window in between is still refused.
type ScheduleService struct {
	CampaignRepo CampaignStore
	Messages     PendingMessages
	Ledger       BalanceLedger
	Guard        ScheduleGuard
	Clock        Clock
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

type CancelInput struct {
	CampaignID int
	Reason     string
}

type MessageEdit struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type EditResult struct {
	CampaignID int    `json:"campaign_id"`
	Rewritten  int    `json:"rewritten"`
	Advice     Advice `json:"advice"`
}

func (s *ScheduleService) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *ScheduleService) notBefore(now time.Time) time.Time {
	return now.Add(s.Guard.LockWindow)
}

func (s *ScheduleService) load(ctx context.Context, tenant Tenant, id int) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(ctx, tenant.CompanyID, id)
	if err != nil {
		var nf *appErrors.ErrCampaignNotFound
		if errors.As(err, &nf) {
			return nil, err
		}
		return nil, appErrors.NewTransportFailure("load campaign", err)
	}
	return c, nil
}

func (s *ScheduleService) lockViolation(err error) error {
	var lv *appErrors.ScheduleLockViolation
	if errors.As(err, &lv) && s.Metrics != nil {
		s.Metrics.IncLockViolation()
	}
	return err
}

// refusedAtWrite re-derives the error for a conditional write that matched
// no row.
func (s *ScheduleService) refusedAtWrite(ctx context.Context, tenant Tenant, id int, action string) error {
	c, err := s.load(ctx, tenant, id)
	if err != nil {
		return err
	}
	if err := s.Guard.checkMutable(c, s.now(), action); err != nil {
		return s.lockViolation(err)
	}
	return &appErrors.InvalidState{CampaignID: id, Status: c.Status, Action: action}
}

func (s *ScheduleService) Cancel(ctx context.Context, tenant Tenant, in CancelInput) (*model.Campaign, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return nil, appErrors.NewValidation("reason", "a cancel reason is required")
	}
	c, err := s.load(ctx, tenant, in.CampaignID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.Guard.CanCancel(c, now); err != nil {
		return nil, s.lockViolation(err)
	}

	byType := model.CancelledByCompanyAdmin
	if tenant.UserType == model.CancelledBySuperAdmin {
		byType = model.CancelledBySuperAdmin
	}
	ok, err := s.CampaignRepo.Cancel(ctx, repository.CancelRequest{
		CompanyID:  tenant.CompanyID,
		CampaignID: c.ID,
		By:         tenant.UserID,
		ByType:     byType,
		Reason:     strings.TrimSpace(in.Reason),
		NotBefore:  s.notBefore(now),
	})
	if err != nil {
		return nil, appErrors.NewTransportFailure("cancel campaign", err)
	}
	if !ok {
		return nil, s.refusedAtWrite(ctx, tenant, c.ID, "cancel")
	}

	if s.Logger != nil {
		s.Logger.Info("campaign cancelled", "company_id", tenant.CompanyID, "campaign_id", c.ID, "by", tenant.UserID, "by_type", byType)
	}
	return s.load(ctx, tenant, c.ID)
}

func (s *ScheduleService) Reschedule(ctx context.Context, tenant Tenant, id int, at time.Time) (*model.Campaign, error) {
	c, err := s.load(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.Guard.ValidateScheduleTime(at, now); err != nil {
		return nil, err
	}
	if err := s.Guard.CanReschedule(c, at, now); err != nil {
		return nil, s.lockViolation(err)
	}

	ok, err := s.CampaignRepo.Reschedule(ctx, tenant.CompanyID, id, at, s.notBefore(now))
	if err != nil {
		return nil, appErrors.NewTransportFailure("reschedule campaign", err)
	}
	if !ok {
		return nil, s.refusedAtWrite(ctx, tenant, id, "reschedule")
	}
	return s.load(ctx, tenant, id)
}

// EditMessage replaces the message of a scheduled campaign and re-renders
// every pending recipient. The new text must fit the campaign's channel
// as it stands: a downgrade offer is ignored, and an SMS overflow is
// refused rather than truncated.
func (s *ScheduleService) EditMessage(ctx context.Context, tenant Tenant, id int, edit MessageEdit) (*EditResult, error) {
	if strings.TrimSpace(edit.Body) == "" {
		return nil, appErrors.NewValidation("body", "message is required")
	}
	c, err := s.load(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if c.Channel != model.ChannelSMS && strings.TrimSpace(edit.Subject) == "" {
		return nil, appErrors.NewValidation("subject", "required for "+string(c.Channel))
	}
	now := s.now()
	if err := s.Guard.CanEditMessage(c, now); err != nil {
		return nil, s.lockViolation(err)
	}

	balance, err := s.Ledger.GetBalance(ctx, tenant.CompanyID)
	if err != nil {
		return nil, appErrors.NewTransportFailure("balance lookup", err)
	}
	if err := RequireRejectNumber(c.AdTextEnabled, balance.RejectNumber); err != nil {
		return nil, err
	}

	tokens := TokensFor(c.SendType)
	template := StripUnknownTokens(edit.Body, tokens)
	draft := model.MessageDraft{
		Channel:       c.Channel,
		Subject:       edit.Subject,
		Body:          template,
		AdTextEnabled: c.AdTextEnabled,
		ImageRefs:     c.ImageRefs,
		Callback:      c.Callback,
	}

	pending, err := s.Messages.ListPending(ctx, id)
	if err != nil {
		return nil, appErrors.NewTransportFailure("load pending messages", err)
	}
	recipients := make([]model.Recipient, len(pending))
	for i, m := range pending {
		recipients[i] = m.Recipient()
	}
	worst := RenderWorstCase(template, recipients, tokens)
	adv, err := Advise(AdvisorInput{
		Draft:            draft,
		WorstCaseBody:    worst,
		RejectNumber:     balance.RejectNumber,
		RecipientCount:   len(pending),
		UnitPrices:       balance.UnitPrices,
		OverrideAccepted: true,
	})
	if err != nil {
		return nil, err
	}
	if adv.Outcome != OutcomeOK || adv.Truncated {
		adv.Truncated = false
		if adv.Outcome == OutcomeOK {
			adv.Outcome = OutcomeMustUpgrade
		}
		return nil, adv.AsError()
	}

	n, ok, err := s.CampaignRepo.RewritePendingMessages(ctx, repository.RewriteRequest{
		CompanyID:  tenant.CompanyID,
		CampaignID: id,
		Template:   template,
		Subject:    edit.Subject,
		NotBefore:  s.notBefore(now),
	}, func(m *model.OutboundMessage) string {
		return FinalizeBody(RenderForRecipient(template, m.Recipient(), tokens), draft, balance.RejectNumber, adv)
	})
	if err != nil {
		return nil, appErrors.NewTransportFailure("rewrite messages", err)
	}
	if !ok {
		return nil, s.refusedAtWrite(ctx, tenant, id, "edit")
	}

	if s.Logger != nil {
		s.Logger.Info("scheduled message rewritten", "company_id", tenant.CompanyID, "campaign_id", id, "pending", n)
	}
	return &EditResult{CampaignID: id, Rewritten: n, Advice: adv}, nil
}

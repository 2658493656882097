// internal/service/campaign_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	appErrors "github.com/unclebandit/targetup-dispatch/internal/errors"
	"github.com/unclebandit/targetup-dispatch/internal/model"
	"github.com/unclebandit/targetup-dispatch/pkg/metrics"
)

const DefaultDispatchCooldown = 30 * time.Second

// Tenant identifies who is acting. Company-level state is never reset by a
// dispatch.
type Tenant struct {
	CompanyID string
	UserID    string
	UserType  string
}

type CampaignService struct {
	CampaignRepo CampaignStore
	Targets      *TargetService
	Unsubscribes UnsubscribeRegistry
	Ledger       BalanceLedger
	Gateway      MessagingGateway
	Guard        IdempotencyGuard
	Schedule     ScheduleGuard
	Cooldown     time.Duration
	TestContacts TestContactStore
	TestSender   Sender
	TestCooldown time.Duration
	Clock        Clock
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// DispatchSummary is what the confirmation step shows. Authorization is
// only present once the channel decision is final.
type DispatchSummary struct {
	DraftID           string         `json:"draft_id"`
	SendType          model.SendType `json:"send_type"`
	Channel           model.Channel  `json:"channel"`
	TotalRecipients   int            `json:"total_recipients"`
	InvalidCount      int            `json:"invalid_count"`
	UnsubscribedCount int            `json:"unsubscribed_count"`
	WorstCasePreview  string         `json:"worst_case_preview"`
	Advice            Advice         `json:"advice"`
	Prompt            Prompt         `json:"prompt"`
	Authorization     *Authorization `json:"authorization,omitempty"`
	ScheduledAt       *time.Time     `json:"scheduled_at,omitempty"`
}

type DispatchResult struct {
	Campaign *model.Campaign `json:"campaign"`
	Summary  DispatchSummary `json:"summary"`
	Session  ComposeSession  `json:"session"`
}

type CampaignDetails struct {
	*model.Campaign
	Stats map[string]int `json:"stats"`
}

// preparation is the state carried from the checks into the commit.
type preparation struct {
	summary    DispatchSummary
	recipients []model.Recipient
	tokens     TokenMap
	template   string
	balance    *model.BalanceRecord
	advice     Advice
}

func (s *CampaignService) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *CampaignService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *CampaignService) metrics() *metrics.Metrics {
	if s.Metrics == nil {
		s.Metrics = metrics.New()
	}
	return s.Metrics
}

// Prepare runs every check up to, but not including, the commit and
// returns the confirmation summary. Advisory outcomes are reported in the
// summary rather than as errors.
func (s *CampaignService) Prepare(ctx context.Context, tenant Tenant, session ComposeSession) (*DispatchSummary, error) {
	prep, err := s.prepare(ctx, tenant, session)
	if err != nil {
		return nil, err
	}
	s.metrics().IncPrepared()
	if prep.advice.Outcome != OutcomeOK {
		return &prep.summary, nil
	}
	auth := s.authorize(prep)
	prep.summary.Authorization = &auth
	return &prep.summary, nil
}

// Dispatch commits the session as a campaign. It is guarded per
// (company, draft) so a repeated submit inside the cooldown is rejected.
// Any failure releases the guard so the user can retry.
func (s *CampaignService) Dispatch(ctx context.Context, tenant Tenant, session ComposeSession) (result *DispatchResult, err error) {
	if session.DraftID == "" {
		return nil, appErrors.NewValidation("draft_id", "required")
	}
	key := fmt.Sprintf("dispatch:%s:%s", tenant.CompanyID, session.DraftID)
	cooldown := s.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultDispatchCooldown
	}
	acquired, err := s.Guard.Acquire(ctx, key, cooldown)
	if err != nil {
		return nil, appErrors.NewTransportFailure("idempotency guard", err)
	}
	if !acquired {
		return nil, &appErrors.DuplicateDispatch{Key: key}
	}
	defer func() {
		if err == nil {
			return
		}
		if relErr := s.Guard.Release(context.WithoutCancel(ctx), key); relErr != nil {
			s.logger().Warn("failed to release dispatch guard", "key", key, "error", relErr)
		}
		s.count(err)
	}()

	prep, err := s.prepare(ctx, tenant, session)
	if err != nil {
		return nil, err
	}
	if err := prep.advice.AsError(); err != nil {
		return nil, err
	}

	// last gate: recipients and channel are final from here on
	auth := s.authorize(prep)
	prep.summary.Authorization = &auth
	if err := auth.AsError(); err != nil {
		return nil, err
	}

	now := s.now()
	if session.ScheduledAt != nil {
		if err := s.Schedule.ValidateScheduleTime(*session.ScheduledAt, now); err != nil {
			return nil, err
		}
	}

	campaign, err := s.commit(ctx, tenant, session, prep, auth, now)
	if err != nil {
		return nil, err
	}

	if campaign.Status == model.StatusScheduled {
		s.metrics().IncScheduled()
	} else {
		s.metrics().IncDispatched()
	}
	s.logger().Info("campaign committed",
		"company_id", tenant.CompanyID,
		"campaign_id", campaign.ID,
		"status", campaign.Status,
		"channel", campaign.Channel,
		"recipients", campaign.TargetCount,
		"debit", auth.Debit,
	)

	return &DispatchResult{
		Campaign: campaign,
		Summary:  prep.summary,
		Session:  session.Reset(),
	}, nil
}

func (s *CampaignService) count(err error) {
	var (
		block    *appErrors.ComplianceBlock
		advisory *appErrors.AdvisoryPrompt
		balance  *appErrors.InsufficientBalance
	)
	switch {
	case errors.As(err, &block):
		s.metrics().IncBlocked()
	case errors.As(err, &advisory):
		s.metrics().IncAdvisory()
	case errors.As(err, &balance):
		s.metrics().IncBalanceDenied()
	}
}

func (s *CampaignService) prepare(ctx context.Context, tenant Tenant, session ComposeSession) (*preparation, error) {
	if err := validateSession(session); err != nil {
		return nil, err
	}

	recipients, invalid, err := s.resolveRecipients(ctx, tenant, session)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, appErrors.NewValidation("recipients", "no valid recipients")
	}
	callback := digitsOnly(session.Draft.Callback)
	for i := range recipients {
		if recipients[i].Callback == "" {
			recipients[i].Callback = callback
		}
	}

	balance, err := s.Ledger.GetBalance(ctx, tenant.CompanyID)
	if err != nil {
		var ve *appErrors.ValidationError
		if errors.As(err, &ve) {
			return nil, err
		}
		return nil, appErrors.NewTransportFailure("balance lookup", err)
	}
	if err := RequireRejectNumber(session.Draft.AdTextEnabled, balance.RejectNumber); err != nil {
		return nil, err
	}

	// always fresh: the registry may have changed since the last count
	unsubscribed, err := s.Unsubscribes.CountUnsubscribed(ctx, tenant.CompanyID, phonesOf(recipients))
	if err != nil {
		return nil, appErrors.NewTransportFailure("unsubscribe check", err)
	}

	tokens := TokensFor(session.SendType)
	template := StripUnknownTokens(session.Draft.Body, tokens)
	worst := RenderWorstCase(template, recipients, tokens)
	adv, err := Advise(AdvisorInput{
		Draft:            session.Draft,
		WorstCaseBody:    worst,
		RejectNumber:     balance.RejectNumber,
		RecipientCount:   len(recipients),
		UnitPrices:       balance.UnitPrices,
		OverrideAccepted: session.OverrideAccepted,
	})
	if err != nil {
		return nil, err
	}

	return &preparation{
		summary: DispatchSummary{
			DraftID:           session.DraftID,
			SendType:          session.SendType,
			Channel:           session.Draft.Channel,
			TotalRecipients:   len(recipients),
			InvalidCount:      invalid,
			UnsubscribedCount: unsubscribed,
			WorstCasePreview:  FinalizeBody(worst, session.Draft, balance.RejectNumber, adv),
			Advice:            adv,
			Prompt:            PromptFor(adv),
			ScheduledAt:       session.ScheduledAt,
		},
		recipients: recipients,
		tokens:     tokens,
		template:   template,
		balance:    balance,
		advice:     adv,
	}, nil
}

func (s *CampaignService) authorize(prep *preparation) Authorization {
	return Authorize(len(prep.recipients), prep.summary.Channel, prep.balance.UnitPrices, prep.balance.Balance, prep.balance.BillingType)
}

func (s *CampaignService) resolveRecipients(ctx context.Context, tenant Tenant, session ComposeSession) ([]model.Recipient, int, error) {
	if session.SendType == model.SendTypeDirect {
		recipients, invalid := NormalizeRecipients(session.Recipients)
		return recipients, invalid, nil
	}
	if s.Targets == nil {
		return nil, 0, appErrors.NewValidation("send_type", "targeting is not configured")
	}
	return s.Targets.Extract(ctx, tenant.CompanyID, session.Selections)
}

// commit writes the campaign, its messages and the debit in one unit.
// Immediate sends are handed to the gateway before the unit commits.
func (s *CampaignService) commit(ctx context.Context, tenant Tenant, session ComposeSession, prep *preparation, auth Authorization, now time.Time) (*model.Campaign, error) {
	draft := session.Draft
	campaign := &model.Campaign{
		CompanyID:         tenant.CompanyID,
		Name:              campaignName(session, now),
		SendType:          session.SendType,
		Channel:           draft.Channel,
		Subject:           draft.Subject,
		Status:            model.StatusSending,
		BaseTemplate:      prep.template,
		AdTextEnabled:     draft.AdTextEnabled,
		ImageRefs:         draft.ImageRefs,
		Callback:          digitsOnly(draft.Callback),
		TargetCount:       len(prep.recipients),
		UnsubscribedCount: prep.summary.UnsubscribedCount,
		CostAmount:        auth.Required,
		ScheduledAt:       session.ScheduledAt,
	}
	if session.ScheduledAt != nil {
		campaign.Status = model.StatusScheduled
	}

	msgs := make([]*model.OutboundMessage, len(prep.recipients))
	for i, r := range prep.recipients {
		body := RenderForRecipient(prep.template, r, prep.tokens)
		msgs[i] = &model.OutboundMessage{
			Phone:           r.Phone,
			Name:            r.Name,
			Fields:          r.Fields,
			Callback:        r.Callback,
			Status:          model.MessagePending,
			RenderedContent: FinalizeBody(body, draft, prep.balance.RejectNumber, prep.advice),
		}
	}

	var handoffErr error
	var handoff func(ctx context.Context, c *model.Campaign) error
	if campaign.Status == model.StatusSending {
		handoff = func(ctx context.Context, c *model.Campaign) error {
			handoffErr = s.Gateway.Submit(ctx, c)
			return handoffErr
		}
	}

	if err := s.CampaignRepo.Commit(ctx, campaign, msgs, auth.Debit, handoff); err != nil {
		var balance *appErrors.InsufficientBalance
		if errors.As(err, &balance) {
			return nil, err
		}
		if handoffErr != nil {
			return nil, appErrors.NewTransportFailure("gateway submit", handoffErr)
		}
		return nil, appErrors.NewTransportFailure("campaign commit", err)
	}
	return campaign, nil
}

func validateSession(session ComposeSession) error {
	if err := validateDraft(session); err != nil {
		return err
	}
	if session.SendType == model.SendTypeDirect && len(session.Recipients) == 0 {
		return appErrors.NewValidation("recipients", "at least one recipient is required")
	}
	return nil
}

func validateDraft(session ComposeSession) error {
	d := session.Draft
	switch session.SendType {
	case model.SendTypeDirect, model.SendTypeTargeted, model.SendTypeAI:
	default:
		return appErrors.NewValidation("send_type", fmt.Sprintf("unknown send type %q", session.SendType))
	}
	if !d.Channel.Valid() {
		return appErrors.NewValidation("channel", fmt.Sprintf("unknown channel %q", d.Channel))
	}
	if strings.TrimSpace(d.Body) == "" {
		return appErrors.NewValidation("body", "message is required")
	}
	if d.Channel != model.ChannelSMS && strings.TrimSpace(d.Subject) == "" {
		return appErrors.NewValidation("subject", "required for "+string(d.Channel))
	}
	if len(d.ImageRefs) > 0 && d.Channel != model.ChannelMMS {
		return appErrors.NewValidation("image_refs", "images need MMS")
	}
	if len(d.ImageRefs) > model.MaxImageRefs {
		return appErrors.NewValidation("image_refs", fmt.Sprintf("at most %d images", model.MaxImageRefs))
	}
	if digitsOnly(d.Callback) == "" {
		return appErrors.NewValidation("callback", "callback number is required")
	}
	return nil
}

func campaignName(session ComposeSession, now time.Time) string {
	template := session.CampaignName
	if strings.TrimSpace(template) == "" {
		template = "{channel} {send_type} {date}"
	}
	return RenderTemplate(template, map[string]string{
		"channel":   string(session.Draft.Channel),
		"send_type": string(session.SendType),
		"date":      now.Format("2006-01-02 15:04"),
	})
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, companyID string, page, pageSize int, channel, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, companyID, offset, pageSize, channel, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, companyID string, campaignID int) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, companyID, campaignID)
	if err != nil {
		return nil, err
	}

	stats, err := s.CampaignRepo.GetCampaignStats(ctx, campaignID)
	if err != nil {
		s.logger().Error("failed to load campaign stats", "campaign_id", campaignID, "error", err)
		return nil, err
	}

	return &CampaignDetails{Campaign: campaign, Stats: stats}, nil
}

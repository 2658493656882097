package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	appErrors "github.com/unclebandit/targetup-dispatch/internal/errors"
	"github.com/unclebandit/targetup-dispatch/internal/model"
)

const DefaultTestSendCooldown = 10 * time.Second

type TestSendOutcome struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type TestSendResult struct {
	Channel  model.Channel     `json:"channel"`
	Advice   Advice            `json:"advice"`
	Sent     int               `json:"sent"`
	Failed   int               `json:"failed"`
	Contacts []TestSendOutcome `json:"contacts"`
}

// TestSend delivers the composed message to the acting user's test
// contacts. It runs the same composition checks as Dispatch but stores no
// campaign and debits nothing. Repeats inside the cooldown are rejected
// per (company, draft).
func (s *CampaignService) TestSend(ctx context.Context, tenant Tenant, session ComposeSession) (result *TestSendResult, err error) {
	if session.DraftID == "" {
		return nil, appErrors.NewValidation("draft_id", "required")
	}
	if s.TestContacts == nil || s.TestSender == nil {
		return nil, appErrors.NewValidation("test_send", "test sending is not configured")
	}
	key := fmt.Sprintf("testsend:%s:%s", tenant.CompanyID, session.DraftID)
	cooldown := s.TestCooldown
	if cooldown <= 0 {
		cooldown = DefaultTestSendCooldown
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
			s.logger().Warn("failed to release test send guard", "key", key, "error", relErr)
		}
	}()

	if err := validateDraft(session); err != nil {
		return nil, err
	}

	contacts, err := s.TestContacts.ListTestContacts(ctx, tenant.CompanyID, tenant.UserID)
	if err != nil {
		var ve *appErrors.ValidationError
		if errors.As(err, &ve) {
			return nil, err
		}
		return nil, appErrors.NewTransportFailure("test contacts", err)
	}
	callback := digitsOnly(session.Draft.Callback)
	recipients := make([]model.Recipient, len(contacts))
	for i, c := range contacts {
		recipients[i] = model.Recipient{Phone: c.Phone, Name: c.Name, Callback: callback}
	}
	recipients, _ = NormalizeRecipients(recipients)
	if len(recipients) == 0 {
		return nil, appErrors.NewValidation("test_contacts", "no test contacts registered")
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

	tokens := TokensFor(session.SendType)
	template := StripUnknownTokens(session.Draft.Body, tokens)
	adv, err := Advise(AdvisorInput{
		Draft:            session.Draft,
		WorstCaseBody:    RenderWorstCase(template, recipients, tokens),
		RejectNumber:     balance.RejectNumber,
		RecipientCount:   len(recipients),
		UnitPrices:       balance.UnitPrices,
		OverrideAccepted: session.OverrideAccepted,
	})
	if err != nil {
		return nil, err
	}
	if err := adv.AsError(); err != nil {
		return nil, err
	}

	draft := session.Draft
	campaign := &model.Campaign{
		CompanyID:     tenant.CompanyID,
		Name:          "[TEST] " + strings.TrimSpace(campaignName(session, s.now())),
		SendType:      session.SendType,
		Channel:       draft.Channel,
		Subject:       draft.Subject,
		Status:        model.StatusSending,
		BaseTemplate:  template,
		AdTextEnabled: draft.AdTextEnabled,
		ImageRefs:     draft.ImageRefs,
		Callback:      callback,
		TargetCount:   len(recipients),
	}

	result = &TestSendResult{Channel: draft.Channel, Advice: adv}
	for _, r := range recipients {
		msg := &model.OutboundMessage{
			Phone:           r.Phone,
			Name:            r.Name,
			Callback:        r.Callback,
			Status:          model.MessagePending,
			RenderedContent: FinalizeBody(RenderForRecipient(template, r, tokens), draft, balance.RejectNumber, adv),
		}
		outcome := TestSendOutcome{Name: r.Name, Phone: r.Phone, Status: model.MessageSent}
		if sendErr := s.TestSender.Send(ctx, campaign, msg); sendErr != nil {
			outcome.Status = model.MessageFailed
			outcome.Error = sendErr.Error()
			result.Failed++
		} else {
			result.Sent++
		}
		result.Contacts = append(result.Contacts, outcome)
	}

	s.metrics().IncTestSent()
	s.logger().Info("test send finished",
		"company_id", tenant.CompanyID,
		"user_id", tenant.UserID,
		"channel", draft.Channel,
		"sent", result.Sent,
		"failed", result.Failed,
	)
	return result, nil
}

func (s *CampaignService) ListTestContacts(ctx context.Context, tenant Tenant) ([]model.TestContact, error) {
	if s.TestContacts == nil {
		return nil, appErrors.NewValidation("test_send", "test sending is not configured")
	}
	contacts, err := s.TestContacts.ListTestContacts(ctx, tenant.CompanyID, tenant.UserID)
	if err != nil {
		var ve *appErrors.ValidationError
		if errors.As(err, &ve) {
			return nil, err
		}
		return nil, appErrors.NewTransportFailure("test contacts", err)
	}
	return contacts, nil
}

type TestContactInput struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Shared bool   `json:"shared"`
}

func (s *CampaignService) AddTestContact(ctx context.Context, tenant Tenant, in TestContactInput) (*model.TestContact, error) {
	if s.TestContacts == nil {
		return nil, appErrors.NewValidation("test_send", "test sending is not configured")
	}
	phone := NormalizePhone(in.Phone)
	if phone == "" {
		return nil, appErrors.NewValidation("phone", "invalid mobile number")
	}
	c, err := s.TestContacts.AddTestContact(ctx, tenant.CompanyID, tenant.UserID, in.Shared, strings.TrimSpace(in.Name), phone)
	if err != nil {
		var ve *appErrors.ValidationError
		if errors.As(err, &ve) {
			return nil, err
		}
		return nil, appErrors.NewTransportFailure("add test contact", err)
	}
	return c, nil
}

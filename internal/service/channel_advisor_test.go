package service

import (
	"errors"
	"strings"
	"testing"

	appErrors "github.com/unclebandit/targetup-dispatch/internal/errors"
	"github.com/unclebandit/targetup-dispatch/internal/model"
)

const scenarioBody = "안녕하세요 %이름%님 특가 20% 할인"

var testPrices = map[model.Channel]int64{
	model.ChannelSMS: 10,
	model.ChannelLMS: 30,
	model.ChannelMMS: 60,
}

func adviseFor(t *testing.T, draft model.MessageDraft, recipients []model.Recipient, override bool) Advice {
	t.Helper()
	adv, err := Advise(AdvisorInput{
		Draft:            draft,
		WorstCaseBody:    RenderWorstCase(draft.Body, recipients, TargetedTokens),
		RejectNumber:     "0801112222",
		RecipientCount:   len(recipients),
		UnitPrices:       testPrices,
		OverrideAccepted: override,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return adv
}

// A long personalized name pushes an ad SMS over 90 bytes.
func TestAdviseScenarioA(t *testing.T) {
	recipients := []model.Recipient{
		{Phone: "01011112222", Name: "김철수"},
		{Phone: "01033334444", Name: strings.Repeat("홍길동최고최고최고", 3)},
	}
	draft := model.MessageDraft{Channel: model.ChannelSMS, Body: scenarioBody, AdTextEnabled: true}

	adv := adviseFor(t, draft, recipients, false)
	if adv.Outcome != OutcomeMustUpgrade {
		t.Fatalf("expected must-upgrade, got %s (%d bytes)", adv.Outcome, adv.Bytes)
	}
	if adv.Bytes <= SMSByteLimit {
		t.Errorf("expected more than 90 bytes, got %d", adv.Bytes)
	}
	if !adv.ComplianceBlocked || adv.OverrideAllowed {
		t.Errorf("ad SMS overflow must be a compliance block without override: %+v", adv)
	}
	var block *appErrors.ComplianceBlock
	if !errors.As(adv.AsError(), &block) {
		t.Errorf("expected ComplianceBlock error, got %v", adv.AsError())
	}
}

// The same body as LMS with ordinary names fits an SMS.
func TestAdviseScenarioB(t *testing.T) {
	recipients := []model.Recipient{
		{Phone: "01011112222", Name: "홍길동"},
		{Phone: "01033334444", Name: "김철수"},
		{Phone: "01055556666", Name: "이영희"},
	}
	draft := model.MessageDraft{Channel: model.ChannelLMS, Subject: "특가", Body: scenarioBody, AdTextEnabled: true}

	adv := adviseFor(t, draft, recipients, false)
	if adv.Outcome != OutcomeMayDowngrade {
		t.Fatalf("expected may-downgrade, got %s", adv.Outcome)
	}
	if adv.SMSBytes != 61 {
		t.Errorf("expected 61 SMS bytes, got %d", adv.SMSBytes)
	}
	if want := int64(3 * (30 - 10)); adv.CostDelta != want {
		t.Errorf("expected cost delta %d, got %d", want, adv.CostDelta)
	}
	var prompt *appErrors.AdvisoryPrompt
	if !errors.As(adv.AsError(), &prompt) || prompt.SuggestedChannel != "SMS" {
		t.Errorf("expected AdvisoryPrompt suggesting SMS, got %v", adv.AsError())
	}

	// declining the downgrade clears the prompt
	if adv := adviseFor(t, draft, recipients, true); adv.Outcome != OutcomeOK {
		t.Errorf("expected ok after override, got %s", adv.Outcome)
	}
}

func TestAdviseAdSMSNeverOK(t *testing.T) {
	for n := 1; n <= 60; n++ {
		body := strings.Repeat("가", n)
		draft := model.MessageDraft{Channel: model.ChannelSMS, Body: body, AdTextEnabled: true}
		for _, override := range []bool{false, true} {
			adv, err := Advise(AdvisorInput{Draft: draft, WorstCaseBody: body, RejectNumber: "0801112222", OverrideAccepted: override})
			if err != nil {
				t.Fatal(err)
			}
			if adv.Bytes > SMSByteLimit && adv.Outcome == OutcomeOK {
				t.Fatalf("ad SMS at %d bytes returned ok (override=%v)", adv.Bytes, override)
			}
		}
	}
}

func TestAdviseSMSOverrideWithoutAdText(t *testing.T) {
	body := strings.Repeat("가", 50)
	draft := model.MessageDraft{Channel: model.ChannelSMS, Body: body}

	adv, _ := Advise(AdvisorInput{Draft: draft, WorstCaseBody: body})
	if adv.Outcome != OutcomeMustUpgrade || !adv.OverrideAllowed || adv.ComplianceBlocked {
		t.Fatalf("expected overridable must-upgrade, got %+v", adv)
	}

	adv, _ = Advise(AdvisorInput{Draft: draft, WorstCaseBody: body, OverrideAccepted: true})
	if adv.Outcome != OutcomeOK || !adv.Truncated {
		t.Fatalf("expected truncated ok, got %+v", adv)
	}
	final := FinalizeBody(body, draft, "", adv)
	if ComputeBytes(final) > SMSByteLimit {
		t.Errorf("finalized SMS is %d bytes", ComputeBytes(final))
	}
}

func TestAdviseAttachmentsVetoDowngrade(t *testing.T) {
	draft := model.MessageDraft{Channel: model.ChannelMMS, Subject: "s", Body: "짧은 글", ImageRefs: []string{"img-1"}}
	adv, err := Advise(AdvisorInput{Draft: draft, WorstCaseBody: draft.Body, UnitPrices: testPrices, RecipientCount: 10})
	if err != nil {
		t.Fatal(err)
	}
	if adv.Outcome != OutcomeOK {
		t.Errorf("MMS with images must not offer a downgrade, got %s", adv.Outcome)
	}
}

func TestAdviseLongMessageTooLarge(t *testing.T) {
	body := strings.Repeat("가", 1001)
	draft := model.MessageDraft{Channel: model.ChannelLMS, Subject: "s", Body: body}
	_, err := Advise(AdvisorInput{Draft: draft, WorstCaseBody: body})
	var ve *appErrors.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAdviseLMSFitsOnlyAsLMS(t *testing.T) {
	body := strings.Repeat("가", 60)
	draft := model.MessageDraft{Channel: model.ChannelLMS, Subject: "s", Body: body}
	adv, _ := Advise(AdvisorInput{Draft: draft, WorstCaseBody: body})
	if adv.Outcome != OutcomeOK || adv.SMSBytes != 120 {
		t.Errorf("expected ok with 120 SMS bytes, got %+v", adv)
	}
}

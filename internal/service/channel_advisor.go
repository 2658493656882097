package service

import (
	"fmt"

	appErrors "github.com/unclebandit/targetup-dispatch/internal/errors"
	"github.com/unclebandit/targetup-dispatch/internal/model"
)

// RequireRejectNumber refuses ad text when the company has no reject
// number, since the opt-out footer would carry no digits.
func RequireRejectNumber(adTextEnabled bool, rejectNumber string) error {
	if adTextEnabled && digitsOnly(rejectNumber) == "" {
		return appErrors.NewValidation("reject_number", "ad text requires a registered reject number")
	}
	return nil
}

type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeMustUpgrade  Outcome = "must-upgrade"
	OutcomeMayDowngrade Outcome = "may-downgrade"
)

// AdvisorInput is everything the channel decision depends on. WorstCaseBody
// is the personalized body before ad text is added.
type AdvisorInput struct {
	Draft            model.MessageDraft
	WorstCaseBody    string
	RejectNumber     string
	RecipientCount   int
	UnitPrices       map[model.Channel]int64
	OverrideAccepted bool
}

type Advice struct {
	Outcome           Outcome       `json:"outcome"`
	Channel           model.Channel `json:"channel"`
	Bytes             int           `json:"bytes"`
	Limit             int           `json:"limit"`
	ComplianceBlocked bool          `json:"compliance_blocked,omitempty"`
	OverrideAllowed   bool          `json:"override_allowed,omitempty"`
	Truncated         bool          `json:"truncated,omitempty"`
	SMSBytes          int           `json:"sms_bytes,omitempty"`
	CostDelta         int64         `json:"cost_delta,omitempty"`
}

// Advise decides whether the draft fits its channel. LMS/MMS messages over
// 2000 bytes are a validation error, not an advisory outcome.
func Advise(in AdvisorInput) (Advice, error) {
	ch := in.Draft.Channel
	composed := ComposeFullMessage(in.WorstCaseBody, ch, in.Draft.AdTextEnabled, in.RejectNumber)
	adv := Advice{
		Outcome: OutcomeOK,
		Channel: ch,
		Bytes:   ComputeBytes(composed),
		Limit:   ByteLimit(ch),
	}

	if ch == model.ChannelSMS {
		if adv.Bytes <= adv.Limit {
			return adv, nil
		}
		truncated := TruncateToByteLimit(composed, adv.Limit)
		if in.Draft.AdTextEnabled && !FooterIntact(truncated, ch, in.RejectNumber) {
			adv.Outcome = OutcomeMustUpgrade
			adv.ComplianceBlocked = true
			return adv, nil
		}
		if in.OverrideAccepted && !in.Draft.AdTextEnabled {
			adv.Truncated = true
			return adv, nil
		}
		adv.Outcome = OutcomeMustUpgrade
		adv.OverrideAllowed = !in.Draft.AdTextEnabled
		return adv, nil
	}

	if adv.Bytes > adv.Limit {
		return adv, appErrors.NewValidation("body", fmt.Sprintf("message is %d bytes, %s allows %d", adv.Bytes, ch, adv.Limit))
	}

	// images decide the channel regardless of text size
	if len(in.Draft.ImageRefs) > 0 {
		return adv, nil
	}
	smsComposed := ComposeFullMessage(in.WorstCaseBody, model.ChannelSMS, in.Draft.AdTextEnabled, in.RejectNumber)
	adv.SMSBytes = ComputeBytes(smsComposed)
	if adv.SMSBytes > SMSByteLimit || in.OverrideAccepted {
		return adv, nil
	}
	adv.Outcome = OutcomeMayDowngrade
	adv.OverrideAllowed = true
	adv.CostDelta = int64(in.RecipientCount) * (in.UnitPrices[ch] - in.UnitPrices[model.ChannelSMS])
	return adv, nil
}

// AsError converts a non-ok advice into the error the caller must surface.
func (a Advice) AsError() error {
	switch {
	case a.Outcome == OutcomeOK:
		return nil
	case a.ComplianceBlocked:
		return &appErrors.ComplianceBlock{Bytes: a.Bytes, Limit: a.Limit}
	case a.Outcome == OutcomeMustUpgrade:
		return &appErrors.AdvisoryPrompt{Outcome: string(a.Outcome), Bytes: a.Bytes, Limit: a.Limit, SuggestedChannel: string(model.ChannelLMS)}
	default:
		return &appErrors.AdvisoryPrompt{Outcome: string(a.Outcome), Bytes: a.SMSBytes, Limit: SMSByteLimit, SuggestedChannel: string(model.ChannelSMS), CostDelta: a.CostDelta}
	}
}

// FinalizeBody renders the wire text for one recipient, truncating an SMS
// only when the advice allowed it.
func FinalizeBody(body string, draft model.MessageDraft, rejectNumber string, adv Advice) string {
	full := ComposeFullMessage(body, draft.Channel, draft.AdTextEnabled, rejectNumber)
	if adv.Truncated {
		return TruncateToByteLimit(full, adv.Limit)
	}
	return full
}

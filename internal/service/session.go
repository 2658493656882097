package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/targetup-dispatch/internal/model"
)

type Prompt string

const (
	PromptNone            Prompt = "none"
	PromptLMSUpgrade      Prompt = "lms-upgrade"
	PromptComplianceBlock Prompt = "compliance-block"
	PromptSMSDowngrade    Prompt = "sms-downgrade"
)

// ComposeSession is the whole state of one message being composed. It is
// passed by value; Reduce never mutates its input.
type ComposeSession struct {
	DraftID          string             `json:"draft_id"`
	CampaignName     string             `json:"campaign_name,omitempty"`
	SendType         model.SendType     `json:"send_type"`
	Draft            model.MessageDraft `json:"draft"`
	Recipients       []model.Recipient  `json:"recipients,omitempty"`
	Selections       map[string]string  `json:"selections,omitempty"`
	ScheduledAt      *time.Time         `json:"scheduled_at,omitempty"`
	OverrideAccepted bool               `json:"override_accepted"`
	ActivePrompt     Prompt             `json:"active_prompt"`
	Advice           *Advice            `json:"advice,omitempty"`
}

type EventKind string

const (
	EventBodyChanged       EventKind = "body_changed"
	EventSubjectChanged    EventKind = "subject_changed"
	EventChannelChanged    EventKind = "channel_changed"
	EventAdTextToggled     EventKind = "ad_text_toggled"
	EventRecipientsChanged EventKind = "recipients_changed"
	EventSelectionsChanged EventKind = "selections_changed"
	EventImagesChanged     EventKind = "images_changed"
	EventCallbackChanged   EventKind = "callback_changed"
	EventNameChanged       EventKind = "name_changed"
	EventOverrideAccepted  EventKind = "override_accepted"
	EventScheduleSet       EventKind = "schedule_set"
	EventScheduleCleared   EventKind = "schedule_cleared"
	EventReset             EventKind = "reset"
)

// Event carries one user edit. Only the fields its Kind reads are used.
type Event struct {
	Kind       EventKind         `json:"kind"`
	Text       string            `json:"text,omitempty"`
	Channel    model.Channel     `json:"channel,omitempty"`
	Enabled    bool              `json:"enabled,omitempty"`
	Recipients []model.Recipient `json:"recipients,omitempty"`
	Selections map[string]string `json:"selections,omitempty"`
	Images     []string          `json:"images,omitempty"`
	At         *time.Time        `json:"at,omitempty"`
}

func NewComposeSession(sendType model.SendType) ComposeSession {
	if sendType == "" {
		sendType = model.SendTypeDirect
	}
	return ComposeSession{
		DraftID:      uuid.NewString(),
		SendType:     sendType,
		Draft:        model.MessageDraft{Channel: model.ChannelSMS},
		ActivePrompt: PromptNone,
	}
}

// Reduce applies one event. Edits to the body, channel, ad text or
// recipient set invalidate an accepted override and the last advice.
func Reduce(s ComposeSession, e Event) ComposeSession {
	next := s.clone()

	switch e.Kind {
	case EventBodyChanged:
		next.Draft.Body = e.Text
		next.invalidate()
	case EventSubjectChanged:
		next.Draft.Subject = e.Text
	case EventChannelChanged:
		next.Draft.Channel = e.Channel
		if e.Channel != model.ChannelMMS {
			next.Draft.ImageRefs = nil
		}
		next.invalidate()
	case EventAdTextToggled:
		next.Draft.AdTextEnabled = e.Enabled
		next.invalidate()
	case EventRecipientsChanged:
		next.Recipients = append([]model.Recipient(nil), e.Recipients...)
		next.invalidate()
	case EventSelectionsChanged:
		next.Selections = copyStrings(e.Selections)
		next.invalidate()
	case EventImagesChanged:
		next.Draft.ImageRefs = append([]string(nil), e.Images...)
		if len(next.Draft.ImageRefs) > 0 {
			next.Draft.Channel = model.ChannelMMS
		}
		next.invalidate()
	case EventCallbackChanged:
		next.Draft.Callback = e.Text
	case EventNameChanged:
		next.CampaignName = e.Text
	case EventOverrideAccepted:
		next.OverrideAccepted = true
		next.ActivePrompt = PromptNone
	case EventScheduleSet:
		if e.At != nil {
			at := *e.At
			next.ScheduledAt = &at
		}
	case EventScheduleCleared:
		next.ScheduledAt = nil
	case EventReset:
		return s.Reset()
	}
	return next
}

// Evaluate records the advice and raises at most one prompt for it.
func (s ComposeSession) Evaluate(adv Advice) ComposeSession {
	next := s.clone()
	next.Advice = &adv
	next.ActivePrompt = PromptFor(adv)
	return next
}

func PromptFor(adv Advice) Prompt {
	switch {
	case adv.ComplianceBlocked:
		return PromptComplianceBlock
	case adv.Outcome == OutcomeMustUpgrade:
		return PromptLMSUpgrade
	case adv.Outcome == OutcomeMayDowngrade:
		return PromptSMSDowngrade
	}
	return PromptNone
}

// Reset clears compose-local state after a successful dispatch. The send
// mode and sender number stay; a fresh draft id starts a new idempotency
// scope.
func (s ComposeSession) Reset() ComposeSession {
	next := NewComposeSession(s.SendType)
	next.Draft.Callback = s.Draft.Callback
	return next
}

func (s *ComposeSession) invalidate() {
	s.OverrideAccepted = false
	s.ActivePrompt = PromptNone
	s.Advice = nil
}

func (s ComposeSession) clone() ComposeSession {
	next := s
	next.Recipients = append([]model.Recipient(nil), s.Recipients...)
	next.Selections = copyStrings(s.Selections)
	next.Draft.ImageRefs = append([]string(nil), s.Draft.ImageRefs...)
	if s.ScheduledAt != nil {
		at := *s.ScheduledAt
		next.ScheduledAt = &at
	}
	return next
}

func copyStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

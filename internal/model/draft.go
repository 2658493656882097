// internal/model/draft.go
package model

type Channel string

const (
	ChannelSMS Channel = "SMS"
	ChannelLMS Channel = "LMS"
	ChannelMMS Channel = "MMS"
)

const MaxImageRefs = 3

func (c Channel) Valid() bool {
	switch c {
	case ChannelSMS, ChannelLMS, ChannelMMS:
		return true
	}
	return false
}

// MessageDraft is the composer's message. It is never persisted itself.
type MessageDraft struct {
	Channel       Channel  `json:"channel"`
	Subject       string   `json:"subject,omitempty"`
	Body          string   `json:"body"`
	AdTextEnabled bool     `json:"ad_text_enabled"`
	ImageRefs     []string `json:"image_refs,omitempty"`
	Callback      string   `json:"callback"`
}

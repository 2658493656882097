package service

import (
	"strings"

	"github.com/unclebandit/targetup-dispatch/internal/model"
)

const (
	SMSByteLimit  = 90
	LongByteLimit = 2000

	adMarker       = "(광고)"
	smsOptOutLabel = "080수신거부"
	lmsOptOutLabel = "무료수신거부 "
)

// ByteLimit returns the wire limit for a channel.
func ByteLimit(ch model.Channel) int {
	if ch == model.ChannelSMS {
		return SMSByteLimit
	}
	return LongByteLimit
}

// ComputeBytes counts two bytes for every rune above 127, one otherwise.
func ComputeBytes(text string) int {
	n := 0
	for _, r := range text {
		n += runeCost(r)
	}
	return n
}

func runeCost(r rune) int {
	if r > 127 {
		return 2
	}
	return 1
}

// ComposeFullMessage adds the advertising marker and the opt-out footer when
// ad text is enabled. The footer format is channel specific and must not be
// altered.
func ComposeFullMessage(body string, ch model.Channel, adTextEnabled bool, rejectNumber string) string {
	if !adTextEnabled {
		return body
	}
	prefix := adMarker
	if ch != model.ChannelSMS {
		prefix += " "
	}
	return prefix + body + "\n" + OptOutFooter(ch, rejectNumber)
}

// OptOutFooter is the compliance line appended to advertising messages.
func OptOutFooter(ch model.Channel, rejectNumber string) string {
	if ch == model.ChannelSMS {
		return smsOptOutLabel + digitsOnly(rejectNumber)
	}
	return lmsOptOutLabel + FormatRejectNumber(rejectNumber)
}

// FormatRejectNumber hyphenates ten digit numbers: 0801112222 -> 080-111-2222.
func FormatRejectNumber(num string) string {
	clean := strings.ReplaceAll(num, "-", "")
	if len(clean) == 10 {
		return clean[:3] + "-" + clean[3:6] + "-" + clean[6:]
	}
	return num
}

// TruncateToByteLimit cuts text at the last rune that still fits in limit.
func TruncateToByteLimit(text string, limit int) string {
	n := 0
	for i, r := range text {
		n += runeCost(r)
		if n > limit {
			return text[:i]
		}
	}
	return text
}

// FooterIntact reports whether a possibly truncated message still ends with
// the full opt-out footer.
func FooterIntact(text string, ch model.Channel, rejectNumber string) bool {
	return strings.HasSuffix(text, "\n"+OptOutFooter(ch, rejectNumber))
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

package service

import (
	"strings"
	"testing"

	"github.com/unclebandit/targetup-dispatch/internal/model"
)

func TestComputeBytes(t *testing.T) {
	cases := map[string]int{
		"":          0,
		"hello":     5,
		"안녕":        4,
		"(광고)":      6,
		"20% 할인":    8,
		"080수신거부":   11,
		"emoji 😀":   8,
		"\n":        1,
	}
	for in, want := range cases {
		if got := ComputeBytes(in); got != want {
			t.Errorf("ComputeBytes(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestComputeBytesMonotonic(t *testing.T) {
	s := ""
	prev := 0
	for _, r := range "abc가나다 123!?한글😀" {
		s += string(r)
		n := ComputeBytes(s)
		if n <= prev {
			t.Fatalf("bytes did not grow after appending %q: %d -> %d", r, prev, n)
		}
		if n != ComputeBytes(s) {
			t.Fatal("ComputeBytes is not stable")
		}
		prev = n
	}
}

func TestComposeFullMessage(t *testing.T) {
	body := "세일 안내"

	if got := ComposeFullMessage(body, model.ChannelSMS, false, "0801112222"); got != body {
		t.Errorf("ad text off should return body unchanged, got %q", got)
	}

	sms := ComposeFullMessage(body, model.ChannelSMS, true, "080-111-2222")
	if want := "(광고)세일 안내\n080수신거부0801112222"; sms != want {
		t.Errorf("SMS: got %q, want %q", sms, want)
	}

	lms := ComposeFullMessage(body, model.ChannelLMS, true, "0801112222")
	if want := "(광고) 세일 안내\n무료수신거부 080-111-2222"; lms != want {
		t.Errorf("LMS: got %q, want %q", lms, want)
	}

	mms := ComposeFullMessage(body, model.ChannelMMS, true, "15881234")
	if want := "(광고) 세일 안내\n무료수신거부 15881234"; mms != want {
		t.Errorf("MMS: got %q, want %q", mms, want)
	}
}

func TestFormatRejectNumber(t *testing.T) {
	cases := map[string]string{
		"0801112222":   "080-111-2222",
		"080-111-2222": "080-111-2222",
		"15881234":     "15881234",
		"":             "",
	}
	for in, want := range cases {
		if got := FormatRejectNumber(in); got != want {
			t.Errorf("FormatRejectNumber(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncateToByteLimit(t *testing.T) {
	if got := TruncateToByteLimit("abcdef", 4); got != "abcd" {
		t.Errorf("ascii: got %q", got)
	}
	// a two byte rune that would straddle the limit is dropped whole
	if got := TruncateToByteLimit("ab가나", 5); got != "ab가" {
		t.Errorf("rune boundary: got %q", got)
	}
	if got := TruncateToByteLimit("가나", 10); got != "가나" {
		t.Errorf("short text: got %q", got)
	}
	long := strings.Repeat("가", 100)
	if n := ComputeBytes(TruncateToByteLimit(long, SMSByteLimit)); n != SMSByteLimit {
		t.Errorf("expected %d bytes, got %d", SMSByteLimit, n)
	}
}

func TestFooterIntact(t *testing.T) {
	full := ComposeFullMessage(strings.Repeat("가", 50), model.ChannelSMS, true, "0801112222")
	if !FooterIntact(full, model.ChannelSMS, "0801112222") {
		t.Fatal("untruncated message should keep its footer")
	}
	cut := TruncateToByteLimit(full, SMSByteLimit)
	if FooterIntact(cut, model.ChannelSMS, "0801112222") {
		t.Fatal("truncated message should report a severed footer")
	}
}

func TestByteLimit(t *testing.T) {
	if ByteLimit(model.ChannelSMS) != 90 || ByteLimit(model.ChannelLMS) != 2000 || ByteLimit(model.ChannelMMS) != 2000 {
		t.Fatal("unexpected channel limits")
	}
}

package service

import (
	"testing"

	"github.com/unclebandit/targetup-dispatch/internal/model"
)

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"010-1234-5678":    "01012345678",
		"+82 10 1234 5678": "01012345678",
		"821012345678":     "01012345678",
		"1012345678":       "01012345678",
		"011-123-4567":     "0111234567",
		" 016 123 4567 ":   "0161234567",
		"0101234567":       "",
		"02-123-4567":      "",
		"01212345678":      "",
		"":                 "",
		"abc":              "",
	}
	for in, want := range cases {
		if got := NormalizePhone(in); got != want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeRecipients(t *testing.T) {
	in := []model.Recipient{
		{Phone: "010-1234-5678", Name: "A", Callback: "02-123-4567"},
		{Phone: "01012345678", Name: "A duplicate"},
		{Phone: "12345", Name: "bad"},
		{Phone: "", Name: "empty"},
		{Phone: "+82 10 9876 5432", Name: "B"},
	}
	out, invalid := NormalizeRecipients(in)
	if invalid != 2 {
		t.Errorf("expected 2 invalid, got %d", invalid)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 recipients, got %d: %+v", len(out), out)
	}
	if out[0].Phone != "01012345678" || out[0].Name != "A" || out[0].Callback != "021234567" {
		t.Errorf("unexpected first recipient %+v", out[0])
	}
	if out[1].Phone != "01098765432" {
		t.Errorf("unexpected second recipient %+v", out[1])
	}
	if in[0].Phone != "010-1234-5678" {
		t.Error("input slice was modified")
	}
}

package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn")
	log.Info("hidden")
	log.Warn("shown", "campaign_id", 7)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record written at warn level")
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "campaign_id=7") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestParseLevelDefault(t *testing.T) {
	if parseLevel(" DEBUG ").String() != "DEBUG" {
		t.Error("expected debug")
	}
	if parseLevel("verbose").String() != "INFO" {
		t.Error("unknown levels should fall back to info")
	}
}

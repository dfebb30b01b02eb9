package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTextLineCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger(InfoLevel, "text")
	l.SetOutput(&buf)

	l.Warn("retrying request", String("url", "https://cdn.example.com/seg.mp4"),
		Int("attempt", 2), Duration("delay", 300*time.Millisecond))

	line := buf.String()
	for _, want := range []string{"warn", "retrying request", "url=https://cdn.example.com/seg.mp4", "attempt=2", "delay=300ms"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestLevelThresholdSuppresses(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger(WarnLevel, "text")
	l.SetOutput(&buf)

	l.Debug("hidden")
	l.Info("hidden too")
	if buf.Len() != 0 {
		t.Fatalf("below-threshold lines were written: %q", buf.String())
	}
}

func TestJSONFormatAndErrField(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger(InfoLevel, "json")
	l.SetOutput(&buf)

	l.Error("segment fetch failed", Err(errors.New("boom")), Float64("position", 12.5))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["level"] != "error" || entry["msg"] != "segment fetch failed" {
		t.Errorf("entry = %v", entry)
	}
	if entry["error"] != "boom" {
		t.Errorf("error field = %v, want boom", entry["error"])
	}
}

func TestWithTagsEveryLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger(InfoLevel, "text")
	l.SetOutput(&buf)

	child := l.With(String("player_id", "p1"))
	child.Info("ready state changed", String("state", "playing"))

	if !strings.Contains(buf.String(), "player_id=p1") {
		t.Errorf("child line %q missing inherited field", buf.String())
	}
}

package util

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pterm/pterm"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	saved := pterm.DefaultLogger
	t.Cleanup(func() { pterm.DefaultLogger = saved })

	var buf bytes.Buffer
	pterm.DefaultLogger.Writer = &buf
	pterm.DefaultLogger.Level = pterm.LogLevelInfo
	EnableJSON()
	return &buf
}

func TestCallLogTagsLines(t *testing.T) {
	buf := captureLog(t)

	NewCallLog("caller", "case-7").Info("offer published after %d ms", 12)

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("not a JSON line: %q", buf.String())
	}
	if line["msg"] != "offer published after 12 ms" {
		t.Errorf("msg: got %v", line["msg"])
	}
	if line["role"] != "caller" || line["case"] != "case-7" {
		t.Errorf("missing call fields: %v", line)
	}
	if line["level"] != "INFO" {
		t.Errorf("level: got %v", line["level"])
	}
}

func TestDebugHiddenUntilEnabled(t *testing.T) {
	buf := captureLog(t)
	l := NewCallLog("receiver", "case-7")

	l.Debug("hidden")
	LogDebug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug printed at info level: %q", buf.String())
	}

	EnableDebug()
	l.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("debug line missing: %q", buf.String())
	}
}

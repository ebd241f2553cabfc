package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatalf("expected zero logger")
	}
	l.Info("dropped", String("k", "v"))
	l.With(Int("n", 1)).Error("dropped too")
}

func TestJSONLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSON(&buf, "debug").With(String("comp", "test"))
	l.Warn("hello", Int("n", 3), Err(errors.New("boom")))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v (%q)", err, buf.String())
	}
	if m["message"] != "hello" || m["comp"] != "test" || m["level"] != "warn" {
		t.Fatalf("unexpected record: %v", m)
	}
	if m["n"] != float64(3) {
		t.Fatalf("n = %v", m["n"])
	}
	if !strings.Contains(buf.String(), "boom") {
		t.Fatalf("error missing: %s", buf.String())
	}
}

func TestJSONLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSON(&buf, "warn")
	l.Debug("quiet")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered, got %q", buf.String())
	}
	if l.Enabled(LevelDebug) {
		t.Fatalf("debug should be disabled")
	}
}

func TestServiceApplyFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	t.Cleanup(func() { _ = svc.Close() })

	log.Info("to file")
	svc.Apply(Config{Level: "error", File: FileConfig{Enabled: true, Path: path}})
	if log.Enabled(LevelInfo) {
		t.Fatalf("info should be disabled after Apply")
	}
}

func TestRedactAndRawJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSON(&buf, "info")
	l.Info("conn",
		Redact("token", "abcdefghijkl"),
		Redact("short", "abc"),
		RawJSON("payload", []byte(`{"window":"22:00"}`)),
		RawJSON("junk", []byte(`{not json`)),
	)

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v (%q)", err, buf.String())
	}
	if m["token"] != "***ijkl" || m["short"] != "***" {
		t.Fatalf("redaction: %v", m)
	}
	if p, ok := m["payload"].(map[string]any); !ok || p["window"] != "22:00" {
		t.Fatalf("payload=%v", m["payload"])
	}
	if m["junk"] != "{not json" {
		t.Fatalf("junk=%v", m["junk"])
	}
	if strings.Contains(buf.String(), "abcdefgh") {
		t.Fatalf("secret leaked: %s", buf.String())
	}
}

func TestValidFormat(t *testing.T) {
	for _, f := range []string{"", "console", "JSON"} {
		if !ValidFormat(f) {
			t.Fatalf("%q rejected", f)
		}
	}
	if ValidFormat("xml") {
		t.Fatalf("xml accepted")
	}
}

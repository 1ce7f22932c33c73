package logging

import (
	"bytes"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type testStringer string

func (s testStringer) String() string { return string(s) }

func TestInitAndLoggingToFile(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "nested", "kernelbench.log")

	if err := Init(logPath, false); err != nil {
		t.Fatalf("Init error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close()
		SetDebug(false)
	})

	LogEvent("hello %s", "world")
	LogDebug("hidden %d", 1)
	SetDebug(true)
	LogDebug("visible %d", 2)
	LogPhase("warmup", "matmul", "cpu", "rounds=1")
	_ = Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "hello world") {
		t.Fatalf("expected LogEvent content, got: %s", content)
	}
	if strings.Contains(content, "hidden 1") {
		t.Fatalf("debug output written while disabled: %s", content)
	}
	if !strings.Contains(content, "[DEBUG] visible 2") {
		t.Fatalf("expected debug content, got: %s", content)
	}
	if !strings.Contains(content, "[WARMUP] workload=matmul backend=cpu payload=rounds=1") {
		t.Fatalf("expected phase content, got: %s", content)
	}
}

func TestBuildPhaseMessageDefaults(t *testing.T) {
	msg := buildPhaseMessage(" measure ", " ", "", map[string]any{"ok": true})
	if !strings.Contains(msg, "[MEASURE]") {
		t.Fatalf("expected uppercased phase, got: %s", msg)
	}
	if !strings.Contains(msg, "workload=unknown") || !strings.Contains(msg, "backend=unknown") {
		t.Fatalf("expected defaults, got: %s", msg)
	}
	if !strings.Contains(msg, "payload={\"ok\":true}") {
		t.Fatalf("expected payload json, got: %s", msg)
	}
}

func TestFormatPayload(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{"  ", `""`},
		{[]byte{}, "[]"},
		{[]byte("raw"), "raw"},
		{errors.New("boom"), "boom"},
		{testStringer("str"), "str"},
		{[]int{1, 2}, "[1,2]"},
		{func() {}, ""},
	}
	for _, tc := range cases {
		got := formatPayload(tc.in)
		if tc.want == "" {
			if got == "" {
				t.Fatalf("expected fallback formatting for %T", tc.in)
			}
			continue
		}
		if got != tc.want {
			t.Fatalf("formatPayload(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestInitConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	if err := Init("", false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	log.SetOutput(&buf)
	LogEvent("captured")
	if !strings.Contains(buf.String(), "captured") {
		t.Fatalf("expected output, got %q", buf.String())
	}
}

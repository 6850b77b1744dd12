package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, "INFO": slog.LevelInfo, "warn": slog.LevelWarn,
		"error": slog.LevelError, "bogus": slog.LevelInfo, "": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	l, c, err := New(Config{Level: "warn", Console: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = c.Close() }()
	l.Info("hidden")
	l.Warn("shown", "unit", "echo")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "unit=echo") {
		t.Fatalf("warn missing: %q", out)
	}
	if strings.Contains(out, "time=") {
		t.Fatalf("timestamps disabled but present: %q", out)
	}
}

func TestNewDebugAndColor(t *testing.T) {
	var buf bytes.Buffer
	l, _, err := New(Config{Level: "error", Debug: true, Color: true, Timestamps: true, Console: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	l.With("unit", "x").Debug("dbg")
	out := buf.String()
	if !strings.Contains(out, "\033[36mDEBUG") || !strings.Contains(out, "unit=x") {
		t.Fatalf("expected colored debug line: %q", out)
	}
	if !strings.Contains(out, "time=") {
		t.Fatalf("expected time attribute: %q", out)
	}
}

func TestNewWithFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "sup", "botvisor.log")
	l, c, err := New(Config{Console: &buf, File: path})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	l.Info("to both")
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), "to both") || !strings.Contains(buf.String(), "to both") {
		t.Fatalf("record should reach both handlers")
	}
}

func TestConsoleLines(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)
	c.Output("echo", []byte("  hello world \n"))
	c.Error("echo", []byte("bad thing\n"))
	c.Output("echo", []byte(" \n\t"))
	want := "[echo] hello world\n[echo] ❌ ERROR: bad thing\n"
	if buf.String() != want {
		t.Fatalf("console = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	c = NewConsole(&buf, true)
	c.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.Local) }
	c.Printf("%d units", 2)
	if buf.String() != "[2024-05-06 07:08:09] 2 units\n" {
		t.Fatalf("printf = %q", buf.String())
	}
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/botvisor/internal/history"
)

func TestSQLiteSink_Integration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	sink, err := New("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()
	events := []history.Event{
		{Type: history.EventStart, OccurredAt: time.Now(), Unit: "echo", PID: 100},
		{Type: history.EventExit, OccurredAt: time.Now(), Unit: "echo", PID: 100, ExitCode: 1},
		{Type: history.EventRestartScheduled, OccurredAt: time.Now(), Unit: "echo", Attempt: 1, Detail: "attempt 1/5"},
		{Type: history.EventStart, OccurredAt: time.Now(), Unit: "other", PID: 200},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Failed to send %s event: %v", e.Type, err)
		}
	}

	n, err := sink.Count(ctx, "echo")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 events for echo, got %d", n)
	}

	var sig, detail *string
	row := sink.db.QueryRowContext(ctx, `SELECT signal, detail FROM unit_history WHERE event = 'restart_scheduled'`)
	if err := row.Scan(&sig, &detail); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if sig != nil || detail == nil || *detail != "attempt 1/5" {
		t.Errorf("unexpected row signal=%v detail=%v", sig, detail)
	}
}

func TestSQLiteSink_Memory(t *testing.T) {
	sink, err := New("sqlite://:memory:")
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() { _ = sink.Close() }()
	if err := sink.Send(context.Background(), history.Event{Type: history.EventGaveUp, Unit: "x"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if n, _ := sink.Count(context.Background(), "x"); n != 1 {
		t.Fatalf("count = %d", n)
	}
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}

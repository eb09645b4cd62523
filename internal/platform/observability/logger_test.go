package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/recophone/api/internal/platform/requestctx"
)

func TestEventLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := EventLogger(zap.New(core), "quotes log")
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "t-1"})

	log(ctx, "quote.session.created", map[string]any{"sessionId": "s1"})
	log(ctx, "quote.finalize.numbering_failed", nil)
	log(ctx, "counter.exhausted", map[string]any{"series": "RP"})

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := []zapcore.Level{zapcore.DebugLevel, zapcore.WarnLevel, zapcore.WarnLevel}
	for i, entry := range entries {
		if entry.Level != want[i] {
			t.Fatalf("entry %d: expected %s, got %s", i, want[i], entry.Level)
		}
		if entry.Message != "quotes log" {
			t.Fatalf("entry %d: unexpected message %q", i, entry.Message)
		}
		if entry.ContextMap()["trace_id"] != "t-1" {
			t.Fatalf("entry %d: missing trace id", i)
		}
	}
	if entries[0].ContextMap()["sessionId"] != "s1" {
		t.Fatalf("expected sessionId field, got %v", entries[0].ContextMap())
	}
}

func TestPrintfAdapter(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	adapter := NewPrintfAdapter(zap.New(core))

	adapter.Printf("idempotency: store error: %v\n", "boom")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Message != "idempotency: store error: boom" {
		t.Fatalf("unexpected message %q", entries[0].Message)
	}

	// nil logger must not panic
	NewPrintfAdapter(nil).Printf("ignored %d", 1)
}

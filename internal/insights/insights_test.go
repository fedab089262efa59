package insights

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestService(t *testing.T, delayMs string) *Service {
	t.Helper()
	t.Setenv("SIGNAL_INSIGHTS_DELAY_MS", delayMs)
	return NewService(NewServiceParams{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestGenerateSynthesizedPayload(t *testing.T) {
	s := newTestService(t, "0")

	data := s.Generate(context.Background(), "standup", "Alice")

	if !strings.Contains(data.Summary, "standup") || !strings.Contains(data.Summary, "Alice") {
		t.Errorf("summary = %q", data.Summary)
	}
	if len(data.ActionItems) != 2 {
		t.Fatalf("actionItems = %v", data.ActionItems)
	}
	if !strings.Contains(data.ActionItems[0], "Alice") {
		t.Errorf("first action item = %q", data.ActionItems[0])
	}
	if data.Sentiment == "" {
		t.Error("sentiment missing")
	}

	// The correlation tag makes successive summaries distinct.
	again := s.Generate(context.Background(), "standup", "Alice")
	if again.Summary == data.Summary {
		t.Error("summaries should carry distinct correlation tags")
	}
}

func TestGenerateHonorsContextCancel(t *testing.T) {
	s := newTestService(t, "5000")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	s.Generate(ctx, "r1", "Alice")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Generate ignored canceled context, took %s", elapsed)
	}
}

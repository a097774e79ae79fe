package ledger

import (
	"strings"
	"testing"
	"time"

	"github.com/xela07ax/latch-escrow/internal/domain"
)

type captureSink struct {
	entries []domain.ActivityEntry
}

func (c *captureSink) Log(e domain.ActivityEntry) { c.entries = append(c.entries, e) }

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)
	l := New(WithClock(func() time.Time { return at }))

	e := l.Append("hello")
	if !strings.HasPrefix(e.ID, "a_") {
		t.Fatalf("unexpected id %q", e.ID)
	}
	if e.Timestamp != at.UnixMilli() {
		t.Fatalf("timestamp = %d, want %d", e.Timestamp, at.UnixMilli())
	}
	if e.Failed() {
		t.Fatal("plain entry must not be tagged failed")
	}
}

func TestListIsChronologicalAndCopied(t *testing.T) {
	l := New()
	first := l.Append("one")
	second := l.Fail("two")

	list := l.List()
	if len(list) != 2 || list[0].ID != first.ID || list[1].ID != second.ID {
		t.Fatalf("unexpected order: %+v", list)
	}
	if !list[1].Failed() || list[1].Message != "✖ two" {
		t.Fatalf("failure entry not tagged: %q", list[1].Message)
	}

	list[0].Message = "tampered"
	if l.List()[0].Message != "one" {
		t.Fatal("ledger entry mutated through List result")
	}
}

func TestUniqueIDs(t *testing.T) {
	l := New()
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		e := l.Append("x")
		if seen[e.ID] {
			t.Fatalf("duplicate id %s", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestClearAndRestore(t *testing.T) {
	sink := &captureSink{}
	l := New(WithSink(sink))
	l.Append("a")
	l.Append("b")
	if len(sink.entries) != 2 {
		t.Fatalf("sink got %d entries, want 2", len(sink.entries))
	}

	saved := l.List()
	l.Clear()
	if l.Len() != 0 {
		t.Fatalf("expected empty ledger, got %d", l.Len())
	}

	l.Restore(saved)
	if l.Len() != 2 {
		t.Fatalf("restore: got %d entries", l.Len())
	}
	if len(sink.entries) != 2 {
		t.Fatal("restore must not re-notify sinks")
	}
}

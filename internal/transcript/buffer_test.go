package transcript

import (
	"fmt"
	"testing"

	"chatdesk/internal/chat"
)

func TestAppendPreservesOrder(t *testing.T) {
	var b Buffer
	const n = 50
	for i := 0; i < n; i++ {
		b.Append(chat.UserMessage(fmt.Sprintf("m%d", i)))
	}
	snap := b.Snapshot()
	if len(snap) != n || b.Len() != n {
		t.Fatalf("len=%d Len()=%d, want %d", len(snap), b.Len(), n)
	}
	for i, msg := range snap {
		if msg.Content != fmt.Sprintf("m%d", i) {
			t.Fatalf("snap[%d]=%q", i, msg.Content)
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	b := New([]chat.Message{chat.UserMessage("a")})
	snap := b.Snapshot()
	snap[0].Content = "mutated"
	_ = append(snap, chat.AssistantMessage("extra"))
	if got := b.Snapshot(); len(got) != 1 || got[0].Content != "a" {
		t.Fatalf("buffer changed through snapshot: %v", got)
	}
}

func TestReplaceAllAndClear(t *testing.T) {
	src := []chat.Message{chat.UserMessage("x"), chat.AssistantMessage("y")}
	b := New([]chat.Message{chat.UserMessage("old")})
	b.ReplaceAll(src)
	src[0].Content = "changed after replace"
	got := b.Snapshot()
	if len(got) != 2 || got[0].Content != "x" {
		t.Fatalf("ReplaceAll snapshot=%v", got)
	}
	last, ok := b.Last()
	if !ok || last.Role != chat.RoleAssistant || last.Content != "y" {
		t.Fatalf("Last()=%v,%v", last, ok)
	}

	b.Clear()
	if b.Len() != 0 || len(b.Snapshot()) != 0 {
		t.Fatalf("Clear left %d messages", b.Len())
	}
	if _, ok := b.Last(); ok {
		t.Fatalf("Last() on empty buffer reported ok")
	}
}

package transcript

import (
	"sync"

	"chatdesk/internal/chat"
)

// Buffer 当前会话的内存消息序列，只追加或整体替换
// Buffer holds the active session's messages in memory; it is appended to or replaced wholesale.
//
// The zero value is an empty buffer ready to use.
type Buffer struct {
	mu       sync.RWMutex
	messages []chat.Message
}

// New returns a buffer seeded with a copy of messages.
func New(messages []chat.Message) *Buffer {
	return &Buffer{messages: chat.Clone(messages)}
}

// Append adds msg at the end.
func (b *Buffer) Append(msg chat.Message) {
	b.mu.Lock()
	b.messages = append(b.messages, msg)
	b.mu.Unlock()
}

// ReplaceAll 丢弃现有内容并替换为 messages 的副本（加载会话时使用）
// ReplaceAll discards the current content in favour of a copy of messages.
func (b *Buffer) ReplaceAll(messages []chat.Message) {
	b.mu.Lock()
	b.messages = chat.Clone(messages)
	b.mu.Unlock()
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.messages = nil
	b.mu.Unlock()
}

// Snapshot 返回全部消息的副本，不做截断 / Snapshot returns a copy of every message, untruncated
func (b *Buffer) Snapshot() []chat.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]chat.Message, len(b.messages))
	copy(out, b.messages)
	return out
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.messages)
}

// Last returns the final message, if any.
func (b *Buffer) Last() (chat.Message, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.messages) == 0 {
		return chat.Message{}, false
	}
	return b.messages[len(b.messages)-1], true
}

package storage

import (
	"strings"

	"chatdesk/internal/chat"
)

// SessionMeta 会话的可选元数据
// SessionMeta holds optional per-session metadata.
type SessionMeta struct {
	Title     string `json:"title,omitempty"`
	Model     string `json:"model,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Document 单个会话的完整持久化结构
// Document is the persisted structure of one session.
type Document struct {
	CurrentSession string         `json:"current_session"`
	Messages       []chat.Message `json:"messages"`
	SessionMeta
}

// rawDocument detects missing required fields, which a plain Document cannot.
type rawDocument struct {
	CurrentSession *string         `json:"current_session"`
	Messages       *[]chat.Message `json:"messages"`
	SessionMeta
}

const titleMaxRunes = 48

func inferTitle(messages []chat.Message) string {
	for _, msg := range messages {
		if msg.Role != chat.RoleUser {
			continue
		}
		t := strings.Join(strings.Fields(msg.Content), " ")
		if t == "" {
			continue
		}
		runes := []rune(t)
		if len(runes) > titleMaxRunes {
			return string(runes[:titleMaxRunes]) + "..."
		}
		return t
	}
	return ""
}

package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"chatdesk/internal/chat"
	"chatdesk/internal/config"
)

// ChatRequest 封装一次模型请求：系统指令 + 完整对话历史（末尾为本轮用户消息）
// ChatRequest wraps one model call: the system instruction plus the full history,
// which already ends with this turn's user message.
type ChatRequest struct {
	Model     string
	System    string
	Messages  []chat.Message
	MaxTokens int
}

// ModelInfo 模型基本信息
// ModelInfo describes a model
type ModelInfo struct {
	ID      string
	OwnedBy string
}

// Stream 拉取式的增量文本序列；有限且不可重启
// Stream is a pull-based, finite, non-restartable sequence of text fragments.
//
//	for s.Next() {
//		total += s.Fragment()
//	}
//	if err := s.Err(); err != nil { ... }
type Stream interface {
	// Next 阻塞直到下一个非空片段或流结束 / Next blocks until the next non-empty fragment or the end
	Next() bool
	// Fragment returns the fragment made current by the last successful Next.
	Fragment() string
	// Err returns the error that ended the stream, nil on normal completion.
	Err() error
	Close() error
}

// Provider 模型提供方接口
// Provider is the model backend interface
type Provider interface {
	// Stream 发起一次流式请求 / Stream issues one streaming request
	Stream(ctx context.Context, req ChatRequest) (Stream, error)

	// ListModels 列出可用模型
	// ListModels lists available models
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Name 返回 provider 名称
	// Name returns the provider name
	Name() string

	// CurrentModel 返回当前活跃模型
	// CurrentModel returns the current active model
	CurrentModel() string

	// SetModel 切换活跃模型
	// SetModel switches the active model
	SetModel(model string) error
}

// New 按 provider.kind 构造后端
// New builds the backend selected by cfg.Kind.
func New(cfg config.ProviderConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", config.ProviderOpenAI:
		return NewOpenAIProvider(cfg), nil
	case config.ProviderCompat:
		return NewCompatProvider(cfg), nil
	case config.ProviderOpenAIGo:
		return NewOpenAIGoProvider(cfg), nil
	case config.ProviderAnthropic:
		return NewAnthropicProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
}

// modelState 被各后端嵌入，保护可切换的当前模型
// modelState is embedded by every backend and guards the switchable current model.
type modelState struct {
	mu    sync.RWMutex
	model string
}

func (m *modelState) CurrentModel() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.model
}

func (m *modelState) SetModel(model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return fmt.Errorf("model is empty")
	}
	m.mu.Lock()
	m.model = model
	m.mu.Unlock()
	return nil
}

func (m *modelState) resolve(req ChatRequest) string {
	if model := strings.TrimSpace(req.Model); model != "" {
		return model
	}
	return m.CurrentModel()
}

func newHTTPClient(timeoutMS int) *http.Client {
	client := &http.Client{}
	if timeoutMS > 0 {
		client.Timeout = time.Duration(timeoutMS) * time.Millisecond
	}
	return client
}

// wireMessages 组装发送给 OpenAI 风格接口的消息：system（可为空）+ 历史
// wireMessages assembles the OpenAI-style message list: the (possibly empty) system message, then history.
func wireMessages(req ChatRequest) []chat.Message {
	out := make([]chat.Message, 0, len(req.Messages)+1)
	out = append(out, chat.SystemMessage(req.System))
	out = append(out, req.Messages...)
	return out
}

package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"chatdesk/internal/chat"
	"chatdesk/internal/config"
	"chatdesk/internal/contextmgr"
	"chatdesk/internal/i18n"
	"chatdesk/internal/provider"
	"chatdesk/internal/storage"
	"chatdesk/internal/telemetry"
	"chatdesk/internal/transcript"
)

// Orchestrator 会话控制器：持有当前会话 ID 与消息缓冲，协调存储与模型调用
// Orchestrator is the session controller. It owns the current session id and the
// transcript buffer, and drives the store and the provider on user actions.
type Orchestrator struct {
	store        storage.Store
	provider     provider.Provider
	buffer       *transcript.Buffer
	ids          *storage.IDGenerator
	systemPrompt string
	maxTokens    int
	models       []string
	backend      string
	configDir    string
	logger       *slog.Logger
	tel          *telemetry.Telemetry
	tr           *i18n.I18n

	mu        sync.RWMutex
	sessionID string
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.Noop()
	}
	tr := opts.I18n
	if tr == nil {
		tr = i18n.Global()
	}
	backend := opts.Backend
	if backend == "" {
		backend = storage.BackendJSON
	}
	o := &Orchestrator{
		store:        opts.Store,
		provider:     opts.Provider,
		buffer:       transcript.New(nil),
		ids:          storage.NewIDGenerator(opts.Now, opts.Store.Exists),
		systemPrompt: strings.TrimSpace(opts.SystemPrompt),
		maxTokens:    opts.MaxTokens,
		models:       append([]string(nil), opts.Models...),
		backend:      backend,
		configDir:    strings.TrimSpace(opts.ConfigDir),
		logger:       logger,
		tel:          tel,
		tr:           tr,
	}
	o.sessionID = o.ids.Next()
	return o, nil
}

// CurrentSessionID 返回当前会话 ID（可能尚未持久化）
// CurrentSessionID returns the active session id, which may not be persisted yet.
func (o *Orchestrator) CurrentSessionID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sessionID
}

func (o *Orchestrator) setSessionID(id string) {
	o.mu.Lock()
	o.sessionID = id
	o.mu.Unlock()
}

// Messages 返回当前会话消息的副本
// Messages returns a copy of the active transcript.
func (o *Orchestrator) Messages() []chat.Message {
	return o.buffer.Snapshot()
}

func (o *Orchestrator) CurrentModel() string {
	return o.provider.CurrentModel()
}

func (o *Orchestrator) ProviderName() string {
	return o.provider.Name()
}

// SetModel 切换模型；配置了项目目录时写回 .chatdesk/config.json
// SetModel switches the model and, when a project dir is configured, persists it.
func (o *Orchestrator) SetModel(model string) error {
	if err := o.provider.SetModel(model); err != nil {
		return err
	}
	if o.configDir != "" {
		if err := config.WriteProviderModel(o.configDir, o.provider.CurrentModel()); err != nil {
			o.logger.Warn("persist model failed", "dir", o.configDir, "error", err)
		}
	}
	return nil
}

// ListModels 优先向 provider 查询；失败时退回配置中的模型列表并返回错误
// ListModels asks the provider first. On failure it falls back to the configured
// list and still returns the error.
func (o *Orchestrator) ListModels(ctx context.Context) ([]string, error) {
	infos, err := o.provider.ListModels(ctx)
	if err != nil || len(infos) == 0 {
		return append([]string(nil), o.models...), err
	}
	out := make([]string, 0, len(infos))
	for _, m := range infos {
		out = append(out, m.ID)
	}
	return out, nil
}

// ContextStats 估算下一轮请求的上下文 token 数
// ContextStats estimates the prompt size of the next request.
func (o *Orchestrator) ContextStats() ContextStats {
	messages := o.buffer.Snapshot()
	return ContextStats{
		EstimatedTokens: contextmgr.EstimateTokens(o.provider.CurrentModel(), o.systemPrompt, messages),
		MessageCount:    len(messages),
	}
}

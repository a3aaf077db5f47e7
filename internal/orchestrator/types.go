package orchestrator

import (
	"log/slog"
	"time"

	"chatdesk/internal/i18n"
	"chatdesk/internal/provider"
	"chatdesk/internal/storage"
	"chatdesk/internal/telemetry"
)

// DisplayFunc 每收到一个片段后以累计文本回调，用于刷新显示
// DisplayFunc receives the running total after every fragment.
type DisplayFunc = func(total string)

type Options struct {
	Store        storage.Store
	Provider     provider.Provider
	SystemPrompt string
	MaxTokens    int
	Models       []string // configured models, shown by /models when the provider cannot list
	Backend      string   // storage backend name, for metrics
	ConfigDir    string   // project dir for .chatdesk/config.json persist (/model); empty disables
	Logger       *slog.Logger
	Telemetry    *telemetry.Telemetry
	I18n         *i18n.I18n
	Now          func() time.Time
}

// CommandResult "/" 命令的执行结果
// CommandResult is the outcome of a "/" command.
type CommandResult struct {
	Output string
	// SessionChanged 当前会话被切换或重置，界面需要重绘消息
	SessionChanged bool
	Exit           bool
}

// ContextStats 当前上下文用量 / current context usage
type ContextStats struct {
	EstimatedTokens int
	MessageCount    int
}

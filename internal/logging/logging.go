package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"chatdesk/internal/config"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// FileName 日志文件名 / name of the rotated log file
const FileName = "chatdesk.log"

// New 初始化写入滚动文件的 JSON 结构化日志
// 只写文件不写 stdout，否则会打乱 REPL/TUI 输出
// New initializes structured JSON logging into a rotated file. It never writes to
// stdout, which belongs to the REPL/TUI.
func New(cfg config.LogConfig) (*slog.Logger, io.Closer, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return nil, nil, fmt.Errorf("log dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(dir, FileName),
		MaxSize:    orDefault(cfg.MaxMB, 10), // MB
		MaxBackups: orDefault(cfg.MaxBackups, 3),
		MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		Compress:   true,
	}

	handler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	})
	return slog.New(handler), rotator, nil
}

// Discard 丢弃所有记录的 logger，用于测试和日志初始化失败时
// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel 未知级别按 info 处理 / unknown levels map to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

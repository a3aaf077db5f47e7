package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"chatdesk/internal/config"
	"chatdesk/internal/i18n"
	"chatdesk/internal/logging"
	"chatdesk/internal/orchestrator"
	"chatdesk/internal/provider"
	"chatdesk/internal/repl"
	"chatdesk/internal/storage"
	"chatdesk/internal/telemetry"
	"chatdesk/internal/tui"

	"github.com/spf13/cobra"
)

const historyFileName = ".repl_history"

// runtimeDeps 各子命令共享的基础设施
// runtimeDeps is the infrastructure shared by every subcommand.
type runtimeDeps struct {
	cfg    config.Config
	tr     *i18n.I18n
	logger *slog.Logger
	tel    *telemetry.Telemetry
	store  storage.Store

	logCloser io.Closer
}

// setup 加载配置并依次初始化 i18n、日志、遥测与存储
// setup loads config, then brings up i18n, logging, telemetry and storage in order.
func setup(ctx context.Context) (*runtimeDeps, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	deps := &runtimeDeps{cfg: cfg}
	deps.tr = i18n.Init(cfg.UI.Lang)

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		// 日志不可用不影响对话 / chat still works without a log file
		fmt.Fprintf(os.Stderr, "logging disabled: %v\n", err)
		logger, closer = logging.Discard(), nil
	}
	deps.logger = logger
	deps.logCloser = closer
	slog.SetDefault(logger)

	tel, err := telemetry.Init(ctx, cfg.Telemetry, version)
	if err != nil {
		logger.Warn("telemetry disabled", "error", err)
		tel = telemetry.Noop()
	}
	deps.tel = tel

	store, err := storage.Open(storage.Options{
		Backend:     cfg.Storage.Backend,
		SessionsDir: cfg.Storage.SessionsDir,
		DBPath:      cfg.Storage.DBPath,
		Logger:      logger,
	})
	if err != nil {
		deps.close(ctx)
		return nil, err
	}
	deps.store = store
	return deps, nil
}

func (d *runtimeDeps) close(ctx context.Context) {
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Warn("close store failed", "error", err)
		}
	}
	if err := d.tel.Shutdown(ctx); err != nil {
		d.logger.Warn("telemetry shutdown failed", "error", err)
	}
	if d.logCloser != nil {
		_ = d.logCloser.Close()
	}
}

func runChat(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	deps, err := setup(ctx)
	if err != nil {
		return err
	}
	defer deps.close(context.Background())

	cfg := deps.cfg
	client, err := provider.New(cfg.Provider)
	if err != nil {
		return err
	}

	projectDir, err := os.Getwd()
	if err != nil {
		projectDir = ""
	}
	orch, err := orchestrator.New(orchestrator.Options{
		Store:        deps.store,
		Provider:     client,
		SystemPrompt: cfg.Chat.SystemPrompt,
		MaxTokens:    cfg.Provider.MaxTokens,
		Models:       cfg.Provider.Models,
		Backend:      cfg.Storage.Backend,
		ConfigDir:    projectDir,
		Logger:       deps.logger,
		Telemetry:    deps.tel,
		I18n:         deps.tr,
	})
	if err != nil {
		return err
	}
	deps.logger.Info("chatdesk started", "version", version, "session", orch.CurrentSessionID(),
		"provider", client.Name(), "model", client.CurrentModel(), "backend", cfg.Storage.Backend)

	tuiMode := cfg.UI.Mode == "tui"
	if cmd.Flags().Changed("tui") {
		tuiMode = useTUI
	}
	if tuiMode {
		return tui.Run(ctx, orch, deps.tr)
	}

	loop, err := repl.NewLoop(orch, repl.Options{
		HistoryPath: filepath.Join(cfg.Storage.SessionsDir, historyFileName),
		Markdown:    cfg.UI.Markdown,
		I18n:        deps.tr,
	})
	if err != nil {
		return err
	}
	defer loop.Close()
	return loop.Run(ctx)
}

func runConfigInit(cmd *cobra.Command) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve cwd: %w", err)
	}
	path, err := config.InitProjectConfigScaffold(wd)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(path))
	return nil
}

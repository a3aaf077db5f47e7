package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ProviderConfig struct {
	Kind       string   `json:"kind" yaml:"kind"`
	BaseURL    string   `json:"base_url" yaml:"base_url"`
	Model      string   `json:"model" yaml:"model"`
	Models     []string `json:"models" yaml:"models"`
	APIKey     string   `json:"api_key" yaml:"api_key"`
	TimeoutMS  int      `json:"timeout_ms" yaml:"timeout_ms"`
	MaxRetries int      `json:"max_retries" yaml:"max_retries"`
	MaxTokens  int      `json:"max_tokens" yaml:"max_tokens"`
}

type ChatConfig struct {
	// SystemPrompt 每轮请求前置的系统指令，可为空
	// SystemPrompt is sent ahead of the history on every turn; may be empty.
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt"`
}

type StorageConfig struct {
	Backend     string `json:"backend" yaml:"backend"`
	SessionsDir string `json:"sessions_dir" yaml:"sessions_dir"`
	DBPath      string `json:"db_path" yaml:"db_path"`
}

type LogConfig struct {
	Dir        string `json:"dir" yaml:"dir"`
	Level      string `json:"level" yaml:"level"`
	MaxMB      int    `json:"max_mb" yaml:"max_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
}

type TelemetryConfig struct {
	Enabled            bool   `json:"enabled" yaml:"enabled"`
	Dir                string `json:"dir" yaml:"dir"`
	ServiceName        string `json:"service_name" yaml:"service_name"`
	MetricIntervalSecs int    `json:"metric_interval_secs" yaml:"metric_interval_secs"`
}

type UIConfig struct {
	Lang     string `json:"lang" yaml:"lang"`
	Mode     string `json:"mode" yaml:"mode"`
	Markdown bool   `json:"markdown" yaml:"markdown"`
}

type Config struct {
	Provider  ProviderConfig  `json:"provider" yaml:"provider"`
	Chat      ChatConfig      `json:"chat" yaml:"chat"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Log       LogConfig       `json:"log" yaml:"log"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	UI        UIConfig        `json:"ui" yaml:"ui"`
}

type fileChatConfig struct {
	SystemPrompt *string `json:"system_prompt" yaml:"system_prompt"`
}

type fileTelemetryConfig struct {
	Enabled            *bool   `json:"enabled" yaml:"enabled"`
	Dir                *string `json:"dir" yaml:"dir"`
	ServiceName        *string `json:"service_name" yaml:"service_name"`
	MetricIntervalSecs *int    `json:"metric_interval_secs" yaml:"metric_interval_secs"`
}

type fileUIConfig struct {
	Lang     *string `json:"lang" yaml:"lang"`
	Mode     *string `json:"mode" yaml:"mode"`
	Markdown *bool   `json:"markdown" yaml:"markdown"`
}

type fileConfig struct {
	Provider  *ProviderConfig      `json:"provider" yaml:"provider"`
	Chat      *fileChatConfig      `json:"chat" yaml:"chat"`
	Storage   *StorageConfig       `json:"storage" yaml:"storage"`
	Log       *LogConfig           `json:"log" yaml:"log"`
	Telemetry *fileTelemetryConfig `json:"telemetry" yaml:"telemetry"`
	UI        *fileUIConfig        `json:"ui" yaml:"ui"`
}

func Default() Config {
	return Config{
		Provider: ProviderConfig{
			Kind:       DefaultProviderKind,
			BaseURL:    DefaultBaseURL,
			Model:      DefaultModel,
			Models:     []string{DefaultModel, "deepseek-reasoner"},
			TimeoutMS:  120000,
			MaxRetries: 2,
			MaxTokens:  4096,
		},
		Storage: StorageConfig{
			Backend:     "json",
			SessionsDir: DefaultSessionsDir,
		},
		Log: LogConfig{
			Dir:        "~/.chatdesk/logs",
			Level:      "info",
			MaxMB:      10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Telemetry: TelemetryConfig{
			Enabled:            false,
			Dir:                "~/.chatdesk/telemetry",
			ServiceName:        "chatdesk",
			MetricIntervalSecs: 30,
		},
		UI: UIConfig{
			Mode:     "repl",
			Markdown: true,
		},
	}
}

// Load 按优先级合并配置：默认值 < 全局文件 < 项目文件 < 环境变量
// Load merges configuration in precedence order: defaults < global file < project file < env.
func Load(path string) (Config, error) {
	cfg := Default()

	for _, globalPath := range globalConfigPaths() {
		if err := mergeFromFile(&cfg, globalPath); err != nil {
			return Config{}, err
		}
	}

	resolvedPath := strings.TrimSpace(path)
	if envPath := strings.TrimSpace(os.Getenv("CHATDESK_CONFIG_PATH")); envPath != "" {
		resolvedPath = envPath
	}
	if resolvedPath == "" {
		resolvedPath = findProjectConfigPath()
	}
	if err := mergeFromFile(&cfg, resolvedPath); err != nil {
		return Config{}, err
	}

	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return applyEnv(cfg)
}

func globalConfigPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	dir := filepath.Join(home, ".chatdesk")
	return []string{
		filepath.Join(dir, "config.json"),
		filepath.Join(dir, "config.yaml"),
	}
}

func findProjectConfigPath() string {
	candidates := []string{
		"chatdesk.config.json",
		"chatdesk.config.yaml",
		".chatdesk/config.json",
		".chatdesk/config.yaml",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func mergeFromFile(cfg *Config, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}

	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %q: %w", resolved, err)
	}

	var fileCfg fileConfig
	switch strings.ToLower(filepath.Ext(resolved)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return fmt.Errorf("parse config %q: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(stripJSONComments(data), &fileCfg); err != nil {
			return fmt.Errorf("parse config %q: %w", resolved, err)
		}
	}
	applyFileConfig(cfg, fileCfg)
	return nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.Provider != nil {
		cfg.Provider = mergeProvider(cfg.Provider, *fc.Provider)
	}
	if fc.Chat != nil && fc.Chat.SystemPrompt != nil {
		cfg.Chat.SystemPrompt = *fc.Chat.SystemPrompt
	}
	if fc.Storage != nil {
		cfg.Storage = mergeStorage(cfg.Storage, *fc.Storage)
	}
	if fc.Log != nil {
		cfg.Log = mergeLog(cfg.Log, *fc.Log)
	}
	if fc.Telemetry != nil {
		if fc.Telemetry.Enabled != nil {
			cfg.Telemetry.Enabled = *fc.Telemetry.Enabled
		}
		if fc.Telemetry.Dir != nil {
			cfg.Telemetry.Dir = *fc.Telemetry.Dir
		}
		if fc.Telemetry.ServiceName != nil {
			cfg.Telemetry.ServiceName = *fc.Telemetry.ServiceName
		}
		if fc.Telemetry.MetricIntervalSecs != nil {
			cfg.Telemetry.MetricIntervalSecs = *fc.Telemetry.MetricIntervalSecs
		}
	}
	if fc.UI != nil {
		if fc.UI.Lang != nil {
			cfg.UI.Lang = *fc.UI.Lang
		}
		if fc.UI.Mode != nil {
			cfg.UI.Mode = *fc.UI.Mode
		}
		if fc.UI.Markdown != nil {
			cfg.UI.Markdown = *fc.UI.Markdown
		}
	}
}

func mergeProvider(base ProviderConfig, override ProviderConfig) ProviderConfig {
	if strings.TrimSpace(override.Kind) != "" {
		base.Kind = override.Kind
	}
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = override.BaseURL
	}
	if strings.TrimSpace(override.Model) != "" {
		base.Model = override.Model
	}
	if strings.TrimSpace(override.APIKey) != "" {
		base.APIKey = override.APIKey
	}
	if len(override.Models) > 0 {
		base.Models = append([]string(nil), override.Models...)
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	if override.MaxRetries > 0 {
		base.MaxRetries = override.MaxRetries
	}
	if override.MaxTokens > 0 {
		base.MaxTokens = override.MaxTokens
	}
	return base
}

func mergeStorage(base StorageConfig, override StorageConfig) StorageConfig {
	if strings.TrimSpace(override.Backend) != "" {
		base.Backend = override.Backend
	}
	if strings.TrimSpace(override.SessionsDir) != "" {
		base.SessionsDir = override.SessionsDir
	}
	if strings.TrimSpace(override.DBPath) != "" {
		base.DBPath = override.DBPath
	}
	return base
}

func mergeLog(base LogConfig, override LogConfig) LogConfig {
	if strings.TrimSpace(override.Dir) != "" {
		base.Dir = override.Dir
	}
	if strings.TrimSpace(override.Level) != "" {
		base.Level = override.Level
	}
	if override.MaxMB > 0 {
		base.MaxMB = override.MaxMB
	}
	if override.MaxBackups > 0 {
		base.MaxBackups = override.MaxBackups
	}
	if override.MaxAgeDays > 0 {
		base.MaxAgeDays = override.MaxAgeDays
	}
	return base
}

func normalize(cfg *Config) error {
	cfg.Provider.Kind = strings.ToLower(strings.TrimSpace(cfg.Provider.Kind))
	switch cfg.Provider.Kind {
	case "":
		cfg.Provider.Kind = DefaultProviderKind
	case ProviderOpenAI, ProviderCompat, ProviderOpenAIGo, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown provider.kind %q", cfg.Provider.Kind)
	}
	cfg.Provider.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Provider.BaseURL), "/")
	cfg.Provider.Model = strings.TrimSpace(cfg.Provider.Model)
	if cfg.Provider.Model == "" {
		return fmt.Errorf("provider.model is empty")
	}
	cfg.Provider.APIKey = strings.TrimSpace(cfg.Provider.APIKey)
	cfg.Provider.Models = normalizeModelList(cfg.Provider.Models)
	if !containsString(cfg.Provider.Models, cfg.Provider.Model) {
		cfg.Provider.Models = append([]string{cfg.Provider.Model}, cfg.Provider.Models...)
	}
	if cfg.Provider.TimeoutMS <= 0 {
		cfg.Provider.TimeoutMS = 120000
	}
	if cfg.Provider.MaxRetries < 0 {
		cfg.Provider.MaxRetries = 0
	}
	if cfg.Provider.MaxTokens <= 0 {
		cfg.Provider.MaxTokens = 4096
	}

	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	switch cfg.Storage.Backend {
	case "":
		cfg.Storage.Backend = "json"
	case "json", "sqlite":
	default:
		return fmt.Errorf("unknown storage.backend %q", cfg.Storage.Backend)
	}
	if strings.TrimSpace(cfg.Storage.SessionsDir) == "" {
		cfg.Storage.SessionsDir = DefaultSessionsDir
	}
	dir, err := expandPath(cfg.Storage.SessionsDir)
	if err != nil {
		return fmt.Errorf("storage.sessions_dir: %w", err)
	}
	cfg.Storage.SessionsDir = dir
	if strings.TrimSpace(cfg.Storage.DBPath) != "" {
		dbPath, err := expandPath(cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("storage.db_path: %w", err)
		}
		cfg.Storage.DBPath = dbPath
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	switch cfg.Log.Level {
	case "":
		cfg.Log.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log.level %q", cfg.Log.Level)
	}
	if cfg.Log.Dir, err = expandPath(cfg.Log.Dir); err != nil {
		return fmt.Errorf("log.dir: %w", err)
	}
	if cfg.Telemetry.Dir, err = expandPath(cfg.Telemetry.Dir); err != nil {
		return fmt.Errorf("telemetry.dir: %w", err)
	}
	if cfg.Telemetry.MetricIntervalSecs <= 0 {
		cfg.Telemetry.MetricIntervalSecs = 30
	}
	if strings.TrimSpace(cfg.Telemetry.ServiceName) == "" {
		cfg.Telemetry.ServiceName = "chatdesk"
	}

	cfg.UI.Mode = strings.ToLower(strings.TrimSpace(cfg.UI.Mode))
	switch cfg.UI.Mode {
	case "":
		cfg.UI.Mode = "repl"
	case "repl", "tui":
	default:
		return fmt.Errorf("unknown ui.mode %q", cfg.UI.Mode)
	}
	cfg.UI.Lang = strings.TrimSpace(cfg.UI.Lang)
	return nil
}

func applyEnv(cfg Config) (Config, error) {
	if v := strings.TrimSpace(os.Getenv("CHATDESK_BASE_URL")); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CHATDESK_MODEL")); v != "" {
		cfg.Provider.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("CHATDESK_PROVIDER")); v != "" {
		cfg.Provider.Kind = v
	}
	if v := strings.TrimSpace(os.Getenv("CHATDESK_API_KEY")); v != "" {
		cfg.Provider.APIKey = v
	} else if v := strings.TrimSpace(os.Getenv("DEEPSEEK_API_KEY")); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("CHATDESK_MAX_RETRIES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid CHATDESK_MAX_RETRIES: %q", v)
		}
		cfg.Provider.MaxRetries = n
	}
	if v := strings.TrimSpace(os.Getenv("CHATDESK_SESSIONS_DIR")); v != "" {
		cfg.Storage.SessionsDir = v
	}
	if v := strings.TrimSpace(os.Getenv("CHATDESK_LANG")); v != "" {
		cfg.UI.Lang = v
	}

	return cfg, normalize(&cfg)
}

func normalizeModelList(models []string) []string {
	out := make([]string, 0, len(models))
	seen := map[string]struct{}{}
	for _, m := range models {
		trimmed := strings.TrimSpace(m)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func containsString(items []string, needle string) bool {
	for _, item := range items {
		if item == needle {
			return true
		}
	}
	return false
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return filepath.Abs(path)
}

func stripJSONComments(data []byte) []byte {
	const (
		stateNormal = iota
		stateString
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	escaped := false
	out := bytes.Buffer{}

	for i := 0; i < len(data); i++ {
		c := data[i]
		next := byte(0)
		if i+1 < len(data) {
			next = data[i+1]
		}

		switch state {
		case stateNormal:
			if c == '"' {
				state = stateString
				out.WriteByte(c)
				continue
			}
			if c == '/' && next == '/' {
				state = stateLineComment
				i++
				continue
			}
			if c == '/' && next == '*' {
				state = stateBlockComment
				i++
				continue
			}
			out.WriteByte(c)
		case stateString:
			out.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				out.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}
	return out.Bytes()
}

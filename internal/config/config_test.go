package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// isolate points HOME at an empty dir and chdirs into an empty project dir.
func isolate(t *testing.T) (home, work string) {
	t.Helper()
	home = t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{
		"CHATDESK_CONFIG_PATH", "CHATDESK_BASE_URL", "CHATDESK_MODEL", "CHATDESK_PROVIDER",
		"CHATDESK_API_KEY", "DEEPSEEK_API_KEY", "CHATDESK_SESSIONS_DIR", "CHATDESK_LANG", "CHATDESK_MAX_RETRIES",
	} {
		t.Setenv(k, "")
	}
	work = t.TempDir()
	oldwd, _ := os.Getwd()
	if err := os.Chdir(work); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldwd) })
	return home, work
}

func TestDefaults(t *testing.T) {
	_, work := isolate(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.Kind != ProviderOpenAI || cfg.Provider.BaseURL != DefaultBaseURL || cfg.Provider.Model != DefaultModel {
		t.Fatalf("provider=%+v", cfg.Provider)
	}
	if cfg.Provider.APIKey != "" {
		t.Fatalf("api key should be empty without env, got %q", cfg.Provider.APIKey)
	}
	if cfg.Storage.Backend != "json" {
		t.Fatalf("backend=%q", cfg.Storage.Backend)
	}
	wantDir, _ := filepath.Abs(filepath.Join(work, "sessions"))
	gotDir, _ := filepath.EvalSymlinks(filepath.Dir(cfg.Storage.SessionsDir))
	wantParent, _ := filepath.EvalSymlinks(filepath.Dir(wantDir))
	if filepath.Base(cfg.Storage.SessionsDir) != "sessions" || gotDir != wantParent {
		t.Fatalf("sessions_dir=%q, want %q", cfg.Storage.SessionsDir, wantDir)
	}
	if cfg.Telemetry.Enabled {
		t.Fatalf("telemetry should be disabled by default")
	}
	if !cfg.UI.Markdown || cfg.UI.Mode != "repl" {
		t.Fatalf("ui=%+v", cfg.UI)
	}
}

func TestLoadJSONCAndPrecedence(t *testing.T) {
	home, _ := isolate(t)

	globalDir := filepath.Join(home, ".chatdesk")
	if err := os.MkdirAll(globalDir, 0o755); err != nil {
		t.Fatal(err)
	}
	globalCfg := `{
  // global
  "provider": {"model": "global-model", "max_tokens": 1024},
  "chat": {"system_prompt": "from global"},
  "telemetry": {"enabled": true}
}`
	if err := os.WriteFile(filepath.Join(globalDir, "config.json"), []byte(globalCfg), 0o644); err != nil {
		t.Fatal(err)
	}
	projectCfg := `{
  /* project */
  "provider": {"model": "project-model"},
  "telemetry": {"enabled": false},
  "ui": {"markdown": false}
}`
	if err := os.WriteFile("chatdesk.config.json", []byte(projectCfg), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.Model != "project-model" {
		t.Fatalf("model=%q", cfg.Provider.Model)
	}
	if cfg.Provider.MaxTokens != 1024 {
		t.Fatalf("max_tokens=%d", cfg.Provider.MaxTokens)
	}
	if cfg.Chat.SystemPrompt != "from global" {
		t.Fatalf("system_prompt=%q", cfg.Chat.SystemPrompt)
	}
	if cfg.Telemetry.Enabled {
		t.Fatalf("telemetry.enabled expected false from project file")
	}
	if cfg.UI.Markdown {
		t.Fatalf("ui.markdown expected false")
	}
}

func TestLoadYAML(t *testing.T) {
	isolate(t)
	yamlCfg := `provider:
  kind: anthropic
  model: claude-sonnet-4-20250514
storage:
  backend: sqlite
  sessions_dir: ./data
ui:
  lang: zh-CN
  mode: tui
`
	if err := os.MkdirAll(".chatdesk", 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(".chatdesk", "config.yaml"), []byte(yamlCfg), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.Kind != ProviderAnthropic || cfg.Provider.Model != "claude-sonnet-4-20250514" {
		t.Fatalf("provider=%+v", cfg.Provider)
	}
	if cfg.Storage.Backend != "sqlite" || filepath.Base(cfg.Storage.SessionsDir) != "data" {
		t.Fatalf("storage=%+v", cfg.Storage)
	}
	if cfg.UI.Lang != "zh-CN" || cfg.UI.Mode != "tui" {
		t.Fatalf("ui=%+v", cfg.UI)
	}
}

func TestEnvOverride(t *testing.T) {
	isolate(t)
	t.Setenv("CHATDESK_MODEL", "env-model")
	t.Setenv("CHATDESK_PROVIDER", "Compat")
	t.Setenv("CHATDESK_BASE_URL", "http://localhost:11434/v1/")
	t.Setenv("CHATDESK_MAX_RETRIES", "5")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.Model != "env-model" {
		t.Fatalf("model=%q", cfg.Provider.Model)
	}
	if cfg.Provider.Kind != ProviderCompat {
		t.Fatalf("kind=%q", cfg.Provider.Kind)
	}
	if cfg.Provider.BaseURL != "http://localhost:11434/v1" {
		t.Fatalf("base_url=%q", cfg.Provider.BaseURL)
	}
	if cfg.Provider.MaxRetries != 5 {
		t.Fatalf("max_retries=%d", cfg.Provider.MaxRetries)
	}
}

func TestAPIKeyFallback(t *testing.T) {
	isolate(t)
	t.Setenv("DEEPSEEK_API_KEY", "sk-deepseek")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.APIKey != "sk-deepseek" {
		t.Fatalf("api_key=%q", cfg.Provider.APIKey)
	}

	t.Setenv("CHATDESK_API_KEY", "sk-chatdesk")
	cfg, err = Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.APIKey != "sk-chatdesk" {
		t.Fatalf("api_key=%q, CHATDESK_API_KEY should win", cfg.Provider.APIKey)
	}
}

func TestInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "provider kind", body: `{"provider": {"kind": "bard"}}`},
		{name: "storage backend", body: `{"storage": {"backend": "redis"}}`},
		{name: "log level", body: `{"log": {"level": "loud"}}`},
		{name: "ui mode", body: `{"ui": {"mode": "gui"}}`},
		{name: "bad json", body: `{"provider": `},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			isolate(t)
			if err := os.WriteFile("chatdesk.config.json", []byte(tc.body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(""); err == nil {
				t.Fatalf("expected error for %s", tc.body)
			}
		})
	}
}

func TestExplicitPathAndEnvPath(t *testing.T) {
	_, work := isolate(t)
	explicit := filepath.Join(work, "explicit.json")
	if err := os.WriteFile(explicit, []byte(`{"provider": {"model": "explicit"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(explicit)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.Model != "explicit" {
		t.Fatalf("model=%q", cfg.Provider.Model)
	}

	viaEnv := filepath.Join(work, "env.yml")
	if err := os.WriteFile(viaEnv, []byte("provider:\n  model: from-env-path\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHATDESK_CONFIG_PATH", viaEnv)
	cfg, err = Load(explicit)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.Model != "from-env-path" {
		t.Fatalf("model=%q", cfg.Provider.Model)
	}
}

func TestProviderModelsNormalization(t *testing.T) {
	isolate(t)
	projectCfg := `{
  "provider": {
    "model": "m2",
    "models": ["m1", "m2", "m1", "  ", "m3"]
  }
}`
	if err := os.WriteFile("chatdesk.config.json", []byte(projectCfg), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(cfg.Provider.Models, ",") != "m1,m2,m3" {
		t.Fatalf("unexpected models: %#v", cfg.Provider.Models)
	}
}

func TestWriteProviderModel(t *testing.T) {
	_, work := isolate(t)
	if err := WriteProviderModel(work, "deepseek-reasoner"); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.Model != "deepseek-reasoner" {
		t.Fatalf("model=%q", cfg.Provider.Model)
	}
	if err := WriteProviderModel(work, "  "); err == nil {
		t.Fatalf("expected error for empty model")
	}
}

func TestInitProjectConfigScaffold(t *testing.T) {
	_, work := isolate(t)
	t.Setenv("CHATDESK_API_KEY", "sk-secret")
	path, err := InitProjectConfigScaffold(work)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "sk-secret") {
		t.Fatalf("scaffold leaked the api key")
	}
	if !strings.Contains(string(data), `"system_prompt"`) {
		t.Fatalf("scaffold missing chat section:\n%s", data)
	}
	// 第二次调用保留已有文件
	if err := os.WriteFile(path, []byte(`{"provider": {"model": "kept"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := InitProjectConfigScaffold(work); err != nil {
		t.Fatal(err)
	}
	data, _ = os.ReadFile(path)
	if !strings.Contains(string(data), "kept") {
		t.Fatalf("scaffold overwrote existing config")
	}
}

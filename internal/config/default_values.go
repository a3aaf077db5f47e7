package config

const (
	ProviderOpenAI    = "openai"
	ProviderCompat    = "compat"
	ProviderOpenAIGo  = "openai-go"
	ProviderAnthropic = "anthropic"

	DefaultProviderKind = ProviderOpenAI
	DefaultBaseURL      = "https://api.deepseek.com"
	DefaultModel        = "deepseek-chat"

	DefaultSessionsDir = "sessions"
)

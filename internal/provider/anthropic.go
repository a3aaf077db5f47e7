package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatdesk/internal/chat"
	"chatdesk/internal/config"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicProvider 使用 Anthropic 原生 Messages API 的实现
// AnthropicProvider implements Provider using the Anthropic native Messages API.
type AnthropicProvider struct {
	modelState
	client anthropic.Client
	cfg    config.ProviderConfig
}

func NewAnthropicProvider(cfg config.ProviderConfig) *AnthropicProvider {
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(cfg.APIKey),
		anthropicoption.WithHTTPClient(newHTTPClient(cfg.TimeoutMS)),
		anthropicoption.WithMaxRetries(0),
	}
	// DeepSeek 的默认地址不适用于 Anthropic / the DeepSeek default does not apply here
	if baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); baseURL != "" && baseURL != config.DefaultBaseURL {
		opts = append(opts, anthropicoption.WithBaseURL(baseURL+"/"))
	}
	return &AnthropicProvider{
		modelState: modelState{model: cfg.Model},
		client:     anthropic.NewClient(opts...),
		cfg:        cfg,
	}
}

func (p *AnthropicProvider) Name() string { return config.ProviderAnthropic }

func (p *AnthropicProvider) Stream(ctx context.Context, req ChatRequest) (Stream, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, newRequestError(p.Name(), "", ErrMissingAPIKey)
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = int64(p.cfg.MaxTokens)
	}
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	system, msgs := buildAnthropicMessages(req)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.resolve(req)),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	// 空系统指令不发送 / an empty system instruction is omitted
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return openStream(ctx, p.Name(), p.cfg.MaxRetries, func(ctx context.Context) (Stream, error) {
		return &anthropicStream{stream: p.client.Messages.NewStreaming(ctx, params)}, nil
	})
}

func (p *AnthropicProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	iter := p.client.Models.ListAutoPaging(ctx, anthropic.ModelListParams{})
	var models []ModelInfo
	for iter.Next() {
		m := iter.Current()
		models = append(models, ModelInfo{ID: m.ID, OwnedBy: "anthropic"})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list models: %w", classifyAnthropicError(err))
	}
	return models, nil
}

type anthropicStream struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
	frag   string
}

// Next 只关心 ContentBlockDeltaEvent 中的 TextDelta
// Next only surfaces TextDelta payloads of ContentBlockDeltaEvent.
func (s *anthropicStream) Next() bool {
	for s.stream.Next() {
		event := s.stream.Current()
		variant, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		d, ok := variant.Delta.AsAny().(anthropic.TextDelta)
		if !ok || d.Text == "" {
			continue
		}
		s.frag = d.Text
		return true
	}
	return false
}

func (s *anthropicStream) Fragment() string { return s.frag }

func (s *anthropicStream) Err() error {
	if err := s.stream.Err(); err != nil {
		return classifyAnthropicError(err)
	}
	return nil
}

func (s *anthropicStream) Close() error { return s.stream.Close() }

// buildAnthropicMessages 系统消息合并进 system 参数，其余按角色转换
// buildAnthropicMessages folds system messages into the system parameter and converts the rest by role.
func buildAnthropicMessages(req ChatRequest) (string, []anthropic.MessageParam) {
	systemParts := []string{}
	if s := strings.TrimSpace(req.System); s != "" {
		systemParts = append(systemParts, s)
	}
	params := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case chat.RoleSystem:
			if s := strings.TrimSpace(m.Content); s != "" {
				systemParts = append(systemParts, s)
			}
		case chat.RoleAssistant:
			params = append(params, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return strings.Join(systemParts, "\n\n"), params
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
		return &StatusError{StatusCode: apiErr.StatusCode, Err: err}
	}
	return err
}

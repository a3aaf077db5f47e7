package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatdesk/internal/chat"
	"chatdesk/internal/config"

	openaigo "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

// OpenAIGoProvider 使用官方 openai-go SDK 的实现
// OpenAIGoProvider implements Provider with the official openai-go SDK.
type OpenAIGoProvider struct {
	modelState
	client openaigo.Client
	cfg    config.ProviderConfig
}

func NewOpenAIGoProvider(cfg config.ProviderConfig) *OpenAIGoProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(newHTTPClient(cfg.TimeoutMS)),
		// 重试由 openStream 统一负责 / retries are owned by openStream
		option.WithMaxRetries(0),
	}
	if baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL+"/"))
	}
	return &OpenAIGoProvider{
		modelState: modelState{model: cfg.Model},
		client:     openaigo.NewClient(opts...),
		cfg:        cfg,
	}
}

func (p *OpenAIGoProvider) Name() string { return config.ProviderOpenAIGo }

func (p *OpenAIGoProvider) Stream(ctx context.Context, req ChatRequest) (Stream, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, newRequestError(p.Name(), "", ErrMissingAPIKey)
	}
	params := openaigo.ChatCompletionNewParams{
		Model:    openaigo.ChatModel(p.resolve(req)),
		Messages: buildOpenAIGoMessages(wireMessages(req)),
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.cfg.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = openaigo.Int(int64(maxTokens))
	}
	// NewStreaming 不返回错误，HTTP 失败在首次 Next 时出现
	// NewStreaming never fails directly; HTTP failures surface on the first Next.
	return openStream(ctx, p.Name(), p.cfg.MaxRetries, func(ctx context.Context) (Stream, error) {
		return &openAIGoStream{stream: p.client.Chat.Completions.NewStreaming(ctx, params)}, nil
	})
}

func (p *OpenAIGoProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	iter := p.client.Models.ListAutoPaging(ctx)
	var models []ModelInfo
	for iter.Next() {
		m := iter.Current()
		models = append(models, ModelInfo{ID: m.ID, OwnedBy: m.OwnedBy})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list models: %w", classifyOpenAIGoError(err))
	}
	return models, nil
}

type openAIGoStream struct {
	stream *ssestream.Stream[openaigo.ChatCompletionChunk]
	frag   string
}

func (s *openAIGoStream) Next() bool {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		s.frag = chunk.Choices[0].Delta.Content
		return true
	}
	return false
}

func (s *openAIGoStream) Fragment() string { return s.frag }

func (s *openAIGoStream) Err() error {
	if err := s.stream.Err(); err != nil {
		return classifyOpenAIGoError(err)
	}
	return nil
}

func (s *openAIGoStream) Close() error { return s.stream.Close() }

func buildOpenAIGoMessages(messages []chat.Message) []openaigo.ChatCompletionMessageParamUnion {
	out := make([]openaigo.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case chat.RoleSystem:
			out = append(out, openaigo.SystemMessage(m.Content))
		case chat.RoleAssistant:
			out = append(out, openaigo.AssistantMessage(m.Content))
		default:
			out = append(out, openaigo.UserMessage(m.Content))
		}
	}
	return out
}

func classifyOpenAIGoError(err error) error {
	var apiErr *openaigo.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
		return &StatusError{StatusCode: apiErr.StatusCode, Err: err}
	}
	return err
}

package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"chatdesk/internal/chat"
	"chatdesk/internal/config"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider 使用 go-openai SDK 的 Provider 实现（默认后端，兼容 DeepSeek）
// OpenAIProvider implements Provider using the go-openai SDK (the default backend, DeepSeek-compatible)
type OpenAIProvider struct {
	modelState
	client *openai.Client
	cfg    config.ProviderConfig
}

// NewOpenAIProvider 创建基于 SDK 的 provider
// NewOpenAIProvider creates an SDK-based provider
func NewOpenAIProvider(cfg config.ProviderConfig) *OpenAIProvider {
	sdkCfg := openai.DefaultConfig(cfg.APIKey)
	if baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); baseURL != "" {
		sdkCfg.BaseURL = baseURL
	}
	sdkCfg.HTTPClient = newHTTPClient(cfg.TimeoutMS)

	return &OpenAIProvider{
		modelState: modelState{model: cfg.Model},
		client:     openai.NewClientWithConfig(sdkCfg),
		cfg:        cfg,
	}
}

func (p *OpenAIProvider) Name() string {
	return config.ProviderOpenAI
}

func (p *OpenAIProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", classifySDKError(err))
	}
	models := make([]ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, ModelInfo{
			ID:      m.ID,
			OwnedBy: m.OwnedBy,
		})
	}
	return models, nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, req ChatRequest) (Stream, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, newRequestError(p.Name(), "", ErrMissingAPIKey)
	}
	sdkReq := buildSDKRequest(p.resolve(req), req)
	if sdkReq.MaxTokens == 0 && p.cfg.MaxTokens > 0 {
		sdkReq.MaxTokens = p.cfg.MaxTokens
	}
	return openStream(ctx, p.Name(), p.cfg.MaxRetries, func(ctx context.Context) (Stream, error) {
		stream, err := p.client.CreateChatCompletionStream(ctx, sdkReq)
		if err != nil {
			return nil, fmt.Errorf("create stream: %w", classifySDKError(err))
		}
		return &sdkStream{stream: stream}, nil
	})
}

// sdkStream 将 go-openai 的 Recv 循环适配为 Stream
// sdkStream adapts the go-openai Recv loop to Stream.
type sdkStream struct {
	stream *openai.ChatCompletionStream
	frag   string
	err    error
	done   bool
}

func (s *sdkStream) Next() bool {
	if s.done {
		return false
	}
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			s.done = true
			return false
		}
		if err != nil {
			s.done = true
			s.err = fmt.Errorf("recv stream: %w", classifySDKError(err))
			return false
		}
		// 仅取第一个 choice；reasoning_content 不计入回复
		// Only the first choice counts; reasoning_content is not part of the reply.
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		s.frag = resp.Choices[0].Delta.Content
		return true
	}
}

func (s *sdkStream) Fragment() string { return s.frag }
func (s *sdkStream) Err() error       { return s.err }

func (s *sdkStream) Close() error {
	s.done = true
	return s.stream.Close()
}

func buildSDKRequest(model string, req ChatRequest) openai.ChatCompletionRequest {
	sdkReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertMessages(wireMessages(req)),
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		sdkReq.MaxTokens = req.MaxTokens
	}
	return sdkReq
}

// --- Message Conversion ---

func convertMessages(messages []chat.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}

// classifySDKError 把 SDK 的 HTTP 错误归一为 StatusError，供重试判断
// classifySDKError maps SDK HTTP errors onto StatusError for the retry decision.
func classifySDKError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &StatusError{StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return &StatusError{StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return err
}

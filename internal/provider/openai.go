package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"chatdesk/internal/chat"
	"chatdesk/internal/config"
)

// CompatProvider 直接解析 OpenAI 兼容 SSE 的实现，适用于 Ollama 等服务端
// CompatProvider speaks the OpenAI-compatible SSE protocol over plain HTTP (Ollama and similar servers).
type CompatProvider struct {
	modelState
	cfg        config.ProviderConfig
	httpClient *http.Client
}

func NewCompatProvider(cfg config.ProviderConfig) *CompatProvider {
	return &CompatProvider{
		modelState: modelState{model: cfg.Model},
		cfg:        cfg,
		httpClient: newHTTPClient(cfg.TimeoutMS),
	}
}

func (p *CompatProvider) Name() string { return config.ProviderCompat }

func (p *CompatProvider) baseURL() string {
	return strings.TrimRight(strings.TrimSpace(p.cfg.BaseURL), "/")
}

type compatChatRequest struct {
	Model     string         `json:"model"`
	Messages  []chat.Message `json:"messages"`
	Stream    bool           `json:"stream"`
	MaxTokens int            `json:"max_tokens,omitempty"`
}

type compatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content          json.RawMessage `json:"content,omitempty"`
			ReasoningContent string          `json:"reasoning_content,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (p *CompatProvider) Stream(ctx context.Context, req ChatRequest) (Stream, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, newRequestError(p.Name(), "", ErrMissingAPIKey)
	}
	if p.baseURL() == "" {
		return nil, newRequestError(p.Name(), "", fmt.Errorf("base_url is empty"))
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.cfg.MaxTokens
	}
	body, err := json.Marshal(compatChatRequest{
		Model:     p.resolve(req),
		Messages:  wireMessages(req),
		Stream:    true,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, newRequestError(p.Name(), "", fmt.Errorf("marshal request: %w", err))
	}
	return openStream(ctx, p.Name(), p.cfg.MaxRetries, func(ctx context.Context) (Stream, error) {
		return p.post(ctx, body)
	})
}

func (p *CompatProvider) post(ctx context.Context, body []byte) (Stream, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL()+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+strings.TrimSpace(p.cfg.APIKey))

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return newSSEStream(resp.Body), nil
}

func (p *CompatProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL()+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if key := strings.TrimSpace(p.cfg.APIKey); key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, fmt.Errorf("list models: %w", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))})
	}
	var payload struct {
		Data []struct {
			ID      string `json:"id"`
			OwnedBy string `json:"owned_by"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("parse models: %w", err)
	}
	models := make([]ModelInfo, 0, len(payload.Data))
	for _, m := range payload.Data {
		models = append(models, ModelInfo{ID: m.ID, OwnedBy: m.OwnedBy})
	}
	return models, nil
}

// sseStream 逐行解析 "data: {json}" / "data: [DONE]"
// sseStream parses "data: {json}" / "data: [DONE]" lines.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	frag    string
	err     error
	done    bool
}

func newSSEStream(body io.ReadCloser) *sseStream {
	scanner := bufio.NewScanner(body)
	// Increase buffer for long JSON lines.
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return &sseStream{body: body, scanner: scanner}
}

func (s *sseStream) Next() bool {
	if s.done {
		return false
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			s.done = true
			return false
		}

		var chunk compatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// Some servers may interleave non-JSON lines; ignore parse errors cautiously.
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		text, err := parseDeltaContent(chunk.Choices[0].Delta.Content)
		if err != nil {
			s.done = true
			s.err = err
			return false
		}
		if text == "" {
			continue
		}
		s.frag = text
		return true
	}
	s.done = true
	if err := s.scanner.Err(); err != nil {
		s.err = fmt.Errorf("stream scan: %w", err)
	}
	return false
}

func (s *sseStream) Fragment() string { return s.frag }
func (s *sseStream) Err() error       { return s.err }

func (s *sseStream) Close() error {
	s.done = true
	return s.body.Close()
}

// parseDeltaContent 兼容字符串或分段数组形式的 content
// parseDeltaContent accepts content as a plain string or as typed parts.
func parseDeltaContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}

	var parts []struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		OutputText string `json:"output_text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("parse stream delta content: %w", err)
	}
	var builder strings.Builder
	for _, part := range parts {
		text := part.Text
		if text == "" {
			text = part.OutputText
		}
		if text == "" {
			continue
		}
		kind := strings.ToLower(strings.TrimSpace(part.Type))
		if kind != "" && kind != "text" && kind != "output_text" {
			continue
		}
		builder.WriteString(text)
	}
	return builder.String(), nil
}

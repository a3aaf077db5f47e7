package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"chatdesk/internal/chat"
	"chatdesk/internal/provider"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrEmptyInput 空白输入不会触发请求 / blank input never reaches the provider
var ErrEmptyInput = errors.New("input is empty")

// RunInput 执行一轮对话：追加用户消息 → 自动保存 → 流式请求（每个片段后回调 display）
// → 追加一条助手消息 → 再次保存。
//
// 请求失败时返回 *provider.RequestError：缓冲中只保留用户消息，部分回复不会被持久化。
// 自动保存失败不会中断对话，回复照常返回，同时返回存储错误。
//
// RunInput runs one turn: append the user message, autosave, stream the reply while
// calling display with the running total, append one assistant message, autosave again.
//
// A failed request returns *provider.RequestError; the buffer keeps only the user message
// and no partial reply is persisted. A failed autosave does not abort the turn: the reply
// is returned together with the storage error.
func (o *Orchestrator) RunInput(ctx context.Context, text string, display DisplayFunc) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyInput
	}
	id := o.CurrentSessionID()
	model := o.provider.CurrentModel()

	ctx, span := o.tel.Tracer.Start(ctx, "chat.turn", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.String("provider", o.provider.Name()),
		attribute.String("model", model),
	))
	defer span.End()

	o.buffer.Append(chat.UserMessage(text))
	saveErr := o.saveAs(ctx, id)

	reply, err := o.stream(ctx, model, display)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		o.logger.Error("chat request failed", "session", id, "provider", o.provider.Name(), "model", model, "error", err)
		return "", err
	}

	o.buffer.Append(chat.AssistantMessage(reply))
	if err := o.saveAs(ctx, id); err != nil {
		saveErr = err
	}
	if saveErr != nil {
		span.SetStatus(codes.Error, "autosave failed")
		return reply, saveErr
	}
	return reply, nil
}

func (o *Orchestrator) stream(ctx context.Context, model string, display DisplayFunc) (string, error) {
	ctx, span := o.tel.Tracer.Start(ctx, "provider.stream")
	defer span.End()

	start := time.Now()
	req := provider.ChatRequest{
		Model:     model,
		System:    o.systemPrompt,
		Messages:  o.buffer.Snapshot(),
		MaxTokens: o.maxTokens,
	}
	fragments := 0
	reply, err := func() (string, error) {
		s, err := o.provider.Stream(ctx, req)
		if err != nil {
			return "", err
		}
		return provider.Accumulate(s, func(total string) {
			fragments++
			if display != nil {
				display(total)
			}
		})
	}()

	o.tel.AddFragments(ctx, fragments)
	o.tel.RecordRequest(ctx, o.provider.Name(), model, time.Since(start), err == nil)
	span.SetAttributes(attribute.Int("fragments", fragments))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream failed")
		return "", err
	}
	o.logger.Info("chat turn completed", "provider", o.provider.Name(), "model", model,
		"fragments", fragments, "duration_ms", time.Since(start).Milliseconds())
	return reply, nil
}

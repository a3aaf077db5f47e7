package contextmgr

import (
	"testing"

	"chatdesk/internal/chat"
)

func TestTokenizer_Heuristic(t *testing.T) {
	// 即使 tiktoken 不可用，启发式也应该可用
	tok := &Tokenizer{fallback: true, encodingName: "cl100k_base"}

	if count := tok.CountText("Hello world"); count <= 0 {
		t.Fatalf("heuristic CountText should return > 0, got %d", count)
	}
	if cjk := tok.CountText("你好世界"); cjk != 6 {
		t.Fatalf("heuristic CountText for CJK = %d, want 6", cjk)
	}
}

func TestTokenizer_CountMessages(t *testing.T) {
	tok := &Tokenizer{fallback: true, encodingName: "cl100k_base"}

	messages := []chat.Message{
		chat.UserMessage("hello"),
		chat.AssistantMessage("hi there"),
	}
	count := tok.Count(messages)
	if count <= 8 {
		t.Fatalf("Count should include per-message overhead, got %d", count)
	}
	if tok.Count(nil) != 0 {
		t.Fatal("empty history should count 0")
	}
}

func TestTokenizer_EmptyText(t *testing.T) {
	tok := &Tokenizer{fallback: true}
	if tok.CountText("") != 0 {
		t.Fatal("empty text should return 0")
	}
}

func TestTokenizer_IsPrecise(t *testing.T) {
	fallbackTok := &Tokenizer{fallback: true}
	if fallbackTok.IsPrecise() {
		t.Fatal("fallback tokenizer should not be precise")
	}
}

func TestModelToEncoding(t *testing.T) {
	tests := []struct {
		model    string
		expected string
	}{
		{"gpt-4", "cl100k_base"},
		{"gpt-3.5-turbo", "cl100k_base"},
		{"gpt-4o-mini", "o200k_base"},
		{"o1-preview", "o200k_base"},
		{"o3-mini", "o200k_base"},
		{"deepseek-chat", "cl100k_base"},
		{"deepseek-reasoner", "cl100k_base"},
		{"qwen-plus", "cl100k_base"},
		{"claude-3-opus", "cl100k_base"},
		{"", "cl100k_base"},
	}
	for _, tt := range tests {
		if got := modelToEncoding(tt.model); got != tt.expected {
			t.Errorf("modelToEncoding(%q) = %q, want %q", tt.model, got, tt.expected)
		}
	}
}

func TestForModel_CachesPerEncoding(t *testing.T) {
	a := ForModel("deepseek-chat")
	b := ForModel("qwen-plus")
	if a != b {
		t.Fatal("models sharing an encoding should share a tokenizer")
	}
	if a.EncodingName() != "cl100k_base" {
		t.Fatalf("EncodingName=%q", a.EncodingName())
	}
}

func TestEstimateTokens(t *testing.T) {
	history := []chat.Message{chat.UserMessage("hello world")}
	base := EstimateTokens("deepseek-chat", "", history)
	if base <= 0 {
		t.Fatalf("EstimateTokens should return > 0, got %d", base)
	}
	if with := EstimateTokens("deepseek-chat", "be terse", history); with <= base {
		t.Fatalf("system instruction should add tokens: %d <= %d", with, base)
	}
}

func TestHeuristicTokenCount(t *testing.T) {
	tests := []struct {
		input string
		minOK bool
	}{
		{"Hello world, this is a test.", true},
		{"你好世界，这是一个测试。", true},
		{"Mixed 混合 text 文本", true},
		{"", false},
	}
	for _, tt := range tests {
		got := heuristicTokenCount(tt.input)
		if tt.minOK && got <= 0 {
			t.Errorf("heuristicTokenCount(%q) = %d, want > 0", tt.input, got)
		}
		if !tt.minOK && got != 0 {
			t.Errorf("heuristicTokenCount(%q) = %d, want 0", tt.input, got)
		}
	}
}

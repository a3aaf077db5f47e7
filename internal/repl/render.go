package repl

import (
	"fmt"
	"io"
	"os"
	"strings"

	"chatdesk/internal/chat"

	"github.com/charmbracelet/glamour"
)

const (
	ansiReset  = "\x1b[0m"
	ansiDim    = "\x1b[90m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
	ansiRed    = "\x1b[31m"
	ansiBold   = "\x1b[1m"
)

// streamPrinter 接收累计文本，只输出新增部分，并把连续空行压缩为最多两个
// streamPrinter receives running totals, writes only the new suffix and compacts
// runs of blank lines to at most two.
type streamPrinter struct {
	out             io.Writer
	header          string
	printed         int // bytes of the running total already consumed
	started         bool
	lineStart       bool
	pendingNewlines int
	hasVisibleText  bool
}

func newStreamPrinter(out io.Writer, header string) *streamPrinter {
	return &streamPrinter{out: out, header: header, lineStart: true}
}

func (p *streamPrinter) start() {
	if p == nil || p.out == nil || p.started {
		return
	}
	p.started = true
	_, _ = fmt.Fprintln(p.out)
	_, _ = fmt.Fprintf(p.out, "%s %s\n", style("["+p.header+"]", ansiCyan+";"+ansiBold), style(strings.Repeat("─", 40), ansiCyan))
}

// Update 可直接作为 orchestrator.DisplayFunc 使用
// Update is usable as an orchestrator.DisplayFunc.
func (p *streamPrinter) Update(total string) {
	if p == nil || p.out == nil || len(total) <= p.printed {
		return
	}
	chunk := total[p.printed:]
	p.printed = len(total)
	p.start()
	normalized := strings.ReplaceAll(strings.ReplaceAll(chunk, "\r\n", "\n"), "\r", "\n")
	for _, ch := range normalized {
		if ch == '\n' {
			p.pendingNewlines++
			continue
		}
		p.flushPendingNewlines()
		p.lineStart = false
		_, _ = fmt.Fprint(p.out, string(ch))
		p.hasVisibleText = true
	}
}

func (p *streamPrinter) Finish() {
	if p == nil || p.out == nil || !p.started {
		return
	}
	p.pendingNewlines = 0
	if !p.lineStart {
		_, _ = fmt.Fprintln(p.out)
		p.lineStart = true
	}
	_, _ = fmt.Fprintln(p.out)
}

func (p *streamPrinter) flushPendingNewlines() {
	if p.pendingNewlines == 0 {
		return
	}
	if !p.hasVisibleText {
		p.pendingNewlines = 0
		return
	}
	newlineCount := p.pendingNewlines
	if newlineCount > 2 {
		newlineCount = 2
	}
	for i := 0; i < newlineCount; i++ {
		_, _ = fmt.Fprint(p.out, "\n")
	}
	p.pendingNewlines = 0
	p.lineStart = true
}

// renderMarkdown 使用 Glamour 渲染 markdown；失败时原样返回
// renderMarkdown renders markdown with Glamour and returns the input on failure.
func renderMarkdown(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

// renderTranscript 加载会话后回放全部消息
// renderTranscript replays a whole session after it is loaded.
func renderTranscript(out io.Writer, messages []chat.Message, labels map[chat.Role]string, markdown bool, width int) {
	for _, m := range messages {
		color := ansiGreen
		if m.Role == chat.RoleAssistant {
			color = ansiCyan
		} else if m.Role == chat.RoleSystem {
			color = ansiDim
		}
		_, _ = fmt.Fprintln(out)
		_, _ = fmt.Fprintln(out, style("["+labels[m.Role]+"]", color+";"+ansiBold))
		body := m.Content
		if markdown && m.Role == chat.RoleAssistant {
			body = renderMarkdown(body, width)
		}
		_, _ = fmt.Fprintln(out, body)
	}
}

func style(text, codes string) string {
	if text == "" || !useColor() {
		return text
	}
	var builder strings.Builder
	for _, segment := range strings.Split(codes, ";") {
		builder.WriteString(strings.TrimSpace(segment))
	}
	if builder.Len() == 0 {
		return text
	}
	return builder.String() + text + ansiReset
}

func useColor() bool {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	if strings.TrimSpace(os.Getenv("CHATDESK_NO_COLOR")) != "" {
		return false
	}
	return strings.ToLower(strings.TrimSpace(os.Getenv("TERM"))) != "dumb"
}

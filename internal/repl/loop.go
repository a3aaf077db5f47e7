package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"chatdesk/internal/chat"
	"chatdesk/internal/i18n"
	"chatdesk/internal/orchestrator"

	"github.com/chzyer/readline"
	"golang.org/x/term"
)

// Options REPL 的运行参数
// Options configures a REPL run.
type Options struct {
	HistoryPath string
	Markdown    bool
	I18n        *i18n.I18n
	In          io.Reader
	Out         io.Writer
}

// Loop holds REPL state: orchestrator, input and output.
// Loop 持有 REPL 状态：编排器、输入与输出。
type Loop struct {
	orch     *orchestrator.Orchestrator
	in       lineInput
	out      io.Writer
	tr       *i18n.I18n
	markdown bool
	isTTY    bool
	width    int
}

// NewLoop 在 stdin 为 TTY 时使用 readline，否则逐行读取
// NewLoop uses readline when stdin is a TTY and plain line reading otherwise.
func NewLoop(orch *orchestrator.Orchestrator, opts Options) (*Loop, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator is nil")
	}
	in := opts.In
	out := opts.Out
	isTTY := false
	width := 80
	if in == nil {
		in = os.Stdin
		isTTY = term.IsTerminal(int(os.Stdin.Fd()))
	}
	if out == nil {
		out = os.Stdout
		if term.IsTerminal(int(os.Stdout.Fd())) {
			if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
				width = w
			}
		} else {
			isTTY = false
		}
	}
	tr := opts.I18n
	if tr == nil {
		tr = i18n.Global()
	}
	input, err := newLineInput(opts.HistoryPath, isTTY, in, out)
	if err != nil {
		// readline 不可用时已回退到逐行读取 / readline failed; input fell back to line reading
		fmt.Fprintf(out, "readline unavailable, using basic input: %v\n", err)
	}
	return &Loop{
		orch:     orch,
		in:       input,
		out:      out,
		tr:       tr,
		markdown: opts.Markdown && isTTY,
		isTTY:    isTTY,
		width:    width,
	}, nil
}

func (loop *Loop) Close() error {
	return loop.in.Close()
}

// Run 读取输入直到 /exit、EOF 或 Ctrl+C；"/" 命令交给编排器，其余作为一轮对话
// Run reads input until /exit, EOF or Ctrl+C. "/" commands go to the orchestrator,
// anything else is one chat turn.
func (loop *Loop) Run(ctx context.Context) error {
	fmt.Fprintln(loop.out, style(loop.tr.T("app.title"), ansiBold))
	fmt.Fprintln(loop.out, loop.tr.T("app.welcome", loop.orch.CurrentSessionID()))

	for {
		loop.printStatusLine()
		line, err := loop.in.ReadLine(loop.prompt())
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
				loop.flush(ctx)
				fmt.Fprintln(loop.out, loop.tr.T("app.bye"))
				return nil
			}
			return err
		}
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}

		if orchestrator.IsCommand(text) {
			res := loop.orch.HandleCommand(ctx, text)
			if res.Output != "" {
				fmt.Fprintln(loop.out, res.Output)
			}
			if res.Exit {
				loop.flush(ctx)
				return nil
			}
			if res.SessionChanged && len(loop.orch.Messages()) > 0 {
				renderTranscript(loop.out, loop.orch.Messages(), loop.roleLabels(), loop.markdown, loop.width)
			}
			continue
		}

		printer := newStreamPrinter(loop.out, loop.tr.T("role.assistant"))
		_, err = loop.orch.RunInput(ctx, line, printer.Update)
		printer.Finish()
		if err != nil {
			fmt.Fprintln(loop.out, style(loop.orch.ErrorMessage(err), ansiRed))
		}
	}
}

// flush 退出前保存非空会话 / saves a non-empty session before leaving
func (loop *Loop) flush(ctx context.Context) {
	if len(loop.orch.Messages()) == 0 {
		return
	}
	if err := loop.orch.Save(ctx); err != nil {
		fmt.Fprintln(loop.out, style(loop.orch.ErrorMessage(err), ansiRed))
	}
}

// printStatusLine 第一行：会话 · 模型 · 上下文 token（dim）
// printStatusLine prints line one of the prompt: session · model · context tokens (dim).
func (loop *Loop) printStatusLine() {
	stats := loop.orch.ContextStats()
	line := fmt.Sprintf("%s: %s · %s: %s · %s: %d tokens",
		loop.tr.T("sidebar.session"), loop.orch.CurrentSessionID(),
		loop.tr.T("sidebar.model"), loop.orch.CurrentModel(),
		loop.tr.T("sidebar.context"), stats.EstimatedTokens,
	)
	fmt.Fprintln(loop.out, style(line, ansiDim))
}

func (loop *Loop) prompt() string {
	if !loop.isTTY {
		return ""
	}
	return style("> ", ansiGreen)
}

func (loop *Loop) roleLabels() map[chat.Role]string {
	return map[chat.Role]string{
		chat.RoleUser:      loop.tr.T("role.user"),
		chat.RoleAssistant: loop.tr.T("role.assistant"),
		chat.RoleSystem:    loop.tr.T("role.system"),
	}
}

package tui

import (
	"context"
	"fmt"
	"strings"

	"chatdesk/internal/chat"
	"chatdesk/internal/i18n"
	"chatdesk/internal/orchestrator"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Focus 当前接收按键的区域
// Focus is the area receiving key presses.
type Focus int

const (
	FocusInput Focus = iota
	FocusSidebar
)

// --- Tea Messages ---

// FragmentMsg 流式片段到达，Total 为目前为止的累计文本
// FragmentMsg carries the running total after a streamed fragment.
type FragmentMsg struct{ Total string }

// TurnDoneMsg 回合完成
// TurnDoneMsg indicates a turn is done
type TurnDoneMsg struct {
	Reply string
	Err   error
}

const (
	inputHeight  = 4 // textarea + top border
	statusHeight = 1
	headerHeight = 1
)

// App Bubble Tea 主 Model
// App is the main Bubble Tea model
type App struct {
	// 布局 / Layout
	width  int
	height int

	chatView viewport.Model
	input    textarea.Model
	focus    Focus

	orch *orchestrator.Orchestrator
	ctx  context.Context

	// 侧边栏数据 / Sidebar data
	sessions []string
	cursor   int
	tokens   int

	// 内容缓冲 / Content buffers
	history string   // rendered transcript of the active session
	notices []string // command output and errors, not persisted

	// 状态 / State
	streaming  bool
	pending    string // user text of the in-flight turn
	streamText string
	status     string
	events     chan tea.Msg

	// 配置 / Config
	theme  Theme
	keys   KeyMap
	locale *i18n.I18n
}

// NewApp 创建 TUI 应用
// NewApp creates a new TUI application
func NewApp(ctx context.Context, orch *orchestrator.Orchestrator, locale *i18n.I18n) App {
	if locale == nil {
		locale = i18n.Global()
	}
	ta := textarea.New()
	ta.Placeholder = locale.T("input.placeholder")
	ta.CharLimit = 8192
	ta.ShowLineNumbers = false
	ta.SetHeight(inputHeight - 1)
	ta.Focus()

	a := App{
		input:  ta,
		focus:  FocusInput,
		orch:   orch,
		ctx:    ctx,
		events: make(chan tea.Msg),
		theme:  DarkTheme(),
		keys:   DefaultKeyMap(),
		locale: locale,
	}
	a.refreshSessions()
	a.rebuildHistory()
	return a
}

func (a App) Init() tea.Cmd {
	return textarea.Blink
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.relayout()
		return a, nil

	case FragmentMsg:
		a.streamText = msg.Total
		a.refreshChat()
		return a, waitForEvent(a.events)

	case TurnDoneMsg:
		if msg.Err != nil {
			// 中断的部分回复只显示不保存 / an interrupted partial reply is shown, never saved
			if a.streamText != "" && msg.Reply == "" {
				_, mainWidth, _ := a.layout()
				a.notices = append(a.notices, a.renderMessage(chat.RoleAssistant, a.streamText, mainWidth, false))
			}
			a.notices = append(a.notices, a.theme.ErrorStyle.Render(a.orch.ErrorMessage(msg.Err)))
		}
		a.streaming = false
		a.pending = ""
		a.streamText = ""
		a.status = ""
		a.input.Focus()
		a.focus = FocusInput
		a.rebuildHistory()
		a.refreshSessions()
		return a, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	a.chatView, cmd = a.chatView.Update(msg)
	cmds = append(cmds, cmd)
	if a.focus == FocusInput && !a.streaming {
		a.input, cmd = a.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return a, tea.Batch(cmds...)
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Quit):
		return a, tea.Quit
	case key.Matches(msg, a.keys.PageUp):
		a.chatView.SetYOffset(a.chatView.YOffset - a.chatView.Height/2)
		return a, nil
	case key.Matches(msg, a.keys.PageDown):
		a.chatView.SetYOffset(a.chatView.YOffset + a.chatView.Height/2)
		return a, nil
	}

	// 流式输出期间输入被禁用 / input is disabled while a reply streams
	if a.streaming {
		return a, nil
	}

	switch {
	case key.Matches(msg, a.keys.FocusSidebar):
		if a.focus == FocusInput {
			a.focus = FocusSidebar
			a.input.Blur()
			a.selectCurrent()
		} else {
			a.focus = FocusInput
			a.input.Focus()
		}
		return a, nil
	case key.Matches(msg, a.keys.NewSession):
		a.newSession()
		return a, nil
	case key.Matches(msg, a.keys.DeleteSession):
		a.deleteSelected()
		return a, nil
	}

	if a.focus == FocusSidebar {
		switch {
		case key.Matches(msg, a.keys.Up):
			if a.cursor > 0 {
				a.cursor--
			}
		case key.Matches(msg, a.keys.Down):
			if a.cursor < len(a.sessions)-1 {
				a.cursor++
			}
		case key.Matches(msg, a.keys.Submit):
			a.loadSelected()
		}
		return a, nil
	}

	if key.Matches(msg, a.keys.Submit) {
		return a.submit()
	}
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// submit 发送输入：命令同步执行，对话在后台 goroutine 中进行
// submit sends the input. Commands run inline; a chat turn runs in the background.
func (a App) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(a.input.Value())
	if text == "" {
		return a, nil
	}
	a.input.Reset()

	if orchestrator.IsCommand(text) {
		res := a.orch.HandleCommand(a.ctx, text)
		if res.Exit {
			return a, tea.Quit
		}
		if res.SessionChanged {
			a.notices = nil
			a.rebuildHistory()
		}
		if res.Output != "" {
			a.notices = append(a.notices, a.theme.MutedStyle.Render(res.Output))
		}
		a.refreshSessions()
		a.refreshChat()
		return a, nil
	}

	a.notices = nil
	a.streaming = true
	a.pending = text
	a.streamText = ""
	a.status = a.locale.T("status.streaming")
	a.input.Blur()
	a.refreshChat()
	return a, tea.Batch(a.runTurn(text), waitForEvent(a.events))
}

// runTurn 所有片段与完成消息经同一通道送达，保证顺序
// runTurn delivers fragments and the final TurnDoneMsg over one channel so they stay ordered.
func (a App) runTurn(text string) tea.Cmd {
	orch, ctx, events := a.orch, a.ctx, a.events
	return func() tea.Msg {
		reply, err := orch.RunInput(ctx, text, func(total string) {
			events <- FragmentMsg{Total: total}
		})
		events <- TurnDoneMsg{Reply: reply, Err: err}
		return nil
	}
}

func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

func (a *App) newSession() {
	id, created, err := a.orch.NewSession(a.ctx)
	switch {
	case err != nil:
		a.notices = append(a.notices, a.theme.ErrorStyle.Render(a.orch.ErrorMessage(err)))
	case created:
		a.notices = []string{a.theme.MutedStyle.Render(a.locale.T("session.new", id))}
	default:
		a.notices = append(a.notices, a.theme.MutedStyle.Render(a.locale.T("session.new_noop", id)))
	}
	a.rebuildHistory()
	a.refreshSessions()
}

func (a *App) loadSelected() {
	if a.cursor < 0 || a.cursor >= len(a.sessions) {
		return
	}
	id := a.sessions[a.cursor]
	n, err := a.orch.LoadSession(id)
	if err != nil {
		a.notices = append(a.notices, a.theme.ErrorStyle.Render(a.orch.ErrorMessage(err)))
		a.refreshChat()
		return
	}
	a.notices = []string{a.theme.MutedStyle.Render(a.locale.T("session.loaded", id, n))}
	a.focus = FocusInput
	a.input.Focus()
	a.rebuildHistory()
}

func (a *App) deleteSelected() {
	if a.cursor < 0 || a.cursor >= len(a.sessions) {
		return
	}
	id := a.sessions[a.cursor]
	wasCurrent, err := a.orch.DeleteSession(id)
	switch {
	case err != nil:
		a.notices = append(a.notices, a.theme.ErrorStyle.Render(a.orch.ErrorMessage(err)))
	case wasCurrent:
		a.notices = []string{a.theme.MutedStyle.Render(a.locale.T("session.deleted_cur", a.orch.CurrentSessionID()))}
	default:
		a.notices = append(a.notices, a.theme.MutedStyle.Render(a.locale.T("session.deleted", id)))
	}
	a.refreshSessions()
	a.rebuildHistory()
}

// --- 内部方法 / Internal methods ---

// refreshSessions 重新列出会话并把光标限制在范围内
// refreshSessions re-lists sessions and clamps the cursor.
func (a *App) refreshSessions() {
	ids, err := a.orch.ListSessions()
	if err != nil {
		a.notices = append(a.notices, a.theme.ErrorStyle.Render(a.orch.ErrorMessage(err)))
		ids = nil
	}
	a.sessions = ids
	if a.cursor >= len(a.sessions) {
		a.cursor = len(a.sessions) - 1
	}
	if a.cursor < 0 {
		a.cursor = 0
	}
}

func (a *App) selectCurrent() {
	current := a.orch.CurrentSessionID()
	for i, id := range a.sessions {
		if id == current {
			a.cursor = i
			return
		}
	}
}

// layout 计算侧栏宽度、主区宽度与聊天面板高度
// layout returns sidebar width, main width and chat panel height.
func (a App) layout() (sidebarWidth, mainWidth, panelHeight int) {
	sidebarWidth = a.width * 25 / 100
	if sidebarWidth < 20 {
		sidebarWidth = 20
	}
	if sidebarWidth > 40 {
		sidebarWidth = 40
	}
	if a.width < 80 {
		sidebarWidth = 0
	}

	mainWidth = a.width - sidebarWidth
	if sidebarWidth > 0 {
		mainWidth-- // border
	}

	panelHeight = a.height - inputHeight - statusHeight - headerHeight
	if panelHeight < 3 {
		panelHeight = 3
	}
	return sidebarWidth, mainWidth, panelHeight
}

func (a *App) relayout() {
	_, mainWidth, panelHeight := a.layout()
	a.chatView = viewport.New(mainWidth, panelHeight)
	a.input.SetWidth(mainWidth - 2)
	a.rebuildHistory()
}

// rebuildHistory 会话变化后重新渲染整段记录；流式期间只追加尾部
// rebuildHistory re-renders the whole transcript after the session changes.
// While streaming only the tail is redrawn.
func (a *App) rebuildHistory() {
	_, mainWidth, _ := a.layout()
	messages := a.orch.Messages()
	blocks := make([]string, 0, len(messages))
	for _, msg := range messages {
		blocks = append(blocks, a.renderMessage(msg.Role, msg.Content, mainWidth, true))
	}
	a.history = strings.Join(blocks, "\n\n")
	a.tokens = a.orch.ContextStats().EstimatedTokens
	a.refreshChat()
}

func (a *App) refreshChat() {
	_, mainWidth, _ := a.layout()
	parts := []string{}
	if a.history != "" {
		parts = append(parts, a.history)
	}
	if a.pending != "" {
		parts = append(parts, a.renderMessage(chat.RoleUser, a.pending, mainWidth, false))
	}
	if a.streaming && a.streamText != "" {
		parts = append(parts, a.renderMessage(chat.RoleAssistant, a.streamText, mainWidth, false))
	}
	parts = append(parts, a.notices...)
	a.chatView.SetContent(strings.Join(parts, "\n\n"))
	a.chatView.GotoBottom()
}

// renderMessage 助手回复在完成后才做 markdown 渲染，流式期间显示原文
// renderMessage renders finished assistant replies as markdown; streaming text stays raw.
func (a App) renderMessage(role chat.Role, content string, width int, markdown bool) string {
	var label string
	switch role {
	case chat.RoleUser:
		label = a.theme.UserStyle.Render(a.locale.T("role.user"))
	case chat.RoleAssistant:
		label = a.theme.AssistantStyle.Render(a.locale.T("role.assistant"))
		if markdown {
			if rendered := RenderMarkdown(content, width-2); rendered != "" {
				content = rendered
			}
		}
	default:
		label = a.theme.MutedStyle.Render(a.locale.T("role.system"))
	}
	return label + "\n" + content
}

func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "Initializing..."
	}

	sidebarWidth, mainWidth, panelHeight := a.layout()

	header := a.theme.HeaderStyle.Render(a.locale.T("app.title"))
	panel := lipgloss.NewStyle().Width(mainWidth).Height(panelHeight).Render(a.chatView.View())
	inputBox := a.theme.InputStyle.Width(mainWidth).Render(a.input.View())
	statusBar := a.renderStatusBar(a.width)

	// 左侧主区域 / Left main area
	main := lipgloss.JoinVertical(lipgloss.Left, header, panel, inputBox)

	// 右侧侧边栏 / Right sidebar
	if sidebarWidth > 0 {
		sidebar := a.renderSidebar(sidebarWidth, a.height-statusHeight)
		main = lipgloss.JoinHorizontal(lipgloss.Top, main, sidebar)
	}

	// 底部状态栏 / Bottom status bar
	return lipgloss.JoinVertical(lipgloss.Left, main, statusBar)
}

// --- 渲染方法 / Render methods ---

func (a App) renderSidebar(width, height int) string {
	var parts []string

	title := a.locale.T("panel.sessions")
	if a.focus == FocusSidebar {
		title = "› " + title
	}
	parts = append(parts, a.theme.TitleStyle.Render(" "+title))

	current := a.orch.CurrentSessionID()
	if len(a.sessions) == 0 {
		parts = append(parts, a.theme.MutedStyle.Render("  "+a.locale.T("sidebar.empty")))
	}
	for i, id := range a.sessions {
		marker := "  "
		if id == current {
			marker = "* "
		}
		line := marker + truncateCells(id, width-4)
		switch {
		case a.focus == FocusSidebar && i == a.cursor:
			line = a.theme.SelectedStyle.Width(width - 1).Render(line)
		case id == current:
			line = a.theme.CurrentStyle.Render(line)
		}
		parts = append(parts, line)
	}
	parts = append(parts, "")

	parts = append(parts, a.theme.TitleStyle.Render(" "+a.locale.T("sidebar.model")))
	parts = append(parts, "  "+truncateCells(a.orch.ProviderName()+"/"+a.orch.CurrentModel(), width-3))
	parts = append(parts, "")

	parts = append(parts, a.theme.TitleStyle.Render(" "+a.locale.T("sidebar.context")))
	parts = append(parts, fmt.Sprintf("  %d tokens", a.tokens))

	style := a.theme.SidebarStyle.
		Width(width).
		Height(height)

	return style.Render(strings.Join(parts, "\n"))
}

func (a App) renderStatusBar(width int) string {
	status := a.status
	if status == "" {
		status = a.locale.T("status.ready")
	}

	left := fmt.Sprintf(" %s · %s · %s", a.orch.CurrentSessionID(), a.orch.CurrentModel(), status)
	right := a.locale.T("status.keys") + "  "

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		right = ""
		gap = width - lipgloss.Width(left)
		if gap < 0 {
			gap = 0
		}
	}

	bar := left + strings.Repeat(" ", gap) + right
	return a.theme.StatusBarStyle.Width(width).Render(bar)
}

// Run 启动 Bubble Tea TUI；退出时保存非空会话
// Run starts the Bubble Tea TUI and saves a non-empty session on exit.
func Run(ctx context.Context, orch *orchestrator.Orchestrator, locale *i18n.I18n) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app := NewApp(ctx, orch, locale)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, runErr := p.Run()
	cancel()

	if len(orch.Messages()) > 0 {
		if err := orch.Save(context.Background()); err != nil && runErr == nil {
			return err
		}
	}
	return runErr
}

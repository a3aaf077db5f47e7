package orchestrator

import (
	"context"
	"errors"
	"strings"

	"chatdesk/internal/provider"
	"chatdesk/internal/storage"
)

// IsCommand 判断输入是否为 "/" 命令
// IsCommand reports whether input is a "/" command.
func IsCommand(input string) bool {
	_, _, ok := parseSlashCommand(input)
	return ok
}

// parseSlashCommand 解析 "/" 命令：返回 command 与 args（剩余部分）
// parseSlashCommand parses a "/" command: returns command and args (rest of line)
func parseSlashCommand(input string) (command string, args string, ok bool) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "/") {
		return "", "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "/"))
	if rest == "" {
		return "", "", true
	}
	parts := strings.SplitN(rest, " ", 2)
	command = strings.ToLower(strings.TrimSpace(parts[0]))
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}
	return command, args, true
}

// HandleCommand 处理 "/" 内建命令；存储错误转换为提示文本，不会破坏当前会话
// HandleCommand runs a "/" built-in command. Store errors become displayed text and
// never corrupt the active session.
func (o *Orchestrator) HandleCommand(ctx context.Context, input string) CommandResult {
	command, args, ok := parseSlashCommand(input)
	if !ok {
		return CommandResult{Output: o.tr.T("cmd.unknown", strings.TrimSpace(input))}
	}
	switch command {
	case "", "help", "?":
		return CommandResult{Output: o.tr.T("cmd.help")}
	case "exit", "quit":
		return CommandResult{Output: o.tr.T("app.bye"), Exit: true}
	case "new":
		id, created, err := o.NewSession(ctx)
		if err != nil {
			return CommandResult{Output: o.ErrorMessage(err), SessionChanged: created}
		}
		if !created {
			return CommandResult{Output: o.tr.T("session.new_noop", id)}
		}
		return CommandResult{Output: o.tr.T("session.new", id), SessionChanged: true}
	case "sessions", "ls":
		return CommandResult{Output: o.renderSessionList()}
	case "load", "resume":
		if args == "" {
			return CommandResult{Output: o.tr.T("cmd.usage_load")}
		}
		n, err := o.LoadSession(args)
		if err != nil {
			return CommandResult{Output: o.ErrorMessage(err)}
		}
		return CommandResult{Output: o.tr.T("session.loaded", args, n), SessionChanged: true}
	case "delete", "rm":
		if args == "" {
			return CommandResult{Output: o.tr.T("cmd.usage_delete")}
		}
		wasCurrent, err := o.DeleteSession(args)
		if err != nil {
			return CommandResult{Output: o.ErrorMessage(err)}
		}
		if wasCurrent {
			return CommandResult{Output: o.tr.T("session.deleted_cur", o.CurrentSessionID()), SessionChanged: true}
		}
		return CommandResult{Output: o.tr.T("session.deleted", args)}
	case "save":
		if err := o.Save(ctx); err != nil {
			return CommandResult{Output: o.ErrorMessage(err)}
		}
		return CommandResult{Output: o.tr.T("session.saved", o.CurrentSessionID())}
	case "model":
		if args == "" {
			return CommandResult{Output: o.tr.T("model.current", o.CurrentModel())}
		}
		if err := o.SetModel(args); err != nil {
			return CommandResult{Output: o.tr.T("error.provider", err.Error())}
		}
		return CommandResult{Output: o.tr.T("model.switched", o.CurrentModel())}
	case "models":
		return CommandResult{Output: o.renderModelList(ctx)}
	default:
		return CommandResult{Output: o.tr.T("cmd.unknown", "/"+command)}
	}
}

func (o *Orchestrator) renderSessionList() string {
	ids, err := o.ListSessions()
	if err != nil {
		return o.ErrorMessage(err)
	}
	if len(ids) == 0 {
		return o.tr.T("session.list_empty")
	}
	current := o.CurrentSessionID()
	lines := []string{o.tr.T("session.list_header")}
	for _, id := range ids {
		if id == current {
			lines = append(lines, "* "+id+" ("+o.tr.T("sidebar.current")+")")
			continue
		}
		lines = append(lines, "  "+id)
	}
	return strings.Join(lines, "\n")
}

func (o *Orchestrator) renderModelList(ctx context.Context) string {
	models, err := o.ListModels(ctx)
	lines := []string{}
	if err != nil {
		lines = append(lines, o.tr.T("model.list_error", err.Error()))
	}
	if len(models) > 0 {
		lines = append(lines, o.tr.T("model.list_header"))
		current := o.CurrentModel()
		for _, m := range models {
			if m == current {
				lines = append(lines, "* "+m)
				continue
			}
			lines = append(lines, "  "+m)
		}
	}
	return strings.Join(lines, "\n")
}

// ErrorMessage 将存储与请求错误转换为本地化提示
// ErrorMessage renders store and request errors as localized text.
func (o *Orchestrator) ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		loadErr   *storage.LoadError
		deleteErr *storage.DeleteError
		dirErr    *storage.StorageDirectoryError
		reqErr    *provider.RequestError
	)
	switch {
	case errors.As(err, &loadErr):
		return o.tr.T("error.load", loadErr.ID, loadErr.Err.Error())
	case errors.As(err, &deleteErr):
		return o.tr.T("error.delete", deleteErr.ID, deleteErr.Err.Error())
	case errors.As(err, &dirErr):
		return o.tr.T("error.storage", dirErr.Dir, dirErr.Err.Error())
	case errors.Is(err, provider.ErrMissingAPIKey):
		return o.tr.T("error.no_key")
	case errors.As(err, &reqErr):
		msg := o.tr.T("error.provider", reqErr.Err.Error())
		if reqErr.Partial != "" {
			msg += "\n" + o.tr.T("error.partial")
		}
		return msg
	default:
		return o.tr.T("error.save", err.Error())
	}
}

package i18n

// EnMessages English message catalog
var EnMessages = map[string]string{
	// App
	"app.title":   "ChatDesk",
	"app.welcome": "Session %s. Type a message, or /help for commands.",
	"app.bye":     "Bye.",

	// UI (TUI sidebar / REPL prompt)
	"panel.chat":        "Chat",
	"panel.sessions":    "Sessions",
	"sidebar.session":   "Session",
	"sidebar.model":     "Model",
	"sidebar.context":   "Context",
	"sidebar.empty":     "(no saved sessions)",
	"sidebar.current":   "current",
	"input.placeholder": "Ask anything...",

	// Status bar
	"status.ready":     "Ready",
	"status.streaming": "Streaming...",
	"status.saved":     "Saved",
	"status.keys":      "enter send · ctrl+n new · tab sessions · ctrl+x delete · ctrl+c quit",

	// Roles
	"role.user":      "You",
	"role.assistant": "Assistant",
	"role.system":    "System",

	// Session lifecycle
	"session.new":         "Started new session %s",
	"session.new_noop":    "Current session %s is empty; keeping it",
	"session.loaded":      "Loaded session %s (%d messages)",
	"session.deleted":     "Deleted session %s",
	"session.deleted_cur": "Deleted current session; started %s",
	"session.list_header": "Saved sessions (newest first):",
	"session.list_empty":  "No saved sessions.",
	"session.saved":       "Saved session %s",

	// Model
	"model.current":     "Current model: %s",
	"model.switched":    "Switched model to %s",
	"model.list_header": "Available models:",
	"model.list_error":  "Cannot list models: %s",

	// Commands
	"cmd.help": `Commands:
  /help            show this help
  /new             save and start a new session
  /sessions        list saved sessions
  /load <id>       load a saved session
  /delete <id>     delete a saved session
  /save            save the current session now
  /model [name]    show or switch the model
  /models          list models offered by the provider
  /exit            quit`,
	"cmd.unknown":      "Unknown command: %s (try /help)",
	"cmd.usage_load":   "Usage: /load <session-id>",
	"cmd.usage_delete": "Usage: /delete <session-id>",

	// Errors
	"error.load":     "Failed to load session %s: %s",
	"error.delete":   "Failed to delete session %s: %s",
	"error.save":     "Failed to save session: %s",
	"error.storage":  "Cannot create session directory %s: %s",
	"error.provider": "Provider error: %s",
	"error.no_key":   "No API key configured. Set CHATDESK_API_KEY or DEEPSEEK_API_KEY.",
	"error.partial":  "(response interrupted; partial reply not saved)",
}

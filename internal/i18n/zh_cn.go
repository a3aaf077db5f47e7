package i18n

// ZhCNMessages 简体中文消息表
var ZhCNMessages = map[string]string{
	"app.title":   "机器生产大模型",
	"app.welcome": "会话名称: %s。输入问题，或输入 /help 查看命令。",
	"app.bye":     "再见。",

	"panel.chat":        "对话",
	"panel.sessions":    "会话历史",
	"sidebar.session":   "会话",
	"sidebar.model":     "模型",
	"sidebar.context":   "上下文",
	"sidebar.empty":     "（暂无会话）",
	"sidebar.current":   "当前",
	"input.placeholder": "请输入您要问的问题",

	"status.ready":     "就绪",
	"status.streaming": "生成中...",
	"status.saved":     "已保存",
	"status.keys":      "enter 发送 · ctrl+n 新建会话 · tab 会话列表 · ctrl+x 删除 · ctrl+c 退出",

	"role.user":      "你",
	"role.assistant": "助手",
	"role.system":    "系统",

	"session.new":         "已新建会话 %s",
	"session.new_noop":    "当前会话 %s 为空，继续使用",
	"session.loaded":      "已加载会话 %s（%d 条消息）",
	"session.deleted":     "已删除会话 %s",
	"session.deleted_cur": "已删除当前会话，新会话 %s",
	"session.list_header": "会话历史（最新在前）：",
	"session.list_empty":  "暂无保存的会话。",
	"session.saved":       "已保存会话 %s",

	"model.current":     "当前模型: %s",
	"model.switched":    "已切换模型为 %s",
	"model.list_header": "可用模型：",
	"model.list_error":  "无法获取模型列表: %s",

	"cmd.help": `命令：
  /help            显示帮助
  /new             保存并新建会话
  /sessions        列出会话历史
  /load <id>       加载会话
  /delete <id>     删除会话
  /save            立即保存当前会话
  /model [name]    查看或切换模型
  /models          列出可用模型
  /exit            退出`,
	"cmd.unknown":      "未知命令: %s（输入 /help）",
	"cmd.usage_load":   "用法: /load <会话名称>",
	"cmd.usage_delete": "用法: /delete <会话名称>",

	"error.load":     "加载会话失败! %s: %s",
	"error.delete":   "删除会话失败! %s: %s",
	"error.save":     "保存会话失败: %s",
	"error.storage":  "无法创建会话目录 %s: %s",
	"error.provider": "模型调用失败: %s",
	"error.no_key":   "未配置 API Key，请设置 CHATDESK_API_KEY 或 DEEPSEEK_API_KEY。",
	"error.partial":  "（回复中断，未保存不完整内容）",
}

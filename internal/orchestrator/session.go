package orchestrator

import (
	"context"

	"chatdesk/internal/storage"
)

// Save 将当前会话完整写入存储（最后一次写入为准）
// Save writes the full active session to the store; the last write wins.
func (o *Orchestrator) Save(ctx context.Context) error {
	return o.saveAs(ctx, o.CurrentSessionID())
}

func (o *Orchestrator) saveAs(ctx context.Context, id string) error {
	messages := o.buffer.Snapshot()
	if err := o.store.Save(id, messages, storage.SessionMeta{Model: o.provider.CurrentModel()}); err != nil {
		o.logger.Warn("save session failed", "session", id, "error", err)
		return err
	}
	o.tel.RecordSave(ctx, o.backend)
	o.logger.Debug("session saved", "session", id, "messages", len(messages))
	return nil
}

// NewSession 先保存当前会话；只有当前会话非空时才清空并换新 ID，随后立即保存新会话。
// 返回当前（可能是新的）会话 ID，以及是否真的创建了新会话。
// NewSession flushes the active session first. Only a non-empty session is replaced:
// the buffer is cleared, a fresh id is issued and the empty session is saved right away.
// It returns the active id and whether a new session was started.
func (o *Orchestrator) NewSession(ctx context.Context) (string, bool, error) {
	if err := o.Save(ctx); err != nil {
		return o.CurrentSessionID(), false, err
	}
	if o.buffer.Len() == 0 {
		return o.CurrentSessionID(), false, nil
	}
	o.buffer.Clear()
	id := o.ids.Next()
	o.setSessionID(id)
	o.logger.Info("new session", "session", id)
	if err := o.Save(ctx); err != nil {
		return id, true, err
	}
	return id, true, nil
}

// LoadSession 用已保存的会话替换当前缓冲；失败时（*storage.LoadError）状态不变
// LoadSession replaces the buffer with a stored session. On failure (*storage.LoadError)
// the in-memory state is left untouched.
func (o *Orchestrator) LoadSession(id string) (int, error) {
	doc, err := o.store.Load(id)
	if err != nil {
		o.logger.Warn("load session failed", "session", id, "error", err)
		return 0, err
	}
	o.buffer.ReplaceAll(doc.Messages)
	o.setSessionID(id)
	o.logger.Info("session loaded", "session", id, "messages", len(doc.Messages))
	return len(doc.Messages), nil
}

// DeleteSession 删除已保存的会话；删除的是当前会话时，立即换成一个新的空会话（不落盘）。
// 失败时（*storage.DeleteError）状态不变。返回值表示是否删除了当前会话。
// DeleteSession removes a stored session. Deleting the active session substitutes a
// fresh, unsaved empty session. On failure (*storage.DeleteError) nothing changes.
// The result reports whether the active session was the one deleted.
func (o *Orchestrator) DeleteSession(id string) (bool, error) {
	if err := o.store.Delete(id); err != nil {
		o.logger.Warn("delete session failed", "session", id, "error", err)
		return false, err
	}
	o.logger.Info("session deleted", "session", id)
	if id != o.CurrentSessionID() {
		return false, nil
	}
	o.buffer.Clear()
	o.setSessionID(o.ids.Next())
	return true, nil
}

// ListSessions 返回已保存的会话 ID，最新的在前
// ListSessions returns stored session ids, newest first.
func (o *Orchestrator) ListSessions() ([]string, error) {
	return o.store.List()
}

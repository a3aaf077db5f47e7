package storage

import (
	"fmt"
	"log/slog"
	"strings"
)

// MigrateFromJSON 将 JSON 会话文件导入 SQLite，已存在的 ID 跳过
// MigrateFromJSON imports JSON session documents into SQLite, skipping IDs already present.
func MigrateFromJSON(jsonDir string, store *SQLiteStore, logger *slog.Logger) (int, error) {
	jsonDir = strings.TrimSpace(jsonDir)
	if jsonDir == "" {
		return 0, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	src, err := NewJSONStore(jsonDir)
	if err != nil {
		return 0, err
	}
	ids, err := src.List()
	if err != nil {
		return 0, fmt.Errorf("list json sessions: %w", err)
	}

	migrated := 0
	for _, id := range ids {
		// 检查是否已存在 / Check if already migrated
		if store.Exists(id) {
			continue
		}
		doc, err := src.Load(id)
		if err != nil {
			logger.Warn("skip migrate session", "id", id, "error", err)
			continue
		}
		if err := store.Save(id, doc.Messages, doc.SessionMeta); err != nil {
			logger.Warn("migrate session failed", "id", id, "error", err)
			continue
		}
		migrated++
	}
	return migrated, nil
}

package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"chatdesk/internal/chat"
)

// Store 会话持久化接口，支持多后端 (JSON 文件 / SQLite)
// Store is the session persistence interface supporting multiple backends.
//
// Every Save writes the full document; the last write wins.
type Store interface {
	// Save 覆盖写入整个会话文档 / Save overwrites the whole session document
	Save(id string, messages []chat.Message, meta SessionMeta) error
	// List 返回所有会话 ID，按降序排列 / List returns every stored ID, newest first
	List() ([]string, error)
	// Load 读取并校验会话文档 / Load reads and validates a session document
	Load(id string) (Document, error)
	// Delete 删除会话；不存在时为 no-op / Delete removes a session; missing is a no-op
	Delete(id string) error
	// Exists reports whether a document is stored under id.
	Exists(id string) bool

	Close() error
}

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Options 选择并配置存储后端
// Options selects and configures a storage backend.
type Options struct {
	Backend     string
	SessionsDir string
	DBPath      string
	Logger      *slog.Logger
}

// Open 按配置打开存储后端；SQLite 后端会先导入旧的 JSON 会话
// Open opens the configured backend; the SQLite backend first imports legacy JSON sessions.
func Open(opts Options) (Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendJSON:
		store, err := NewJSONStore(opts.SessionsDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendSQLite:
		dbPath := strings.TrimSpace(opts.DBPath)
		if dbPath == "" {
			dbPath = filepath.Join(opts.SessionsDir, "sessions.db")
		}
		store, err := NewSQLiteStore(dbPath)
		if err != nil {
			return nil, err
		}
		migrated, err := MigrateFromJSON(opts.SessionsDir, store, logger)
		if err != nil {
			logger.Warn("migrate json sessions failed", "dir", opts.SessionsDir, "error", err)
		} else if migrated > 0 {
			logger.Info("migrated json sessions", "count", migrated, "db", dbPath)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("session id is empty")
	}
	if id != strings.TrimSpace(id) || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid session id %q", id)
	}
	return nil
}
